package classroom

import (
	"context"
	"net/url"

	"classroom/internal/auth"
	"classroom/internal/recordstore"
)

// CreateCourse stores a new course owned by the caller. The owner's copy
// and the courses/ index are written in one atomic update.
func (s *Service) CreateCourse(ctx context.Context, in CourseInput) (Course, error) {
	id, err := auth.Require(ctx)
	if err != nil {
		return Course{}, err
	}
	if err := Check(in); err != nil {
		return Course{}, err
	}
	if err := nonBlank("name", &in.Name); err != nil {
		return Course{}, err
	}
	c := Course{
		ID:        recordstore.NewKey(),
		Name:      in.Name,
		Classroom: in.Classroom,
		Image:     in.Image,
		OwnerID:   id.UID,
	}
	if c.Image == "" {
		c.Image = s.defaultImage
	}
	own, index, err := coursePaths(id.UID, c.ID)
	if err != nil {
		return Course{}, err
	}
	err = s.store.Update(ctx, recordstore.Path{}, map[string]any{
		own.String():   c.record(),
		index.String(): c.indexRecord(),
	})
	if err != nil {
		return Course{}, err
	}
	s.offload(ctx, "image", c.Image, own, index)
	return c, nil
}

// GetCourse returns any course by id. Courses missing from the index are
// looked up among the caller's own courses.
func (s *Service) GetCourse(ctx context.Context, courseID string) (Course, error) {
	id, err := auth.Require(ctx)
	if err != nil {
		return Course{}, err
	}
	index, err := CourseIndexPath.Expand(courseID)
	if err != nil {
		return Course{}, err
	}
	snap, err := s.store.Read(ctx, index)
	if err != nil {
		return Course{}, err
	}
	if snap.Exists() {
		return decodeCourse(snap)
	}
	c, err := s.GetOwnCourse(ctx, courseID)
	if err != nil {
		return Course{}, err
	}
	c.OwnerID = id.UID
	return c, nil
}

// GetOwnCourse returns one of the caller's courses.
func (s *Service) GetOwnCourse(ctx context.Context, courseID string) (Course, error) {
	id, err := auth.Require(ctx)
	if err != nil {
		return Course{}, err
	}
	own, err := CoursePath.Expand(id.UID, courseID)
	if err != nil {
		return Course{}, err
	}
	snap, err := s.store.Read(ctx, own)
	if err != nil {
		return Course{}, err
	}
	if !snap.Exists() {
		return Course{}, notFound("course", own)
	}
	return decodeCourse(snap)
}

// ListCourses returns the caller's courses in creation order.
func (s *Service) ListCourses(ctx context.Context) ([]Course, error) {
	id, err := auth.Require(ctx)
	if err != nil {
		return nil, err
	}
	p, err := CourseListPath.Expand(id.UID)
	if err != nil {
		return nil, err
	}
	snap, err := s.store.Read(ctx, p)
	if err != nil {
		return nil, err
	}
	return decodeChildren(snap, setCourseID)
}

// WatchCourses calls fn with the caller's course list now and after every
// change until the subscription ends.
func (s *Service) WatchCourses(ctx context.Context, fn func([]Course), onErr func(error)) (*recordstore.Subscription, error) {
	id, err := auth.Require(ctx)
	if err != nil {
		return nil, err
	}
	p, err := CourseListPath.Expand(id.UID)
	if err != nil {
		return nil, err
	}
	return watchList(ctx, s, p, setCourseID, fn, onErr)
}

// UpdateCourse merges the listed attributes into one of the caller's
// courses and its index entry.
func (s *Service) UpdateCourse(ctx context.Context, courseID string, u CourseUpdate) (Course, error) {
	id, err := auth.Require(ctx)
	if err != nil {
		return Course{}, err
	}
	if err := Check(u); err != nil {
		return Course{}, err
	}
	if err := nonBlank("name", u.Name); err != nil {
		return Course{}, err
	}
	current, err := s.GetOwnCourse(ctx, courseID)
	if err != nil {
		return Course{}, err
	}
	own, index, err := coursePaths(id.UID, courseID)
	if err != nil {
		return Course{}, err
	}

	fields := map[string]*string{"name": u.Name, "classroom": u.Classroom, "image": u.Image}
	partial := map[string]any{}
	for field, v := range fields {
		if v == nil {
			continue
		}
		val := *v
		if field == "image" && val == "" {
			val = s.defaultImage
		}
		partial[own.String()+"/"+field] = val
		partial[index.String()+"/"+field] = val
	}
	if len(partial) == 0 {
		return Course{}, recordstore.Errorf(recordstore.KindInvalidRecord, "nothing to update")
	}
	// an index entry missing from older data is rebuilt in full
	indexSnap, err := s.store.Read(ctx, index)
	if err != nil {
		return Course{}, err
	}
	if !indexSnap.Exists() {
		for field := range fields {
			delete(partial, index.String()+"/"+field)
		}
		merged := applyCourseUpdate(current, u, s.defaultImage)
		merged.OwnerID = id.UID
		partial[index.String()] = merged.indexRecord()
	}
	if err := s.store.Update(ctx, recordstore.Path{}, partial); err != nil {
		return Course{}, err
	}
	if u.Image != nil {
		s.offload(ctx, "image", *u.Image, own, index)
	}
	updated := applyCourseUpdate(current, u, s.defaultImage)
	updated.OwnerID = id.UID
	return updated, nil
}

// DeleteCourse removes one of the caller's courses and its index entry.
// People, questions and attendance recorded for the course are kept.
func (s *Service) DeleteCourse(ctx context.Context, courseID string) error {
	id, err := auth.Require(ctx)
	if err != nil {
		return err
	}
	if _, err := s.GetOwnCourse(ctx, courseID); err != nil {
		return err
	}
	own, index, err := coursePaths(id.UID, courseID)
	if err != nil {
		return err
	}
	return s.store.Update(ctx, recordstore.Path{}, map[string]any{
		own.String():   nil,
		index.String(): nil,
	})
}

// CourseLink returns the URL encoded into a course's QR code.
func (s *Service) CourseLink(courseID string) (string, error) {
	if _, err := CourseIndexPath.Expand(courseID); err != nil {
		return "", err
	}
	u, err := url.Parse(s.linkBase)
	if err != nil || s.linkBase == "" {
		return "", recordstore.Errorf(recordstore.KindUnavailable, "course link base not configured")
	}
	q := u.Query()
	q.Set("courseId", courseID)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func coursePaths(uid, courseID string) (own, index recordstore.Path, err error) {
	own, err = CoursePath.Expand(uid, courseID)
	if err != nil {
		return nil, nil, err
	}
	index, err = CourseIndexPath.Expand(courseID)
	if err != nil {
		return nil, nil, err
	}
	return own, index, nil
}

func applyCourseUpdate(c Course, u CourseUpdate, defaultImage string) Course {
	if u.Name != nil {
		c.Name = *u.Name
	}
	if u.Classroom != nil {
		c.Classroom = *u.Classroom
	}
	if u.Image != nil {
		c.Image = *u.Image
		if c.Image == "" {
			c.Image = defaultImage
		}
	}
	return c
}

func decodeCourse(snap recordstore.Snapshot) (Course, error) {
	var c Course
	if err := snap.Decode(&c); err != nil {
		return Course{}, err
	}
	setCourseID(&c, snap.Key())
	return c, nil
}

func setCourseID(c *Course, key string) { c.ID = key }
