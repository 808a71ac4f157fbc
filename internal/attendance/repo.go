package attendance

import (
	"context"

	"classroom/internal/classroom"
	"classroom/internal/recordstore"
)

// Record locations.
const (
	CoursePath recordstore.Template = "attendances/{courseId}"
	DayPath    recordstore.Template = "attendances/{courseId}/{date}"
	EntryPath  recordstore.Template = "attendances/{courseId}/{date}/{userId}"
)

// Repository maps attendance onto the record store.
type Repository struct {
	store *recordstore.Client
}

// NewRepository creates a repo.
func NewRepository(store *recordstore.Client) *Repository {
	return &Repository{store: store}
}

// Put stores status for one user on one day, replacing any earlier value.
func (r *Repository) Put(ctx context.Context, courseID, date, userID string, status Status) error {
	p, err := EntryPath.Expand(courseID, date, userID)
	if err != nil {
		return err
	}
	return r.store.CreateAt(ctx, p, string(status))
}

// Get returns the stored status, or "" when none was recorded.
func (r *Repository) Get(ctx context.Context, courseID, date, userID string) (Status, error) {
	p, err := EntryPath.Expand(courseID, date, userID)
	if err != nil {
		return "", err
	}
	snap, err := r.store.Read(ctx, p)
	if err != nil {
		return "", err
	}
	v, _ := snap.Str()
	return Status(v), nil
}

// Course returns every recorded day of a course.
func (r *Repository) Course(ctx context.Context, courseID string) (recordstore.Snapshot, error) {
	p, err := CoursePath.Expand(courseID)
	if err != nil {
		return recordstore.Snapshot{}, err
	}
	return r.store.Read(ctx, p)
}

// Watch streams every recorded day of a course.
func (r *Repository) Watch(ctx context.Context, courseID string, fn func(recordstore.Snapshot), opts ...recordstore.SubscribeOption) (*recordstore.Subscription, error) {
	p, err := CoursePath.Expand(courseID)
	if err != nil {
		return nil, err
	}
	return r.store.Subscribe(ctx, p, fn, opts...)
}

// CourseExists reports whether the course index has an entry for courseID.
func (r *Repository) CourseExists(ctx context.Context, courseID string) (bool, error) {
	p, err := classroom.CourseIndexPath.Expand(courseID)
	if err != nil {
		return false, err
	}
	snap, err := r.store.Read(ctx, p)
	if err != nil {
		return false, err
	}
	return snap.Exists(), nil
}

// UserName returns the profile name of uid, or "".
func (r *Repository) UserName(ctx context.Context, uid string) (string, error) {
	p, err := classroom.ProfilePath.Expand(uid)
	if err != nil {
		return "", err
	}
	name, err := p.Child("name")
	if err != nil {
		return "", err
	}
	snap, err := r.store.Read(ctx, name)
	if err != nil {
		return "", err
	}
	v, _ := snap.Str()
	return v, nil
}
