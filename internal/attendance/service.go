// Package attendance records one status per user, course and day.
package attendance

import (
	"context"
	"time"

	"classroom/internal/auth"
	"classroom/internal/classroom"
	"classroom/internal/recordstore"
)

// DateLayout is the ISO-8601 calendar date used as the day key.
const DateLayout = "2006-01-02"

// UnknownUser names users without a profile in reports.
const UnknownUser = "Unknown User"

// Status is the attendance state of one user on one day.
type Status string

const (
	Present Status = "present"
	Absent  Status = "absent"
	Excused Status = "excused"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case Present, Absent, Excused:
		return true
	}
	return false
}

// Mark is a submitted attendance status.
type Mark struct {
	CourseID string `json:"courseId"`
	Date     string `json:"date"`
	UserID   string `json:"userId"`
	Status   Status `json:"status" validate:"required,oneof=present absent excused"`
}

// Entry is one user's status within a report day.
type Entry struct {
	UserID   string `json:"userId"`
	UserName string `json:"userName"`
	Status   Status `json:"status"`
}

// Day groups the entries recorded on one date.
type Day struct {
	Date    string  `json:"date"`
	Entries []Entry `json:"entries"`
}

// Report lists every recorded day of a course, oldest first.
type Report struct {
	CourseID string `json:"courseId"`
	Days     []Day  `json:"days"`
}

// Service coordinates attendance submissions and reports.
type Service struct {
	repo *Repository
	loc  *time.Location
	now  func() time.Time
}

// NewService creates a service that keys days in loc.
func NewService(repo *Repository, loc *time.Location) *Service {
	if loc == nil {
		loc = time.UTC
	}
	return &Service{repo: repo, loc: loc, now: time.Now}
}

// DateKey returns the day key for t.
func (s *Service) DateKey(t time.Time) string {
	return t.In(s.loc).Format(DateLayout)
}

// Submit records the caller's status for today. A later submission on the
// same day replaces the earlier one.
func (s *Service) Submit(ctx context.Context, courseID string, status Status) (Mark, error) {
	id, err := auth.Require(ctx)
	if err != nil {
		return Mark{}, err
	}
	m := Mark{CourseID: courseID, Date: s.DateKey(s.now()), UserID: id.UID, Status: status}
	if err := classroom.Check(m); err != nil {
		return Mark{}, err
	}
	if courseID == "" {
		return Mark{}, recordstore.Errorf(recordstore.KindMissingIdentifier, "no course selected")
	}
	exists, err := s.repo.CourseExists(ctx, courseID)
	if err != nil {
		return Mark{}, err
	}
	if !exists {
		return Mark{}, &recordstore.Error{Kind: recordstore.KindNotFound, Path: "courses/" + courseID, Msg: "course not found"}
	}
	if err := s.repo.Put(ctx, m.CourseID, m.Date, m.UserID, m.Status); err != nil {
		return Mark{}, err
	}
	return m, nil
}

// Get returns the status recorded for userID (the caller when empty) on date.
func (s *Service) Get(ctx context.Context, courseID, date, userID string) (Mark, error) {
	id, err := auth.Require(ctx)
	if err != nil {
		return Mark{}, err
	}
	if userID == "" {
		userID = id.UID
	}
	if _, err := time.Parse(DateLayout, date); err != nil {
		return Mark{}, recordstore.Errorf(recordstore.KindInvalidRecord, "date %q is not YYYY-MM-DD", date)
	}
	status, err := s.repo.Get(ctx, courseID, date, userID)
	if err != nil {
		return Mark{}, err
	}
	if status == "" {
		return Mark{}, &recordstore.Error{Kind: recordstore.KindNotFound, Msg: "no attendance recorded"}
	}
	return Mark{CourseID: courseID, Date: date, UserID: userID, Status: status}, nil
}

// Report lists every recorded status of a course with user names.
func (s *Service) Report(ctx context.Context, courseID string) (Report, error) {
	if _, err := auth.Require(ctx); err != nil {
		return Report{}, err
	}
	snap, err := s.repo.Course(ctx, courseID)
	if err != nil {
		return Report{}, err
	}
	return s.buildReport(ctx, courseID, snap, map[string]string{})
}

// WatchReport calls fn with the course report now and after every change.
func (s *Service) WatchReport(ctx context.Context, courseID string, fn func(Report), onErr func(error)) (*recordstore.Subscription, error) {
	if _, err := auth.Require(ctx); err != nil {
		return nil, err
	}
	var opts []recordstore.SubscribeOption
	if onErr != nil {
		opts = append(opts, recordstore.OnError(onErr))
	}
	return s.repo.Watch(ctx, courseID, func(snap recordstore.Snapshot) {
		// names are resolved per delivery; profiles may appear later
		r, err := s.buildReport(ctx, courseID, snap, map[string]string{})
		if err != nil {
			if onErr != nil {
				onErr(err)
			}
			return
		}
		fn(r)
	}, opts...)
}

// buildReport walks date then user. names caches profile lookups within
// one report.
func (s *Service) buildReport(ctx context.Context, courseID string, snap recordstore.Snapshot, names map[string]string) (Report, error) {
	r := Report{CourseID: courseID, Days: []Day{}}
	for _, day := range snap.Children() {
		d := Day{Date: day.Key(), Entries: []Entry{}}
		for _, e := range day.Children() {
			v, ok := e.Str()
			if !ok {
				continue
			}
			uid := e.Key()
			name, cached := names[uid]
			if !cached {
				n, err := s.repo.UserName(ctx, uid)
				if err != nil {
					return Report{}, err
				}
				if n == "" {
					n = UnknownUser
				}
				names[uid] = n
				name = n
			}
			d.Entries = append(d.Entries, Entry{UserID: uid, UserName: name, Status: Status(v)})
		}
		r.Days = append(r.Days, d)
	}
	return r, nil
}
