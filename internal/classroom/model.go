// Package classroom maps courses, their participants and questions, and
// user profiles onto the record store.
package classroom

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"classroom/internal/recordstore"
)

// Record locations.
const (
	ProfilePath     recordstore.Template = "users/{userId}"
	CourseListPath  recordstore.Template = "users/{userId}/classroom"
	CoursePath      recordstore.Template = "users/{userId}/classroom/{courseId}"
	CourseIndexPath recordstore.Template = "courses/{courseId}"
	PeoplePath      recordstore.Template = "people/{courseId}"
	PersonPath      recordstore.Template = "people/{courseId}/{personId}"
	QuestionsPath   recordstore.Template = "questions/{courseId}"
	QuestionPath    recordstore.Template = "questions/{courseId}/{questionId}"
)

// DefaultCourseImage is stored when a course is created without an image.
const DefaultCourseImage = "default-course.jpg"

// AnonymousAuthor names questions from users without a display name.
const AnonymousAuthor = "Anonymous"

// Profile is stored at users/{userId}.
type Profile struct {
	UserID   string `json:"userId"`
	Name     string `json:"name" validate:"max=100"`
	Email    string `json:"email" validate:"omitempty,email"`
	Photo    string `json:"photo"`
	Username string `json:"username" validate:"max=50"`
}

// ProfileUpdate lists the profile attributes to change.
type ProfileUpdate struct {
	Name     *string `json:"name" validate:"omitempty,max=100"`
	Email    *string `json:"email"`
	Photo    *string `json:"photo"`
	Username *string `json:"username" validate:"omitempty,max=50"`
}

// Course is stored at users/{ownerId}/classroom/{courseId} and mirrored,
// with ownerId, at courses/{courseId}.
type Course struct {
	ID        string `json:"courseId"`
	Name      string `json:"name"`
	Classroom string `json:"classroom"`
	Image     string `json:"image"`
	OwnerID   string `json:"ownerId,omitempty"`
}

func (c Course) record() map[string]any {
	return map[string]any{
		"courseId":  c.ID,
		"name":      c.Name,
		"classroom": c.Classroom,
		"image":     c.Image,
	}
}

func (c Course) indexRecord() map[string]any {
	r := c.record()
	r["ownerId"] = c.OwnerID
	return r
}

// CourseInput is what a caller supplies to create a course.
type CourseInput struct {
	Name      string `json:"name" validate:"required,max=200"`
	Classroom string `json:"classroom" validate:"max=200"`
	Image     string `json:"image"`
}

// CourseUpdate lists the course attributes to change.
type CourseUpdate struct {
	Name      *string `json:"name" validate:"omitempty,max=200"`
	Classroom *string `json:"classroom" validate:"omitempty,max=200"`
	Image     *string `json:"image"`
}

// Person is stored at people/{courseId}/{personId}.
type Person struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email,omitempty"`
}

// PersonInput is what a caller supplies to add a person.
type PersonInput struct {
	Name  string `json:"name" validate:"required,max=200"`
	Email string `json:"email" validate:"omitempty,email"`
}

// PersonUpdate lists the person attributes to change. An empty Email removes it.
type PersonUpdate struct {
	Name  *string `json:"name" validate:"omitempty,max=200"`
	Email *string `json:"email"`
}

// Question is stored at questions/{courseId}/{questionId}.
type Question struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	Details   string `json:"details"`
	Timestamp string `json:"timestamp"`
	UserID    string `json:"userId"`
	UserName  string `json:"userName"`
}

// QuestionInput is what a caller supplies to ask a question.
type QuestionInput struct {
	Title   string `json:"title" validate:"required,max=300"`
	Details string `json:"details" validate:"max=5000"`
}

// QuestionUpdate lists the question attributes to change.
type QuestionUpdate struct {
	Title   *string `json:"title" validate:"omitempty,max=300"`
	Details *string `json:"details" validate:"omitempty,max=5000"`
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// Check validates v against its struct tags and reports failures as
// invalid-record errors.
func Check(v any) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		msgs := make([]string, 0, len(verrs))
		for _, fe := range verrs {
			if fe.Param() != "" {
				msgs = append(msgs, fmt.Sprintf("%s must satisfy %s=%s", fe.Field(), fe.Tag(), fe.Param()))
			} else {
				msgs = append(msgs, fmt.Sprintf("%s must satisfy %s", fe.Field(), fe.Tag()))
			}
		}
		return recordstore.Errorf(recordstore.KindInvalidRecord, "%s", strings.Join(msgs, "; "))
	}
	return &recordstore.Error{Kind: recordstore.KindInvalidRecord, Err: err}
}

// nonBlank rejects pointers to blank strings for required attributes.
func nonBlank(field string, v *string) error {
	if v != nil && strings.TrimSpace(*v) == "" {
		return recordstore.Errorf(recordstore.KindInvalidRecord, "%s must not be blank", field)
	}
	return nil
}

// optionalEmail validates a replacement email. An empty value clears the
// attribute and is always accepted.
func optionalEmail(v *string) error {
	if v == nil || *v == "" {
		return nil
	}
	if err := validate.Var(*v, "email"); err != nil {
		return recordstore.Errorf(recordstore.KindInvalidRecord, "email must satisfy email")
	}
	return nil
}

// decodeChildren decodes every child of snap in key order.
func decodeChildren[T any](snap recordstore.Snapshot, setID func(*T, string)) ([]T, error) {
	children := snap.Children()
	out := make([]T, 0, len(children))
	for _, ch := range children {
		var item T
		if err := ch.Decode(&item); err != nil {
			return nil, err
		}
		setID(&item, ch.Key())
		out = append(out, item)
	}
	return out, nil
}

func notFound(what string, p recordstore.Path) error {
	return &recordstore.Error{Kind: recordstore.KindNotFound, Path: p.String(), Msg: what + " not found"}
}
