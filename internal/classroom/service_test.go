package classroom

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"classroom/internal/auth"
	"classroom/internal/recordstore"
)

func newTestService(t *testing.T, opts ...Option) (*Service, *recordstore.Client) {
	t.Helper()
	store := recordstore.New(recordstore.NewMemoryBackend())
	t.Cleanup(func() { store.Close() })
	opts = append([]Option{WithLinkBase("https://example.com/course.html")}, opts...)
	return NewService(store, opts...), store
}

func asUser(uid string) context.Context {
	return auth.WithIdentity(context.Background(), auth.Identity{UID: uid, Email: uid + "@example.com", DisplayName: "User " + uid})
}

func strPtr(s string) *string { return &s }

func TestUnauthenticated(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.CreateCourse(ctx, CourseInput{Name: "A"})
	assert.True(t, errors.Is(err, recordstore.ErrUnauthenticated))
	_, err = svc.ListCourses(ctx)
	assert.True(t, errors.Is(err, recordstore.ErrUnauthenticated))
	_, err = svc.AskQuestion(ctx, "c1", QuestionInput{Title: "Q"})
	assert.True(t, errors.Is(err, recordstore.ErrUnauthenticated))
	_, err = svc.WatchCourses(ctx, func([]Course) {}, nil)
	assert.True(t, errors.Is(err, recordstore.ErrUnauthenticated))
}

func TestCreateCourseWritesOwnerCopyAndIndex(t *testing.T) {
	svc, store := newTestService(t)
	ctx := asUser("U")

	c, err := svc.CreateCourse(ctx, CourseInput{Name: "Algorithms", Classroom: "Room 204"})
	require.NoError(t, err)
	assert.Equal(t, DefaultCourseImage, c.Image)

	own, err := store.Read(ctx, recordstore.MustParsePath("users/U/classroom/"+c.ID))
	require.NoError(t, err)
	assert.Equal(t, map[string]any{
		"courseId":  c.ID,
		"name":      "Algorithms",
		"classroom": "Room 204",
		"image":     "default-course.jpg",
	}, own.Value)

	index, err := store.Read(ctx, recordstore.MustParsePath("courses/"+c.ID))
	require.NoError(t, err)
	assert.Equal(t, "U", index.Child("ownerId").Value)

	got, err := svc.GetCourse(asUser("student"), c.ID)
	require.NoError(t, err)
	assert.Equal(t, c, got)
}

func TestCreateCourseValidation(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := asUser("U")

	_, err := svc.CreateCourse(ctx, CourseInput{})
	assert.True(t, errors.Is(err, recordstore.ErrInvalidRecord))
	assert.Contains(t, err.Error(), "name")

	_, err = svc.CreateCourse(ctx, CourseInput{Name: "   "})
	assert.True(t, errors.Is(err, recordstore.ErrInvalidRecord))
}

func TestListAndUpdateCourse(t *testing.T) {
	svc, store := newTestService(t)
	ctx := asUser("U")

	first, err := svc.CreateCourse(ctx, CourseInput{Name: "Algorithms"})
	require.NoError(t, err)
	second, err := svc.CreateCourse(ctx, CourseInput{Name: "Graphs", Image: "graphs.png"})
	require.NoError(t, err)

	list, err := svc.ListCourses(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, first.ID, list[0].ID)
	assert.Equal(t, second.ID, list[1].ID)

	updated, err := svc.UpdateCourse(ctx, first.ID, CourseUpdate{Classroom: strPtr("Room 9"), Image: strPtr("")})
	require.NoError(t, err)
	assert.Equal(t, "Algorithms", updated.Name)
	assert.Equal(t, "Room 9", updated.Classroom)
	assert.Equal(t, DefaultCourseImage, updated.Image)

	index, err := store.Read(ctx, recordstore.MustParsePath("courses/"+first.ID+"/classroom"))
	require.NoError(t, err)
	assert.Equal(t, "Room 9", index.Value)

	_, err = svc.UpdateCourse(ctx, first.ID, CourseUpdate{})
	assert.True(t, errors.Is(err, recordstore.ErrInvalidRecord))

	_, err = svc.UpdateCourse(asUser("intruder"), first.ID, CourseUpdate{Name: strPtr("Mine")})
	assert.True(t, errors.Is(err, recordstore.ErrNotFound))
}

func TestUpdateCourseRebuildsMissingIndex(t *testing.T) {
	svc, store := newTestService(t)
	ctx := asUser("U")
	require.NoError(t, store.CreateAt(ctx, recordstore.MustParsePath("users/U/classroom/legacy"), map[string]any{
		"courseId": "legacy", "name": "Old", "classroom": "R1", "image": "old.png",
	}))

	_, err := svc.UpdateCourse(ctx, "legacy", CourseUpdate{Name: strPtr("New")})
	require.NoError(t, err)

	index, err := store.Read(ctx, recordstore.MustParsePath("courses/legacy"))
	require.NoError(t, err)
	assert.Equal(t, map[string]any{
		"courseId": "legacy", "name": "New", "classroom": "R1", "image": "old.png", "ownerId": "U",
	}, index.Value)
}

func TestDeleteCourseKeepsPeopleAndQuestions(t *testing.T) {
	svc, store := newTestService(t)
	ctx := asUser("U")

	c, err := svc.CreateCourse(ctx, CourseInput{Name: "Algorithms"})
	require.NoError(t, err)
	_, err = svc.AddPerson(ctx, c.ID, PersonInput{Name: "Ada"})
	require.NoError(t, err)
	_, err = svc.AskQuestion(ctx, c.ID, QuestionInput{Title: "Exam date?"})
	require.NoError(t, err)

	require.NoError(t, svc.DeleteCourse(ctx, c.ID))

	for _, p := range []string{"users/U/classroom/" + c.ID, "courses/" + c.ID} {
		snap, err := store.Read(ctx, recordstore.MustParsePath(p))
		require.NoError(t, err)
		assert.False(t, snap.Exists(), p)
	}
	people, err := svc.ListPeople(ctx, c.ID)
	require.NoError(t, err)
	assert.Len(t, people, 1)
	questions, err := svc.ListQuestions(ctx, c.ID)
	require.NoError(t, err)
	assert.Len(t, questions, 1)

	err = svc.DeleteCourse(ctx, c.ID)
	assert.True(t, errors.Is(err, recordstore.ErrNotFound))
	_, err = svc.GetCourse(ctx, c.ID)
	assert.True(t, errors.Is(err, recordstore.ErrNotFound))
}

func TestMissingIdentifier(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := asUser("U")

	_, err := svc.GetCourse(ctx, "")
	assert.True(t, errors.Is(err, recordstore.ErrMissingIdentifier))
	_, err = svc.AddPerson(ctx, "", PersonInput{Name: "Ada"})
	assert.True(t, errors.Is(err, recordstore.ErrMissingIdentifier))
	err = svc.DeleteQuestion(ctx, "c1", "")
	assert.True(t, errors.Is(err, recordstore.ErrMissingIdentifier))
	_, err = svc.CourseLink("")
	assert.True(t, errors.Is(err, recordstore.ErrMissingIdentifier))
}

func TestWatchCourses(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := asUser("U")

	var mu sync.Mutex
	var lists [][]Course
	updates := make(chan struct{}, 10)
	sub, err := svc.WatchCourses(ctx, func(cs []Course) {
		mu.Lock()
		lists = append(lists, cs)
		mu.Unlock()
		updates <- struct{}{}
	}, nil)
	require.NoError(t, err)
	defer sub.Unsubscribe()

	wait := func() []Course {
		t.Helper()
		select {
		case <-updates:
		case <-time.After(2 * time.Second):
			t.Fatal("no update")
		}
		mu.Lock()
		defer mu.Unlock()
		return lists[len(lists)-1]
	}

	assert.Empty(t, wait())

	// an independent writer for the same user
	c, err := svc.CreateCourse(asUser("U"), CourseInput{Name: "Algorithms"})
	require.NoError(t, err)
	got := wait()
	require.Len(t, got, 1)
	assert.Equal(t, "Algorithms", got[0].Name)

	require.NoError(t, svc.DeleteCourse(asUser("U"), c.ID))
	assert.Empty(t, wait())
}

func TestCourseLink(t *testing.T) {
	svc, _ := newTestService(t)
	link, err := svc.CourseLink("c-1")
	require.NoError(t, err)
	assert.Equal(t, "https://example.com/course.html?courseId=c-1", link)

	bare := NewService(nil)
	_, err = bare.CourseLink("c-1")
	assert.True(t, errors.Is(err, recordstore.ErrUnavailable))
}

func TestPeople(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := asUser("U")

	ada, err := svc.AddPerson(ctx, "c1", PersonInput{Name: "Ada", Email: "ada@example.com"})
	require.NoError(t, err)
	bob, err := svc.AddPerson(ctx, "c1", PersonInput{Name: "Bob"})
	require.NoError(t, err)

	_, err = svc.AddPerson(ctx, "c1", PersonInput{Name: "Eve", Email: "not-an-email"})
	assert.True(t, errors.Is(err, recordstore.ErrInvalidRecord))

	people, err := svc.ListPeople(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, []Person{ada, bob}, people)

	updated, err := svc.UpdatePerson(ctx, "c1", ada.ID, PersonUpdate{Email: strPtr("")})
	require.NoError(t, err)
	assert.Empty(t, updated.Email)
	got, err := svc.GetPerson(ctx, "c1", ada.ID)
	require.NoError(t, err)
	assert.Equal(t, Person{ID: ada.ID, Name: "Ada"}, got)
	_, err = svc.UpdatePerson(ctx, "c1", ada.ID, PersonUpdate{Email: strPtr("still-not-an-email")})
	assert.True(t, errors.Is(err, recordstore.ErrInvalidRecord))

	_, err = svc.UpdatePerson(ctx, "c1", "ghost", PersonUpdate{Name: strPtr("X")})
	assert.True(t, errors.Is(err, recordstore.ErrNotFound))

	require.NoError(t, svc.DeletePerson(ctx, "c1", bob.ID))
	require.NoError(t, svc.DeletePerson(ctx, "c1", bob.ID))
	people, err = svc.ListPeople(ctx, "c1")
	require.NoError(t, err)
	assert.Len(t, people, 1)
}

func TestQuestions(t *testing.T) {
	now := time.Date(2024, 3, 5, 9, 30, 0, 0, time.UTC)
	svc, _ := newTestService(t, WithClock(func() time.Time { return now }))

	q, err := svc.AskQuestion(asUser("U"), "c1", QuestionInput{Title: "Exam date?", Details: "Midterm"})
	require.NoError(t, err)
	assert.Equal(t, "2024-03-05T09:30:00.000Z", q.Timestamp)
	assert.Equal(t, "U", q.UserID)
	assert.Equal(t, "User U", q.UserName)

	anon := auth.WithIdentity(context.Background(), auth.Identity{UID: "N"})
	q2, err := svc.AskQuestion(anon, "c1", QuestionInput{Title: "Room?"})
	require.NoError(t, err)
	assert.Equal(t, AnonymousAuthor, q2.UserName)

	updated, err := svc.UpdateQuestion(asUser("U"), "c1", q.ID, QuestionUpdate{Details: strPtr("Final")})
	require.NoError(t, err)
	assert.Equal(t, "Exam date?", updated.Title)
	assert.Equal(t, "Final", updated.Details)

	list, err := svc.ListQuestions(asUser("U"), "c1")
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, updated, list[0])

	require.NoError(t, svc.DeleteQuestion(asUser("U"), "c1", q2.ID))
	_, err = svc.GetQuestion(asUser("U"), "c1", q2.ID)
	assert.True(t, errors.Is(err, recordstore.ErrNotFound))
}

func TestQuestionAuthorFromProfile(t *testing.T) {
	svc, _ := newTestService(t)
	noName := auth.WithIdentity(context.Background(), auth.Identity{UID: "P"})
	_, err := svc.UpdateProfile(noName, ProfileUpdate{Name: strPtr("Priya")})
	require.NoError(t, err)

	q, err := svc.AskQuestion(noName, "c1", QuestionInput{Title: "Hi"})
	require.NoError(t, err)
	assert.Equal(t, "Priya", q.UserName)
}

func TestProfiles(t *testing.T) {
	svc, store := newTestService(t)
	ctx := asUser("U")

	_, err := svc.GetProfile(ctx)
	assert.True(t, errors.Is(err, recordstore.ErrNotFound))

	// a course created before the first sign-in survives profile creation
	c, err := svc.CreateCourse(ctx, CourseInput{Name: "Algorithms"})
	require.NoError(t, err)

	p, err := svc.EnsureProfile(ctx)
	require.NoError(t, err)
	assert.Equal(t, Profile{UserID: "U", Name: "User U", Email: "U@example.com"}, p)

	list, err := svc.ListCourses(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, c.ID, list[0].ID)

	p, err = svc.UpdateProfile(ctx, ProfileUpdate{Username: strPtr("algo_fan"), Photo: strPtr("https://img/u.png")})
	require.NoError(t, err)
	assert.Equal(t, "algo_fan", p.Username)
	assert.Equal(t, "User U", p.Name)

	// EnsureProfile does not overwrite an existing profile
	p, err = svc.EnsureProfile(auth.WithIdentity(context.Background(), auth.Identity{UID: "U", DisplayName: "Someone Else"}))
	require.NoError(t, err)
	assert.Equal(t, "User U", p.Name)

	_, err = svc.UpdateProfile(ctx, ProfileUpdate{Email: strPtr("bad")})
	assert.True(t, errors.Is(err, recordstore.ErrInvalidRecord))
	p, err = svc.UpdateProfile(ctx, ProfileUpdate{Email: strPtr("")})
	require.NoError(t, err)
	assert.Empty(t, p.Email)
	snap, err := store.Read(ctx, recordstore.MustParsePath("users/U/email"))
	require.NoError(t, err)
	assert.False(t, snap.Exists())
	p, err = svc.UpdateProfile(ctx, ProfileUpdate{Email: strPtr("u@new.example.com")})
	require.NoError(t, err)
	assert.Equal(t, "u@new.example.com", p.Email)
	_, err = svc.UpdateProfile(ctx, ProfileUpdate{})
	assert.True(t, errors.Is(err, recordstore.ErrInvalidRecord))

	snap, err = store.Read(ctx, recordstore.MustParsePath("users/U/classroom/"+c.ID+"/name"))
	require.NoError(t, err)
	assert.Equal(t, "Algorithms", snap.Value)
}

type fakeOffloader struct {
	mu    sync.Mutex
	calls []string
}

func (f *fakeOffloader) Offload(_ context.Context, field string, paths ...recordstore.Path) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, p := range paths {
		f.calls = append(f.calls, field+"@"+p.String())
	}
	return nil
}

func TestInlineImagesAreOffloaded(t *testing.T) {
	off := &fakeOffloader{}
	svc, _ := newTestService(t, WithImageOffloader(off))
	ctx := asUser("U")

	_, err := svc.CreateCourse(ctx, CourseInput{Name: "A", Image: "https://img/a.png"})
	require.NoError(t, err)
	assert.Empty(t, off.calls)

	inline, err := svc.CreateCourse(ctx, CourseInput{Name: "B", Image: "data:image/png;base64,iVBORw0KGgo="})
	require.NoError(t, err)
	assert.Equal(t, []string{
		"image@users/U/classroom/" + inline.ID,
		"image@courses/" + inline.ID,
	}, off.calls)

	_, err = svc.UpdateProfile(ctx, ProfileUpdate{Photo: strPtr("data:image/jpeg;base64,/9j/")})
	require.NoError(t, err)
	assert.Contains(t, off.calls, "photo@users/U")
}
