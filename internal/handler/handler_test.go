package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"classroom/internal/attendance"
	"classroom/internal/auth"
	"classroom/internal/classroom"
	"classroom/internal/recordstore"
)

const (
	testIssuer = "classroom-test"
	testKey    = "test-signing-key"
)

type fakeUploader struct {
	publicID string
	filename string
	size     int
	err      error
}

func (f *fakeUploader) Upload(_ context.Context, data []byte, filename, publicID string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	f.publicID, f.filename, f.size = publicID, filename, len(data)
	return "https://res.example/" + publicID, nil
}

func newTestRouter(t *testing.T, opts ...Option) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	store := recordstore.New(recordstore.NewMemoryBackend())
	t.Cleanup(func() { store.Close() })
	classes := classroom.NewService(store, classroom.WithLinkBase("https://example.com/course.html"))
	att := attendance.NewService(attendance.NewRepository(store), time.UTC)
	opts = append([]Option{WithSessions(Sessions{Issuer: testIssuer, SigningKey: testKey, AccessTTL: time.Hour, RefreshTTL: 24 * time.Hour})}, opts...)
	r := gin.New()
	New(classes, att, opts...).Register(r, auth.JWTVerifier{Issuer: testIssuer, SigningKey: testKey})
	return r
}

func token(t *testing.T, uid string) string {
	t.Helper()
	pair, err := auth.Issue(auth.Identity{UID: uid, Email: uid + "@example.com", DisplayName: "User " + uid}, testIssuer, testKey, time.Hour, time.Hour)
	require.NoError(t, err)
	return pair.AccessToken
}

func do(r http.Handler, method, target, tok string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, target, &buf)
	req.Header.Set("Content-Type", "application/json")
	if tok != "" {
		req.Header.Set("Authorization", "Bearer "+tok)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

func TestStatusOf(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{recordstore.ErrUnauthenticated, http.StatusUnauthorized},
		{recordstore.ErrMissingIdentifier, http.StatusBadRequest},
		{recordstore.ErrInvalidRecord, http.StatusBadRequest},
		{recordstore.ErrNotFound, http.StatusNotFound},
		{recordstore.ErrUnavailable, http.StatusServiceUnavailable},
		{errors.New("driver exploded"), http.StatusServiceUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			assert.Equal(t, tt.want, statusOf(tt.err))
		})
	}
}

func TestRequiresToken(t *testing.T) {
	r := newTestRouter(t)
	w := do(r, http.MethodGet, "/v1/courses", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestSessions(t *testing.T) {
	r := newTestRouter(t)

	w := do(r, http.MethodPost, "/v1/sessions", "", map[string]string{"uid": "u1", "name": "Ada"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	pair := decode[auth.TokenPair](t, w)

	w = do(r, http.MethodPost, "/v1/profile", pair.AccessToken, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "Ada", decode[classroom.Profile](t, w).Name)

	w = do(r, http.MethodPost, "/v1/sessions/refresh", "", map[string]string{"refreshToken": pair.RefreshToken})
	require.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, decode[auth.TokenPair](t, w).AccessToken)

	w = do(r, http.MethodPost, "/v1/sessions/refresh", "", map[string]string{"refreshToken": pair.AccessToken})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = do(r, http.MethodPost, "/v1/sessions", "", map[string]string{})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCourseLifecycle(t *testing.T) {
	r := newTestRouter(t)
	owner, other := token(t, "owner"), token(t, "other")

	w := do(r, http.MethodPost, "/v1/courses", owner, map[string]string{"name": "Algorithms", "classroom": "B-204"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	created := decode[classroom.Course](t, w)
	assert.Equal(t, classroom.DefaultCourseImage, created.Image)
	base := "/v1/courses/" + created.ID

	w = do(r, http.MethodGet, "/v1/courses", owner, nil)
	require.Equal(t, http.StatusOK, w.Code)
	list := decode[struct{ Courses []classroom.Course }](t, w)
	require.Len(t, list.Courses, 1)

	w = do(r, http.MethodGet, base, other, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "owner", decode[classroom.Course](t, w).OwnerID)

	w = do(r, http.MethodGet, base+"?own=true", other, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = do(r, http.MethodPatch, base, other, map[string]string{"name": "Hijack"})
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = do(r, http.MethodPatch, base, owner, map[string]string{"name": "Advanced Algorithms"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Advanced Algorithms", decode[classroom.Course](t, w).Name)
	assert.Equal(t, "B-204", decode[classroom.Course](t, w).Classroom)

	w = do(r, http.MethodGet, base+"/link", other, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "https://example.com/course.html?courseId="+created.ID, decode[map[string]string](t, w)["link"])

	w = do(r, http.MethodDelete, base, owner, nil)
	assert.Equal(t, http.StatusNoContent, w.Code)
	w = do(r, http.MethodGet, base, owner, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestCourseValidation(t *testing.T) {
	r := newTestRouter(t)
	tok := token(t, "u1")

	w := do(r, http.MethodPost, "/v1/courses", tok, map[string]string{"name": "  "})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	req := httptest.NewRequest(http.MethodPost, "/v1/courses", strings.NewReader("{"))
	req.Header.Set("Authorization", "Bearer "+tok)
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestPeopleAndQuestions(t *testing.T) {
	r := newTestRouter(t)
	tok := token(t, "u1")

	w := do(r, http.MethodPost, "/v1/courses/c1/people", tok, map[string]string{"name": "Grace", "email": "grace@example.com"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	p := decode[classroom.Person](t, w)

	w = do(r, http.MethodPatch, "/v1/courses/c1/people/"+p.ID, tok, map[string]string{"name": "Grace H."})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Grace H.", decode[classroom.Person](t, w).Name)

	w = do(r, http.MethodGet, "/v1/courses/c1/people", tok, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode[struct{ People []classroom.Person }](t, w).People, 1)

	w = do(r, http.MethodDelete, "/v1/courses/c1/people/"+p.ID, tok, nil)
	assert.Equal(t, http.StatusNoContent, w.Code)
	w = do(r, http.MethodGet, "/v1/courses/c1/people/"+p.ID, tok, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = do(r, http.MethodPost, "/v1/courses/c1/questions", tok, map[string]string{"title": "Exam date?", "details": "Is it on Friday?"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	q := decode[classroom.Question](t, w)
	assert.Equal(t, "User u1", q.UserName)

	w = do(r, http.MethodPatch, "/v1/courses/c1/questions/"+q.ID, tok, map[string]string{"details": "Or Monday?"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Exam date?", decode[classroom.Question](t, w).Title)

	w = do(r, http.MethodGet, "/v1/courses/c1/questions/"+q.ID, tok, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Or Monday?", decode[classroom.Question](t, w).Details)

	w = do(r, http.MethodDelete, "/v1/courses/c1/questions/"+q.ID, tok, nil)
	assert.Equal(t, http.StatusNoContent, w.Code)
	w = do(r, http.MethodGet, "/v1/courses/c1/questions", tok, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, decode[struct{ Questions []classroom.Question }](t, w).Questions)
}

func TestAttendance(t *testing.T) {
	r := newTestRouter(t)
	owner, student := token(t, "owner"), token(t, "s1")

	w := do(r, http.MethodPost, "/v1/courses/nope/attendance", student, map[string]string{"status": "present"})
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = do(r, http.MethodPost, "/v1/courses", owner, map[string]string{"name": "Physics"})
	require.Equal(t, http.StatusCreated, w.Code)
	courseID := decode[classroom.Course](t, w).ID
	base := "/v1/courses/" + courseID + "/attendance"

	w = do(r, http.MethodPost, base, student, map[string]string{"status": "late"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(r, http.MethodPost, base, student, map[string]string{"status": "present"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	m := decode[attendance.Mark](t, w)
	assert.Equal(t, "s1", m.UserID)

	w = do(r, http.MethodGet, base+"/"+m.Date+"?userId=s1", owner, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, attendance.Present, decode[attendance.Mark](t, w).Status)

	w = do(r, http.MethodGet, base+"/yesterday", owner, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(r, http.MethodGet, base, owner, nil)
	require.Equal(t, http.StatusOK, w.Code)
	report := decode[attendance.Report](t, w)
	require.Len(t, report.Days, 1)
	assert.Equal(t, []attendance.Entry{{UserID: "s1", UserName: attendance.UnknownUser, Status: attendance.Present}}, report.Days[0].Entries)
}

func TestUpload(t *testing.T) {
	t.Run("not configured", func(t *testing.T) {
		r := newTestRouter(t)
		w := do(r, http.MethodPost, "/v1/uploads", token(t, "u1"), map[string]string{"data": "data:image/png;base64,AAAA"})
		assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	})

	t.Run("data url", func(t *testing.T) {
		up := &fakeUploader{}
		r := newTestRouter(t, WithUploader(up))
		w := do(r, http.MethodPost, "/v1/uploads", token(t, "u1"), map[string]string{"data": "data:image/png;base64,AAAA"})
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		assert.Equal(t, "upload.png", up.filename)
		assert.Equal(t, 3, up.size)
		assert.True(t, strings.HasPrefix(up.publicID, "uploads/u1/"))
		assert.Equal(t, "https://res.example/"+up.publicID, decode[map[string]string](t, w)["url"])
	})

	t.Run("multipart", func(t *testing.T) {
		up := &fakeUploader{}
		r := newTestRouter(t, WithUploader(up))
		var body bytes.Buffer
		mw := multipart.NewWriter(&body)
		fw, err := mw.CreateFormFile("file", "avatar.jpg")
		require.NoError(t, err)
		_, _ = fw.Write([]byte("jpeg-bytes"))
		require.NoError(t, mw.Close())

		req := httptest.NewRequest(http.MethodPost, "/v1/uploads", &body)
		req.Header.Set("Content-Type", mw.FormDataContentType())
		req.Header.Set("Authorization", "Bearer "+token(t, "u1"))
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)

		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		assert.Equal(t, "avatar.jpg", up.filename)
		assert.Equal(t, len("jpeg-bytes"), up.size)
	})

	t.Run("bad data url", func(t *testing.T) {
		r := newTestRouter(t, WithUploader(&fakeUploader{}))
		w := do(r, http.MethodPost, "/v1/uploads", token(t, "u1"), map[string]string{"data": "https://x/y.png"})
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("upstream failure", func(t *testing.T) {
		r := newTestRouter(t, WithUploader(&fakeUploader{err: errors.New("cdn down")}))
		w := do(r, http.MethodPost, "/v1/uploads", token(t, "u1"), map[string]string{"data": "data:image/png;base64,AAAA"})
		assert.Equal(t, http.StatusBadGateway, w.Code)
	})
}

func readFrame(t *testing.T, conn *websocket.Conn) watchMessage {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))
	var m watchMessage
	require.NoError(t, conn.ReadJSON(&m))
	return m
}

func TestWatchPeople(t *testing.T) {
	r := newTestRouter(t)
	srv := httptest.NewServer(r)
	defer srv.Close()
	tok := token(t, "u1")

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/v1/watch/courses/c1/people?access_token=" + tok
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	first := readFrame(t, conn)
	assert.Equal(t, "snapshot", first.Type)
	assert.Equal(t, []any{}, first.Data)

	w := do(r, http.MethodPost, "/v1/courses/c1/people", tok, map[string]string{"name": "Linus"})
	require.Equal(t, http.StatusCreated, w.Code)

	next := readFrame(t, conn)
	require.Equal(t, "snapshot", next.Type)
	people, ok := next.Data.([]any)
	require.True(t, ok, "%#v", next.Data)
	require.Len(t, people, 1)
	assert.Equal(t, "Linus", people[0].(map[string]any)["name"])
}

func TestWatchRejectsBeforeUpgrade(t *testing.T) {
	r := newTestRouter(t)
	srv := httptest.NewServer(r)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/v1/watch/courses"
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}
