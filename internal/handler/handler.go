// Package handler exposes the classroom and attendance services over HTTP.
package handler

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"classroom/internal/applog"
	"classroom/internal/attendance"
	"classroom/internal/auth"
	"classroom/internal/classroom"
	"classroom/internal/media"
	"classroom/internal/recordstore"
)

// Sessions configures development token issuance.
type Sessions struct {
	Issuer     string
	SigningKey string
	AccessTTL  time.Duration
	RefreshTTL time.Duration
}

type Handler struct {
	classes  *classroom.Service
	att      *attendance.Service
	uploader media.Uploader
	sessions *Sessions
}

// Option configures a Handler.
type Option func(*Handler)

// WithUploader enables POST /v1/uploads.
func WithUploader(u media.Uploader) Option {
	return func(h *Handler) { h.uploader = u }
}

// WithSessions enables the development session endpoints.
func WithSessions(s Sessions) Option {
	return func(h *Handler) { h.sessions = &s }
}

func New(classes *classroom.Service, att *attendance.Service, opts ...Option) *Handler {
	h := &Handler{classes: classes, att: att}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Register mounts the public routes on r and the authenticated ones on a
// /v1 group guarded by v. Extra middleware runs after authentication.
func (h *Handler) Register(r gin.IRouter, v auth.Verifier, mw ...gin.HandlerFunc) {
	if h.sessions != nil {
		r.POST("/v1/sessions", h.CreateSession)
		r.POST("/v1/sessions/refresh", h.RefreshSession)
	}

	g := r.Group("/v1", append([]gin.HandlerFunc{auth.Authenticate(v)}, mw...)...)

	g.POST("/profile", h.EnsureProfile)
	g.GET("/profile", h.GetProfile)
	g.PATCH("/profile", h.UpdateProfile)
	g.GET("/users/:userId/name", h.UserName)

	g.POST("/courses", h.CreateCourse)
	g.GET("/courses", h.ListCourses)
	g.GET("/courses/:courseId", h.GetCourse)
	g.PATCH("/courses/:courseId", h.UpdateCourse)
	g.DELETE("/courses/:courseId", h.DeleteCourse)
	g.GET("/courses/:courseId/link", h.CourseLink)

	g.POST("/courses/:courseId/people", h.AddPerson)
	g.GET("/courses/:courseId/people", h.ListPeople)
	g.GET("/courses/:courseId/people/:personId", h.GetPerson)
	g.PATCH("/courses/:courseId/people/:personId", h.UpdatePerson)
	g.DELETE("/courses/:courseId/people/:personId", h.DeletePerson)

	g.POST("/courses/:courseId/questions", h.AskQuestion)
	g.GET("/courses/:courseId/questions", h.ListQuestions)
	g.GET("/courses/:courseId/questions/:questionId", h.GetQuestion)
	g.PATCH("/courses/:courseId/questions/:questionId", h.UpdateQuestion)
	g.DELETE("/courses/:courseId/questions/:questionId", h.DeleteQuestion)

	g.POST("/courses/:courseId/attendance", h.SubmitAttendance)
	g.GET("/courses/:courseId/attendance", h.AttendanceReport)
	g.GET("/courses/:courseId/attendance/:date", h.GetAttendance)

	g.GET("/watch/courses", h.WatchCourses)
	g.GET("/watch/courses/:courseId/people", h.WatchPeople)
	g.GET("/watch/courses/:courseId/questions", h.WatchQuestions)
	g.GET("/watch/courses/:courseId/attendance", h.WatchAttendance)

	g.POST("/uploads", h.Upload)
}

// statusOf maps a store error kind to an HTTP status.
func statusOf(err error) int {
	switch recordstore.KindOf(err) {
	case recordstore.KindUnauthenticated:
		return http.StatusUnauthorized
	case recordstore.KindMissingIdentifier, recordstore.KindInvalidRecord:
		return http.StatusBadRequest
	case recordstore.KindNotFound:
		return http.StatusNotFound
	}
	return http.StatusServiceUnavailable
}

func fail(c *gin.Context, err error) {
	status := statusOf(err)
	msg := err.Error()
	var se *recordstore.Error
	if status == http.StatusServiceUnavailable {
		applog.Printf("%s %s: %v", c.Request.Method, c.FullPath(), err)
		if !errors.As(err, &se) || se.Msg == "" {
			msg = "store unavailable"
		}
	}
	c.AbortWithStatusJSON(status, gin.H{"error": msg})
}

func bind(c *gin.Context, dst any) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return false
	}
	return true
}
