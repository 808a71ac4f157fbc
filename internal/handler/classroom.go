package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"classroom/internal/classroom"
)

func (h *Handler) EnsureProfile(c *gin.Context) {
	p, err := h.classes.EnsureProfile(c.Request.Context())
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

func (h *Handler) GetProfile(c *gin.Context) {
	p, err := h.classes.GetProfile(c.Request.Context())
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

func (h *Handler) UpdateProfile(c *gin.Context) {
	var u classroom.ProfileUpdate
	if !bind(c, &u) {
		return
	}
	p, err := h.classes.UpdateProfile(c.Request.Context(), u)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

func (h *Handler) UserName(c *gin.Context) {
	name, err := h.classes.UserName(c.Request.Context(), c.Param("userId"))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"userId": c.Param("userId"), "name": name})
}

func (h *Handler) CreateCourse(c *gin.Context) {
	var in classroom.CourseInput
	if !bind(c, &in) {
		return
	}
	course, err := h.classes.CreateCourse(c.Request.Context(), in)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, course)
}

func (h *Handler) ListCourses(c *gin.Context) {
	courses, err := h.classes.ListCourses(c.Request.Context())
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"courses": courses})
}

// GetCourse serves any course by id; ?own=true restricts it to the caller's.
func (h *Handler) GetCourse(c *gin.Context) {
	get := h.classes.GetCourse
	if c.Query("own") == "true" {
		get = h.classes.GetOwnCourse
	}
	course, err := get(c.Request.Context(), c.Param("courseId"))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, course)
}

func (h *Handler) UpdateCourse(c *gin.Context) {
	var u classroom.CourseUpdate
	if !bind(c, &u) {
		return
	}
	course, err := h.classes.UpdateCourse(c.Request.Context(), c.Param("courseId"), u)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, course)
}

func (h *Handler) DeleteCourse(c *gin.Context) {
	if err := h.classes.DeleteCourse(c.Request.Context(), c.Param("courseId")); err != nil {
		fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) CourseLink(c *gin.Context) {
	link, err := h.classes.CourseLink(c.Param("courseId"))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"courseId": c.Param("courseId"), "link": link})
}

func (h *Handler) AddPerson(c *gin.Context) {
	var in classroom.PersonInput
	if !bind(c, &in) {
		return
	}
	p, err := h.classes.AddPerson(c.Request.Context(), c.Param("courseId"), in)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, p)
}

func (h *Handler) ListPeople(c *gin.Context) {
	people, err := h.classes.ListPeople(c.Request.Context(), c.Param("courseId"))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"people": people})
}

func (h *Handler) GetPerson(c *gin.Context) {
	p, err := h.classes.GetPerson(c.Request.Context(), c.Param("courseId"), c.Param("personId"))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

func (h *Handler) UpdatePerson(c *gin.Context) {
	var u classroom.PersonUpdate
	if !bind(c, &u) {
		return
	}
	p, err := h.classes.UpdatePerson(c.Request.Context(), c.Param("courseId"), c.Param("personId"), u)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

func (h *Handler) DeletePerson(c *gin.Context) {
	if err := h.classes.DeletePerson(c.Request.Context(), c.Param("courseId"), c.Param("personId")); err != nil {
		fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) AskQuestion(c *gin.Context) {
	var in classroom.QuestionInput
	if !bind(c, &in) {
		return
	}
	q, err := h.classes.AskQuestion(c.Request.Context(), c.Param("courseId"), in)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, q)
}

func (h *Handler) ListQuestions(c *gin.Context) {
	qs, err := h.classes.ListQuestions(c.Request.Context(), c.Param("courseId"))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"questions": qs})
}

func (h *Handler) GetQuestion(c *gin.Context) {
	q, err := h.classes.GetQuestion(c.Request.Context(), c.Param("courseId"), c.Param("questionId"))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, q)
}

func (h *Handler) UpdateQuestion(c *gin.Context) {
	var u classroom.QuestionUpdate
	if !bind(c, &u) {
		return
	}
	q, err := h.classes.UpdateQuestion(c.Request.Context(), c.Param("courseId"), c.Param("questionId"), u)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, q)
}

func (h *Handler) DeleteQuestion(c *gin.Context) {
	if err := h.classes.DeleteQuestion(c.Request.Context(), c.Param("courseId"), c.Param("questionId")); err != nil {
		fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
