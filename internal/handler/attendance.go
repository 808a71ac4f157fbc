package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"classroom/internal/attendance"
)

func (h *Handler) SubmitAttendance(c *gin.Context) {
	var req struct {
		Status attendance.Status `json:"status" binding:"required"`
	}
	if !bind(c, &req) {
		return
	}
	m, err := h.att.Submit(c.Request.Context(), c.Param("courseId"), req.Status)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, m)
}

// GetAttendance returns one status; ?userId= selects another user.
func (h *Handler) GetAttendance(c *gin.Context) {
	m, err := h.att.Get(c.Request.Context(), c.Param("courseId"), c.Param("date"), c.Query("userId"))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, m)
}

func (h *Handler) AttendanceReport(c *gin.Context) {
	r, err := h.att.Report(c.Request.Context(), c.Param("courseId"))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, r)
}
