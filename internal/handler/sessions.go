package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"classroom/internal/applog"
	"classroom/internal/auth"
)

// CreateSession issues tokens for whoever asks. Development only.
func (h *Handler) CreateSession(c *gin.Context) {
	var req struct {
		UID     string `json:"uid" binding:"required"`
		Email   string `json:"email"`
		Name    string `json:"name"`
		Picture string `json:"picture"`
	}
	if !bind(c, &req) {
		return
	}
	s := h.sessions
	tokens, err := auth.Issue(auth.Identity{UID: req.UID, Email: req.Email, DisplayName: req.Name, PhotoURL: req.Picture},
		s.Issuer, s.SigningKey, s.AccessTTL, s.RefreshTTL)
	if err != nil {
		applog.Printf("session issue failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "token issue failed"})
		return
	}
	c.JSON(http.StatusCreated, tokens)
}

func (h *Handler) RefreshSession(c *gin.Context) {
	var req struct {
		RefreshToken string `json:"refreshToken" binding:"required"`
	}
	if !bind(c, &req) {
		return
	}
	s := h.sessions
	tokens, err := auth.Refresh(req.RefreshToken, s.Issuer, s.SigningKey, s.AccessTTL, s.RefreshTTL)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid refresh token"})
		return
	}
	c.JSON(http.StatusOK, tokens)
}
