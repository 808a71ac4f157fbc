package handler

import (
	"io"
	"net/http"
	"path"
	"strings"

	"github.com/gin-gonic/gin"

	"classroom/internal/applog"
	"classroom/internal/auth"
	"classroom/internal/media"
	"classroom/internal/recordstore"
)

const maxUploadBytes = 10 << 20

// Upload stores an image for the caller and returns its URL. It accepts a
// multipart "file" field or a JSON body {"data": "<data URL>"}.
func (h *Handler) Upload(c *gin.Context) {
	if h.uploader == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "image storage not configured"})
		return
	}
	id, err := auth.Require(c.Request.Context())
	if err != nil {
		fail(c, err)
		return
	}
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxUploadBytes)

	var data []byte
	var filename string
	if strings.Contains(c.ContentType(), "multipart/form-data") {
		file, header, ferr := c.Request.FormFile("file")
		if ferr != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "file field required"})
			return
		}
		defer file.Close()
		if data, err = io.ReadAll(file); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "read file failed"})
			return
		}
		filename = path.Base(header.Filename)
	} else {
		var body struct {
			Data string `json:"data" binding:"required"`
		}
		if !bind(c, &body) {
			return
		}
		d, perr := media.ParseDataURL(body.Data)
		if perr != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": perr.Error()})
			return
		}
		data, filename = d.Data, "upload"+d.Extension()
	}

	publicID := "uploads/" + id.UID + "/" + recordstore.NewKey()
	url, err := h.uploader.Upload(c.Request.Context(), data, filename, publicID)
	if err != nil {
		applog.Printf("upload for %s failed: %v", id.UID, err)
		c.JSON(http.StatusBadGateway, gin.H{"error": "image upload failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"url": url, "publicId": publicID})
}
