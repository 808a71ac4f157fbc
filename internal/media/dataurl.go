// Package media moves inline images out of records and into the object
// store, leaving the download URL behind.
package media

import (
	"encoding/base64"
	"errors"
	"mime"
	"strings"
)

// ErrNotDataURL is returned for values that are not base64 data URLs.
var ErrNotDataURL = errors.New("not a base64 data URL")

// DataURL is a decoded "data:<mime>;base64,<payload>" value.
type DataURL struct {
	MIMEType string
	Data     []byte
}

// IsDataURL reports whether s looks like an inline data URL.
func IsDataURL(s string) bool {
	return strings.HasPrefix(s, "data:")
}

// ParseDataURL decodes a base64 data URL.
func ParseDataURL(s string) (DataURL, error) {
	if !IsDataURL(s) {
		return DataURL{}, ErrNotDataURL
	}
	header, payload, ok := strings.Cut(s[len("data:"):], ",")
	if !ok || !strings.HasSuffix(header, ";base64") {
		return DataURL{}, ErrNotDataURL
	}
	mediaType := strings.TrimSuffix(header, ";base64")
	if mediaType == "" {
		mediaType = "application/octet-stream"
	}
	if mt, _, err := mime.ParseMediaType(mediaType); err == nil {
		mediaType = mt
	}
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		if data, err = base64.RawStdEncoding.DecodeString(payload); err != nil {
			return DataURL{}, err
		}
	}
	return DataURL{MIMEType: mediaType, Data: data}, nil
}

// Extension returns a file extension for the MIME type, with the dot.
func (d DataURL) Extension() string {
	switch d.MIMEType {
	case "image/jpeg":
		return ".jpg"
	case "image/png":
		return ".png"
	case "image/gif":
		return ".gif"
	case "image/webp":
		return ".webp"
	}
	if exts, err := mime.ExtensionsByType(d.MIMEType); err == nil && len(exts) > 0 {
		return exts[0]
	}
	return ".bin"
}
