package mcp

import (
	"net/url"
	"path/filepath"
	"strings"
)

// mediaMimeTypes maps media file extensions to MIME types.
var mediaMimeTypes = map[string]string{
	// Video containers
	".mp4":  "video/mp4",
	".m4v":  "video/mp4",
	".mov":  "video/quicktime",
	".mkv":  "video/x-matroska",
	".webm": "video/webm",
	".avi":  "video/x-msvideo",
	".mpg":  "video/mpeg",
	".mpeg": "video/mpeg",
	".ts":   "video/mp2t",

	// Audio-only sources are ingestible too
	".mp3":  "audio/mpeg",
	".wav":  "audio/wav",
	".flac": "audio/flac",
	".m4a":  "audio/mp4",
	".ogg":  "audio/ogg",
}

// MimeTypeForMedia returns the MIME type for a media URI or path.
// Returns "application/octet-stream" for unknown types.
func MimeTypeForMedia(uri string) string {
	path := uri
	if u, err := url.Parse(uri); err == nil && u.Path != "" {
		path = u.Path
	}

	ext := strings.ToLower(filepath.Ext(path))
	if mime, ok := mediaMimeTypes[ext]; ok {
		return mime
	}
	return "application/octet-stream"
}
