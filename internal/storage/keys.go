package storage

import (
	"fmt"
	"mime"
	"net/url"
	"path"
	"strings"

	"genstudio/internal/domain"
)

// GeneratedKey derives the durable key of a job's output, e.g.
// generated/videos/<job>/video.mp4.
func GeneratedKey(jobID string, kind domain.JobKind, ext string) string {
	if ext == "" {
		ext = ".bin"
	}
	return fmt.Sprintf("generated/%ss/%s/%s%s", kind, jobID, kind, ext)
}

// UploadPrefix is the key prefix reserved for an owner's uploaded sources.
func UploadPrefix(ownerID string) string {
	return "uploads/" + ownerID + "/"
}

func extensionForMIME(mimeType string) string {
	switch normalizeMIME(mimeType) {
	case "image/png":
		return ".png"
	case "image/jpeg", "image/jpg":
		return ".jpg"
	case "image/webp":
		return ".webp"
	case "image/gif":
		return ".gif"
	case "video/mp4":
		return ".mp4"
	case "video/webm":
		return ".webm"
	case "video/quicktime":
		return ".mov"
	default:
		return ""
	}
}

func extensionFromURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	ext := strings.ToLower(path.Ext(u.Path))
	if ext == ".jpeg" {
		ext = ".jpg"
	}
	switch ext {
	case ".png", ".jpg", ".webp", ".gif", ".mp4", ".webm", ".mov":
		return ext
	default:
		return ""
	}
}

func normalizeMIME(v string) string {
	if mt, _, err := mime.ParseMediaType(v); err == nil {
		return strings.ToLower(mt)
	}
	return strings.ToLower(strings.TrimSpace(v))
}
