// Package mimetype maps file names to media types for listings and file
// responses.
package mimetype

import (
	"mime"
	"path/filepath"
	"strings"
)

const (
	// Default is used when no type is known for an extension.
	Default = "application/octet-stream"
	// Directory is the media type reported for directories.
	Directory = "inode/directory"
	// Shortcut is the media type reported for special folders.
	Shortcut = "inode/shortcut"
)

// ForName returns the media type for a file name based on its extension.
func ForName(name string) string {
	ext := strings.ToLower(filepath.Ext(name))
	if ext == "" {
		return Default
	}
	if ct := mime.TypeByExtension(ext); ct != "" {
		return ct
	}
	if ct := fallback(ext); ct != "" {
		return ct
	}
	return Default
}

// fallback covers systems with sparse mime tables.
func fallback(ext string) string {
	switch ext {
	// images
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".png":
		return "image/png"
	case ".gif":
		return "image/gif"
	case ".webp":
		return "image/webp"
	case ".svg":
		return "image/svg+xml"
	case ".ico":
		return "image/x-icon"
	// video
	case ".mp4":
		return "video/mp4"
	case ".webm":
		return "video/webm"
	// audio
	case ".mp3":
		return "audio/mpeg"
	case ".wav":
		return "audio/wav"
	// docs/text
	case ".pdf":
		return "application/pdf"
	case ".json":
		return "application/json"
	case ".js":
		return "text/javascript; charset=utf-8"
	case ".css":
		return "text/css; charset=utf-8"
	case ".html", ".htm":
		return "text/html; charset=utf-8"
	case ".xml", ".config":
		return "text/xml; charset=utf-8"
	case ".txt", ".log", ".md", ".yaml", ".yml", ".toml", ".ini", ".cfg", ".conf", ".csx", ".cs", ".fsx", ".ps1", ".psm1", ".py", ".sh", ".cmd", ".bat", ".php", ".go", ".ts":
		return "text/plain; charset=utf-8"
	// archives
	case ".zip":
		return "application/zip"
	case ".tar":
		return "application/x-tar"
	case ".gz":
		return "application/gzip"
	case ".dll", ".exe":
		return "application/octet-stream"
	default:
		return ""
	}
}
