// Package media maps file extensions to MIME content types, for the
// Content-Type header on generated-report downloads.
package media

import (
	"mime"
	"path/filepath"
	"strings"
)

// ContentType returns the MIME content type for the file based on its
// extension. Returns "application/octet-stream" for unknown types.
func ContentType(path string) string {
	ext := strings.ToLower(filepath.Ext(path))
	ct := mime.TypeByExtension(ext)
	if ct == "" {
		return "application/octet-stream"
	}
	return ct
}
