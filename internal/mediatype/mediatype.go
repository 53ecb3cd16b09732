// Package mediatype maps video file extensions to MIME types and owns the set of
// extensions accepted for upload.
package mediatype

import (
	"path"
	"slices"
	"strings"

	"github.com/samber/lo"
)

// Default is returned for unknown or missing extensions. Players still attempt
// playback from the bytes, so an unrecognized extension never fails a request.
const Default = "video/mp4"

// videoTypes is read-only after init.
var videoTypes = map[string]string{
	"mp4":  "video/mp4",
	"avi":  "video/x-msvideo",
	"mkv":  "video/x-matroska",
	"mov":  "video/quicktime",
	"webm": "video/webm",
	"flv":  "video/x-flv",
	"wmv":  "video/x-ms-wmv",
	"m4v":  "video/x-m4v",
}

// Ext returns the lowercased extension of name without the leading dot, or "" if none.
func Ext(name string) string {
	return strings.TrimPrefix(strings.ToLower(path.Ext(name)), ".")
}

// ForFilename returns the MIME type for a filename's extension.
func ForFilename(name string) string {
	if ct, ok := videoTypes[Ext(name)]; ok {
		return ct
	}
	return Default
}

// Allowed reports whether name carries one of the accepted video extensions.
func Allowed(name string) bool {
	_, ok := videoTypes[Ext(name)]
	return ok
}

// Extensions returns the accepted extensions in sorted order.
func Extensions() []string {
	exts := lo.Keys(videoTypes)
	slices.Sort(exts)
	return exts
}
