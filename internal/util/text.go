package util

import (
	"path/filepath"
	"strings"
)

// Truncate caps s at max runes, marking the cut with an ellipsis.
// Provider responses and tool stderr go through here before landing in
// error messages and logs.
func Truncate(s string, max int) string {
	if max <= 0 {
		return ""
	}
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max]) + "..."
}

// SanitizeFilename strips any directory parts from a client-supplied
// filename. Mail attachments and uploaded files both pass through here
// before touching disk; fallback covers names that sanitize to nothing.
func SanitizeFilename(name, fallback string) string {
	name = strings.ReplaceAll(name, "\\", "/")
	name = filepath.Base(strings.TrimSpace(name))
	if name == "" || name == "." || name == "/" {
		return fallback
	}
	return name
}
