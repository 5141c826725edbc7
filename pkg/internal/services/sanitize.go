package services

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/samber/lo"
)

const maxSanitizedNameLength = 200

var (
	unsafeNameChars  = regexp.MustCompile(`[^A-Za-z0-9._-]`)
	repeatedNameSeps = regexp.MustCompile(`_{2,}`)
)

// SanitizeFileName turns an uploaded name into one that is safe to use as a
// single path element. Applying it to its own output returns the same name.
func SanitizeFileName(name string) string {
	name = lastPathElement(name)
	name = unsafeNameChars.ReplaceAllString(name, "_")
	name = repeatedNameSeps.ReplaceAllString(name, "_")
	name = strings.TrimLeft(name, "._-")

	if len(name) > maxSanitizedNameLength {
		name = name[:maxSanitizedNameLength]
		name = strings.TrimRight(name, "_")
	}
	if len(name) == 0 {
		return "file"
	}
	return name
}

func lastPathElement(name string) string {
	name = strings.ReplaceAll(name, "\\", "/")
	if idx := strings.LastIndex(name, "/"); idx != -1 {
		name = name[idx+1:]
	}
	return name
}

// splitFileName returns the base name and the lower-cased extension (without
// dot) of name.
func splitFileName(name string) (string, string) {
	ext := filepath.Ext(name)
	base := strings.TrimSuffix(name, ext)
	return base, strings.ToLower(strings.TrimPrefix(ext, "."))
}

// NewStoredName builds the collision-free on-disk name for an upload: a
// millisecond timestamp and random suffix, then the base name and the
// original extension.
func NewStoredName(originalName string, sanitize bool, now time.Time) string {
	base, ext := splitFileName(lastPathElement(originalName))
	if sanitize {
		base = SanitizeFileName(base)
		if len(ext) > 0 {
			ext = SanitizeFileName(ext)
		}
	}
	if len(base) == 0 || base == "." || base == ".." {
		base = "file"
	}

	prefix := fmt.Sprintf("%d-%s", now.UnixMilli(), lo.RandomString(8, lo.AlphanumericCharset))
	if len(ext) == 0 {
		return fmt.Sprintf("%s-%s", prefix, base)
	}
	return fmt.Sprintf("%s-%s.%s", prefix, base, ext)
}
