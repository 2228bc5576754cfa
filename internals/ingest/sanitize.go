package ingest

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"unicode"
	"unicode/utf8"
)

const (
	maxPathLength  = 2048
	maxTitleLength = 500
)

// SanitizePath strips control characters and caps the path length.
// An empty result becomes "/" so every pageview has a usable path.
func SanitizePath(path string) string {
	path = truncate(stripControl(path), maxPathLength)
	if path == "" {
		return "/"
	}
	return path
}

// SanitizeTitle strips control characters and caps the title length.
func SanitizeTitle(title string) string {
	return truncate(stripControl(strings.TrimSpace(title)), maxTitleLength)
}

// truncate caps s at max bytes without splitting a rune, so the result
// stays valid UTF-8 for the TEXT columns it ends up in.
func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}

// HashPath replaces the path with a stable sha256 digest. Used when a
// site opts out of storing raw paths.
func HashPath(path string) string {
	sum := sha256.Sum256([]byte(path))
	return hex.EncodeToString(sum[:])
}

func stripControl(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, s)
}
