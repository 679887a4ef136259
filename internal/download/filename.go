package download

import (
	"strings"
	"unicode"

	"mediafetch/internal/engine"
)

// maxBaseNameRunes caps the sanitized title length before the extension is
// appended.
const maxBaseNameRunes = 100

// BaseName derives an on-disk base name from a media title: only letters,
// digits, spaces, hyphens and underscores survive, everything else is
// dropped, and the result is trimmed and truncated. Titles that sanitize to
// nothing fall back to "media".
func BaseName(title string) string {
	var b strings.Builder
	b.Grow(len(title))
	for _, r := range title {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == ' ' || r == '-' || r == '_' {
			b.WriteRune(r)
		}
	}
	name := strings.TrimSpace(b.String())
	if runes := []rune(name); len(runes) > maxBaseNameRunes {
		name = strings.TrimSpace(string(runes[:maxBaseNameRunes]))
	}
	if name == "" {
		return "media"
	}
	return name
}

// Extension returns the forced container extension for a format selection:
// .mp3 for audio extractions, .mp4 for everything else.
func Extension(formatID string) string {
	if engine.IsAudio(formatID) {
		return ".mp3"
	}
	return ".mp4"
}

// MIMEType returns the response content type for a format selection.
func MIMEType(formatID string) string {
	if engine.IsAudio(formatID) {
		return "audio/mpeg"
	}
	return "video/mp4"
}

// OutputName combines BaseName and Extension into the externally visible
// filename for a completed download.
func OutputName(title, formatID string) string {
	return BaseName(title) + Extension(formatID)
}
