package engine

import (
	"errors"
	"strings"
)

// ErrNoMediaInfo indicates metadata extraction produced no results
var ErrNoMediaInfo = errors.New("no_media_info")

// ExtractionError is reported when yt-dlp itself rejects the content:
// unsupported site, private or removed media, geo restrictions. The Message
// is user-facing and localized; the underlying cause is preserved for logs.
type ExtractionError struct {
	Message string
	Err     error
}

func (e *ExtractionError) Error() string { return e.Message }

func (e *ExtractionError) Unwrap() error { return e.Err }

// classifyExtractorError maps yt-dlp stderr output to a localized
// ExtractionError. Errors that do not look like extractor failures are
// returned unchanged and surface as unexpected errors upstream.
func classifyExtractorError(err error, stderrTail, fallbackPrefix string) error {
	if err == nil {
		return nil
	}
	switch {
	case strings.Contains(stderrTail, "Unsupported URL"):
		return &ExtractionError{
			Message: "URL no soportada. Verifica que sea de YouTube, Instagram, TikTok o Facebook",
			Err:     err,
		}
	case strings.Contains(stderrTail, "Private video"),
		strings.Contains(stderrTail, "not available"),
		strings.Contains(stderrTail, "Video unavailable"):
		return &ExtractionError{
			Message: "El contenido es privado o no está disponible",
			Err:     err,
		}
	case strings.Contains(stderrTail, "ERROR:"):
		return &ExtractionError{
			Message: fallbackPrefix + ": " + stderrTail,
			Err:     err,
		}
	}
	return err
}
