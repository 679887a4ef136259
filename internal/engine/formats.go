package engine

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Format is one user-selectable quality option.
type Format struct {
	ID     string `json:"id"`
	Label  string `json:"label"`
	Type   string `json:"type"` // "audio" or "video"
	Ext    string `json:"ext"`
	Height int    `json:"height,omitempty"`
}

// FormatAudioMP3 is the format selector ID for best-quality MP3 extraction.
const FormatAudioMP3 = "audio_mp3"

// FormatVideoBest selects the best available video quality.
const FormatVideoBest = "video_best"

const bestVideoSelector = "bestvideo[ext=mp4]+bestaudio[ext=m4a]/best[ext=mp4]/best"

// minVideoHeight filters out thumbnail-grade streams.
const minVideoHeight = 144

// buildFormats derives the selectable format list from raw yt-dlp formats.
// The MP3 option always comes first; video heights are deduplicated and
// sorted best-first. When no concrete video stream qualifies, a generic
// best-quality video option is appended.
func buildFormats(raw []rawFormat) []Format {
	formats := []Format{{
		ID:    FormatAudioMP3,
		Label: "Audio MP3 (mejor calidad)",
		Type:  "audio",
		Ext:   "mp3",
	}}

	heights := make([]int, 0, len(raw))
	seen := make(map[int]bool, len(raw))
	for _, f := range raw {
		if f.VCodec == "" || f.VCodec == "none" {
			continue
		}
		if f.Height < minVideoHeight || seen[f.Height] {
			continue
		}
		seen[f.Height] = true
		heights = append(heights, f.Height)
	}
	sort.Sort(sort.Reverse(sort.IntSlice(heights)))

	for _, h := range heights {
		formats = append(formats, Format{
			ID:     fmt.Sprintf("video_%dp", h),
			Label:  videoLabel(h),
			Type:   "video",
			Ext:    "mp4",
			Height: h,
		})
	}

	if len(formats) == 1 {
		formats = append(formats, Format{
			ID:    FormatVideoBest,
			Label: "Video (mejor calidad disponible)",
			Type:  "video",
			Ext:   "mp4",
		})
	}

	return formats
}

func videoLabel(height int) string {
	switch {
	case height >= 2160:
		return fmt.Sprintf("Video %dp (4K) MP4", height)
	case height >= 1440:
		return fmt.Sprintf("Video %dp (2K) MP4", height)
	case height >= 1080:
		return fmt.Sprintf("Video %dp (Full HD) MP4", height)
	case height >= 720:
		return fmt.Sprintf("Video %dp (HD) MP4", height)
	default:
		return fmt.Sprintf("Video %dp MP4", height)
	}
}

// IsAudio reports whether a format selector requests audio extraction.
func IsAudio(formatID string) bool {
	return strings.HasPrefix(formatID, "audio_")
}

// selectorArgs translates a format selector ID into yt-dlp arguments.
func selectorArgs(formatID string) []string {
	if IsAudio(formatID) {
		return []string{
			"-f", "bestaudio/best",
			"--extract-audio",
			"--audio-format", "mp3",
			"--audio-quality", "192K",
		}
	}

	selector := bestVideoSelector
	if formatID != FormatVideoBest {
		if h, err := strconv.Atoi(strings.TrimSuffix(strings.TrimPrefix(formatID, "video_"), "p")); err == nil {
			selector = fmt.Sprintf(
				"bestvideo[height<=%d][ext=mp4]+bestaudio[ext=m4a]/bestvideo[height<=%d]+bestaudio/best[height<=%d]/best",
				h, h, h)
		}
	}
	return []string{"-f", selector, "--merge-output-format", "mp4"}
}
