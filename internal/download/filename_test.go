package download

import (
	"strings"
	"testing"
)

func TestBaseName(t *testing.T) {
	cases := []struct {
		title string
		want  string
	}{
		{"Simple Title", "Simple Title"},
		{"A/B: Test*File??", "AB TestFile"},
		{"  padded  ", "padded"},
		{"under_score-dash", "under_score-dash"},
		{"¿Qué pasó ayer?", "Qué pasó ayer"},
		{"日本語タイトル", "日本語タイトル"},
		{"***", "media"},
		{"", "media"},
	}
	for _, c := range cases {
		if got := BaseName(c.title); got != c.want {
			t.Errorf("BaseName(%q) = %q, want %q", c.title, got, c.want)
		}
	}
}

func TestBaseName_Truncation(t *testing.T) {
	long := strings.Repeat("a", 150)
	got := BaseName(long)
	if n := len([]rune(got)); n != 100 {
		t.Fatalf("len = %d, want 100", n)
	}

	// Multi-byte runes count as one character each.
	unicodeLong := strings.Repeat("ñ", 150)
	got = BaseName(unicodeLong)
	if n := len([]rune(got)); n != 100 {
		t.Fatalf("unicode len = %d, want 100", n)
	}
}

func TestBaseName_TruncationTrimsTrailingSpace(t *testing.T) {
	title := strings.Repeat("a", 99) + " b"
	got := BaseName(title)
	if strings.HasSuffix(got, " ") {
		t.Fatalf("trailing space survived truncation: %q", got)
	}
}

func TestExtension(t *testing.T) {
	if got := Extension("audio_mp3"); got != ".mp3" {
		t.Errorf("audio ext = %q", got)
	}
	if got := Extension("video_720p"); got != ".mp4" {
		t.Errorf("video ext = %q", got)
	}
	if got := Extension("video_best"); got != ".mp4" {
		t.Errorf("video_best ext = %q", got)
	}
}

func TestMIMEType(t *testing.T) {
	if got := MIMEType("audio_mp3"); got != "audio/mpeg" {
		t.Errorf("audio mime = %q", got)
	}
	if got := MIMEType("video_1080p"); got != "video/mp4" {
		t.Errorf("video mime = %q", got)
	}
}

func TestOutputName(t *testing.T) {
	if got := OutputName("My Video!", "audio_mp3"); got != "My Video.mp3" {
		t.Errorf("OutputName = %q", got)
	}
	if got := OutputName("", "video_best"); got != "media.mp4" {
		t.Errorf("OutputName fallback = %q", got)
	}
}
