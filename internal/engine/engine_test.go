package engine

import (
	"bufio"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassifyExtractorError(t *testing.T) {
	base := errors.New("yt-dlp: exit status 1")

	cases := []struct {
		name    string
		stderr  string
		wantMsg string
	}{
		{
			name:    "unsupported url",
			stderr:  "ERROR: Unsupported URL: https://example.com",
			wantMsg: "URL no soportada. Verifica que sea de YouTube, Instagram, TikTok o Facebook",
		},
		{
			name:    "private video",
			stderr:  "ERROR: Private video. Sign in if you've been granted access",
			wantMsg: "El contenido es privado o no está disponible",
		},
		{
			name:    "unavailable",
			stderr:  "ERROR: Video unavailable",
			wantMsg: "El contenido es privado o no está disponible",
		},
		{
			name:    "generic extractor error",
			stderr:  "ERROR: something exploded",
			wantMsg: "Error al analizar: ERROR: something exploded",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := classifyExtractorError(base, tc.stderr, "Error al analizar")

			var exErr *ExtractionError
			require.ErrorAs(t, err, &exErr)
			assert.Equal(t, tc.wantMsg, exErr.Message)
			assert.ErrorIs(t, err, base)
		})
	}
}

func TestClassifyExtractorError_Passthrough(t *testing.T) {
	base := errors.New("signal: killed")
	err := classifyExtractorError(base, "some unrelated noise", "Error de descarga")

	var exErr *ExtractionError
	assert.False(t, errors.As(err, &exErr))
	assert.Equal(t, base, err)
}

func TestClassifyExtractorError_Nil(t *testing.T) {
	assert.NoError(t, classifyExtractorError(nil, "ERROR: irrelevant", "x"))
}

func TestNormalizeInfo_Defaults(t *testing.T) {
	info := normalizeInfo(rawInfo{})

	assert.Equal(t, "Sin título", info.Title)
	assert.Equal(t, "Desconocido", info.Uploader)
	assert.Equal(t, "Unknown", info.Platform)
}

func TestNormalizeInfo_PassesValuesThrough(t *testing.T) {
	info := normalizeInfo(rawInfo{
		Title:        "A Clip",
		Duration:     93.7,
		Thumbnail:    "https://i.example/th.jpg",
		Uploader:     "someone",
		ExtractorKey: "Youtube",
	})

	assert.Equal(t, "A Clip", info.Title)
	assert.Equal(t, int64(93), info.Duration)
	assert.Equal(t, "Youtube", info.Platform)
}

func TestParseAnalyzeOutput(t *testing.T) {
	res, err := parseAnalyzeOutput([]byte(`{"title":"A Clip","uploader":"someone","extractor_key":"Youtube","formats":[{"format_id":"22","vcodec":"avc1","height":720}]}`))

	require.NoError(t, err)
	assert.Equal(t, "A Clip", res.Info.Title)
	require.Len(t, res.Formats, 2)
	assert.Equal(t, "video_720p", res.Formats[1].ID)
}

func TestParseAnalyzeOutput_EmptyMetadata(t *testing.T) {
	_, err := parseAnalyzeOutput([]byte(`{}`))

	var exErr *ExtractionError
	require.ErrorAs(t, err, &exErr)
	assert.Equal(t, "No se pudo obtener información del enlace", exErr.Message)
	assert.ErrorIs(t, err, ErrNoMediaInfo)
}

func TestParseAnalyzeOutput_Malformed(t *testing.T) {
	_, err := parseAnalyzeOutput([]byte(`not json`))

	require.Error(t, err)
	var exErr *ExtractionError
	assert.False(t, errors.As(err, &exErr))
}

func TestParseProgress(t *testing.T) {
	input := strings.Join([]string{
		`[download] Destination: clip.mp4`,
		`{"status":"downloading","downloaded_bytes":500,"total_bytes":1000,"speed":2048,"eta":12}`,
		`{"status":"downloading","downloaded_bytes":1000,"total_bytes":1000}`,
		`{"status":"finished","downloaded_bytes":1000,"total_bytes":1000}`,
	}, "\n")

	var events []ProgressEvent
	parseProgress("https://example.com/v", bufio.NewScanner(strings.NewReader(input)), func(ev ProgressEvent) {
		events = append(events, ev)
	})

	require.Len(t, events, 2) // finished lines are not forwarded here
	assert.Equal(t, 50.0, events[0].Percentage)
	assert.Equal(t, 2048.0, events[0].Speed)
	assert.Equal(t, 100.0, events[1].Percentage)
}

func TestParseProgress_EstimateFallbackAndClamp(t *testing.T) {
	input := strings.Join([]string{
		`{"status":"downloading","downloaded_bytes":250,"total_bytes_estimate":1000}`,
		`{"status":"downloading","downloaded_bytes":1500,"total_bytes":1000}`,
		`{"status":"downloading","downloaded_bytes":100}`,
	}, "\n")

	var events []ProgressEvent
	parseProgress("u", bufio.NewScanner(strings.NewReader(input)), func(ev ProgressEvent) {
		events = append(events, ev)
	})

	require.Len(t, events, 2) // line without any total is dropped
	assert.Equal(t, 25.0, events[0].Percentage)
	assert.Equal(t, 100.0, events[1].Percentage)
}

func TestParseProgress_CarriageReturnSeparated(t *testing.T) {
	// yt-dlp rewrites the progress line in place with bare CRs.
	input := `{"status":"downloading","downloaded_bytes":100,"total_bytes":1000}` + "\r" +
		`{"status":"downloading","downloaded_bytes":900,"total_bytes":1000}` + "\r\n"

	var events []ProgressEvent
	parseProgress("u", bufio.NewScanner(strings.NewReader(input)), func(ev ProgressEvent) {
		events = append(events, ev)
	})

	require.Len(t, events, 2)
	assert.Equal(t, 10.0, events[0].Percentage)
	assert.Equal(t, 90.0, events[1].Percentage)
}

func TestScanCRorLF(t *testing.T) {
	sc := bufio.NewScanner(strings.NewReader("one\rtwo\r\nthree\nfour"))
	sc.Split(scanCRorLF)

	var lines []string
	for sc.Scan() {
		lines = append(lines, sc.Text())
	}
	require.NoError(t, sc.Err())
	assert.Equal(t, []string{"one", "two", "three", "four"}, lines)
}

func TestTailString(t *testing.T) {
	assert.Equal(t, "short", tailString("short", 512))
	assert.Equal(t, "cdef", tailString("abcdef", 4))
	assert.Equal(t, "", tailString("anything", 0))
}

func TestRandomUserAgent(t *testing.T) {
	ua := randomUserAgent()
	assert.Contains(t, ua, "Mozilla/5.0")
}
