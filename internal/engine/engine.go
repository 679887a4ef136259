package engine

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/rand"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"

	"mediafetch/internal/logging"
)

// Engine runs yt-dlp subprocesses to extract metadata and fetch media.
// It encapsulates all subprocess management and output parsing; callers see
// normalized metadata, progress events and classified errors.
type Engine struct{}

// New returns an Engine. yt-dlp availability is checked per invocation so a
// binary installed after startup is picked up without a restart.
func New() *Engine {
	return &Engine{}
}

// Info is the normalized metadata for one media URL.
type Info struct {
	Title     string `json:"title"`
	Duration  int64  `json:"duration"`
	Thumbnail string `json:"thumbnail"`
	Uploader  string `json:"uploader"`
	Platform  string `json:"platform"`
}

// AnalyzeResult bundles metadata with the derived format options.
type AnalyzeResult struct {
	Info    Info
	Formats []Format
}

// ProgressEvent is one progress notification from an in-flight fetch.
// Status is "downloading" while bytes move and "finished" exactly once when
// the transfer is done and post-processing begins.
type ProgressEvent struct {
	Status     string
	Percentage float64
	Downloaded float64
	Total      float64
	Speed      float64
	ETA        float64
}

// ProgressFunc receives progress events. It is called from the goroutines
// scanning subprocess output and must be safe for concurrent use.
type ProgressFunc func(ProgressEvent)

// Desktop browser User-Agents rotated per invocation to reduce blocking.
var userAgents = []string{
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
	"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:121.0) Gecko/20100101 Firefox/121.0",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.1 Safari/605.1.15",
}

func randomUserAgent() string {
	return userAgents[rand.Intn(len(userAgents))]
}

func baseArgs() []string {
	return []string{
		"--no-color", "--no-playlist", "--no-warnings",
		"--socket-timeout", "30",
		"--retries", "3",
		"--fragment-retries", "3",
		"--user-agent", randomUserAgent(),
	}
}

// CheckYTDLP ensures yt-dlp is in PATH and recent enough for the progress
// template output this package parses.
func CheckYTDLP() error {
	p, err := exec.LookPath("yt-dlp")
	if err != nil {
		return err
	}
	out, err := exec.Command(p, "--help").CombinedOutput()
	if err != nil {
		return fmt.Errorf("yt-dlp not runnable: %w", err)
	}
	if !strings.Contains(string(out), "--progress-template") {
		return fmt.Errorf("yt_dlp_outdated: missing --progress-template support")
	}
	return nil
}

// rawInfo mirrors the subset of yt-dlp -J output this service needs.
type rawInfo struct {
	Title        string      `json:"title"`
	Duration     float64     `json:"duration"`
	Thumbnail    string      `json:"thumbnail"`
	Uploader     string      `json:"uploader"`
	ExtractorKey string      `json:"extractor_key"`
	Formats      []rawFormat `json:"formats"`
}

type rawFormat struct {
	FormatID string `json:"format_id"`
	Ext      string `json:"ext"`
	VCodec   string `json:"vcodec"`
	ACodec   string `json:"acodec"`
	Height   int    `json:"height"`
}

// Analyze extracts metadata and available formats without downloading.
func (e *Engine) Analyze(ctx context.Context, url string) (*AnalyzeResult, error) {
	if err := CheckYTDLP(); err != nil {
		return nil, fmt.Errorf("yt_dlp_not_found: %w", err)
	}

	args := append(baseArgs(), "-J", "--skip-download", url)
	cmd := exec.CommandContext(ctx, "yt-dlp", args...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		tail := tailString(stderr.String(), 512)
		return nil, classifyExtractorError(fmt.Errorf("yt-dlp: %w", err), tail, "Error al analizar")
	}

	return parseAnalyzeOutput(stdout.Bytes())
}

// parseAnalyzeOutput decodes yt-dlp -J output into a normalized result.
// A payload with neither a title nor formats means the extractor matched
// the URL but produced nothing usable; that is reported as a client-facing
// extraction failure.
func parseAnalyzeOutput(data []byte) (*AnalyzeResult, error) {
	var raw rawInfo
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse media info: %w", err)
	}
	if raw.Title == "" && len(raw.Formats) == 0 {
		return nil, &ExtractionError{
			Message: "No se pudo obtener información del enlace",
			Err:     ErrNoMediaInfo,
		}
	}

	return &AnalyzeResult{
		Info:    normalizeInfo(raw),
		Formats: buildFormats(raw.Formats),
	}, nil
}

func normalizeInfo(raw rawInfo) Info {
	info := Info{
		Title:     raw.Title,
		Duration:  int64(raw.Duration),
		Thumbnail: raw.Thumbnail,
		Uploader:  raw.Uploader,
		Platform:  raw.ExtractorKey,
	}
	if info.Title == "" {
		info.Title = "Sin título"
	}
	if info.Uploader == "" {
		info.Uploader = "Desconocido"
	}
	if info.Platform == "" {
		info.Platform = "Unknown"
	}
	return info
}

// Fetch downloads one media item into destDir under baseName with the
// extension chosen by yt-dlp post-processing. It blocks until the transfer
// completes or fails. onProgress receives downloading events as bytes move
// and a single finished event once the transfer is done.
func (e *Engine) Fetch(ctx context.Context, url, formatID, destDir, baseName string, onProgress ProgressFunc) error {
	if err := CheckYTDLP(); err != nil {
		return fmt.Errorf("yt_dlp_not_found: %w", err)
	}

	outTpl := filepath.Join(destDir, baseName+".%(ext)s")
	args := append(baseArgs(),
		"--newline",
		"--progress-template", "download:%(progress)j",
		"-o", outTpl,
	)
	args = append(args, selectorArgs(formatID)...)
	args = append(args, url)

	cmd := exec.CommandContext(ctx, "yt-dlp", args...)

	stderr, err := cmd.StderrPipe()
	if err != nil {
		return fmt.Errorf("stderr: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("stdout: %w", err)
	}

	var stderrBuf, stdoutBuf bytes.Buffer

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start: %w", err)
	}

	// Progress may land on either stream depending on the yt-dlp build.
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		parseProgress(url, bufio.NewScanner(io.TeeReader(stderr, &stderrBuf)), onProgress)
	}()
	go func() {
		defer wg.Done()
		parseProgress(url, bufio.NewScanner(io.TeeReader(stdout, &stdoutBuf)), onProgress)
	}()
	wg.Wait()

	if err := cmd.Wait(); err != nil {
		tail := tailString(stderrBuf.String(), 512)
		return classifyExtractorError(fmt.Errorf("yt-dlp: %w", err), tail, "Error de descarga")
	}

	if onProgress != nil {
		onProgress(ProgressEvent{Status: "finished", Percentage: 100})
	}
	return nil
}

// progressData is the JSON emitted by --progress-template download:%(progress)j.
type progressData struct {
	Status             string  `json:"status"`
	DownloadedBytes    float64 `json:"downloaded_bytes"`
	TotalBytes         float64 `json:"total_bytes"`
	TotalBytesEstimate float64 `json:"total_bytes_estimate"`
	Speed              float64 `json:"speed"`
	ETA                float64 `json:"eta"`
}

// parseProgress parses yt-dlp progress output and forwards downloading events.
func parseProgress(url string, sc *bufio.Scanner, onProgress ProgressFunc) {
	sc.Buffer(make([]byte, 4096), 256*1024)
	// Split on either \n, \r\n, or bare \r since yt-dlp often rewrites
	// progress on the same line using carriage returns.
	sc.Split(scanCRorLF)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}

		var progress progressData
		if err := json.Unmarshal([]byte(line), &progress); err != nil {
			// Not JSON, skip this line (could be other yt-dlp output)
			continue
		}
		if progress.Status != "downloading" {
			continue
		}

		total := progress.TotalBytes
		if total <= 0 && progress.TotalBytesEstimate > 0 {
			total = progress.TotalBytesEstimate
		}
		if total <= 0 || progress.DownloadedBytes < 0 {
			continue
		}

		p := progress.DownloadedBytes / total * 100.0
		if p > 100 {
			p = 100
		} else if p < 0 {
			p = 0
		}
		if onProgress != nil {
			onProgress(ProgressEvent{
				Status:     "downloading",
				Percentage: p,
				Downloaded: progress.DownloadedBytes,
				Total:      total,
				Speed:      progress.Speed,
				ETA:        progress.ETA,
			})
		}
	}
	if err := sc.Err(); err != nil {
		logging.LogProgressScanError(url, err)
	}
}

// scanCRorLF is like bufio.ScanLines but treats a bare '\r' as a line
// terminator as well. It also handles CRLF and strips a trailing CR.
func scanCRorLF(data []byte, atEOF bool) (advance int, token []byte, err error) {
	if atEOF && len(data) == 0 {
		return 0, nil, nil
	}
	for i := 0; i < len(data); i++ {
		if data[i] == '\n' {
			line := data[:i]
			if i > 0 && data[i-1] == '\r' {
				line = data[:i-1]
			}
			return i + 1, line, nil
		}
		if data[i] == '\r' {
			// If CRLF, consume both; else just CR
			if i+1 < len(data) && data[i+1] == '\n' {
				return i + 2, data[:i], nil
			}
			return i + 1, data[:i], nil
		}
	}
	if atEOF {
		if len(data) > 0 && data[len(data)-1] == '\r' {
			return len(data), data[:len(data)-1], nil
		}
		return len(data), data, nil
	}
	return 0, nil, nil
}

// tailString returns the last at most n bytes from s (by rune boundary best-effort).
func tailString(s string, n int) string {
	if n <= 0 {
		return ""
	}
	if len(s) <= n {
		return strings.TrimSpace(s)
	}
	return strings.TrimSpace(s[len(s)-n:])
}
