package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"mediafetch/internal/download"
	"mediafetch/internal/engine"
	"mediafetch/internal/logging"
	"mediafetch/internal/metrics"
	"mediafetch/internal/progress"
	"mediafetch/internal/store"
)

type analyzer interface {
	Analyze(ctx context.Context, url string) (*engine.AnalyzeResult, error)
}

type taskLauncher interface {
	Launch(url, formatID string) string
}

type streamer interface {
	Stream(ctx context.Context, url, formatID, baseName string, w io.Writer) (int64, error)
}

type rateLimiter interface {
	Allow(key string) bool
}

// Options tunes server behavior.
type Options struct {
	// PollInterval is the progress notifier cadence; defaults to 500ms.
	PollInterval time.Duration
}

type server struct {
	eng      analyzer
	runner   taskLauncher
	streamer streamer
	prog     *progress.Store
	hist     *store.Store // nil disables the history endpoint

	downloadDir  string
	pollInterval time.Duration
	validate     *validator.Validate
}

// New returns an http.Handler with routes and middleware wired. hist may be
// nil to disable persisted history.
func New(eng analyzer, runner taskLauncher, str streamer, prog *progress.Store, hist *store.Store, downloadDir string, opts Options) http.Handler {
	s := &server{
		eng:          eng,
		runner:       runner,
		streamer:     str,
		prog:         prog,
		hist:         hist,
		downloadDir:  downloadDir,
		pollInterval: opts.PollInterval,
		validate:     validator.New(),
	}
	if s.pollInterval <= 0 {
		s.pollInterval = 500 * time.Millisecond
	}
	_ = s.validate.RegisterValidation("media_url", validMediaURL)

	rl := newIPRateLimiter(60, time.Minute) // 60 req/min/IP
	mux := http.NewServeMux()

	mux.HandleFunc("/api/analyze", with(rl, s.handleAnalyze))
	mux.HandleFunc("/api/download", with(rl, s.handleDownloadStream))
	mux.HandleFunc("/api/download/async", with(rl, s.handleDownloadAsync))
	mux.HandleFunc("/api/progress/", with(rl, s.handleProgress))
	mux.HandleFunc("/api/cleanup/", with(rl, s.handleCleanup))
	mux.HandleFunc("/downloads/", with(rl, s.handleServeFile))
	if hist != nil {
		mux.HandleFunc("/api/history", with(rl, s.handleHistory))
	}

	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	return recoverer(logger(mux))
}

// downloadRequest is shared by the streaming and async download endpoints.
type downloadRequest struct {
	URL    string `json:"url" validate:"required,media_url"`
	Format string `json:"format"`
}

type analyzeRequest struct {
	URL string `json:"url" validate:"required,media_url"`
}

func (s *server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	var req analyzeRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Por favor ingresa una URL válida")
		return
	}
	req.URL = strings.TrimSpace(req.URL)
	if err := s.validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, validationMessage(err))
		return
	}

	metrics.AnalyzesTotal.Inc()
	res, err := s.eng.Analyze(r.Context(), req.URL)
	if err != nil {
		metrics.AnalyzesFailed.Inc()
		logging.LogAnalyze(req.URL, 0, err)
		writeEngineError(w, err)
		return
	}
	logging.LogAnalyze(req.URL, len(res.Formats), nil)

	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"info":    res.Info,
		"formats": res.Formats,
	})
}

func (s *server) handleDownloadAsync(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	req, ok := s.decodeDownloadRequest(w, r)
	if !ok {
		return
	}

	id := s.runner.Launch(req.URL, req.Format)
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"task_id": id,
	})
}

func (s *server) handleDownloadStream(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	req, ok := s.decodeDownloadRequest(w, r)
	if !ok {
		return
	}

	// Metadata lookup happens before any body byte so failures still surface
	// as structured errors.
	res, err := s.eng.Analyze(r.Context(), req.URL)
	if err != nil {
		writeError(w, http.StatusBadRequest, "No se pudo analizar la URL")
		return
	}

	base := download.BaseName(res.Info.Title)
	filename := base + download.Extension(req.Format)

	w.Header().Set("Content-Type", download.MIMEType(req.Format))
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	w.Header().Set("Cache-Control", "no-cache")

	metrics.StreamsTotal.Inc()
	logging.LogStreamStart(req.URL, req.Format, filename)

	written, err := s.streamer.Stream(r.Context(), req.URL, req.Format, base, w)
	if err != nil {
		if written == 0 {
			// Nothing reached the client yet, so the attachment headers
			// can be replaced by a structured failure.
			w.Header().Del("Content-Disposition")
			writeEngineError(w, err)
			return
		}
		// The transport is committed to a 200 body; the fault can only
		// terminate the stream early.
		logging.LogStreamError(req.URL, err)
	}
}

// decodeDownloadRequest parses and validates a download request from JSON or,
// as a fallback, form data. Writes the error response itself on failure.
func (s *server) decodeDownloadRequest(w http.ResponseWriter, r *http.Request) (downloadRequest, bool) {
	var req downloadRequest
	ct := r.Header.Get("Content-Type")
	if strings.HasPrefix(ct, "application/json") {
		if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "URL no proporcionada")
			return req, false
		}
	} else {
		if err := r.ParseForm(); err != nil {
			writeError(w, http.StatusBadRequest, "URL no proporcionada")
			return req, false
		}
		req.URL = r.Form.Get("url")
		req.Format = r.Form.Get("format")
	}
	req.URL = strings.TrimSpace(req.URL)
	if req.Format == "" {
		req.Format = engine.FormatVideoBest
	}
	if err := s.validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, validationMessage(err))
		return req, false
	}
	return req, true
}

// handleProgress streams progress updates for one task as Server-Sent
// Events. The record is polled on a fixed cadence and an event is emitted
// only when it differs from the last one sent; the stream ends after a
// terminal status. An unknown task id yields exactly one not_found event.
func (s *server) handleProgress(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	id := strings.TrimPrefix(r.URL.Path, "/api/progress/")
	if id == "" || strings.Contains(id, "/") {
		writeError(w, http.StatusNotFound, "Tarea no encontrada")
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "Error del servidor: streaming no soportado")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()

	var last *progress.Record
	for {
		rec := s.prog.Get(id)
		if last == nil || rec != *last {
			data, err := json.Marshal(rec)
			if err != nil {
				return
			}
			fmt.Fprintf(w, "data: %s\n\n", data)
			flusher.Flush()
			cp := rec
			last = &cp
		}
		if rec.Status.Terminal() {
			return
		}
		select {
		case <-r.Context().Done():
			// Client went away; the underlying download is unaffected.
			return
		case <-ticker.C:
		}
	}
}

func (s *server) handleCleanup(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodDelete {
		methodNotAllowed(w)
		return
	}
	id := strings.TrimPrefix(r.URL.Path, "/api/cleanup/")
	if id == "" || strings.Contains(id, "/") {
		writeError(w, http.StatusNotFound, "Tarea no encontrada")
		return
	}
	// Idempotent: deleting an absent record is still a success.
	s.prog.Delete(id)
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": "Tarea limpiada",
	})
}

func (s *server) handleServeFile(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	name := strings.TrimPrefix(r.URL.Path, "/downloads/")
	if name == "" || name != filepath.Base(name) || strings.HasPrefix(name, ".") {
		writeError(w, http.StatusNotFound, "Archivo no encontrado")
		return
	}
	path := filepath.Join(s.downloadDir, name)
	fi, err := os.Stat(path)
	if err != nil || fi.IsDir() {
		writeError(w, http.StatusNotFound, "Archivo no encontrado: "+name)
		return
	}
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	http.ServeFile(w, r, path)
}

func (s *server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	q := r.URL.Query()
	f := store.ListFilter{
		Status: q.Get("status"),
		Sort:   q.Get("sort"),
		Order:  q.Get("order"),
	}
	if lim := q.Get("limit"); lim != "" {
		if n, err := strconv.Atoi(lim); err == nil && n > 0 {
			f.Limit = n
		}
	}
	if off := q.Get("offset"); off != "" {
		if n, err := strconv.Atoi(off); err == nil && n > 0 {
			f.Offset = n
		}
	}
	items, err := s.hist.List(r.Context(), f)
	if err != nil {
		logging.LogDBOperation("list", "", err)
		writeError(w, http.StatusInternalServerError, "Error del servidor: error interno")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success":   true,
		"downloads": items,
	})
}

// Utilities

func methodNotAllowed(w http.ResponseWriter) {
	writeError(w, http.StatusMethodNotAllowed, "Método no permitido")
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]any{"success": false, "error": msg})
}

// writeEngineError maps engine failures onto the API error taxonomy:
// extractor rejections are client errors with a localized message, anything
// else is a server error.
func writeEngineError(w http.ResponseWriter, err error) {
	var exErr *engine.ExtractionError
	if errors.As(err, &exErr) {
		writeError(w, http.StatusBadRequest, exErr.Message)
		return
	}
	writeError(w, http.StatusInternalServerError, "Error del servidor: "+err.Error())
}

// validationMessage keeps the original interface's wording: a missing URL and
// a malformed one read differently.
func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		for _, fe := range verrs {
			if fe.Tag() == "media_url" {
				return "La URL debe comenzar con http:// o https://"
			}
		}
	}
	return "Por favor ingresa una URL válida"
}

// validMediaURL accepts absolute http(s) URLs with a host.
func validMediaURL(fl validator.FieldLevel) bool {
	raw := fl.Field().String()
	if len(raw) == 0 || len(raw) > 2048 { // sanity cap
		return false
	}
	parsed, err := url.Parse(raw)
	if err != nil || parsed == nil {
		return false
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return false
	}
	return parsed.Host != ""
}
