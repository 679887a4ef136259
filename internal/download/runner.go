package download

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"

	"mediafetch/internal/engine"
	"mediafetch/internal/logging"
	"mediafetch/internal/metrics"
	"mediafetch/internal/progress"
)

// Engine is the narrow view of the extraction engine this package drives.
type Engine interface {
	Analyze(ctx context.Context, url string) (*engine.AnalyzeResult, error)
	Fetch(ctx context.Context, url, formatID, destDir, baseName string, onProgress engine.ProgressFunc) error
}

// History receives best-effort lifecycle persistence for launched tasks.
// Implementations must tolerate being called from the task goroutine.
type History interface {
	Create(ctx context.Context, taskID, url, format string) error
	UpdateProgress(ctx context.Context, taskID string, progress float64) error
	UpdateStatus(ctx context.Context, taskID, status, errMsg string) error
	SetCompleted(ctx context.Context, taskID, title, filename string) error
}

// publicPathPrefix is where completed files are served from.
const publicPathPrefix = "/downloads/"

// Runner executes one asynchronous download per launched task. Each task
// runs on its own goroutine, owns its progress record as the single writer,
// and never propagates a failure: by the time anything goes wrong the
// originating request has already returned, so errors are rewritten into a
// terminal record instead.
type Runner struct {
	eng     Engine
	store   *progress.Store
	history History // optional, may be nil
	outDir  string
}

// NewRunner creates a Runner writing completed files into outDir.
func NewRunner(eng Engine, store *progress.Store, history History, outDir string) *Runner {
	return &Runner{
		eng:     eng,
		store:   store,
		history: history,
		outDir:  outDir,
	}
}

// Launch registers a new task and spawns its download goroutine, returning
// the task id immediately.
func (r *Runner) Launch(url, formatID string) string {
	id := uuid.NewString()
	r.store.Set(id, progress.Record{
		Status:     progress.StatusDownloading,
		Percentage: 0,
		Message:    "Conectando...",
	})
	metrics.TasksStarted.Inc()
	logging.LogTaskStart(id, url, formatID)
	if r.history != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		if err := r.history.Create(ctx, id, url, formatID); err != nil {
			logging.LogDBOperation("create", id, err)
		}
		cancel()
	}
	go r.run(id, url, formatID)
	return id
}

func (r *Runner) run(id, url, formatID string) {
	// Final catch point for this goroutine; nothing above us can observe a
	// panic, only the terminal record.
	defer func() {
		if v := recover(); v != nil {
			r.fail(id, fmt.Errorf("panic: %v", v))
		}
	}()

	started := time.Now()
	ctx := context.Background()

	res, err := r.eng.Analyze(ctx, url)
	if err != nil {
		r.fail(id, err)
		return
	}

	base := BaseName(res.Info.Title)
	if err := r.eng.Fetch(ctx, url, formatID, r.outDir, base, r.progressFunc(id)); err != nil {
		r.fail(id, err)
		return
	}

	filename := base + Extension(formatID)
	r.store.Set(id, progress.Record{
		Status:      progress.StatusCompleted,
		Percentage:  100,
		Message:     "Descarga completada",
		Filename:    filename,
		DownloadURL: publicPathPrefix + filename,
	})
	metrics.TasksCompleted.Inc()
	metrics.DownloadDuration.Observe(time.Since(started).Seconds())
	logging.LogTaskComplete(id, filename)
	if r.history != nil {
		hctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		if err := r.history.SetCompleted(hctx, id, res.Info.Title, filename); err != nil {
			logging.LogDBOperation("set_completed", id, err)
		}
		cancel()
	}
}

// progressFunc maps engine events onto the task's progress record.
func (r *Runner) progressFunc(id string) engine.ProgressFunc {
	return func(ev engine.ProgressEvent) {
		switch ev.Status {
		case "downloading":
			pct := math.Round(ev.Percentage*10) / 10
			_ = r.store.Patch(id, func(rec *progress.Record) {
				rec.Status = progress.StatusDownloading
				rec.Percentage = pct
				rec.Message = fmt.Sprintf("Descargando... %.1f%%", pct)
			})
			if r.history != nil {
				hctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
				_ = r.history.UpdateProgress(hctx, id, pct)
				cancel()
			}
		case "finished":
			_ = r.store.Patch(id, func(rec *progress.Record) {
				rec.Status = progress.StatusProcessing
				rec.Message = "Procesando archivo..."
			})
			if r.history != nil {
				hctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
				_ = r.history.UpdateStatus(hctx, id, "processing", "")
				cancel()
			}
		}
	}
}

func (r *Runner) fail(id string, err error) {
	msg := "Error: " + err.Error()
	var exErr *engine.ExtractionError
	if errors.As(err, &exErr) {
		msg = exErr.Message
	}
	r.store.Set(id, progress.Record{
		Status:     progress.StatusError,
		Percentage: 0,
		Message:    msg,
	})
	metrics.TasksFailed.Inc()
	logging.LogTaskError(id, err)
	if r.history != nil {
		hctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		if herr := r.history.UpdateStatus(hctx, id, "error", msg); herr != nil {
			logging.LogDBOperation("update_status", id, herr)
		}
		cancel()
	}
}
