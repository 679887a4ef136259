package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"mediafetch/internal/config"
	"mediafetch/internal/download"
	"mediafetch/internal/engine"
	"mediafetch/internal/logging"
	"mediafetch/internal/progress"
	"mediafetch/internal/server"
	"mediafetch/internal/store"
)

func main() {
	cfg := config.New()

	flag.StringVar(&cfg.Host, "host", cfg.Host, "Host address to bind")
	flag.IntVar(&cfg.Port, "port", cfg.Port, "Server port")
	flag.StringVar(&cfg.DownloadDir, "download-dir", cfg.DownloadDir, "Directory for downloaded files")
	flag.StringVar(&cfg.DBPath, "db", cfg.DBPath, "Path to SQLite history database")
	flag.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "Log level (debug, info, warn, error)")
	flag.DurationVar(&cfg.PollInterval, "poll-interval", cfg.PollInterval, "Progress event stream poll cadence")
	flag.Parse()

	if err := cfg.Validate(); err != nil {
		log.Fatalf("config: %v", err)
	}
	if err := cfg.ResolveDownloadDir(); err != nil {
		log.Fatalf("resolve download dir: %v", err)
	}
	if err := cfg.ResolveDBPath(); err != nil {
		log.Fatalf("resolve db path: %v", err)
	}
	if err := os.MkdirAll(cfg.AbsDownloadDir, 0o755); err != nil {
		log.Fatalf("create download dir: %v", err)
	}
	if err := os.MkdirAll(filepath.Dir(cfg.AbsDBPath), 0o755); err != nil {
		log.Fatalf("create db dir: %v", err)
	}

	logging.Init(logging.ParseLevel(cfg.LogLevel))

	if err := engine.CheckYTDLP(); err != nil {
		log.Fatalf("yt-dlp not usable: %v", err)
	}

	st, err := store.Open(cfg.AbsDBPath)
	if err != nil {
		log.Fatalf("open db: %v", err)
	}
	// Closed explicitly during shutdown

	eng := engine.New()
	prog := progress.NewStore(0)
	runner := download.NewRunner(eng, prog, st, cfg.AbsDownloadDir)
	str := download.NewStreamer(eng)

	handler := server.New(eng, runner, str, prog, st, cfg.AbsDownloadDir, server.Options{
		PollInterval: cfg.PollInterval,
	})

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           handler,
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      0, // event streams and file delivery run long
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		logging.LogServerStart(cfg.Addr, cfg.Summary())
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("server error: %v", err)
		}
	}()

	// Graceful shutdown
	shutdownCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	<-shutdownCtx.Done()
	logging.LogServerShutdown("shutdown signal received; draining", nil)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logging.LogServerShutdown("http shutdown", err)
	}
	if err := st.Close(); err != nil {
		logging.LogServerShutdown("close db", err)
	}
	logging.LogServerShutdown("shutdown complete", nil)
}
