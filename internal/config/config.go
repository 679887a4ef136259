package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the mediafetch application
type Config struct {
	// Server configuration
	Host string
	Port int
	Addr string // computed from Host:Port

	// File system
	DownloadDir    string // user-provided persistent download directory
	AbsDownloadDir string // resolved/absolute path
	DBPath         string // history database, user-provided
	AbsDBPath      string // resolved/absolute path

	// Progress notifier
	PollInterval time.Duration // SSE poll cadence

	// Logging
	LogLevel string // debug|info|warn|error

	// Validation & computed
	Version   string    // app version
	StartTime time.Time // when the app started
}

// New creates a Config with default values. A .env file in the working
// directory is loaded first so flag defaults can come from it.
func New() *Config {
	_ = godotenv.Load()
	return &Config{
		Host:         envString("MEDIAFETCH_HOST", "0.0.0.0"),
		Port:         envInt("MEDIAFETCH_PORT", 8080),
		DownloadDir:  os.Getenv("MEDIAFETCH_DOWNLOAD_DIR"),
		DBPath:       os.Getenv("MEDIAFETCH_DB"),
		PollInterval: envDuration("MEDIAFETCH_POLL_INTERVAL", 500*time.Millisecond),
		LogLevel:     envString("MEDIAFETCH_LOG_LEVEL", "info"),
		StartTime:    time.Now(),
		Version:      "1.0.0",
	}
}

// Validate checks that all required configuration is present and valid
func (c *Config) Validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("invalid port: %d (must be 1-65535)", c.Port)
	}

	if c.PollInterval <= 0 {
		c.PollInterval = 500 * time.Millisecond
	}

	validLevels := []string{"debug", "info", "warn", "error"}
	c.LogLevel = strings.ToLower(c.LogLevel)
	valid := false
	for _, level := range validLevels {
		if c.LogLevel == level {
			valid = true
			break
		}
	}
	if !valid {
		return fmt.Errorf("invalid log level: %s (must be debug|info|warn|error)", c.LogLevel)
	}

	c.Addr = c.ComputeAddr()

	return nil
}

// ResolveDownloadDir expands the download directory path and resolves it to an
// absolute path. If empty, defaults to ./static/downloads as the original
// web interface expects.
func (c *Config) ResolveDownloadDir() error {
	if c.DownloadDir == "" {
		c.DownloadDir = filepath.Join("static", "downloads")
	}

	dir, err := expandHome(c.DownloadDir)
	if err != nil {
		return err
	}
	c.DownloadDir = dir

	abs, err := filepath.Abs(c.DownloadDir)
	if err != nil {
		return fmt.Errorf("resolve absolute path for %s: %w", c.DownloadDir, err)
	}
	c.AbsDownloadDir = abs

	return nil
}

// ResolveDBPath expands the history database path and resolves it to an
// absolute path. If empty, defaults to the OS cache directory.
func (c *Config) ResolveDBPath() error {
	if c.DBPath == "" {
		c.DBPath = defaultCacheDBPath()
	}

	p, err := expandHome(c.DBPath)
	if err != nil {
		return err
	}
	c.DBPath = p

	abs, err := filepath.Abs(c.DBPath)
	if err != nil {
		return fmt.Errorf("resolve absolute path for %s: %w", c.DBPath, err)
	}
	c.AbsDBPath = abs

	return nil
}

// ComputeAddr returns the full server address as host:port
func (c *Config) ComputeAddr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// Summary returns a one-line summary of key configuration
func (c *Config) Summary() map[string]any {
	return map[string]any{
		"addr":          c.Addr,
		"download_dir":  c.AbsDownloadDir,
		"db_path":       c.AbsDBPath,
		"poll_interval": c.PollInterval.String(),
		"log_level":     c.LogLevel,
		"version":       c.Version,
	}
}

func expandHome(p string) (string, error) {
	if strings.HasPrefix(p, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("expand home directory: %w", err)
		}
		return filepath.Join(home, p[2:]), nil
	}
	if p == "~" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("expand home directory: %w", err)
		}
		return home, nil
	}
	return p, nil
}

// defaultCacheDBPath returns the default path for the SQLite history DB:
// $HOME/.cache/mediafetch/mediafetch.db, falling back to the working directory.
func defaultCacheDBPath() string {
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, ".cache", "mediafetch", "mediafetch.db")
	}
	return filepath.Join("mediafetch", "mediafetch.db")
}

func envString(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			return d
		}
	}
	return def
}

func envInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}
