package config

import (
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestNew_Defaults(t *testing.T) {
	for _, k := range []string{"MEDIAFETCH_HOST", "MEDIAFETCH_PORT", "MEDIAFETCH_DOWNLOAD_DIR", "MEDIAFETCH_DB", "MEDIAFETCH_LOG_LEVEL"} {
		t.Setenv(k, "")
	}
	c := New()

	if c.Host != "0.0.0.0" {
		t.Errorf("host = %q", c.Host)
	}
	if c.Port != 8080 {
		t.Errorf("port = %d", c.Port)
	}
	if c.PollInterval != 500*time.Millisecond {
		t.Errorf("poll interval = %v", c.PollInterval)
	}
	if c.LogLevel != "info" {
		t.Errorf("log level = %q", c.LogLevel)
	}
}

func TestNew_EnvOverrides(t *testing.T) {
	t.Setenv("MEDIAFETCH_HOST", "127.0.0.1")
	t.Setenv("MEDIAFETCH_PORT", "9090")
	t.Setenv("MEDIAFETCH_LOG_LEVEL", "debug")
	t.Setenv("MEDIAFETCH_POLL_INTERVAL", "250ms")
	c := New()

	if c.Host != "127.0.0.1" || c.Port != 9090 || c.LogLevel != "debug" {
		t.Errorf("env not applied: %+v", c)
	}
	if c.PollInterval != 250*time.Millisecond {
		t.Errorf("poll interval = %v", c.PollInterval)
	}
}

func TestNew_BadPollIntervalFallsBack(t *testing.T) {
	for _, v := range []string{"garbage", "-1s", "0"} {
		t.Setenv("MEDIAFETCH_POLL_INTERVAL", v)
		if c := New(); c.PollInterval != 500*time.Millisecond {
			t.Errorf("%q: poll interval = %v", v, c.PollInterval)
		}
	}
}

func TestValidate(t *testing.T) {
	c := &Config{Host: "0.0.0.0", Port: 8080, LogLevel: "INFO"}
	if err := c.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if c.LogLevel != "info" {
		t.Errorf("level not lowered: %q", c.LogLevel)
	}
	if c.Addr != "0.0.0.0:8080" {
		t.Errorf("addr = %q", c.Addr)
	}
	if c.PollInterval != 500*time.Millisecond {
		t.Errorf("poll interval default = %v", c.PollInterval)
	}
}

func TestValidate_BadPort(t *testing.T) {
	for _, port := range []int{0, -1, 70000} {
		c := &Config{Port: port, LogLevel: "info"}
		if err := c.Validate(); err == nil {
			t.Errorf("port %d accepted", port)
		}
	}
}

func TestValidate_BadLogLevel(t *testing.T) {
	c := &Config{Port: 8080, LogLevel: "verbose"}
	if err := c.Validate(); err == nil {
		t.Error("invalid log level accepted")
	}
}

func TestResolveDownloadDir_Default(t *testing.T) {
	c := &Config{}
	if err := c.ResolveDownloadDir(); err != nil {
		t.Fatalf("ResolveDownloadDir: %v", err)
	}
	if !strings.HasSuffix(c.AbsDownloadDir, filepath.Join("static", "downloads")) {
		t.Errorf("abs dir = %q", c.AbsDownloadDir)
	}
	if !filepath.IsAbs(c.AbsDownloadDir) {
		t.Errorf("not absolute: %q", c.AbsDownloadDir)
	}
}

func TestResolveDownloadDir_HomeExpansion(t *testing.T) {
	c := &Config{DownloadDir: "~/videos"}
	if err := c.ResolveDownloadDir(); err != nil {
		t.Fatalf("ResolveDownloadDir: %v", err)
	}
	if strings.HasPrefix(c.AbsDownloadDir, "~") {
		t.Errorf("tilde survived: %q", c.AbsDownloadDir)
	}
	if !strings.HasSuffix(c.AbsDownloadDir, "videos") {
		t.Errorf("abs dir = %q", c.AbsDownloadDir)
	}
}

func TestResolveDBPath_Default(t *testing.T) {
	c := &Config{}
	if err := c.ResolveDBPath(); err != nil {
		t.Fatalf("ResolveDBPath: %v", err)
	}
	if !strings.HasSuffix(c.AbsDBPath, filepath.Join("mediafetch", "mediafetch.db")) {
		t.Errorf("db path = %q", c.AbsDBPath)
	}
}

func TestSummary(t *testing.T) {
	c := &Config{Host: "127.0.0.1", Port: 8080, LogLevel: "info", PollInterval: 500 * time.Millisecond}
	if err := c.Validate(); err != nil {
		t.Fatal(err)
	}
	sum := c.Summary()
	if sum["addr"] != "127.0.0.1:8080" {
		t.Errorf("addr = %v", sum["addr"])
	}
	if sum["poll_interval"] != "500ms" {
		t.Errorf("poll_interval = %v", sum["poll_interval"])
	}
}
