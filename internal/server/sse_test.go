package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"mediafetch/internal/progress"
)

// sseEvents parses a text/event-stream body into its decoded data payloads.
func sseEvents(t *testing.T, body string) []progress.Record {
	t.Helper()
	var events []progress.Record
	for _, block := range strings.Split(body, "\n\n") {
		block = strings.TrimSpace(block)
		if block == "" {
			continue
		}
		if !strings.HasPrefix(block, "data: ") {
			t.Fatalf("malformed event block: %q", block)
		}
		var rec progress.Record
		if err := json.Unmarshal([]byte(strings.TrimPrefix(block, "data: ")), &rec); err != nil {
			t.Fatalf("decode event %q: %v", block, err)
		}
		events = append(events, rec)
	}
	return events
}

func getProgress(e *env, id string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/api/progress/"+id, nil)
	w := httptest.NewRecorder()
	e.handler.ServeHTTP(w, req)
	return w
}

func TestProgress_UnknownTaskEmitsSingleNotFound(t *testing.T) {
	e := newEnv(t)
	w := getProgress(e, "ghost")

	if ct := w.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("content type = %q", ct)
	}
	events := sseEvents(t, w.Body.String())
	if len(events) != 1 {
		t.Fatalf("events = %d, want 1", len(events))
	}
	if events[0].Status != progress.StatusNotFound {
		t.Fatalf("status = %q", events[0].Status)
	}
	if events[0].Message != "Tarea no encontrada" {
		t.Fatalf("message = %q", events[0].Message)
	}
}

func TestProgress_CompletedTaskEmitsOneEventAndEnds(t *testing.T) {
	e := newEnv(t)
	e.prog.Set("t1", progress.Record{
		Status:      progress.StatusCompleted,
		Percentage:  100,
		Message:     "Descarga completada",
		Filename:    "Clip.mp4",
		DownloadURL: "/downloads/Clip.mp4",
	})

	w := getProgress(e, "t1")
	events := sseEvents(t, w.Body.String())
	if len(events) != 1 {
		t.Fatalf("events = %d, want 1", len(events))
	}
	if events[0].DownloadURL != "/downloads/Clip.mp4" {
		t.Fatalf("download_url = %q", events[0].DownloadURL)
	}
}

func TestProgress_DedupesUnchangedRecords(t *testing.T) {
	e := newEnv(t)
	e.prog.Set("t1", progress.Record{
		Status:     progress.StatusDownloading,
		Percentage: 10,
		Message:    "Descargando... 10.0%",
	})

	// The record stays unchanged for several polls, then completes. Only
	// the two distinct states may appear on the stream.
	go func() {
		time.Sleep(40 * time.Millisecond)
		e.prog.Set("t1", progress.Record{
			Status:     progress.StatusCompleted,
			Percentage: 100,
			Message:    "Descarga completada",
		})
	}()

	w := getProgress(e, "t1")
	events := sseEvents(t, w.Body.String())
	if len(events) != 2 {
		t.Fatalf("events = %d, want 2: %+v", len(events), events)
	}
	if events[0].Status != progress.StatusDownloading || events[1].Status != progress.StatusCompleted {
		t.Fatalf("statuses = %q, %q", events[0].Status, events[1].Status)
	}
}

func TestProgress_CleanupMidStreamYieldsNotFound(t *testing.T) {
	e := newEnv(t)
	e.prog.Set("t1", progress.Record{Status: progress.StatusDownloading, Message: "Conectando..."})

	go func() {
		time.Sleep(40 * time.Millisecond)
		e.prog.Delete("t1")
	}()

	w := getProgress(e, "t1")
	events := sseEvents(t, w.Body.String())
	if len(events) != 2 {
		t.Fatalf("events = %d, want 2: %+v", len(events), events)
	}
	if events[1].Status != progress.StatusNotFound {
		t.Fatalf("final status = %q", events[1].Status)
	}
}

func TestProgress_EmptyIDRejected(t *testing.T) {
	e := newEnv(t)
	w := getProgress(e, "")
	if w.Code != http.StatusNotFound {
		t.Fatalf("code = %d", w.Code)
	}
}
