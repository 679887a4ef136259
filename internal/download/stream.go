package download

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"

	"mediafetch/internal/metrics"
)

// streamChunkSize is the fixed read size for the streaming delivery path.
const streamChunkSize = 8192

// Streamer performs the synchronous fetch-and-forward delivery: the media is
// fetched into an isolated temporary directory inside the caller's request
// lifecycle, forwarded in fixed-size chunks, and the directory is removed on
// every exit path. Nothing persists on server storage afterwards.
type Streamer struct {
	eng Engine
}

// NewStreamer creates a Streamer around the given engine.
func NewStreamer(eng Engine) *Streamer {
	return &Streamer{eng: eng}
}

// Stream fetches url into a fresh temp dir and copies the resulting file to
// w. baseName is the predicted on-disk base name (from BaseName on the
// analyzed title); if post-processing produced a different name, the first
// file present in the temp dir is delivered instead. Returns the number of
// body bytes written; once that is non-zero a caller can no longer surface a
// structured error to the client.
func (s *Streamer) Stream(ctx context.Context, url, formatID, baseName string, w io.Writer) (int64, error) {
	tempDir, err := os.MkdirTemp("", "mediafetch-*")
	if err != nil {
		return 0, fmt.Errorf("create temp dir: %w", err)
	}
	defer os.RemoveAll(tempDir)

	if err := s.eng.Fetch(ctx, url, formatID, tempDir, baseName, nil); err != nil {
		return 0, err
	}

	path := filepath.Join(tempDir, baseName+Extension(formatID))
	if _, err := os.Stat(path); err != nil {
		// Remuxing can change the extension; fall back to whatever the
		// engine left behind.
		entries, derr := os.ReadDir(tempDir)
		if derr != nil || len(entries) == 0 {
			return 0, fmt.Errorf("no fetched file in %s", tempDir)
		}
		path = filepath.Join(tempDir, entries[0].Name())
	}

	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("open fetched file: %w", err)
	}
	defer f.Close()

	written, err := copyChunks(ctx, w, f)
	metrics.StreamBytes.Add(float64(written))
	return written, err
}

// copyChunks copies src to dst in streamChunkSize reads, flushing after each
// write when dst supports it so bytes reach the client promptly.
func copyChunks(ctx context.Context, dst io.Writer, src io.Reader) (int64, error) {
	flusher, _ := dst.(http.Flusher)
	buf := make([]byte, streamChunkSize)
	var written int64
	for {
		if err := ctx.Err(); err != nil {
			return written, err
		}
		n, rerr := src.Read(buf)
		if n > 0 {
			wn, werr := dst.Write(buf[:n])
			written += int64(wn)
			if werr != nil {
				return written, werr
			}
			if flusher != nil {
				flusher.Flush()
			}
		}
		if rerr == io.EOF {
			return written, nil
		}
		if rerr != nil {
			return written, rerr
		}
	}
}
