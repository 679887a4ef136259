package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"mediafetch/internal/logging"

	_ "modernc.org/sqlite"
)

// Download represents one row in the downloads history table.
type Download struct {
	ID           int64     `json:"id"`
	TaskID       string    `json:"task_id"`
	URL          string    `json:"url"`
	Format       string    `json:"format"`
	Title        string    `json:"title"`
	Filename     string    `json:"filename"`
	Status       string    `json:"status"`
	Progress     float64   `json:"progress"`
	ErrorMessage string    `json:"error_message,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Store wraps an sql.DB and provides typed helpers for download history.
type Store struct {
	db *sql.DB
}

// Open opens or creates a SQLite database at the given path and ensures schema.
func Open(path string) (*Store, error) {
	// Pragmas: busy timeout and WAL for better concurrency.
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_journal_mode=WAL", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	// Conservative limits.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

func initSchema(db *sql.DB) error {
	const ddl = `
CREATE TABLE IF NOT EXISTS downloads (
    id INTEGER PRIMARY KEY,
    task_id TEXT NOT NULL UNIQUE,
    url TEXT NOT NULL,
    format TEXT,
    title TEXT,
    filename TEXT,
    status TEXT,
    progress REAL,
    error_message TEXT,
    created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
    updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_downloads_status ON downloads(status);
CREATE INDEX IF NOT EXISTS idx_downloads_created_at ON downloads(created_at);
`
	if _, err := db.Exec(ddl); err != nil {
		return err
	}

	if err := ensureColumn(db, "downloads", "error_message", "TEXT"); err != nil {
		return err
	}

	return nil
}

func ensureColumn(db *sql.DB, table, column, colType string) error {
	hasCol, err := hasColumn(db, table, column)
	if err != nil {
		return err
	}
	if hasCol {
		return nil
	}

	_, err = db.Exec(fmt.Sprintf(`ALTER TABLE %s ADD COLUMN %s %s`, table, column, colType))
	return err
}

func hasColumn(db *sql.DB, table, column string) (bool, error) {
	rows, err := db.Query(fmt.Sprintf(`PRAGMA table_info(%s)`, table))
	if err != nil {
		return false, err
	}
	defer rows.Close()

	for rows.Next() {
		var (
			cid       int
			name      string
			colType   string
			notNull   int
			dfltValue sql.NullString
			pk        int
		)
		if err := rows.Scan(&cid, &name, &colType, &notNull, &dfltValue, &pk); err != nil {
			return false, err
		}
		if strings.EqualFold(name, column) {
			return true, nil
		}
	}
	return false, rows.Err()
}

// Close closes the underlying DB.
func (s *Store) Close() error { return s.db.Close() }

// Create inserts a new history row for a launched task.
func (s *Store) Create(ctx context.Context, taskID, url, format string) error {
	if taskID == "" {
		return ErrEmptyTaskID
	}
	if url == "" {
		return ErrEmptyURL
	}
	_, err := s.db.ExecContext(ctx, `
INSERT INTO downloads (task_id, url, format, status, progress)
VALUES (?, ?, ?, 'downloading', 0)`, taskID, url, format)
	logging.LogDBOperation("create", taskID, err)
	return err
}

// UpdateProgress sets progress and bumps updated_at.
func (s *Store) UpdateProgress(ctx context.Context, taskID string, progress float64) error {
	_, err := s.db.ExecContext(ctx, `
UPDATE downloads SET progress = ?, updated_at = CURRENT_TIMESTAMP
WHERE task_id = ?`, progress, taskID)
	return err
}

// UpdateStatus sets status and optional error message, bumping updated_at.
func (s *Store) UpdateStatus(ctx context.Context, taskID, status, errMsg string) error {
	st := normalizeStatus(status)
	var err error
	if trimmed := strings.TrimSpace(errMsg); st == "error" && trimmed != "" {
		_, err = s.db.ExecContext(ctx, `
UPDATE downloads SET status = ?, error_message = ?, updated_at = CURRENT_TIMESTAMP
WHERE task_id = ?`, st, trimmed, taskID)
	} else {
		_, err = s.db.ExecContext(ctx, `
UPDATE downloads SET status = ?, error_message = NULL, updated_at = CURRENT_TIMESTAMP
WHERE task_id = ?`, st, taskID)
	}
	logging.LogDBOperation("update_status", taskID, err)
	return err
}

// SetCompleted marks a task finished with its title and final filename.
func (s *Store) SetCompleted(ctx context.Context, taskID, title, filename string) error {
	_, err := s.db.ExecContext(ctx, `
UPDATE downloads SET status = 'completed', progress = 100, title = ?, filename = ?,
    error_message = NULL, updated_at = CURRENT_TIMESTAMP
WHERE task_id = ?`, title, filename, taskID)
	logging.LogDBOperation("set_completed", taskID, err)
	return err
}

// ListFilter narrows and orders history listings.
type ListFilter struct {
	Status string // optional: downloading|processing|completed|error
	Sort   string // created_at|title|status
	Order  string // asc|desc
	Limit  int    // optional
	Offset int    // optional
}

// List returns history rows filtered and sorted.
func (s *Store) List(ctx context.Context, f ListFilter) ([]Download, error) {
	sortCol := "created_at"
	switch strings.ToLower(f.Sort) {
	case "title":
		sortCol = "title"
	case "status":
		sortCol = "status"
	case "created_at", "date":
		sortCol = "created_at"
	}
	order := "DESC"
	if strings.ToLower(f.Order) == "asc" {
		order = "ASC"
	}
	var args []any
	sb := strings.Builder{}
	sb.WriteString("SELECT id, task_id, url, format, title, filename, status, progress, error_message, created_at, updated_at FROM downloads")
	if f.Status != "" {
		sb.WriteString(" WHERE status = ?")
		args = append(args, normalizeStatus(f.Status))
	}
	sb.WriteString(" ORDER BY ")
	sb.WriteString(sortCol)
	sb.WriteByte(' ')
	sb.WriteString(order)
	if f.Limit > 0 {
		sb.WriteString(" LIMIT ?")
		args = append(args, f.Limit)
		if f.Offset > 0 {
			sb.WriteString(" OFFSET ?")
			args = append(args, f.Offset)
		}
	} else if f.Offset > 0 {
		sb.WriteString(" LIMIT -1 OFFSET ?")
		args = append(args, f.Offset)
	}
	rows, err := s.db.QueryContext(ctx, sb.String(), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]Download, 0, 64)
	for rows.Next() {
		d, err := scanDownload(rows.Scan)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// GetByTaskID returns a single history row by task id.
func (s *Store) GetByTaskID(ctx context.Context, taskID string) (Download, bool, error) {
	row := s.db.QueryRowContext(ctx, `
SELECT id, task_id, url, format, title, filename, status, progress, error_message, created_at, updated_at
FROM downloads
WHERE task_id = ?`, taskID)
	d, err := scanDownload(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return Download{}, false, nil
	}
	if err != nil {
		return Download{}, false, err
	}
	return d, true, nil
}

func scanDownload(scan func(...any) error) (Download, error) {
	var d Download
	var format, title, filename, errorMessage sql.NullString
	err := scan(&d.ID, &d.TaskID, &d.URL, &format, &title, &filename, &d.Status, &d.Progress, &errorMessage, &d.CreatedAt, &d.UpdatedAt)
	if err != nil {
		return Download{}, err
	}
	d.Format = format.String
	d.Title = title.String
	d.Filename = filename.String
	d.ErrorMessage = errorMessage.String
	return d, nil
}

func normalizeStatus(status string) string {
	switch strings.ToLower(strings.TrimSpace(status)) {
	case "processing":
		return "processing"
	case "completed":
		return "completed"
	case "error":
		return "error"
	default:
		return "downloading"
	}
}
