// Package history records downloads in a local SQLite database.
package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite" // Pure Go SQLite driver

	appErrors "vidgrab/internal/errors"
)

const schema = `
CREATE TABLE IF NOT EXISTS downloads (
	id            TEXT PRIMARY KEY,
	url           TEXT NOT NULL,
	quality       TEXT NOT NULL,
	dest_dir      TEXT NOT NULL,
	binary_path   TEXT NOT NULL DEFAULT '',
	binary_origin TEXT NOT NULL DEFAULT '',
	status        TEXT NOT NULL,
	exit_code     INTEGER NOT NULL DEFAULT 0,
	message       TEXT NOT NULL DEFAULT '',
	started_at    TEXT NOT NULL,
	finished_at   TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS downloads_started_at ON downloads(started_at);
`

// Entry is one recorded download.
type Entry struct {
	ID           string
	URL          string
	Quality      string
	DestDir      string
	BinaryPath   string
	BinaryOrigin string
	Status       Status
	ExitCode     int
	Message      string
	StartedAt    time.Time
	FinishedAt   time.Time
}

// Store is a download history backed by SQLite.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// buildDSN creates a read-write WAL DSN for the given path.
func buildDSN(dbPath string) string {
	u := url.URL{
		Scheme: "file",
		Path:   filepath.ToSlash(dbPath),
	}
	q := url.Values{}
	q.Add("_pragma", "busy_timeout(3000)")
	q.Add("_pragma", "journal_mode(WAL)")
	u.RawQuery = q.Encode()
	return u.String()
}

// Open creates the database file and schema if needed.
func Open(ctx context.Context, dbPath string) (*Store, error) {
	trimmed := strings.TrimSpace(dbPath)
	if trimmed == "" {
		return nil, appErrors.New(appErrors.CodeStorage, "history path is empty", nil)
	}
	//nolint:gosec // G301: history lives in the user's config directory
	if err := os.MkdirAll(filepath.Dir(trimmed), 0o755); err != nil {
		return nil, appErrors.New(appErrors.CodeStorage, fmt.Sprintf("create history directory: %v", err), err)
	}

	db, err := sql.Open("sqlite", buildDSN(trimmed))
	if err != nil {
		return nil, appErrors.New(appErrors.CodeStorage, fmt.Sprintf("open history db: %v", err), err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, appErrors.New(appErrors.CodeStorage, fmt.Sprintf("ping history db: %v", err), err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, appErrors.New(appErrors.CodeStorage, fmt.Sprintf("create history schema: %v", err), err)
	}
	return &Store{db: db, now: time.Now}, nil
}

// Close releases the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Begin records a running download.
func (s *Store) Begin(ctx context.Context, e Entry) error {
	if strings.TrimSpace(e.ID) == "" {
		return appErrors.New(appErrors.CodeStorage, "history entry has no id", nil)
	}
	if e.StartedAt.IsZero() {
		e.StartedAt = s.now()
	}
	_, err := s.db.ExecContext(ctx, `
INSERT INTO downloads (id, url, quality, dest_dir, binary_path, binary_origin, status, started_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.URL, e.Quality, e.DestDir, e.BinaryPath, e.BinaryOrigin,
		string(StatusRunning), formatTime(e.StartedAt))
	if err != nil {
		return appErrors.New(appErrors.CodeStorage, fmt.Sprintf("record download %s: %v", e.ID, err), err)
	}
	return nil
}

// Finish moves a running download to a terminal status.
func (s *Store) Finish(ctx context.Context, id string, status Status, exitCode int, message string) error {
	current, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := current.Status.CanTransitionTo(status); err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
UPDATE downloads SET status = ?, exit_code = ?, message = ?, finished_at = ? WHERE id = ?`,
		string(status), exitCode, message, formatTime(s.now()), id)
	if err != nil {
		return appErrors.New(appErrors.CodeStorage, fmt.Sprintf("finish download %s: %v", id, err), err)
	}
	return nil
}

const selectColumns = `id, url, quality, dest_dir, binary_path, binary_origin, status, exit_code, message, started_at, finished_at`

// Get returns one entry.
func (s *Store) Get(ctx context.Context, id string) (Entry, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+selectColumns+` FROM downloads WHERE id = ?`, id)
	e, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Entry{}, appErrors.New(appErrors.CodeNotFound, fmt.Sprintf("download %s not found", id), err)
	}
	if err != nil {
		return Entry{}, appErrors.New(appErrors.CodeStorage, fmt.Sprintf("load download %s: %v", id, err), err)
	}
	return e, nil
}

// Recent returns up to limit entries, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+selectColumns+` FROM downloads ORDER BY started_at DESC, rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, appErrors.New(appErrors.CodeStorage, fmt.Sprintf("list downloads: %v", err), err)
	}
	defer func() { _ = rows.Close() }()

	var entries []Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, appErrors.New(appErrors.CodeStorage, fmt.Sprintf("scan download: %v", err), err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, appErrors.New(appErrors.CodeStorage, fmt.Sprintf("list downloads: %v", err), err)
	}
	return entries, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanEntry(sc scanner) (Entry, error) {
	var (
		e                 Entry
		status            string
		started, finished string
	)
	if err := sc.Scan(&e.ID, &e.URL, &e.Quality, &e.DestDir, &e.BinaryPath, &e.BinaryOrigin,
		&status, &e.ExitCode, &e.Message, &started, &finished); err != nil {
		return Entry{}, err
	}
	parsed, err := ParseStatus(status)
	if err != nil {
		return Entry{}, err
	}
	e.Status = parsed
	if e.StartedAt, err = parseTime(started); err != nil {
		return Entry{}, fmt.Errorf("started_at: %w", err)
	}
	if e.FinishedAt, err = parseTime(finished); err != nil {
		return Entry{}, fmt.Errorf("finished_at: %w", err)
	}
	return e, nil
}

// timeLayout is fixed width so stored timestamps sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	return time.Parse(timeLayout, s)
}
