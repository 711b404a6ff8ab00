// Package history keeps a SQLite table of past builds for `pyship history`
// and prunes it to the configured retention.
package history

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/psantana5/pyship/internal/report"
)

// ErrNotFound is returned by Get for an unknown build
var ErrNotFound = errors.New("build not found")

// Entry is one row of the builds table
type Entry struct {
	BuildID         string         `json:"build_id"`
	App             string         `json:"app"`
	Version         string         `json:"version"`
	StartedAt       time.Time      `json:"started_at"`
	DurationSeconds float64        `json:"duration_seconds"`
	Outcome         report.Outcome `json:"outcome"`
	ExitCode        int            `json:"exit_code"`
	FailedStage     string         `json:"failed_stage,omitempty"`
	WheelSHA256     string         `json:"wheel_sha256,omitempty"`
	InstallerSHA256 string         `json:"installer_sha256,omitempty"`
	InstallerSize   int64          `json:"installer_size_bytes,omitempty"`
	ReportPath      string         `json:"report_path,omitempty"`
}

// DB is the build history database
type DB struct {
	db *sql.DB
	mu sync.Mutex
}

// Open opens or creates the database at path
func Open(path string) (*DB, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create history dir: %w", err)
	}

	// WAL plus a busy timeout so `pyship history` can read while watch is building
	dsn := fmt.Sprintf("%s?_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL", path)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open history: %w", err)
	}
	db.SetMaxOpenConns(1)

	h := &DB{db: db}
	if err := h.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return h, nil
}

func (h *DB) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS builds (
		build_id TEXT PRIMARY KEY,
		app TEXT NOT NULL,
		version TEXT NOT NULL,
		started_at DATETIME NOT NULL,
		duration_seconds REAL NOT NULL,
		outcome TEXT NOT NULL,
		exit_code INTEGER NOT NULL,
		failed_stage TEXT,
		wheel_sha256 TEXT,
		installer_sha256 TEXT,
		installer_size INTEGER DEFAULT 0,
		report_path TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_builds_started_at ON builds(started_at);
	`
	_, err := h.db.Exec(schema)
	return err
}

// Close closes the database
func (h *DB) Close() error {
	return h.db.Close()
}

// Insert records a build result
func (h *DB) Insert(r *report.Result, reportPath string) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	e := EntryFromResult(r, reportPath)
	_, err := h.db.Exec(`
		INSERT OR REPLACE INTO builds
		(build_id, app, version, started_at, duration_seconds, outcome, exit_code,
		 failed_stage, wheel_sha256, installer_sha256, installer_size, report_path)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, e.BuildID, e.App, e.Version, e.StartedAt.UTC(), e.DurationSeconds, string(e.Outcome), e.ExitCode,
		e.FailedStage, e.WheelSHA256, e.InstallerSHA256, e.InstallerSize, e.ReportPath)
	if err != nil {
		return fmt.Errorf("failed to insert build %s: %w", r.BuildID, err)
	}
	return nil
}

// EntryFromResult flattens a report into a history row
func EntryFromResult(r *report.Result, reportPath string) Entry {
	e := Entry{
		BuildID:         r.BuildID,
		App:             r.App,
		Version:         r.Version,
		StartedAt:       r.StartTime,
		DurationSeconds: r.Duration,
		Outcome:         r.Outcome,
		ExitCode:        r.ExitCode,
		FailedStage:     r.FailedStage,
		ReportPath:      reportPath,
	}
	if a, ok := r.Artifact("wheel"); ok {
		e.WheelSHA256 = a.SHA256
	}
	if a, ok := r.Artifact("installer"); ok {
		e.InstallerSHA256 = a.SHA256
		e.InstallerSize = a.Size
	}
	return e
}

const selectColumns = `build_id, app, version, started_at, duration_seconds, outcome, exit_code,
	COALESCE(failed_stage, ''), COALESCE(wheel_sha256, ''), COALESCE(installer_sha256, ''),
	COALESCE(installer_size, 0), COALESCE(report_path, '')`

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanEntry(row scanner) (Entry, error) {
	var e Entry
	var outcome string
	err := row.Scan(&e.BuildID, &e.App, &e.Version, &e.StartedAt, &e.DurationSeconds, &outcome, &e.ExitCode,
		&e.FailedStage, &e.WheelSHA256, &e.InstallerSHA256, &e.InstallerSize, &e.ReportPath)
	e.Outcome = report.Outcome(outcome)
	return e, err
}

// List returns the most recent builds first. limit <= 0 returns all.
func (h *DB) List(limit int) ([]Entry, error) {
	query := "SELECT " + selectColumns + " FROM builds ORDER BY started_at DESC, rowid DESC"
	args := []interface{}{}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := h.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list builds: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Get returns one build. A unique prefix of the build ID is accepted.
func (h *DB) Get(id string) (*Entry, error) {
	if id == "" {
		return nil, fmt.Errorf("%w: empty build id", ErrNotFound)
	}
	rows, err := h.db.Query("SELECT "+selectColumns+" FROM builds WHERE substr(build_id, 1, length(?1)) = ?1 LIMIT 2", id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var found []Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		found = append(found, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	switch len(found) {
	case 0:
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	case 1:
		return &found[0], nil
	default:
		return nil, fmt.Errorf("build id %q is ambiguous", id)
	}
}

// Prune keeps the newest keep builds and returns the removed rows so their
// reports can be deleted too. keep <= 0 disables pruning.
func (h *DB) Prune(keep int) ([]Entry, error) {
	if keep <= 0 {
		return nil, nil
	}
	h.mu.Lock()
	defer h.mu.Unlock()

	rows, err := h.db.Query("SELECT "+selectColumns+" FROM builds ORDER BY started_at DESC, rowid DESC LIMIT -1 OFFSET ?", keep)
	if err != nil {
		return nil, err
	}
	var old []Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		old = append(old, e)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	tx, err := h.db.Begin()
	if err != nil {
		return nil, err
	}
	for _, e := range old {
		if _, err := tx.Exec("DELETE FROM builds WHERE build_id = ?", e.BuildID); err != nil {
			tx.Rollback()
			return nil, err
		}
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return old, nil
}

// Vacuum reclaims space after pruning
func (h *DB) Vacuum() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := h.db.Exec("VACUUM")
	return err
}
