package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/nao1215/onionharvest/internal/model"
)

// DefaultListLimit is used by ListRuns and SiteHistory when limit <= 0.
const DefaultListLimit = 20

// HistoryDB stores finished crawl runs in a SQLite database.
type HistoryDB struct {
	db     *sql.DB
	dbPath string
}

// Options configures HistoryDB behavior.
type Options struct {
	// CreateIfNotExists creates the database file and its directory if they
	// don't exist.
	CreateIfNotExists bool

	// EnableWAL enables Write-Ahead Logging.
	EnableWAL bool
}

// DefaultOptions returns the default database options.
func DefaultOptions() Options {
	return Options{
		CreateIfNotExists: true,
		EnableWAL:         true,
	}
}

// RunSummary is one row of the run list.
type RunSummary struct {
	ID           string
	StartedAt    time.Time
	FinishedAt   time.Time
	Sites        int
	SitesAborted int
	Pages        int
	Files        int
	Keys         int
	Failures     int
}

// Duration returns the wall time of the run.
func (s RunSummary) Duration() time.Duration {
	return s.FinishedAt.Sub(s.StartedAt)
}

// SiteRun is the outcome of one site in one run.
type SiteRun struct {
	RunID      string
	Seed       string
	Domain     string
	State      model.SiteState
	Pages      int
	Files      int
	DedupHits  int
	Keys       int
	Failures   int
	StartedAt  time.Time
	FinishedAt time.Time
}

// Open opens or creates the history database at dbPath.
// If CreateIfNotExists is false and the file does not exist,
// ErrDatabaseNotFound is returned.
func Open(dbPath string, opts Options) (*HistoryDB, error) {
	if !opts.CreateIfNotExists {
		if _, err := os.Stat(dbPath); errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrDatabaseNotFound, dbPath)
		} else if err != nil {
			return nil, fmt.Errorf("failed to check database path: %w", err)
		}
	} else if err := os.MkdirAll(filepath.Dir(dbPath), 0750); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	// mode=rw refuses to create a missing file.
	dsn := dbPath + "?mode=rw"
	if opts.CreateIfNotExists {
		dsn = dbPath + "?mode=rwc"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1) // SQLite only supports one writer
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	h := &HistoryDB{db: db, dbPath: dbPath}

	if opts.EnableWAL {
		if _, err := db.ExecContext(context.Background(), "PRAGMA journal_mode=WAL"); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
		}
	}

	if err := h.createTables(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}
	return h, nil
}

// Path returns the database file path.
func (h *HistoryDB) Path() string {
	return h.dbPath
}

// Close closes the database connection.
func (h *HistoryDB) Close() error {
	return h.db.Close()
}

func (h *HistoryDB) createTables() error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		started_at TEXT NOT NULL,
		finished_at TEXT NOT NULL,
		sites INTEGER NOT NULL,
		sites_aborted INTEGER NOT NULL,
		pages INTEGER NOT NULL,
		files INTEGER NOT NULL,
		keys INTEGER NOT NULL,
		failures INTEGER NOT NULL,
		report_json TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_runs_started ON runs(started_at);

	CREATE TABLE IF NOT EXISTS site_runs (
		run_id TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
		seed TEXT NOT NULL,
		domain TEXT NOT NULL,
		state TEXT NOT NULL,
		pages INTEGER NOT NULL,
		files INTEGER NOT NULL,
		dedup_hits INTEGER NOT NULL,
		keys INTEGER NOT NULL,
		failures INTEGER NOT NULL,
		started_at TEXT NOT NULL,
		finished_at TEXT NOT NULL,
		PRIMARY KEY (run_id, seed)
	);

	CREATE INDEX IF NOT EXISTS idx_site_runs_domain ON site_runs(domain);
	`
	_, err := h.db.ExecContext(context.Background(), schema)
	return err
}

// SaveRun stores a run report. Saving a run ID twice replaces the
// earlier rows.
func (h *HistoryDB) SaveRun(ctx context.Context, report *model.RunReport) error {
	if report == nil || report.RunID == "" {
		return ErrInvalidRun
	}

	reportJSON, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("failed to serialize report: %w", err)
	}

	tx, err := h.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM site_runs WHERE run_id = ?`, report.RunID); err != nil {
		return fmt.Errorf("failed to clear site runs: %w", err)
	}

	t := report.Totals
	_, err = tx.ExecContext(ctx, `
		INSERT OR REPLACE INTO runs
			(id, started_at, finished_at, sites, sites_aborted, pages, files, keys, failures, report_json)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		report.RunID, formatTimestamp(report.StartedAt), formatTimestamp(report.FinishedAt),
		t.Sites, t.SitesAborted, t.PagesFetched, t.FilesDownloaded, t.KeysFound, t.FailureCount(),
		string(reportJSON))
	if err != nil {
		return fmt.Errorf("failed to save run: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR REPLACE INTO site_runs
			(run_id, seed, domain, state, pages, files, dedup_hits, keys, failures, started_at, finished_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare site insert: %w", err)
	}
	defer stmt.Close()

	for _, s := range report.Sites {
		if _, err := stmt.ExecContext(ctx,
			report.RunID, s.Seed, s.Domain, string(s.State),
			s.PagesFetched, s.FilesDownloaded, s.DedupHits, s.KeysFound, s.FailureCount(),
			formatTimestamp(s.StartedAt), formatTimestamp(s.FinishedAt)); err != nil {
			return fmt.Errorf("failed to save site %s: %w", s.Seed, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit run: %w", err)
	}
	return nil
}

// ListRuns returns the most recent runs, newest first.
func (h *HistoryDB) ListRuns(ctx context.Context, limit int) ([]RunSummary, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}

	rows, err := h.db.QueryContext(ctx, `
		SELECT id, started_at, finished_at, sites, sites_aborted, pages, files, keys, failures
		FROM runs
		ORDER BY started_at DESC, id DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	var results []RunSummary
	for rows.Next() {
		var (
			s                 RunSummary
			started, finished string
		)
		if err := rows.Scan(&s.ID, &started, &finished, &s.Sites, &s.SitesAborted,
			&s.Pages, &s.Files, &s.Keys, &s.Failures); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		s.StartedAt = parseTimestamp(started)
		s.FinishedAt = parseTimestamp(finished)
		results = append(results, s)
	}
	return results, rows.Err()
}

// GetRun returns the full report of a run. id may be a unique prefix of
// the run ID.
func (h *HistoryDB) GetRun(ctx context.Context, id string) (*model.RunReport, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, ErrRunNotFound
	}

	rows, err := h.db.QueryContext(ctx, `
		SELECT id, report_json FROM runs
		WHERE id = ? OR substr(id, 1, ?) = ?
		ORDER BY id = ? DESC
		LIMIT 2`, id, len(id), id, id)
	if err != nil {
		return nil, fmt.Errorf("failed to query run: %w", err)
	}
	defer rows.Close()

	type match struct{ id, reportJSON string }
	var matches []match
	for rows.Next() {
		var m match
		if err := rows.Scan(&m.id, &m.reportJSON); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		matches = append(matches, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	switch {
	case len(matches) == 0:
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, id)
	case len(matches) > 1 && matches[0].id != id:
		return nil, fmt.Errorf("%w: %s", ErrAmbiguousRunID, id)
	}

	var report model.RunReport
	if err := json.Unmarshal([]byte(matches[0].reportJSON), &report); err != nil {
		return nil, fmt.Errorf("failed to parse report: %w", err)
	}
	return &report, nil
}

// SiteHistory returns the recorded outcomes of a domain, newest first.
func (h *HistoryDB) SiteHistory(ctx context.Context, domain string, limit int) ([]SiteRun, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}

	rows, err := h.db.QueryContext(ctx, `
		SELECT run_id, seed, domain, state, pages, files, dedup_hits, keys, failures, started_at, finished_at
		FROM site_runs
		WHERE domain = ?
		ORDER BY started_at DESC, run_id DESC
		LIMIT ?`, strings.ToLower(domain), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query site history: %w", err)
	}
	defer rows.Close()

	var results []SiteRun
	for rows.Next() {
		var (
			r                        SiteRun
			state, started, finished string
		)
		if err := rows.Scan(&r.RunID, &r.Seed, &r.Domain, &state, &r.Pages, &r.Files,
			&r.DedupHits, &r.Keys, &r.Failures, &started, &finished); err != nil {
			return nil, fmt.Errorf("failed to scan site run: %w", err)
		}
		r.State = model.SiteState(state)
		r.StartedAt = parseTimestamp(started)
		r.FinishedAt = parseTimestamp(finished)
		results = append(results, r)
	}
	return results, rows.Err()
}

// storedFormat sorts lexically in time order.
const storedFormat = "2006-01-02T15:04:05.000000000Z07:00"

func formatTimestamp(t time.Time) string {
	return t.UTC().Format(storedFormat)
}

// timestampFormats contains the timestamp formats that may be read back.
// More specific formats come first.
var timestampFormats = []string{
	storedFormat,
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02 15:04:05",  // SQLite default datetime format
	"2006-01-02T15:04:05Z", // ISO 8601 with Z suffix
	"2006-01-02T15:04:05",  // ISO 8601 without timezone
}

// parseTimestamp returns the zero time when no format matches.
func parseTimestamp(s string) time.Time {
	for _, format := range timestampFormats {
		if t, err := time.Parse(format, s); err == nil {
			return t
		}
	}
	return time.Time{}
}
