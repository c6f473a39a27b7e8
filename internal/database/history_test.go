package database

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/nao1215/onionharvest/internal/model"
)

// setupTestDB creates a temporary database for testing.
func setupTestDB(t *testing.T) *HistoryDB {
	t.Helper()

	db, err := Open(filepath.Join(t.TempDir(), "history.db"), DefaultOptions())
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func sampleRun(id string, started time.Time) *model.RunReport {
	done := model.NewSiteReport("http://alpha.onion/", "alpha.onion")
	done.State = model.SiteDone
	done.PagesFetched = 4
	done.FilesDownloaded = 2
	done.KeysFound = 1
	done.AddFailure(model.FailurePermanentHTTP, "http://alpha.onion/missing", "404 Not Found")
	done.StartedAt = started
	done.FinishedAt = started.Add(time.Minute)

	aborted := model.NewSiteReport("http://beta.onion/", "beta.onion")
	aborted.Abort(model.FailureProxyUnavailable, "proxy down")
	aborted.StartedAt = started
	aborted.FinishedAt = started.Add(time.Second)

	r := model.NewRunReport(id, started, []model.SiteReport{*done, *aborted}, model.StoreStats{TotalDownloads: 2})
	r.FinishedAt = started.Add(2 * time.Minute)
	return r
}

func TestOpen(t *testing.T) {
	t.Parallel()

	t.Run("creates database in new directory", func(t *testing.T) {
		t.Parallel()

		dbPath := filepath.Join(t.TempDir(), "newdir", "subdir", "history.db")
		db, err := Open(dbPath, DefaultOptions())
		if err != nil {
			t.Fatalf("failed to open database: %v", err)
		}
		defer db.Close()

		if _, err := os.Stat(dbPath); err != nil {
			t.Errorf("database file was not created: %v", err)
		}
		if db.Path() != dbPath {
			t.Errorf("expected path %s, got %s", dbPath, db.Path())
		}
	})

	t.Run("CreateIfNotExists=false fails for missing database", func(t *testing.T) {
		t.Parallel()

		dbPath := filepath.Join(t.TempDir(), "missing.db")
		_, err := Open(dbPath, Options{CreateIfNotExists: false})
		if !errors.Is(err, ErrDatabaseNotFound) {
			t.Errorf("expected ErrDatabaseNotFound, got %v", err)
		}
	})

	t.Run("reopens an existing database", func(t *testing.T) {
		t.Parallel()

		dbPath := filepath.Join(t.TempDir(), "history.db")
		db, err := Open(dbPath, DefaultOptions())
		if err != nil {
			t.Fatalf("failed to open database: %v", err)
		}
		if err := db.SaveRun(context.Background(), sampleRun("run-1", time.Now())); err != nil {
			t.Fatalf("failed to save run: %v", err)
		}
		_ = db.Close()

		db, err = Open(dbPath, Options{CreateIfNotExists: false, EnableWAL: true})
		if err != nil {
			t.Fatalf("failed to reopen database: %v", err)
		}
		defer db.Close()

		runs, err := db.ListRuns(context.Background(), 0)
		if err != nil {
			t.Fatalf("failed to list runs: %v", err)
		}
		if len(runs) != 1 {
			t.Errorf("expected 1 run after reopen, got %d", len(runs))
		}
	})
}

func TestSaveRun(t *testing.T) {
	t.Parallel()

	t.Run("round trip", func(t *testing.T) {
		t.Parallel()

		db := setupTestDB(t)
		ctx := context.Background()
		started := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
		want := sampleRun("0d9c6a4e-run", started)

		if err := db.SaveRun(ctx, want); err != nil {
			t.Fatalf("failed to save run: %v", err)
		}

		got, err := db.GetRun(ctx, want.RunID)
		if err != nil {
			t.Fatalf("failed to get run: %v", err)
		}
		if got.RunID != want.RunID {
			t.Errorf("expected run ID %s, got %s", want.RunID, got.RunID)
		}
		if len(got.Sites) != 2 {
			t.Fatalf("expected 2 sites, got %d", len(got.Sites))
		}
		if got.Sites[1].State != model.SiteAborted {
			t.Errorf("expected second site aborted, got %s", got.Sites[1].State)
		}
		if got.Totals.PagesFetched != 4 || got.Totals.SitesAborted != 1 {
			t.Errorf("unexpected totals: %+v", got.Totals)
		}
		if !got.StartedAt.Equal(started) {
			t.Errorf("expected start %v, got %v", started, got.StartedAt)
		}
	})

	t.Run("saving twice replaces the run", func(t *testing.T) {
		t.Parallel()

		db := setupTestDB(t)
		ctx := context.Background()
		r := sampleRun("run-x", time.Now())

		if err := db.SaveRun(ctx, r); err != nil {
			t.Fatalf("failed to save run: %v", err)
		}
		r.Sites = r.Sites[:1]
		r.Totals = model.ComputeTotals(r.Sites)
		if err := db.SaveRun(ctx, r); err != nil {
			t.Fatalf("failed to save run again: %v", err)
		}

		runs, err := db.ListRuns(ctx, 0)
		if err != nil {
			t.Fatalf("failed to list runs: %v", err)
		}
		if len(runs) != 1 || runs[0].Sites != 1 {
			t.Errorf("expected one run with one site, got %+v", runs)
		}
		history, err := db.SiteHistory(ctx, "beta.onion", 0)
		if err != nil {
			t.Fatalf("failed to get site history: %v", err)
		}
		if len(history) != 0 {
			t.Errorf("expected stale site rows removed, got %d", len(history))
		}
	})

	t.Run("rejects reports without ID", func(t *testing.T) {
		t.Parallel()

		db := setupTestDB(t)
		if err := db.SaveRun(context.Background(), &model.RunReport{}); !errors.Is(err, ErrInvalidRun) {
			t.Errorf("expected ErrInvalidRun, got %v", err)
		}
		if err := db.SaveRun(context.Background(), nil); !errors.Is(err, ErrInvalidRun) {
			t.Errorf("expected ErrInvalidRun for nil report, got %v", err)
		}
	})
}

func TestListRuns(t *testing.T) {
	t.Parallel()

	db := setupTestDB(t)
	ctx := context.Background()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for i, id := range []string{"aaa", "bbb", "ccc"} {
		if err := db.SaveRun(ctx, sampleRun(id, base.Add(time.Duration(i)*time.Hour))); err != nil {
			t.Fatalf("failed to save run %s: %v", id, err)
		}
	}

	runs, err := db.ListRuns(ctx, 2)
	if err != nil {
		t.Fatalf("failed to list runs: %v", err)
	}
	if len(runs) != 2 {
		t.Fatalf("expected 2 runs, got %d", len(runs))
	}
	if runs[0].ID != "ccc" || runs[1].ID != "bbb" {
		t.Errorf("expected newest first, got %s, %s", runs[0].ID, runs[1].ID)
	}

	r := runs[0]
	if r.Sites != 2 || r.SitesAborted != 1 || r.Pages != 4 || r.Files != 2 || r.Keys != 1 {
		t.Errorf("unexpected summary: %+v", r)
	}
	// one permanent-http failure plus the proxy abort
	if r.Failures != 2 {
		t.Errorf("expected 2 failures, got %d", r.Failures)
	}
	if r.Duration() != 2*time.Minute {
		t.Errorf("expected 2m duration, got %v", r.Duration())
	}
}

func TestGetRun(t *testing.T) {
	t.Parallel()

	db := setupTestDB(t)
	ctx := context.Background()
	for _, id := range []string{"abc-111", "abc-222", "abd-333"} {
		if err := db.SaveRun(ctx, sampleRun(id, time.Now())); err != nil {
			t.Fatalf("failed to save run %s: %v", id, err)
		}
	}

	testCases := []struct {
		name    string
		id      string
		wantID  string
		wantErr error
	}{
		{"exact ID", "abc-222", "abc-222", nil},
		{"unique prefix", "abd", "abd-333", nil},
		{"ambiguous prefix", "abc", "", ErrAmbiguousRunID},
		{"unknown ID", "zzz", "", ErrRunNotFound},
		{"empty ID", "  ", "", ErrRunNotFound},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			got, err := db.GetRun(ctx, tc.id)
			if tc.wantErr != nil {
				if !errors.Is(err, tc.wantErr) {
					t.Errorf("expected %v, got %v", tc.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got.RunID != tc.wantID {
				t.Errorf("expected %s, got %s", tc.wantID, got.RunID)
			}
		})
	}
}

func TestSiteHistory(t *testing.T) {
	t.Parallel()

	db := setupTestDB(t)
	ctx := context.Background()
	base := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	for i, id := range []string{"r1", "r2"} {
		if err := db.SaveRun(ctx, sampleRun(id, base.Add(time.Duration(i)*time.Hour))); err != nil {
			t.Fatalf("failed to save run %s: %v", id, err)
		}
	}

	history, err := db.SiteHistory(ctx, "ALPHA.onion", 0)
	if err != nil {
		t.Fatalf("failed to get site history: %v", err)
	}
	if len(history) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(history))
	}
	if history[0].RunID != "r2" {
		t.Errorf("expected newest run first, got %s", history[0].RunID)
	}
	h := history[0]
	if h.State != model.SiteDone || h.Pages != 4 || h.Files != 2 || h.Failures != 1 {
		t.Errorf("unexpected site run: %+v", h)
	}

	none, err := db.SiteHistory(ctx, "gamma.onion", 5)
	if err != nil {
		t.Fatalf("failed to get site history: %v", err)
	}
	if len(none) != 0 {
		t.Errorf("expected no entries, got %d", len(none))
	}
}

func TestParseTimestamp(t *testing.T) {
	t.Parallel()

	ts := time.Date(2026, 5, 6, 7, 8, 9, 123, time.UTC)
	if got := parseTimestamp(formatTimestamp(ts)); !got.Equal(ts) {
		t.Errorf("expected %v, got %v", ts, got)
	}
	if got := parseTimestamp("2026-05-06 07:08:09"); got.Year() != 2026 || got.Second() != 9 {
		t.Errorf("expected SQLite datetime to parse, got %v", got)
	}
	if got := parseTimestamp("garbage"); !got.IsZero() {
		t.Errorf("expected zero time, got %v", got)
	}
}
