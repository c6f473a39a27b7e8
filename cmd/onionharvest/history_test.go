package main

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/nao1215/onionharvest/internal/config"
	"github.com/nao1215/onionharvest/internal/database"
	"github.com/nao1215/onionharvest/internal/model"
)

func writeHistoryFixture(t *testing.T, ids ...string) string {
	t.Helper()
	dir := t.TempDir()

	db, err := database.Open((&config.Config{HistoryDir: dir}).HistoryPath(), database.DefaultOptions())
	if err != nil {
		t.Fatalf("failed to open history: %v", err)
	}
	defer db.Close()

	started := time.Date(2026, 4, 1, 10, 0, 0, 0, time.UTC)
	for i, id := range ids {
		s := model.NewSiteReport("http://alpha.onion/", "alpha.onion")
		s.State = model.SiteDone
		s.PagesFetched = 3
		r := model.NewRunReport(id, started.Add(time.Duration(i)*time.Hour), []model.SiteReport{*s}, model.StoreStats{})
		r.FinishedAt = r.StartedAt.Add(time.Minute)
		if err := db.SaveRun(context.Background(), r); err != nil {
			t.Fatalf("failed to save run: %v", err)
		}
	}
	return dir
}

func TestHistoryCommand(t *testing.T) {
	t.Parallel()

	t.Run("no database yet", func(t *testing.T) {
		t.Parallel()

		out, err := execute(t, "history", "--history-dir", t.TempDir())
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !strings.Contains(out, "No runs recorded yet") {
			t.Errorf("expected empty history message, got %q", out)
		}
	})

	t.Run("lists runs newest first", func(t *testing.T) {
		t.Parallel()

		dir := writeHistoryFixture(t, "aaaaaaaa-1111", "bbbbbbbb-2222")
		out, err := execute(t, "history", "--history-dir", dir)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		first, second := strings.Index(out, "bbbbbbbb"), strings.Index(out, "aaaaaaaa")
		if first < 0 || second < 0 || first > second {
			t.Errorf("expected newest run first, got:\n%s", out)
		}
	})

	t.Run("limit", func(t *testing.T) {
		t.Parallel()

		dir := writeHistoryFixture(t, "aaaaaaaa-1111", "bbbbbbbb-2222")
		out, err := execute(t, "history", "--history-dir", dir, "--limit", "1")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if strings.Contains(out, "aaaaaaaa") {
			t.Errorf("expected only the newest run, got:\n%s", out)
		}
	})

	t.Run("shows one run by prefix", func(t *testing.T) {
		t.Parallel()

		dir := writeHistoryFixture(t, "aaaaaaaa-1111", "bbbbbbbb-2222")
		out, err := execute(t, "history", "--history-dir", dir, "--markdown", "aaaa")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !strings.Contains(out, "# OnionHarvest Run Report") || !strings.Contains(out, "aaaaaaaa-1111") {
			t.Errorf("expected markdown report of the first run, got:\n%s", out)
		}
	})

	t.Run("unknown run", func(t *testing.T) {
		t.Parallel()

		dir := writeHistoryFixture(t, "aaaaaaaa-1111")
		_, err := execute(t, "history", "--history-dir", dir, "zzzz")
		if !errors.Is(err, database.ErrRunNotFound) {
			t.Errorf("expected ErrRunNotFound, got %v", err)
		}
	})

	t.Run("site history", func(t *testing.T) {
		t.Parallel()

		dir := writeHistoryFixture(t, "aaaaaaaa-1111", "bbbbbbbb-2222")
		out, err := execute(t, "history", "--history-dir", dir, "--site", "ALPHA.onion")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if strings.Count(out, "done") != 2 {
			t.Errorf("expected two site runs, got:\n%s", out)
		}

		out, err = execute(t, "history", "--history-dir", dir, "--site", "other.onion")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !strings.Contains(out, "No runs recorded for other.onion") {
			t.Errorf("expected empty site history, got %q", out)
		}
	})

	t.Run("conflicting formats", func(t *testing.T) {
		t.Parallel()

		_, err := execute(t, "history", "--history-dir", t.TempDir(), "--json", "--markdown", "x")
		if !errors.Is(err, config.ErrConflictingReportFormats) {
			t.Errorf("expected ErrConflictingReportFormats, got %v", err)
		}
	})
}

func TestShortID(t *testing.T) {
	t.Parallel()

	if got := shortID("3f1e2d4c-0000-4000-8000-000000000001"); got != "3f1e2d4c" {
		t.Errorf("expected 3f1e2d4c, got %s", got)
	}
	if got := shortID("abc"); got != "abc" {
		t.Errorf("expected abc, got %s", got)
	}
}
