package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/nao1215/onionharvest/internal/config"
	"github.com/nao1215/onionharvest/internal/decrypt"
	"github.com/nao1215/onionharvest/internal/extract"
	"github.com/nao1215/onionharvest/internal/model"
	"github.com/nao1215/onionharvest/internal/report"
	"github.com/nao1215/onionharvest/internal/tracker"
)

const plainCSV = "name,email\nalice,alice@example.com\nbob,bob@example.com\n"

// newLeakySite serves two pages and two files. The about page leaks the key
// that encrypts data.csv.
func newLeakySite(t *testing.T) *httptest.Server {
	t.Helper()

	var encrypted bytes.Buffer
	if err := decrypt.EncryptCSV(strings.NewReader(plainCSV), &encrypted, []byte("secret12")); err != nil {
		t.Fatalf("failed to encrypt fixture: %v", err)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/html")
		_, _ = io.WriteString(w, `<html><body>
<a href="/about">About</a>
<a href="/files/data.csv">Data</a>
<a href="/files/notes.txt">Notes</a>
</body></html>`)
	})
	mux.HandleFunc("/about", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = io.WriteString(w, `<html><body><p>password=secret12</p></body></html>`)
	})
	mux.HandleFunc("/files/data.csv", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/csv")
		_, _ = w.Write(encrypted.Bytes())
	})
	mux.HandleFunc("/files/notes.txt", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		_, _ = io.WriteString(w, "api_key=ABCD1234EFGH5678\n")
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func writeSeeds(t *testing.T, path string, seeds ...string) {
	t.Helper()
	if seeds == nil {
		seeds = []string{}
	}
	data, err := json.Marshal(seeds)
	if err != nil {
		t.Fatalf("failed to encode seeds: %v", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		t.Fatalf("failed to write seeds: %v", err)
	}
}

// execute runs the root command with args and returns stdout.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()

	var out bytes.Buffer
	cmd := NewRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(io.Discard)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func readJSONReport(t *testing.T, path string) report.JSONReport {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to read report: %v", err)
	}
	var r report.JSONReport
	if err := json.Unmarshal(data, &r); err != nil {
		t.Fatalf("report is not valid JSON: %v", err)
	}
	if r.Report == nil {
		t.Fatal("expected report body")
	}
	return r
}

func TestCrawlCommand(t *testing.T) {
	t.Parallel()

	srv := newLeakySite(t)
	dir := t.TempDir()
	seeds := filepath.Join(dir, "urls.json")
	tracking := filepath.Join(dir, "downloads.json")
	downloads := filepath.Join(dir, "dl")
	historyDir := filepath.Join(dir, "history")
	writeSeeds(t, seeds, srv.URL+"/")

	args := func(reportPath string) []string {
		return []string{
			"crawl",
			"--input", seeds,
			"--tracking", tracking,
			"--downloads", downloads,
			"--history-dir", historyDir,
			"--proxy", "direct",
			"--retries", "1",
			"--timeout", "5s",
			"--decrypt",
			"--json",
			"--output", reportPath,
		}
	}

	// first run downloads everything and decrypts the CSV
	firstPath := filepath.Join(dir, "first.json")
	if _, err := execute(t, args(firstPath)...); err != nil {
		t.Fatalf("first crawl failed: %v", err)
	}
	first := readJSONReport(t, firstPath)

	if len(first.Report.Sites) != 1 {
		t.Fatalf("expected 1 site, got %d", len(first.Report.Sites))
	}
	site := first.Report.Sites[0]
	if site.State != model.SiteDone {
		t.Errorf("expected site done, got %s (%s)", site.State, site.AbortReason)
	}
	if site.PagesFetched != 2 {
		t.Errorf("expected 2 pages, got %d", site.PagesFetched)
	}
	if site.FilesDownloaded != 2 {
		t.Errorf("expected 2 files, got %d", site.FilesDownloaded)
	}
	if site.KeysFound < 2 {
		t.Errorf("expected at least 2 keys, got %d", site.KeysFound)
	}
	if first.Report.Totals.FailureCount() != 0 {
		t.Errorf("expected no failures, got %v", first.Report.Totals.Failures)
	}

	domainDir := filepath.Join(downloads, extract.Domain(srv.URL))
	decrypted, err := os.ReadFile(filepath.Join(domainDir, decrypt.DecryptedDir, "data.csv"))
	if err != nil {
		t.Fatalf("expected decrypted file: %v", err)
	}
	if string(decrypted) != plainCSV {
		t.Errorf("expected decrypted content %q, got %q", plainCSV, decrypted)
	}

	store, err := tracker.Open(tracking)
	if err != nil {
		t.Fatalf("failed to reopen tracking document: %v", err)
	}
	doc := store.Snapshot()
	if len(doc.Downloads) != 2 {
		t.Errorf("expected 2 download records, got %d", len(doc.Downloads))
	}
	if doc.Session.LastRunID != first.Report.RunID {
		t.Errorf("expected last run %s, got %s", first.Report.RunID, doc.Session.LastRunID)
	}
	var decryptedOK int
	for _, rec := range doc.Decryptions {
		if rec.Status == model.DecryptionSuccess {
			decryptedOK++
		}
	}
	if decryptedOK != 1 {
		t.Errorf("expected 1 successful decryption, got %d", decryptedOK)
	}

	// second run finds every file in the tracking document
	secondPath := filepath.Join(dir, "second.json")
	if _, err := execute(t, args(secondPath)...); err != nil {
		t.Fatalf("second crawl failed: %v", err)
	}
	second := readJSONReport(t, secondPath)
	if got := second.Report.Totals.FilesDownloaded; got != 0 {
		t.Errorf("expected no new downloads, got %d", got)
	}
	if got := second.Report.Totals.DedupHits; got != 2 {
		t.Errorf("expected 2 dedup hits, got %d", got)
	}
	if second.Report.RunID == first.Report.RunID {
		t.Error("expected a new run ID")
	}

	// both runs are in the history
	out, err := execute(t, "history", "--history-dir", historyDir)
	if err != nil {
		t.Fatalf("history failed: %v", err)
	}
	for _, id := range []string{first.Report.RunID, second.Report.RunID} {
		if !strings.Contains(out, shortID(id)) {
			t.Errorf("expected history to list run %s, got %q", id, out)
		}
	}

	out, err = execute(t, "history", "--history-dir", historyDir, "--json", first.Report.RunID)
	if err != nil {
		t.Fatalf("history show failed: %v", err)
	}
	var shown report.JSONReport
	if err := json.Unmarshal([]byte(out), &shown); err != nil {
		t.Fatalf("history output is not JSON: %v", err)
	}
	if shown.Report == nil || shown.Report.RunID != first.Report.RunID {
		t.Errorf("expected stored report of run %s", first.Report.RunID)
	}

	out, err = execute(t, "history", "--history-dir", historyDir, "--site", extract.Domain(srv.URL))
	if err != nil {
		t.Fatalf("site history failed: %v", err)
	}
	if strings.Count(out, "done") != 2 {
		t.Errorf("expected two site runs, got %q", out)
	}
}

func TestCrawlCommandErrors(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name    string
		args    func(dir string) []string
		wantErr error
	}{
		{
			name: "conflicting report formats",
			args: func(dir string) []string {
				return []string{"crawl", "--json", "--markdown", "--input", filepath.Join(dir, "u.json")}
			},
			wantErr: config.ErrConflictingReportFormats,
		},
		{
			name: "invalid proxy mode",
			args: func(dir string) []string {
				return []string{"crawl", "--proxy", "carrier-pigeon", "--input", filepath.Join(dir, "u.json")}
			},
			wantErr: config.ErrInvalidProxyMode,
		},
		{
			name: "missing explicit config file",
			args: func(dir string) []string {
				return []string{"crawl", "--config", filepath.Join(dir, "nope.yaml")}
			},
			wantErr: config.ErrConfigNotFound,
		},
		{
			name: "non-positive max pages",
			args: func(dir string) []string {
				return []string{"crawl", "--max-pages", "0", "--input", filepath.Join(dir, "u.json")}
			},
			wantErr: config.ErrInvalidMaxPages,
		},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			_, err := execute(t, tc.args(t.TempDir())...)
			if !errors.Is(err, tc.wantErr) {
				t.Errorf("expected %v, got %v", tc.wantErr, err)
			}
		})
	}
}

// testConfig returns a config rooted in a temporary directory with the
// history disabled and direct connections.
func testConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()

	cfg := config.NewConfig()
	cfg.InputFile = filepath.Join(dir, "urls.json")
	cfg.TrackingFile = filepath.Join(dir, "downloads.json")
	cfg.DownloadsDir = filepath.Join(dir, "dl")
	cfg.ProxyMode = "direct"
	cfg.MaxAttempts = 1
	cfg.Timeout = 5 * time.Second
	cfg.SaveHistory = false
	cfg.SiteConfigs = &config.File{Sites: make(map[string]config.SiteConfig)}
	return cfg
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestRunCrawl(t *testing.T) {
	t.Parallel()

	t.Run("missing input list writes an example and crawls nothing", func(t *testing.T) {
		t.Parallel()

		cfg := testConfig(t)
		r, err := runCrawl(context.Background(), cfg, io.Discard, quietLogger())
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(r.Sites) != 0 {
			t.Errorf("expected empty run, got %d sites", len(r.Sites))
		}
		if _, err := config.LoadSeeds(cfg.InputFile); err != nil {
			t.Errorf("expected example seed list, got %v", err)
		}
		if _, err := os.Stat(cfg.TrackingFile); err != nil {
			t.Errorf("expected tracking document to be written: %v", err)
		}
	})

	t.Run("command line seeds are appended", func(t *testing.T) {
		t.Parallel()

		srv := newLeakySite(t)
		cfg := testConfig(t)
		writeSeeds(t, cfg.InputFile)
		cfg.Seeds = config.NormalizeSeeds([]string{srv.URL + "/about"})
		cfg.MaxDepth = 0

		r, err := runCrawl(context.Background(), cfg, io.Discard, quietLogger())
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(r.Sites) != 1 || r.Sites[0].PagesFetched != 1 {
			t.Fatalf("expected one site with one page, got %+v", r.Sites)
		}
		if r.Totals.KeysFound != 1 {
			t.Errorf("expected 1 key, got %d", r.Totals.KeysFound)
		}
	})

	t.Run("corrupt tracking document is fatal", func(t *testing.T) {
		t.Parallel()

		cfg := testConfig(t)
		writeSeeds(t, cfg.InputFile)
		if err := os.WriteFile(cfg.TrackingFile, []byte("{not json"), 0600); err != nil {
			t.Fatalf("failed to write tracking document: %v", err)
		}

		_, err := runCrawl(context.Background(), cfg, io.Discard, quietLogger())
		if !errors.Is(err, tracker.ErrCorruptDocument) {
			t.Errorf("expected ErrCorruptDocument, got %v", err)
		}
		data, err := os.ReadFile(cfg.TrackingFile)
		if err != nil || string(data) != "{not json" {
			t.Error("expected corrupt document to be left untouched")
		}
	})

	t.Run("unopenable explicit history is fatal", func(t *testing.T) {
		t.Parallel()

		cfg := testConfig(t)
		writeSeeds(t, cfg.InputFile)
		blocker := filepath.Join(t.TempDir(), "file")
		if err := os.WriteFile(blocker, []byte("x"), 0600); err != nil {
			t.Fatalf("failed to write blocker: %v", err)
		}
		cfg.SaveHistory = true
		cfg.HistoryDir = filepath.Join(blocker, "history")

		if _, err := runCrawl(context.Background(), cfg, io.Discard, quietLogger()); err == nil {
			t.Error("expected error for unopenable history")
		}
	})

	t.Run("unreachable seed is reported, not fatal", func(t *testing.T) {
		t.Parallel()

		srv := httptest.NewServer(http.NotFoundHandler())
		seed := srv.URL + "/"
		srv.Close()

		cfg := testConfig(t)
		writeSeeds(t, cfg.InputFile, seed)

		r, err := runCrawl(context.Background(), cfg, io.Discard, quietLogger())
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(r.Sites) != 1 || r.Sites[0].PagesFetched != 0 {
			t.Fatalf("expected one site without pages, got %+v", r.Sites)
		}
		if r.Totals.FailureCount() == 0 {
			t.Error("expected the failed seed to be reported")
		}
	})
}
