package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/nao1215/onionharvest/internal/decrypt"
	"github.com/nao1215/onionharvest/internal/model"
	"github.com/nao1215/onionharvest/internal/tracker"
)

// writeTrackingFixture creates a tracking document with an encrypted CSV
// and its key for alpha.onion, a CSV without keys for beta.onion and one
// failed download.
func writeTrackingFixture(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()

	alpha := filepath.Join(dir, "dl", "alpha.onion", "data.csv")
	beta := filepath.Join(dir, "dl", "beta.onion", "report.csv")
	for _, p := range []string{alpha, beta} {
		if err := os.MkdirAll(filepath.Dir(p), 0750); err != nil {
			t.Fatalf("failed to create directory: %v", err)
		}
	}

	var encrypted bytes.Buffer
	if err := decrypt.EncryptCSV(strings.NewReader(plainCSV), &encrypted, []byte("secret12")); err != nil {
		t.Fatalf("failed to encrypt fixture: %v", err)
	}
	if err := os.WriteFile(alpha, encrypted.Bytes(), 0600); err != nil {
		t.Fatalf("failed to write fixture: %v", err)
	}
	if err := os.WriteFile(beta, []byte("a,b\n1,2\n"), 0600); err != nil {
		t.Fatalf("failed to write fixture: %v", err)
	}

	path := filepath.Join(dir, "downloads.json")
	store, err := tracker.Open(path)
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	store.BeginRun("run-1")
	ts := time.Date(2026, 4, 1, 10, 0, 0, 0, time.UTC)
	store.RecordDownload(model.DownloadRecord{
		URL: "http://alpha.onion/data.csv", Domain: "alpha.onion", LocalPath: alpha,
		Size: int64(encrypted.Len()), Status: model.DownloadCompleted, Timestamp: ts,
	})
	store.RecordDownload(model.DownloadRecord{
		URL: "http://beta.onion/report.csv", Domain: "beta.onion", LocalPath: beta,
		Size: 8, Status: model.DownloadCompleted, Timestamp: ts,
	})
	store.RecordDownload(model.DownloadRecord{
		URL: "http://beta.onion/gone.zip", Domain: "beta.onion",
		Status: model.DownloadFailed, Error: "404 Not Found", Timestamp: ts,
	})
	store.RecordKeys("alpha.onion", []model.KeyFinding{
		{Origin: "http://alpha.onion/about", Kind: "password", Snippet: "password=secret12"},
	})
	if err := store.Close(); err != nil {
		t.Fatalf("failed to save store: %v", err)
	}
	return path
}

func TestStatsCommand(t *testing.T) {
	t.Parallel()

	t.Run("text output", func(t *testing.T) {
		t.Parallel()

		path := writeTrackingFixture(t)
		before, err := os.ReadFile(path)
		if err != nil {
			t.Fatalf("failed to read fixture: %v", err)
		}

		out, err := execute(t, "stats", "--tracking", path)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		for _, want := range []string{
			"Runs:              1 (last run-1)",
			"2 completed, 1 failed",
			"1 across 1 domains",
			"alpha.onion",
			"beta.onion",
		} {
			if !strings.Contains(out, want) {
				t.Errorf("expected output to contain %q, got:\n%s", want, out)
			}
		}

		after, err := os.ReadFile(path)
		if err != nil {
			t.Fatalf("failed to read fixture: %v", err)
		}
		if !bytes.Equal(before, after) {
			t.Error("expected stats to leave the tracking document untouched")
		}
	})

	t.Run("json output", func(t *testing.T) {
		t.Parallel()

		out, err := execute(t, "stats", "--tracking", writeTrackingFixture(t), "--json")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		var got trackingStats
		if err := json.Unmarshal([]byte(out), &got); err != nil {
			t.Fatalf("output is not JSON: %v", err)
		}
		if len(got.Domains) != 2 {
			t.Fatalf("expected 2 domains, got %d", len(got.Domains))
		}
		alpha, beta := got.Domains[0], got.Domains[1]
		if alpha.Domain != "alpha.onion" || alpha.Completed != 1 || alpha.Keys != 1 {
			t.Errorf("unexpected alpha stats: %+v", alpha)
		}
		if beta.Domain != "beta.onion" || beta.Completed != 1 || beta.Failed != 1 || beta.Bytes != 8 {
			t.Errorf("unexpected beta stats: %+v", beta)
		}
	})

	t.Run("missing document is empty", func(t *testing.T) {
		t.Parallel()

		path := filepath.Join(t.TempDir(), "downloads.json")
		out, err := execute(t, "stats", "--tracking", path)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !strings.Contains(out, "0 completed, 0 failed") {
			t.Errorf("expected empty counters, got:\n%s", out)
		}
		if _, err := os.Stat(path); !os.IsNotExist(err) {
			t.Error("expected stats not to create the document")
		}
	})

	t.Run("corrupt document", func(t *testing.T) {
		t.Parallel()

		path := filepath.Join(t.TempDir(), "downloads.json")
		if err := os.WriteFile(path, []byte("[1,2"), 0600); err != nil {
			t.Fatalf("failed to write document: %v", err)
		}
		if _, err := execute(t, "stats", "--tracking", path); err == nil {
			t.Error("expected error for corrupt document")
		}
	})
}

func TestCollectStats(t *testing.T) {
	t.Parallel()

	doc := model.NewTrackingDocument()
	newer := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	doc.Downloads = append(doc.Downloads,
		model.DownloadRecord{URL: "http://a.onion/1.csv", Domain: "a.onion", Size: 10, Status: model.DownloadCompleted, Timestamp: newer.Add(-time.Hour)},
		model.DownloadRecord{URL: "http://a.onion/2.csv", Domain: "a.onion", Size: 5, Status: model.DownloadCompleted, Timestamp: newer},
	)
	doc.Keys["k.onion"] = []model.KeyFinding{{Kind: "token", Snippet: "x"}}
	doc.Decryptions["http://a.onion/2.csv"] = model.DecryptionRecord{Status: model.DecryptionSuccess}

	got := collectStats(model.StoreStats{}, *doc)
	if got.Bytes != 15 {
		t.Errorf("expected 15 bytes, got %d", got.Bytes)
	}
	if len(got.Domains) != 2 || got.Domains[0].Domain != "a.onion" || got.Domains[1].Domain != "k.onion" {
		t.Fatalf("expected domains a.onion and k.onion, got %+v", got.Domains)
	}
	a := got.Domains[0]
	if !a.LastDownload.Equal(newer) {
		t.Errorf("expected last download %v, got %v", newer, a.LastDownload)
	}
	if a.Decrypted != 1 {
		t.Errorf("expected 1 decrypted file, got %d", a.Decrypted)
	}
	if got.Domains[1].Keys != 1 || got.Domains[1].Completed != 0 {
		t.Errorf("expected key-only domain, got %+v", got.Domains[1])
	}
}
