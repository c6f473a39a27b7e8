package report

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/nao1215/onionharvest/internal/model"
)

// createTestReport creates a run report with one finished, one aborted and
// one early-stopped site.
func createTestReport() *model.RunReport {
	started := time.Date(2026, 4, 1, 10, 0, 0, 0, time.UTC)

	done := model.NewSiteReport("http://alpha.onion/", "alpha.onion")
	done.State = model.SiteDone
	done.PagesFetched = 1234
	done.FilesDownloaded = 3
	done.BytesDownloaded = 1536
	done.KeysFound = 2
	done.AddFailure(model.FailurePermanentHTTP, "http://alpha.onion/gone", "404 Not Found")
	done.AddFailure(model.FailureTimeout, "http://alpha.onion/slow", "context deadline exceeded")
	done.StartedAt = started
	done.FinishedAt = started.Add(90 * time.Second)

	aborted := model.NewSiteReport("http://beta.onion/", "beta.onion")
	aborted.Abort(model.FailureProxyUnavailable, "SOCKS proxy unreachable")
	aborted.StartedAt = started
	aborted.FinishedAt = started.Add(10 * time.Millisecond)

	early := model.NewSiteReport("http://gamma.test/", "gamma.test")
	early.State = model.SiteDone
	early.StoppedEarly = true
	early.PagesFetched = 5
	early.StartedAt = started
	early.FinishedAt = started.Add(5 * time.Minute)

	r := model.NewRunReport("3f1e2d4c-0000-4000-8000-000000000001", started,
		[]model.SiteReport{*done, *aborted, *early},
		model.StoreStats{TotalDownloads: 4, CompletedDownloads: 3, FailedDownloads: 1, TotalKeys: 2, DomainsSeen: 1})
	r.FinishedAt = started.Add(5 * time.Minute)
	return r
}

func TestSimpleWriter(t *testing.T) {
	t.Parallel()

	t.Run("writes header and totals", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		n, err := NewSimpleWriter(&buf).Write(createTestReport())
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if n != buf.Len() {
			t.Errorf("expected %d bytes reported, got %d", buf.Len(), n)
		}

		output := buf.String()
		for _, want := range []string{
			"ONIONHARVEST RUN REPORT",
			"3f1e2d4c-0000-4000-8000-000000000001",
			"Sites:     3 (1 aborted)",
			"Pages:     1,239",
			"1.5 kB",
			"Duration:  5m0s",
		} {
			if !strings.Contains(output, want) {
				t.Errorf("expected output to contain %q", want)
			}
		}
	})

	t.Run("lists sites and abort reasons", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		if _, err := NewSimpleWriter(&buf).Write(createTestReport()); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		output := buf.String()
		for _, want := range []string{
			"alpha.onion",
			"beta.onion aborted: SOCKS proxy unreachable",
			"done*",
			"time budget ended the crawl",
			"proxy-unavailable:",
			"permanent-http:",
		} {
			if !strings.Contains(output, want) {
				t.Errorf("expected output to contain %q", want)
			}
		}
	})

	t.Run("verbose mode lists each failure", func(t *testing.T) {
		t.Parallel()

		var quiet, verbose bytes.Buffer
		if _, err := NewSimpleWriter(&quiet).Write(createTestReport()); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if _, err := NewSimpleWriter(&verbose, WithVerbose(true)).Write(createTestReport()); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		line := "[timeout] http://alpha.onion/slow: context deadline exceeded"
		if strings.Contains(quiet.String(), line) {
			t.Error("expected failure details to be hidden without verbose")
		}
		if !strings.Contains(verbose.String(), line) {
			t.Errorf("expected verbose output to contain %q", line)
		}
	})

	t.Run("handles empty run", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		r := model.NewRunReport("empty", time.Now(), nil, model.StoreStats{})
		if _, err := NewSimpleWriter(&buf).Write(r); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !strings.Contains(buf.String(), "No seeds were crawled.") {
			t.Error("expected empty run message")
		}
		if strings.Contains(buf.String(), "FAILURES") {
			t.Error("expected no failure section")
		}
	})
}

func TestMarkdownWriter(t *testing.T) {
	t.Parallel()

	t.Run("writes tables and failures", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		if _, err := NewMarkdownWriter(&buf).Write(createTestReport()); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		output := buf.String()
		for _, want := range []string{
			"# OnionHarvest Run Report",
			"3f1e2d4c-0000-4000-8000-000000000001",
			"## Sites",
			"alpha.onion",
			"stopped early",
			"## Failures",
			"mermaid",
			"Failures by Kind",
			"1 of 3 site(s) were aborted",
			"http://alpha.onion/gone",
		} {
			if !strings.Contains(output, want) {
				t.Errorf("expected output to contain %q", want)
			}
		}
	})

	t.Run("clean run has no failure section", func(t *testing.T) {
		t.Parallel()

		s := model.NewSiteReport("http://ok.test/", "ok.test")
		s.State = model.SiteDone
		s.PagesFetched = 1
		r := model.NewRunReport("clean", time.Now(), []model.SiteReport{*s}, model.StoreStats{})

		var buf bytes.Buffer
		if _, err := NewMarkdownWriter(&buf).Write(r); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		output := buf.String()
		if strings.Contains(output, "## Failures") {
			t.Error("expected no failure section")
		}
		if !strings.Contains(output, "without failures") {
			t.Error("expected clean run tip")
		}
	})
}

func TestJSONWriter(t *testing.T) {
	t.Parallel()

	t.Run("wraps report with version", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		if _, err := NewJSONWriter(&buf, "v1.2.3").Write(createTestReport()); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		var got JSONReport
		if err := json.Unmarshal(buf.Bytes(), &got); err != nil {
			t.Fatalf("output is not valid JSON: %v", err)
		}
		if got.Version != "v1.2.3" {
			t.Errorf("expected version v1.2.3, got %s", got.Version)
		}
		if got.DurationSeconds != 300 {
			t.Errorf("expected 300 seconds, got %v", got.DurationSeconds)
		}
		if got.Report == nil || len(got.Report.Sites) != 3 {
			t.Fatalf("expected 3 sites in report, got %+v", got.Report)
		}
		if got.Report.Totals.Failures[model.FailureProxyUnavailable] != 1 {
			t.Errorf("expected one proxy failure, got %v", got.Report.Totals.Failures)
		}
	})

	t.Run("compact by default", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		if _, err := NewJSONWriter(&buf, "dev").Write(createTestReport()); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if strings.Count(buf.String(), "\n") != 1 {
			t.Error("expected a single line of JSON")
		}
	})

	t.Run("pretty print", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		if _, err := NewJSONWriter(&buf, "dev", WithPrettyPrint()).Write(createTestReport()); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !strings.Contains(buf.String(), "\n  \"version\": \"dev\"") {
			t.Error("expected indented output")
		}
	})
}

func TestParseFormat(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		in      string
		want    Format
		wantErr bool
	}{
		{"", FormatText, false},
		{"text", FormatText, false},
		{"Markdown", FormatMarkdown, false},
		{"md", FormatMarkdown, false},
		{" json ", FormatJSON, false},
		{"xml", "", true},
	}
	for _, tc := range testCases {
		t.Run(tc.in, func(t *testing.T) {
			t.Parallel()

			got, err := ParseFormat(tc.in)
			if tc.wantErr {
				if !errors.Is(err, ErrUnknownFormat) {
					t.Errorf("expected ErrUnknownFormat, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tc.want {
				t.Errorf("expected %s, got %s", tc.want, got)
			}
		})
	}
}

func TestNew(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	if _, ok := New(FormatText, &buf, "dev").(*SimpleWriter); !ok {
		t.Error("expected SimpleWriter for text")
	}
	if _, ok := New(FormatMarkdown, &buf, "dev").(*MarkdownWriter); !ok {
		t.Error("expected MarkdownWriter for markdown")
	}
	if _, ok := New(FormatJSON, &buf, "dev").(*JSONWriter); !ok {
		t.Error("expected JSONWriter for json")
	}
}

func TestMultiWriter(t *testing.T) {
	t.Parallel()

	var text, js bytes.Buffer
	mw := NewMultiWriter(NewSimpleWriter(&text), NewJSONWriter(&js, "dev"))

	n, err := mw.Write(createTestReport())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n != text.Len()+js.Len() {
		t.Errorf("expected %d bytes, got %d", text.Len()+js.Len(), n)
	}
	if text.Len() == 0 || js.Len() == 0 {
		t.Error("expected both writers to receive the report")
	}
}
