package report

import (
	"fmt"
	"io"
	"slices"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/nao1215/onionharvest/internal/model"
)

// SimpleWriter outputs a human-readable text summary of a run.
type SimpleWriter struct {
	baseWriter

	// verbose lists every failure of every site.
	verbose bool
}

// SimpleWriterOption configures a SimpleWriter.
type SimpleWriterOption func(*SimpleWriter)

// WithVerbose enables the per-failure listing.
func WithVerbose(verbose bool) SimpleWriterOption {
	return func(w *SimpleWriter) {
		w.verbose = verbose
	}
}

// NewSimpleWriter creates a SimpleWriter that outputs to the given writer.
func NewSimpleWriter(output io.Writer, opts ...SimpleWriterOption) *SimpleWriter {
	w := &SimpleWriter{baseWriter: newBaseWriter(output)}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Write outputs the run report in human-readable format.
func (w *SimpleWriter) Write(report *model.RunReport) (int, error) {
	var sb strings.Builder

	w.writeHeader(&sb, report)
	w.writeSites(&sb, report)
	w.writeFailures(&sb, report)
	w.writeFooter(&sb, report)

	return io.WriteString(w.output, sb.String())
}

func (w *SimpleWriter) writeHeader(sb *strings.Builder, report *model.RunReport) {
	t := report.Totals

	sb.WriteString("\n")
	sb.WriteString(strings.Repeat("=", 70))
	sb.WriteString("\n")
	sb.WriteString("                      ONIONHARVEST RUN REPORT\n")
	sb.WriteString(strings.Repeat("=", 70))
	sb.WriteString("\n\n")

	fmt.Fprintf(sb, "Run ID:    %s\n", report.RunID)
	fmt.Fprintf(sb, "Started:   %s\n", report.StartedAt.Format("2006-01-02 15:04:05 MST"))
	fmt.Fprintf(sb, "Duration:  %s\n", formatDuration(report.Duration()))
	if t.SitesAborted > 0 {
		fmt.Fprintf(sb, "Sites:     %d (%d aborted)\n", t.Sites, t.SitesAborted)
	} else {
		fmt.Fprintf(sb, "Sites:     %d\n", t.Sites)
	}
	fmt.Fprintf(sb, "Pages:     %s\n", humanize.Comma(int64(t.PagesFetched)))
	fmt.Fprintf(sb, "Files:     %s downloaded (%s), %d failed, %d already stored\n",
		humanize.Comma(int64(t.FilesDownloaded)), formatBytes(t.BytesDownloaded), t.FilesFailed, t.DedupHits)
	fmt.Fprintf(sb, "Keys:      %d\n", t.KeysFound)
	sb.WriteString("\n")
}

func (w *SimpleWriter) writeSites(sb *strings.Builder, report *model.RunReport) {
	sb.WriteString("SITES\n")
	sb.WriteString(strings.Repeat("-", 70))
	sb.WriteString("\n")

	if len(report.Sites) == 0 {
		sb.WriteString("  No seeds were crawled.\n\n")
		return
	}

	tw := tabwriter.NewWriter(sb, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "  STATE\tDOMAIN\tPAGES\tFILES\tKEYS\tFAILURES\tDURATION")
	for _, s := range report.Sites {
		state := string(s.State)
		if s.StoppedEarly {
			state += "*"
		}
		fmt.Fprintf(tw, "  %s\t%s\t%d\t%d\t%d\t%d\t%s\n",
			state, siteName(s), s.PagesFetched, s.FilesDownloaded, s.KeysFound, s.FailureCount(), formatDuration(s.Duration()))
	}
	_ = tw.Flush()

	for _, s := range report.Sites {
		if s.State == model.SiteAborted && s.AbortReason != "" {
			fmt.Fprintf(sb, "  %s aborted: %s\n", siteName(s), s.AbortReason)
		}
	}
	if slices.ContainsFunc(report.Sites, func(s model.SiteReport) bool { return s.StoppedEarly }) {
		sb.WriteString("  * time budget ended the crawl with pages left in the queue\n")
	}
	sb.WriteString("\n")
}

func (w *SimpleWriter) writeFailures(sb *strings.Builder, report *model.RunReport) {
	if report.Totals.FailureCount() == 0 {
		return
	}

	sb.WriteString("FAILURES\n")
	sb.WriteString(strings.Repeat("-", 70))
	sb.WriteString("\n")
	for _, kind := range sortedKinds(report.Totals.Failures) {
		fmt.Fprintf(sb, "  %-18s %d\n", kind+":", report.Totals.Failures[kind])
	}
	sb.WriteString("\n")

	if !w.verbose {
		return
	}
	for _, s := range report.Sites {
		if s.FailureCount() == 0 {
			continue
		}
		fmt.Fprintf(sb, "  %s\n", siteName(s))
		for _, kind := range s.FailureKinds() {
			for _, f := range s.Failures[kind] {
				fmt.Fprintf(sb, "    [%s] %s: %s\n", kind, f.URL, f.Message)
			}
		}
	}
	sb.WriteString("\n")
}

func (w *SimpleWriter) writeFooter(sb *strings.Builder, report *model.RunReport) {
	st := report.Store
	sb.WriteString(strings.Repeat("=", 70))
	sb.WriteString("\n")
	fmt.Fprintf(sb, "Store: %d downloads (%d completed, %d failed), %d keys across %d domains\n",
		st.TotalDownloads, st.CompletedDownloads, st.FailedDownloads, st.TotalKeys, st.DomainsSeen)
}

func siteName(s model.SiteReport) string {
	if s.Domain != "" {
		return s.Domain
	}
	return s.Seed
}

func sortedKinds(m map[model.FailureKind]int) []model.FailureKind {
	kinds := make([]model.FailureKind, 0, len(m))
	for k, n := range m {
		if n > 0 {
			kinds = append(kinds, k)
		}
	}
	slices.Sort(kinds)
	return kinds
}

func formatBytes(n int64) string {
	if n <= 0 {
		return "0 B"
	}
	return humanize.Bytes(uint64(n))
}

func formatDuration(d time.Duration) string {
	switch {
	case d <= 0:
		return "0s"
	case d < time.Second:
		return d.Round(time.Millisecond).String()
	default:
		return d.Round(time.Second).String()
	}
}
