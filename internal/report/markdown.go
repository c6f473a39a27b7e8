package report

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/nao1215/markdown"
	"github.com/nao1215/markdown/mermaid/piechart"

	"github.com/nao1215/onionharvest/internal/model"
)

// MarkdownWriter outputs run reports as GitHub-flavored Markdown.
type MarkdownWriter struct {
	baseWriter
}

// NewMarkdownWriter creates a MarkdownWriter that outputs to the given writer.
func NewMarkdownWriter(output io.Writer) *MarkdownWriter {
	return &MarkdownWriter{baseWriter: newBaseWriter(output)}
}

// Write outputs the run report in Markdown format.
func (w *MarkdownWriter) Write(report *model.RunReport) (int, error) {
	md := markdown.NewMarkdown(w.output)

	w.writeHeader(md, report)
	w.writeAlert(md, report)
	w.writeSites(md, report)
	w.writeFailures(md, report)
	w.writeFooter(md)

	return len(md.String()), md.Build()
}

func (w *MarkdownWriter) writeHeader(md *markdown.Markdown, report *model.RunReport) {
	t := report.Totals

	md.H1("OnionHarvest Run Report")
	md.PlainText("")
	md.Table(markdown.TableSet{
		Header: []string{"Property", "Value"},
		Rows: [][]string{
			{"Run ID", "`" + report.RunID + "`"},
			{"Started", report.StartedAt.Format("2006-01-02 15:04:05 MST")},
			{"Duration", formatDuration(report.Duration())},
			{"Sites", fmt.Sprintf("%d (%d aborted)", t.Sites, t.SitesAborted)},
			{"Pages Fetched", humanize.Comma(int64(t.PagesFetched))},
			{"Files Downloaded", fmt.Sprintf("%s (%s)", humanize.Comma(int64(t.FilesDownloaded)), formatBytes(t.BytesDownloaded))},
			{"Files Failed", strconv.Itoa(t.FilesFailed)},
			{"Already Stored", strconv.Itoa(t.DedupHits)},
			{"Keys Found", strconv.Itoa(t.KeysFound)},
		},
	})
	md.PlainText("")
}

func (w *MarkdownWriter) writeAlert(md *markdown.Markdown, report *model.RunReport) {
	t := report.Totals
	switch {
	case t.Sites > 0 && t.SitesAborted == t.Sites:
		md.Cautionf("Every site was aborted. Check the proxy configuration and the seed list.")
	case t.SitesAborted > 0:
		md.Warningf("%d of %d site(s) were aborted before any page was fetched.", t.SitesAborted, t.Sites)
	case t.KeysFound > 0:
		md.Importantf("%d potential secret(s) were found.", t.KeysFound)
	case t.FailureCount() > 0:
		md.Note("The run completed with partial failures.")
	default:
		md.Tip("The run completed without failures.")
	}
	md.PlainText("")
}

func (w *MarkdownWriter) writeSites(md *markdown.Markdown, report *model.RunReport) {
	md.H2("Sites")
	md.PlainText("")

	if len(report.Sites) == 0 {
		md.PlainText("No seeds were crawled.")
		md.PlainText("")
		return
	}

	rows := make([][]string, len(report.Sites))
	for i, s := range report.Sites {
		state := stateText(s)
		rows[i] = []string{
			"`" + siteName(s) + "`",
			state,
			strconv.Itoa(s.PagesFetched),
			strconv.Itoa(s.FilesDownloaded),
			formatBytes(s.BytesDownloaded),
			strconv.Itoa(s.KeysFound),
			strconv.Itoa(s.FailureCount()),
			formatDuration(s.Duration()),
		}
	}
	md.Table(markdown.TableSet{
		Header: []string{"Site", "State", "Pages", "Files", "Size", "Keys", "Failures", "Duration"},
		Rows:   rows,
	})
	md.PlainText("")
}

func stateText(s model.SiteReport) string {
	switch {
	case s.State == model.SiteAborted:
		return "❌ aborted: " + truncateString(s.AbortReason, 40)
	case s.StoppedEarly:
		return "⚠️ stopped early"
	default:
		return "✅ done"
	}
}

func (w *MarkdownWriter) writeFailures(md *markdown.Markdown, report *model.RunReport) {
	if report.Totals.FailureCount() == 0 {
		return
	}

	md.H2("Failures")
	md.PlainText("")

	kinds := sortedKinds(report.Totals.Failures)
	rows := make([][]string, len(kinds))
	for i, kind := range kinds {
		rows[i] = []string{string(kind), strconv.Itoa(report.Totals.Failures[kind])}
	}
	md.Table(markdown.TableSet{
		Header: []string{"Kind", "Count"},
		Rows:   rows,
	})
	md.PlainText("")

	if len(kinds) > 1 {
		chart := piechart.NewPieChart(
			io.Discard,
			piechart.WithTitle("Failures by Kind"),
			piechart.WithShowData(true),
		)
		for _, kind := range kinds {
			chart.LabelAndIntValue(string(kind), uint64(report.Totals.Failures[kind]))
		}
		md.CodeBlocks(markdown.SyntaxHighlightMermaid, chart.String())
		md.PlainText("")
	}

	for _, s := range report.Sites {
		if s.FailureCount() == 0 {
			continue
		}
		var items []string
		for _, kind := range s.FailureKinds() {
			for _, f := range s.Failures[kind] {
				items = append(items, fmt.Sprintf("- [%s] %s: %s", kind, f.URL, truncateString(f.Message, 120)))
			}
		}
		md.Details(fmt.Sprintf("%s (%d)", siteName(s), len(items)), strings.Join(items, "\n"))
	}
	md.PlainText("")
}

func (w *MarkdownWriter) writeFooter(md *markdown.Markdown) {
	md.HorizontalRule()
	md.PlainText("")
	md.PlainTextf("*Report generated by [onionharvest](https://github.com/nao1215/onionharvest)*")
}

// truncateString truncates a string to maxLen bytes with an ellipsis.
func truncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return s[:maxLen]
	}
	return s[:maxLen-3] + "..."
}
