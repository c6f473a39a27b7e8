package main

import (
	"errors"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/nao1215/onionharvest/internal/config"
	"github.com/nao1215/onionharvest/internal/database"
)

// NewHistoryCmd creates the history command.
func NewHistoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history [run-id]",
		Short: "List past runs or show the report of one run",
		Long: `History reads the run history database written by crawl.

Without arguments the most recent runs are listed. With a run ID, or a
unique prefix of one, the stored report of that run is printed.

Examples:
  # List the last 20 runs
  onionharvest history

  # Show one run as Markdown
  onionharvest history 3f1e2d4c --markdown

  # Show how one site did over time
  onionharvest history --site exampleonion.onion`,
		Args: cobra.MaximumNArgs(1),
		RunE: runHistoryCmd,
	}

	cmd.Flags().String("history-dir", "",
		"Directory of the run history database (default: XDG data directory)")
	cmd.Flags().IntP("limit", "l", database.DefaultListLimit,
		"Maximum number of entries listed")
	cmd.Flags().String("site", "",
		"List the runs of one domain")
	cmd.Flags().BoolP("json", "j", false,
		"Output JSON report (with a run ID)")
	cmd.Flags().BoolP("markdown", "m", false,
		"Output Markdown report (with a run ID)")

	return cmd
}

func runHistoryCmd(cmd *cobra.Command, args []string) error {
	flags := cmd.Flags()
	dir, err := flags.GetString("history-dir")
	if err != nil {
		return err
	}
	limit, err := flags.GetInt("limit")
	if err != nil {
		return err
	}
	site, err := flags.GetString("site")
	if err != nil {
		return err
	}
	jsonReport, err := flags.GetBool("json")
	if err != nil {
		return err
	}
	markdownReport, err := flags.GetBool("markdown")
	if err != nil {
		return err
	}
	if jsonReport && markdownReport {
		return config.ErrConflictingReportFormats
	}

	path := (&config.Config{HistoryDir: dir}).HistoryPath()
	db, err := database.Open(path, database.Options{CreateIfNotExists: false, EnableWAL: true})
	if err != nil {
		if errors.Is(err, database.ErrDatabaseNotFound) {
			fmt.Fprintf(cmd.OutOrStdout(), "No runs recorded yet (%s).\n", path)
			return nil
		}
		return err
	}
	defer db.Close()

	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	switch {
	case len(args) == 1:
		r, err := db.GetRun(ctx, args[0])
		if err != nil {
			return err
		}
		return writeReport(r, reportFormat(jsonReport, markdownReport), getVerboseFlag(cmd), "", out)
	case site != "":
		runs, err := db.SiteHistory(ctx, site, limit)
		if err != nil {
			return err
		}
		writeSiteHistory(out, site, runs)
		return nil
	default:
		runs, err := db.ListRuns(ctx, limit)
		if err != nil {
			return err
		}
		writeRunList(out, path, runs)
		return nil
	}
}

func writeRunList(w io.Writer, path string, runs []database.RunSummary) {
	if len(runs) == 0 {
		fmt.Fprintf(w, "No runs recorded yet (%s).\n", path)
		return
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "RUN\tSTARTED\tDURATION\tSITES\tABORTED\tPAGES\tFILES\tKEYS\tFAILURES")
	for _, r := range runs {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%d\t%s\t%s\t%d\t%d\n",
			shortID(r.ID), humanize.Time(r.StartedAt), r.Duration().Round(time.Second),
			r.Sites, r.SitesAborted, humanize.Comma(int64(r.Pages)), humanize.Comma(int64(r.Files)), r.Keys, r.Failures)
	}
	_ = tw.Flush()
}

func writeSiteHistory(w io.Writer, site string, runs []database.SiteRun) {
	if len(runs) == 0 {
		fmt.Fprintf(w, "No runs recorded for %s.\n", site)
		return
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "RUN\tSTARTED\tSTATE\tPAGES\tFILES\tDEDUP\tKEYS\tFAILURES")
	for _, r := range runs {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%d\t%d\t%d\t%d\n",
			shortID(r.RunID), humanize.Time(r.StartedAt), r.State,
			r.Pages, r.Files, r.DedupHits, r.Keys, r.Failures)
	}
	_ = tw.Flush()
}

// shortID returns the first block of a UUID, enough for GetRun's prefix match.
func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
