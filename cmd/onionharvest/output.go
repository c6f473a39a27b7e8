package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	harvestlog "github.com/nao1215/onionharvest/internal/log"
	"github.com/nao1215/onionharvest/internal/model"
	"github.com/nao1215/onionharvest/internal/report"
)

// getVerboseFlag retrieves the verbose flag from the command or its parent.
func getVerboseFlag(cmd *cobra.Command) bool {
	verbose, err := cmd.Flags().GetBool("verbose")
	if err != nil {
		verbose, err = cmd.Root().PersistentFlags().GetBool("verbose")
		if err != nil {
			return false
		}
	}
	return verbose
}

// newLogger creates the redacting logger that writes to the command's stderr.
func newLogger(cmd *cobra.Command, verbose, jsonLines bool) *slog.Logger {
	if jsonLines {
		return harvestlog.NewSecureJSONLogger(cmd.ErrOrStderr(), verbose)
	}
	return harvestlog.NewSecureLogger(cmd.ErrOrStderr(), verbose)
}

// reportFormat maps the --json and --markdown flags to a format.
func reportFormat(jsonReport, markdownReport bool) report.Format {
	switch {
	case jsonReport:
		return report.FormatJSON
	case markdownReport:
		return report.FormatMarkdown
	default:
		return report.FormatText
	}
}

// writeReport writes r to path, or to fallback when path is empty.
// Report files are created with 0600 since they may name leaked keys.
func writeReport(r *model.RunReport, format report.Format, verbose bool, path string, fallback io.Writer) error {
	output := fallback
	if path != "" {
		if dir := filepath.Dir(path); dir != "" && dir != "." {
			if err := os.MkdirAll(dir, 0750); err != nil {
				return fmt.Errorf("failed to create output directory: %w", err)
			}
		}
		f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600) //nolint:gosec // user-provided output path
		if err != nil {
			return fmt.Errorf("failed to create output file: %w", err)
		}
		defer f.Close()
		output = f
	}

	var w report.Writer
	if format == report.FormatText {
		w = report.NewSimpleWriter(output, report.WithVerbose(verbose))
	} else {
		w = report.New(format, output, getVersion())
	}
	if _, err := w.Write(r); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}
	return nil
}
