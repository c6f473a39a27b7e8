package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/nao1215/onionharvest/internal/config"
	"github.com/nao1215/onionharvest/internal/decrypt"
	"github.com/nao1215/onionharvest/internal/tracker"
)

// NewDecryptCmd creates the decrypt command.
func NewDecryptCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "decrypt",
		Short: "Decrypt downloaded CSV files with the keys found on their site",
		Long: `Decrypt tries the keys recorded for each domain against the CSV files
downloaded from it. Each field is expected to be base64 encoded DES-ECB
ciphertext. Decrypted files are written to <downloads>/<domain>/decrypted/
and the outcome of every file is recorded in the tracking document.

Files that were already decrypted are skipped.`,
		Args: cobra.NoArgs,
		RunE: runDecryptCmd,
	}

	cmd.Flags().StringP("tracking", "f", config.DefaultTrackingFile,
		"Tracking document of downloads and findings")
	cmd.Flags().Bool("log-json", false, "Write logs as JSON lines")

	return cmd
}

// runDecryptCmd executes the decrypt command.
func runDecryptCmd(cmd *cobra.Command, _ []string) error {
	trackingPath, err := cmd.Flags().GetString("tracking")
	if err != nil {
		return err
	}
	jsonLogs, err := cmd.Flags().GetBool("log-json")
	if err != nil {
		return err
	}
	logger := newLogger(cmd, getVerboseFlag(cmd), jsonLogs)

	store, err := tracker.Open(trackingPath, tracker.WithLogger(logger))
	if err != nil {
		return fmt.Errorf("failed to open tracking document: %w", err)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	stats, runErr := decrypt.New(store, decrypt.WithLogger(logger)).Run(ctx)
	if err := store.Close(); err != nil {
		return fmt.Errorf("failed to save tracking document: %w", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Files considered: %d\n", stats.Total())
	fmt.Fprintf(out, "  decrypted:    %d\n", stats.Success)
	fmt.Fprintf(out, "  failed:       %d\n", stats.Failed)
	fmt.Fprintf(out, "  skipped:      %d\n", stats.Skipped)
	fmt.Fprintf(out, "  without keys: %d\n", stats.NoKeys)
	return runErr
}
