package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// NewRootCmd creates the root command for onionharvest.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "onionharvest",
		Short: "Crawl sites, harvest data files and find leaked keys",
		Long: `onionharvest crawls seed sites, including Tor hidden services, downloads
linked data files and scans pages and files for leaked credentials.

Every download is recorded in a tracking document (downloads.json) so that
repeated runs never fetch the same file twice. Keys found on a site can be
used to decrypt the CSV files downloaded from it.

By default .onion hosts are reached through the Tor SOCKS proxy at
127.0.0.1:9050 and other hosts directly. Use --proxy to change this.`,
		Version:       getVersion(),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().BoolP("verbose", "v", false, "Enable verbose logging")

	cmd.AddCommand(NewCrawlCmd())
	cmd.AddCommand(NewInitCmd())
	cmd.AddCommand(NewDecryptCmd())
	cmd.AddCommand(NewStatsCmd())
	cmd.AddCommand(NewHistoryCmd())
	cmd.AddCommand(NewVersionCmd())

	return cmd
}

// Execute runs the root command.
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
