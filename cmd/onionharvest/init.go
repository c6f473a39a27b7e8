package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/nao1215/onionharvest/internal/config"
)

// NewInitCmd creates the init command.
func NewInitCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create a configuration file and an example seed list",
		Long: `Init creates a .onionharvest configuration file and an example urls.json
seed list in the current directory.

The configuration file documents the per-site settings: cookies, headers,
crawl depth, URL patterns to ignore or follow, and the proxy mode.

Examples:
  # Create .onionharvest and urls.json in the current directory
  onionharvest init

  # Create files at specific paths
  onionharvest init -o myconfig.yaml -i seeds.json

  # Force overwrite existing files
  onionharvest init -f`,
		Args: cobra.NoArgs,
		RunE: runInitCmd,
	}

	cmd.Flags().StringP("output", "o", config.DefaultConfigFile,
		"Output file path for the configuration")
	cmd.Flags().StringP("input", "i", config.DefaultInputFile,
		"Output file path for the example seed list (empty to skip)")
	cmd.Flags().BoolP("force", "f", false,
		"Overwrite existing files")

	return cmd
}

// runInitCmd executes the init command.
func runInitCmd(cmd *cobra.Command, _ []string) error {
	outputPath, err := cmd.Flags().GetString("output")
	if err != nil {
		return err
	}
	seedsPath, err := cmd.Flags().GetString("input")
	if err != nil {
		return err
	}
	force, err := cmd.Flags().GetBool("force")
	if err != nil {
		return err
	}

	if !force {
		for _, p := range []string{outputPath, seedsPath} {
			if p == "" {
				continue
			}
			if _, err := os.Stat(p); err == nil {
				return fmt.Errorf("file already exists: %s (use -f to overwrite)", p)
			}
		}
	}

	if dir := filepath.Dir(outputPath); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0750); err != nil {
			return fmt.Errorf("failed to create directory: %w", err)
		}
	}
	if err := os.WriteFile(outputPath, []byte(config.Template), 0600); err != nil {
		return fmt.Errorf("failed to write configuration file: %w", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Created configuration file: %s\n", outputPath)

	if seedsPath != "" {
		if err := config.WriteExampleSeeds(seedsPath); err != nil {
			return err
		}
		fmt.Fprintf(out, "Created seed list: %s\n", seedsPath)
	}

	fmt.Fprintln(out, "\nEdit the configuration file to set per-site options such as:")
	fmt.Fprintln(out, "  - Authentication cookies and headers")
	fmt.Fprintln(out, "  - Crawl depth and page limits")
	fmt.Fprintln(out, "  - URL patterns to ignore or follow")
	fmt.Fprintln(out, "  - Proxy mode (direct, socks or embedded)")

	return nil
}
