package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/nao1215/onionharvest/internal/config"
	"github.com/nao1215/onionharvest/internal/crawler"
	"github.com/nao1215/onionharvest/internal/database"
	"github.com/nao1215/onionharvest/internal/decrypt"
	"github.com/nao1215/onionharvest/internal/download"
	"github.com/nao1215/onionharvest/internal/extract"
	"github.com/nao1215/onionharvest/internal/fetch"
	"github.com/nao1215/onionharvest/internal/metrics"
	"github.com/nao1215/onionharvest/internal/model"
	"github.com/nao1215/onionharvest/internal/secret"
	"github.com/nao1215/onionharvest/internal/tor"
	"github.com/nao1215/onionharvest/internal/tracker"
)

// NewCrawlCmd creates the crawl command.
func NewCrawlCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "crawl [seed...]",
		Short: "Crawl seed sites and download linked data files",
		Long: `Crawl visits every seed site, follows same-site links up to the configured
depth and downloads linked files whose extension is on the allow-list.
Pages and downloaded files are scanned for credentials.

Seeds are read from the input list (urls.json by default) and from the
command line. A missing or malformed input list is replaced by an example
and nothing is crawled.

Examples:
  # Crawl the seeds in urls.json
  onionharvest crawl

  # Crawl extra seeds through the local Tor daemon
  onionharvest crawl --proxy socks exampleonion.onion

  # Decrypt downloaded CSV files afterwards and write a Markdown report
  onionharvest crawl --decrypt --markdown -o report.md

  # Expose Prometheus metrics while crawling
  onionharvest crawl --metrics-addr 127.0.0.1:9090`,
		Args: cobra.ArbitraryArgs,
		RunE: runCrawlCmd,
	}

	// Input and output files
	cmd.Flags().StringP("input", "i", config.DefaultInputFile,
		"Seed list: a JSON array of URLs or {\"urls\": [...]}")
	cmd.Flags().StringP("tracking", "f", config.DefaultTrackingFile,
		"Tracking document of downloads and findings")
	cmd.Flags().StringP("downloads", "D", config.DefaultDownloadsDir,
		"Directory for downloaded files (one subdirectory per domain)")

	// Proxy flags
	cmd.Flags().String("proxy", config.DefaultProxyMode,
		"Proxy mode: auto, direct, socks or embedded")
	cmd.Flags().StringP("proxy-addr", "e", config.DefaultTorProxyAddress,
		"Address of the external Tor SOCKS5 proxy")
	cmd.Flags().DurationP("tor-timeout", "T", config.DefaultTorStartupTimeout,
		"Timeout for embedded Tor startup")

	// Fetch behavior
	cmd.Flags().DurationP("timeout", "t", config.DefaultTimeout,
		"Timeout of each HTTP attempt")
	cmd.Flags().IntP("retries", "r", config.DefaultMaxAttempts,
		"Attempts per URL, including the first")
	cmd.Flags().Duration("crawl-delay", config.DefaultCrawlDelay,
		"Minimum delay between requests to the same host")

	// Crawl limits
	cmd.Flags().IntP("depth", "d", config.DefaultMaxDepth,
		"Maximum link distance from the seed")
	cmd.Flags().IntP("max-pages", "p", config.DefaultMaxPages,
		"Maximum number of pages fetched per site")
	cmd.Flags().IntP("concurrency", "n", config.DefaultPageConcurrency,
		"Page fetches in flight per site")
	cmd.Flags().Bool("global-concurrency", false,
		"Apply --concurrency across all sites instead of per site")
	cmd.Flags().IntP("workers", "w", config.DefaultDownloadWorkers,
		"Download worker pool size")
	cmd.Flags().IntP("sites", "b", config.DefaultMaxConcurrentSites,
		"Number of sites crawled at the same time")
	cmd.Flags().Duration("budget", config.DefaultTimeBudget,
		"Crawl time per site (0 disables the budget)")

	// Configuration file
	cmd.Flags().StringP("config", "c", "",
		"Configuration file path (default: .onionharvest in current or home directory)")

	// Report flags
	cmd.Flags().BoolP("json", "j", false,
		"Output JSON report (mutually exclusive with --markdown)")
	cmd.Flags().BoolP("markdown", "m", false,
		"Output Markdown report (mutually exclusive with --json)")
	cmd.Flags().StringP("output", "o", "",
		"Write report to specified file path (creates directories if needed)")

	// Post-processing and observability
	cmd.Flags().Bool("decrypt", false,
		"Decrypt downloaded CSV files with the keys found on their site")
	cmd.Flags().Bool("no-history", false,
		"Do not store the run in the run history database")
	cmd.Flags().String("history-dir", "",
		"Directory of the run history database (default: XDG data directory)")
	cmd.Flags().String("metrics-addr", "",
		"Expose Prometheus metrics on this address (e.g. 127.0.0.1:9090)")
	cmd.Flags().Bool("log-json", false,
		"Write logs as JSON lines")

	return cmd
}

// runCrawlCmd executes the crawl command.
func runCrawlCmd(cmd *cobra.Command, args []string) error {
	cfg, err := buildConfig(cmd, args)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("configuration error: %w", err)
	}

	logger := newLogger(cmd, cfg.Verbose, cfg.LogJSON)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	r, err := runCrawl(ctx, cfg, cmd.ErrOrStderr(), logger)
	if err != nil {
		return err
	}
	return writeReport(r, reportFormat(cfg.JSONReport, cfg.MarkdownReport), cfg.Verbose, cfg.ReportFile, cmd.OutOrStdout())
}

// buildConfig creates a Config from cobra command flags.
func buildConfig(cmd *cobra.Command, args []string) (*config.Config, error) {
	cfg := config.NewConfig()
	flags := cmd.Flags()

	var err error

	if cfg.InputFile, err = flags.GetString("input"); err != nil {
		return nil, err
	}
	if cfg.TrackingFile, err = flags.GetString("tracking"); err != nil {
		return nil, err
	}
	if cfg.DownloadsDir, err = flags.GetString("downloads"); err != nil {
		return nil, err
	}

	if cfg.ProxyMode, err = flags.GetString("proxy"); err != nil {
		return nil, err
	}
	if cfg.TorProxyAddress, err = flags.GetString("proxy-addr"); err != nil {
		return nil, err
	}
	if cfg.TorStartupTimeout, err = flags.GetDuration("tor-timeout"); err != nil {
		return nil, err
	}

	if cfg.Timeout, err = flags.GetDuration("timeout"); err != nil {
		return nil, err
	}
	if cfg.MaxAttempts, err = flags.GetInt("retries"); err != nil {
		return nil, err
	}
	if cfg.CrawlDelay, err = flags.GetDuration("crawl-delay"); err != nil {
		return nil, err
	}

	if cfg.MaxDepth, err = flags.GetInt("depth"); err != nil {
		return nil, err
	}
	if cfg.MaxPages, err = flags.GetInt("max-pages"); err != nil {
		return nil, err
	}
	if cfg.PageConcurrency, err = flags.GetInt("concurrency"); err != nil {
		return nil, err
	}
	if cfg.GlobalConcurrency, err = flags.GetBool("global-concurrency"); err != nil {
		return nil, err
	}
	if cfg.DownloadWorkers, err = flags.GetInt("workers"); err != nil {
		return nil, err
	}
	if cfg.MaxConcurrentSites, err = flags.GetInt("sites"); err != nil {
		return nil, err
	}
	if cfg.TimeBudget, err = flags.GetDuration("budget"); err != nil {
		return nil, err
	}

	if cfg.JSONReport, err = flags.GetBool("json"); err != nil {
		return nil, err
	}
	if cfg.MarkdownReport, err = flags.GetBool("markdown"); err != nil {
		return nil, err
	}
	if cfg.ReportFile, err = flags.GetString("output"); err != nil {
		return nil, err
	}

	if cfg.Decrypt, err = flags.GetBool("decrypt"); err != nil {
		return nil, err
	}
	noHistory, err := flags.GetBool("no-history")
	if err != nil {
		return nil, err
	}
	cfg.SaveHistory = !noHistory
	if cfg.HistoryDir, err = flags.GetString("history-dir"); err != nil {
		return nil, err
	}
	if cfg.MetricsAddr, err = flags.GetString("metrics-addr"); err != nil {
		return nil, err
	}
	if cfg.LogJSON, err = flags.GetBool("log-json"); err != nil {
		return nil, err
	}
	cfg.Verbose = getVerboseFlag(cmd)

	if cfg.ConfigFilePath, err = flags.GetString("config"); err != nil {
		return nil, err
	}
	cfg.SiteConfigs, err = loadSiteConfigs(cfg.ConfigFilePath)
	if err != nil {
		return nil, err
	}

	cfg.Seeds = config.NormalizeSeeds(args)
	return cfg, nil
}

// loadSiteConfigs loads the configuration file. A file the user named
// explicitly must exist; otherwise a missing file yields an empty config.
func loadSiteConfigs(explicitPath string) (*config.File, error) {
	path := config.FindConfigFile(explicitPath)
	if path == "" {
		if explicitPath != "" {
			return nil, fmt.Errorf("%w: %s", config.ErrConfigNotFound, explicitPath)
		}
		return &config.File{Sites: make(map[string]config.SiteConfig)}, nil
	}

	cf, err := config.LoadConfigFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load config file %s: %w", path, err)
	}
	return cf, nil
}

// runCrawl executes one run and returns its report. Errors are
// configuration-level failures; crawl failures are part of the report.
func runCrawl(ctx context.Context, cfg *config.Config, status io.Writer, logger *slog.Logger) (*model.RunReport, error) {
	seeds, err := collectSeeds(cfg, logger)
	if err != nil {
		return nil, err
	}

	store, err := tracker.Open(cfg.TrackingFile, tracker.WithLogger(logger))
	if err != nil {
		return nil, fmt.Errorf("failed to open tracking document: %w", err)
	}
	defer store.Close()

	history, err := openHistory(cfg, logger)
	if err != nil {
		return nil, err
	}
	if history != nil {
		defer history.Close()
	}

	runID := uuid.NewString()
	store.BeginRun(runID)
	started := time.Now()

	logger.Info("starting crawl",
		"run", runID,
		"seeds", len(seeds),
		"proxy", cfg.ProxyMode,
		"tracking", cfg.TrackingFile,
	)

	flushCtx, stopFlush := context.WithCancel(context.WithoutCancel(ctx))
	flushDone := make(chan error, 1)
	go func() {
		flushDone <- store.Run(flushCtx, cfg.FlushInterval)
	}()

	m, err := metrics.New(nil)
	if err != nil {
		stopFlush()
		<-flushDone
		return nil, fmt.Errorf("failed to create metrics: %w", err)
	}
	if cfg.MetricsAddr != "" {
		go func() {
			if err := m.Serve(ctx, cfg.MetricsAddr); err != nil {
				logger.Error("metrics endpoint stopped", "addr", cfg.MetricsAddr, "error", err)
			}
		}()
	}

	sites, crawlErr := crawlSeeds(ctx, cfg, seeds, store, m, logger)

	if crawlErr == nil && cfg.Decrypt {
		stats, err := decrypt.New(store, decrypt.WithLogger(logger)).Run(ctx)
		if err != nil {
			logger.Warn("decryption interrupted", "error", err)
		}
		fmt.Fprintf(status, "Decryption: %d decrypted, %d failed, %d skipped, %d without keys\n",
			stats.Success, stats.Failed, stats.Skipped, stats.NoKeys)
	}

	stopFlush()
	if err := <-flushDone; err != nil {
		logger.Error("tracking document flush failed", "path", store.Path(), "error", err)
	}
	if crawlErr != nil {
		return nil, crawlErr
	}

	r := model.NewRunReport(runID, started, sites, store.Stats())
	if err := store.Close(); err != nil {
		return nil, fmt.Errorf("failed to save tracking document: %w", err)
	}

	if history != nil {
		if err := history.SaveRun(context.WithoutCancel(ctx), r); err != nil {
			logger.Error("failed to save run history", "path", history.Path(), "error", err)
		}
	}
	return r, nil
}

// collectSeeds loads the input list and appends the command line seeds.
func collectSeeds(cfg *config.Config, logger *slog.Logger) ([]string, error) {
	var seeds []string
	if cfg.InputFile != "" {
		loaded, err := config.ResolveSeeds(cfg.InputFile, logger)
		if err != nil {
			return nil, err
		}
		seeds = loaded
	}
	return append(seeds, cfg.Seeds...), nil
}

// openHistory opens the run history. Failing to open the default location
// is logged and the run continues; an explicit --history-dir is fatal.
func openHistory(cfg *config.Config, logger *slog.Logger) (*database.HistoryDB, error) {
	if !cfg.SaveHistory {
		return nil, nil
	}
	db, err := database.Open(cfg.HistoryPath(), database.DefaultOptions())
	if err == nil {
		return db, nil
	}
	if cfg.HistoryDir != "" {
		return nil, fmt.Errorf("failed to open run history: %w", err)
	}
	logger.Warn("run history disabled", "path", cfg.HistoryPath(), "error", err)
	return nil, nil
}

// crawlSeeds wires the proxy, download and crawl components and crawls seeds.
func crawlSeeds(ctx context.Context, cfg *config.Config, seeds []string, store *tracker.Store, m *metrics.Metrics, logger *slog.Logger) ([]model.SiteReport, error) {
	if len(seeds) == 0 {
		logger.Warn("no seeds to crawl", "input", cfg.InputFile)
		return nil, nil
	}

	mode, err := tor.ParseMode(cfg.ProxyMode)
	if err != nil {
		return nil, fmt.Errorf("configuration error: %w", err)
	}
	factory, err := tor.NewFactory(mode, cfg.TorProxyAddress,
		tor.WithTorStartupTimeout(cfg.TorStartupTimeout),
		tor.WithLogger(logger),
	)
	if err != nil {
		return nil, fmt.Errorf("configuration error: %w", err)
	}
	defer func() {
		if err := factory.Close(); err != nil {
			logger.Error("failed to stop proxy", "error", err)
		}
	}()
	if err := factory.Start(ctx); err != nil {
		if errors.Is(err, context.Canceled) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to start proxy: %w", err)
	}

	scanner := secret.NewScanner()
	manager := download.NewManager(store, nil, cfg.DownloadsDir,
		download.WithWorkers(cfg.DownloadWorkers),
		download.WithScanner(scanner),
		download.WithLogger(logger),
		download.WithMetrics(m),
	)

	fetchOpts := []fetch.Option{
		fetch.WithTimeout(cfg.Timeout),
		fetch.WithMaxAttempts(cfg.MaxAttempts),
		fetch.WithBaseDelay(cfg.BaseDelay),
		fetch.WithMaxDelay(cfg.MaxDelay),
		fetch.WithJitter(cfg.Jitter),
		fetch.WithMaxBodySize(cfg.MaxBodySize),
	}
	if cfg.UserAgent != "" {
		fetchOpts = append(fetchOpts, fetch.WithUserAgent(cfg.UserAgent))
	}

	orch := crawler.New(factory, store, manager, scanner,
		crawler.WithExtractor(extract.New(cfg.Extensions)),
		crawler.WithSiteConfig(cfg.SiteConfigs),
		crawler.WithFetchOptions(fetchOpts...),
		crawler.WithCrawlDelay(cfg.CrawlDelay),
		crawler.WithMaxConcurrentSites(cfg.MaxConcurrentSites),
		crawler.WithLogger(logger),
		crawler.WithMetrics(m),
	)

	limits := crawler.Limits{
		MaxDepth:              cfg.MaxDepth,
		MaxPages:              cfg.MaxPages,
		TimeBudget:            cfg.TimeBudget,
		PageConcurrency:       cfg.PageConcurrency,
		GlobalPageConcurrency: cfg.GlobalConcurrency,
	}
	return orch.CrawlSites(ctx, seeds, limits), nil
}
