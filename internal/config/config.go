package config

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/adrg/xdg"
	"github.com/nao1215/onionharvest/internal/tor"
)

// Default configuration values.
// The crawl and retry numbers follow the long-standing defaults of the
// harvester; the proxy values follow the standard Tor daemon setup.
const (
	// DefaultTorProxyAddress is the standard Tor SOCKS5 proxy address.
	// Port 9050 is the default for the Tor daemon's SOCKS port.
	DefaultTorProxyAddress = "127.0.0.1:9050"

	// DefaultProxyMode picks direct connections for clearnet hosts and
	// the SOCKS proxy for .onion hosts.
	DefaultProxyMode = "auto"

	// DefaultTimeout bounds a single HTTP attempt, not the whole fetch.
	DefaultTimeout = 30 * time.Second

	// DefaultMaxAttempts is the number of attempts per URL, including the first.
	DefaultMaxAttempts = 3

	// DefaultBaseDelay is the first backoff delay. It doubles per retry.
	DefaultBaseDelay = 2 * time.Second

	// DefaultMaxDelay caps a single backoff delay, Retry-After included.
	DefaultMaxDelay = 30 * time.Second

	// DefaultJitter is the fraction by which a backoff delay is randomized.
	DefaultJitter = 0.2

	// DefaultMaxDepth is the maximum link distance from the seed.
	// Depth 0 means only the seed page is fetched.
	DefaultMaxDepth = 3

	// DefaultMaxPages is the maximum number of pages fetched per site.
	DefaultMaxPages = 100

	// DefaultPageConcurrency is the number of in-flight page fetches per site.
	DefaultPageConcurrency = 10

	// DefaultDownloadWorkers is the size of the download worker pool.
	DefaultDownloadWorkers = 5

	// DefaultMaxConcurrentSites is the number of sites crawled at the same time.
	DefaultMaxConcurrentSites = 4

	// DefaultTimeBudget is the crawl time allowed per site.
	// When it runs out the site stops dequeuing and finishes in-flight work.
	DefaultTimeBudget = 5 * time.Minute

	// DefaultFlushInterval is how often the tracking document is persisted
	// while it has unsaved changes.
	DefaultFlushInterval = 5 * time.Second

	// DefaultCrawlDelay is the minimum delay between two requests to the
	// same host. Zero disables the per-host limiter.
	DefaultCrawlDelay = 0 * time.Second

	// DefaultMaxBodySize limits the page body read into memory.
	// Downloads are streamed to disk and are not bound by it.
	DefaultMaxBodySize = 10 * 1024 * 1024 // 10MB

	// DefaultTorStartupTimeout is the maximum time to wait for the embedded
	// Tor daemon to bootstrap.
	DefaultTorStartupTimeout = 3 * time.Minute

	// DefaultTrackingFile is the tracking document written by every run.
	DefaultTrackingFile = "downloads.json"

	// DefaultDownloadsDir is the root directory of downloaded files.
	DefaultDownloadsDir = "downloads"

	// DefaultHistoryFile is the SQLite run history file name.
	DefaultHistoryFile = "history.db"

	// AppName is the application name used for XDG directory paths.
	AppName = "onionharvest"
)

// DefaultExtensions is the allow-list of downloadable file extensions.
var DefaultExtensions = []string{".csv", ".txt", ".json", ".xlsx", ".xls", ".zip", ".rar", ".pdf", ".docx"}

// Config holds all configuration options for onionharvest.
// It is populated from CLI flags and passed through the application
// explicitly; nothing reads it from global state.
type Config struct {
	// InputFile is the JSON seed list (an array of URLs or {"urls": [...]}).
	InputFile string

	// Seeds holds the seeds given on the command line. They are crawled
	// after the seeds loaded from InputFile.
	Seeds []string

	// TrackingFile is the path of the tracking document.
	TrackingFile string

	// DownloadsDir is the root of downloaded files, one subdirectory per domain.
	DownloadsDir string

	// ProxyMode is one of auto, direct, socks or embedded.
	ProxyMode string

	// TorProxyAddress is the address of the external SOCKS5 proxy in
	// "host:port" format. Used by the socks and auto modes.
	TorProxyAddress string

	// TorStartupTimeout is the maximum time to wait for the embedded Tor
	// daemon. Only used in embedded mode.
	TorStartupTimeout time.Duration

	// Timeout is the timeout of each HTTP attempt.
	Timeout time.Duration

	// MaxAttempts is the number of attempts per URL, including the first.
	MaxAttempts int

	// BaseDelay and MaxDelay shape the exponential backoff between attempts.
	BaseDelay time.Duration
	MaxDelay  time.Duration

	// Jitter is the fraction by which each backoff delay is randomized.
	Jitter float64

	// MaxDepth is the maximum link distance from the seed.
	MaxDepth int

	// MaxPages is the maximum number of pages fetched per site.
	MaxPages int

	// PageConcurrency is the number of in-flight page fetches per site,
	// or across all sites when GlobalConcurrency is set.
	PageConcurrency int

	// GlobalConcurrency shares one page-fetch limit between all sites.
	GlobalConcurrency bool

	// DownloadWorkers is the size of the download worker pool.
	DownloadWorkers int

	// MaxConcurrentSites is the number of sites crawled at the same time.
	MaxConcurrentSites int

	// TimeBudget is the crawl time allowed per site. Zero means no limit.
	TimeBudget time.Duration

	// CrawlDelay is the minimum delay between two requests to the same host.
	CrawlDelay time.Duration

	// FlushInterval is how often the tracking document is persisted.
	FlushInterval time.Duration

	// UserAgent is the User-Agent header sent with HTTP requests.
	UserAgent string

	// MaxBodySize is the maximum page body size in bytes.
	MaxBodySize int64

	// Extensions is the allow-list of downloadable file extensions.
	Extensions []string

	// Verbose enables debug logging.
	Verbose bool

	// LogJSON switches log output to JSON lines.
	LogJSON bool

	// ConfigFilePath is the path to the YAML configuration file.
	// If empty, .onionharvest is searched in the current directory and
	// then in the user's home directory.
	ConfigFilePath string

	// SiteConfigs holds site-specific configurations loaded from the config file.
	SiteConfigs *File

	// JSONReport and MarkdownReport select the run report format.
	// They are mutually exclusive; the default is plain text.
	JSONReport     bool
	MarkdownReport bool

	// ReportFile is the output file path for the report. Stdout when empty.
	ReportFile string

	// Decrypt runs CSV decryption over the tracking document after the crawl.
	Decrypt bool

	// SaveHistory stores the run report in the SQLite run history.
	SaveHistory bool

	// HistoryDir is the directory of the run history database.
	// Defaults to the XDG data directory.
	HistoryDir string

	// MetricsAddr exposes Prometheus metrics on this address when set.
	MetricsAddr string
}

// NewConfig creates a new Config with default values.
func NewConfig() *Config {
	return &Config{
		InputFile:          DefaultInputFile,
		TrackingFile:       DefaultTrackingFile,
		DownloadsDir:       DefaultDownloadsDir,
		ProxyMode:          DefaultProxyMode,
		TorProxyAddress:    DefaultTorProxyAddress,
		TorStartupTimeout:  DefaultTorStartupTimeout,
		Timeout:            DefaultTimeout,
		MaxAttempts:        DefaultMaxAttempts,
		BaseDelay:          DefaultBaseDelay,
		MaxDelay:           DefaultMaxDelay,
		Jitter:             DefaultJitter,
		MaxDepth:           DefaultMaxDepth,
		MaxPages:           DefaultMaxPages,
		PageConcurrency:    DefaultPageConcurrency,
		DownloadWorkers:    DefaultDownloadWorkers,
		MaxConcurrentSites: DefaultMaxConcurrentSites,
		TimeBudget:         DefaultTimeBudget,
		CrawlDelay:         DefaultCrawlDelay,
		FlushInterval:      DefaultFlushInterval,
		MaxBodySize:        DefaultMaxBodySize,
		Extensions:         append([]string(nil), DefaultExtensions...),
		SaveHistory:        true,
	}
}

// XDGDataDir returns the XDG data directory for onionharvest.
// On Linux: ~/.local/share/onionharvest
// On macOS: ~/Library/Application Support/onionharvest
// On Windows: %LOCALAPPDATA%\onionharvest
func XDGDataDir() string {
	return filepath.Join(xdg.DataHome, AppName)
}

// XDGConfigDir returns the XDG config directory for onionharvest.
func XDGConfigDir() string {
	return filepath.Join(xdg.ConfigHome, AppName)
}

// HistoryPath returns the location of the run history database.
func (c *Config) HistoryPath() string {
	dir := c.HistoryDir
	if dir == "" {
		dir = XDGDataDir()
	}
	return filepath.Join(dir, DefaultHistoryFile)
}

// SiteConfig returns the merged site configuration for host.
// It is the zero value when no configuration file was loaded.
func (c *Config) SiteConfig(host string) SiteConfig {
	if c.SiteConfigs == nil {
		return SiteConfig{}
	}
	return c.SiteConfigs.Lookup(host)
}

// Validate checks if the configuration is valid.
// It returns the first problem found as a sentinel error.
// An empty seed list is valid: the run simply has nothing to do.
func (c *Config) Validate() error {
	if c.TrackingFile == "" {
		return ErrNoTrackingFile
	}
	if c.DownloadsDir == "" {
		return ErrNoDownloadsDir
	}
	if _, err := tor.ParseMode(c.ProxyMode); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidProxyMode, err)
	}
	if c.Timeout <= 0 {
		return ErrInvalidTimeout
	}
	if c.MaxAttempts < 1 {
		return ErrInvalidMaxAttempts
	}
	if c.BaseDelay < 0 || c.MaxDelay < 0 {
		return ErrInvalidBackoff
	}
	if c.Jitter < 0 || c.Jitter > 1 {
		return ErrInvalidBackoff
	}
	if c.MaxDepth < 0 {
		return ErrInvalidMaxDepth
	}
	if c.MaxPages < 1 {
		return ErrInvalidMaxPages
	}
	if c.PageConcurrency < 1 {
		return ErrInvalidConcurrency
	}
	if c.DownloadWorkers < 1 {
		return ErrInvalidWorkers
	}
	if c.MaxConcurrentSites < 1 {
		return ErrInvalidSites
	}
	if c.TimeBudget < 0 {
		return ErrInvalidTimeBudget
	}
	if c.JSONReport && c.MarkdownReport {
		return ErrConflictingReportFormats
	}
	if c.CrawlDelay < 0 {
		return ErrInvalidCrawlDelay
	}
	if c.MaxBodySize < 0 {
		return ErrInvalidMaxBodySize
	}
	return nil
}
