package config

import "errors"

// Configuration validation errors returned by Config.Validate.
var (
	// ErrNoTrackingFile is returned when the tracking document path is empty.
	ErrNoTrackingFile = errors.New("no tracking file specified")

	// ErrNoDownloadsDir is returned when the downloads directory is empty.
	ErrNoDownloadsDir = errors.New("no downloads directory specified")

	// ErrInvalidProxyMode is returned for a proxy mode other than
	// auto, direct, socks or embedded.
	ErrInvalidProxyMode = errors.New("invalid proxy mode")

	// ErrInvalidTimeout is returned when the timeout is not positive.
	ErrInvalidTimeout = errors.New("invalid timeout: must be positive")

	// ErrInvalidMaxAttempts is returned when fewer than one attempt is allowed.
	ErrInvalidMaxAttempts = errors.New("invalid retries: at least one attempt is required")

	// ErrInvalidBackoff is returned for negative delays or a jitter outside [0, 1].
	ErrInvalidBackoff = errors.New("invalid backoff: delays must be non-negative and jitter within [0, 1]")

	// ErrInvalidMaxDepth is returned when the crawl depth is negative.
	ErrInvalidMaxDepth = errors.New("invalid depth: must be non-negative")

	// ErrInvalidMaxPages is returned when the page limit is not positive.
	ErrInvalidMaxPages = errors.New("invalid max pages: must be positive")

	// ErrInvalidConcurrency is returned when the page concurrency is not positive.
	ErrInvalidConcurrency = errors.New("invalid concurrency: must be positive")

	// ErrInvalidWorkers is returned when the download worker count is not positive.
	ErrInvalidWorkers = errors.New("invalid download workers: must be positive")

	// ErrInvalidSites is returned when the concurrent site count is not positive.
	ErrInvalidSites = errors.New("invalid concurrent sites: must be positive")

	// ErrInvalidTimeBudget is returned when the time budget is negative.
	// Zero disables the budget.
	ErrInvalidTimeBudget = errors.New("invalid time budget: must be non-negative")

	// ErrConflictingReportFormats is returned when both --json and --markdown
	// are specified. Only one output format can be used at a time.
	ErrConflictingReportFormats = errors.New("conflicting report formats: --json and --markdown cannot be used together")

	// ErrInvalidCrawlDelay is returned when the crawl delay is negative.
	ErrInvalidCrawlDelay = errors.New("invalid crawl delay: must be non-negative")

	// ErrInvalidMaxBodySize is returned when the max body size is negative.
	ErrInvalidMaxBodySize = errors.New("invalid max body size: must be non-negative")
)

// Seed list errors.
var (
	// ErrInputNotFound is returned when the seed list file does not exist.
	ErrInputNotFound = errors.New("input list not found")

	// ErrMalformedInput is returned when the seed list is not a JSON array
	// of strings or an object with a "urls" array.
	ErrMalformedInput = errors.New("malformed input list")

	// ErrInputUnusable is returned when the seed list can be neither read
	// nor replaced by an example. It is a configuration-level fatal error.
	ErrInputUnusable = errors.New("input list is unusable and no example could be written")
)
