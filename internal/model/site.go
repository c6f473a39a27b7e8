package model

import (
	"sort"
	"time"
)

// SiteState is the terminal state of a site crawl.
type SiteState string

const (
	// SiteDone means the frontier was exhausted or a limit was reached.
	SiteDone SiteState = "done"

	// SiteAborted means an unrecoverable site-level failure stopped the crawl
	// before any page could be fetched (for example the proxy was unavailable).
	SiteAborted SiteState = "aborted"
)

// FailureKind groups failures in reports.
type FailureKind string

const (
	// FailureTransientNetwork covers connection resets, DNS errors and 5xx
	// responses that were still failing after all retries.
	FailureTransientNetwork FailureKind = "transient-network"

	// FailureTimeout is a per-attempt timeout that was never recovered.
	FailureTimeout FailureKind = "timeout"

	// FailurePermanentHTTP is a 4xx response other than 429.
	FailurePermanentHTTP FailureKind = "permanent-http"

	// FailureRateLimited is a 429 response that persisted through all retries.
	FailureRateLimited FailureKind = "rate-limited"

	// FailureStorage is a local disk write failure.
	FailureStorage FailureKind = "storage"

	// FailureProxyUnavailable means the anonymity network transport could not
	// be established for a site that requires it.
	FailureProxyUnavailable FailureKind = "proxy-unavailable"

	// FailureMalformedInput is an unusable seed URL or page body.
	FailureMalformedInput FailureKind = "malformed-input"
)

// Failure is one recorded failure.
type Failure struct {
	Kind    FailureKind `json:"kind"`
	URL     string      `json:"url"`
	Message string      `json:"message"`
}

// SiteReport summarizes the crawl of one seed.
type SiteReport struct {
	Seed   string    `json:"seed"`
	Domain string    `json:"domain"`
	State  SiteState `json:"state"`

	// AbortReason is set when State is SiteAborted.
	AbortReason string `json:"abort_reason,omitempty"`

	PagesFetched    int `json:"pages_fetched"`
	FilesDownloaded int `json:"files_downloaded"`
	FilesFailed     int `json:"files_failed"`
	DedupHits       int `json:"dedup_hits"`
	KeysFound       int `json:"keys_found"`

	// BytesDownloaded is the size of the files stored during this crawl.
	BytesDownloaded int64 `json:"bytes_downloaded"`

	// StoppedEarly is true when the time budget ended the crawl while the
	// frontier still had targets.
	StoppedEarly bool `json:"stopped_early,omitempty"`

	Failures map[FailureKind][]Failure `json:"failures,omitempty"`

	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
}

// NewSiteReport returns an empty report for a seed.
func NewSiteReport(seed, domain string) *SiteReport {
	return &SiteReport{
		Seed:      seed,
		Domain:    domain,
		Failures:  make(map[FailureKind][]Failure),
		StartedAt: time.Now(),
	}
}

// AddFailure records a failure under its kind.
func (r *SiteReport) AddFailure(kind FailureKind, url, message string) {
	if r.Failures == nil {
		r.Failures = make(map[FailureKind][]Failure)
	}
	r.Failures[kind] = append(r.Failures[kind], Failure{Kind: kind, URL: url, Message: message})
}

// FailureCount returns the total number of recorded failures.
func (r *SiteReport) FailureCount() int {
	n := 0
	for _, fs := range r.Failures {
		n += len(fs)
	}
	return n
}

// FailureKinds returns the kinds present in the report, sorted by name.
func (r *SiteReport) FailureKinds() []FailureKind {
	kinds := make([]FailureKind, 0, len(r.Failures))
	for k, fs := range r.Failures {
		if len(fs) > 0 {
			kinds = append(kinds, k)
		}
	}
	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })
	return kinds
}

// Abort marks the report aborted with a reason.
func (r *SiteReport) Abort(kind FailureKind, reason string) {
	r.State = SiteAborted
	r.AbortReason = reason
	r.AddFailure(kind, r.Seed, reason)
}

// Duration returns how long the site crawl took.
func (r *SiteReport) Duration() time.Duration {
	if r.FinishedAt.IsZero() {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}
