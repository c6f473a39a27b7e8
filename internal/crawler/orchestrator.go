package crawler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/nao1215/onionharvest/internal/config"
	"github.com/nao1215/onionharvest/internal/download"
	"github.com/nao1215/onionharvest/internal/extract"
	"github.com/nao1215/onionharvest/internal/fetch"
	"github.com/nao1215/onionharvest/internal/metrics"
	"github.com/nao1215/onionharvest/internal/model"
	"github.com/nao1215/onionharvest/internal/secret"
	"github.com/nao1215/onionharvest/internal/tor"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
)

// ClientFactory returns the HTTP client to use for a URL. *tor.Factory
// implements it.
type ClientFactory interface {
	ClientFor(rawURL string, site tor.SiteOptions) (*http.Client, error)
}

// KeyStore receives the findings made on pages. *tracker.Store implements it.
type KeyStore interface {
	RecordKeys(domain string, findings []model.KeyFinding)
}

// Downloader consumes batches of file links. *download.Manager implements it.
type Downloader interface {
	Serve(ctx context.Context, in <-chan download.Batch) <-chan download.Result
}

// Limits bound one crawl.
type Limits struct {
	// MaxDepth is the number of link hops followed from the seed.
	MaxDepth int

	// MaxPages caps the successfully fetched pages per site.
	MaxPages int

	// TimeBudget caps the time spent dequeuing new pages per site.
	// Zero means no budget.
	TimeBudget time.Duration

	// PageConcurrency is the number of page fetches in flight.
	PageConcurrency int

	// GlobalPageConcurrency shares PageConcurrency between all sites of a
	// CrawlSites call instead of granting it to each site.
	GlobalPageConcurrency bool
}

// DefaultLimits returns the limits used when none are configured.
func DefaultLimits() Limits {
	return Limits{
		MaxDepth:        config.DefaultMaxDepth,
		MaxPages:        config.DefaultMaxPages,
		TimeBudget:      config.DefaultTimeBudget,
		PageConcurrency: config.DefaultPageConcurrency,
	}
}

func (l Limits) normalized() Limits {
	if l.MaxDepth < 0 {
		l.MaxDepth = 0
	}
	if l.MaxPages < 1 {
		l.MaxPages = 1
	}
	if l.PageConcurrency < 1 {
		l.PageConcurrency = 1
	}
	return l
}

// Orchestrator crawls seed sites. Pages are fetched by the orchestrator and
// file links are handed to the Downloader, which runs its own worker pool.
type Orchestrator struct {
	factory   ClientFactory
	store     KeyStore
	downloads Downloader
	scanner   *secret.Scanner
	extractor *extract.Extractor
	sites     *config.File
	fetchOpts []fetch.Option
	hosts     *fetch.HostLimiter
	maxSites  int
	logger    *slog.Logger
	metrics   *metrics.Metrics
	now       func() time.Time

	mu   sync.Mutex
	seen map[findingKey]struct{}
}

// findingKey identifies a finding for in-run duplicate suppression.
type findingKey struct {
	origin, kind, snippet string
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithExtractor sets the link extractor.
func WithExtractor(e *extract.Extractor) Option {
	return func(o *Orchestrator) {
		if e != nil {
			o.extractor = e
		}
	}
}

// WithSiteConfig applies per-site cookies, headers, limits, patterns and
// proxy overrides from a configuration file.
func WithSiteConfig(f *config.File) Option {
	return func(o *Orchestrator) {
		o.sites = f
	}
}

// WithFetchOptions configures the page and file fetchers created per site.
func WithFetchOptions(opts ...fetch.Option) Option {
	return func(o *Orchestrator) {
		o.fetchOpts = append(o.fetchOpts, opts...)
	}
}

// WithCrawlDelay spaces requests to the same host by at least d, across all
// sites and the downloads.
func WithCrawlDelay(d time.Duration) Option {
	return func(o *Orchestrator) {
		o.hosts = fetch.NewHostLimiter(d)
	}
}

// WithMaxConcurrentSites bounds the sites crawled at once by CrawlSites.
func WithMaxConcurrentSites(n int) Option {
	return func(o *Orchestrator) {
		if n > 0 {
			o.maxSites = n
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *Orchestrator) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithMetrics records page and key counters.
func WithMetrics(m *metrics.Metrics) Option {
	return func(o *Orchestrator) {
		o.metrics = m
	}
}

// New creates an Orchestrator. scanner may be nil to skip secret scanning
// of pages.
func New(factory ClientFactory, store KeyStore, downloads Downloader, scanner *secret.Scanner, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		factory:   factory,
		store:     store,
		downloads: downloads,
		scanner:   scanner,
		extractor: extract.New(nil),
		maxSites:  config.DefaultMaxConcurrentSites,
		logger:    slog.Default(),
		now:       time.Now,
		seen:      make(map[findingKey]struct{}),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// CrawlSites crawls every seed, at most WithMaxConcurrentSites at a time.
// Reports are returned in seed order. A failing site never stops the others.
func (o *Orchestrator) CrawlSites(ctx context.Context, seeds []string, limits Limits) []model.SiteReport {
	limits = limits.normalized()
	reports := make([]model.SiteReport, len(seeds))

	var shared *semaphore.Weighted
	if limits.GlobalPageConcurrency {
		shared = semaphore.NewWeighted(int64(limits.PageConcurrency))
	}

	var g errgroup.Group
	g.SetLimit(o.maxSites)
	for i, seed := range seeds {
		o.logger.Debug("site state", "seed", seed, "state", PhaseQueued.String())
		g.Go(func() error {
			reports[i] = o.crawlSite(ctx, seed, limits, shared)
			return nil
		})
	}
	_ = g.Wait() //nolint:errcheck // site crawls never return errors
	return reports
}

// CrawlSite crawls a single seed with its own page semaphore.
func (o *Orchestrator) CrawlSite(ctx context.Context, seed string, limits Limits) model.SiteReport {
	return o.crawlSite(ctx, seed, limits.normalized(), nil)
}

// pageOutcome is what a page worker hands back to the site coordinator.
type pageOutcome struct {
	target   model.CrawlTarget
	result   fetch.Result
	links    extract.Links
	findings []model.KeyFinding
	parseErr error
}

// siteCrawl holds the state of one site crawl. Everything except the
// download aggregate is owned by the coordinating goroutine.
type siteCrawl struct {
	o         *Orchestrator
	report    *model.SiteReport
	phase     Phase
	logger    *slog.Logger
	fetcher   *fetch.Fetcher
	extractor *extract.Extractor
	front     *frontier
	sem       *semaphore.Weighted
}

func (s *siteCrawl) enter(p Phase) {
	if s.phase == p {
		return
	}
	s.logger.Debug("site state", "from", s.phase.String(), "to", p.String())
	s.phase = p
}

func (o *Orchestrator) crawlSite(ctx context.Context, seed string, limits Limits, shared *semaphore.Weighted) model.SiteReport {
	domain := extract.Domain(seed)
	report := model.NewSiteReport(seed, domain)
	report.StartedAt = o.now()
	s := &siteCrawl{
		o:      o,
		report: report,
		phase:  PhaseQueued,
		logger: o.logger.With("seed", seed, "domain", domain),
	}

	s.run(ctx, seed, limits, shared)

	report.FinishedAt = o.now()
	if report.State == "" {
		report.State = model.SiteDone
	}
	if report.State == model.SiteAborted {
		s.enter(PhaseAborted)
		s.logger.Warn("site aborted", "reason", report.AbortReason)
	} else {
		s.enter(PhaseDone)
		s.logger.Info("site finished",
			"pages", report.PagesFetched,
			"files", report.FilesDownloaded,
			"failed_files", report.FilesFailed,
			"dedup_hits", report.DedupHits,
			"keys", report.KeysFound,
			"failures", report.FailureCount(),
			"stopped_early", report.StoppedEarly,
			"elapsed", report.Duration(),
		)
	}
	return *report
}

func (s *siteCrawl) run(ctx context.Context, seed string, limits Limits, shared *semaphore.Weighted) {
	o := s.o
	u, err := url.Parse(seed)
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		s.report.Abort(model.FailureMalformedInput, fmt.Sprintf("%v: %q", ErrInvalidSeed, seed))
		return
	}

	var site config.SiteConfig
	if o.sites != nil {
		site = o.sites.Lookup(u.Host)
	}
	if site.Depth > 0 {
		limits.MaxDepth = site.Depth
	}
	if site.MaxPages > 0 {
		limits.MaxPages = site.MaxPages
	}
	if site.TimeBudget > 0 {
		limits.TimeBudget = site.TimeBudget
	}
	s.extractor = o.extractor
	if len(site.Extensions) > 0 {
		s.extractor = extract.New(site.Extensions)
	}

	client, err := o.factory.ClientFor(seed, tor.SiteOptions{
		Cookie:  site.Cookie,
		Headers: site.Headers,
		Mode:    site.Proxy,
	})
	if err != nil {
		kind := model.FailureMalformedInput
		if errors.Is(err, tor.ErrProxyUnavailable) {
			kind = model.FailureProxyUnavailable
		}
		s.report.Abort(kind, err.Error())
		return
	}

	opts := append([]fetch.Option{
		fetch.WithLogger(s.logger),
		fetch.WithMetrics(o.metrics),
		fetch.WithHostLimiter(o.hosts),
	}, o.fetchOpts...)
	s.fetcher = fetch.New(client, opts...)

	s.sem = shared
	if s.sem == nil {
		s.sem = semaphore.NewWeighted(int64(limits.PageConcurrency))
	}
	s.front = newFrontier(s.report.Domain, limits.MaxDepth, site.IgnorePatterns, site.FollowPatterns)
	s.front.push(seed, 0, true)

	s.crawl(ctx, limits)
}

// crawl runs the frontier loop and waits for the site's downloads.
func (s *siteCrawl) crawl(ctx context.Context, limits Limits) {
	// Downloads outlive the time budget: only ctx cancels them.
	batches := make(chan download.Batch)
	var agg downloadAggregate
	var collected sync.WaitGroup
	if s.o.downloads != nil {
		results := s.o.downloads.Serve(ctx, batches)
		collected.Add(1)
		go func() {
			defer collected.Done()
			for r := range results {
				agg.add(r)
			}
		}()
	}

	budgetCtx := ctx
	if limits.TimeBudget > 0 {
		var cancel context.CancelFunc
		budgetCtx, cancel = context.WithTimeout(ctx, limits.TimeBudget)
		defer cancel()
	}

	outcomes := make(chan pageOutcome)
	inflight := 0
	stop := false

	for {
		for !stop && s.front.len() > 0 && s.report.PagesFetched+inflight < limits.MaxPages {
			if budgetCtx.Err() != nil {
				stop = true
				break
			}
			s.enter(PhaseFetching)
			if err := s.sem.Acquire(budgetCtx, 1); err != nil {
				stop = true
				break
			}
			target, _ := s.front.pop()
			inflight++
			go func() {
				out := s.fetchPage(ctx, target)
				s.sem.Release(1)
				outcomes <- out
			}()
		}

		if inflight == 0 {
			break
		}
		out := <-outcomes
		inflight--
		s.enter(PhaseProcessingLinks)
		s.process(ctx, out, batches)
	}

	if stop && s.front.len() > 0 {
		s.report.StoppedEarly = true
		cause := ErrBudgetExhausted
		if ctx.Err() != nil {
			cause = ctx.Err()
		}
		s.logger.Info("crawl stopped early", "queued", s.front.len(), "reason", cause)
	}

	close(batches)
	collected.Wait()
	agg.mergeInto(s.report)
	s.logger.Debug("frontier finished", "seen", s.front.seen())
}

// fetchPage fetches one page, extracts its links and scans its text. It runs
// concurrently and touches no shared site state.
func (s *siteCrawl) fetchPage(ctx context.Context, target model.CrawlTarget) pageOutcome {
	out := pageOutcome{target: target}
	out.result = s.fetcher.Fetch(ctx, target.URL)
	s.o.metrics.PageFetched(out.result.Status.String())
	if !out.result.OK() {
		return out
	}

	base := target.URL
	if out.result.FinalURL != "" {
		base = out.result.FinalURL
	}
	out.links, out.parseErr = s.extractor.Extract(out.result.Body, base)

	if s.o.scanner != nil {
		out.findings = s.o.scanner.Findings(target.Domain, target.URL, string(out.result.Body), s.o.now().UTC())
	}
	return out
}

// process applies a page outcome: failures go into the report, page links
// into the frontier, file links to the downloader and findings to the store.
func (s *siteCrawl) process(ctx context.Context, out pageOutcome, batches chan<- download.Batch) {
	res := out.result
	if !res.OK() {
		f := res.Failure()
		s.report.AddFailure(f.Kind, f.URL, f.Message)
		s.logger.Warn("page fetch failed",
			"url", out.target.URL,
			"kind", string(f.Kind),
			"attempts", res.Attempts,
			"error", res.Err,
		)
		return
	}

	s.report.PagesFetched++
	s.logger.Debug("page fetched",
		"url", out.target.URL,
		"depth", out.target.Depth,
		"size", res.Size,
		"attempts", res.Attempts,
	)
	if out.parseErr != nil {
		s.report.AddFailure(model.FailureMalformedInput, out.target.URL, out.parseErr.Error())
	}

	added := 0
	for _, link := range out.links.Pages {
		if !extract.SameSite(link, out.target.URL) {
			continue
		}
		if s.front.push(link, out.target.Depth+1, false) {
			added++
		}
	}

	if len(out.links.Files) > 0 && s.o.downloads != nil {
		batch := download.Batch{
			Domain: out.target.Domain,
			URLs:   out.links.Files,
			Source: s.fetcher,
		}
		select {
		case batches <- batch:
		case <-ctx.Done():
		}
	}

	if fresh := s.o.dedupFindings(out.findings); len(fresh) > 0 {
		s.o.store.RecordKeys(out.target.Domain, fresh)
		s.report.KeysFound += len(fresh)
		for _, f := range fresh {
			s.o.metrics.KeysFound(f.Kind, 1)
		}
		s.logger.Info("keys found on page", "url", out.target.URL, "count", len(fresh))
	}

	if added > 0 || len(out.links.Files) > 0 {
		s.logger.Debug("links processed", "url", out.target.URL, "pages", added, "files", len(out.links.Files))
	}
}

// dedupFindings drops findings already recorded in this run.
func (o *Orchestrator) dedupFindings(findings []model.KeyFinding) []model.KeyFinding {
	if len(findings) == 0 {
		return nil
	}
	o.mu.Lock()
	defer o.mu.Unlock()

	fresh := make([]model.KeyFinding, 0, len(findings))
	for _, f := range findings {
		k := findingKey{origin: f.Origin, kind: f.Kind, snippet: f.Snippet}
		if _, dup := o.seen[k]; dup {
			continue
		}
		o.seen[k] = struct{}{}
		fresh = append(fresh, f)
	}
	return fresh
}

// downloadAggregate sums download results for a site. It is written by the
// collector goroutine and read after it finished.
type downloadAggregate struct {
	completed int
	failed    int
	dedupHits int
	keys      int
	bytes     int64
	failures  []model.Failure
}

func (a *downloadAggregate) add(r download.Result) {
	for _, rec := range r.Records {
		if rec.Completed() {
			a.completed++
			a.bytes += rec.Size
		} else {
			a.failed++
		}
	}
	a.dedupHits += r.DedupHits
	a.keys += len(r.Findings)
	a.failures = append(a.failures, r.Failures...)
}

func (a *downloadAggregate) mergeInto(r *model.SiteReport) {
	r.FilesDownloaded += a.completed
	r.FilesFailed += a.failed
	r.DedupHits += a.dedupHits
	r.KeysFound += a.keys
	r.BytesDownloaded += a.bytes
	for _, f := range a.failures {
		r.AddFailure(f.Kind, f.URL, f.Message)
	}
}
