package download

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nao1215/onionharvest/internal/fetch"
	"github.com/nao1215/onionharvest/internal/metrics"
	"github.com/nao1215/onionharvest/internal/model"
	"github.com/nao1215/onionharvest/internal/secret"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
)

// DefaultWorkers is the number of concurrent downloads.
const DefaultWorkers = 5

// tempPattern names in-progress files. They live next to their final
// location so the rename never crosses file systems.
const tempPattern = ".partial-*"

// Store is the part of the tracking store the manager writes to.
type Store interface {
	HasDownload(url string) bool
	RecordDownload(rec model.DownloadRecord) bool
	RecordKeys(domain string, findings []model.KeyFinding)
}

// Streamer fetches a URL and hands the body to sink, retrying as needed.
// *fetch.Fetcher implements it.
type Streamer interface {
	Stream(ctx context.Context, url string, sink func(io.Reader) error) fetch.Result
}

// Batch is a set of file URLs discovered on one site.
type Batch struct {
	// Domain is the sanitized domain the files are stored under.
	Domain string

	// URLs are the file links. Duplicates are ignored.
	URLs []string

	// Source fetches the files. When nil the manager's default is used.
	Source Streamer
}

// Result is the outcome of one Batch.
type Result struct {
	Domain string

	// Records holds one record per URL downloaded (or failed) by this batch,
	// in URL order. URLs skipped as duplicates have no record.
	Records []model.DownloadRecord

	// Failures are the failed downloads, classified.
	Failures []model.Failure

	// DedupHits is the number of URLs skipped because they were already
	// recorded or in flight.
	DedupHits int

	// Findings are the secrets found in the downloaded files.
	Findings []model.KeyFinding
}

// Completed returns the number of completed records.
func (r Result) Completed() int {
	n := 0
	for _, rec := range r.Records {
		if rec.Completed() {
			n++
		}
	}
	return n
}

// Stats are the manager's counters since creation.
type Stats struct {
	Completed int64
	Failed    int64
	DedupHits int64
}

// Manager downloads files into dir/<domain>/ with at most Workers
// transfers in flight across all batches.
type Manager struct {
	store   Store
	source  Streamer
	dir     string
	workers int
	scanner *secret.Scanner
	logger  *slog.Logger
	metrics *metrics.Metrics
	now     func() time.Time

	slots *semaphore.Weighted

	mu       sync.Mutex
	inflight map[string]struct{}
	claimed  map[string]string // final path -> fingerprint

	completed atomic.Int64
	failed    atomic.Int64
	dedupHits atomic.Int64
}

// Option configures a Manager.
type Option func(*Manager)

// WithWorkers sets the number of concurrent downloads.
func WithWorkers(n int) Option {
	return func(m *Manager) {
		if n > 0 {
			m.workers = n
		}
	}
}

// WithScanner scans every completed file for secrets.
func WithScanner(s *secret.Scanner) Option {
	return func(m *Manager) {
		m.scanner = s
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// WithMetrics records download counters.
func WithMetrics(mt *metrics.Metrics) Option {
	return func(m *Manager) {
		m.metrics = mt
	}
}

// NewManager creates a manager writing below dir. source is the default
// Streamer for batches that bring none and may be nil.
func NewManager(store Store, source Streamer, dir string, opts ...Option) *Manager {
	m := &Manager{
		store:    store,
		source:   source,
		dir:      dir,
		workers:  DefaultWorkers,
		logger:   slog.Default(),
		now:      time.Now,
		inflight: make(map[string]struct{}),
		claimed:  make(map[string]string),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.slots = semaphore.NewWeighted(int64(m.workers))
	return m
}

// Workers returns the worker pool size.
func (m *Manager) Workers() int {
	return m.workers
}

// Stats returns the counters accumulated so far.
func (m *Manager) Stats() Stats {
	return Stats{
		Completed: m.completed.Load(),
		Failed:    m.failed.Load(),
		DedupHits: m.dedupHits.Load(),
	}
}

// DownloadAll downloads urls for domain with the default source and
// returns the records written by this call.
func (m *Manager) DownloadAll(ctx context.Context, urls []string, domain string) []model.DownloadRecord {
	return m.Download(ctx, Batch{Domain: domain, URLs: urls}).Records
}

// Download processes one batch. URLs already in the store, or being
// downloaded by another batch, count as dedup hits. The rest are fetched
// concurrently, bounded by the worker pool.
func (m *Manager) Download(ctx context.Context, b Batch) Result {
	res := Result{Domain: b.Domain}

	src := b.Source
	if src == nil {
		src = m.source
	}

	urls := slices.Clone(b.URLs)
	slices.Sort(urls)
	urls = slices.Compact(urls)

	todo := make([]string, 0, len(urls))
	for _, u := range urls {
		if u == "" {
			continue
		}
		if !m.acquire(u) {
			res.DedupHits++
			m.dedupHits.Add(1)
			m.metrics.DedupHit()
			continue
		}
		todo = append(todo, u)
	}
	if len(todo) == 0 {
		return res
	}

	records := make([]model.DownloadRecord, len(todo))
	findings := make([][]model.KeyFinding, len(todo))
	failures := make([]*model.Failure, len(todo))

	var g errgroup.Group
	g.SetLimit(m.workers)
	for i, u := range todo {
		g.Go(func() error {
			defer m.release(u)
			if src == nil {
				records[i] = m.fail(b.Domain, u, ErrNoSource)
				failures[i] = &model.Failure{Kind: model.FailureMalformedInput, URL: u, Message: ErrNoSource.Error()}
				return nil
			}
			if err := m.slots.Acquire(ctx, 1); err != nil {
				failures[i] = m.cancelled(u, err)
				return nil
			}
			defer m.slots.Release(1)

			records[i], findings[i], failures[i] = m.downloadOne(ctx, src, b.Domain, u)
			return nil
		})
	}
	_ = g.Wait() //nolint:errcheck // workers never return errors

	for i := range todo {
		// cancelled downloads leave no record
		if records[i].URL != "" {
			res.Records = append(res.Records, records[i])
		}
		res.Findings = append(res.Findings, findings[i]...)
		if failures[i] != nil {
			res.Failures = append(res.Failures, *failures[i])
		}
	}
	return res
}

// Serve downloads every batch received on in until it is closed or ctx is
// cancelled, sending one Result per batch. Batches are processed
// concurrently; the worker pool is the only bound. The returned channel is
// closed when all batches are done.
func (m *Manager) Serve(ctx context.Context, in <-chan Batch) <-chan Result {
	out := make(chan Result)
	go func() {
		defer close(out)
		var wg sync.WaitGroup
		defer wg.Wait()
		for {
			select {
			case <-ctx.Done():
				return
			case b, ok := <-in:
				if !ok {
					return
				}
				wg.Add(1)
				go func() {
					defer wg.Done()
					r := m.Download(ctx, b)
					select {
					case out <- r:
					case <-ctx.Done():
					}
				}()
			}
		}
	}()
	return out
}

// acquire marks url as in flight unless it is already recorded or in flight.
func (m *Manager) acquire(url string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, busy := m.inflight[url]; busy {
		return false
	}
	if m.store.HasDownload(url) {
		return false
	}
	m.inflight[url] = struct{}{}
	return true
}

func (m *Manager) release(url string) {
	m.mu.Lock()
	delete(m.inflight, url)
	m.mu.Unlock()
}

// downloadOne streams url into a temporary file, places it and records the
// outcome. The temporary file never survives a failure.
func (m *Manager) downloadOne(ctx context.Context, src Streamer, domain, url string) (model.DownloadRecord, []model.KeyFinding, *model.Failure) {
	domainDir := filepath.Join(m.dir, domain)
	if err := os.MkdirAll(domainDir, 0750); err != nil {
		return m.failStorage(domain, url, err)
	}

	tmp, err := os.CreateTemp(domainDir, tempPattern)
	if err != nil {
		return m.failStorage(domain, url, err)
	}
	tmpPath := tmp.Name()
	cleanup := func() {
		_ = tmp.Close()         //nolint:errcheck // already failing
		_ = os.Remove(tmpPath) //nolint:errcheck // best effort
	}

	var (
		size int64
		sum  []byte
	)
	res := src.Stream(ctx, url, func(r io.Reader) error {
		if _, err := tmp.Seek(0, io.SeekStart); err != nil {
			return err
		}
		if err := tmp.Truncate(0); err != nil {
			return err
		}
		h := sha256.New()
		n, err := io.Copy(io.MultiWriter(tmp, h), r)
		size, sum = n, h.Sum(nil)
		return err
	})
	if !res.OK() {
		cleanup()
		if ctx.Err() != nil && !errors.Is(res.Err, fetch.ErrSink) {
			return model.DownloadRecord{}, nil, m.cancelled(url, res.Err)
		}
		f := res.Failure()
		rec := m.fail(domain, url, res.Err)
		m.logger.Warn("download failed",
			"url", url,
			"kind", string(f.Kind),
			"attempts", res.Attempts,
			"error", res.Err,
		)
		return rec, nil, &f
	}

	if err := tmp.Sync(); err != nil {
		cleanup()
		return m.failStorage(domain, url, err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath) //nolint:errcheck // best effort
		return m.failStorage(domain, url, err)
	}

	fingerprint := hex.EncodeToString(sum)
	finalPath, err := m.place(tmpPath, domainDir, FileName(url), fingerprint)
	if err != nil {
		_ = os.Remove(tmpPath) //nolint:errcheck // best effort
		return m.failStorage(domain, url, err)
	}

	rec := model.DownloadRecord{
		URL:         url,
		Domain:      domain,
		LocalPath:   finalPath,
		Size:        size,
		Fingerprint: fingerprint,
		Timestamp:   m.now().UTC(),
		Status:      model.DownloadCompleted,
	}
	m.store.RecordDownload(rec)
	m.completed.Add(1)
	m.metrics.Download(string(model.DownloadCompleted), size, true)
	m.logger.Debug("download completed", "url", url, "path", finalPath, "size", size, "fingerprint", fingerprint)

	return rec, m.scan(domain, finalPath), nil
}

// place moves the finished temporary file to a unique path in dir.
//
// The preferred name is tried first. If it holds the same content the
// existing file is reused and the temporary file dropped; if it holds other
// content the fingerprint prefix is appended, then a counter. Claims are
// made under the manager lock, so two workers never pick the same path.
func (m *Manager) place(tmpPath, dir, name, fingerprint string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i := 0; ; i++ {
		candidate := candidateName(name, fingerprint, i)
		target := filepath.Join(dir, candidate)

		owner, claimed := m.claimed[target]
		if !claimed {
			existing, err := fileFingerprint(target)
			switch {
			case errors.Is(err, os.ErrNotExist):
				if err := os.Rename(tmpPath, target); err != nil {
					return "", fmt.Errorf("%w: %w", ErrPlacement, err)
				}
				m.claimed[target] = fingerprint
				return target, nil
			case err != nil:
				return "", fmt.Errorf("%w: %w", ErrPlacement, err)
			}
			owner = existing
			m.claimed[target] = existing
		}
		if owner == fingerprint {
			if err := os.Remove(tmpPath); err != nil {
				return "", fmt.Errorf("%w: %w", ErrPlacement, err)
			}
			return target, nil
		}
	}
}

// candidateName returns the i-th name tried for a file: the plain name,
// then the fingerprint prefix, then the prefix and a counter.
func candidateName(name, fingerprint string, i int) string {
	switch i {
	case 0:
		return name
	case 1:
		return withSuffix(name, fingerprint[:8])
	default:
		return withSuffix(name, fmt.Sprintf("%s_%d", fingerprint[:8], i))
	}
}

// fileFingerprint returns the SHA-256 hex digest of the file at path.
func fileFingerprint(path string) (string, error) {
	f, err := os.Open(path) //nolint:gosec // path is built from the downloads dir
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// scan records the secrets found in a completed file.
func (m *Manager) scan(domain, path string) []model.KeyFinding {
	if m.scanner == nil {
		return nil
	}
	findings, err := m.scanner.ScanFile(domain, path, m.now().UTC())
	if err != nil {
		if errors.Is(err, secret.ErrNotReadable) || errors.Is(err, secret.ErrBinaryContent) {
			m.logger.Debug("skipping secret scan", "path", path, "reason", err)
		} else {
			m.logger.Warn("secret scan failed", "path", path, "error", err)
		}
		return nil
	}
	if len(findings) == 0 {
		return nil
	}
	m.store.RecordKeys(domain, findings)
	for _, f := range findings {
		m.metrics.KeysFound(f.Kind, 1)
	}
	m.logger.Info("keys found in file", "path", path, "count", len(findings))
	return findings
}

// cancelled reports a download stopped by the caller's context. Nothing is
// written to the store, so a later run tries the URL again.
func (m *Manager) cancelled(url string, cause error) *model.Failure {
	m.logger.Debug("download cancelled", "url", url, "error", cause)
	return &model.Failure{Kind: model.FailureTransientNetwork, URL: url, Message: cause.Error()}
}

func (m *Manager) fail(domain, url string, cause error) model.DownloadRecord {
	msg := "unknown error"
	if cause != nil {
		msg = cause.Error()
	}
	rec := model.DownloadRecord{
		URL:       url,
		Domain:    domain,
		Timestamp: m.now().UTC(),
		Status:    model.DownloadFailed,
		Error:     msg,
	}
	m.store.RecordDownload(rec)
	m.failed.Add(1)
	m.metrics.Download(string(model.DownloadFailed), 0, false)
	return rec
}

func (m *Manager) failStorage(domain, url string, err error) (model.DownloadRecord, []model.KeyFinding, *model.Failure) {
	m.logger.Error("cannot store download", "url", url, "error", err)
	rec := m.fail(domain, url, err)
	return rec, nil, &model.Failure{Kind: model.FailureStorage, URL: url, Message: err.Error()}
}
