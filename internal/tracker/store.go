package tracker

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/nao1215/onionharvest/internal/model"
)

const (
	// DefaultFlushInterval is how often Run persists a dirty document.
	DefaultFlushInterval = 5 * time.Second

	// DefaultFlushFailureThreshold is the number of consecutive flush failures
	// after which the condition is logged at error level.
	DefaultFlushFailureThreshold = 3

	// DefaultFileMode is the permission of the tracking document. Findings are
	// secrets, so the file is readable by the owner only.
	DefaultFileMode os.FileMode = 0600
)

// Store is the concurrency-safe tracking store.
//
// Every mutation goes through mu. The document is monolithic, so there is
// nothing to shard; mutations are O(1) appends and readers hold the lock only
// long enough to copy what they need.
type Store struct {
	path             string
	logger           *slog.Logger
	perm             os.FileMode
	failureThreshold int
	now              func() time.Time

	mu      sync.Mutex
	doc     *model.TrackingDocument
	urls    map[string]struct{}
	version uint64
	saved   uint64
	closed  bool

	// writeMu serializes file writes so two flushes never interleave.
	// It is always acquired before mu.
	writeMu       sync.Mutex
	flushFailures int
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger used for flush diagnostics.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithFileMode sets the permission bits of the tracking document.
func WithFileMode(perm os.FileMode) Option {
	return func(s *Store) {
		s.perm = perm
	}
}

// WithFlushFailureThreshold sets how many consecutive flush failures are
// tolerated before they are reported at error level.
func WithFlushFailureThreshold(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.failureThreshold = n
		}
	}
}

// withClock replaces time.Now in tests.
func withClock(now func() time.Time) Option {
	return func(s *Store) {
		s.now = now
	}
}

// Open loads the tracking document at path.
//
// A missing or empty file yields an empty document; nothing is written until
// the first Flush. A file that cannot be decoded returns ErrCorruptDocument
// and is left untouched.
func Open(path string, opts ...Option) (*Store, error) {
	s := &Store{
		path:             path,
		logger:           slog.Default(),
		perm:             DefaultFileMode,
		failureThreshold: DefaultFlushFailureThreshold,
		now:              time.Now,
		urls:             make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}

	doc, err := readDocument(path)
	if err != nil {
		return nil, err
	}
	s.doc = doc

	// A hand-edited document may list the same URL twice. The first record
	// wins, matching RecordDownload.
	kept := make([]model.DownloadRecord, 0, len(doc.Downloads))
	for _, rec := range doc.Downloads {
		if rec.URL == "" {
			continue
		}
		if _, dup := s.urls[rec.URL]; dup {
			continue
		}
		s.urls[rec.URL] = struct{}{}
		kept = append(kept, rec)
	}
	doc.Downloads = kept

	return s, nil
}

// readDocument decodes the document strictly. Unknown fields are rejected so
// that a file in some other format is reported instead of being silently
// truncated to the fields this version knows about on the next flush.
func readDocument(path string) (*model.TrackingDocument, error) {
	data, err := os.ReadFile(path) //nolint:gosec // user-provided tracking path is intentional
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return model.NewTrackingDocument(), nil
		}
		return nil, fmt.Errorf("failed to read tracking document %s: %w", path, err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return model.NewTrackingDocument(), nil
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()

	var doc model.TrackingDocument
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrCorruptDocument, path, err)
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: %s: trailing data after document", ErrCorruptDocument, path)
	}

	doc.Normalize()
	return &doc, nil
}

// Path returns the location of the tracking document.
func (s *Store) Path() string {
	return s.path
}

// BeginRun records that a new run opened the document.
func (s *Store) BeginRun(runID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.doc.Session.Runs++
	s.doc.Session.LastRunID = runID
	s.version++
}

// HasDownload reports whether a record for exactly this URL exists.
func (s *Store) HasDownload(url string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.urls[url]
	return ok
}

// RecordDownload appends rec unless a record for the same URL already exists.
// The first write wins; later calls for the same URL are no-ops. It reports
// whether the record was appended.
func (s *Store) RecordDownload(rec model.DownloadRecord) bool {
	if rec.URL == "" {
		s.logger.Warn("ignoring download record without URL", "domain", rec.Domain)
		return false
	}
	if rec.Timestamp.IsZero() {
		rec.Timestamp = s.now().UTC()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.urls[rec.URL]; ok {
		return false
	}
	s.urls[rec.URL] = struct{}{}
	s.doc.Downloads = append(s.doc.Downloads, rec)
	s.version++
	return true
}

// RecordKeys appends findings under domain, creating the entry if needed.
// Findings are not deduplicated.
func (s *Store) RecordKeys(domain string, findings []model.KeyFinding) {
	if len(findings) == 0 {
		return
	}
	now := s.now().UTC()

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, f := range findings {
		f.Domain = domain
		if f.Timestamp.IsZero() {
			f.Timestamp = now
		}
		s.doc.Keys[domain] = append(s.doc.Keys[domain], f)
	}
	s.version++
}

// RecordDecryption stores the outcome of decrypting the file downloaded from url.
// A later call for the same URL replaces the earlier outcome.
func (s *Store) RecordDecryption(url string, rec model.DecryptionRecord) {
	if rec.Timestamp.IsZero() {
		rec.Timestamp = s.now().UTC()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.doc.Decryptions[url] = rec
	s.version++
}

// Decryption returns the recorded decryption outcome for url.
func (s *Store) Decryption(url string) (model.DecryptionRecord, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.doc.Decryptions[url]
	return rec, ok
}

// Stats returns a snapshot of the store counters.
func (s *Store) Stats() model.StoreStats {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := model.StoreStats{
		TotalDownloads: len(s.doc.Downloads),
	}
	domains := make(map[string]struct{})
	for _, rec := range s.doc.Downloads {
		if rec.Completed() {
			st.CompletedDownloads++
		} else {
			st.FailedDownloads++
		}
		domains[rec.Domain] = struct{}{}
	}
	for domain, findings := range s.doc.Keys {
		st.TotalKeys += len(findings)
		domains[domain] = struct{}{}
	}
	st.DomainsSeen = len(domains)
	return st
}

// Snapshot returns a deep copy of the current document.
func (s *Store) Snapshot() model.TrackingDocument {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.doc.Clone()
}

// Dirty reports whether there are mutations not yet flushed.
func (s *Store) Dirty() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.version != s.saved
}

// FlushFailures returns the number of consecutive failed flushes.
func (s *Store) FlushFailures() int {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.flushFailures
}

// Flush writes the current document to disk atomically.
//
// On failure the in-memory state is kept and remains dirty, so the next
// Flush retries with everything recorded so far.
func (s *Store) Flush() error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	prevFlush := s.doc.Session.LastFlush
	s.doc.Session.LastFlush = s.now().UTC()
	data, err := marshalDocument(s.doc)
	version := s.version
	s.mu.Unlock()

	if err == nil {
		err = writeFileAtomic(s.path, data, s.perm)
	}
	if err != nil {
		s.mu.Lock()
		s.doc.Session.LastFlush = prevFlush
		s.mu.Unlock()

		s.flushFailures++
		if s.flushFailures >= s.failureThreshold {
			s.logger.Error("tracking document flush keeps failing; crawling continues in memory",
				"path", s.path,
				"consecutive_failures", s.flushFailures,
				"error", err,
			)
		} else {
			s.logger.Warn("failed to flush tracking document",
				"path", s.path,
				"error", err,
			)
		}
		return fmt.Errorf("failed to flush tracking document: %w", err)
	}

	s.flushFailures = 0
	s.mu.Lock()
	s.saved = version
	s.mu.Unlock()
	return nil
}

// Run flushes the document every interval while it is dirty, until ctx is
// cancelled. A final flush is made on the way out and its error returned.
func (s *Store) Run(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		interval = DefaultFlushInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			if !s.Dirty() {
				return nil
			}
			return s.Flush()
		case <-ticker.C:
			if s.Dirty() {
				_ = s.Flush() //nolint:errcheck // logged by Flush, retried on the next tick
			}
		}
	}
}

// Close flushes pending changes and marks the store closed.
// Calling Close more than once is safe.
func (s *Store) Close() error {
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return nil
	}

	err := s.Flush()

	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return err
}
