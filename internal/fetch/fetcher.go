package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/nao1215/onionharvest/internal/metrics"
)

const (
	// DefaultTimeout bounds a single attempt, including reading the body.
	DefaultTimeout = 30 * time.Second

	// DefaultMaxAttempts is the number of attempts per request.
	DefaultMaxAttempts = 3

	// DefaultBaseDelay is the wait before the first retry.
	DefaultBaseDelay = 2 * time.Second

	// DefaultMaxDelay caps the wait between attempts.
	DefaultMaxDelay = 30 * time.Second

	// DefaultJitter randomizes delays by up to 20% either way.
	DefaultJitter = 0.2

	// DefaultMaxBodySize is the most Fetch reads of a response body.
	// Longer bodies are truncated and the Result says so.
	DefaultMaxBodySize int64 = 10 * 1024 * 1024

	// DefaultUserAgent mimics Tor Browser so requests blend in.
	DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; rv:128.0) Gecko/20100101 Firefox/128.0"

	// acceptHeader prefers HTML but takes anything, since files are fetched too.
	acceptHeader = "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8"

	// errorBodyDrain is how much of an error response is read so the
	// connection can be reused.
	errorBodyDrain = 4 * 1024
)

// Fetcher performs GET requests with retries. It is safe for concurrent use.
type Fetcher struct {
	client      *http.Client
	policy      Policy
	timeout     time.Duration
	maxBodySize int64
	userAgent   string
	limiter     *HostLimiter
	logger      *slog.Logger
	metrics     *metrics.Metrics
	now         func() time.Time
}

// Option configures a Fetcher.
type Option func(*Fetcher)

// WithPolicy sets the retry policy.
func WithPolicy(p Policy) Option {
	return func(f *Fetcher) {
		f.policy = p
	}
}

// WithMaxAttempts sets the number of attempts per request.
func WithMaxAttempts(n int) Option {
	return func(f *Fetcher) {
		if n > 0 {
			f.policy.MaxAttempts = n
		}
	}
}

// WithBaseDelay sets the wait before the first retry.
func WithBaseDelay(d time.Duration) Option {
	return func(f *Fetcher) {
		f.policy.BaseDelay = d
	}
}

// WithMaxDelay caps the wait between attempts.
func WithMaxDelay(d time.Duration) Option {
	return func(f *Fetcher) {
		f.policy.MaxDelay = d
	}
}

// WithJitter sets the jitter fraction of retry delays.
func WithJitter(j float64) Option {
	return func(f *Fetcher) {
		f.policy.Jitter = j
	}
}

// WithTimeout sets the per-attempt timeout.
func WithTimeout(d time.Duration) Option {
	return func(f *Fetcher) {
		if d > 0 {
			f.timeout = d
		}
	}
}

// WithMaxBodySize sets the most Fetch reads of a body.
func WithMaxBodySize(n int64) Option {
	return func(f *Fetcher) {
		if n > 0 {
			f.maxBodySize = n
		}
	}
}

// WithUserAgent sets the User-Agent header.
func WithUserAgent(ua string) Option {
	return func(f *Fetcher) {
		f.userAgent = ua
	}
}

// WithHostDelay spaces requests to the same host by at least d.
func WithHostDelay(d time.Duration) Option {
	return func(f *Fetcher) {
		f.limiter = NewHostLimiter(d)
	}
}

// WithHostLimiter shares a limiter between fetchers.
func WithHostLimiter(l *HostLimiter) Option {
	return func(f *Fetcher) {
		f.limiter = l
	}
}

// WithLogger sets the logger for retry diagnostics.
func WithLogger(logger *slog.Logger) Option {
	return func(f *Fetcher) {
		f.logger = logger
	}
}

// WithMetrics counts every attempt.
func WithMetrics(m *metrics.Metrics) Option {
	return func(f *Fetcher) {
		f.metrics = m
	}
}

// New returns a Fetcher using client. Proxying, cookies and site headers are
// the client's concern.
func New(client *http.Client, opts ...Option) *Fetcher {
	if client == nil {
		client = http.DefaultClient
	}
	f := &Fetcher{
		client:      client,
		policy:      DefaultPolicy(),
		timeout:     DefaultTimeout,
		maxBodySize: DefaultMaxBodySize,
		userAgent:   DefaultUserAgent,
		logger:      slog.Default(),
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(f)
	}
	if f.policy.MaxAttempts < 1 {
		f.policy.MaxAttempts = 1
	}
	return f
}

// Policy returns the retry policy.
func (f *Fetcher) Policy() Policy {
	return f.policy
}

// Fetch retrieves rawURL and returns its body in the Result.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) Result {
	var (
		body      []byte
		truncated bool
	)
	res := f.do(ctx, rawURL, func(r io.Reader) error {
		b, err := io.ReadAll(io.LimitReader(r, f.maxBodySize+1))
		truncated = int64(len(b)) > f.maxBodySize
		if truncated {
			b = b[:f.maxBodySize]
		}
		body = b
		return err
	})
	if res.OK() {
		res.Body = body
		res.Truncated = truncated
		if truncated {
			f.logger.Debug("response body truncated", "url", rawURL, "limit", f.maxBodySize)
		}
	}
	return res
}

// Stream retrieves rawURL and hands the body to sink. The sink runs once per
// attempt and must discard what an earlier attempt wrote. An error returned
// by sink that did not come from reading the body aborts the request; the
// Result then carries it wrapped in ErrSink.
func (f *Fetcher) Stream(ctx context.Context, rawURL string, sink func(io.Reader) error) Result {
	return f.do(ctx, rawURL, sink)
}

func (f *Fetcher) do(ctx context.Context, rawURL string, sink func(io.Reader) error) Result {
	start := f.now()
	res := Result{URL: rawURL}
	defer func() {
		res.Elapsed = f.now().Sub(start)
	}()

	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		res.Status = StatusNetworkError
		res.Err = fmt.Errorf("%w: %q", ErrInvalidURL, rawURL)
		return res
	}

	backoff := f.policy.Start()
	for {
		if err := f.limiter.Wait(ctx, u.Host); err != nil {
			res.Status = StatusAborted
			res.Err = fmt.Errorf("waiting for host slot: %w", err)
			return res
		}

		res.Attempts++
		f.metrics.FetchAttempt()
		out := f.attempt(ctx, rawURL, sink, &res)
		if res.Status == StatusSuccess || res.Status == StatusAborted {
			return res
		}

		delay, retry := backoff.Next(out)
		if !retry {
			return res
		}
		f.logger.Debug("retrying request",
			"url", rawURL,
			"attempt", res.Attempts,
			"status", res.Status.String(),
			"status_code", res.StatusCode,
			"delay", delay,
			"error", res.Err,
		)
		if err := sleep(ctx, delay); err != nil {
			res.Status = StatusAborted
			res.Err = err
			return res
		}
	}
}

// attempt performs one request and stores its outcome in res.
func (f *Fetcher) attempt(ctx context.Context, rawURL string, sink func(io.Reader) error, res *Result) Outcome {
	actx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	res.StatusCode = 0
	res.Size = 0
	res.Err = nil

	req, err := http.NewRequestWithContext(actx, http.MethodGet, rawURL, nil)
	if err != nil {
		res.Status = StatusNetworkError
		res.Err = fmt.Errorf("%w: %w", ErrInvalidURL, err)
		return Outcome{Status: res.Status, Terminal: true}
	}
	req.Header.Set("User-Agent", f.userAgent)
	req.Header.Set("Accept", acceptHeader)

	resp, err := f.client.Do(req)
	if err != nil {
		res.Status, res.Err = classifyError(ctx, actx, err)
		return Outcome{Status: res.Status}
	}
	defer resp.Body.Close()

	res.StatusCode = resp.StatusCode
	res.ContentType = resp.Header.Get("Content-Type")
	if resp.Request != nil && resp.Request.URL != nil {
		res.FinalURL = resp.Request.URL.String()
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, errorBodyDrain)) //nolint:errcheck // draining for connection reuse
		res.Status = StatusHTTPError
		res.Err = fmt.Errorf("%w: %d %s", ErrHTTPStatus, resp.StatusCode, http.StatusText(resp.StatusCode))
		out := Outcome{Status: res.Status, StatusCode: resp.StatusCode}
		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode == http.StatusServiceUnavailable {
			out.RetryAfter = parseRetryAfter(resp.Header.Get("Retry-After"), f.now())
		}
		return out
	}

	body := &countingReader{r: resp.Body}
	if err := sink(body); err != nil {
		res.Size = body.n
		if body.err != nil {
			// The body broke off; the server or the network failed, not the sink.
			res.Status, res.Err = classifyError(ctx, actx, body.err)
			return Outcome{Status: res.Status}
		}
		res.Status = StatusAborted
		res.Err = fmt.Errorf("%w: %w", ErrSink, err)
		return Outcome{Status: res.Status}
	}

	res.Size = body.n
	res.Status = StatusSuccess
	return Outcome{Status: res.Status}
}

// classifyError maps a transport error to a status. ctx is the caller's
// context and actx the per-attempt one.
func classifyError(ctx, actx context.Context, err error) (Status, error) {
	if ctx.Err() != nil {
		return StatusAborted, fmt.Errorf("request cancelled: %w", ctx.Err())
	}
	if errors.Is(actx.Err(), context.DeadlineExceeded) || errors.Is(err, context.DeadlineExceeded) {
		return StatusTimeout, fmt.Errorf("attempt timed out: %w", err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return StatusTimeout, err
	}
	return StatusNetworkError, err
}

// countingReader counts delivered bytes and remembers the first read error
// other than io.EOF.
type countingReader struct {
	r   io.Reader
	n   int64
	err error
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	if err != nil && !errors.Is(err, io.EOF) && c.err == nil {
		c.err = err
	}
	return n, err
}

// sleep waits for d or until ctx ends.
func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

