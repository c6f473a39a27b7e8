package fetch

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/nao1215/onionharvest/internal/model"
)

// Status is the terminal outcome of a fetch.
type Status int

const (
	// StatusSuccess means a 2xx response was read completely.
	StatusSuccess Status = iota
	// StatusHTTPError means the last response had a non-2xx status code.
	StatusHTTPError
	// StatusNetworkError means the last attempt failed below HTTP.
	StatusNetworkError
	// StatusTimeout means the last attempt exceeded the per-attempt timeout.
	StatusTimeout
	// StatusAborted means the caller's context ended or the sink failed.
	// Aborted requests are never retried.
	StatusAborted
)

// String returns the status name used in logs and metrics.
func (s Status) String() string {
	switch s {
	case StatusSuccess:
		return "success"
	case StatusHTTPError:
		return "http-error"
	case StatusNetworkError:
		return "network-error"
	case StatusTimeout:
		return "timeout"
	case StatusAborted:
		return "aborted"
	default:
		return "unknown"
	}
}

// Result describes a finished fetch.
type Result struct {
	// URL is the requested URL.
	URL string
	// FinalURL is the URL after redirects; empty when no response arrived.
	FinalURL string
	Status   Status
	// StatusCode is the HTTP status of the last response, 0 without one.
	StatusCode  int
	ContentType string
	// Body is the response body. Only Fetch fills it, and only on success.
	Body []byte
	// Truncated is set when Body was cut at the fetcher's size limit.
	Truncated bool
	// Size is the number of body bytes delivered by the last attempt.
	Size     int64
	Attempts int
	Elapsed  time.Duration
	// Err is the error of the last attempt; nil on success.
	Err error
}

// OK reports whether the fetch succeeded.
func (r Result) OK() bool {
	return r.Status == StatusSuccess
}

// FailureKind maps a failed result onto the crawl failure taxonomy.
func (r Result) FailureKind() model.FailureKind {
	switch r.Status {
	case StatusHTTPError:
		if r.StatusCode == http.StatusTooManyRequests {
			return model.FailureRateLimited
		}
		return model.FailurePermanentHTTP
	case StatusTimeout:
		return model.FailureTimeout
	case StatusAborted:
		switch {
		case errors.Is(r.Err, ErrSink):
			return model.FailureStorage
		case errors.Is(r.Err, context.DeadlineExceeded):
			return model.FailureTimeout
		}
		return model.FailureTransientNetwork
	default:
		if errors.Is(r.Err, ErrInvalidURL) {
			return model.FailureMalformedInput
		}
		return model.FailureTransientNetwork
	}
}

// Failure converts a failed result into a report entry.
func (r Result) Failure() model.Failure {
	msg := r.Status.String()
	if r.Err != nil {
		msg = r.Err.Error()
	}
	return model.Failure{
		Kind:    r.FailureKind(),
		URL:     r.URL,
		Message: msg,
	}
}
