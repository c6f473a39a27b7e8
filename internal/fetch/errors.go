package fetch

import "errors"

var (
	// ErrInvalidURL is returned in Result.Err when the URL cannot be requested.
	ErrInvalidURL = errors.New("invalid URL")

	// ErrSink wraps an error returned by a Stream sink that was not caused by
	// reading the response body, typically a storage failure.
	ErrSink = errors.New("sink failed")

	// ErrHTTPStatus is returned in Result.Err for non-2xx responses.
	ErrHTTPStatus = errors.New("unexpected HTTP status")
)
