package tracker

import "errors"

var (
	// ErrCorruptDocument is returned by Open when the tracking document exists
	// but is not valid JSON of the expected shape.
	ErrCorruptDocument = errors.New("tracking document is corrupt")

	// ErrClosed is returned by Flush after Close.
	ErrClosed = errors.New("tracking store is closed")
)
