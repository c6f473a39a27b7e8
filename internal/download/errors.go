package download

import "errors"

var (
	// ErrNoSource is returned when a batch has no streamer and the manager
	// was created without a default one.
	ErrNoSource = errors.New("no download source configured")

	// ErrPlacement is returned when a finished download cannot be moved to
	// its final path.
	ErrPlacement = errors.New("failed to place downloaded file")
)
