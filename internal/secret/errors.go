package secret

import "errors"

var (
	// ErrNotReadable is returned by ReadText for binary formats that carry no
	// scannable text without a dedicated parser (archives, office documents).
	ErrNotReadable = errors.New("file format is not readable as text")

	// ErrBinaryContent is returned by ReadText when a file of unknown type does
	// not look like text.
	ErrBinaryContent = errors.New("file content is binary")
)
