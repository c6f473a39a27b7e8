package extract

import "errors"

// ErrInvalidBase is returned by Extract when the base URL is not an absolute
// http or https URL.
var ErrInvalidBase = errors.New("base URL must be an absolute http(s) URL")
