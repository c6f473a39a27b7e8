package crawler

import "errors"

var (
	// ErrInvalidSeed is reported when a seed is not an absolute http(s) URL.
	ErrInvalidSeed = errors.New("invalid seed URL")

	// ErrBudgetExhausted is logged when a site's time budget ends the crawl.
	ErrBudgetExhausted = errors.New("time budget exhausted")
)
