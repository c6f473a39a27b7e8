package model

import "time"

// KeyFinding is a secret-like string discovered on a page or in a downloaded file.
//
// Findings are append-only. The tracking store does not deduplicate them;
// callers that rescan the same origin decide whether repeats are recorded.
type KeyFinding struct {
	// Domain is the sanitized domain the origin belongs to.
	Domain string `json:"-"`

	// Origin is the page URL or the local file path the finding came from.
	Origin string `json:"origin"`

	// Kind is the pattern name that matched (for example "password" or "api_key").
	Kind string `json:"kind"`

	// Snippet is the matched text.
	Snippet string `json:"snippet"`

	// Timestamp is the discovery time.
	Timestamp time.Time `json:"timestamp"`
}

// Value returns the part of the snippet after the first ':' or '=' separator,
// trimmed of surrounding whitespace and quotes. For snippets without a
// separator the whole snippet is returned.
func (f KeyFinding) Value() string {
	s := f.Snippet
	for i, r := range s {
		if r == ':' || r == '=' {
			s = s[i+1:]
			break
		}
	}
	return trimValue(s)
}

func trimValue(s string) string {
	start, end := 0, len(s)
	for start < end && isTrimByte(s[start]) {
		start++
	}
	for end > start && isTrimByte(s[end-1]) {
		end--
	}
	return s[start:end]
}

func isTrimByte(b byte) bool {
	switch b {
	case ' ', '\t', '\r', '\n', '"', '\'':
		return true
	}
	return false
}
