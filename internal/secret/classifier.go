package secret

import (
	"regexp"
	"strings"
)

// Match is one secret-like string found by a Classifier.
type Match struct {
	// Kind names the pattern that matched, e.g. "api_key" or "jwt".
	Kind string
	// Value is the secret part of the match.
	Value string
	// Snippet is the full matched substring.
	Snippet string
}

// Classifier finds secret-like strings in text.
type Classifier interface {
	// Name identifies the classifier in logs.
	Name() string
	// Classify returns every match in text, in order of appearance.
	Classify(text string) []Match
}

// DefaultKeywords are the assignment names treated as sensitive.
var DefaultKeywords = []string{"password", "key", "passkey", "passwd", "pwd", "secret", "token"}

// minValueLength is the shortest value reported by AssignmentClassifier.
const minValueLength = 3

// placeholderValues are assignment values that never hold a real secret.
var placeholderValues = map[string]struct{}{
	"none": {},
	"null": {},
	`""`:   {},
	`''`:   {},
}

// AssignmentClassifier matches assignments such as `api_key=ABCD1234` or
// `"password": "hunter22"` where the assigned name contains one of its keywords.
// The kind of a match is the assigned name, lowercased.
type AssignmentClassifier struct {
	pattern *regexp.Regexp
}

// NewAssignmentClassifier returns a classifier for the given keywords.
// With no keywords, DefaultKeywords is used.
func NewAssignmentClassifier(keywords ...string) *AssignmentClassifier {
	if len(keywords) == 0 {
		keywords = DefaultKeywords
	}
	quoted := make([]string, 0, len(keywords))
	for _, kw := range keywords {
		kw = strings.TrimSpace(kw)
		if kw == "" {
			continue
		}
		quoted = append(quoted, regexp.QuoteMeta(kw))
	}

	// Group 1 is the assigned name, group 2 the value. An optional quote
	// between name and separator covers JSON and YAML documents.
	expr := `(?i)([a-z0-9_.\-]*(?:` + strings.Join(quoted, "|") + `)[a-z0-9_.\-]*)["']?\s*[:=]\s*["']?([^\s'"<>]+)`
	return &AssignmentClassifier{pattern: regexp.MustCompile(expr)}
}

// Name returns the classifier name.
func (c *AssignmentClassifier) Name() string {
	return "assignment"
}

// Classify returns every keyword assignment in text.
func (c *AssignmentClassifier) Classify(text string) []Match {
	var matches []Match
	for _, m := range c.pattern.FindAllStringSubmatch(text, -1) {
		name, value := m[1], m[2]
		if len(value) < minValueLength {
			continue
		}
		if _, ok := placeholderValues[strings.ToLower(value)]; ok {
			continue
		}
		matches = append(matches, Match{
			Kind:    strings.ToLower(strings.TrimSpace(name)),
			Value:   value,
			Snippet: m[0],
		})
	}
	return matches
}

var _ Classifier = (*AssignmentClassifier)(nil)
