package secret

import (
	"regexp"
	"sort"
)

// tokenPattern is one structural token family.
type tokenPattern struct {
	kind    string
	pattern *regexp.Regexp
	// group selects the submatch used as the value; 0 means the whole match.
	group int
}

// TokenClassifier matches self-describing credentials that are recognizable
// without an assignment name.
type TokenClassifier struct {
	patterns []*tokenPattern
}

// NewTokenClassifier returns a TokenClassifier with the built-in catalog.
func NewTokenClassifier() *TokenClassifier {
	return &TokenClassifier{
		patterns: []*tokenPattern{
			{
				kind:    "jwt",
				pattern: regexp.MustCompile(`eyJ[a-zA-Z0-9_-]{5,}\.eyJ[a-zA-Z0-9_-]{5,}\.[a-zA-Z0-9_-]{10,}`),
			},
			{
				kind:    "bearer_token",
				pattern: regexp.MustCompile(`(?i)\bbearer\s+([a-zA-Z0-9_\-.=+/]{20,})`),
				group:   1,
			},
			{
				kind:    "aws_access_key",
				pattern: regexp.MustCompile(`\b(?:AKIA|ASIA|AGPA|AIDA|AROA|ANPA|ANVA)[A-Z0-9]{16}\b`),
			},
			{
				kind:    "private_key",
				pattern: regexp.MustCompile(`-----BEGIN (?:RSA |EC |DSA |OPENSSH |ENCRYPTED |PGP )?PRIVATE KEY(?: BLOCK)?-----`),
			},
			{
				kind:    "database_url",
				pattern: regexp.MustCompile(`(?i)\b(?:postgres(?:ql)?|mysql|mongodb(?:\+srv)?|redis|amqp)://[^:\s/@]+:([^@\s]+)@[^\s/'"<>]+`),
				group:   1,
			},
		},
	}
}

// Name returns the classifier name.
func (c *TokenClassifier) Name() string {
	return "token"
}

// Classify returns every structural token in text, ordered by position.
func (c *TokenClassifier) Classify(text string) []Match {
	type positioned struct {
		at    int
		match Match
	}
	var found []positioned
	for _, p := range c.patterns {
		for _, idx := range p.pattern.FindAllStringSubmatchIndex(text, -1) {
			start, end := idx[2*p.group], idx[2*p.group+1]
			if start < 0 {
				continue
			}
			found = append(found, positioned{
				at: idx[0],
				match: Match{
					Kind:    p.kind,
					Value:   text[start:end],
					Snippet: text[idx[0]:idx[1]],
				},
			})
		}
	}
	sort.SliceStable(found, func(i, j int) bool { return found[i].at < found[j].at })

	matches := make([]Match, 0, len(found))
	for _, f := range found {
		matches = append(matches, f.match)
	}
	return matches
}

var _ Classifier = (*TokenClassifier)(nil)
