package secret

import (
	"fmt"
	"time"

	"github.com/nao1215/onionharvest/internal/model"
)

// Scanner runs a set of classifiers over text.
// A Scanner is immutable after construction and safe for concurrent use.
type Scanner struct {
	classifiers []Classifier
	readLimit   int64
}

// Option configures a Scanner.
type Option func(*Scanner)

// WithClassifiers replaces the default classifiers.
func WithClassifiers(classifiers ...Classifier) Option {
	return func(s *Scanner) {
		s.classifiers = classifiers
	}
}

// WithReadLimit sets the maximum number of bytes read from a file by ScanFile.
func WithReadLimit(n int64) Option {
	return func(s *Scanner) {
		if n > 0 {
			s.readLimit = n
		}
	}
}

// NewScanner returns a Scanner using the assignment and token classifiers
// unless WithClassifiers is given.
func NewScanner(opts ...Option) *Scanner {
	s := &Scanner{
		classifiers: []Classifier{
			NewAssignmentClassifier(),
			NewTokenClassifier(),
		},
		readLimit: DefaultReadLimit,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Classifiers returns the names of the configured classifiers.
func (s *Scanner) Classifiers() []string {
	names := make([]string, 0, len(s.classifiers))
	for _, c := range s.classifiers {
		names = append(names, c.Name())
	}
	return names
}

// Scan returns the matches of every classifier. A kind and value pair is
// reported once per call even when it appears several times in text.
func (s *Scanner) Scan(text string) []Match {
	if text == "" {
		return nil
	}

	seen := make(map[string]struct{})
	var matches []Match
	for _, c := range s.classifiers {
		for _, m := range c.Classify(text) {
			key := m.Kind + "\x00" + m.Value
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
			matches = append(matches, m)
		}
	}
	return matches
}

// Findings scans text and converts the matches into key findings for domain.
// origin is the page URL or the local file path the text came from.
func (s *Scanner) Findings(domain, origin, text string, now time.Time) []model.KeyFinding {
	matches := s.Scan(text)
	if len(matches) == 0 {
		return nil
	}

	findings := make([]model.KeyFinding, 0, len(matches))
	for _, m := range matches {
		findings = append(findings, model.KeyFinding{
			Domain:    domain,
			Origin:    origin,
			Kind:      m.Kind,
			Snippet:   m.Snippet,
			Timestamp: now,
		})
	}
	return findings
}

// ScanFile reads the file at path with ReadText and returns its findings.
// The file path is used as origin.
func (s *Scanner) ScanFile(domain, path string, now time.Time) ([]model.KeyFinding, error) {
	text, err := ReadText(path, s.readLimit)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return s.Findings(domain, path, text, now), nil
}
