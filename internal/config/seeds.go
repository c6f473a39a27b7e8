package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

// DefaultInputFile is the default seed list.
const DefaultInputFile = "urls.json"

// ExampleSeeds are written to a fresh seed list.
var ExampleSeeds = []string{
	"https://httpbin.org/",
	"https://jsonplaceholder.typicode.com/",
	"https://www.w3.org/WAI/ER/tests/xhtml/testfiles/resources/",
}

type seedDocument struct {
	URLs []string `json:"urls"`
}

// LoadSeeds reads the seed list at path. The document is either a JSON
// array of strings or an object with a "urls" array. Entries are normalized
// with NormalizeSeeds.
func LoadSeeds(path string) ([]string, error) {
	data, err := os.ReadFile(path) //nolint:gosec // user-provided input path is intentional
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrInputNotFound, path)
		}
		return nil, fmt.Errorf("failed to read input list %s: %w", path, err)
	}

	data = bytes.TrimSpace(data)
	var list []string
	if len(data) > 0 && data[0] == '[' {
		if err := json.Unmarshal(data, &list); err != nil {
			return nil, fmt.Errorf("%w: %s: %w", ErrMalformedInput, path, err)
		}
		return NormalizeSeeds(list), nil
	}

	var doc struct {
		URLs *[]string `json:"urls"`
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrMalformedInput, path, err)
	}
	if doc.URLs == nil {
		return nil, fmt.Errorf("%w: %s: expected an array or an object with a \"urls\" key", ErrMalformedInput, path)
	}
	return NormalizeSeeds(*doc.URLs), nil
}

// NormalizeSeeds trims entries, drops blank and "#" comment entries, and
// prefixes scheme-less entries with http://.
func NormalizeSeeds(raw []string) []string {
	seeds := make([]string, 0, len(raw))
	for _, s := range raw {
		s = strings.TrimSpace(s)
		if s == "" || strings.HasPrefix(s, "#") {
			continue
		}
		if !strings.Contains(s, "://") {
			s = "http://" + s
		}
		seeds = append(seeds, s)
	}
	return seeds
}

// WriteExampleSeeds writes the example seed list to path, replacing any
// existing file.
func WriteExampleSeeds(path string) error {
	data, err := json.MarshalIndent(seedDocument{URLs: ExampleSeeds}, "", "  ")
	if err != nil {
		return err
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0750); err != nil {
			return fmt.Errorf("failed to create directory for %s: %w", path, err)
		}
	}
	if err := os.WriteFile(path, append(data, '\n'), 0600); err != nil {
		return fmt.Errorf("failed to write example input list %s: %w", path, err)
	}
	return nil
}

// ExamplePath returns the sibling path where the example is written when
// the seed list at path is malformed: urls.json becomes urls.example.json.
func ExamplePath(path string) string {
	ext := filepath.Ext(path)
	if ext == "" {
		ext = ".json"
	}
	return strings.TrimSuffix(path, filepath.Ext(path)) + ".example" + ext
}

// ResolveSeeds loads the seed list at path for a run.
//
// A missing list is replaced by the example and the run is empty. An
// unreadable or malformed list is left alone; the example is written next to
// it and the run is empty. Only when the example cannot be written either is
// an error returned, wrapping ErrInputUnusable.
func ResolveSeeds(path string, logger *slog.Logger) ([]string, error) {
	if logger == nil {
		logger = slog.Default()
	}

	seeds, err := LoadSeeds(path)
	if err == nil {
		return seeds, nil
	}

	target := path
	if !errors.Is(err, ErrInputNotFound) {
		target = ExamplePath(path)
	}
	if werr := WriteExampleSeeds(target); werr != nil {
		return nil, fmt.Errorf("%w: %w", ErrInputUnusable, errors.Join(err, werr))
	}

	logger.Warn("input list not usable; wrote an example, nothing to crawl",
		"input", path,
		"example", target,
		"error", err,
	)
	return nil, nil
}
