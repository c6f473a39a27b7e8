package crawler

import (
	"net/url"
	"path/filepath"
	"strings"

	"github.com/nao1215/onionharvest/internal/model"
)

// frontier is the FIFO of pages still to fetch for one site. URLs are marked
// visited when enqueued, so each normalized URL is fetched at most once and
// cyclic link graphs terminate.
//
// A frontier is owned by the goroutine coordinating its site and is not
// safe for concurrent use.
type frontier struct {
	domain   string
	maxDepth int

	// ignorePatterns are path globs never crawled.
	ignorePatterns []string

	// followPatterns, when set, restrict crawling to matching paths.
	followPatterns []string

	queue   []model.CrawlTarget
	visited map[string]struct{}
}

func newFrontier(domain string, maxDepth int, ignore, follow []string) *frontier {
	return &frontier{
		domain:         domain,
		maxDepth:       maxDepth,
		ignorePatterns: ignore,
		followPatterns: follow,
		visited:        make(map[string]struct{}),
	}
}

// push enqueues rawURL at depth unless it was seen before, is deeper than
// the limit, belongs to another site or is filtered by the site patterns.
// The seed is pushed with force so the patterns never reject it.
func (f *frontier) push(rawURL string, depth int, force bool) bool {
	if depth > f.maxDepth {
		return false
	}
	key := normalizeURL(rawURL)
	if _, seen := f.visited[key]; seen {
		return false
	}
	if !force && !f.allowed(key) {
		return false
	}
	f.visited[key] = struct{}{}
	f.queue = append(f.queue, model.CrawlTarget{URL: key, Domain: f.domain, Depth: depth})
	return true
}

// pop dequeues the oldest target.
func (f *frontier) pop() (model.CrawlTarget, bool) {
	if len(f.queue) == 0 {
		return model.CrawlTarget{}, false
	}
	t := f.queue[0]
	f.queue[0] = model.CrawlTarget{}
	f.queue = f.queue[1:]
	return t, true
}

// len returns the number of queued targets.
func (f *frontier) len() int {
	return len(f.queue)
}

// seen returns the number of distinct URLs ever enqueued.
func (f *frontier) seen() int {
	return len(f.visited)
}

// allowed applies the ignore and follow patterns to the URL path.
func (f *frontier) allowed(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	p := u.Path
	if p == "" {
		p = "/"
	}

	for _, pattern := range f.ignorePatterns {
		if matchPattern(pattern, p) {
			return false
		}
	}
	if len(f.followPatterns) == 0 {
		return true
	}
	for _, pattern := range f.followPatterns {
		if matchPattern(pattern, p) {
			return true
		}
	}
	return false
}

// normalizeURL lowercases scheme and host, drops the fragment and turns an
// empty path into "/", so equivalent spellings of a page share one key.
func normalizeURL(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}
	u.Fragment = ""
	u.RawFragment = ""
	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)
	if u.Path == "" {
		u.Path = "/"
	}
	return u.String()
}

// matchPattern reports whether path matches a glob pattern.
//
//   - "/admin/*" matches "/admin" and everything below it
//   - "*.pdf" matches any path ending in ".pdf"
//   - "/logout*" matches "/logout" and "/logout/now"
//   - other patterns use filepath.Match, and patterns without '/' are also
//     tried against the last path segment
func matchPattern(pattern, path string) bool {
	if prefix, ok := strings.CutSuffix(pattern, "/*"); ok {
		if path == prefix || strings.HasPrefix(path, prefix+"/") {
			return true
		}
	}
	if ext, ok := strings.CutPrefix(pattern, "*"); ok && strings.HasPrefix(ext, ".") && !strings.ContainsAny(ext, "*?[") {
		if strings.HasSuffix(path, ext) {
			return true
		}
	}
	if prefix, ok := strings.CutSuffix(pattern, "*"); ok && !strings.ContainsAny(prefix, "*?[") && strings.HasPrefix(prefix, "/") {
		if strings.HasPrefix(path, prefix) {
			return true
		}
	}

	if matched, err := filepath.Match(pattern, path); err == nil && matched {
		return true
	}
	if strings.Contains(pattern, "*") && !strings.Contains(pattern, "/") {
		if matched, err := filepath.Match(pattern, filepath.Base(path)); err == nil && matched {
			return true
		}
	}
	return false
}
