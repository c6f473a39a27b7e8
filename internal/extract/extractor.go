package extract

import (
	"bytes"
	"fmt"
	"net/url"
	"path"
	"slices"
	"strings"

	"golang.org/x/net/html"
)

// DefaultExtensions is the allow-list of downloadable file extensions.
var DefaultExtensions = []string{".csv", ".txt", ".json", ".xlsx", ".xls", ".zip", ".rar", ".pdf", ".docx"}

// Links is the result of extracting one page.
type Links struct {
	// Pages are links to resources that may be crawled further.
	Pages []string
	// Files are links whose extension is on the allow-list.
	Files []string
}

// linkRole says what a reference can become.
type linkRole int

const (
	// roleAny references may be pages or files.
	roleAny linkRole = iota
	// roleFile references are only ever considered as files.
	roleFile
)

// referenceAttrs maps an element to the attribute holding its reference.
var referenceAttrs = map[string]struct {
	attr string
	role linkRole
}{
	"a":      {"href", roleAny},
	"area":   {"href", roleAny},
	"iframe": {"src", roleAny},
	"frame":  {"src", roleAny},
	"link":   {"href", roleFile},
	"embed":  {"src", roleFile},
	"source": {"src", roleFile},
	"img":    {"src", roleFile},
	"script": {"src", roleFile},
	"audio":  {"src", roleFile},
	"video":  {"src", roleFile},
	"track":  {"src", roleFile},
	"object": {"data", roleFile},
}

// skippedSchemes are reference prefixes that never point at a fetchable resource.
var skippedSchemes = []string{"javascript:", "mailto:", "tel:", "data:"}

// Extractor classifies links found in HTML documents.
// An Extractor is immutable and safe for concurrent use.
type Extractor struct {
	extensions map[string]struct{}
}

// New returns an Extractor that treats links ending in one of extensions as
// files. Extensions are matched case-insensitively, with or without the
// leading dot. With no extensions, DefaultExtensions is used.
func New(extensions []string) *Extractor {
	if len(extensions) == 0 {
		extensions = DefaultExtensions
	}
	e := &Extractor{extensions: make(map[string]struct{}, len(extensions))}
	for _, ext := range extensions {
		ext = strings.ToLower(strings.TrimSpace(ext))
		if ext == "" {
			continue
		}
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		e.extensions[ext] = struct{}{}
	}
	return e
}

// Extensions returns the allow-list, sorted.
func (e *Extractor) Extensions() []string {
	exts := make([]string, 0, len(e.extensions))
	for ext := range e.extensions {
		exts = append(exts, ext)
	}
	slices.Sort(exts)
	return exts
}

// IsFile reports whether the path of rawURL ends in an allow-listed extension.
func (e *Extractor) IsFile(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	_, ok := e.extensions[strings.ToLower(path.Ext(u.Path))]
	return ok
}

// Extract parses body as HTML and returns the page and file links it
// references, resolved against base.
func (e *Extractor) Extract(body []byte, base string) (Links, error) {
	baseURL, err := url.Parse(base)
	if err != nil || !isHTTP(baseURL) || baseURL.Host == "" {
		return Links{}, fmt.Errorf("%w: %q", ErrInvalidBase, base)
	}

	doc, err := html.Parse(bytes.NewReader(body))
	if err != nil {
		return Links{}, fmt.Errorf("failed to parse HTML: %w", err)
	}
	baseURL = documentBase(doc, baseURL)

	pages := make(map[string]struct{})
	files := make(map[string]struct{})

	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			if ref, ok := referenceAttrs[n.Data]; ok {
				e.classify(baseURL, getAttr(n, ref.attr), ref.role, pages, files)
			}
			// The download attribute may carry the file location itself.
			if dl := getAttr(n, "download"); dl != "" {
				e.classify(baseURL, dl, roleFile, pages, files)
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)

	return Links{
		Pages: sortedKeys(pages),
		Files: sortedKeys(files),
	}, nil
}

// classify resolves ref and adds it to the matching set.
func (e *Extractor) classify(base *url.URL, ref string, role linkRole, pages, files map[string]struct{}) {
	resolved := resolveURL(base, ref)
	if resolved == nil {
		return
	}
	link := resolved.String()
	if e.IsFile(link) {
		files[link] = struct{}{}
		return
	}
	if role == roleAny {
		pages[link] = struct{}{}
	}
}

// documentBase returns the URL set by the first <base href> of doc, resolved
// against the document URL, or docURL when there is none.
func documentBase(doc *html.Node, docURL *url.URL) *url.URL {
	var found *url.URL
	var walk func(*html.Node) bool
	walk = func(n *html.Node) bool {
		if n.Type == html.ElementNode && n.Data == "base" {
			if href := strings.TrimSpace(getAttr(n, "href")); href != "" {
				if u, err := url.Parse(href); err == nil {
					found = docURL.ResolveReference(u)
					return true
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			if walk(c) {
				return true
			}
		}
		return false
	}
	walk(doc)

	if found == nil || !isHTTP(found) {
		return docURL
	}
	return found
}

// resolveURL resolves href against base. It returns nil for empty, fragment
// only, non-http and unparsable references. The fragment is removed.
func resolveURL(base *url.URL, href string) *url.URL {
	href = strings.TrimSpace(href)
	if href == "" || strings.HasPrefix(href, "#") {
		return nil
	}
	lower := strings.ToLower(href)
	for _, scheme := range skippedSchemes {
		if strings.HasPrefix(lower, scheme) {
			return nil
		}
	}

	u, err := url.Parse(href)
	if err != nil {
		return nil
	}
	resolved := base.ResolveReference(u)
	if !isHTTP(resolved) || resolved.Host == "" {
		return nil
	}
	resolved.Fragment = ""
	resolved.RawFragment = ""
	return resolved
}

func isHTTP(u *url.URL) bool {
	scheme := strings.ToLower(u.Scheme)
	return scheme == "http" || scheme == "https"
}

// getAttr retrieves an attribute value from an HTML node.
func getAttr(n *html.Node, key string) string {
	for _, attr := range n.Attr {
		if attr.Key == key {
			return attr.Val
		}
	}
	return ""
}

func sortedKeys(set map[string]struct{}) []string {
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
