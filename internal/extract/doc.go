// Package extract finds page links and downloadable file links in HTML.
//
// Links are read from the attributes that can reference another resource
// (href, src, data and download), resolved against the page URL or its
// <base href>, stripped of fragments and split into two sets: file links,
// whose path extension is on the allow-list, and page links, which are
// candidates for further crawling. Both sets are sorted and deduplicated.
//
// The package does not decide which pages are worth visiting; same-site
// filtering and cross-page deduplication belong to the crawler.
package extract
