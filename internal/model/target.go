package model

// CrawlTarget is one entry of a site's frontier.
// It is created when a link or seed is discovered and consumed once dequeued.
type CrawlTarget struct {
	// URL is the normalized absolute URL to fetch.
	URL string

	// Domain is the sanitized domain of the site being crawled.
	Domain string

	// Depth is the number of link hops from the seed. The seed has depth 0.
	Depth int
}
