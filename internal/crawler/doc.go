// Package crawler coordinates the crawl of seed sites.
//
// # Architecture
//
// Each seed is crawled by one coordinating goroutine that owns the site's
// frontier and report. Page fetches run in worker goroutines bounded by a
// semaphore, either per site or shared by all sites of a run. Workers
// return their outcome to the coordinator, which feeds new page links back
// into the frontier, hands file links to the download manager over a
// channel and records findings in the tracking store.
//
// Downloads run on the download manager's own worker pool. A site report is
// finalized only after every batch it handed off has been processed.
//
// # Site life cycle
//
//	queued -> fetching <-> processing-links -> done | aborted
//
// A site is aborted only when it cannot be crawled at all: the seed is not
// an http(s) URL, or it needs the Tor proxy and none is available. Page and
// download failures are classified into the report and the crawl goes on.
//
// # Limits
//
// MaxDepth bounds link hops from the seed, MaxPages the pages fetched, and
// TimeBudget the time spent starting new fetches. When the budget runs out
// the in-flight fetches and downloads still complete and the report is
// marked StoppedEarly.
//
// # Usage
//
//	orch := crawler.New(factory, store, downloads, scanner,
//		crawler.WithSiteConfig(file),
//		crawler.WithMaxConcurrentSites(4),
//	)
//	reports := orch.CrawlSites(ctx, seeds, crawler.DefaultLimits())
package crawler
