// Package model defines the data shared between the crawler, the download
// manager and the tracking store: crawl targets, download records, key
// findings, the persisted tracking document and the per-site/per-run reports.
//
// The types in this package carry JSON tags because the tracking document and
// the JSON run report are written straight from them. Field names in those
// tags are part of the on-disk format and must not change.
package model
