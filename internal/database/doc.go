// Package database keeps the history of crawl runs in SQLite.
//
// Every finished run stores its report once: one row in runs with the
// totals and the full JSON report, and one row per site in site_runs so
// that the history of a single site can be listed without decoding
// reports. The tracking document stays the source of truth for downloads
// and findings; nothing here is read back into a crawl.
//
// The database uses modernc.org/sqlite, a CGO-free driver, with WAL
// journaling and a single connection.
package database
