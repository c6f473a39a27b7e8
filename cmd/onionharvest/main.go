// Package main provides the entry point for the onionharvest CLI.
//
// onionharvest crawls a list of seed sites, clearnet or .onion, downloads
// linked data files, scans pages and files for secrets and writes a run
// report.
//
// Usage:
//
//	onionharvest init
//	onionharvest crawl [seed...]
//	onionharvest decrypt
//
// See --help for all available options.
package main

func main() {
	Execute()
}
