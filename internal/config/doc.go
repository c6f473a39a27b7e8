// Package config provides configuration structures and utilities for onionharvest.
// It defines the crawl, download and proxy settings, the optional YAML file
// with per-site overrides, and the JSON seed list loader.
package config
