package config

import (
	"maps"
	"net"
	"strings"
	"time"
)

// SiteConfig overrides crawl settings for one host. Zero fields inherit.
type SiteConfig struct {
	// Cookie is sent with every request, e.g. "name1=value1; name2=value2".
	Cookie string `yaml:"cookie,omitempty"`

	// Headers are added to every request. They merge with the defaults.
	Headers map[string]string `yaml:"headers,omitempty"`

	Depth    int `yaml:"depth,omitempty"`
	MaxPages int `yaml:"maxPages,omitempty"`

	// TimeBudget replaces the per-site crawl budget, e.g. "90s".
	TimeBudget time.Duration `yaml:"timeBudget,omitempty"`

	// Extensions replaces the download allow-list for the site.
	Extensions []string `yaml:"extensions,omitempty"`

	// IgnorePatterns are path globs that are never crawled.
	IgnorePatterns []string `yaml:"ignorePatterns,omitempty"`

	// FollowPatterns, when set, restrict the crawl to matching paths.
	// The seed is always fetched.
	FollowPatterns []string `yaml:"followPatterns,omitempty"`

	// Proxy is the proxy mode for the site: direct, socks or auto.
	Proxy string `yaml:"proxy,omitempty"`
}

// File is the content of the .onionharvest configuration file.
type File struct {
	// Sites is keyed by host, with or without port.
	Sites map[string]SiteConfig `yaml:"sites,omitempty"`

	// Defaults apply to every site.
	Defaults SiteConfig `yaml:"defaults,omitempty"`
}

// Lookup returns the defaults overlaid with the entry for host. Hosts match
// case-insensitively; an entry without a port also matches host:port.
func (cf *File) Lookup(host string) SiteConfig {
	result := cf.Defaults
	result.Headers = maps.Clone(cf.Defaults.Headers)

	site, ok := cf.find(host)
	if !ok {
		return result
	}
	return result.overlay(site)
}

func (cf *File) find(host string) (SiteConfig, bool) {
	if sc, ok := cf.Sites[host]; ok {
		return sc, true
	}
	host = strings.ToLower(host)
	bare := host
	if h, _, err := net.SplitHostPort(host); err == nil {
		bare = h
	}
	for key, sc := range cf.Sites {
		key = strings.ToLower(key)
		if key == host || key == bare {
			return sc, true
		}
	}
	return SiteConfig{}, false
}

// overlay returns c with every non-zero field of o applied.
func (c SiteConfig) overlay(o SiteConfig) SiteConfig {
	if o.Cookie != "" {
		c.Cookie = o.Cookie
	}
	if len(o.Headers) > 0 {
		if c.Headers == nil {
			c.Headers = make(map[string]string, len(o.Headers))
		}
		maps.Copy(c.Headers, o.Headers)
	}
	if o.Depth != 0 {
		c.Depth = o.Depth
	}
	if o.MaxPages != 0 {
		c.MaxPages = o.MaxPages
	}
	if o.TimeBudget != 0 {
		c.TimeBudget = o.TimeBudget
	}
	if len(o.Extensions) > 0 {
		c.Extensions = o.Extensions
	}
	if len(o.IgnorePatterns) > 0 {
		c.IgnorePatterns = o.IgnorePatterns
	}
	if len(o.FollowPatterns) > 0 {
		c.FollowPatterns = o.FollowPatterns
	}
	if o.Proxy != "" {
		c.Proxy = o.Proxy
	}
	return c
}
