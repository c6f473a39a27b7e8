package extract

import (
	"net/url"
	"strings"
)

// unknownDomain is the directory name used when a URL has no usable host.
const unknownDomain = "unknown"

// domainReplacer replaces characters that are not safe in directory names.
var domainReplacer = strings.NewReplacer(
	":", "_", "<", "_", ">", "_", `"`, "_", "/", "_", `\`, "_", "|", "_", "?", "_", "*", "_",
)

// Domain returns the storage key of rawURL: the lowercase host with its port
// joined by an underscore and unsafe characters replaced. It returns
// "unknown" when rawURL has no host.
//
//	Domain("http://Example.com:8080/a") == "example.com_8080"
func Domain(rawURL string) string {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return unknownDomain
	}
	domain := domainReplacer.Replace(strings.ToLower(u.Host))
	domain = strings.Trim(domain, ". ")
	if domain == "" {
		return unknownDomain
	}
	return domain
}

// SameSite reports whether a and b belong to the same site, i.e. share the
// same Domain. URLs without a host never match.
func SameSite(a, b string) bool {
	da := Domain(a)
	return da != unknownDomain && da == Domain(b)
}
