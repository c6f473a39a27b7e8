package download

import (
	"crypto/md5" //nolint:gosec // used for naming, not security
	"encoding/hex"
	"net/url"
	"path"
	"path/filepath"
	"strings"
	"unicode/utf8"
)

// MaxNameLength is the maximum length of a stored file name in bytes.
const MaxNameLength = 255

// FileName derives the stored file name from a file URL: the last path
// segment, unescaped and sanitized. URLs whose last segment has no
// extension get "file_<md5 prefix>.unknown".
func FileName(rawURL string) string {
	name := ""
	if u, err := url.Parse(rawURL); err == nil {
		seg := path.Base(u.Path)
		if unescaped, err := url.PathUnescape(seg); err == nil {
			seg = unescaped
		}
		if seg != "/" && seg != "." && strings.Contains(seg, ".") {
			name = seg
		}
	}
	name = Sanitize(name)
	if !strings.Contains(name, ".") {
		return fallbackName(rawURL)
	}
	return name
}

func fallbackName(rawURL string) string {
	sum := md5.Sum([]byte(rawURL)) //nolint:gosec // used for naming, not security
	return "file_" + hex.EncodeToString(sum[:])[:8] + ".unknown"
}

// Sanitize replaces characters that are unsafe in file names on common
// file systems with '_', trims leading and trailing dots and spaces, and
// truncates the result to MaxNameLength bytes while keeping the extension.
func Sanitize(name string) string {
	var b strings.Builder
	b.Grow(len(name))
	for _, r := range name {
		switch {
		case r < 0x20 || r == 0x7f:
			b.WriteByte('_')
		case strings.ContainsRune(`<>:"/\|?*`, r):
			b.WriteByte('_')
		case r == utf8.RuneError:
			b.WriteByte('_')
		default:
			b.WriteRune(r)
		}
	}
	name = strings.Trim(b.String(), ". ")
	return truncateName(name, MaxNameLength)
}

// truncateName cuts name to maxLen bytes, keeping the extension.
func truncateName(name string, maxLen int) string {
	if len(name) <= maxLen {
		return name
	}
	ext := filepath.Ext(name)
	if len(ext) >= maxLen {
		ext = ""
	}
	return cutUTF8(name[:len(name)-len(ext)], maxLen-len(ext)) + ext
}

// cutUTF8 returns at most n bytes of s without splitting a UTF-8 sequence.
func cutUTF8(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}

// withSuffix inserts "_"+suffix before the extension of name, shortening
// the stem if needed so the suffix always survives.
func withSuffix(name, suffix string) string {
	ext := filepath.Ext(name)
	stem := strings.TrimSuffix(name, ext)
	suffix = "_" + suffix
	if len(ext)+len(suffix) >= MaxNameLength {
		ext = ""
	}
	return cutUTF8(stem, MaxNameLength-len(ext)-len(suffix)) + suffix + ext
}
