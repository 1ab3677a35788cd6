// Package fingerprint canonicalizes URLs and derives the short hashes used as
// dedup keys for articles and topics.
package fingerprint

import (
	"net/url"
	"strconv"
	"strings"
	"unicode/utf16"
)

// NormalizeURL keeps scheme, host and path, dropping query, fragment and one
// trailing slash. Input that does not parse as an absolute URL is returned as is.
func NormalizeURL(raw string) string {
	trimmed := strings.TrimSpace(raw)
	parsed, err := url.Parse(trimmed)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return raw
	}

	path := strings.TrimSuffix(parsed.EscapedPath(), "/")
	return strings.ToLower(parsed.Scheme) + "://" + strings.ToLower(parsed.Host) + path
}

// Domain returns the lowercased host of raw without port and without a leading
// "www.". It returns "" when raw has no host.
func Domain(raw string) string {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return ""
	}
	parsed, err := url.Parse(trimmed)
	if err != nil {
		return ""
	}
	host := strings.ToLower(parsed.Hostname())
	return strings.TrimPrefix(host, "www.")
}

// Hash is a 32-bit rolling hash over UTF-16 code units (h = h*31 + c with int32
// wraparound) rendered as the base-36 digits of its absolute value.
func Hash(text string) string {
	var h int32
	for _, unit := range utf16.Encode([]rune(text)) {
		h = (h << 5) - h + int32(unit)
	}
	abs := int64(h)
	if abs < 0 {
		abs = -abs
	}
	return strconv.FormatInt(abs, 36)
}

// Article is the dedup key of an article: its whitespace-collapsed title plus
// the owning source's domain. Tracking parameters in the URL never reach it.
func Article(title, sourceDomain string) string {
	return Hash(strings.Join(strings.Fields(title), " ") + strings.ToLower(strings.TrimSpace(sourceDomain)))
}

// Topic is the cluster fingerprint of a topic title.
func Topic(title string) string {
	return Hash(strings.ToLower(strings.TrimSpace(title)))
}
