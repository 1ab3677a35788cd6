// Package language normalizes declared language codes and detects the
// language of article text.
package language

import "strings"

// Default is assumed for sources and articles that declare nothing usable.
const Default = "en"

// Code reduces a declared tag such as "EN_us" to its lowercase primary
// subtag ("en"). It returns "" unless the subtag is two or three ASCII letters.
func Code(raw string) string {
	tag := strings.ToLower(strings.TrimSpace(raw))
	if tag == "" {
		return ""
	}
	if cut := strings.IndexAny(tag, "-_"); cut >= 0 {
		tag = tag[:cut]
	}
	if len(tag) < 2 || len(tag) > 3 {
		return ""
	}
	for _, r := range tag {
		if r < 'a' || r > 'z' {
			return ""
		}
	}
	return tag
}

// CodeOr returns Code(raw), or fallback when raw is unusable.
func CodeOr(raw, fallback string) string {
	if code := Code(raw); code != "" {
		return code
	}
	return fallback
}
