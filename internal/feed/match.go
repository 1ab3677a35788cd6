package feed

import (
	"strings"
	"unicode/utf8"

	"horse.fit/median/internal/db"
	"horse.fit/median/internal/fingerprint"
)

const minSourceNameRunes = 3

// MatchSource finds the source that published link. The link's domain is
// compared against each source's home and feed URLs first; when nothing
// matches, a source whose name appears in text wins.
func MatchSource(sources []db.Source, link, text string) (db.Source, bool) {
	domain := fingerprint.Domain(link)
	if domain != "" {
		for _, source := range sources {
			if domainMatches(domain, source) {
				return source, true
			}
		}
	}

	haystack := strings.ToLower(text)
	if strings.TrimSpace(haystack) == "" {
		return db.Source{}, false
	}
	for _, source := range sources {
		name := strings.ToLower(strings.TrimSpace(source.Name))
		if utf8.RuneCountInString(name) < minSourceNameRunes {
			continue
		}
		if strings.Contains(haystack, name) {
			return source, true
		}
	}
	return db.Source{}, false
}

func domainMatches(domain string, source db.Source) bool {
	candidates := []string{source.HomeURL}
	if source.RSSURL != nil {
		candidates = append(candidates, *source.RSSURL)
	}

	for _, candidate := range candidates {
		sourceDomain := fingerprint.Domain(candidate)
		if sourceDomain == "" {
			continue
		}
		if domain == sourceDomain || strings.HasSuffix(domain, "."+sourceDomain) {
			return true
		}
		if strings.Contains(strings.ToLower(candidate), domain) {
			return true
		}
	}
	return false
}
