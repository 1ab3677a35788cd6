package language

import (
	"strings"
	"sync"
	"unicode"

	lingua "github.com/pemistahl/lingua-go"
)

const minLetters = 24

// newsLanguages bounds the model set; loading every lingua model costs
// gigabytes of memory.
var newsLanguages = []lingua.Language{
	lingua.English,
	lingua.Spanish,
	lingua.French,
	lingua.German,
	lingua.Italian,
	lingua.Portuguese,
	lingua.Dutch,
}

// Detector tags text with an ISO 639-1 code. The zero value is ready to use
// and builds its models on first call.
type Detector struct {
	once     sync.Once
	detector lingua.LanguageDetector
}

// Detect returns the language of text. ok is false for text too short to
// judge or when no language is clearly ahead.
func (d *Detector) Detect(text string) (string, bool) {
	sample := strings.TrimSpace(text)
	letters := 0
	for _, r := range sample {
		if unicode.IsLetter(r) {
			letters++
		}
	}
	if letters < minLetters {
		return "", false
	}

	detected, exists := d.get().DetectLanguageOf(sample)
	if !exists {
		return "", false
	}
	code := Code(detected.IsoCode639_1().String())
	return code, code != ""
}

// Tag returns the detected language of text, or declared when detection is
// inconclusive, or Default.
func (d *Detector) Tag(text, declared string) string {
	if d != nil {
		if code, ok := d.Detect(text); ok {
			return code
		}
	}
	return CodeOr(declared, Default)
}

func (d *Detector) get() lingua.LanguageDetector {
	d.once.Do(func() {
		d.detector = lingua.NewLanguageDetectorBuilder().
			FromLanguages(newsLanguages...).
			WithMinimumRelativeDistance(0.1).
			Build()
	})
	return d.detector
}
