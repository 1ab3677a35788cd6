// Package oracle talks to the hosted language-model provider. It exposes three
// narrow capabilities (topic suggestion, bias classification, embeddings) and
// validates every model payload against an embedded JSON schema before
// handing back typed records.
package oracle

import (
	"errors"
	"fmt"
	"strings"

	"horse.fit/median/internal/perspective"
)

var (
	// ErrMalformedResponse covers unparsable JSON and schema violations.
	ErrMalformedResponse = errors.New("malformed oracle response")
	// ErrEmptyTopics is returned when a suggestion payload validates but lists no usable topics.
	ErrEmptyTopics = errors.New("oracle returned no topics")
)

// TopicSuggestion is one candidate story proposed by the topic-suggestion oracle.
type TopicSuggestion struct {
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Keywords    []string `json:"keywords"`
}

// BiasRequest carries the article fields sent to the bias-classification oracle.
type BiasRequest struct {
	Title           string
	Snippet         string
	SourceBiasHint  string
	FullTextExcerpt string
}

// BiasClassification is a validated bias label. Score runs 0 (Left) to 100
// (Right); Confidence runs 0 to 100.
type BiasClassification struct {
	Leaning     perspective.Side `json:"leaning"`
	Score       int              `json:"score"`
	Confidence  int              `json:"confidence"`
	Explanation string           `json:"explanation"`
}

// Validate checks the invariants of a classification built outside the schema path.
func (b BiasClassification) Validate() error {
	if _, ok := perspective.ParseSide(string(b.Leaning)); !ok {
		return fmt.Errorf("%w: leaning %q", ErrMalformedResponse, b.Leaning)
	}
	if b.Score < 0 || b.Score > 100 {
		return fmt.Errorf("%w: score %d out of range", ErrMalformedResponse, b.Score)
	}
	if b.Confidence < 0 || b.Confidence > 100 {
		return fmt.Errorf("%w: confidence %d out of range", ErrMalformedResponse, b.Confidence)
	}
	return nil
}

func cleanKeywords(raw []string) []string {
	out := make([]string, 0, len(raw))
	for _, keyword := range raw {
		clean := strings.Join(strings.Fields(keyword), " ")
		if clean == "" {
			continue
		}
		out = append(out, clean)
	}
	return out
}
