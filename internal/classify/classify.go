// Package classify assigns a Left/Center/Right leaning to an article, falling
// back to the source's declared bias whenever the oracle cannot answer.
package classify

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"horse.fit/median/internal/logging"
	"horse.fit/median/internal/oracle"
	"horse.fit/median/internal/perspective"
)

const (
	// FallbackModel is stored as the model of fallback classifications.
	FallbackModel = "fallback"

	fallbackConfidence = 60
)

var fallbackScores = map[perspective.Side]int{
	perspective.Left:   20,
	perspective.Center: 50,
	perspective.Right:  80,
}

type BiasOracle interface {
	ClassifyBias(ctx context.Context, req oracle.BiasRequest) (oracle.BiasClassification, error)
}

// Input is the article text handed to the classifier.
type Input struct {
	Title          string
	Summary        string
	SourceBiasHint string
	Excerpt        string
}

// Result is always usable. Fallback reports whether the source label was used,
// and Err holds the oracle failure that caused it.
type Result struct {
	oracle.BiasClassification
	Model    string
	Fallback bool
	Err      error
}

// Fallback derives a classification from a declared source bias label alone.
func Fallback(sourceBiasHint string) oracle.BiasClassification {
	hint := strings.TrimSpace(sourceBiasHint)
	side := perspective.FromLabel(hint)
	basis := hint
	if basis == "" {
		basis = "unknown"
	}
	return oracle.BiasClassification{
		Leaning:     side,
		Score:       fallbackScores[side],
		Confidence:  fallbackConfidence,
		Explanation: fmt.Sprintf("Based on source bias: %s", basis),
	}
}

type Classifier struct {
	oracle BiasOracle
	model  string
	logger zerolog.Logger
}

// New builds a classifier. A nil oracle makes every call use the fallback.
func New(o BiasOracle, model string, logger zerolog.Logger) *Classifier {
	return &Classifier{
		oracle: o,
		model:  strings.TrimSpace(model),
		logger: logging.Component(logger, "classifier"),
	}
}

// Classify never fails: any oracle error, timeout or invalid payload yields
// the source-label fallback.
func (c *Classifier) Classify(ctx context.Context, in Input) Result {
	if c == nil || c.oracle == nil {
		return Result{BiasClassification: Fallback(in.SourceBiasHint), Model: FallbackModel, Fallback: true}
	}

	classification, err := c.oracle.ClassifyBias(ctx, oracle.BiasRequest{
		Title:           in.Title,
		Snippet:         in.Summary,
		SourceBiasHint:  in.SourceBiasHint,
		FullTextExcerpt: in.Excerpt,
	})
	if err == nil {
		err = classification.Validate()
	}
	if err != nil {
		c.logger.Warn().Err(err).Str("title", in.Title).Str("source_bias", in.SourceBiasHint).Msg("bias oracle failed; using source fallback")
		return Result{BiasClassification: Fallback(in.SourceBiasHint), Model: FallbackModel, Fallback: true, Err: err}
	}

	model := c.model
	if model == "" {
		model = "oracle"
	}
	return Result{BiasClassification: classification, Model: model}
}
