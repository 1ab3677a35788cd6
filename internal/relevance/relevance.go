// Package relevance filters off-topic search hits by embedding similarity.
//
// The policy favors recall: whenever an embedding cannot be obtained the item
// is kept, because discovery applies a second filter (the perspective gate)
// afterwards.
package relevance

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
)

// DefaultThreshold is the minimum cosine similarity for an item to count as on-topic.
const DefaultThreshold = 0.70

var (
	ErrOracleUnavailable = errors.New("embedding oracle unavailable")
	ErrDimensionMismatch = errors.New("vector dimension mismatch")
)

type Vector []float32

// Embedder is the embedding oracle contract.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Similarity returns the cosine similarity of a and b in [-1, 1]. A zero vector
// has similarity 0 with everything.
func Similarity(a, b Vector) (float64, error) {
	if len(a) != len(b) {
		return 0, fmt.Errorf("%w: %d != %d", ErrDimensionMismatch, len(a), len(b))
	}

	var dot, normA, normB float64
	for i := range a {
		x := float64(a[i])
		y := float64(b[i])
		dot += x * y
		normA += x * x
		normB += y * y
	}
	if normA == 0 || normB == 0 {
		return 0, nil
	}

	sim := dot / (math.Sqrt(normA) * math.Sqrt(normB))
	return math.Max(-1, math.Min(1, sim)), nil
}

type Scorer struct {
	embedder  Embedder
	threshold float64
}

func NewScorer(embedder Embedder, threshold float64) *Scorer {
	if threshold <= 0 || threshold > 1 {
		threshold = DefaultThreshold
	}
	return &Scorer{embedder: embedder, threshold: threshold}
}

func (s *Scorer) Threshold() float64 {
	if s == nil {
		return DefaultThreshold
	}
	return s.threshold
}

// Embed wraps every oracle failure, including an empty vector, in ErrOracleUnavailable.
func (s *Scorer) Embed(ctx context.Context, text string) (Vector, error) {
	if s == nil || s.embedder == nil {
		return nil, fmt.Errorf("%w: no embedder configured", ErrOracleUnavailable)
	}
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return nil, fmt.Errorf("%w: empty text", ErrOracleUnavailable)
	}

	vec, err := s.embedder.Embed(ctx, trimmed)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrOracleUnavailable, err)
	}
	if len(vec) == 0 {
		return nil, fmt.Errorf("%w: empty embedding", ErrOracleUnavailable)
	}
	return Vector(vec), nil
}

// Verdict is the outcome of one relevance check. Checked is false when the
// check could not run and the item was included by default.
type Verdict struct {
	Relevant   bool
	Checked    bool
	Similarity float64
	Err        error
}

// Check compares text against an already-embedded topic. A nil topic vector or
// any embedding failure yields an unchecked, relevant verdict.
func (s *Scorer) Check(ctx context.Context, topic Vector, text string) Verdict {
	if len(topic) == 0 {
		return Verdict{Relevant: true}
	}

	vec, err := s.Embed(ctx, text)
	if err != nil {
		return Verdict{Relevant: true, Err: err}
	}

	sim, err := Similarity(topic, vec)
	if err != nil {
		return Verdict{Relevant: true, Err: err}
	}

	return Verdict{
		Relevant:   sim >= s.Threshold(),
		Checked:    true,
		Similarity: sim,
	}
}
