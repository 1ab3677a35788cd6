package discovery

import (
	"horse.fit/median/internal/feed"
	"horse.fit/median/internal/perspective"
)

// Buckets groups search candidates by the side of their source's declared bias.
type Buckets map[perspective.Side][]feed.Candidate

// Bucket sorts candidates into sides, keeping their search order within each.
// Center-Left folds into Left and Center-Right into Right.
func Bucket(candidates []feed.Candidate) Buckets {
	buckets := make(Buckets, len(perspective.Sides))
	for _, candidate := range candidates {
		side := perspective.FromLabel(candidate.Source.BiasLabel)
		buckets[side] = append(buckets[side], candidate)
	}
	return buckets
}

// Filled counts the sides with at least one candidate.
func (b Buckets) Filled() int {
	filled := 0
	for _, side := range perspective.Sides {
		if len(b[side]) > 0 {
			filled++
		}
	}
	return filled
}
