package ranker

import (
	"math"
	"sort"
	"time"

	"horse.fit/median/internal/db"
	"horse.fit/median/internal/perspective"
)

const (
	WeightRecency    = 0.35
	WeightCoverage   = 0.25
	WeightVolume     = 0.15
	WeightAuthority  = 0.15
	WeightBalance    = 0.05
	WeightEngagement = 0.05

	RecencyHalfLife  = 6 * time.Hour
	CoverageSources  = 15
	VolumeMembers    = 20
	PartialBalance   = 0.6
	CompleteBalance  = 1.0
	EngagementSignal = 0.0
)

// Breakdown holds each weighted input of an importance score, unweighted, in [0, 1].
type Breakdown struct {
	Recency    float64 `json:"recency"`
	Coverage   float64 `json:"coverage"`
	Volume     float64 `json:"volume"`
	Authority  float64 `json:"authority"`
	Balance    float64 `json:"balance"`
	Engagement float64 `json:"engagement"`
	Score      float64 `json:"score"`
}

// Importance scores a topic from its members. Recency decays with a six hour
// half-life from the newest member's publish time.
func Importance(members []db.MemberArticle, now time.Time) Breakdown {
	var b Breakdown
	if len(members) == 0 {
		b.Balance = PartialBalance
		b.Score = clamp01(WeightBalance * b.Balance)
		return b
	}

	newest := members[0].PublishedAt
	sources := make(map[int64]float64, len(members))
	sides := make(map[perspective.Side]struct{}, len(perspective.Sides))
	for _, m := range members {
		if m.PublishedAt.After(newest) {
			newest = m.PublishedAt
		}
		sources[m.SourceID] = m.AuthorityScore
		if side, ok := perspective.ParseSide(m.SideLabel); ok {
			sides[side] = struct{}{}
		}
	}

	hours := math.Max(0, now.Sub(newest).Hours())
	b.Recency = math.Pow(0.5, hours/RecencyHalfLife.Hours())
	b.Coverage = math.Min(float64(len(sources))/CoverageSources, 1)
	b.Volume = math.Min(float64(len(members))/VolumeMembers, 1)

	var authority float64
	for _, score := range sources {
		authority += clamp01(score)
	}
	b.Authority = authority / float64(len(sources))

	b.Balance = PartialBalance
	if len(sides) == len(perspective.Sides) {
		b.Balance = CompleteBalance
	}
	b.Engagement = EngagementSignal

	b.Score = clamp01(WeightRecency*b.Recency +
		WeightCoverage*b.Coverage +
		WeightVolume*b.Volume +
		WeightAuthority*b.Authority +
		WeightBalance*b.Balance +
		WeightEngagement*b.Engagement)
	return b
}

// SelectRepresentative picks the member with the highest classification
// confidence, then source authority, then most recent publish time. Members
// without a bias score rank as confidence zero.
func SelectRepresentative(members []db.MemberArticle) (db.MemberArticle, bool) {
	if len(members) == 0 {
		return db.MemberArticle{}, false
	}

	sorted := make([]db.MemberArticle, len(members))
	copy(sorted, members)
	sort.SliceStable(sorted, func(i, j int) bool {
		ci, cj := confidence(sorted[i]), confidence(sorted[j])
		if ci != cj {
			return ci > cj
		}
		if sorted[i].AuthorityScore != sorted[j].AuthorityScore {
			return sorted[i].AuthorityScore > sorted[j].AuthorityScore
		}
		return sorted[i].PublishedAt.After(sorted[j].PublishedAt)
	})
	return sorted[0], true
}

// Representatives groups members by side label and selects one per side.
func Representatives(members []db.MemberArticle) map[perspective.Side]db.MemberArticle {
	bySide := make(map[perspective.Side][]db.MemberArticle, len(perspective.Sides))
	for _, m := range members {
		side, ok := perspective.ParseSide(m.SideLabel)
		if !ok {
			continue
		}
		bySide[side] = append(bySide[side], m)
	}

	reps := make(map[perspective.Side]db.MemberArticle, len(bySide))
	for side, group := range bySide {
		if rep, ok := SelectRepresentative(group); ok {
			reps[side] = rep
		}
	}
	return reps
}

// Blindspot returns the first side, in Left, Center, Right order, without a
// representative.
func Blindspot(reps map[perspective.Side]db.MemberArticle) (perspective.Side, bool) {
	for _, side := range perspective.Sides {
		if _, ok := reps[side]; !ok {
			return side, true
		}
	}
	return "", false
}

func confidence(m db.MemberArticle) int {
	if m.Confidence == nil {
		return 0
	}
	return *m.Confidence
}

func clamp01(v float64) float64 {
	switch {
	case math.IsNaN(v), v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}
