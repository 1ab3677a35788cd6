package ranker

import (
	"math"
	"math/rand"
	"testing"
	"time"

	"horse.fit/median/internal/db"
	"horse.fit/median/internal/perspective"
)

var rankNow = time.Date(2026, 10, 14, 18, 0, 0, 0, time.UTC)

func intPtr(v int) *int { return &v }

func member(id, sourceID int64, side string, authority float64, confidence *int, published time.Time) db.MemberArticle {
	return db.MemberArticle{
		ArticleID:      id,
		SourceID:       sourceID,
		SideLabel:      side,
		AuthorityScore: authority,
		Confidence:     confidence,
		PublishedAt:    published,
	}
}

func TestSelectRepresentativeTieBreak(t *testing.T) {
	t.Parallel()

	t1 := rankNow.Add(-3 * time.Hour)
	t2 := rankNow.Add(-2 * time.Hour)
	t3 := rankNow.Add(-1 * time.Hour)
	candidates := []db.MemberArticle{
		member(1, 1, "Left", 0.5, intPtr(80), t1),
		member(2, 2, "Left", 0.9, intPtr(80), t2),
		member(3, 3, "Left", 0.99, intPtr(60), t3),
	}

	rep, ok := SelectRepresentative(candidates)
	if !ok || rep.ArticleID != 2 {
		t.Fatalf("expected article 2, got %+v (ok=%v)", rep, ok)
	}
	if candidates[0].ArticleID != 1 {
		t.Fatalf("input slice must not be reordered")
	}
}

func TestSelectRepresentativeDateBreaksRemainingTies(t *testing.T) {
	t.Parallel()

	rep, _ := SelectRepresentative([]db.MemberArticle{
		member(1, 1, "Right", 0.7, nil, rankNow.Add(-5*time.Hour)),
		member(2, 2, "Right", 0.7, intPtr(0), rankNow.Add(-1*time.Hour)),
	})
	if rep.ArticleID != 2 {
		t.Fatalf("newer article should win a full tie, got %d", rep.ArticleID)
	}

	if _, ok := SelectRepresentative(nil); ok {
		t.Fatalf("empty side should have no representative")
	}
}

func TestBlindspotIsFirstMissingSide(t *testing.T) {
	t.Parallel()

	cases := []struct {
		present []perspective.Side
		want    perspective.Side
		wantOK  bool
	}{
		{[]perspective.Side{perspective.Left, perspective.Right}, perspective.Center, true},
		{[]perspective.Side{perspective.Right}, perspective.Left, true},
		{[]perspective.Side{perspective.Left}, perspective.Center, true},
		{[]perspective.Side{perspective.Left, perspective.Center, perspective.Right}, "", false},
	}
	for _, tc := range cases {
		reps := map[perspective.Side]db.MemberArticle{}
		for _, side := range tc.present {
			reps[side] = db.MemberArticle{}
		}
		got, ok := Blindspot(reps)
		if got != tc.want || ok != tc.wantOK {
			t.Fatalf("Blindspot(%v) = %q, %v", tc.present, got, ok)
		}
	}
}

func TestImportanceFreshBalancedTopic(t *testing.T) {
	t.Parallel()

	members := []db.MemberArticle{
		member(1, 1, "Left", 0.8, intPtr(70), rankNow),
		member(2, 2, "Center", 0.8, intPtr(70), rankNow),
		member(3, 3, "Right", 0.8, intPtr(70), rankNow),
	}
	got := Importance(members, rankNow)

	want := 0.35*1 + 0.25*(3.0/15) + 0.15*(3.0/20) + 0.15*0.8 + 0.05*1.0
	if math.Abs(got.Score-want) > 1e-9 {
		t.Fatalf("score = %f, want %f", got.Score, want)
	}
	if math.Abs(got.Score-0.5925) > 1e-9 {
		t.Fatalf("score = %f, want 0.5925", got.Score)
	}
	if got.Balance != CompleteBalance || got.Engagement != 0 {
		t.Fatalf("unexpected breakdown: %+v", got)
	}
}

func TestImportanceBalancedTopicOneHourOld(t *testing.T) {
	t.Parallel()

	published := rankNow.Add(-time.Hour)
	members := []db.MemberArticle{
		member(1, 1, "Left", 0.8, intPtr(70), published),
		member(2, 2, "Center", 0.8, intPtr(70), published),
		member(3, 3, "Right", 0.8, intPtr(70), published),
	}
	got := Importance(members, rankNow)

	recency := math.Pow(0.5, 1.0/6)
	if math.Abs(got.Recency-recency) > 1e-9 {
		t.Fatalf("recency = %f, want %f", got.Recency, recency)
	}
	want := 0.35*recency + 0.25*(3.0/15) + 0.15*(3.0/20) + 0.15*0.8 + 0.05*1.0
	if math.Abs(got.Score-want) > 1e-9 {
		t.Fatalf("score = %f, want %f", got.Score, want)
	}
	if math.Abs(got.Score-0.5543) > 1e-4 {
		t.Fatalf("score = %f, want about 0.5543", got.Score)
	}
}

func TestImportanceRecencyHalfLife(t *testing.T) {
	t.Parallel()

	members := []db.MemberArticle{
		member(1, 1, "Left", 0.5, nil, rankNow.Add(-12*time.Hour)),
		member(2, 1, "Left", 0.5, nil, rankNow.Add(-6*time.Hour)),
	}
	got := Importance(members, rankNow)
	if math.Abs(got.Recency-0.5) > 1e-9 {
		t.Fatalf("recency after one half-life = %f", got.Recency)
	}
	if got.Coverage != 1.0/15 || got.Balance != PartialBalance {
		t.Fatalf("unexpected breakdown: %+v", got)
	}

	future := Importance([]db.MemberArticle{member(1, 1, "Left", 0.5, nil, rankNow.Add(time.Hour))}, rankNow)
	if future.Recency != 1 {
		t.Fatalf("future publish time should not exceed full recency, got %f", future.Recency)
	}
}

func TestImportanceIsBounded(t *testing.T) {
	t.Parallel()

	rng := rand.New(rand.NewSource(42))
	sides := []string{"Left", "Center", "Right", "Bogus"}
	for i := 0; i < 500; i++ {
		n := 1 + rng.Intn(60)
		members := make([]db.MemberArticle, n)
		for j := range members {
			members[j] = member(
				int64(j),
				int64(rng.Intn(30)),
				sides[rng.Intn(len(sides))],
				rng.Float64()*1.5-0.25,
				intPtr(rng.Intn(101)),
				rankNow.Add(time.Duration(rng.Intn(200)-20)*time.Hour),
			)
		}
		got := Importance(members, rankNow)
		if got.Score < 0 || got.Score > 1 || math.IsNaN(got.Score) {
			t.Fatalf("score out of bounds: %+v", got)
		}
	}
}
