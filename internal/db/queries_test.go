package db

import "testing"

func TestEscapeLikeEscapesWildcards(t *testing.T) {
	t.Parallel()

	got := escapeLike(`50%_off\now`)
	want := `50\%\_off\\now`
	if got != want {
		t.Fatalf("escapeLike = %q, want %q", got, want)
	}
}

func TestBriefColumnsNilWhenArticleMissing(t *testing.T) {
	t.Parallel()

	if b := (briefColumns{}).brief(); b != nil {
		t.Fatalf("expected nil brief, got %+v", b)
	}

	id := int64(7)
	title := "Budget vote"
	b := briefColumns{id: &id, title: &title}.brief()
	if b == nil || b.ArticleID != 7 || b.Title != "Budget vote" || b.URL != "" {
		t.Fatalf("unexpected brief: %+v", b)
	}
}

func TestWipeCountsTotalAndOrder(t *testing.T) {
	t.Parallel()

	c := WipeCounts{TopicMembers: 1, BiasScores: 2, Topics: 3, HomepageTopics: 4, Articles: 5}
	if c.Total() != 15 {
		t.Fatalf("Total = %d", c.Total())
	}
	if wipeOrder[0] != "news.topic_members" || wipeOrder[len(wipeOrder)-1] != "news.articles" {
		t.Fatalf("unexpected wipe order: %v", wipeOrder)
	}
}

func TestDefaultString(t *testing.T) {
	t.Parallel()

	if got := defaultString("  ", "en"); got != "en" {
		t.Fatalf("defaultString blank = %q", got)
	}
	if got := defaultString(" fr ", "en"); got != "fr" {
		t.Fatalf("defaultString value = %q", got)
	}
}
