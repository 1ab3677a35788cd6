package ranker

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"horse.fit/median/internal/db"
)

type stubStore struct {
	topics     []db.ActiveTopic
	topicsErr  error
	since      time.Time
	limit      int
	members    map[int64][]db.MemberArticle
	membersErr map[int64]error
	upsertErr  map[int64]error
	upserts    []db.UpsertHomepageTopicParams
	pruneAt    time.Time
	pruned     int64
	pruneCalls int
}

func (s *stubStore) ListActiveTopics(_ context.Context, since time.Time, limit int) ([]db.ActiveTopic, error) {
	s.since = since
	s.limit = limit
	return s.topics, s.topicsErr
}

func (s *stubStore) ListTopicMemberArticles(_ context.Context, topicID int64) ([]db.MemberArticle, error) {
	if err := s.membersErr[topicID]; err != nil {
		return nil, err
	}
	return s.members[topicID], nil
}

func (s *stubStore) UpsertHomepageTopic(_ context.Context, params db.UpsertHomepageTopicParams) error {
	if err := s.upsertErr[params.TopicID]; err != nil {
		return err
	}
	s.upserts = append(s.upserts, params)
	return nil
}

func (s *stubStore) PruneHomepageTopics(_ context.Context, cutoff time.Time) (int64, error) {
	s.pruneCalls++
	s.pruneAt = cutoff
	return s.pruned, nil
}

func newTestRanker(store Store) *Ranker {
	return New(store, Options{Now: func() time.Time { return rankNow }}, zerolog.New(io.Discard))
}

func TestRebuildScenarioBlindspotCenter(t *testing.T) {
	t.Parallel()

	store := &stubStore{
		topics: []db.ActiveTopic{{TopicID: 10, Title: "X"}},
		members: map[int64][]db.MemberArticle{
			10: {
				member(1, 1, "Left", 0.7, intPtr(60), rankNow.Add(-time.Hour)),
				member(2, 2, "Left", 0.6, intPtr(60), rankNow.Add(-time.Hour)),
				member(3, 4, "Right", 0.9, intPtr(60), rankNow.Add(-time.Hour)),
			},
		},
		pruned: 2,
	}

	result, err := newTestRanker(store).Rebuild(context.Background())
	if err != nil {
		t.Fatalf("Rebuild: %v", err)
	}
	if result.TopicsProcessed != 1 || result.HomepageEntriesCreated != 1 || result.Pruned != 2 || !result.BuiltAt.Equal(rankNow) {
		t.Fatalf("unexpected result: %+v", result)
	}

	entry := store.upserts[0]
	if entry.BlindspotSide == nil || *entry.BlindspotSide != "Center" {
		t.Fatalf("expected Center blindspot, got %v", entry.BlindspotSide)
	}
	if entry.LeftArticleID == nil || *entry.LeftArticleID != 1 {
		t.Fatalf("left representative = %v", entry.LeftArticleID)
	}
	if entry.CenterArticleID != nil {
		t.Fatalf("center representative should be empty")
	}
	if entry.RightArticleID == nil || *entry.RightArticleID != 3 {
		t.Fatalf("right representative = %v", entry.RightArticleID)
	}
	if entry.ImportanceScore <= 0 || entry.ImportanceScore > 1 {
		t.Fatalf("importance out of range: %f", entry.ImportanceScore)
	}
}

func TestRebuildUsesWindowAndRetention(t *testing.T) {
	t.Parallel()

	store := &stubStore{}
	if _, err := newTestRanker(store).Rebuild(context.Background()); err != nil {
		t.Fatalf("Rebuild: %v", err)
	}
	if !store.since.Equal(rankNow.Add(-24*time.Hour)) || store.limit != DefaultTopicLimit {
		t.Fatalf("unexpected active window query: since=%v limit=%d", store.since, store.limit)
	}
	if store.pruneCalls != 1 || !store.pruneAt.Equal(rankNow.Add(-48*time.Hour)) {
		t.Fatalf("prune must always run with the retention cutoff: calls=%d at=%v", store.pruneCalls, store.pruneAt)
	}
}

func TestRebuildCountsPerTopicFailures(t *testing.T) {
	t.Parallel()

	fresh := rankNow.Add(-time.Hour)
	store := &stubStore{
		topics: []db.ActiveTopic{{TopicID: 1}, {TopicID: 2}, {TopicID: 3}, {TopicID: 4}},
		members: map[int64][]db.MemberArticle{
			1: {member(1, 1, "Left", 0.5, nil, fresh)},
			3: {member(3, 3, "Center", 0.5, nil, fresh)},
		},
		membersErr: map[int64]error{2: errors.New("timeout")},
		upsertErr:  map[int64]error{3: errors.New("constraint violation")},
	}

	result, err := newTestRanker(store).Rebuild(context.Background())
	if err != nil {
		t.Fatalf("Rebuild: %v", err)
	}
	if result.TopicsProcessed != 4 || result.HomepageEntriesCreated != 1 || result.Errors != 2 || result.TopicsSkipped != 1 {
		t.Fatalf("unexpected result: %+v", result)
	}
	if len(store.upserts) != 1 || store.upserts[0].TopicID != 1 || store.pruneCalls != 1 {
		t.Fatalf("remaining topics must still be processed and pruned: %+v", store.upserts)
	}
}

func TestRebuildFailsWhenTopicsUnavailable(t *testing.T) {
	t.Parallel()

	store := &stubStore{topicsErr: errors.New("db down")}
	if _, err := newTestRanker(store).Rebuild(context.Background()); err == nil {
		t.Fatalf("expected error")
	}
	if store.pruneCalls != 0 {
		t.Fatalf("prune should not run without topics")
	}
}
