package discovery

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"horse.fit/median/internal/classify"
	"horse.fit/median/internal/db"
	"horse.fit/median/internal/feed"
	"horse.fit/median/internal/fingerprint"
	"horse.fit/median/internal/oracle"
	"horse.fit/median/internal/perspective"
)

var runNow = time.Date(2026, 10, 14, 6, 0, 0, 0, time.UTC)

type memberWrite struct {
	topicID   int64
	articleID int64
	side      string
}

type memStore struct {
	mu sync.Mutex

	sources    []db.Source
	sourcesErr error

	topics       map[string]db.TopicRef
	nextTopicID  int64
	articles     map[string]int64
	articleRows  map[int64]db.InsertArticleParams
	nextArticle  int64
	biasScores   map[int64]db.UpsertBiasScoreParams
	members      map[[2]int64]string
	memberWrites []memberWrite

	failInsert map[string]bool
}

func newMemStore(sources ...db.Source) *memStore {
	return &memStore{
		sources:     sources,
		topics:      make(map[string]db.TopicRef),
		articles:    make(map[string]int64),
		articleRows: make(map[int64]db.InsertArticleParams),
		biasScores:  make(map[int64]db.UpsertBiasScoreParams),
		members:     make(map[[2]int64]string),
		failInsert:  make(map[string]bool),
	}
}

func (s *memStore) ListActiveSources(context.Context) ([]db.Source, error) {
	return s.sources, s.sourcesErr
}

func (s *memStore) UpsertTopic(_ context.Context, params db.UpsertTopicParams) (db.TopicRef, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if ref, ok := s.topics[params.ClusterFingerprint]; ok {
		return ref, false, nil
	}
	s.nextTopicID++
	ref := db.TopicRef{TopicID: s.nextTopicID, Title: params.Title}
	s.topics[params.ClusterFingerprint] = ref
	return ref, true, nil
}

func (s *memStore) FindArticleByFingerprint(_ context.Context, fp string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if id, ok := s.articles[fp]; ok {
		return id, nil
	}
	return 0, db.ErrNoRows
}

func (s *memStore) InsertArticle(_ context.Context, params db.InsertArticleParams) (int64, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failInsert[params.Fingerprint] {
		return 0, false, errors.New("insert failed")
	}
	if id, ok := s.articles[params.Fingerprint]; ok {
		return id, false, nil
	}
	s.nextArticle++
	s.articles[params.Fingerprint] = s.nextArticle
	s.articleRows[s.nextArticle] = params
	return s.nextArticle, true, nil
}

func (s *memStore) UpsertBiasScore(_ context.Context, params db.UpsertBiasScoreParams) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.biasScores[params.ArticleID] = params
	return nil
}

func (s *memStore) UpsertTopicMember(_ context.Context, topicID, articleID int64, side string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.members[[2]int64{topicID, articleID}] = side
	s.memberWrites = append(s.memberWrites, memberWrite{topicID: topicID, articleID: articleID, side: side})
	return nil
}

type stubTopics struct {
	suggestions []oracle.TopicSuggestion
	err         error
}

func (s stubTopics) SuggestTopics(context.Context) ([]oracle.TopicSuggestion, error) {
	return s.suggestions, s.err
}

type stubSearcher struct {
	byTitle map[string][]feed.Candidate
	calls   int
}

func (s *stubSearcher) Search(_ context.Context, topic feed.Topic, _ []db.Source) feed.Result {
	s.calls++
	return feed.Result{Candidates: s.byTitle[topic.Title]}
}

type countingClassifier struct {
	calls int
}

func (c *countingClassifier) Classify(_ context.Context, in classify.Input) classify.Result {
	c.calls++
	return classify.Result{BiasClassification: classify.Fallback(in.SourceBiasHint), Model: classify.FallbackModel, Fallback: true}
}

type stubSummarizer struct {
	calls int
}

func (s *stubSummarizer) FetchSummary(_ context.Context, pageURL, existing string) classify.Summary {
	s.calls++
	return classify.Summary{Summary: "fetched summary for " + pageURL, Fetched: true}
}

var (
	leftDaily   = db.Source{SourceID: 1, Name: "Left Daily", HomeURL: "https://leftdaily.example", BiasLabel: "Left", AuthorityScore: 0.7, Language: "en"}
	leftWeekly  = db.Source{SourceID: 2, Name: "Left Weekly", HomeURL: "https://leftweekly.example", BiasLabel: "Center-Left", AuthorityScore: 0.6, Language: "en"}
	centerWire  = db.Source{SourceID: 3, Name: "Center Wire", HomeURL: "https://centerwire.example", BiasLabel: "Center", AuthorityScore: 0.8, Language: "en"}
	rightReport = db.Source{SourceID: 4, Name: "Right Report", HomeURL: "https://rightreport.example", BiasLabel: "Center-Right", AuthorityScore: 0.9, Language: "en"}
)

func candidate(source db.Source, title, path string) feed.Candidate {
	published := runNow.Add(-time.Hour)
	return feed.Candidate{
		Title:       title,
		URL:         source.HomeURL + path,
		Snippet:     "snippet " + title,
		PublishedAt: &published,
		Source:      source,
		Fingerprint: fingerprint.Article(title, fingerprint.Domain(source.HomeURL)),
	}
}

type harness struct {
	store      *memStore
	searcher   *stubSearcher
	classifier *countingClassifier
	summarizer *stubSummarizer
	pipeline   *Pipeline
}

func newHarness(topics TopicOracle, byTitle map[string][]feed.Candidate) *harness {
	h := &harness{
		store:      newMemStore(leftDaily, leftWeekly, centerWire, rightReport),
		searcher:   &stubSearcher{byTitle: byTitle},
		classifier: &countingClassifier{},
		summarizer: &stubSummarizer{},
	}
	h.pipeline = NewPipeline(h.store, topics, h.searcher, h.classifier, Options{
		Summarizer: h.summarizer,
		Now:        func() time.Time { return runNow },
	}, zerolog.New(io.Discard))
	return h
}

var topicX = stubTopics{suggestions: []oracle.TopicSuggestion{{Title: "X", Keywords: []string{"x"}}}}

func twoLeftOneRight() map[string][]feed.Candidate {
	return map[string][]feed.Candidate{
		"X": {
			candidate(leftDaily, "X from the left", "/x"),
			candidate(rightReport, "X from the right", "/x"),
			candidate(leftWeekly, "X weekly take", "/x"),
		},
	}
}

func TestRunCreatesTopicWithTwoSides(t *testing.T) {
	t.Parallel()

	h := newHarness(topicX, twoLeftOneRight())
	result, err := h.pipeline.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if result.TopicsDiscovered != 1 || result.TopicsCreated != 1 || result.TopicsRejected != 0 {
		t.Fatalf("unexpected topic counts: %+v", result)
	}
	if result.ArticlesFound != 3 || result.ArticlesInserted != 3 || result.Errors != 0 {
		t.Fatalf("unexpected article counts: %+v", result)
	}
	if len(h.store.members) != 3 || len(h.store.biasScores) != 3 {
		t.Fatalf("expected 3 members and 3 bias scores, got %d and %d", len(h.store.members), len(h.store.biasScores))
	}

	sides := map[string]int{}
	for _, side := range h.store.members {
		sides[side]++
	}
	if sides["Left"] != 2 || sides["Right"] != 1 || sides["Center"] != 0 {
		t.Fatalf("unexpected side counts: %v", sides)
	}

	if _, ok := h.store.topics[fingerprint.Topic("X")]; !ok {
		t.Fatalf("topic should be keyed by the lowercased title fingerprint")
	}
	if !result.StartedAt.Equal(runNow) || !result.FinishedAt.Equal(runNow) {
		t.Fatalf("unexpected run timestamps: %v %v", result.StartedAt, result.FinishedAt)
	}
}

func TestRunSavesSidesInOrder(t *testing.T) {
	t.Parallel()

	h := newHarness(topicX, map[string][]feed.Candidate{
		"X": {
			candidate(rightReport, "X right", "/r"),
			candidate(centerWire, "X center", "/c"),
			candidate(leftDaily, "X left", "/l"),
		},
	})
	if _, err := h.pipeline.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	want := []string{"Left", "Center", "Right"}
	if len(h.store.memberWrites) != len(want) {
		t.Fatalf("unexpected member writes: %+v", h.store.memberWrites)
	}
	for i, side := range want {
		if h.store.memberWrites[i].side != side {
			t.Fatalf("write %d side = %s, want %s", i, h.store.memberWrites[i].side, side)
		}
	}
}

func TestRunIsIdempotent(t *testing.T) {
	t.Parallel()

	h := newHarness(topicX, twoLeftOneRight())
	if _, err := h.pipeline.Run(context.Background()); err != nil {
		t.Fatalf("first Run: %v", err)
	}
	second, err := h.pipeline.Run(context.Background())
	if err != nil {
		t.Fatalf("second Run: %v", err)
	}

	if len(h.store.topics) != 1 || len(h.store.articles) != 3 || len(h.store.members) != 3 {
		t.Fatalf("re-run duplicated rows: topics=%d articles=%d members=%d", len(h.store.topics), len(h.store.articles), len(h.store.members))
	}
	if second.TopicsCreated != 0 || second.TopicsUpdated != 1 {
		t.Fatalf("second run should update the topic: %+v", second)
	}
	if second.ArticlesInserted != 0 || second.ArticlesReused != 3 || second.ArticlesFound != 3 {
		t.Fatalf("second run should reuse articles: %+v", second)
	}
	if h.classifier.calls != 3 || h.summarizer.calls != 3 {
		t.Fatalf("existing articles must not be re-fetched or re-classified: classify=%d summary=%d", h.classifier.calls, h.summarizer.calls)
	}
}

func TestRunRejectsOneSidedTopic(t *testing.T) {
	t.Parallel()

	h := newHarness(topicX, map[string][]feed.Candidate{
		"X": {
			candidate(leftDaily, "X left one", "/1"),
			candidate(leftWeekly, "X left two", "/2"),
		},
	})
	result, err := h.pipeline.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.TopicsRejected != 1 || result.TopicsCreated != 0 {
		t.Fatalf("expected rejection, got %+v", result)
	}
	if len(h.store.topics) != 0 || len(h.store.articles) != 0 || len(h.store.members) != 0 || len(h.store.biasScores) != 0 {
		t.Fatalf("rejected topic must not write rows")
	}
}

func TestRunCountsPerArticleFailures(t *testing.T) {
	t.Parallel()

	candidates := twoLeftOneRight()
	h := newHarness(topicX, candidates)
	h.store.failInsert[candidates["X"][0].Fingerprint] = true

	result, err := h.pipeline.Run(context.Background())
	if err != nil {
		t.Fatalf("Run should not fail on article errors: %v", err)
	}
	if result.Errors != 1 || len(result.ErrorMessages) != 1 {
		t.Fatalf("expected one counted error, got %+v", result)
	}
	if result.ArticlesFound != 2 || len(h.store.members) != 2 {
		t.Fatalf("sibling articles should still be saved: %+v", result)
	}
}

func TestRunProcessesTopicsInOrder(t *testing.T) {
	t.Parallel()

	topics := stubTopics{suggestions: []oracle.TopicSuggestion{{Title: "First"}, {Title: "Lonely"}, {Title: "Second"}}}
	h := newHarness(topics, map[string][]feed.Candidate{
		"First":  {candidate(leftDaily, "First left", "/f"), candidate(centerWire, "First center", "/f")},
		"Lonely": {candidate(centerWire, "Lonely center", "/l")},
		"Second": {candidate(centerWire, "Second center", "/s"), candidate(rightReport, "Second right", "/s")},
	})

	result, err := h.pipeline.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.TopicsDiscovered != 3 || result.TopicsCreated != 2 || result.TopicsRejected != 1 {
		t.Fatalf("unexpected counts: %+v", result)
	}
	if h.store.topics[fingerprint.Topic("First")].TopicID != 1 || h.store.topics[fingerprint.Topic("Second")].TopicID != 2 {
		t.Fatalf("topics should be created in suggestion order: %+v", h.store.topics)
	}
}

func TestRunStoresFetchedSummaryAndFallbackBias(t *testing.T) {
	t.Parallel()

	h := newHarness(topicX, twoLeftOneRight())
	if _, err := h.pipeline.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	for id, row := range h.store.articleRows {
		if row.Summary != "fetched summary for "+row.URL {
			t.Fatalf("article %d summary = %q", id, row.Summary)
		}
		if !row.PublishedAt.Equal(runNow.Add(-time.Hour)) {
			t.Fatalf("article %d published_at = %v", id, row.PublishedAt)
		}
		if row.Lang != "en" {
			t.Fatalf("article %d lang = %q", id, row.Lang)
		}
		score := h.store.biasScores[id]
		if score.Model != classify.FallbackModel || score.Confidence != 60 {
			t.Fatalf("article %d bias = %+v", id, score)
		}
	}

	rightID := h.store.articles[fingerprint.Article("X from the right", "rightreport.example")]
	if got := h.store.biasScores[rightID]; got.Leaning != string(perspective.Right) || got.Score != 80 {
		t.Fatalf("right article bias = %+v", got)
	}
}

func TestRunSurfacesSuggestionFailure(t *testing.T) {
	t.Parallel()

	h := newHarness(stubTopics{err: oracle.ErrMalformedResponse}, nil)
	_, err := h.pipeline.Run(context.Background())
	if !errors.Is(err, oracle.ErrMalformedResponse) {
		t.Fatalf("expected malformed response error, got %v", err)
	}
	if h.searcher.calls != 0 {
		t.Fatalf("no search should run after suggestion failure")
	}

	h = newHarness(stubTopics{}, nil)
	if _, err := h.pipeline.Run(context.Background()); !errors.Is(err, oracle.ErrEmptyTopics) {
		t.Fatalf("expected empty topics error, got %v", err)
	}
}

func TestRunSurfacesSourceListFailure(t *testing.T) {
	t.Parallel()

	h := newHarness(topicX, twoLeftOneRight())
	h.store.sourcesErr = errors.New("connection refused")

	result, err := h.pipeline.Run(context.Background())
	if err == nil {
		t.Fatalf("expected source list error")
	}
	if result.TopicsDiscovered != 1 || h.searcher.calls != 0 {
		t.Fatalf("unexpected partial result: %+v", result)
	}
}

func TestBucketFoldsLeaningLabels(t *testing.T) {
	t.Parallel()

	buckets := Bucket([]feed.Candidate{
		candidate(leftWeekly, "a", "/a"),
		candidate(rightReport, "b", "/b"),
		{Title: "unknown", Source: db.Source{BiasLabel: "Mystery"}},
	})
	if len(buckets[perspective.Left]) != 1 || len(buckets[perspective.Right]) != 1 || len(buckets[perspective.Center]) != 1 {
		t.Fatalf("unexpected buckets: %+v", buckets)
	}
	if buckets.Filled() != 3 {
		t.Fatalf("Filled = %d", buckets.Filled())
	}
	if (Buckets{}).Filled() != 0 {
		t.Fatalf("empty buckets should have no filled sides")
	}
}
