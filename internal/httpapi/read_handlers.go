package httpapi

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"horse.fit/median/internal/db"
	"horse.fit/median/internal/perspective"
)

type topicDetailResponse struct {
	Topic    db.TopicDetail                          `json:"topic"`
	Articles map[perspective.Side][]db.MemberArticle `json:"articles"`
	Coverage map[perspective.Side]int                `json:"coverage"`
	Total    int                                     `json:"total"`
}

func (s *Server) handleHealth(c echo.Context) error {
	status := "ok"
	if err := s.store.Ping(c.Request().Context()); err != nil {
		s.logger.Error().Err(err).Msg("database ping failed")
		status = "degraded"
	}
	return success(c, map[string]any{
		"service":  "median",
		"database": status,
		"time":     s.now(),
	})
}

func (s *Server) handleStats(c echo.Context) error {
	dayStart := s.now().UTC().Truncate(24 * time.Hour)
	stats, err := s.store.QueryPipelineStats(c.Request().Context(), dayStart, dayStart.Add(24*time.Hour))
	if err != nil {
		s.logger.Error().Err(err).Msg("query stats failed")
		return internalError(c, "Failed to load stats")
	}
	return success(c, stats)
}

func (s *Server) handleHomepage(c echo.Context) error {
	limit, err := parsePositiveInt(c.QueryParam("limit"), defaultHomepageLimit, 1, maxHomepageLimit)
	if err != nil {
		return failValidation(c, map[string]string{"limit": err.Error()})
	}

	entries, err := s.store.ListHomepage(c.Request().Context(), limit)
	if err != nil {
		s.logger.Error().Err(err).Msg("query homepage failed")
		return internalError(c, "Failed to load homepage")
	}
	return success(c, map[string]any{
		"items": entries,
		"limit": limit,
	})
}

func (s *Server) handleTopicDetail(c echo.Context) error {
	topicUUID := strings.TrimSpace(c.Param("topic_uuid"))
	if _, err := uuid.Parse(topicUUID); err != nil {
		return failValidation(c, map[string]string{"topic_uuid": "must be a UUID"})
	}

	ctx := c.Request().Context()
	topic, err := s.store.GetTopicByUUID(ctx, topicUUID)
	if err != nil {
		if db.IsNoRows(err) {
			return failNotFound(c, "Topic not found")
		}
		s.logger.Error().Err(err).Str("topic_uuid", topicUUID).Msg("query topic failed")
		return internalError(c, "Failed to load topic")
	}

	members, err := s.store.ListTopicMemberArticles(ctx, topic.TopicID)
	if err != nil {
		s.logger.Error().Err(err).Str("topic_uuid", topicUUID).Msg("query topic members failed")
		return internalError(c, "Failed to load topic articles")
	}

	return success(c, buildTopicDetail(topic, members))
}

func buildTopicDetail(topic db.TopicDetail, members []db.MemberArticle) topicDetailResponse {
	resp := topicDetailResponse{
		Topic:    topic,
		Articles: make(map[perspective.Side][]db.MemberArticle, len(perspective.Sides)),
		Coverage: make(map[perspective.Side]int, len(perspective.Sides)),
		Total:    len(members),
	}
	for _, side := range perspective.Sides {
		resp.Articles[side] = []db.MemberArticle{}
		resp.Coverage[side] = 0
	}
	for _, member := range members {
		side, ok := perspective.ParseSide(member.SideLabel)
		if !ok {
			side = perspective.Center
		}
		resp.Articles[side] = append(resp.Articles[side], member)
		resp.Coverage[side]++
	}
	return resp
}

func (s *Server) handleSearch(c echo.Context) error {
	term := strings.TrimSpace(c.QueryParam("q"))
	if term == "" {
		return failValidation(c, map[string]string{"q": "is required"})
	}
	limit, err := parsePositiveInt(c.QueryParam("limit"), db.DefaultSearchLimit, 1, 100)
	if err != nil {
		return failValidation(c, map[string]string{"limit": err.Error()})
	}

	results, err := s.store.Search(c.Request().Context(), term, limit)
	if err != nil {
		s.logger.Error().Err(err).Str("q", term).Msg("search failed")
		return internalError(c, "Search failed")
	}
	return success(c, results)
}
