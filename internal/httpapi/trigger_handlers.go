package httpapi

import (
	"errors"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"horse.fit/median/internal/analyze"
	"horse.fit/median/internal/scheduler"
)

type analyzeRequest struct {
	URL string `json:"url"`
}

func (s *Server) handleDiscover(c echo.Context) error {
	if s.discovery == nil {
		return errorWithData(c, http.StatusServiceUnavailable, "Discovery is not configured", nil)
	}
	result, err := s.discovery.Run(c.Request().Context())
	if err != nil {
		s.logger.Error().Err(err).Msg("discovery run failed")
		return errorWithData(c, http.StatusInternalServerError, "Discovery failed: "+err.Error(), result)
	}
	return success(c, result)
}

func (s *Server) handleRebuildHomepage(c echo.Context) error {
	if s.ranker == nil {
		return errorWithData(c, http.StatusServiceUnavailable, "Ranker is not configured", nil)
	}
	result, err := s.ranker.Rebuild(c.Request().Context())
	if err != nil {
		s.logger.Error().Err(err).Msg("homepage rebuild failed")
		return errorWithData(c, http.StatusInternalServerError, "Homepage rebuild failed: "+err.Error(), result)
	}
	return success(c, result)
}

func (s *Server) handleCycle(c echo.Context) error {
	if s.cycle == nil {
		return errorWithData(c, http.StatusServiceUnavailable, "Scheduled cycle is not configured", nil)
	}
	outcome, err := s.cycle.RunOnce(c.Request().Context())
	switch {
	case errors.Is(err, scheduler.ErrRunInProgress):
		return fail(c, http.StatusConflict, "A pipeline run is already in progress", nil)
	case err != nil:
		s.logger.Error().Err(err).Msg("discover-and-update failed")
		return errorWithData(c, http.StatusInternalServerError, err.Error(), outcome)
	}
	return success(c, outcome)
}

func (s *Server) handleAnalyze(c echo.Context) error {
	if s.analyzer == nil {
		return errorWithData(c, http.StatusServiceUnavailable, "Analyzer is not configured", nil)
	}

	var req analyzeRequest
	if err := c.Bind(&req); err != nil {
		return failValidation(c, map[string]string{"body": "must be JSON with a url field"})
	}
	if strings.TrimSpace(req.URL) == "" {
		return failValidation(c, map[string]string{"url": "is required"})
	}

	analysis, err := s.analyzer.Analyze(c.Request().Context(), req.URL)
	if err != nil {
		if errors.Is(err, analyze.ErrInvalidURL) {
			return failValidation(c, map[string]string{"url": err.Error()})
		}
		s.logger.Error().Err(err).Str("url", req.URL).Msg("analyze failed")
		return internalError(c, "Failed to analyze article")
	}
	return success(c, analysis)
}

func (s *Server) handleClearAllData(c echo.Context) error {
	counts, err := s.store.WipeIngestedData(c.Request().Context())
	if err != nil {
		s.logger.Error().Err(err).Msg("clear all data failed")
		return internalError(c, "Failed to clear data")
	}
	s.logger.Warn().Int64("rows", counts.Total()).Msg("ingested data cleared")
	return success(c, map[string]any{
		"deleted": counts,
		"total":   counts.Total(),
	})
}
