// Feedrank - Personalized Feed Ranking and Caching Engine
// Copyright 2026 OpenLearn HQ
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/openlearnhq/feedrank

package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/goccy/go-json"
	"github.com/rs/zerolog"

	"github.com/openlearnhq/feedrank/internal/feed"
	"github.com/openlearnhq/feedrank/internal/metrics"
	"github.com/openlearnhq/feedrank/internal/store"
)

// Handler serves the feed endpoints.
type Handler struct {
	engine   *feed.Engine
	validate *validator.Validate
	ready    func() bool
	logger   zerolog.Logger
}

// NewHandler creates the endpoint handler. ready reports whether the
// backing stores are reachable; nil means always ready.
func NewHandler(engine *feed.Engine, ready func() bool, logger zerolog.Logger) *Handler {
	if ready == nil {
		ready = func() bool { return true }
	}
	return &Handler{
		engine:   engine,
		validate: validator.New(),
		ready:    ready,
		logger:   logger.With().Str("component", "api").Logger(),
	}
}

// GetFeed handles GET /api/v1/feed.
func (h *Handler) GetFeed(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	req, err := parseFeedRequest(r)
	if err != nil {
		respondError(w, r, http.StatusBadRequest, ErrCodeBadRequest, err.Error(), nil)
		metrics.ObserveFeedRequest(req.ContentType, req.Refresh, http.StatusBadRequest, time.Since(start), 0)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		respondError(w, r, http.StatusBadRequest, ErrCodeValidationFailed, "invalid feed request", validationDetails(err))
		metrics.ObserveFeedRequest(req.ContentType, req.Refresh, http.StatusBadRequest, time.Since(start), 0)
		return
	}

	resp, err := h.engine.Feed(r.Context(), req)
	if err != nil {
		status := http.StatusInternalServerError
		code := ErrCodeInternalError
		if errors.Is(err, feed.ErrUpstream) || errors.Is(err, store.ErrUnavailable) {
			status = http.StatusBadGateway
			code = ErrCodeUpstreamFailed
		}
		h.logger.Error().Err(err).Str("user_id", req.UserID).Msg("feed request failed")
		respondError(w, r, status, code, "feed retrieval failed", nil)
		metrics.ObserveFeedRequest(req.ContentType, req.Refresh, status, time.Since(start), 0)
		return
	}

	respondData(w, r, http.StatusOK, resp)
	metrics.ObserveFeedRequest(req.ContentType, req.Refresh, http.StatusOK, time.Since(start), len(resp.Items))
}

// resetRequest is the POST /api/v1/feed/reset body.
type resetRequest struct {
	UserID string `json:"user_id" validate:"required"`
}

// ResetFeed handles POST /api/v1/feed/reset: clears the user's seen set and
// drops their cached pools and pages.
func (h *Handler) ResetFeed(w http.ResponseWriter, r *http.Request) {
	var req resetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, r, http.StatusBadRequest, ErrCodeBadRequest, "malformed request body", nil)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		respondError(w, r, http.StatusBadRequest, ErrCodeValidationFailed, "user_id is required", nil)
		return
	}

	h.engine.Reset(req.UserID)
	respondData(w, r, http.StatusOK, map[string]string{"status": "reset", "user_id": req.UserID})
}

// Health handles GET /api/v1/health.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	status := "ok"
	code := http.StatusOK
	if !h.ready() {
		status = "degraded"
		code = http.StatusServiceUnavailable
	}
	respondData(w, r, code, map[string]string{"status": status})
}

// HealthLive handles GET /api/v1/health/live.
func (h *Handler) HealthLive(w http.ResponseWriter, r *http.Request) {
	respondData(w, r, http.StatusOK, map[string]string{"status": "alive"})
}

// HealthReady handles GET /api/v1/health/ready.
func (h *Handler) HealthReady(w http.ResponseWriter, r *http.Request) {
	if !h.ready() {
		respondError(w, r, http.StatusServiceUnavailable, ErrCodeServiceUnavailable, "stores not ready", nil)
		return
	}
	respondData(w, r, http.StatusOK, map[string]string{"status": "ready"})
}

// parseFeedRequest maps query parameters onto a feed request. Malformed
// numerics and booleans are rejected before any work begins.
func parseFeedRequest(r *http.Request) (feed.Request, error) {
	q := r.URL.Query()
	req := feed.Request{
		UserID:      q.Get("user_id"),
		Cursor:      q.Get("cursor"),
		ContentType: q.Get("content_type"),
		Quality:     q.Get("quality"),
	}

	if raw := q.Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil {
			return req, errors.New("limit must be an integer")
		}
		req.Limit = limit
	}
	if raw := q.Get("refresh"); raw != "" {
		refresh, err := strconv.ParseBool(raw)
		if err != nil {
			return req, errors.New("refresh must be a boolean")
		}
		req.Refresh = refresh
	}
	return req, nil
}

// validationDetails flattens validator errors into field/constraint pairs.
func validationDetails(err error) map[string]string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return nil
	}
	details := make(map[string]string, len(verrs))
	for _, fe := range verrs {
		details[fe.Field()] = fe.Tag()
	}
	return details
}
