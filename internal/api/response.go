// Feedrank - Personalized Feed Ranking and Caching Engine
// Copyright 2026 OpenLearn HQ
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/openlearnhq/feedrank

// Package api provides the HTTP surface: feed retrieval, feed reset, and
// health endpoints, with a standardized response envelope.
package api

import (
	"net/http"
	"time"

	"github.com/goccy/go-json"

	"github.com/openlearnhq/feedrank/internal/logging"
	"github.com/openlearnhq/feedrank/internal/middleware"
)

// APIResponse is the envelope for every endpoint.
type APIResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   *APIError   `json:"error,omitempty"`
	Meta    *APIMeta    `json:"meta,omitempty"`
}

// APIError carries a machine-readable code plus a human-readable message.
type APIError struct {
	Code      string      `json:"code"`
	Message   string      `json:"message"`
	Details   interface{} `json:"details,omitempty"`
	RequestID string      `json:"request_id,omitempty"`
}

// APIMeta carries response metadata.
type APIMeta struct {
	RequestID  string    `json:"request_id,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
	DurationMs int64     `json:"duration_ms,omitempty"`
}

// Error codes used by this API.
const (
	ErrCodeBadRequest         = "BAD_REQUEST"
	ErrCodeValidationFailed   = "VALIDATION_FAILED"
	ErrCodeNotFound           = "NOT_FOUND"
	ErrCodeUpstreamFailed     = "UPSTREAM_FAILED"
	ErrCodeServiceUnavailable = "SERVICE_UNAVAILABLE"
	ErrCodeInternalError      = "INTERNAL_ERROR"
)

// respond writes the envelope with the given status.
func respond(w http.ResponseWriter, r *http.Request, status int, resp APIResponse) {
	if resp.Meta == nil {
		resp.Meta = &APIMeta{}
	}
	resp.Meta.RequestID = middleware.GetRequestID(r.Context())
	resp.Meta.Timestamp = time.Now().UTC()

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		logging.Error().Err(err).Str("path", r.URL.Path).Msg("response encoding failed")
	}
}

// respondData writes a success envelope.
func respondData(w http.ResponseWriter, r *http.Request, status int, data interface{}) {
	respond(w, r, status, APIResponse{Success: true, Data: data})
}

// respondError writes an error envelope.
func respondError(w http.ResponseWriter, r *http.Request, status int, code, message string, details interface{}) {
	respond(w, r, status, APIResponse{
		Success: false,
		Error: &APIError{
			Code:      code,
			Message:   message,
			Details:   details,
			RequestID: middleware.GetRequestID(r.Context()),
		},
	})
}
