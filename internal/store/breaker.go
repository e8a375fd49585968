// Feedrank - Personalized Feed Ranking and Caching Engine
// Copyright 2026 OpenLearn HQ
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/openlearnhq/feedrank

package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/sony/gobreaker/v2"

	"github.com/openlearnhq/feedrank/internal/metrics"
)

// BreakerSettings tunes the content-store circuit breaker.
type BreakerSettings struct {
	// MaxFailures is the consecutive-failure count that opens the breaker.
	MaxFailures uint32

	// OpenTimeout is how long the breaker stays open before probing.
	OpenTimeout time.Duration
}

// BreakerStore decorates a ContentStore with a circuit breaker so a failing
// content backend sheds load quickly instead of stacking slow queries.
type BreakerStore struct {
	inner ContentStore
	find  *gobreaker.CircuitBreaker[[]Post]
	count *gobreaker.CircuitBreaker[int]
}

// NewBreakerStore wraps a ContentStore in a circuit breaker.
func NewBreakerStore(inner ContentStore, settings BreakerSettings, logger zerolog.Logger) *BreakerStore {
	if settings.MaxFailures == 0 {
		settings.MaxFailures = 5
	}
	if settings.OpenTimeout <= 0 {
		settings.OpenTimeout = 30 * time.Second
	}

	breakerLogger := logger.With().Str("component", "content-breaker").Logger()
	base := gobreaker.Settings{
		Timeout: settings.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= settings.MaxFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			metrics.BreakerStateChanges.WithLabelValues(from.String(), to.String()).Inc()
			breakerLogger.Warn().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("circuit breaker state change")
		},
	}

	findSettings := base
	findSettings.Name = "content-find"
	countSettings := base
	countSettings.Name = "content-count"

	return &BreakerStore{
		inner: inner,
		find:  gobreaker.NewCircuitBreaker[[]Post](findSettings),
		count: gobreaker.NewCircuitBreaker[int](countSettings),
	}
}

// FindContent delegates through the breaker.
func (s *BreakerStore) FindContent(ctx context.Context, q ContentQuery) ([]Post, error) {
	posts, err := s.find.Execute(func() ([]Post, error) {
		return s.inner.FindContent(ctx, q)
	})
	if err != nil {
		return nil, wrapBreakerErr(err)
	}
	return posts, nil
}

// CountContent delegates through the breaker.
func (s *BreakerStore) CountContent(ctx context.Context, q ContentQuery) (int, error) {
	n, err := s.count.Execute(func() (int, error) {
		return s.inner.CountContent(ctx, q)
	})
	if err != nil {
		return 0, wrapBreakerErr(err)
	}
	return n, nil
}

// wrapBreakerErr maps breaker-rejected calls onto ErrUnavailable so callers
// can distinguish shed load from genuine query failures.
func wrapBreakerErr(err error) error {
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return fmt.Errorf("content store circuit open: %w", ErrUnavailable)
	}
	return err
}

// Ensure interface conformance.
var _ ContentStore = (*BreakerStore)(nil)
