// Feedrank - Personalized Feed Ranking and Caching Engine
// Copyright 2026 OpenLearn HQ
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/openlearnhq/feedrank

package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// flakyStore fails until recovered is set.
type flakyStore struct {
	recovered bool
	calls     int
}

func (f *flakyStore) FindContent(ctx context.Context, q ContentQuery) ([]Post, error) {
	f.calls++
	if !f.recovered {
		return nil, errors.New("backend down")
	}
	return []Post{{ID: "p1"}}, nil
}

func (f *flakyStore) CountContent(ctx context.Context, q ContentQuery) (int, error) {
	if !f.recovered {
		return 0, errors.New("backend down")
	}
	return 1, nil
}

func TestBreakerOpensAfterConsecutiveFailures(t *testing.T) {
	inner := &flakyStore{}
	s := NewBreakerStore(inner, BreakerSettings{MaxFailures: 3, OpenTimeout: time.Minute}, zerolog.Nop())
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := s.FindContent(ctx, ContentQuery{})
		require.Error(t, err)
		assert.False(t, errors.Is(err, ErrUnavailable))
	}

	// Breaker is now open: calls are shed without reaching the backend
	callsBefore := inner.calls
	_, err := s.FindContent(ctx, ContentQuery{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnavailable))
	assert.Equal(t, callsBefore, inner.calls)
}

func TestBreakerPassesThroughOnSuccess(t *testing.T) {
	inner := &flakyStore{recovered: true}
	s := NewBreakerStore(inner, BreakerSettings{}, zerolog.Nop())

	posts, err := s.FindContent(context.Background(), ContentQuery{})
	require.NoError(t, err)
	assert.Len(t, posts, 1)

	n, err := s.CountContent(context.Background(), ContentQuery{})
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}
