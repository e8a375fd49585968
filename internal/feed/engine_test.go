// Feedrank - Personalized Feed Ranking and Caching Engine
// Copyright 2026 OpenLearn HQ
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/openlearnhq/feedrank

package feed

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openlearnhq/feedrank/internal/batch"
	"github.com/openlearnhq/feedrank/internal/cache"
	"github.com/openlearnhq/feedrank/internal/events"
	"github.com/openlearnhq/feedrank/internal/profile"
	"github.com/openlearnhq/feedrank/internal/seen"
	"github.com/openlearnhq/feedrank/internal/store"
)

var engineTime = time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)

// stubSocial backs the profile builder.
type stubSocial struct {
	err error
}

func (s *stubSocial) GetUser(ctx context.Context, userID string) (store.User, error) {
	if s.err != nil {
		return store.User{}, s.err
	}
	return store.User{ID: userID, Interests: []string{"golang"}}, nil
}

func (s *stubSocial) Following(ctx context.Context, userID string, limit int) ([]string, error) {
	return []string{"a1"}, s.err
}

func (s *stubSocial) Followers(ctx context.Context, userID string, limit int) ([]string, error) {
	return nil, s.err
}

// stubEngagement serves empty history and fixed counters.
type stubEngagement struct {
	countsErr error
}

func (s *stubEngagement) RecentEventsByUser(ctx context.Context, userID string, kind store.EventKind, limit int) ([]store.Event, error) {
	return nil, nil
}

func (s *stubEngagement) CountsByItem(ctx context.Context, itemIDs []string) (map[string]store.Counts, error) {
	if s.countsErr != nil {
		return nil, s.countsErr
	}
	counts := make(map[string]store.Counts, len(itemIDs))
	for _, id := range itemIDs {
		counts[id] = store.Counts{Likes: 1}
	}
	return counts, nil
}

// stubPool serves a fixed candidate list and records calls.
type stubPool struct {
	mu          sync.Mutex
	candidates  []ContentCandidate
	err         error
	calls       int
	lastSeen    map[string]struct{}
	invalidated []string
}

func (p *stubPool) Assemble(ctx context.Context, user *profile.Context, seenSet map[string]struct{}, contentType string, target int) ([]ContentCandidate, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	p.lastSeen = seenSet
	if p.err != nil {
		return nil, p.err
	}

	out := make([]ContentCandidate, 0, len(p.candidates))
	for _, cand := range p.candidates {
		if _, hit := seenSet[cand.ID]; hit {
			continue
		}
		out = append(out, cand)
		if len(out) >= target {
			break
		}
	}
	return out, nil
}

func (p *stubPool) InvalidateUser(userID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.invalidated = append(p.invalidated, userID)
}

// viewScorer ranks by view count, scaled into [0, 1].
type viewScorer struct{}

func (viewScorer) Score(user *profile.Context, cand ContentCandidate, counts store.Counts, now time.Time, jitter *rand.Rand) ScoredContent {
	rank := float64(cand.Views) / 1000
	if jitter != nil {
		rank += jitter.Float64() * 0.1
	}
	if rank > 1 {
		rank = 1
	}
	return ScoredContent{ContentCandidate: cand, RankScore: rank, QualityScore: 0.5, Priority: PriorityNormal}
}

// passMixer paginates without reordering.
type passMixer struct{}

func (passMixer) Mix(items []ScoredContent, cursor string, limit int, seed int64) ([]ScoredContent, bool, string) {
	start := 0
	if cursor != "" {
		for i, item := range items {
			if item.ID == cursor {
				start = i + 1
				break
			}
		}
	}
	end := start + limit
	if end > len(items) {
		end = len(items)
	}
	page := items[start:end]
	hasMore := end < len(items)
	next := ""
	if hasMore && len(page) > 0 {
		next = page[len(page)-1].ID
	}
	return page, hasMore, next
}

func candidates(n int) []ContentCandidate {
	out := make([]ContentCandidate, n)
	for i := range out {
		out[i] = ContentCandidate{
			Post: store.Post{
				ID:        fmt.Sprintf("p%03d", i),
				AuthorID:  "a1",
				Type:      "text",
				Views:     int64(1000 - i),
				CreatedAt: engineTime.Add(-time.Hour),
			},
			Strategy: StrategyFollowed,
		}
	}
	return out
}

type engineFixture struct {
	engine  *Engine
	pool    *stubPool
	tracker *seen.Tracker
	cache   *cache.TieredCache
	social  *stubSocial
}

func newFixture(t *testing.T, pool *stubPool, engagement store.EngagementStore) *engineFixture {
	t.Helper()
	clock := func() time.Time { return engineTime }
	tc := cache.New(cache.DefaultOptions(), zerolog.Nop())
	tracker := seen.NewTracker(1000, 24*time.Hour, clock, zerolog.Nop())
	social := &stubSocial{}

	builder := profile.NewBuilder(social, engagement, tc, zerolog.Nop())
	processor := batch.NewProcessor(batch.DefaultOptions(), nil, zerolog.Nop())

	engine := NewEngine(
		Options{Clock: clock, JitterSeed: func() int64 { return 42 }},
		builder, pool, viewScorer{}, passMixer{}, processor,
		tracker, engagement, tc, nil, zerolog.Nop(),
	)
	return &engineFixture{engine: engine, pool: pool, tracker: tracker, cache: tc, social: social}
}

func TestFeedReturnsPageWithCursor(t *testing.T) {
	f := newFixture(t, &stubPool{candidates: candidates(15)}, &stubEngagement{})

	resp, err := f.engine.Feed(context.Background(), Request{UserID: "u1", Limit: 5})
	require.NoError(t, err)

	assert.Len(t, resp.Items, 5)
	assert.True(t, resp.HasMore)
	assert.Equal(t, resp.Items[4].ID, resp.NextCursor)
	assert.Equal(t, 15, resp.Metrics.PoolSize)
	assert.False(t, resp.Metrics.FromCache)
}

func TestFeedTracksServedItems(t *testing.T) {
	f := newFixture(t, &stubPool{candidates: candidates(15)}, &stubEngagement{})
	ctx := context.Background()

	resp, err := f.engine.Feed(ctx, Request{UserID: "u1", Limit: 5})
	require.NoError(t, err)

	seenSet := f.tracker.Get("u1")
	for _, item := range resp.Items {
		assert.Contains(t, seenSet, item.ID)
	}

	// the next assembly receives the served ids for exclusion
	_, err = f.engine.Feed(ctx, Request{UserID: "u1", Limit: 5, Refresh: true})
	require.NoError(t, err)
	for _, item := range resp.Items {
		assert.Contains(t, f.pool.lastSeen, item.ID)
	}
}

func TestFeedSeenSetCurrentWithBusWired(t *testing.T) {
	clock := func() time.Time { return engineTime }
	tc := cache.New(cache.DefaultOptions(), zerolog.Nop())
	tracker := seen.NewTracker(1000, 24*time.Hour, clock, zerolog.Nop())
	bus := events.NewBus(zerolog.Nop())
	defer func() { _ = bus.Close() }()

	consumerCtx, stopConsumer := context.WithCancel(context.Background())
	defer stopConsumer()
	go func() { _ = events.NewSeenConsumer(bus, tracker, zerolog.Nop()).Serve(consumerCtx) }()

	pool := &stubPool{candidates: candidates(12)}
	engagement := &stubEngagement{}
	builder := profile.NewBuilder(&stubSocial{}, engagement, tc, zerolog.Nop())
	processor := batch.NewProcessor(batch.DefaultOptions(), nil, zerolog.Nop())
	engine := NewEngine(
		Options{Clock: clock, JitterSeed: func() int64 { return 42 }},
		builder, pool, viewScorer{}, passMixer{}, processor,
		tracker, engagement, tc, bus, zerolog.Nop(),
	)
	ctx := context.Background()

	first, err := engine.Feed(ctx, Request{UserID: "u1", Limit: 5})
	require.NoError(t, err)
	require.Len(t, first.Items, 5)

	// served ids are in the seen set before the response is even observed,
	// without waiting on bus delivery
	seenSet := tracker.Get("u1")
	servedIDs := make(map[string]struct{}, len(first.Items))
	for _, item := range first.Items {
		assert.Contains(t, seenSet, item.ID)
		servedIDs[item.ID] = struct{}{}
	}

	// an immediate follow-up assembles against the updated set and
	// re-serves nothing
	second, err := engine.Feed(ctx, Request{UserID: "u1", Limit: 5, Refresh: true})
	require.NoError(t, err)
	require.NotEmpty(t, second.Items)
	for _, item := range second.Items {
		assert.NotContains(t, servedIDs, item.ID)
	}
}

func TestFeedRepeatServedFromCache(t *testing.T) {
	f := newFixture(t, &stubPool{candidates: candidates(15)}, &stubEngagement{})
	ctx := context.Background()
	req := Request{UserID: "u1", Limit: 5}

	first, err := f.engine.Feed(ctx, req)
	require.NoError(t, err)
	second, err := f.engine.Feed(ctx, req)
	require.NoError(t, err)

	assert.True(t, second.Metrics.FromCache)
	require.Len(t, second.Items, len(first.Items))
	for i := range first.Items {
		assert.Equal(t, first.Items[i].ID, second.Items[i].ID)
	}
	assert.Equal(t, 1, f.pool.calls)
}

func TestFeedRefreshBypassesResponseCache(t *testing.T) {
	f := newFixture(t, &stubPool{candidates: candidates(60)}, &stubEngagement{})
	ctx := context.Background()

	_, err := f.engine.Feed(ctx, Request{UserID: "u1", Limit: 5})
	require.NoError(t, err)
	callsAfterFirst := f.pool.calls

	resp, err := f.engine.Feed(ctx, Request{UserID: "u1", Limit: 5, Refresh: true})
	require.NoError(t, err)
	assert.False(t, resp.Metrics.FromCache)
	assert.Greater(t, f.pool.calls, callsAfterFirst)
}

func TestFeedUpstreamFailureFailsClosed(t *testing.T) {
	t.Run("pool failure", func(t *testing.T) {
		f := newFixture(t, &stubPool{err: errors.New("store down")}, &stubEngagement{})

		_, err := f.engine.Feed(context.Background(), Request{UserID: "u1"})
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrUpstream)
	})

	t.Run("profile failure", func(t *testing.T) {
		f := newFixture(t, &stubPool{candidates: candidates(5)}, &stubEngagement{})
		f.social.err = errors.New("graph down")

		_, err := f.engine.Feed(context.Background(), Request{UserID: "u1"})
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrUpstream)
	})

	t.Run("engagement failure", func(t *testing.T) {
		f := newFixture(t, &stubPool{candidates: candidates(5)}, &stubEngagement{countsErr: errors.New("duck down")})

		_, err := f.engine.Feed(context.Background(), Request{UserID: "u1"})
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrUpstream)
	})
}

func TestResetAllowsResurfacing(t *testing.T) {
	f := newFixture(t, &stubPool{candidates: candidates(8)}, &stubEngagement{})
	ctx := context.Background()

	first, err := f.engine.Feed(ctx, Request{UserID: "u1", Limit: 5})
	require.NoError(t, err)
	require.NotEmpty(t, first.Items)
	servedID := first.Items[0].ID
	require.Contains(t, f.tracker.Get("u1"), servedID)

	f.engine.Reset("u1")

	assert.Empty(t, f.tracker.Get("u1"))
	assert.Contains(t, f.pool.invalidated, "u1")

	// previously served id can come back now
	again, err := f.engine.Feed(ctx, Request{UserID: "u1", Limit: 5})
	require.NoError(t, err)
	ids := make([]string, 0, len(again.Items))
	for _, item := range again.Items {
		ids = append(ids, item.ID)
	}
	assert.Contains(t, ids, servedID)
}

func TestFeedNormalizesLimits(t *testing.T) {
	f := newFixture(t, &stubPool{candidates: candidates(300)}, &stubEngagement{})
	ctx := context.Background()

	resp, err := f.engine.Feed(ctx, Request{UserID: "u1"})
	require.NoError(t, err)
	assert.Len(t, resp.Items, 20)

	resp, err = f.engine.Feed(ctx, Request{UserID: "u2", Limit: 500})
	require.NoError(t, err)
	assert.Len(t, resp.Items, 50)
}

func TestFeedEmptyPool(t *testing.T) {
	f := newFixture(t, &stubPool{}, &stubEngagement{})

	resp, err := f.engine.Feed(context.Background(), Request{UserID: "u1", Limit: 5})
	require.NoError(t, err)
	assert.Empty(t, resp.Items)
	assert.False(t, resp.HasMore)
	assert.Empty(t, resp.NextCursor)
}

func TestRequestSeedDeterministic(t *testing.T) {
	a := Request{UserID: "u1", Limit: 20, ContentType: "all"}
	b := Request{UserID: "u1", Limit: 20, ContentType: "all"}
	assert.Equal(t, requestSeed(a), requestSeed(b))

	c := Request{UserID: "u2", Limit: 20, ContentType: "all"}
	assert.NotEqual(t, requestSeed(a), requestSeed(c))
}
