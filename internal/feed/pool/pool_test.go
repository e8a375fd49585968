// Feedrank - Personalized Feed Ranking and Caching Engine
// Copyright 2026 OpenLearn HQ
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/openlearnhq/feedrank

package pool

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openlearnhq/feedrank/internal/cache"
	"github.com/openlearnhq/feedrank/internal/feed"
	"github.com/openlearnhq/feedrank/internal/profile"
	"github.com/openlearnhq/feedrank/internal/store"
)

var poolTime = time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)

// scriptedStore returns canned posts per strategy shape.
type scriptedStore struct {
	mu      sync.Mutex
	posts   []store.Post
	err     error
	queries []store.ContentQuery
}

func (s *scriptedStore) FindContent(ctx context.Context, q store.ContentQuery) ([]store.Post, error) {
	s.mu.Lock()
	s.queries = append(s.queries, q)
	s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}

	out := make([]store.Post, 0)
	for _, p := range s.posts {
		if _, excluded := q.ExcludeIDs[p.ID]; excluded {
			continue
		}
		if len(q.AuthorIDs) > 0 && !contains(q.AuthorIDs, p.AuthorID) {
			continue
		}
		if q.MinViews > 0 && p.Views < q.MinViews {
			continue
		}
		if !q.CreatedAfter.IsZero() && !p.CreatedAt.After(q.CreatedAfter) {
			continue
		}
		if !q.CreatedBefore.IsZero() && !p.CreatedAt.Before(q.CreatedBefore) {
			continue
		}
		out = append(out, p)
		if q.Limit > 0 && len(out) >= q.Limit {
			break
		}
	}
	return out, nil
}

func (s *scriptedStore) CountContent(ctx context.Context, q store.ContentQuery) (int, error) {
	posts, err := s.FindContent(ctx, q)
	return len(posts), err
}

func contains(list []string, v string) bool {
	for _, x := range list {
		if x == v {
			return true
		}
	}
	return false
}

func poolUser() *profile.Context {
	return &profile.Context{
		UserID:     "u1",
		Interests:  []string{"golang"},
		Profession: "engineer",
		Following:  map[string]struct{}{"a1": {}},
	}
}

func post(id, author string, views int64, age time.Duration) store.Post {
	return store.Post{ID: id, AuthorID: author, Type: "text", Views: views, CreatedAt: poolTime.Add(-age)}
}

func newAssembler(s store.ContentStore) (*Assembler, *cache.TieredCache) {
	tc := cache.New(cache.DefaultOptions(), zerolog.Nop())
	return NewAssembler(s, tc, DefaultOptions(), func() time.Time { return poolTime }, zerolog.Nop()), tc
}

func TestAssembleDeduplicatesById(t *testing.T) {
	// p1 matches followed, trending, and recent
	s := &scriptedStore{posts: []store.Post{
		post("p1", "a1", 500, time.Hour),
		post("p2", "a2", 500, 2*time.Hour),
		post("p3", "a2", 10, 30*24*time.Hour),
	}}
	a, _ := newAssembler(s)

	pool, err := a.Assemble(context.Background(), poolUser(), nil, "all", 20)
	require.NoError(t, err)

	ids := make(map[string]int)
	for _, cand := range pool {
		ids[cand.ID]++
	}
	for id, n := range ids {
		assert.Equal(t, 1, n, "id %s appeared %d times", id, n)
	}
}

func TestAssembleFirstOccurrenceWins(t *testing.T) {
	s := &scriptedStore{posts: []store.Post{post("p1", "a1", 500, time.Hour)}}
	a, _ := newAssembler(s)

	pool, err := a.Assemble(context.Background(), poolUser(), nil, "all", 20)
	require.NoError(t, err)
	require.NotEmpty(t, pool)

	// followed is declared first, so p1 carries the followed tag
	assert.Equal(t, feed.StrategyFollowed, pool[0].Strategy)
	assert.Equal(t, strategySeeds[feed.StrategyFollowed], pool[0].PreferenceScore)
}

func TestAssembleExcludesSeen(t *testing.T) {
	s := &scriptedStore{posts: []store.Post{
		post("p1", "a1", 0, time.Hour),
		post("p2", "a1", 0, time.Hour),
	}}
	a, _ := newAssembler(s)

	seen := map[string]struct{}{"p1": {}}
	pool, err := a.Assemble(context.Background(), poolUser(), seen, "all", 20)
	require.NoError(t, err)

	for _, cand := range pool {
		assert.NotEqual(t, "p1", cand.ID)
	}
}

func TestAssembleCachedPoolRefiltered(t *testing.T) {
	s := &scriptedStore{posts: []store.Post{
		post("p1", "a1", 0, time.Hour),
		post("p2", "a1", 0, time.Hour),
	}}
	a, _ := newAssembler(s)
	ctx := context.Background()
	user := poolUser()

	first, err := a.Assemble(ctx, user, nil, "all", 20)
	require.NoError(t, err)
	require.NotEmpty(t, first)

	queriesAfterFirst := len(s.queries)

	// second call hits the cached pool but must not resurface p1
	second, err := a.Assemble(ctx, user, map[string]struct{}{"p1": {}}, "all", 20)
	require.NoError(t, err)
	assert.Len(t, s.queries, queriesAfterFirst)
	for _, cand := range second {
		assert.NotEqual(t, "p1", cand.ID)
	}
}

func TestAssembleFailsClosedOnStoreError(t *testing.T) {
	s := &scriptedStore{err: errors.New("store down")}
	a, _ := newAssembler(s)

	_, err := a.Assemble(context.Background(), poolUser(), nil, "all", 20)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "assemble pool")
}

func TestAssembleSkipsInapplicableStrategies(t *testing.T) {
	s := &scriptedStore{}
	a, _ := newAssembler(s)

	// no following, no interests, no profession/location
	user := &profile.Context{UserID: "u2"}
	_, err := a.Assemble(context.Background(), user, nil, "all", 20)
	require.NoError(t, err)

	// trending, recent, discovery only
	assert.Len(t, s.queries, 3)
}

func TestQuotaFloorsAtOne(t *testing.T) {
	assert.Equal(t, 1, quota(4, 0.05))
	assert.Equal(t, 10, quota(20, 0.50))
}

func TestInvalidateUserDropsOnlyThatUser(t *testing.T) {
	s := &scriptedStore{posts: []store.Post{post("p1", "a1", 0, time.Hour)}}
	a, tc := newAssembler(s)
	ctx := context.Background()

	_, err := a.Assemble(ctx, poolUser(), nil, "all", 20)
	require.NoError(t, err)
	_, err = a.Assemble(ctx, &profile.Context{UserID: "u2"}, nil, "all", 20)
	require.NoError(t, err)

	before := len(s.queries)
	a.InvalidateUser("u1")

	// u1 re-queries, u2 still cached
	_, err = a.Assemble(ctx, poolUser(), nil, "all", 20)
	require.NoError(t, err)
	assert.Greater(t, len(s.queries), before)

	_, ok := tc.Get(poolKey("u2", "all", 20))
	assert.True(t, ok)
}

func TestAssembleCapsAtTarget(t *testing.T) {
	posts := make([]store.Post, 0, 100)
	for i := 0; i < 100; i++ {
		posts = append(posts, post("p"+string(rune('a'+i%26))+string(rune('a'+i/26)), "a1", 500, time.Hour))
	}
	s := &scriptedStore{posts: posts}
	a, _ := newAssembler(s)

	pool, err := a.Assemble(context.Background(), poolUser(), nil, "all", 10)
	require.NoError(t, err)
	assert.LessOrEqual(t, len(pool), 10)
}
