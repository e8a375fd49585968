// Feedrank - Personalized Feed Ranking and Caching Engine
// Copyright 2026 OpenLearn HQ
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/openlearnhq/feedrank

// Package pool assembles the candidate pool from six competing strategies,
// each with a quota of the target size, queried in parallel against the
// content store with seen-content excluded at query time.
package pool

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/openlearnhq/feedrank/internal/cache"
	"github.com/openlearnhq/feedrank/internal/feed"
	"github.com/openlearnhq/feedrank/internal/metrics"
	"github.com/openlearnhq/feedrank/internal/profile"
	"github.com/openlearnhq/feedrank/internal/store"
)

// Strategy quotas as fractions of the target pool size. Each strategy gets
// at least one slot.
const (
	quotaFollowed  = 0.50
	quotaTrending  = 0.20
	quotaRecent    = 0.15
	quotaInterest  = 0.10
	quotaAffinity  = 0.10
	quotaDiscovery = 0.05
)

// Options holds the tunable strategy parameters.
type Options struct {
	// TrendingMinViews is the view-count floor for the trending strategy.
	TrendingMinViews int64

	// RecentWindow bounds the recent strategy; the discovery strategy serves
	// content older than this.
	RecentWindow time.Duration
}

// DefaultOptions returns the standard strategy parameters.
func DefaultOptions() Options {
	return Options{
		TrendingMinViews: 100,
		RecentWindow:     7 * 24 * time.Hour,
	}
}

// Preference seeds per strategy, folded into the preference sub-score.
var strategySeeds = map[feed.Strategy]float64{
	feed.StrategyFollowed:  1.0,
	feed.StrategyInterest:  0.8,
	feed.StrategyAffinity:  0.7,
	feed.StrategyTrending:  0.6,
	feed.StrategyRecent:    0.5,
	feed.StrategyDiscovery: 0.3,
}

// Assembler implements feed.PoolAssembler against a ContentStore.
type Assembler struct {
	content store.ContentStore
	cache   *cache.TieredCache
	opts    Options
	clock   func() time.Time
	logger  zerolog.Logger
}

// NewAssembler creates an assembler. clock may be nil (defaults to time.Now).
func NewAssembler(content store.ContentStore, tc *cache.TieredCache, opts Options, clock func() time.Time, logger zerolog.Logger) *Assembler {
	if clock == nil {
		clock = time.Now
	}
	if opts.TrendingMinViews <= 0 {
		opts.TrendingMinViews = DefaultOptions().TrendingMinViews
	}
	if opts.RecentWindow <= 0 {
		opts.RecentWindow = DefaultOptions().RecentWindow
	}
	return &Assembler{
		content: content,
		cache:   tc,
		opts:    opts,
		clock:   clock,
		logger:  logger.With().Str("component", "pool").Logger(),
	}
}

// strategyQuery pairs a strategy tag with its store query.
type strategyQuery struct {
	strategy feed.Strategy
	query    store.ContentQuery
}

// Assemble gathers up to target deduplicated candidates. Any strategy query
// failure fails the whole assembly. Cached pools are re-filtered against the
// current seen set so a served item never resurfaces within the pool TTL.
func (a *Assembler) Assemble(ctx context.Context, user *profile.Context, seen map[string]struct{}, contentType string, target int) ([]feed.ContentCandidate, error) {
	if target < 1 {
		target = 1
	}

	key := poolKey(user.UserID, contentType, target)
	if cached, ok := a.cache.Get(key); ok {
		if pool, ok := cached.([]feed.ContentCandidate); ok {
			return filterSeen(pool, seen), nil
		}
	}

	start := a.clock()
	queries := a.buildQueries(user, seen, contentType, target)

	results := make([][]feed.ContentCandidate, len(queries))
	g, gctx := errgroup.WithContext(ctx)
	for i, sq := range queries {
		i, sq := i, sq
		g.Go(func() error {
			posts, err := a.content.FindContent(gctx, sq.query)
			if err != nil {
				metrics.PoolStrategyResults.WithLabelValues(string(sq.strategy)).Add(0)
				return fmt.Errorf("strategy %s: %w", sq.strategy, err)
			}
			metrics.PoolStrategyResults.WithLabelValues(string(sq.strategy)).Add(float64(len(posts)))
			results[i] = tag(posts, sq.strategy)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("assemble pool for %s: %w", user.UserID, err)
	}

	pool := dedupe(results, target)
	metrics.PoolAssemblyDuration.Observe(a.clock().Sub(start).Seconds())

	a.cache.Put(key, pool, cache.Hint{Popularity: cache.TierWarm})

	a.logger.Debug().
		Str("user_id", user.UserID).
		Str("content_type", contentType).
		Int("target", target).
		Int("pool_size", len(pool)).
		Msg("pool assembled")

	return pool, nil
}

// InvalidateUser drops every cached pool for the user.
func (a *Assembler) InvalidateUser(userID string) {
	prefix := "pool:" + userID + ":"
	n := a.cache.DeleteFunc(func(key string) bool {
		return len(key) >= len(prefix) && key[:len(prefix)] == prefix
	})
	if n > 0 {
		a.logger.Debug().Str("user_id", userID).Int("dropped", n).Msg("pool cache invalidated")
	}
}

// buildQueries produces one bounded query per applicable strategy.
func (a *Assembler) buildQueries(user *profile.Context, seen map[string]struct{}, contentType string, target int) []strategyQuery {
	now := a.clock()
	queries := make([]strategyQuery, 0, 6)

	base := store.ContentQuery{
		ContentType: contentType,
		ExcludeIDs:  seen,
	}

	if len(user.Following) > 0 {
		q := base
		q.AuthorIDs = sortedKeys(user.Following)
		q.Sort = store.SortNewest
		q.Limit = quota(target, quotaFollowed)
		queries = append(queries, strategyQuery{feed.StrategyFollowed, q})
	}

	trending := base
	trending.MinViews = a.opts.TrendingMinViews
	trending.Sort = store.SortMostViewed
	trending.Limit = quota(target, quotaTrending)
	queries = append(queries, strategyQuery{feed.StrategyTrending, trending})

	recent := base
	recent.CreatedAfter = now.Add(-a.opts.RecentWindow)
	recent.Sort = store.SortNewest
	recent.Limit = quota(target, quotaRecent)
	queries = append(queries, strategyQuery{feed.StrategyRecent, recent})

	if len(user.Interests) > 0 {
		q := base
		q.TextMatch = user.Interests
		q.Sort = store.SortNewest
		q.Limit = quota(target, quotaInterest)
		queries = append(queries, strategyQuery{feed.StrategyInterest, q})
	}

	if user.Profession != "" || user.Location != "" {
		q := base
		for _, term := range []string{user.Profession, user.Location} {
			if term != "" {
				q.TextMatch = append(q.TextMatch, term)
			}
		}
		q.Sort = store.SortNewest
		q.Limit = quota(target, quotaAffinity)
		queries = append(queries, strategyQuery{feed.StrategyAffinity, q})
	}

	discovery := base
	discovery.CreatedBefore = now.Add(-a.opts.RecentWindow)
	discovery.Sort = store.SortIDAsc
	discovery.Limit = quota(target, quotaDiscovery)
	queries = append(queries, strategyQuery{feed.StrategyDiscovery, discovery})

	return queries
}

// quota converts a fractional quota into a slot count, never below one.
func quota(target int, fraction float64) int {
	n := int(float64(target) * fraction)
	if n < 1 {
		n = 1
	}
	return n
}

// tag wraps posts with their contributing strategy and its preference seed.
func tag(posts []store.Post, strategy feed.Strategy) []feed.ContentCandidate {
	seed := strategySeeds[strategy]
	out := make([]feed.ContentCandidate, len(posts))
	for i, p := range posts {
		out[i] = feed.ContentCandidate{
			Post:            p,
			Strategy:        strategy,
			PreferenceScore: seed,
		}
	}
	return out
}

// dedupe concatenates strategy results in declaration order and keeps the
// first occurrence of each id, capped at target.
func dedupe(results [][]feed.ContentCandidate, target int) []feed.ContentCandidate {
	seen := make(map[string]struct{})
	pool := make([]feed.ContentCandidate, 0, target)
	for _, batch := range results {
		for _, cand := range batch {
			if _, dup := seen[cand.ID]; dup {
				continue
			}
			seen[cand.ID] = struct{}{}
			pool = append(pool, cand)
			if len(pool) >= target {
				return pool
			}
		}
	}
	return pool
}

// filterSeen removes seen ids from a cached pool.
func filterSeen(pool []feed.ContentCandidate, seen map[string]struct{}) []feed.ContentCandidate {
	if len(seen) == 0 {
		return pool
	}
	out := make([]feed.ContentCandidate, 0, len(pool))
	for _, cand := range pool {
		if _, hit := seen[cand.ID]; hit {
			continue
		}
		out = append(out, cand)
	}
	return out
}

// sortedKeys returns map keys in deterministic order.
func sortedKeys(set map[string]struct{}) []string {
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// poolKey is prefix-addressable by user id for targeted invalidation.
func poolKey(userID, contentType string, target int) string {
	return "pool:" + userID + ":" + contentType + ":" + strconv.Itoa(target)
}
