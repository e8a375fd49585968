// Feedrank - Personalized Feed Ranking and Caching Engine
// Copyright 2026 OpenLearn HQ
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/openlearnhq/feedrank

package feed

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"math/rand"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/openlearnhq/feedrank/internal/batch"
	"github.com/openlearnhq/feedrank/internal/cache"
	"github.com/openlearnhq/feedrank/internal/events"
	"github.com/openlearnhq/feedrank/internal/profile"
	"github.com/openlearnhq/feedrank/internal/seen"
	"github.com/openlearnhq/feedrank/internal/store"
)

// ErrUpstream marks a collaborator read failure. No partial feed is returned
// when it occurs.
var ErrUpstream = errors.New("feed: upstream failure")

// Options configures an Engine.
type Options struct {
	// DefaultLimit applies when a request omits its limit; MaxLimit clamps it.
	DefaultLimit int
	MaxLimit     int

	// PoolMultiplier sizes the candidate pool as limit * PoolMultiplier.
	PoolMultiplier int

	// Clock is injectable for tests. Nil means time.Now.
	Clock func() time.Time

	// JitterSeed supplies the seed for refresh-mode jitter and shuffling.
	// Nil means a seed derived from the clock.
	JitterSeed func() int64
}

// DefaultEngineOptions returns the standard engine configuration.
func DefaultEngineOptions() Options {
	return Options{DefaultLimit: 20, MaxLimit: 50, PoolMultiplier: 4}
}

// Engine runs the full ranking pipeline for one feed request.
type Engine struct {
	opts       Options
	profiles   *profile.Builder
	pool       PoolAssembler
	scorer     Scorer
	mixer      Mixer
	processor  *batch.Processor
	seen       *seen.Tracker
	engagement store.EngagementStore
	cache      *cache.TieredCache
	bus        *events.Bus
	logger     zerolog.Logger
}

// NewEngine wires the pipeline stages together. Served ids are always
// tracked synchronously; a non-nil bus additionally fans feed.served events
// out to subscribers.
func NewEngine(
	opts Options,
	profiles *profile.Builder,
	pool PoolAssembler,
	scorer Scorer,
	mixer Mixer,
	processor *batch.Processor,
	tracker *seen.Tracker,
	engagement store.EngagementStore,
	tc *cache.TieredCache,
	bus *events.Bus,
	logger zerolog.Logger,
) *Engine {
	def := DefaultEngineOptions()
	if opts.DefaultLimit <= 0 {
		opts.DefaultLimit = def.DefaultLimit
	}
	if opts.MaxLimit <= 0 {
		opts.MaxLimit = def.MaxLimit
	}
	if opts.PoolMultiplier <= 0 {
		opts.PoolMultiplier = def.PoolMultiplier
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	if opts.JitterSeed == nil {
		clock := opts.Clock
		opts.JitterSeed = func() int64 { return clock().UnixNano() }
	}

	return &Engine{
		opts:       opts,
		profiles:   profiles,
		pool:       pool,
		scorer:     scorer,
		mixer:      mixer,
		processor:  processor,
		seen:       tracker,
		engagement: engagement,
		cache:      tc,
		bus:        bus,
		logger:     logger.With().Str("component", "engine").Logger(),
	}
}

// Feed serves one page of the user's ranked feed.
func (e *Engine) Feed(ctx context.Context, req Request) (*Response, error) {
	req = e.normalize(req)
	start := e.opts.Clock()

	respKey := responseKey(req)
	if req.Refresh {
		// force-refresh recomputes, so the user's cached pages are stale
		e.invalidateResponses(req.UserID)
	} else if cached, ok := e.cache.Get(respKey); ok {
		if resp, ok := cached.(*Response); ok {
			out := *resp
			out.Metrics.FromCache = true
			return &out, nil
		}
	}

	user, err := e.profiles.Build(ctx, req.UserID)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUpstream, err)
	}

	seenSet := e.seen.Get(req.UserID)

	target := req.Limit * e.opts.PoolMultiplier
	candidates, err := e.pool.Assemble(ctx, user, seenSet, req.ContentType, target)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUpstream, err)
	}

	snapshot, err := e.engagementFor(ctx, candidates)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUpstream, err)
	}

	var jitter *rand.Rand
	if req.Refresh {
		jitter = rand.New(&lockedSource{src: rand.NewSource(e.opts.JitterSeed())})
	}

	now := e.opts.Clock()
	priority := batch.PriorityNormal
	if req.Quality == QualityLow {
		priority = batch.PriorityLow
	}

	scored, err := batch.Process(ctx, e.processor, candidates, priority,
		func(_ context.Context, cand ContentCandidate) (ScoredContent, error) {
			if cand.ID == "" {
				return ScoredContent{}, errors.New("candidate missing id")
			}
			return e.scorer.Score(user, cand, snapshot.CountsFor(cand.ID), now, jitter), nil
		})
	if err != nil {
		return nil, err
	}

	sort.SliceStable(scored, func(i, j int) bool {
		if scored[i].RankScore != scored[j].RankScore {
			return scored[i].RankScore > scored[j].RankScore
		}
		return scored[i].ID < scored[j].ID
	})

	seed := requestSeed(req)
	if req.Refresh {
		seed = e.opts.JitterSeed()
	}
	page, hasMore, nextCursor := e.mixer.Mix(scored, req.Cursor, req.Limit, seed)

	e.recordServed(req.UserID, page, now)

	resp := &Response{
		Items:      page,
		HasMore:    hasMore,
		NextCursor: nextCursor,
		Metrics: ResponseMetrics{
			PoolSize:     len(candidates),
			ScoredItems:  len(scored),
			DurationMS:   e.opts.Clock().Sub(start).Milliseconds(),
			CacheEntries: e.cache.Len(),
		},
	}

	if !req.Refresh {
		e.cache.Put(respKey, resp, cache.Hint{HighPriority: true})
	}

	e.logger.Debug().
		Str("user_id", req.UserID).
		Int("pool", len(candidates)).
		Int("returned", len(page)).
		Bool("refresh", req.Refresh).
		Int64("duration_ms", resp.Metrics.DurationMS).
		Msg("feed served")

	return resp, nil
}

// Reset clears the user's seen set and drops their cached pools and pages.
// A subsequent feed may resurface any previously served item.
func (e *Engine) Reset(userID string) {
	e.seen.Clear(userID)
	e.pool.InvalidateUser(userID)
	e.invalidateResponses(userID)

	e.logger.Info().Str("user_id", userID).Msg("feed state reset")
}

// normalize fills defaults and clamps the limit.
func (e *Engine) normalize(req Request) Request {
	if req.Limit <= 0 {
		req.Limit = e.opts.DefaultLimit
	}
	if req.Limit > e.opts.MaxLimit {
		req.Limit = e.opts.MaxLimit
	}
	if req.ContentType == "" {
		req.ContentType = TypeAll
	}
	if req.Quality == "" {
		req.Quality = QualityAuto
	}
	return req
}

// engagementFor batch-fetches aggregate counters, cached per candidate set.
func (e *Engine) engagementFor(ctx context.Context, candidates []ContentCandidate) (*EngagementSnapshot, error) {
	if len(candidates) == 0 {
		return &EngagementSnapshot{Counts: map[string]store.Counts{}}, nil
	}

	ids := make([]string, len(candidates))
	for i, cand := range candidates {
		ids[i] = cand.ID
	}
	sorted := append([]string(nil), ids...)
	sort.Strings(sorted)
	key := "counts:" + cache.Key("engagement", sorted)

	if cached, ok := e.cache.Get(key); ok {
		if snap, ok := cached.(*EngagementSnapshot); ok {
			return snap, nil
		}
	}

	counts, err := e.engagement.CountsByItem(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("engagement counts: %w", err)
	}

	snap := &EngagementSnapshot{Counts: counts, FetchedAt: e.opts.Clock()}
	e.cache.Put(key, snap, cache.Hint{Popularity: cache.TierWarm})
	return snap, nil
}

// recordServed adds the served ids to the user's seen set before the
// response leaves the engine, so even an immediate follow-up request
// assembles against an up-to-date set. The bus publish is asynchronous
// fan-out for other observers, never the tracking path itself.
func (e *Engine) recordServed(userID string, page []ScoredContent, at time.Time) {
	if len(page) == 0 {
		return
	}
	ids := make([]string, len(page))
	for i, item := range page {
		ids[i] = item.ID
	}

	e.seen.Track(userID, ids)

	if e.bus == nil {
		return
	}
	if err := e.bus.PublishFeedServed(events.FeedServed{UserID: userID, ItemIDs: ids, ServedAt: at}); err != nil {
		e.logger.Warn().Err(err).Str("user_id", userID).Msg("feed.served publish failed")
	}
}

// invalidateResponses drops the user's cached feed pages.
func (e *Engine) invalidateResponses(userID string) {
	prefix := "feed:" + userID + ":"
	e.cache.DeleteFunc(func(key string) bool {
		return strings.HasPrefix(key, prefix)
	})
}

// responseKey is prefix-addressable by user id for targeted invalidation.
func responseKey(req Request) string {
	return "feed:" + req.UserID + ":" + cache.Key("resp", map[string]string{
		"cursor": req.Cursor,
		"limit":  strconv.Itoa(req.Limit),
		"type":   req.ContentType,
	})
}

// requestSeed derives a deterministic shuffle seed so identical non-refresh
// requests mix identically even across cache misses.
func requestSeed(req Request) int64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(req.UserID))
	_, _ = h.Write([]byte{0})
	_, _ = h.Write([]byte(req.Cursor))
	_, _ = h.Write([]byte{0})
	_, _ = h.Write([]byte(req.ContentType))
	_, _ = h.Write([]byte{0})
	_, _ = h.Write([]byte(strconv.Itoa(req.Limit)))
	return int64(h.Sum64())
}

// lockedSource makes a rand source safe for the concurrent scoring batches.
type lockedSource struct {
	mu  sync.Mutex
	src rand.Source
}

func (s *lockedSource) Int63() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.src.Int63()
}

func (s *lockedSource) Seed(seed int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.src.Seed(seed)
}
