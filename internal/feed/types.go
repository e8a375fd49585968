// Feedrank - Personalized Feed Ranking and Caching Engine
// Copyright 2026 OpenLearn HQ
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/openlearnhq/feedrank

// Package feed defines the ranking pipeline's core types and the Engine
// orchestrating one request: build user context, assemble the candidate
// pool, score candidates in batches, mix, paginate, publish feed.served.
//
// The scoring, pool-assembly, and mixing stages are interfaces implemented
// by the scoring, pool, and mixer subpackages; this package depends on none
// of them, which keeps the dependency graph acyclic.
package feed

import (
	"context"
	"math/rand"
	"time"

	"github.com/openlearnhq/feedrank/internal/profile"
	"github.com/openlearnhq/feedrank/internal/store"
)

// Strategy identifies which pool strategy contributed a candidate.
type Strategy string

const (
	StrategyFollowed  Strategy = "followed"
	StrategyTrending  Strategy = "trending"
	StrategyRecent    Strategy = "recent"
	StrategyInterest  Strategy = "interest"
	StrategyAffinity  Strategy = "affinity"
	StrategyDiscovery Strategy = "discovery"
)

// ContentCandidate is a post plus the pool-strategy tag it arrived with.
// The tag is a scoring input, never an identity.
type ContentCandidate struct {
	store.Post

	// Strategy names the pool strategy that contributed this candidate.
	Strategy Strategy `json:"strategy"`

	// PreferenceScore is the strategy's affinity seed, folded into the
	// preference sub-score.
	PreferenceScore float64 `json:"preference_score"`
}

// EngagementSnapshot holds batch-fetched aggregate counters for a candidate
// set. Cached, never persisted by this subsystem.
type EngagementSnapshot struct {
	Counts    map[string]store.Counts
	FetchedAt time.Time
}

// CountsFor returns the counters for an item, zero-valued when absent.
func (s *EngagementSnapshot) CountsFor(itemID string) store.Counts {
	if s == nil {
		return store.Counts{}
	}
	return s.Counts[itemID]
}

// Priority tags a scored item for downstream consumers.
type Priority string

const (
	PriorityHigh   Priority = "high"
	PriorityNormal Priority = "normal"
	PriorityLow    Priority = "low"
)

// ScoredContent is a ranked candidate plus mix-stage metadata.
type ScoredContent struct {
	ContentCandidate

	// RankScore is the composite ranking value in [0, 1].
	RankScore float64 `json:"rank_score"`

	// QualityScore is the content-quality value in [0, 1].
	QualityScore float64 `json:"quality_score"`

	Priority Priority `json:"priority"`

	// Position is the item's index in the final mixed feed.
	Position int `json:"position"`

	// Bucket is the mix-stage content-type bucket (video or other).
	Bucket string `json:"bucket,omitempty"`
}

// Content-type filter values accepted by Request.
const (
	TypeAll   = "all"
	TypeVideo = "video"
	TypeText  = "text"
	TypeImage = "image"
)

// Quality values accepted by Request.
const (
	QualityLow    = "low"
	QualityMedium = "medium"
	QualityHigh   = "high"
	QualityAuto   = "auto"
)

// Request is one feed-retrieval request.
type Request struct {
	UserID      string `json:"user_id" validate:"required"`
	Cursor      string `json:"cursor,omitempty"`
	Limit       int    `json:"limit,omitempty" validate:"gte=0,lte=50"`
	ContentType string `json:"content_type,omitempty" validate:"omitempty,oneof=all video text image"`
	Refresh     bool   `json:"refresh,omitempty"`
	Quality     string `json:"quality,omitempty" validate:"omitempty,oneof=low medium high auto"`
}

// ResponseMetrics reports per-request pipeline measurements.
type ResponseMetrics struct {
	PoolSize     int   `json:"pool_size"`
	ScoredItems  int   `json:"scored_items"`
	DurationMS   int64 `json:"duration_ms"`
	FromCache    bool  `json:"from_cache"`
	CacheEntries int   `json:"cache_entries"`
}

// Response is one feed page.
type Response struct {
	Items      []ScoredContent `json:"items"`
	HasMore    bool            `json:"has_more"`
	NextCursor string          `json:"next_cursor,omitempty"`
	Metrics    ResponseMetrics `json:"metrics"`
}

// Scorer computes rank and quality scores for one candidate. Implementations
// must be pure given fixed inputs; jitter is applied only when the rand
// source is non-nil (force-refresh mode).
type Scorer interface {
	Score(user *profile.Context, cand ContentCandidate, counts store.Counts, now time.Time, jitter *rand.Rand) ScoredContent
}

// PoolAssembler gathers the deduplicated candidate pool for one user.
type PoolAssembler interface {
	// Assemble returns up to target candidates matching contentType, with
	// every id in seen excluded.
	Assemble(ctx context.Context, user *profile.Context, seen map[string]struct{}, contentType string, target int) ([]ContentCandidate, error)

	// InvalidateUser drops the user's cached pools.
	InvalidateUser(userID string)
}

// Mixer interleaves, diversity-shuffles, and paginates a scored list.
// Items must arrive sorted by rank score descending.
type Mixer interface {
	Mix(items []ScoredContent, cursor string, limit int, seed int64) (page []ScoredContent, hasMore bool, nextCursor string)
}
