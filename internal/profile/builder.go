// Feedrank - Personalized Feed Ranking and Caching Engine
// Copyright 2026 OpenLearn HQ
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/openlearnhq/feedrank

// Package profile assembles the per-user snapshot every ranking component
// reads: social graph slice, recent engagement, derived interests and
// preferences, and the hourly activity vector.
package profile

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/openlearnhq/feedrank/internal/cache"
	"github.com/openlearnhq/feedrank/internal/store"
)

// Read bounds keep every underlying scan finite regardless of account size.
const (
	maxFollowing = 200
	maxFollowers = 200
	maxLikes     = 100
	maxComments  = 50

	preferredTypeCount   = 3
	preferredAuthorCount = 10
)

// Context is the immutable per-user snapshot. Built fresh per cache miss;
// staleness within the warm-tier TTL is accepted.
type Context struct {
	UserID     string
	Email      string
	Interests  []string
	Profession string
	Location   string
	Level      string
	CreatedAt  time.Time

	// Following and Followers are bounded social-graph slices.
	Following map[string]struct{}
	Followers map[string]struct{}

	// RecentLikedIDs and RecentCommentedIDs are recent engagement item ids,
	// newest first.
	RecentLikedIDs     []string
	RecentCommentedIDs []string

	// RecentAuthorIDs are authors of recently liked/commented items.
	RecentAuthorIDs map[string]struct{}

	// PreferredTypes are the top-3 content types by recent interaction frequency.
	PreferredTypes []string

	// PreferredAuthors are the top-10 authors by recent interaction frequency.
	PreferredAuthors []string

	// ActivityByHour is a 24-bucket interaction histogram normalized by the
	// busiest bucket (values in [0, 1]).
	ActivityByHour [24]float64
}

// Follows reports whether the user follows the author.
func (c *Context) Follows(authorID string) bool {
	_, ok := c.Following[authorID]
	return ok
}

// RecentlyInteractedWith reports whether the author appears in the user's
// recent engagement history.
func (c *Context) RecentlyInteractedWith(authorID string) bool {
	_, ok := c.RecentAuthorIDs[authorID]
	return ok
}

// PrefersType reports whether contentType is among the user's preferred types.
func (c *Context) PrefersType(contentType string) bool {
	for _, t := range c.PreferredTypes {
		if t == contentType {
			return true
		}
	}
	return false
}

// Builder constructs user contexts from the social and engagement stores,
// caching results in the warm tier.
type Builder struct {
	social     store.SocialStore
	engagement store.EngagementStore
	cache      *cache.TieredCache
	logger     zerolog.Logger
}

// NewBuilder creates a context builder.
func NewBuilder(social store.SocialStore, engagement store.EngagementStore, tc *cache.TieredCache, logger zerolog.Logger) *Builder {
	return &Builder{
		social:     social,
		engagement: engagement,
		cache:      tc,
		logger:     logger.With().Str("component", "profile").Logger(),
	}
}

// Build returns the user's context, serving from cache within the TTL.
// Any underlying read failure propagates; no partial context is synthesized.
func (b *Builder) Build(ctx context.Context, userID string) (*Context, error) {
	key := "profile:" + userID
	if cached, ok := b.cache.Get(key); ok {
		if pc, ok := cached.(*Context); ok {
			return pc, nil
		}
	}

	pc, err := b.build(ctx, userID)
	if err != nil {
		return nil, err
	}

	b.cache.Put(key, pc, cache.Hint{Popularity: cache.TierWarm})
	return pc, nil
}

// build issues the parallel bounded reads and derives the snapshot.
func (b *Builder) build(ctx context.Context, userID string) (*Context, error) {
	var (
		user      store.User
		following []string
		followers []string
		likes     []store.Event
		comments  []store.Event
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		user, err = b.social.GetUser(gctx, userID)
		if err != nil {
			return fmt.Errorf("user attributes: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		following, err = b.social.Following(gctx, userID, maxFollowing)
		if err != nil {
			return fmt.Errorf("following edges: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		followers, err = b.social.Followers(gctx, userID, maxFollowers)
		if err != nil {
			return fmt.Errorf("follower edges: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		likes, err = b.engagement.RecentEventsByUser(gctx, userID, store.EventLike, maxLikes)
		if err != nil {
			return fmt.Errorf("recent likes: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		comments, err = b.engagement.RecentEventsByUser(gctx, userID, store.EventComment, maxComments)
		if err != nil {
			return fmt.Errorf("recent comments: %w", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("build user context for %s: %w", userID, err)
	}

	pc := &Context{
		UserID:          userID,
		Email:           user.Email,
		Interests:       user.Interests,
		Profession:      user.Profession,
		Location:        user.Location,
		Level:           user.Level,
		CreatedAt:       user.CreatedAt,
		Following:       toSet(following),
		Followers:       toSet(followers),
		RecentAuthorIDs: make(map[string]struct{}),
	}

	recent := make([]store.Event, 0, len(likes)+len(comments))
	recent = append(recent, likes...)
	recent = append(recent, comments...)

	for _, ev := range likes {
		pc.RecentLikedIDs = append(pc.RecentLikedIDs, ev.ItemID)
	}
	for _, ev := range comments {
		pc.RecentCommentedIDs = append(pc.RecentCommentedIDs, ev.ItemID)
	}
	for _, ev := range recent {
		if ev.AuthorID != "" {
			pc.RecentAuthorIDs[ev.AuthorID] = struct{}{}
		}
	}

	pc.PreferredTypes = topByFrequency(recent, preferredTypeCount, func(ev store.Event) string { return ev.ItemType })
	pc.PreferredAuthors = topByFrequency(recent, preferredAuthorCount, func(ev store.Event) string { return ev.AuthorID })
	pc.ActivityByHour = activityVector(recent)

	b.logger.Debug().
		Str("user_id", userID).
		Int("following", len(pc.Following)).
		Int("recent_events", len(recent)).
		Strs("preferred_types", pc.PreferredTypes).
		Msg("user context built")

	return pc, nil
}

// toSet converts a slice to a membership set.
func toSet(ids []string) map[string]struct{} {
	set := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return set
}

// topByFrequency returns the n most frequent non-empty keys, ties broken
// lexicographically for determinism.
func topByFrequency(events []store.Event, n int, keyOf func(store.Event) string) []string {
	counts := make(map[string]int)
	for _, ev := range events {
		if key := keyOf(ev); key != "" {
			counts[key]++
		}
	}

	keys := make([]string, 0, len(counts))
	for key := range counts {
		keys = append(keys, key)
	}
	sort.Slice(keys, func(i, j int) bool {
		if counts[keys[i]] != counts[keys[j]] {
			return counts[keys[i]] > counts[keys[j]]
		}
		return keys[i] < keys[j]
	})

	if len(keys) > n {
		keys = keys[:n]
	}
	return keys
}

// activityVector builds the per-hour histogram normalized by the busiest bucket.
func activityVector(events []store.Event) [24]float64 {
	var buckets [24]float64
	for _, ev := range events {
		buckets[ev.CreatedAt.Hour()]++
	}

	max := 0.0
	for _, v := range buckets {
		if v > max {
			max = v
		}
	}
	if max == 0 {
		return buckets
	}
	for i := range buckets {
		buckets[i] /= max
	}
	return buckets
}
