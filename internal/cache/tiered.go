// Feedrank - Personalized Feed Ranking and Caching Engine
// Copyright 2026 OpenLearn HQ
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/openlearnhq/feedrank

// Package cache provides the multi-tier (hot/warm/cold) TTL cache used to
// avoid recomputation of expensive composite signals: user profiles,
// engagement aggregates, assembled candidate pools, and scored responses.
//
// The tiering trades a small amount of staleness for recomputation savings,
// while the pressure-driven eviction cascade bounds worst-case memory growth
// without maintaining an LRU structure for every tier.
//
// There is deliberately no per-key in-flight deduplication: two concurrent
// requests for the same key can both miss and both recompute (accepted
// cache-stampede tradeoff).
package cache

import (
	"crypto/sha256"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"

	"github.com/openlearnhq/feedrank/internal/metrics"
)

// Tier identifies a cache partition distinguished by TTL and eviction priority.
type Tier string

const (
	// TierHot holds seconds-scale entries with the highest promotion priority.
	TierHot Tier = "hot"
	// TierWarm holds minutes-scale entries.
	TierWarm Tier = "warm"
	// TierCold holds tens-of-minutes-scale entries.
	TierCold Tier = "cold"
)

// PressureLevel is a measured-memory-derived severity used to decide how much
// cache to flush.
type PressureLevel int

const (
	// PressureNone indicates memory usage below all watermarks.
	PressureNone PressureLevel = iota
	// PressureLow flushes the cold tier.
	PressureLow
	// PressureMedium additionally flushes the warm tier.
	PressureMedium
	// PressureHigh additionally flushes the hot tier, retaining only the
	// most-recently-used entries.
	PressureHigh
)

// String returns a human-readable pressure level name.
func (p PressureLevel) String() string {
	switch p {
	case PressureNone:
		return "none"
	case PressureLow:
		return "low"
	case PressureMedium:
		return "medium"
	case PressureHigh:
		return "high"
	default:
		return "unknown"
	}
}

// Hint guides tier selection on Put.
type Hint struct {
	// Popularity is the estimated tier when no override applies.
	Popularity Tier

	// Engagement is the user-engagement score for the cached value (0-1).
	// Values above 0.8 force the hot tier.
	Engagement float64

	// HighPriority forces the hot tier.
	HighPriority bool

	// ContentAge is the age of the underlying content. Content younger than
	// one hour is placed in the hot tier.
	ContentAge time.Duration
}

// entry is a cached value with expiry and access bookkeeping.
type entry struct {
	value      interface{}
	expiresAt  time.Time
	lastAccess time.Time
}

// Options configures a TieredCache.
type Options struct {
	// HotTTL, WarmTTL, ColdTTL are per-tier default TTLs.
	HotTTL  time.Duration
	WarmTTL time.Duration
	ColdTTL time.Duration

	// HotRetainCount is how many most-recently-used hot entries survive a
	// high-pressure flush.
	HotRetainCount int

	// Clock overrides the time source (tests). Defaults to time.Now.
	Clock func() time.Time
}

// DefaultOptions returns production tier TTLs.
func DefaultOptions() Options {
	return Options{
		HotTTL:         60 * time.Second,
		WarmTTL:        5 * time.Minute,
		ColdTTL:        15 * time.Minute,
		HotRetainCount: 10,
	}
}

// TieredCache is a three-tier TTL-bounded key-value cache with read-hit
// promotion and pressure-based eviction. It is safe for concurrent use.
type TieredCache struct {
	mu    sync.RWMutex
	tiers map[Tier]map[string]*entry
	ttls  map[Tier]time.Duration

	hotRetain int
	clock     func() time.Time
	logger    zerolog.Logger
}

// New creates a TieredCache with the given options.
func New(opts Options, logger zerolog.Logger) *TieredCache {
	if opts.HotTTL <= 0 {
		opts.HotTTL = 60 * time.Second
	}
	if opts.WarmTTL <= 0 {
		opts.WarmTTL = 5 * time.Minute
	}
	if opts.ColdTTL <= 0 {
		opts.ColdTTL = 15 * time.Minute
	}
	if opts.HotRetainCount < 0 {
		opts.HotRetainCount = 0
	}
	clock := opts.Clock
	if clock == nil {
		clock = time.Now
	}

	return &TieredCache{
		tiers: map[Tier]map[string]*entry{
			TierHot:  make(map[string]*entry),
			TierWarm: make(map[string]*entry),
			TierCold: make(map[string]*entry),
		},
		ttls: map[Tier]time.Duration{
			TierHot:  opts.HotTTL,
			TierWarm: opts.WarmTTL,
			TierCold: opts.ColdTTL,
		},
		hotRetain: opts.HotRetainCount,
		clock:     clock,
		logger:    logger.With().Str("component", "cache").Logger(),
	}
}

// selectTier picks the destination tier for a Put.
// Hot wins when engagement exceeds 0.8, the hint is high priority, or the
// content is younger than one hour; otherwise the popularity hint decides,
// defaulting to warm.
func (c *TieredCache) selectTier(hint Hint) Tier {
	if hint.HighPriority || hint.Engagement > 0.8 {
		return TierHot
	}
	if hint.ContentAge > 0 && hint.ContentAge < time.Hour {
		return TierHot
	}
	switch hint.Popularity {
	case TierHot, TierWarm, TierCold:
		return hint.Popularity
	default:
		return TierWarm
	}
}

// Put stores a value, selecting the tier from the hint.
// An existing entry for the key in another tier is replaced.
func (c *TieredCache) Put(key string, value interface{}, hint Hint) {
	tier := c.selectTier(hint)
	now := c.clock()

	c.mu.Lock()
	defer c.mu.Unlock()

	// A key lives in exactly one tier
	for t, m := range c.tiers {
		if t != tier {
			delete(m, key)
		}
	}

	c.tiers[tier][key] = &entry{
		value:      value,
		expiresAt:  now.Add(c.ttls[tier]),
		lastAccess: now,
	}
	c.updateGauges()
}

// Get probes hot, then warm, then cold. A warm or cold hit is promoted into
// the hot tier as a side effect, so an immediately following Get for the same
// key hits hot. Returns (nil, false) on a miss in all three tiers.
func (c *TieredCache) Get(key string) (interface{}, bool) {
	now := c.clock()

	c.mu.Lock()
	defer c.mu.Unlock()

	for _, tier := range []Tier{TierHot, TierWarm, TierCold} {
		e, ok := c.tiers[tier][key]
		if !ok {
			continue
		}

		if now.After(e.expiresAt) {
			delete(c.tiers[tier], key)
			metrics.CacheEvictions.WithLabelValues(string(tier), "expired").Inc()
			continue
		}

		e.lastAccess = now
		if tier != TierHot {
			delete(c.tiers[tier], key)
			c.tiers[TierHot][key] = &entry{
				value:      e.value,
				expiresAt:  now.Add(c.ttls[TierHot]),
				lastAccess: now,
			}
		}

		metrics.CacheHits.WithLabelValues(string(tier)).Inc()
		c.updateGauges()
		return e.value, true
	}

	metrics.CacheMisses.Inc()
	return nil, false
}

// Delete removes a key from all tiers.
func (c *TieredCache) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for tier, m := range c.tiers {
		if _, ok := m[key]; ok {
			delete(m, key)
			metrics.CacheEvictions.WithLabelValues(string(tier), "manual").Inc()
		}
	}
	c.updateGauges()
}

// DeleteFunc removes every key for which match returns true.
// Used to invalidate a user's pool-assembly entries on reset.
func (c *TieredCache) DeleteFunc(match func(key string) bool) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for tier, m := range c.tiers {
		for key := range m {
			if match(key) {
				delete(m, key)
				metrics.CacheEvictions.WithLabelValues(string(tier), "manual").Inc()
				removed++
			}
		}
	}
	c.updateGauges()
	return removed
}

// Evict applies the monotonic eviction cascade for the given pressure level:
// low flushes cold, medium additionally flushes warm, high additionally
// flushes hot while retaining the most-recently-used entries with their
// values intact.
func (c *TieredCache) Evict(level PressureLevel) {
	c.mu.Lock()
	defer c.mu.Unlock()

	metrics.CachePressureLevel.Set(float64(level))
	if level < PressureLow {
		return
	}

	c.flushTierLocked(TierCold)
	if level >= PressureMedium {
		c.flushTierLocked(TierWarm)
	}
	if level >= PressureHigh {
		c.flushHotLocked()
	}

	c.updateGauges()
	c.logger.Debug().
		Str("pressure", level.String()).
		Int("hot", len(c.tiers[TierHot])).
		Int("warm", len(c.tiers[TierWarm])).
		Int("cold", len(c.tiers[TierCold])).
		Msg("eviction cascade applied")
}

// flushTierLocked drops every entry in the tier. Caller holds mu.
func (c *TieredCache) flushTierLocked(tier Tier) {
	n := len(c.tiers[tier])
	if n == 0 {
		return
	}
	c.tiers[tier] = make(map[string]*entry)
	metrics.CacheEvictions.WithLabelValues(string(tier), "pressure").Add(float64(n))
}

// flushHotLocked drops hot entries except the hotRetain most recently used,
// which keep their values. Caller holds mu.
func (c *TieredCache) flushHotLocked() {
	hot := c.tiers[TierHot]
	if len(hot) <= c.hotRetain {
		return
	}

	type keyed struct {
		key string
		at  time.Time
	}
	order := make([]keyed, 0, len(hot))
	for k, e := range hot {
		order = append(order, keyed{key: k, at: e.lastAccess})
	}
	sort.Slice(order, func(i, j int) bool { return order[i].at.After(order[j].at) })

	retained := make(map[string]*entry, c.hotRetain)
	for _, k := range order[:c.hotRetain] {
		retained[k.key] = hot[k.key]
	}

	evicted := len(hot) - len(retained)
	c.tiers[TierHot] = retained
	metrics.CacheEvictions.WithLabelValues(string(TierHot), "pressure").Add(float64(evicted))
}

// Sweep removes expired entries from every tier and returns the total removed.
func (c *TieredCache) Sweep() int {
	now := c.clock()

	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for tier, m := range c.tiers {
		for key, e := range m {
			if now.After(e.expiresAt) {
				delete(m, key)
				metrics.CacheEvictions.WithLabelValues(string(tier), "expired").Inc()
				removed++
			}
		}
	}
	c.updateGauges()
	return removed
}

// Len returns the total entry count across all tiers.
func (c *TieredCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()

	total := 0
	for _, m := range c.tiers {
		total += len(m)
	}
	return total
}

// TierLen returns the entry count for a single tier.
func (c *TieredCache) TierLen(tier Tier) int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.tiers[tier])
}

// updateGauges refreshes per-tier entry gauges. Caller holds mu.
func (c *TieredCache) updateGauges() {
	for tier, m := range c.tiers {
		metrics.CacheEntries.WithLabelValues(string(tier)).Set(float64(len(m)))
	}
}

// Key derives a deterministic cache key from a namespace and parameters, so
// repeated identical requests are cache-addressable.
func Key(namespace string, params interface{}) string {
	data, err := json.Marshal(params)
	if err != nil {
		// Fallback to simple string key
		return fmt.Sprintf("%s:%v", namespace, params)
	}

	hash := sha256.Sum256(data)
	return fmt.Sprintf("%s:%x", namespace, hash[:16])
}
