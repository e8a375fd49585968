// Feedrank - Personalized Feed Ranking and Caching Engine
// Copyright 2026 OpenLearn HQ
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/openlearnhq/feedrank

package cache

import (
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeClock is a manually advanced time source.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 1, 15, 12, 0, 0, 0, time.UTC)}
}

func (f *fakeClock) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *fakeClock) Advance(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.now = f.now.Add(d)
}

func newTestCache(clock *fakeClock) *TieredCache {
	opts := DefaultOptions()
	opts.Clock = clock.Now
	return New(opts, zerolog.Nop())
}

func TestSelectTier(t *testing.T) {
	c := newTestCache(newFakeClock())

	tests := []struct {
		name string
		hint Hint
		want Tier
	}{
		{"high engagement forces hot", Hint{Engagement: 0.9}, TierHot},
		{"engagement at threshold stays warm", Hint{Engagement: 0.8}, TierWarm},
		{"high priority forces hot", Hint{HighPriority: true, Popularity: TierCold}, TierHot},
		{"young content forces hot", Hint{ContentAge: 30 * time.Minute}, TierHot},
		{"old content follows hint", Hint{ContentAge: 2 * time.Hour, Popularity: TierCold}, TierCold},
		{"popularity hint respected", Hint{Popularity: TierCold}, TierCold},
		{"empty hint defaults to warm", Hint{}, TierWarm},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, c.selectTier(tt.hint))
		})
	}
}

func TestPutGetRoundTrip(t *testing.T) {
	c := newTestCache(newFakeClock())

	c.Put("k1", "v1", Hint{})
	got, ok := c.Get("k1")
	require.True(t, ok)
	assert.Equal(t, "v1", got)

	_, ok = c.Get("missing")
	assert.False(t, ok)
}

func TestWarmHitPromotesToHot(t *testing.T) {
	c := newTestCache(newFakeClock())

	c.Put("k", 42, Hint{Popularity: TierWarm})
	assert.Equal(t, 1, c.TierLen(TierWarm))
	assert.Equal(t, 0, c.TierLen(TierHot))

	_, ok := c.Get("k")
	require.True(t, ok)

	// Promotion side effect: the immediately following Get hits hot
	assert.Equal(t, 1, c.TierLen(TierHot))
	assert.Equal(t, 0, c.TierLen(TierWarm))

	got, ok := c.Get("k")
	require.True(t, ok)
	assert.Equal(t, 42, got)
}

func TestColdHitPromotesToHot(t *testing.T) {
	c := newTestCache(newFakeClock())

	c.Put("k", "v", Hint{Popularity: TierCold})
	_, ok := c.Get("k")
	require.True(t, ok)
	assert.Equal(t, 1, c.TierLen(TierHot))
	assert.Equal(t, 0, c.TierLen(TierCold))
}

func TestExpiryPerTier(t *testing.T) {
	clock := newFakeClock()
	c := newTestCache(clock)

	c.Put("hot", 1, Hint{HighPriority: true})
	c.Put("warm", 2, Hint{Popularity: TierWarm})
	c.Put("cold", 3, Hint{Popularity: TierCold})

	clock.Advance(90 * time.Second)
	_, ok := c.Get("hot")
	assert.False(t, ok, "hot entry should expire after 60s")
	_, ok = c.Get("warm")
	assert.True(t, ok, "warm entry should survive 90s")

	// The warm hit was promoted to hot with a fresh hot TTL
	clock.Advance(4 * time.Minute)
	_, ok = c.Get("warm")
	assert.False(t, ok, "promoted entry expires on the hot TTL")

	_, ok = c.Get("cold")
	assert.True(t, ok, "cold entry should survive 5.5 minutes")
}

func TestEvictCascadeMonotonicity(t *testing.T) {
	clock := newFakeClock()

	// Entry counts never increase as the pressure level rises
	prev := -1
	for _, level := range []PressureLevel{PressureNone, PressureLow, PressureMedium, PressureHigh} {
		c := newTestCache(clock)
		for i := 0; i < 5; i++ {
			c.Put(Key("h", i), i, Hint{HighPriority: true})
			c.Put(Key("w", i), i, Hint{Popularity: TierWarm})
			c.Put(Key("c", i), i, Hint{Popularity: TierCold})
		}

		c.Evict(level)
		if prev >= 0 {
			assert.LessOrEqual(t, c.Len(), prev, "eviction at level %s grew the cache", level)
		}
		prev = c.Len()
	}
}

func TestEvictLevels(t *testing.T) {
	clock := newFakeClock()
	c := newTestCache(clock)

	c.Put("h", 1, Hint{HighPriority: true})
	c.Put("w", 2, Hint{Popularity: TierWarm})
	c.Put("c", 3, Hint{Popularity: TierCold})

	c.Evict(PressureLow)
	assert.Equal(t, 0, c.TierLen(TierCold))
	assert.Equal(t, 1, c.TierLen(TierWarm))
	assert.Equal(t, 1, c.TierLen(TierHot))

	c.Evict(PressureMedium)
	assert.Equal(t, 0, c.TierLen(TierWarm))
	assert.Equal(t, 1, c.TierLen(TierHot))
}

func TestHighPressureRetainsRecentHotEntries(t *testing.T) {
	clock := newFakeClock()
	opts := DefaultOptions()
	opts.Clock = clock.Now
	opts.HotRetainCount = 2
	c := New(opts, zerolog.Nop())

	for i := 0; i < 5; i++ {
		c.Put(Key("k", i), i, Hint{HighPriority: true})
		clock.Advance(time.Second)
	}

	// Touch two entries so they are the most recently used
	_, _ = c.Get(Key("k", 0))
	clock.Advance(time.Second)
	_, _ = c.Get(Key("k", 3))
	clock.Advance(time.Second)

	c.Evict(PressureHigh)
	assert.Equal(t, 2, c.TierLen(TierHot))

	// Retained entries keep real values, not placeholders
	got, ok := c.Get(Key("k", 3))
	require.True(t, ok)
	assert.Equal(t, 3, got)
	got, ok = c.Get(Key("k", 0))
	require.True(t, ok)
	assert.Equal(t, 0, got)

	_, ok = c.Get(Key("k", 1))
	assert.False(t, ok)
}

func TestDeleteFunc(t *testing.T) {
	c := newTestCache(newFakeClock())

	c.Put("pool:u1:a", 1, Hint{})
	c.Put("pool:u1:b", 2, Hint{})
	c.Put("pool:u2:a", 3, Hint{})

	removed := c.DeleteFunc(func(key string) bool {
		return strings.HasPrefix(key, "pool:u1:")
	})
	assert.Equal(t, 2, removed)

	_, ok := c.Get("pool:u2:a")
	assert.True(t, ok)
	_, ok = c.Get("pool:u1:a")
	assert.False(t, ok)
}

func TestSweepRemovesExpired(t *testing.T) {
	clock := newFakeClock()
	c := newTestCache(clock)

	c.Put("old", 1, Hint{HighPriority: true})
	clock.Advance(2 * time.Minute)
	c.Put("fresh", 2, Hint{Popularity: TierWarm})

	removed := c.Sweep()
	assert.Equal(t, 1, removed)
	assert.Equal(t, 1, c.Len())
}

func TestKeyDeterministic(t *testing.T) {
	type params struct {
		UserID string
		Limit  int
	}

	k1 := Key("pool", params{UserID: "u1", Limit: 20})
	k2 := Key("pool", params{UserID: "u1", Limit: 20})
	k3 := Key("pool", params{UserID: "u1", Limit: 21})

	assert.Equal(t, k1, k2)
	assert.NotEqual(t, k1, k3)
	assert.True(t, strings.HasPrefix(k1, "pool:"))
}

func TestLevelFor(t *testing.T) {
	w := Watermarks{Low: 100, Medium: 200, High: 300}

	assert.Equal(t, PressureNone, levelFor(50, w))
	assert.Equal(t, PressureLow, levelFor(150, w))
	assert.Equal(t, PressureMedium, levelFor(250, w))
	assert.Equal(t, PressureHigh, levelFor(350, w))
}
