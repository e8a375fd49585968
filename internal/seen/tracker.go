// Feedrank - Personalized Feed Ranking and Caching Engine
// Copyright 2026 OpenLearn HQ
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/openlearnhq/feedrank

// Package seen tracks which content items have already been shown to each
// user, so the pool assembler can exclude them from subsequent requests.
//
// The per-user set is a rotation, not a hard cap: once it exceeds capacity,
// only the most-recently-added half is retained. Entries also expire
// individually by TTL measured from insertion, so a continuously active
// user's oldest entries still age out and that content can resurface.
package seen

import (
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// seenEntry pairs an item id with its insertion time.
type seenEntry struct {
	id      string
	addedAt time.Time
}

// userSet holds one user's seen entries in insertion order. Insertion times
// are non-decreasing, so expired entries always form a prefix.
type userSet struct {
	entries []seenEntry
	index   map[string]struct{}
}

// Tracker is a per-user rotating seen-content set. It is safe for concurrent use.
type Tracker struct {
	mu    sync.Mutex
	users map[string]*userSet

	capacity int
	ttl      time.Duration
	clock    func() time.Time
	logger   zerolog.Logger
}

// NewTracker creates a tracker with the given rotation capacity and per-entry TTL.
// A clock of nil defaults to time.Now.
func NewTracker(capacity int, ttl time.Duration, clock func() time.Time, logger zerolog.Logger) *Tracker {
	if capacity < 2 {
		capacity = 1000
	}
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	if clock == nil {
		clock = time.Now
	}
	return &Tracker{
		users:    make(map[string]*userSet),
		capacity: capacity,
		ttl:      ttl,
		clock:    clock,
		logger:   logger.With().Str("component", "seen").Logger(),
	}
}

// Track adds ids to the user's seen set. If the set grows beyond capacity,
// only the most-recently-added half is retained (rotation).
func (t *Tracker) Track(userID string, ids []string) {
	if len(ids) == 0 {
		return
	}
	now := t.clock()

	t.mu.Lock()
	defer t.mu.Unlock()

	set, ok := t.users[userID]
	if ok {
		t.pruneLocked(set, now)
	} else {
		set = &userSet{
			entries: make([]seenEntry, 0, 64),
			index:   make(map[string]struct{}, 64),
		}
		t.users[userID] = set
	}

	for _, id := range ids {
		if _, dup := set.index[id]; dup {
			continue
		}
		set.entries = append(set.entries, seenEntry{id: id, addedAt: now})
		set.index[id] = struct{}{}
	}

	if len(set.entries) > t.capacity {
		t.rotateLocked(userID, set)
	}
}

// rotateLocked keeps the newest half of the set by insertion order.
func (t *Tracker) rotateLocked(userID string, set *userSet) {
	keep := t.capacity / 2
	dropped := len(set.entries) - keep

	kept := make([]seenEntry, keep)
	copy(kept, set.entries[len(set.entries)-keep:])

	index := make(map[string]struct{}, keep)
	for _, e := range kept {
		index[e.id] = struct{}{}
	}

	set.entries = kept
	set.index = index

	t.logger.Debug().
		Str("user_id", userID).
		Int("dropped", dropped).
		Int("retained", keep).
		Msg("seen set rotated")
}

// pruneLocked drops entries older than the TTL. Caller holds mu.
func (t *Tracker) pruneLocked(set *userSet, now time.Time) {
	cut := 0
	for cut < len(set.entries) && now.Sub(set.entries[cut].addedAt) > t.ttl {
		delete(set.index, set.entries[cut].id)
		cut++
	}
	if cut == 0 {
		return
	}
	kept := make([]seenEntry, len(set.entries)-cut)
	copy(kept, set.entries[cut:])
	set.entries = kept
}

// Get returns the user's current seen set. The returned map is a copy.
// Expired entries are pruned first; a fully expired or absent set yields
// an empty map.
func (t *Tracker) Get(userID string) map[string]struct{} {
	now := t.clock()

	t.mu.Lock()
	defer t.mu.Unlock()

	set, ok := t.users[userID]
	if !ok {
		return map[string]struct{}{}
	}
	t.pruneLocked(set, now)
	if len(set.entries) == 0 {
		delete(t.users, userID)
		return map[string]struct{}{}
	}

	out := make(map[string]struct{}, len(set.index))
	for id := range set.index {
		out[id] = struct{}{}
	}
	return out
}

// Size returns the number of live tracked ids for the user.
func (t *Tracker) Size(userID string) int {
	now := t.clock()

	t.mu.Lock()
	defer t.mu.Unlock()

	set, ok := t.users[userID]
	if !ok {
		return 0
	}
	t.pruneLocked(set, now)
	return len(set.entries)
}

// Clear empties the user's seen set. Other users are unaffected.
func (t *Tracker) Clear(userID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.users, userID)
}
