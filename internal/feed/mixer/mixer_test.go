// Feedrank - Personalized Feed Ranking and Caching Engine
// Copyright 2026 OpenLearn HQ
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/openlearnhq/feedrank

package mixer

import (
	"fmt"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openlearnhq/feedrank/internal/feed"
	"github.com/openlearnhq/feedrank/internal/store"
)

func scored(id, contentType string, rank float64) feed.ScoredContent {
	return feed.ScoredContent{
		ContentCandidate: feed.ContentCandidate{Post: store.Post{ID: id, Type: contentType}},
		RankScore:        rank,
	}
}

// mixedSet builds a rank-descending list with the given video share.
func mixedSet(n int, videoEvery int) []feed.ScoredContent {
	items := make([]feed.ScoredContent, 0, n)
	for i := 0; i < n; i++ {
		typ := "text"
		if videoEvery > 0 && i%videoEvery == 0 {
			typ = "video"
		}
		items = append(items, scored(fmt.Sprintf("p%03d", i), typ, 1.0-float64(i)*0.01))
	}
	return items
}

func TestMixRunCapProperty(t *testing.T) {
	m := New(DefaultOptions())

	for seed := int64(0); seed < 20; seed++ {
		items := mixedSet(40, 3)
		page, _, _ := m.Mix(items, "", 40, seed)
		require.Len(t, page, 40)

		videoRun, otherRun := 0, 0
		videosLeft := countVideos(page)
		for i, item := range page {
			if item.Type == feed.TypeVideo {
				videoRun++
				otherRun = 0
				videosLeft--
			} else {
				otherRun++
				videoRun = 0
			}

			// caps bind only while the other bucket still has supply
			remaining := page[i+1:]
			if countVideos(remaining) > 0 {
				assert.LessOrEqual(t, otherRun, 4, "seed %d position %d", seed, i)
			}
			if len(remaining)-countVideos(remaining) > 0 {
				assert.LessOrEqual(t, videoRun, 2, "seed %d position %d", seed, i)
			}
		}
	}
}

func ids(items []feed.ScoredContent) []string {
	out := make([]string, 0, len(items))
	for _, item := range items {
		out = append(out, item.ID)
	}
	return out
}

func countVideos(items []feed.ScoredContent) int {
	n := 0
	for _, item := range items {
		if item.Type == feed.TypeVideo {
			n++
		}
	}
	return n
}

func TestMixBandOrderPreserved(t *testing.T) {
	items := []feed.ScoredContent{
		scored("h1", "text", 0.95),
		scored("h2", "text", 0.85),
		scored("m1", "text", 0.7),
		scored("m2", "text", 0.6),
		scored("l1", "text", 0.3),
	}
	m := New(DefaultOptions())

	page, _, _ := m.Mix(items, "", 10, 42)
	require.Len(t, page, 5)

	bandOf := func(rank float64) int {
		switch {
		case rank >= bandHigh:
			return 0
		case rank >= bandMedium:
			return 1
		default:
			return 2
		}
	}
	for i := 1; i < len(page); i++ {
		assert.GreaterOrEqual(t, bandOf(page[i].RankScore), bandOf(page[i-1].RankScore))
	}
}

func TestMixDeterministicPerSeed(t *testing.T) {
	m := New(DefaultOptions())

	a, _, _ := m.Mix(mixedSet(30, 4), "", 30, 7)
	b, _, _ := m.Mix(mixedSet(30, 4), "", 30, 7)
	assert.Equal(t, ids(a), ids(b))
}

func TestMixSeedChangesOrder(t *testing.T) {
	m := New(DefaultOptions())

	// all items in one band so the shuffle is visible
	items := make([]feed.ScoredContent, 20)
	for i := range items {
		items[i] = scored(fmt.Sprintf("p%02d", i), "text", 0.9)
	}
	a, _, _ := m.Mix(items, "", 20, 1)

	items2 := make([]feed.ScoredContent, 20)
	copy(items2, items)
	b, _, _ := m.Mix(items2, "", 20, 99)

	assert.NotEqual(t, ids(a), ids(b))
}

func TestMixPagination(t *testing.T) {
	m := New(DefaultOptions())
	items := mixedSet(15, 0)

	page, hasMore, next := m.Mix(items, "", 5, 3)
	require.Len(t, page, 5)
	assert.True(t, hasMore)
	assert.Equal(t, page[4].ID, next)

	// resume from the cursor: no overlap with the first page
	page2, _, _ := m.Mix(mixedSet(15, 0), next, 5, 3)
	require.Len(t, page2, 5)
	for _, item := range page2 {
		assert.NotContains(t, ids(page), item.ID)
	}
}

func TestMixLastPage(t *testing.T) {
	m := New(DefaultOptions())

	page, hasMore, next := m.Mix(mixedSet(4, 0), "", 10, 3)
	assert.Len(t, page, 4)
	assert.False(t, hasMore)
	assert.Empty(t, next)
}

func TestMixEmptyInput(t *testing.T) {
	m := New(DefaultOptions())
	page, hasMore, next := m.Mix(nil, "", 10, 3)
	assert.Empty(t, page)
	assert.False(t, hasMore)
	assert.Empty(t, next)
}

func TestMixUnknownCursorStartsAtTop(t *testing.T) {
	m := New(DefaultOptions())
	page, _, _ := m.Mix(mixedSet(10, 0), "missing", 5, 3)
	assert.Len(t, page, 5)
	assert.Equal(t, 0, page[0].Position)
}

func TestMixAssignsPositionsAndBuckets(t *testing.T) {
	m := New(DefaultOptions())
	page, _, _ := m.Mix(mixedSet(8, 2), "", 8, 3)

	for i, item := range page {
		assert.Equal(t, i, item.Position)
		if item.Type == feed.TypeVideo {
			assert.Equal(t, BucketVideo, item.Bucket)
		} else {
			assert.Equal(t, BucketOther, item.Bucket)
		}
	}
}

func TestMixSingleTypeSupplyExhaustion(t *testing.T) {
	m := New(DefaultOptions())

	// all video: ratio cannot be honored, everything still returned
	all := make([]feed.ScoredContent, 6)
	for i := range all {
		all[i] = scored(fmt.Sprintf("v%d", i), "video", 0.9)
	}
	page, _, _ := m.Mix(all, "", 10, rand.Int63())
	assert.Len(t, page, 6)
}
