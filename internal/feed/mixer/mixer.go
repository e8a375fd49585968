// Feedrank - Personalized Feed Ranking and Caching Engine
// Copyright 2026 OpenLearn HQ
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/openlearnhq/feedrank

// Package mixer turns a rank-ordered scored list into the final feed page:
// bounded shuffle within score bands, video/non-video interleaving with
// consecutive-run caps, then cursor-based pagination.
package mixer

import (
	"math/rand"

	"github.com/openlearnhq/feedrank/internal/feed"
)

// Score band thresholds. Ordering across bands is preserved; only order
// within a band is shuffled.
const (
	bandHigh   = 0.8
	bandMedium = 0.5
)

// Bucket labels assigned to mixed items.
const (
	BucketVideo = "video"
	BucketOther = "other"
)

// Options configures interleaving.
type Options struct {
	// VideoRatio is the number of non-video items per video item.
	VideoRatio int

	// MaxVideoRun and MaxOtherRun cap consecutive same-bucket runs. A cap
	// only binds while the other bucket still has supply.
	MaxVideoRun int
	MaxOtherRun int
}

// DefaultOptions returns the standard 1:3 interleave with 2/4 run caps.
func DefaultOptions() Options {
	return Options{VideoRatio: 3, MaxVideoRun: 2, MaxOtherRun: 4}
}

// Mixer implements feed.Mixer.
type Mixer struct {
	opts Options
}

// New creates a mixer.
func New(opts Options) *Mixer {
	if opts.VideoRatio <= 0 {
		opts.VideoRatio = 3
	}
	if opts.MaxVideoRun <= 0 {
		opts.MaxVideoRun = 2
	}
	if opts.MaxOtherRun <= 0 {
		opts.MaxOtherRun = 4
	}
	return &Mixer{opts: opts}
}

// Mix shuffles within score bands, interleaves buckets, and paginates.
// items must be sorted by rank score descending. seed makes the band
// shuffle reproducible for a given request.
func (m *Mixer) Mix(items []feed.ScoredContent, cursor string, limit int, seed int64) ([]feed.ScoredContent, bool, string) {
	if len(items) == 0 {
		return nil, false, ""
	}

	shuffled := bandShuffle(items, seed)
	mixed := m.interleave(shuffled)

	for i := range mixed {
		mixed[i].Position = i
	}

	start := 0
	if cursor != "" {
		for i, item := range mixed {
			if item.ID == cursor {
				start = i + 1
				break
			}
		}
	}

	end := start + limit
	if end > len(mixed) {
		end = len(mixed)
	}
	page := mixed[start:end]

	hasMore := end < len(mixed)
	nextCursor := ""
	if len(page) > 0 && hasMore {
		nextCursor = page[len(page)-1].ID
	}
	return page, hasMore, nextCursor
}

// bandShuffle randomizes order inside each score band while keeping the
// high, medium, low band order intact.
func bandShuffle(items []feed.ScoredContent, seed int64) []feed.ScoredContent {
	var high, medium, low []feed.ScoredContent
	for _, item := range items {
		switch {
		case item.RankScore >= bandHigh:
			high = append(high, item)
		case item.RankScore >= bandMedium:
			medium = append(medium, item)
		default:
			low = append(low, item)
		}
	}

	r := rand.New(rand.NewSource(seed))
	for _, band := range [][]feed.ScoredContent{high, medium, low} {
		r.Shuffle(len(band), func(i, j int) {
			band[i], band[j] = band[j], band[i]
		})
	}

	out := make([]feed.ScoredContent, 0, len(items))
	out = append(out, high...)
	out = append(out, medium...)
	return append(out, low...)
}

// interleave merges the video and non-video buckets at the configured ratio,
// honoring run caps until one bucket is exhausted.
func (m *Mixer) interleave(items []feed.ScoredContent) []feed.ScoredContent {
	var videos, others []feed.ScoredContent
	for _, item := range items {
		if item.Type == feed.TypeVideo {
			item.Bucket = BucketVideo
			videos = append(videos, item)
		} else {
			item.Bucket = BucketOther
			others = append(others, item)
		}
	}

	out := make([]feed.ScoredContent, 0, len(items))
	vi, oi := 0, 0
	run := 0
	lastVideo := false

	for vi < len(videos) || oi < len(others) {
		wantVideo := m.wantVideo(len(out))

		takeVideo := wantVideo
		if takeVideo && vi >= len(videos) {
			takeVideo = false
		}
		if !takeVideo && oi >= len(others) {
			takeVideo = true
		}

		// run caps override the ratio while both buckets have supply
		if takeVideo && lastVideo && run >= m.opts.MaxVideoRun && oi < len(others) {
			takeVideo = false
		}
		if !takeVideo && !lastVideo && run >= m.opts.MaxOtherRun && vi < len(videos) {
			takeVideo = true
		}

		if takeVideo {
			out = append(out, videos[vi])
			vi++
		} else {
			out = append(out, others[oi])
			oi++
		}

		if takeVideo == lastVideo && len(out) > 1 {
			run++
		} else {
			run = 1
		}
		lastVideo = takeVideo
	}
	return out
}

// wantVideo implements the 1 video per VideoRatio non-video pattern: slot
// VideoRatio, 2*VideoRatio+1, ... prefers a video.
func (m *Mixer) wantVideo(position int) bool {
	return position%(m.opts.VideoRatio+1) == m.opts.VideoRatio
}
