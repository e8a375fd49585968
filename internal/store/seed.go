// Feedrank - Personalized Feed Ranking and Caching Engine
// Copyright 2026 OpenLearn HQ
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/openlearnhq/feedrank

package store

import (
	"context"
	"fmt"
	"math/rand"
	"time"
)

// SeedDemoData loads a small deterministic corpus so the service can serve
// feeds end-to-end without external data: a handful of users with follow
// edges, a few hundred posts across content types, and engagement events
// skewed toward a few "trending" items.
func SeedDemoData(ctx context.Context, content *BadgerStore, engagement *DuckStore) error {
	rng := rand.New(rand.NewSource(1)) //nolint:gosec // deterministic demo data
	now := time.Now()

	professions := []string{"teacher", "engineer", "designer", "student"}
	interests := [][]string{
		{"golang", "databases"},
		{"photography", "travel"},
		{"mathematics", "teaching"},
		{"music", "production"},
	}
	types := []string{"text", "video", "image"}

	const userCount = 12
	for i := 0; i < userCount; i++ {
		user := User{
			ID:         fmt.Sprintf("user-%02d", i),
			Email:      fmt.Sprintf("user%02d@demo.local", i),
			Interests:  interests[i%len(interests)],
			Profession: professions[i%len(professions)],
			Location:   "Demo City",
			Level:      "member",
			CreatedAt:  now.Add(-time.Duration(30+i) * 24 * time.Hour),
		}
		if err := content.PutUser(user); err != nil {
			return fmt.Errorf("seed user %s: %w", user.ID, err)
		}
	}

	// Each user follows the next three (mod user count)
	for i := 0; i < userCount; i++ {
		for j := 1; j <= 3; j++ {
			follower := fmt.Sprintf("user-%02d", i)
			followee := fmt.Sprintf("user-%02d", (i+j)%userCount)
			if err := content.PutFollow(follower, followee); err != nil {
				return fmt.Errorf("seed follow %s->%s: %w", follower, followee, err)
			}
		}
	}

	const postCount = 240
	for i := 0; i < postCount; i++ {
		authorIdx := i % userCount
		postType := types[i%len(types)]
		age := time.Duration(rng.Intn(21*24)) * time.Hour

		post := Post{
			ID:          fmt.Sprintf("post-%04d", i),
			AuthorID:    fmt.Sprintf("user-%02d", authorIdx),
			AuthorEmail: fmt.Sprintf("user%02d@demo.local", authorIdx),
			Type:        postType,
			Title:       fmt.Sprintf("Demo post %d about %s", i, interests[authorIdx%len(interests)][0]),
			Description: fmt.Sprintf("Notes on %s from a %s.", interests[authorIdx%len(interests)][0], professions[authorIdx%len(professions)]),
			Tags:        interests[authorIdx%len(interests)],
			Views:       int64(rng.Intn(500)),
			CreatedAt:   now.Add(-age),
		}
		if postType == "video" {
			post.Media = []MediaFile{{URL: fmt.Sprintf("https://cdn.demo.local/v/%d.mp4", i), MimeType: "video/mp4"}}
		} else if postType == "image" {
			post.Media = []MediaFile{{URL: fmt.Sprintf("https://cdn.demo.local/i/%d.jpg", i), MimeType: "image/jpeg"}}
		}
		if err := content.PutPost(post); err != nil {
			return fmt.Errorf("seed post %s: %w", post.ID, err)
		}
	}

	kinds := []EventKind{EventLike, EventComment, EventShare, EventView}
	const eventCount = 1500
	for i := 0; i < eventCount; i++ {
		// Skew engagement toward low-numbered posts so trending is stable
		postIdx := rng.Intn(postCount)
		if rng.Intn(3) == 0 {
			postIdx = rng.Intn(postCount / 10)
		}
		authorIdx := postIdx % userCount

		ev := Event{
			UserID:    fmt.Sprintf("user-%02d", rng.Intn(userCount)),
			ItemID:    fmt.Sprintf("post-%04d", postIdx),
			AuthorID:  fmt.Sprintf("user-%02d", authorIdx),
			Kind:      kinds[rng.Intn(len(kinds))],
			ItemType:  types[postIdx%len(types)],
			CreatedAt: now.Add(-time.Duration(rng.Intn(14*24)) * time.Hour),
		}
		if err := engagement.InsertEvent(ctx, ev); err != nil {
			return fmt.Errorf("seed event %d: %w", i, err)
		}
	}

	return nil
}
