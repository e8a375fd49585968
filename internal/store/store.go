// Feedrank - Personalized Feed Ranking and Caching Engine
// Copyright 2026 OpenLearn HQ
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/openlearnhq/feedrank

// Package store defines the narrow collaborator interfaces the feed engine
// consumes (content, social graph, engagement counters) and provides
// embedded implementations backed by Badger and DuckDB.
//
// The ranking subsystem never owns this data; it only issues bounded
// find/count/aggregate queries against it.
package store

import (
	"context"
	"errors"
	"time"
)

// Sentinel errors shared by store implementations.
var (
	// ErrNotFound indicates the requested document does not exist.
	ErrNotFound = errors.New("store: not found")

	// ErrUnavailable indicates the store cannot currently serve queries
	// (for example, an open circuit breaker).
	ErrUnavailable = errors.New("store: unavailable")
)

// SortOrder controls result ordering for content queries.
type SortOrder int

const (
	// SortNewest orders by creation time, most recent first.
	SortNewest SortOrder = iota
	// SortMostViewed orders by view count, highest first.
	SortMostViewed
	// SortIDAsc orders by item id ascending.
	SortIDAsc
)

// MediaFile describes a single media attachment on a post.
type MediaFile struct {
	URL      string `json:"url"`
	MimeType string `json:"mime_type"`
	Size     int64  `json:"size,omitempty"`
}

// Post is a content item as persisted by the content store.
type Post struct {
	ID          string      `json:"id"`
	AuthorID    string      `json:"author_id"`
	AuthorEmail string      `json:"author_email,omitempty"`
	Type        string      `json:"type"` // video, text, image
	Title       string      `json:"title"`
	Description string      `json:"description,omitempty"`
	Media       []MediaFile `json:"media,omitempty"`
	Tags        []string    `json:"tags,omitempty"`
	Views       int64       `json:"views"`
	CreatedAt   time.Time   `json:"created_at"`
}

// User holds the profile attributes the context builder reads.
type User struct {
	ID         string    `json:"id"`
	Email      string    `json:"email"`
	Interests  []string  `json:"interests,omitempty"`
	Profession string    `json:"profession,omitempty"`
	Location   string    `json:"location,omitempty"`
	Level      string    `json:"level,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// ContentQuery is a filter for FindContent. Zero values mean "no constraint".
type ContentQuery struct {
	// AuthorIDs restricts results to posts by these authors.
	AuthorIDs []string

	// ContentType restricts results to one type ("" or "all" matches any).
	ContentType string

	// ExcludeIDs removes specific item ids from results (seen-content exclusion).
	ExcludeIDs map[string]struct{}

	// MinViews restricts results to posts with at least this many views.
	MinViews int64

	// CreatedAfter restricts results to posts created after this instant.
	CreatedAfter time.Time

	// CreatedBefore restricts results to posts created before this instant.
	CreatedBefore time.Time

	// TextMatch keeps posts whose title, description, or tags contain any of
	// these terms (case-insensitive).
	TextMatch []string

	// Sort controls result ordering.
	Sort SortOrder

	// Limit bounds the result size. Zero means no explicit bound.
	Limit int
}

// ContentStore exposes "find content by filter, sorted, limited" and
// "count documents by filter".
type ContentStore interface {
	FindContent(ctx context.Context, q ContentQuery) ([]Post, error)
	CountContent(ctx context.Context, q ContentQuery) (int, error)
}

// SocialStore exposes "find social-graph edges by subject" plus user
// attribute reads.
type SocialStore interface {
	GetUser(ctx context.Context, userID string) (User, error)

	// Following returns up to limit author ids the user follows.
	Following(ctx context.Context, userID string, limit int) ([]string, error)

	// Followers returns up to limit user ids following the user.
	Followers(ctx context.Context, userID string, limit int) ([]string, error)
}

// EventKind classifies engagement events.
type EventKind string

const (
	EventLike    EventKind = "like"
	EventComment EventKind = "comment"
	EventShare   EventKind = "share"
	EventView    EventKind = "view"
)

// Event is a single engagement event (user acted on an item).
type Event struct {
	UserID    string    `json:"user_id"`
	ItemID    string    `json:"item_id"`
	AuthorID  string    `json:"author_id"`
	Kind      EventKind `json:"kind"`
	ItemType  string    `json:"item_type"`
	CreatedAt time.Time `json:"created_at"`
}

// Counts holds per-item aggregate engagement counters.
type Counts struct {
	Likes    int64 `json:"likes"`
	Comments int64 `json:"comments"`
	Shares   int64 `json:"shares"`
	Views    int64 `json:"views"`
}

// EngagementStore exposes recent-event reads and "aggregate count grouped by
// a foreign key" for engagement counters.
type EngagementStore interface {
	// RecentEventsByUser returns up to limit of the user's most recent events
	// of the given kind, newest first.
	RecentEventsByUser(ctx context.Context, userID string, kind EventKind, limit int) ([]Event, error)

	// CountsByItem returns aggregate counters for each of the given item ids.
	// Items with no events map to zero counts.
	CountsByItem(ctx context.Context, itemIDs []string) (map[string]Counts, error)
}
