// Feedrank - Personalized Feed Ranking and Caching Engine
// Copyright 2026 OpenLearn HQ
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/openlearnhq/feedrank

package store

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"

	"github.com/openlearnhq/feedrank/internal/metrics"
)

// Key prefixes for the Badger keyspace. A post lives under post:<id>;
// follow edges are indexed in both directions for bounded scans by subject.
const (
	prefixPost     = "post:"
	prefixUser     = "user:"
	prefixFollow   = "follow:"   // follow:<follower>:<followee>
	prefixFollower = "follower:" // follower:<followee>:<follower>
)

// BadgerStore implements ContentStore and SocialStore on an embedded Badger
// database. Content queries iterate the post keyspace and filter in process,
// which is adequate for the embedded corpus sizes this service targets.
type BadgerStore struct {
	db *badger.DB
}

// OpenBadger opens (or creates) a Badger store at path.
// An empty path opens an in-memory database.
func OpenBadger(path string) (*BadgerStore, error) {
	var opts badger.Options
	if path == "" {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		opts = badger.DefaultOptions(path)
	}
	opts = opts.WithLogger(nil)

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger at %q: %w", path, err)
	}
	return &BadgerStore{db: db}, nil
}

// Close releases the underlying database.
func (s *BadgerStore) Close() error {
	return s.db.Close()
}

// PutPost stores a post document.
func (s *BadgerStore) PutPost(post Post) error {
	data, err := json.Marshal(post)
	if err != nil {
		return fmt.Errorf("marshal post %s: %w", post.ID, err)
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(prefixPost+post.ID), data)
	})
}

// PutUser stores a user document.
func (s *BadgerStore) PutUser(user User) error {
	data, err := json.Marshal(user)
	if err != nil {
		return fmt.Errorf("marshal user %s: %w", user.ID, err)
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(prefixUser+user.ID), data)
	})
}

// PutFollow records a follow edge in both index directions.
func (s *BadgerStore) PutFollow(followerID, followeeID string) error {
	return s.db.Update(func(txn *badger.Txn) error {
		if err := txn.Set([]byte(prefixFollow+followerID+":"+followeeID), nil); err != nil {
			return err
		}
		return txn.Set([]byte(prefixFollower+followeeID+":"+followerID), nil)
	})
}

// GetUser returns the user document, or ErrNotFound.
func (s *BadgerStore) GetUser(ctx context.Context, userID string) (User, error) {
	start := time.Now()
	var user User
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(prefixUser + userID))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return fmt.Errorf("user %s: %w", userID, ErrNotFound)
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &user)
		})
	})
	metrics.ObserveStoreQuery("badger", "get_user", time.Since(start), err)
	return user, err
}

// Following returns up to limit author ids the user follows.
func (s *BadgerStore) Following(ctx context.Context, userID string, limit int) ([]string, error) {
	start := time.Now()
	ids, err := s.scanEdgeIndex(prefixFollow+userID+":", limit)
	metrics.ObserveStoreQuery("badger", "following", time.Since(start), err)
	return ids, err
}

// Followers returns up to limit user ids following the user.
func (s *BadgerStore) Followers(ctx context.Context, userID string, limit int) ([]string, error) {
	start := time.Now()
	ids, err := s.scanEdgeIndex(prefixFollower+userID+":", limit)
	metrics.ObserveStoreQuery("badger", "followers", time.Since(start), err)
	return ids, err
}

// scanEdgeIndex collects the trailing id component of keys under prefix.
func (s *BadgerStore) scanEdgeIndex(prefix string, limit int) ([]string, error) {
	ids := make([]string, 0, limit)
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		p := []byte(prefix)
		for it.Seek(p); it.ValidForPrefix(p); it.Next() {
			if limit > 0 && len(ids) >= limit {
				break
			}
			key := it.Item().Key()
			ids = append(ids, string(bytes.TrimPrefix(key, p)))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan edge index %q: %w", prefix, err)
	}
	return ids, nil
}

// FindContent returns posts matching the query, sorted and limited.
func (s *BadgerStore) FindContent(ctx context.Context, q ContentQuery) ([]Post, error) {
	start := time.Now()
	posts, err := s.collectPosts(ctx, q)
	metrics.ObserveStoreQuery("badger", "find_content", time.Since(start), err)
	if err != nil {
		return nil, err
	}

	sortPosts(posts, q.Sort)
	if q.Limit > 0 && len(posts) > q.Limit {
		posts = posts[:q.Limit]
	}
	return posts, nil
}

// CountContent returns the number of posts matching the query.
func (s *BadgerStore) CountContent(ctx context.Context, q ContentQuery) (int, error) {
	start := time.Now()
	q.Limit = 0
	posts, err := s.collectPosts(ctx, q)
	metrics.ObserveStoreQuery("badger", "count_content", time.Since(start), err)
	if err != nil {
		return 0, err
	}
	return len(posts), nil
}

// collectPosts iterates the post keyspace applying the query filter.
func (s *BadgerStore) collectPosts(ctx context.Context, q ContentQuery) ([]Post, error) {
	var authorSet map[string]struct{}
	if len(q.AuthorIDs) > 0 {
		authorSet = make(map[string]struct{}, len(q.AuthorIDs))
		for _, id := range q.AuthorIDs {
			authorSet[id] = struct{}{}
		}
	}

	var posts []Post
	err := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		p := []byte(prefixPost)
		for it.Seek(p); it.ValidForPrefix(p); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}

			var post Post
			err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &post)
			})
			if err != nil {
				return err
			}

			if matchesQuery(post, q, authorSet) {
				posts = append(posts, post)
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan posts: %w", err)
	}
	return posts, nil
}

// matchesQuery applies every constraint of the query to a single post.
func matchesQuery(post Post, q ContentQuery, authorSet map[string]struct{}) bool {
	if authorSet != nil {
		if _, ok := authorSet[post.AuthorID]; !ok {
			return false
		}
	}
	if q.ContentType != "" && q.ContentType != "all" && post.Type != q.ContentType {
		return false
	}
	if q.ExcludeIDs != nil {
		if _, excluded := q.ExcludeIDs[post.ID]; excluded {
			return false
		}
	}
	if q.MinViews > 0 && post.Views < q.MinViews {
		return false
	}
	if !q.CreatedAfter.IsZero() && !post.CreatedAt.After(q.CreatedAfter) {
		return false
	}
	if !q.CreatedBefore.IsZero() && !post.CreatedAt.Before(q.CreatedBefore) {
		return false
	}
	if len(q.TextMatch) > 0 && !matchesText(post, q.TextMatch) {
		return false
	}
	return true
}

// matchesText reports whether any term appears in the post's title,
// description, or tags (case-insensitive).
func matchesText(post Post, terms []string) bool {
	haystack := strings.ToLower(post.Title + " " + post.Description + " " + strings.Join(post.Tags, " "))
	for _, term := range terms {
		term = strings.ToLower(strings.TrimSpace(term))
		if term != "" && strings.Contains(haystack, term) {
			return true
		}
	}
	return false
}

// sortPosts orders posts in place per the requested sort order.
func sortPosts(posts []Post, order SortOrder) {
	switch order {
	case SortMostViewed:
		sort.Slice(posts, func(i, j int) bool { return posts[i].Views > posts[j].Views })
	case SortIDAsc:
		sort.Slice(posts, func(i, j int) bool { return posts[i].ID < posts[j].ID })
	default:
		sort.Slice(posts, func(i, j int) bool { return posts[i].CreatedAt.After(posts[j].CreatedAt) })
	}
}

// Ensure interface conformance.
var (
	_ ContentStore = (*BadgerStore)(nil)
	_ SocialStore  = (*BadgerStore)(nil)
)
