// Feedrank - Personalized Feed Ranking and Caching Engine
// Copyright 2026 OpenLearn HQ
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/openlearnhq/feedrank

package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/duckdb/duckdb-go/v2" // DuckDB driver (CGO-based)

	"github.com/openlearnhq/feedrank/internal/metrics"
)

// DuckStore implements EngagementStore on DuckDB. Engagement events are an
// append-only table; per-item counters come from grouped aggregates, which
// DuckDB's columnar engine serves efficiently.
type DuckStore struct {
	conn *sql.DB
}

const engagementSchema = `
CREATE TABLE IF NOT EXISTS engagement_events (
	user_id    VARCHAR NOT NULL,
	item_id    VARCHAR NOT NULL,
	author_id  VARCHAR NOT NULL,
	kind       VARCHAR NOT NULL,
	item_type  VARCHAR NOT NULL,
	created_at TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_engagement_user_kind
	ON engagement_events (user_id, kind, created_at);
CREATE INDEX IF NOT EXISTS idx_engagement_item
	ON engagement_events (item_id);
`

// OpenDuck opens (or creates) a DuckDB engagement store at path.
// An empty path opens an in-memory database.
func OpenDuck(path string) (*DuckStore, error) {
	dsn := path
	if dsn == "" {
		dsn = ":memory:"
	}

	conn, err := sql.Open("duckdb", dsn)
	if err != nil {
		return nil, fmt.Errorf("open duckdb at %q: %w", path, err)
	}
	if _, err := conn.Exec(engagementSchema); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("init engagement schema: %w", err)
	}

	return &DuckStore{conn: conn}, nil
}

// Close releases the underlying database.
func (s *DuckStore) Close() error {
	return s.conn.Close()
}

// InsertEvent appends an engagement event.
func (s *DuckStore) InsertEvent(ctx context.Context, ev Event) error {
	_, err := s.conn.ExecContext(ctx,
		`INSERT INTO engagement_events (user_id, item_id, author_id, kind, item_type, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		ev.UserID, ev.ItemID, ev.AuthorID, string(ev.Kind), ev.ItemType, ev.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert engagement event: %w", err)
	}
	return nil
}

// RecentEventsByUser returns up to limit of the user's most recent events of
// the given kind, newest first.
func (s *DuckStore) RecentEventsByUser(ctx context.Context, userID string, kind EventKind, limit int) ([]Event, error) {
	start := time.Now()
	rows, err := s.conn.QueryContext(ctx,
		`SELECT user_id, item_id, author_id, kind, item_type, created_at
		 FROM engagement_events
		 WHERE user_id = ? AND kind = ?
		 ORDER BY created_at DESC
		 LIMIT ?`,
		userID, string(kind), limit,
	)
	metrics.ObserveStoreQuery("duckdb", "recent_events", time.Since(start), err)
	if err != nil {
		return nil, fmt.Errorf("query recent events: %w", err)
	}
	defer rows.Close() //nolint:errcheck // read-only rows

	var events []Event
	for rows.Next() {
		var ev Event
		var kindStr string
		if err := rows.Scan(&ev.UserID, &ev.ItemID, &ev.AuthorID, &kindStr, &ev.ItemType, &ev.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan engagement event: %w", err)
		}
		ev.Kind = EventKind(kindStr)
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate engagement events: %w", err)
	}
	return events, nil
}

// CountsByItem returns aggregate counters for each item id, grouped in a
// single query. Items with no events map to zero counts.
func (s *DuckStore) CountsByItem(ctx context.Context, itemIDs []string) (map[string]Counts, error) {
	out := make(map[string]Counts, len(itemIDs))
	for _, id := range itemIDs {
		out[id] = Counts{}
	}
	if len(itemIDs) == 0 {
		return out, nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(itemIDs)), ",")
	args := make([]interface{}, len(itemIDs))
	for i, id := range itemIDs {
		args[i] = id
	}

	start := time.Now()
	//nolint:gosec // placeholders are generated, values are bound
	query := fmt.Sprintf(
		`SELECT item_id,
			count(*) FILTER (WHERE kind = 'like')    AS likes,
			count(*) FILTER (WHERE kind = 'comment') AS comments,
			count(*) FILTER (WHERE kind = 'share')   AS shares,
			count(*) FILTER (WHERE kind = 'view')    AS views
		 FROM engagement_events
		 WHERE item_id IN (%s)
		 GROUP BY item_id`, placeholders)

	rows, err := s.conn.QueryContext(ctx, query, args...)
	metrics.ObserveStoreQuery("duckdb", "counts_by_item", time.Since(start), err)
	if err != nil {
		return nil, fmt.Errorf("query counts by item: %w", err)
	}
	defer rows.Close() //nolint:errcheck // read-only rows

	for rows.Next() {
		var itemID string
		var c Counts
		if err := rows.Scan(&itemID, &c.Likes, &c.Comments, &c.Shares, &c.Views); err != nil {
			return nil, fmt.Errorf("scan counts row: %w", err)
		}
		out[itemID] = c
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate counts rows: %w", err)
	}
	return out, nil
}

// Ensure interface conformance.
var _ EngagementStore = (*DuckStore)(nil)
