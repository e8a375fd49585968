// Feedrank - Personalized Feed Ranking and Caching Engine
// Copyright 2026 OpenLearn HQ
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/openlearnhq/feedrank

// Package config provides layered configuration loading for Feedrank.
package config

import (
	"fmt"
	"time"
)

// Config is the root configuration for the Feedrank service.
type Config struct {
	Server  ServerConfig  `koanf:"server"`
	Store   StoreConfig   `koanf:"store"`
	Cache   CacheConfig   `koanf:"cache"`
	Feed    FeedConfig    `koanf:"feed"`
	Batch   BatchConfig   `koanf:"batch"`
	Seen    SeenConfig    `koanf:"seen"`
	Logging LoggingConfig `koanf:"logging"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	// Host is the listen address.
	Host string `koanf:"host"`

	// Port is the listen port.
	Port int `koanf:"port"`

	// Timeout is the read/write timeout for the HTTP server.
	Timeout time.Duration `koanf:"timeout"`

	// CORSOrigins is the list of allowed CORS origins.
	CORSOrigins []string `koanf:"cors_origins"`

	// RateLimitReqs is the allowed requests per rate-limit window per IP.
	RateLimitReqs int `koanf:"rate_limit_reqs"`

	// RateLimitWindow is the rate-limit window duration.
	RateLimitWindow time.Duration `koanf:"rate_limit_window"`
}

// StoreConfig holds embedded store settings.
type StoreConfig struct {
	// ContentPath is the Badger directory for content and social-graph data.
	ContentPath string `koanf:"content_path"`

	// EngagementPath is the DuckDB database file for engagement events.
	// Empty string uses an in-memory database.
	EngagementPath string `koanf:"engagement_path"`

	// InMemory runs Badger without a disk directory (tests, ephemeral runs).
	InMemory bool `koanf:"in_memory"`

	// SeedDemoData loads a small demo corpus on startup.
	SeedDemoData bool `koanf:"seed_demo_data"`

	// BreakerMaxFailures is the consecutive-failure count that opens the
	// content-store circuit breaker.
	BreakerMaxFailures uint32 `koanf:"breaker_max_failures"`

	// BreakerOpenTimeout is how long the breaker stays open before probing.
	BreakerOpenTimeout time.Duration `koanf:"breaker_open_timeout"`
}

// CacheConfig holds multi-tier cache settings.
type CacheConfig struct {
	// HotTTL is the hot tier time-to-live.
	HotTTL time.Duration `koanf:"hot_ttl"`

	// WarmTTL is the warm tier time-to-live.
	WarmTTL time.Duration `koanf:"warm_ttl"`

	// ColdTTL is the cold tier time-to-live.
	ColdTTL time.Duration `koanf:"cold_ttl"`

	// CheckInterval is how often the janitor samples memory pressure.
	CheckInterval time.Duration `koanf:"check_interval"`

	// SweepInterval is how often the janitor forces a full eviction sweep.
	SweepInterval time.Duration `koanf:"sweep_interval"`

	// LowWatermarkMB is the process RSS above which the cold tier is flushed.
	LowWatermarkMB uint64 `koanf:"low_watermark_mb"`

	// MediumWatermarkMB additionally flushes the warm tier.
	MediumWatermarkMB uint64 `koanf:"medium_watermark_mb"`

	// HighWatermarkMB additionally flushes the hot tier, retaining only the
	// most-recently-used entries.
	HighWatermarkMB uint64 `koanf:"high_watermark_mb"`

	// HotRetainCount is how many recently-used hot entries survive a
	// high-pressure flush.
	HotRetainCount int `koanf:"hot_retain_count"`
}

// FeedConfig holds feed assembly and ranking settings.
type FeedConfig struct {
	// DefaultLimit is the page size when the request omits one.
	DefaultLimit int `koanf:"default_limit"`

	// MaxLimit is the maximum allowed page size.
	MaxLimit int `koanf:"max_limit"`

	// PoolMultiplier scales the candidate pool relative to the page size.
	PoolMultiplier int `koanf:"pool_multiplier"`

	// TrendingViewThreshold is the minimum view count for the trending strategy.
	TrendingViewThreshold int64 `koanf:"trending_view_threshold"`

	// RecentWindow bounds the recent strategy (content newer than this).
	RecentWindow time.Duration `koanf:"recent_window"`

	// VideoRatio is the number of non-video items per video in the mix.
	VideoRatio int `koanf:"video_ratio"`

	// MaxConsecutiveVideo caps same-type video runs in the mixed feed.
	MaxConsecutiveVideo int `koanf:"max_consecutive_video"`

	// MaxConsecutiveOther caps same-type non-video runs in the mixed feed.
	MaxConsecutiveOther int `koanf:"max_consecutive_other"`

	// Seed is the random seed for deterministic shuffling.
	// If zero, a fixed default seed is used.
	Seed int64 `koanf:"seed"`
}

// BatchConfig holds batch processor settings.
type BatchConfig struct {
	// Size is the default batch size.
	Size int `koanf:"size"`

	// PressureShrink scales the batch size under high memory pressure (0-1].
	PressureShrink float64 `koanf:"pressure_shrink"`

	// Concurrency caps in-flight item operations per batch.
	Concurrency int `koanf:"concurrency"`

	// LowPriorityRate paces low-priority work between batches, in
	// batches per second. Zero disables pacing.
	LowPriorityRate float64 `koanf:"low_priority_rate"`
}

// SeenConfig holds seen-content tracker settings.
type SeenConfig struct {
	// Capacity is the per-user seen-set size that triggers rotation.
	Capacity int `koanf:"capacity"`

	// TTL is how long a user's seen set survives without updates.
	TTL time.Duration `koanf:"ttl"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
	Caller bool   `koanf:"caller"`
}

// defaultConfig returns a Config struct with all sensible default values.
// These defaults are applied first, then overridden by config file and env vars.
func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8470,
			Timeout:         30 * time.Second,
			CORSOrigins:     []string{"*"},
			RateLimitReqs:   100,
			RateLimitWindow: time.Minute,
		},
		Store: StoreConfig{
			ContentPath:        "/data/feedrank/content",
			EngagementPath:     "/data/feedrank/engagement.duckdb",
			InMemory:           false,
			SeedDemoData:       false,
			BreakerMaxFailures: 5,
			BreakerOpenTimeout: 30 * time.Second,
		},
		Cache: CacheConfig{
			HotTTL:            60 * time.Second,
			WarmTTL:           5 * time.Minute,
			ColdTTL:           15 * time.Minute,
			CheckInterval:     30 * time.Second,
			SweepInterval:     10 * time.Minute,
			LowWatermarkMB:    512,
			MediumWatermarkMB: 1024,
			HighWatermarkMB:   2048,
			HotRetainCount:    10,
		},
		Feed: FeedConfig{
			DefaultLimit:          20,
			MaxLimit:              50,
			PoolMultiplier:        4,
			TrendingViewThreshold: 100,
			RecentWindow:          7 * 24 * time.Hour,
			VideoRatio:            3,
			MaxConsecutiveVideo:   2,
			MaxConsecutiveOther:   4,
			Seed:                  42,
		},
		Batch: BatchConfig{
			Size:            20,
			PressureShrink:  0.6,
			Concurrency:     5,
			LowPriorityRate: 0,
		},
		Seen: SeenConfig{
			Capacity: 1000,
			TTL:      24 * time.Hour,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Caller: false,
		},
	}
}

// Validate checks the configuration for errors.
//
//nolint:gocyclo // validation needs to check many fields
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be in [1, 65535], got %d", c.Server.Port)
	}
	if c.Server.Timeout <= 0 {
		return fmt.Errorf("server.timeout must be positive, got %v", c.Server.Timeout)
	}

	if c.Cache.HotTTL <= 0 || c.Cache.WarmTTL <= 0 || c.Cache.ColdTTL <= 0 {
		return fmt.Errorf("cache TTLs must be positive, got hot=%v warm=%v cold=%v",
			c.Cache.HotTTL, c.Cache.WarmTTL, c.Cache.ColdTTL)
	}
	if c.Cache.LowWatermarkMB > c.Cache.MediumWatermarkMB ||
		c.Cache.MediumWatermarkMB > c.Cache.HighWatermarkMB {
		return fmt.Errorf("cache watermarks must be non-decreasing, got %d/%d/%d",
			c.Cache.LowWatermarkMB, c.Cache.MediumWatermarkMB, c.Cache.HighWatermarkMB)
	}
	if c.Cache.HotRetainCount < 0 {
		return fmt.Errorf("cache.hot_retain_count must be non-negative, got %d", c.Cache.HotRetainCount)
	}

	if c.Feed.DefaultLimit < 1 {
		return fmt.Errorf("feed.default_limit must be positive, got %d", c.Feed.DefaultLimit)
	}
	if c.Feed.MaxLimit < c.Feed.DefaultLimit {
		return fmt.Errorf("feed.max_limit must be >= feed.default_limit, got %d < %d",
			c.Feed.MaxLimit, c.Feed.DefaultLimit)
	}
	if c.Feed.PoolMultiplier < 1 {
		return fmt.Errorf("feed.pool_multiplier must be positive, got %d", c.Feed.PoolMultiplier)
	}
	if c.Feed.VideoRatio < 1 {
		return fmt.Errorf("feed.video_ratio must be positive, got %d", c.Feed.VideoRatio)
	}
	if c.Feed.MaxConsecutiveVideo < 1 || c.Feed.MaxConsecutiveOther < 1 {
		return fmt.Errorf("feed consecutive-run caps must be positive, got video=%d other=%d",
			c.Feed.MaxConsecutiveVideo, c.Feed.MaxConsecutiveOther)
	}

	if c.Batch.Size < 1 {
		return fmt.Errorf("batch.size must be positive, got %d", c.Batch.Size)
	}
	if c.Batch.PressureShrink <= 0 || c.Batch.PressureShrink > 1 {
		return fmt.Errorf("batch.pressure_shrink must be in (0, 1], got %f", c.Batch.PressureShrink)
	}
	if c.Batch.Concurrency < 1 {
		return fmt.Errorf("batch.concurrency must be positive, got %d", c.Batch.Concurrency)
	}

	if c.Seen.Capacity < 2 {
		return fmt.Errorf("seen.capacity must be at least 2, got %d", c.Seen.Capacity)
	}
	if c.Seen.TTL <= 0 {
		return fmt.Errorf("seen.ttl must be positive, got %v", c.Seen.TTL)
	}

	return nil
}
