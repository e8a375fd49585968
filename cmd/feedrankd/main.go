// Feedrank - Personalized Feed Ranking and Caching Engine
// Copyright 2026 OpenLearn HQ
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/openlearnhq/feedrank

// Package main is the entry point for the Feedrank server.
//
// Feedrank serves personalized, ranked content feeds. Each request builds a
// user context from the social graph and engagement history, assembles a
// candidate pool from six competing strategies, scores the pool in
// memory-pressure-aware batches, and mixes the result into a paginated feed
// with content-type interleaving.
//
// # Application Architecture
//
// The server initializes components in the following order:
//
//  1. Configuration: layered settings from defaults, config file, and
//     environment variables (Koanf v2)
//  2. Stores: Badger for content and the social graph, DuckDB for
//     engagement events, with a circuit breaker on the content path
//  3. Cache: three-tier TTL cache with a pressure-driven eviction janitor
//  4. Pipeline: profile builder, pool assembler, scorer, batch processor,
//     and feed mixer wired into the feed engine
//  5. Events: in-process bus delivering served-item ids to the seen tracker
//  6. HTTP server: REST API under /api/v1 plus Prometheus /metrics
//
// # Configuration
//
// Environment variables use the FEEDRANK_ prefix with double underscores as
// the nesting separator:
//
//	export FEEDRANK_SERVER__PORT=9000
//	export FEEDRANK_STORE__IN_MEMORY=true
//	export FEEDRANK_STORE__SEED_DEMO_DATA=true
//	./feedrankd
//
// # Signal Handling
//
// The server shuts down gracefully on SIGINT and SIGTERM: the supervisor
// tree stops the background services, the HTTP server drains in-flight
// requests (10s timeout), and the stores are closed.
package main

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"net/http"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/openlearnhq/feedrank/internal/api"
	"github.com/openlearnhq/feedrank/internal/batch"
	"github.com/openlearnhq/feedrank/internal/cache"
	"github.com/openlearnhq/feedrank/internal/config"
	"github.com/openlearnhq/feedrank/internal/events"
	"github.com/openlearnhq/feedrank/internal/feed"
	"github.com/openlearnhq/feedrank/internal/feed/mixer"
	"github.com/openlearnhq/feedrank/internal/feed/pool"
	"github.com/openlearnhq/feedrank/internal/feed/scoring"
	"github.com/openlearnhq/feedrank/internal/logging"
	"github.com/openlearnhq/feedrank/internal/profile"
	"github.com/openlearnhq/feedrank/internal/seen"
	"github.com/openlearnhq/feedrank/internal/store"
	"github.com/openlearnhq/feedrank/internal/supervisor"
	"github.com/openlearnhq/feedrank/internal/supervisor/services"
)

const bytesPerMB = 1024 * 1024

func main() {
	// Load configuration first to get logging settings
	cfg, err := config.Load()
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logging.Init(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Caller: cfg.Logging.Caller,
	})

	logging.Info().
		Bool("in_memory", cfg.Store.InMemory).
		Str("content_path", cfg.Store.ContentPath).
		Str("engagement_path", cfg.Store.EngagementPath).
		Msg("Starting Feedrank")

	// Content and social graph live in Badger; engagement events in DuckDB.
	contentPath := cfg.Store.ContentPath
	engagementPath := cfg.Store.EngagementPath
	if cfg.Store.InMemory {
		contentPath = ""
		engagementPath = ""
	}

	contentStore, err := store.OpenBadger(contentPath)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to open content store")
	}
	defer func() {
		if err := contentStore.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing content store")
		}
	}()

	engagementStore, err := store.OpenDuck(engagementPath)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to open engagement store")
	}
	defer func() {
		if err := engagementStore.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing engagement store")
		}
	}()
	logging.Info().Msg("Stores initialized")

	if cfg.Store.SeedDemoData {
		if err := store.SeedDemoData(context.Background(), contentStore, engagementStore); err != nil {
			logging.Fatal().Err(err).Msg("Failed to seed demo data")
		}
		logging.Info().Msg("Demo data seeded")
	}

	breaker := store.NewBreakerStore(contentStore, store.BreakerSettings{
		MaxFailures: cfg.Store.BreakerMaxFailures,
		OpenTimeout: cfg.Store.BreakerOpenTimeout,
	}, logging.Logger())

	// Multi-tier cache with pressure-driven eviction.
	tc := cache.New(cache.Options{
		HotTTL:         cfg.Cache.HotTTL,
		WarmTTL:        cfg.Cache.WarmTTL,
		ColdTTL:        cfg.Cache.ColdTTL,
		HotRetainCount: cfg.Cache.HotRetainCount,
	}, logging.Logger())

	sampler, err := cache.NewProcessSampler(cache.Watermarks{
		Low:    cfg.Cache.LowWatermarkMB * bytesPerMB,
		Medium: cfg.Cache.MediumWatermarkMB * bytesPerMB,
		High:   cfg.Cache.HighWatermarkMB * bytesPerMB,
	})
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to create memory pressure sampler")
	}

	janitor := cache.NewJanitor(tc, sampler, cfg.Cache.CheckInterval, cfg.Cache.SweepInterval, logging.Logger())

	// Seen tracking: the engine publishes served ids on the bus, the
	// consumer records them in the tracker.
	tracker := seen.NewTracker(cfg.Seen.Capacity, cfg.Seen.TTL, nil, logging.Logger())
	bus := events.NewBus(logging.Logger())
	defer func() {
		if err := bus.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing event bus")
		}
	}()
	consumer := events.NewSeenConsumer(bus, tracker, logging.Logger())

	// Ranking pipeline.
	builder := profile.NewBuilder(contentStore, engagementStore, tc, logging.Logger())
	assembler := pool.NewAssembler(breaker, tc, pool.Options{
		TrendingMinViews: cfg.Feed.TrendingViewThreshold,
		RecentWindow:     cfg.Feed.RecentWindow,
	}, nil, logging.Logger())
	scorer := scoring.NewScorer(scoring.DefaultWeights())
	mx := mixer.New(mixer.Options{
		VideoRatio:  cfg.Feed.VideoRatio,
		MaxVideoRun: cfg.Feed.MaxConsecutiveVideo,
		MaxOtherRun: cfg.Feed.MaxConsecutiveOther,
	})
	processor := batch.NewProcessor(batch.Options{
		Size:            cfg.Batch.Size,
		PressureShrink:  cfg.Batch.PressureShrink,
		Concurrency:     cfg.Batch.Concurrency,
		LowPriorityRate: cfg.Batch.LowPriorityRate,
	}, sampler, logging.Logger())

	engine := feed.NewEngine(feed.Options{
		DefaultLimit:   cfg.Feed.DefaultLimit,
		MaxLimit:       cfg.Feed.MaxLimit,
		PoolMultiplier: cfg.Feed.PoolMultiplier,
		JitterSeed:     jitterSeedFunc(cfg.Feed.Seed),
	}, builder, assembler, scorer, mx, processor, tracker, engagementStore, tc, bus, logging.Logger())

	handler := api.NewHandler(engine, readyCheck(contentStore), logging.Logger())
	router := api.NewRouter(handler, cfg.Server)

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.Timeout,
		WriteTimeout: cfg.Server.Timeout,
		IdleTimeout:  60 * time.Second,
	}

	// Supervisor tree: background services restart independently of the API.
	tree := supervisor.NewTree(logging.NewSlogLogger(), supervisor.DefaultTreeConfig())
	tree.AddBackgroundService(janitor)
	tree.AddBackgroundService(consumer)
	tree.AddAPIService(services.NewHTTPServerService(server, 10*time.Second))
	logging.Info().Str("addr", server.Addr).Msg("HTTP server service added")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logging.Info().Msg("Starting supervisor tree")
	if err := tree.Serve(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logging.Error().Err(err).Msg("Supervisor tree error")
	}

	logging.Info().Msg("Application stopped gracefully")
}

// jitterSeedFunc returns the refresh-jitter seed source. A non-zero config
// seed produces a reproducible sequence; zero falls back to the engine's
// clock-derived seeding.
func jitterSeedFunc(seed int64) func() int64 {
	if seed == 0 {
		return nil
	}
	var mu sync.Mutex
	src := rand.New(rand.NewSource(seed))
	return func() int64 {
		mu.Lock()
		defer mu.Unlock()
		return src.Int63()
	}
}

// readyCheck probes the content store with a bounded query so readiness
// reflects actual backend health.
func readyCheck(content store.ContentStore) func() bool {
	return func() bool {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_, err := content.CountContent(ctx, store.ContentQuery{Limit: 1})
		return err == nil
	}
}
