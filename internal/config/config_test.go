// Feedrank - Personalized Feed Ranking and Caching Engine
// Copyright 2026 OpenLearn HQ
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/openlearnhq/feedrank

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := defaultConfig()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, 60*time.Second, cfg.Cache.HotTTL)
	assert.Equal(t, 5*time.Minute, cfg.Cache.WarmTTL)
	assert.Equal(t, 15*time.Minute, cfg.Cache.ColdTTL)
	assert.Equal(t, 20, cfg.Feed.DefaultLimit)
	assert.Equal(t, 50, cfg.Feed.MaxLimit)
	assert.Equal(t, 1000, cfg.Seen.Capacity)
	assert.Equal(t, 5, cfg.Batch.Concurrency)
}

func TestValidateRejectsBadValues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero port", func(c *Config) { c.Server.Port = 0 }},
		{"negative hot ttl", func(c *Config) { c.Cache.HotTTL = -time.Second }},
		{"inverted watermarks", func(c *Config) { c.Cache.LowWatermarkMB = 9999 }},
		{"max limit below default", func(c *Config) { c.Feed.MaxLimit = 1 }},
		{"zero batch size", func(c *Config) { c.Batch.Size = 0 }},
		{"shrink above one", func(c *Config) { c.Batch.PressureShrink = 1.5 }},
		{"tiny seen capacity", func(c *Config) { c.Seen.Capacity = 1 }},
		{"zero video ratio", func(c *Config) { c.Feed.VideoRatio = 0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := defaultConfig()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestLoadAppliesYAMLAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	yaml := "server:\n  port: 9100\nfeed:\n  default_limit: 10\n"
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o600))

	t.Setenv(ConfigPathEnvVar, path)
	t.Setenv("FEEDRANK_SERVER__PORT", "9200")

	cfg, err := Load()
	require.NoError(t, err)

	// Env overrides file, file overrides defaults
	assert.Equal(t, 9200, cfg.Server.Port)
	assert.Equal(t, 10, cfg.Feed.DefaultLimit)
	assert.Equal(t, 50, cfg.Feed.MaxLimit)
}

func TestLoadCORSOriginsFromEnv(t *testing.T) {
	t.Setenv(ConfigPathEnvVar, filepath.Join(t.TempDir(), "missing.yaml"))
	t.Setenv("FEEDRANK_SERVER__CORS_ORIGINS", "https://a.example, https://b.example")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.Server.CORSOrigins)
}
