// Feedrank - Personalized Feed Ranking and Caching Engine
// Copyright 2026 OpenLearn HQ
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/openlearnhq/feedrank

package cache

import (
	"fmt"
	"os"

	"github.com/shirou/gopsutil/v4/process"
)

// PressureSampler maps measured process memory onto a PressureLevel.
type PressureSampler interface {
	Sample() (PressureLevel, error)
}

// Watermarks are RSS thresholds in bytes for each pressure level.
type Watermarks struct {
	Low    uint64
	Medium uint64
	High   uint64
}

// ProcessSampler measures the current process RSS via gopsutil.
type ProcessSampler struct {
	proc       *process.Process
	watermarks Watermarks
}

// NewProcessSampler creates a sampler for the current process.
func NewProcessSampler(w Watermarks) (*ProcessSampler, error) {
	proc, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		return nil, fmt.Errorf("open process handle: %w", err)
	}
	return &ProcessSampler{proc: proc, watermarks: w}, nil
}

// Sample returns the pressure level for the current process RSS.
func (s *ProcessSampler) Sample() (PressureLevel, error) {
	info, err := s.proc.MemoryInfo()
	if err != nil {
		return PressureNone, fmt.Errorf("read process memory: %w", err)
	}
	return levelFor(info.RSS, s.watermarks), nil
}

// levelFor maps an RSS measurement onto the watermark thresholds.
func levelFor(rss uint64, w Watermarks) PressureLevel {
	switch {
	case w.High > 0 && rss >= w.High:
		return PressureHigh
	case w.Medium > 0 && rss >= w.Medium:
		return PressureMedium
	case w.Low > 0 && rss >= w.Low:
		return PressureLow
	default:
		return PressureNone
	}
}

// staticSampler returns a fixed pressure level (tests).
type staticSampler struct {
	level PressureLevel
}

func (s staticSampler) Sample() (PressureLevel, error) {
	return s.level, nil
}

// StaticSampler returns a sampler that always reports the given level.
func StaticSampler(level PressureLevel) PressureSampler {
	return staticSampler{level: level}
}
