// Feedrank - Personalized Feed Ranking and Caching Engine
// Copyright 2026 OpenLearn HQ
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/openlearnhq/feedrank

// Package scoring implements the composite ranking function. Scores are a
// pure function of declared weights and fixed inputs; only force-refresh
// requests inject bounded jitter through a caller-supplied rand source.
package scoring

import (
	"fmt"
	"math"
	"math/rand"
	"strings"
	"time"

	"github.com/openlearnhq/feedrank/internal/feed"
	"github.com/openlearnhq/feedrank/internal/profile"
	"github.com/openlearnhq/feedrank/internal/store"
)

// Weights configures the composite score. The four core weights should sum
// to 1; bonuses stack on top before clamping.
type Weights struct {
	Recency      float64 `koanf:"recency"`
	Engagement   float64 `koanf:"engagement"`
	Relationship float64 `koanf:"relationship"`
	Preference   float64 `koanf:"preference"`

	// QualityBonus weights the quality sub-score's contribution to the rank.
	QualityBonus float64 `koanf:"quality_bonus"`

	// DiversityBonus is added when the author or type is absent from the
	// user's recent interaction history.
	DiversityBonus float64 `koanf:"diversity_bonus"`

	// NewContentBoost is added for very fresh content; FollowedNewBoost
	// replaces it when the author is followed.
	NewContentBoost  float64 `koanf:"new_content_boost"`
	FollowedNewBoost float64 `koanf:"followed_new_boost"`

	// JitterSpan bounds the refresh-mode jitter to [-JitterSpan, +JitterSpan].
	JitterSpan float64 `koanf:"jitter_span"`
}

// DefaultWeights returns the hand-tuned production weights.
func DefaultWeights() Weights {
	return Weights{
		Recency:          0.28,
		Engagement:       0.32,
		Relationship:     0.25,
		Preference:       0.15,
		QualityBonus:     0.10,
		DiversityBonus:   0.08,
		NewContentBoost:  0.10,
		FollowedNewBoost: 0.18,
		JitterSpan:       0.15,
	}
}

// Validate checks weight ranges and that the core weights sum to 1.
func (w Weights) Validate() error {
	core := w.Recency + w.Engagement + w.Relationship + w.Preference
	if math.Abs(core-1.0) > 0.01 {
		return fmt.Errorf("core weights sum to %.3f, want 1.0", core)
	}
	for name, v := range map[string]float64{
		"recency":         w.Recency,
		"engagement":      w.Engagement,
		"relationship":    w.Relationship,
		"preference":      w.Preference,
		"quality_bonus":   w.QualityBonus,
		"diversity_bonus": w.DiversityBonus,
		"jitter_span":     w.JitterSpan,
	} {
		if v < 0 || v > 1 {
			return fmt.Errorf("weight %s = %.3f outside [0, 1]", name, v)
		}
	}
	return nil
}

// Engagement event weights and recency thresholds.
const (
	likeWeight    = 1.0
	commentWeight = 3.5
	shareWeight   = 5.5
	viewWeight    = 0.15

	recencyFloor = 0.15

	newContentWindow = 90 * time.Minute
)

// Scorer implements feed.Scorer.
type Scorer struct {
	weights Weights
}

// NewScorer creates a scorer with the given weights.
func NewScorer(weights Weights) *Scorer {
	return &Scorer{weights: weights}
}

// Score computes the composite rank and quality scores for one candidate.
func (s *Scorer) Score(user *profile.Context, cand feed.ContentCandidate, counts store.Counts, now time.Time, jitter *rand.Rand) feed.ScoredContent {
	w := s.weights

	recency := recencyScore(now.Sub(cand.CreatedAt))
	engagement := engagementScore(counts)
	relationship := relationshipScore(user, cand.AuthorID)
	preference := preferenceScore(user, cand)
	quality := qualityScore(cand)

	rank := w.Recency*recency +
		w.Engagement*engagement +
		w.Relationship*relationship +
		w.Preference*preference +
		w.QualityBonus*quality

	if diverse(user, cand) {
		rank += w.DiversityBonus
	}
	rank += newContentBoost(w, user, cand, now)

	if jitter != nil {
		rank += (jitter.Float64()*2 - 1) * w.JitterSpan
	}

	rank = clamp01(rank)

	return feed.ScoredContent{
		ContentCandidate: cand,
		RankScore:        rank,
		QualityScore:     quality,
		Priority:         priorityFor(rank),
	}
}

// recencyScore maps content age onto a banded step function. Never zero.
func recencyScore(age time.Duration) float64 {
	switch {
	case age < time.Hour:
		return 1.0
	case age < 2*time.Hour:
		return 0.95
	case age < 6*time.Hour:
		return 0.85
	case age < 12*time.Hour:
		return 0.70
	case age < 24*time.Hour:
		return 0.55
	case age < 48*time.Hour:
		return 0.40
	case age < 72*time.Hour:
		return 0.30
	case age < 7*24*time.Hour:
		return 0.22
	default:
		return recencyFloor
	}
}

// engagementScore log-compresses the weighted event sum into [0, 1].
func engagementScore(c store.Counts) float64 {
	raw := float64(c.Likes)*likeWeight +
		float64(c.Comments)*commentWeight +
		float64(c.Shares)*shareWeight +
		float64(c.Views)*viewWeight
	return clamp01(math.Log10(raw+1) / 3)
}

// relationshipScore reflects the author's social proximity to the user.
func relationshipScore(user *profile.Context, authorID string) float64 {
	switch {
	case user.Follows(authorID):
		return 1.0
	case user.RecentlyInteractedWith(authorID):
		return 0.7
	default:
		return 0.2
	}
}

// preferenceScore starts from a 0.3 baseline and stacks match boosts plus a
// fraction of the pool strategy's affinity seed.
func preferenceScore(user *profile.Context, cand feed.ContentCandidate) float64 {
	score := 0.3
	if user.PrefersType(cand.Type) {
		score += 0.2
	}
	if matchesAny(cand, user.Interests) {
		score += 0.15
	}
	if matchesAny(cand, []string{user.Profession, user.Location}) {
		score += 0.15
	}
	score += cand.PreferenceScore * 0.15
	return clamp01(score)
}

// qualityScore starts from a 0.5 baseline and stacks content-richness boosts.
func qualityScore(cand feed.ContentCandidate) float64 {
	score := 0.5
	if len(cand.Media) > 0 {
		score += 0.15
	}
	if len(cand.Description) >= 50 {
		score += 0.10
	}
	if len(cand.Media) > 1 {
		score += 0.10
	}
	if cand.Type == feed.TypeVideo {
		score += 0.15
	}
	return clamp01(score)
}

// diverse reports whether the candidate breaks the user's recent
// author/type pattern.
func diverse(user *profile.Context, cand feed.ContentCandidate) bool {
	return !user.RecentlyInteractedWith(cand.AuthorID) || !user.PrefersType(cand.Type)
}

// newContentBoost rewards very fresh content, more when the author is followed.
func newContentBoost(w Weights, user *profile.Context, cand feed.ContentCandidate, now time.Time) float64 {
	if now.Sub(cand.CreatedAt) >= newContentWindow {
		return 0
	}
	if user.Follows(cand.AuthorID) {
		return w.FollowedNewBoost
	}
	return w.NewContentBoost
}

// matchesAny reports a case-insensitive match of any term against the
// candidate's title, description, or tags.
func matchesAny(cand feed.ContentCandidate, terms []string) bool {
	title := strings.ToLower(cand.Title)
	desc := strings.ToLower(cand.Description)
	for _, term := range terms {
		if term == "" {
			continue
		}
		t := strings.ToLower(term)
		if strings.Contains(title, t) || strings.Contains(desc, t) {
			return true
		}
		for _, tag := range cand.Tags {
			if strings.EqualFold(tag, term) {
				return true
			}
		}
	}
	return false
}

func priorityFor(rank float64) feed.Priority {
	switch {
	case rank >= 0.75:
		return feed.PriorityHigh
	case rank >= 0.4:
		return feed.PriorityNormal
	default:
		return feed.PriorityLow
	}
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
