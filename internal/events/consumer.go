// Feedrank - Personalized Feed Ranking and Caching Engine
// Copyright 2026 OpenLearn HQ
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/openlearnhq/feedrank

package events

import (
	"context"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"
)

// SeenRecorder receives the item ids served to a user.
type SeenRecorder interface {
	Track(userID string, ids []string)
}

// SeenConsumer subscribes to feed.served and records served ids in the
// seen-content tracker. The engine already tracks synchronously; Track is
// idempotent, so replaying the event here is harmless and keeps any
// additional recorder wired to the bus consistent. It implements
// suture.Service.
type SeenConsumer struct {
	bus      *Bus
	recorder SeenRecorder
	logger   zerolog.Logger
}

// NewSeenConsumer creates a consumer feeding the given recorder.
func NewSeenConsumer(bus *Bus, recorder SeenRecorder, logger zerolog.Logger) *SeenConsumer {
	return &SeenConsumer{
		bus:      bus,
		recorder: recorder,
		logger:   logger.With().Str("component", "seen-consumer").Logger(),
	}
}

// Serve consumes feed.served events until ctx is canceled.
func (c *SeenConsumer) Serve(ctx context.Context) error {
	messages, err := c.bus.Subscriber().Subscribe(ctx, TopicFeedServed)
	if err != nil {
		return err
	}

	c.logger.Info().Msg("seen consumer started")
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-messages:
			if !ok {
				return ctx.Err()
			}

			var ev FeedServed
			if err := json.Unmarshal(msg.Payload, &ev); err != nil {
				c.logger.Warn().Err(err).Str("message_id", msg.UUID).Msg("malformed feed.served payload")
				msg.Ack()
				continue
			}

			c.recorder.Track(ev.UserID, ev.ItemIDs)
			msg.Ack()

			c.logger.Debug().
				Str("user_id", ev.UserID).
				Int("items", len(ev.ItemIDs)).
				Msg("served items tracked")
		}
	}
}

// String identifies the service in supervisor logs.
func (c *SeenConsumer) String() string {
	return "seen-consumer"
}
