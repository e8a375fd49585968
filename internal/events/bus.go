// Feedrank - Personalized Feed Ranking and Caching Engine
// Copyright 2026 OpenLearn HQ
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/openlearnhq/feedrank

// Package events provides the in-process event bus connecting the feed
// engine to side-effect consumers. Serving a feed publishes a feed.served
// event for observers; the engine records served ids in the seen tracker
// synchronously before publishing, so exclusion never depends on bus
// delivery. Delivery is at-most-once within the process (events do not
// survive restarts).
package events

import (
	"fmt"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/goccy/go-json"
	"github.com/rs/zerolog"
)

// TopicFeedServed carries FeedServed payloads.
const TopicFeedServed = "feed.served"

// FeedServed records the items returned to a user in one feed response.
type FeedServed struct {
	UserID   string    `json:"user_id"`
	ItemIDs  []string  `json:"item_ids"`
	ServedAt time.Time `json:"served_at"`
}

// Bus wraps a Watermill gochannel pub/sub.
type Bus struct {
	pubSub *gochannel.GoChannel
	logger zerolog.Logger
}

// NewBus creates an in-process bus.
func NewBus(logger zerolog.Logger) *Bus {
	componentLogger := logger.With().Str("component", "events").Logger()
	return &Bus{
		pubSub: gochannel.NewGoChannel(
			gochannel.Config{OutputChannelBuffer: 64},
			zerologAdapter{logger: componentLogger},
		),
		logger: componentLogger,
	}
}

// PublishFeedServed emits a feed.served event.
func (b *Bus) PublishFeedServed(ev FeedServed) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal feed.served: %w", err)
	}

	msg := message.NewMessage(watermill.NewUUID(), payload)
	if err := b.pubSub.Publish(TopicFeedServed, msg); err != nil {
		return fmt.Errorf("publish feed.served: %w", err)
	}
	return nil
}

// Subscriber exposes the raw Watermill subscriber for consumers.
func (b *Bus) Subscriber() message.Subscriber {
	return b.pubSub
}

// Close shuts the bus down; in-flight subscribers drain and stop.
func (b *Bus) Close() error {
	return b.pubSub.Close()
}

// zerologAdapter bridges Watermill's logger interface onto zerolog.
type zerologAdapter struct {
	logger zerolog.Logger
}

func (a zerologAdapter) Error(msg string, err error, fields watermill.LogFields) {
	a.event(a.logger.Error().Err(err), msg, fields)
}

func (a zerologAdapter) Info(msg string, fields watermill.LogFields) {
	a.event(a.logger.Info(), msg, fields)
}

func (a zerologAdapter) Debug(msg string, fields watermill.LogFields) {
	a.event(a.logger.Debug(), msg, fields)
}

func (a zerologAdapter) Trace(msg string, fields watermill.LogFields) {
	a.event(a.logger.Trace(), msg, fields)
}

func (a zerologAdapter) With(fields watermill.LogFields) watermill.LoggerAdapter {
	ctx := a.logger.With()
	for k, v := range fields {
		ctx = ctx.Interface(k, v)
	}
	return zerologAdapter{logger: ctx.Logger()}
}

func (a zerologAdapter) event(ev *zerolog.Event, msg string, fields watermill.LogFields) {
	for k, v := range fields {
		ev = ev.Interface(k, v)
	}
	ev.Msg(msg)
}
