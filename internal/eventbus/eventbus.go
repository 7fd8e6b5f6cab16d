// Package eventbus is the in-process broker between the stores and the
// realtime gateway. Delivery is at-least-once with publish-order preserved per
// topic and publishing goroutine; consumers re-fetch authoritative state, so
// duplicates and reordering across targets are harmless. Nothing here survives
// a restart, on purpose.
package eventbus

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// Handler consumes one event. Handlers must not block for long; a slow handler
// backs up its own subscription only.
type Handler func(Event)

// Bus wraps a Watermill gochannel Pub/Sub with one topic per event kind.
// Publishers hand events to a single drain goroutine through a bounded queue,
// so Publish never waits on subscriber processing; publish order is preserved
// because one goroutine does all the delivery.
type Bus struct {
	pubsub *gochannel.GoChannel
	queue  chan Event

	closeOnce sync.Once
	closing   chan struct{}
	drained   sync.WaitGroup
}

// New creates an in-process bus. bufferSize bounds both the publish queue and
// each subscriber's pending queue; events past either bound are dropped.
func New(bufferSize int) *Bus {
	if bufferSize <= 0 {
		bufferSize = 64
	}
	pubsub := gochannel.NewGoChannel(gochannel.Config{
		OutputChannelBuffer: int64(bufferSize),
	}, newLoggerAdapter())

	b := &Bus{
		pubsub:  pubsub,
		queue:   make(chan Event, bufferSize),
		closing: make(chan struct{}),
	}
	b.drained.Add(1)
	go b.drain()

	return b
}

// Publish sends an event to every subscriber of its kind. Fire and forget:
// it never blocks on subscriber processing, subscriber failures never
// propagate to the publisher, and an overflowing queue drops the event with a
// log line, because broadcast is a best-effort side channel, never part of the
// write's success contract.
func (b *Bus) Publish(evt Event) {
	select {
	case b.queue <- evt:
	default:
		log.Warn().
			Str("kind", string(evt.Kind)).
			Str("target_id", evt.TargetID.String()).
			Msg("Event queue full, dropping event")
	}
}

// drain is the single delivery goroutine.
func (b *Bus) drain() {
	defer b.drained.Done()
	for {
		select {
		case evt := <-b.queue:
			b.deliver(evt)
		case <-b.closing:
			// Flush what was queued before Close
			for {
				select {
				case evt := <-b.queue:
					b.deliver(evt)
				default:
					return
				}
			}
		}
	}
}

func (b *Bus) deliver(evt Event) {
	payload, err := json.Marshal(evt)
	if err != nil {
		log.Error().Err(err).Str("kind", string(evt.Kind)).Msg("Failed to marshal event")
		return
	}

	msg := message.NewMessage(watermill.NewUUID(), payload)
	if err := b.pubsub.Publish(string(evt.Kind), msg); err != nil {
		log.Error().Err(err).
			Str("kind", string(evt.Kind)).
			Str("target_id", evt.TargetID.String()).
			Msg("Failed to publish event")
	}
}

// Subscription is a handle for one subscriber; Close unsubscribes and waits
// for in-flight handler calls to finish.
type Subscription struct {
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// Close unsubscribes.
func (s *Subscription) Close() {
	s.cancel()
	s.wg.Wait()
}

// Subscribe registers handler for the given event kinds (all kinds when none
// are given). Each kind gets its own consumer goroutine; a panicking handler
// is recovered and logged so one bad subscriber cannot take down the bus.
func (b *Bus) Subscribe(ctx context.Context, handler Handler, kinds ...Kind) (*Subscription, error) {
	if len(kinds) == 0 {
		kinds = AllKinds()
	}

	subCtx, cancel := context.WithCancel(ctx)
	sub := &Subscription{cancel: cancel}

	for _, kind := range kinds {
		messages, err := b.pubsub.Subscribe(subCtx, string(kind))
		if err != nil {
			cancel()
			return nil, errors.Wrapf(err, "failed to subscribe to %s", kind)
		}

		sub.wg.Add(1)
		go func(kind Kind, messages <-chan *message.Message) {
			defer sub.wg.Done()
			for msg := range messages {
				var evt Event
				if err := json.Unmarshal(msg.Payload, &evt); err != nil {
					log.Error().Err(err).Str("kind", string(kind)).Msg("Failed to unmarshal event")
					msg.Ack()
					continue
				}
				dispatch(handler, evt)
				msg.Ack()
			}
		}(kind, messages)
	}

	return sub, nil
}

// dispatch isolates subscriber panics from the bus.
func dispatch(handler Handler, evt Event) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().
				Interface("panic", r).
				Str("kind", string(evt.Kind)).
				Str("target_id", evt.TargetID.String()).
				Msg("Event handler panicked")
		}
	}()
	handler(evt)
}

// Close flushes the publish queue and shuts the bus down; messages still
// pending with subscribers are dropped.
func (b *Bus) Close() error {
	b.closeOnce.Do(func() {
		close(b.closing)
	})
	b.drained.Wait()
	return b.pubsub.Close()
}
