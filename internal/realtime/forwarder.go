package realtime

import (
	"context"

	"example.com/vidstream/services/engagement/internal/eventbus"

	"github.com/rs/zerolog/log"
)

// Forwarder bridges the event bus to the hub: every domain event becomes a
// lightweight notification to the connections interested in its target.
type Forwarder struct {
	hub *Hub
	bus *eventbus.Bus
	sub *eventbus.Subscription
}

// NewForwarder creates a bus-to-hub bridge.
func NewForwarder(hub *Hub, bus *eventbus.Bus) *Forwarder {
	return &Forwarder{hub: hub, bus: bus}
}

// Start subscribes to every event kind and begins forwarding.
func (f *Forwarder) Start(ctx context.Context) error {
	sub, err := f.bus.Subscribe(ctx, func(evt eventbus.Event) {
		f.hub.Notify(string(evt.Kind), evt.TargetID)
	})
	if err != nil {
		return err
	}
	f.sub = sub

	log.Info().Msg("Realtime forwarder started")
	return nil
}

// Stop unsubscribes from the bus.
func (f *Forwarder) Stop() {
	if f.sub != nil {
		f.sub.Close()
		log.Info().Msg("Realtime forwarder stopped")
	}
}
