package eventbus

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met in time")
}

func TestPublishDeliversToSubscriber(t *testing.T) {
	bus := New(8)
	defer bus.Close()

	var mu sync.Mutex
	var received []Event

	sub, err := bus.Subscribe(context.Background(), func(evt Event) {
		mu.Lock()
		received = append(received, evt)
		mu.Unlock()
	}, KindVideoReactionChanged)
	require.NoError(t, err)
	defer sub.Close()

	targetID := uuid.New()
	bus.Publish(NewEvent(KindVideoReactionChanged, targetID))

	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(received) == 1
	})

	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, KindVideoReactionChanged, received[0].Kind)
	require.Equal(t, targetID, received[0].TargetID)
	require.False(t, received[0].OccurredAt.IsZero())
}

func TestSubscriberOnlySeesItsKinds(t *testing.T) {
	bus := New(8)
	defer bus.Close()

	var mu sync.Mutex
	var received []Event

	sub, err := bus.Subscribe(context.Background(), func(evt Event) {
		mu.Lock()
		received = append(received, evt)
		mu.Unlock()
	}, KindSubscriptionChanged)
	require.NoError(t, err)
	defer sub.Close()

	bus.Publish(NewEvent(KindVideoReactionChanged, uuid.New()))
	bus.Publish(NewEvent(KindSubscriptionChanged, uuid.New()))

	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(received) == 1
	})

	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, KindSubscriptionChanged, received[0].Kind)
}

func TestSubscribeAllKindsByDefault(t *testing.T) {
	bus := New(8)
	defer bus.Close()

	var mu sync.Mutex
	seen := map[Kind]bool{}

	sub, err := bus.Subscribe(context.Background(), func(evt Event) {
		mu.Lock()
		seen[evt.Kind] = true
		mu.Unlock()
	})
	require.NoError(t, err)
	defer sub.Close()

	for _, kind := range AllKinds() {
		bus.Publish(NewEvent(kind, uuid.New()))
	}

	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(seen) == len(AllKinds())
	})
}

func TestPanickingHandlerDoesNotStopDelivery(t *testing.T) {
	bus := New(8)
	defer bus.Close()

	var mu sync.Mutex
	var delivered int

	sub, err := bus.Subscribe(context.Background(), func(evt Event) {
		mu.Lock()
		delivered++
		n := delivered
		mu.Unlock()
		if n == 1 {
			panic("handler failure")
		}
	}, KindViewCountChanged)
	require.NoError(t, err)
	defer sub.Close()

	bus.Publish(NewEvent(KindViewCountChanged, uuid.New()))
	bus.Publish(NewEvent(KindViewCountChanged, uuid.New()))

	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return delivered == 2
	})
}

func TestPublishNeverBlocksOnSlowSubscriber(t *testing.T) {
	bus := New(2)
	defer bus.Close()

	release := make(chan struct{})
	sub, err := bus.Subscribe(context.Background(), func(Event) {
		<-release
	}, KindViewCountChanged)
	require.NoError(t, err)
	defer sub.Close()

	// Far more events than any internal buffer holds; the stalled handler
	// must cost us dropped events, never a blocked publisher.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 500; i++ {
			bus.Publish(NewEvent(KindViewCountChanged, uuid.New()))
		}
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Publish blocked on a slow subscriber")
	}

	close(release)
}

func TestClosedSubscriptionStopsReceiving(t *testing.T) {
	bus := New(8)
	defer bus.Close()

	var mu sync.Mutex
	var delivered int

	sub, err := bus.Subscribe(context.Background(), func(evt Event) {
		mu.Lock()
		delivered++
		mu.Unlock()
	}, KindVideoReactionChanged)
	require.NoError(t, err)

	bus.Publish(NewEvent(KindVideoReactionChanged, uuid.New()))
	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return delivered == 1
	})

	sub.Close()

	bus.Publish(NewEvent(KindVideoReactionChanged, uuid.New()))
	time.Sleep(50 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, 1, delivered)
}
