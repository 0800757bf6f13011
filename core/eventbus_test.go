package recorder

import (
	"context"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/koscakluka/ema-recorder/core/events"
)

func runTestBus(t *testing.T) (*eventBus, func()) {
	t.Helper()

	bus := newEventBus(discardLogger)
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = bus.run(context.Background())
	}()

	return bus, func() {
		bus.close()
		<-done
	}
}

func TestEventBusDeliversInPublishOrder(t *testing.T) {
	bus, stop := runTestBus(t)

	var mu sync.Mutex
	var got []bool
	bus.subscribe(func(event events.Event) {
		if speaking, ok := event.(events.SpeakingChanged); ok {
			mu.Lock()
			got = append(got, speaking.Speaking)
			mu.Unlock()
		}
	})

	want := []bool{true, false, true, true, false}
	for _, speaking := range want {
		bus.publish(events.NewSpeakingChanged(speaking, time.Now()))
	}
	stop()

	if !slices.Equal(got, want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
}

func TestEventBusUnsubscribeStopsDelivery(t *testing.T) {
	bus, stop := runTestBus(t)

	var mu sync.Mutex
	first, second := 0, 0
	unsubscribe := bus.subscribe(func(events.Event) { mu.Lock(); first++; mu.Unlock() })
	bus.subscribe(func(events.Event) { mu.Lock(); second++; mu.Unlock() })

	bus.publish(events.NewRecordingChanged(true, time.Now()))
	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return first == 1 && second == 1
	}, "expected both subscribers to receive the first event")

	unsubscribe()
	unsubscribe()
	bus.publish(events.NewRecordingChanged(false, time.Now()))
	stop()

	if first != 1 || second != 2 {
		t.Fatalf("expected first=1 second=2, got first=%d second=%d", first, second)
	}
}

func TestEventBusSurvivesPanickingSubscriber(t *testing.T) {
	bus, stop := runTestBus(t)

	delivered := 0
	bus.subscribe(func(events.Event) { panic("boom") })
	bus.subscribe(func(events.Event) { delivered++ })

	bus.publish(events.NewRecordingChanged(true, time.Now()))
	bus.publish(events.NewRecordingChanged(false, time.Now()))
	stop()

	if delivered != 2 {
		t.Fatalf("expected the healthy subscriber to receive 2 events, got %d", delivered)
	}
}

func TestEventBusDropsEventsAfterClose(t *testing.T) {
	bus, stop := runTestBus(t)

	delivered := 0
	bus.subscribe(func(events.Event) { delivered++ })
	stop()
	bus.publish(events.NewRecordingChanged(true, time.Now()))

	if delivered != 0 {
		t.Fatalf("expected no delivery after close, got %d", delivered)
	}
}

func TestCallbackSubscriberMapsTypedEvents(t *testing.T) {
	var recording, speaking []bool
	var failures []bool
	subscriber := newCallbackSubscriber(callbacks{
		onRecording: func(value bool) { recording = append(recording, value) },
		onSpeaking:  func(value bool) { speaking = append(speaking, value) },
		onFailure:   func(_ error, fatal bool) { failures = append(failures, fatal) },
	})

	now := time.Now()
	subscriber(events.NewRecordingChanged(true, now))
	subscriber(events.NewSpeakingChanged(false, now))
	subscriber(events.NewRecorderFailed(ErrInvariantViolation, true, now))
	subscriber(events.NewLongestSilenceUpdated(time.Second, now))

	if !slices.Equal(recording, []bool{true}) || !slices.Equal(speaking, []bool{false}) || !slices.Equal(failures, []bool{true}) {
		t.Fatalf("unexpected callbacks: recording=%v speaking=%v failures=%v", recording, speaking, failures)
	}
}
