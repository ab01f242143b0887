package events

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestPublishDeliversToSubscribers(t *testing.T) {
	bus := NewBus(nil, nil)

	var got []Event
	bus.Subscribe(BallotCast, func(evt Event) {
		got = append(got, evt)
	})
	bus.Subscribe(MotionCreated, func(Event) {
		t.Errorf("handler for another type must not fire")
	})

	bus.Publish(BallotCast, Event{MotionID: "M1", Actor: "alice", Detail: "for"})

	if len(got) != 1 {
		t.Fatalf("expected 1 delivery, got %d", len(got))
	}
	if got[0].Type != BallotCast {
		t.Errorf("publish must stamp the event type, got %s", got[0].Type)
	}
	if got[0].Timestamp.IsZero() {
		t.Errorf("publish must stamp a timestamp")
	}
	if got[0].MotionID != "M1" || got[0].Actor != "alice" {
		t.Errorf("unexpected event: %+v", got[0])
	}
}

func TestPublishFanout(t *testing.T) {
	bus := NewBus(nil, nil)

	calls := 0
	bus.Subscribe(TallyComputed, func(Event) { calls++ })
	bus.Subscribe(TallyComputed, func(Event) { calls++ })
	bus.Publish(TallyComputed, Event{MotionID: "M1"})

	if calls != 2 {
		t.Errorf("expected both handlers called, got %d", calls)
	}
}

func TestNilBusIsSafe(t *testing.T) {
	var bus *Bus
	bus.Subscribe(BallotCast, func(Event) {})
	bus.Publish(BallotCast, Event{MotionID: "M1"})
}

func TestPublishCountsMetrics(t *testing.T) {
	registry := prometheus.NewRegistry()
	bus := NewBus(registry, nil)

	bus.Publish(BallotCast, Event{MotionID: "M1"})
	bus.Publish(BallotCast, Event{MotionID: "M1"})
	bus.Publish(AnomalyFlagged, Event{MotionID: "M1"})

	if got := testutil.ToFloat64(bus.published.WithLabelValues(string(BallotCast))); got != 2 {
		t.Errorf("expected 2 ballot.cast events counted, got %g", got)
	}
	if got := testutil.ToFloat64(bus.published.WithLabelValues(string(AnomalyFlagged))); got != 1 {
		t.Errorf("expected 1 anomaly.flagged event counted, got %g", got)
	}
}
