// Package events carries the parliament lifecycle signals an external
// observability layer may subscribe to. Delivery is synchronous and best
// effort; a nil bus is valid and drops everything.
package events

import (
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

type Type string

const (
	MotionCreated     Type = "motion.created"
	BallotCast        Type = "ballot.cast"
	DelegationCreated Type = "delegation.created"
	TallyComputed     Type = "tally.computed"
	DecisionEnacted   Type = "decision.enacted"
	AnomalyFlagged    Type = "anomaly.flagged"
)

type Event struct {
	Type      Type
	Timestamp time.Time
	MotionID  string
	Actor     string
	Detail    string
	Data      any
}

type HandlerFunc func(Event)

type Bus struct {
	mu        sync.RWMutex
	handlers  map[Type][]HandlerFunc
	published *prometheus.CounterVec
	logger    *slog.Logger
}

// NewBus creates an event bus. promRegistry and logger may be nil.
func NewBus(promRegistry prometheus.Registerer, logger *slog.Logger) *Bus {
	if logger == nil {
		logger = slog.Default()
	}
	b := &Bus{
		handlers: make(map[Type][]HandlerFunc),
		logger:   logger,
	}
	if promRegistry != nil {
		b.published = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "parliament_events_total",
				Help: "Lifecycle events published, by type",
			},
			[]string{"type"},
		)
		promRegistry.MustRegister(b.published)
	}
	return b
}

func (b *Bus) Subscribe(eventType Type, handler HandlerFunc) {
	if b == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[eventType] = append(b.handlers[eventType], handler)
}

func (b *Bus) Publish(eventType Type, evt Event) {
	if b == nil {
		return
	}
	evt.Type = eventType
	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now()
	}

	if b.published != nil {
		b.published.WithLabelValues(string(eventType)).Inc()
	}

	b.mu.RLock()
	handlers := b.handlers[eventType]
	b.mu.RUnlock()

	for _, handler := range handlers {
		handler(evt)
	}
}
