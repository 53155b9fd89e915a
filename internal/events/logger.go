package events

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	eventsEmitted = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "checkout",
		Subsystem: "events",
		Name:      "emitted_total",
		Help:      "Total security events emitted by type.",
	}, []string{"event_type"})

	eventsDropped = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "checkout",
		Subsystem: "events",
		Name:      "dropped_total",
		Help:      "Security events dropped because the write queue was full.",
	})
)

func init() {
	prometheus.MustRegister(eventsEmitted, eventsDropped)
}

const (
	queueSize    = 256
	writeTimeout = 5 * time.Second
)

// Logger records security events without blocking the request path.
// Emit enqueues; a single writer goroutine drains the queue into the store
// and broadcasts to the feed. When the queue is full the event is dropped
// and counted rather than stalling a checkout.
type Logger struct {
	store  Store
	feed   *Feed
	logger *slog.Logger

	queue   chan *Event
	dropped atomic.Int64

	closeOnce sync.Once
	done      chan struct{}
}

// NewLogger starts the writer goroutine. Store and feed may each be nil.
func NewLogger(store Store, feed *Feed, logger *slog.Logger) *Logger {
	l := &Logger{
		store:  store,
		feed:   feed,
		logger: logger,
		queue:  make(chan *Event, queueSize),
		done:   make(chan struct{}),
	}
	go l.run()
	return l
}

// Emit queues an event. Fire-and-forget: never blocks, never returns an error.
func (l *Logger) Emit(t Type, requestID string, data map[string]interface{}) {
	if l == nil {
		return
	}
	eventsEmitted.WithLabelValues(string(t)).Inc()
	ev := New(t, requestID, data)
	select {
	case l.queue <- ev:
	default:
		eventsDropped.Inc()
		l.dropped.Add(1)
		l.logger.Warn("security event queue full, dropping event", "type", t)
	}
}

// Dropped reports how many events have been discarded since start.
func (l *Logger) Dropped() int64 {
	return l.dropped.Load()
}

// Close stops the writer after draining queued events.
func (l *Logger) Close() {
	l.closeOnce.Do(func() {
		close(l.queue)
		<-l.done
	})
}

func (l *Logger) run() {
	defer close(l.done)
	for ev := range l.queue {
		l.write(ev)
	}
}

func (l *Logger) write(ev *Event) {
	if l.feed != nil {
		l.feed.Broadcast(ev)
	}
	if l.store == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()
	if err := l.store.Record(ctx, ev); err != nil {
		l.logger.Warn("security event write failed", "type", ev.Type, "error", err)
	}
}
