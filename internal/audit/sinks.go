package audit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/nerrad567/familytree-core/internal/infrastructure/influxdb"
	"github.com/nerrad567/familytree-core/internal/infrastructure/mqtt"
)

// Publisher is the part of mqtt.Client used by MQTTSink.
type Publisher interface {
	Topics() mqtt.Topics
	PublishEvent(topic string, payload []byte) error
}

// DefaultQueueSize is the number of events MQTTSink buffers ahead of the broker.
const DefaultQueueSize = 256

// ErrSinkClosed is returned by MQTTSink.Write after Close.
var ErrSinkClosed = errors.New("mqtt sink closed")

// ErrQueueFull is returned by MQTTSink.Write when the publish queue is full.
// The event is dropped from the bus; other sinks still receive it.
var ErrQueueFull = errors.New("mqtt sink queue full")

type outbound struct {
	topic   string
	payload []byte
	action  string
}

// MQTTSink publishes each event as JSON on {prefix}/events/{category}/{action}.
//
// Write only marshals and enqueues. A single background worker does the
// publishing, so a slow broker never holds up the request that produced the
// event. Close drains the queue and stops the worker.
type MQTTSink struct {
	pub    Publisher
	logger Logger
	queue  chan outbound
	done   chan struct{}

	mu     sync.RWMutex
	closed bool
}

// MQTTSinkOption configures an MQTTSink.
type MQTTSinkOption func(*MQTTSink)

// WithQueueSize sets the publish buffer length.
func WithQueueSize(n int) MQTTSinkOption {
	return func(s *MQTTSink) {
		if n > 0 {
			s.queue = make(chan outbound, n)
		}
	}
}

// WithSinkLogger receives publish failures from the background worker.
func WithSinkLogger(l Logger) MQTTSinkOption {
	return func(s *MQTTSink) { s.logger = l }
}

// NewMQTTSink creates a sink publishing through pub and starts its worker.
func NewMQTTSink(pub Publisher, opts ...MQTTSinkOption) *MQTTSink {
	s := &MQTTSink{
		pub:   pub,
		queue: make(chan outbound, DefaultQueueSize),
		done:  make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	go s.run()
	return s
}

// Name implements Sink.
func (s *MQTTSink) Name() string { return "mqtt" }

// eventPayload is the wire form of an Event on the bus.
type eventPayload struct {
	Action     string         `json:"action"`
	EntityType string         `json:"entityType"`
	EntityID   string         `json:"entityId,omitempty"`
	UserID     string         `json:"userId,omitempty"`
	FamilyID   string         `json:"familyId,omitempty"`
	Outcome    string         `json:"outcome"`
	Details    map[string]any `json:"details,omitempty"`
	Timestamp  string         `json:"timestamp"`
}

// Write implements Sink. It never blocks on the broker.
func (s *MQTTSink) Write(_ context.Context, e Event) error {
	payload, err := json.Marshal(eventPayload{
		Action:     e.Action,
		EntityType: e.EntityType,
		EntityID:   e.EntityID,
		UserID:     e.UserID,
		FamilyID:   e.FamilyID,
		Outcome:    e.Outcome,
		Details:    e.Details,
		Timestamp:  e.CreatedAt.UTC().Format(time.RFC3339),
	})
	if err != nil {
		return fmt.Errorf("marshalling event: %w", err)
	}
	msg := outbound{
		topic:   s.pub.Topics().Event(e.Category(), e.Action),
		payload: payload,
		action:  e.Action,
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrSinkClosed
	}
	select {
	case s.queue <- msg:
		return nil
	default:
		return ErrQueueFull
	}
}

// Close stops accepting events, publishes what is queued and waits for the
// worker to exit.
func (s *MQTTSink) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		<-s.done
		return
	}
	s.closed = true
	close(s.queue)
	s.mu.Unlock()
	<-s.done
}

func (s *MQTTSink) run() {
	defer close(s.done)
	for msg := range s.queue {
		if err := s.pub.PublishEvent(msg.topic, msg.payload); err != nil && s.logger != nil {
			s.logger.Warn("audit event not published",
				"topic", msg.topic,
				"action", msg.action,
				"error", err,
			)
		}
	}
}

// MetricsWriter is the part of influxdb.Client used by MetricsSink.
type MetricsWriter interface {
	WriteEvent(e influxdb.Event)
}

// MetricsSink turns each event into an auth_events point. Numeric details
// become fields; everything else stays in the audit trail only.
type MetricsSink struct {
	w MetricsWriter
}

// NewMetricsSink creates a sink writing through w.
func NewMetricsSink(w MetricsWriter) *MetricsSink {
	return &MetricsSink{w: w}
}

// Name implements Sink.
func (s *MetricsSink) Name() string { return "influxdb" }

// Write implements Sink. Writes are buffered by the client and never fail here.
func (s *MetricsSink) Write(_ context.Context, e Event) error {
	var fields map[string]any
	for k, v := range e.Details {
		switch v.(type) {
		case int, int64, float64:
			if fields == nil {
				fields = make(map[string]any)
			}
			fields[k] = v
		}
	}
	s.w.WriteEvent(influxdb.Event{
		Category: e.Category(),
		Action:   e.Action,
		Outcome:  e.Outcome,
		Fields:   fields,
		At:       e.CreatedAt,
	})
	return nil
}
