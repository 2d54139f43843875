package audit

import (
	"context"
	"time"
)

// Sink is one destination for events.
type Sink interface {
	Name() string
	Write(ctx context.Context, e Event) error
}

// Logger is the logging surface Fanout needs.
type Logger interface {
	Warn(msg string, args ...any)
}

// Fanout delivers each event to every sink in order. A failing sink is
// logged and skipped, so a broker or metrics outage never fails a login.
type Fanout struct {
	sinks  []Sink
	logger Logger
	now    func() time.Time
}

// NewFanout creates a Fanout over sinks. Nil sinks are ignored.
func NewFanout(logger Logger, sinks ...Sink) *Fanout {
	f := &Fanout{logger: logger, now: time.Now}
	for _, s := range sinks {
		if s != nil {
			f.sinks = append(f.sinks, s)
		}
	}
	return f
}

// Record fills in defaults and writes e to every sink.
func (f *Fanout) Record(ctx context.Context, e Event) {
	if e.CreatedAt.IsZero() {
		e.CreatedAt = f.now().UTC()
	}
	if e.Source == "" {
		e.Source = SourceAPI
	}
	if e.Outcome == "" {
		e.Outcome = OutcomeSuccess
	}

	for _, s := range f.sinks {
		if err := s.Write(ctx, e); err != nil && f.logger != nil {
			f.logger.Warn("audit sink failed",
				"sink", s.Name(),
				"action", e.Action,
				"error", err,
			)
		}
	}
}

// Sinks returns the names of the configured sinks.
func (f *Fanout) Sinks() []string {
	names := make([]string, 0, len(f.sinks))
	for _, s := range f.sinks {
		names = append(names, s.Name())
	}
	return names
}
