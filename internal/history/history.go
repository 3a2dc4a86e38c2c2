// Package history records the server's lifecycle events into analytics
// stores.
package history

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/loykin/gsmon/internal/telemetry"
)

// Table (or index) used by the sinks when none is configured.
const DefaultTable = "server_history"

// Event is one lifecycle event as stored by the sinks.
type Event struct {
	Type       string    `json:"type"`
	OccurredAt time.Time `json:"occurred_at"`
	GSName     string    `json:"gsname"`
	PID        int       `json:"pid"`
	Reason     string    `json:"reason,omitempty"`
}

// FromTelemetry converts a published event.
func FromTelemetry(e telemetry.Event) Event {
	return Event{
		Type:       e.Type,
		OccurredAt: e.Data.Time.UTC(),
		GSName:     e.Data.GSName,
		PID:        e.Data.PID,
		Reason:     e.Data.Reason,
	}
}

// Sink is a destination for history events (analytics/statistics systems).
// Implementations must be safe for concurrent use.
type Sink interface {
	Send(ctx context.Context, e Event) error
}

const sendTimeout = 5 * time.Second

// Recorder publishes events to every sink in the background.
type Recorder struct {
	sinks []Sink
	log   *slog.Logger
	wg    sync.WaitGroup
}

func NewRecorder(log *slog.Logger, sinks ...Sink) *Recorder {
	if log == nil {
		log = slog.Default()
	}
	return &Recorder{sinks: sinks, log: log}
}

// PublishEvent implements telemetry.EventPublisher.
func (r *Recorder) PublishEvent(ctx context.Context, e telemetry.Event) {
	if len(r.sinks) == 0 {
		return
	}
	ev := FromTelemetry(e)
	ctx = context.WithoutCancel(ctx)
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		ctx, cancel := context.WithTimeout(ctx, sendTimeout)
		defer cancel()
		for _, s := range r.sinks {
			if err := s.Send(ctx, ev); err != nil {
				r.log.Warn("history sink failed", "type", ev.Type, "error", err)
			}
		}
	}()
}

// Wait blocks until queued events were handed to the sinks.
func (r *Recorder) Wait() { r.wg.Wait() }

// Close waits for pending events and closes sinks that support it.
func (r *Recorder) Close() error {
	r.Wait()
	var errs []error
	for _, s := range r.sinks {
		if c, ok := s.(interface{ Close() error }); ok {
			errs = append(errs, c.Close())
		}
	}
	return errors.Join(errs...)
}
