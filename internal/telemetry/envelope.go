// Package telemetry publishes reports and lifecycle events to the external
// collector.
package telemetry

import (
	"context"
	"time"
)

// Event types.
const (
	EventStart   = "start"
	EventRestart = "restart"
)

// Data is the envelope for periodic reports.
type Data struct {
	Time    time.Time `json:"time"`
	Type    string    `json:"type"`
	GSName  string    `json:"gsname"`
	Results any       `json:"results"`
}

func NewData(now time.Time, kind, gsname string, results any) Data {
	return Data{Time: now.UTC(), Type: kind, GSName: gsname, Results: results}
}

// Event is the envelope for lifecycle events.
type Event struct {
	Type string    `json:"type"`
	Data EventData `json:"data"`
}

type EventData struct {
	GSName string    `json:"gsname"`
	Time   time.Time `json:"time"`
	Reason string    `json:"reason,omitempty"`
	// PID is kept for local sinks and never sent to the collector.
	PID int `json:"-"`
}

// StartEvent is published after every successful launch.
func StartEvent(now time.Time, gsname string, pid int) Event {
	return Event{Type: EventStart, Data: EventData{GSName: gsname, Time: now.UTC(), PID: pid}}
}

// RestartEvent is published after every exit with the classified reason.
func RestartEvent(now time.Time, gsname, reason string, pid int) Event {
	return Event{Type: EventRestart, Data: EventData{GSName: gsname, Time: now.UTC(), Reason: reason, PID: pid}}
}

// DataPublisher and EventPublisher never block the caller on delivery and
// never report failure; delivery is best effort.
type DataPublisher interface {
	PublishData(ctx context.Context, d Data)
}

type EventPublisher interface {
	PublishEvent(ctx context.Context, e Event)
}
