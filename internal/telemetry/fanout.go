package telemetry

import "context"

// Fanout delivers events to several publishers, for example the HTTP
// collector and the local history recorder.
type Fanout []EventPublisher

func (f Fanout) PublishEvent(ctx context.Context, e Event) {
	for _, p := range f {
		if p != nil {
			p.PublishEvent(ctx, e)
		}
	}
}
