package process

import "time"

// Status is a point-in-time copy of the child's state.
type Status struct {
	Running   bool
	PID       int
	StartedAt time.Time
	StoppedAt time.Time
	ExitErr   error
}

// Uptime is measured to StoppedAt once the child exited.
func (s Status) Uptime(now time.Time) time.Duration {
	if s.StartedAt.IsZero() {
		return 0
	}
	if !s.Running && !s.StoppedAt.IsZero() {
		return s.StoppedAt.Sub(s.StartedAt)
	}
	return now.Sub(s.StartedAt)
}
