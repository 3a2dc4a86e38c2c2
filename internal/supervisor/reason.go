package supervisor

// ExitReason explains why a game server session ended.
type ExitReason int

const (
	Routine  ExitReason = iota // we asked it to restart
	Deadlock                   // the watchdog saw a stale heartbeat
	Crash                      // it went away on its own
)

func (r ExitReason) String() string {
	switch r {
	case Routine:
		return "routine"
	case Deadlock:
		return "deadlock"
	default:
		return "crash"
	}
}

// Classify maps the session flags to a reason. A pending restart wins over a
// deadlock so a server that hangs while shutting down is still routine.
func Classify(restartPending, deadlock bool) ExitReason {
	switch {
	case restartPending:
		return Routine
	case deadlock:
		return Deadlock
	default:
		return Crash
	}
}
