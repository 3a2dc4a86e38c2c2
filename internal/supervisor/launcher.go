package supervisor

import (
	"time"

	"github.com/loykin/gsmon/internal/process"
)

// Child is one running game server.
type Child interface {
	PID() int
	Done() <-chan struct{}
	Stop(wait time.Duration) error
}

// Launcher starts a new child for every session.
type Launcher interface {
	Launch() (Child, error)
}

// ProcessLauncher starts the configured executable with the process package.
type ProcessLauncher struct {
	Spec process.Spec
}

func (l ProcessLauncher) Launch() (Child, error) {
	p, err := process.Start(l.Spec)
	if err != nil {
		return nil, err
	}
	return p, nil
}
