//go:build !windows && !linux

package watchdog

func NewSystem() (System, error) { return nil, ErrUnsupported }
