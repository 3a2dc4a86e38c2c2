// Package watchdog reads the game server's heartbeat tick from its memory
// and decides whether the server stopped updating it.
package watchdog

import (
	"encoding/binary"
	"errors"
	"log/slog"
	"time"
)

// DefaultModule hosts the heartbeat variable.
const DefaultModule = "D2Server.dll"

var (
	ErrProbeDisabled = errors.New("watchdog: probe disabled")
	ErrUnsupported   = errors.New("watchdog: not supported on this platform")
)

// MemoryReader reads raw bytes from another process.
type MemoryReader interface {
	ReadMemory(pid int, addr uintptr, size int) ([]byte, error)
}

// ModuleLocator finds the load address of a module inside a process.
// Module names compare case-insensitively.
type ModuleLocator interface {
	ModuleBase(pid int, module string) (uintptr, bool)
}

// TickSource is the millisecond tick the server writes into its heartbeat.
type TickSource interface {
	TickCount() uint32
}

// System bundles the OS capabilities the probe needs.
type System interface {
	MemoryReader
	ModuleLocator
	TickSource
}

type Config struct {
	Module  string
	Offset  uint32        // 0 disables the probe
	Timeout time.Duration // 0 disables staleness
}

// Probe samples one process. The heartbeat address is resolved once, at
// construction.
type Probe struct {
	sys     System
	pid     int
	addr    uintptr
	timeout uint32
}

// NewProbe resolves the heartbeat address in pid. It returns
// ErrProbeDisabled when the offset is zero or the module is not loaded; a
// disabled probe is still usable and never reports a stall.
func NewProbe(sys System, pid int, cfg Config) (*Probe, error) {
	p := &Probe{sys: sys, pid: pid, timeout: uint32(cfg.Timeout.Milliseconds())}
	if cfg.Offset == 0 || sys == nil {
		return p, ErrProbeDisabled
	}
	module := cfg.Module
	if module == "" {
		module = DefaultModule
	}
	base, ok := sys.ModuleBase(pid, module)
	if !ok {
		return p, ErrProbeDisabled
	}
	p.addr = base + uintptr(cfg.Offset)
	return p, nil
}

func (p *Probe) Enabled() bool { return p != nil && p.addr != 0 }

// Sample returns the current heartbeat. 0 means unavailable.
func (p *Probe) Sample() uint32 {
	if !p.Enabled() {
		return 0
	}
	b, err := p.sys.ReadMemory(p.pid, p.addr, 4)
	if err != nil || len(b) != 4 {
		slog.Debug("watchdog read failed", "pid", p.pid, "addr", p.addr, "error", err)
		return 0
	}
	return binary.LittleEndian.Uint32(b)
}

// Stalled samples the heartbeat and compares it to the current tick.
func (p *Probe) Stalled() bool {
	if !p.Enabled() {
		return false
	}
	return IsStale(p.Sample(), p.sys.TickCount(), p.timeout)
}

// IsStale reports whether the heartbeat lags the tick by more than
// timeoutMs. The subtraction wraps like the 32-bit tick counter does, so a
// heartbeat written just before a wrap can be misjudged.
func IsStale(sample, now, timeoutMs uint32) bool {
	return sample != 0 && timeoutMs > 0 && now-sample > timeoutMs
}
