//go:build linux

package watchdog

import (
	"bufio"
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// linuxSystem serves servers run under a compatibility layer, where the
// module shows up as a mapped file in /proc/<pid>/maps.
type linuxSystem struct{}

// NewSystem returns the Linux implementation.
func NewSystem() (System, error) { return linuxSystem{}, nil }

func (linuxSystem) ReadMemory(pid int, addr uintptr, size int) ([]byte, error) {
	f, err := os.Open(fmt.Sprintf("/proc/%d/mem", pid))
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()
	buf := make([]byte, size)
	n, err := f.ReadAt(buf, int64(addr))
	if err != nil && n != size {
		return buf[:n], err
	}
	return buf[:n], nil
}

func (linuxSystem) ModuleBase(pid int, module string) (uintptr, bool) {
	f, err := os.Open(fmt.Sprintf("/proc/%d/maps", pid))
	if err != nil {
		return 0, false
	}
	defer func() { _ = f.Close() }()
	return findModule(bufio.NewScanner(f), module)
}

// TickCount is CLOCK_MONOTONIC in milliseconds, truncated to 32 bits.
func (linuxSystem) TickCount() uint32 {
	var ts unix.Timespec
	if err := unix.ClockGettime(unix.CLOCK_MONOTONIC, &ts); err != nil {
		return 0
	}
	return uint32(ts.Nano() / 1e6)
}
