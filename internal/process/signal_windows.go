//go:build windows

package process

import (
	"os"
	"syscall"
	"unsafe"

	"golang.org/x/sys/windows"
)

const wmClose = 0x0010

var procPostMessageW = windows.NewLazySystemDLL("user32.dll").NewProc("PostMessageW")

// windowSweep is the EnumWindows parameter: the child's pid and how many of
// its windows were asked to close.
type windowSweep struct {
	pid    uint32
	posted int
}

// created once; callbacks are never freed by the runtime
var closeWindowCallback = syscall.NewCallback(func(hwnd windows.HWND, param uintptr) uintptr {
	w := (*windowSweep)(unsafe.Pointer(param))
	var owner uint32
	if _, err := windows.GetWindowThreadProcessId(hwnd, &owner); err != nil || owner != w.pid {
		return 1
	}
	if !windows.IsWindowVisible(hwnd) {
		return 1
	}
	if r, _, _ := procPostMessageW.Call(uintptr(hwnd), wmClose, 0, 0); r != 0 {
		w.posted++
	}
	return 1
})

// terminate posts WM_CLOSE to the child's visible top-level windows, which is
// what closing the server window does, and sends CTRL_BREAK for console
// builds. It fails only when neither request could be delivered.
func terminate(pid int) error {
	w := &windowSweep{pid: uint32(pid)}
	_ = windows.EnumWindows(closeWindowCallback, unsafe.Pointer(w))
	err := windows.GenerateConsoleCtrlEvent(windows.CTRL_BREAK_EVENT, uint32(pid))
	if w.posted > 0 {
		return nil
	}
	return err
}

// kill is TerminateProcess.
func kill(p *os.Process) error {
	return p.Kill()
}
