//go:build windows

package watchdog

import (
	"strings"
	"unsafe"

	"golang.org/x/sys/windows"
)

type windowsSystem struct{}

// NewSystem returns the Windows implementation.
func NewSystem() (System, error) { return windowsSystem{}, nil }

func (windowsSystem) ReadMemory(pid int, addr uintptr, size int) ([]byte, error) {
	h, err := windows.OpenProcess(windows.PROCESS_VM_READ|windows.PROCESS_QUERY_INFORMATION, false, uint32(pid))
	if err != nil {
		return nil, err
	}
	defer func() { _ = windows.CloseHandle(h) }()
	buf := make([]byte, size)
	var n uintptr
	if err := windows.ReadProcessMemory(h, addr, &buf[0], uintptr(size), &n); err != nil {
		return nil, err
	}
	return buf[:n], nil
}

func (windowsSystem) ModuleBase(pid int, module string) (uintptr, bool) {
	h, err := windows.OpenProcess(windows.PROCESS_VM_READ|windows.PROCESS_QUERY_INFORMATION, false, uint32(pid))
	if err != nil {
		return 0, false
	}
	defer func() { _ = windows.CloseHandle(h) }()

	var mods [1024]windows.Handle
	var needed uint32
	// LIST_MODULES_ALL also lists the 32-bit modules of a WOW64 server.
	if err := windows.EnumProcessModulesEx(h, &mods[0], uint32(unsafe.Sizeof(mods)), &needed, windows.LIST_MODULES_ALL); err != nil {
		return 0, false
	}
	n := int(needed / uint32(unsafe.Sizeof(mods[0])))
	if n > len(mods) {
		n = len(mods)
	}
	name := make([]uint16, windows.MAX_PATH)
	for _, m := range mods[:n] {
		if err := windows.GetModuleBaseName(h, m, &name[0], uint32(len(name))); err != nil {
			continue
		}
		if !strings.EqualFold(windows.UTF16ToString(name), module) {
			continue
		}
		var info windows.ModuleInfo
		if err := windows.GetModuleInformation(h, m, &info, uint32(unsafe.Sizeof(info))); err != nil {
			return 0, false
		}
		return info.BaseOfDll, true
	}
	return 0, false
}

// TickCount truncates GetTickCount64 to the 32-bit counter the server uses.
func (windowsSystem) TickCount() uint32 {
	return uint32(windows.GetTickCount64())
}
