package capture

import (
	"syscall"
	"unsafe"
)

var (
	kernel32 = syscall.NewLazyDLL("kernel32.dll")

	procGetForegroundWindow        = user32.NewProc("GetForegroundWindow")
	procGetWindowTextW              = user32.NewProc("GetWindowTextW")
	procGetWindowThreadProcessId    = user32.NewProc("GetWindowThreadProcessId")
	procOpenProcess                 = kernel32.NewProc("OpenProcess")
	procQueryFullProcessImageNameW  = kernel32.NewProc("QueryFullProcessImageNameW")
	procCloseHandle                 = kernel32.NewProc("CloseHandle")
)

const (
	processQueryLimitedInformation = 0x1000
	processQueryInformation        = 0x0400
	maxPath                        = 260
)

// WindowMeta is the title/executable identity of a window, used by the ROI
// learner's (window_handle, executable_path) key and by diagnostics.
type WindowMeta struct {
	Handle       uintptr
	Title        string
	PID          uint32
	ExecutablePath string
}

// ForegroundWindow returns the handle of the current foreground window,
// generalized from pkg/tracker/window.go's getForegroundWindow.
func ForegroundWindow() uintptr {
	ret, _, _ := procGetForegroundWindow.Call()
	return ret
}

// Describe resolves title, owning PID, and executable path for a window
// handle, generalized from pkg/tracker/window.go's poll() body into a
// single on-demand lookup (the teacher calls these from a ticker loop; here
// pkg/orchestrator calls this during an iteration, when an ROI learner is
// configured, to look up the window's title).
func Describe(hwnd uintptr) WindowMeta {
	pid := windowProcessID(hwnd)
	return WindowMeta{
		Handle:         hwnd,
		Title:          windowText(hwnd),
		PID:            pid,
		ExecutablePath: processExecutablePath(pid),
	}
}

func windowText(hwnd uintptr) string {
	buf := make([]uint16, 512)
	ret, _, _ := procGetWindowTextW.Call(hwnd, uintptr(unsafe.Pointer(&buf[0])), uintptr(len(buf)))
	if ret == 0 {
		return ""
	}
	return syscall.UTF16ToString(buf[:ret])
}

func windowProcessID(hwnd uintptr) uint32 {
	var pid uint32
	procGetWindowThreadProcessId.Call(hwnd, uintptr(unsafe.Pointer(&pid)))
	return pid
}

func processExecutablePath(pid uint32) string {
	h, _, _ := procOpenProcess.Call(uintptr(processQueryLimitedInformation), 0, uintptr(pid))
	if h == 0 {
		h, _, _ = procOpenProcess.Call(uintptr(processQueryInformation), 0, uintptr(pid))
	}
	if h == 0 {
		return ""
	}
	defer procCloseHandle.Call(h)

	buf := make([]uint16, maxPath*2)
	size := uint32(len(buf))
	ret, _, _ := procQueryFullProcessImageNameW.Call(h, 0, uintptr(unsafe.Pointer(&buf[0])), uintptr(unsafe.Pointer(&size)))
	if ret == 0 {
		return ""
	}
	return syscall.UTF16ToString(buf[:size])
}
