//go:build windows

package keystroke

import (
	"context"
	"fmt"
	"runtime"
	"strings"
	"sync"
	"sync/atomic"
	"time"
	"unsafe"

	"golang.org/x/sys/windows"
)

var (
	user32 = windows.NewLazySystemDLL("user32.dll")

	procSetWindowsHookExW   = user32.NewProc("SetWindowsHookExW")
	procUnhookWindowsHookEx = user32.NewProc("UnhookWindowsHookEx")
	procCallNextHookEx      = user32.NewProc("CallNextHookEx")
	procGetMessageW         = user32.NewProc("GetMessageW")
	procPostThreadMessageW  = user32.NewProc("PostThreadMessageW")
	procGetKeyNameTextW     = user32.NewProc("GetKeyNameTextW")
)

const (
	whKeyboardLL  = 13
	wmQuit        = 0x0012
	wmKeyDown     = 0x0100
	wmKeyUp       = 0x0101
	wmSysKeyDown  = 0x0104
	wmSysKeyUp    = 0x0105
	llkhfExtended = 0x01
)

type kbdllHookStruct struct {
	VKCode      uint32
	ScanCode    uint32
	Flags       uint32
	Time        uint32
	DwExtraInfo uintptr
}

type msg struct {
	Hwnd    uintptr
	Message uint32
	WParam  uintptr
	LParam  uintptr
	Time    uint32
	Pt      struct{ X, Y int32 }
}

// A low-level hook callback has no user data slot, so the installed
// listener is process-wide.
var (
	activeHook   atomic.Pointer[WindowsListener]
	hookCallback = windows.NewCallback(lowLevelKeyboardProc)
)

// WindowsListener captures key transitions with a WH_KEYBOARD_LL hook.
type WindowsListener struct {
	BaseListener
	mu       sync.Mutex
	threadID uint32
	done     chan struct{}
	cancel   context.CancelFunc
}

func newPlatformListener() Listener {
	return &WindowsListener{}
}

// Available reports whether the hook procedures could be resolved.
func (w *WindowsListener) Available() (bool, string) {
	if err := procSetWindowsHookExW.Find(); err != nil {
		return false, fmt.Sprintf("user32 hook API unavailable: %v", err)
	}
	return true, "low-level keyboard hook (WH_KEYBOARD_LL)"
}

// Start installs the hook on a dedicated, locked OS thread running a message
// loop. The hook is removed on that thread when Stop posts WM_QUIT.
func (w *WindowsListener) Start(ctx context.Context) error {
	if w.IsRunning() {
		return ErrAlreadyRunning
	}
	if !activeHook.CompareAndSwap(nil, w) {
		return ErrAlreadyRunning
	}

	w.init()
	w.done = make(chan struct{})
	ready := make(chan error, 1)
	go w.loop(ready)

	if err := <-ready; err != nil {
		activeHook.CompareAndSwap(w, nil)
		return err
	}

	ctx, w.cancel = context.WithCancel(ctx)
	w.SetRunning(true)
	go func() {
		<-ctx.Done()
		_ = w.Stop()
	}()
	return nil
}

func (w *WindowsListener) loop(ready chan<- error) {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()
	defer close(w.done)

	w.mu.Lock()
	w.threadID = windows.GetCurrentThreadId()
	w.mu.Unlock()

	hook, _, err := procSetWindowsHookExW.Call(whKeyboardLL, hookCallback, 0, 0)
	if hook == 0 {
		ready <- fmt.Errorf("SetWindowsHookExW: %w", err)
		return
	}
	defer procUnhookWindowsHookEx.Call(hook)
	ready <- nil

	var m msg
	for {
		r, _, _ := procGetMessageW.Call(uintptr(unsafe.Pointer(&m)), 0, 0, 0)
		// 0 is WM_QUIT, -1 an error
		if int32(r) <= 0 {
			return
		}
	}
}

func lowLevelKeyboardProc(nCode int, wParam uintptr, lParam uintptr) uintptr {
	if nCode >= 0 {
		if w := activeHook.Load(); w != nil {
			kb := (*kbdllHookStruct)(unsafe.Pointer(lParam))
			var kind EventKind
			switch wParam {
			case wmKeyDown, wmSysKeyDown:
				kind = KindDown
			case wmKeyUp, wmSysKeyUp:
				kind = KindUp
			}
			if kind != 0 && kb.ScanCode != 0 {
				w.Emit(RawEvent{
					Name:     keyNameText(kb.ScanCode, kb.Flags&llkhfExtended != 0),
					Kind:     kind,
					ScanCode: kb.ScanCode,
					Time:     time.Now(),
				})
			}
		}
	}
	r, _, _ := procCallNextHookEx.Call(0, uintptr(nCode), wParam, lParam)
	return r
}

// keyNameText returns GetKeyNameTextW's name for a scan code, lowercased to
// match the names used on other platforms.
func keyNameText(scanCode uint32, extended bool) string {
	lParam := uintptr(scanCode&0xFF) << 16
	if extended {
		lParam |= 1 << 24
	}
	buf := make([]uint16, 64)
	n, _, _ := procGetKeyNameTextW.Call(lParam, uintptr(unsafe.Pointer(&buf[0])), uintptr(len(buf)))
	if n == 0 {
		return KeyName(scanCode)
	}
	return strings.ToLower(windows.UTF16ToString(buf[:n]))
}

// Stop unhooks and closes the event channel.
func (w *WindowsListener) Stop() error {
	if !w.markStopped() {
		return nil
	}
	if w.cancel != nil {
		w.cancel()
	}

	w.mu.Lock()
	tid := w.threadID
	w.mu.Unlock()
	procPostThreadMessageW.Call(uintptr(tid), wmQuit, 0, 0)
	<-w.done

	activeHook.CompareAndSwap(w, nil)
	w.CloseEvents()
	return nil
}
