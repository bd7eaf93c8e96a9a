//go:build windows

package hotkeys

import (
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"sync"
	"syscall"
	"time"
	"unsafe"

	"golang.org/x/sys/windows"
)

var (
	user32DLL = windows.NewLazySystemDLL("user32.dll")

	procRegisterHotKey     = user32DLL.NewProc("RegisterHotKey")
	procUnregisterHotKey   = user32DLL.NewProc("UnregisterHotKey")
	procGetMessageW        = user32DLL.NewProc("GetMessageW")
	procTranslateMessage   = user32DLL.NewProc("TranslateMessage")
	procDispatchMessageW   = user32DLL.NewProc("DispatchMessageW")
	procPostThreadMessageW = user32DLL.NewProc("PostThreadMessageW")
	procPeekMessageW       = user32DLL.NewProc("PeekMessageW")
)

const (
	wmHotkey   = 0x0312
	wmQuit     = 0x0012
	wmAppCall  = 0x8000 + 1 // WM_APP+1: drain marshalled register/unregister calls
	pmNoRemove = 0x0000

	loopStopTimeout = 2 * time.Second
)

// point mirrors the Win32 POINT struct.
type point struct {
	x int32
	y int32
}

// winMsg mirrors the Win32 MSG struct (tagMSG from winuser.h).
// Field order and types must not be changed -- the layout must match
// the Win32 binary layout on both 32-bit and 64-bit Windows.
type winMsg struct {
	hWnd     uintptr
	message  uint32
	wParam   uintptr
	lParam   uintptr
	time     uint32
	pt       point
	lPrivate uint32 // reserved by Windows; required for correct struct size
}

type loopReady struct {
	threadID uint32
	err      error
}

type loopCall struct {
	fn    func() error
	reply chan error
}

// win32Loop owns the OS thread that holds every RegisterHotKey registration.
// Hot keys registered with a NULL hwnd post WM_HOTKEY to the registering
// thread and can only be released from it, so all calls are marshalled there.
type win32Loop struct {
	mu       sync.Mutex
	threadID uint32
	doneCh   chan struct{}
	calls    chan loopCall
}

func newWin32API() Win32API {
	return &win32Loop{}
}

func newPlatformBackend() Backend {
	return NewWin32Backend(newWin32API())
}

func (l *win32Loop) Start(filter EventFilter) error {
	// Pre-check DLL availability so that failures produce clean errors
	// instead of panics from LazyProc.Call.
	if err := user32DLL.Load(); err != nil {
		return fmt.Errorf("user32.dll is unavailable: %w", err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.doneCh != nil {
		return nil
	}

	readyCh := make(chan loopReady, 1)
	doneCh := make(chan struct{})
	calls := make(chan loopCall, 16)
	go runHotkeyLoop(filter, calls, readyCh, doneCh)

	ready := <-readyCh
	if ready.err != nil {
		return fmt.Errorf("start hotkey message loop: %w", ready.err)
	}
	if ready.threadID == 0 {
		return errors.New("hotkey loop started but returned invalid thread ID 0")
	}
	l.threadID = ready.threadID
	l.doneCh = doneCh
	l.calls = calls
	return nil
}

func (l *win32Loop) Stop() error {
	l.mu.Lock()
	threadID, doneCh := l.threadID, l.doneCh
	l.threadID, l.doneCh, l.calls = 0, nil, nil
	l.mu.Unlock()
	if doneCh == nil {
		return nil
	}

	stopErr := postThreadMessage(threadID, wmQuit)
	timer := time.NewTimer(loopStopTimeout)
	defer timer.Stop()
	select {
	case <-doneCh:
	case <-timer.C:
		slog.Warn("[DEBUG-HOTKEY] message loop stop timed out, goroutine/thread may leak", "threadID", threadID)
		stopErr = errors.Join(stopErr, fmt.Errorf("hotkey message loop stop timed out (threadID=%d)", threadID))
	}
	return stopErr
}

func (l *win32Loop) RegisterHotKey(id int, mods NativeModifiers, vk NativeKey) error {
	return l.call(func() error { return registerHotKey(id, uint32(mods), uint32(vk)) })
}

func (l *win32Loop) UnregisterHotKey(id int) error {
	return l.call(func() error { return unregisterHotKey(id) })
}

// call runs fn on the loop thread and waits for its result.
func (l *win32Loop) call(fn func() error) error {
	l.mu.Lock()
	threadID, doneCh, calls := l.threadID, l.doneCh, l.calls
	l.mu.Unlock()
	if doneCh == nil {
		return ErrNotInitialized
	}

	c := loopCall{fn: fn, reply: make(chan error, 1)}
	select {
	case calls <- c:
	case <-doneCh:
		return ErrNotInitialized
	}
	if err := postThreadMessage(threadID, wmAppCall); err != nil {
		return fmt.Errorf("wake hotkey loop: %w", err)
	}
	select {
	case err := <-c.reply:
		return err
	case <-doneCh:
		return ErrNotInitialized
	}
}

func runHotkeyLoop(filter EventFilter, calls chan loopCall, readyCh chan<- loopReady, doneCh chan struct{}) {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()
	defer close(doneCh)

	threadID := windows.GetCurrentThreadId()

	// PeekMessageW forces Windows to create the thread message queue so that
	// PostThreadMessageW can deliver WM_APP and WM_QUIT. Queue creation is a
	// side effect of the call; a zero return only means the queue is empty.
	var qmsg winMsg
	ret, _, peekErr := procPeekMessageW.Call(uintptr(unsafe.Pointer(&qmsg)), 0, 0, 0, pmNoRemove)
	if ret == 0 && peekErr != syscall.Errno(0) {
		slog.Warn("[DEBUG-HOTKEY] PeekMessageW for queue init returned error", "error", peekErr)
	}

	readyCh <- loopReady{threadID: threadID}

	for {
		var msg winMsg
		ret, _, lastErr := procGetMessageW.Call(uintptr(unsafe.Pointer(&msg)), 0, 0, 0)
		switch int32(ret) {
		case -1:
			slog.Warn("[DEBUG-HOTKEY] GetMessageW returned error, exiting loop", "error", lastErr)
			return
		case 0:
			slog.Info("[DEBUG-HOTKEY] message loop received WM_QUIT, exiting normally")
			return
		}

		switch msg.message {
		case wmAppCall:
			drainCalls(calls)
			continue
		case wmHotkey:
			if filter.FilterNativeEvent(NativeEvent{Kind: EventHotkey, ID: int(msg.wParam)}) {
				continue
			}
		}

		// TranslateMessage and DispatchMessageW return values are informational
		// and are not error indicators for a thread-level message loop.
		procTranslateMessage.Call(uintptr(unsafe.Pointer(&msg)))
		procDispatchMessageW.Call(uintptr(unsafe.Pointer(&msg)))
	}
}

func drainCalls(calls chan loopCall) {
	for {
		select {
		case c := <-calls:
			c.reply <- c.fn()
		default:
			return
		}
	}
}

func registerHotKey(id int, modifiers uint32, key uint32) error {
	res, _, err := procRegisterHotKey.Call(0, uintptr(id), uintptr(modifiers), uintptr(key))
	if res != 0 {
		return nil
	}
	return nativeErr("RegisterHotKey", err)
}

func unregisterHotKey(id int) error {
	res, _, err := procUnregisterHotKey.Call(0, uintptr(id))
	if res != 0 {
		return nil
	}
	return nativeErr("UnregisterHotKey", err)
}

func postThreadMessage(threadID uint32, message uint32) error {
	if threadID == 0 {
		return errors.New("cannot post thread message: threadID is 0")
	}
	res, _, err := procPostThreadMessageW.Call(uintptr(threadID), uintptr(message), 0, 0)
	if res != 0 {
		return nil
	}
	return nativeErr("PostThreadMessageW", err)
}

func nativeErr(op string, err error) error {
	var errno syscall.Errno
	if errors.As(err, &errno) && errno != 0 {
		return &NativeError{Op: op, Code: int64(errno), Err: errno}
	}
	return &NativeError{Op: op}
}
