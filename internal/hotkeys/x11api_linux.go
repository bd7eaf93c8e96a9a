//go:build linux && cgo

package hotkeys

/*
#cgo LDFLAGS: -lX11
#include <X11/Xlib.h>
#include <X11/XKBlib.h>

static int hotkeydXError;

static int hotkeydErrorHandler(Display *d, XErrorEvent *e) {
	(void)d;
	hotkeydXError = e->error_code;
	return 0;
}

static void hotkeydInstallErrorHandler(void) {
	XSetErrorHandler(hotkeydErrorHandler);
}

// hotkeydGrab runs XGrabKey and reports the X error it raised, if any.
static int hotkeydGrab(Display *d, Window root, int keycode, unsigned int mods) {
	hotkeydXError = 0;
	XGrabKey(d, keycode, mods, root, True, GrabModeAsync, GrabModeAsync);
	XSync(d, False);
	return hotkeydXError;
}

static int hotkeydUngrab(Display *d, Window root, int keycode, unsigned int mods) {
	hotkeydXError = 0;
	XUngrabKey(d, keycode, mods, root);
	XSync(d, False);
	return hotkeydXError;
}

// hotkeydNextKeyPress takes one queued event. It returns 1 for a KeyPress
// and fills the unshifted keysym and modifier state.
static int hotkeydNextKeyPress(Display *d, unsigned long *keysym, unsigned int *state) {
	XEvent ev;
	XNextEvent(d, &ev);
	if (ev.type != KeyPress) {
		return 0;
	}
	*keysym = XkbKeycodeToKeysym(d, (KeyCode)ev.xkey.keycode, 0, 0);
	*state = ev.xkey.state;
	return 1;
}
*/
import "C"

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"runtime"
	"strings"
	"sync"

	"golang.org/x/sys/unix"
)

// x11BadAccess is the X error raised when another client holds a grab.
const x11BadAccess = 10

// xlibAPI implements X11API directly on Xlib. The Display is owned by one
// locked OS thread that polls the X connection and a wake pipe; grab
// requests are marshalled onto it and key presses are filtered from it.
type xlibAPI struct {
	mu      sync.Mutex
	filter  EventFilter
	running bool
	reqs    chan xlibRequest
	wakeR   int
	wakeW   int
	done    chan struct{}

	// grabs is owned by the event-loop thread.
	grabs map[xlibGrab]struct{}
}

type xlibRequest struct {
	fn   func(d *C.Display, root C.Window) error
	quit bool
	resp chan error
}

type xlibGrab struct {
	keycode C.int
	mask    NativeModifiers
}

func newX11API() X11API {
	return &xlibAPI{}
}

func newPlatformBackend() Backend {
	return NewX11Backend(newX11API())
}

// Open connects to $DISPLAY. No reachable X server, including a
// Wayland-only session, yields ErrNoDisplay.
func (a *xlibAPI) Open() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.running {
		return nil
	}

	var p [2]int
	if err := unix.Pipe2(p[:], unix.O_CLOEXEC|unix.O_NONBLOCK); err != nil {
		return fmt.Errorf("x11 wake pipe: %w", err)
	}
	a.wakeR, a.wakeW = p[0], p[1]
	a.reqs = make(chan xlibRequest, 8)
	a.done = make(chan struct{})

	ready := make(chan error, 1)
	go a.run(ready)
	if err := <-ready; err != nil {
		_ = unix.Close(a.wakeR)
		_ = unix.Close(a.wakeW)
		return err
	}
	a.running = true
	return nil
}

func noDisplayError() error {
	display := strings.TrimSpace(os.Getenv("DISPLAY"))
	if display == "" {
		if os.Getenv("WAYLAND_DISPLAY") != "" {
			return fmt.Errorf("%w: wayland session without XWayland DISPLAY", ErrNoDisplay)
		}
		return fmt.Errorf("%w: DISPLAY is not set", ErrNoDisplay)
	}
	return fmt.Errorf("%w: cannot open display %q", ErrNoDisplay, display)
}

func (a *xlibAPI) run(ready chan<- error) {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	d := C.XOpenDisplay(nil)
	if d == nil {
		ready <- noDisplayError()
		return
	}
	C.hotkeydInstallErrorHandler()
	root := C.XDefaultRootWindow(d)
	a.grabs = make(map[xlibGrab]struct{})
	slog.Debug("[DEBUG-HOTKEY] x11 display opened", "display", os.Getenv("DISPLAY"))
	ready <- nil

	defer close(a.done)
	defer C.XCloseDisplay(d)

	fds := []unix.PollFd{
		{Fd: int32(C.XConnectionNumber(d)), Events: unix.POLLIN},
		{Fd: int32(a.wakeR), Events: unix.POLLIN},
	}
	for {
		for C.XPending(d) > 0 {
			var keysym C.ulong
			var state C.uint
			if C.hotkeydNextKeyPress(d, &keysym, &state) == 1 {
				a.deliver(NativeEvent{Kind: EventKeyPress, Key: NativeKey(keysym), State: NativeModifiers(state)})
			}
		}

		if _, err := unix.Poll(fds, -1); err != nil && !errors.Is(err, unix.EINTR) {
			slog.Warn("[DEBUG-HOTKEY] x11 event loop poll failed", "error", err)
			a.failPending(err)
			return
		}
		if fds[1].Revents != 0 {
			drainWakePipe(a.wakeR)
		}

		if a.serveRequests(d, root) {
			return
		}
	}
}

// serveRequests runs queued grab requests and reports whether the loop
// was asked to stop.
func (a *xlibAPI) serveRequests(d *C.Display, root C.Window) bool {
	for {
		select {
		case req := <-a.reqs:
			if req.quit {
				req.resp <- a.ungrabAll(d, root)
				return true
			}
			req.resp <- req.fn(d, root)
		default:
			return false
		}
	}
}

// ungrabAll releases the grabs left when the hook is removed.
func (a *xlibAPI) ungrabAll(d *C.Display, root C.Window) error {
	var errs []error
	for g := range a.grabs {
		if code := C.hotkeydUngrab(d, root, g.keycode, C.uint(g.mask)); code != 0 {
			errs = append(errs, grabError("XUngrabKey", int64(code)))
		}
	}
	a.grabs = make(map[xlibGrab]struct{})
	return errors.Join(errs...)
}

// call runs fn on the event-loop thread and waits for its result.
func (a *xlibAPI) call(fn func(d *C.Display, root C.Window) error, quit bool) error {
	a.mu.Lock()
	running := a.running
	reqs := a.reqs
	wakeW := a.wakeW
	done := a.done
	a.mu.Unlock()
	if !running {
		return ErrNotInitialized
	}

	resp := make(chan error, 1)
	select {
	case reqs <- xlibRequest{fn: fn, quit: quit, resp: resp}:
	case <-done:
		return ErrNotInitialized
	}
	_, _ = unix.Write(wakeW, []byte{1})
	select {
	case err := <-resp:
		return err
	case <-done:
		return ErrNotInitialized
	}
}

func (a *xlibAPI) failPending(err error) {
	for {
		select {
		case req := <-a.reqs:
			req.resp <- err
		default:
			return
		}
	}
}

func drainWakePipe(fd int) {
	var buf [64]byte
	for {
		if n, err := unix.Read(fd, buf[:]); n <= 0 || err != nil {
			return
		}
	}
}

func (a *xlibAPI) deliver(ev NativeEvent) {
	a.mu.Lock()
	filter := a.filter
	a.mu.Unlock()
	if filter != nil {
		filter.FilterNativeEvent(ev)
	}
}

func (a *xlibAPI) Attach(filter EventFilter) error {
	a.mu.Lock()
	a.filter = filter
	a.mu.Unlock()
	return nil
}

// Detach releases every grab still held and closes the display.
func (a *xlibAPI) Detach() error {
	a.mu.Lock()
	a.filter = nil
	running, done := a.running, a.done
	a.mu.Unlock()
	if !running {
		return nil
	}

	err := a.call(nil, true)
	if errors.Is(err, ErrNotInitialized) {
		err = nil
	}
	<-done

	a.mu.Lock()
	a.running = false
	a.mu.Unlock()
	_ = unix.Close(a.wakeR)
	_ = unix.Close(a.wakeW)
	return err
}

func (a *xlibAPI) GrabKey(keysym NativeKey, mask NativeModifiers) error {
	return a.call(func(d *C.Display, root C.Window) error {
		keycode := C.int(C.XKeysymToKeycode(d, C.KeySym(keysym)))
		if keycode == 0 {
			return &NativeError{Op: "XKeysymToKeycode", Err: fmt.Errorf("keysym 0x%X has no keycode on this keyboard", uint32(keysym))}
		}
		if code := C.hotkeydGrab(d, root, keycode, C.uint(mask)); code != 0 {
			return grabError("XGrabKey", int64(code))
		}
		a.grabs[xlibGrab{keycode: keycode, mask: mask}] = struct{}{}
		return nil
	}, false)
}

func (a *xlibAPI) UngrabKey(keysym NativeKey, mask NativeModifiers) error {
	return a.call(func(d *C.Display, root C.Window) error {
		keycode := C.int(C.XKeysymToKeycode(d, C.KeySym(keysym)))
		if keycode == 0 {
			return nil
		}
		delete(a.grabs, xlibGrab{keycode: keycode, mask: mask})
		if code := C.hotkeydUngrab(d, root, keycode, C.uint(mask)); code != 0 {
			return grabError("XUngrabKey", int64(code))
		}
		return nil
	}, false)
}

func grabError(op string, code int64) error {
	if code == x11BadAccess {
		return &NativeError{Op: op, Code: code, Err: errors.New("BadAccess: combination grabbed by another client")}
	}
	return &NativeError{Op: op, Code: code}
}
