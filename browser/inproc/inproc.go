// Package inproc implements the browser surface in process. Windows are
// paired over a small subscription hub; messages hop between them through
// per-window queues so listeners observe them in posting order, the same
// guarantee a real message queue gives.
package inproc

import (
	"fmt"
	"net/url"
	"sync"
	"sync/atomic"

	"github.com/instahelp/waconnect/browser"
	"github.com/instahelp/waconnect/origin"
)

const queueDepth = 64

// Window is an in-process window: its own surface for the code running
// "inside" it, and the target of handles held by related windows.
type Window struct {
	origin origin.Origin
	query  url.Values
	opener *Window

	mu        sync.Mutex
	listeners map[int]func(browser.Message)
	nextID    int

	queue  chan browser.Message
	closed atomic.Bool
	done   chan struct{}
}

var _ browser.Window = (*Window)(nil)

// NewWindow creates a standalone window at the given URL, with no opener.
func NewWindow(rawURL string) (*Window, error) {
	return newWindow(rawURL, nil)
}

func newWindow(rawURL string, opener *Window) (*Window, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("window url: %w", err)
	}
	o, err := origin.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("window url: %w", err)
	}
	w := &Window{
		origin:    o,
		query:     u.Query(),
		opener:    opener,
		listeners: make(map[int]func(browser.Message)),
		queue:     make(chan browser.Message, queueDepth),
		done:      make(chan struct{}),
	}
	go w.dispatch()
	return w, nil
}

func (w *Window) Origin() origin.Origin { return w.origin }
func (w *Window) Query() url.Values     { return w.query }

func (w *Window) Opener() browser.Handle {
	if w.opener == nil {
		return nil
	}
	return &handle{target: w.opener, sender: w}
}

func (w *Window) Listen(fn func(browser.Message)) (cancel func()) {
	w.mu.Lock()
	id := w.nextID
	w.nextID++
	w.listeners[id] = fn
	w.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			w.mu.Lock()
			delete(w.listeners, id)
			w.mu.Unlock()
		})
	}
}

func (w *Window) SelfClose() { w.close() }

// Closed reports whether the window has been closed, by itself or through a
// handle.
func (w *Window) Closed() bool { return w.closed.Load() }

func (w *Window) close() {
	if !w.closed.CompareAndSwap(false, true) {
		return
	}
	close(w.done)
}

// Deliver injects a message into this window's queue as if some unrelated
// script had posted it from the given origin. The simulator and tests use it
// to model cross-talk the allowlist has to shrug off.
func (w *Window) Deliver(from origin.Origin, data []byte) {
	if w.closed.Load() {
		return
	}
	select {
	case w.queue <- browser.Message{Origin: from, Data: data}:
	case <-w.done:
	}
}

// dispatch drains the queue, fanning each message out to the listeners
// registered at delivery time.
func (w *Window) dispatch() {
	for {
		select {
		case msg := <-w.queue:
			w.mu.Lock()
			fns := make([]func(browser.Message), 0, len(w.listeners))
			for _, fn := range w.listeners {
				fns = append(fns, fn)
			}
			w.mu.Unlock()
			for _, fn := range fns {
				fn(msg)
			}
		case <-w.done:
			return
		}
	}
}

// handle references target on behalf of code running in sender.
type handle struct {
	target *Window
	sender *Window
}

var _ browser.Handle = (*handle)(nil)

func (h *handle) PostMessage(target origin.Origin, data []byte) error {
	if h.target.closed.Load() {
		return nil
	}
	if h.target.origin != target {
		// Wrong target origin: the surface drops the message, it never
		// reaches the window's listeners.
		return nil
	}
	h.target.Deliver(h.sender.origin, data)
	return nil
}

func (h *handle) Close()       { h.target.close() }
func (h *handle) Closed() bool { return h.target.closed.Load() }

// Opener opens child windows on behalf of a parent. The onOpen hook runs for
// every window it creates, standing in for the browser loading the page into
// the new window; the simulator boots the relay bridge there.
type Opener struct {
	parent *Window
	onOpen func(child *Window)

	blocked atomic.Bool
}

var _ browser.Opener = (*Opener)(nil)

func NewOpener(parent *Window, onOpen func(child *Window)) *Opener {
	return &Opener{parent: parent, onOpen: onOpen}
}

// BlockPopups makes subsequent Open calls fail like a browser popup blocker.
func (o *Opener) BlockPopups(block bool) { o.blocked.Store(block) }

func (o *Opener) Open(u *url.URL) (browser.Handle, error) {
	if o.blocked.Load() {
		return nil, browser.ErrPopupBlocked
	}
	child, err := newWindow(u.String(), o.parent)
	if err != nil {
		return nil, err
	}
	if o.onOpen != nil {
		o.onOpen(child)
	}
	return &handle{target: child, sender: o.parent}, nil
}
