// Package browser abstracts the window surface the connect protocol runs on:
// a window of our own to listen on, handles to windows we opened, and the
// cross-window message hop between them. The protocol packages only ever see
// these interfaces; the inproc subpackage provides the in-process
// implementation used by direct-embed mode, the simulator, and tests.
package browser

import (
	"errors"
	"net/url"

	"github.com/instahelp/waconnect/origin"
)

// ErrPopupBlocked is returned by Opener.Open when the surface refuses to
// create a new window. Retrying without a fresh user gesture will be blocked
// again, so callers must fail the attempt instead.
var ErrPopupBlocked = errors.New("popup blocked")

// Message is one cross-window message as seen by a listener. Origin is the
// sender's origin as reported by the surface, not by the message body, and is
// the only provenance a listener may trust.
type Message struct {
	Origin origin.Origin
	Data   []byte
}

// Window is the code's own window: the surface it listens on and whose
// location it reads. It is not a handle to somebody else's window; see Handle.
type Window interface {
	// Origin is the window's own origin.
	Origin() origin.Origin
	// Query returns the query parameters of the window's own URL.
	Query() url.Values
	// Listen registers fn for messages delivered to this window. Messages are
	// delivered in posting order. The returned cancel unregisters fn; it is
	// safe to call more than once.
	Listen(fn func(Message)) (cancel func())
	// Opener returns a handle to the window that opened this one, or nil.
	Opener() Handle
	// SelfClose closes the window. No-op if already closed.
	SelfClose()
}

// Handle is a reference to another window, held by whoever opened it or was
// opened by it.
type Handle interface {
	// PostMessage delivers data to the referenced window if and only if that
	// window's origin equals target. A mismatch is a silent drop, matching
	// postMessage semantics. Posting to a closed window is a harmless no-op.
	PostMessage(target origin.Origin, data []byte) error
	// Close closes the referenced window.
	Close()
	// Closed reports whether the referenced window has been closed.
	Closed() bool
}

// Opener creates new windows.
type Opener interface {
	Open(u *url.URL) (Handle, error)
}
