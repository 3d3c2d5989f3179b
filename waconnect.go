// Package waconnect links a tenant's WhatsApp Business account to the
// platform through the provider's embedded signup flow. The Connector runs on
// the initiating window: it either opens a relay popup and waits for the
// relay bridge to post the consolidated result back, or, when no relay
// surface is configured, drives the provider SDK directly in the current
// window. Either way it resolves exactly one outcome per attempt and, on
// success, hands the authorization code to the completion backend.
package waconnect

import (
	"log/slog"
	"time"

	"github.com/instahelp/waconnect/browser"
	"github.com/instahelp/waconnect/exchange"
	"github.com/instahelp/waconnect/fbsdk"
	"github.com/instahelp/waconnect/origin"
)

const (
	// connectTimeout is the opener-side ceiling for one attempt. It is
	// deliberately longer than the relay bridge's own ceiling so the bridge
	// normally reports its timeout first.
	connectTimeout = 180 * time.Second

	// closePollInterval is how often the popup's closed flag is polled. The
	// flag is the only signal a user manually closing the window leaves
	// behind.
	closePollInterval = 500 * time.Millisecond

	relayPath = "/connect/whatsapp"
)

// ErrPopupBlocked is reported when the browser refuses to open the relay
// popup. The attempt is over; retrying without a fresh user gesture would be
// blocked again.
var ErrPopupBlocked = browser.ErrPopupBlocked

// Options wires a Connector to its surface and collaborators.
type Options struct {
	// AppID, ConfigID, and APIVersion identify the provider application and
	// its embedded-signup configuration.
	AppID      string
	ConfigID   string
	APIVersion string

	// RelayBases are the configured relay surface base URLs. Non-empty
	// selects relay-popup mode; the first entry hosts the popup and the full
	// list derives the origin allowlist.
	RelayBases []string

	// Window is the initiating window.
	Window browser.Window
	// Opener opens the relay popup. Unused in direct-embed mode.
	Opener browser.Opener
	// Loader owns the provider SDK lifecycle. Unused in relay-popup mode,
	// where the popup loads the SDK instead.
	Loader *fbsdk.Loader
	// Exchanger finalizes successful attempts.
	Exchanger exchange.Exchanger

	// Timeout and PollInterval override the attempt ceiling and the popup
	// close poll. Zero means the defaults above.
	Timeout      time.Duration
	PollInterval time.Duration
}

// Connector drives connect attempts. One Connector may run any number of
// attempts; each Connect call owns its listener, timers, and popup
// exclusively and tears them down when its outcome settles.
type Connector struct {
	opts  Options
	allow origin.Allowlist
	log   *slog.Logger
}

func NewConnector(opts Options) *Connector {
	if opts.Timeout == 0 {
		opts.Timeout = connectTimeout
	}
	if opts.PollInterval == 0 {
		opts.PollInterval = closePollInterval
	}
	return &Connector{
		opts:  opts,
		allow: origin.Derive(opts.RelayBases),
		log:   slog.With("component", "connector"),
	}
}

// relayMode reports whether a relay surface is configured.
func (c *Connector) relayMode() bool {
	return len(c.opts.RelayBases) > 0
}
