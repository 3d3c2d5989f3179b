package waconnect

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/instahelp/waconnect/browser/inproc"
	"github.com/instahelp/waconnect/exchange"
	"github.com/instahelp/waconnect/fbsdk"
	"github.com/instahelp/waconnect/origin"
	"github.com/instahelp/waconnect/signup"
)

const (
	appOrigin   = "https://app.instahelp.io"
	relayBase   = "https://relay.instahelp.io"
	parentURL   = appOrigin + "/settings/channels"
	fbOriginRaw = "https://www.facebook.com"
)

type fakeExchanger struct {
	mu    sync.Mutex
	calls []exchange.CompletionRequest
	err   error
}

func (f *fakeExchanger) Complete(ctx context.Context, req exchange.CompletionRequest) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, req)
	return f.err
}

func (f *fakeExchanger) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

// newRelayConnector builds a connector in relay-popup mode whose popup
// behavior is scripted by onOpen.
func newRelayConnector(t *testing.T, onOpen func(child *inproc.Window)) (*Connector, *inproc.Window, *inproc.Opener, *fakeExchanger) {
	t.Helper()
	parent, err := inproc.NewWindow(parentURL)
	require.NoError(t, err)
	opener := inproc.NewOpener(parent, onOpen)
	ex := &fakeExchanger{}
	c := NewConnector(Options{
		AppID:        "app-1",
		ConfigID:     "cfg-1",
		APIVersion:   "v23.0",
		RelayBases:   []string{relayBase},
		Window:       parent,
		Opener:       opener,
		Exchanger:    ex,
		Timeout:      2 * time.Second,
		PollInterval: 20 * time.Millisecond,
	})
	return c, parent, opener, ex
}

func postResult(child *inproc.Window, res signup.Result) {
	child.Opener().PostMessage(origin.MustParse(appOrigin), signup.Encode(res))
}

func TestConnectHappyPath(t *testing.T) {
	c, _, _, ex := newRelayConnector(t, func(child *inproc.Window) {
		// The relay page reads return_origin from its own URL.
		assert.Equal(t, appOrigin, child.Query().Get("return_origin"))
		go postResult(child, signup.Success("abc", "1", "2"))
	})

	res, err := c.Connect(context.Background())
	require.NoError(t, err)
	assert.True(t, res.OK())
	assert.Equal(t, signup.Success("abc", "1", "2"), res)
	require.Equal(t, 1, ex.callCount())
	assert.Equal(t, exchange.CompletionRequest{Code: "abc", WABAID: "1", PhoneNumberID: "2"}, ex.calls[0])
}

func TestConnectPopupBlocked(t *testing.T) {
	c, _, opener, ex := newRelayConnector(t, nil)
	opener.BlockPopups(true)

	start := time.Now()
	res, err := c.Connect(context.Background())
	assert.ErrorIs(t, err, ErrPopupBlocked)
	assert.Equal(t, signup.ReasonPopupBlocked, res.Reason)
	assert.Zero(t, ex.callCount())
	// Fails immediately: no listener or timer was ever armed.
	assert.Less(t, time.Since(start), 200*time.Millisecond)
}

func TestConnectManualClose(t *testing.T) {
	c, _, _, ex := newRelayConnector(t, func(child *inproc.Window) {
		go func() {
			time.Sleep(50 * time.Millisecond)
			child.SelfClose()
		}()
	})

	res, err := c.Connect(context.Background())
	require.NoError(t, err)
	assert.Equal(t, signup.Failure(signup.ReasonWindowClosed), res)
	assert.Zero(t, ex.callCount())
}

func TestConnectTimeoutForceClosesPopup(t *testing.T) {
	var popup *inproc.Window
	c, _, _, ex := newRelayConnector(t, func(child *inproc.Window) { popup = child })
	c.opts.Timeout = 100 * time.Millisecond

	res, err := c.Connect(context.Background())
	require.NoError(t, err)
	assert.Equal(t, signup.Failure(signup.ReasonTimeout), res)
	assert.Zero(t, ex.callCount())
	require.NotNil(t, popup)
	assert.True(t, popup.Closed(), "abandoned popup must be force-closed")
}

func TestConnectCrossTalkRejected(t *testing.T) {
	var parent *inproc.Window
	c, win, _, ex := newRelayConnector(t, func(child *inproc.Window) {
		go func() {
			// A well-formed envelope from a non-allowlisted origin claims
			// success. The attempt must stay pending until the real relay
			// answers.
			parent.Deliver(origin.MustParse("https://evil.example"), signup.Encode(signup.Success("stolen", "9", "9")))
			time.Sleep(100 * time.Millisecond)
			postResult(child, signup.Success("abc", "1", "2"))
		}()
	})
	parent = win

	res, err := c.Connect(context.Background())
	require.NoError(t, err)
	assert.Equal(t, signup.Success("abc", "1", "2"), res)
	require.Equal(t, 1, ex.callCount())
	assert.Equal(t, "abc", ex.calls[0].Code)
}

func TestConnectIgnoresForeignMessagesFromTrustedOrigin(t *testing.T) {
	c, _, _, ex := newRelayConnector(t, func(child *inproc.Window) {
		go func() {
			// Allowlisted origin, but not a result envelope.
			child.Opener().PostMessage(origin.MustParse(appOrigin), []byte(`{"type":"SOMETHING_ELSE"}`))
			time.Sleep(50 * time.Millisecond)
			postResult(child, signup.Failure(signup.ReasonCancelled))
		}()
	})

	res, err := c.Connect(context.Background())
	require.NoError(t, err)
	assert.Equal(t, signup.Failure(signup.ReasonCancelled), res)
	assert.Zero(t, ex.callCount())
}

func TestConnectAtMostOnce(t *testing.T) {
	c, _, _, ex := newRelayConnector(t, func(child *inproc.Window) {
		go func() {
			// Duplicate results and a close race after them: only the first
			// may be acted upon.
			postResult(child, signup.Success("abc", "1", "2"))
			postResult(child, signup.Success("second", "8", "8"))
			child.SelfClose()
		}()
	})

	res, err := c.Connect(context.Background())
	require.NoError(t, err)
	assert.Equal(t, signup.Success("abc", "1", "2"), res)
	assert.Equal(t, 1, ex.callCount())
}

func TestConnectExchangeFailureSurfaced(t *testing.T) {
	c, _, _, ex := newRelayConnector(t, func(child *inproc.Window) {
		go postResult(child, signup.Success("abc", "1", "2"))
	})
	ex.err = errors.New("waba already linked to another tenant")

	res, err := c.Connect(context.Background())
	require.Error(t, err)
	assert.ErrorContains(t, err, "waba already linked")
	assert.True(t, res.OK(), "protocol outcome itself was a success")
}

func TestConnectFailureSkipsExchanger(t *testing.T) {
	c, _, _, ex := newRelayConnector(t, func(child *inproc.Window) {
		go postResult(child, signup.Failure(signup.ReasonNoCode))
	})

	res, err := c.Connect(context.Background())
	require.NoError(t, err)
	assert.Equal(t, signup.ReasonNoCode, res.Reason)
	assert.Zero(t, ex.callCount())
}

func TestConnectMalformedRelayBase(t *testing.T) {
	parent, err := inproc.NewWindow(parentURL)
	require.NoError(t, err)
	ex := &fakeExchanger{}
	c := NewConnector(Options{
		AppID:      "app-1",
		ConfigID:   "cfg-1",
		RelayBases: []string{"::::"},
		Window:     parent,
		Opener:     inproc.NewOpener(parent, nil),
		Exchanger:  ex,
	})

	res, err := c.Connect(context.Background())
	require.Error(t, err)
	assert.Equal(t, signup.ReasonBadConfig, res.Reason)
	assert.Zero(t, ex.callCount())
}

// directSDK scripts the provider SDK for direct-embed tests.
type directSDK struct {
	login func(opts fbsdk.LoginOptions, cb func(fbsdk.LoginResult))
}

func (s *directSDK) Init(appID, apiVersion string) error { return nil }
func (s *directSDK) Login(opts fbsdk.LoginOptions, cb func(fbsdk.LoginResult)) {
	if s.login != nil {
		s.login(opts, cb)
	}
}

func newDirectConnector(t *testing.T, sdk fbsdk.SDK) (*Connector, *inproc.Window, *fakeExchanger) {
	t.Helper()
	win, err := inproc.NewWindow(parentURL)
	require.NoError(t, err)
	ex := &fakeExchanger{}
	c := NewConnector(Options{
		AppID:      "app-1",
		ConfigID:   "cfg-1",
		APIVersion: "v23.0",
		Window:     win,
		Loader:     fbsdk.NewLoader(fbsdk.NewStaticHost(sdk)),
		Exchanger:  ex,
		Timeout:    2 * time.Second,
	})
	return c, win, ex
}

func TestConnectDirectHappyPath(t *testing.T) {
	sdk := &directSDK{}
	sdk.login = func(opts fbsdk.LoginOptions, cb func(fbsdk.LoginResult)) {
		go cb(fbsdk.LoginResult{Code: "abc"})
	}
	c, win, ex := newDirectConnector(t, sdk)

	go func() {
		time.Sleep(50 * time.Millisecond)
		win.Deliver(origin.MustParse(fbOriginRaw),
			[]byte(`{"type":"WA_EMBEDDED_SIGNUP","event":"FINISH","data":{"waba_id":"1","phone_number_id":"2"}}`))
	}()

	res, err := c.Connect(context.Background())
	require.NoError(t, err)
	assert.Equal(t, signup.Success("abc", "1", "2"), res)
	assert.Equal(t, 1, ex.callCount())
}

// stallHost never produces an SDK and never fires its ready hook, so
// EnsureReady blocks until the caller gives up.
type stallHost struct{}

func (stallHost) SDK() fbsdk.SDK                    { return nil }
func (stallHost) HasScript(id string) bool          { return true }
func (stallHost) OnReady(hook func())               {}
func (stallHost) InjectScript(id, src string) error { return nil }

func TestConnectDirectAbandonedWhileLoadingIsTimeout(t *testing.T) {
	win, err := inproc.NewWindow(parentURL)
	require.NoError(t, err)
	ex := &fakeExchanger{}
	c := NewConnector(Options{
		AppID:      "app-1",
		ConfigID:   "cfg-1",
		APIVersion: "v23.0",
		Window:     win,
		Loader:     fbsdk.NewLoader(stallHost{}),
		Exchanger:  ex,
		Timeout:    2 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	res, err := c.Connect(ctx)
	require.NoError(t, err)
	// Abandonment while the SDK is still loading is a timeout, not an SDK
	// failure.
	assert.Equal(t, signup.Failure(signup.ReasonTimeout), res)
	assert.Zero(t, ex.callCount())
}

func TestConnectDirectCancel(t *testing.T) {
	sdk := &directSDK{} // login never resolves
	c, win, ex := newDirectConnector(t, sdk)

	go func() {
		time.Sleep(50 * time.Millisecond)
		win.Deliver(origin.MustParse(fbOriginRaw),
			[]byte(`{"type":"WA_EMBEDDED_SIGNUP","event":"CANCEL","data":{}}`))
	}()

	res, err := c.Connect(context.Background())
	require.NoError(t, err)
	assert.Equal(t, signup.Failure(signup.ReasonCancelled), res)
	assert.Zero(t, ex.callCount())
}
