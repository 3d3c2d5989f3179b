package fbsdk

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

const (
	scriptElementID = "facebook-jssdk"
	scriptSrc       = "https://connect.facebook.net/en_US/sdk.js"
)

// initWait bounds how long we wait for the provider's async-init hook to fire
// after injecting the script. Var so tests can shorten it.
var initWait = 30 * time.Second

// ErrSDKLoad means the provider script could not be fetched or its init hook
// never fired. Fatal for the attempt that observed it; a later attempt starts
// a fresh load.
var ErrSDKLoad = errors.New("provider sdk failed to load")

// pending is one in-flight script load. err is written before done is closed,
// so waiters may read it after done.
type pending struct {
	done  chan struct{}
	err   error
	timer *time.Timer
}

// Loader makes the provider SDK ready exactly once per page lifetime.
// Concurrent callers share one in-flight load instead of injecting the script
// twice. Once the SDK object exists it is only ever re-inited in place.
type Loader struct {
	host ScriptHost

	mu       sync.Mutex
	sdk      SDK
	inflight *pending // non-nil while a load is pending
}

func NewLoader(host ScriptHost) *Loader {
	return &Loader{host: host}
}

var (
	defaultMu     sync.Mutex
	defaultLoader *Loader
)

// Default returns the process-wide loader, creating it against host on first
// use. Later calls ignore host: there is one script per page.
func Default(host ScriptHost) *Loader {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	if defaultLoader == nil {
		defaultLoader = NewLoader(host)
	}
	return defaultLoader
}

// EnsureReady resolves once the SDK's init has been called successfully. It
// is safe to call from any number of attempts; all concurrent callers observe
// the resolution of the same load.
func (l *Loader) EnsureReady(ctx context.Context, appID, apiVersion string) error {
	l.mu.Lock()

	// SDK already on the page: re-init in place and resolve immediately.
	if l.sdk == nil {
		l.sdk = l.host.SDK()
	}
	if l.sdk != nil {
		sdk := l.sdk
		l.mu.Unlock()
		if err := sdk.Init(appID, apiVersion); err != nil {
			return fmt.Errorf("%w: init: %w", ErrSDKLoad, err)
		}
		return nil
	}

	p := l.inflight
	if p == nil {
		p = l.start(appID, apiVersion)
	}
	l.mu.Unlock()

	select {
	case <-p.done:
		return p.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// SDK returns the loaded SDK, or nil before a successful EnsureReady.
func (l *Loader) SDK() SDK {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.sdk
}

// start kicks off a script load and returns its pending record, which may
// already be resolved if injection failed synchronously. Caller holds l.mu.
func (l *Loader) start(appID, apiVersion string) *pending {
	p := &pending{done: make(chan struct{})}
	l.inflight = p

	l.host.OnReady(func() { l.onReady(p, appID, apiVersion) })

	if !l.host.HasScript(scriptElementID) {
		if err := l.host.InjectScript(scriptElementID, scriptSrc); err != nil {
			l.resolveLocked(p, fmt.Errorf("%w: inject: %w", ErrSDKLoad, err))
			return p
		}
	}

	p.timer = time.AfterFunc(initWait, func() {
		l.mu.Lock()
		defer l.mu.Unlock()
		if l.inflight == p {
			slog.Warn("provider sdk init hook never fired", "waited", initWait)
			l.resolveLocked(p, fmt.Errorf("%w: init hook never fired", ErrSDKLoad))
		}
	})
	return p
}

// onReady is the provider's async-init hook: the script has loaded, bind and
// init the SDK object.
func (l *Loader) onReady(p *pending, appID, apiVersion string) {
	sdk := l.host.SDK()
	var err error
	if sdk == nil {
		err = fmt.Errorf("%w: script loaded but sdk object missing", ErrSDKLoad)
	} else if ierr := sdk.Init(appID, apiVersion); ierr != nil {
		err = fmt.Errorf("%w: init: %w", ErrSDKLoad, ierr)
		sdk = nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.inflight != p {
		return // a timeout already resolved this load
	}
	l.sdk = sdk
	l.resolveLocked(p, err)
}

// resolveLocked settles a pending load. Caller holds l.mu. A failed load
// clears inflight so the next attempt retries from scratch.
func (l *Loader) resolveLocked(p *pending, err error) {
	if p.timer != nil {
		p.timer.Stop()
	}
	p.err = err
	l.inflight = nil
	close(p.done)
}
