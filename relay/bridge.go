package relay

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/instahelp/waconnect/browser"
	"github.com/instahelp/waconnect/fbsdk"
	"github.com/instahelp/waconnect/internal/settle"
	"github.com/instahelp/waconnect/origin"
	"github.com/instahelp/waconnect/signup"
)

// finishWait is the bridge's own ceiling: if neither the login callback nor
// the provider events reach a terminal state in time, the bridge reports a
// timeout instead of leaving the opener hanging until its longer ceiling.
const finishWait = 120 * time.Second

// Bridge runs inside the popup window. Its app id, config id, and api version
// come from build-time configuration; the only thing it reads from its URL is
// return_origin, and the only thing it will ever trust as a posting target is
// that value.
type Bridge struct {
	win    browser.Window
	loader *fbsdk.Loader

	appID      string
	configID   string
	apiVersion string

	wait time.Duration
	log  *slog.Logger
}

func NewBridge(win browser.Window, loader *fbsdk.Loader, appID, configID, apiVersion string) *Bridge {
	return &Bridge{
		win:        win,
		loader:     loader,
		appID:      appID,
		configID:   configID,
		apiVersion: apiVersion,
		wait:       finishWait,
		log:        slog.With("component", "relay"),
	}
}

// Run drives the bridge to completion and returns once the window has posted
// its result (or had nothing to report to). It is the only place that posts
// to the opener and closes the window, so no sequence of provider events can
// produce two posts.
func (b *Bridge) Run(ctx context.Context) {
	returnOrigin, err := origin.Parse(b.win.Query().Get("return_origin"))
	if err != nil {
		// Nothing trustworthy to report to. Do not guess a target.
		b.log.Error("relay window opened without a valid return_origin", "error", err)
		b.win.SelfClose()
		return
	}

	done := settle.New[signup.Result]()
	finish := func(res signup.Result) {
		if !done.Settle(res) {
			return
		}
		if op := b.win.Opener(); op != nil {
			// Exactly returnOrigin, never a wildcard. If the opener is gone
			// this is a harmless no-op.
			if err := op.PostMessage(returnOrigin, signup.Encode(res)); err != nil {
				b.log.Warn("post to opener failed", "error", err)
			}
		}
		b.win.SelfClose()
	}

	if err := b.loader.EnsureReady(ctx, b.appID, b.apiVersion); err != nil {
		if ctx.Err() != nil {
			finish(signup.Failure(signup.ReasonTimeout))
			return
		}
		b.log.Warn("sdk load failed", "error", err)
		finish(signup.Failure(signup.ReasonSDKLoad))
		return
	}

	var (
		mu      sync.Mutex
		partial PartialLoginState
	)
	reduce := func() {
		mu.Lock()
		complete := partial.Complete()
		res := partial.Result()
		mu.Unlock()
		if complete {
			finish(res)
		}
	}

	cancelListen := b.win.Listen(func(msg browser.Message) {
		ev, ok := ParseProviderEvent(msg)
		if !ok {
			return
		}
		switch ev.Event {
		case EventFinish:
			mu.Lock()
			partial.SetIDs(ev.Data.WABAID, ev.Data.PhoneNumberID)
			mu.Unlock()
			reduce()
		case EventCancel:
			finish(signup.Failure(signup.ReasonCancelled))
		}
	})
	defer cancelListen()

	b.loader.SDK().Login(fbsdk.LoginOptions{
		ConfigID:     b.configID,
		ResponseType: "code",
	}, func(lr fbsdk.LoginResult) {
		if lr.Code == "" {
			finish(signup.Failure(signup.ReasonNoCode))
			return
		}
		mu.Lock()
		partial.SetCode(lr.Code)
		mu.Unlock()
		reduce()
	})

	timeout := time.NewTimer(b.wait)
	defer timeout.Stop()
	select {
	case <-done.Done():
	case <-timeout.C:
		finish(signup.Failure(signup.ReasonTimeout))
	case <-ctx.Done():
		finish(signup.Failure(signup.ReasonTimeout))
	}
}
