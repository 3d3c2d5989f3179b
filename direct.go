package waconnect

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/instahelp/waconnect/browser"
	"github.com/instahelp/waconnect/fbsdk"
	"github.com/instahelp/waconnect/internal/settle"
	"github.com/instahelp/waconnect/relay"
	"github.com/instahelp/waconnect/signup"
)

// connectDirect drives the provider SDK in the current window: no popup, no
// cross-window hop, no origin allowlist. The provider's FINISH/CANCEL events
// still arrive as messages, so the reduction over the partial state is the
// same one the relay bridge runs.
func (c *Connector) connectDirect(ctx context.Context, log *slog.Logger) (signup.Result, error) {
	if err := c.opts.Loader.EnsureReady(ctx, c.opts.AppID, c.opts.APIVersion); err != nil {
		if ctx.Err() != nil {
			// The attempt was abandoned while waiting, not an SDK failure.
			return signup.Failure(signup.ReasonTimeout), nil
		}
		log.Warn("sdk load failed", "error", err)
		return signup.Failure(signup.ReasonSDKLoad), nil
	}

	done := settle.New[signup.Result]()

	var (
		mu      sync.Mutex
		partial relay.PartialLoginState
	)
	reduce := func() {
		mu.Lock()
		complete := partial.Complete()
		res := partial.Result()
		mu.Unlock()
		if complete {
			done.Settle(res)
		}
	}

	cancelListen := c.opts.Window.Listen(func(msg browser.Message) {
		ev, ok := relay.ParseProviderEvent(msg)
		if !ok {
			return
		}
		switch ev.Event {
		case relay.EventFinish:
			mu.Lock()
			partial.SetIDs(ev.Data.WABAID, ev.Data.PhoneNumberID)
			mu.Unlock()
			reduce()
		case relay.EventCancel:
			done.Settle(signup.Failure(signup.ReasonCancelled))
		}
	})

	c.opts.Loader.SDK().Login(fbsdk.LoginOptions{
		ConfigID:     c.opts.ConfigID,
		ResponseType: "code",
	}, func(lr fbsdk.LoginResult) {
		if lr.Code == "" {
			done.Settle(signup.Failure(signup.ReasonNoCode))
			return
		}
		mu.Lock()
		partial.SetCode(lr.Code)
		mu.Unlock()
		reduce()
	})

	ceiling := time.NewTimer(c.opts.Timeout)
	select {
	case <-done.Done():
	case <-ceiling.C:
		done.Settle(signup.Failure(signup.ReasonTimeout))
	case <-ctx.Done():
		done.Settle(signup.Failure(signup.ReasonTimeout))
	}
	cancelListen()
	ceiling.Stop()

	return done.Value(), nil
}
