package waconnect

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/instahelp/waconnect/browser"
	"github.com/instahelp/waconnect/exchange"
	"github.com/instahelp/waconnect/internal/settle"
	"github.com/instahelp/waconnect/metrics"
	"github.com/instahelp/waconnect/signup"
)

// Connect runs one attempt to completion and reports exactly one outcome.
// The returned Result is the attempt's consolidated outcome; err is non-nil
// for attempt-level errors (popup blocked, completion rejected). A Result
// with a Reason and a nil error is a normal declined outcome, e.g. the user
// cancelling the provider dialog.
func (c *Connector) Connect(ctx context.Context) (signup.Result, error) {
	started := time.Now()
	attemptID := uuid.NewString()
	log := c.log.With("attempt", attemptID)

	mode := "direct"
	if c.relayMode() {
		mode = "relay"
	}
	log.Info("starting connect attempt", "mode", mode)

	var res signup.Result
	var err error
	if c.relayMode() {
		res, err = c.connectRelay(ctx, log)
	} else {
		res, err = c.connectDirect(ctx, log)
	}
	if err != nil {
		metrics.RecordAttempt(ctx, mode, string(res.Reason), time.Since(started))
		return res, err
	}

	if res.OK() {
		if xerr := c.opts.Exchanger.Complete(ctx, exchange.CompletionRequest{
			Code:          res.Code,
			WABAID:        res.WABAID,
			PhoneNumberID: res.PhoneNumberID,
		}); xerr != nil {
			log.Warn("completion exchange failed", "error", xerr)
			metrics.RecordAttempt(ctx, mode, "exchange_failed", time.Since(started))
			return res, fmt.Errorf("complete connection: %w", xerr)
		}
		log.Info("connect attempt succeeded", "waba_id", res.WABAID, "phone_number_id", res.PhoneNumberID)
		metrics.RecordAttempt(ctx, mode, "success", time.Since(started))
		return res, nil
	}

	log.Info("connect attempt ended without credentials", "reason", res.Reason)
	metrics.RecordAttempt(ctx, mode, string(res.Reason), time.Since(started))
	return res, nil
}

// connectRelay opens the relay popup and races the three completion signals:
// a correctly-addressed result message, the popup's closed flag, and the
// attempt ceiling. First one wins; the settle cell makes everything after
// that a no-op.
func (c *Connector) connectRelay(ctx context.Context, log *slog.Logger) (signup.Result, error) {
	returnOrigin := c.opts.Window.Origin()

	relayURL, err := c.relayURL(returnOrigin.String())
	if err != nil {
		// Config-level failure, no SDK or popup was ever involved.
		return signup.Failure(signup.ReasonBadConfig), err
	}

	// Opening is synchronous. If the browser blocks it there is nothing to
	// clean up: no listener or timer exists yet, and retrying without a user
	// gesture would be blocked again.
	popup, err := c.opts.Opener.Open(relayURL)
	if err != nil {
		log.Warn("relay popup refused", "error", err)
		return signup.Failure(signup.ReasonPopupBlocked), err
	}

	done := settle.New[signup.Result]()

	cancelListen := c.opts.Window.Listen(func(msg browser.Message) {
		if !c.allow.Contains(msg.Origin) {
			// Frequently benign noise (extensions broadcast messages); drop
			// without logging an error.
			return
		}
		if res, ok := signup.Decode(msg.Data); ok {
			done.Settle(res)
		}
	})

	poll := time.NewTicker(c.opts.PollInterval)
	ceiling := time.NewTimer(c.opts.Timeout)

	for !done.Settled() {
		select {
		case <-done.Done():
		case <-poll.C:
			if popup.Closed() {
				done.Settle(signup.Failure(signup.ReasonWindowClosed))
			}
		case <-ceiling.C:
			done.Settle(signup.Failure(signup.ReasonTimeout))
		case <-ctx.Done():
			done.Settle(signup.Failure(signup.ReasonTimeout))
		}
	}

	// Teardown runs exactly once: this is the only goroutine that reaches it,
	// and it reaches it only after the cell settled.
	cancelListen()
	poll.Stop()
	ceiling.Stop()
	if !popup.Closed() {
		popup.Close()
	}

	return done.Value(), nil
}

// relayURL builds the popup URL against the first configured relay base,
// with the return origin embedded as a query parameter.
func (c *Connector) relayURL(returnOrigin string) (*url.URL, error) {
	base := strings.TrimRight(c.opts.RelayBases[0], "/")
	u, err := url.Parse(base + relayPath)
	if err != nil {
		return nil, fmt.Errorf("relay base %q: %w", c.opts.RelayBases[0], err)
	}
	q := u.Query()
	q.Set("return_origin", returnOrigin)
	u.RawQuery = q.Encode()
	return u, nil
}
