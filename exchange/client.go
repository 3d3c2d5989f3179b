package exchange

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/golang-jwt/jwt/v5"
)

const completePath = "/whatsapp/embedded-signup/complete"

// ErrTokenExpired means the tenant's bearer token is already expired, so the
// completion call would be rejected anyway.
var ErrTokenExpired = errors.New("tenant token expired")

type completeResponse struct {
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
}

// Client talks to the completion endpoint. It sends exactly one request per
// Complete call: the backend owns any retry semantics, not this client.
type Client struct {
	rc    *resty.Client
	token string
}

// Opts configures a Client.
type Opts struct {
	// BaseURL of the backend.
	BaseURL string
	// Token is the tenant administrator's bearer token.
	Token string
	// HTTPClient optionally overrides the underlying http.Client.
	HTTPClient *http.Client
	// Timeout limits a single completion call. Defaults to 15s.
	Timeout time.Duration
}

func NewClient(opts Opts) *Client {
	hc := opts.HTTPClient
	if hc == nil {
		hc = &http.Client{}
	}
	rc := resty.NewWithClient(hc).SetBaseURL(opts.BaseURL)
	if opts.Timeout > 0 {
		rc.SetTimeout(opts.Timeout)
	} else {
		rc.SetTimeout(15 * time.Second)
	}
	return &Client{rc: rc, token: opts.Token}
}

var _ Exchanger = (*Client)(nil)

// Complete exchanges the authorization code for a persisted connection.
func (c *Client) Complete(ctx context.Context, req CompletionRequest) error {
	if err := checkTokenUsable(c.token); err != nil {
		return err
	}

	var out completeResponse
	var apiErr completeResponse
	resp, err := c.rc.R().
		SetContext(ctx).
		SetAuthToken(c.token).
		SetHeader("Content-Type", "application/json").
		SetBody(req).
		SetResult(&out).
		SetError(&apiErr).
		Post(completePath)
	if err != nil {
		return fmt.Errorf("completion request: %w", err)
	}
	if resp.IsError() {
		if apiErr.Error != "" {
			return errors.New(apiErr.Error)
		}
		return fmt.Errorf("completion failed: http %d", resp.StatusCode())
	}
	if !out.OK {
		if out.Error != "" {
			return errors.New(out.Error)
		}
		return errors.New("completion rejected by backend")
	}
	return nil
}

// checkTokenUsable parses the bearer token without verifying its signature
// (verification is the backend's job) to catch an already-expired token
// before burning the one-shot authorization code on a doomed request.
func checkTokenUsable(token string) error {
	if token == "" {
		return nil // some deployments authenticate by cookie instead
	}
	claims := jwt.MapClaims{}
	if _, _, err := new(jwt.Parser).ParseUnverified(token, &claims); err != nil {
		// Opaque tokens are fine; let the backend judge them.
		return nil
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return nil
	}
	if time.Now().After(exp.Time) {
		return ErrTokenExpired
	}
	return nil
}
