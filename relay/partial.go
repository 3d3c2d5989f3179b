// Package relay implements the bridge that runs inside the popup window: it
// drives the provider's login call, folds the provider's two independent
// notification channels into one consolidated result, posts that result to
// the opener exactly once, and closes its window.
package relay

import (
	"encoding/json"

	"github.com/instahelp/waconnect/browser"
	"github.com/instahelp/waconnect/origin"
	"github.com/instahelp/waconnect/signup"
)

// PartialLoginState accumulates the fragments of a successful signup as they
// arrive. The authorization code comes from the login callback; the account
// and channel ids come from the provider's FINISH message. The two channels
// are unordered, so neither side may assume the other has fired. A field,
// once set, is never overwritten.
type PartialLoginState struct {
	code          string
	wabaID        string
	phoneNumberID string
	hasCode       bool
	hasIDs        bool
}

// SetCode records the authorization code. First write wins.
func (p *PartialLoginState) SetCode(code string) {
	if p.hasCode {
		return
	}
	p.code = code
	p.hasCode = true
}

// SetIDs records the business account and channel ids from the FINISH event.
// First write wins.
func (p *PartialLoginState) SetIDs(wabaID, phoneNumberID string) {
	if p.hasIDs {
		return
	}
	p.wabaID = wabaID
	p.phoneNumberID = phoneNumberID
	p.hasIDs = true
}

// Complete reports whether all three fragments are present.
func (p *PartialLoginState) Complete() bool {
	return p.hasCode && p.hasIDs
}

// Result builds the success result. Only meaningful once Complete.
func (p *PartialLoginState) Result() signup.Result {
	return signup.Success(p.code, p.wabaID, p.phoneNumberID)
}

// The provider's identity events are only ever legitimately sent from its own
// domains. This list is deliberately hardcoded, not configuration.
var providerOrigins = []origin.Origin{
	origin.MustParse("https://www.facebook.com"),
	origin.MustParse("https://web.facebook.com"),
}

const (
	providerEventType = "WA_EMBEDDED_SIGNUP"

	// EventFinish carries the account and channel ids.
	EventFinish = "FINISH"
	// EventCancel means the user backed out of the provider dialog.
	EventCancel = "CANCEL"
)

// ProviderEvent is one decoded provider notification.
type ProviderEvent struct {
	Type  string `json:"type"`
	Event string `json:"event"`
	Data  struct {
		WABAID        string `json:"waba_id"`
		PhoneNumberID string `json:"phone_number_id"`
	} `json:"data"`
}

// ParseProviderEvent decodes msg as a provider signup event. It returns
// ok=false for messages from non-provider origins or with any other shape;
// those are normal page noise and are dropped without logging.
func ParseProviderEvent(msg browser.Message) (ProviderEvent, bool) {
	trusted := false
	for _, o := range providerOrigins {
		if msg.Origin == o {
			trusted = true
			break
		}
	}
	if !trusted {
		return ProviderEvent{}, false
	}
	var ev ProviderEvent
	if err := json.Unmarshal(msg.Data, &ev); err != nil {
		return ProviderEvent{}, false
	}
	if ev.Type != providerEventType {
		return ProviderEvent{}, false
	}
	return ev, true
}
