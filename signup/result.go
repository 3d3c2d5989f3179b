// Package signup defines the wire types shared by both sides of an embedded
// signup connect attempt: the consolidated result and the envelope the relay
// window posts back to its opener.
package signup

import (
	"encoding/json"
	"fmt"
)

// MessageType tags result envelopes so listeners can tell them apart from the
// unrelated messages browser pages routinely receive.
const MessageType = "IH_WA_CONNECT_RESULT"

// Reason classifies why an attempt ended without credentials.
type Reason string

const (
	ReasonPopupBlocked Reason = "popup_blocked"
	ReasonSDKLoad      Reason = "sdk_load_error"
	ReasonCancelled    Reason = "user_cancelled"
	ReasonNoCode       Reason = "no_code"
	ReasonTimeout      Reason = "timeout"
	ReasonWindowClosed Reason = "window_closed"
	ReasonBadConfig    Reason = "invalid_config"
)

// Result is the single consolidated outcome of one connect attempt. Exactly
// one Result is ever finalized per attempt. A Result is a success when Reason
// is empty, in which case all three credential fields are set.
type Result struct {
	Code          string `json:"code,omitempty"`
	WABAID        string `json:"waba_id,omitempty"`
	PhoneNumberID string `json:"phone_number_id,omitempty"`
	Reason        Reason `json:"reason,omitempty"`
}

// Success builds a completed result carrying the authorization code and the
// business account/channel identifiers.
func Success(code, wabaID, phoneNumberID string) Result {
	return Result{Code: code, WABAID: wabaID, PhoneNumberID: phoneNumberID}
}

// Failure builds a terminal non-success result.
func Failure(reason Reason) Result {
	return Result{Reason: reason}
}

// OK reports whether the attempt produced credentials.
func (r Result) OK() bool {
	return r.Reason == ""
}

func (r Result) String() string {
	if r.OK() {
		return fmt.Sprintf("success(waba=%s phone=%s)", r.WABAID, r.PhoneNumberID)
	}
	return "failure(" + string(r.Reason) + ")"
}

// Envelope is the postMessage payload the relay bridge sends to its opener.
type Envelope struct {
	Type    string `json:"type"`
	Payload Result `json:"payload"`
}

// Encode serializes r into a tagged envelope for the cross-window hop.
func Encode(r Result) []byte {
	b, _ := json.Marshal(Envelope{Type: MessageType, Payload: r})
	return b
}

// Decode parses data as a result envelope. ok is false when the data is not
// an envelope of the expected type; such messages are ignored, not errors.
func Decode(data []byte) (Result, bool) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Result{}, false
	}
	if env.Type != MessageType {
		return Result{}, false
	}
	return env.Payload, true
}
