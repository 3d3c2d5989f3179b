// Package exchange is the boundary to the backend that turns an authorization
// code into a durable connection. The connect core only sees the Exchanger
// interface; Client is the HTTP implementation of the backend's contract.
package exchange

import "context"

// CompletionRequest carries the three strings a successful signup produced.
type CompletionRequest struct {
	Code          string `json:"code"`
	WABAID        string `json:"waba_id"`
	PhoneNumberID string `json:"phone_number_id"`
}

// Exchanger finalizes a connection. Complete returns nil on success; any
// error is surfaced to the caller as-is and is never retried by the connect
// core. Retry is a fresh, user-initiated attempt.
type Exchanger interface {
	Complete(ctx context.Context, req CompletionRequest) error
}
