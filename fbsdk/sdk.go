// Package fbsdk wraps the provider's client SDK behind small interfaces and
// owns its once-per-page load lifecycle. The connect protocol never touches
// the provider SDK directly; it goes through a Loader so repeated attempts
// share one script injection and one init.
package fbsdk

// LoginOptions configures one embedded-signup login call.
type LoginOptions struct {
	// ConfigID selects the provider-side embedded signup configuration.
	ConfigID string
	// ResponseType is always "code" for this flow.
	ResponseType string
}

// LoginResult is what the provider's login callback hands back. Code is empty
// when the provider completed the dialog without issuing an authorization
// code.
type LoginResult struct {
	Code string
}

// SDK is the provider's client object once its script is loaded.
type SDK interface {
	// Init (re)initializes the SDK. The provider documents init as
	// idempotent, which is what lets repeated connect attempts share one
	// script.
	Init(appID, apiVersion string) error
	// Login starts the provider's login dialog and fires cb exactly once when
	// the dialog resolves.
	Login(opts LoginOptions, cb func(LoginResult))
}

// ScriptHost is the page-level surface the loader drives: script tag
// presence, script injection, the provider's global async-init hook, and the
// SDK object itself once present.
type ScriptHost interface {
	// SDK returns the provider SDK object, or nil if its script has not
	// loaded yet.
	SDK() SDK
	// HasScript reports whether a script element with the given id exists.
	HasScript(id string) bool
	// InjectScript adds a script element. It returns an error when the script
	// cannot be fetched at all; load completion is signaled through OnReady.
	InjectScript(id, src string) error
	// OnReady installs the provider's documented async-init hook, invoked
	// once the injected script has loaded.
	OnReady(hook func())
}
