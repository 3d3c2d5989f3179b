package fbsdk

import (
	"fmt"
	"net/http"
	"sync"

	"github.com/hashicorp/go-retryablehttp"
)

// FetchHost is a ScriptHost for headless surfaces: "injecting" a script means
// fetching the provider bundle over HTTP and binding the native SDK the
// factory supplies. Fetch failures surface as injection errors; a successful
// fetch fires the ready hook asynchronously, like a script element's onload.
type FetchHost struct {
	client  *retryablehttp.Client
	factory func() SDK

	mu      sync.Mutex
	scripts map[string]bool
	sdk     SDK
	hook    func()
}

var _ ScriptHost = (*FetchHost)(nil)

// NewFetchHost builds a host that binds the SDK returned by factory once the
// provider script has been fetched. Script fetches may retry a couple of
// times; the no-retry rule only binds the completion call, not asset fetches.
func NewFetchHost(factory func() SDK) *FetchHost {
	c := retryablehttp.NewClient()
	c.RetryMax = 2
	c.Logger = nil
	return &FetchHost{
		client:  c,
		factory: factory,
		scripts: make(map[string]bool),
	}
}

func (h *FetchHost) SDK() SDK {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.sdk
}

func (h *FetchHost) HasScript(id string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.scripts[id]
}

func (h *FetchHost) OnReady(hook func()) {
	h.mu.Lock()
	h.hook = hook
	h.mu.Unlock()
}

func (h *FetchHost) InjectScript(id, src string) error {
	h.mu.Lock()
	if h.scripts[id] {
		h.mu.Unlock()
		return nil
	}
	h.scripts[id] = true
	h.mu.Unlock()

	resp, err := h.client.Get(src)
	if err != nil {
		h.forget(id)
		return fmt.Errorf("fetch provider script: %w", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		h.forget(id)
		return fmt.Errorf("fetch provider script: http %d", resp.StatusCode)
	}

	h.mu.Lock()
	h.sdk = h.factory()
	hook := h.hook
	h.mu.Unlock()
	if hook != nil {
		go hook()
	}
	return nil
}

// forget drops a script id whose fetch failed so a later attempt can inject
// again.
func (h *FetchHost) forget(id string) {
	h.mu.Lock()
	delete(h.scripts, id)
	h.mu.Unlock()
}
