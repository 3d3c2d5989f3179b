package fbsdk

// StaticHost is a ScriptHost whose SDK object is already present, as on
// surfaces that preload the provider bundle. Injection never happens; the
// loader just re-inits in place.
type StaticHost struct {
	sdk SDK
}

var _ ScriptHost = (*StaticHost)(nil)

func NewStaticHost(sdk SDK) *StaticHost {
	return &StaticHost{sdk: sdk}
}

func (h *StaticHost) SDK() SDK                          { return h.sdk }
func (h *StaticHost) HasScript(id string) bool          { return true }
func (h *StaticHost) OnReady(hook func())               {}
func (h *StaticHost) InjectScript(id, src string) error { return nil }
