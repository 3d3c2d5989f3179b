package relay

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/instahelp/waconnect/browser"
	"github.com/instahelp/waconnect/origin"
	"github.com/instahelp/waconnect/signup"
)

func TestPartialOrderIndependence(t *testing.T) {
	var a PartialLoginState
	a.SetCode("abc")
	a.SetIDs("1", "2")

	var b PartialLoginState
	b.SetIDs("1", "2")
	b.SetCode("abc")

	assert.True(t, a.Complete())
	assert.True(t, b.Complete())
	assert.Equal(t, a.Result(), b.Result())
	assert.Equal(t, signup.Success("abc", "1", "2"), a.Result())
}

func TestPartialIncomplete(t *testing.T) {
	var p PartialLoginState
	assert.False(t, p.Complete())
	p.SetCode("abc")
	assert.False(t, p.Complete())
	p.SetIDs("1", "2")
	assert.True(t, p.Complete())
}

func TestPartialFirstWriteWins(t *testing.T) {
	var p PartialLoginState
	p.SetCode("abc")
	p.SetCode("overwrite")
	p.SetIDs("1", "2")
	p.SetIDs("9", "9")
	assert.Equal(t, signup.Success("abc", "1", "2"), p.Result())
}

func TestParseProviderEvent(t *testing.T) {
	fb := origin.MustParse("https://www.facebook.com")

	ev, ok := ParseProviderEvent(browser.Message{Origin: fb, Data: []byte(finishEvent)})
	assert.True(t, ok)
	assert.Equal(t, EventFinish, ev.Event)
	assert.Equal(t, "1", ev.Data.WABAID)
	assert.Equal(t, "2", ev.Data.PhoneNumberID)

	// Provider events from anywhere else are dropped no matter their shape.
	_, ok = ParseProviderEvent(browser.Message{Origin: origin.MustParse("https://evil.example"), Data: []byte(finishEvent)})
	assert.False(t, ok)

	// Wrong type tag from a provider origin is also dropped.
	_, ok = ParseProviderEvent(browser.Message{Origin: fb, Data: []byte(`{"type":"OTHER","event":"FINISH"}`)})
	assert.False(t, ok)

	// Non-JSON noise.
	_, ok = ParseProviderEvent(browser.Message{Origin: fb, Data: []byte("ping")})
	assert.False(t, ok)
}

func TestParseProviderEventSecondaryDomain(t *testing.T) {
	web := origin.MustParse("https://web.facebook.com")
	ev, ok := ParseProviderEvent(browser.Message{Origin: web, Data: []byte(cancelEvent)})
	assert.True(t, ok)
	assert.Equal(t, EventCancel, ev.Event)
}
