package inproc

import (
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/instahelp/waconnect/browser"
	"github.com/instahelp/waconnect/origin"
)

func mustURL(t *testing.T, raw string) *url.URL {
	t.Helper()
	u, err := url.Parse(raw)
	require.NoError(t, err)
	return u
}

func TestOpenAndPostToParent(t *testing.T) {
	parent, err := NewWindow("https://app.instahelp.io/settings")
	require.NoError(t, err)

	var child *Window
	opener := NewOpener(parent, func(w *Window) { child = w })

	got := make(chan browser.Message, 1)
	cancel := parent.Listen(func(m browser.Message) { got <- m })
	defer cancel()

	h, err := opener.Open(mustURL(t, "https://relay.instahelp.io/connect/whatsapp?return_origin=https%3A%2F%2Fapp.instahelp.io"))
	require.NoError(t, err)
	require.NotNil(t, child)
	assert.Equal(t, "https://app.instahelp.io", child.Query().Get("return_origin"))
	assert.False(t, h.Closed())

	// Child posts back to its opener at the parent's origin.
	require.NotNil(t, child.Opener())
	require.NoError(t, child.Opener().PostMessage(parent.Origin(), []byte("hello")))

	select {
	case m := <-got:
		assert.Equal(t, child.Origin(), m.Origin)
		assert.Equal(t, []byte("hello"), m.Data)
	case <-time.After(time.Second):
		t.Fatal("message never delivered")
	}
}

func TestPostMessageWrongTargetOriginIsDropped(t *testing.T) {
	parent, err := NewWindow("https://app.instahelp.io")
	require.NoError(t, err)
	var child *Window
	opener := NewOpener(parent, func(w *Window) { child = w })
	_, err = opener.Open(mustURL(t, "https://relay.instahelp.io/connect/whatsapp"))
	require.NoError(t, err)

	got := make(chan browser.Message, 1)
	cancel := parent.Listen(func(m browser.Message) { got <- m })
	defer cancel()

	require.NoError(t, child.Opener().PostMessage(origin.MustParse("https://elsewhere.example"), []byte("x")))
	select {
	case <-got:
		t.Fatal("message delivered despite target origin mismatch")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestPostToClosedWindowIsNoOp(t *testing.T) {
	parent, err := NewWindow("https://app.instahelp.io")
	require.NoError(t, err)
	var child *Window
	opener := NewOpener(parent, func(w *Window) { child = w })
	h, err := opener.Open(mustURL(t, "https://relay.instahelp.io/connect/whatsapp"))
	require.NoError(t, err)

	parent.SelfClose()
	assert.NoError(t, child.Opener().PostMessage(parent.Origin(), []byte("x")))

	h.Close()
	assert.True(t, h.Closed())
	// Closing twice is fine.
	h.Close()
}

func TestBlockPopups(t *testing.T) {
	parent, err := NewWindow("https://app.instahelp.io")
	require.NoError(t, err)
	opener := NewOpener(parent, nil)
	opener.BlockPopups(true)
	_, err = opener.Open(mustURL(t, "https://relay.instahelp.io/connect/whatsapp"))
	assert.ErrorIs(t, err, browser.ErrPopupBlocked)
}

func TestListenCancelStopsDelivery(t *testing.T) {
	w, err := NewWindow("https://app.instahelp.io")
	require.NoError(t, err)
	got := make(chan browser.Message, 4)
	cancel := w.Listen(func(m browser.Message) { got <- m })

	w.Deliver(origin.MustParse("https://any.example"), []byte("one"))
	select {
	case <-got:
	case <-time.After(time.Second):
		t.Fatal("first message never delivered")
	}

	cancel()
	cancel() // safe to call twice
	w.Deliver(origin.MustParse("https://any.example"), []byte("two"))
	select {
	case <-got:
		t.Fatal("delivered after cancel")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestDeliveryOrder(t *testing.T) {
	w, err := NewWindow("https://app.instahelp.io")
	require.NoError(t, err)
	got := make(chan string, 8)
	cancel := w.Listen(func(m browser.Message) { got <- string(m.Data) })
	defer cancel()

	from := origin.MustParse("https://any.example")
	for _, s := range []string{"a", "b", "c", "d"} {
		w.Deliver(from, []byte(s))
	}
	for _, want := range []string{"a", "b", "c", "d"} {
		select {
		case s := <-got:
			assert.Equal(t, want, s)
		case <-time.After(time.Second):
			t.Fatal("delivery stalled")
		}
	}
}

func TestOpenerReturnsNilForRootWindow(t *testing.T) {
	w, err := NewWindow("https://app.instahelp.io")
	require.NoError(t, err)
	assert.Nil(t, w.Opener())
}
