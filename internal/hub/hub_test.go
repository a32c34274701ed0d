package hub_test

import (
	"errors"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/collapsinghierarchy/nt-caller/internal/hub"
)

func connect(h *hub.Hub, id string) (*fakeSocket, *hub.Conn) {
	s := &fakeSocket{}
	c := hub.NewConn(s, time.Second)
	h.Register(id, c)
	return s, c
}

func partnerOf(t *testing.T, h *hub.Hub, id string) string {
	t.Helper()
	e, ok := h.Lookup(id)
	if !ok {
		t.Fatalf("%s not registered", id)
	}
	return e.Partner
}

func TestRegisterLookupRemove(t *testing.T) {
	h := hub.New()
	_, c := connect(h, "alice")

	e, ok := h.Lookup("alice")
	if !ok || e.Conn != c || e.Partner != "" {
		t.Fatalf("lookup: %+v ok=%v", e, ok)
	}
	if h.Online() != 1 {
		t.Fatalf("online=%d", h.Online())
	}
	if _, ok := h.Remove("alice"); !ok {
		t.Fatalf("remove should report the entry")
	}
	if _, ok := h.Lookup("alice"); ok {
		t.Fatalf("alice should be gone")
	}
	if _, ok := h.Remove("alice"); ok {
		t.Fatalf("second remove should be a miss")
	}
}

func TestRegisterReplacesAndResetsPartner(t *testing.T) {
	h := hub.New()
	oldSock, oldConn := connect(h, "alice")
	connect(h, "bob")
	if err := h.Pair("alice", "bob"); err != nil {
		t.Fatalf("pair: %v", err)
	}

	newSock := &fakeSocket{}
	newConn := hub.NewConn(newSock, time.Second)
	prev, replaced := h.Register("alice", newConn)
	if !replaced || prev.Conn != oldConn || prev.Partner != "bob" {
		t.Fatalf("prev=%+v replaced=%v", prev, replaced)
	}
	if closed, code := oldSock.isClosed(); !closed || code != websocket.CloseNormalClosure {
		t.Fatalf("old socket closed=%v code=%d", closed, code)
	}
	if p := partnerOf(t, h, "alice"); p != "" {
		t.Fatalf("new entry must be idle, partner=%q", p)
	}
	if p := partnerOf(t, h, "bob"); p != "" {
		t.Fatalf("bob should be released, partner=%q", p)
	}
	if closed, _ := newSock.isClosed(); closed {
		t.Fatalf("new socket must stay open")
	}
}

func TestSetPartner(t *testing.T) {
	h := hub.New()
	connect(h, "alice")
	h.SetPartner("alice", "bob")
	if p := partnerOf(t, h, "alice"); p != "bob" {
		t.Fatalf("partner=%q", p)
	}
	h.SetPartner("alice", "")
	if p := partnerOf(t, h, "alice"); p != "" {
		t.Fatalf("partner=%q", p)
	}
	h.SetPartner("nobody", "alice") // no-op
	if _, ok := h.Lookup("nobody"); ok {
		t.Fatalf("SetPartner must not create entries")
	}
}

func TestPairBusyAndUnpair(t *testing.T) {
	h := hub.New()
	connect(h, "a")
	connect(h, "b")
	connect(h, "c")

	if err := h.Pair("a", "b"); err != nil {
		t.Fatalf("pair a-b: %v", err)
	}
	if err := h.Pair("c", "b"); !errors.Is(err, hub.ErrBusy) {
		t.Fatalf("want ErrBusy, got %v", err)
	}
	if partnerOf(t, h, "b") != "a" || partnerOf(t, h, "c") != "" {
		t.Fatalf("busy offer must not change state")
	}
	// re-offer within the same pair is not busy
	if err := h.Pair("a", "b"); err != nil {
		t.Fatalf("re-offer: %v", err)
	}

	h.Unpair("b", "a")
	if partnerOf(t, h, "a") != "" || partnerOf(t, h, "b") != "" {
		t.Fatalf("unpair must clear both sides")
	}
	if err := h.Pair("c", "b"); err != nil {
		t.Fatalf("b should be free now: %v", err)
	}
}

// An offer to an absent user still marks the sender as calling it.
func TestPairAbsentTargetMarksSender(t *testing.T) {
	h := hub.New()
	connect(h, "a")
	if err := h.Pair("a", "ghost"); err != nil {
		t.Fatalf("pair: %v", err)
	}
	if p := partnerOf(t, h, "a"); p != "ghost" {
		t.Fatalf("partner=%q", p)
	}
}

func TestLeaveIsOwnerAware(t *testing.T) {
	h := hub.New()
	_, oldConn := connect(h, "alice")
	_, newConn := connect(h, "alice")

	if _, removed := h.Leave("alice", oldConn); removed {
		t.Fatalf("stale connection must not evict the new one")
	}
	if e, ok := h.Lookup("alice"); !ok || e.Conn != newConn {
		t.Fatalf("new entry lost")
	}
	if _, removed := h.Leave("alice", newConn); !removed {
		t.Fatalf("owner leave should remove")
	}
}

func TestLeaveReleasesPartner(t *testing.T) {
	h := hub.New()
	_, ca := connect(h, "a")
	connect(h, "b")
	_ = h.Pair("a", "b")

	partner, removed := h.Leave("a", ca)
	if !removed || partner != "b" {
		t.Fatalf("partner=%q removed=%v", partner, removed)
	}
	if p := partnerOf(t, h, "b"); p != "" {
		t.Fatalf("b partner=%q", p)
	}
}

// b moved on to c; a leaving must not break the b-c call.
func TestLeaveToleratesAsymmetry(t *testing.T) {
	h := hub.New()
	_, ca := connect(h, "a")
	connect(h, "b")
	connect(h, "c")
	_ = h.Pair("a", "b")
	_ = h.Pair("b", "c")

	partner, _ := h.Leave("a", ca)
	if partner != "b" {
		t.Fatalf("partner=%q", partner)
	}
	if p := partnerOf(t, h, "b"); p != "c" {
		t.Fatalf("b should still be with c, got %q", p)
	}
}

func TestSend(t *testing.T) {
	h := hub.New()
	s, _ := connect(h, "bob")

	if err := h.Send("bob", map[string]string{"type": "PING"}); err != nil {
		t.Fatalf("send: %v", err)
	}
	msgs := s.messages()
	if len(msgs) != 1 || msgs[0]["type"] != "PING" {
		t.Fatalf("got %v", msgs)
	}
	if err := h.Send("nobody", map[string]string{}); !errors.Is(err, hub.ErrNotConnected) {
		t.Fatalf("want ErrNotConnected, got %v", err)
	}
}

func TestSendToBrokenSocket(t *testing.T) {
	h := hub.New()
	s, c := connect(h, "bob")
	s.failWrite = true

	if err := h.Send("bob", map[string]string{}); !errors.Is(err, hub.ErrNotConnected) {
		t.Fatalf("want ErrNotConnected, got %v", err)
	}
	if !c.Closed() {
		t.Fatalf("failed write should mark the conn closed")
	}
	if err := h.Send("bob", map[string]string{}); !errors.Is(err, hub.ErrNotConnected) {
		t.Fatalf("closed conn should fail fast, got %v", err)
	}
}

func TestCloseAll(t *testing.T) {
	h := hub.New()
	s1, _ := connect(h, "a")
	s2, _ := connect(h, "b")
	h.CloseAll(websocket.CloseGoingAway, "bye")
	for _, s := range []*fakeSocket{s1, s2} {
		if closed, code := s.isClosed(); !closed || code != websocket.CloseGoingAway {
			t.Fatalf("closed=%v code=%d", closed, code)
		}
	}
}
