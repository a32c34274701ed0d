package signal_test

import (
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/collapsinghierarchy/nt-caller/internal/hub"
	"github.com/collapsinghierarchy/nt-caller/internal/signal"
)

type fakeSocket struct {
	mu     sync.Mutex
	frames [][]byte
	closed bool
}

func (f *fakeSocket) WriteMessage(_ int, data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.frames = append(f.frames, append([]byte(nil), data...))
	return nil
}
func (f *fakeSocket) WriteControl(int, []byte, time.Time) error { return nil }
func (f *fakeSocket) SetWriteDeadline(time.Time) error { return nil }
func (f *fakeSocket) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

// drain returns and forgets everything written so far.
func (f *fakeSocket) drain() []map[string]any {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]map[string]any, 0, len(f.frames))
	for _, b := range f.frames {
		var m map[string]any
		_ = json.Unmarshal(b, &m)
		out = append(out, m)
	}
	f.frames = nil
	return out
}

type peer struct {
	id   string
	sock *fakeSocket
	conn *hub.Conn
}

type harness struct {
	t *testing.T
	h *hub.Hub
	r *signal.Router
}

func newHarness(t *testing.T) *harness {
	h := hub.New()
	return &harness{t: t, h: h, r: signal.NewRouter(h, nil)}
}

func (x *harness) connect(id string) *peer {
	s := &fakeSocket{}
	p := &peer{id: id, sock: s, conn: hub.NewConn(s, time.Second)}
	x.r.Connect(id, p.conn)
	return p
}

func (x *harness) send(p *peer, raw string) { x.r.Handle(p.id, p.conn, []byte(raw)) }

func (x *harness) partner(id string) string {
	x.t.Helper()
	e, ok := x.h.Lookup(id)
	if !ok {
		x.t.Fatalf("%s not registered", id)
	}
	return e.Partner
}

func expectOne(t *testing.T, p *peer) map[string]any {
	t.Helper()
	msgs := p.sock.drain()
	if len(msgs) != 1 {
		t.Fatalf("%s: want 1 message, got %d: %v", p.id, len(msgs), msgs)
	}
	return msgs[0]
}

func expectNone(t *testing.T, p *peer) {
	t.Helper()
	if msgs := p.sock.drain(); len(msgs) != 0 {
		t.Fatalf("%s: want no messages, got %v", p.id, msgs)
	}
}
