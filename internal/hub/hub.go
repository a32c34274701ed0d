// Package hub is the connection registry: who is online and who is in a call with whom.
package hub

import (
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/collapsinghierarchy/nt-caller/internal/metrics"
)

var (
	// ErrNotConnected is returned by Send when the target is absent or its socket is gone.
	ErrNotConnected = errors.New("not connected")
	// ErrBusy is returned by Pair when the target is already paired with someone else.
	ErrBusy = errors.New("user busy")
)

// Socket is the part of *websocket.Conn the hub writes to.
type Socket interface {
	WriteMessage(messageType int, data []byte) error
	WriteControl(messageType int, data []byte, deadline time.Time) error
	SetWriteDeadline(t time.Time) error
	Close() error
}

// Conn wraps a Socket to serialize all writes and remember whether it was closed.
type Conn struct {
	id           string
	s            Socket
	writeTimeout time.Duration

	mu     sync.Mutex
	closed bool
}

func NewConn(s Socket, writeTimeout time.Duration) *Conn {
	if writeTimeout <= 0 {
		writeTimeout = 10 * time.Second
	}
	return &Conn{id: uuid.NewString(), s: s, writeTimeout: writeTimeout}
}

// ID identifies this particular connection, not the user.
func (c *Conn) ID() string { return c.id }

func (c *Conn) WriteJSON(v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return c.WriteMessage(websocket.TextMessage, b)
}

func (c *Conn) WriteMessage(mt int, p []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrNotConnected
	}
	_ = c.s.SetWriteDeadline(time.Now().Add(c.writeTimeout))
	if err := c.s.WriteMessage(mt, p); err != nil {
		// a failed write leaves the socket unusable
		c.closed = true
		_ = c.s.Close()
		return err
	}
	metrics.WSFrameSize.WithLabelValues("out").Observe(float64(len(p)))
	return nil
}

func (c *Conn) Ping(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrNotConnected
	}
	return c.s.WriteControl(websocket.PingMessage, data, time.Now().Add(c.writeTimeout))
}

// CloseWith sends a close frame and closes the socket. Safe to call more than once.
func (c *Conn) CloseWith(code int, text string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	_ = c.s.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, text), time.Now().Add(time.Second))
	return c.s.Close()
}

func (c *Conn) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// Entry is a snapshot of one registered user.
// Partner is empty when the user is idle.
type Entry struct {
	UserID  string
	Partner string
	Conn    *Conn
}

type entry struct {
	conn    *Conn
	partner string
}

// Hub maps user identifiers to live connections and call partners.
// Every read-modify-write on one or two entries happens under a single lock.
type Hub struct {
	mu    sync.RWMutex
	users map[string]*entry
}

func New() *Hub { return &Hub{users: make(map[string]*entry)} }

// Register inserts or replaces the entry for id. The new entry always starts idle.
// When an entry already existed its connection is closed and the prior entry returned;
// if the prior partner still pointed back at id, that partner is cleared too.
func (h *Hub) Register(id string, c *Conn) (prev Entry, replaced bool) {
	h.mu.Lock()
	if old := h.users[id]; old != nil {
		prev = Entry{UserID: id, Partner: old.partner, Conn: old.conn}
		replaced = true
	}
	h.users[id] = &entry{conn: c}
	if replaced {
		h.detachLocked(id, prev.Partner)
	}
	n := len(h.users)
	h.mu.Unlock()

	metrics.SetOnline(n)
	if replaced && prev.Conn != c {
		metrics.WSReplaced.Inc()
		_ = prev.Conn.CloseWith(websocket.CloseNormalClosure, "replaced")
	}
	return prev, replaced
}

func (h *Hub) Lookup(id string) (Entry, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	e := h.users[id]
	if e == nil {
		return Entry{}, false
	}
	return Entry{UserID: id, Partner: e.partner, Conn: e.conn}, true
}

// SetPartner overwrites id's call partner. Empty partner means idle. No-op for unknown ids.
func (h *Hub) SetPartner(id, partner string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if e := h.users[id]; e != nil {
		e.partner = partner
	}
}

// Remove deletes id regardless of which connection owns it.
func (h *Hub) Remove(id string) (Entry, bool) {
	h.mu.Lock()
	e := h.users[id]
	if e != nil {
		delete(h.users, id)
	}
	n := len(h.users)
	h.mu.Unlock()
	if e == nil {
		return Entry{}, false
	}
	metrics.SetOnline(n)
	return Entry{UserID: id, Partner: e.partner, Conn: e.conn}, true
}

// Pair is the busy-check-then-set for an offer from -> to, done atomically.
// The target may be absent; the sender is still marked as calling it.
func (h *Hub) Pair(from, to string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	t := h.users[to]
	if t != nil && t.partner != "" && t.partner != from {
		return ErrBusy
	}
	if s := h.users[from]; s != nil {
		s.partner = to
	}
	if t != nil {
		t.partner = from
	}
	return nil
}

// Unpair clears both sides of a call, whichever of them are registered.
func (h *Hub) Unpair(a, b string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if e := h.users[a]; e != nil {
		e.partner = ""
	}
	if e := h.users[b]; e != nil {
		e.partner = ""
	}
}

// Leave removes id only if it is still owned by c, so a connection that was
// replaced by a reconnect cannot evict its successor. It returns the partner
// that was recorded for id; that partner is cleared if it still pointed back.
func (h *Hub) Leave(id string, c *Conn) (partner string, removed bool) {
	h.mu.Lock()
	e := h.users[id]
	if e == nil || e.conn != c {
		h.mu.Unlock()
		return "", false
	}
	delete(h.users, id)
	partner = e.partner
	h.detachLocked(id, partner)
	n := len(h.users)
	h.mu.Unlock()

	metrics.SetOnline(n)
	return partner, true
}

// detachLocked clears partner's pointer at id. A partner that has since moved
// on to another user is left alone.
func (h *Hub) detachLocked(id, partner string) {
	if partner == "" || partner == id {
		return
	}
	if p := h.users[partner]; p != nil && p.partner == id {
		p.partner = ""
	}
}

// Send marshals v and writes it to id's connection. Delivery is best-effort:
// an absent or closed target yields ErrNotConnected and nothing is queued.
func (h *Hub) Send(id string, v any) error {
	h.mu.RLock()
	e := h.users[id]
	h.mu.RUnlock()
	if e == nil {
		return ErrNotConnected
	}
	if err := e.conn.WriteJSON(v); err != nil {
		if errors.Is(err, ErrNotConnected) {
			return err
		}
		return errors.Join(ErrNotConnected, err)
	}
	return nil
}

// Online returns the number of registered users.
func (h *Hub) Online() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.users)
}

// CloseAll closes every registered connection with the given close code.
func (h *Hub) CloseAll(code int, text string) {
	h.mu.RLock()
	conns := make([]*Conn, 0, len(h.users))
	for _, e := range h.users {
		conns = append(conns, e.conn)
	}
	h.mu.RUnlock()
	for _, c := range conns {
		_ = c.CloseWith(code, text)
	}
}
