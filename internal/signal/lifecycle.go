package signal

import (
	"go.uber.org/zap"

	"github.com/collapsinghierarchy/nt-caller/internal/hub"
	"github.com/collapsinghierarchy/nt-caller/internal/metrics"
)

// Connect registers c as user's live connection. A previous connection for the
// same user is closed, and its call partner is told the user left.
func (r *Router) Connect(user string, c *hub.Conn) {
	prev, replaced := r.hub.Register(user, c)
	if !replaced {
		r.log.Info("user connected", zap.String("user", user), zap.String("cid", c.ID()))
		return
	}
	r.log.Info("user reconnected, replaced old connection",
		zap.String("user", user),
		zap.String("cid", c.ID()),
		zap.String("old_cid", prev.Conn.ID()),
	)
	r.notifyLeft(user, prev.Partner, "replaced")
}

// Disconnect runs when c stops reading. It is a no-op for a connection that was
// already replaced, since Connect handled that departure.
func (r *Router) Disconnect(user string, c *hub.Conn) {
	partner, removed := r.hub.Leave(user, c)
	if !removed {
		r.log.Debug("stale connection closed", zap.String("user", user), zap.String("cid", c.ID()))
		return
	}
	r.log.Info("user disconnected", zap.String("user", user), zap.String("cid", c.ID()))
	r.notifyLeft(user, partner, "disconnect")
}

func (r *Router) notifyLeft(user, partner, reason string) {
	if partner == "" || partner == user {
		return
	}
	metrics.CallsEnded.WithLabelValues(reason).Inc()
	if err := r.hub.Send(partner, userLeft(user)); err != nil {
		metrics.SignalDropped.WithLabelValues("unreachable").Inc()
		r.log.Debug("USER_LEFT not delivered", zap.String("to", partner), zap.Error(err))
	}
}
