// Package signal routes call-signaling messages between registered users and
// keeps their two-party call state in the hub.
package signal

import (
	"errors"

	"go.uber.org/zap"

	"github.com/collapsinghierarchy/nt-caller/internal/hub"
	"github.com/collapsinghierarchy/nt-caller/internal/metrics"
)

type Router struct {
	hub *hub.Hub
	log *zap.Logger
}

func NewRouter(h *hub.Hub, lg *zap.Logger) *Router {
	if lg == nil {
		lg = zap.NewNop()
	}
	return &Router{hub: h, log: lg}
}

// Handle processes one inbound frame from user `from` arriving on c.
// Nothing here closes c; every failure is answered, dropped, or logged.
func (r *Router) Handle(from string, c *hub.Conn, raw []byte) {
	msg, err := Parse(raw)
	if err != nil {
		metrics.SignalMalformed.Inc()
		r.log.Warn("malformed message", zap.String("user", from), zap.Error(err))
		_ = c.WriteJSON(errorMsg(err))
		return
	}
	label := msg.Kind.String()
	metrics.SignalMsg.WithLabelValues(label).Inc()
	metrics.SignalBytes.WithLabelValues("in", label).Add(float64(len(raw)))

	if msg.Target == "" {
		metrics.SignalDropped.WithLabelValues("no_target").Inc()
		r.log.Debug("message without target dropped", zap.String("user", from), zap.String("type", msg.Type))
		return
	}
	if !r.transition(from, c, msg) {
		return
	}
	r.forward(from, msg)
}

// transition applies the call-state effect of msg and reports whether it should be forwarded.
func (r *Router) transition(from string, c *hub.Conn, msg Message) bool {
	switch msg.Kind {
	case KindOffer:
		if err := r.hub.Pair(from, msg.Target); errors.Is(err, hub.ErrBusy) {
			metrics.CallsBusy.Inc()
			r.log.Info("callee busy", zap.String("from", from), zap.String("to", msg.Target))
			_ = c.WriteJSON(userBusy(msg.Target))
			return false
		}
		metrics.CallsStarted.Inc()
	case KindCallEnded:
		r.hub.Unpair(from, msg.Target)
		metrics.CallsEnded.WithLabelValues("call_ended").Inc()
	case KindAnswer, KindCandidate, KindOther:
		// forward only
	}
	return true
}

func (r *Router) forward(from string, msg Message) {
	if err := r.hub.Send(msg.Target, msg.Forward(from)); err != nil {
		metrics.SignalDropped.WithLabelValues("unreachable").Inc()
		r.log.Debug("target unreachable",
			zap.String("from", from),
			zap.String("to", msg.Target),
			zap.String("type", msg.Type),
			zap.Error(err),
		)
	}
}
