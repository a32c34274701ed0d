package ws

import (
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/collapsinghierarchy/nt-caller/internal/hub"
	"github.com/collapsinghierarchy/nt-caller/internal/metrics"
	"github.com/collapsinghierarchy/nt-caller/internal/signal"
)

type wsOpts struct {
	readBuf, writeBuf int
	maxMsg            int64
	heartbeat         time.Duration
	writeTimeout      time.Duration
	rl                interface{ AllowWS(*http.Request) bool } // nil => no limit
}
type Option func(*wsOpts)

func WithRateLimiter(rl interface{ AllowWS(*http.Request) bool }) Option {
	return func(o *wsOpts) { o.rl = rl }
}

func WithBuffers(read, write int) Option {
	return func(o *wsOpts) { o.readBuf, o.writeBuf = read, write }
}
func WithLimits(max int64, heartbeat time.Duration) Option {
	return func(o *wsOpts) { o.maxMsg, o.heartbeat = max, heartbeat }
}
func WithWriteTimeout(d time.Duration) Option {
	return func(o *wsOpts) { o.writeTimeout = d }
}

// originAllowed checks if the Origin header is in the allowlist.
// - Empty Origin (non-browser clients) is allowed.
// - Items in allowedOrigins can be full origins (https://example.com) or hostnames (example.com).
func originAllowed(allowedOrigins []string, origin string) bool {
	if origin == "" {
		return true // non-browser clients typically omit Origin
	}
	if len(allowedOrigins) == 0 {
		return false
	}
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	host := u.Hostname()
	for _, a := range allowedOrigins {
		a = strings.TrimSpace(a)
		if a == "" {
			continue
		}
		if strings.EqualFold(a, origin) || strings.EqualFold(a, host) {
			return true
		}
	}
	return false
}

// NewWSHandler upgrades `?userId=` connections and feeds their frames to the router.
func NewWSHandler(rt *signal.Router, allowedOrigins []string, lg *zap.Logger, dev bool, options ...Option) http.Handler {
	if lg == nil {
		lg = zap.NewNop()
	}
	cfg := wsOpts{
		readBuf: 64 << 10, writeBuf: 64 << 10,
		maxMsg: 1 << 20, heartbeat: 60 * time.Second, writeTimeout: 10 * time.Second,
	}
	for _, opt := range options {
		opt(&cfg)
	}
	pingPeriod := cfg.heartbeat * 9 / 10

	up := websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			if dev {
				return true
			}
			return originAllowed(allowedOrigins, r.Header.Get("Origin"))
		},
		ReadBufferSize:  cfg.readBuf,
		WriteBufferSize: cfg.writeBuf,
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !dev && !originAllowed(allowedOrigins, r.Header.Get("Origin")) {
			metrics.WSRejected.WithLabelValues("origin").Inc()
			http.Error(w, "forbidden origin", http.StatusForbidden)
			return
		}
		if cfg.rl != nil && !cfg.rl.AllowWS(r) {
			metrics.WSRejected.WithLabelValues("rate_limit").Inc()
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		ws, err := up.Upgrade(w, r, nil)
		if err != nil {
			lg.Warn("ws upgrade failed", zap.Error(err))
			return
		}
		defer ws.Close()
		conn := hub.NewConn(ws, cfg.writeTimeout)

		userID := r.URL.Query().Get("userId")
		if userID == "" {
			metrics.WSRejected.WithLabelValues("missing_user").Inc()
			lg.Info("connection without userId refused", zap.String("remote", r.RemoteAddr))
			_ = conn.CloseWith(websocket.ClosePolicyViolation, "Missing userId")
			return
		}
		metrics.WSConnections.Inc()

		ws.SetReadLimit(cfg.maxMsg)
		_ = ws.SetReadDeadline(time.Now().Add(cfg.heartbeat))
		ws.SetPongHandler(func(data string) error {
			if err := ws.SetReadDeadline(time.Now().Add(cfg.heartbeat)); err != nil {
				return err
			}
			if ts, err := strconv.ParseInt(data, 10, 64); err == nil {
				metrics.WSRTTSeconds.Observe(time.Since(time.Unix(0, ts)).Seconds())
			}
			return nil
		})

		rt.Connect(userID, conn)
		defer rt.Disconnect(userID, conn)

		done := make(chan struct{})
		defer close(done)
		go func() {
			t := time.NewTicker(pingPeriod)
			defer t.Stop()
			for {
				select {
				case <-done:
					return
				case <-t.C:
					payload := []byte(strconv.FormatInt(time.Now().UnixNano(), 10))
					if err := conn.Ping(payload); err != nil {
						_ = ws.Close()
						return
					}
				}
			}
		}()

		for {
			mt, msg, err := ws.ReadMessage()
			if err != nil {
				// quiet on normal closes
				if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) && !conn.Closed() {
					lg.Debug("ws read error", zap.String("user", userID), zap.Error(err))
				}
				return
			}
			metrics.WSFrameSize.WithLabelValues("in").Observe(float64(len(msg)))
			if mt != websocket.TextMessage && mt != websocket.BinaryMessage {
				continue
			}
			rt.Handle(userID, conn, msg)
		}
	})
}
