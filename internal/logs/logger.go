package logs

import (
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type Logger = *zap.Logger

// New builds a JSON production logger tagged with the given subsystem.
// An unparseable level falls back to info.
func New(system, level string) Logger {
	cfg := zap.NewProductionConfig()
	cfg.Encoding = "json"
	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.TimeEncoderOfLayout(time.RFC3339Nano)
	if lvl, err := zapcore.ParseLevel(level); err == nil {
		cfg.Level = zap.NewAtomicLevelAt(lvl)
	}
	l, err := cfg.Build(zap.Fields(zap.String("sys", system)))
	if err != nil {
		return zap.NewNop()
	}
	return l
}

// Sub returns a named child logger for a component of the system.
func Sub(l Logger, name string) Logger {
	if l == nil {
		return zap.NewNop()
	}
	return l.Named(name)
}

func Middleware(l Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			next.ServeHTTP(w, r)
			msg := "http"
			if IsWebSocketUpgrade(r) {
				// logged when the socket closes, since the handler blocks for the connection lifetime
				msg = "ws"
			}
			l.Info(msg,
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.String("remote", r.RemoteAddr),
				zap.Duration("dur", time.Since(start)),
			)
		})
	}
}

// SafeKey masks a credential for logging.
func SafeKey(key string) string {
	if key == "" {
		return "undefined"
	}
	if len(key) > 10 {
		return key[:6] + "..." + key[len(key)-4:]
	}
	return key
}

func IsWebSocketUpgrade(r *http.Request) bool {
	if !headerContainsToken(r.Header, "Connection", "upgrade") {
		return false
	}
	return strings.EqualFold(r.Header.Get("Upgrade"), "websocket")
}

func headerContainsToken(h http.Header, key, token string) bool {
	for _, v := range h.Values(key) {
		for _, part := range strings.Split(v, ",") {
			if strings.EqualFold(strings.TrimSpace(part), token) {
				return true
			}
		}
	}
	return false
}
