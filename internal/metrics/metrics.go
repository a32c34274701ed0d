package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	reg = prometheus.NewRegistry()

	WSConnections = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "nt_ws_connections_total", Help: "Total WS connections",
	})
	WSRejected = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "nt_ws_rejected_total", Help: "WS connections refused at open",
	}, []string{"reason"})
	WSReplaced = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "nt_ws_replaced_total", Help: "Connections closed because the same user reconnected",
	})
	UsersOnline = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "nt_users_online", Help: "Registered users",
	})

	WSFrameSize = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "nt_ws_frame_bytes",
		Help:    "WebSocket frame sizes",
		Buckets: []float64{64, 256, 1024, 4096, 16384, 65536, 262144, 1048576},
	}, []string{"dir"})

	WSRTTSeconds = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "nt_ws_rtt_seconds",
		Help:    "WebSocket RTT (derived from ping/pong timestamps)",
		Buckets: prometheus.ExponentialBuckets(0.001, 2, 12),
	})

	SignalMsg = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "nt_signal_messages_total", Help: "Signaling messages by type",
	}, []string{"type"})
	SignalBytes = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "nt_signal_bytes_total", Help: "Signaling payload bytes",
	}, []string{"dir", "type"})
	SignalMalformed = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "nt_signal_malformed_total", Help: "Inbound messages answered with ERROR",
	})
	SignalDropped = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "nt_signal_dropped_total", Help: "Messages not delivered",
	}, []string{"reason"})

	CallsStarted = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "nt_calls_started_total", Help: "Offers that paired two users",
	})
	CallsEnded = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "nt_calls_ended_total", Help: "Calls cleared",
	}, []string{"reason"})
	CallsBusy = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "nt_calls_busy_total", Help: "Offers rejected with USER_BUSY",
	})

	RoomAPIRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "nt_room_api_requests_total", Help: "Outbound room-provisioning requests",
	}, []string{"op", "result"})
)

func init() {
	reg.MustRegister(
		WSConnections, WSRejected, WSReplaced, UsersOnline,
		WSFrameSize, WSRTTSeconds,
		SignalMsg, SignalBytes, SignalMalformed, SignalDropped,
		CallsStarted, CallsEnded, CallsBusy,
		RoomAPIRequests,
	)
}

func Handler() http.Handler { return promhttp.HandlerFor(reg, promhttp.HandlerOpts{}) }

func SetOnline(n int) { UsersOnline.Set(float64(n)) }
