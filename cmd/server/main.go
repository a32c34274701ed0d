package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/collapsinghierarchy/nt-caller/internal/config"
	"github.com/collapsinghierarchy/nt-caller/internal/health"
	"github.com/collapsinghierarchy/nt-caller/internal/hub"
	"github.com/collapsinghierarchy/nt-caller/internal/logs"
	"github.com/collapsinghierarchy/nt-caller/internal/metrics"
	"github.com/collapsinghierarchy/nt-caller/internal/middleware"
	"github.com/collapsinghierarchy/nt-caller/internal/rooms"
	sig "github.com/collapsinghierarchy/nt-caller/internal/signal"
	"github.com/collapsinghierarchy/nt-caller/internal/ws"
)

func main() {
	// 1) Config + logger
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		log.Fatal(err)
	}
	logger := logs.New("srv", cfg.LogLevel)
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 2) Mux + core endpoints
	ready := health.NewReadiness()
	mux := http.NewServeMux()
	mux.Handle("/healthz", health.Healthz())
	mux.Handle("/readyz", ready.Readyz())
	mux.Handle(cfg.MetricsRoute, metrics.Handler())

	// 3) Room provisioning API (rate-limited if configured)
	if cfg.DailyAPIKey == "" {
		logger.Warn("DAILY_API_KEY missing; room routes will answer 500")
	}
	rc := rooms.NewClient(cfg.DailyAPIKey, cfg.DailyAPIURL, logs.Sub(logger, "rooms"))
	httpRL := middleware.New(cfg.HTTPRatePerMin)
	httpRL.StartJanitor(ctx, time.Minute)
	mux.Handle("/dailyco/", httpRL.Middleware()(http.StripPrefix("/dailyco", rc.Routes())))

	// 4) WebSocket signaling + WS rate limit + tuning
	h := hub.New()
	router := sig.NewRouter(h, logs.Sub(logger, "signal"))
	wsRL := middleware.New(cfg.WSRatePerMin)
	wsRL.StartJanitor(ctx, time.Minute)
	wsHandler := ws.NewWSHandler(
		router,
		cfg.CORSOrigins, // exact origins; ignored when DevMode=true
		logs.Sub(logger, "ws"),
		cfg.DevMode,
		ws.WithBuffers(cfg.WSReadBuf, cfg.WSWriteBuf),
		ws.WithLimits(cfg.WSMaxMsg, cfg.Heartbeat),
		ws.WithWriteTimeout(cfg.WSWriteTimeout),
		ws.WithRateLimiter(wsRL),
	)
	mux.Handle("/ws", wsHandler)
	mux.Handle("/", wsHandler)

	// 5) HTTP server with timeouts
	srv := &http.Server{
		Addr:              cfg.BindAddr(),
		Handler:           logs.Middleware(logger)(mux),
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
	}

	// 6) Serve (TLS if cert+key are set)
	errCh := make(chan error, 1)
	go func() {
		var err error
		if cfg.TLSCertFile != "" && cfg.TLSKeyFile != "" {
			logger.Info("serving HTTPS", zap.String("addr", cfg.BindAddr()))
			err = srv.ListenAndServeTLS(cfg.TLSCertFile, cfg.TLSKeyFile)
		} else {
			logger.Info("serving HTTP", zap.String("addr", cfg.BindAddr()))
			err = srv.ListenAndServe()
		}
		errCh <- err
	}()

	// 7) Block until we’re told to stop (signal) or the server fails
	select {
	case <-ctx.Done():
		ready.Drain()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		// hijacked sockets are not tracked by Shutdown
		h.CloseAll(websocket.CloseGoingAway, "server shutting down")
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Warn("graceful shutdown error", zap.Error(err))
		}
		logger.Info("server stopped")
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server error", zap.Error(err))
		}
	}
}
