// Command ridetrack runs the rider tracking gateway: it hosts live tracking
// sessions for seller dashboards, bridging the push transport, the storefront
// backend and the map view.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/okian/ridetrack/internal/adapters/http/api"
	"github.com/okian/ridetrack/internal/adapters/presence"
	"github.com/okian/ridetrack/internal/adapters/rest"
	"github.com/okian/ridetrack/internal/app"
	"github.com/okian/ridetrack/internal/config"
	"github.com/okian/ridetrack/internal/transport/auth"
	"github.com/okian/ridetrack/internal/transport/redisps"
	"github.com/okian/ridetrack/internal/transport/ws"
	"github.com/okian/ridetrack/pkg/logger"
)

// HTTP server timeout constants.
const (
	readTimeout       = 10 * time.Second
	writeTimeout      = 10 * time.Second
	idleTimeout       = 60 * time.Second
	readHeaderTimeout = 5 * time.Second
	shutdownTimeout   = 30 * time.Second
)

func main() {
	if err := logger.Init(); err != nil {
		os.Stderr.WriteString("failed to initialize logging: " + err.Error() + "\n")
		return
	}
	log := logger.Get()

	// Root context cancels on SIGINT/SIGTERM.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(ctx)
	if err != nil {
		os.Stderr.WriteString("failed to load config: " + err.Error() + "\n")
		return
	}

	if err := logger.SetLevelString(cfg.LogLevel); err != nil {
		log.Warn(ctx, "invalid log_level; falling back to info",
			logger.String("log_level", cfg.LogLevel), logger.Error(err))
		_ = logger.SetLevelString("info")
	}

	factory, err := transportFactory(cfg)
	if err != nil {
		log.Error(ctx, "transport configuration invalid", logger.Error(err))
		return
	}

	backend := rest.NewClient(cfg.APIBaseURL)
	manager := app.NewManager(factory, backend, backend,
		app.WithManagerLogger(log.Named("sessions")),
		app.WithSessionOptions(app.WithQueueSize(cfg.EventQueueSize)),
	)

	mux := http.NewServeMux()
	api.NewServer(manager).Register(mux)

	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           mux,
		ReadTimeout:       readTimeout,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       idleTimeout,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info(ctx, "gateway listening",
			logger.String("addr", cfg.Addr),
			logger.String("transport", cfg.Transport),
		)
		errCh <- server.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error(ctx, "http server failed", logger.Error(err))
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Warn(shutdownCtx, "http shutdown incomplete", logger.Error(err))
	}
	manager.StopAll()
	log.Info(shutdownCtx, "gateway stopped")
}

// transportFactory builds per-session transports from configuration. Each
// session gets its own connection so sessions stay fully independent.
func transportFactory(cfg *config.Config) (app.TransportFactory, error) {
	switch cfg.Transport {
	case config.TransportWS:
		signer := auth.NewSigner(cfg.ChannelAuthSecret,
			time.Duration(cfg.ChannelAuthTTLMinutes)*time.Minute)
		return func(ctx context.Context) (presence.Transport, error) {
			return ws.New(cfg.GatewayURL, ws.WithSigner(signer)), nil
		}, nil
	case config.TransportRedis:
		return func(ctx context.Context) (presence.Transport, error) {
			return redisps.New(cfg.RedisURL)
		}, nil
	default:
		return nil, errors.New("unknown transport: " + cfg.Transport)
	}
}
