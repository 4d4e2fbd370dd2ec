package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/okian/bikewatch/internal/adapters/fetcher"
	"github.com/okian/bikewatch/internal/adapters/http/api"
	"github.com/okian/bikewatch/internal/adapters/http/swagger"
	"github.com/okian/bikewatch/internal/adapters/transport"
	"github.com/okian/bikewatch/internal/adapters/transport/httpclient"
	"github.com/okian/bikewatch/internal/adapters/transport/mqtt"
	"github.com/okian/bikewatch/internal/app"
	"github.com/okian/bikewatch/internal/config"
	"github.com/okian/bikewatch/internal/domain/session"
	"github.com/okian/bikewatch/pkg/logger"
)

// HTTP server timeout constants.
const (
	readTimeout       = 10 * time.Second
	idleTimeout       = 60 * time.Second
	readHeaderTimeout = 5 * time.Second
	shutdownTimeout   = 30 * time.Second
)

func main() {
	// Root context with cancel on SIGINT/SIGTERM.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Load configuration (defaults -> optional file -> env)
	cfg, err := config.Load(ctx)
	if err != nil {
		// logger isn't configured yet
		os.Stderr.WriteString("failed to load config: " + err.Error() + "\n")
		os.Exit(1)
	}

	if err := logger.InitWith(cfg.LogFormat, os.Stdout); err != nil {
		os.Stderr.WriteString("failed to initialize logging: " + err.Error() + "\n")
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	log := logger.Get()
	if err := logger.SetLevelString(cfg.LogLevel); err != nil {
		log.Warn(ctx, "invalid log_level; falling back to info", logger.String("log_level", cfg.LogLevel), logger.Error(err))
		_ = logger.SetLevelString("info")
	}

	if err := run(ctx, cfg, log); err != nil {
		log.Error(ctx, "bikewatch stopped with error", logger.Error(err))
		os.Exit(1)
	}
}

// run wires the transport, dashboard and API and blocks until ctx is done.
func run(ctx context.Context, cfg *config.Config, log logger.Logger) error {
	t, err := newTransport(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := t.Close(); err != nil {
			log.Warn(ctx, "transport close failed", logger.Error(err))
		}
	}()

	dash, err := newDashboard(cfg, t)
	if err != nil {
		return err
	}
	if err := dash.Mount(ctx); err != nil {
		return fmt.Errorf("failed to mount dashboard: %w", err)
	}
	defer dash.Unmount()

	mux := http.NewServeMux()
	swagger.Register(ctx, mux)
	api.NewServer(dash).Register(ctx, mux)

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           mux,
		ReadTimeout:       readTimeout,
		IdleTimeout:       idleTimeout,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Info(ctx, "starting HTTP server",
			logger.String("addr", cfg.Addr),
			logger.String("transport", cfg.Transport),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case <-ctx.Done():
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("HTTP server failed: %w", err)
		}
	}
	log.Info(ctx, "shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error(ctx, "server shutdown failed", logger.Error(err))
	}
	log.Info(ctx, "server stopped")
	return nil
}

// newTransport builds the configured remote transport.
func newTransport(ctx context.Context, cfg *config.Config) (transport.Transport, error) {
	switch cfg.Transport {
	case config.TransportHTTP:
		return httpclient.New(cfg.BaseURL, httpclient.WithTimeout(cfg.HTTPTimeout())), nil
	case config.TransportMQTT:
		addr := net.JoinHostPort(cfg.MQTTHost, strconv.Itoa(cfg.MQTTPort))
		c, err := mqtt.Dial(ctx, addr,
			mqtt.WithPrefix(cfg.MQTTPrefix),
			mqtt.WithTimeout(cfg.HTTPTimeout()),
			mqtt.WithQueueSize(cfg.PushQueueSize),
		)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to %s: %w", addr, err)
		}
		return c, nil
	default:
		return nil, fmt.Errorf("%w: unknown transport %q", config.ErrInvalidConfig, cfg.Transport)
	}
}

// newDashboard builds the controller over t.
func newDashboard(cfg *config.Config, t transport.Transport) (*app.Controller, error) {
	loc, err := cfg.Location()
	if err != nil {
		return nil, fmt.Errorf("%w: timezone: %w", config.ErrInvalidConfig, err)
	}
	f := fetcher.New(t)
	return app.New(f, session.NewResolver(f, loc),
		app.WithPollInterval(cfg.PollInterval()),
		app.WithHistoryCount(cfg.HistoryCount),
		app.WithChartMargin(cfg.ChartMargin),
		app.WithWeatherStation(cfg.WeatherStation),
		app.WithConfigRefresh(cfg.ConfigRefresh()),
		app.WithDevice(cfg.DeviceID, cfg.TrackID),
	), nil
}
