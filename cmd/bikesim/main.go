// Command bikesim serves a simulated bike service for local development.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/okian/bikewatch/internal/domain/model"
	"github.com/okian/bikewatch/internal/simulator"
	"github.com/okian/bikewatch/pkg/logger"
)

const (
	defaultInterval   = time.Second
	readHeaderTimeout = 5 * time.Second
	shutdownTimeout   = 5 * time.Second
)

type options struct {
	addr          string
	brokerAddr    string
	embedBroker   bool
	prefix        string
	interval      time.Duration
	publicWeather bool
	device        string
	track         string
	startIn       time.Duration
	logFormat     string
}

func main() {
	var o options
	flag.StringVar(&o.addr, "addr", ":9080", "HTTP listen address; the API lives under /api")
	flag.StringVar(&o.brokerAddr, "mqtt", "", "MQTT broker address to answer requests on, e.g. localhost:1883")
	flag.BoolVar(&o.embedBroker, "embed-broker", false, "Run an in-process MQTT broker on the -mqtt address")
	flag.StringVar(&o.prefix, "prefix", "bikewatch", "MQTT topic prefix")
	flag.DurationVar(&o.interval, "interval", defaultInterval, "Sample generation interval")
	flag.BoolVar(&o.publicWeather, "public-weather", false, "Serve weather to every caller")
	flag.StringVar(&o.device, "device", "taurusx", "Configured device")
	flag.StringVar(&o.track, "track", "bm", "Configured track")
	flag.DurationVar(&o.startIn, "start-in", 0, "Session start relative to now")
	flag.StringVar(&o.logFormat, "log-format", logger.FormatConsole, "Log format: text or console")
	flag.Parse()

	if err := logger.InitWith(o.logFormat, os.Stdout); err != nil {
		os.Stderr.WriteString("failed to initialize logging: " + err.Error() + "\n")
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, o, logger.Named("bikesim")); err != nil {
		logger.Get().Error(ctx, "bikesim stopped with error", logger.Error(err))
		os.Exit(1)
	}
}

func run(ctx context.Context, o options, log logger.Logger) error {
	start := time.Now().Add(o.startIn)
	simOpts := []simulator.Option{simulator.WithConfig(model.Config{
		DeviceID:         o.device,
		TrackID:          o.track,
		SessionDate:      start.Format("2006-01-02"),
		SessionStartTime: start.Format("15:04:05"),
	})}
	if o.publicWeather {
		simOpts = append(simOpts, simulator.WithPublicWeather())
	}
	sim := simulator.New(simOpts...)
	sim.SetWeather(3, 18)
	go sim.Run(ctx, o.interval)

	if o.brokerAddr != "" {
		stopMQTT, err := serveMQTT(ctx, sim, o)
		if err != nil {
			return err
		}
		defer stopMQTT()
		log.Info(ctx, "answering MQTT requests",
			logger.String("broker", o.brokerAddr),
			logger.String("prefix", o.prefix),
			logger.Bool("embedded", o.embedBroker),
		)
	}

	mux := http.NewServeMux()
	mux.Handle("/api/", http.StripPrefix("/api", sim.Handler()))
	srv := &http.Server{Addr: o.addr, Handler: mux, ReadHeaderTimeout: readHeaderTimeout}

	errc := make(chan error, 1)
	go func() {
		log.Info(ctx, "serving simulated bike service",
			logger.String("addr", o.addr),
			logger.String("device", o.device),
			logger.String("startsAt", start.Format(time.RFC3339)),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
		close(errc)
	}()

	select {
	case <-ctx.Done():
	case err := <-errc:
		if err != nil {
			return fmt.Errorf("HTTP server failed: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// serveMQTT optionally starts the embedded broker and attaches a responder.
// The returned func releases both.
func serveMQTT(ctx context.Context, sim *simulator.Simulator, o options) (func(), error) {
	var closers []func()
	release := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	if o.embedBroker {
		broker, err := simulator.StartBroker(o.brokerAddr)
		if err != nil {
			return nil, err
		}
		closers = append(closers, func() { _ = broker.Close() })
	}

	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", o.brokerAddr)
	if err != nil {
		release()
		return nil, fmt.Errorf("failed to dial broker %s: %w", o.brokerAddr, err)
	}
	responder, err := simulator.ServeMQTT(ctx, sim, conn, o.prefix)
	if err != nil {
		release()
		return nil, err
	}
	closers = append(closers, func() { _ = responder.Close() })
	return release, nil
}
