package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jessevdk/go-flags"
	"golang.org/x/sync/errgroup"

	"i4.energy/across/ncp/hal"
	"i4.energy/across/ncp/modem"
)

func main() {
	var opts Options
	if _, err := flags.Parse(&opts); err != nil {
		if flags.WroteHelp(err) {
			os.Exit(0)
		}
		os.Exit(2)
	}

	config, err := LoadConfig(WithDefaults(), WithFile(opts.ConfigFile), WithOptions(&opts))
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	logLevel, _ := parseLogLevel(config.LogLevel)
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel}))

	if err := run(config, logger); err != nil {
		logger.Error("ncpd failed", "error", err)
		os.Exit(1)
	}
}

func parseLogLevel(s string) (slog.Level, error) {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug, nil
	case "info", "":
		return slog.LevelInfo, nil
	case "warn":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return slog.LevelInfo, fmt.Errorf("unknown log level %q", s)
}

func run(config *Config, logger *slog.Logger) error {
	variant, _ := modem.ParseVariant(config.Variant)
	simType, _ := modem.ParseSimType(config.SimType)

	pins, err := hal.OpenChipPins(config.GPIO)
	if err != nil {
		return err
	}
	defer func() {
		if err := pins.Close(); err != nil {
			logger.Error("Failed to release GPIO lines", "error", err)
		}
	}()

	modemConfig, err := modem.NewConfigBuilder().
		WithDialer(modem.SerialDialer{
			PortName: config.SerialPort,
			BaudRate: config.BaudRate,
		}).
		WithVariant(variant).
		WithSimType(simType).
		WithPins(pins.PinSet).
		WithLogger(logger).
		WithRegistrationTimeout(config.RegistrationTimeout).
		WithATTimeout(config.ATTimeout).
		WithAPNTable(config.APNTable()).
		WithEventHandler(func(e modem.Event) {
			switch e := e.(type) {
			case modem.NcpStateEvent:
				logger.Info("NCP state changed", "state", e.State.String())
			case modem.ConnectionStateEvent:
				logger.Info("Connection state changed", "state", e.State.String())
			case modem.AuthEvent:
				logger.Debug("PDP credentials announced", "user", e.User)
			}
		}).
		Build()
	if err != nil {
		return fmt.Errorf("failed to create modem config: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	client, err := modem.New(ctx, modemConfig)
	if err != nil {
		return fmt.Errorf("failed to create modem client: %w", err)
	}
	defer func() {
		logger.Info("Closing modem connection")
		if err := client.Close(); err != nil {
			logger.Error("Failed to close modem", "error", err)
		}
	}()

	logger.Info("Starting NCP daemon", "variant", variant.String(), "sim", simType.String(), "serial_port", config.SerialPort)

	supervisor := &Supervisor{
		NCP:           client,
		Network:       config.Network,
		Clock:         hal.SystemClock{},
		Logger:        logger.With("component", "supervisor"),
		Interval:      config.PollInterval,
		RetryInterval: config.RetryInterval,
	}
	supervisor.KeepUp(true)

	httpServer := &http.Server{
		Addr: config.BindAddress,
		Handler: &Server{
			Logger:     logger.With("component", "server"),
			NCP:        client,
			Network:    config.Network,
			Supervisor: supervisor,
		},
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("Starting HTTP server", "address", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server failed: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		return supervisor.Run(ctx)
	})
	g.Go(func() error {
		<-ctx.Done()
		logger.Info("Shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("failed to gracefully shutdown server: %w", err)
		}
		return nil
	})

	return g.Wait()
}
