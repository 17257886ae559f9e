package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/dgnsrekt/ais-bridge/internal/config"
	"github.com/dgnsrekt/ais-bridge/internal/mavlink"
	"github.com/dgnsrekt/ais-bridge/internal/mqttsink"
	"github.com/dgnsrekt/ais-bridge/internal/notify"
	"github.com/dgnsrekt/ais-bridge/internal/recorder"
	"github.com/dgnsrekt/ais-bridge/internal/server"
	"github.com/dgnsrekt/ais-bridge/internal/sse"
	"github.com/dgnsrekt/ais-bridge/internal/telemetry"
	"github.com/dgnsrekt/ais-bridge/internal/vessels"
	"github.com/dgnsrekt/ais-bridge/internal/ws"
)

type serveOptions struct {
	mavlinkHost string
	mavlinkPort int
	port        string
}

// apply copies explicitly set flags over the loaded config.
func (o serveOptions) apply(c *config.Config) error {
	if o.mavlinkHost != "" {
		c.MAVLink.Host = o.mavlinkHost
	}
	if o.mavlinkPort != 0 {
		c.MAVLink.Port = o.mavlinkPort
	}
	if o.port != "" {
		c.Server.Port = o.port
	}
	return c.Validate()
}

func serveCmd() *cobra.Command {
	var opts serveOptions

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Stream vessel positions to websocket, SSE, REST and MQTT clients",
		Long: `Connect to the MAVLink endpoint and serve every extracted vessel position.

Endpoints:
  GET /telemetry          websocket, one JSON text frame per position
  GET /telemetry/events   server-sent events
  GET /api/latest         most recent position and feed status
  GET /api/vessels        every vessel seen since startup
  GET /healthz            link state and subscriber counts

Examples:
  # Connect to a local SITL on the default port
  aisbridge serve

  # Point at another autopilot and listen on 9000
  aisbridge serve --mavlink-host 192.168.1.20 --mavlink-port 5762 --port 9000`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), opts)
		},
	}

	cmd.Flags().StringVar(&opts.mavlinkHost, "mavlink-host", "", "MAVLink TCP host (overrides config)")
	cmd.Flags().IntVar(&opts.mavlinkPort, "mavlink-port", 0, "MAVLink TCP port (overrides config)")
	cmd.Flags().StringVarP(&opts.port, "port", "p", "", "HTTP listen port (overrides config)")

	return cmd
}

func runServe(ctx context.Context, opts serveOptions) error {
	if err := opts.apply(cfg); err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	logger.Info("configuration loaded",
		zap.String("mavlinkHost", cfg.MAVLink.Host),
		zap.Int("mavlinkPort", cfg.MAVLink.Port),
		zap.Duration("retryDelay", cfg.MAVLink.RetryDelay),
		zap.String("port", cfg.Server.Port),
		zap.Bool("recorder", cfg.Recorder.Enabled),
		zap.Bool("mqtt", cfg.MQTT.Enabled),
		zap.Bool("notify", cfg.Notify.Enabled),
	)

	registry := telemetry.NewRegistry()
	publisher := telemetry.NewPublisher(registry, logger)

	// Vessel table and activity monitor
	store := vessels.NewStore(cfg.Activity.StaleAfter)
	registry.Add(store)

	monitor := vessels.NewMonitor(store, notify.New(&cfg.Notify, logger), cfg.Activity.CheckInterval, logger)
	go monitor.Run(ctx)

	// Optional sinks
	if cfg.Recorder.Enabled {
		rec, err := recorder.New(cfg.Recorder, logger)
		if err != nil {
			return fmt.Errorf("starting recorder: %w", err)
		}
		registry.Add(rec)
		defer func() {
			registry.Remove(rec)
			if err := rec.Close(); err != nil {
				logger.Error("recorder close error", zap.Error(err))
			}
		}()
		logger.Info("recording positions", zap.String("path", rec.Path()))
	}

	if cfg.MQTT.Enabled {
		sink := mqttsink.New(cfg.MQTT, logger)
		sink.Connect()
		registry.Add(sink)
		defer func() {
			registry.Remove(sink)
			sink.Close()
		}()
	}

	// Live transports
	hub := ws.NewHub(registry, cfg.WebSocket.SendBuffer, logger)
	go hub.Run(ctx)

	events := sse.NewBroadcaster(registry, store, logger)

	// Upstream link
	link := mavlink.NewManager(mavlink.LinkConfig{
		Host:        cfg.MAVLink.Host,
		Port:        cfg.MAVLink.Port,
		RetryDelay:  cfg.MAVLink.RetryDelay,
		DialTimeout: cfg.MAVLink.DialTimeout,
	}, publisher.OnMessage, logger)

	linkDone := make(chan struct{})
	go func() {
		defer close(linkDone)
		link.Run(ctx)
	}()

	// HTTP server
	srv := server.NewServer(store, link, registry, hub, events, logger)
	router, err := server.NewRouter(srv, server.Streams{
		WebSocket: http.HandlerFunc(hub.HandleWS),
		Events:    http.HandlerFunc(events.HandleSSE),
	}, logger)
	if err != nil {
		cancel()
		<-linkDone
		return fmt.Errorf("creating router: %w", err)
	}

	httpServer := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		// Request contexts end with ctx so event streams close on shutdown.
		BaseContext: func(net.Listener) context.Context { return ctx },
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("starting server", zap.String("addr", httpServer.Addr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	var runErr error
	select {
	case <-ctx.Done():
		logger.Info("shutting down server...")
	case runErr = <-serverErr:
		logger.Error("server error", zap.Error(runErr))
	}

	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", zap.Error(err))
		runErr = errors.Join(runErr, err)
	}

	<-linkDone
	logger.Info("server stopped")
	return runErr
}
