package main

import (
	"encoding/json"
	"io"
	"sync"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/dgnsrekt/ais-bridge/internal/mavlink"
	"github.com/dgnsrekt/ais-bridge/internal/telemetry"
)

func tailCmd() *cobra.Command {
	var opts serveOptions

	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Print vessel positions from the MAVLink link as JSON lines",
		Long: `Connect to the MAVLink endpoint and print every extracted vessel position
to stdout, one JSON object per line. Nothing is served.

Examples:
  aisbridge tail --mavlink-host 127.0.0.1 --mavlink-port 5760`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := opts.apply(cfg); err != nil {
				return err
			}

			registry := telemetry.NewRegistry()
			registry.Add(newLineWriter(cmd.OutOrStdout()))
			publisher := telemetry.NewPublisher(registry, logger)

			link := mavlink.NewManager(mavlink.LinkConfig{
				Host:        cfg.MAVLink.Host,
				Port:        cfg.MAVLink.Port,
				RetryDelay:  cfg.MAVLink.RetryDelay,
				DialTimeout: cfg.MAVLink.DialTimeout,
			}, publisher.OnMessage, logger)

			logger.Info("tailing vessel positions", zap.String("addr", link.Addr()))
			link.Run(cmd.Context())
			return nil
		},
	}

	cmd.Flags().StringVar(&opts.mavlinkHost, "mavlink-host", "", "MAVLink TCP host (overrides config)")
	cmd.Flags().IntVar(&opts.mavlinkPort, "mavlink-port", 0, "MAVLink TCP port (overrides config)")

	return cmd
}

// lineWriter is a subscriber that writes each position as a JSON line.
type lineWriter struct {
	mu  sync.Mutex
	enc *json.Encoder
}

func newLineWriter(w io.Writer) *lineWriter {
	return &lineWriter{enc: json.NewEncoder(w)}
}

func (l *lineWriter) ID() string { return "stdout" }

func (l *lineWriter) Deliver(pos telemetry.VesselPosition) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.enc.Encode(pos)
}
