// Package mavlink keeps a telemetry link to an autopilot open and streams
// decoded MAVLink messages to a handler.
package mavlink

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/bluenviron/gomavlib/v2/pkg/message"
	"go.uber.org/zap"
)

// State is the lifecycle of the upstream connection.
type State int32

const (
	StateDisconnected State = iota
	StateConnecting
	StateStreaming
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateStreaming:
		return "streaming"
	default:
		return "unknown"
	}
}

// Handler receives every decoded message, in stream order.
type Handler func(msg message.Message)

// DialFunc opens the upstream connection.
type DialFunc func(ctx context.Context, network, address string) (net.Conn, error)

// LinkConfig is the upstream endpoint and retry policy.
type LinkConfig struct {
	Host        string
	Port        int
	RetryDelay  time.Duration
	DialTimeout time.Duration
}

// Option customizes a Manager.
type Option func(*Manager)

// WithDialFunc replaces the TCP dialer.
func WithDialFunc(dial DialFunc) Option {
	return func(m *Manager) { m.dial = dial }
}

// WithDecoder replaces the MAVLink frame decoder.
func WithDecoder(newDecoder DecoderFunc) Option {
	return func(m *Manager) { m.newDecoder = newDecoder }
}

// Manager owns the upstream connection. It reconnects forever until its
// context is cancelled.
type Manager struct {
	addr       string
	retryDelay time.Duration
	dial       DialFunc
	newDecoder DecoderFunc
	handler    Handler
	state      atomic.Int32
	logger     *zap.Logger
}

// NewManager creates a Manager that hands decoded messages to handler.
func NewManager(cfg LinkConfig, handler Handler, logger *zap.Logger, opts ...Option) *Manager {
	dialer := &net.Dialer{Timeout: cfg.DialTimeout}

	m := &Manager{
		addr:       net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port)),
		retryDelay: cfg.RetryDelay,
		dial:       dialer.DialContext,
		newDecoder: NewFrameDecoder,
		handler:    handler,
		logger:     logger,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Run connects, streams and reconnects until ctx is cancelled.
// Connection and decode errors are logged and retried, never returned.
func (m *Manager) Run(ctx context.Context) {
	m.logger.Info("telemetry link starting",
		zap.String("addr", m.addr),
		zap.Duration("retryDelay", m.retryDelay),
	)

	for {
		err := m.stream(ctx)
		m.setState(StateDisconnected)

		if ctx.Err() != nil {
			m.logger.Info("telemetry link stopping", zap.String("addr", m.addr))
			return
		}

		m.logger.Warn("telemetry link down, retrying",
			zap.String("addr", m.addr),
			zap.Duration("retryIn", m.retryDelay),
			zap.Error(err),
		)

		select {
		case <-ctx.Done():
			m.logger.Info("telemetry link stopping", zap.String("addr", m.addr))
			return
		case <-time.After(m.retryDelay):
		}
	}
}

// stream runs one connection until it fails. It always returns a non-nil error.
func (m *Manager) stream(ctx context.Context) error {
	m.setState(StateConnecting)

	conn, err := m.dial(ctx, "tcp", m.addr)
	if err != nil {
		return fmt.Errorf("connecting: %w", err)
	}
	defer func() { _ = conn.Close() }()

	// Closing the connection unblocks a pending Read on cancellation.
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	dec, err := m.newDecoder(conn)
	if err != nil {
		return fmt.Errorf("creating decoder: %w", err)
	}

	m.setState(StateStreaming)
	m.logger.Info("telemetry link connected", zap.String("addr", m.addr))

	for {
		msg, err := dec.Read()
		if err != nil {
			return fmt.Errorf("reading: %w", err)
		}
		if msg != nil {
			m.handler(msg)
		}
	}
}

func (m *Manager) setState(s State) {
	prev := State(m.state.Swap(int32(s)))
	if prev != s {
		m.logger.Debug("telemetry link state",
			zap.String("from", prev.String()),
			zap.String("to", s.String()),
		)
	}
}

// State reports the current connection state.
func (m *Manager) State() State {
	return State(m.state.Load())
}

// Addr is the upstream host:port.
func (m *Manager) Addr() string { return m.addr }
