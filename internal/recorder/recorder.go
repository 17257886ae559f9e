// Package recorder writes every published vessel position to a JSONL track
// file, optionally zstd compressed.
package recorder

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/klauspost/compress/zstd"
	"go.uber.org/zap"

	"github.com/dgnsrekt/ais-bridge/internal/telemetry"
)

const queueSize = 1024

var (
	ErrRecorderClosed = errors.New("recorder closed")
	ErrQueueFull      = errors.New("recorder queue full")
)

// Config controls where tracks are written.
type Config struct {
	Enabled   bool   `mapstructure:"enabled"`
	Directory string `mapstructure:"directory"`
	Compress  bool   `mapstructure:"compress"`
}

// Entry is one line of the track file.
type Entry struct {
	Timestamp time.Time                `json:"timestamp"`
	Position  telemetry.VesselPosition `json:"position"`
}

// Recorder is a telemetry subscriber appending entries to a track file.
type Recorder struct {
	path   string
	file   *os.File
	zw     *zstd.Encoder
	buf    *bufio.Writer
	enc    *json.Encoder
	queue  chan Entry
	done   chan struct{}
	now    func() time.Time
	logger *zap.Logger

	mu     sync.RWMutex
	closed bool
}

// New opens a new track file in cfg.Directory and starts the writer.
func New(cfg Config, logger *zap.Logger) (*Recorder, error) {
	if err := os.MkdirAll(cfg.Directory, 0755); err != nil {
		return nil, fmt.Errorf("creating track directory: %w", err)
	}

	name := fmt.Sprintf("ais_%s.jsonl", time.Now().Format("20060102_150405"))
	if cfg.Compress {
		name += ".zst"
	}
	path := filepath.Join(cfg.Directory, name)

	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("opening track file: %w", err)
	}

	r := &Recorder{
		path:   path,
		file:   file,
		queue:  make(chan Entry, queueSize),
		done:   make(chan struct{}),
		now:    time.Now,
		logger: logger,
	}

	var w io.Writer = file
	if cfg.Compress {
		zw, err := zstd.NewWriter(file, zstd.WithEncoderLevel(zstd.SpeedDefault))
		if err != nil {
			_ = file.Close()
			return nil, fmt.Errorf("create zstd encoder: %w", err)
		}
		r.zw = zw
		w = zw
	}
	r.buf = bufio.NewWriter(w)
	r.enc = json.NewEncoder(r.buf)

	go r.run()

	logger.Info("track recorder started",
		zap.String("path", path),
		zap.Bool("compress", cfg.Compress),
	)
	return r, nil
}

// Path returns the track file being written.
func (r *Recorder) Path() string { return r.path }

// ID implements telemetry.Subscriber.
func (r *Recorder) ID() string { return "recorder" }

// Deliver implements telemetry.Subscriber. It never blocks.
func (r *Recorder) Deliver(pos telemetry.VesselPosition) error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.closed {
		return ErrRecorderClosed
	}

	select {
	case r.queue <- Entry{Timestamp: r.now().UTC(), Position: pos}:
		return nil
	default:
		return ErrQueueFull
	}
}

func (r *Recorder) run() {
	defer close(r.done)

	for entry := range r.queue {
		if err := r.enc.Encode(entry); err != nil {
			r.logger.Warn("failed to write track entry", zap.Error(err))
			continue
		}
		// Flush when idle so the file stays current during quiet periods.
		if len(r.queue) == 0 {
			if err := r.buf.Flush(); err != nil {
				r.logger.Warn("failed to flush track file", zap.Error(err))
			}
		}
	}
}

// Close drains pending entries and closes the file.
func (r *Recorder) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	close(r.queue)
	r.mu.Unlock()

	<-r.done

	var errs []error
	if err := r.buf.Flush(); err != nil {
		errs = append(errs, fmt.Errorf("flushing: %w", err))
	}
	if r.zw != nil {
		if err := r.zw.Close(); err != nil {
			errs = append(errs, fmt.Errorf("closing zstd encoder: %w", err))
		}
	}
	if err := r.file.Close(); err != nil {
		errs = append(errs, fmt.Errorf("closing file: %w", err))
	}

	r.logger.Info("track recorder stopped", zap.String("path", r.path))
	return errors.Join(errs...)
}
