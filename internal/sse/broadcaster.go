// Package sse streams vessel positions to server-sent-events subscribers.
package sse

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/dgnsrekt/ais-bridge/internal/telemetry"
	"github.com/dgnsrekt/ais-bridge/internal/vessels"
)

const clientBufferSize = 64

var ErrClientSlow = errors.New("sse client channel full")

// SnapshotSource provides the vessel table sent to new subscribers.
type SnapshotSource interface {
	List() []vessels.Vessel
}

// Snapshot is the first event on every stream.
type Snapshot struct {
	Sequence uint64           `json:"sequence"`
	Vessels  []vessels.Vessel `json:"vessels"`
}

// Broadcaster is a single telemetry subscriber that fans each record out
// to every connected SSE client under one event id.
type Broadcaster struct {
	source SnapshotSource
	logger *zap.Logger

	sequence atomic.Uint64
	mu       sync.RWMutex
	clients  map[*sseClient]bool
}

// sseClient represents a connected SSE subscriber.
type sseClient struct {
	id     string
	dataCh chan []byte
}

// NewBroadcaster creates a broadcaster and registers it in registry.
func NewBroadcaster(registry *telemetry.Registry, source SnapshotSource, logger *zap.Logger) *Broadcaster {
	b := &Broadcaster{
		source:  source,
		logger:  logger,
		clients: make(map[*sseClient]bool),
	}
	registry.Add(b)
	return b
}

// ID implements telemetry.Subscriber.
func (b *Broadcaster) ID() string { return "sse" }

// Deliver implements telemetry.Subscriber. The record gets the next
// sequence number and is queued for every client; clients with a full
// buffer miss it.
func (b *Broadcaster) Deliver(pos telemetry.VesselPosition) error {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if len(b.clients) == 0 {
		return nil
	}

	event, err := formatEvent("position", b.sequence.Add(1), pos)
	if err != nil {
		return err
	}

	var errs []error
	for client := range b.clients {
		select {
		case client.dataCh <- event:
		default:
			errs = append(errs, fmt.Errorf("%w: %s", ErrClientSlow, client.id))
		}
	}
	return errors.Join(errs...)
}

// HandleSSE handles the SSE endpoint for subscribers.
func (b *Broadcaster) HandleSSE(w http.ResponseWriter, r *http.Request) {
	// Check if SSE is supported
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "SSE not supported", http.StatusInternalServerError)
		return
	}

	// Set SSE headers
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("Access-Control-Allow-Origin", "*")

	client := &sseClient{
		id:     uuid.New().String(),
		dataCh: make(chan []byte, clientBufferSize),
	}

	// Join before taking the snapshot so records published meanwhile are
	// queued rather than lost. They may also appear in the snapshot.
	b.addClient(client)
	defer b.removeClient(client)

	seq := b.sequence.Load()
	event, err := formatEvent("snapshot", seq, Snapshot{Sequence: seq, Vessels: b.source.List()})
	if err != nil {
		b.logger.Error("failed to build snapshot", zap.Error(err))
		return
	}
	if _, err := w.Write(event); err != nil {
		return
	}
	flusher.Flush()

	b.logger.Info("sse client connected",
		zap.String("clientID", client.id),
		zap.String("remoteAddr", r.RemoteAddr),
	)

	for {
		select {
		case <-r.Context().Done():
			b.logger.Info("sse client disconnected", zap.String("clientID", client.id))
			return
		case eventData := <-client.dataCh:
			if _, err := w.Write(eventData); err != nil {
				b.logger.Debug("failed to write to client", zap.Error(err))
				return
			}
			flusher.Flush()
		}
	}
}

// ClientCount returns the number of connected SSE clients.
func (b *Broadcaster) ClientCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.clients)
}

func (b *Broadcaster) addClient(client *sseClient) {
	b.mu.Lock()
	b.clients[client] = true
	b.mu.Unlock()
}

func (b *Broadcaster) removeClient(client *sseClient) {
	b.mu.Lock()
	delete(b.clients, client)
	b.mu.Unlock()
}

func formatEvent(eventType string, id uint64, data any) ([]byte, error) {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}

	event := fmt.Sprintf("event: %s\nid: %d\ndata: %s\n\n", eventType, id, jsonData)
	return []byte(event), nil
}
