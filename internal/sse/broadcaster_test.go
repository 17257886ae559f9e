package sse

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/dgnsrekt/ais-bridge/internal/telemetry"
	"github.com/dgnsrekt/ais-bridge/internal/vessels"
)

type sseEvent struct {
	name string
	id   string
	data string
}

func readEvent(t *testing.T, r *bufio.Reader) sseEvent {
	t.Helper()

	var ev sseEvent
	for {
		line, err := r.ReadString('\n')
		if err != nil {
			t.Fatalf("reading event: %v", err)
		}
		line = strings.TrimRight(line, "\n")
		switch {
		case line == "":
			return ev
		case strings.HasPrefix(line, "event: "):
			ev.name = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "id: "):
			ev.id = strings.TrimPrefix(line, "id: ")
		case strings.HasPrefix(line, "data: "):
			ev.data = strings.TrimPrefix(line, "data: ")
		}
	}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func openStream(t *testing.T, ctx context.Context, url string) *bufio.Reader {
	t.Helper()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		t.Fatal(err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { resp.Body.Close() })

	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("unexpected content type %q", ct)
	}
	return bufio.NewReader(resp.Body)
}

func TestHandleSSE_SnapshotThenPositions(t *testing.T) {
	logger := zap.NewNop()
	registry := telemetry.NewRegistry()
	store := vessels.NewStore(5 * time.Second)
	_ = store.Deliver(telemetry.VesselPosition{MMSI: 111, Latitude: 1.5, Longitude: 2.5})

	b := NewBroadcaster(registry, store, logger)
	if registry.Len() != 1 {
		t.Fatalf("expected broadcaster to register once, got %d", registry.Len())
	}
	server := httptest.NewServer(http.HandlerFunc(b.HandleSSE))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	reader := openStream(t, ctx, server.URL)
	snap := readEvent(t, reader)
	if snap.name != "snapshot" {
		t.Fatalf("expected snapshot event first, got %q", snap.name)
	}
	var snapshot Snapshot
	if err := json.Unmarshal([]byte(snap.data), &snapshot); err != nil {
		t.Fatalf("invalid snapshot: %v", err)
	}
	if len(snapshot.Vessels) != 1 || snapshot.Vessels[0].MMSI != 111 {
		t.Errorf("unexpected snapshot vessels %+v", snapshot.Vessels)
	}

	pub := telemetry.NewPublisher(registry, logger)
	pub.Publish(telemetry.VesselPosition{MMSI: 123456789, Latitude: 37.7749, Longitude: -122.4194})
	pub.Publish(telemetry.VesselPosition{MMSI: 222, Latitude: 0, Longitude: 0})

	first := readEvent(t, reader)
	if first.name != "position" {
		t.Fatalf("expected position event, got %q", first.name)
	}
	if first.data != `{"mmsi":123456789,"latitude":37.7749,"longitude":-122.4194}` {
		t.Errorf("unexpected data %s", first.data)
	}
	if first.id != "1" {
		t.Errorf("expected first id 1, got %s", first.id)
	}
	if second := readEvent(t, reader); second.id != "2" {
		t.Errorf("expected consecutive ids, got %s then %s", first.id, second.id)
	}

	cancel()
	waitFor(t, "disconnect", func() bool { return b.ClientCount() == 0 })
	if registry.Len() != 1 {
		t.Errorf("broadcaster should stay registered, got %d subscribers", registry.Len())
	}
}

func TestHandleSSE_SameIDOnEveryStream(t *testing.T) {
	registry := telemetry.NewRegistry()
	b := NewBroadcaster(registry, vessels.NewStore(time.Second), zap.NewNop())
	server := httptest.NewServer(http.HandlerFunc(b.HandleSSE))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a := openStream(t, ctx, server.URL)
	c := openStream(t, ctx, server.URL)
	readEvent(t, a)
	readEvent(t, c)
	waitFor(t, "two clients", func() bool { return b.ClientCount() == 2 })

	pub := telemetry.NewPublisher(registry, zap.NewNop())
	for mmsi := uint32(1); mmsi <= 3; mmsi++ {
		pub.Publish(telemetry.VesselPosition{MMSI: mmsi})
	}

	for i, want := range []string{"1", "2", "3"} {
		ea, ec := readEvent(t, a), readEvent(t, c)
		if ea.id != want || ec.id != want {
			t.Errorf("record %d: expected id %s on both streams, got %s and %s", i, want, ea.id, ec.id)
		}
		if ea.data != ec.data {
			t.Errorf("record %d: streams disagree: %s vs %s", i, ea.data, ec.data)
		}
	}
}

// publishingSource publishes a record while the snapshot is being taken.
type publishingSource struct {
	pub  *telemetry.Publisher
	once sync.Once
}

func (s *publishingSource) List() []vessels.Vessel {
	s.once.Do(func() {
		s.pub.Publish(telemetry.VesselPosition{MMSI: 555, Latitude: 10, Longitude: 20})
	})
	return nil
}

func TestHandleSSE_RecordDuringSnapshotIsStreamed(t *testing.T) {
	registry := telemetry.NewRegistry()
	source := &publishingSource{pub: telemetry.NewPublisher(registry, zap.NewNop())}
	b := NewBroadcaster(registry, source, zap.NewNop())
	server := httptest.NewServer(http.HandlerFunc(b.HandleSSE))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	reader := openStream(t, ctx, server.URL)
	if snap := readEvent(t, reader); snap.name != "snapshot" {
		t.Fatalf("expected snapshot first, got %q", snap.name)
	}
	ev := readEvent(t, reader)
	if ev.name != "position" || ev.data != `{"mmsi":555,"latitude":10,"longitude":20}` {
		t.Errorf("expected record published during snapshot, got %+v", ev)
	}
}

func TestDeliver_SlowClient(t *testing.T) {
	b := NewBroadcaster(telemetry.NewRegistry(), vessels.NewStore(time.Second), zap.NewNop())
	slow := &sseClient{id: "slow", dataCh: make(chan []byte, 1)}
	fast := &sseClient{id: "fast", dataCh: make(chan []byte, 4)}
	b.addClient(slow)
	b.addClient(fast)

	if err := b.Deliver(telemetry.VesselPosition{MMSI: 1}); err != nil {
		t.Fatalf("first delivery: %v", err)
	}
	if err := b.Deliver(telemetry.VesselPosition{MMSI: 2}); !errors.Is(err, ErrClientSlow) {
		t.Errorf("expected ErrClientSlow, got %v", err)
	}
	if n := len(fast.dataCh); n != 2 {
		t.Errorf("fast client should receive both records, got %d", n)
	}
}

func TestDeliver_NoClients(t *testing.T) {
	b := NewBroadcaster(telemetry.NewRegistry(), vessels.NewStore(time.Second), zap.NewNop())
	if err := b.Deliver(telemetry.VesselPosition{MMSI: 1}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if b.sequence.Load() != 0 {
		t.Error("records with no listener should not consume ids")
	}
}
