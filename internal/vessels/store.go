// Package vessels keeps the latest known position of every vessel seen on
// the feed and tracks whether the feed is still active.
package vessels

import (
	"sort"
	"sync"
	"time"

	"github.com/dgnsrekt/ais-bridge/internal/telemetry"
)

// Status of the feed as seen by the store.
type Status string

const (
	StatusActive   Status = "active"
	StatusInactive Status = "inactive"
)

// Vessel is the last report for one MMSI.
type Vessel struct {
	telemetry.VesselPosition
	LastSeen time.Time `json:"last_seen"`
}

// Latest summarizes the feed.
type Latest struct {
	Position    *telemetry.VesselPosition `json:"position"`
	Status      Status                    `json:"status"`
	UpdatedAt   *time.Time                `json:"updated_at"`
	VesselCount int                       `json:"vessel_count"`
}

// Store is a telemetry subscriber holding the vessel table.
type Store struct {
	staleAfter time.Duration
	now        func() time.Time

	mu         sync.RWMutex
	vessels    map[uint32]Vessel
	last       *telemetry.VesselPosition
	lastUpdate time.Time
}

// NewStore creates a Store that reports the feed inactive once no record
// arrived for staleAfter.
func NewStore(staleAfter time.Duration) *Store {
	return &Store{
		staleAfter: staleAfter,
		now:        time.Now,
		vessels:    make(map[uint32]Vessel),
	}
}

// ID implements telemetry.Subscriber.
func (s *Store) ID() string { return "vessel-table" }

// Deliver implements telemetry.Subscriber.
func (s *Store) Deliver(pos telemetry.VesselPosition) error {
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	s.vessels[pos.MMSI] = Vessel{VesselPosition: pos, LastSeen: now}
	s.last = &pos
	s.lastUpdate = now
	return nil
}

// Status reports whether a record arrived within the stale window.
func (s *Store) Status() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.statusLocked(s.now())
}

func (s *Store) statusLocked(now time.Time) Status {
	if s.lastUpdate.IsZero() || now.Sub(s.lastUpdate) > s.staleAfter {
		return StatusInactive
	}
	return StatusActive
}

// LastUpdate returns the time of the most recent record, zero if none.
func (s *Store) LastUpdate() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastUpdate
}

// Latest returns the most recent record and feed summary.
func (s *Store) Latest() Latest {
	s.mu.RLock()
	defer s.mu.RUnlock()

	latest := Latest{
		Status:      s.statusLocked(s.now()),
		VesselCount: len(s.vessels),
	}
	if s.last != nil {
		pos := *s.last
		updated := s.lastUpdate
		latest.Position = &pos
		latest.UpdatedAt = &updated
	}
	return latest
}

// Count returns the number of unique MMSIs seen.
func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.vessels)
}

// Get returns the last report for mmsi.
func (s *Store) Get(mmsi uint32) (Vessel, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.vessels[mmsi]
	return v, ok
}

// List returns every known vessel ordered by MMSI.
func (s *Store) List() []Vessel {
	s.mu.RLock()
	list := make([]Vessel, 0, len(s.vessels))
	for _, v := range s.vessels {
		list = append(list, v)
	}
	s.mu.RUnlock()

	sort.Slice(list, func(i, j int) bool { return list[i].MMSI < list[j].MMSI })
	return list
}
