package telemetry

import "sync"

// Subscriber is a broadcast target. Deliver must not block the caller:
// implementations buffer or drop instead of waiting on a slow consumer.
// ID must be unique among registered subscribers.
type Subscriber interface {
	ID() string
	Deliver(pos VesselPosition) error
}

// Registry is the set of subscribers that receive every published record.
// Membership is keyed by Subscriber.ID. It is safe for concurrent use.
type Registry struct {
	mu          sync.RWMutex
	subscribers map[string]Subscriber
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		subscribers: make(map[string]Subscriber),
	}
}

// Add registers sub, replacing any subscriber with the same ID.
func (r *Registry) Add(sub Subscriber) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.subscribers[sub.ID()] = sub
}

// Remove deregisters the subscriber with sub's ID. Removing an unknown
// subscriber is a no-op.
func (r *Registry) Remove(sub Subscriber) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.subscribers, sub.ID())
}

// Len returns the number of registered subscribers.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.subscribers)
}

// Snapshot returns a copy of the current membership.
func (r *Registry) Snapshot() []Subscriber {
	r.mu.RLock()
	defer r.mu.RUnlock()

	subs := make([]Subscriber, 0, len(r.subscribers))
	for _, sub := range r.subscribers {
		subs = append(subs, sub)
	}
	return subs
}
