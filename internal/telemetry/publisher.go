package telemetry

import (
	"github.com/bluenviron/gomavlib/v2/pkg/message"
	"go.uber.org/zap"
)

// Publisher turns decoded MAVLink messages into VesselPosition records and
// fans them out to every registered subscriber.
type Publisher struct {
	registry *Registry
	logger   *zap.Logger
}

// NewPublisher creates a Publisher broadcasting to registry.
func NewPublisher(registry *Registry, logger *zap.Logger) *Publisher {
	return &Publisher{
		registry: registry,
		logger:   logger,
	}
}

// Registry returns the broadcast set.
func (p *Publisher) Registry() *Registry {
	return p.registry
}

// OnMessage handles one decoded message from the link.
// Anything other than a vessel report is ignored.
func (p *Publisher) OnMessage(msg message.Message) {
	pos, ok := ExtractPosition(msg)
	if !ok {
		return
	}
	p.Publish(pos)
}

// Publish delivers pos to every subscriber. A failing subscriber never
// affects the others and nothing is returned to the caller.
func (p *Publisher) Publish(pos VesselPosition) {
	subs := p.registry.Snapshot()
	if len(subs) == 0 {
		return
	}

	for _, sub := range subs {
		p.deliver(sub, pos)
	}
}

func (p *Publisher) deliver(sub Subscriber, pos VesselPosition) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("subscriber panicked during delivery",
				zap.String("subscriber", sub.ID()),
				zap.Any("panic", r),
			)
		}
	}()

	if err := sub.Deliver(pos); err != nil {
		p.logger.Warn("delivery failed",
			zap.String("subscriber", sub.ID()),
			zap.Uint32("mmsi", pos.MMSI),
			zap.Error(err),
		)
	}
}
