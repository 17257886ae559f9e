package vessels

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/dgnsrekt/ais-bridge/internal/notify"
)

// Monitor watches the store and reports feed active/inactive transitions.
// A transition whose notification was not sent is retried on later ticks
// until the notifier accepts the current status.
type Monitor struct {
	store    *Store
	notifier notify.Notifier
	interval time.Duration
	logger   *zap.Logger

	status   Status // last observed
	reported Status // last successfully notified
}

// NewMonitor creates a Monitor checking the store every interval.
func NewMonitor(store *Store, notifier notify.Notifier, interval time.Duration, logger *zap.Logger) *Monitor {
	return &Monitor{
		store:    store,
		notifier: notifier,
		interval: interval,
		logger:   logger,
		status:   StatusInactive,
		reported: StatusInactive,
	}
}

// Run checks the feed until ctx is cancelled.
func (m *Monitor) Run(ctx context.Context) {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.check(ctx)
		}
	}
}

func (m *Monitor) check(ctx context.Context) {
	current := m.store.Status()
	if current != m.status {
		m.status = current
		m.logTransition(current)
	}
	if current == m.reported {
		return
	}

	err := m.notify(ctx, current)
	switch {
	case err == nil:
		m.reported = current
	case errors.Is(err, notify.ErrRateLimited):
		m.logger.Debug("feed notification deferred", zap.String("status", string(current)))
	default:
		m.logger.Warn("feed notification failed",
			zap.String("status", string(current)),
			zap.Error(err),
		)
	}
}

func (m *Monitor) notify(ctx context.Context, status Status) error {
	if status == StatusActive {
		return m.notifier.SendFeedActive(ctx, m.store.Count())
	}
	lastSeen := m.store.LastUpdate()
	return m.notifier.SendFeedInactive(ctx, lastSeen, m.store.now().Sub(lastSeen))
}

func (m *Monitor) logTransition(status Status) {
	if status == StatusActive {
		m.logger.Info("vessel feed active", zap.Int("vessels", m.store.Count()))
		return
	}
	lastSeen := m.store.LastUpdate()
	m.logger.Warn("vessel feed inactive",
		zap.Time("lastSeen", lastSeen),
		zap.Duration("silence", m.store.now().Sub(lastSeen)),
	)
}
