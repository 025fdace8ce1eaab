package alert

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/DecentralizedGeo/astral-api/internal/metrics"
)

// MultiAlerter delivers each alert to every channel. A repeat of the same
// type for the same chain inside the cooldown window is dropped.
type MultiAlerter struct {
	channels []Alerter
	cooldown time.Duration
	logger   *slog.Logger
	now      func() time.Time

	mu       sync.Mutex
	lastSent map[string]time.Time
}

func NewMultiAlerter(cooldown time.Duration, logger *slog.Logger, channels ...Alerter) *MultiAlerter {
	return &MultiAlerter{
		channels: channels,
		cooldown: cooldown,
		logger:   logger.With("component", "alerter"),
		now:      time.Now,
		lastSent: make(map[string]time.Time),
	}
}

func (m *MultiAlerter) Len() int { return len(m.channels) }

// admit records key as sent unless it was sent within the cooldown.
func (m *MultiAlerter) admit(key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	if last, seen := m.lastSent[key]; seen && now.Sub(last) < m.cooldown {
		return false
	}
	m.lastSent[key] = now
	return true
}

// Send tries every channel and joins their failures.
func (m *MultiAlerter) Send(ctx context.Context, a Alert) error {
	key := string(a.Type) + ":" + a.Chain
	if !m.admit(key) {
		m.logger.Debug("alert suppressed by cooldown", "key", key)
		for _, ch := range m.channels {
			metrics.AlertsCooldownSkipped.WithLabelValues(channelName(ch), string(a.Type)).Inc()
		}
		return nil
	}

	var errs []error
	for _, ch := range m.channels {
		name := channelName(ch)
		if err := ch.Send(ctx, a); err != nil {
			m.logger.Warn("alert send failed", "channel", name, "type", a.Type, "chain", a.Chain, "error", err)
			errs = append(errs, err)
			continue
		}
		metrics.AlertsSentTotal.WithLabelValues(name, string(a.Type)).Inc()
	}
	return errors.Join(errs...)
}

func channelName(a Alerter) string {
	if n, ok := a.(interface{ Name() string }); ok {
		return n.Name()
	}
	return "unknown"
}
