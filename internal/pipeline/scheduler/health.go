package scheduler

import (
	"context"
	"log/slog"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/DecentralizedGeo/astral-api/internal/alert"
	"github.com/DecentralizedGeo/astral-api/internal/domain/model"
	"github.com/DecentralizedGeo/astral-api/internal/metrics"
)

// HealthStatus represents the sync health of one chain.
type HealthStatus string

const (
	HealthStatusUnknown   HealthStatus = "UNKNOWN"
	HealthStatusHealthy   HealthStatus = "HEALTHY"
	HealthStatusDegraded  HealthStatus = "DEGRADED"
	HealthStatusUnhealthy HealthStatus = "UNHEALTHY"

	// DefaultUnhealthyThreshold is the number of consecutive failed passes
	// before a chain is considered unhealthy.
	DefaultUnhealthyThreshold = 5

	// DefaultDegradedLatencyThreshold is the P95 pass latency above which a
	// chain is considered degraded.
	DefaultDegradedLatencyThreshold = 60 * time.Second

	latencyWindowSize = 10
)

func (s HealthStatus) gauge() float64 {
	switch s {
	case HealthStatusHealthy:
		return 1
	case HealthStatusDegraded:
		return 0.5
	default:
		return 0
	}
}

// ChainHealth tracks consecutive failures and recent pass latencies for one chain.
type ChainHealth struct {
	mu                       sync.RWMutex
	chain                    model.Chain
	status                   HealthStatus
	consecutiveFailures      int
	lastSuccessAt            *time.Time
	lastFailureAt            *time.Time
	lastError                string
	unhealthyThreshold       int
	recentLatencies          []time.Duration
	degradedLatencyThreshold time.Duration
}

func NewChainHealth(chain model.Chain, unhealthyThreshold int) *ChainHealth {
	if unhealthyThreshold <= 0 {
		unhealthyThreshold = DefaultUnhealthyThreshold
	}
	return &ChainHealth{
		chain:                    chain,
		status:                   HealthStatusUnknown,
		unhealthyThreshold:       unhealthyThreshold,
		recentLatencies:          make([]time.Duration, 0, latencyWindowSize),
		degradedLatencyThreshold: DefaultDegradedLatencyThreshold,
	}
}

// RecordSuccess records a successful pass and reports whether it ended an
// unhealthy period.
func (h *ChainHealth) RecordSuccess(latency time.Duration) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	now := time.Now()
	wasUnhealthy := h.status == HealthStatusUnhealthy
	h.pushLatency(latency)
	h.consecutiveFailures = 0
	h.lastSuccessAt = &now
	h.lastError = ""
	if h.isLatencyDegraded() {
		h.status = HealthStatusDegraded
	} else {
		h.status = HealthStatusHealthy
	}
	return wasUnhealthy
}

// RecordFailure records a failed pass. Returns true if the chain became
// unhealthy on this call.
func (h *ChainHealth) RecordFailure(err error) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	now := time.Now()
	h.consecutiveFailures++
	h.lastFailureAt = &now
	if err != nil {
		h.lastError = err.Error()
	}
	if h.consecutiveFailures >= h.unhealthyThreshold && h.status != HealthStatusUnhealthy {
		h.status = HealthStatusUnhealthy
		return true
	}
	if h.status == HealthStatusUnknown || h.status == HealthStatusHealthy {
		h.status = HealthStatusDegraded
	}
	return false
}

// Must be called with mu held.
func (h *ChainHealth) pushLatency(d time.Duration) {
	if len(h.recentLatencies) >= latencyWindowSize {
		h.recentLatencies = h.recentLatencies[1:]
	}
	h.recentLatencies = append(h.recentLatencies, d)
}

// Must be called with mu held.
func (h *ChainHealth) isLatencyDegraded() bool {
	n := len(h.recentLatencies)
	if n < 2 {
		return false
	}
	sorted := append([]time.Duration(nil), h.recentLatencies...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	idx := (95*n - 1) / 100
	return sorted[idx] > h.degradedLatencyThreshold
}

func (h *ChainHealth) Snapshot() HealthSnapshot {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return HealthSnapshot{
		Chain:               h.chain,
		Status:              h.status,
		ConsecutiveFailures: h.consecutiveFailures,
		LastSuccessAt:       copyTime(h.lastSuccessAt),
		LastFailureAt:       copyTime(h.lastFailureAt),
		LastError:           h.lastError,
	}
}

// HealthSnapshot is a point-in-time view of one chain's health.
type HealthSnapshot struct {
	Chain               model.Chain  `json:"chain"`
	Status              HealthStatus `json:"status"`
	ConsecutiveFailures int          `json:"consecutive_failures"`
	LastSuccessAt       *time.Time   `json:"last_success_at,omitempty"`
	LastFailureAt       *time.Time   `json:"last_failure_at,omitempty"`
	LastError           string       `json:"last_error,omitempty"`
}

// HealthMonitor keeps a ChainHealth per chain and alerts on transitions into
// and out of UNHEALTHY.
type HealthMonitor struct {
	alerter   alert.Alerter
	threshold int
	logger    *slog.Logger

	mu     sync.Mutex
	chains map[model.Chain]*ChainHealth
}

func NewHealthMonitor(alerter alert.Alerter, unhealthyThreshold int, logger *slog.Logger) *HealthMonitor {
	if alerter == nil {
		alerter = &alert.NoopAlerter{}
	}
	return &HealthMonitor{
		alerter:   alerter,
		threshold: unhealthyThreshold,
		logger:    logger.With("component", "health"),
		chains:    make(map[model.Chain]*ChainHealth),
	}
}

func (m *HealthMonitor) get(c model.Chain) *ChainHealth {
	m.mu.Lock()
	defer m.mu.Unlock()
	h, ok := m.chains[c]
	if !ok {
		h = NewChainHealth(c, m.threshold)
		m.chains[c] = h
	}
	return h
}

// Observe records the outcome of one ingestion pass for c.
func (m *HealthMonitor) Observe(ctx context.Context, c model.Chain, latency time.Duration, err error) {
	h := m.get(c)
	label := c.String()

	if err == nil {
		if h.RecordSuccess(latency) {
			m.logger.Info("chain recovered", "chain", c)
			m.send(ctx, alert.Alert{
				Type:    alert.AlertTypeRecovery,
				Chain:   label,
				Title:   "Chain sync recovered",
				Message: "ingestion pass succeeded after repeated failures",
			})
		}
	} else if h.RecordFailure(err) {
		snap := h.Snapshot()
		m.logger.Error("chain unhealthy",
			"chain", c,
			"consecutive_failures", snap.ConsecutiveFailures,
			"error", err,
		)
		m.send(ctx, alert.Alert{
			Type:    alert.AlertTypeUnhealthy,
			Chain:   label,
			Title:   "Chain sync unhealthy",
			Message: strconv.Itoa(snap.ConsecutiveFailures) + " consecutive ingestion failures",
			Fields: map[string]string{
				"last_error": snap.LastError,
			},
		})
	}

	snap := h.Snapshot()
	metrics.PipelineHealthStatus.WithLabelValues(label).Set(snap.Status.gauge())
	metrics.PipelineConsecutiveFailures.WithLabelValues(label).Set(float64(snap.ConsecutiveFailures))
}

func (m *HealthMonitor) send(ctx context.Context, a alert.Alert) {
	if err := m.alerter.Send(ctx, a); err != nil {
		m.logger.Warn("health alert failed", "chain", a.Chain, "type", a.Type, "error", err)
	}
}

// Snapshot returns every tracked chain, sorted by name.
func (m *HealthMonitor) Snapshot() []HealthSnapshot {
	m.mu.Lock()
	chains := make([]*ChainHealth, 0, len(m.chains))
	for _, h := range m.chains {
		chains = append(chains, h)
	}
	m.mu.Unlock()

	out := make([]HealthSnapshot, 0, len(chains))
	for _, h := range chains {
		out = append(out, h.Snapshot())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Chain < out[j].Chain })
	return out
}

// Healthy reports whether no tracked chain is UNHEALTHY.
func (m *HealthMonitor) Healthy() bool {
	for _, s := range m.Snapshot() {
		if s.Status == HealthStatusUnhealthy {
			return false
		}
	}
	return true
}
