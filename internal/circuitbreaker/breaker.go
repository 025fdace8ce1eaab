package circuitbreaker

import (
	"errors"
	"sync"
	"time"

	"github.com/DecentralizedGeo/astral-api/internal/metrics"
)

var ErrCircuitOpen = errors.New("circuit breaker is open")

type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

var stateNames = map[State]string{
	StateClosed:   "closed",
	StateOpen:     "open",
	StateHalfOpen: "half-open",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return "unknown"
}

// Config tunes a Breaker. Zero values take the defaults noted per field.
type Config struct {
	// Name labels the state gauge; empty skips the metric.
	Name string
	// FailureThreshold consecutive failures open the circuit. Default 5.
	FailureThreshold int
	// SuccessThreshold half-open successes close it again. Default 1.
	SuccessThreshold int
	// OpenTimeout is the wait before a half-open probe. Default 30s.
	OpenTimeout   time.Duration
	OnStateChange func(name string, from, to State)
	Now           func() time.Time
}

func (c Config) withDefaults() Config {
	if c.FailureThreshold <= 0 {
		c.FailureThreshold = 5
	}
	if c.SuccessThreshold <= 0 {
		c.SuccessThreshold = 1
	}
	if c.OpenTimeout <= 0 {
		c.OpenTimeout = 30 * time.Second
	}
	if c.Now == nil {
		c.Now = time.Now
	}
	return c
}

// Breaker guards one attestation source. It opens after a run of
// consecutive failures and lets a probe through once OpenTimeout passes.
type Breaker struct {
	cfg Config

	mu        sync.Mutex
	state     State
	failures  int
	successes int
	openedAt  time.Time
}

func New(cfg Config) *Breaker {
	b := &Breaker{cfg: cfg.withDefaults()}
	b.publish(StateClosed)
	return b
}

// Allow reports ErrCircuitOpen until the open timeout has elapsed.
func (b *Breaker) Allow() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.current() == StateOpen {
		return ErrCircuitOpen
	}
	return nil
}

// Execute runs fn when allowed. Errors for which isFailure returns false
// count as successes; a nil isFailure counts every error.
func (b *Breaker) Execute(fn func() error, isFailure func(error) bool) error {
	if err := b.Allow(); err != nil {
		return err
	}
	err := fn()
	if err != nil && (isFailure == nil || isFailure(err)) {
		b.RecordFailure()
	} else {
		b.RecordSuccess()
	}
	return err
}

func (b *Breaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures = 0
	if b.state != StateHalfOpen {
		return
	}
	b.successes++
	if b.successes >= b.cfg.SuccessThreshold {
		b.moveTo(StateClosed)
	}
}

func (b *Breaker) RecordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures++
	b.successes = 0
	if b.state == StateHalfOpen || (b.state == StateClosed && b.failures >= b.cfg.FailureThreshold) {
		b.openedAt = b.cfg.Now()
		b.moveTo(StateOpen)
	}
}

// Current returns the state, moving open to half-open once the timeout passed.
func (b *Breaker) Current() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.current()
}

func (b *Breaker) current() State {
	if b.state == StateOpen && b.cfg.Now().Sub(b.openedAt) >= b.cfg.OpenTimeout {
		b.moveTo(StateHalfOpen)
	}
	return b.state
}

// moveTo must be called with mu held.
func (b *Breaker) moveTo(to State) {
	from := b.state
	if from == to {
		return
	}
	b.state = to
	b.successes = 0
	if to == StateClosed {
		b.failures = 0
	}
	b.publish(to)
	if b.cfg.OnStateChange != nil {
		b.cfg.OnStateChange(b.cfg.Name, from, to)
	}
}

func (b *Breaker) publish(s State) {
	if b.cfg.Name != "" {
		metrics.SourceCircuitState.WithLabelValues(b.cfg.Name).Set(float64(s))
	}
}
