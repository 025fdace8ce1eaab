package scheduler

import (
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/DecentralizedGeo/astral-api/internal/domain/model"
	"github.com/google/uuid"
)

const DefaultErrorRingSize = 100

// ErrorEntry is one failure kept in the error ring.
type ErrorEntry struct {
	ID      string      `json:"id"`
	RunID   string      `json:"run_id,omitempty"`
	At      time.Time   `json:"at"`
	Chain   model.Chain `json:"chain"`
	Stage   string      `json:"stage"`
	Message string      `json:"message"`
}

// ChainStats is the per-chain slice of a snapshot.
type ChainStats struct {
	LastRunAt     *time.Time `json:"last_run_at,omitempty"`
	LastIngested  int        `json:"last_ingested"`
	TotalIngested int64      `json:"total_ingested"`
	FailedPasses  int64      `json:"failed_passes"`
	LastRevoked   int64      `json:"last_revoked"`
	TotalRevoked  int64      `json:"total_revoked"`
	LastError     string     `json:"last_error,omitempty"`
	LastErrorAt   *time.Time `json:"last_error_at,omitempty"`
}

// StatsSnapshot is an immutable copy of the run statistics.
type StatsSnapshot struct {
	Running            bool                       `json:"running"`
	StartedAt          *time.Time                 `json:"started_at,omitempty"`
	IngestionRuns      int64                      `json:"ingestion_runs"`
	RevocationRuns     int64                      `json:"revocation_runs"`
	IngestionInFlight  bool                       `json:"ingestion_in_flight"`
	RevocationInFlight bool                       `json:"revocation_in_flight"`
	LastIngestionRunID string                     `json:"last_ingestion_run_id,omitempty"`
	LastIngestionAt    *time.Time                 `json:"last_ingestion_at,omitempty"`
	LastRevocationAt   *time.Time                 `json:"last_revocation_at,omitempty"`
	TotalIngested      int64                      `json:"total_ingested"`
	TotalRevoked       int64                      `json:"total_revoked"`
	Chains             map[model.Chain]ChainStats `json:"chains"`
	Errors             []ErrorEntry               `json:"errors"`
}

// Stats accumulates run statistics for the life of the process. It also
// serves as the error sink for the ingester and the reconciler.
type Stats struct {
	mu  sync.Mutex
	now func() time.Time

	startedAt        *time.Time
	ingestionRuns    int64
	revocationRuns   int64
	lastIngestionID  string
	lastIngestionAt  *time.Time
	lastRevocationAt *time.Time
	totalIngested    int64
	totalRevoked     int64
	chains           map[model.Chain]*ChainStats

	// ring buffer; next is the slot the following entry overwrites
	ring []ErrorEntry
	next int
	full bool

	ingestionRun  string
	revocationRun string
}

func NewStats(ringSize int) *Stats {
	if ringSize <= 0 {
		ringSize = DefaultErrorRingSize
	}
	return &Stats{
		now:    time.Now,
		chains: make(map[model.Chain]*ChainStats),
		ring:   make([]ErrorEntry, ringSize),
	}
}

func (s *Stats) chain(c model.Chain) *ChainStats {
	cs, ok := s.chains[c]
	if !ok {
		cs = &ChainStats{}
		s.chains[c] = cs
	}
	return cs
}

// RecordError appends a failure to the ring, evicting the oldest entry when full.
func (s *Stats) RecordError(c model.Chain, stage string, err error) {
	if err == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.appendError(c, stage, err.Error())
}

func (s *Stats) appendError(c model.Chain, stage, msg string) {
	at := s.now().UTC()
	s.ring[s.next] = ErrorEntry{
		ID:      uuid.NewString(),
		RunID:   s.runFor(stage),
		At:      at,
		Chain:   c,
		Stage:   stage,
		Message: msg,
	}
	s.next = (s.next + 1) % len(s.ring)
	if s.next == 0 {
		s.full = true
	}
	if c != "" {
		cs := s.chain(c)
		cs.LastError = msg
		cs.LastErrorAt = &at
	}
}

// runFor attributes an error stage to the open run of its kind.
func (s *Stats) runFor(stage string) string {
	if strings.HasPrefix(stage, "revocation") {
		return s.revocationRun
	}
	return s.ingestionRun
}

func (s *Stats) markStarted() {
	s.mu.Lock()
	defer s.mu.Unlock()
	at := s.now().UTC()
	s.startedAt = &at
}

// beginIngestion opens a new ingestion run and returns its id.
func (s *Stats) beginIngestion() string {
	id := uuid.NewString()
	s.mu.Lock()
	defer s.mu.Unlock()
	at := s.now().UTC()
	s.ingestionRuns++
	s.lastIngestionID = id
	s.lastIngestionAt = &at
	s.ingestionRun = id
	return id
}

func (s *Stats) beginRevocation() string {
	id := uuid.NewString()
	s.mu.Lock()
	defer s.mu.Unlock()
	at := s.now().UTC()
	s.revocationRuns++
	s.lastRevocationAt = &at
	s.revocationRun = id
	return id
}

func (s *Stats) recordIngestion(c model.Chain, stored int, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	at := s.now().UTC()
	cs := s.chain(c)
	cs.LastRunAt = &at
	cs.LastIngested = stored
	cs.TotalIngested += int64(stored)
	s.totalIngested += int64(stored)
	// the failure itself reached the ring through RecordError
	if err != nil {
		cs.FailedPasses++
		cs.LastError = err.Error()
		cs.LastErrorAt = &at
	}
}

func (s *Stats) recordRevocation(c model.Chain, revoked int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cs := s.chain(c)
	cs.LastRevoked = revoked
	cs.TotalRevoked += revoked
	s.totalRevoked += revoked
}

// errors returns ring entries oldest first. Caller holds mu.
func (s *Stats) errors() []ErrorEntry {
	if !s.full {
		return append([]ErrorEntry(nil), s.ring[:s.next]...)
	}
	out := make([]ErrorEntry, 0, len(s.ring))
	out = append(out, s.ring[s.next:]...)
	return append(out, s.ring[:s.next]...)
}

// Snapshot returns a copy that later updates never touch.
func (s *Stats) Snapshot() StatsSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := StatsSnapshot{
		StartedAt:          copyTime(s.startedAt),
		IngestionRuns:      s.ingestionRuns,
		RevocationRuns:     s.revocationRuns,
		LastIngestionRunID: s.lastIngestionID,
		LastIngestionAt:    copyTime(s.lastIngestionAt),
		LastRevocationAt:   copyTime(s.lastRevocationAt),
		TotalIngested:      s.totalIngested,
		TotalRevoked:       s.totalRevoked,
		Chains:             make(map[model.Chain]ChainStats, len(s.chains)),
		Errors:             s.errors(),
	}
	for c, cs := range s.chains {
		cp := *cs
		cp.LastRunAt = copyTime(cs.LastRunAt)
		cp.LastErrorAt = copyTime(cs.LastErrorAt)
		snap.Chains[c] = cp
	}
	return snap
}

// ChainNames lists the chains that have stats, sorted.
func (snap StatsSnapshot) ChainNames() []model.Chain {
	out := make([]model.Chain, 0, len(snap.Chains))
	for c := range snap.Chains {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
