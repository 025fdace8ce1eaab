// Package memory provides in-process stores for tests and for running the
// engine without a database.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/DecentralizedGeo/astral-api/internal/domain/model"
	"github.com/DecentralizedGeo/astral-api/internal/store"
)

type CheckpointStore struct {
	mu      sync.RWMutex
	entries map[model.Chain]model.ChainCheckpoint
	now     func() time.Time
}

var _ store.CheckpointStore = (*CheckpointStore)(nil)

func NewCheckpointStore() *CheckpointStore {
	return &CheckpointStore{entries: make(map[model.Chain]model.ChainCheckpoint), now: time.Now}
}

func (s *CheckpointStore) Get(_ context.Context, chain model.Chain) (int64, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cp, ok := s.entries[chain]
	return cp.LastProcessedUnix, ok, nil
}

func (s *CheckpointStore) Set(_ context.Context, chain model.Chain, ts int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if cur, ok := s.entries[chain]; ok && cur.LastProcessedUnix >= ts {
		return nil
	}
	s.entries[chain] = model.ChainCheckpoint{Chain: chain, LastProcessedUnix: ts, UpdatedAt: s.now()}
	return nil
}

func (s *CheckpointStore) List(_ context.Context) ([]model.ChainCheckpoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.ChainCheckpoint, 0, len(s.entries))
	for _, cp := range s.entries {
		out = append(out, cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Chain < out[j].Chain })
	return out, nil
}

type proofKey struct {
	chain model.Chain
	uid   string
}

type RecordStore struct {
	mu     sync.RWMutex
	proofs map[proofKey]model.NormalizedProof
	now    func() time.Time
}

var _ store.RecordStore = (*RecordStore)(nil)

func NewRecordStore() *RecordStore {
	return &RecordStore{proofs: make(map[proofKey]model.NormalizedProof), now: time.Now}
}

func (s *RecordStore) Exists(_ context.Context, chain model.Chain, uid string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.proofs[proofKey{chain, uid}]
	return ok, nil
}

func (s *RecordStore) Create(_ context.Context, p *model.NormalizedProof) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := proofKey{p.Chain, p.UID}
	if _, ok := s.proofs[k]; ok {
		return store.ErrDuplicateProof
	}
	s.proofs[k] = *p
	return nil
}

func (s *RecordStore) BatchSetRevoked(_ context.Context, chain model.Chain, uids []string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for _, uid := range uids {
		k := proofKey{chain, uid}
		p, ok := s.proofs[k]
		if !ok || p.Revoked {
			continue
		}
		p.Revoked = true
		p.LastUpdatedAt = s.now()
		s.proofs[k] = p
		n++
	}
	return n, nil
}

func (s *RecordStore) ListActive(_ context.Context, chain model.Chain, limit int) ([]model.NormalizedProof, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.NormalizedProof, 0)
	for k, p := range s.proofs {
		if k.chain == chain && !p.Revoked {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].ObservedAt.Equal(out[j].ObservedAt) {
			return out[i].ObservedAt.Before(out[j].ObservedAt)
		}
		return out[i].UID < out[j].UID
	})
	if limit < 0 {
		limit = 0
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Get returns a copy of the stored proof.
func (s *RecordStore) Get(chain model.Chain, uid string) (model.NormalizedProof, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.proofs[proofKey{chain, uid}]
	return p, ok
}

// Len returns the number of stored proofs across all chains.
func (s *RecordStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.proofs)
}
