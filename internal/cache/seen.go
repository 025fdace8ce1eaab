package cache

import (
	"time"

	"github.com/DecentralizedGeo/astral-api/internal/domain/model"
	"github.com/DecentralizedGeo/astral-api/internal/metrics"
)

type seenKey struct {
	chain model.Chain
	uid   string
}

// SeenSet remembers (chain, uid) pairs known to be stored so repeated
// windows skip the existence round trip. Only positive answers are cached:
// a proof never disappears, so a hit is always safe.
type SeenSet struct {
	lru *LRU[seenKey, struct{}]
}

func NewSeenSet(capacity int, ttl time.Duration) *SeenSet {
	return &SeenSet{lru: NewLRU[seenKey, struct{}](capacity, ttl)}
}

func (s *SeenSet) Contains(chain model.Chain, uid string) bool {
	_, ok := s.lru.Get(seenKey{chain, uid})
	if ok {
		metrics.SeenCacheHits.WithLabelValues(chain.String()).Inc()
	} else {
		metrics.SeenCacheMisses.WithLabelValues(chain.String()).Inc()
	}
	return ok
}

func (s *SeenSet) Add(chain model.Chain, uid string) {
	s.lru.Put(seenKey{chain, uid}, struct{}{})
}

func (s *SeenSet) Len() int {
	return s.lru.Len()
}
