package scheduler

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/DecentralizedGeo/astral-api/internal/domain/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStats_ErrorRingEvictsOldest(t *testing.T) {
	s := NewStats(3)
	for i := 0; i < 5; i++ {
		s.RecordError(model.ChainBase, "fetch", fmt.Errorf("err %d", i))
	}

	errs := s.Snapshot().Errors
	require.Len(t, errs, 3)
	assert.Equal(t, "err 2", errs[0].Message)
	assert.Equal(t, "err 3", errs[1].Message)
	assert.Equal(t, "err 4", errs[2].Message)
	for _, e := range errs {
		assert.NotEmpty(t, e.ID)
		assert.Equal(t, model.ChainBase, e.Chain)
	}
}

func TestStats_ErrorRingPartial(t *testing.T) {
	s := NewStats(0)
	assert.Len(t, s.ring, DefaultErrorRingSize)

	s.RecordError(model.ChainCelo, "decode", errors.New("bad payload"))
	s.RecordError(model.ChainCelo, "decode", nil)

	snap := s.Snapshot()
	require.Len(t, snap.Errors, 1)
	assert.Equal(t, "decode", snap.Errors[0].Stage)
	assert.Equal(t, "bad payload", snap.Chains[model.ChainCelo].LastError)
}

func TestStats_ErrorsCarryRunID(t *testing.T) {
	s := NewStats(10)
	ingestRun := s.beginIngestion()
	revokeRun := s.beginRevocation()

	s.RecordError(model.ChainBase, "fetch", errors.New("a"))
	s.RecordError(model.ChainBase, "revocation_push", errors.New("b"))

	errs := s.Snapshot().Errors
	require.Len(t, errs, 2)
	assert.Equal(t, ingestRun, errs[0].RunID)
	assert.Equal(t, revokeRun, errs[1].RunID)
	assert.NotEqual(t, ingestRun, revokeRun)
}

func TestStats_SnapshotIsImmutable(t *testing.T) {
	s := NewStats(10)
	s.beginIngestion()
	s.recordIngestion(model.ChainBase, 3, nil)

	snap := s.Snapshot()
	s.recordIngestion(model.ChainBase, 4, errors.New("late"))
	s.RecordError(model.ChainBase, "fetch", errors.New("late"))

	assert.Equal(t, 3, snap.Chains[model.ChainBase].LastIngested)
	assert.Equal(t, int64(3), snap.TotalIngested)
	assert.Empty(t, snap.Errors)

	// mutating the snapshot leaves the accumulator alone
	snap.Chains[model.ChainSepolia] = ChainStats{LastIngested: 99}
	*snap.LastIngestionAt = time.Time{}
	fresh := s.Snapshot()
	_, ok := fresh.Chains[model.ChainSepolia]
	assert.False(t, ok)
	assert.False(t, fresh.LastIngestionAt.IsZero())
	assert.Equal(t, int64(7), fresh.TotalIngested)
	assert.Equal(t, int64(1), fresh.Chains[model.ChainBase].FailedPasses)
}

func TestStats_Revocations(t *testing.T) {
	s := NewStats(10)
	s.beginRevocation()
	s.recordRevocation(model.ChainBase, 2)
	s.recordRevocation(model.ChainCelo, 0)
	s.beginRevocation()
	s.recordRevocation(model.ChainBase, 1)

	snap := s.Snapshot()
	assert.Equal(t, int64(2), snap.RevocationRuns)
	assert.Equal(t, int64(3), snap.TotalRevoked)
	assert.Equal(t, int64(1), snap.Chains[model.ChainBase].LastRevoked)
	assert.Equal(t, int64(3), snap.Chains[model.ChainBase].TotalRevoked)
	assert.Equal(t, []model.Chain{model.ChainBase, model.ChainCelo}, snap.ChainNames())
}
