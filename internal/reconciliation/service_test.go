package reconciliation

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/DecentralizedGeo/astral-api/internal/alert"
	"github.com/DecentralizedGeo/astral-api/internal/chain"
	"github.com/DecentralizedGeo/astral-api/internal/chain/mocks"
	"github.com/DecentralizedGeo/astral-api/internal/domain/model"
	"github.com/DecentralizedGeo/astral-api/internal/store/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

type mockAlerter struct {
	mu     sync.Mutex
	alerts []alert.Alert
}

func (m *mockAlerter) Send(_ context.Context, a alert.Alert) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.alerts = append(m.alerts, a)
	return nil
}

type recordingSink struct {
	stages []string
}

func (s *recordingSink) RecordError(_ model.Chain, stage string, _ error) {
	s.stages = append(s.stages, stage)
}

// existsFailing fails Exists for selected uids.
type existsFailing struct {
	*memory.RecordStore
	fail map[string]bool
}

func (e *existsFailing) Exists(ctx context.Context, c model.Chain, uid string) (bool, error) {
	if e.fail[uid] {
		return false, errors.New("connection reset")
	}
	return e.RecordStore.Exists(ctx, c, uid)
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func seed(t *testing.T, records *memory.RecordStore, c model.Chain, uids ...string) {
	t.Helper()
	base := time.Unix(1700000000, 0).UTC()
	for i, uid := range uids {
		require.NoError(t, records.Create(context.Background(), &model.NormalizedProof{
			UID:        uid,
			Chain:      c,
			ObservedAt: base.Add(time.Duration(i) * time.Second),
		}))
	}
}

func TestReconcile_MarksLocalRevoked(t *testing.T) {
	ctrl := gomock.NewController(t)
	src := mocks.NewMockSourceClient(ctrl)
	src.EXPECT().RevokedPageSize().Return(chain.DefaultRevokedPageSize).AnyTimes()
	src.EXPECT().SchemaID().Return("0xschema")
	src.EXPECT().FetchRevokedIDs(gomock.Any(), "0xschema").Return([]string{"0x01", "0x03", "0xremote-only"}, nil)

	records := memory.NewRecordStore()
	seed(t, records, model.ChainSepolia, "0x01", "0x02", "0x03")

	svc := NewService(records, nil, testLogger())
	svc.RegisterSource(model.ChainSepolia, src)

	result, err := svc.Reconcile(context.Background(), model.ChainSepolia)
	require.NoError(t, err)
	assert.Equal(t, StrategyPush, result.Strategy)
	assert.Equal(t, 2, result.Candidates)
	assert.Equal(t, int64(2), result.Revoked)
	assert.False(t, result.PageSaturated)

	p1, _ := records.Get(model.ChainSepolia, "0x01")
	p2, _ := records.Get(model.ChainSepolia, "0x02")
	p3, _ := records.Get(model.ChainSepolia, "0x03")
	assert.True(t, p1.Revoked)
	assert.False(t, p2.Revoked)
	assert.True(t, p3.Revoked)
}

func TestReconcile_Idempotent(t *testing.T) {
	ctrl := gomock.NewController(t)
	src := mocks.NewMockSourceClient(ctrl)
	src.EXPECT().RevokedPageSize().Return(chain.DefaultRevokedPageSize).AnyTimes()
	src.EXPECT().SchemaID().Return("0xschema").Times(2)
	src.EXPECT().FetchRevokedIDs(gomock.Any(), "0xschema").Return([]string{"0x01"}, nil).Times(2)

	records := memory.NewRecordStore()
	seed(t, records, model.ChainBase, "0x01")

	svc := NewService(records, nil, testLogger())
	svc.RegisterSource(model.ChainBase, src)

	first, err := svc.Reconcile(context.Background(), model.ChainBase)
	require.NoError(t, err)
	assert.Equal(t, int64(1), first.Revoked)

	second, err := svc.Reconcile(context.Background(), model.ChainBase)
	require.NoError(t, err)
	assert.Zero(t, second.Revoked)

	p, _ := records.Get(model.ChainBase, "0x01")
	assert.True(t, p.Revoked)
}

func TestReconcile_PageSaturatedAlerts(t *testing.T) {
	ctrl := gomock.NewController(t)
	src := mocks.NewMockSourceClient(ctrl)

	ids := make([]string, chain.DefaultRevokedPageSize)
	for i := range ids {
		ids[i] = fmt.Sprintf("0x%03d", i)
	}
	src.EXPECT().SchemaID().Return("0xschema")
	src.EXPECT().RevokedPageSize().Return(0)
	src.EXPECT().FetchRevokedIDs(gomock.Any(), gomock.Any()).Return(ids, nil)

	alerter := &mockAlerter{}
	svc := NewService(memory.NewRecordStore(), alerter, testLogger())
	svc.RegisterSource(model.ChainCelo, src)

	result, err := svc.Reconcile(context.Background(), model.ChainCelo)
	require.NoError(t, err)
	assert.True(t, result.PageSaturated, "unset page size falls back to the default")
	assert.Zero(t, result.Revoked)
	require.Len(t, alerter.alerts, 1)
	assert.Equal(t, alert.AlertTypeRevocationBacklog, alerter.alerts[0].Type)
	assert.Equal(t, "celo", alerter.alerts[0].Chain)
}

func TestReconcile_SaturationFollowsSourcePageSize(t *testing.T) {
	tests := []struct {
		name      string
		pageSize  int
		returned  int
		saturated bool
	}{
		{name: "small page filled", pageSize: 50, returned: 50, saturated: true},
		{name: "large page partly filled", pageSize: 200, returned: 100, saturated: false},
		{name: "large page filled", pageSize: 200, returned: 200, saturated: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctrl := gomock.NewController(t)
			src := mocks.NewMockSourceClient(ctrl)
			ids := make([]string, tt.returned)
			for i := range ids {
				ids[i] = fmt.Sprintf("0x%03d", i)
			}
			src.EXPECT().SchemaID().Return("0xschema")
			src.EXPECT().RevokedPageSize().Return(tt.pageSize)
			src.EXPECT().FetchRevokedIDs(gomock.Any(), gomock.Any()).Return(ids, nil)

			alerter := &mockAlerter{}
			svc := NewService(memory.NewRecordStore(), alerter, testLogger())
			svc.RegisterSource(model.ChainBase, src)

			result, err := svc.Reconcile(context.Background(), model.ChainBase)
			require.NoError(t, err)
			assert.Equal(t, tt.saturated, result.PageSaturated)
			if tt.saturated {
				assert.Len(t, alerter.alerts, 1)
			} else {
				assert.Empty(t, alerter.alerts)
			}
		})
	}
}

func TestReconcile_LookupErrorsSkipped(t *testing.T) {
	ctrl := gomock.NewController(t)
	src := mocks.NewMockSourceClient(ctrl)
	src.EXPECT().RevokedPageSize().Return(chain.DefaultRevokedPageSize).AnyTimes()
	src.EXPECT().SchemaID().Return("0xschema")
	src.EXPECT().FetchRevokedIDs(gomock.Any(), gomock.Any()).Return([]string{"0x01", "0x02"}, nil)

	mem := memory.NewRecordStore()
	seed(t, mem, model.ChainBase, "0x01", "0x02")
	records := &existsFailing{RecordStore: mem, fail: map[string]bool{"0x01": true}}
	sink := &recordingSink{}

	svc := NewService(records, nil, testLogger())
	svc.SetErrorSink(sink)
	svc.RegisterSource(model.ChainBase, src)

	result, err := svc.Reconcile(context.Background(), model.ChainBase)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Errors)
	assert.Equal(t, int64(1), result.Revoked)
	assert.Equal(t, []string{"revocation_exists"}, sink.stages)
}

func TestReconcile_FetchFailure(t *testing.T) {
	ctrl := gomock.NewController(t)
	src := mocks.NewMockSourceClient(ctrl)
	src.EXPECT().SchemaID().Return("0xschema")
	src.EXPECT().FetchRevokedIDs(gomock.Any(), gomock.Any()).
		Return(nil, &chain.StatusError{StatusCode: 502, Body: "bad gateway"})

	alerter := &mockAlerter{}
	sink := &recordingSink{}
	svc := NewService(memory.NewRecordStore(), alerter, testLogger())
	svc.SetErrorSink(sink)
	svc.RegisterSource(model.ChainOptimism, src)

	_, err := svc.Reconcile(context.Background(), model.ChainOptimism)
	require.Error(t, err)
	var statusErr *chain.StatusError
	assert.True(t, errors.As(err, &statusErr))
	assert.Equal(t, []string{"revocation_push"}, sink.stages)
	require.Len(t, alerter.alerts, 1)
	assert.Equal(t, alert.AlertTypeReconcileFailed, alerter.alerts[0].Type)
}

func TestReconcile_UnknownChain(t *testing.T) {
	svc := NewService(memory.NewRecordStore(), nil, testLogger())
	_, err := svc.Reconcile(context.Background(), model.ChainBase)
	assert.ErrorIs(t, err, ErrUnknownChain)
	_, err = svc.SweepActive(context.Background(), model.ChainBase, 10)
	assert.ErrorIs(t, err, ErrUnknownChain)
}

func TestSweepActive_MarksRevokedSubset(t *testing.T) {
	ctrl := gomock.NewController(t)
	src := mocks.NewMockSourceClient(ctrl)

	records := memory.NewRecordStore()
	seed(t, records, model.ChainArbitrum, "0x01", "0x02", "0x03")
	_, err := records.BatchSetRevoked(context.Background(), model.ChainArbitrum, []string{"0x02"})
	require.NoError(t, err)

	src.EXPECT().CheckRevocationStatus(gomock.Any(), []string{"0x01", "0x03"}).Return([]string{"0x03"}, nil)

	svc := NewService(records, nil, testLogger())
	svc.RegisterSource(model.ChainArbitrum, src)

	result, err := svc.SweepActive(context.Background(), model.ChainArbitrum, 0)
	require.NoError(t, err)
	assert.Equal(t, StrategySweep, result.Strategy)
	assert.Equal(t, 1, result.Candidates)
	assert.Equal(t, int64(1), result.Revoked)

	p1, _ := records.Get(model.ChainArbitrum, "0x01")
	p3, _ := records.Get(model.ChainArbitrum, "0x03")
	assert.False(t, p1.Revoked)
	assert.True(t, p3.Revoked)
}

func TestSweepActive_RespectsLimit(t *testing.T) {
	ctrl := gomock.NewController(t)
	src := mocks.NewMockSourceClient(ctrl)

	records := memory.NewRecordStore()
	seed(t, records, model.ChainBase, "0x01", "0x02", "0x03")

	src.EXPECT().CheckRevocationStatus(gomock.Any(), []string{"0x01", "0x02"}).Return(nil, nil)

	svc := NewService(records, nil, testLogger())
	svc.RegisterSource(model.ChainBase, src)

	result, err := svc.SweepActive(context.Background(), model.ChainBase, 2)
	require.NoError(t, err)
	assert.Zero(t, result.Revoked)
}

func TestSweepActive_NothingActive(t *testing.T) {
	ctrl := gomock.NewController(t)
	src := mocks.NewMockSourceClient(ctrl)

	svc := NewService(memory.NewRecordStore(), nil, testLogger())
	svc.RegisterSource(model.ChainBase, src)

	result, err := svc.SweepActive(context.Background(), model.ChainBase, 10)
	require.NoError(t, err)
	assert.Zero(t, result.Candidates)
}

func TestSweepActive_SourceFailure(t *testing.T) {
	ctrl := gomock.NewController(t)
	src := mocks.NewMockSourceClient(ctrl)
	src.EXPECT().CheckRevocationStatus(gomock.Any(), gomock.Any()).Return(nil, context.DeadlineExceeded)

	records := memory.NewRecordStore()
	seed(t, records, model.ChainBase, "0x01")

	svc := NewService(records, nil, testLogger())
	svc.RegisterSource(model.ChainBase, src)

	_, err := svc.SweepActive(context.Background(), model.ChainBase, 10)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	p, _ := records.Get(model.ChainBase, "0x01")
	assert.False(t, p.Revoked)
}

func TestChains(t *testing.T) {
	ctrl := gomock.NewController(t)
	svc := NewService(memory.NewRecordStore(), nil, testLogger())
	svc.RegisterSource(model.ChainSepolia, mocks.NewMockSourceClient(ctrl))
	svc.RegisterSource(model.ChainBase, mocks.NewMockSourceClient(ctrl))

	assert.Equal(t, []model.Chain{model.ChainBase, model.ChainSepolia}, svc.Chains())
	assert.True(t, svc.HasSource(model.ChainBase))
	assert.False(t, svc.HasSource(model.ChainCelo))
}
