package eas

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/DecentralizedGeo/astral-api/internal/chain"
	"github.com/DecentralizedGeo/astral-api/internal/chain/ratelimit"
	"github.com/DecentralizedGeo/astral-api/internal/circuitbreaker"
	"github.com/DecentralizedGeo/astral-api/internal/domain/model"
	"github.com/DecentralizedGeo/astral-api/internal/metrics"
	"github.com/DecentralizedGeo/astral-api/internal/pipeline/retry"
)

// MaxWindowStart is the largest timestamp the indexer's GraphQL Int accepts.
const MaxWindowStart = math.MaxInt32

const statusCheckChunk = 100

type Config struct {
	Chain              string
	Endpoint           string
	SchemaID           string
	RequestTimeout     time.Duration
	RequestsPerSecond  float64
	Burst              int
	BreakerFailures    int
	BreakerOpenTimeout time.Duration
	RevokedPageSize    int
}

// Adapter serves one chain's attestations from an EAS-style GraphQL indexer.
type Adapter struct {
	client          GraphQLClient
	chain           string
	schemaID        string
	revokedPageSize int
	limiter         *ratelimit.Limiter
	breaker         *circuitbreaker.Breaker
	logger          *slog.Logger
}

var _ chain.SourceClient = (*Adapter)(nil)

func NewAdapter(cfg Config, logger *slog.Logger) *Adapter {
	logger = logger.With("chain", cfg.Chain)
	return newAdapter(cfg, NewClient(cfg.Endpoint, cfg.Chain, cfg.RequestTimeout, logger), logger)
}

func newAdapter(cfg Config, client GraphQLClient, logger *slog.Logger) *Adapter {
	pageSize := cfg.RevokedPageSize
	if pageSize <= 0 {
		pageSize = chain.DefaultRevokedPageSize
	}
	return &Adapter{
		client:          client,
		chain:           cfg.Chain,
		schemaID:        cfg.SchemaID,
		revokedPageSize: pageSize,
		limiter:         ratelimit.NewLimiter(cfg.RequestsPerSecond, cfg.Burst, cfg.Chain),
		breaker: circuitbreaker.New(circuitbreaker.Config{
			Name:             cfg.Chain,
			FailureThreshold: cfg.BreakerFailures,
			OpenTimeout:      cfg.BreakerOpenTimeout,
			OnStateChange: func(name string, from, to circuitbreaker.State) {
				logger.Warn("source circuit state changed", "from", from.String(), "to", to.String())
			},
		}),
		logger: logger,
	}
}

func (a *Adapter) Chain() string {
	return a.chain
}

func (a *Adapter) SchemaID() string {
	return a.schemaID
}

func (a *Adapter) RevokedPageSize() int {
	return a.revokedPageSize
}

// FetchWindow queries records created strictly after sinceExclusiveUnix. A
// bound beyond the GraphQL Int range is clamped; such a window re-reads from
// the clamp point.
func (a *Adapter) FetchWindow(ctx context.Context, sinceExclusiveUnix int64, limit int) ([]model.AttestationRecord, error) {
	if limit <= 0 {
		return []model.AttestationRecord{}, nil
	}
	since := sinceExclusiveUnix
	if since > MaxWindowStart {
		a.logger.Warn("fetch window start clamped to transport maximum",
			"requested", sinceExclusiveUnix,
			"clamped", int64(MaxWindowStart),
		)
		metrics.SourceWindowClamped.WithLabelValues(a.chain).Inc()
		since = MaxWindowStart
	}

	where := map[string]any{
		"schemaId":    map[string]any{"equals": a.schemaID},
		"timeCreated": map[string]any{"gt": since},
	}
	orderBy := []map[string]string{{"timeCreated": "asc"}}

	var atts []Attestation
	err := a.guard(ctx, "fetchWindow", func() error {
		var err error
		atts, err = a.client.QueryAttestations(ctx, where, limit, orderBy)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("fetch %s window since %d: %w", a.chain, since, err)
	}

	records := make([]model.AttestationRecord, 0, len(atts))
	for _, att := range atts {
		records = append(records, att.toRecord())
	}
	return records, nil
}

// FetchRevokedIDs returns the first page of revoked attestation ids for the
// schema. There is no continuation.
func (a *Adapter) FetchRevokedIDs(ctx context.Context, schemaID string) ([]string, error) {
	where := map[string]any{
		"schemaId": map[string]any{"equals": schemaID},
		"revoked":  map[string]any{"equals": true},
	}

	var atts []Attestation
	err := a.guard(ctx, "fetchRevokedIds", func() error {
		var err error
		atts, err = a.client.QueryAttestations(ctx, where, a.revokedPageSize, nil)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("fetch %s revoked ids: %w", a.chain, err)
	}

	ids := make([]string, 0, len(atts))
	for _, att := range atts {
		if att.Revoked || (att.RevocationTime != "" && att.RevocationTime != "0") {
			ids = append(ids, att.ID)
		}
	}
	return ids, nil
}

// CheckRevocationStatus returns the subset of ids the source reports revoked.
func (a *Adapter) CheckRevocationStatus(ctx context.Context, ids []string) ([]string, error) {
	revoked := make([]string, 0)
	for start := 0; start < len(ids); start += statusCheckChunk {
		end := min(start+statusCheckChunk, len(ids))
		chunk := ids[start:end]
		where := map[string]any{
			"id":      map[string]any{"in": chunk},
			"revoked": map[string]any{"equals": true},
		}

		var atts []Attestation
		err := a.guard(ctx, "checkRevocationStatus", func() error {
			var err error
			atts, err = a.client.QueryAttestations(ctx, where, len(chunk), nil)
			return err
		})
		if err != nil {
			return nil, fmt.Errorf("check %s revocation status: %w", a.chain, err)
		}
		for _, att := range atts {
			revoked = append(revoked, att.ID)
		}
	}
	return revoked, nil
}

// guard applies the rate limit and circuit breaker and records the call.
// Only transient failures count against the breaker.
func (a *Adapter) guard(ctx context.Context, method string, fn func() error) error {
	if err := a.limiter.Wait(ctx); err != nil {
		return err
	}
	started := time.Now()
	err := a.breaker.Execute(fn, func(err error) bool {
		return retry.Classify(err).IsTransient()
	})
	ratelimit.RecordCall(a.chain, method, started, err)
	if err != nil {
		a.logger.Debug("source call failed", "method", method, "error", err)
	}
	return err
}
