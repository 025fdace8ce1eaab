package ingester

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/DecentralizedGeo/astral-api/internal/cache"
	"github.com/DecentralizedGeo/astral-api/internal/chain"
	"github.com/DecentralizedGeo/astral-api/internal/domain/model"
	"github.com/DecentralizedGeo/astral-api/internal/metrics"
	"github.com/DecentralizedGeo/astral-api/internal/pipeline/normalizer"
	"github.com/DecentralizedGeo/astral-api/internal/pipeline/retry"
	"github.com/DecentralizedGeo/astral-api/internal/store"
	"github.com/DecentralizedGeo/astral-api/internal/tracing"
	"go.opentelemetry.io/otel/attribute"
	otelTrace "go.opentelemetry.io/otel/trace"
)

const (
	defaultBatchSize    = 100
	defaultFetchTimeout = 30 * time.Second
)

// Error stages reported to an ErrorSink.
const (
	StageFetch      = "fetch"
	StageCheckpoint = "checkpoint"
	StageExists     = "exists"
	StageDecode     = "decode"
	StagePersist    = "persist"
)

// ErrUnknownChain is returned for a chain without a configured source.
var ErrUnknownChain = errors.New("no source configured for chain")

// ErrorSink receives per-record failures that were logged and skipped.
type ErrorSink interface {
	RecordError(chain model.Chain, stage string, err error)
}

// Ingester runs one chain's fetch, normalize, dedupe, persist and watermark
// cycle. Passes for different chains share nothing but the stores.
type Ingester struct {
	sources      map[model.Chain]chain.SourceClient
	records      store.RecordStore
	checkpoints  store.CheckpointStore
	retryPolicy  retry.Policy
	fetchTimeout time.Duration
	batchSize    int
	epoch        int64
	seen         *cache.SeenSet
	errorSink    ErrorSink
	nowFn        func() time.Time
	logger       *slog.Logger
}

type Option func(*Ingester)

func WithRetryPolicy(p retry.Policy) Option {
	return func(ing *Ingester) {
		ing.retryPolicy = p
	}
}

func WithFetchTimeout(d time.Duration) Option {
	return func(ing *Ingester) {
		if d > 0 {
			ing.fetchTimeout = d
		}
	}
}

func WithBatchSize(n int) Option {
	return func(ing *Ingester) {
		if n > 0 {
			ing.batchSize = n
		}
	}
}

// WithHistoricalEpoch sets the window start for chains without a checkpoint.
func WithHistoricalEpoch(unix int64) Option {
	return func(ing *Ingester) {
		ing.epoch = unix
	}
}

func WithSeenCache(s *cache.SeenSet) Option {
	return func(ing *Ingester) {
		ing.seen = s
	}
}

func WithErrorSink(s ErrorSink) Option {
	return func(ing *Ingester) {
		ing.errorSink = s
	}
}

func WithClock(now func() time.Time) Option {
	return func(ing *Ingester) {
		ing.nowFn = now
	}
}

func New(
	sources map[model.Chain]chain.SourceClient,
	records store.RecordStore,
	checkpoints store.CheckpointStore,
	logger *slog.Logger,
	opts ...Option,
) *Ingester {
	ing := &Ingester{
		sources:      sources,
		records:      records,
		checkpoints:  checkpoints,
		retryPolicy:  retry.DefaultPolicy(),
		fetchTimeout: defaultFetchTimeout,
		batchSize:    defaultBatchSize,
		epoch:        model.DefaultHistoricalEpoch,
		nowFn:        time.Now,
		logger:       logger.With("component", "ingester"),
	}
	for _, opt := range opts {
		opt(ing)
	}
	return ing
}

// Chains returns the configured chains in a stable order.
func (ing *Ingester) Chains() []model.Chain {
	out := make([]model.Chain, 0, len(ing.sources))
	for c := range ing.sources {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Source returns the client configured for c.
func (ing *Ingester) Source(c model.Chain) (chain.SourceClient, bool) {
	src, ok := ing.sources[c]
	return src, ok
}

// InitCheckpoints stores the historical epoch for every chain that has no
// checkpoint yet. Failures are collected per chain.
func (ing *Ingester) InitCheckpoints(ctx context.Context) error {
	var errs []error
	for _, c := range ing.Chains() {
		_, ok, err := ing.checkpoints.Get(ctx, c)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: get checkpoint: %w", c, err))
			continue
		}
		if ok {
			continue
		}
		if err := ing.checkpoints.Set(ctx, c, ing.epoch); err != nil {
			errs = append(errs, fmt.Errorf("%s: init checkpoint: %w", c, err))
			continue
		}
		ing.logger.Info("checkpoint initialized", "chain", c, "checkpoint", ing.epoch)
	}
	return errors.Join(errs...)
}

// ProcessChain runs one ingestion pass for c and returns the number of proofs
// newly stored. Per-record failures are skipped; only a failed fetch or a
// failed checkpoint read/write fails the pass.
func (ing *Ingester) ProcessChain(ctx context.Context, c model.Chain) (int, error) {
	src, ok := ing.sources[c]
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrUnknownChain, c)
	}

	spanCtx, span := tracing.StartChainSpan(ctx, "ingester", "processChain", c.String())
	start := time.Now()
	stored, err := ing.processChain(spanCtx, c, src, span)
	tracing.EndWithError(span, err)
	metrics.IngesterLatency.WithLabelValues(c.String()).Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.IngesterErrors.WithLabelValues(c.String()).Inc()
		metrics.IngesterPassesTotal.WithLabelValues(c.String(), "failed").Inc()
		return stored, err
	}
	metrics.IngesterPassesTotal.WithLabelValues(c.String(), "ok").Inc()
	return stored, nil
}

func (ing *Ingester) processChain(ctx context.Context, c model.Chain, src chain.SourceClient, span otelTrace.Span) (int, error) {
	log := ing.logger.With("chain", c)

	checkpoint, ok, err := ing.checkpoints.Get(ctx, c)
	if err != nil {
		ing.reportError(c, StageCheckpoint, err)
		return 0, fmt.Errorf("read checkpoint %s: %w", c, err)
	}
	if !ok {
		checkpoint = ing.epoch
	}

	records, err := ing.fetchWithRetry(ctx, c, src, checkpoint)
	if err != nil {
		return 0, err
	}
	metrics.IngesterRecordsFetched.WithLabelValues(c.String()).Add(float64(len(records)))
	span.SetAttributes(
		attribute.Int64("checkpoint", checkpoint),
		attribute.Int("fetched", len(records)),
	)
	if len(records) == 0 {
		log.Debug("no new attestations", "checkpoint", checkpoint)
		return 0, nil
	}

	var (
		stored  int
		maxTS   int64
		sawTS   bool
		skipped = map[string]int{}
	)
	for _, rec := range records {
		// every observed record moves the watermark, stored or not
		if ts, err := rec.CreatedAtUnix(); err == nil {
			if !sawTS || ts > maxTS {
				maxTS = ts
			}
			sawTS = true
		}

		reason, err := ing.ingestRecord(ctx, c, rec)
		if err != nil {
			log.Warn("attestation skipped",
				"uid", rec.ID,
				"reason", reason,
				"error", err,
			)
		}
		if reason != "" {
			skipped[reason]++
			metrics.IngesterRecordsSkipped.WithLabelValues(c.String(), reason).Inc()
			continue
		}
		stored++
	}
	metrics.IngesterProofsStored.WithLabelValues(c.String()).Add(float64(stored))
	span.SetAttributes(attribute.Int("stored", stored))

	if !sawTS {
		log.Warn("no parsable creation time in batch; checkpoint unchanged",
			"fetched", len(records),
			"checkpoint", checkpoint,
		)
		return stored, nil
	}

	// +1: the source filter is strictly-greater, one second is its resolution
	next := maxTS + 1
	if next > checkpoint {
		if err := ing.checkpoints.Set(ctx, c, next); err != nil {
			ing.reportError(c, StageCheckpoint, err)
			return stored, fmt.Errorf("advance checkpoint %s to %d: %w", c, next, err)
		}
		metrics.PipelineCheckpoint.WithLabelValues(c.String()).Set(float64(next))
	}

	log.Info("ingestion pass complete",
		"fetched", len(records),
		"stored", stored,
		"skipped", skipped,
		"checkpoint_before", checkpoint,
		"checkpoint_after", max(next, checkpoint),
	)
	return stored, nil
}

// ingestRecord stores one record. It returns a non-empty skip reason when the
// record was not newly stored; err is set only for failures worth logging.
func (ing *Ingester) ingestRecord(ctx context.Context, c model.Chain, rec model.AttestationRecord) (string, error) {
	if ing.seen != nil && ing.seen.Contains(c, rec.ID) {
		return "known", nil
	}

	exists, err := ing.records.Exists(ctx, c, rec.ID)
	if err != nil {
		ing.reportError(c, StageExists, err)
		return "persist_error", fmt.Errorf("check exists: %w", err)
	}
	if exists {
		ing.markSeen(c, rec.ID)
		return "known", nil
	}

	proof, err := normalizer.BuildProof(c, rec, ing.nowFn().UTC())
	if err != nil {
		ing.reportError(c, StageDecode, err)
		return "decode_error", err
	}

	if err := ing.records.Create(ctx, proof); err != nil {
		if errors.Is(err, store.ErrDuplicateProof) {
			ing.markSeen(c, rec.ID)
			return "duplicate", nil
		}
		ing.reportError(c, StagePersist, err)
		return "persist_error", fmt.Errorf("create proof: %w", err)
	}
	ing.markSeen(c, rec.ID)
	return "", nil
}

func (ing *Ingester) fetchWithRetry(ctx context.Context, c model.Chain, src chain.SourceClient, since int64) ([]model.AttestationRecord, error) {
	const stage = "ingester.fetch_window"

	var records []model.AttestationRecord
	err := retry.Do(ctx, ing.retryPolicy,
		func(attempt int, err error, decision retry.Decision, delay time.Duration) {
			metrics.IngesterFetchRetries.WithLabelValues(c.String()).Inc()
			ing.logger.Warn("fetch attempt failed; retrying",
				"stage", stage,
				"chain", c,
				"classification", decision.Class,
				"classification_reason", decision.Reason,
				"attempt", attempt,
				"max_attempts", ing.retryPolicy.MaxAttempts,
				"backoff", delay.String(),
				"error", err,
			)
		},
		func(ctx context.Context, _ int) error {
			attemptCtx, cancel := context.WithTimeout(ctx, ing.fetchTimeout)
			defer cancel()
			var err error
			records, err = src.FetchWindow(attemptCtx, since, ing.batchSize)
			return err
		},
	)
	if err != nil {
		decision := retry.Classify(err)
		ing.reportError(c, StageFetch, err)
		return nil, fmt.Errorf("fetch %s failed stage=%s class=%s reason=%s: %w", c, stage, decision.Class, decision.Reason, err)
	}
	return records, nil
}

func (ing *Ingester) markSeen(c model.Chain, uid string) {
	if ing.seen != nil {
		ing.seen.Add(c, uid)
	}
}

func (ing *Ingester) reportError(c model.Chain, stage string, err error) {
	if ing.errorSink != nil {
		ing.errorSink.RecordError(c, stage, err)
	}
}
