package main

import (
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/DecentralizedGeo/astral-api/internal/alert"
	"github.com/DecentralizedGeo/astral-api/internal/cache"
	"github.com/DecentralizedGeo/astral-api/internal/chain"
	"github.com/DecentralizedGeo/astral-api/internal/chain/eas"
	"github.com/DecentralizedGeo/astral-api/internal/config"
	"github.com/DecentralizedGeo/astral-api/internal/domain/model"
	"github.com/DecentralizedGeo/astral-api/internal/pipeline/ingester"
	"github.com/DecentralizedGeo/astral-api/internal/pipeline/retry"
	"github.com/DecentralizedGeo/astral-api/internal/store"
	"github.com/DecentralizedGeo/astral-api/internal/store/fallback"
	"github.com/DecentralizedGeo/astral-api/internal/store/postgres"
	redispkg "github.com/DecentralizedGeo/astral-api/internal/store/redis"
	"github.com/DecentralizedGeo/astral-api/internal/store/sqlite"
)

// runtime holds the process-wide collaborators shared by the commands.
type runtime struct {
	cfg         *config.Config
	logger      *slog.Logger
	db          *postgres.DB
	records     store.RecordStore
	checkpoints store.CheckpointStore
	sources     map[model.Chain]chain.SourceClient
	closers     []func() error
}

func openRuntime(cfg *config.Config, logger *slog.Logger) (*runtime, error) {
	rt := &runtime{cfg: cfg, logger: logger}

	db, err := openPostgres(cfg)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	rt.db = db
	rt.closers = append(rt.closers, db.Close)
	logger.Info("connected to database")

	if err := rt.openStores(); err != nil {
		rt.Close()
		return nil, err
	}

	sources, excluded := buildSources(cfg, logger)
	for _, name := range excluded {
		logger.Warn("chain has no source endpoint, excluded", "chain", name)
	}
	if len(sources) == 0 {
		logger.Warn("no active chains configured")
	}
	rt.sources = sources
	logger.Info("active chains selected", "chains", strings.Join(chainNames(sources), ","))
	return rt, nil
}

// openStores wires Postgres as the primary tier and, when enabled, SQLite or
// Redis as the secondary one.
func (rt *runtime) openStores() error {
	var (
		records     store.RecordStore     = postgres.NewProofRepo(rt.db)
		checkpoints store.CheckpointStore = postgres.NewCheckpointRepo(rt.db)
	)

	fb := rt.cfg.Fallback
	if !fb.Enabled {
		rt.records, rt.checkpoints = records, checkpoints
		return nil
	}

	local, err := sqlite.Open(fb.SQLitePath)
	if err != nil {
		return fmt.Errorf("open fallback store: %w", err)
	}
	rt.closers = append(rt.closers, local.Close)

	var secondaryCheckpoints store.CheckpointStore = sqlite.NewCheckpointRepo(local)
	if fb.RedisCheckpoints {
		rc, err := redispkg.NewCheckpointStore(rt.cfg.Redis.URL, rt.cfg.Redis.KeyPrefix)
		if err != nil {
			return fmt.Errorf("open redis checkpoint store: %w", err)
		}
		rt.closers = append(rt.closers, rc.Close)
		secondaryCheckpoints = rc
	}

	rt.records = fallback.NewRecordStore(records, sqlite.NewProofRepo(local), rt.logger)
	rt.checkpoints = fallback.NewCheckpointStore(checkpoints, secondaryCheckpoints, rt.logger)
	rt.logger.Info("fallback store enabled",
		"sqlite_path", fb.SQLitePath,
		"redis_checkpoints", fb.RedisCheckpoints,
	)
	return nil
}

// newIngester builds the ingestion pipeline. sink may be nil.
func (rt *runtime) newIngester(sink ingester.ErrorSink) *ingester.Ingester {
	sc := rt.cfg.Scheduler
	opts := []ingester.Option{
		ingester.WithRetryPolicy(retryPolicy(rt.cfg.Retry)),
		ingester.WithFetchTimeout(sc.FetchTimeout),
		ingester.WithBatchSize(sc.BatchSize),
		ingester.WithHistoricalEpoch(sc.HistoricalEpoch),
	}
	if rt.cfg.Cache.SeenCapacity > 0 {
		opts = append(opts, ingester.WithSeenCache(cache.NewSeenSet(rt.cfg.Cache.SeenCapacity, rt.cfg.Cache.SeenTTL)))
	}
	if sink != nil {
		opts = append(opts, ingester.WithErrorSink(sink))
	}
	return ingester.New(rt.sources, rt.records, rt.checkpoints, rt.logger, opts...)
}

// Close releases resources in reverse order of acquisition.
func (rt *runtime) Close() {
	for i := len(rt.closers) - 1; i >= 0; i-- {
		if err := rt.closers[i](); err != nil {
			rt.logger.Warn("close failed", "error", err)
		}
	}
	rt.closers = nil
}

func retryPolicy(rc config.RetryConfig) retry.Policy {
	p := retry.DefaultPolicy()
	p.MaxAttempts = rc.MaxAttempts
	p.BaseDelay = rc.BaseDelay
	p.Factor = rc.Factor
	if rc.MaxDelay > 0 {
		p.MaxDelay = rc.MaxDelay
	}
	return p
}

// buildSources creates one EAS adapter per chain with an endpoint. Chains
// without one are returned by name and never polled.
func buildSources(cfg *config.Config, logger *slog.Logger) (map[model.Chain]chain.SourceClient, []string) {
	active, excluded := cfg.ActiveChains()
	sources := make(map[model.Chain]chain.SourceClient, len(active))
	for _, cc := range active {
		sources[model.Chain(cc.Name)] = eas.NewAdapter(eas.Config{
			Chain:              cc.Name,
			Endpoint:           cc.Endpoint,
			SchemaID:           cc.SchemaID,
			RequestTimeout:     cfg.Source.RequestTimeout,
			RequestsPerSecond:  cc.RequestsPerSecond,
			Burst:              cc.Burst,
			BreakerFailures:    cfg.Source.BreakerFailures,
			BreakerOpenTimeout: cfg.Source.BreakerOpenTimeout,
			RevokedPageSize:    cfg.Source.RevokedPageSize,
		}, logger)
	}
	return sources, excluded
}

func chainNames(sources map[model.Chain]chain.SourceClient) []string {
	names := make([]string, 0, len(sources))
	for c := range sources {
		names = append(names, c.String())
	}
	sort.Strings(names)
	return names
}

// buildAlerter fans alerts out to every configured channel.
func buildAlerter(cfg *config.Config, logger *slog.Logger) alert.Alerter {
	var channels []alert.Alerter
	if cfg.Alert.SlackWebhookURL != "" {
		channels = append(channels, alert.NewSlackAlerter(cfg.Alert.SlackWebhookURL))
	}
	if cfg.Alert.WebhookURL != "" {
		channels = append(channels, alert.NewWebhookAlerter(cfg.Alert.WebhookURL))
	}
	if len(channels) == 0 {
		return &alert.NoopAlerter{}
	}
	logger.Info("alerting enabled", "channels", len(channels), "cooldown", cfg.Alert.Cooldown.String())
	return alert.NewMultiAlerter(cfg.Alert.Cooldown, logger, channels...)
}
