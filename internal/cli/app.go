package cli

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/supertypeai/sectors-corporate-actions/internal/checkpoint"
	"github.com/supertypeai/sectors-corporate-actions/internal/config"
	"github.com/supertypeai/sectors-corporate-actions/internal/database"
	"github.com/supertypeai/sectors-corporate-actions/internal/dlq"
	"github.com/supertypeai/sectors-corporate-actions/internal/logging"
	"github.com/supertypeai/sectors-corporate-actions/internal/manual"
	natsclient "github.com/supertypeai/sectors-corporate-actions/internal/messaging/nats"
	"github.com/supertypeai/sectors-corporate-actions/internal/models"
	"github.com/supertypeai/sectors-corporate-actions/internal/normalizer"
	"github.com/supertypeai/sectors-corporate-actions/internal/notify"
	"github.com/supertypeai/sectors-corporate-actions/internal/parser"
	"github.com/supertypeai/sectors-corporate-actions/internal/pipeline"
	"github.com/supertypeai/sectors-corporate-actions/internal/ratelimit"
	"github.com/supertypeai/sectors-corporate-actions/internal/repository"
	"github.com/supertypeai/sectors-corporate-actions/internal/search"
	"github.com/supertypeai/sectors-corporate-actions/internal/source"
	"github.com/supertypeai/sectors-corporate-actions/internal/upsert"
)

// app is one fully wired pipeline plus the resources it holds.
type app struct {
	orch    *pipeline.Orchestrator
	store   repository.Store
	closers []func(ctx context.Context)
}

func (a *app) onClose(fn func(ctx context.Context)) {
	a.closers = append(a.closers, fn)
}

// Close releases resources in reverse acquisition order.
func (a *app) Close(ctx context.Context) {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i](ctx)
	}
	a.closers = nil
}

// runOptions are the per-invocation overrides of a run.
type runOptions struct {
	// DryRun stores into memory and skips every side effect outside the process except
	// reading the source and manual tables.
	DryRun bool
	// Cutoff is "", "none" or a YYYY-MM-DD date.
	Cutoff string
}

// buildApp wires every collaborator of a run from cfg.
func buildApp(ctx context.Context, cfg *config.Config, logger *logging.Logger, opts runOptions) (_ *app, err error) {
	a := &app{}
	dryRun := opts.DryRun
	defer func() {
		if err != nil {
			a.Close(context.Background())
		}
	}()

	views, err := sourceViews(cfg.Source)
	if err != nil {
		return nil, err
	}

	var rdb *redis.Client
	if cfg.Redis.Enabled {
		rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		a.onClose(func(context.Context) { _ = rdb.Close() })
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := rdb.Ping(pingCtx).Err(); err != nil {
			return nil, fmt.Errorf("failed to connect to redis at %s: %w", cfg.Redis.Addr, err)
		}
	}

	limiter := newLimiter(cfg.RateLimit, cfg.Redis, rdb)
	a.onClose(func(context.Context) { _ = limiter.Close() })

	client, err := source.NewClient(source.Config{
		BaseURL:       cfg.Source.BaseURL,
		Path:          cfg.Source.Path,
		SortField:     cfg.Source.SortField,
		UserAgent:     cfg.Source.UserAgent,
		Views:         views,
		MaxRetries:    cfg.Source.MaxRetries,
		BaseBackoff:   cfg.Source.BaseBackoff,
		MaxBackoff:    cfg.Source.MaxBackoff,
		MaxPages:      cfg.Source.MaxPages,
		TableSelector: cfg.Source.TableSelector,
	},
		source.WithHTTPClient(&http.Client{Timeout: cfg.Source.Timeout}),
		source.WithLimiter(limiter),
		source.WithLogger(logger),
	)
	if err != nil {
		return nil, err
	}

	var listed map[string]bool
	if dryRun {
		a.store = repository.NewInMemoryStore()
		if cfg.Database.FilterListed {
			logger.Warn("Listed-security filter is ignored in dry-run mode")
		}
	} else {
		pg, err := openRepository(ctx, cfg.Database, logger)
		if err != nil {
			return nil, err
		}
		a.store = pg
		a.onClose(func(context.Context) { pg.Close() })

		if cfg.Database.FilterListed {
			listed, err = pg.ListedSecurities(ctx, cfg.Database.ListedTable, cfg.Database.ListedColumn, cfg.Source.ExchangeSuffix)
			if err != nil {
				return nil, err
			}
			logger.Info("Loaded listed securities", logging.Table(cfg.Database.ListedTable), "count", len(listed))
		}
	}

	normalizers := normalizer.NewRegistry(normalizer.Options{
		ExchangeSuffix: cfg.Source.ExchangeSuffix,
		Listed:         listed,
		RejectFuture:   cfg.Pipeline.RejectFuture,
		Now:            time.Now,
	})

	var manualStore manual.Store = manual.Unavailable{Err: manual.ErrNotConfigured}
	if cfg.Manual.DSN != "" {
		ms, err := manual.NewPostgresStore(cfg.Manual.DSN, manual.Tables{
			RightsIssue:  cfg.Manual.RightsIssueTable,
			ReverseSplit: cfg.Manual.ReverseSplitTable,
			Buyback:      cfg.Manual.BuybackTable,
		}, normalizers, logger)
		if err != nil {
			return nil, err
		}
		manualStore = ms
		a.onClose(func(context.Context) { ms.Close() })
	} else {
		logger.Warn("manual.dsn is not set; exception types will be stored without manual reconciliation")
	}

	var checkpoints checkpoint.Store = checkpoint.NoOpStore{}
	if rdb != nil && !dryRun {
		checkpoints = checkpoint.NewRedisStore(rdb, cfg.Redis.Prefix, cfg.Redis.CheckpointTTL)
	}

	deps := pipeline.Deps{
		Source:      client,
		Parsers:     parser.NewRegistry(cfg.Source.TableSelector),
		Normalizers: normalizers,
		Upserter:    upsert.New(a.store, upsert.WithLogger(logger)),
		Manual:      manualStore,
		Checkpoints: checkpoints,
		DLQ:         dlq.NoOp{},
		Logger:      logger,
	}

	if !dryRun {
		if err := wireOutputs(ctx, a, cfg, logger, &deps); err != nil {
			return nil, err
		}
	}

	pcfg, err := pipelineConfig(cfg.Pipeline, opts.Cutoff)
	if err != nil {
		return nil, err
	}
	a.orch, err = pipeline.New(pcfg, deps)
	if err != nil {
		return nil, err
	}
	return a, nil
}

func pipelineConfig(cfg config.PipelineConfig, cutoff string) (pipeline.Config, error) {
	pcfg := pipeline.Config{
		Concurrency: cfg.Concurrency,
		RunTimeout:  cfg.RunTimeout,
		LookbackDays: func(at models.ActionType) int {
			return cfg.LookbackFor(string(at))
		},
	}
	switch cutoff {
	case "":
	case "none":
		pcfg.LookbackDays = func(models.ActionType) int { return 0 }
	default:
		d, err := models.ParseDate(cutoff)
		if err != nil {
			return pcfg, fmt.Errorf("invalid --cutoff %q: want YYYY-MM-DD or none", cutoff)
		}
		pcfg.Cutoff = &d
	}
	return pcfg, nil
}

// wireOutputs attaches the dead-letter queue, the search mirror and the run notifier.
func wireOutputs(ctx context.Context, a *app, cfg *config.Config, logger *logging.Logger, deps *pipeline.Deps) error {
	natsCfg := natsclient.DefaultConfig()
	natsCfg.URL = cfg.NATS.URL
	natsCfg.Timeout = cfg.NATS.ConnectTimeout
	natsCfg.Logger = logger

	switch cfg.DLQ.Backend {
	case "file", "":
		q, err := dlq.NewFileQueue(cfg.DLQ.BasePath, logger)
		if err != nil {
			return err
		}
		deps.DLQ = q
		a.onClose(func(context.Context) {
			if n := q.Written(); n > 0 {
				logger.Warn("Dead-letter entries written", "count", n, "path", cfg.DLQ.BasePath)
			}
		})
	case "jetstream":
		js, err := natsclient.NewJetStreamClient(natsCfg)
		if err != nil {
			return err
		}
		a.onClose(func(context.Context) { _ = js.Close() })
		stream := natsclient.DeadLetterStream(cfg.DLQ.Stream, cfg.DLQ.SubjectPrefix, cfg.DLQ.MaxAge)
		q, err := dlq.NewJetStreamQueue(ctx, js, stream, cfg.DLQ.SubjectPrefix, logger)
		if err != nil {
			return err
		}
		deps.DLQ = q
	}

	if cfg.OpenSearch.Enabled {
		osCfg := search.Config{
			URL:           cfg.OpenSearch.URL,
			Username:      cfg.OpenSearch.Username,
			Password:      cfg.OpenSearch.Password,
			TLSSkipVerify: cfg.OpenSearch.TLSSkipVerify,
			IndexPrefix:   cfg.OpenSearch.IndexPrefix,
			FlushInterval: cfg.OpenSearch.FlushInterval,
		}
		osClient, err := search.NewClient(osCfg)
		if err != nil {
			return err
		}
		mirror, err := search.NewMirror(osClient, osCfg, logger)
		if err != nil {
			return err
		}
		deps.Mirror = mirror
		a.onClose(func(ctx context.Context) {
			stats, err := mirror.Close(ctx)
			if err != nil {
				logger.Error("Failed to flush search mirror", logging.Error(err))
				return
			}
			logger.Info("Search mirror flushed", "indexed", stats.Indexed, "failed", stats.Failed)
		})
	}

	if cfg.NATS.Enabled {
		nc, err := natsclient.NewClient(natsCfg)
		if err != nil {
			return err
		}
		a.onClose(func(ctx context.Context) {
			if err := nc.Flush(ctx); err != nil {
				logger.Warn("Failed to flush NATS connection", logging.Error(err))
			}
			_ = nc.Close()
		})
		deps.Notifier = notify.NewRunNotifier(nc, cfg.NATS.SummarySubject)
	}
	return nil
}

func openRepository(ctx context.Context, cfg config.DatabaseConfig, logger *logging.Logger) (*repository.PostgresStore, error) {
	if cfg.AutoMigrate {
		version, changed, err := database.Migrate(cfg.DSN, cfg.MigrationsPath, database.Up)
		if err != nil {
			return nil, err
		}
		logger.Info("Database migrations applied", "version", version, "changed", changed)
	}
	connectCtx, cancel := context.WithTimeout(ctx, cfg.ConnectTimeout)
	defer cancel()
	return repository.NewPostgresStore(connectCtx, cfg.DSN, cfg.MaxConns)
}

func newLimiter(cfg config.RateLimitConfig, rc config.RedisConfig, rdb *redis.Client) ratelimit.Limiter {
	switch cfg.Backend {
	case "redis":
		if rdb != nil {
			return ratelimit.NewRedisLimiter(rdb, rc.Prefix, cfg.Requests, cfg.Window)
		}
	case "local", "":
		return ratelimit.NewTokenBucket(cfg.Requests, cfg.Window)
	}
	return ratelimit.NoOpLimiter{}
}

func sourceViews(cfg config.SourceConfig) (map[models.ActionType]string, error) {
	views := make(map[models.ActionType]string, len(cfg.Views))
	for name, view := range cfg.Views {
		at, err := models.ParseActionType(name)
		if err != nil {
			return nil, fmt.Errorf("source.views: %w", err)
		}
		if view != "" {
			views[at] = view
		}
	}
	return views, nil
}
