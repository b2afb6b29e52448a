// Package app builds the long-lived services of the importer from a
// config.Config and owns their shutdown.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	pubsub "cloud.google.com/go/pubsub/v2"
	gcstorage "cloud.google.com/go/storage"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/JakeFAU/dataset-importer/internal/api"
	"github.com/JakeFAU/dataset-importer/internal/batch"
	"github.com/JakeFAU/dataset-importer/internal/config"
	"github.com/JakeFAU/dataset-importer/internal/deadletter"
	"github.com/JakeFAU/dataset-importer/internal/dispatcher"
	"github.com/JakeFAU/dataset-importer/internal/download"
	"github.com/JakeFAU/dataset-importer/internal/id/uuid"
	"github.com/JakeFAU/dataset-importer/internal/importer"
	"github.com/JakeFAU/dataset-importer/internal/logging"
	"github.com/JakeFAU/dataset-importer/internal/metrics"
	"github.com/JakeFAU/dataset-importer/internal/policy/ratelimit"
	"github.com/JakeFAU/dataset-importer/internal/progress"
	progresssinks "github.com/JakeFAU/dataset-importer/internal/progress/sinks"
	gcppublisher "github.com/JakeFAU/dataset-importer/internal/publisher/pubsub"
	"github.com/JakeFAU/dataset-importer/internal/storage"
	gcsstorage "github.com/JakeFAU/dataset-importer/internal/storage/gcs"
	localstorage "github.com/JakeFAU/dataset-importer/internal/storage/local"
	memorystorage "github.com/JakeFAU/dataset-importer/internal/storage/memory"
	pgstore "github.com/JakeFAU/dataset-importer/internal/storage/postgres"
	"github.com/JakeFAU/dataset-importer/internal/store"
)

const shutdownTimeout = 10 * time.Second

// Pool is the part of *pgxpool.Pool the app depends on. pgxmock pools satisfy it.
type Pool interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Ping(ctx context.Context) error
	Close()
}

// Option overrides how Build constructs a dependency.
type Option func(*options)

type options struct {
	logger     *zap.Logger
	registerer prometheus.Registerer
	pool       Pool
	httpClient *http.Client
}

// WithLogger uses logger instead of building one from logging config.
func WithLogger(logger *zap.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithRegisterer registers progress collectors on reg instead of the default registry.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(o *options) { o.registerer = reg }
}

// WithPool uses pool instead of dialing db.dsn.
func WithPool(pool Pool) Option {
	return func(o *options) { o.pool = pool }
}

// WithHTTPClient makes the downloader use client.
func WithHTTPClient(client *http.Client) Option {
	return func(o *options) { o.httpClient = client }
}

// App holds the services shared by every import run.
type App struct {
	cfg    *config.Config
	logger *zap.Logger

	pool     Pool
	runs     *pgstore.RunStore
	txRunner *pgstore.Runner
	repo     *pgstore.DatasetRepository
	fetcher  *download.Downloader
	blobs    storage.BlobStore

	gcsClient       *gcstorage.Client
	pubsubClient    *pubsub.Client
	pubsubPublisher *pubsub.Publisher
	redisClient     *redis.Client

	hub      *progress.Hub
	tracker  *progress.Tracker
	observer *progress.Observer

	dispatch  *dispatcher.Dispatcher
	apiServer *api.Server
}

// Build creates the application's dependencies. It fails fast when a
// configured backend cannot be reached.
func Build(ctx context.Context, cfg *config.Config, opts ...Option) (*App, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	logger := o.logger
	if logger == nil {
		var err error
		logger, err = logging.New(cfg.Logging.Development)
		if err != nil {
			return nil, fmt.Errorf("logger init failed: %w", err)
		}
		zap.ReplaceGlobals(logger)
	}

	a := &App{cfg: cfg, logger: logger}
	a.logger.Info("building application dependencies",
		zap.Strings("enabled_sources", cfg.EnabledSources()),
		zap.Bool("server_enabled", cfg.Server.Enabled),
	)
	metrics.Init()
	importer.ApplyRuntimeLimits(cfg.Runtime, a.logger)

	if err := a.setupDatabase(ctx, o.pool); err != nil {
		a.closeInfrastructure(ctx)
		return nil, err
	}
	a.fetcher = download.New(download.Config{
		ConnectTimeout: cfg.ConnectTimeout(),
		UserAgent:      cfg.Download.UserAgent,
		TempDir:        cfg.Download.TempDir,
		Logger:         a.logger,
		Client:         o.httpClient,
		Limiter: ratelimit.New(ratelimit.Config{
			RPS:   cfg.Download.RateLimitRPS,
			Burst: cfg.Download.RateLimitBurst,
		}),
	})
	if err := a.setupArchive(ctx); err != nil {
		a.closeInfrastructure(ctx)
		return nil, err
	}
	if err := a.setupProgress(ctx, o.registerer); err != nil {
		a.closeInfrastructure(ctx)
		return nil, err
	}

	a.dispatch = dispatcher.New(*cfg, a.RunImport, uuid.New(), a.logger)
	if cfg.Server.Enabled {
		a.apiServer = api.NewServer(cfg.Server, api.Deps{
			Runs:       a.runRepository(),
			Tracker:    a.tracker,
			Dispatcher: a.dispatch,
			Checks:     a.readinessChecks(),
			Logger:     a.logger,
		})
	}
	return a, nil
}

// Logger returns the root logger.
func (a *App) Logger() *zap.Logger { return a.logger }

// Dispatcher returns the operation table used by the CLI and API.
func (a *App) Dispatcher() *dispatcher.Dispatcher { return a.dispatch }

// Tracker returns the in-memory progress view.
func (a *App) Tracker() *progress.Tracker { return a.tracker }

// Handler returns the ops API handler, or nil when the server is disabled.
func (a *App) Handler() http.Handler {
	if a.apiServer == nil {
		return nil
	}
	return a.apiServer.Handler()
}

// RunImport executes one import run. It is the dispatcher's RunFunc.
func (a *App) RunImport(ctx context.Context, req dispatcher.RunRequest) (importer.Summary, error) {
	summary := importer.Summary{RunID: req.RunID}
	if a.txRunner == nil {
		return summary, errors.New("db.dsn is required to import")
	}
	deps := importer.Deps{
		Fetcher: a.fetcher,
		Runner:  a.txRunner,
		Repo:    a.repo,
		Logger:  a.logger.With(zap.String("run_id", req.RunID)),
		Download: download.Options{
			MaxRetries:       a.cfg.Download.MaxRetries,
			Timeout:          a.cfg.DownloadTimeout(),
			MinFileSizeBytes: a.cfg.Download.MinFileSizeBytes,
			RetryDelay:       a.cfg.RetryDelay(),
		},
		Parallelism: a.cfg.Download.Parallelism,
		ChunkSize:   a.cfg.Batch.ChunkSize,
		Observer:    a.observer,
	}
	if a.blobs != nil {
		archiver, err := storage.NewArchiver(a.blobs, a.cfg.Archive.Prefix, req.RunID)
		if err != nil {
			return summary, fmt.Errorf("archiver init failed: %w", err)
		}
		deps.Archiver = archiver
	}
	if dir := a.cfg.Batch.DeadLetterDir; dir != "" {
		dl, err := deadletter.Open(dir, req.RunID)
		if err != nil {
			return summary, err
		}
		defer func() {
			if err := dl.Close(); err != nil {
				a.logger.Warn("dead letter close failed", zap.Error(err))
			}
		}()
		deps.BatchOptions = append(deps.BatchOptions, batch.WithDeadLetter(dl))
		a.logger.Debug("dead letter log opened", zap.String("path", dl.Path()))
	}

	importers, err := importer.Build(*a.cfg, req.Sources, deps)
	if err != nil {
		return summary, fmt.Errorf("build importers: %w", err)
	}
	runner := importer.NewRunner(importer.RunnerConfig{
		RunID:             req.RunID,
		ContinueOnFailure: req.ContinueOnFailure,
		MaxExecution:      a.cfg.MaxExecution(),
		Logger:            a.logger,
		Observer:          a.observer,
	}, importers)
	return runner.Run(ctx)
}

// Serve runs the ops API until ctx is canceled or a signal arrives, then
// drains the HTTP server and any background run.
func (a *App) Serve(ctx context.Context) error {
	if a.apiServer == nil {
		return errors.New("ops server is disabled; set server.enabled")
	}
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", a.cfg.Server.Port),
		Handler:           a.apiServer.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("http server started", zap.Int("port", a.cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			stop()
		}
	}()

	<-ctx.Done()
	a.logger.Info("shutdown initiated")
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("server shutdown error", zap.Error(err))
	}
	if runID, ok := a.dispatch.Running(); ok {
		a.logger.Info("waiting for import run", zap.String("run_id", runID))
	}
	a.dispatch.Wait()

	select {
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	default:
		return nil
	}
}

// Close waits for background runs, flushes progress sinks and releases
// clients. It is safe to call once after Build succeeds.
func (a *App) Close(ctx context.Context) error {
	if a.dispatch != nil {
		a.dispatch.Wait()
	}
	a.closeInfrastructure(ctx)
	if err := a.logger.Sync(); err != nil {
		a.logger.Debug("logger sync failed", zap.Error(err))
	}
	a.logger.Info("shutdown complete")
	return nil
}

func (a *App) closeInfrastructure(ctx context.Context) {
	if a.hub != nil {
		if err := a.hub.Close(ctx); err != nil {
			a.logger.Warn("progress hub close failed", zap.Error(err))
		}
		if dropped := a.hub.Dropped(); dropped > 0 {
			a.logger.Warn("progress events dropped", zap.Int64("count", dropped))
		}
	}
	if a.pubsubPublisher != nil {
		a.pubsubPublisher.Stop()
	}
	if a.pubsubClient != nil {
		if err := a.pubsubClient.Close(); err != nil {
			a.logger.Warn("pubsub client close failed", zap.Error(err))
		}
	}
	if a.redisClient != nil {
		if err := a.redisClient.Close(); err != nil {
			a.logger.Warn("redis client close failed", zap.Error(err))
		}
	}
	if a.gcsClient != nil {
		if err := a.gcsClient.Close(); err != nil {
			a.logger.Warn("gcs client close failed", zap.Error(err))
		}
	}
	if a.runs != nil {
		// Closes the shared pool.
		a.runs.Close()
	} else if a.pool != nil {
		a.pool.Close()
	}
}

func (a *App) setupDatabase(ctx context.Context, pool Pool) error {
	if pool == nil {
		if a.cfg.DB.DSN == "" {
			a.logger.Warn("no db.dsn configured; imports and the run ledger are unavailable")
			return nil
		}
		pgPool, err := pgstore.NewPool(ctx, pgstore.PoolConfig{
			DSN:             a.cfg.DB.DSN,
			MaxConns:        a.cfg.DB.MaxConns,
			MinConns:        a.cfg.DB.MinConns,
			MaxConnLifetime: time.Duration(a.cfg.DB.MaxConnLifetimeMinutes) * time.Minute,
		})
		if err != nil {
			return fmt.Errorf("database init failed: %w", err)
		}
		pool = pgPool
	}
	a.pool = pool

	var err error
	if a.txRunner, err = pgstore.NewRunner(pool); err != nil {
		return fmt.Errorf("transaction runner init failed: %w", err)
	}
	if a.runs, err = pgstore.NewRunStore(pool); err != nil {
		return fmt.Errorf("run store init failed: %w", err)
	}
	if a.repo, err = pgstore.NewDatasetRepository(); err != nil {
		return fmt.Errorf("dataset repository init failed: %w", err)
	}
	a.logger.Info("postgres initialized",
		zap.Int32("max_conns", a.cfg.DB.MaxConns),
		zap.Int32("min_conns", a.cfg.DB.MinConns),
	)
	return nil
}

func (a *App) setupArchive(ctx context.Context) error {
	var err error
	switch a.cfg.Archive.Backend {
	case "gcs":
		a.logger.Info("archiving payloads to GCS", zap.String("bucket", a.cfg.Archive.GCSBucket))
		a.gcsClient, err = gcstorage.NewClient(ctx)
		if err != nil {
			return fmt.Errorf("gcs client init failed: %w", err)
		}
		a.blobs, err = gcsstorage.New(a.gcsClient, gcsstorage.Config{Bucket: a.cfg.Archive.GCSBucket})
		if err != nil {
			return fmt.Errorf("gcs blob store init failed: %w", err)
		}
	case "local":
		a.logger.Info("archiving payloads locally", zap.String("path", a.cfg.Archive.BaseDir))
		a.blobs, err = localstorage.New(localstorage.Config{BaseDir: a.cfg.Archive.BaseDir})
		if err != nil {
			return fmt.Errorf("local blob store init failed: %w", err)
		}
	case "memory":
		a.logger.Info("archiving payloads in memory")
		a.blobs = memorystorage.NewBlobStore()
	default:
		a.logger.Debug("payload archiving disabled")
	}
	return nil
}

func (a *App) setupProgress(ctx context.Context, reg prometheus.Registerer) error {
	cfg := a.cfg
	a.tracker = progress.NewTracker(16)
	sinkList := []progress.Sink{
		a.tracker,
		progresssinks.NewLogSink(a.logger.Named("progress_log")),
	}
	promSink, err := progresssinks.NewPrometheusSink(reg)
	if err != nil {
		return fmt.Errorf("progress metrics init failed: %w", err)
	}
	sinkList = append(sinkList, promSink)

	if a.runs != nil {
		sinkList = append(sinkList, progresssinks.NewStoreSink(a.runs, a.logger.Named("progress_store")))
		a.logger.Debug("added progress store sink")
	}
	if cfg.Redis.Addr != "" {
		a.redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		ttl := time.Duration(cfg.Redis.TTLSeconds) * time.Second
		sinkList = append(sinkList, progresssinks.NewRedisSink(a.redisClient, cfg.Redis.KeyPrefix, ttl))
		a.logger.Info("redis progress sink enabled", zap.String("addr", cfg.Redis.Addr))
	}
	if cfg.PubSub.ProjectID != "" && cfg.PubSub.TopicName != "" {
		a.pubsubClient, err = pubsub.NewClient(ctx, cfg.PubSub.ProjectID)
		if err != nil {
			return fmt.Errorf("pubsub client init failed: %w", err)
		}
		a.pubsubPublisher = a.pubsubClient.Publisher(cfg.PubSub.TopicName)
		sinkList = append(sinkList, progresssinks.NewPublishSink(gcppublisher.New(a.pubsubPublisher), cfg.PubSub.TopicName))
		a.logger.Info("Pub/Sub progress sink enabled",
			zap.String("project", cfg.PubSub.ProjectID),
			zap.String("topic", cfg.PubSub.TopicName),
		)
	}
	if cfg.Telegram.BotToken != "" {
		bot, botErr := tgbotapi.NewBotAPI(cfg.Telegram.BotToken)
		if botErr != nil {
			a.logger.Warn("telegram reports disabled", zap.Error(botErr))
		} else {
			sinkList = append(sinkList, progresssinks.NewTelegramSink(bot, cfg.Telegram.ChatID))
			a.logger.Info("telegram progress sink enabled", zap.Int64("chat_id", cfg.Telegram.ChatID))
		}
	}

	hubCfg := progress.Config{
		BufferSize:     cfg.Progress.BufferSize,
		MaxBatchEvents: cfg.Progress.MaxBatchEvents,
		MaxBatchWait:   time.Duration(cfg.Progress.MaxBatchWaitMs) * time.Millisecond,
		SinkTimeout:    time.Duration(cfg.Progress.SinkTimeoutMs) * time.Millisecond,
		BaseContext:    context.WithoutCancel(ctx),
		Logger:         a.logger.Named("progress_hub"),
	}
	a.hub = progress.NewHub(hubCfg, sinkList...)
	a.observer = progress.NewObserver(a.hub, a.logger.Named("progress"))
	a.logger.Info("progress hub initialized",
		zap.Int("sinks", len(sinkList)),
		zap.Int("buffer_size", hubCfg.BufferSize),
		zap.Int("max_batch_events", hubCfg.MaxBatchEvents),
		zap.Duration("max_batch_wait", hubCfg.MaxBatchWait),
		zap.Duration("sink_timeout", hubCfg.SinkTimeout),
	)
	return nil
}

func (a *App) readinessChecks() []api.Check {
	var checks []api.Check
	if a.pool != nil {
		checks = append(checks, api.Check{Name: "postgres", Fn: a.pool.Ping})
	}
	if a.redisClient != nil {
		checks = append(checks, api.Check{Name: "redis", Fn: func(ctx context.Context) error {
			return a.redisClient.Ping(ctx).Err()
		}})
	}
	return checks
}

// runRepository avoids handing the API a typed nil.
func (a *App) runRepository() store.RunRepository {
	if a.runs == nil {
		return nil
	}
	return a.runs
}
