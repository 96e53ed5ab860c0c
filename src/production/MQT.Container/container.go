package container

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"

	config "gitlab.com/maplesense1/mpt.telemetry_ingestor/src/production/MQT.Config"
	mqtingestor "gitlab.com/maplesense1/mpt.telemetry_ingestor/src/production/MQT.IngestorService/ingestor"
	"gitlab.com/maplesense1/mpt.telemetry_ingestor/src/production/MQT.IngestorService/liveness"
	logger "gitlab.com/maplesense1/mpt.telemetry_ingestor/src/production/MQT.Logger"
	metrics "gitlab.com/maplesense1/mpt.telemetry_ingestor/src/production/MQT.Metrics"
	implementation "gitlab.com/maplesense1/mpt.telemetry_ingestor/src/production/MQT.Repository/Implementation"
	interfaces "gitlab.com/maplesense1/mpt.telemetry_ingestor/src/production/MQT.Repository/Interfaces"
	"gitlab.com/maplesense1/mpt.telemetry_ingestor/src/production/MQT.Startup/controllers"
	"gitlab.com/maplesense1/mpt.telemetry_ingestor/src/production/MQT.Startup/health"
	"golang.org/x/sync/errgroup"
)

// IngestorContainer manages dependencies and lifecycle for the telemetry ingestor
type IngestorContainer struct {
	config  *config.TelemetryConfig
	logger  *logger.Logger
	metrics *metrics.Metrics

	repo     interfaces.TelemetryRepository
	ingestor *mqtingestor.Ingestor
	monitor  *liveness.Monitor
	server   *http.Server

	// schemaPending is set when EnsureSchema could not run at startup
	schemaPending bool

	mu           sync.Mutex
	cleanupFuncs []func(ctx context.Context) error
}

// NewIngestorContainer loads configuration and creates the logger and metrics.
// Nothing is connected yet.
func NewIngestorContainer() (*IngestorContainer, error) {
	cfg, err := config.LoadTelemetryConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load ingestor configuration: %w", err)
	}
	return NewIngestorContainerFromConfig(cfg, logger.NewLogger(&cfg.Logging)), nil
}

func NewIngestorContainerFromConfig(cfg *config.TelemetryConfig, log *logger.Logger) *IngestorContainer {
	return &IngestorContainer{
		config:  cfg,
		logger:  log.WithService("telemetry-ingestor"),
		metrics: metrics.NewMetrics(),
	}
}

// GetConfig returns the ingestor configuration
func (c *IngestorContainer) GetConfig() *config.TelemetryConfig {
	return c.config
}

// GetLogger returns the logger
func (c *IngestorContainer) GetLogger() *logger.Logger {
	return c.logger
}

// GetRepository builds the store client selected by the URL scheme and wraps it
// with the Redis mirror when one is configured. The client connects lazily: an
// unreachable store is logged and left to the liveness monitor, which also
// retries index creation. Only an unusable URL is an error.
func (c *IngestorContainer) GetRepository(ctx context.Context) (interfaces.TelemetryRepository, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.repo != nil {
		return c.repo, nil
	}

	store := c.config.Store
	var (
		repo    interfaces.TelemetryRepository
		pingErr error
	)

	switch store.Driver {
	case config.StoreMongo:
		client, err := health.ConnectMongoWithTimeout(ctx, store.URL, store.ConnectTimeout)
		if err != nil {
			return nil, fmt.Errorf("failed to create database client: %w", err)
		}
		pingErr = health.PingMongo(ctx, client, store.ConnectTimeout)
		repo = implementation.NewMongoTelemetryRepository(client.Database(store.Database), store.OpTimeout, store.HistoryLimit, store.ReadingHistoryLimit)
	case config.StorePostgres:
		pool, err := health.ConnectPostgresWithTimeout(ctx, store.URL, store.ConnectTimeout)
		if err != nil {
			return nil, fmt.Errorf("failed to create database pool: %w", err)
		}
		pingErr = health.PingPostgres(ctx, pool, store.ConnectTimeout)
		repo = implementation.NewPostgresTelemetryRepository(pool, store.OpTimeout, store.HistoryLimit, store.ReadingHistoryLimit)
	default:
		return nil, fmt.Errorf("unsupported store driver %q", store.Driver)
	}

	if pingErr != nil {
		c.logger.Logger.Warn().Err(pingErr).Str("driver", string(store.Driver)).Msg("Store unreachable at startup, continuing")
		c.schemaPending = true
	} else {
		c.logger.Logger.Info().Str("driver", string(store.Driver)).Str("database", store.Database).Msg("Connected to store")

		schemaCtx, cancel := context.WithTimeout(ctx, store.ConnectTimeout)
		err := repo.EnsureSchema(schemaCtx)
		cancel()
		if err != nil {
			c.logger.Logger.Warn().Err(err).Msg("Failed to ensure store schema, will retry")
			c.schemaPending = true
		}
	}

	if c.config.Cache.Enabled() {
		rdb, err := health.ConnectRedisWithTimeout(ctx, c.config.Cache, store.ConnectTimeout)
		if err != nil {
			// the mirror is optional; run without it
			c.logger.Logger.Warn().Err(err).Msg("Redis unavailable, latest-state mirror disabled")
		} else {
			repo = implementation.NewCachedTelemetryRepository(repo, rdb, c.config.Cache.TTL, c.logger)
			c.logger.Logger.Info().Str("addr", c.config.Cache.Addr).Msg("Latest-state mirror enabled")
		}
	}

	c.repo = repo
	c.cleanupFuncs = append(c.cleanupFuncs, repo.Close)
	return repo, nil
}

// Build wires the pipeline, bus subscriber, liveness monitor and ops server around repo
func (c *IngestorContainer) Build(repo interfaces.TelemetryRepository) error {
	d := mqtingestor.NewDispatcher(mqtingestor.NewPipeline(repo, c.metrics), c.config.Bus.DispatchBuffer, c.metrics, c.logger)

	var sub mqtingestor.Subscriber
	switch c.config.Bus.Driver {
	case config.BusMQTT:
		sub = mqtingestor.NewMQTTSubscriber(c.config.MQTT, c.config.Bus.ReconnectInterval, d, c.metrics, c.logger)
	case config.BusAMQP:
		sub = mqtingestor.NewAMQPSubscriber(c.config.AMQP, c.config.Bus.ReconnectInterval, d, c.metrics, c.logger)
	default:
		return fmt.Errorf("unsupported bus driver %q", c.config.Bus.Driver)
	}

	c.ingestor = mqtingestor.New(sub, d, c.logger)
	c.monitor = liveness.NewMonitor(repo, c.config.Liveness.Interval, c.config.Liveness.Timeout, c.metrics, c.logger)
	if c.schemaPending {
		c.monitor.RequireSchema()
	}

	ops := controllers.NewControllers(repo, c.ingestor, c.metrics.Handler(), c.config.Liveness.Timeout, c.logger)
	c.server = &http.Server{
		Addr:         ":" + c.config.Server.Port,
		Handler:      controllers.NewRouter(ops),
		ReadTimeout:  c.config.Server.ReadTimeout,
		WriteTimeout: c.config.Server.WriteTimeout,
		IdleTimeout:  c.config.Server.IdleTimeout,
	}
	return nil
}

// Run starts ingestion and blocks until ctx is cancelled or the ops server fails.
// Shutdown is performed by the caller.
func (c *IngestorContainer) Run(ctx context.Context) error {
	if c.ingestor == nil {
		return errors.New("container not built")
	}

	if err := c.ingestor.Start(ctx); err != nil {
		return fmt.Errorf("failed to start ingestor: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return c.monitor.Run(gctx)
	})

	g.Go(func() error {
		c.logger.Logger.Info().Str("addr", c.server.Addr).Msg("Ops server starting")
		if err := c.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("ops server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), c.config.Server.WriteTimeout)
		defer cancel()
		return c.server.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

// Shutdown stops the bus, drains queued messages into the store until ctx
// expires, then closes the store
func (c *IngestorContainer) Shutdown(ctx context.Context) error {
	c.logger.Info("Shutting down ingestor container...")

	var errs []error
	if c.ingestor != nil {
		if err := c.ingestor.Stop(ctx); err != nil {
			c.logger.ErrorWithError(err, "Ingestor did not drain before the deadline")
			errs = append(errs, err)
		}
	}

	c.mu.Lock()
	funcs := c.cleanupFuncs
	c.cleanupFuncs = nil
	c.mu.Unlock()

	// Execute cleanup functions in reverse order
	for i := len(funcs) - 1; i >= 0; i-- {
		if err := funcs[i](ctx); err != nil {
			c.logger.ErrorWithError(err, "Error during cleanup")
			errs = append(errs, err)
		}
	}

	c.logger.Info("Ingestor container shutdown complete")
	return errors.Join(errs...)
}

// AddCleanupFunc adds a cleanup function
func (c *IngestorContainer) AddCleanupFunc(fn func(ctx context.Context) error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cleanupFuncs = append(c.cleanupFuncs, fn)
}
