package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"syscall"

	"github.com/julienschmidt/httprouter"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// MemoryQueueSize is the capacity of the in-process change events queue.
const MemoryQueueSize = 1024

type AppProvider interface {
	Run() error
	Serve() func() error
	Stop(context.Context, context.Context) func() error
}

type App struct {
	logger         *zap.Logger
	config         *Config
	server         *http.Server
	cleanups       []func()
	queueConsumers []func(context.Context) error
}

// NewApp provides an instance of App.
//
//nolint:funlen
func NewApp() (AppProvider, error) {
	config, err := LoadAndInitConfigs(GitCommit, GitTag, BuildTime)
	if err != nil {
		return nil, fmt.Errorf("failed to setup app configuration: %s", err)
	}
	clock := NewClock(config.IsProduction)

	// ensure the logs folder exists and Setup the logging module.
	err = os.MkdirAll(config.LogFolder, 0o700)
	if err != nil {
		return nil, fmt.Errorf("failed to create logging folder: %s", err)
	}
	logWriter := NewLogFileWriter(config, clock)
	logger, flusher := SetupLogging(config, logWriter, clock)

	app := &App{logger: logger, config: config}
	app.cleanups = append(app.cleanups, func() {
		if ferr := flusher(); ferr != nil {
			fmt.Println("error during flushing of logs: ", ferr)
		}
		if cerr := logWriter.Close(); cerr != nil {
			fmt.Println("error during closing of log file: ", cerr)
		}
	})
	fail := func(err error) (AppProvider, error) {
		app.Clean()
		return nil, err
	}

	ctx := context.Background()
	metrics := NewMetrics()

	// Setup the connection to redis server when a component relies on it.
	var redisClient *redis.Client
	if config.Storage.Driver == RedisDriver {
		redisClient, err = GetRedisClient(config)
		if err != nil {
			return fail(fmt.Errorf("failed to connect to redis server: %s", err))
		}
		app.cleanups = append(app.cleanups, func() {
			if cerr := redisClient.Close(); cerr != nil {
				logger.Error("failed to close redis client", zap.Error(cerr))
			}
		})
	}

	if config.Storage.Driver == BoltDriver {
		if err = ensureParentDir(config.BoltDB.FilePath); err != nil {
			return fail(err)
		}
	}
	stores, err := NewStores(ctx, logger, config, redisClient)
	if err != nil {
		return fail(fmt.Errorf("failed to setup storages: %s", err))
	}
	app.cleanups = append(app.cleanups, func() {
		if cerr := stores.Close(); cerr != nil {
			logger.Error("failed to close storages", zap.Error(cerr))
		}
	})

	// Setup the change events queue and the journal consumer.
	var queue Queuer
	var journal JournalReader
	if config.Journal.Enable {
		if redisClient != nil {
			queue = NewRedisQueue(redisClient, config.Storage.Namespace)
		} else {
			queue = NewMemoryQueue(MemoryQueueSize)
		}
		if err = ensureParentDir(config.Journal.FilePath); err != nil {
			return fail(err)
		}
		journalDB, err := GetBoltDBClient(&BoltDBConfig{FilePath: config.Journal.FilePath, Timeout: config.Journal.Timeout}, []string{JournalBucket}, nil)
		if err != nil {
			return fail(fmt.Errorf("failed to open journal database: %s", err))
		}
		app.cleanups = append(app.cleanups, func() {
			if cerr := journalDB.Close(); cerr != nil {
				logger.Error("failed to close journal database", zap.Error(cerr))
			}
		})
		consumer := NewJournalConsumer(logger, queue, journalDB)
		journal = consumer
		app.queueConsumers = append(app.queueConsumers, func(ctx context.Context) error {
			return consumer.Consume(ctx, JournalQueue)
		})
	}

	// Setup the api services of the configured roles.
	var catalogService CatalogServiceProvider
	if stores.Catalog != nil {
		var cache EnrichmentCache
		if config.Enrichment.CacheFile != "" {
			if err = ensureParentDir(config.Enrichment.CacheFile); err != nil {
				return fail(err)
			}
			sqlCache, err := NewSQLiteCache(config.Enrichment.CacheFile, config.Enrichment.CacheTTL, clock)
			if err != nil {
				return fail(fmt.Errorf("failed to setup enrichment cache: %s", err))
			}
			app.cleanups = append(app.cleanups, func() {
				if cerr := sqlCache.Close(); cerr != nil {
					logger.Error("failed to close enrichment cache", zap.Error(cerr))
				}
			})
			cache = sqlCache
		}
		if config.Enrichment.GeminiAPIKey == "" {
			logger.Warn("gemini api key not set: books summaries will be reported as missing")
		}
		enricher := NewEnrichmentGateway(logger, &config.Enrichment, cache, metrics)
		catalogService = NewCatalogService(logger, clock, stores.Catalog, enricher, queue, metrics)
	}

	var loanService LoanServiceProvider
	if stores.Loans != nil {
		catalogClient := NewCatalogClient(logger, &config.Catalog, metrics)
		loanService = NewLoanService(logger, clock, stores.Loans, catalogClient, queue, metrics)
	}

	apiService := NewAPIHandler(
		logger,
		config,
		&Statistics{
			version:   config.GitTag,
			container: IsAppRunningInDocker(),
			started:   clock.Now(),
			runtime:   runtime.Version(),
			platform:  runtime.GOOS + "/" + runtime.GOARCH,
		},
		clock,
		NewIDsHandler(),
		catalogService,
		loanService,
		journal,
		metrics,
	)

	// Use git commit in case the tag is not set.
	if config.GitTag == "" {
		apiService.stats.version = config.GitCommit
	}

	// Build the map of middlewares stacks.
	middlewaresPublic, middlewaresOps := apiService.MiddlewaresStacks()

	// Configure the endpoints with their handlers and middlewares.
	router := apiService.SetupRoutes(httprouter.New(),
		&MiddlewareMap{
			public: middlewaresPublic.Chain,
			ops:    middlewaresOps.Chain,
		},
	)
	// Wrap the router with the default http timeout handler.
	routerWithTimeout := http.TimeoutHandler(
		router,
		config.Server.RequestTimeout,
		"Timeout. Processing taking too long. Please reach out to support.")

	// Build the api server definition.
	app.server = &http.Server{
		Addr:           fmt.Sprintf("%s:%s", config.Server.Host, config.Server.Port),
		Handler:        routerWithTimeout,
		ReadTimeout:    config.Server.ReadTimeout,
		WriteTimeout:   config.Server.WriteTimeout,
		MaxHeaderBytes: 1 << 20, // Max headers size : 1MB
		ConnContext:    SaveConnInContext,
	}

	logger.Info("api server configured",
		zap.Strings("app.services", config.Services),
		zap.String("storage.driver", config.Storage.Driver),
		zap.Bool("journal.enabled", config.Journal.Enable),
	)
	return app, nil
}

// ensureParentDir creates the folder holding the given file if missing.
func ensureParentDir(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("failed to create folder of %s: %s", path, err)
	}
	return nil
}

// Run starts the api web server and a goroutine which is responsible to stop it.
func (app *App) Run() error {
	defer app.Clean()
	nCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gCtx := errgroup.WithContext(nCtx)

	g.Go(app.ConsumeQueues(gCtx, g))
	g.Go(app.Serve())
	g.Go(app.Stop(nCtx, gCtx))

	err := g.Wait()
	app.logger.Info("api server stopped",
		zap.String("app.host", app.config.Server.Host),
		zap.String("app.port", app.config.Server.Port),
		zap.Error(err),
	)
	return err
}

// Clean calls all registered cleanups functions in reverse order
// of registration so the logger is flushed and closed last.
func (app *App) Clean() {
	for i := len(app.cleanups) - 1; i >= 0; i-- {
		app.cleanups[i]()
	}
	app.cleanups = nil
}

// Serve starts the api web server. It returned error
// will be caught by the errorgroup.
func (app *App) Serve() func() error {
	return func() error {
		app.logger.Info("api server starting",
			zap.String("app.host", app.config.Server.Host),
			zap.String("app.port", app.config.Server.Port),
		)
		err := app.server.ListenAndServe()
		if errors.Is(err, http.ErrServerClosed) {
			err = nil
		}
		return err
	}
}

// Stop listens for the group context and triggers the server graceful shutdown.
// It states the reason of its call. We proceed with a brutal shutdown if the
// the graceful did not complete successfully. We explicitly return `nil` to
// allow the errorgroup catches only the `Serve` method result.
func (app *App) Stop(nCtx, gCtx context.Context) func() error {
	return func() error {
		<-gCtx.Done()

		if nCtx.Err() != nil {
			app.logger.Info("api server stopping. reason: requested to stop")
		} else {
			app.logger.Info("api server stopping. reason: errored at running")
		}

		sCtx, cancel := context.WithTimeout(context.Background(), app.config.Server.ShutdownTimeout)
		defer cancel()
		err := app.server.Shutdown(sCtx)
		switch {
		case err == nil, errors.Is(err, http.ErrServerClosed):
			app.logger.Info("api server graceful shutdown succeeded")
		case errors.Is(err, context.DeadlineExceeded):
			app.logger.Info("api server graceful shutdown timed out")
		default:
			app.logger.Info("api server graceful shutdown failed", zap.Error(err))
		}

		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			app.logger.Info("api server going to force shutdown", zap.Error(app.server.Close()))
		}
		return nil
	}
}

// ConsumeQueues runs all queue consumers into separate controlled goroutines.
func (app *App) ConsumeQueues(gCtx context.Context, g *errgroup.Group) func() error {
	return func() error {
		for _, consume := range app.queueConsumers {
			consume := consume
			g.Go(func() error {
				return consume(gCtx)
			})
		}
		return nil
	}
}
