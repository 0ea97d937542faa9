package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/kefio/ColPali-Workbench/internal/config"
	dbValkey "github.com/kefio/ColPali-Workbench/internal/db/valkey"
	"github.com/kefio/ColPali-Workbench/internal/db/vespa"
	dompage "github.com/kefio/ColPali-Workbench/internal/domain/page"
	"github.com/kefio/ColPali-Workbench/internal/imaging"
	logpkg "github.com/kefio/ColPali-Workbench/internal/logger"
	"github.com/kefio/ColPali-Workbench/internal/metrics"
	"github.com/kefio/ColPali-Workbench/internal/repository/embcache"
	"github.com/kefio/ColPali-Workbench/internal/repository/feedstatus"
	pagerepo "github.com/kefio/ColPali-Workbench/internal/repository/page"
	"github.com/kefio/ColPali-Workbench/internal/repository/respcache"
	searchrepo "github.com/kefio/ColPali-Workbench/internal/repository/search"
	chiTransport "github.com/kefio/ColPali-Workbench/internal/transport/chi"
	openaiAns "github.com/kefio/ColPali-Workbench/internal/transport/openai"
	"github.com/kefio/ColPali-Workbench/internal/transport/predictor"
	feeduc "github.com/kefio/ColPali-Workbench/internal/usecase/feed"
	healthuc "github.com/kefio/ColPali-Workbench/internal/usecase/health"
	ingestuc "github.com/kefio/ColPali-Workbench/internal/usecase/ingest"
	searchuc "github.com/kefio/ColPali-Workbench/internal/usecase/search"
	"github.com/kefio/ColPali-Workbench/internal/version"
)

func main() {
	// .env is optional; real environment variables take precedence
	_ = godotenv.Load()

	env := config.GetEnv()

	cfg, err := config.Load(env)
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	logger, err := logpkg.NewLogger(env, cfg.Logging.Level)
	if err != nil {
		panic("failed to create logger: " + err.Error())
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("Starting ColPali workbench API server",
		zap.String("version", version.Version),
		zap.String("commit", version.Commit),
		zap.String("env", env),
		zap.Int("http_port", cfg.HTTP.Port),
		zap.String("vespa_endpoint", cfg.Vespa.Endpoint),
		zap.Strings("db_addrs", cfg.Database.Addrs),
	)

	metrics.RegisterEmbeddingMetrics()
	metrics.RegisterPipelineMetrics()

	ctx := context.Background()

	// Valkey: ingest status and query embedding cache
	store, err := dbValkey.NewStore(dbValkey.Config{
		Addrs:    cfg.Database.Addrs,
		Password: cfg.Database.Password,
	})
	if err != nil {
		logger.Fatal("Failed to create database store", zap.Error(err))
	}
	defer store.Close()

	if err := store.WaitForReady(ctx, time.Duration(cfg.Database.ReadinessTimeout)*time.Second); err != nil {
		logger.Fatal("Database not ready", zap.Error(err))
	}
	logger.Info("Connected to database")

	// Vespa index
	index, err := vespa.NewClient(vespa.Config{
		Endpoint:     cfg.Vespa.Endpoint,
		Token:        cfg.Vespa.Token,
		Namespace:    cfg.Vespa.Namespace,
		ConfigServer: cfg.Vespa.ConfigServer,
		AppName:      cfg.Vespa.AppName,
	}, logpkg.Component(logger, "vespa"))
	if err != nil {
		logger.Fatal("Failed to create index client", zap.Error(err))
	}
	defer index.Close()

	schemaCfg := cfg.SchemaConfig()
	if cfg.Vespa.DeployOnStart {
		if err := deploySchema(ctx, index, &cfg, logger); err != nil {
			logger.Fatal("Schema deployment failed", zap.Error(err))
		}
	}

	// Predictor chain: HTTP -> on-disk response cache -> decoding client
	predHTTP, err := predictor.NewHTTP(predictor.Config{
		Endpoint:  cfg.Embedding.Endpoint,
		HealthURL: cfg.Embedding.HealthURL,
		Token:     cfg.Embedding.Token,
		Timeout:   time.Duration(cfg.Embedding.TimeoutSec) * time.Second,
	})
	if err != nil {
		logger.Fatal("Failed to create predictor client", zap.Error(err))
	}

	var pred predictor.Predictor = predHTTP
	if cfg.Embedding.ResponseCachePath != "" {
		cache, err := respcache.Open(cfg.Embedding.ResponseCachePath, predHTTP, logpkg.Component(logger, "respcache"))
		if err != nil {
			logger.Fatal("Failed to open predictor response cache", zap.Error(err))
		}
		defer func() { _ = cache.Close() }()
		pred = cache
		logger.Info("Predictor response cache enabled",
			zap.String("path", cfg.Embedding.ResponseCachePath),
			zap.Int("entries", cache.Len()),
		)
	}
	embedder := predictor.New(pred, logpkg.Component(logger, "predictor"))
	queryEmbedder := embcache.New(
		embedder, store,
		time.Duration(cfg.Embedding.QueryCacheTTLSec)*time.Second,
		metrics.EmbeddingCacheTotal, logger,
	)

	// Feed and ingest
	builder := dompage.NewBuilder(imaging.Bounds{
		MaxWidth:  cfg.Index.ImageMaxWidth,
		MaxHeight: cfg.Index.ImageMaxHeight,
	}, logpkg.Component(logger, "builder"))
	pages := pagerepo.New(index, schemaCfg)
	feedSvc := feeduc.New(pages, logpkg.Component(logger, "feed")).WithSession(cfg.FeedSession())
	statusStore := feedstatus.New(store, time.Duration(cfg.Ingest.StatusTTLHours)*time.Hour)
	ingestSvc := ingestuc.New(embedder, builder, feedSvc, statusStore, logpkg.Component(logger, "ingest")).
		WithTimeouts(
			time.Duration(cfg.Ingest.WaitTimeoutSec)*time.Second,
			time.Duration(cfg.Ingest.JobTimeoutSec)*time.Second,
		)

	// Search
	querySession := cfg.QuerySession()
	executor := searchrepo.NewExecutor(index, querySession.Connections)
	searchSvc := searchuc.New(queryEmbedder, executor, schemaCfg, logpkg.Component(logger, "search")).
		WithTimeout(querySession.Timeout)
	if cfg.Answer.Enabled {
		searchSvc.WithAnswerer(openaiAns.NewAnswerer(&openaiAns.Config{
			APIKey:    cfg.Answer.APIKey,
			BaseURL:   cfg.Answer.BaseURL,
			Model:     cfg.Answer.Model,
			MaxTokens: cfg.Answer.MaxTokens,
			Logger:    logpkg.Component(logger, "answer"),
		}))
		logger.Info("Answer generation enabled", zap.String("model", cfg.Answer.Model))
	}

	healthSvc := healthuc.New(index, store, predHTTP)

	server := chiTransport.NewServer(ingestSvc, searchSvc, healthSvc, logger)

	r := chi.NewRouter()
	r.Use(jsonRecoverer(logger))
	r.Use(chiMiddleware.RequestID)
	r.Use(wideEventMiddleware(logger))
	r.Use(chiTransport.BearerAuthMiddleware(cfg.Auth.APIKeys))
	r.Use(metrics.Middleware())
	server.Routes(r)

	addr := fmt.Sprintf(":%d", cfg.HTTP.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  time.Duration(cfg.HTTP.ReadTimeoutSec) * time.Second,
		WriteTimeout: time.Duration(cfg.HTTP.WriteTimeoutSec) * time.Second,
	}

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	go func() {
		logger.Info("Starting HTTP server", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("HTTP server error", zap.Error(err))
		}
	}()

	<-quit
	logger.Info("Received shutdown signal")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.HTTP.ShutdownSec)*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Error during shutdown", zap.Error(err))
	}
	// Background ingest jobs outlive their requests; let them finish or time out.
	if err := ingestSvc.Close(shutdownCtx); err != nil {
		logger.Warn("Ingest jobs still running at shutdown", zap.Error(err))
	}

	logger.Info("Server stopped gracefully")
}

func deploySchema(ctx context.Context, index *vespa.Client, cfg *config.Config, logger *zap.Logger) error {
	def, err := pagerepo.Schema(cfg.SchemaConfig())
	if err != nil {
		return fmt.Errorf("build schema: %w", err)
	}
	if err := index.Deploy(ctx, def); err != nil {
		return fmt.Errorf("deploy application: %w", err)
	}
	logger.Info("Application package deployed",
		zap.String("app", cfg.Vespa.AppName),
		zap.String("schema", def.Name),
	)
	return nil
}
