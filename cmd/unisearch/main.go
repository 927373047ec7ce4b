package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/kailas-cloud/unisearch/internal/config"
	dbRedis "github.com/kailas-cloud/unisearch/internal/db/redis"
	"github.com/kailas-cloud/unisearch/internal/domain"
	logpkg "github.com/kailas-cloud/unisearch/internal/logger"
	"github.com/kailas-cloud/unisearch/internal/metrics"
	"github.com/kailas-cloud/unisearch/internal/repository/adapter"
	analyticsrepo "github.com/kailas-cloud/unisearch/internal/repository/analytics"
	"github.com/kailas-cloud/unisearch/internal/repository/coordination"
	"github.com/kailas-cloud/unisearch/internal/repository/embcache"
	manifestrepo "github.com/kailas-cloud/unisearch/internal/repository/manifest"
	"github.com/kailas-cloud/unisearch/internal/repository/resultcache"
	"github.com/kailas-cloud/unisearch/internal/repository/source"
	chiTransport "github.com/kailas-cloud/unisearch/internal/transport/chi"
	openaiEmb "github.com/kailas-cloud/unisearch/internal/transport/openai"
	analyticsuc "github.com/kailas-cloud/unisearch/internal/usecase/analytics"
	embeddinguc "github.com/kailas-cloud/unisearch/internal/usecase/embedding"
	healthuc "github.com/kailas-cloud/unisearch/internal/usecase/health"
	"github.com/kailas-cloud/unisearch/internal/usecase/indexing"
	"github.com/kailas-cloud/unisearch/internal/usecase/ranking"
	"github.com/kailas-cloud/unisearch/internal/usecase/schedule"
	searchuc "github.com/kailas-cloud/unisearch/internal/usecase/search"
	"github.com/kailas-cloud/unisearch/internal/version"
)

func main() {
	// Load configuration based on ENV
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

	logger.Info("Starting unisearch API server",
		zap.String("version", version.Version),
		zap.String("commit", version.Commit),
		zap.String("env", env),
		zap.Int("http_port", cfg.HTTP.Port),
		zap.Strings("db_addrs", cfg.Database.Addrs),
		zap.Bool("embedding", cfg.Embedding.Enabled()),
		zap.Bool("schedule", cfg.Schedule.Enabled),
	)

	store, err := dbRedis.NewStore(dbRedis.Config{
		Addrs:    cfg.Database.Addrs,
		Username: cfg.Database.Username,
		Password: cfg.Database.Password,
		DB:       cfg.Database.DB,
	})
	if err != nil {
		logger.Fatal("Failed to create database store", zap.Error(err))
	}
	defer store.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := store.WaitForReady(ctx, time.Duration(cfg.Database.ReadinessTimeout)*time.Second); err != nil {
		logger.Fatal("Database not ready", zap.Error(err))
	}
	logger.Info("Connected to database")

	// Register domain metrics explicitly (no init())
	metrics.RegisterSearchMetrics()
	metrics.RegisterIndexMetrics()
	metrics.RegisterEmbeddingMetrics()

	prefix := cfg.Storage.KeyPrefix
	records := source.New(store, prefix)
	adapters := adapter.All(records, cfg.Index.MaxDocsPerModule)
	searchers := make([]searchuc.ModuleSearcher, len(adapters))
	exporters := make([]indexing.Exporter, len(adapters))
	for i, a := range adapters {
		searchers[i] = a
		exporters[i] = a
	}

	cache := resultcache.New(store, prefix)
	analyticsSvc, err := analyticsuc.New(
		analyticsrepo.New(store, prefix, time.Duration(cfg.Analytics.EventTTLDays)*24*time.Hour),
		analyticsuc.Options{
			Workers:         cfg.Analytics.Workers,
			SuggestCacheTTL: time.Duration(cfg.Search.SuggestCacheTTLSec) * time.Second,
		},
		logger,
	)
	if err != nil {
		logger.Fatal("Failed to create analytics service", zap.Error(err))
	}
	defer analyticsSvc.Close()

	searchDeps := searchuc.Deps{Adapters: searchers, Cache: cache, Analytics: analyticsSvc}
	weights := ranking.DefaultWeights()
	weights.Semantic = cfg.Search.SemanticWeight

	// Pass nil interfaces (not typed nil pointers) when embedding is not configured.
	var (
		indexer       *indexing.Service
		transportIdx  chiTransport.Indexer
		embedChecker  healthuc.EmbeddingChecker
		indexChecker  healthuc.IndexChecker
		schedulerDone = make(chan struct{})
	)
	if cfg.Embedding.Enabled() {
		embedder := buildEmbedder(cfg.Embedding, prefix, store, logger)
		provider, err := embeddinguc.NewProvider(embedder, embeddinguc.ProviderConfig{
			BatchSize: cfg.Embedding.BatchSize,
			Workers:   cfg.Embedding.Workers,
		}, logger)
		if err != nil {
			logger.Fatal("Failed to create embedding provider", zap.Error(err))
		}
		defer provider.Release()

		manifests, err := manifestrepo.Open(cfg.Index.ManifestPath)
		if err != nil {
			logger.Fatal("Failed to open manifest store", zap.Error(err))
		}
		defer func() { _ = manifests.Close() }()

		indexer = indexing.New(indexing.Deps{
			Exporters: exporters,
			Provider:  provider,
			Manifests: manifests,
			Locks:     coordination.NewLocks(store, prefix, time.Duration(cfg.Index.LockTTLSec)*time.Second),
			Tokens:    coordination.NewTokens(store, prefix, time.Duration(cfg.Index.IdempotencyTTLSec)*time.Second),
			Cache:     cache,
		}, indexing.Options{
			DataDir:          cfg.Index.DataDir,
			MaxDocsPerModule: cfg.Index.MaxDocsPerModule,
			FullTimeout:      time.Duration(cfg.Index.FullRebuildTimeoutMin) * time.Minute,
			KeepArtifacts:    cfg.Index.KeepArtifacts,
		}, logger)
		defer indexer.Close()
		if err := indexer.Load(ctx); err != nil {
			logger.Fatal("Failed to load live indexes", zap.Error(err))
		}

		searchDeps.Embedder = provider
		searchDeps.Index = indexer
		transportIdx = indexer
		embedChecker = newEmbeddingHealthChecker(embedder)
		indexChecker = indexer
		logger.Info("Embedding provider ready",
			zap.String("provider", cfg.Embedding.Provider),
			zap.String("model", cfg.Embedding.Model),
			zap.Bool("index_live", indexer.HasLiveIndex()),
		)
	}

	searchSvc := searchuc.New(searchDeps, searchuc.Options{
		CacheTTL:           time.Duration(cfg.Search.CacheTTLSec) * time.Second,
		AdapterTimeout:     time.Duration(cfg.Search.AdapterTimeoutMs) * time.Millisecond,
		Weights:            weights,
		SemanticCandidates: cfg.Search.SemanticCandidates,
	})
	healthSvc := healthuc.New(store, embedChecker, indexChecker)

	server := chiTransport.NewServer(chiTransport.Deps{
		Search:    searchSvc,
		Analytics: analyticsSvc,
		Index:     transportIdx,
		Health:    healthSvc,
	}, cfg.Search.DefaultLimit, logger)

	r := chi.NewRouter()
	r.Use(jsonRecoverer(logger))
	r.Use(chiMiddleware.RequestID)
	r.Use(wideEventMiddleware(logger))
	r.Use(chiTransport.BearerAuthMiddleware(cfg.Auth.APIKeys))
	r.Use(metrics.Middleware("/metrics", "/health"))
	server.Register(r)

	if cfg.Schedule.Enabled && indexer != nil {
		sched := schedule.New(indexer, schedule.Options{
			FullInterval:        cfg.Schedule.FullEvery(),
			IncrementalInterval: cfg.Schedule.IncrementalEvery(),
		}, logger)
		go func() {
			defer close(schedulerDone)
			if err := sched.Run(ctx); err != nil {
				logger.Error("Index scheduler stopped", zap.Error(err))
			}
		}()
	} else {
		close(schedulerDone)
	}

	addr := fmt.Sprintf(":%d", cfg.HTTP.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  time.Duration(cfg.HTTP.ReadTimeoutSec) * time.Second,
		WriteTimeout: time.Duration(cfg.HTTP.WriteTimeoutSec) * time.Second,
	}

	go func() {
		logger.Info("Starting HTTP server", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("HTTP server error", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Info("Received shutdown signal")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.HTTP.ShutdownSec)*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Error during shutdown", zap.Error(err))
	}
	<-schedulerDone

	logger.Info("Server stopped gracefully")
}

// embeddingHealthChecker wraps domain.Embedder to implement health.EmbeddingChecker.
type embeddingHealthChecker struct {
	embedder domain.Embedder
}

func newEmbeddingHealthChecker(embedder domain.Embedder) *embeddingHealthChecker {
	return &embeddingHealthChecker{embedder: embedder}
}

func (h *embeddingHealthChecker) HealthCheck(ctx context.Context) error {
	if hc, ok := h.embedder.(domain.HealthChecker); ok {
		if err := hc.HealthCheck(ctx); err != nil {
			return fmt.Errorf("embedding health check: %w", err)
		}
	}
	return nil
}

// buildEmbedder assembles the decorator chain: OpenAI -> Cached -> Instrumented.
func buildEmbedder(cfg config.EmbeddingConfig, prefix string, store *dbRedis.Store, logger *zap.Logger) domain.Embedder {
	// Base provider (with transport metrics built-in)
	base := openaiEmb.NewEmbedder(&openaiEmb.Config{
		APIKey:     cfg.APIKey,
		BaseURL:    cfg.BaseURL,
		Model:      cfg.Model,
		Dimensions: cfg.Dimensions,
		Provider:   cfg.Provider,
		Logger:     logger,
	})

	cached := embcache.New(base, store, embcache.Options{
		KeyPrefix: prefix,
		Model:     cfg.Model,
		TTL:       time.Duration(cfg.CacheTTLH) * time.Hour,
	}, metrics.EmbeddingCacheTotal, logger)

	return embeddinguc.NewInstrumentedEmbedder(cached, cfg.Provider, cfg.Model, logger)
}

// jsonRecoverer is a recovery middleware that returns JSON instead of a plain text stacktrace.
func jsonRecoverer(logger *zap.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rvr := recover(); rvr != nil {
					if rvr == http.ErrAbortHandler {
						panic(rvr)
					}
					logger.Error("panic recovered",
						zap.Any("panic", rvr),
						zap.String("path", r.URL.Path),
						zap.Stack("stacktrace"),
					)
					w.Header().Set("Content-Type", "application/json")
					w.WriteHeader(http.StatusInternalServerError)
					_ = json.NewEncoder(w).Encode(chiTransport.ErrorResponse{
						Code:    chiTransport.CodeInternalError,
						Message: "internal error",
					})
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// wideEventMiddleware emits a canonical log line per request and propagates X-Request-ID.
func wideEventMiddleware(logger *zap.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			// chi.middleware.RequestID already placed request_id in context
			requestID := chiMiddleware.GetReqID(r.Context())
			if requestID != "" {
				w.Header().Set("X-Request-ID", requestID)
			}

			reqLogger := logger.With(zap.String("request_id", requestID))
			ctx := logpkg.ContextWithLogger(r.Context(), reqLogger)

			ww := chiMiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r.WithContext(ctx))

			reqLogger.Info("http_request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.String("tenant_id", r.Header.Get(chiTransport.HeaderTenantID)),
				zap.Int("status", ww.Status()),
				zap.Duration("latency", time.Since(start)),
				zap.String("ip", r.RemoteAddr),
				zap.String("correlation_id", ww.Header().Get("X-Correlation-ID")),
				zap.Int("response_bytes", ww.BytesWritten()),
			)
		})
	}
}
