package main

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/retriever/internal/chunker"
	"github.com/kailas-cloud/retriever/internal/config"
	dbRedis "github.com/kailas-cloud/retriever/internal/db/redis"
	"github.com/kailas-cloud/retriever/internal/domain"
	"github.com/kailas-cloud/retriever/internal/index"
	"github.com/kailas-cloud/retriever/internal/loader"
	"github.com/kailas-cloud/retriever/internal/metrics"
	"github.com/kailas-cloud/retriever/internal/registry"
	"github.com/kailas-cloud/retriever/internal/repository/embcache"
	"github.com/kailas-cloud/retriever/internal/tokenizer"
	"github.com/kailas-cloud/retriever/internal/transport/hashing"
	openaiEmb "github.com/kailas-cloud/retriever/internal/transport/openai"
	"github.com/kailas-cloud/retriever/internal/usecase/build"
	"github.com/kailas-cloud/retriever/internal/usecase/embedding"
	"github.com/kailas-cloud/retriever/internal/usecase/engine"
	healthuc "github.com/kailas-cloud/retriever/internal/usecase/health"
	"github.com/kailas-cloud/retriever/internal/usecase/query"
)

// app is the composition root shared by the CLI commands.
type app struct {
	engine   *engine.Engine
	health   *healthuc.Service
	provider domain.Embedder
	closers  []func()
}

func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

func newApp(ctx context.Context, cfg config.Config, logger *zap.Logger) (*app, error) {
	a := &app{}
	ok := false
	defer func() {
		if !ok {
			a.Close()
		}
	}()

	metrics.RegisterEmbeddingMetrics()
	metrics.RegisterIndexMetrics()

	tok, err := tokenizer.New(cfg.Chunking.Encoding)
	if err != nil {
		return nil, fmt.Errorf("tokenizer: %w", err)
	}
	ch, err := chunker.New(tok, chunker.Config{
		MaxTokens:     cfg.Chunking.MaxTokens,
		OverlapTokens: cfg.Chunking.OverlapTokens,
		MinChars:      cfg.Chunking.MinChars,
		MaxUnitChars:  cfg.Chunking.MaxUnitChars,
	})
	if err != nil {
		return nil, fmt.Errorf("chunker: %w", err)
	}

	provider, model := buildProvider(cfg.Embedding, logger)

	var cache *dbRedis.Store
	if cfg.Cache.Enabled() {
		cache, err = dbRedis.NewStore(dbRedis.Config{Addrs: cfg.Cache.Addrs, Password: cfg.Cache.Password})
		if err != nil {
			return nil, fmt.Errorf("embedding cache: %w", err)
		}
		a.closers = append(a.closers, cache.Close)
		if err := cache.WaitForReady(ctx, time.Duration(cfg.Cache.ReadinessTimeout)*time.Second); err != nil {
			return nil, fmt.Errorf("embedding cache not ready: %w", err)
		}
		provider = embcache.New(provider, cache, embcache.Options{
			Model:      model,
			TTL:        time.Duration(cfg.Cache.TTLSec) * time.Second,
			CacheTotal: metrics.EmbeddingCacheTotal,
		}, logger)
		logger.Info("Embedding cache enabled", zap.Strings("addrs", cfg.Cache.Addrs))
	}
	a.provider = provider

	embCfg := embedding.Config{
		BatchSize:       cfg.Embedding.BatchSize,
		InterBatchDelay: time.Duration(cfg.Embedding.InterBatchDelayMs) * time.Millisecond,
		MaxInputChars:   cfg.Embedding.MaxInputChars,
		MaxInputTokens:  cfg.Embedding.MaxInputTokens,
		MaxRetries:      cfg.Embedding.MaxRetries,
		BackoffUnit:     time.Duration(cfg.Embedding.BackoffUnitMs) * time.Millisecond,
		Provider:        cfg.Embedding.Provider,
	}
	batcher := embedding.New(provider, tok, embCfg, logger)
	// Queries embed one text each and are not held behind build pacing.
	embCfg.InterBatchDelay = -1
	queryBatcher := embedding.New(provider, tok, embCfg, logger)

	reg, closeReg, err := openRegistry(ctx, cfg.Registry)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, closeReg)

	store := index.NewStore(cfg.Index.Dir, logger)
	loaders := loader.NewSet(loader.Config{
		Timeout:   time.Duration(cfg.Loader.TimeoutSec) * time.Second,
		MaxBytes:  cfg.Loader.MaxBytes,
		UserAgent: cfg.Loader.UserAgent,
	})
	builder := build.New(loaders, ch, batcher, store, cfg.Index.BatchSize, logger)
	querier := query.New(queryBatcher, query.Config{
		Synonyms:      cfg.Query.Synonyms,
		OverFetch:     cfg.Query.OverFetch,
		NeighborBoost: cfg.Query.NeighborBoost,
		FusionGap:     cfg.Query.FusionGap,
	}, logger)

	a.engine = engine.New(reg, builder, store, querier, logger)

	var cachePinger healthuc.CachePinger
	if cache != nil {
		cachePinger = cache
	}
	a.health = healthuc.New(a.engine, newEmbeddingHealthChecker(provider), cachePinger)

	logger.Info("Retriever assembled",
		zap.String("provider", cfg.Embedding.Provider),
		zap.String("model", model),
		zap.String("encoding", cfg.Chunking.Encoding),
		zap.String("index_dir", cfg.Index.Dir),
		zap.String("registry", cfg.Registry.Driver+":"+cfg.Registry.Path),
	)

	ok = true
	return a, nil
}

// buildProvider returns the base embedding provider and the model name that
// namespaces cached vectors.
func buildProvider(cfg config.EmbeddingConfig, logger *zap.Logger) (domain.Embedder, string) {
	if cfg.Provider == config.ProviderHashing {
		h := hashing.New(cfg.Dimensions)
		return h, h.Model()
	}
	e := openaiEmb.NewEmbedder(&openaiEmb.Config{
		APIKey:     cfg.APIKey,
		BaseURL:    cfg.BaseURL,
		Model:      cfg.Model,
		Dimensions: cfg.Dimensions,
		Provider:   cfg.Provider,
		Timeout:    time.Duration(cfg.TimeoutSec) * time.Second,
		Logger:     logger,
	})
	return e, fmt.Sprintf("%s/%d", e.Model(), cfg.Dimensions)
}

func openRegistry(ctx context.Context, cfg config.RegistryConfig) (engine.Registry, func(), error) {
	if cfg.Driver == config.RegistrySQLite {
		s, err := registry.OpenSQLite(ctx, cfg.Path)
		if err != nil {
			return nil, nil, fmt.Errorf("open source registry: %w", err)
		}
		return s, func() { _ = s.Close() }, nil
	}
	return registry.NewFile(cfg.Path), func() {}, nil
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
