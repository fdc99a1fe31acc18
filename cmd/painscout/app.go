package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/painscout/painscout/internal/ai"
	"github.com/painscout/painscout/internal/clustering"
	"github.com/painscout/painscout/internal/config"
	"github.com/painscout/painscout/internal/cost"
	"github.com/painscout/painscout/internal/credential"
	"github.com/painscout/painscout/internal/embedding"
	"github.com/painscout/painscout/internal/pipeline"
	"github.com/painscout/painscout/internal/storage"
)

// flushTimeout bounds how long shutdown waits for usage writes
const flushTimeout = 5 * time.Second

// app holds the wired components for one command invocation
type app struct {
	meter      *cost.Meter
	completer  ai.Completer
	embeddings *embedding.Service
	closers    []func() error
}

func newApp() (*app, error) {
	meter, err := cost.NewMeter(cfg.Cost, store, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create usage meter: %w", err)
	}
	return &app{meter: meter}, nil
}

// Close flushes pending usage events and releases provider clients
func (a *app) Close() {
	ctx, cancel := context.WithTimeout(context.Background(), flushTimeout)
	defer cancel()
	if err := a.meter.Flush(ctx); err != nil {
		logger.Warn("usage events still pending at shutdown", zap.Error(err))
	}
	for _, c := range a.closers {
		if err := c(); err != nil {
			logger.Debug("failed to close client", zap.Error(err))
		}
	}
}

// Completer lazily opens the configured text-generation provider
func (a *app) Completer(ctx context.Context) (ai.Completer, error) {
	if a.completer != nil {
		return a.completer, nil
	}
	switch cfg.AI.Provider {
	case config.ProviderGemini:
		g, err := ai.NewGeminiCompleter(ctx, ai.GeminiConfig{
			APIKey:  cfg.AI.APIKey,
			Model:   cfg.AI.Model,
			Timeout: cfg.AI.Timeout,
		})
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, g.Close)
		a.completer = g
	default:
		c, err := ai.NewAnthropicCompleter(ai.AnthropicConfig{
			APIKey:  cfg.AI.APIKey,
			Model:   cfg.AI.Model,
			BaseURL: cfg.AI.BaseURL,
			Timeout: cfg.AI.Timeout,
		})
		if err != nil {
			return nil, err
		}
		a.completer = c
	}
	return a.completer, nil
}

// Classifier builds the signal classifier on top of Completer
func (a *app) Classifier(ctx context.Context) (*ai.Classifier, error) {
	completer, err := a.Completer(ctx)
	if err != nil {
		return nil, err
	}
	return ai.NewClassifier(completer, ai.ClassifierConfig{
		MaxTokens: cfg.AI.MaxTokens,
		Breaker:   cfg.AI.Breaker,
	}, a.meter, logger)
}

// Embeddings lazily builds the embedding service
func (a *app) Embeddings(ctx context.Context) (*embedding.Service, error) {
	if a.embeddings != nil {
		return a.embeddings, nil
	}

	var provider embedding.Provider
	switch cfg.Embedding.Provider {
	case config.ProviderGemini:
		g, err := embedding.NewGeminiProvider(ctx, cfg.Embedding.APIKey, cfg.Embedding.Model, cfg.Embedding.Dimensions)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, g.Close)
		provider = g
	default:
		p, err := embedding.NewOpenAIProvider(embedding.OpenAIConfig{
			BaseURL:    cfg.Embedding.BaseURL,
			Model:      cfg.Embedding.Model,
			Dimensions: cfg.Embedding.Dimensions,
		}, embeddingCredentials())
		if err != nil {
			return nil, err
		}
		provider = p
	}

	svc, err := embedding.NewService(provider, store, cfg.Embedding.Config, a.meter, logger)
	if err != nil {
		return nil, err
	}
	a.embeddings = svc
	return svc, nil
}

// embeddingCredentials re-reads api_key_file every key_ttl when configured
func embeddingCredentials() credential.Source {
	path := cfg.Embedding.APIKeyFile
	if path == "" {
		return credential.Static(cfg.Embedding.APIKey)
	}
	ttl := cfg.Embedding.KeyTTL
	return credential.NewCache(func(ctx context.Context) (string, time.Time, error) {
		data, err := os.ReadFile(path)
		if err != nil {
			return "", time.Time{}, fmt.Errorf("failed to read embedding key file: %w", err)
		}
		token := strings.TrimSpace(string(data))
		if token == "" {
			return "", time.Time{}, errors.New("embedding key file is empty")
		}
		return token, time.Now().Add(ttl), nil
	}, credential.DefaultSkew)
}

// Orchestrator wires the classify, embed, cluster loop
func (a *app) Orchestrator(ctx context.Context) (*pipeline.Orchestrator, error) {
	classifier, err := a.Classifier(ctx)
	if err != nil {
		return nil, err
	}
	svc, err := a.Embeddings(ctx)
	if err != nil {
		return nil, err
	}
	engine, err := clustering.NewEngine(store, svc, cfg.ClusteringSettings(), logger)
	if err != nil {
		return nil, err
	}
	return pipeline.NewOrchestrator(&pipeline.OrchestratorConfig{
		Store:      store,
		Classifier: classifier,
		Embedder:   svc,
		Assigner:   engine,
		Budget:     a.meter,
		Pacer:      pipeline.NewPacer(cfg.Pipeline.ClassifyDelay),
		Settings:   cfg.Pipeline,
		Logger:     logger,
	})
}

// OpportunityBuilder wires scoring, with summaries when enabled
func (a *app) OpportunityBuilder(ctx context.Context) (*pipeline.OpportunityBuilder, error) {
	var summarizer pipeline.Summarizer
	if cfg.Pipeline.Summaries {
		completer, err := a.Completer(ctx)
		if err != nil {
			return nil, err
		}
		s, err := ai.NewSummarizer(completer, a.meter, logger)
		if err != nil {
			return nil, err
		}
		summarizer = s
	}
	return pipeline.NewOpportunityBuilder(store, cfg.ScoringModel(), cfg.Pipeline.MinSignals, summarizer, logger)
}

// withRunLock runs fn while holding the per-database run lock
func withRunLock(skip bool, fn func() error) error {
	if skip {
		return fn()
	}
	lock, err := storage.AcquireRunLock(cfg.Storage.Path)
	if err != nil {
		if errors.Is(err, storage.ErrLocked) {
			return fmt.Errorf("another painscout run is using %s (pass --no-lock to override)", cfg.Storage.Path)
		}
		return err
	}
	defer func() {
		if err := lock.Release(); err != nil {
			logger.Warn("failed to release run lock", zap.Error(err))
		}
	}()
	return fn()
}
