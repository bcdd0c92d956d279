package main

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/shoplens/cartdetect/internal/analyzer"
	"github.com/shoplens/cartdetect/internal/cost"
	"github.com/shoplens/cartdetect/internal/fetcher"
	"github.com/shoplens/cartdetect/internal/llm"
	"github.com/shoplens/cartdetect/internal/pipeline"
	"github.com/shoplens/cartdetect/internal/registry"
	"github.com/shoplens/cartdetect/internal/usage"
	"github.com/shoplens/cartdetect/pkg/anthropic"
	"github.com/shoplens/cartdetect/pkg/gemini"
	"github.com/shoplens/cartdetect/pkg/openai"
)

// appEnv holds the wired application graph for a command invocation.
type appEnv struct {
	Registry    *registry.Registry
	Gateway     *llm.Router
	Store       usage.Store
	Recorder    *usage.Recorder
	Fanout      *analyzer.Fanout
	Consensus   *analyzer.Consensus
	Fetcher     *fetcher.Shopify
	Coordinator *pipeline.Coordinator
}

// initEnv builds every stage from the loaded config.
func initEnv(ctx context.Context) (*appEnv, error) {
	reg := registry.New()

	oa := openai.NewClient(cfg.OpenAI.Key, openai.WithBaseURL(cfg.OpenAI.BaseURL))
	fw := openai.NewClient(cfg.Fireworks.Key, openai.WithBaseURL(cfg.Fireworks.BaseURL))
	gem := gemini.NewClient(cfg.Gemini.Key, gemini.WithBaseURL(cfg.Gemini.BaseURL))
	ant := anthropic.NewClient(cfg.Anthropic.Key)
	gateway := llm.NewRouter(reg, oa, fw, gem, ant)

	store, err := openStore(ctx)
	if err != nil {
		return nil, err
	}
	if err := store.Migrate(ctx); err != nil {
		store.Close()
		return nil, eris.Wrap(err, "migrate usage store")
	}
	recorder := usage.NewRecorder(store, cost.NewCalculator(cost.DefaultRates()))

	fanout := analyzer.NewFanout(gateway, reg, recorder)
	consensus := analyzer.NewConsensus(gateway, reg, recorder)

	shop := fetcher.NewShopify(fetcher.Options{
		Timeout:        time.Duration(cfg.Fetch.TimeoutSecs) * time.Second,
		RequestsPerSec: cfg.Fetch.RequestsPerSec,
		RequestBurst:   cfg.Fetch.RequestBurst,
		MaxBodyBytes:   cfg.Fetch.MaxBodyBytes,
	})

	return &appEnv{
		Registry:    reg,
		Gateway:     gateway,
		Store:       store,
		Recorder:    recorder,
		Fanout:      fanout,
		Consensus:   consensus,
		Fetcher:     shop,
		Coordinator: pipeline.NewCoordinator(shop, fanout, consensus),
	}, nil
}

func openStore(ctx context.Context) (usage.Store, error) {
	switch cfg.Store.Driver {
	case "postgres":
		store, err := usage.NewPostgres(ctx, cfg.Store.DatabaseURL)
		if err != nil {
			return nil, eris.Wrap(err, "open postgres usage store")
		}
		return store, nil
	case "sqlite", "":
		store, err := usage.NewSQLite(cfg.Store.DatabaseURL)
		if err != nil {
			return nil, eris.Wrap(err, "open sqlite usage store")
		}
		return store, nil
	default:
		return nil, eris.Errorf("unknown store driver %q", cfg.Store.Driver)
	}
}

func (e *appEnv) Close() {
	if err := e.Store.Close(); err != nil {
		zap.L().Warn("closing usage store", zap.Error(err))
	}
}
