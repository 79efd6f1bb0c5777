// Package app wires configuration into a running orchestrator.
package app

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"metalsync/internal/cache"
	"metalsync/internal/config"
	"metalsync/internal/httpx"
	"metalsync/internal/orchestrator"
	"metalsync/internal/provider"
	"metalsync/internal/provider/goldapi"
	"metalsync/internal/provider/ratelimit"
	"metalsync/internal/quota"
	"metalsync/internal/store"
)

// App owns the storage handle behind the orchestrator.
type App struct {
	Orchestrator *orchestrator.Orchestrator
	Source       provider.Source
	kv           store.KV
}

// Build opens storage and assembles source, cache, quota and orchestrator.
func Build(ctx context.Context, cfg config.Config, log logrus.FieldLogger) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	kv, err := store.Open(ctx, cfg.StoreOptions())
	if err != nil {
		return nil, fmt.Errorf("open storage: %w", err)
	}
	log.WithField("driver", cfg.Storage.Driver).Info("storage opened")

	src := NewSource(cfg, log)
	return &App{
		Orchestrator: orchestrator.New(
			src,
			cache.New(kv, cache.WithKey(cfg.Sync.CacheKey), cache.WithLogger(log)),
			quota.New(kv,
				quota.WithKey(cfg.Sync.QuotaKey),
				quota.WithLimit(cfg.Sync.RefreshLimit),
				quota.WithWindow(cfg.Sync.RefreshWindow),
				quota.WithLogger(log),
			),
			orchestrator.WithTTL(cfg.Sync.CacheTTL),
			orchestrator.WithCredential(cfg.GoldAPI.APIKey),
			orchestrator.WithLogger(log),
		),
		Source: src,
		kv:     kv,
	}, nil
}

// NewSource picks the simulator when no access token is configured and
// gates the result through the configured rate limit.
func NewSource(cfg config.Config, log logrus.FieldLogger) provider.Source {
	var src provider.Source
	if cfg.UseSimulator() {
		log.Warn("no goldapi key configured or use_mock set; serving simulated quotes")
		latency := cfg.GoldAPI.SimulatedLatency
		src = goldapi.NewSimulator(goldapi.WithLatency(latency*2/5, latency))
	} else {
		httpClient := httpx.New(cfg.Server.RequestTimeout)
		src = goldapi.New(
			goldapi.WithBaseURL(cfg.GoldAPI.BaseURL),
			goldapi.WithCurrency(cfg.GoldAPI.Currency),
			goldapi.WithAPIKey(cfg.GoldAPI.APIKey),
			goldapi.WithHTTPClient(httpClient),
		)
	}
	return ratelimit.Wrap(src, ratelimit.PerMinute(cfg.GoldAPI.MaxRequestsPerMinute, cfg.GoldAPI.Burst))
}

// Close stops broadcasting and releases storage.
func (a *App) Close() error {
	a.Orchestrator.Close()
	return a.kv.Close()
}
