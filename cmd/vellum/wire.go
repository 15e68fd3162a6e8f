// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Vellum Contributors

package main

import (
	"context"
	"errors"
	"path/filepath"

	"github.com/vellum-dev/vellum/internal/cache"
	"github.com/vellum-dev/vellum/internal/cluster"
	"github.com/vellum-dev/vellum/internal/config"
	"github.com/vellum-dev/vellum/internal/embed"
	"github.com/vellum-dev/vellum/internal/entity"
	"github.com/vellum-dev/vellum/internal/remote"
	"github.com/vellum-dev/vellum/internal/server"
	"github.com/vellum-dev/vellum/internal/store"
	"github.com/vellum-dev/vellum/internal/store/sqlite"
	velerr "github.com/vellum-dev/vellum/pkg/errors"
)

// App holds all wired subsystems and manages their lifecycle.
type App struct {
	Config   *config.Config
	Remote   *remote.Client // nil without remote.base_url
	Cache    *cache.Tiered
	Embedder *embed.Service
	Store    store.VectorStore
	Cluster  *cluster.Engine
	Linker   *entity.Linker
	Server   *server.Server
}

// WireApp creates all subsystems from config and wires them together.
func WireApp(ctx context.Context, cfg *config.Config) (*App, error) {
	var client *remote.Client
	if cfg.Remote.BaseURL != "" {
		var err error
		client, err = remote.New(remoteClientConfig(cfg.Remote))
		if err != nil {
			return nil, velerr.Wrapf(err, velerr.CodeCLISetupFailure, "creating remote client")
		}
	}

	tiered, err := buildCache(cfg, client)
	if err != nil {
		return nil, velerr.Wrapf(err, velerr.CodeCLISetupFailure, "creating embedding cache")
	}

	backend, err := buildBackend(ctx, cfg, client)
	if err != nil {
		_ = tiered.Close()
		return nil, velerr.Wrapf(err, velerr.CodeCLISetupFailure, "creating embedding backend")
	}

	svc, err := embed.NewService(backend, tiered, embed.ServiceConfig{
		BatchSize:   cfg.Embedding.BatchSize,
		Concurrency: cfg.Embedding.Concurrency,
	})
	if err != nil {
		_ = backend.Close()
		_ = tiered.Close()
		return nil, velerr.Wrapf(err, velerr.CodeCLISetupFailure, "creating embedding service")
	}

	// The store's dimension follows the backend, which may have applied
	// its own model default.
	vs, err := sqlite.NewVectorStore(cfg.Store.Path, backend.Dimensions())
	if err != nil {
		_ = svc.Close()
		_ = tiered.Close()
		return nil, velerr.Wrapf(err, velerr.CodeCLISetupFailure, "opening vector store")
	}

	engine, err := cluster.NewEngine(vs, client)
	if err != nil {
		return nil, closeAll(err, svc, tiered, vs)
	}

	linker, err := entity.NewLinker(vs, svc, entity.LinkerConfig{
		MergeThreshold: cfg.Linking.MergeThreshold,
		CandidateFloor: cfg.Linking.CandidateFloor,
		TopK:           cfg.Linking.TopK,
	})
	if err != nil {
		return nil, closeAll(err, svc, tiered, vs)
	}

	srv, err := server.New(server.Config{
		ListenAddr:  cfg.Server.Listen,
		CORSOrigins: cfg.Server.CORSOrigins,
	}, client, vs)
	if err != nil {
		return nil, closeAll(err, svc, tiered, vs)
	}

	return &App{
		Config:   cfg,
		Remote:   client,
		Cache:    tiered,
		Embedder: svc,
		Store:    vs,
		Cluster:  engine,
		Linker:   linker,
		Server:   srv,
	}, nil
}

// Close releases all resources held by the app.
func (a *App) Close() error {
	type closer interface{ Close() error }
	closers := []closer{a.Embedder, a.Cache, a.Store}

	var errs []error
	for _, c := range closers {
		if c != nil {
			if err := c.Close(); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}

func closeAll(err error, closers ...interface{ Close() error }) error {
	for _, c := range closers {
		if c != nil {
			_ = c.Close()
		}
	}
	return velerr.Wrapf(err, velerr.CodeCLISetupFailure, "wiring subsystems")
}

func remoteClientConfig(rc config.RemoteConfig) remote.Config {
	return remote.Config{
		BaseURL: rc.BaseURL,
		APIKey:  rc.APIKey,
		Timeout: rc.Timeout,
		Breaker: remote.BreakerConfig{
			FailureThreshold: rc.BreakerFailureThreshold,
			SuccessThreshold: rc.BreakerSuccessThreshold,
			Cooldown:         rc.BreakerCooldown,
		},
		Retry: remote.RetryConfig{
			MaxAttempts: rc.RetryMaxAttempts,
			BaseDelay:   rc.RetryBaseDelay,
			MaxDelay:    rc.RetryMaxDelay,
		},
		RateLimit: remote.RateLimitConfig{
			MaxRequests: rc.RateLimitMaxRequests,
			Window:      rc.RateLimitWindow,
		},
		Cache: remote.ResponseCacheConfig{TTL: rc.CacheTTL},
	}
}

// buildCache stacks the configured tiers fastest first: memory, then the
// optional persistent layer, then the optional shared remote layer.
func buildCache(cfg *config.Config, client *remote.Client) (*cache.Tiered, error) {
	layers := []cache.Layer{cache.NewMemoryLayer(cfg.Cache.MemoryCapacity)}

	if cfg.Cache.Path != "" {
		sl, err := cache.NewSQLiteLayer(cfg.Cache.Path)
		if err != nil {
			return nil, err
		}
		layers = append(layers, sl)
	}

	if cfg.Cache.SharedRemote && client != nil {
		rl, err := cache.NewRemoteLayer(client)
		if err != nil {
			return nil, err
		}
		layers = append(layers, rl)
	}

	return cache.NewTiered(cache.Config{
		TTL:           cfg.Cache.TTL,
		SweepInterval: cfg.Cache.SweepInterval,
	}, layers...)
}

func buildBackend(ctx context.Context, cfg *config.Config, client *remote.Client) (embed.Backend, error) {
	ec := cfg.Embedding

	switch ec.Backend {
	case "local":
		lc := embed.LocalConfig{
			ModelVersion: ec.ModelVersion,
			Dimensions:   ec.Dimensions,
		}
		if ec.Manifest != "" {
			m, err := embed.LoadManifest(ec.Manifest)
			if err != nil {
				return nil, err
			}
			model, err := m.Lookup(ec.ModelVersion)
			if err != nil {
				return nil, err
			}
			lc.ArtifactURL = model.URL
			lc.ArtifactSHA256 = model.SHA256
			lc.Dimensions = model.Dimensions
			lc.ArtifactPath = filepath.Join(ec.ArtifactDir, model.Name+".weights")
		}
		return embed.NewLocal(lc)

	case "openai":
		return embed.NewOpenAI(embed.OpenAIConfig{
			APIKey:     ec.APIKey,
			Model:      ec.ModelVersion,
			Dimensions: ec.Dimensions,
		})

	case "google":
		return embed.NewGoogle(ctx, embed.GoogleConfig{
			APIKey:     ec.APIKey,
			Model:      ec.ModelVersion,
			Dimensions: ec.Dimensions,
		})

	case "remote":
		if client == nil {
			return nil, velerr.New(velerr.CodeEmbedBackendNotFound,
				"remote embedding backend requires remote.base_url")
		}
		return embed.NewRemote(client, embed.RemoteConfig{
			ModelVersion: ec.ModelVersion,
			Dimensions:   ec.Dimensions,
		})

	default:
		return nil, velerr.Errorf(velerr.CodeEmbedBackendNotFound,
			"unknown embedding backend %q", ec.Backend)
	}
}
