package model

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/ekisa-team/modma/internal/classifier"
	"github.com/ekisa-team/modma/internal/config"
	"github.com/ekisa-team/modma/internal/config/source"
	"github.com/ekisa-team/modma/internal/storage"
	"github.com/ekisa-team/modma/internal/xfs"
)

// Manager fetches the declared artifacts and owns the active model set.
type Manager struct {
	registry  *Registry
	artifacts *classifier.Artifacts
	mu        sync.RWMutex
}

// NewManager creates a manager with an empty registry.
func NewManager() *Manager {
	return &Manager{registry: NewRegistry()}
}

// Registry returns the registry describing the active model set. While no set
// is active it tracks the load in progress.
func (m *Manager) Registry() *Registry {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.registry
}

// Artifacts returns the active model set or ErrNotLoaded.
func (m *Manager) Artifacts() (*classifier.Artifacts, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.artifacts == nil {
		return nil, ErrNotLoaded
	}

	return m.artifacts, nil
}

// Loaded reports whether a model set is active.
func (m *Manager) Loaded() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.artifacts != nil
}

// Bootstrap loads the artifacts and applies the configured strictness.
// Non-strict failures are logged and leave the manager without a model set.
func (m *Manager) Bootstrap(ctx context.Context, cfg *config.Config) error {
	err := m.LoadFromConfig(ctx, cfg)
	if err == nil {
		return nil
	}
	if cfg.Bootstrap.Strict {
		return err
	}

	slog.Warn("Artifact bootstrap failed, inference disabled until next reload", "error", err)
	return nil
}

// LoadFromConfig fetches every declared artifact concurrently, loads them
// as one set, and swaps it in. On failure the previous set stays active.
func (m *Manager) LoadFromConfig(ctx context.Context, cfg *config.Config) error {
	registry := NewRegistry()
	for _, name := range config.ArtifactNames() {
		registry.Set(NewInstance(name, cfg.Artifacts[name]))
	}

	m.mu.Lock()
	if m.artifacts == nil {
		m.registry = registry
	}
	m.mu.Unlock()

	modelsDir := xfs.ExpandTilde(cfg.Storage.ModelsDir)
	if modelsDir == "" {
		modelsDir = xfs.ExpandTilde(config.DefaultModelsPath())
	}
	if err := source.EnsureModelsDirectory(modelsDir); err != nil {
		return err
	}
	store, err := storage.NewLocal(modelsDir)
	if err != nil {
		return fmt.Errorf("failed to open models directory %s: %w", modelsDir, err)
	}

	paths := make(map[string]string, len(config.ArtifactNames()))
	var pathsMu sync.Mutex

	var g errgroup.Group
	for _, name := range config.ArtifactNames() {
		artifact := cfg.Artifacts[name]
		g.Go(func() error {
			path, cached, err := fetch(ctx, registry, name, &artifact, store)
			if err != nil {
				_ = registry.Update(name, func(i *Instance) { i.SetError(err) })
				return fmt.Errorf("artifact %s: %w", name, err)
			}

			_ = registry.Update(name, func(i *Instance) {
				i.Path = path
				i.Cached = cached
			})
			pathsMu.Lock()
			paths[name] = path
			pathsMu.Unlock()

			return nil
		})
	}

	if err := g.Wait(); err != nil {
		for _, name := range config.ArtifactNames() {
			_ = registry.Update(name, func(i *Instance) {
				if i.Status == StatusLoading {
					i.SetStatus(StatusUnloaded)
				}
			})
		}
		return err
	}

	artifacts, err := classifier.LoadArtifacts(classifier.ArtifactPaths{
		CSP:          paths[config.ArtifactCSP],
		TangentSpace: paths[config.ArtifactTangentSpace],
		Scaler:       paths[config.ArtifactScaler],
		Classifier:   paths[config.ArtifactClassifier],
	})
	if err != nil {
		for _, name := range config.ArtifactNames() {
			_ = registry.Update(name, func(i *Instance) { i.SetError(err) })
		}
		return fmt.Errorf("failed to load artifacts: %w", err)
	}

	for _, name := range config.ArtifactNames() {
		_ = registry.Update(name, func(i *Instance) { i.SetStatus(StatusLoaded) })
	}

	m.mu.Lock()
	m.registry = registry
	m.artifacts = artifacts
	m.mu.Unlock()

	slog.Info("Model artifacts loaded", "models_dir", modelsDir, "channels", artifacts.Channels,
		"components", artifacts.CSP.Components(), "features", artifacts.Width())

	return nil
}

func fetch(ctx context.Context, registry *Registry, name string, artifact *config.ArtifactConfig, store *storage.Local) (string, bool, error) {
	_ = registry.Update(name, func(i *Instance) { i.SetStatus(StatusLoading) })

	if artifact.File == "" {
		return "", false, fmt.Errorf("no file name declared")
	}

	src, err := artifact.GetSource()
	if err != nil {
		return "", false, err
	}

	downloader, err := source.GetDownloader(ctx, src.Type())
	if err != nil {
		return "", false, err
	}

	return downloader.Download(ctx, artifact, store)
}
