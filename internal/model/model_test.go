package model

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ekisa-team/modma/internal/classifier"
	"github.com/ekisa-team/modma/internal/classifier/classifiertest"
	"github.com/ekisa-team/modma/internal/config"
)

// artifactServer serves a valid 4-channel artifact set and counts requests.
func artifactServer(t *testing.T) (*httptest.Server, *atomic.Int32) {
	t.Helper()

	dir := t.TempDir()
	classifiertest.WriteFiles(t, dir, 4, 1)

	var hits atomic.Int32
	files := http.FileServer(http.Dir(dir))
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		files.ServeHTTP(w, r)
	}))
	t.Cleanup(srv.Close)

	return srv, &hits
}

func testConfig(t *testing.T, baseURL string) *config.Config {
	t.Helper()

	cfg := config.Default()
	cfg.Storage.ModelsDir = t.TempDir()
	for _, name := range config.ArtifactNames() {
		artifact := cfg.Artifacts[name]
		artifact.SetURLSource(baseURL + "/" + artifact.File)
		cfg.Artifacts[name] = artifact
	}

	return cfg
}

func statuses(m *Manager) map[string]Status {
	out := make(map[string]Status)
	for _, instance := range m.Registry().List() {
		out[instance.ID] = instance.Status
	}

	return out
}

func TestManager_NotLoaded(t *testing.T) {
	m := NewManager()

	_, err := m.Artifacts()
	assert.ErrorIs(t, err, ErrNotLoaded)
	assert.False(t, m.Loaded())
	assert.Empty(t, m.Registry().List())
}

func TestManager_LoadFromConfig(t *testing.T) {
	srv, hits := artifactServer(t)
	cfg := testConfig(t, srv.URL)
	m := NewManager()

	require.NoError(t, m.LoadFromConfig(context.Background(), cfg))

	artifacts, err := m.Artifacts()
	require.NoError(t, err)
	assert.Equal(t, 4, artifacts.Channels)
	assert.True(t, m.Loaded())
	assert.EqualValues(t, 4, hits.Load())

	list := m.Registry().List()
	require.Len(t, list, 4)
	for _, instance := range list {
		assert.Equal(t, StatusLoaded, instance.Status, instance.ID)
		assert.Equal(t, config.SourceTypeURL, instance.Source)
		assert.False(t, instance.Cached)
		assert.NotNil(t, instance.LoadedAt)
		assert.FileExists(t, filepath.Join(cfg.Storage.ModelsDir, instance.File))
	}

	t.Run("second load uses cached files", func(t *testing.T) {
		require.NoError(t, m.LoadFromConfig(context.Background(), cfg))
		assert.EqualValues(t, 4, hits.Load())

		instance, ok := m.Registry().Get(config.ArtifactScaler)
		require.True(t, ok)
		assert.True(t, instance.Cached)
		assert.Equal(t, StatusLoaded, instance.Status)
	})
}

func TestManager_MissingSource(t *testing.T) {
	srv, _ := artifactServer(t)
	cfg := testConfig(t, srv.URL)
	artifact := cfg.Artifacts[config.ArtifactClassifier]
	artifact.Source = config.SourceConfig{}
	cfg.Artifacts[config.ArtifactClassifier] = artifact

	m := NewManager()
	err := m.LoadFromConfig(context.Background(), cfg)
	require.ErrorIs(t, err, config.ErrNoSource)
	assert.ErrorContains(t, err, "artifact classifier")

	got := statuses(m)
	assert.Equal(t, StatusFailed, got[config.ArtifactClassifier])
	assert.Equal(t, StatusUnloaded, got[config.ArtifactCSP])

	_, err = m.Artifacts()
	assert.ErrorIs(t, err, ErrNotLoaded)
}

func TestManager_InvalidArtifact(t *testing.T) {
	srv, _ := artifactServer(t)
	cfg := testConfig(t, srv.URL)
	require.NoError(t, os.WriteFile(filepath.Join(cfg.Storage.ModelsDir, classifiertest.ScalerFile), []byte("{"), 0o644))

	m := NewManager()
	err := m.LoadFromConfig(context.Background(), cfg)
	require.ErrorIs(t, err, classifier.ErrInvalidArtifact)

	for id, status := range statuses(m) {
		assert.Equal(t, StatusFailed, status, id)
	}

	instance, ok := m.Registry().Get(config.ArtifactScaler)
	require.True(t, ok)
	assert.True(t, instance.Cached)
	assert.NotEmpty(t, instance.Error)
}

func TestManager_FailedReloadKeepsActiveSet(t *testing.T) {
	srv, _ := artifactServer(t)
	cfg := testConfig(t, srv.URL)

	m := NewManager()
	require.NoError(t, m.LoadFromConfig(context.Background(), cfg))
	before, err := m.Artifacts()
	require.NoError(t, err)

	broken := testConfig(t, srv.URL)
	artifact := broken.Artifacts[config.ArtifactCSP]
	artifact.Source = config.SourceConfig{}
	broken.Artifacts[config.ArtifactCSP] = artifact

	require.Error(t, m.LoadFromConfig(context.Background(), broken))

	after, err := m.Artifacts()
	require.NoError(t, err)
	assert.Same(t, before, after)

	for id, st := range statuses(m) {
		assert.Equal(t, StatusLoaded, st, id)
	}
	require.Len(t, m.Registry().List(), 4)

	require.NoError(t, m.LoadFromConfig(context.Background(), cfg))
	for id, st := range statuses(m) {
		assert.Equal(t, StatusLoaded, st, id)
	}
}

func TestManager_Bootstrap(t *testing.T) {
	srv, _ := artifactServer(t)

	broken := func() *config.Config {
		cfg := testConfig(t, srv.URL)
		artifact := cfg.Artifacts[config.ArtifactScaler]
		artifact.Source = config.SourceConfig{}
		cfg.Artifacts[config.ArtifactScaler] = artifact
		return cfg
	}

	t.Run("strict", func(t *testing.T) {
		cfg := broken()
		cfg.Bootstrap.Strict = true
		assert.Error(t, NewManager().Bootstrap(context.Background(), cfg))
	})

	t.Run("non-strict", func(t *testing.T) {
		cfg := broken()
		cfg.Bootstrap.Strict = false

		m := NewManager()
		require.NoError(t, m.Bootstrap(context.Background(), cfg))
		_, err := m.Artifacts()
		assert.ErrorIs(t, err, ErrNotLoaded)
	})

	t.Run("success", func(t *testing.T) {
		m := NewManager()
		require.NoError(t, m.Bootstrap(context.Background(), testConfig(t, srv.URL)))
		assert.True(t, m.Loaded())
	})
}

func TestRegistry(t *testing.T) {
	r := NewRegistry()
	r.Set(&Instance{ID: "scaler", Status: StatusUnloaded})
	r.Set(&Instance{ID: "csp", Status: StatusUnloaded})

	list := r.List()
	require.Len(t, list, 2)
	assert.Equal(t, "csp", list[0].ID)
	assert.Equal(t, "scaler", list[1].ID)

	got, ok := r.Get("csp")
	require.True(t, ok)
	got.Status = StatusFailed
	again, _ := r.Get("csp")
	assert.Equal(t, StatusUnloaded, again.Status, "Get returns a copy")

	require.NoError(t, r.Update("csp", func(i *Instance) { i.SetStatus(StatusLoaded) }))
	again, _ = r.Get("csp")
	assert.Equal(t, StatusLoaded, again.Status)
	assert.NotNil(t, again.LoadedAt)

	assert.ErrorIs(t, r.Update("missing", func(*Instance) {}), ErrNotFound)

	r.Delete("csp")
	_, ok = r.Get("csp")
	assert.False(t, ok)
}

func TestNewInstance(t *testing.T) {
	cfg := config.Default().Artifacts[config.ArtifactCSP]
	instance := NewInstance(config.ArtifactCSP, cfg)

	assert.Equal(t, "csp_pipeline.json", instance.File)
	assert.Equal(t, config.SourceTypeHuggingFace, instance.Source)
	assert.Equal(t, StatusUnloaded, instance.Status)

	instance.SetError(assert.AnError)
	assert.Equal(t, StatusFailed, instance.Status)
	assert.Equal(t, assert.AnError.Error(), instance.Error)
}
