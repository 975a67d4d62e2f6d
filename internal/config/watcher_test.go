package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWatcher_ReloadsOnWrite(t *testing.T) {
	path := writeConfig(t, validConfig)

	reloaded := make(chan *Config, 1)
	w, err := NewWatcher(path, "", func(cfg *Config, err error) {
		if err != nil {
			return
		}
		select {
		case reloaded <- cfg:
		default:
		}
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = w.Close() })

	assert.Equal(t, 8080, w.Snapshot().Server.HTTPPort)

	updated := []byte("version: \"1\"\nserver:\n  http_port: 8181\n")
	require.NoError(t, os.WriteFile(path, updated, 0o644))

	select {
	case cfg := <-reloaded:
		assert.Equal(t, 8181, cfg.Server.HTTPPort)
	case <-time.After(5 * time.Second):
		t.Fatal("config was not reloaded")
	}

	assert.Equal(t, 8181, w.Snapshot().Server.HTTPPort)
	assert.GreaterOrEqual(t, w.ReloadCount(), uint32(1))
}

func TestWatcher_InvalidInitialConfig(t *testing.T) {
	_, err := NewWatcher(writeConfig(t, "version: \"2\"\n"), "", nil)
	require.Error(t, err)
}
