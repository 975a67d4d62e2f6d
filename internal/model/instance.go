package model

import (
	"time"

	"github.com/ekisa-team/modma/internal/config"
)

// Status is the current loading status of an artifact.
type Status string

const (
	// StatusUnloaded indicates that the artifact is not loaded.
	StatusUnloaded Status = "unloaded"

	// StatusLoading indicates that the artifact is being fetched or parsed.
	StatusLoading Status = "loading"

	// StatusLoaded indicates that the artifact is part of the active model set.
	StatusLoaded Status = "loaded"

	// StatusFailed indicates that the artifact could not be fetched or parsed.
	StatusFailed Status = "failed"
)

// Instance describes one declared artifact and its state.
type Instance struct {
	LoadedAt *time.Time        `json:"loaded_at,omitempty"`
	ID       string            `json:"id"`
	File     string            `json:"file"`
	Source   config.SourceType `json:"source,omitempty"`
	Path     string            `json:"-"`
	Status   Status            `json:"status"`
	Error    string            `json:"error,omitempty"`
	Cached   bool              `json:"cached"`
}

// NewInstance creates an unloaded instance for an artifact declaration.
func NewInstance(id string, cfg config.ArtifactConfig) *Instance {
	instance := &Instance{
		ID:     id,
		File:   cfg.File,
		Status: StatusUnloaded,
	}
	if src, err := cfg.GetSource(); err == nil {
		instance.Source = src.Type()
	}

	return instance
}

// SetStatus sets the status of the instance.
func (i *Instance) SetStatus(status Status) {
	i.Status = status
	if status == StatusLoaded {
		now := time.Now()
		i.LoadedAt = &now
		i.Error = ""
	}
}

// SetError marks the instance failed with err.
func (i *Instance) SetError(err error) {
	i.Status = StatusFailed
	i.Error = err.Error()
}
