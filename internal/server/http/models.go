package http

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/ekisa-team/modma/internal/model"
)

// Health states.
const (
	StatusOK       = "ok"
	StatusDegraded = "degraded"
)

// ModelStatus reports the state of the model artifacts.
type ModelStatus interface {
	Loaded() bool
	Registry() *model.Registry
}

type (
	HealthOutput struct {
		Body struct {
			Status       string `json:"status" enum:"ok,degraded"`
			ModelsLoaded bool   `json:"models_loaded"`
		}
	}

	ModelsOutput struct {
		Body struct {
			Artifacts []model.Instance `json:"artifacts"`
		}
	}
)

// ModelsHandler handles health and artifact status requests.
type ModelsHandler struct {
	models ModelStatus
}

// NewModelsHandler registers the health and models operations.
func NewModelsHandler(api huma.API, models ModelStatus) *ModelsHandler {
	h := &ModelsHandler{models: models}

	huma.Register(api, huma.Operation{
		OperationID: "health",
		Method:      http.MethodGet,
		Path:        "/health",
		Summary:     "Service health",
		Tags:        []string{"status"},
	}, h.handleHealth)

	huma.Register(api, huma.Operation{
		OperationID: "list-models",
		Method:      http.MethodGet,
		Path:        "/models",
		Summary:     "List model artifacts and their status",
		Tags:        []string{"status"},
	}, h.handleModels)

	return h
}

func (h *ModelsHandler) handleHealth(_ context.Context, _ *struct{}) (*HealthOutput, error) {
	out := &HealthOutput{}
	out.Body.ModelsLoaded = h.models.Loaded()
	out.Body.Status = StatusOK
	if !out.Body.ModelsLoaded {
		out.Body.Status = StatusDegraded
	}

	return out, nil
}

func (h *ModelsHandler) handleModels(_ context.Context, _ *struct{}) (*ModelsOutput, error) {
	out := &ModelsOutput{}
	out.Body.Artifacts = h.models.Registry().List()

	return out, nil
}
