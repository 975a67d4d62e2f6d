package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/ekisa-team/modma/internal/service"
)

type (
	// UploadForm is the multipart body of a pipeline request.
	UploadForm struct {
		File huma.FormFile `form:"file" required:"true" doc:"EEG recording (.raw) or epoch archive (.npz)"`
	}

	FullPipelineInput struct {
		RunInfer bool `query:"run_infer" default:"true" doc:"Classify the recording after preprocessing"`
		RawBody  huma.MultipartFormFiles[UploadForm]
	}

	FullPipelineOutput struct {
		Body any
	}
)

// PipelineHandler handles HTTP requests for the upload pipeline.
type PipelineHandler struct {
	pipeline *service.Pipeline
}

// NewPipelineHandler registers the pipeline operation.
func NewPipelineHandler(api huma.API, pipeline *service.Pipeline, cfg Config) *PipelineHandler {
	h := &PipelineHandler{pipeline: pipeline}

	huma.Register(api, huma.Operation{
		OperationID:     "full-pipeline",
		Method:          http.MethodPost,
		Path:            "/full-pipeline",
		Summary:         "Preprocess an EEG upload and optionally classify it",
		Tags:            []string{"pipeline"},
		DefaultStatus:   http.StatusOK,
		MaxBodyBytes:    cfg.MaxUploadBytes,
		BodyReadTimeout: cfg.BodyReadTimeout,
	}, h.handleFullPipeline)

	return h
}

// handleFullPipeline handles the full-pipeline operation.
func (h *PipelineHandler) handleFullPipeline(ctx context.Context, input *FullPipelineInput) (*FullPipelineOutput, error) {
	file := input.RawBody.Data().File
	if !file.IsSet {
		return nil, huma.Error400BadRequest("missing multipart field 'file'")
	}
	defer file.Close()

	if err := service.CheckFileType(file.Filename); err != nil {
		return nil, huma.Error400BadRequest(unsupportedMessage(file.Filename))
	}

	res, err := h.pipeline.Run(ctx, file.Filename, file, input.RunInfer)
	if err != nil {
		if errors.Is(err, service.ErrUnsupportedFileType) {
			return nil, huma.Error400BadRequest(unsupportedMessage(file.Filename))
		}
		return nil, huma.Error500InternalServerError(err.Error())
	}

	return &FullPipelineOutput{Body: res.Body()}, nil
}

func unsupportedMessage(name string) string {
	return fmt.Sprintf("Unsupported file type '%s'. Only .raw or .npz allowed.", name)
}
