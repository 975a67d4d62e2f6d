// Package service runs the upload pipeline: save, preprocess and classify.
package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/ekisa-team/modma/internal/classifier"
	"github.com/ekisa-team/modma/internal/preprocess"
	"github.com/ekisa-team/modma/internal/storage"
	"github.com/ekisa-team/modma/internal/telemetry"
	"github.com/ekisa-team/modma/internal/xfs"
)

// ErrUnsupportedFileType is returned for uploads that are neither .raw nor .npz.
var ErrUnsupportedFileType = errors.New("unsupported file type")

// MessagePreprocessed is returned when inference is skipped.
const MessagePreprocessed = "Preprocessing complete"

// Pipeline stages.
const (
	StageSave       = "save"
	StagePreprocess = "preprocess"
	StageInfer      = "infer"
)

var stagePrefix = map[string]string{
	StageSave:       "Failed to save uploaded file",
	StagePreprocess: "Preprocessing error",
	StageInfer:      "Inference failed",
}

var tracer = telemetry.Tracer("modma/service")

// ModelSource provides the active model artifacts.
type ModelSource interface {
	Artifacts() (*classifier.Artifacts, error)
}

// StageError reports which pipeline stage failed.
type StageError struct {
	Stage string
	Err   error
}

func (e *StageError) Error() string {
	return stagePrefix[e.Stage] + ": " + e.Err.Error()
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// Prediction is the classification result with the preprocessing summary.
type Prediction struct {
	*classifier.Prediction
	PreprocessInfo *preprocess.Info `json:"preprocess_info"`
}

// Preprocessed is returned when inference is not requested.
type Preprocessed struct {
	Message string           `json:"message"`
	NPZPath string           `json:"npz_path"`
	Info    *preprocess.Info `json:"info"`
}

// Result holds exactly one of Prediction or Preprocessed.
type Result struct {
	Prediction   *Prediction
	Preprocessed *Preprocessed
}

// Body returns the value to serialize as the response body.
func (r *Result) Body() any {
	if r.Prediction != nil {
		return r.Prediction
	}

	return r.Preprocessed
}

// Pipeline runs uploads through preprocessing and inference.
type Pipeline struct {
	uploads      *storage.Local
	preprocessor *preprocess.Preprocessor
	predictor    *classifier.Predictor
	models       ModelSource
	predictions  metric.Int64Counter
	failures     metric.Int64Counter
}

// NewPipeline creates a pipeline saving uploads into the uploads store.
func NewPipeline(uploads *storage.Local, preprocessor *preprocess.Preprocessor, predictor *classifier.Predictor, models ModelSource) *Pipeline {
	meter := telemetry.Meter("modma/service")

	predictions, err := meter.Int64Counter("modma.predictions",
		metric.WithDescription("Subject-level predictions by label"))
	if err != nil {
		slog.Warn("Failed to create predictions counter", "error", err)
	}
	failures, err := meter.Int64Counter("modma.pipeline.failures",
		metric.WithDescription("Pipeline failures by stage"))
	if err != nil {
		slog.Warn("Failed to create failures counter", "error", err)
	}

	return &Pipeline{
		uploads:      uploads,
		preprocessor: preprocessor,
		predictor:    predictor,
		models:       models,
		predictions:  predictions,
		failures:     failures,
	}
}

// CheckFileType rejects names without a .raw or .npz extension.
func CheckFileType(name string) error {
	if !xfs.HasExt(name, ".raw", ".npz") {
		return fmt.Errorf("%w: %q", ErrUnsupportedFileType, name)
	}

	return nil
}

// Run saves the upload, preprocesses it and, when runInfer is set, classifies it.
func (p *Pipeline) Run(ctx context.Context, filename string, body io.Reader, runInfer bool) (*Result, error) {
	if err := CheckFileType(filename); err != nil {
		return nil, err
	}

	ctx, span := tracer.Start(ctx, "service.Pipeline", trace.WithAttributes(
		attribute.String("filename", filename),
		attribute.Bool("run_infer", runInfer),
	))
	defer span.End()

	saved, err := p.save(ctx, filename, body)
	if err != nil {
		return nil, p.fail(ctx, span, StageSave, err)
	}

	npzPath, info, err := p.preprocessor.Run(ctx, saved)
	if err != nil {
		return nil, p.fail(ctx, span, StagePreprocess, err)
	}

	if !runInfer {
		slog.Info("Preprocessing complete", "file", filename, "npz_path", npzPath)
		return &Result{Preprocessed: &Preprocessed{
			Message: MessagePreprocessed,
			NPZPath: npzPath,
			Info:    info,
		}}, nil
	}

	prediction, err := p.infer(ctx, npzPath)
	if err != nil {
		return nil, p.fail(ctx, span, StageInfer, err)
	}

	if p.predictions != nil {
		p.predictions.Add(ctx, 1, metric.WithAttributes(attribute.String("label", prediction.Label)))
	}
	slog.Info("Prediction complete", "file", filename, "subject", prediction.Subject,
		"label", prediction.Label, "prob", prediction.Prob, "votes", prediction.Votes)

	return &Result{Prediction: &Prediction{Prediction: prediction, PreprocessInfo: info}}, nil
}

// Predict classifies an existing epoch archive.
func (p *Pipeline) Predict(ctx context.Context, npzPath string) (*classifier.Prediction, error) {
	prediction, err := p.infer(ctx, npzPath)
	if err != nil {
		return nil, &StageError{Stage: StageInfer, Err: err}
	}

	return prediction, nil
}

func (p *Pipeline) infer(ctx context.Context, npzPath string) (*classifier.Prediction, error) {
	artifacts, err := p.models.Artifacts()
	if err != nil {
		return nil, err
	}

	return p.predictor.PredictFile(ctx, artifacts, npzPath)
}

func (p *Pipeline) save(ctx context.Context, filename string, body io.Reader) (string, error) {
	name := uuid.NewString()[:8] + "__" + filepath.Base(filename)

	n, err := storage.Save(ctx, p.uploads, name, body)
	if err != nil {
		return "", err
	}
	slog.Debug("Upload saved", "file", name, "bytes", n)

	return p.uploads.Path(name), nil
}

func (p *Pipeline) fail(ctx context.Context, span trace.Span, stage string, err error) error {
	stageErr := &StageError{Stage: stage, Err: err}

	span.RecordError(err)
	span.SetStatus(codes.Error, stageErr.Error())
	if p.failures != nil {
		p.failures.Add(ctx, 1, metric.WithAttributes(attribute.String("stage", stage)))
	}
	slog.Error("Pipeline failed", "stage", stage, "error", err)

	return stageErr
}
