// Package classifiertest provides artifact fixtures for tests.
package classifiertest

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/ekisa-team/modma/internal/classifier"
	"github.com/ekisa-team/modma/internal/features"
)

// File names used by the default artifact configuration.
const (
	CSPFile          = "csp_pipeline.json"
	TangentSpaceFile = "global_tangent_space.json"
	ScalerFile       = "scaler.json"
	ClassifierFile   = "svm_model.json"
)

// Documents returns a consistent artifact set for the given channel count
// with one CSP component and a linear classifier whose decision is always
// intercept. A positive intercept predicts class 1.
func Documents(channels int, intercept float64) (classifier.CSPDocument, classifier.TangentSpaceDocument, classifier.ScalerDocument, classifier.SVMDocument) {
	filter := make([]float64, channels)
	filter[0] = 1

	reference := make([][]float64, channels)
	for i := range reference {
		reference[i] = make([]float64, channels)
		reference[i][i] = 1
	}

	width := features.Width(channels, 1)
	scale := make([]float64, width)
	for i := range scale {
		scale[i] = 1
	}

	return classifier.CSPDocument{
			Filters:       [][]float64{filter},
			TransformInto: features.TransformAveragePower,
		},
		classifier.TangentSpaceDocument{Reference: reference, Metric: "riemann"},
		classifier.ScalerDocument{Mean: make([]float64, width), Scale: scale},
		classifier.SVMDocument{
			Kernel:    classifier.KernelLinear,
			Classes:   []int{0, 1},
			Coef:      [][]float64{make([]float64, width)},
			Intercept: []float64{intercept},
		}
}

// Artifacts returns the loaded form of Documents.
func Artifacts(tb testing.TB, channels int, intercept float64) *classifier.Artifacts {
	tb.Helper()

	a, err := classifier.NewArtifacts(Documents(channels, intercept))
	if err != nil {
		tb.Fatalf("build artifacts: %v", err)
	}

	return a
}

// WriteFiles writes Documents into dir under the default file names.
func WriteFiles(tb testing.TB, dir string, channels int, intercept float64) classifier.ArtifactPaths {
	tb.Helper()

	csp, ts, scaler, svm := Documents(channels, intercept)
	write := func(name string, v any) string {
		data, err := json.Marshal(v)
		if err != nil {
			tb.Fatalf("marshal %s: %v", name, err)
		}
		path := filepath.Join(dir, name)
		if err := os.WriteFile(path, data, 0o644); err != nil {
			tb.Fatalf("write %s: %v", name, err)
		}
		return path
	}

	return classifier.ArtifactPaths{
		CSP:          write(CSPFile, csp),
		TangentSpace: write(TangentSpaceFile, ts),
		Scaler:       write(ScalerFile, scaler),
		Classifier:   write(ClassifierFile, svm),
	}
}
