// Package classifier loads the trained artifacts and turns an epoch archive
// into an HC/MDD prediction.
package classifier

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"gonum.org/v1/gonum/mat"

	"github.com/ekisa-team/modma/internal/features"
)

// ErrInvalidArtifact is returned when an artifact is malformed or
// inconsistent with the others.
var ErrInvalidArtifact = errors.New("invalid model artifact")

// CSPDocument is the JSON export of a fitted CSP transformer.
// Filters holds only the kept components (components x channels).
type CSPDocument struct {
	Filters       [][]float64 `json:"filters"`
	TransformInto string      `json:"transform_into"`
	Log           *bool       `json:"log,omitempty"`
	Mean          []float64   `json:"mean,omitempty"`
	Std           []float64   `json:"std,omitempty"`
}

// TangentSpaceDocument is the JSON export of a fitted tangent-space mapper.
type TangentSpaceDocument struct {
	Reference [][]float64 `json:"reference"`
	Metric    string      `json:"metric"`
}

// ScalerDocument is the JSON export of a fitted standard scaler.
type ScalerDocument struct {
	Mean     []float64 `json:"mean"`
	Scale    []float64 `json:"scale"`
	WithMean *bool     `json:"with_mean,omitempty"`
	WithStd  *bool     `json:"with_std,omitempty"`
}

// SVMDocument is the JSON export of a fitted binary support-vector classifier.
//
// DualCoef and Intercept follow the public convention where a positive
// decision value selects Classes[1]. Gamma is the resolved numeric value.
// When ProbA/ProbB are present, P(Classes[1]) = 1/(1+exp(ProbA*f+ProbB)).
type SVMDocument struct {
	Kernel         string      `json:"kernel"`
	Classes        []int       `json:"classes"`
	SupportVectors [][]float64 `json:"support_vectors"`
	DualCoef       [][]float64 `json:"dual_coef"`
	Intercept      []float64   `json:"intercept"`
	Gamma          float64     `json:"gamma"`
	Coef0          float64     `json:"coef0"`
	Degree         int         `json:"degree"`
	Coef           [][]float64 `json:"coef,omitempty"`
	ProbA          []float64   `json:"prob_a,omitempty"`
	ProbB          []float64   `json:"prob_b,omitempty"`
}

// Artifacts is the immutable, validated model set shared by all requests.
type Artifacts struct {
	CSP      *features.CSP
	Tangent  *features.TangentSpace
	Scaler   *Scaler
	SVM      *SVM
	Channels int
}

// ArtifactPaths locates the four artifact files.
type ArtifactPaths struct {
	CSP          string
	TangentSpace string
	Scaler       string
	Classifier   string
}

// Width returns the fused feature width the artifacts expect.
func (a *Artifacts) Width() int {
	return features.Width(a.Channels, a.CSP.Components())
}

// LoadArtifacts reads and cross-validates the artifact files.
func LoadArtifacts(paths ArtifactPaths) (*Artifacts, error) {
	var (
		cspDoc    CSPDocument
		tsDoc     TangentSpaceDocument
		scalerDoc ScalerDocument
		svmDoc    SVMDocument
	)

	for _, f := range []struct {
		path string
		dst  any
	}{
		{paths.CSP, &cspDoc},
		{paths.TangentSpace, &tsDoc},
		{paths.Scaler, &scalerDoc},
		{paths.Classifier, &svmDoc},
	} {
		if err := readJSON(f.path, f.dst); err != nil {
			return nil, err
		}
	}

	return NewArtifacts(cspDoc, tsDoc, scalerDoc, svmDoc)
}

// NewArtifacts builds the model set from decoded documents.
func NewArtifacts(cspDoc CSPDocument, tsDoc TangentSpaceDocument, scalerDoc ScalerDocument, svmDoc SVMDocument) (*Artifacts, error) {
	filters, err := denseFromRows(cspDoc.Filters)
	if err != nil {
		return nil, fmt.Errorf("%w: csp filters: %v", ErrInvalidArtifact, err)
	}
	switch cspDoc.TransformInto {
	case "":
		cspDoc.TransformInto = features.TransformAveragePower
	case features.TransformAveragePower, features.TransformCSPSpace:
	default:
		return nil, fmt.Errorf("%w: csp transform_into %q", ErrInvalidArtifact, cspDoc.TransformInto)
	}
	csp := &features.CSP{
		Filters:       filters,
		TransformInto: cspDoc.TransformInto,
		Log:           cspDoc.Log,
		Mean:          cspDoc.Mean,
		Std:           cspDoc.Std,
	}
	_, channels := filters.Dims()

	if tsDoc.Metric != "" && tsDoc.Metric != "riemann" {
		return nil, fmt.Errorf("%w: tangent space metric %q", ErrInvalidArtifact, tsDoc.Metric)
	}
	ref, err := symFromRows(tsDoc.Reference)
	if err != nil {
		return nil, fmt.Errorf("%w: tangent space reference: %v", ErrInvalidArtifact, err)
	}
	if ref.SymmetricDim() != channels {
		return nil, fmt.Errorf("%w: tangent space reference is %dx%d, CSP expects %d channels",
			ErrInvalidArtifact, ref.SymmetricDim(), ref.SymmetricDim(), channels)
	}
	tangent, err := features.NewTangentSpace(ref)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidArtifact, err)
	}

	width := features.Width(channels, csp.Components())

	scaler, err := NewScaler(scalerDoc)
	if err != nil {
		return nil, err
	}
	if scaler.Width() != width {
		return nil, fmt.Errorf("%w: scaler has %d features, pipeline produces %d", ErrInvalidArtifact, scaler.Width(), width)
	}

	svm, err := NewSVM(svmDoc)
	if err != nil {
		return nil, err
	}
	if svm.Width() != width {
		return nil, fmt.Errorf("%w: classifier expects %d features, pipeline produces %d", ErrInvalidArtifact, svm.Width(), width)
	}

	return &Artifacts{
		CSP:      csp,
		Tangent:  tangent,
		Scaler:   scaler,
		SVM:      svm,
		Channels: channels,
	}, nil
}

func readJSON(path string, dst any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read artifact %s: %w", path, err)
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrInvalidArtifact, path, err)
	}

	return nil
}

func denseFromRows(rows [][]float64) (*mat.Dense, error) {
	if len(rows) == 0 || len(rows[0]) == 0 {
		return nil, errors.New("empty matrix")
	}

	cols := len(rows[0])
	m := mat.NewDense(len(rows), cols, nil)
	for i, row := range rows {
		if len(row) != cols {
			return nil, fmt.Errorf("row %d has %d columns, want %d", i, len(row), cols)
		}
		m.SetRow(i, row)
	}

	return m, nil
}

func symFromRows(rows [][]float64) (*mat.SymDense, error) {
	dense, err := denseFromRows(rows)
	if err != nil {
		return nil, err
	}

	r, c := dense.Dims()
	if r != c {
		return nil, fmt.Errorf("matrix is %dx%d, want square", r, c)
	}

	sym := mat.NewSymDense(r, nil)
	for i := 0; i < r; i++ {
		for j := i; j < r; j++ {
			if d := dense.At(i, j) - dense.At(j, i); d > 1e-8 || d < -1e-8 {
				return nil, fmt.Errorf("matrix is not symmetric at (%d, %d)", i, j)
			}
			sym.SetSym(i, j, dense.At(i, j))
		}
	}

	return sym, nil
}
