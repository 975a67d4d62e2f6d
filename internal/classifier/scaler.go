package classifier

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// Scaler standardizes features with fitted mean and scale.
type Scaler struct {
	mean  []float64
	scale []float64
}

// NewScaler validates a scaler document.
func NewScaler(doc ScalerDocument) (*Scaler, error) {
	withMean := doc.WithMean == nil || *doc.WithMean
	withStd := doc.WithStd == nil || *doc.WithStd

	width := max(len(doc.Mean), len(doc.Scale))
	if width == 0 {
		return nil, fmt.Errorf("%w: scaler has no mean or scale", ErrInvalidArtifact)
	}

	mean := make([]float64, width)
	if withMean {
		if len(doc.Mean) != width {
			return nil, fmt.Errorf("%w: scaler mean has %d values, want %d", ErrInvalidArtifact, len(doc.Mean), width)
		}
		copy(mean, doc.Mean)
	}

	scale := make([]float64, width)
	for i := range scale {
		scale[i] = 1
	}
	if withStd {
		if len(doc.Scale) != width {
			return nil, fmt.Errorf("%w: scaler scale has %d values, want %d", ErrInvalidArtifact, len(doc.Scale), width)
		}
		for i, s := range doc.Scale {
			if s != 0 {
				scale[i] = s
			}
		}
	}

	return &Scaler{mean: mean, scale: scale}, nil
}

// Width returns the number of features.
func (s *Scaler) Width() int {
	return len(s.mean)
}

// Transform returns (x - mean) / scale row by row.
func (s *Scaler) Transform(x *mat.Dense) (*mat.Dense, error) {
	rows, cols := x.Dims()
	if cols != len(s.mean) {
		return nil, fmt.Errorf("scaler expects %d features, got %d", len(s.mean), cols)
	}

	out := mat.NewDense(rows, cols, nil)
	out.Apply(func(i, j int, v float64) float64 {
		return (v - s.mean[j]) / s.scale[j]
	}, x)

	return out, nil
}
