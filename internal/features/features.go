// Package features computes the fused per-epoch feature matrix: CSP power,
// Riemannian tangent-space coordinates of the covariance, and distribution
// statistics of the CSP features.
package features

import (
	"context"
	"fmt"
	"runtime"

	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/mat"

	"github.com/ekisa-team/modma/internal/dsp"
)

// EpochMatrix converts a [channel][sample] epoch to a dense matrix.
func EpochMatrix(epoch [][]float64) *mat.Dense {
	if len(epoch) == 0 {
		return &mat.Dense{}
	}

	m := mat.NewDense(len(epoch), len(epoch[0]), nil)
	for i, row := range epoch {
		m.SetRow(i, row)
	}

	return m
}

// FilterEpochs band-passes every channel of every epoch forward and
// backward with sos. Epochs are processed concurrently.
func FilterEpochs(ctx context.Context, epochs [][][]float64, sos dsp.SOS) ([][][]float64, error) {
	ringing := sos.RingingSamples(100000)
	out := make([][][]float64, len(epochs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.GOMAXPROCS(0))

	for i, epoch := range epochs {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}

			filtered := make([][]float64, len(epoch))
			for c, ch := range epoch {
				pad := min(ringing, max(len(ch)-1, 0))
				filtered[c] = sos.FiltFilt(ch, pad)
			}
			out[i] = filtered

			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	return out, nil
}

// Fuse concatenates the feature blocks column-wise. All blocks must have
// one row per epoch.
func Fuse(blocks ...*mat.Dense) (*mat.Dense, error) {
	if len(blocks) == 0 {
		return nil, fmt.Errorf("features: nothing to fuse")
	}

	rows, _ := blocks[0].Dims()
	cols := 0
	for i, b := range blocks {
		r, c := b.Dims()
		if r != rows {
			return nil, fmt.Errorf("features: block %d has %d rows, want %d", i, r, rows)
		}
		cols += c
	}

	out := mat.NewDense(rows, cols, nil)
	offset := 0
	for _, b := range blocks {
		_, c := b.Dims()
		out.Slice(0, rows, offset, offset+c).(*mat.Dense).Copy(b)
		offset += c
	}

	return out, nil
}

// Width returns the fused feature width for channels C and CSP components k.
func Width(channels, components int) int {
	return components + channels*(channels+1)/2 + 4*components
}
