package features

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// CSP output modes.
const (
	TransformAveragePower = "average_power"
	TransformCSPSpace     = "csp_space"
)

// CSP projects epochs onto fitted spatial filters.
type CSP struct {
	// Filters is components x channels.
	Filters       *mat.Dense
	TransformInto string
	// Log selects log-power output; nil means true.
	Log  *bool
	Mean []float64
	Std  []float64
}

// Components returns the number of spatial filters.
func (c *CSP) Components() int {
	r, _ := c.Filters.Dims()
	return r
}

// Transform returns one row of CSP features per epoch. average_power yields
// the log mean power of each component (or its standardized power when log
// is off); csp_space yields each component's mean over time.
func (c *CSP) Transform(epochs [][][]float64) (*mat.Dense, error) {
	k, channels := c.Filters.Dims()
	out := mat.NewDense(len(epochs), k, nil)

	useLog := c.Log == nil || *c.Log
	if c.TransformInto == TransformAveragePower && !useLog && (len(c.Mean) != k || len(c.Std) != k) {
		return nil, fmt.Errorf("features: CSP without log needs %d mean/std values", k)
	}

	var proj mat.Dense
	for i, epoch := range epochs {
		if len(epoch) != channels {
			return nil, fmt.Errorf("features: epoch %d has %d channels, CSP expects %d", i, len(epoch), channels)
		}

		proj.Reset()
		proj.Mul(c.Filters, EpochMatrix(epoch))
		_, samples := proj.Dims()

		for j := 0; j < k; j++ {
			row := proj.RawRowView(j)
			switch c.TransformInto {
			case TransformAveragePower:
				var power float64
				for _, v := range row {
					power += v * v
				}
				power /= float64(samples)
				if useLog {
					out.Set(i, j, math.Log(power))
				} else {
					out.Set(i, j, (power-c.Mean[j])/c.Std[j])
				}
			case TransformCSPSpace:
				var sum float64
				for _, v := range row {
					sum += v
				}
				out.Set(i, j, sum/float64(samples))
			default:
				return nil, fmt.Errorf("features: unknown CSP transform %q", c.TransformInto)
			}
		}
	}

	return out, nil
}
