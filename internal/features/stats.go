package features

import (
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// Stats returns [mean | std | skew | kurtosis] of each column of x across
// rows. Moments are biased (population) and kurtosis is Pearson's, not
// excess. Undefined values, such as the skew of a constant column, are 0.
func Stats(x *mat.Dense) []float64 {
	rows, k := x.Dims()
	out := make([]float64, 4*k)
	col := make([]float64, rows)

	for j := 0; j < k; j++ {
		mat.Col(col, j, x)

		mean := stat.Mean(col, nil)
		m2 := stat.Moment(2, col, nil)
		m3 := stat.Moment(3, col, nil)
		m4 := stat.Moment(4, col, nil)

		out[j] = finite(mean)
		out[k+j] = finite(math.Sqrt(m2))
		out[2*k+j] = finite(m3 / math.Pow(m2, 1.5))
		out[3*k+j] = finite(m4 / (m2 * m2))
	}

	return out
}

// Tile repeats v as every row of a rows x len(v) matrix.
func Tile(v []float64, rows int) *mat.Dense {
	out := mat.NewDense(rows, len(v), nil)
	for i := 0; i < rows; i++ {
		out.SetRow(i, v)
	}

	return out
}

func finite(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}

	return v
}
