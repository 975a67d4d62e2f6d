package features

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// OAS returns the oracle-approximating shrinkage covariance of x
// (channels x samples), centered per channel, plus eps on the diagonal.
func OAS(x *mat.Dense, eps float64) *mat.SymDense {
	p, n := x.Dims()

	centered := mat.DenseCopyOf(x)
	for i := 0; i < p; i++ {
		row := centered.RawRowView(i)
		floats.AddConst(-floats.Sum(row)/float64(n), row)
	}

	emp := mat.NewSymDense(p, nil)
	emp.SymOuterK(1/float64(n), centered)

	var trace, sumSq float64
	for i := 0; i < p; i++ {
		trace += emp.At(i, i)
		for j := 0; j < p; j++ {
			v := emp.At(i, j)
			sumSq += v * v
		}
	}

	mu := trace / float64(p)
	alpha := sumSq / float64(p*p)
	num := alpha + mu*mu
	den := float64(n+1) * (alpha - mu*mu/float64(p))

	shrinkage := 1.0
	if den != 0 {
		shrinkage = math.Min(num/den, 1)
	}

	out := mat.NewSymDense(p, nil)
	for i := 0; i < p; i++ {
		for j := i; j < p; j++ {
			v := (1 - shrinkage) * emp.At(i, j)
			if i == j {
				v += shrinkage*mu + eps
			}
			out.SetSym(i, j, v)
		}
	}

	return out
}

// TangentSpace maps SPD matrices to the tangent space at a reference point.
type TangentSpace struct {
	isqrt *mat.SymDense
	n     int
}

// NewTangentSpace precomputes the inverse square root of reference.
func NewTangentSpace(reference *mat.SymDense) (*TangentSpace, error) {
	isqrt, err := eigenMap(reference, func(v float64) (float64, error) {
		if v <= 0 {
			return 0, fmt.Errorf("features: reference is not positive definite (eigenvalue %g)", v)
		}
		return 1 / math.Sqrt(v), nil
	})
	if err != nil {
		return nil, err
	}

	return &TangentSpace{isqrt: isqrt, n: reference.SymmetricDim()}, nil
}

// Dim returns the tangent vector length n(n+1)/2.
func (ts *TangentSpace) Dim() int {
	return ts.n * (ts.n + 1) / 2
}

// Transform returns the upper triangle (row-major) of
// logm(Cref^-1/2 C Cref^-1/2), off-diagonal terms scaled by sqrt(2).
func (ts *TangentSpace) Transform(c *mat.SymDense) ([]float64, error) {
	if c.SymmetricDim() != ts.n {
		return nil, fmt.Errorf("features: covariance is %dx%d, reference is %dx%d", c.SymmetricDim(), c.SymmetricDim(), ts.n, ts.n)
	}

	var tmp, whitened mat.Dense
	tmp.Mul(ts.isqrt, c)
	whitened.Mul(&tmp, ts.isqrt)

	sym := mat.NewSymDense(ts.n, nil)
	for i := 0; i < ts.n; i++ {
		for j := i; j < ts.n; j++ {
			sym.SetSym(i, j, (whitened.At(i, j)+whitened.At(j, i))/2)
		}
	}

	logm, err := eigenMap(sym, func(v float64) (float64, error) {
		if v <= 0 {
			return 0, fmt.Errorf("features: covariance is not positive definite (eigenvalue %g)", v)
		}
		return math.Log(v), nil
	})
	if err != nil {
		return nil, err
	}

	out := make([]float64, 0, ts.Dim())
	for i := 0; i < ts.n; i++ {
		for j := i; j < ts.n; j++ {
			v := logm.At(i, j)
			if i != j {
				v *= math.Sqrt2
			}
			out = append(out, v)
		}
	}

	return out, nil
}

// eigenMap returns V f(L) V^T for the eigendecomposition of a.
func eigenMap(a *mat.SymDense, f func(float64) (float64, error)) (*mat.SymDense, error) {
	var eig mat.EigenSym
	if !eig.Factorize(a, true) {
		return nil, fmt.Errorf("features: eigendecomposition failed")
	}

	values := eig.Values(nil)
	var vecs mat.Dense
	eig.VectorsTo(&vecs)

	n := len(values)
	mapped := make([]float64, n)
	for i, v := range values {
		m, err := f(v)
		if err != nil {
			return nil, err
		}
		mapped[i] = m
	}

	out := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			var s float64
			for k := 0; k < n; k++ {
				s += vecs.At(i, k) * mapped[k] * vecs.At(j, k)
			}
			out.SetSym(i, j, s)
		}
	}

	return out, nil
}
