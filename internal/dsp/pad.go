// Package dsp implements the zero-phase filters used by preprocessing and
// inference: windowed-sinc FIR band-pass and Butterworth second-order sections.
package dsp

// ReflectLimited pads x by n samples on each side with an odd reflection
// about the edge samples. The reflection uses at most len(x)-1 samples;
// anything beyond that is zero.
func ReflectLimited(x []float64, n int) []float64 {
	if n <= 0 || len(x) == 0 {
		out := make([]float64, len(x))
		copy(out, x)
		return out
	}

	out := make([]float64, len(x)+2*n)

	reflect := min(n, len(x)-1)
	zeros := n - reflect

	first, last := x[0], x[len(x)-1]
	for i := 0; i < reflect; i++ {
		// left side runs x[reflect] .. x[1]
		out[zeros+i] = 2*first - x[reflect-i]
		// right side runs x[len-2] .. x[len-1-reflect]
		out[n+len(x)+i] = 2*last - x[len(x)-2-i]
	}
	copy(out[n:], x)

	return out
}
