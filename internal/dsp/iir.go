package dsp

import (
	"fmt"
	"math"
	"math/cmplx"
	"sort"
)

// Section is one biquad: b0 b1 b2 over a0 a1 a2, with a0 normalized to 1.
type Section struct {
	B [3]float64
	A [3]float64
}

// SOS is a cascade of second-order sections.
type SOS []Section

// ButterBandpass designs a digital Butterworth band-pass of the given order
// (order poles per band edge) as second-order sections.
func ButterBandpass(order int, lowFreq, highFreq, sfreq float64) (SOS, error) {
	nyq := sfreq / 2
	if order < 1 {
		return nil, fmt.Errorf("dsp: invalid filter order %d", order)
	}
	if lowFreq <= 0 || highFreq <= lowFreq || highFreq >= nyq {
		return nil, fmt.Errorf("dsp: invalid band %.2f-%.2f Hz at %.2f Hz", lowFreq, highFreq, sfreq)
	}

	// Prewarp for the bilinear transform at fs=2.
	const fs = 2.0
	w1 := 2 * fs * math.Tan(math.Pi*(lowFreq/nyq)/fs)
	w2 := 2 * fs * math.Tan(math.Pi*(highFreq/nyq)/fs)
	bw := w2 - w1
	wo := math.Sqrt(w1 * w2)

	// Analog low-pass prototype poles, gain 1.
	proto := make([]complex128, order)
	for k := range proto {
		m := float64(-order + 1 + 2*k)
		proto[k] = -cmplx.Exp(complex(0, math.Pi*m/float64(2*order)))
	}

	// Low-pass to band-pass: each prototype pole splits in two; order zeros at s=0.
	poles := make([]complex128, 0, 2*order)
	for _, p := range proto {
		half := p * complex(bw/2, 0)
		root := cmplx.Sqrt(half*half - complex(wo*wo, 0))
		poles = append(poles, half+root, half-root)
	}
	gain := math.Pow(bw, float64(order))

	// Bilinear transform: s=0 zeros map to z=1, the remaining order zeros go to z=-1.
	fs2 := complex(2*fs, 0)
	den := complex(1, 0)
	num := cmplx.Pow(fs2, complex(float64(order), 0))
	digital := make([]complex128, len(poles))
	for i, p := range poles {
		digital[i] = (fs2 + p) / (fs2 - p)
		den *= fs2 - p
	}
	gain *= real(num / den)

	// Keep one pole of each conjugate pair, ordered by distance from the unit circle.
	var upper []complex128
	for _, p := range digital {
		if imag(p) > 0 {
			upper = append(upper, p)
		}
	}
	if len(upper) != order {
		return nil, fmt.Errorf("dsp: expected %d conjugate pole pairs, found %d", order, len(upper))
	}
	sort.Slice(upper, func(i, j int) bool {
		return cmplx.Abs(upper[i]) < cmplx.Abs(upper[j])
	})

	sos := make(SOS, order)
	for i, p := range upper {
		// One zero at +1 and one at -1 per section.
		sos[i] = Section{
			B: [3]float64{1, 0, -1},
			A: [3]float64{1, -2 * real(p), real(p)*real(p) + imag(p)*imag(p)},
		}
	}
	for j := range sos[0].B {
		sos[0].B[j] *= gain
	}

	return sos, nil
}

// Filter runs the cascade over x in direct form II transposed.
// zi holds two state values per section and is updated in place.
func (s SOS) Filter(x []float64, zi [][2]float64) []float64 {
	y := make([]float64, len(x))
	copy(y, x)

	for k, sec := range s {
		z1, z2 := zi[k][0], zi[k][1]
		b0, b1, b2 := sec.B[0], sec.B[1], sec.B[2]
		a1, a2 := sec.A[1], sec.A[2]
		for i, in := range y {
			out := b0*in + z1
			z1 = b1*in - a1*out + z2
			z2 = b2*in - a2*out
			y[i] = out
		}
		zi[k] = [2]float64{z1, z2}
	}

	return y
}

// InitialConditions returns the state for a step response steady state,
// to be scaled by the first input sample.
func (s SOS) InitialConditions() [][2]float64 {
	zi := make([][2]float64, len(s))
	scale := 1.0

	for k, sec := range s {
		sumB := sec.B[0] + sec.B[1] + sec.B[2]
		sumA := sec.A[0] + sec.A[1] + sec.A[2]
		g := sumB / sumA

		z2 := sec.B[2] - sec.A[2]*g
		z1 := sec.B[1] - sec.A[1]*g + z2
		zi[k] = [2]float64{scale * z1, scale * z2}

		scale *= g
	}

	return zi
}

// RingingSamples estimates how many samples the impulse response takes to
// decay below 0.1% of its peak, capped at maxTry.
func (s SOS) RingingSamples(maxTry int) int {
	const chunk = 1000
	chunks := int(math.Ceil(float64(maxTry) / chunk))

	zi := make([][2]float64, len(s))
	x := make([]float64, chunk)
	x[0] = 1

	lastGood := chunk
	thresh := 0.0
	for ii := 0; ii < chunks; ii++ {
		h := s.Filter(x, zi)
		x[0] = 0

		peak := 0.0
		for _, v := range h {
			peak = math.Max(peak, math.Abs(v))
		}
		thresh = math.Max(0.001*peak, thresh)

		found := -1
		for i := len(h) - 1; i >= 0; i-- {
			if math.Abs(h[i]) > thresh {
				found = i
				break
			}
		}
		if found < 0 {
			return (ii-1)*chunk + lastGood
		}
		lastGood = found
	}

	return chunk * chunks
}

// FiltFilt filters x forward then backward for zero phase. The signal is
// padded with padLen odd-reflected samples that are trimmed afterwards.
func (s SOS) FiltFilt(x []float64, padLen int) []float64 {
	if len(x) == 0 {
		return nil
	}

	ext := ReflectLimited(x, padLen)
	base := s.InitialConditions()

	zi := scaled(base, ext[0])
	y := s.Filter(ext, zi)

	reverse(y)
	zi = scaled(base, y[0])
	y = s.Filter(y, zi)
	reverse(y)

	return y[padLen : padLen+len(x)]
}

func scaled(zi [][2]float64, v float64) [][2]float64 {
	out := make([][2]float64, len(zi))
	for i, z := range zi {
		out[i] = [2]float64{z[0] * v, z[1] * v}
	}

	return out
}

func reverse(x []float64) {
	for i, j := 0, len(x)-1; i < j; i, j = i+1, j-1 {
		x[i], x[j] = x[j], x[i]
	}
}
