package dsp

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/dsp/fourier"
)

// hammingLengthFactor is the transition-bandwidth to length ratio of a Hamming window.
const hammingLengthFactor = 3.3

// FIRBand describes an automatically sized band-pass FIR design.
type FIRBand struct {
	SFreq          float64
	LowFreq        float64
	HighFreq       float64
	LowTransition  float64
	HighTransition float64
	Length         int
}

// AutoFIRBand picks transition bandwidths and filter length the way the
// common EEG toolchains do: 25% of the edge frequency clamped to [2 Hz,
// edge distance], and length 3.3/min(transition) seconds, odd.
func AutoFIRBand(sfreq, lowFreq, highFreq float64) (FIRBand, error) {
	nyq := sfreq / 2
	if sfreq <= 0 {
		return FIRBand{}, fmt.Errorf("dsp: invalid sampling rate %.3f", sfreq)
	}
	if lowFreq <= 0 || highFreq <= lowFreq || highFreq >= nyq {
		return FIRBand{}, fmt.Errorf("dsp: invalid band %.2f-%.2f Hz at %.2f Hz", lowFreq, highFreq, sfreq)
	}

	lTrans := math.Min(math.Max(0.25*lowFreq, 2), lowFreq)
	hTrans := math.Min(math.Max(0.25*highFreq, 2), nyq-highFreq)

	seconds := hammingLengthFactor / math.Min(lTrans, hTrans)
	length := int(math.Ceil(seconds*sfreq - 1e-9))
	length += (length - 1) % 2

	return FIRBand{
		SFreq:          sfreq,
		LowFreq:        lowFreq,
		HighFreq:       highFreq,
		LowTransition:  lTrans,
		HighTransition: hTrans,
		Length:         length,
	}, nil
}

// Design builds the filter taps as a difference of Hamming-windowed
// low-pass filters, one per transition band.
func (b FIRBand) Design() ([]float64, error) {
	nyq := b.SFreq / 2

	lStop := b.LowFreq - b.LowTransition
	hStop := b.HighFreq + b.HighTransition

	freq := []float64{lStop, b.LowFreq, b.HighFreq, hStop}
	gain := []float64{0, 1, 1, 0}
	if lStop != 0 {
		freq = append([]float64{0}, freq...)
		gain = append([]float64{0}, gain...)
	}
	if hStop != nyq {
		freq = append(freq, nyq)
		gain = append(gain, 0)
	}
	for i := range freq {
		freq[i] /= nyq
	}

	return firwinDesign(b.Length, freq, gain)
}

// firwinDesign combines low-pass firwin filters at each gain step of a
// piecewise 0/1 response. freq is normalized to Nyquist and starts at 0.
func firwinDesign(n int, freq, gain []float64) ([]float64, error) {
	if n%2 != 1 {
		return nil, fmt.Errorf("dsp: filter length %d must be odd", n)
	}

	h := make([]float64, n)
	last := len(freq) - 1
	prevFreq, prevGain := freq[last], gain[last]
	if prevGain == 1 {
		h[n/2] = 1
	}

	for i := last - 1; i >= 0; i-- {
		thisFreq, thisGain := freq[i], gain[i]
		if thisGain != prevGain {
			transition := (prevFreq - thisFreq) / 2
			thisN := int(math.RoundToEven(hammingLengthFactor / transition))
			thisN += 1 - thisN%2
			if thisN > n {
				return nil, fmt.Errorf("dsp: transition needs %d taps, filter has %d", thisN, n)
			}

			lp := firwinLowpass(thisN, (prevFreq+thisFreq)/2)
			offset := (n - thisN) / 2
			for j, v := range lp {
				if thisGain == 0 {
					h[offset+j] -= v
				} else {
					h[offset+j] += v
				}
			}
		}
		prevFreq, prevGain = thisFreq, thisGain
	}

	return h, nil
}

// firwinLowpass returns a Hamming-windowed sinc low-pass with unit DC gain.
// cutoff is normalized to Nyquist.
func firwinLowpass(n int, cutoff float64) []float64 {
	h := make([]float64, n)
	alpha := float64(n-1) / 2

	var sum float64
	for i := range h {
		m := float64(i) - alpha
		h[i] = cutoff * sinc(cutoff*m) * hamming(i, n)
		sum += h[i]
	}
	for i := range h {
		h[i] /= sum
	}

	return h
}

func sinc(x float64) float64 {
	if x == 0 {
		return 1
	}

	return math.Sin(math.Pi*x) / (math.Pi * x)
}

func hamming(i, n int) float64 {
	if n == 1 {
		return 1
	}

	return 0.54 - 0.46*math.Cos(2*math.Pi*float64(i)/float64(n-1))
}

// FIRFilter applies a linear-phase FIR with zero delay to signals of one length.
// The filter spectrum is computed once and shared; Apply is safe for
// concurrent use.
type FIRFilter struct {
	taps    []float64
	edge    int
	sigLen  int
	nfft    int
	hCoeffs []complex128
}

// NewFIRFilter prepares taps for signals of sigLen samples.
func NewFIRFilter(taps []float64, sigLen int) *FIRFilter {
	edge := max(min(len(taps), sigLen)-1, 0)
	extLen := sigLen + 2*edge
	nfft := nextPow2(extLen + len(taps) - 1)

	fft := fourier.NewFFT(nfft)
	padded := make([]float64, nfft)
	copy(padded, taps)

	return &FIRFilter{
		taps:    taps,
		edge:    edge,
		sigLen:  sigLen,
		nfft:    nfft,
		hCoeffs: fft.Coefficients(nil, padded),
	}
}

// Apply filters x with edge padding and delay compensation.
func (f *FIRFilter) Apply(x []float64) ([]float64, error) {
	if len(x) != f.sigLen {
		return nil, fmt.Errorf("dsp: signal has %d samples, filter prepared for %d", len(x), f.sigLen)
	}
	if len(x) == 0 {
		return nil, nil
	}

	ext := ReflectLimited(x, f.edge)
	buf := make([]float64, f.nfft)
	copy(buf, ext)

	fft := fourier.NewFFT(f.nfft)
	coeffs := fft.Coefficients(nil, buf)
	for i := range coeffs {
		coeffs[i] *= f.hCoeffs[i]
	}
	full := fft.Sequence(buf, coeffs)

	shift := (len(f.taps)-1)/2 + f.edge
	scale := 1 / float64(f.nfft)

	out := make([]float64, len(x))
	for i := range out {
		out[i] = full[shift+i] * scale
	}

	return out, nil
}

func nextPow2(n int) int {
	p := 1
	for p < n {
		p <<= 1
	}

	return p
}
