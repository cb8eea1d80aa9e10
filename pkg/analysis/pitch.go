package analysis

import (
	"math"
	"math/cmplx"

	"github.com/mjibson/go-dsp/fft"
	"github.com/mjibson/go-dsp/window"
)

// PitchDetector estimates the dominant frequency of a block of samples.
type PitchDetector interface {
	// DetectPitch returns the dominant frequency in Hz, or false if none
	// stands out.
	DetectPitch(samples []float64, sampleRate float64) (float64, bool)
}

// HannFFTDetector finds the strongest spectral peak of a Hann-windowed,
// zero-padded FFT and refines it with parabolic interpolation.
type HannFFTDetector struct {
	MinFrequency float64
	MaxFrequency float64
	// MinMagnitude is the peak magnitude below which no pitch is reported.
	MinMagnitude float64

	hann   []float64
	padded []float64
}

// NewHannFFTDetector creates a detector searching [minFreq, maxFreq].
func NewHannFFTDetector(minFreq, maxFreq, minMagnitude float64) *HannFFTDetector {
	return &HannFFTDetector{
		MinFrequency: minFreq,
		MaxFrequency: maxFreq,
		MinMagnitude: minMagnitude,
	}
}

// DetectPitch implements PitchDetector.
func (d *HannFFTDetector) DetectPitch(samples []float64, sampleRate float64) (float64, bool) {
	n := len(samples)
	if n < 4 || sampleRate <= 0 {
		return 0, false
	}

	if len(d.hann) != n {
		d.hann = window.Hann(n)
	}
	size := nextPowerOfTwo(n)
	if len(d.padded) != size {
		d.padded = make([]float64, size)
	}
	for i, s := range samples {
		d.padded[i] = s * d.hann[i]
	}
	for i := n; i < size; i++ {
		d.padded[i] = 0
	}

	spectrum := fft.FFTReal(d.padded)

	binHz := sampleRate / float64(size)
	lo := int(math.Ceil(d.MinFrequency / binHz))
	if lo < 1 {
		lo = 1
	}
	hi := int(math.Floor(d.MaxFrequency / binHz))
	if d.MaxFrequency <= 0 || hi > size/2-1 {
		hi = size/2 - 1
	}
	if lo > hi {
		return 0, false
	}

	peak, peakMag := -1, d.MinMagnitude
	for k := lo; k <= hi; k++ {
		if m := cmplx.Abs(spectrum[k]); m > peakMag {
			peak, peakMag = k, m
		}
	}
	if peak < 0 {
		return 0, false
	}

	// Parabolic interpolation around the peak bin.
	a := cmplx.Abs(spectrum[peak-1])
	b := peakMag
	c := cmplx.Abs(spectrum[peak+1])
	offset := 0.0
	if denom := a - 2*b + c; denom != 0 {
		offset = 0.5 * (a - c) / denom
	}

	return (float64(peak) + offset) * binHz, true
}

func nextPowerOfTwo(n int) int {
	size := 1
	for size < n {
		size <<= 1
	}
	return size
}

// rms returns the root-mean-square amplitude of samples.
func rms(samples []float64) float64 {
	if len(samples) == 0 {
		return 0
	}
	sum := 0.0
	for _, s := range samples {
		sum += s * s
	}
	return math.Sqrt(sum / float64(len(samples)))
}
