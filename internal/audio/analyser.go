package audio

import (
	"math"
	"math/cmplx"
	"sync"

	"gonum.org/v1/gonum/dsp/fourier"
)

const (
	// FFTSize is the analysis window length in samples.
	FFTSize = 256
	// FrequencyBins is the length of every activity vector.
	FrequencyBins = FFTSize / 2

	defaultSmoothing = 0.85
	minDecibels      = -100.0
	maxDecibels      = -30.0
)

// Analyser keeps the most recent FFTSize samples of a signal and turns them
// into byte magnitudes per frequency bin, with the same windowing, smoothing
// and dB mapping a Web Audio AnalyserNode applies.
type Analyser struct {
	mu        sync.Mutex
	window    []float64
	ring      []float64
	pos       int
	smoothing float64
	smoothed  []float64
	fft       *fourier.FFT
	input     []float64
	coeffs    []complex128
}

// NewAnalyser creates an analyser with the default 0.85 smoothing constant.
func NewAnalyser() *Analyser {
	return &Analyser{
		window:    blackman(FFTSize),
		ring:      make([]float64, FFTSize),
		smoothing: defaultSmoothing,
		smoothed:  make([]float64, FrequencyBins),
		fft:       fourier.NewFFT(FFTSize),
		input:     make([]float64, FFTSize),
	}
}

// Write feeds time-domain samples into the analysis window.
func (a *Analyser) Write(samples []float32) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if len(samples) > FFTSize {
		samples = samples[len(samples)-FFTSize:]
	}
	for _, s := range samples {
		a.ring[a.pos] = float64(s)
		a.pos = (a.pos + 1) % FFTSize
	}
}

// ByteFrequencyData fills dst (up to FrequencyBins entries) with the current
// smoothed magnitudes scaled into 0..255.
func (a *Analyser) ByteFrequencyData(dst []byte) {
	a.mu.Lock()
	defer a.mu.Unlock()

	for i := 0; i < FFTSize; i++ {
		a.input[i] = a.ring[(a.pos+i)%FFTSize] * a.window[i]
	}
	a.coeffs = a.fft.Coefficients(a.coeffs, a.input)

	const scale = 255.0 / (maxDecibels - minDecibels)
	for k := 0; k < FrequencyBins && k < len(dst); k++ {
		magnitude := cmplx.Abs(a.coeffs[k]) / FFTSize
		a.smoothed[k] = a.smoothing*a.smoothed[k] + (1-a.smoothing)*magnitude

		db := math.Inf(-1)
		if a.smoothed[k] > 0 {
			db = 20 * math.Log10(a.smoothed[k])
		}
		v := scale * (db - minDecibels)
		switch {
		case v <= 0 || math.IsNaN(v):
			dst[k] = 0
		case v >= 255:
			dst[k] = 255
		default:
			dst[k] = byte(v)
		}
	}
}

// Reset clears the analysis window and smoothing history.
func (a *Analyser) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()
	for i := range a.ring {
		a.ring[i] = 0
	}
	for i := range a.smoothed {
		a.smoothed[i] = 0
	}
	a.pos = 0
}

func blackman(n int) []float64 {
	const alpha = 0.16
	a0 := (1 - alpha) / 2
	a1 := 0.5
	a2 := alpha / 2

	w := make([]float64, n)
	for i := range w {
		x := float64(i) / float64(n)
		w[i] = a0 - a1*math.Cos(2*math.Pi*x) + a2*math.Cos(4*math.Pi*x)
	}
	return w
}
