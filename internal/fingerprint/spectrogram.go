package fingerprint

import (
	"fmt"
	"math"
	"math/cmplx"

	"github.com/mjibson/go-dsp/fft"
	"github.com/mjibson/go-dsp/window"
	"gonum.org/v1/gonum/floats"
)

// Spectrum is the log-power spectrogram of one frame, restricted to the
// analysis band. Slices[s][b] is the level in dB of bin b during slice s.
type Spectrum struct {
	Frame  int
	Start  int // absolute sample offset of the frame
	Hop    int // samples between consecutive slices
	Slices [][]float64
}

// Bins returns the number of frequency bins per slice.
func (s *Spectrum) Bins() int {
	if len(s.Slices) == 0 {
		return 0
	}
	return len(s.Slices[0])
}

// SliceOffset returns the absolute sample offset of slice i.
func (s *Spectrum) SliceOffset(i int) int {
	return s.Start + i*s.Hop
}

// Analyzer computes banded power spectrograms. It is safe for concurrent use;
// the window and its normalisation are computed once.
type Analyzer struct {
	size  int
	hop   int
	band  int
	win   []float64
	scale float64 // 1 / (fs * sum(w^2))
}

// NewAnalyzer builds an Analyzer for audio sampled at sampleRate.
func NewAnalyzer(cfg Config, sampleRate int) (*Analyzer, error) {
	if sampleRate <= 0 {
		return nil, fmt.Errorf("%w: sample rate must be positive, got %d", ErrInvalidConfig, sampleRate)
	}
	win := window.Hann(cfg.WindowSize)
	energy := floats.Dot(win, win)
	return &Analyzer{
		size:  cfg.WindowSize,
		hop:   cfg.Hop(),
		band:  cfg.BandSize,
		win:   win,
		scale: 1 / (float64(sampleRate) * energy),
	}, nil
}

// Slices returns how many STFT slices fit in n samples.
func (a *Analyzer) Slices(n int) int {
	if n < a.size {
		return 0
	}
	return (n-a.size)/a.hop + 1
}

// Analyze computes the spectrum of f. Windows that would run past the end of
// the frame are dropped.
func (a *Analyzer) Analyze(f Frame) *Spectrum {
	n := a.Slices(len(f.Samples))
	out := &Spectrum{
		Frame:  f.Index,
		Start:  f.Start,
		Hop:    a.hop,
		Slices: make([][]float64, n),
	}

	buf := make([]float64, a.size)
	for s := 0; s < n; s++ {
		lo := s * a.hop
		copy(buf, f.Samples[lo:lo+a.size])
		floats.Mul(buf, a.win)
		out.Slices[s] = a.levels(fft.FFTReal(buf))
	}
	return out
}

// levels converts one FFT into one-sided power spectral density in dB,
// keeping the first band bins.
func (a *Analyzer) levels(spec []complex128) []float64 {
	half := a.size / 2
	row := make([]float64, a.band)
	for k := range row {
		m := cmplx.Abs(spec[k])
		p := m * m * a.scale
		if k > 0 && k < half {
			p *= 2
		}
		row[k] = toDB(p)
	}
	return row
}

func toDB(p float64) float64 {
	if p <= 0 || math.IsNaN(p) {
		return FloorDB
	}
	v := 10 * math.Log10(p)
	if v < FloorDB || math.IsNaN(v) {
		return FloorDB
	}
	return v
}
