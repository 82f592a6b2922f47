package fingerprint

import (
	"fmt"
	"iter"
	"math"

	"gonum.org/v1/gonum/floats"
)

// Waveform is a mono signal normalised to [-1, 1].
type Waveform struct {
	Samples    []float64
	SampleRate int
}

// Duration returns the length of the waveform in seconds.
func (w Waveform) Duration() float64 {
	if w.SampleRate <= 0 {
		return 0
	}
	return float64(len(w.Samples)) / float64(w.SampleRate)
}

// MixDown averages interleaved channels into one. A trailing partial frame is
// dropped; mono input is returned as is.
func MixDown(interleaved []float64, channels int) []float64 {
	if channels <= 1 {
		return interleaved
	}
	mono := make([]float64, len(interleaved)/channels)
	for i := range mono {
		mono[i] = floats.Sum(interleaved[i*channels : (i+1)*channels])
	}
	floats.Scale(1/float64(channels), mono)
	return mono
}

// Frame is a read-only view of one fixed-length window of a waveform.
type Frame struct {
	Index   int
	Start   int     // offset of the first sample in the untrimmed waveform
	Overlap float64 // fraction shared with the next frame
	Samples []float64
}

// Trim returns the half-open range [start, end) spanning the first and last
// sample whose magnitude exceeds threshold.
func Trim(samples []float64, threshold float64) (start, end int, err error) {
	start = -1
	for i, s := range samples {
		if math.Abs(s) > threshold {
			start = i
			break
		}
	}
	if start < 0 {
		return 0, 0, ErrEmptyAudio
	}
	for i := len(samples) - 1; i >= start; i-- {
		if math.Abs(samples[i]) > threshold {
			end = i + 1
			break
		}
	}
	return start, end, nil
}

// Segmenter slices a trimmed waveform into overlapping frames. Frames that
// would run past the end of the trimmed audio are dropped, never padded.
type Segmenter struct {
	samples []float64 // trimmed view
	offset  int       // trim start in the original waveform
	size    int
	hop     int
	overlap float64
	count   int
}

// NewSegmenter trims w and prepares its frame layout.
func NewSegmenter(w Waveform, cfg Config) (*Segmenter, error) {
	if w.SampleRate <= 0 {
		return nil, fmt.Errorf("%w: sample rate must be positive, got %d", ErrInvalidConfig, w.SampleRate)
	}

	size := int(math.Round(cfg.FrameDuration * float64(w.SampleRate)))
	if size < cfg.WindowSize {
		return nil, fmt.Errorf("%w: frame of %d samples is shorter than window_size %d",
			ErrInvalidConfig, size, cfg.WindowSize)
	}
	hop := size - int(math.Round(float64(size)*cfg.FrameOverlap))
	if hop < 1 {
		hop = 1
	}

	start, end, err := Trim(w.Samples, cfg.TrimThreshold)
	if err != nil {
		return nil, err
	}
	trimmed := w.Samples[start:end]
	if len(trimmed) < size {
		return nil, fmt.Errorf("%w: %d samples after trimming, need %d", ErrAudioTooShort, len(trimmed), size)
	}

	return &Segmenter{
		samples: trimmed,
		offset:  start,
		size:    size,
		hop:     hop,
		overlap: cfg.FrameOverlap,
		count:   (len(trimmed)-size)/hop + 1,
	}, nil
}

// Len returns the number of frames.
func (s *Segmenter) Len() int { return s.count }

// FrameSize returns the length of every frame in samples.
func (s *Segmenter) FrameSize() int { return s.size }

// TrimRange returns the retained range in the original waveform.
func (s *Segmenter) TrimRange() (start, end int) {
	return s.offset, s.offset + len(s.samples)
}

// Frame returns frame i. It panics if i is out of range.
func (s *Segmenter) Frame(i int) Frame {
	if i < 0 || i >= s.count {
		panic(fmt.Sprintf("fingerprint: frame index %d out of range [0,%d)", i, s.count))
	}
	lo := i * s.hop
	return Frame{
		Index:   i,
		Start:   s.offset + lo,
		Overlap: s.overlap,
		Samples: s.samples[lo : lo+s.size : lo+s.size],
	}
}

// Frames yields every frame in order. The sequence can be ranged over repeatedly.
func (s *Segmenter) Frames() iter.Seq[Frame] {
	return func(yield func(Frame) bool) {
		for i := 0; i < s.count; i++ {
			if !yield(s.Frame(i)) {
				return
			}
		}
	}
}
