package fingerprint

import (
	"fmt"
	"math/bits"
	"strconv"
	"strings"

	"github.com/OneOfOne/xxhash"
)

// ------------------------ TUNABLES ------------------------
const (
	// Bits allocated to each frequency bin in a hash. Caps the analysis band at 512 bins.
	BinBits = 9

	// Bits allocated to the slice delta of a pair. Caps MaxDelta at 255.
	DeltaBits = 8

	// FloorDB is the value assigned to empty or degenerate spectrum cells.
	FloorDB = -200.0
)

// Config holds every setting that changes the fingerprints of a track.
// A Config is passed by value and never mutated by the pipeline; two catalogs
// are only comparable when their Configs produce the same Settings.
type Config struct {
	SampleRate    int     `yaml:"sample_rate"`    // expected input rate, 0 accepts the native rate
	FrameDuration float64 `yaml:"frame_duration"` // seconds per frame
	FrameOverlap  float64 `yaml:"frame_overlap"`  // fraction of a frame shared with the next one, [0,1)
	TrimThreshold float64 `yaml:"trim_threshold"` // |sample| at or below this is silence

	WindowSize    int `yaml:"window_size"`    // FFT size, power of two
	WindowOverlap int `yaml:"window_overlap"` // samples shared by consecutive FFT windows
	BandSize      int `yaml:"band_size"`      // low-frequency bins kept for peak search

	PeakRadius     int     `yaml:"peak_radius"`      // +/- bins in the local-max neighbourhood
	PeakTimeRadius int     `yaml:"peak_time_radius"` // +/- slices in the local-max neighbourhood
	MinPeakDB      float64 `yaml:"min_peak_db"`      // absolute floor a peak must reach

	MinDelta      int `yaml:"min_delta"`       // target zone start, in slices
	MaxDelta      int `yaml:"max_delta"`       // target zone end, in slices
	TargetBinSpan int `yaml:"target_bin_span"` // max |targetBin-anchorBin|, 0 = unbounded
	FanOut        int `yaml:"fan_out"`         // max targets per anchor, 0 = unbounded
}

// DefaultConfig returns the settings the catalog is built with unless overridden.
func DefaultConfig() Config {
	return Config{
		SampleRate:     44100,
		FrameDuration:  1.0,
		FrameOverlap:   0.5,
		TrimThreshold:  0.001,
		WindowSize:     1024,
		WindowOverlap:  128,
		BandSize:       256,
		PeakRadius:     10,
		PeakTimeRadius: 0, // frequency-only neighbourhood
		MinPeakDB:      -70,
		MinDelta:       1,
		MaxDelta:       5,
		TargetBinSpan:  0,
		FanOut:         0,
	}
}

// Validate reports the first setting that would make the pipeline ill-defined.
func (c Config) Validate() error {
	switch {
	case c.SampleRate < 0:
		return invalid("sample_rate must not be negative, got %d", c.SampleRate)
	case c.FrameDuration <= 0:
		return invalid("frame_duration must be positive, got %g", c.FrameDuration)
	case c.FrameOverlap < 0 || c.FrameOverlap >= 1:
		return invalid("frame_overlap must be in [0,1), got %g", c.FrameOverlap)
	case c.TrimThreshold < 0 || c.TrimThreshold >= 1:
		return invalid("trim_threshold must be in [0,1), got %g", c.TrimThreshold)
	case c.WindowSize < 16 || bits.OnesCount(uint(c.WindowSize)) != 1:
		return invalid("window_size must be a power of two >= 16, got %d", c.WindowSize)
	case c.WindowOverlap < 0 || c.WindowOverlap >= c.WindowSize:
		return invalid("window_overlap must be in [0,window_size), got %d", c.WindowOverlap)
	case c.BandSize < 1 || c.BandSize > c.WindowSize/2+1:
		return invalid("band_size must be in [1,%d], got %d", c.WindowSize/2+1, c.BandSize)
	case c.BandSize > 1<<BinBits:
		return invalid("band_size must fit in %d bits, got %d", BinBits, c.BandSize)
	case c.PeakRadius < 1:
		return invalid("peak_radius must be at least 1, got %d", c.PeakRadius)
	case c.PeakTimeRadius < 0:
		return invalid("peak_time_radius must not be negative, got %d", c.PeakTimeRadius)
	case c.MinDelta < 0:
		return invalid("min_delta must not be negative, got %d", c.MinDelta)
	case c.MaxDelta < 1 || c.MaxDelta < c.MinDelta:
		return invalid("max_delta must be >= max(1, min_delta), got %d", c.MaxDelta)
	case c.MaxDelta >= 1<<DeltaBits:
		return invalid("max_delta must fit in %d bits, got %d", DeltaBits, c.MaxDelta)
	case c.TargetBinSpan < 0:
		return invalid("target_bin_span must not be negative, got %d", c.TargetBinSpan)
	case c.FanOut < 0:
		return invalid("fan_out must not be negative, got %d", c.FanOut)
	}
	return nil
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidConfig, fmt.Sprintf(format, args...))
}

// Hop returns the STFT hop in samples.
func (c Config) Hop() int {
	return c.WindowSize - c.WindowOverlap
}

// Setting is one persisted key/value of a Config.
type Setting struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// Settings lists the fingerprint-affecting settings in a fixed order.
func (c Config) Settings() []Setting {
	f := func(v float64) string { return strconv.FormatFloat(v, 'g', -1, 64) }
	i := strconv.Itoa
	return []Setting{
		{"sample_rate", i(c.SampleRate)},
		{"frame_duration", f(c.FrameDuration)},
		{"frame_overlap", f(c.FrameOverlap)},
		{"trim_threshold", f(c.TrimThreshold)},
		{"window_size", i(c.WindowSize)},
		{"window_overlap", i(c.WindowOverlap)},
		{"band_size", i(c.BandSize)},
		{"peak_radius", i(c.PeakRadius)},
		{"peak_time_radius", i(c.PeakTimeRadius)},
		{"min_peak_db", f(c.MinPeakDB)},
		{"min_delta", i(c.MinDelta)},
		{"max_delta", i(c.MaxDelta)},
		{"target_bin_span", i(c.TargetBinSpan)},
		{"fan_out", i(c.FanOut)},
	}
}

// Digest is a short checksum of Settings, stored alongside the catalog.
func (c Config) Digest() string {
	var b strings.Builder
	for _, s := range c.Settings() {
		b.WriteString(s.Key)
		b.WriteByte('=')
		b.WriteString(s.Value)
		b.WriteByte('\n')
	}
	return strconv.FormatUint(xxhash.ChecksumString64(b.String()), 16)
}
