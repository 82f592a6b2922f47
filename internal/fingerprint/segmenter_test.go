package fingerprint

import (
	"errors"
	"testing"
)

func TestMixDown(t *testing.T) {
	got := MixDown([]float64{1, 0, 0.5, 0.5, 0.25}, 2)
	want := []float64{0.5, 0.5}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("mono[%d] = %v, want %v", i, got[i], want[i])
		}
	}

	mono := []float64{0.1, 0.2}
	if got := MixDown(mono, 1); &got[0] != &mono[0] {
		t.Error("mono input was copied")
	}
}

func TestTrim(t *testing.T) {
	samples := []float64{0, 0.0005, -0.002, 0.3, 0, -0.5, 0.0001, 0}

	start, end, err := Trim(samples, 0.001)
	if err != nil {
		t.Fatalf("Trim: %v", err)
	}
	if start != 2 || end != 6 {
		t.Errorf("Trim = [%d,%d), want [2,6)", start, end)
	}
}

func TestTrimSilence(t *testing.T) {
	_, _, err := Trim(make([]float64, 1000), 0.001)
	if !errors.Is(err, ErrEmptyAudio) {
		t.Errorf("Trim(silence) err = %v, want ErrEmptyAudio", err)
	}

	_, _, err = Trim(nil, 0.001)
	if !errors.Is(err, ErrEmptyAudio) {
		t.Errorf("Trim(nil) err = %v, want ErrEmptyAudio", err)
	}
}

func TestSegmenterFrames(t *testing.T) {
	cfg := DefaultConfig()
	cfg.WindowSize = 16
	cfg.WindowOverlap = 0
	cfg.BandSize = 8

	// Three silent samples lead the signal.
	samples := make([]float64, 3+27)
	for i := 3; i < len(samples); i++ {
		samples[i] = 0.5
	}
	cfg.FrameDuration = 2 // 20 samples at 10 Hz, hop 10
	seg, err := NewSegmenter(Waveform{Samples: samples, SampleRate: 10}, cfg)
	if err != nil {
		t.Fatalf("NewSegmenter: %v", err)
	}

	// 27 retained samples, size 20, hop 10: one full frame, the second would overrun.
	if seg.Len() != 1 {
		t.Fatalf("Len() = %d, want 1", seg.Len())
	}
	f := seg.Frame(0)
	if f.Start != 3 || len(f.Samples) != 20 {
		t.Errorf("frame 0 = start %d len %d, want start 3 len 20", f.Start, len(f.Samples))
	}
	if start, end := seg.TrimRange(); start != 3 || end != 30 {
		t.Errorf("TrimRange() = [%d,%d), want [3,30)", start, end)
	}
}

func TestSegmenterFrameCount(t *testing.T) {
	cfg := DefaultConfig()
	w := Waveform{Samples: constant(5*44100, 0.25), SampleRate: 44100}

	seg, err := NewSegmenter(w, cfg)
	if err != nil {
		t.Fatalf("NewSegmenter: %v", err)
	}
	if seg.Len() != 9 {
		t.Fatalf("Len() = %d, want 9", seg.Len())
	}

	var starts []int
	for f := range seg.Frames() {
		starts = append(starts, f.Start)
		if len(f.Samples) != 44100 {
			t.Errorf("frame %d has %d samples", f.Index, len(f.Samples))
		}
	}
	for i, s := range starts {
		if s != i*22050 {
			t.Errorf("frame %d starts at %d, want %d", i, s, i*22050)
		}
	}

	// The sequence restarts from the beginning.
	n := 0
	for range seg.Frames() {
		n++
	}
	if n != 9 {
		t.Errorf("second pass yielded %d frames, want 9", n)
	}
}

func TestSegmenterErrors(t *testing.T) {
	cfg := DefaultConfig()

	_, err := NewSegmenter(Waveform{Samples: make([]float64, 44100*2), SampleRate: 44100}, cfg)
	if !errors.Is(err, ErrEmptyAudio) {
		t.Errorf("silent input err = %v, want ErrEmptyAudio", err)
	}

	_, err = NewSegmenter(Waveform{Samples: constant(1000, 0.5), SampleRate: 44100}, cfg)
	if !errors.Is(err, ErrAudioTooShort) {
		t.Errorf("short input err = %v, want ErrAudioTooShort", err)
	}

	_, err = NewSegmenter(Waveform{Samples: constant(1000, 0.5), SampleRate: 500}, cfg)
	if !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("frame smaller than window err = %v, want ErrInvalidConfig", err)
	}
}

func constant(n int, v float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = v
	}
	return out
}
