package fingerprint

import (
	"math/rand"
	"testing"
)

func grid(slices, bins int, fill float64) *Spectrum {
	s := &Spectrum{Hop: 896, Slices: make([][]float64, slices)}
	for i := range s.Slices {
		s.Slices[i] = constant(bins, fill)
	}
	return s
}

func TestFindSinglePeak(t *testing.T) {
	s := grid(5, 40, -90)
	s.Frame = 3
	s.Slices[2][17] = -10

	pf := NewPeakFinder(DefaultConfig())
	peaks := pf.Find(s)
	if len(peaks) != 1 {
		t.Fatalf("got %d peaks, want 1: %v", len(peaks), peaks)
	}
	if want := (Peak{Frame: 3, Slice: 2, Bin: 17}); peaks[0] != want {
		t.Errorf("peak = %+v, want %+v", peaks[0], want)
	}
}

func TestFindTieBreaksTowardLowerBin(t *testing.T) {
	s := grid(3, 30, -90)
	s.Slices[1][12] = -20
	s.Slices[1][13] = -20
	s.Slices[1][14] = -20

	peaks := NewPeakFinder(DefaultConfig()).Find(s)
	if len(peaks) != 1 || peaks[0].Bin != 12 {
		t.Fatalf("plateau peaks = %v, want one at bin 12", peaks)
	}

	// Equal levels in time resolve to the earlier slice.
	s = grid(3, 30, -90)
	s.Slices[0][5] = -20
	s.Slices[1][5] = -20
	cfg := DefaultConfig()
	cfg.PeakTimeRadius = 1
	peaks = NewPeakFinder(cfg).Find(s)
	if len(peaks) != 1 || peaks[0].Slice != 0 {
		t.Fatalf("time plateau peaks = %v, want one at slice 0", peaks)
	}

	// Without a time radius each slice stands alone.
	cfg.PeakTimeRadius = 0
	peaks = NewPeakFinder(cfg).Find(s)
	if len(peaks) != 2 {
		t.Fatalf("frequency-only peaks = %v, want one per slice", peaks)
	}
}

func TestFindIgnoresFloor(t *testing.T) {
	s := grid(4, 30, FloorDB)
	if peaks := NewPeakFinder(DefaultConfig()).Find(s); len(peaks) != 0 {
		t.Errorf("floored spectrum produced %d peaks", len(peaks))
	}

	cfg := DefaultConfig()
	s = grid(4, 30, FloorDB)
	s.Slices[1][3] = -80 // below min_peak_db
	if peaks := NewPeakFinder(cfg).Find(s); len(peaks) != 0 {
		t.Errorf("sub-threshold cell produced peaks: %v", peaks)
	}
}

func randomSpectrum(r *rand.Rand, slices, bins int) *Spectrum {
	s := &Spectrum{Hop: 896, Slices: make([][]float64, slices)}
	for i := range s.Slices {
		row := make([]float64, bins)
		for b := range row {
			// Coarse quantisation forces plenty of ties.
			row[b] = float64(r.Intn(40)) * -2.5
		}
		s.Slices[i] = row
	}
	return s
}

func TestFindOrderingAndBand(t *testing.T) {
	r := rand.New(rand.NewSource(7))
	cfg := DefaultConfig()
	s := randomSpectrum(r, 49, cfg.BandSize)

	peaks := NewPeakFinder(cfg).Find(s)
	if len(peaks) == 0 {
		t.Fatal("no peaks in random spectrum")
	}
	for i, p := range peaks {
		if p.Bin < 0 || p.Bin >= cfg.BandSize {
			t.Errorf("peak %d bin %d outside band", i, p.Bin)
		}
		if i == 0 {
			continue
		}
		prev := peaks[i-1]
		if prev.Bin > p.Bin || (prev.Bin == p.Bin && prev.Slice >= p.Slice) {
			t.Errorf("peaks %d,%d out of (bin, slice) order: %+v %+v", i-1, i, prev, p)
		}
	}
}

func TestFindFloorMonotonic(t *testing.T) {
	r := rand.New(rand.NewSource(11))
	s := randomSpectrum(r, 30, 128)

	var prev map[Peak]bool
	for _, floor := range []float64{-100, -80, -60, -40, -20, 0} {
		cfg := DefaultConfig()
		cfg.MinPeakDB = floor
		cur := make(map[Peak]bool)
		for _, p := range NewPeakFinder(cfg).Find(s) {
			cur[p] = true
		}
		for p := range cur {
			if prev != nil && !prev[p] {
				t.Errorf("raising floor to %v added peak %+v", floor, p)
			}
		}
		prev = cur
	}
}

func TestFindDeterministic(t *testing.T) {
	r := rand.New(rand.NewSource(3))
	s := randomSpectrum(r, 20, 64)
	pf := NewPeakFinder(DefaultConfig())

	a, b := pf.Find(s), pf.Find(s)
	if len(a) != len(b) {
		t.Fatalf("runs differ in length: %d vs %d", len(a), len(b))
	}
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("runs differ at %d: %+v vs %+v", i, a[i], b[i])
		}
	}
}
