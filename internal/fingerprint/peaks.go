package fingerprint

// Peak is the position of a local maximum of a frame's spectrum.
// Only the position is kept; levels are dropped after extraction.
type Peak struct {
	Frame int // index of the frame the peak was found in
	Slice int // STFT slice within the frame
	Bin   int // frequency bin within the analysis band
}

// PeakFinder locates constellation points in a Spectrum.
type PeakFinder struct {
	binRadius  int
	timeRadius int
	minLevel   float64
}

// NewPeakFinder returns a PeakFinder using the neighbourhood and floor of cfg.
func NewPeakFinder(cfg Config) *PeakFinder {
	return &PeakFinder{
		binRadius:  cfg.PeakRadius,
		timeRadius: cfg.PeakTimeRadius,
		minLevel:   cfg.MinPeakDB,
	}
}

// Find returns the peaks of s ordered by (Bin, Slice).
//
// A cell is a peak when it strictly dominates every other cell within
// binRadius bins and timeRadius slices. Equal levels are broken toward the
// lower bin, then the earlier slice, so a plateau yields exactly one peak.
// Cells at the floor or below the minimum level are never peaks.
func (pf *PeakFinder) Find(s *Spectrum) []Peak {
	nSlices, nBins := len(s.Slices), s.Bins()
	if nSlices == 0 || nBins == 0 {
		return nil
	}

	var peaks []Peak
	for b := 0; b < nBins; b++ {
		for t := 0; t < nSlices; t++ {
			v := s.Slices[t][b]
			if v <= FloorDB || v < pf.minLevel {
				continue
			}
			if pf.isLocalMax(s.Slices, t, b) {
				peaks = append(peaks, Peak{Frame: s.Frame, Slice: t, Bin: b})
			}
		}
	}
	return peaks
}

func (pf *PeakFinder) isLocalMax(grid [][]float64, t, b int) bool {
	v := grid[t][b]
	tLo, tHi := max(0, t-pf.timeRadius), min(len(grid)-1, t+pf.timeRadius)
	bLo, bHi := max(0, b-pf.binRadius), min(len(grid[t])-1, b+pf.binRadius)

	for tt := tLo; tt <= tHi; tt++ {
		row := grid[tt]
		for bb := bLo; bb <= bHi; bb++ {
			if tt == t && bb == b {
				continue
			}
			if !dominates(v, t, b, row[bb], tt, bb) {
				return false
			}
		}
	}
	return true
}

// dominates reports whether cell (t1,b1) with level v1 outranks (t2,b2).
func dominates(v1 float64, t1, b1 int, v2 float64, t2, b2 int) bool {
	if v1 != v2 {
		return v1 > v2
	}
	if b1 != b2 {
		return b1 < b2
	}
	return t1 < t2
}
