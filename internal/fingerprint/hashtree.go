package fingerprint

import (
	"cmp"
	"slices"
)

// LandmarkPair is an anchor peak and a target peak from its target zone.
type LandmarkPair struct {
	Anchor Peak
	Target Peak
}

// Delta returns the slice distance from anchor to target.
func (p LandmarkPair) Delta() int { return p.Target.Slice - p.Anchor.Slice }

// Key identifies a landmark pair independently of where it occurred.
type Key struct {
	AnchorBin uint16
	TargetBin uint16
	Delta     uint8
}

func compareKeys(a, b Key) int {
	if c := cmp.Compare(a.AnchorBin, b.AnchorBin); c != 0 {
		return c
	}
	if c := cmp.Compare(a.TargetBin, b.TargetBin); c != 0 {
		return c
	}
	return cmp.Compare(a.Delta, b.Delta)
}

// Occurrence records where a key was seen.
type Occurrence struct {
	Offset int // absolute sample offset of the anchor slice
	Frame  int
}

// earlier reports whether o precedes p. Offset decides, Frame breaks ties.
func (o Occurrence) earlier(p Occurrence) bool {
	if o.Offset != p.Offset {
		return o.Offset < p.Offset
	}
	return o.Frame < p.Frame
}

// Entry is one key of a Tree with its retained occurrence.
type Entry struct {
	Key
	Occurrence
}

// Tree maps landmark keys to their earliest occurrence.
// The zero value is not usable; call NewTree.
type Tree struct {
	m map[Key]Occurrence
}

// NewTree returns an empty Tree.
func NewTree() *Tree {
	return &Tree{m: make(map[Key]Occurrence)}
}

// Insert records o under k unless an earlier occurrence is already held.
// It reports whether the stored occurrence changed.
func (t *Tree) Insert(k Key, o Occurrence) bool {
	if cur, ok := t.m[k]; ok && !o.earlier(cur) {
		return false
	}
	t.m[k] = o
	return true
}

// Get returns the occurrence retained for k.
func (t *Tree) Get(k Key) (Occurrence, bool) {
	o, ok := t.m[k]
	return o, ok
}

// Len returns the number of distinct keys.
func (t *Tree) Len() int { return len(t.m) }

// MergeFrom folds other into t in place.
func (t *Tree) MergeFrom(other *Tree) {
	if other == nil {
		return
	}
	for k, o := range other.m {
		t.Insert(k, o)
	}
}

// Merge returns a new tree holding the union of trees. Its content does not
// depend on argument order or on how the inputs were partitioned.
func Merge(trees ...*Tree) *Tree {
	n := 0
	for _, t := range trees {
		if t != nil {
			n = max(n, t.Len())
		}
	}
	out := &Tree{m: make(map[Key]Occurrence, n)}
	for _, t := range trees {
		out.MergeFrom(t)
	}
	return out
}

// Entries returns the tree content sorted by key.
func (t *Tree) Entries() []Entry {
	out := make([]Entry, 0, len(t.m))
	for k, o := range t.m {
		out = append(out, Entry{Key: k, Occurrence: o})
	}
	slices.SortFunc(out, func(a, b Entry) int { return compareKeys(a.Key, b.Key) })
	return out
}

// Pairer builds landmark pairs from the peaks of one frame.
type Pairer struct {
	minDelta int
	maxDelta int
	binSpan  int
	fanOut   int
}

// NewPairer returns a Pairer using the target zone of cfg.
func NewPairer(cfg Config) *Pairer {
	return &Pairer{
		minDelta: cfg.MinDelta,
		maxDelta: cfg.MaxDelta,
		binSpan:  cfg.TargetBinSpan,
		fanOut:   cfg.FanOut,
	}
}

// Pairs returns every landmark pair among peaks. Peaks are meshed by
// (Slice, Bin); each anchor pairs with later mesh points whose slice delta
// lies in [minDelta, maxDelta]. At delta 0 the anchor is the lower bin.
func (p *Pairer) Pairs(peaks []Peak) []LandmarkPair {
	mesh := slices.Clone(peaks)
	slices.SortFunc(mesh, func(a, b Peak) int {
		if c := cmp.Compare(a.Slice, b.Slice); c != 0 {
			return c
		}
		return cmp.Compare(a.Bin, b.Bin)
	})

	var pairs []LandmarkPair
	for i, anchor := range mesh {
		paired := 0
		for _, target := range mesh[i+1:] {
			dt := target.Slice - anchor.Slice
			if dt > p.maxDelta {
				break
			}
			if dt < p.minDelta {
				continue
			}
			if p.binSpan > 0 && abs(target.Bin-anchor.Bin) > p.binSpan {
				continue
			}
			pairs = append(pairs, LandmarkPair{Anchor: anchor, Target: target})
			paired++
			if p.fanOut > 0 && paired >= p.fanOut {
				break
			}
		}
	}
	return pairs
}

// Tree builds the hash tree of one analysed frame from its pairs.
func (p *Pairer) Tree(s *Spectrum, pairs []LandmarkPair) *Tree {
	t := NewTree()
	for _, lp := range pairs {
		t.Insert(Key{
			AnchorBin: uint16(lp.Anchor.Bin),
			TargetBin: uint16(lp.Target.Bin),
			Delta:     uint8(lp.Delta()),
		}, Occurrence{
			Offset: s.SliceOffset(lp.Anchor.Slice),
			Frame:  s.Frame,
		})
	}
	return t
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}
