package fingerprint

import (
	"context"
	"fmt"
	"runtime"

	"golang.org/x/sync/errgroup"

	"github.com/himanishpuri/acousticprint/internal/model"
)

// Result is the output of one pipeline run.
type Result struct {
	Fingerprints []model.Fingerprint
	Frames       int // frames analysed
	Peaks        int // peaks found across all frames
	Pairs        int // landmark pairs before deduplication
	TrimStart    int // first retained sample
	TrimEnd      int // one past the last retained sample
	SampleRate   int
}

// Generator runs the fingerprint pipeline. It is safe for concurrent use.
type Generator struct {
	cfg     Config
	workers int
}

// NewGenerator validates cfg and returns a Generator that analyses up to
// workers frames at once. workers <= 0 uses GOMAXPROCS.
func NewGenerator(cfg Config, workers int) (*Generator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	return &Generator{cfg: cfg, workers: workers}, nil
}

// Config returns the settings the generator was built with.
func (g *Generator) Config() Config { return g.cfg }

// Fingerprint trims and segments w, builds one hash tree per frame in
// parallel, folds them and encodes the result.
func (g *Generator) Fingerprint(ctx context.Context, w Waveform) (*Result, error) {
	if g.cfg.SampleRate != 0 && w.SampleRate != g.cfg.SampleRate {
		return nil, fmt.Errorf("%w: audio sampled at %d Hz, catalog expects %d Hz",
			ErrInvalidConfig, w.SampleRate, g.cfg.SampleRate)
	}

	seg, err := NewSegmenter(w, g.cfg)
	if err != nil {
		return nil, err
	}
	analyzer, err := NewAnalyzer(g.cfg, w.SampleRate)
	if err != nil {
		return nil, err
	}
	finder := NewPeakFinder(g.cfg)
	pairer := NewPairer(g.cfg)

	n := seg.Len()
	trees := make([]*Tree, n)
	peaks := make([]int, n)
	pairs := make([]int, n)

	eg, gctx := errgroup.WithContext(ctx)
	eg.SetLimit(g.workers)
	for i := 0; i < n; i++ {
		if gctx.Err() != nil {
			break
		}
		eg.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			spec := analyzer.Analyze(seg.Frame(i))
			pk := finder.Find(spec)
			lp := pairer.Pairs(pk)
			trees[i] = pairer.Tree(spec, lp)
			peaks[i] = len(pk)
			pairs[i] = len(lp)
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	tree := Merge(trees...)
	if tree.Len() == 0 {
		return nil, ErrNoLandmarks
	}

	start, end := seg.TrimRange()
	res := &Result{
		Fingerprints: Encode(tree, w.SampleRate),
		Frames:       n,
		TrimStart:    start,
		TrimEnd:      end,
		SampleRate:   w.SampleRate,
	}
	for i := range n {
		res.Peaks += peaks[i]
		res.Pairs += pairs[i]
	}
	return res, nil
}
