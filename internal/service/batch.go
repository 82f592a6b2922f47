package service

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/himanishpuri/acousticprint/internal/model"
	"github.com/himanishpuri/acousticprint/pkg/utils"
)

type Outcome int

const (
	Indexed Outcome = iota
	Duplicate
	Failed
)

func (o Outcome) String() string {
	switch o {
	case Indexed:
		return "indexed"
	case Duplicate:
		return "duplicate"
	default:
		return "failed"
	}
}

// FileResult is the fate of one file in a batch.
type FileResult struct {
	Path         string
	Outcome      Outcome
	Track        *model.Track
	Fingerprints int
	Err          error
}

// Report summarises a batch. Files is sorted by path.
type Report struct {
	Files      []FileResult
	Indexed    int
	Duplicates int
	Failed     int
}

// ProgressFunc is called once per resolved file, never concurrently.
type ProgressFunc func(done, total int, r FileResult)

// IndexPaths walks roots for audio files and indexes them with IndexFiles.
func (s *AcousticService) IndexPaths(ctx context.Context, roots []string, progress ProgressFunc) (*Report, error) {
	files, err := utils.WalkAudioFiles(roots...)
	if err != nil {
		return nil, err
	}
	return s.IndexFiles(ctx, files, progress)
}

// IndexFiles runs the batch pipeline: decode workers feed fingerprint
// workers over bounded queues, and a single writer persists the results.
// Per-file failures land in the report; only cancellation aborts the batch.
func (s *AcousticService) IndexFiles(ctx context.Context, files []string, progress ProgressFunc) (*Report, error) {
	report := &Report{}
	var mu sync.Mutex
	finish := func(r FileResult) {
		mu.Lock()
		defer mu.Unlock()
		switch r.Outcome {
		case Indexed:
			report.Indexed++
		case Duplicate:
			report.Duplicates++
			s.log.Debugf("skipping %s: %v", r.Path, r.Err)
		case Failed:
			report.Failed++
			s.log.Warnf("failed to index %s: %v", r.Path, r.Err)
		}
		report.Files = append(report.Files, r)
		if progress != nil {
			progress(len(report.Files), len(files), r)
		}
	}

	// settle resolves the file holding digest and every copy parked behind it.
	claimed := newDigestSet()
	settle := func(digest string, r FileResult) {
		finish(r)
		for _, p := range claimed.resolve(digest, r) {
			finish(copyResult(p, r))
		}
	}

	paths := make(chan string)
	decodedCh := make(chan *decoded, s.queue)
	ready := make(chan *fingerprinted, s.queue)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		defer close(paths)
		for _, p := range files {
			select {
			case paths <- p:
			case <-gctx.Done():
				return gctx.Err()
			}
		}
		return nil
	})

	var decoders sync.WaitGroup
	for range s.workers {
		decoders.Add(1)
		g.Go(func() error {
			defer decoders.Done()
			for p := range paths {
				d, digest, res := s.decodeStage(gctx, p, claimed)
				if err := gctx.Err(); err != nil {
					return err
				}
				if d == nil {
					if res != nil {
						settle(digest, *res)
					}
					continue
				}
				select {
				case decodedCh <- d:
				case <-gctx.Done():
					return gctx.Err()
				}
			}
			return nil
		})
	}
	g.Go(func() error {
		decoders.Wait()
		close(decodedCh)
		return nil
	})

	var fingerprinters sync.WaitGroup
	for range s.workers {
		fingerprinters.Add(1)
		g.Go(func() error {
			defer fingerprinters.Done()
			for d := range decodedCh {
				f, err := s.fingerprint(gctx, d)
				if cerr := gctx.Err(); cerr != nil {
					return cerr
				}
				if err != nil {
					settle(d.digest, FileResult{Path: d.path, Outcome: Failed, Err: err})
					continue
				}
				select {
				case ready <- f:
				case <-gctx.Done():
					return gctx.Err()
				}
			}
			return nil
		})
	}
	g.Go(func() error {
		fingerprinters.Wait()
		close(ready)
		return nil
	})

	g.Go(func() error {
		for f := range ready {
			res, err := s.save(gctx, f)
			if cerr := gctx.Err(); cerr != nil {
				return cerr
			}
			switch {
			case errors.Is(err, ErrDuplicateTrack):
				settle(f.digest, FileResult{Path: f.path, Outcome: Duplicate, Err: err})
			case err != nil:
				settle(f.digest, FileResult{Path: f.path, Outcome: Failed, Err: err})
			default:
				settle(f.digest, FileResult{Path: f.path, Outcome: Indexed, Track: res.Track, Fingerprints: res.Fingerprints})
			}
		}
		return nil
	})

	err := g.Wait()
	slices.SortFunc(report.Files, func(a, b FileResult) int { return strings.Compare(a.Path, b.Path) })
	if err != nil {
		return report, err
	}
	return report, ctx.Err()
}

// decodeStage returns the decoded track, or nil and the file's final result.
// Both are nil when the file is a copy of one still in flight; it is settled
// together with that file.
func (s *AcousticService) decodeStage(ctx context.Context, path string, claimed *digestSet) (*decoded, string, *FileResult) {
	digest, err := utils.HashFile(path)
	if err != nil {
		return nil, "", &FileResult{Path: path, Outcome: Failed, Err: err}
	}
	first, holder := claimed.claim(digest, path)
	if !first {
		if holder != nil {
			r := copyResult(path, *holder)
			return nil, "", &r
		}
		return nil, "", nil
	}
	existing, err := s.lookupDigest(ctx, digest)
	if err != nil {
		return nil, digest, &FileResult{Path: path, Outcome: Failed, Err: err}
	}
	if existing != nil {
		return nil, digest, &FileResult{Path: path, Outcome: Duplicate, Track: existing, Err: fmt.Errorf("%s: %w", path, ErrDuplicateTrack)}
	}

	d, err := s.decode(ctx, path, digest)
	if err != nil {
		return nil, digest, &FileResult{Path: path, Outcome: Failed, Err: err}
	}
	return d, digest, nil
}

// copyResult is the result of a byte-identical copy of owner.Path.
func copyResult(path string, owner FileResult) FileResult {
	if owner.Outcome == Failed {
		return FileResult{Path: path, Outcome: Failed, Err: fmt.Errorf("%s: same content as %s: %w", path, owner.Path, owner.Err)}
	}
	return FileResult{Path: path, Outcome: Duplicate, Track: owner.Track, Err: fmt.Errorf("%s: same content as %s: %w", path, owner.Path, ErrDuplicateTrack)}
}

// digestSet tracks content digests claimed by the running batch, and the
// copies waiting on each claim.
type digestSet struct {
	mu sync.Mutex
	m  map[string]*digestClaim
}

type digestClaim struct {
	holder  *FileResult // set once the holder is in the catalog
	waiters []string
}

func newDigestSet() *digestSet {
	return &digestSet{m: make(map[string]*digestClaim)}
}

// claim makes path the holder of digest if nobody holds it. Otherwise path is
// parked until the holder resolves, unless the holder is already in the
// catalog, in which case its result is returned.
func (d *digestSet) claim(digest, path string) (first bool, holder *FileResult) {
	d.mu.Lock()
	defer d.mu.Unlock()
	c, ok := d.m[digest]
	if !ok {
		d.m[digest] = &digestClaim{}
		return true, nil
	}
	if c.holder != nil {
		return false, c.holder
	}
	c.waiters = append(c.waiters, path)
	return false, nil
}

// resolve records the holder's result and returns the parked copies. A failed
// holder gives up the digest.
func (d *digestSet) resolve(digest string, r FileResult) []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	c := d.m[digest]
	if c == nil {
		return nil
	}
	waiters := c.waiters
	c.waiters = nil
	if r.Outcome == Failed {
		delete(d.m, digest)
	} else {
		c.holder = &r
	}
	return waiters
}
