package main

import (
	"context"
	"os"
	"time"

	"github.com/vbauerster/mpb/v8"
	"github.com/vbauerster/mpb/v8/decor"

	"github.com/himanishpuri/acousticprint/internal/service"
)

type progress struct {
	p    *mpb.Progress
	bar  *mpb.Bar
	last time.Time
}

func newProgress(ctx context.Context, total int) *progress {
	p := mpb.NewWithContext(ctx, mpb.WithWidth(64), mpb.WithOutput(os.Stderr))
	bar := p.AddBar(int64(total),
		mpb.PrependDecorators(
			decor.Name("Indexing: "),
			decor.CountersNoUnit("%d / %d"),
		),
		mpb.AppendDecorators(
			decor.Percentage(),
			decor.Name(" "),
			decor.EwmaETA(decor.ET_STYLE_GO, 30),
		),
	)
	return &progress{p: p, bar: bar, last: time.Now()}
}

// update is a service.ProgressFunc; the service never calls it concurrently.
func (pr *progress) update(_, _ int, _ service.FileResult) {
	now := time.Now()
	pr.bar.EwmaIncrement(now.Sub(pr.last))
	pr.last = now
}

func (pr *progress) finish(aborted bool) {
	if aborted {
		pr.bar.Abort(false)
	}
	pr.p.Wait()
}
