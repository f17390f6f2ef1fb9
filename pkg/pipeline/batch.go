package pipeline

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"
)

// BatchItem is the outcome of one job in a batch
type BatchItem struct {
	Job    Job
	Result *Result
	Err    error
}

// RunBatch runs independent jobs with at most concurrency running at once.
// A failing job does not stop the others; items are returned in job order.
func (r *Runner) RunBatch(ctx context.Context, jobs []Job, concurrency int) ([]BatchItem, error) {
	seen := make(map[string]string, len(jobs))
	for _, job := range jobs {
		dir, err := r.outputDir(job)
		if err != nil {
			return nil, err
		}
		if other, ok := seen[dir]; ok {
			return nil, fmt.Errorf("%w: %s and %s both write to %s", ErrDuplicateOutput, other, job.Input, dir)
		}
		seen[dir] = job.Input
	}

	if concurrency < 1 {
		concurrency = 1
	}

	items := make([]BatchItem, len(jobs))
	var g errgroup.Group
	g.SetLimit(concurrency)
	for i, job := range jobs {
		g.Go(func() error {
			result, err := r.Run(ctx, job)
			items[i] = BatchItem{Job: job, Result: result, Err: err}
			return nil
		})
	}
	_ = g.Wait()

	return items, nil
}

// Failed returns the items whose primary step failed
func Failed(items []BatchItem) []BatchItem {
	var failed []BatchItem
	for _, item := range items {
		if item.Err != nil {
			failed = append(failed, item)
		}
	}
	return failed
}
