package pipeline

import (
	"context"
	"fmt"
	"runtime"
	"sync"

	"folio/internal/domain"
	"folio/internal/stage"
	"folio/internal/store"
)

// sliceJob is the message sent to a worker: one reduced store to process.
type sliceJob struct {
	index int
	view  *store.View
}

// sliceOutcome is the message a worker sends back.
type sliceOutcome struct {
	result store.SliceResult
	err    error
}

func (o *Orchestrator) poolSize(slices int) int {
	n := o.cfg.Slices.MaxThreads
	if n <= 1 {
		n = runtime.GOMAXPROCS(0)
	}
	return min(n, slices)
}

// dispatch sends every view to a fixed pool of workers and waits for all of
// them. Workers share nothing: each builds and initializes its own stage
// instance and only exchanges messages with the orchestrator. The first
// failure cancels the remaining slices.
func (o *Orchestrator) dispatch(ctx context.Context, desc stage.Descriptor, name string, views []*store.View) ([]store.SliceResult, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	workers := o.poolSize(len(views))
	jobs := make(chan sliceJob)
	outcomes := make(chan sliceOutcome, len(views))

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			o.work(ctx, id, desc, name, jobs, outcomes)
		}(w)
	}

	go func() {
		defer close(jobs)
		for i, v := range views {
			select {
			case jobs <- sliceJob{index: i, view: v}:
			case <-ctx.Done():
				return
			}
		}
	}()

	go func() {
		wg.Wait()
		close(outcomes)
	}()

	results := make([]store.SliceResult, 0, len(views))
	var firstErr error
	for out := range outcomes {
		if out.err != nil {
			if firstErr == nil {
				firstErr = out.err
				cancel()
			}
			continue
		}
		results = append(results, out.result)
	}
	if firstErr != nil {
		return nil, firstErr
	}
	if err := ctx.Err(); err != nil && len(results) < len(views) {
		return nil, err
	}
	store.SortResults(results)
	return results, nil
}

// work is one worker loop. The stage is initialized lazily on the first job
// and reused for every later slice routed to this worker.
func (o *Orchestrator) work(ctx context.Context, id int, desc stage.Descriptor, name string, jobs <-chan sliceJob, out chan<- sliceOutcome) {
	var st stage.Stage
	defer func() {
		if st == nil {
			return
		}
		if err := stage.Close(st); err != nil {
			o.logger.Warn("closing stage failed", "stage", name, "worker", id, "error", err)
		}
	}()
	for job := range jobs {
		if ctx.Err() != nil {
			continue
		}
		if st == nil {
			s, err := o.newStage(ctx, desc)
			if err != nil {
				out <- sliceOutcome{err: o.failure(name, job, err)}
				continue
			}
			st = s
			o.logger.Debug("worker initialized", "stage", name, "worker", id)
		}
		res, err := o.runSlice(ctx, st, job)
		if err != nil {
			out <- sliceOutcome{err: o.failure(name, job, err)}
			continue
		}
		out <- sliceOutcome{result: res}
	}
}

func (o *Orchestrator) newStage(ctx context.Context, desc stage.Descriptor) (stage.Stage, error) {
	s, err := desc.New()
	if err != nil {
		return nil, err
	}
	if err := s.Initialize(ctx); err != nil {
		return nil, fmt.Errorf("initialize: %w", err)
	}
	return s, nil
}

// runSlice processes one slice, converting panics to errors and enforcing
// the optional slice timeout. A stage that ignores cancellation keeps its
// goroutine running after the deadline; the orchestrator stops waiting.
func (o *Orchestrator) runSlice(ctx context.Context, st stage.Stage, job sliceJob) (store.SliceResult, error) {
	if o.cfg.SliceTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.cfg.SliceTimeout)
		defer cancel()
	}

	done := make(chan error, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- fmt.Errorf("panic: %v", r)
			}
		}()
		done <- stage.Process(ctx, st, job.view)
	}()

	select {
	case err := <-done:
		if err != nil {
			return store.SliceResult{}, err
		}
		return job.view.Result(job.index), nil
	case <-ctx.Done():
		return store.SliceResult{}, ctx.Err()
	}
}

func (o *Orchestrator) failure(name string, job sliceJob, err error) error {
	pages := job.view.Pages()
	wf := &domain.WorkerFailureError{Stage: name, Slice: job.index, FirstPage: -1, LastPage: -1, Err: err}
	if len(pages) > 0 {
		wf.FirstPage, wf.LastPage = pages[0], pages[len(pages)-1]
	}
	return wf
}
