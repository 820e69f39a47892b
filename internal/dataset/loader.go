package dataset

import (
	"context"
	"math/rand/v2"
	"sync"

	"github.com/pkg/errors"
)

// LoaderOptions configures batching of a Dataset.
type LoaderOptions struct {
	BatchSize  int
	Shuffle    bool
	Seed       uint64
	NumWorkers int
	// Prefetch bounds how many batches may be materialized ahead of the
	// consumer. Defaults to twice NumWorkers.
	Prefetch  int
	Normalize Normalize
}

// Loader splits a Dataset into batches, reshuffling on every Stream call
// when Shuffle is set.
type Loader struct {
	ds   *Dataset
	opts LoaderOptions
	rng  *rand.Rand
}

// NewLoader validates opts and returns a Loader over ds.
func NewLoader(ds *Dataset, opts LoaderOptions) (*Loader, error) {
	if ds == nil {
		return nil, errors.New("loader: nil dataset")
	}
	if opts.BatchSize <= 0 {
		return nil, errors.Errorf("loader: batch size must be > 0 (got %d)", opts.BatchSize)
	}
	if opts.NumWorkers <= 0 {
		opts.NumWorkers = 1
	}
	if opts.Prefetch <= 0 {
		opts.Prefetch = opts.NumWorkers * 2
	}
	if opts.Normalize.Std == 0 {
		opts.Normalize = Normalize{Mean: 0, Std: 1}
	}
	return &Loader{
		ds:   ds,
		opts: opts,
		rng:  rand.New(rand.NewPCG(opts.Seed, opts.Seed^0x9e3779b97f4a7c15)),
	}, nil
}

// Dataset returns the underlying dataset.
func (l *Loader) Dataset() *Dataset {
	return l.ds
}

// Len returns the number of batches in one pass; the last batch may be short.
func (l *Loader) Len() int {
	return (l.ds.Len() + l.opts.BatchSize - 1) / l.opts.BatchSize
}

// Stream materializes one pass over the dataset. Batches are delivered in
// order regardless of the number of workers. The batch channel is closed when
// the pass ends; the error channel then yields at most one error.
func (l *Loader) Stream(parent context.Context) (<-chan Batch, <-chan error) {
	order := l.order()
	total := l.Len()

	ctx, cancel := context.WithCancel(parent)

	jobs := make(chan batchJob, l.opts.NumWorkers)
	results := make(chan batchJob, l.opts.NumWorkers)
	slots := make(chan struct{}, l.opts.Prefetch)
	out := make(chan Batch, 1)
	errCh := make(chan error, 1)

	go l.produceJobs(ctx, jobs, slots, order)

	var wg sync.WaitGroup
	for i := 0; i < l.opts.NumWorkers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			l.worker(ctx, jobs, results)
		}()
	}

	go func() {
		wg.Wait()
		close(results)
	}()

	go func() {
		defer cancel()
		defer close(out)
		defer close(errCh)
		if err := runAggregator(ctx, results, slots, out, total); err != nil {
			errCh <- err
		}
	}()

	return out, errCh
}

type batchJob struct {
	id      int
	indices []int
	batch   Batch
}

func (l *Loader) order() []int {
	n := l.ds.Len()
	if !l.opts.Shuffle {
		order := make([]int, n)
		for i := range order {
			order[i] = i
		}
		return order
	}
	return l.rng.Perm(n)
}

func (l *Loader) produceJobs(ctx context.Context, jobs chan<- batchJob, slots chan<- struct{}, order []int) {
	defer close(jobs)
	for id, start := 0, 0; start < len(order); id, start = id+1, start+l.opts.BatchSize {
		end := start + l.opts.BatchSize
		if end > len(order) {
			end = len(order)
		}
		select {
		case <-ctx.Done():
			return
		case slots <- struct{}{}:
		}
		select {
		case <-ctx.Done():
			return
		case jobs <- batchJob{id: id, indices: order[start:end]}:
		}
	}
}

func (l *Loader) worker(ctx context.Context, jobs <-chan batchJob, results chan<- batchJob) {
	for {
		select {
		case <-ctx.Done():
			return
		case job, ok := <-jobs:
			if !ok {
				return
			}
			job.batch = l.materialize(job.indices)
			select {
			case <-ctx.Done():
				return
			case results <- job:
			}
		}
	}
}

func (l *Loader) materialize(indices []int) Batch {
	b := Batch{
		Images: make([]Image, len(indices)),
		Labels: make([]int, len(indices)),
	}
	for i, idx := range indices {
		s := l.ds.Sample(idx)
		pix := make([]float64, len(s.Pixels))
		for j, p := range s.Pixels {
			pix[j] = l.opts.Normalize.Apply(p)
		}
		b.Images[i] = Image{Rows: l.ds.Rows, Cols: l.ds.Cols, Pix: pix}
		b.Labels[i] = s.Label
	}
	return b
}

// runAggregator re-orders worker output by batch id and releases one prefetch
// slot per emitted batch.
func runAggregator(ctx context.Context, results <-chan batchJob, slots <-chan struct{}, out chan<- Batch, total int) error {
	pending := make(map[int]Batch)
	for next := 0; next < total; {
		b, ok := pending[next]
		if !ok {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case job, ok := <-results:
				if !ok {
					if err := ctx.Err(); err != nil {
						return err
					}
					return errors.Errorf("loader: stream ended after %d of %d batches", next, total)
				}
				pending[job.id] = job.batch
			}
			continue
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case out <- b:
		}
		delete(pending, next)
		<-slots
		next++
	}
	return nil
}
