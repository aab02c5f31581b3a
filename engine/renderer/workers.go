package renderer

import (
	"errors"
	"sync"

	"github.com/charmbracelet/log"
)

var (
	ErrNoWorkers  = errors.New("attempting to create a recording pool with less than 1 worker")
	ErrPoolClosed = errors.New("recording pool is shut down")
)

// RecordFunc records commands on a deferred context. The context must not
// be kept once the function returns.
type RecordFunc func(ctx *DeviceContext) error

type recordJob struct {
	record RecordFunc
	done   func(err error)
}

/**
 * @brief A pool of workers, each owning a deferred context. Every job
 * records on the context of the worker that picks it up and finishes a
 * command list, which the device queues for ExecutePending.
 */
type RecordingPool struct {
	jobs   chan recordJob
	wg     sync.WaitGroup
	log    *log.Logger
	mu     sync.RWMutex
	closed bool
}

// NewRecordingPool creates one deferred context per worker.
func (d *Device) NewRecordingPool(numWorkers int) (*RecordingPool, error) {
	if numWorkers <= 0 {
		return nil, ErrNoWorkers
	}
	contexts := make([]*DeviceContext, numWorkers)
	for i := range contexts {
		ctx, err := d.CreateDeferredContext()
		if err != nil {
			return nil, err
		}
		contexts[i] = ctx
	}

	p := &RecordingPool{
		jobs: make(chan recordJob, numWorkers),
		log:  d.log.With("pool", "recording"),
	}
	for _, ctx := range contexts {
		p.wg.Add(1)
		go p.work(ctx)
	}
	return p, nil
}

func (p *RecordingPool) work(ctx *DeviceContext) {
	defer p.wg.Done()
	for job := range p.jobs {
		err := job.record(ctx)
		if err != nil {
			p.log.Error("recording failed", "context", ctx.Name(), "err", err)
		}
		// a failed recording still closes its list so the context starts over
		if _, ferr := ctx.FinishCommandList(); ferr != nil {
			err = errors.Join(err, ferr)
		}
		job.done(err)
	}
}

// Record runs every fn on the deferred context of a worker and waits for
// all of them. The lists are queued in the order their recording ends, the
// functions of one call must not depend on each other.
func (p *RecordingPool) Record(fns ...RecordFunc) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrPoolClosed
	}

	var wg sync.WaitGroup
	errs := make([]error, len(fns))
	for i, fn := range fns {
		i := i
		wg.Add(1)
		p.jobs <- recordJob{
			record: fn,
			done: func(err error) {
				errs[i] = err
				wg.Done()
			},
		}
	}
	wg.Wait()
	return errors.Join(errs...)
}

/**
 * @brief Stops the workers once the jobs in flight are done. Their
 * deferred contexts stay with the device.
 */
func (p *RecordingPool) Shutdown() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}
	p.closed = true
	close(p.jobs)
	p.wg.Wait()
}
