package checkout

import (
	"errors"
	"sync"

	"go.uber.org/zap"
)

var ErrDispatcherStopped = errors.New("dispatcher stopped")

// Dispatcher fans work requests out to a fixed pool of workers.
type Dispatcher struct {
	WorkerPool chan chan WorkRequest
	maxWorkers int
	jobQueue   chan WorkRequest
	checkout   *StripeCheckout
	workers    []Worker
	stop       chan struct{}
	stopOnce   sync.Once
	wg         sync.WaitGroup
	mu         sync.Mutex
}

func NewDispatcher(maxWorkers int, jobQueueSize int, checkout *StripeCheckout) *Dispatcher {
	if maxWorkers < 1 {
		maxWorkers = 1
	}
	if jobQueueSize < 1 {
		jobQueueSize = 1
	}
	return &Dispatcher{
		WorkerPool: make(chan chan WorkRequest, maxWorkers),
		maxWorkers: maxWorkers,
		jobQueue:   make(chan WorkRequest, jobQueueSize),
		checkout:   checkout,
		stop:       make(chan struct{}),
	}
}

func (d *Dispatcher) Run() {
	d.mu.Lock()
	for i := 0; i < d.maxWorkers; i++ {
		worker := NewWorker(i+1, d.WorkerPool, d.checkout)
		worker.Start()
		d.workers = append(d.workers, worker)
	}
	d.mu.Unlock()

	d.wg.Add(1)
	go d.dispatch()
}

// Submit queues job, blocking while the queue is full. Jobs submitted after
// Stop, or whose context ends first, are finished with an error.
func (d *Dispatcher) Submit(job WorkRequest) {
	select {
	case <-d.stop:
		job.finish(ErrDispatcherStopped)
		return
	default:
	}

	select {
	case d.jobQueue <- job:
	case <-job.Ctx.Done():
		job.finish(job.Ctx.Err())
	case <-d.stop:
		job.finish(ErrDispatcherStopped)
	}
}

func (d *Dispatcher) dispatch() {
	defer d.wg.Done()

	for {
		select {
		case job := <-d.jobQueue:
			d.assign(job)
		case <-d.stop:
			d.drain()
			return
		}
	}
}

func (d *Dispatcher) assign(job WorkRequest) {
	select {
	case jobChannel := <-d.WorkerPool:
		select {
		case jobChannel <- job:
		case <-job.Ctx.Done():
			d.checkout.logger.Warn("Job context canceled before processing",
				zap.Error(job.Ctx.Err()),
				zap.String("order_id", job.Order.ID))
			job.finish(job.Ctx.Err())
		}
	case <-job.Ctx.Done():
		d.checkout.logger.Warn("Job context canceled while waiting for available worker",
			zap.Error(job.Ctx.Err()),
			zap.String("order_id", job.Order.ID))
		job.finish(job.Ctx.Err())
	case <-d.stop:
		job.finish(ErrDispatcherStopped)
	}
}

func (d *Dispatcher) drain() {
	for {
		select {
		case job := <-d.jobQueue:
			job.finish(ErrDispatcherStopped)
		default:
			return
		}
	}
}

// Stop ends dispatching and stops every worker once its current job is done.
func (d *Dispatcher) Stop() {
	d.stopOnce.Do(func() {
		close(d.stop)
		d.wg.Wait()

		d.mu.Lock()
		for _, worker := range d.workers {
			worker.Stop()
		}
		d.workers = nil
		d.mu.Unlock()
	})
}
