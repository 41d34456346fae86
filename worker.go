package checkout

import (
	"context"

	"go.uber.org/zap"

	"goflare.io/checkout/models"
)

type Worker struct {
	ID         int
	WorkerPool chan chan WorkRequest
	JobChannel chan WorkRequest
	quit       chan struct{}
	checkout   *StripeCheckout
}

// WorkRequest asks a worker to settle one stale order. Done, when set, is
// called exactly once with the result.
type WorkRequest struct {
	Order *models.Order
	Ctx   context.Context
	Done  func(error)
}

func (r WorkRequest) finish(err error) {
	if r.Done != nil {
		r.Done(err)
	}
}

func NewWorker(id int, workerPool chan chan WorkRequest, checkout *StripeCheckout) Worker {
	return Worker{
		ID:         id,
		WorkerPool: workerPool,
		JobChannel: make(chan WorkRequest),
		quit:       make(chan struct{}),
		checkout:   checkout,
	}
}

func (w Worker) Start() {
	go func() {
		for {
			select {
			case w.WorkerPool <- w.JobChannel:
			case <-w.quit:
				return
			}

			select {
			case job := <-w.JobChannel:
				w.process(job)
			case <-w.quit:
				return
			}
		}
	}()
}

func (w Worker) process(job WorkRequest) {
	logger := w.checkout.logger.With(
		zap.Int("worker_id", w.ID),
		zap.String("order_id", job.Order.ID),
		zap.String("session_id", job.Order.GatewaySessionID))

	outcome, err := w.checkout.sweepOrder(job.Ctx, job.Order)
	if err != nil {
		logger.Error("Failed to settle stale order", zap.Error(err))
		w.checkout.metrics.RecordSweptOrder("error")
	} else {
		logger.Info("Stale order settled", zap.String("outcome", outcome))
		w.checkout.metrics.RecordSweptOrder(outcome)
	}

	job.finish(err)
}

func (w Worker) Stop() {
	close(w.quit)
}
