package dispatch

import (
	"context"
	"sync"
	"time"

	"github.com/ijol/sclog-core/pkg/logging"
)

const (
	maxBatchSize = 20
	maxWaitTime  = 500 * time.Millisecond
	pollInterval = 100 * time.Millisecond
)

// Pipeline batches enqueued items and hands them to a DataProvider, ported
// from the original process_data_queue worker: fill up to maxBatchSize
// items within maxWaitTime using pollInterval-spaced polls, and submit
// immediately once the queue drains.
type Pipeline struct {
	provider DataProvider
	logger   logging.Logger
	queue    chan Item
	wg       sync.WaitGroup
}

// New constructs a Pipeline. queueCap bounds the non-blocking Enqueue
// buffer; Enqueue drops and logs a warning if it is full.
func New(provider DataProvider, logger logging.Logger, queueCap int) *Pipeline {
	if queueCap <= 0 {
		queueCap = 10000
	}
	return &Pipeline{provider: provider, logger: logger, queue: make(chan Item, queueCap)}
}

// Enqueue is non-blocking.
func (p *Pipeline) Enqueue(data map[string]string, eventType string) {
	select {
	case p.queue <- Item{Data: data, Sheet: eventType}:
	default:
		p.logger.WithFields(logging.Fields{"component": "dispatch"}).Warn("dispatch queue full, dropping item")
	}
}

// Start launches the batching worker. Call Wait after cancelling ctx to
// block until the worker has drained and exited.
func (p *Pipeline) Start(ctx context.Context) {
	p.wg.Add(1)
	go p.run(ctx)
}

// Wait blocks until the worker goroutine has exited.
func (p *Pipeline) Wait() { p.wg.Wait() }

func (p *Pipeline) run(ctx context.Context) {
	defer p.wg.Done()
	for {
		select {
		case <-ctx.Done():
			for {
				select {
				case first := <-p.queue:
					p.submit(p.fillBatch(ctx, first))
				default:
					return
				}
			}
		case first := <-p.queue:
			batch := p.fillBatch(ctx, first)
			p.submit(batch)
		}
	}
}

func (p *Pipeline) fillBatch(ctx context.Context, first Item) []Item {
	batch := make([]Item, 0, maxBatchSize)
	batch = append(batch, first)

	deadline := time.NewTimer(maxWaitTime)
	defer deadline.Stop()

	for len(batch) < maxBatchSize {
		select {
		case <-ctx.Done():
			return batch
		case item := <-p.queue:
			batch = append(batch, item)
		case <-deadline.C:
			return batch
		case <-time.After(pollInterval):
			return batch
		}
	}
	return batch
}

func (p *Pipeline) submit(batch []Item) {
	if len(batch) == 0 {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := p.provider.ProcessData(ctx, batch); err != nil {
		p.logger.WithFields(logging.Fields{"component": "dispatch", "batch_size": len(batch), "error": err}).Warn("dispatch batch failed")
		return
	}
	p.logger.WithFields(logging.Fields{"component": "dispatch", "batch_size": len(batch)}).Info("dispatch batch sent")
}
