package scheduler

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/craftbase/task-scheduler/pkg/metrics"
)

const idleWorkerTimeout = 60 * time.Second

var (
	// ErrPoolSaturated is returned when the queue is full and the pool is
	// already running its maximum number of workers.
	ErrPoolSaturated = errors.New("worker pool queue is full")
	ErrPoolClosed    = errors.New("worker pool is shut down")
)

// WorkerPool runs submitted job executions on a bounded set of goroutines.
// It keeps coreSize workers alive, buffers up to queueCapacity submissions,
// and grows to maxSize workers under queue pressure; the extra workers exit
// after sitting idle.
type WorkerPool struct {
	coreSize      int
	maxSize       int
	queueCapacity int
	namePrefix    string

	mu      sync.Mutex
	queue   chan func()
	workers int
	nextID  int
	closed  bool
	wg      sync.WaitGroup
}

func NewWorkerPool(coreSize, maxSize, queueCapacity int, namePrefix string) *WorkerPool {
	if maxSize < coreSize {
		maxSize = coreSize
	}
	return &WorkerPool{
		coreSize:      coreSize,
		maxSize:       maxSize,
		queueCapacity: queueCapacity,
		namePrefix:    namePrefix,
		queue:         make(chan func(), queueCapacity),
	}
}

// Submit hands a job execution to the pool. It never blocks: when the queue
// is full and the pool cannot grow any further it returns ErrPoolSaturated
// and the caller decides what to do with the lease.
func (p *WorkerPool) Submit(job func()) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return ErrPoolClosed
	}

	if p.workers < p.coreSize {
		p.startWorker(false, nil)
	}

	select {
	case p.queue <- job:
		metrics.UpdatePoolQueueDepthMetric(len(p.queue))
		return nil
	default:
	}

	// Queue full: grow toward maxSize, the new worker runs the job directly.
	if p.workers < p.maxSize {
		p.startWorker(true, job)
		return nil
	}

	return ErrPoolSaturated
}

// QueueDepth returns the number of submissions waiting for a worker.
func (p *WorkerPool) QueueDepth() int {
	return len(p.queue)
}

// Shutdown stops accepting submissions. When graceful, it waits up to grace
// for queued and in-flight executions to finish; otherwise queued executions
// are dropped and only the in-flight ones are awaited.
func (p *WorkerPool) Shutdown(graceful bool, grace time.Duration) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	if !graceful {
	drain:
		for {
			select {
			case <-p.queue:
			default:
				break drain
			}
		}
	}
	close(p.queue)
	p.mu.Unlock()

	doneCh := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(doneCh)
	}()

	select {
	case <-doneCh:
		zap.S().Named("pool").Info("all workers exited cleanly")
	case <-time.After(grace):
		zap.S().Named("pool").Errorf("pool shutdown timed out after %s, some workers may still be running", grace)
	}
}

// startWorker must be called with p.mu held.
func (p *WorkerPool) startWorker(temporary bool, first func()) {
	p.workers++
	p.nextID++
	name := fmt.Sprintf("%s%d", p.namePrefix, p.nextID)
	p.wg.Add(1)
	go p.run(name, temporary, first)
}

func (p *WorkerPool) run(name string, temporary bool, first func()) {
	defer p.wg.Done()
	defer func() {
		p.mu.Lock()
		p.workers--
		p.mu.Unlock()
	}()

	logger := zap.S().Named("pool")
	logger.Debugf("worker %s started", name)

	if first != nil {
		first()
	}

	for {
		if temporary {
			select {
			case job, ok := <-p.queue:
				if !ok {
					return
				}
				metrics.UpdatePoolQueueDepthMetric(len(p.queue))
				job()
			case <-time.After(idleWorkerTimeout):
				logger.Debugf("worker %s idle, exiting", name)
				return
			}
		} else {
			job, ok := <-p.queue
			if !ok {
				return
			}
			metrics.UpdatePoolQueueDepthMetric(len(p.queue))
			job()
		}
	}
}
