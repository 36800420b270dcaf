package queue

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"fleetwatch/internal/logging"
	"fleetwatch/internal/models"
)

// Handler processes one task. It should return promptly once ctx is done.
type Handler func(ctx context.Context, task models.TaskPayload) error

// Pool runs Handler over tasks taken from a Queue.
type Pool struct {
	queue       *Queue
	handler     Handler
	workers     int
	pollTimeout time.Duration
	logger      *logging.Logger

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewPool creates a pool of workers goroutines.
func NewPool(q *Queue, handler Handler, workers int, logger *logging.Logger) *Pool {
	if workers <= 0 {
		workers = 1
	}
	return &Pool{
		queue:       q,
		handler:     handler,
		workers:     workers,
		pollTimeout: 5 * time.Second,
		logger:      logger,
	}
}

// Start launches the workers. They stop when ctx is cancelled or Stop is
// called.
func (p *Pool) Start(ctx context.Context) {
	ctx, p.cancel = context.WithCancel(ctx)
	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.worker(ctx, i)
	}
}

// Stop cancels the workers and waits for in-flight tasks to finish.
func (p *Pool) Stop() {
	if p.cancel != nil {
		p.cancel()
	}
	p.wg.Wait()
}

func (p *Pool) worker(ctx context.Context, id int) {
	defer p.wg.Done()
	for {
		if ctx.Err() != nil {
			p.logger.Infof("Worker %d stopped", id)
			return
		}
		task, err := p.queue.Dequeue(ctx, p.pollTimeout)
		if err != nil {
			if ctx.Err() != nil {
				continue
			}
			p.logger.Errorf("Worker %d failed to dequeue: %v", id, err)
			select {
			case <-ctx.Done():
			case <-time.After(time.Second):
			}
			continue
		}
		if task == nil {
			continue
		}
		p.process(ctx, *task)
	}
}

// process runs one task, watching its cancellation channel while it runs.
func (p *Pool) process(ctx context.Context, task models.TaskPayload) {
	log := p.logger.WithField("task_id", task.TaskID)

	taskCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var cancelled bool
	var mu sync.Mutex
	pubsub, err := p.queue.SubscribeCancel(ctx, task.TaskID)
	if err != nil {
		log.Warnf("Running task without cancellation: %v", err)
	} else {
		defer pubsub.Close()
		go func() {
			select {
			case _, ok := <-pubsub.Channel():
				if ok {
					mu.Lock()
					cancelled = true
					mu.Unlock()
					cancel()
				}
			case <-taskCtx.Done():
			}
		}()
	}

	if err := p.queue.SetStatus(ctx, task.TaskID, models.TaskProcessing, nil); err != nil {
		log.Errorf("Failed to mark task processing: %v", err)
	}

	herr := p.run(taskCtx, task)

	mu.Lock()
	wasCancelled := cancelled
	mu.Unlock()

	// Status writes must outlive a cancelled task context.
	statusCtx, statusCancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer statusCancel()

	switch {
	case wasCancelled:
		log.Info("Task cancelled")
		err = p.queue.SetStatus(statusCtx, task.TaskID, models.TaskCancelled, nil)
	case herr != nil:
		log.Errorf("Task failed: %v", herr)
		err = p.queue.SetStatus(statusCtx, task.TaskID, models.TaskFailed, map[string]string{"error": herr.Error()})
	default:
		log.Info("Task completed")
		err = p.queue.SetStatus(statusCtx, task.TaskID, models.TaskCompleted, nil)
	}
	if err != nil {
		log.Errorf("Failed to record task outcome: %v", err)
	}
}

var errHandlerPanic = errors.New("task handler panicked")

func (p *Pool) run(ctx context.Context, task models.TaskPayload) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", errHandlerPanic, r)
		}
	}()
	return p.handler(ctx, task)
}
