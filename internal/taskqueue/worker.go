package taskqueue

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// Handler executes one task.  A nil return acknowledges the task; any error
// (or panic) causes the queue to apply its retry policy.
type Handler func(ctx context.Context, task *Task) error

// Worker consumes tasks from named queues and routes them to handlers by task
// type.  Tasks execute to completion; there is no mid-task suspension.
type Worker struct {
	queue        *Queue
	handlers     map[string]Handler
	pollInterval time.Duration
	metrics      *Metrics
}

func NewWorker(queue *Queue, pollInterval time.Duration) *Worker {
	return &Worker{
		queue:        queue,
		handlers:     map[string]Handler{},
		pollInterval: pollInterval,
		metrics:      GetMetrics(),
	}
}

func (w *Worker) Register(taskType string, handler Handler) {
	w.handlers[taskType] = handler
}

// Run consumes the named queue with the given number of concurrent consumers
// until the context is cancelled.
func (w *Worker) Run(ctx context.Context, queueName string, concurrency int) {
	wg := sync.WaitGroup{}
	for i := 0; i < concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			w.consume(ctx, queueName)
		}()
	}
	wg.Wait()
}

func (w *Worker) consume(ctx context.Context, queueName string) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		if _, err := w.queue.RequeueDue(queueName, time.Now()); err != nil {
			log.WithError(err).Warnf("Could not promote due retries for queue %s", queueName)
		}

		processed, err := w.runOnce(ctx, queueName)
		if err != nil {
			log.WithError(err).Warnf("Error consuming queue %s", queueName)
		}
		if !processed {
			select {
			case <-ctx.Done():
				return
			case <-time.After(w.pollInterval):
			}
		}
	}
}

// runOnce pops and executes at most one task.  Returns true if a task was
// processed (successfully or not).
func (w *Worker) runOnce(ctx context.Context, queueName string) (bool, error) {
	task, err := w.queue.Dequeue(queueName)
	if err != nil {
		return false, err
	}
	if task == nil {
		return false, nil
	}

	task.Attempts++
	taskLog := log.WithFields(log.Fields{
		"taskId":  task.Id,
		"type":    task.Type,
		"queue":   task.Queue,
		"attempt": task.Attempts,
	})

	start := time.Now()
	execErr := w.execute(ctx, task)
	taken := time.Since(start)

	if execErr == nil {
		taskLog.Infof("Task succeeded in %dms", taken.Milliseconds())
		w.metrics.RecordTaskSucceeded(queueName)
		if err := w.queue.Succeed(task); err != nil {
			taskLog.WithError(err).Warn("Could not record task success")
		}
		return true, nil
	}

	taskLog.WithError(execErr).Warn("Task failed")
	w.metrics.RecordTaskFailed(queueName)
	if task.Attempts >= w.queue.maxAttempts {
		taskLog.Errorf("Task exhausted its %d attempts; dead-lettering", w.queue.maxAttempts)
		w.metrics.RecordTaskDeadLettered()
	}
	if err := w.queue.Fail(task, execErr); err != nil {
		taskLog.WithError(err).Error("Could not record task failure")
		return true, err
	}
	return true, nil
}

// execute runs the handler for the task, converting panics into errors so a
// programming error in one task cannot take down the worker.
func (w *Worker) execute(ctx context.Context, task *Task) (err error) {
	handler, ok := w.handlers[task.Type]
	if !ok {
		return errors.Errorf("no handler registered for task type %s", task.Type)
	}

	defer func() {
		if r := recover(); r != nil {
			err = errors.Errorf("task panicked: %v", r)
		}
	}()

	return errors.Wrapf(handler(ctx, task), "%s task %s", task.Type, task.Id)
}
