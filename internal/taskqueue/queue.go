package taskqueue

import (
	"strconv"
	"time"

	"github.com/go-redis/redis"
	"github.com/pkg/errors"
)

const (
	taskQueuePrefix = "Task:Queue:"
	taskRetryPrefix = "Task:Retry:"
	taskDeadKey     = "Task:Dead"
	statProcessed   = "Task:Stat:Processed"
	statFailed      = "Task:Stat:Failed"
)

// Queue is a redis backed task queue offering at-least-once delivery, bounded
// retry and dead-lettering.
//
// Pending tasks live on a list per queue name.  Failed tasks are parked on a
// per-queue sorted set scored by the time at which they become due for retry;
// RequeueDue moves due tasks back onto their list.  Tasks that exhaust their
// attempt budget are moved to a dead sorted set scored by the time of death,
// where they stay for manual inspection, requeue or clearing.
type Queue struct {
	db           *redis.Client
	maxAttempts  int
	retryBackoff time.Duration
}

func NewQueue(db *redis.Client, maxAttempts int, retryBackoff time.Duration) *Queue {
	return &Queue{db: db, maxAttempts: maxAttempts, retryBackoff: retryBackoff}
}

// Enqueue creates a task and pushes it onto the named queue.
func (q *Queue) Enqueue(queue string, taskType string, payload interface{}) (*Task, error) {
	task, err := NewTask(queue, taskType, payload)
	if err != nil {
		return nil, err
	}
	if err := q.push(task); err != nil {
		return nil, err
	}
	return task, nil
}

// Dequeue pops the oldest pending task off the named queue.  Returns nil if
// the queue is empty.
func (q *Queue) Dequeue(queue string) (*Task, error) {
	data, err := q.db.RPop(taskQueuePrefix + queue).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrapf(err, "could not pop from queue %s", queue)
	}
	return unmarshalTask(data)
}

// Fail records a failed execution attempt.  The task is scheduled for retry
// unless its attempt budget is exhausted, in which case it is dead-lettered.
func (q *Queue) Fail(task *Task, taskErr error) error {
	task.LastError = taskErr.Error()
	data, err := task.marshal()
	if err != nil {
		return err
	}

	pipe := q.db.TxPipeline()
	if task.Attempts >= q.maxAttempts {
		pipe.ZAdd(taskDeadKey, redis.Z{
			Score:  float64(time.Now().Unix()),
			Member: data,
		})
	} else {
		due := time.Now().Add(q.retryBackoff * time.Duration(task.Attempts))
		pipe.ZAdd(taskRetryPrefix+task.Queue, redis.Z{
			Score:  float64(due.Unix()),
			Member: data,
		})
	}
	pipe.Incr(statFailed)
	_, err = pipe.Exec()
	return errors.Wrapf(err, "could not record failure of task %s", task.Id)
}

// Succeed records a successful execution.
func (q *Queue) Succeed(task *Task) error {
	return errors.WithStack(q.db.Incr(statProcessed).Err())
}

// RequeueDue moves tasks whose retry time has passed back onto their queue,
// preserving due order.  Returns the number of tasks moved.
func (q *Queue) RequeueDue(queue string, now time.Time) (int, error) {
	retryKey := taskRetryPrefix + queue
	members, err := q.db.ZRangeByScore(retryKey, redis.ZRangeBy{
		Min: "-inf",
		Max: strconv.FormatInt(now.Unix(), 10),
	}).Result()
	if err != nil {
		return 0, errors.Wrapf(err, "could not read retry set for queue %s", queue)
	}

	moved := 0
	for _, member := range members {
		// ZRem is the claim: several consumers poll the same retry set, and
		// only the one that actually removed the member may push it.  Pushing
		// unconditionally would enqueue the task once per consumer, giving it
		// more executions than its attempt budget allows.
		removed, err := q.db.ZRem(retryKey, member).Result()
		if err != nil {
			return moved, errors.Wrapf(err, "could not claim due task on queue %s", queue)
		}
		if removed == 0 {
			continue
		}
		if err := q.db.LPush(taskQueuePrefix+queue, member).Err(); err != nil {
			return moved, errors.Wrapf(err, "could not requeue due task on queue %s", queue)
		}
		moved++
	}
	return moved, nil
}

// DeadTasks returns the contents of the dead-letter set, oldest first.
func (q *Queue) DeadTasks() ([]*Task, error) {
	members, err := q.db.ZRange(taskDeadKey, 0, -1).Result()
	if err != nil {
		return nil, errors.Wrap(err, "could not read dead-letter set")
	}
	tasks := make([]*Task, 0, len(members))
	for _, member := range members {
		task, err := unmarshalTask(member)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, task)
	}
	return tasks, nil
}

// RequeueDead pushes every dead task back onto its origin queue with a fresh
// attempt budget.  Returns the number of tasks requeued.
func (q *Queue) RequeueDead() (int, error) {
	members, err := q.db.ZRange(taskDeadKey, 0, -1).Result()
	if err != nil {
		return 0, errors.Wrap(err, "could not read dead-letter set")
	}

	requeued := 0
	for _, member := range members {
		task, err := unmarshalTask(member)
		if err != nil {
			return requeued, err
		}
		task.Attempts = 0
		task.LastError = ""
		data, err := task.marshal()
		if err != nil {
			return requeued, err
		}
		pipe := q.db.TxPipeline()
		pipe.ZRem(taskDeadKey, member)
		pipe.LPush(taskQueuePrefix+task.Queue, data)
		if _, err := pipe.Exec(); err != nil {
			return requeued, errors.Wrapf(err, "could not requeue dead task %s", task.Id)
		}
		requeued++
	}
	return requeued, nil
}

// ClearDead empties the dead-letter set.  Returns the number of tasks removed.
func (q *Queue) ClearDead() (int, error) {
	count, err := q.db.ZCard(taskDeadKey).Result()
	if err != nil {
		return 0, errors.Wrap(err, "could not size dead-letter set")
	}
	if err := q.db.Del(taskDeadKey).Err(); err != nil {
		return 0, errors.Wrap(err, "could not clear dead-letter set")
	}
	return int(count), nil
}

// Size returns the number of pending tasks on the named queue.
func (q *Queue) Size(queue string) (int64, error) {
	return q.db.LLen(taskQueuePrefix + queue).Result()
}

// RetrySize returns the number of tasks awaiting retry for the named queue.
func (q *Queue) RetrySize(queue string) (int64, error) {
	return q.db.ZCard(taskRetryPrefix + queue).Result()
}

// DeadSize returns the number of dead-lettered tasks.
func (q *Queue) DeadSize() (int64, error) {
	return q.db.ZCard(taskDeadKey).Result()
}

func (q *Queue) push(task *Task) error {
	data, err := task.marshal()
	if err != nil {
		return err
	}
	return errors.Wrapf(q.db.LPush(taskQueuePrefix+task.Queue, data).Err(),
		"could not push task %s onto queue %s", task.Id, task.Queue)
}
