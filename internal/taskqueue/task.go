package taskqueue

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// Task is a unit of queued work.  Tasks are serialised as json onto a redis
// list per queue; attempt count and last error travel with the task so the
// queue can apply its retry policy without any external bookkeeping.
type Task struct {
	Id         string          `json:"id"`
	Queue      string          `json:"queue"`
	Type       string          `json:"type"`
	Payload    json.RawMessage `json:"payload"`
	Attempts   int             `json:"attempts"`
	EnqueuedAt time.Time       `json:"enqueuedAt"`
	LastError  string          `json:"lastError,omitempty"`
}

func NewTask(queue string, taskType string, payload interface{}) (*Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, errors.Wrapf(err, "could not marshal payload for %s task", taskType)
	}
	return &Task{
		Id:         uuid.NewString(),
		Queue:      queue,
		Type:       taskType,
		Payload:    data,
		EnqueuedAt: time.Now().UTC(),
	}, nil
}

func (t *Task) marshal() (string, error) {
	data, err := json.Marshal(t)
	if err != nil {
		return "", errors.WithStack(err)
	}
	return string(data), nil
}

func unmarshalTask(data string) (*Task, error) {
	task := &Task{}
	if err := json.Unmarshal([]byte(data), task); err != nil {
		return nil, errors.Wrap(err, "could not unmarshal task")
	}
	return task, nil
}
