package queue

import (
	"errors"
	"fmt"
)

var (
	ErrQueueFull         = errors.New("queue is full")
	ErrQueueClosed       = errors.New("queue is closed")
	ErrJobNotFound       = errors.New("job not found")
	ErrInvalidTransition = errors.New("invalid job status transition")
	ErrAlreadySettled    = errors.New("job already settled")
)

// QueueError 入队、出队或任务存储失败
type QueueError struct {
	Op    string
	JobID string
	Err   error
}

func (e *QueueError) Error() string {
	if e.JobID != "" {
		return fmt.Sprintf("queue %s job %s: %v", e.Op, e.JobID, e.Err)
	}
	return fmt.Sprintf("queue %s: %v", e.Op, e.Err)
}

func (e *QueueError) Unwrap() error { return e.Err }

// ErrorType 用于日志和指标
func (e *QueueError) ErrorType() string { return "queue_error" }
