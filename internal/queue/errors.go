package queue

import "errors"

var (
	// ErrDuplicateTask is returned when a TaskID is already pending or running.
	ErrDuplicateTask = errors.New("queue: duplicate task id")
	// ErrQueueFull is returned when the bounded pending capacity is exceeded.
	ErrQueueFull = errors.New("queue: at capacity")
	// ErrMaxAttemptsExceeded is returned when a resubmitted task has already
	// exhausted its retry budget.
	ErrMaxAttemptsExceeded = errors.New("queue: max attempts exceeded")
)
