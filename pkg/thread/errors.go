package thread

import "errors"

var (
	// ErrAlreadyRunning is returned when Start is called on a running context.
	ErrAlreadyRunning = errors.New("execution context is already running")
	// ErrNotRunning is returned when work is posted to a stopped context.
	ErrNotRunning = errors.New("execution context is not running")
	// ErrQueueFull is returned when a context's queue cannot accept more work.
	ErrQueueFull = errors.New("execution queue is full")
)
