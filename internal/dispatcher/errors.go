package dispatcher

import "errors"

var (
	// ErrAlreadyRunning is returned by Start when the dispatcher is already
	// running.
	ErrAlreadyRunning = errors.New("dispatcher: already running")
	// ErrNotRunning is returned by Stop when the dispatcher is not running.
	ErrNotRunning = errors.New("dispatcher: not running")
)
