package runstate

import "errors"

// Start refusals. None of them changes the machine's state.
var (
	ErrRunActive         = errors.New("runstate: a run is already in progress")
	ErrIncompleteRequest = errors.New("runstate: run request is incomplete")
	ErrClosed            = errors.New("runstate: machine is closed")
)
