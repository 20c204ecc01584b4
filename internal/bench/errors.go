package bench

import "errors"

var (
	// ErrInvalidConfig indicates the bench configuration is unusable.
	ErrInvalidConfig = errors.New("invalid bench config")
	// ErrUnexpectedStatus indicates the server answered with something other than 200.
	ErrUnexpectedStatus = errors.New("unexpected status")
	// ErrNoResults indicates there is nothing to summarize.
	ErrNoResults = errors.New("no results")
)
