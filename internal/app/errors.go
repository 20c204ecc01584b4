package service

import "errors"

// Sentinel kinds for service errors.
var (
	ErrNotStarted   = errors.New("service not started")
	ErrBackpressure = errors.New("selection queue full")
	ErrTimeout      = errors.New("selection timed out")
)
