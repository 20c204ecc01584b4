package api

import (
	"errors"
	"fmt"
)

// Sentinel kinds for API errors.
var (
	ErrBadRequest   = errors.New("bad request")
	ErrBackpressure = errors.New("backpressure")
	ErrTimeout      = errors.New("request timeout")
	ErrRateLimited  = errors.New("rate limit exceeded")
	ErrInternal     = errors.New("internal error")
)

// NewKind returns an error of kind tagged with the failing operation.
func NewKind(op string, kind error) error {
	return fmt.Errorf("%s: %w", op, kind)
}

// WrapKind tags cause with the failing operation and an error kind.
// Both kind and cause stay reachable through errors.Is.
func WrapKind(op string, kind, cause error) error {
	if cause == nil {
		return NewKind(op, kind)
	}
	return fmt.Errorf("%s: %w: %w", op, kind, cause)
}

// Wrap tags err with the failing operation. A nil err stays nil.
func Wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", op, err)
}
