package segaaudio

import (
	"errors"
	"fmt"
)

var (
	// ErrBadHandle is returned for a nil, destroyed or foreign voice.
	ErrBadHandle = errors.New("segaaudio: bad handle")
	// ErrBadPointer is returned when a required argument is nil.
	ErrBadPointer = errors.New("segaaudio: bad pointer")
	// ErrBadParam is returned for out of range channels, sends, buses,
	// offsets and formats.
	ErrBadParam = errors.New("segaaudio: bad parameter")
	// ErrBackend wraps errors reported by the audio backend.
	ErrBackend = errors.New("segaaudio: backend failure")
	// ErrAlreadyInitialized is returned by Initialize while another Engine
	// is live.
	ErrAlreadyInitialized = errors.New("segaaudio: engine already initialized")
)

func badParam(format string, a ...any) error {
	return fmt.Errorf("%w: %s", ErrBadParam, fmt.Sprintf(format, a...))
}

func backendErr(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrBackend, op, err)
}
