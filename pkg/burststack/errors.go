package burststack

import (
	"errors"
	"fmt"
)

var (
	// ErrInsufficientFrames is returned when a burst has fewer than two frames.
	ErrInsufficientFrames = errors.New("at least two frames are required")
	// ErrDecode is returned when any capture of the burst fails to decode.
	ErrDecode = errors.New("decode failed")
	// ErrFrameMismatch is returned when frames of one burst disagree on size or mosaic period.
	ErrFrameMismatch = errors.New("frame does not match the burst")
	// ErrInvalidParams is returned for merge parameters that cannot produce a tile grid.
	ErrInvalidParams = errors.New("invalid merge parameters")
	// ErrAllocation is returned when a buffer cannot be allocated within the compute budget.
	ErrAllocation = errors.New("allocation failed")
	// ErrCompute is returned when a kernel fails while running.
	ErrCompute = errors.New("compute kernel failed")
)

// FrameError ties a failure to the burst position of the frame that caused it.
type FrameError struct {
	Index int
	Err   error
}

func (e *FrameError) Error() string {
	return fmt.Sprintf("frame %d: %v", e.Index, e.Err)
}

func (e *FrameError) Unwrap() error { return e.Err }
