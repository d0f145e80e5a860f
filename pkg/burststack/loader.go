package burststack

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"
)

// RawDecoder turns one capture blob into a 16-bit sensor grid.
type RawDecoder interface {
	Decode(blob []byte) (*RawImage, error)
}

// RawDecoderFunc adapts a function to RawDecoder.
type RawDecoderFunc func(blob []byte) (*RawImage, error)

func (f RawDecoderFunc) Decode(blob []byte) (*RawImage, error) { return f(blob) }

// LoadBurst decodes every blob concurrently and promotes it to a float
// Frame. Either every frame loads or none is returned: the first failure
// cancels the outstanding decodes and releases what was already loaded.
func (c *Compute) LoadBurst(ctx context.Context, blobs [][]byte, dec RawDecoder, period int) ([]Frame, error) {
	if len(blobs) < 2 {
		return nil, fmt.Errorf("%w: got %d", ErrInsufficientFrames, len(blobs))
	}
	frames := make([]Frame, len(blobs))
	loaded := make([]bool, len(blobs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.workers())
	for i, blob := range blobs {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			raw, err := dec.Decode(blob)
			if err != nil {
				return &FrameError{Index: i, Err: fmt.Errorf("%w: %w", ErrDecode, err)}
			}
			frame, err := c.FrameFromRaw(raw, period)
			if err != nil {
				return &FrameError{Index: i, Err: err}
			}
			frames[i] = frame
			loaded[i] = true
			return nil
		})
	}
	err := g.Wait()
	if err == nil {
		err = checkBurst(frames)
	}
	if err != nil {
		for i := range frames {
			if loaded[i] {
				frames[i].Close()
			}
		}
		return nil, err
	}
	c.Logger.Debug().Int("frames", len(frames)).
		Int("width", frames[0].Width()).Int("height", frames[0].Height()).
		Msg("burst decoded")
	return frames, nil
}

// checkBurst verifies that every frame matches the first in size and period.
func checkBurst(frames []Frame) error {
	if len(frames) < 2 {
		return fmt.Errorf("%w: got %d", ErrInsufficientFrames, len(frames))
	}
	first := frames[0]
	for i, f := range frames[1:] {
		if f.Width() != first.Width() || f.Height() != first.Height() {
			return &FrameError{Index: i + 1, Err: fmt.Errorf("%w: %dx%d, burst is %dx%d",
				ErrFrameMismatch, f.Width(), f.Height(), first.Width(), first.Height())}
		}
		if f.Period != first.Period {
			return &FrameError{Index: i + 1, Err: fmt.Errorf("%w: mosaic period %d, burst uses %d",
				ErrFrameMismatch, f.Period, first.Period)}
		}
	}
	return nil
}
