package burststack

import (
	"context"
	"fmt"
	"time"
)

// workingSetBuffers is how many full-resolution float buffers a merge
// holds at its peak besides the input frames: accumulator, reference
// blur, warped frame, alternate blur, difference, upsampled weights and
// merged output.
const workingSetBuffers = 7

// Stacker aligns and merges bursts. It is safe to reuse across bursts but
// not to share between concurrent calls that mutate Params.
type Stacker struct {
	Compute *Compute
	Params  MergeParams
	// KeepFields stores every frame's finest alignment field in the result.
	KeepFields bool
}

// NewStacker returns a Stacker running on c; a nil c uses DefaultCompute.
func NewStacker(c *Compute, p MergeParams) *Stacker {
	if c == nil {
		c = DefaultCompute()
	}
	return &Stacker{Compute: c, Params: p}
}

// MergeBlobs decodes a burst and aligns and merges it. ctx only bounds the
// decode stage; once alignment starts the call runs to completion.
func (s *Stacker) MergeBlobs(ctx context.Context, blobs [][]byte, dec RawDecoder) (*MergeResult, error) {
	if len(blobs) < 2 {
		return nil, fmt.Errorf("%w: got %d", ErrInsufficientFrames, len(blobs))
	}
	if err := s.Params.Validate(); err != nil {
		return nil, err
	}
	frames, err := s.Compute.LoadBurst(ctx, blobs, dec, s.Params.MosaicPeriod)
	if err != nil {
		return nil, err
	}
	defer func() {
		for i := range frames {
			frames[i].Close()
		}
	}()
	return s.AlignAndMerge(frames)
}

// AlignAndMerge aligns every frame to the reference, robustly merges it
// and returns the average of the accumulated frames. The input frames are
// not modified. On error nothing is returned and every intermediate
// buffer is released.
func (s *Stacker) AlignAndMerge(frames []Frame) (*MergeResult, error) {
	c, p := s.Compute, s.Params
	if len(frames) < 2 {
		return nil, fmt.Errorf("%w: got %d", ErrInsufficientFrames, len(frames))
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	if err := checkBurst(frames); err != nil {
		return nil, err
	}
	if frames[0].Period != p.MosaicPeriod {
		return nil, fmt.Errorf("%w: frames have mosaic period %d, parameters say %d",
			ErrFrameMismatch, frames[0].Period, p.MosaicPeriod)
	}
	refIdx, err := p.Reference.ReferenceIndex(len(frames))
	if err != nil {
		return nil, err
	}
	ref := frames[refIdx]
	width, height := ref.Width(), ref.Height()
	if err := c.CheckBudget(int64(workingSetBuffers) * int64(width) * int64(height) * 4); err != nil {
		return nil, err
	}

	schedule, err := NewLevelSchedule(width, height, p)
	if err != nil {
		return nil, err
	}
	c.Logger.Info().Int("frames", len(frames)).Int("reference", refIdx).
		Int("width", width).Int("height", height).
		Ints("tile_sizes", schedule.TileSizes).Ints("factors", schedule.Factors).
		Msg("aligning burst")

	refPyramid, err := c.BuildPyramid(ref, schedule)
	if err != nil {
		return nil, fmt.Errorf("reference pyramid: %w", err)
	}
	defer refPyramid.Close()
	refBlurred, err := c.BlurMosaic(ref, p.KernelSize)
	if err != nil {
		return nil, fmt.Errorf("reference blur: %w", err)
	}
	defer refBlurred.Close()
	noise, err := c.EstimateNoise(ref, refBlurred)
	if err != nil {
		return nil, fmt.Errorf("noise estimate: %w", err)
	}

	acc, err := c.NewMat(height, width)
	if err != nil {
		return nil, err
	}
	acc.SetToZero()
	result := &MergeResult{
		Reference: refIdx,
		Noise:     noise,
		Schedule:  schedule,
		Frames:    make([]FrameStats, 0, len(frames)),
	}
	if s.KeepFields {
		result.Fields = make([]*AlignmentField, len(frames))
	}

	for i, frame := range frames {
		start := time.Now()
		if i == refIdx {
			if err := c.accumulate(&acc, ref.Mat); err != nil {
				acc.Close()
				return nil, &FrameError{Index: i, Err: err}
			}
			result.Frames = append(result.Frames, FrameStats{Index: i, Reference: true, MeanWeight: 1, Duration: time.Since(start)})
			continue
		}
		stats, field, err := s.mergeFrame(&acc, frame, ref, refPyramid, refBlurred, noise, schedule)
		if err != nil {
			acc.Close()
			return nil, &FrameError{Index: i, Err: err}
		}
		stats.Index = i
		stats.Duration = time.Since(start)
		result.Frames = append(result.Frames, stats)
		if s.KeepFields {
			result.Fields[i] = field
		}
		c.Logger.Debug().Int("frame", i).Float64("mean_shift", stats.MeanShift).
			Float64("max_shift", stats.MaxShift).Float64("mean_weight", stats.MeanWeight).
			Dur("took", stats.Duration).Msg("frame merged")
	}

	if err := c.finalize(&acc, len(frames)); err != nil {
		acc.Close()
		return nil, err
	}
	result.Merged = Frame{Mat: acc, Period: ref.Period}
	c.Logger.Info().Int("frames", len(frames)).Float64("noise", noise).Msg("burst merged")
	return result, nil
}

// mergeFrame runs pyramid, alignment, warp and robust merge for one
// alternate frame and adds the result to acc.
func (s *Stacker) mergeFrame(acc *Mat, frame, ref Frame, refPyramid *Pyramid, refBlurred Mat, noise float64, schedule LevelSchedule) (FrameStats, *AlignmentField, error) {
	c := s.Compute
	pyramid, err := c.BuildPyramid(frame, schedule)
	if err != nil {
		return FrameStats{}, nil, fmt.Errorf("pyramid: %w", err)
	}
	field, geom, err := c.AlignFrame(refPyramid, pyramid, schedule)
	pyramid.Close()
	if err != nil {
		return FrameStats{}, nil, err
	}

	warped, err := c.WarpFrame(frame, field, geom)
	if err != nil {
		return FrameStats{}, nil, fmt.Errorf("warp: %w", err)
	}
	defer warped.Close()

	merged, meanWeight, err := c.RobustMerge(ref, refBlurred, warped, noise, s.Params)
	if err != nil {
		return FrameStats{}, nil, fmt.Errorf("robust merge: %w", err)
	}
	defer merged.Close()

	if err := c.accumulate(acc, merged); err != nil {
		return FrameStats{}, nil, err
	}

	stats := FrameStats{MeanWeight: meanWeight}
	period := float64(max(frame.Period, 1))
	for _, o := range field.Offsets {
		m := o.Magnitude() * period
		stats.MeanShift += m
		stats.MaxShift = max(stats.MaxShift, m)
	}
	stats.MeanShift /= float64(len(field.Offsets))
	return stats, field, nil
}

// accumulate adds src into acc pixel by pixel.
func (c *Compute) accumulate(acc *Mat, src Mat) error {
	if acc.Rows() != src.Rows() || acc.Cols() != src.Cols() {
		return fmt.Errorf("%w: accumulator is %dx%d, frame is %dx%d",
			ErrFrameMismatch, acc.Cols(), acc.Rows(), src.Cols(), src.Rows())
	}
	dst, add := acc.DataFloat32(), src.DataFloat32()
	cols := acc.Cols()
	return c.Dispatch(acc.Rows(), func(lo, hi int) {
		for i := lo * cols; i < hi*cols; i++ {
			dst[i] += add[i]
		}
	})
}

// finalize divides the accumulator by the number of merged frames.
func (c *Compute) finalize(acc *Mat, n int) error {
	data := acc.DataFloat32()
	cols := acc.Cols()
	div := float32(n)
	return c.Dispatch(acc.Rows(), func(lo, hi int) {
		for i := lo * cols; i < hi*cols; i++ {
			data[i] /= div
		}
	})
}
