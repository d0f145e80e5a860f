package burststack

import (
	"fmt"
	"math"
)

// Frame is a raw sensor grid promoted to float32. Period is the edge of
// the repeating color filter pattern, 2 for Bayer sensors.
type Frame struct {
	Mat
	Period int
}

func (f Frame) Width() int  { return f.Cols() }
func (f Frame) Height() int { return f.Rows() }

// RawImage is a decoded capture: one uint16 sample per sensor site.
type RawImage struct {
	Pixels   []uint16
	Width    int
	Height   int
	BitDepth int
}

// FrameFromRaw converts a decoded capture to a float Frame normalized by
// 1<<BitDepth.
func (c *Compute) FrameFromRaw(raw *RawImage, period int) (Frame, error) {
	if raw == nil || raw.Width <= 0 || raw.Height <= 0 || raw.Height > len(raw.Pixels)/raw.Width {
		return Frame{}, fmt.Errorf("%w: raw grid is empty or truncated", ErrDecode)
	}
	bpp := raw.BitDepth
	if bpp <= 0 || bpp > 16 {
		bpp = 16
	}
	mat, err := c.NewMat(raw.Height, raw.Width)
	if err != nil {
		return Frame{}, err
	}
	dest := mat.DataFloat32()
	scalingRatio := float32(uint32(1) << uint(bpp))
	err = c.Dispatch(raw.Height, func(lo, hi int) {
		for i := lo * raw.Width; i < hi*raw.Width; i++ {
			dest[i] = float32(raw.Pixels[i]) / scalingRatio
		}
	})
	if err != nil {
		mat.Close()
		return Frame{}, err
	}
	return Frame{Mat: mat, Period: period}, nil
}

// NewFrame copies row-major float samples into a new Frame.
func (c *Compute) NewFrame(pixels []float32, width, height, period int) (Frame, error) {
	if len(pixels) < width*height {
		return Frame{}, fmt.Errorf("%w: %d samples for a %dx%d frame", ErrFrameMismatch, len(pixels), width, height)
	}
	mat, err := c.NewMat(height, width)
	if err != nil {
		return Frame{}, err
	}
	copy(mat.DataFloat32(), pixels[:width*height])
	return Frame{Mat: mat, Period: period}, nil
}

// ToUint16 scales the frame back to the 16-bit sensor range, rounding to
// the nearest step and clamping.
func (f Frame) ToUint16() []uint16 {
	data := f.DataFloat32()
	n := f.Rows() * f.Cols()
	out := make([]uint16, n)
	for i := 0; i < n; i++ {
		out[i] = uint16(clampFloat64(math.Round(float64(data[i])*65536.0), 0, 65535))
	}
	return out
}

// clampIndex clamps v to [0, size).
func clampIndex(v, size int) int {
	if v < 0 {
		return 0
	}
	if v >= size {
		return size - 1
	}
	return v
}

// clampMosaic clamps v to [0, size) without changing its phase within
// the mosaic period, so a clamped sample still reads the same color.
func clampMosaic(v, size, period int) int {
	if v >= 0 && v < size {
		return v
	}
	if period <= 1 || size <= period {
		return clampIndex(v, size)
	}
	phase := ((v % period) + period) % period
	if v < 0 {
		return phase
	}
	last := size - 1
	lastPhase := last % period
	v = last - ((lastPhase-phase)+period)%period
	return v
}

func clampFloat64(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
