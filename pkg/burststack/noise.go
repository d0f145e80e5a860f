package burststack

import (
	"fmt"
	"math"
)

// gaussianSigmaPerTap relates a kernel's tap count to its sigma.
const gaussianSigmaPerTap = 0.159758

// gaussianTaps returns a normalized 1D Gaussian of the given odd size.
func gaussianTaps(size int) []float32 {
	sigma := gaussianSigmaPerTap * float64(size)
	taps := make([]float32, size)
	half := size / 2
	sum := 0.0
	vals := make([]float64, size)
	for i := range vals {
		x := float64(i - half)
		vals[i] = math.Exp(-x * x / (2 * sigma * sigma))
		sum += vals[i]
	}
	for i, v := range vals {
		taps[i] = float32(v / sum)
	}
	return taps
}

// mosaicKernel spreads the taps of a Gaussian period pixels apart so that a
// blur only mixes sensor sites of the same color.
func (c *Compute) mosaicKernel(size, period int) (Mat, error) {
	taps := gaussianTaps(size)
	length := (size-1)*period + 1
	k, err := c.NewMat(length, 1)
	if err != nil {
		return Mat{}, err
	}
	data := k.DataFloat32()
	for i := range data[:length] {
		data[i] = 0
	}
	for i, t := range taps {
		data[i*period] = t
	}
	return k, nil
}

// BlurMosaic applies a separable, mosaic-aware Gaussian blur.
func (c *Compute) BlurMosaic(frame Frame, kernelSize int) (Mat, error) {
	if kernelSize < 1 || kernelSize%2 == 0 {
		return Mat{}, fmt.Errorf("%w: kernel size must be odd and positive, got %d", ErrInvalidParams, kernelSize)
	}
	kernel, err := c.mosaicKernel(kernelSize, max(frame.Period, 1))
	if err != nil {
		return Mat{}, err
	}
	defer kernel.Close()
	if err := c.CheckBudget(int64(frame.Rows()) * int64(frame.Cols()) * 8); err != nil {
		return Mat{}, err
	}
	blurred := NewMat()
	sepFilter2DReflect101(frame.Mat, &blurred, kernel, kernel)
	if err := checkMat(blurred, frame.Rows(), frame.Cols(), "mosaic blur"); err != nil {
		blurred.Close()
		return Mat{}, err
	}
	return blurred, nil
}

// ColorDifference returns the mean absolute difference of a and b over
// every period x period mosaic cell, one value per cell.
func (c *Compute) ColorDifference(a, b Mat, period int) (Mat, error) {
	if a.Rows() != b.Rows() || a.Cols() != b.Cols() {
		return Mat{}, fmt.Errorf("%w: %dx%d vs %dx%d", ErrFrameMismatch, a.Cols(), a.Rows(), b.Cols(), b.Rows())
	}
	period = max(period, 1)
	rows, cols := a.Rows()/period, a.Cols()/period
	if err := c.CheckBudget(int64(a.Rows()) * int64(a.Cols()) * 4); err != nil {
		return Mat{}, err
	}
	diff := NewMat()
	defer diff.Close()
	absDiff(a, b, &diff)
	cells := NewMat()
	resizeArea(diff, &cells, period)
	if err := checkMat(cells, rows, cols, "color difference"); err != nil {
		cells.Close()
		return Mat{}, err
	}
	return cells, nil
}

// EstimateNoise measures the noise floor of the reference as the mean
// per-cell difference between the raw and the blurred reference.
func (c *Compute) EstimateNoise(ref Frame, refBlurred Mat) (float64, error) {
	cells, err := c.ColorDifference(ref.Mat, refBlurred, ref.Period)
	if err != nil {
		return 0, err
	}
	defer cells.Close()
	mean, stdDev := matMeanStdDev(cells)
	c.Logger.Debug().Float64("noise", mean).Float64("noise_stddev", stdDev).Msg("estimated reference noise")
	return mean, nil
}
