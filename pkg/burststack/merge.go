package burststack

import "fmt"

// MergeWeight maps the difference between blurred reference and blurred
// alternate to the trust given to the alternate. The tolerated difference
// is noise*robustness; anything beyond it is treated as ghosting and falls
// back to the reference. The result is in [0, 1], non-increasing in diff
// and non-decreasing in robustness.
func MergeWeight(diff, noise, robustness float64) float32 {
	if diff <= 0 {
		return 1
	}
	tolerance := noise * robustness
	if tolerance <= 0 {
		return 0
	}
	return float32(clampFloat64(1-diff/tolerance, 0, 1))
}

// RobustMerge blends the aligned alternate toward the reference wherever
// the two disagree by more than the noise floor allows. It returns a new
// Mat and the mean weight of the low resolution weight field. With zero
// robustness the alternate is returned unchanged (as a copy) with full
// trust.
func (c *Compute) RobustMerge(ref Frame, refBlurred Mat, alt Frame, noise float64, p MergeParams) (Mat, float64, error) {
	if ref.Rows() != alt.Rows() || ref.Cols() != alt.Cols() {
		return Mat{}, 0, fmt.Errorf("%w: reference is %dx%d, alternate is %dx%d",
			ErrFrameMismatch, ref.Cols(), ref.Rows(), alt.Cols(), alt.Rows())
	}
	if p.Robustness == 0 {
		if err := c.CheckBudget(int64(alt.Rows()) * int64(alt.Cols()) * 4); err != nil {
			return Mat{}, 0, err
		}
		return alt.Clone(), 1, nil
	}

	altBlurred, err := c.BlurMosaic(alt, p.KernelSize)
	if err != nil {
		return Mat{}, 0, err
	}
	defer altBlurred.Close()

	weights, err := c.ColorDifference(refBlurred, altBlurred, ref.Period)
	if err != nil {
		return Mat{}, 0, err
	}
	defer weights.Close()

	wData := weights.DataFloat32()
	cells := weights.Rows() * weights.Cols()
	err = c.Dispatch(weights.Rows(), func(lo, hi int) {
		cols := weights.Cols()
		for i := lo * cols; i < hi*cols; i++ {
			wData[i] = MergeWeight(float64(wData[i]), noise, p.Robustness)
		}
	})
	if err != nil {
		return Mat{}, 0, err
	}
	var total float64
	for _, w := range wData[:cells] {
		total += float64(w)
	}
	meanWeight := total / float64(cells)

	rows, cols := ref.Rows(), ref.Cols()
	if err := c.CheckBudget(int64(rows) * int64(cols) * 4); err != nil {
		return Mat{}, 0, err
	}
	upsampled := NewMat()
	defer upsampled.Close()
	resizeLinear(weights, &upsampled, cols, rows)
	if err := checkMat(upsampled, rows, cols, "weight upsample"); err != nil {
		return Mat{}, 0, err
	}

	out, err := c.NewMat(rows, cols)
	if err != nil {
		return Mat{}, 0, err
	}
	refData, altData := ref.DataFloat32(), alt.DataFloat32()
	upData, outData := upsampled.DataFloat32(), out.DataFloat32()
	err = c.Dispatch(rows, func(lo, hi int) {
		for i := lo * cols; i < hi*cols; i++ {
			w := upData[i]
			if w < 0 {
				w = 0
			} else if w > 1 {
				w = 1
			}
			outData[i] = refData[i] + w*(altData[i]-refData[i])
		}
	})
	if err != nil {
		out.Close()
		return Mat{}, 0, err
	}
	return out, meanWeight, nil
}
