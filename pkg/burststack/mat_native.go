//go:build !purego && !js

package burststack

import (
	"image"

	"gocv.io/x/gocv"
)

// Mat wraps gocv.Mat for the native OpenCV backend.
type Mat struct {
	m gocv.Mat
}

func NewMat() Mat                       { return Mat{m: gocv.NewMat()} }
func NewMatWithSize(rows, cols int) Mat { return Mat{m: gocv.NewMatWithSize(rows, cols, gocv.MatTypeCV32F)} }
func (mat Mat) Rows() int               { return mat.m.Rows() }
func (mat Mat) Cols() int               { return mat.m.Cols() }
func (mat Mat) Empty() bool             { return mat.m.Empty() }
func (mat Mat) Clone() Mat              { return Mat{m: mat.m.Clone()} }
func (mat *Mat) Close()                 { mat.m.Close() }

func (mat Mat) DataFloat32() []float32 {
	data, _ := mat.m.DataPtrFloat32()
	return data
}

func (mat *Mat) SetToZero() {
	mat.m.SetTo(gocv.NewScalar(0, 0, 0, 0))
}

// --- CV operations ---

// sepFilter2DReflect101 runs a separable filter with BORDER_REFLECT_101,
// which keeps the mosaic phase of mirrored samples intact.
func sepFilter2DReflect101(src Mat, dst *Mat, kernelX, kernelY Mat) {
	gocv.SepFilter2D(src.m, &dst.m, gocv.MatTypeCV32F, kernelX.m, kernelY.m, image.Pt(-1, -1), 0, gocv.BorderReflect101)
}

// resizeArea mean-pools src by an integer factor. Trailing rows and columns
// that do not fill a whole block are dropped first so INTER_AREA reduces to
// an exact block average.
func resizeArea(src Mat, dst *Mat, factor int) {
	w, h := src.Cols()/factor, src.Rows()/factor
	view := src.m.Region(image.Rect(0, 0, w*factor, h*factor))
	defer view.Close()
	gocv.Resize(view, &dst.m, image.Pt(w, h), 0, 0, gocv.InterpolationArea)
}

// resizeLinear bilinearly resamples src to cols x rows.
func resizeLinear(src Mat, dst *Mat, cols, rows int) {
	gocv.Resize(src.m, &dst.m, image.Pt(cols, rows), 0, 0, gocv.InterpolationLinear)
}

func absDiff(a, b Mat, dst *Mat) {
	gocv.AbsDiff(a.m, b.m, &dst.m)
}

func matMeanStdDev(src Mat) (float64, float64) {
	meanMat := gocv.NewMat()
	defer meanMat.Close()
	stdMat := gocv.NewMat()
	defer stdMat.Close()
	gocv.MeanStdDev(src.m, &meanMat, &stdMat)
	return meanMat.GetDoubleAt(0, 0), stdMat.GetDoubleAt(0, 0)
}
