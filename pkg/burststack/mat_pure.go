//go:build purego || js

package burststack

import "math"

// Mat is a pure Go 2D float32 matrix.
type Mat struct {
	data    []float32
	rows    int
	cols    int
	stride  int // elements per row in backing array
	dataOff int // offset into data
	owned   bool
}

func NewMat() Mat { return Mat{} }

func NewMatWithSize(rows, cols int) Mat {
	return Mat{
		data:   make([]float32, rows*cols),
		rows:   rows,
		cols:   cols,
		stride: cols,
		owned:  true,
	}
}

func (m Mat) Rows() int   { return m.rows }
func (m Mat) Cols() int   { return m.cols }
func (m Mat) Empty() bool { return m.data == nil || m.rows == 0 || m.cols == 0 }

func (m Mat) Clone() Mat {
	newData := make([]float32, m.rows*m.cols)
	for r := 0; r < m.rows; r++ {
		srcOff := m.dataOff + r*m.stride
		copy(newData[r*m.cols:], m.data[srcOff:srcOff+m.cols])
	}
	return Mat{data: newData, rows: m.rows, cols: m.cols, stride: m.cols, owned: true}
}

func (m *Mat) Close() {
	if m.owned {
		m.data = nil
	}
	m.rows = 0
	m.cols = 0
}

// DataFloat32 returns the backing float32 slice.
func (m Mat) DataFloat32() []float32 {
	return m.data[m.dataOff:]
}

func (m *Mat) SetToZero() {
	for r := 0; r < m.rows; r++ {
		off := m.dataOff + r*m.stride
		for c := 0; c < m.cols; c++ {
			m.data[off+c] = 0
		}
	}
}

// --- Pure Go CV operations ---

func reflectIndex(idx, size int) int {
	if idx < 0 {
		idx = -idx
	}
	for idx >= size {
		idx = 2*size - 2 - idx
		if idx < 0 {
			idx = -idx
		}
	}
	return idx
}

// sepFilter2DReflect101 runs a separable filter with reflect-101 borders.
func sepFilter2DReflect101(src Mat, dst *Mat, kernelX, kernelY Mat) {
	rows, cols := src.rows, src.cols
	srcData := src.DataFloat32()
	kx := kernelX.DataFloat32()
	ky := kernelY.DataFloat32()
	kxLen := kernelX.rows * kernelX.cols
	kyLen := kernelY.rows * kernelY.cols
	kxHalf := kxLen / 2
	kyHalf := kyLen / 2

	if dst.rows != rows || dst.cols != cols || dst.data == nil {
		*dst = NewMatWithSize(rows, cols)
	}

	temp := make([]float32, rows*cols)

	// Horizontal pass: split into border and interior
	for r := 0; r < rows; r++ {
		rowOff := r * cols
		// Left border
		for c := 0; c < kxHalf && c < cols; c++ {
			var sum float32
			for k := 0; k < kxLen; k++ {
				cc := reflectIndex(c+k-kxHalf, cols)
				sum += srcData[rowOff+cc] * kx[k]
			}
			temp[rowOff+c] = sum
		}
		// Interior, no bounds check needed
		for c := kxHalf; c < cols-kxHalf; c++ {
			var sum float32
			base := rowOff + c - kxHalf
			for k := 0; k < kxLen; k++ {
				sum += srcData[base+k] * kx[k]
			}
			temp[rowOff+c] = sum
		}
		// Right border
		for c := cols - kxHalf; c < cols; c++ {
			if c < kxHalf {
				continue // already handled in left border for tiny images
			}
			var sum float32
			for k := 0; k < kxLen; k++ {
				cc := reflectIndex(c+k-kxHalf, cols)
				sum += srcData[rowOff+cc] * kx[k]
			}
			temp[rowOff+c] = sum
		}
	}

	// Vertical pass: pre-compute row offsets to avoid multiply in inner loop
	dstData := dst.DataFloat32()
	rowOffs := make([]int, kyLen)

	// Top border rows
	for r := 0; r < kyHalf && r < rows; r++ {
		for k := 0; k < kyLen; k++ {
			rowOffs[k] = reflectIndex(r+k-kyHalf, rows) * cols
		}
		dstOff := r * cols
		for c := 0; c < cols; c++ {
			var sum float32
			for k := 0; k < kyLen; k++ {
				sum += temp[rowOffs[k]+c] * ky[k]
			}
			dstData[dstOff+c] = sum
		}
	}
	// Interior rows
	for r := kyHalf; r < rows-kyHalf; r++ {
		for k := 0; k < kyLen; k++ {
			rowOffs[k] = (r + k - kyHalf) * cols
		}
		dstOff := r * cols
		for c := 0; c < cols; c++ {
			var sum float32
			for k := 0; k < kyLen; k++ {
				sum += temp[rowOffs[k]+c] * ky[k]
			}
			dstData[dstOff+c] = sum
		}
	}
	// Bottom border rows
	for r := rows - kyHalf; r < rows; r++ {
		if r < kyHalf {
			continue
		}
		for k := 0; k < kyLen; k++ {
			rowOffs[k] = reflectIndex(r+k-kyHalf, rows) * cols
		}
		dstOff := r * cols
		for c := 0; c < cols; c++ {
			var sum float32
			for k := 0; k < kyLen; k++ {
				sum += temp[rowOffs[k]+c] * ky[k]
			}
			dstData[dstOff+c] = sum
		}
	}
}

func resizeArea(src Mat, dst *Mat, factor int) {
	cols, rows := src.cols/factor, src.rows/factor
	if dst.rows != rows || dst.cols != cols || dst.data == nil {
		*dst = NewMatWithSize(rows, cols)
	}
	dd := dst.DataFloat32()
	norm := float32(factor * factor)
	for r := 0; r < rows; r++ {
		for c := 0; c < cols; c++ {
			var sum float32
			for dy := 0; dy < factor; dy++ {
				off := src.dataOff + (r*factor+dy)*src.stride + c*factor
				for dx := 0; dx < factor; dx++ {
					sum += src.data[off+dx]
				}
			}
			dd[r*cols+c] = sum / norm
		}
	}
}

// linearTaps mirrors OpenCV's INTER_LINEAR coordinate mapping: pixel centres
// are aligned and samples outside the source clamp to the edge.
func linearTaps(srcSize, dstSize int) ([]int, []float32) {
	idx := make([]int, dstSize)
	frac := make([]float32, dstSize)
	scale := float64(srcSize) / float64(dstSize)
	for d := 0; d < dstSize; d++ {
		f := (float64(d)+0.5)*scale - 0.5
		s := int(math.Floor(f))
		f -= float64(s)
		if s < 0 {
			s, f = 0, 0
		}
		if s >= srcSize-1 {
			s, f = srcSize-1, 0
		}
		idx[d] = s
		frac[d] = float32(f)
	}
	return idx, frac
}

func resizeLinear(src Mat, dst *Mat, cols, rows int) {
	if dst.rows != rows || dst.cols != cols || dst.data == nil {
		*dst = NewMatWithSize(rows, cols)
	}
	xs, fx := linearTaps(src.cols, cols)
	ys, fy := linearTaps(src.rows, rows)
	dd := dst.DataFloat32()
	for r := 0; r < rows; r++ {
		y0 := ys[r]
		y1 := y0
		if fy[r] > 0 {
			y1 = y0 + 1
		}
		row0 := src.dataOff + y0*src.stride
		row1 := src.dataOff + y1*src.stride
		for c := 0; c < cols; c++ {
			x0 := xs[c]
			x1 := x0
			if fx[c] > 0 {
				x1 = x0 + 1
			}
			top := src.data[row0+x0] + fx[c]*(src.data[row0+x1]-src.data[row0+x0])
			bottom := src.data[row1+x0] + fx[c]*(src.data[row1+x1]-src.data[row1+x0])
			dd[r*cols+c] = top + fy[r]*(bottom-top)
		}
	}
}

func absDiff(a, b Mat, dst *Mat) {
	n := a.rows * a.cols
	ad, bd := a.DataFloat32(), b.DataFloat32()
	if dst.rows != a.rows || dst.cols != a.cols || dst.data == nil {
		*dst = NewMatWithSize(a.rows, a.cols)
	}
	dd := dst.DataFloat32()
	for i := 0; i < n; i++ {
		d := ad[i] - bd[i]
		if d < 0 {
			d = -d
		}
		dd[i] = d
	}
}

func matMeanStdDev(src Mat) (float64, float64) {
	data := src.DataFloat32()
	n := src.rows * src.cols
	if n == 0 {
		return 0, 0
	}
	var sum float64
	for i := 0; i < n; i++ {
		sum += float64(data[i])
	}
	mean := sum / float64(n)
	var sse float64
	for i := 0; i < n; i++ {
		d := float64(data[i]) - mean
		sse += d * d
	}
	return mean, math.Sqrt(sse / float64(n))
}

