package burststack

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"
	"io"
	"math"
)

// DebayerRGGB performs bilinear interpolation on a raw RGGB Bayer-pattern image
// and returns a luminance channel: (R + G + B) / 3 per pixel.
//
// RGGB layout (row-major, 0-indexed):
//
//	(even row, even col) = R
//	(even row, odd  col) = G  (Gr)
//	(odd  row, even col) = G  (Gb)
//	(odd  row, odd  col) = B
//
// Edge pixels use clamped (replicated) neighbor lookups.
func DebayerRGGB(data []float32, width, height int) []float32 {
	out := make([]float32, width*height)
	px := func(x, y int) float32 {
		return data[clampIndex(y, height)*width+clampIndex(x, width)]
	}

	for y := 0; y < height; y++ {
		evenRow := y%2 == 0
		for x := 0; x < width; x++ {
			evenCol := x%2 == 0
			var r, g, b float32

			switch {
			case evenRow && evenCol:
				r = px(x, y)
				g = (px(x-1, y) + px(x+1, y) + px(x, y-1) + px(x, y+1)) / 4
				b = (px(x-1, y-1) + px(x+1, y-1) + px(x-1, y+1) + px(x+1, y+1)) / 4
			case evenRow && !evenCol:
				r = (px(x-1, y) + px(x+1, y)) / 2
				g = px(x, y)
				b = (px(x, y-1) + px(x, y+1)) / 2
			case !evenRow && evenCol:
				r = (px(x, y-1) + px(x, y+1)) / 2
				g = px(x, y)
				b = (px(x-1, y) + px(x+1, y)) / 2
			default:
				r = (px(x-1, y-1) + px(x+1, y-1) + px(x-1, y+1) + px(x+1, y+1)) / 4
				g = (px(x-1, y) + px(x+1, y) + px(x, y-1) + px(x, y+1)) / 4
				b = px(x, y)
			}

			out[y*width+x] = (r + g + b) / 3
		}
	}
	return out
}

// PreviewImage renders a frame as an 8-bit grayscale image. Bayer frames
// are debayered to luminance first; the result is stretched between its
// 0.5 and 99.5 percentile and gamma corrected for display.
func PreviewImage(f Frame) *image.Gray {
	width, height := f.Width(), f.Height()
	lum := f.DataFloat32()[:width*height]
	if f.Period == 2 {
		lum = DebayerRGGB(lum, width, height)
	}
	lo, hi := percentileRange(lum, 0.005, 0.995)
	span := hi - lo
	if span <= 0 {
		span = 1
	}
	img := image.NewGray(image.Rect(0, 0, width, height))
	for i, v := range lum {
		t := clampFloat64(float64(v-lo)/float64(span), 0, 1)
		img.Pix[i] = uint8(math.Round(math.Pow(t, 1/2.2) * 255))
	}
	return img
}

// WritePreviewJPEG encodes PreviewImage(f) as JPEG.
func WritePreviewJPEG(w io.Writer, f Frame) error {
	if err := jpeg.Encode(w, PreviewImage(f), &jpeg.Options{Quality: 90}); err != nil {
		return fmt.Errorf("encode preview: %w", err)
	}
	return nil
}

// PreviewJPEGBytes returns the JPEG preview of f.
func PreviewJPEGBytes(f Frame) ([]byte, error) {
	var buf bytes.Buffer
	if err := WritePreviewJPEG(&buf, f); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// percentileRange returns approximate low and high percentiles of data
// from a 4096-bin histogram over its range.
func percentileRange(data []float32, pLo, pHi float64) (float32, float32) {
	if len(data) == 0 {
		return 0, 1
	}
	minV, maxV := data[0], data[0]
	for _, v := range data {
		minV = min(minV, v)
		maxV = max(maxV, v)
	}
	if maxV <= minV {
		return minV, maxV
	}
	const bins = 4096
	var hist [bins]int
	scale := float32(bins-1) / (maxV - minV)
	for _, v := range data {
		hist[int((v-minV)*scale)]++
	}
	at := func(p float64) float32 {
		target := int(p * float64(len(data)))
		seen := 0
		for i, n := range hist {
			seen += n
			if seen > target {
				return minV + float32(i)/scale
			}
		}
		return maxV
	}
	return at(pLo), at(pHi)
}
