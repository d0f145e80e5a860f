//go:build !purego && !js

package main

import (
	"fmt"

	"gocv.io/x/gocv"

	bs "burststack/pkg/burststack"
)

// decodeImage reads any image OpenCV can decode as a single-channel grid,
// keeping 16-bit depth when the file has it.
func decodeImage(blob []byte) (*bs.RawImage, error) {
	src, err := gocv.IMDecode(blob, gocv.IMReadAnyDepth)
	if err != nil {
		return nil, fmt.Errorf("could not decode image: %w", err)
	}
	defer src.Close()
	if src.Empty() {
		return nil, fmt.Errorf("could not decode image")
	}

	w, h := src.Cols(), src.Rows()
	pixels := make([]uint16, w*h)
	switch src.Type() {
	case gocv.MatTypeCV16UC1:
		data, err := src.DataPtrUint16()
		if err != nil {
			return nil, err
		}
		copy(pixels, data[:w*h])
		return &bs.RawImage{Pixels: pixels, Width: w, Height: h, BitDepth: 16}, nil
	case gocv.MatTypeCV8UC1:
		data, err := src.DataPtrUint8()
		if err != nil {
			return nil, err
		}
		for i, v := range data[:w*h] {
			pixels[i] = uint16(v)
		}
		return &bs.RawImage{Pixels: pixels, Width: w, Height: h, BitDepth: 8}, nil
	}
	return nil, fmt.Errorf("unsupported image type %v", src.Type())
}
