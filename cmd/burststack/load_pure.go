//go:build purego || js

package main

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	_ "image/jpeg"
	_ "image/png"

	bs "burststack/pkg/burststack"
)

// decodeImage reads a PNG or JPEG as a 16-bit luminance grid.
func decodeImage(blob []byte) (*bs.RawImage, error) {
	img, _, err := image.Decode(bytes.NewReader(blob))
	if err != nil {
		return nil, fmt.Errorf("decoding image: %w", err)
	}

	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	pixels := make([]uint16, w*h)

	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			pixels[y*w+x] = color.Gray16Model.Convert(img.At(bounds.Min.X+x, bounds.Min.Y+y)).(color.Gray16).Y
		}
	}

	return &bs.RawImage{Pixels: pixels, Width: w, Height: h, BitDepth: 16}, nil
}
