package burststack

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"io"
	"os"

	"golang.org/x/image/tiff"
)

// TIFFDecoder decodes single-channel TIFF captures for LoadBurst. Gray16
// samples are taken as is; any other color model is converted to Gray16
// and flagged as 16-bit.
type TIFFDecoder struct{}

func (TIFFDecoder) Decode(blob []byte) (*RawImage, error) {
	img, err := tiff.Decode(bytes.NewReader(blob))
	if err != nil {
		return nil, fmt.Errorf("tiff: %w", err)
	}
	return rawFromImage(img), nil
}

// rawFromImage flattens img into a 16-bit grid.
func rawFromImage(img image.Image) *RawImage {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	pixels := make([]uint16, w*h)
	if g, ok := img.(*image.Gray16); ok {
		for y := 0; y < h; y++ {
			row := g.Pix[y*g.Stride:]
			for x := 0; x < w; x++ {
				pixels[y*w+x] = uint16(row[2*x])<<8 | uint16(row[2*x+1])
			}
		}
	} else {
		for y := 0; y < h; y++ {
			for x := 0; x < w; x++ {
				pixels[y*w+x] = color.Gray16Model.Convert(img.At(b.Min.X+x, b.Min.Y+y)).(color.Gray16).Y
			}
		}
	}
	return &RawImage{Pixels: pixels, Width: w, Height: h, BitDepth: 16}
}

// WriteTIFF16 writes f as a deflate-compressed 16-bit grayscale TIFF.
func WriteTIFF16(w io.Writer, f Frame) error {
	width, height := f.Width(), f.Height()
	img := image.NewGray16(image.Rect(0, 0, width, height))
	for i, p := range f.ToUint16() {
		img.Pix[2*i] = uint8(p >> 8)
		img.Pix[2*i+1] = uint8(p)
	}
	if err := tiff.Encode(w, img, &tiff.Options{Compression: tiff.Deflate}); err != nil {
		return fmt.Errorf("encode tiff: %w", err)
	}
	return nil
}

// WriteTIFF16File writes f to path with WriteTIFF16.
func WriteTIFF16File(path string, f Frame) error {
	out, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create TIFF file: %w", err)
	}
	if err := WriteTIFF16(out, f); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
