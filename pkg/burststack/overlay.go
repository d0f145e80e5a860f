package burststack

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"math"
	"os"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

// RenderAlignmentOverlay generates a JPG image of the merged frame with the
// alignment vectors of one burst frame drawn on top and writes it to a file.
// The result must have been produced with KeepFields set.
func RenderAlignmentOverlay(res *MergeResult, frame int, outputPath string) error {
	img, err := renderAlignmentImage(res, frame)
	if err != nil {
		return err
	}

	f, err := os.Create(outputPath)
	if err != nil {
		return fmt.Errorf("create overlay file: %w", err)
	}
	defer f.Close()

	return jpeg.Encode(f, img, &jpeg.Options{Quality: 90})
}

// RenderAlignmentOverlayBytes is RenderAlignmentOverlay returning JPEG bytes.
func RenderAlignmentOverlayBytes(res *MergeResult, frame int) ([]byte, error) {
	img, err := renderAlignmentImage(res, frame)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 90}); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// renderAlignmentImage creates the overlay image in memory.
func renderAlignmentImage(res *MergeResult, frame int) (*image.RGBA, error) {
	if res == nil || frame < 0 || frame >= len(res.Fields) {
		return nil, fmt.Errorf("no alignment field for frame %d", frame)
	}
	field := res.Fields[frame]
	if field == nil {
		return nil, fmt.Errorf("frame %d is the reference and has no alignment field", frame)
	}
	width, height := res.Merged.Width(), res.Merged.Height()
	period := max(res.Merged.Period, 1)
	geom, err := res.Schedule.Geometry(0, width/res.Schedule.Factors[0], height/res.Schedule.Factors[0])
	if err != nil {
		return nil, err
	}

	// Render at reduced resolution (800px wide, proportional height)
	const targetWidth = 800
	scale := float64(targetWidth) / float64(width)
	imgW := targetWidth
	imgH := max(int(float64(height)*scale), 100)

	// Reserve space for summary text at bottom
	summaryH := 40
	img := image.NewRGBA(image.Rect(0, 0, imgW, imgH+summaryH))

	// Dimmed preview of the merged frame as background
	preview := PreviewImage(res.Merged)
	for y := 0; y < imgH; y++ {
		sy := clampIndex(int(float64(y)/scale), height)
		for x := 0; x < imgW; x++ {
			sx := clampIndex(int(float64(x)/scale), width)
			v := preview.Pix[sy*preview.Stride+sx] / 2
			img.SetRGBA(x, y, color.RGBA{v, v, v, 255})
		}
	}
	for y := imgH; y < imgH+summaryH; y++ {
		for x := 0; x < imgW; x++ {
			img.SetRGBA(x, y, color.RGBA{0, 0, 0, 255})
		}
	}

	// Vectors are exaggerated so the largest one spans one tile stride.
	var maxShift float64
	for _, o := range field.Offsets {
		maxShift = max(maxShift, o.Magnitude())
	}
	stride := float64(geom.Stride()*period) * scale
	gain := 1.0
	if maxShift > 0 {
		gain = stride / maxShift
	}

	tileFull := float64(geom.TileSize * period)
	for ty := 0; ty < field.TilesY; ty++ {
		for tx := 0; tx < field.TilesX; tx++ {
			o := field.At(tx, ty)
			ox, oy := geom.Origin(tx, ty)
			cx := int((float64(ox*period) + tileFull/2) * scale)
			cy := int((float64(oy*period) + tileFull/2) * scale)
			if o == (Offset{}) {
				img.SetRGBA(cx, cy, color.RGBA{80, 200, 80, 255})
				continue
			}
			ex := cx + int(math.Round(float64(o.DX)*gain))
			ey := cy + int(math.Round(float64(o.DY)*gain))
			c := shiftColor(o.Magnitude(), maxShift)
			drawLine(img, cx, cy, ex, ey, c)
			drawArrowHead(img, cx, cy, ex, ey, c)
		}
	}

	face := basicfont.Face7x13
	summaryColor := color.RGBA{220, 220, 220, 255}
	stats := FrameStats{}
	for _, s := range res.Frames {
		if s.Index == frame {
			stats = s
		}
	}
	line1 := fmt.Sprintf("Frame %d -> reference %d   tiles %dx%d @ %dpx", frame, res.Reference,
		field.TilesX, field.TilesY, geom.TileSize*period)
	line2 := fmt.Sprintf("Shift mean %.2fpx max %.2fpx   weight %.3f", stats.MeanShift, stats.MaxShift, stats.MeanWeight)
	drawText(img, face, line1, 10, imgH+15, summaryColor)
	drawText(img, face, line2, 10, imgH+32, summaryColor)

	return img, nil
}

// shiftColor fades from yellow to red as a vector approaches the largest
// shift of the field.
func shiftColor(shift, maxShift float64) color.RGBA {
	t := 0.0
	if maxShift > 0 {
		t = math.Min(shift/maxShift, 1)
	}
	return color.RGBA{255, uint8(220 - t*180), 40, 255}
}

// drawText draws a string at (x, y) using the given font face.
func drawText(img *image.RGBA, face font.Face, s string, x, y int, c color.RGBA) {
	d := &font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(c),
		Face: face,
		Dot:  fixed.P(x, y),
	}
	d.DrawString(s)
}

// drawLine draws a line between two points using Bresenham's algorithm.
func drawLine(img *image.RGBA, x0, y0, x1, y1 int, c color.RGBA) {
	dx := intAbs(x1 - x0)
	dy := -intAbs(y1 - y0)
	sx, sy := 1, 1
	if x0 > x1 {
		sx = -1
	}
	if y0 > y1 {
		sy = -1
	}
	err := dx + dy

	for {
		img.Set(x0, y0, c)
		if x0 == x1 && y0 == y1 {
			break
		}
		e2 := 2 * err
		if e2 >= dy {
			err += dy
			x0 += sx
		}
		if e2 <= dx {
			err += dx
			y0 += sy
		}
	}
}

// drawArrowHead draws a small arrowhead at the end of a line.
func drawArrowHead(img *image.RGBA, x0, y0, x1, y1 int, c color.RGBA) {
	dx := float64(x1 - x0)
	dy := float64(y1 - y0)
	length := math.Sqrt(dx*dx + dy*dy)
	if length < 1 {
		return
	}
	dx /= length
	dy /= length

	sz := math.Min(6, length/2)
	px := float64(x1) - dx*sz
	py := float64(y1) - dy*sz

	wx1 := int(px + dy*sz*0.5)
	wy1 := int(py - dx*sz*0.5)
	wx2 := int(px - dy*sz*0.5)
	wy2 := int(py + dx*sz*0.5)

	drawLine(img, x1, y1, wx1, wy1, c)
	drawLine(img, x1, y1, wx2, wy2, c)
}

func intAbs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}
