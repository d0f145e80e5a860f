package burststack

import (
	"fmt"
	"math"
)

// axisTap is one tile covering a pixel along one axis and its window weight.
type axisTap struct {
	tile   int
	weight float64
}

// raisedCosine is the window of a tile at local position u. Two windows
// offset by half a tile sum to one, so overlapping tiles blend seamlessly.
func raisedCosine(u, tileSize int) float64 {
	return 0.5 - 0.5*math.Cos(2*math.Pi*(float64(u)+0.5)/float64(tileSize))
}

// axisTaps lists, for every pixel along an axis, the tiles whose window
// covers it. Pixels past the last tile fall back to the nearest tile.
func axisTaps(size, tiles, tileSize int) [][]axisTap {
	stride := tileSize / 2
	taps := make([][]axisTap, size)
	for p := range taps {
		list := make([]axisTap, 0, 2)
		for t := p/stride - 1; t <= p/stride; t++ {
			if t < 0 || t >= tiles {
				continue
			}
			u := p - t*stride
			if u < 0 || u >= tileSize {
				continue
			}
			list = append(list, axisTap{tile: t, weight: raisedCosine(u, tileSize)})
		}
		if len(list) == 0 {
			list = append(list, axisTap{tile: clampIndex(p/stride-1, tiles), weight: 1})
		}
		taps[p] = list
	}
	return taps
}

// WarpFrame resamples alt so that it lines up with the reference. field
// and geom describe the finest pyramid level; both are scaled by the
// mosaic period to full resolution. Each pixel reads alt at its own
// position plus the offset of every tile covering it and blends those
// samples with the tile windows.
func (c *Compute) WarpFrame(alt Frame, field *AlignmentField, geom TileGeometry) (Frame, error) {
	if field.TilesX != geom.TilesX || field.TilesY != geom.TilesY {
		return Frame{}, fmt.Errorf("%w: alignment field is %dx%d, tile grid is %dx%d",
			ErrCompute, field.TilesX, field.TilesY, geom.TilesX, geom.TilesY)
	}
	period := max(alt.Period, 1)
	tileSize := geom.TileSize * period
	width, height := alt.Width(), alt.Height()

	out, err := c.NewMat(height, width)
	if err != nil {
		return Frame{}, err
	}
	xTaps := axisTaps(width, geom.TilesX, tileSize)
	yTaps := axisTaps(height, geom.TilesY, tileSize)
	src := alt.DataFloat32()
	dst := out.DataFloat32()

	err = c.Dispatch(height, func(lo, hi int) {
		for y := lo; y < hi; y++ {
			for x := 0; x < width; x++ {
				var (
					sum, weights float64
					first        Offset
					uniform      = true
					n            int
				)
				for _, yt := range yTaps[y] {
					for _, xt := range xTaps[x] {
						o := field.At(xt.tile, yt.tile)
						if n == 0 {
							first = o
						} else if o != first {
							uniform = false
						}
						n++
						w := xt.weight * yt.weight
						sx := clampMosaic(x+o.DX*period, width, period)
						sy := clampMosaic(y+o.DY*period, height, period)
						sum += w * float64(src[sy*width+sx])
						weights += w
					}
				}
				if uniform {
					sx := clampMosaic(x+first.DX*period, width, period)
					sy := clampMosaic(y+first.DY*period, height, period)
					dst[y*width+x] = src[sy*width+sx]
					continue
				}
				dst[y*width+x] = float32(sum / weights)
			}
		}
	})
	if err != nil {
		out.Close()
		return Frame{}, err
	}
	return Frame{Mat: out, Period: alt.Period}, nil
}
