package burststack

import (
	"fmt"
	"math"
)

// TileGeometry describes the 50%-overlapping tile grid of one level.
type TileGeometry struct {
	TileSize     int
	SearchRadius int
	TilesX       int
	TilesY       int
}

// Stride is the distance between neighboring tile origins.
func (g TileGeometry) Stride() int { return g.TileSize / 2 }

// SearchWidth is the number of candidate offsets along one axis.
func (g TileGeometry) SearchWidth() int { return 2*g.SearchRadius + 1 }

// Candidates is the number of candidate offsets tested per tile.
func (g TileGeometry) Candidates() int {
	n := g.SearchWidth()
	return n * n
}

// Candidate returns the offset tested at index k, dy-major.
func (g TileGeometry) Candidate(k int) Offset {
	n := g.SearchWidth()
	return Offset{DX: k%n - g.SearchRadius, DY: k/n - g.SearchRadius}
}

// Origin returns the top-left pixel of tile (tx, ty).
func (g TileGeometry) Origin(tx, ty int) (int, int) {
	return tx * g.Stride(), ty * g.Stride()
}

// CostVolume holds one SAD score per tile and candidate offset.
type CostVolume struct {
	Geometry TileGeometry
	Costs    []float32
}

// At returns the cost of candidate k for tile (tx, ty).
func (v *CostVolume) At(tx, ty, k int) float32 {
	return v.Costs[(ty*v.Geometry.TilesX+tx)*v.Geometry.Candidates()+k]
}

func (v *CostVolume) tile(tx, ty int) []float32 {
	n := v.Geometry.Candidates()
	off := (ty*v.Geometry.TilesX + tx) * n
	return v.Costs[off : off+n]
}

// ComputeTileDifferences scores every candidate offset of every tile as
// the sum of absolute differences between the reference tile and the
// alternate tile displaced by prev + candidate. Alternate samples outside
// the level clamp to its border.
func (c *Compute) ComputeTileDifferences(ref, alt Mat, prev *AlignmentField, g TileGeometry) (*CostVolume, error) {
	if ref.Rows() != alt.Rows() || ref.Cols() != alt.Cols() {
		return nil, fmt.Errorf("%w: level sizes differ (%dx%d vs %dx%d)",
			ErrFrameMismatch, ref.Cols(), ref.Rows(), alt.Cols(), alt.Rows())
	}
	if prev.TilesX != g.TilesX || prev.TilesY != g.TilesY {
		return nil, fmt.Errorf("%w: alignment field is %dx%d, tile grid is %dx%d",
			ErrCompute, prev.TilesX, prev.TilesY, g.TilesX, g.TilesY)
	}
	n := int64(g.TilesX) * int64(g.TilesY) * int64(g.Candidates())
	if err := c.CheckBudget(n * 4); err != nil {
		return nil, err
	}
	v := &CostVolume{Geometry: g, Costs: make([]float32, n)}

	width, height := ref.Cols(), ref.Rows()
	refData, altData := ref.DataFloat32(), alt.DataFloat32()
	candidates := g.Candidates()

	// one work item per (tile row, candidate) so small grids still spread out
	err := c.Dispatch(g.TilesY*candidates, func(lo, hi int) {
		for item := lo; item < hi; item++ {
			ty, k := item/candidates, item%candidates
			delta := g.Candidate(k)
			for tx := 0; tx < g.TilesX; tx++ {
				base := prev.At(tx, ty)
				dx, dy := base.DX+delta.DX, base.DY+delta.DY
				x0, y0 := g.Origin(tx, ty)
				var diff float64
				for j := 0; j < g.TileSize; j++ {
					y := y0 + j
					refRow := y * width
					altRow := clampIndex(y+dy, height) * width
					for i := 0; i < g.TileSize; i++ {
						x := x0 + i
						d := refData[refRow+x] - altData[altRow+clampIndex(x+dx, width)]
						diff += math.Abs(float64(d))
					}
				}
				v.Costs[(ty*g.TilesX+tx)*candidates+k] = float32(diff)
			}
		}
	})
	if err != nil {
		return nil, err
	}
	return v, nil
}
