package burststack

import (
	"fmt"
	"math"
)

// Offset is an integer displacement in pixels of some pyramid level.
type Offset struct {
	DX, DY int
}

func (o Offset) Add(other Offset) Offset { return Offset{DX: o.DX + other.DX, DY: o.DY + other.DY} }
func (o Offset) Scale(f int) Offset     { return Offset{DX: o.DX * f, DY: o.DY * f} }
func (o Offset) norm2() int             { return o.DX*o.DX + o.DY*o.DY }

// Magnitude is the Euclidean length of the offset.
func (o Offset) Magnitude() float64 { return math.Sqrt(float64(o.norm2())) }

// preferredTo orders equal-cost candidates: shorter offsets first, then
// lexicographic (dy, dx) ascending.
func (o Offset) preferredTo(other Offset) bool {
	if a, b := o.norm2(), other.norm2(); a != b {
		return a < b
	}
	if o.DY != other.DY {
		return o.DY < other.DY
	}
	return o.DX < other.DX
}

// AlignmentField stores one offset per tile of a level, row-major.
type AlignmentField struct {
	TilesX  int
	TilesY  int
	Offsets []Offset
}

// NewAlignmentField returns a zero field for a tilesX x tilesY grid.
func NewAlignmentField(tilesX, tilesY int) *AlignmentField {
	return &AlignmentField{TilesX: tilesX, TilesY: tilesY, Offsets: make([]Offset, tilesX*tilesY)}
}

func (f *AlignmentField) At(tx, ty int) Offset     { return f.Offsets[ty*f.TilesX+tx] }
func (f *AlignmentField) Set(tx, ty int, o Offset) { f.Offsets[ty*f.TilesX+tx] = o }

// Scaled returns a copy with every offset multiplied by factor.
func (f *AlignmentField) Scaled(factor int) *AlignmentField {
	out := NewAlignmentField(f.TilesX, f.TilesY)
	for i, o := range f.Offsets {
		out.Offsets[i] = o.Scale(factor)
	}
	return out
}

// UpsampleAlignment carries a coarse field onto the finer grid. Every fine
// tile takes the offset of the coarse tile whose centre is nearest to its
// own, multiplied by the pooling factor between the two levels.
func UpsampleAlignment(coarse *AlignmentField, coarseGeom, fineGeom TileGeometry, factor int) *AlignmentField {
	fine := NewAlignmentField(fineGeom.TilesX, fineGeom.TilesY)
	xs := nearestCoarseTiles(fineGeom.TilesX, fineGeom, coarseGeom, coarse.TilesX, factor)
	ys := nearestCoarseTiles(fineGeom.TilesY, fineGeom, coarseGeom, coarse.TilesY, factor)
	for ty, cy := range ys {
		for tx, cx := range xs {
			fine.Set(tx, ty, coarse.At(cx, cy).Scale(factor))
		}
	}
	return fine
}

func nearestCoarseTiles(fineTiles int, fineGeom, coarseGeom TileGeometry, coarseTiles, factor int) []int {
	idx := make([]int, fineTiles)
	for t := range idx {
		centre := float64(t*fineGeom.Stride()+fineGeom.TileSize/2) / float64(factor)
		c := math.Round((centre - float64(coarseGeom.TileSize)/2) / float64(coarseGeom.Stride()))
		idx[t] = clampIndex(int(c), coarseTiles)
	}
	return idx
}

// SelectAlignment picks the cheapest candidate of every tile and composes
// it with the previous estimate.
func (c *Compute) SelectAlignment(v *CostVolume, prev *AlignmentField) (*AlignmentField, error) {
	g := v.Geometry
	if prev.TilesX != g.TilesX || prev.TilesY != g.TilesY {
		return nil, fmt.Errorf("%w: alignment field is %dx%d, cost volume is %dx%d",
			ErrCompute, prev.TilesX, prev.TilesY, g.TilesX, g.TilesY)
	}
	out := NewAlignmentField(g.TilesX, g.TilesY)
	err := c.Dispatch(g.TilesY, func(lo, hi int) {
		for ty := lo; ty < hi; ty++ {
			for tx := 0; tx < g.TilesX; tx++ {
				costs := v.tile(tx, ty)
				best := g.Candidate(0)
				bestCost := costs[0]
				for k := 1; k < len(costs); k++ {
					cand := g.Candidate(k)
					if costs[k] < bestCost || (costs[k] == bestCost && cand.preferredTo(best)) {
						best, bestCost = cand, costs[k]
					}
				}
				out.Set(tx, ty, prev.At(tx, ty).Add(best))
			}
		}
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// AlignFrame walks the pyramids coarse to fine and returns the alignment
// field of the finest level together with that level's tile geometry.
// Offsets are in level 0 pixels.
func (c *Compute) AlignFrame(ref, alt *Pyramid, s LevelSchedule) (*AlignmentField, TileGeometry, error) {
	if len(ref.Levels) != s.Levels() || len(alt.Levels) != s.Levels() {
		return nil, TileGeometry{}, fmt.Errorf("%w: pyramids have %d and %d levels, schedule has %d",
			ErrFrameMismatch, len(ref.Levels), len(alt.Levels), s.Levels())
	}
	var (
		field *AlignmentField
		geom  TileGeometry
	)
	for i := s.Levels() - 1; i >= 0; i-- {
		level := ref.Levels[i]
		g, err := s.Geometry(i, level.Cols(), level.Rows())
		if err != nil {
			return nil, TileGeometry{}, err
		}
		var prev *AlignmentField
		if field == nil {
			prev = NewAlignmentField(g.TilesX, g.TilesY)
		} else {
			prev = UpsampleAlignment(field, geom, g, s.Factors[i+1])
		}
		costs, err := c.ComputeTileDifferences(level, alt.Levels[i], prev, g)
		if err != nil {
			return nil, TileGeometry{}, fmt.Errorf("tile differences at level %d: %w", i, err)
		}
		field, err = c.SelectAlignment(costs, prev)
		if err != nil {
			return nil, TileGeometry{}, fmt.Errorf("tile alignment at level %d: %w", i, err)
		}
		geom = g
	}
	return field, geom, nil
}
