package burststack

import "fmt"

// LevelSchedule is the per-level plan shared by every pyramid of a burst.
// Index 0 is the finest level.
type LevelSchedule struct {
	// Factors[i] is the pooling factor from level i-1 (or the full frame) to level i.
	Factors     []int
	TileSizes   []int
	SearchRadii []int
}

// NewLevelSchedule derives the pyramid plan from the reference frame size.
// The first factor removes the mosaic; each extra level halves again until
// the shorter side is at most SearchBound, halving the tile size down to
// MinTileSize on the way.
func NewLevelSchedule(width, height int, p MergeParams) (LevelSchedule, error) {
	if err := p.Validate(); err != nil {
		return LevelSchedule{}, err
	}
	tile := p.EffectiveTileSize()
	s := LevelSchedule{
		Factors:     []int{p.MosaicPeriod},
		TileSizes:   []int{tile},
		SearchRadii: []int{p.SearchRadius},
	}
	resolution := min(width, height) / p.MosaicPeriod
	for resolution > p.SearchBound {
		tile = max(tile/2, p.MinTileSize)
		s.Factors = append(s.Factors, 2)
		s.TileSizes = append(s.TileSizes, tile)
		s.SearchRadii = append(s.SearchRadii, p.SearchRadius)
		resolution /= 2
	}
	return s, nil
}

// Levels is the number of pyramid levels.
func (s LevelSchedule) Levels() int { return len(s.Factors) }

// Scale returns the total downscale from the full frame to level i.
func (s LevelSchedule) Scale(level int) int {
	scale := 1
	for _, f := range s.Factors[:level+1] {
		scale *= f
	}
	return scale
}

// Geometry returns the tile grid of level i for a level of the given size.
func (s LevelSchedule) Geometry(level, levelWidth, levelHeight int) (TileGeometry, error) {
	g := TileGeometry{TileSize: s.TileSizes[level], SearchRadius: s.SearchRadii[level]}
	half := g.TileSize / 2
	g.TilesX = levelWidth/half - 1
	g.TilesY = levelHeight/half - 1
	if g.TilesX < 1 || g.TilesY < 1 {
		return TileGeometry{}, fmt.Errorf("%w: level %d (%dx%d) is smaller than one %d px tile",
			ErrInvalidParams, level, levelWidth, levelHeight, g.TileSize)
	}
	return g, nil
}

// Pyramid holds the pooled levels of one frame, finest first.
type Pyramid struct {
	Levels []Mat
}

// Close releases every level.
func (p *Pyramid) Close() {
	for i := range p.Levels {
		p.Levels[i].Close()
	}
	p.Levels = nil
}

// BuildPyramid mean-pools frame level by level following the schedule.
func (c *Compute) BuildPyramid(frame Frame, s LevelSchedule) (*Pyramid, error) {
	p := &Pyramid{Levels: make([]Mat, 0, s.Levels())}
	src := frame.Mat
	for i, factor := range s.Factors {
		rows, cols := src.Rows()/factor, src.Cols()/factor
		if rows < 1 || cols < 1 {
			p.Close()
			return nil, fmt.Errorf("%w: level %d would be empty", ErrInvalidParams, i)
		}
		if err := c.CheckBudget(int64(rows) * int64(cols) * 4); err != nil {
			p.Close()
			return nil, err
		}
		level := NewMat()
		resizeArea(src, &level, factor)
		if err := checkMat(level, rows, cols, "average pool"); err != nil {
			level.Close()
			p.Close()
			return nil, err
		}
		p.Levels = append(p.Levels, level)
		src = level
	}
	return p, nil
}
