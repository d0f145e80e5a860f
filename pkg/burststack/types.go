package burststack

import (
	"fmt"
	"time"
)

// ReferenceMode selects how the reference frame of a burst is chosen.
type ReferenceMode int

const (
	// ReferenceAuto picks the last frame of short bursts and a fixed index
	// of long ones.
	ReferenceAuto ReferenceMode = iota
	// ReferenceFixed always uses ReferencePolicy.Index, clamped to the burst.
	ReferenceFixed
)

func (m ReferenceMode) String() string {
	switch m {
	case ReferenceAuto:
		return "auto"
	case ReferenceFixed:
		return "fixed"
	default:
		return "unknown"
	}
}

// ParseReferenceMode maps a configuration string to a ReferenceMode.
func ParseReferenceMode(s string) (ReferenceMode, error) {
	switch s {
	case "", "auto":
		return ReferenceAuto, nil
	case "fixed":
		return ReferenceFixed, nil
	default:
		return 0, fmt.Errorf("%w: unknown reference mode %q (expected auto or fixed)", ErrInvalidParams, s)
	}
}

// ReferencePolicy decides which frame of a burst the others are aligned to.
type ReferencePolicy struct {
	Mode ReferenceMode
	// ShortBurst is the largest burst that uses its last frame in auto mode.
	ShortBurst int
	// Index is the frame used by long bursts in auto mode and by fixed mode.
	Index int
}

// DefaultReferencePolicy returns last-frame for up to 5 frames, else frame 6.
func DefaultReferencePolicy() ReferencePolicy {
	return ReferencePolicy{Mode: ReferenceAuto, ShortBurst: 5, Index: 6}
}

// ReferenceIndex returns the reference position for a burst of n frames.
// Indexes past the end of the burst clamp to the last frame.
func (p ReferencePolicy) ReferenceIndex(n int) (int, error) {
	if n < 2 {
		return 0, fmt.Errorf("%w: got %d", ErrInsufficientFrames, n)
	}
	idx := p.Index
	if p.Mode == ReferenceAuto && n <= p.ShortBurst {
		idx = n - 1
	}
	if idx < 0 {
		idx = 0
	}
	if idx > n-1 {
		idx = n - 1
	}
	return idx, nil
}

// MergeParams holds the tunables of one align-and-merge call.
type MergeParams struct {
	// TileSize is the finest-level tile edge in pyramid level 0 pixels.
	// Zero selects DefaultTileSize.
	TileSize int
	// MinTileSize floors the tile size as it halves on coarser levels.
	MinTileSize int
	// SearchRadius is the per-level search distance in level pixels.
	SearchRadius int
	// SearchBound stops the pyramid once the shorter side is at or below it.
	SearchBound int
	// KernelSize is the tap count of the mosaic-aware merge blur.
	KernelSize int
	// Robustness scales the tolerated difference in the merge. Zero bypasses
	// the robust merge and trusts every aligned frame fully.
	Robustness float64
	// MosaicPeriod is the edge of the repeating color filter pattern.
	MosaicPeriod int
	Reference    ReferencePolicy
}

const (
	DefaultTileSize     = 16
	DefaultMinTileSize  = 8
	DefaultSearchRadius = 2
	DefaultSearchBound  = 64
	DefaultKernelSize   = 5
	DefaultRobustness   = 1.0
	DefaultMosaicPeriod = 2
)

// NewMergeParams creates MergeParams with default values.
func NewMergeParams() MergeParams {
	return MergeParams{
		TileSize:     0,
		MinTileSize:  DefaultMinTileSize,
		SearchRadius: DefaultSearchRadius,
		SearchBound:  DefaultSearchBound,
		KernelSize:   DefaultKernelSize,
		Robustness:   DefaultRobustness,
		MosaicPeriod: DefaultMosaicPeriod,
		Reference:    DefaultReferencePolicy(),
	}
}

// EffectiveTileSize resolves the auto tile size.
func (p MergeParams) EffectiveTileSize() int {
	if p.TileSize == 0 {
		return DefaultTileSize
	}
	return p.TileSize
}

// Validate checks that the parameters describe a usable tile search.
func (p MergeParams) Validate() error {
	tile := p.EffectiveTileSize()
	switch {
	case tile < 2 || tile%2 != 0:
		return fmt.Errorf("%w: tile size must be even and >= 2, got %d", ErrInvalidParams, tile)
	case p.MinTileSize < 2 || p.MinTileSize%2 != 0:
		return fmt.Errorf("%w: minimum tile size must be even and >= 2, got %d", ErrInvalidParams, p.MinTileSize)
	case p.SearchRadius < 0:
		return fmt.Errorf("%w: search radius must be >= 0, got %d", ErrInvalidParams, p.SearchRadius)
	case p.SearchBound < 1:
		return fmt.Errorf("%w: search bound must be positive, got %d", ErrInvalidParams, p.SearchBound)
	case p.KernelSize < 1 || p.KernelSize%2 == 0:
		return fmt.Errorf("%w: kernel size must be odd and positive, got %d", ErrInvalidParams, p.KernelSize)
	case p.Robustness < 0 || p.Robustness > 1:
		return fmt.Errorf("%w: robustness must be in [0, 1], got %f", ErrInvalidParams, p.Robustness)
	case p.MosaicPeriod < 1:
		return fmt.Errorf("%w: mosaic period must be positive, got %d", ErrInvalidParams, p.MosaicPeriod)
	}
	return nil
}

// FrameStats summarizes how one frame entered the accumulator.
type FrameStats struct {
	Index     int
	Reference bool
	// MeanShift is the mean tile offset magnitude in full-resolution pixels.
	MeanShift float64
	MaxShift  float64
	// MeanWeight is the mean merge trust; 1 for the reference and for bypass.
	MeanWeight float64
	Duration   time.Duration
}

func (s FrameStats) String() string {
	return fmt.Sprintf("{Index=%d, Reference=%t, MeanShift=%f, MaxShift=%f, MeanWeight=%f, Duration=%s}",
		s.Index, s.Reference, s.MeanShift, s.MaxShift, s.MeanWeight, s.Duration)
}

// MergeResult is the output of the align-and-merge pipeline.
type MergeResult struct {
	Merged    Frame
	Reference int
	Noise     float64
	Schedule  LevelSchedule
	Frames    []FrameStats
	// Fields holds the finest alignment field of every frame, indexed like
	// the burst; the reference entry is nil. Only kept when requested.
	Fields []*AlignmentField
}

// Close releases the merged frame.
func (r *MergeResult) Close() {
	r.Merged.Close()
}
