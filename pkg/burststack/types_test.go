package burststack

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReferenceIndexAuto(t *testing.T) {
	p := DefaultReferencePolicy()
	cases := map[int]int{
		2:  1,
		3:  2,
		5:  4,
		6:  5,
		7:  6,
		8:  6,
		20: 6,
	}
	for n, want := range cases {
		got, err := p.ReferenceIndex(n)
		require.NoError(t, err)
		assert.Equal(t, want, got, "burst of %d", n)
	}
}

func TestReferenceIndexFixedClamps(t *testing.T) {
	p := ReferencePolicy{Mode: ReferenceFixed, Index: 0}
	got, err := p.ReferenceIndex(9)
	require.NoError(t, err)
	assert.Equal(t, 0, got)

	p.Index = 12
	got, err = p.ReferenceIndex(4)
	require.NoError(t, err)
	assert.Equal(t, 3, got)
}

func TestReferenceIndexTooFewFrames(t *testing.T) {
	for _, n := range []int{0, 1} {
		_, err := DefaultReferencePolicy().ReferenceIndex(n)
		assert.ErrorIs(t, err, ErrInsufficientFrames)
	}
}

func TestParseReferenceMode(t *testing.T) {
	m, err := ParseReferenceMode("fixed")
	require.NoError(t, err)
	assert.Equal(t, ReferenceFixed, m)
	assert.Equal(t, "fixed", m.String())

	m, err = ParseReferenceMode("")
	require.NoError(t, err)
	assert.Equal(t, ReferenceAuto, m)

	_, err = ParseReferenceMode("best")
	assert.ErrorIs(t, err, ErrInvalidParams)
}

func TestMergeParamsValidate(t *testing.T) {
	require.NoError(t, NewMergeParams().Validate())
	assert.Equal(t, DefaultTileSize, NewMergeParams().EffectiveTileSize())

	bad := []func(*MergeParams){
		func(p *MergeParams) { p.TileSize = 15 },
		func(p *MergeParams) { p.MinTileSize = 0 },
		func(p *MergeParams) { p.SearchRadius = -1 },
		func(p *MergeParams) { p.SearchBound = 0 },
		func(p *MergeParams) { p.KernelSize = 4 },
		func(p *MergeParams) { p.Robustness = 1.5 },
		func(p *MergeParams) { p.Robustness = -0.1 },
		func(p *MergeParams) { p.MosaicPeriod = 0 },
	}
	for i, mutate := range bad {
		p := NewMergeParams()
		mutate(&p)
		err := p.Validate()
		assert.True(t, errors.Is(err, ErrInvalidParams), "case %d: %v", i, err)
	}
}

func TestFrameErrorUnwraps(t *testing.T) {
	err := error(&FrameError{Index: 3, Err: ErrDecode})
	assert.ErrorIs(t, err, ErrDecode)
	assert.EqualError(t, err, "frame 3: decode failed")

	var fe *FrameError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, 3, fe.Index)
}
