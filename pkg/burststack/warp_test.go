package burststack

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRaisedCosinePartitionOfUnity(t *testing.T) {
	const tile = 16
	half := tile / 2
	for u := 0; u < half; u++ {
		sum := raisedCosine(u, tile) + raisedCosine(u+half, tile)
		assert.InDelta(t, 1.0, sum, 1e-12, "u=%d", u)
	}
}

func TestAxisTapsCoverEveryPixel(t *testing.T) {
	taps := axisTaps(100, 11, 16)
	require.Len(t, taps, 100)
	for p, list := range taps {
		require.NotEmpty(t, list, "pixel %d", p)
		for _, tap := range list {
			assert.GreaterOrEqual(t, tap.tile, 0)
			assert.Less(t, tap.tile, 11)
		}
	}
	// pixels past the last tile fall back to it
	assert.Equal(t, []axisTap{{tile: 10, weight: 1}}, taps[99])
}

func TestWarpFrameZeroFieldIsIdentity(t *testing.T) {
	c := DefaultCompute()
	const w, h = 64, 48
	px := texture(w, h, 5)
	alt := newTestFrame(t, c, px, w, h, 2)
	geom := TileGeometry{TileSize: 8, TilesX: (w/2)/4 - 1, TilesY: (h/2)/4 - 1}

	warped, err := c.WarpFrame(alt, NewAlignmentField(geom.TilesX, geom.TilesY), geom)
	require.NoError(t, err)
	defer warped.Close()
	assert.Equal(t, px, pixels(warped.Mat))
	assert.Equal(t, 2, warped.Period)
}

func TestWarpFrameUniformShift(t *testing.T) {
	c := DefaultCompute()
	const w, h = 64, 64
	px := texture(w, h, 9)
	alt := newTestFrame(t, c, shifted(px, w, h, 4, 2), w, h, 2)
	geom := TileGeometry{TileSize: 8, TilesX: 7, TilesY: 7}
	field := NewAlignmentField(7, 7)
	for i := range field.Offsets {
		field.Offsets[i] = Offset{DX: 2, DY: 1}
	}

	warped, err := c.WarpFrame(alt, field, geom)
	require.NoError(t, err)
	defer warped.Close()
	out := warped.DataFloat32()
	for y := 0; y < h-2; y++ {
		for x := 0; x < w-4; x++ {
			require.Equal(t, px[y*w+x], out[y*w+x], "pixel %d,%d", x, y)
		}
	}
}

func TestWarpFrameBlendsDisagreeingTiles(t *testing.T) {
	c := DefaultCompute()
	const w, h = 32, 32
	// a horizontal ramp makes each sample equal its x coordinate
	px := make([]float32, w*h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			px[y*w+x] = float32(x)
		}
	}
	alt := newTestFrame(t, c, px, w, h, 1)
	geom := TileGeometry{TileSize: 8, TilesX: 7, TilesY: 7}
	field := NewAlignmentField(7, 7)
	for ty := 0; ty < 7; ty++ {
		field.Set(3, ty, Offset{DX: 2})
	}

	warped, err := c.WarpFrame(alt, field, geom)
	require.NoError(t, err)
	defer warped.Close()
	out := warped.DataFloat32()

	// pixel 14 is covered by tiles 2 (u=6) and 3 (u=2)
	w2 := raisedCosine(6, 8)
	w3 := raisedCosine(2, 8)
	want := (w2*14 + w3*16) / (w2 + w3)
	assert.InDelta(t, want, out[5*w+14], 1e-5)
	// pixel 4 only sees unshifted tiles
	assert.Equal(t, float32(4), out[5*w+4])
}

func TestWarpFrameFieldMismatch(t *testing.T) {
	c := DefaultCompute()
	alt := newTestFrame(t, c, constant(32, 32, 0.5), 32, 32, 1)
	_, err := c.WarpFrame(alt, NewAlignmentField(2, 2), TileGeometry{TileSize: 8, TilesX: 7, TilesY: 7})
	assert.ErrorIs(t, err, ErrCompute)
}

func TestClampMosaicKeepsPhase(t *testing.T) {
	assert.Equal(t, 5, clampMosaic(5, 10, 2))
	assert.Equal(t, 0, clampMosaic(-2, 10, 2))
	assert.Equal(t, 1, clampMosaic(-3, 10, 2))
	assert.Equal(t, 9, clampMosaic(11, 10, 2))
	assert.Equal(t, 8, clampMosaic(12, 10, 2))
	assert.Equal(t, 9, clampMosaic(12, 10, 1))
	assert.Equal(t, 0, clampMosaic(-1, 10, 1))
}
