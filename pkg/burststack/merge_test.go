package burststack

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMergeWeight(t *testing.T) {
	assert.Equal(t, float32(1), MergeWeight(0, 0.1, 1))
	assert.Equal(t, float32(1), MergeWeight(0, 0, 0))
	assert.Equal(t, float32(0), MergeWeight(0.01, 0, 1))
	assert.Equal(t, float32(0), MergeWeight(0.5, 0.1, 1))
	assert.InDelta(t, 0.5, MergeWeight(0.05, 0.1, 1), 1e-6)
}

func TestMergeWeightMonotone(t *testing.T) {
	const noise = 0.02
	for _, diff := range []float64{0, 0.001, 0.01, 0.019, 0.05} {
		prev := float32(-1)
		for r := 0.0; r <= 1.0; r += 0.05 {
			w := MergeWeight(diff, noise, r)
			assert.GreaterOrEqual(t, w, prev, "diff=%g r=%g", diff, r)
			assert.GreaterOrEqual(t, w, float32(0))
			assert.LessOrEqual(t, w, float32(1))
			prev = w
		}
	}
	prev := float32(2)
	for diff := 0.0; diff < 0.05; diff += 0.001 {
		w := MergeWeight(diff, noise, 1)
		assert.LessOrEqual(t, w, prev)
		prev = w
	}
}

func TestRobustMergeBypass(t *testing.T) {
	c := DefaultCompute()
	const w, h = 32, 32
	ref := newTestFrame(t, c, texture(w, h, 1), w, h, 2)
	altPx := texture(w, h, 2)
	alt := newTestFrame(t, c, altPx, w, h, 2)
	refBlur, err := c.BlurMosaic(ref, 5)
	require.NoError(t, err)
	defer refBlur.Close()

	p := NewMergeParams()
	p.Robustness = 0
	out, meanWeight, err := c.RobustMerge(ref, refBlur, alt, 0.01, p)
	require.NoError(t, err)
	defer out.Close()
	assert.Equal(t, altPx, pixels(out))
	assert.Equal(t, 1.0, meanWeight)
}

func TestRobustMergeIdenticalFrames(t *testing.T) {
	c := DefaultCompute()
	const w, h = 48, 32
	px := texture(w, h, 3)
	ref := newTestFrame(t, c, px, w, h, 2)
	alt := newTestFrame(t, c, px, w, h, 2)
	refBlur, err := c.BlurMosaic(ref, 5)
	require.NoError(t, err)
	defer refBlur.Close()
	noise, err := c.EstimateNoise(ref, refBlur)
	require.NoError(t, err)

	out, meanWeight, err := c.RobustMerge(ref, refBlur, alt, noise, NewMergeParams())
	require.NoError(t, err)
	defer out.Close()
	assert.Equal(t, px, pixels(out))
	assert.Equal(t, 1.0, meanWeight)
}

func TestRobustMergeRejectsGhost(t *testing.T) {
	c := DefaultCompute()
	const w, h = 64, 64
	px := texture(w, h, 4)
	ghost := append([]float32(nil), px...)
	for y := 16; y < 48; y++ {
		for x := 16; x < 48; x++ {
			ghost[y*w+x] += 0.75
		}
	}
	ref := newTestFrame(t, c, px, w, h, 2)
	alt := newTestFrame(t, c, ghost, w, h, 2)
	refBlur, err := c.BlurMosaic(ref, 5)
	require.NoError(t, err)
	defer refBlur.Close()
	noise, err := c.EstimateNoise(ref, refBlur)
	require.NoError(t, err)

	out, meanWeight, err := c.RobustMerge(ref, refBlur, alt, noise, NewMergeParams())
	require.NoError(t, err)
	defer out.Close()
	assert.Less(t, meanWeight, 1.0)

	data := out.DataFloat32()
	for y := 28; y < 36; y++ {
		for x := 28; x < 36; x++ {
			assert.InDelta(t, px[y*w+x], data[y*w+x], 1e-6, "pixel %d,%d", x, y)
		}
	}
	// far from the ghost the frames agree
	assert.Equal(t, px[2*w+2], data[2*w+2])
}

func TestRobustMergeSizeMismatch(t *testing.T) {
	c := DefaultCompute()
	ref := newTestFrame(t, c, constant(16, 16, 0), 16, 16, 2)
	alt := newTestFrame(t, c, constant(16, 8, 0), 16, 8, 2)
	_, _, err := c.RobustMerge(ref, ref.Mat, alt, 0.1, NewMergeParams())
	assert.ErrorIs(t, err, ErrFrameMismatch)
}
