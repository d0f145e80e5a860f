package burststack

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGaussianTapsNormalized(t *testing.T) {
	taps := gaussianTaps(5)
	require.Len(t, taps, 5)
	var sum float32
	for _, v := range taps {
		sum += v
	}
	assert.InDelta(t, 1.0, sum, 1e-6)
	assert.Equal(t, taps[0], taps[4])
	assert.Greater(t, taps[2], taps[1])
}

func TestMosaicKernelSpacing(t *testing.T) {
	k, err := DefaultCompute().mosaicKernel(5, 2)
	require.NoError(t, err)
	defer k.Close()
	data := pixels(k)
	require.Len(t, data, 9)
	taps := gaussianTaps(5)
	for i, v := range data {
		if i%2 == 1 {
			assert.Zero(t, v, "tap %d", i)
		} else {
			assert.Equal(t, taps[i/2], v)
		}
	}
}

func TestBlurMosaicConstant(t *testing.T) {
	c := DefaultCompute()
	frame := newTestFrame(t, c, constant(32, 24, 0.25), 32, 24, 2)
	blurred, err := c.BlurMosaic(frame, 5)
	require.NoError(t, err)
	defer blurred.Close()
	assert.Equal(t, 24, blurred.Rows())
	assert.Equal(t, 32, blurred.Cols())
	for i, v := range pixels(blurred) {
		require.InDelta(t, 0.25, v, 1e-5, "pixel %d", i)
	}
}

func TestBlurMosaicKeepsColorSitesApart(t *testing.T) {
	c := DefaultCompute()
	const w, h = 32, 32
	// red sites bright, everything else dark
	px := make([]float32, w*h)
	for y := 0; y < h; y += 2 {
		for x := 0; x < w; x += 2 {
			px[y*w+x] = 1
		}
	}
	frame := newTestFrame(t, c, px, w, h, 2)
	blurred, err := c.BlurMosaic(frame, 5)
	require.NoError(t, err)
	defer blurred.Close()
	out := blurred.DataFloat32()
	assert.InDelta(t, 1.0, out[10*w+10], 1e-5)
	assert.InDelta(t, 0.0, out[10*w+11], 1e-5)
	assert.InDelta(t, 0.0, out[11*w+11], 1e-5)
}

func TestBlurMosaicRejectsEvenKernel(t *testing.T) {
	c := DefaultCompute()
	frame := newTestFrame(t, c, constant(16, 16, 0), 16, 16, 2)
	_, err := c.BlurMosaic(frame, 4)
	assert.ErrorIs(t, err, ErrInvalidParams)
}

func TestColorDifference(t *testing.T) {
	c := DefaultCompute()
	a := newTestFrame(t, c, constant(16, 12, 0.5), 16, 12, 2)
	b := newTestFrame(t, c, constant(16, 12, 0.125), 16, 12, 2)
	cells, err := c.ColorDifference(a.Mat, b.Mat, 2)
	require.NoError(t, err)
	defer cells.Close()
	assert.Equal(t, 6, cells.Rows())
	assert.Equal(t, 8, cells.Cols())
	for _, v := range pixels(cells) {
		assert.InDelta(t, 0.375, v, 1e-6)
	}

	other := newTestFrame(t, c, constant(8, 12, 0), 8, 12, 2)
	_, err = c.ColorDifference(a.Mat, other.Mat, 2)
	assert.ErrorIs(t, err, ErrFrameMismatch)
}

func TestEstimateNoise(t *testing.T) {
	c := DefaultCompute()
	flat := newTestFrame(t, c, constant(32, 32, 0.5), 32, 32, 2)
	flatBlur, err := c.BlurMosaic(flat, 5)
	require.NoError(t, err)
	defer flatBlur.Close()
	noise, err := c.EstimateNoise(flat, flatBlur)
	require.NoError(t, err)
	assert.InDelta(t, 0.0, noise, 1e-5)

	noisy := newTestFrame(t, c, texture(32, 32, 1), 32, 32, 2)
	noisyBlur, err := c.BlurMosaic(noisy, 5)
	require.NoError(t, err)
	defer noisyBlur.Close()
	noise, err = c.EstimateNoise(noisy, noisyBlur)
	require.NoError(t, err)
	assert.Greater(t, noise, 0.01)
}
