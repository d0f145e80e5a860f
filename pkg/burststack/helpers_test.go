package burststack

import (
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/require"
)

// texture returns a reproducible random grid whose samples are multiples
// of 1/65536, so sums of a few frames stay exact in float32.
func texture(width, height int, seed uint64) []float32 {
	rng := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	px := make([]float32, width*height)
	for i := range px {
		px[i] = float32(rng.IntN(32768)) / 65536
	}
	return px
}

// shifted returns src displaced by (sx, sy): out(x, y) = src(x-sx, y-sy),
// reading clamped coordinates outside the grid.
func shifted(src []float32, width, height, sx, sy int) []float32 {
	out := make([]float32, len(src))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			out[y*width+x] = src[clampIndex(y-sy, height)*width+clampIndex(x-sx, width)]
		}
	}
	return out
}

func newTestFrame(t *testing.T, c *Compute, px []float32, width, height, period int) Frame {
	t.Helper()
	f, err := c.NewFrame(px, width, height, period)
	require.NoError(t, err)
	t.Cleanup(f.Close)
	return f
}

func constant(width, height int, v float32) []float32 {
	px := make([]float32, width*height)
	for i := range px {
		px[i] = v
	}
	return px
}

func pixels(m Mat) []float32 {
	return append([]float32(nil), m.DataFloat32()[:m.Rows()*m.Cols()]...)
}
