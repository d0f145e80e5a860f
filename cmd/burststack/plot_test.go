package main

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	bs "burststack/pkg/burststack"
)

func TestWriteFramePlots(t *testing.T) {
	res := &bs.MergeResult{
		Reference: 2,
		Frames: []bs.FrameStats{
			{Index: 0, MeanShift: 1.5, MaxShift: 3, MeanWeight: 0.8},
			{Index: 1, MeanShift: 0.5, MaxShift: 2, MeanWeight: 0.95},
			{Index: 2, Reference: true, MeanWeight: 1},
		},
	}
	dir := filepath.Join(t.TempDir(), "plots")
	require.NoError(t, writeFramePlots(dir, res))
	assert.FileExists(t, filepath.Join(dir, "frame_shift.png"))
	assert.FileExists(t, filepath.Join(dir, "frame_weight.png"))
}
