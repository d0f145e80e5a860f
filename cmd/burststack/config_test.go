package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	bs "burststack/pkg/burststack"
)

func parseOptions(t *testing.T, args ...string) (*options, *pflag.FlagSet) {
	t.Helper()
	o := newOptions()
	fs := pflag.NewFlagSet("burststack", pflag.ContinueOnError)
	o.bindFlags(fs)
	require.NoError(t, fs.Parse(args))
	return o, fs
}

func TestApplyConfigPrecedence(t *testing.T) {
	t.Setenv("BURSTSTACK_CONFIG", "")
	t.Setenv("BURSTSTACK_ROBUSTNESS", "0.25")
	path := filepath.Join(t.TempDir(), "burststack.yaml")
	require.NoError(t, os.WriteFile(path, []byte("kernel-size: 3\ntile-size: 32\nreference-mode: fixed\n"), 0o644))

	o, fs := parseOptions(t, "--kernel-size", "7", "--config", path)
	require.NoError(t, applyConfig(fs, o.configPath))

	assert.Equal(t, 7, o.kernelSize, "flag beats file")
	assert.Equal(t, 32, o.tileSize)
	assert.Equal(t, "fixed", o.referenceMode)
	assert.Equal(t, 0.25, o.robustness)
	assert.Equal(t, bs.NewMergeParams().SearchRadius, o.searchRadius)
}

func TestApplyConfigFromEnvPath(t *testing.T) {
	path := filepath.Join(t.TempDir(), "burststack.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"workers": 3, "output": "out.tiff"}`), 0o644))
	t.Setenv("BURSTSTACK_CONFIG", path)

	o, fs := parseOptions(t)
	require.NoError(t, applyConfig(fs, o.configPath))
	assert.Equal(t, 3, o.workers)
	assert.Equal(t, "out.tiff", o.output)
}

func TestApplyConfigErrors(t *testing.T) {
	t.Setenv("BURSTSTACK_CONFIG", "")
	o, fs := parseOptions(t)
	assert.Error(t, applyConfig(fs, filepath.Join(t.TempDir(), "missing.yaml")))

	t.Setenv("BURSTSTACK_TILE_SIZE", "big")
	assert.Error(t, applyConfig(fs, o.configPath))
}

func TestMergeParams(t *testing.T) {
	o := newOptions()
	p, err := o.mergeParams()
	require.NoError(t, err)
	assert.Equal(t, bs.NewMergeParams(), p)

	o.referenceMode = "FIXED"
	o.referenceIndex = 2
	p, err = o.mergeParams()
	require.NoError(t, err)
	assert.Equal(t, bs.ReferenceFixed, p.Reference.Mode)

	o.referenceMode = "median"
	_, err = o.mergeParams()
	assert.Error(t, err)

	o = newOptions()
	o.kernelSize = 4
	_, err = o.mergeParams()
	assert.ErrorIs(t, err, bs.ErrInvalidParams)
}

func TestOutputFormat(t *testing.T) {
	tests := []struct {
		output, format, want string
		wantErr              bool
	}{
		{output: "merged.fits", want: "fits"},
		{output: "merged.TIF", want: "tiff"},
		{output: "merged.tiff", want: "tiff"},
		{output: "merged.out", want: "fits"},
		{output: "merged.fits", format: "tif", want: "tiff"},
		{output: "merged.tiff", format: "FIT", want: "fits"},
		{output: "merged.png", format: "png", wantErr: true},
	}
	for _, tt := range tests {
		o := &options{output: tt.output, format: tt.format}
		got, err := o.outputFormat()
		if tt.wantErr {
			assert.Error(t, err, tt.output)
			continue
		}
		require.NoError(t, err)
		assert.Equal(t, tt.want, got, "%s/%s", tt.output, tt.format)
	}
}

func TestMemoryBudget(t *testing.T) {
	assert.Zero(t, (&options{maxMemoryMB: 0}).memoryBudget())
	assert.Equal(t, int64(10<<20), (&options{maxMemoryMB: 10}).memoryBudget())
	assert.GreaterOrEqual(t, (&options{maxMemoryMB: -1}).memoryBudget(), int64(0))
}

func TestParseLogLevel(t *testing.T) {
	for in, want := range map[string]zerolog.Level{
		"":        zerolog.InfoLevel,
		"debug":   zerolog.DebugLevel,
		"WARNING": zerolog.WarnLevel,
		"error":   zerolog.ErrorLevel,
	} {
		got, err := parseLogLevel(in)
		require.NoError(t, err)
		assert.Equal(t, want, got, in)
	}
	_, err := parseLogLevel("trace")
	assert.Error(t, err)
}

func TestMedianMAD(t *testing.T) {
	median, mad := medianMAD([]float64{100, 2, 4, 1, 3})
	assert.Equal(t, 3.0, median)
	assert.InDelta(t, 1.4826, mad, 1e-12)

	median, _ = medianMAD(nil)
	assert.True(t, median != median, "empty input gives NaN")
}
