package main

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/pbnjay/memory"
	"github.com/rs/zerolog"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	bs "burststack/pkg/burststack"
)

const envPrefix = "BURSTSTACK"

// options collects every flag of the merge command. Values may also come
// from BURSTSTACK_* environment variables or a config file.
type options struct {
	configPath string
	logLevel   string

	output     string
	format     string
	preview    string
	overlayDir string
	plotDir    string

	tileSize       int
	minTileSize    int
	searchRadius   int
	searchBound    int
	kernelSize     int
	robustness     float64
	mosaicPeriod   int
	referenceMode  string
	referenceIndex int
	shortBurst     int

	workers     int
	maxMemoryMB int64
}

func newOptions() *options {
	p := bs.NewMergeParams()
	return &options{
		logLevel:       "info",
		output:         "merged.fits",
		tileSize:       p.TileSize,
		minTileSize:    p.MinTileSize,
		searchRadius:   p.SearchRadius,
		searchBound:    p.SearchBound,
		kernelSize:     p.KernelSize,
		robustness:     p.Robustness,
		mosaicPeriod:   p.MosaicPeriod,
		referenceMode:  p.Reference.Mode.String(),
		referenceIndex: p.Reference.Index,
		shortBurst:     p.Reference.ShortBurst,
		maxMemoryMB:    -1,
	}
}

func (o *options) bindFlags(fs *pflag.FlagSet) {
	fs.StringVar(&o.configPath, "config", o.configPath, "Config file (yaml, toml or json); BURSTSTACK_CONFIG also works")
	fs.StringVar(&o.logLevel, "log-level", o.logLevel, "Log level (debug, info, warn, error)")

	fs.StringVarP(&o.output, "output", "o", o.output, "Merged output path")
	fs.StringVar(&o.format, "format", o.format, "Output format (fits or tiff); inferred from --output when empty")
	fs.StringVar(&o.preview, "preview", o.preview, "Also write a JPEG preview of the merged frame")
	fs.StringVar(&o.overlayDir, "overlay-dir", o.overlayDir, "Write one alignment overlay JPEG per frame into this directory")
	fs.StringVar(&o.plotDir, "plot-dir", o.plotDir, "Write per-frame shift and weight charts into this directory")

	fs.IntVar(&o.tileSize, "tile-size", o.tileSize, "Finest-level tile size in pixels (0 = auto)")
	fs.IntVar(&o.minTileSize, "min-tile-size", o.minTileSize, "Smallest tile size on coarse levels")
	fs.IntVar(&o.searchRadius, "search-radius", o.searchRadius, "Per-level search distance in level pixels")
	fs.IntVar(&o.searchBound, "search-bound", o.searchBound, "Stop adding pyramid levels once the shorter side is at most this")
	fs.IntVar(&o.kernelSize, "kernel-size", o.kernelSize, "Tap count of the merge blur (odd)")
	fs.Float64Var(&o.robustness, "robustness", o.robustness, "Ghosting rejection strength in [0, 1]; 0 disables the robust merge")
	fs.IntVar(&o.mosaicPeriod, "mosaic-period", o.mosaicPeriod, "Color filter period of the sensor (2 for Bayer, 1 for mono)")
	fs.StringVar(&o.referenceMode, "reference-mode", o.referenceMode, "Reference selection (auto or fixed)")
	fs.IntVar(&o.referenceIndex, "reference-index", o.referenceIndex, "Reference frame for long bursts or fixed mode")
	fs.IntVar(&o.shortBurst, "short-burst", o.shortBurst, "Largest burst that uses its last frame as reference in auto mode")

	fs.IntVar(&o.workers, "workers", o.workers, "Concurrent kernel chunks and decodes (0 = all CPUs)")
	fs.Int64Var(&o.maxMemoryMB, "max-memory-mb", o.maxMemoryMB, "Allocation budget in MiB (-1 = half of physical memory, 0 = unlimited)")
}

// applyConfig fills every flag the user did not set on the command line
// from the environment or the config file.
func applyConfig(fs *pflag.FlagSet, configPath string) error {
	v := viper.New()
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.SetEnvPrefix(envPrefix)
	v.AutomaticEnv()
	if err := v.BindPFlags(fs); err != nil {
		return err
	}

	if configPath == "" {
		configPath = os.Getenv(envPrefix + "_CONFIG")
	}
	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return fmt.Errorf("read config %s: %w", configPath, err)
		}
	}

	var errs []error
	fs.VisitAll(func(f *pflag.Flag) {
		if f.Changed || f.Name == "config" || !v.IsSet(f.Name) {
			return
		}
		val := fmt.Sprintf("%v", v.Get(f.Name))
		if val == "" {
			return
		}
		if err := f.Value.Set(val); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", f.Name, err))
		}
	})
	return errors.Join(errs...)
}

// mergeParams converts the options into validated merge parameters.
func (o *options) mergeParams() (bs.MergeParams, error) {
	mode, err := bs.ParseReferenceMode(strings.ToLower(o.referenceMode))
	if err != nil {
		return bs.MergeParams{}, err
	}
	p := bs.MergeParams{
		TileSize:     o.tileSize,
		MinTileSize:  o.minTileSize,
		SearchRadius: o.searchRadius,
		SearchBound:  o.searchBound,
		KernelSize:   o.kernelSize,
		Robustness:   o.robustness,
		MosaicPeriod: o.mosaicPeriod,
		Reference: bs.ReferencePolicy{
			Mode:       mode,
			ShortBurst: o.shortBurst,
			Index:      o.referenceIndex,
		},
	}
	if err := p.Validate(); err != nil {
		return bs.MergeParams{}, err
	}
	return p, nil
}

// memoryBudget resolves --max-memory-mb to bytes.
func (o *options) memoryBudget() int64 {
	switch {
	case o.maxMemoryMB == 0:
		return 0
	case o.maxMemoryMB > 0:
		return o.maxMemoryMB << 20
	}
	total := memory.TotalMemory()
	if total == 0 {
		return 0
	}
	return int64(total / 2)
}

// outputFormat returns "fits" or "tiff".
func (o *options) outputFormat() (string, error) {
	format := strings.ToLower(o.format)
	if format == "" {
		lower := strings.ToLower(o.output)
		switch {
		case strings.HasSuffix(lower, ".tif"), strings.HasSuffix(lower, ".tiff"):
			format = "tiff"
		default:
			format = "fits"
		}
	}
	switch format {
	case "fits", "fit":
		return "fits", nil
	case "tiff", "tif":
		return "tiff", nil
	}
	return "", fmt.Errorf("unknown output format %q (expected fits or tiff)", o.format)
}

func parseLogLevel(level string) (zerolog.Level, error) {
	switch strings.ToLower(level) {
	case "debug":
		return zerolog.DebugLevel, nil
	case "info", "":
		return zerolog.InfoLevel, nil
	case "warn", "warning":
		return zerolog.WarnLevel, nil
	case "error":
		return zerolog.ErrorLevel, nil
	}
	return zerolog.NoLevel, fmt.Errorf("unknown log level %q (expected debug, info, warn, or error)", level)
}
