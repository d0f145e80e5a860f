package main

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"os/signal"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"gonum.org/v1/gonum/stat"

	bs "burststack/pkg/burststack"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	if err := newRootCommand().ExecuteContext(ctx); err != nil {
		if !errors.Is(err, pflag.ErrHelp) {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	opts := newOptions()
	cmd := &cobra.Command{
		Use:   "burststack [flags] FRAME FRAME...",
		Short: "Align and merge a burst of raw captures into one low-noise frame",
		Long: `burststack aligns every frame of a burst to a reference frame with a
coarse-to-fine tile search, rejects misaligned or moving content with a
noise-aware robust merge and averages the result.

Frames may be FITS, 16-bit TIFF or any image format the build can decode.`,
		Args:          cobra.MinimumNArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return applyConfig(cmd.Flags(), opts.configPath)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), opts, args)
		},
	}
	opts.bindFlags(cmd.Flags())
	return cmd
}

var (
	reportReference = color.New(color.FgGreen).SprintFunc()
	reportLowWeight = color.New(color.FgYellow).SprintFunc()
)

// lowWeight flags frames the robust merge mostly rejected.
const lowWeight = 0.5

func newLogger(level zerolog.Level) zerolog.Logger {
	consoleWriter := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.TimeOnly}
	return zerolog.New(consoleWriter).Level(level).With().Timestamp().Logger()
}

func run(ctx context.Context, opts *options, paths []string) error {
	level, err := parseLogLevel(opts.logLevel)
	if err != nil {
		return err
	}
	logger := newLogger(level).With().Str("run", uuid.NewString()).Logger()

	params, err := opts.mergeParams()
	if err != nil {
		return err
	}
	format, err := opts.outputFormat()
	if err != nil {
		return err
	}

	blobs := make([][]byte, len(paths))
	for i, path := range paths {
		if blobs[i], err = os.ReadFile(path); err != nil {
			return fmt.Errorf("reading frame %d: %w", i, err)
		}
	}
	logger.Info().Int("frames", len(paths)).Str("first", paths[0]).Msg("loading burst")

	compute := bs.NewCompute(opts.workers, opts.memoryBudget(), logger)
	stacker := bs.NewStacker(compute, params)
	stacker.KeepFields = opts.overlayDir != ""

	start := time.Now()
	res, err := stacker.MergeBlobs(ctx, blobs, decoderFor(paths[0]))
	if err != nil {
		var fe *bs.FrameError
		if errors.As(err, &fe) && fe.Index < len(paths) {
			return fmt.Errorf("%s: %w", paths[fe.Index], err)
		}
		return err
	}
	defer res.Close()
	elapsed := time.Since(start)

	switch format {
	case "tiff":
		err = bs.WriteTIFF16File(opts.output, res.Merged)
	default:
		err = bs.WriteFITSFile(opts.output, res.Merged, bs.FitsHeader{
			"NCOMBINE": fmt.Sprint(len(paths)),
			"REFFRAME": filepath.Base(paths[res.Reference]),
		})
	}
	if err != nil {
		return err
	}
	logger.Info().Str("path", opts.output).Str("format", format).Msg("merged frame written")

	if opts.preview != "" {
		if err := writePreview(opts.preview, res.Merged); err != nil {
			return err
		}
		logger.Info().Str("path", opts.preview).Msg("preview written")
	}
	if opts.overlayDir != "" {
		if err := writeOverlays(opts.overlayDir, res, paths); err != nil {
			return err
		}
	}

	if opts.plotDir != "" {
		if err := writeFramePlots(opts.plotDir, res); err != nil {
			return err
		}
		logger.Info().Str("dir", opts.plotDir).Msg("frame charts written")
	}

	printReport(res, paths, elapsed)
	return nil
}

// decoderFor picks the frame decoder from the first frame's extension.
func decoderFor(path string) bs.RawDecoder {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".fits", ".fit", ".fts":
		return bs.FITSDecoder{}
	case ".tif", ".tiff":
		return bs.TIFFDecoder{}
	}
	return bs.RawDecoderFunc(decodeImage)
}

func writePreview(path string, merged bs.Frame) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create preview file: %w", err)
	}
	if err := bs.WritePreviewJPEG(f, merged); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func writeOverlays(dir string, res *bs.MergeResult, paths []string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create overlay directory: %w", err)
	}
	for i, field := range res.Fields {
		if field == nil {
			continue
		}
		name := strings.TrimSuffix(filepath.Base(paths[i]), filepath.Ext(paths[i])) + "_align.jpg"
		if err := bs.RenderAlignmentOverlay(res, i, filepath.Join(dir, name)); err != nil {
			return fmt.Errorf("overlay for frame %d: %w", i, err)
		}
	}
	return nil
}

func printReport(res *bs.MergeResult, paths []string, elapsed time.Duration) {
	fmt.Println()
	fmt.Printf("=== Burst Merge Results (%.1fs) ===\n", elapsed.Seconds())
	fmt.Printf("  Frame size:      %d x %d\n", res.Merged.Width(), res.Merged.Height())
	fmt.Printf("  Frames merged:   %d\n", len(res.Frames))
	fmt.Printf("  Reference:       %d (%s)\n", res.Reference, filepath.Base(paths[res.Reference]))
	fmt.Printf("  Pyramid levels:  %d (tiles %v)\n", res.Schedule.Levels(), res.Schedule.TileSizes)
	fmt.Printf("  Noise estimate:  %.6f\n", res.Noise)

	var shifts, weights []float64
	for _, s := range res.Frames {
		if s.Reference {
			continue
		}
		shifts = append(shifts, s.MeanShift)
		weights = append(weights, s.MeanWeight)
	}
	if len(shifts) > 0 {
		shiftMedian, shiftMAD := medianMAD(shifts)
		weightMedian, weightMAD := medianMAD(weights)
		fmt.Printf("  Shift (median):  %.3f +/- %.3f px\n", shiftMedian, shiftMAD)
		fmt.Printf("  Weight (median): %.3f +/- %.3f\n", weightMedian, weightMAD)
	}
	fmt.Println("  ---")
	for _, s := range res.Frames {
		line := fmt.Sprintf("  %-20s shift=%.2f/%.2f px  weight=%.3f  %s",
			filepath.Base(paths[s.Index]), s.MeanShift, s.MaxShift, s.MeanWeight,
			s.Duration.Round(time.Millisecond))
		switch {
		case s.Reference:
			line = reportReference(line + "  [reference]")
		case s.MeanWeight < lowWeight:
			line = reportLowWeight(line)
		}
		fmt.Println(line)
	}
	fmt.Println("==============================")
}

// medianMAD returns the median and the normal-consistent median absolute
// deviation of values. Even-length inputs use the lower median.
func medianMAD(values []float64) (float64, float64) {
	if len(values) == 0 {
		return math.NaN(), math.NaN()
	}
	sorted := slices.Clone(values)
	slices.Sort(sorted)
	median := stat.Quantile(0.5, stat.Empirical, sorted, nil)

	deviations := make([]float64, len(sorted))
	for i, v := range sorted {
		deviations[i] = math.Abs(v - median)
	}
	slices.Sort(deviations)
	return median, 1.4826 * stat.Quantile(0.5, stat.Empirical, deviations, nil)
}
