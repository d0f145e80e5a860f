package main

import (
	"fmt"
	"image/color"
	"os"
	"path/filepath"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	bs "burststack/pkg/burststack"
)

// writeFramePlots saves per-frame shift and merge weight charts as PNGs.
func writeFramePlots(dir string, res *bs.MergeResult) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create plot directory: %w", err)
	}

	meanPts := make(plotter.XYs, 0, len(res.Frames))
	maxPts := make(plotter.XYs, 0, len(res.Frames))
	weightPts := make(plotter.XYs, 0, len(res.Frames))
	for _, s := range res.Frames {
		x := float64(s.Index)
		meanPts = append(meanPts, plotter.XY{X: x, Y: s.MeanShift})
		maxPts = append(maxPts, plotter.XY{X: x, Y: s.MaxShift})
		weightPts = append(weightPts, plotter.XY{X: x, Y: s.MeanWeight})
	}

	pShift := plot.New()
	pShift.Title.Text = fmt.Sprintf("Tile Shift vs Reference (frame %d)", res.Reference)
	pShift.X.Label.Text = "Frame"
	pShift.Y.Label.Text = "Shift (px)"

	meanLine, err := plotter.NewLine(meanPts)
	if err != nil {
		return err
	}
	meanLine.Color = color.RGBA{R: 30, G: 120, B: 220, A: 255}
	meanLine.Width = vg.Points(1)
	pShift.Add(meanLine)
	pShift.Legend.Add("mean", meanLine)

	maxLine, err := plotter.NewLine(maxPts)
	if err != nil {
		return err
	}
	maxLine.Color = color.RGBA{R: 220, G: 60, B: 40, A: 255}
	maxLine.Width = vg.Points(1)
	pShift.Add(maxLine)
	pShift.Legend.Add("max", maxLine)

	pShift.Legend.Top = true
	pShift.Legend.Left = false
	pShift.Legend.XOffs = -10
	pShift.Legend.YOffs = -10

	pWeight := plot.New()
	pWeight.Title.Text = "Mean Merge Weight"
	pWeight.X.Label.Text = "Frame"
	pWeight.Y.Label.Text = "Weight"
	pWeight.Y.Min = 0
	pWeight.Y.Max = 1

	weightScatter, err := plotter.NewScatter(weightPts)
	if err != nil {
		return err
	}
	weightScatter.Color = color.RGBA{R: 40, G: 160, B: 80, A: 255}
	pWeight.Add(weightScatter)

	if err := pShift.Save(10*vg.Inch, 4*vg.Inch, filepath.Join(dir, "frame_shift.png")); err != nil {
		return fmt.Errorf("save shift plot: %w", err)
	}
	if err := pWeight.Save(10*vg.Inch, 4*vg.Inch, filepath.Join(dir, "frame_weight.png")); err != nil {
		return fmt.Errorf("save weight plot: %w", err)
	}
	return nil
}
