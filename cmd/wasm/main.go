//go:build js && wasm

package main

import (
	"bytes"
	"context"
	"syscall/js"

	"github.com/rs/zerolog"
	"gonum.org/v1/gonum/stat"

	bs "burststack/pkg/burststack"
)

var lastResult *bs.MergeResult

func main() {
	js.Global().Set("mergeFITSBurst", js.FuncOf(mergeFITSBurst))
	js.Global().Set("renderOverlay", js.FuncOf(renderOverlay))
	js.Global().Set("mergedFITS", js.FuncOf(mergedFITS))
	js.Global().Set("mergedPreview", js.FuncOf(mergedPreview))
	select {} // block forever
}

// mergeFITSBurst(files, options) aligns and merges an array of FITS file
// byte arrays. options may set robustness, tileSize, mosaicPeriod,
// searchRadius and referenceIndex.
func mergeFITSBurst(this js.Value, args []js.Value) interface{} {
	if len(args) < 1 || args[0].Type() != js.TypeObject {
		return errorResult("usage: mergeFITSBurst(files, options)")
	}

	jsFiles := args[0]
	count := jsFiles.Get("length").Int()
	blobs := make([][]byte, count)
	for i := range blobs {
		jsBytes := jsFiles.Index(i)
		blobs[i] = make([]byte, jsBytes.Get("length").Int())
		js.CopyBytesToGo(blobs[i], jsBytes)
	}

	params := bs.NewMergeParams()
	if len(args) >= 2 && args[1].Type() == js.TypeObject {
		opts := args[1]
		if v := opts.Get("robustness"); v.Type() == js.TypeNumber {
			params.Robustness = v.Float()
		}
		if v := opts.Get("tileSize"); v.Type() == js.TypeNumber {
			params.TileSize = v.Int()
		}
		if v := opts.Get("mosaicPeriod"); v.Type() == js.TypeNumber {
			params.MosaicPeriod = v.Int()
		}
		if v := opts.Get("searchRadius"); v.Type() == js.TypeNumber {
			params.SearchRadius = v.Int()
		}
		if v := opts.Get("referenceIndex"); v.Type() == js.TypeNumber {
			params.Reference.Mode = bs.ReferenceFixed
			params.Reference.Index = v.Int()
		}
	}

	if lastResult != nil {
		lastResult.Close()
		lastResult = nil
	}
	// wasm runs on a single thread.
	stacker := bs.NewStacker(bs.NewCompute(1, 0, zerolog.Nop()), params)
	stacker.KeepFields = true
	res, err := stacker.MergeBlobs(context.Background(), blobs, bs.FITSDecoder{})
	if err != nil {
		return errorResult("merge error: " + err.Error())
	}
	lastResult = res

	shifts := make([]float64, 0, len(res.Frames))
	weights := make([]float64, 0, len(res.Frames))
	jsFrames := make([]interface{}, len(res.Frames))
	for i, s := range res.Frames {
		if !s.Reference {
			shifts = append(shifts, s.MeanShift)
			weights = append(weights, s.MeanWeight)
		}
		jsFrames[i] = map[string]interface{}{
			"index":      s.Index,
			"reference":  s.Reference,
			"meanShift":  s.MeanShift,
			"maxShift":   s.MaxShift,
			"meanWeight": s.MeanWeight,
			"millis":     s.Duration.Milliseconds(),
		}
	}
	meanShift, stdShift := stat.MeanStdDev(shifts, nil)
	meanWeight, stdWeight := stat.MeanStdDev(weights, nil)

	return js.ValueOf(map[string]interface{}{
		"width":        res.Merged.Width(),
		"height":       res.Merged.Height(),
		"reference":    res.Reference,
		"noise":        res.Noise,
		"levels":       res.Schedule.Levels(),
		"meanShift":    meanShift,
		"stddevShift":  stdShift,
		"meanWeight":   meanWeight,
		"stddevWeight": stdWeight,
		"frames":       jsFrames,
	})
}

// renderOverlay(frameIndex) returns the alignment overlay JPEG of one frame
// of the last merge.
func renderOverlay(this js.Value, args []js.Value) interface{} {
	if lastResult == nil || len(args) < 1 {
		return js.Null()
	}
	jpegBytes, err := bs.RenderAlignmentOverlayBytes(lastResult, args[0].Int())
	if err != nil {
		return js.Null()
	}
	return toUint8Array(jpegBytes)
}

func mergedFITS(this js.Value, args []js.Value) interface{} {
	if lastResult == nil {
		return js.Null()
	}
	var buf bytes.Buffer
	if err := bs.WriteFITS(&buf, lastResult.Merged, bs.FitsHeader{"CREATOR": "burststack"}); err != nil {
		return js.Null()
	}
	return toUint8Array(buf.Bytes())
}

func mergedPreview(this js.Value, args []js.Value) interface{} {
	if lastResult == nil {
		return js.Null()
	}
	jpegBytes, err := bs.PreviewJPEGBytes(lastResult.Merged)
	if err != nil {
		return js.Null()
	}
	return toUint8Array(jpegBytes)
}

func toUint8Array(b []byte) js.Value {
	uint8Array := js.Global().Get("Uint8Array").New(len(b))
	js.CopyBytesToJS(uint8Array, b)
	return uint8Array
}

func errorResult(msg string) interface{} {
	return js.ValueOf(map[string]interface{}{
		"error": msg,
	})
}
