// Package pipeline holds the pure, model-type-aware stages that bracket raw
// backend execution: preprocessing, postprocessing, confidence derivation
// and optional explanation.
package pipeline

import (
	"math"

	"inferd/pkg/types"
)

// Buffers use an interleaved [h][w][c] layout throughout; concatenating a
// multi-buffer input stacks the per-buffer channels.

// CheckShape verifies at admission time that the input's dimensions can
// match the model's declared input shape after preprocessing, without doing
// any of the work.
func CheckShape(input types.InputData, inputShape []int) error {
	w, h, c, err := effectiveDims(input)
	if err != nil {
		return err
	}
	if cfg := input.Preprocess; cfg != nil {
		if err := validateFilters(cfg.Filters); err != nil {
			return err
		}
		if cfg.Crop != nil {
			if cfg.Crop.W <= 0 || cfg.Crop.H <= 0 || cfg.Crop.X < 0 || cfg.Crop.Y < 0 ||
				cfg.Crop.X+cfg.Crop.W > w || cfg.Crop.Y+cfg.Crop.H > h {
				return errPreprocessf("crop rect %+v out of bounds for %dx%d", *cfg.Crop, w, h)
			}
			w, h = cfg.Crop.W, cfg.Crop.H
		}
		if len(cfg.ResizeTo) > 0 {
			tw, th, err := resizeTarget(cfg.ResizeTo)
			if err != nil {
				return err
			}
			w, h = tw, th
		}
	}
	want := flatLen(inputShape)
	if want <= 0 {
		return errPreprocessf("model declares invalid input shape %v", inputShape)
	}
	if w*h*c != want {
		return errPreprocessf("input resolves to %dx%dx%d (%d elements) but model expects shape %v (%d elements)",
			w, h, c, w*h*c, inputShape, want)
	}
	return nil
}

// Preprocess converts InputData into a flat buffer matching inputShape.
// Step order is fixed: concatenate, z-score normalize, intensity window,
// named filters, crop/resize.
func Preprocess(input types.InputData, inputShape []int) ([]float32, error) {
	w, h, c, err := effectiveDims(input)
	if err != nil {
		return nil, err
	}
	buf := concatenate(input, w, h)

	cfg := input.Preprocess
	if cfg != nil && cfg.Normalize {
		zscore(buf)
	}
	if cfg != nil && cfg.Window != nil {
		if err := window(buf, *cfg.Window); err != nil {
			return nil, err
		}
	}
	if cfg != nil && len(cfg.Filters) > 0 {
		buf, err = applyFilters(buf, w, h, c, cfg.Filters)
		if err != nil {
			return nil, err
		}
	}
	if cfg != nil && cfg.Crop != nil {
		buf, w, h, err = crop(buf, w, h, c, *cfg.Crop)
		if err != nil {
			return nil, err
		}
	}
	if cfg != nil && len(cfg.ResizeTo) > 0 {
		tw, th, err := resizeTarget(cfg.ResizeTo)
		if err != nil {
			return nil, err
		}
		buf = resizeBilinear(buf, w, h, c, tw, th)
		w, h = tw, th
	}

	if want := flatLen(inputShape); len(buf) != want {
		return nil, errPreprocessf("preprocessed buffer has %d elements but model expects shape %v (%d elements)",
			len(buf), inputShape, want)
	}
	return buf, nil
}

// effectiveDims resolves the input's per-buffer dims and validates buffer
// lengths. Channels multiply by the buffer count on concatenation.
func effectiveDims(input types.InputData) (int, int, int, error) {
	if len(input.Buffers) == 0 {
		return 0, 0, 0, errPreprocessf("no input buffers")
	}
	if input.Kind == types.InputSingle && len(input.Buffers) != 1 {
		return 0, 0, 0, errPreprocessf("single input carries %d buffers", len(input.Buffers))
	}
	w, h, c := 1, 1, 1
	switch len(input.Dims) {
	case 0:
		return 0, 0, 0, errPreprocessf("missing input dimensions")
	case 1:
		w = input.Dims[0]
	case 2:
		w, h = input.Dims[0], input.Dims[1]
	default:
		w, h, c = input.Dims[0], input.Dims[1], input.Dims[2]
		for _, d := range input.Dims[3:] {
			c *= d
		}
	}
	if w <= 0 || h <= 0 || c <= 0 {
		return 0, 0, 0, errPreprocessf("non-positive input dimensions %v", input.Dims)
	}
	per := w * h * c
	for i, b := range input.Buffers {
		if len(b) != per {
			return 0, 0, 0, errPreprocessf("buffer %d has %d elements, dims %v require %d", i, len(b), input.Dims, per)
		}
	}
	return w, h, c * len(input.Buffers), nil
}

// concatenate stacks the buffers along the channel axis in interleaved
// layout. Single-buffer input is copied so later steps never mutate the
// caller's data.
func concatenate(input types.InputData, w, h int) []float32 {
	n := len(input.Buffers)
	if n == 1 {
		out := make([]float32, len(input.Buffers[0]))
		copy(out, input.Buffers[0])
		return out
	}
	per := len(input.Buffers[0])
	c := per / (w * h)
	out := make([]float32, per*n)
	for b, buf := range input.Buffers {
		for p := 0; p < w*h; p++ {
			for ci := 0; ci < c; ci++ {
				out[p*(c*n)+b*c+ci] = buf[p*c+ci]
			}
		}
	}
	return out
}

// zscore subtracts the buffer mean and divides by its standard deviation.
// A constant buffer is only mean-shifted.
func zscore(buf []float32) {
	if len(buf) == 0 {
		return
	}
	var sum float64
	for _, v := range buf {
		sum += float64(v)
	}
	mean := sum / float64(len(buf))
	var varSum float64
	for _, v := range buf {
		d := float64(v) - mean
		varSum += d * d
	}
	std := math.Sqrt(varSum / float64(len(buf)))
	for i, v := range buf {
		if std > 0 {
			buf[i] = float32((float64(v) - mean) / std)
		} else {
			buf[i] = float32(float64(v) - mean)
		}
	}
}

// window clamps to [center-width/2, center+width/2] and rescales to [0,1].
func window(buf []float32, win types.IntensityWindow) error {
	if win.Width <= 0 {
		return errPreprocessf("intensity window width must be positive, got %v", win.Width)
	}
	lo := win.Center - win.Width/2
	hi := win.Center + win.Width/2
	for i, v := range buf {
		f := float64(v)
		if f < lo {
			f = lo
		} else if f > hi {
			f = hi
		}
		buf[i] = float32((f - lo) / win.Width)
	}
	return nil
}

func crop(buf []float32, w, h, c int, r types.CropRect) ([]float32, int, int, error) {
	if r.W <= 0 || r.H <= 0 || r.X < 0 || r.Y < 0 || r.X+r.W > w || r.Y+r.H > h {
		return nil, 0, 0, errPreprocessf("crop rect %+v out of bounds for %dx%d", r, w, h)
	}
	out := make([]float32, r.W*r.H*c)
	for y := 0; y < r.H; y++ {
		for x := 0; x < r.W; x++ {
			for ci := 0; ci < c; ci++ {
				out[(y*r.W+x)*c+ci] = buf[((y+r.Y)*w+(x+r.X))*c+ci]
			}
		}
	}
	return out, r.W, r.H, nil
}

// resizeBilinear resamples each channel plane to tw x th.
func resizeBilinear(buf []float32, w, h, c, tw, th int) []float32 {
	out := make([]float32, tw*th*c)
	sx := float64(w) / float64(tw)
	sy := float64(h) / float64(th)
	for y := 0; y < th; y++ {
		fy := (float64(y)+0.5)*sy - 0.5
		y0 := int(math.Floor(fy))
		dy := fy - float64(y0)
		y1 := y0 + 1
		y0, y1 = clampIdx(y0, h), clampIdx(y1, h)
		for x := 0; x < tw; x++ {
			fx := (float64(x)+0.5)*sx - 0.5
			x0 := int(math.Floor(fx))
			dx := fx - float64(x0)
			x1 := x0 + 1
			x0, x1 = clampIdx(x0, w), clampIdx(x1, w)
			for ci := 0; ci < c; ci++ {
				v00 := float64(buf[(y0*w+x0)*c+ci])
				v01 := float64(buf[(y0*w+x1)*c+ci])
				v10 := float64(buf[(y1*w+x0)*c+ci])
				v11 := float64(buf[(y1*w+x1)*c+ci])
				top := v00 + (v01-v00)*dx
				bot := v10 + (v11-v10)*dx
				out[(y*tw+x)*c+ci] = float32(top + (bot-top)*dy)
			}
		}
	}
	return out
}

func clampIdx(i, n int) int {
	if i < 0 {
		return 0
	}
	if i >= n {
		return n - 1
	}
	return i
}

func resizeTarget(dims []int) (int, int, error) {
	if len(dims) < 2 || dims[0] <= 0 || dims[1] <= 0 {
		return 0, 0, errPreprocessf("resize target %v must carry positive width and height", dims)
	}
	return dims[0], dims[1], nil
}

func flatLen(shape []int) int {
	if len(shape) == 0 {
		return 0
	}
	n := 1
	for _, d := range shape {
		if d <= 0 {
			return 0
		}
		n *= d
	}
	return n
}
