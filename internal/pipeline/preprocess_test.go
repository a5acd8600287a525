package pipeline

import (
	"math"
	"testing"

	"inferd/pkg/types"
)

func singleInput(dims []int, buf []float32, cfg *types.PreprocessConfig) types.InputData {
	return types.InputData{
		Kind:       types.InputSingle,
		Buffers:    [][]float32{buf},
		Dims:       dims,
		Preprocess: cfg,
	}
}

func TestPreprocessCopiesWithoutConfig(t *testing.T) {
	in := singleInput([]int{2, 2}, []float32{1, 2, 3, 4}, nil)
	out, err := Preprocess(in, []int{2, 2})
	if err != nil {
		t.Fatalf("preprocess: %v", err)
	}
	if len(out) != 4 {
		t.Fatalf("expected 4 elements, got %d", len(out))
	}
	out[0] = 99
	if in.Buffers[0][0] != 1 {
		t.Fatalf("preprocess must not alias the caller's buffer")
	}
}

func TestPreprocessZScoreNormalizes(t *testing.T) {
	in := singleInput([]int{4, 1}, []float32{2, 4, 6, 8}, &types.PreprocessConfig{Normalize: true})
	out, err := Preprocess(in, []int{4, 1})
	if err != nil {
		t.Fatalf("preprocess: %v", err)
	}
	var sum, sqSum float64
	for _, v := range out {
		sum += float64(v)
		sqSum += float64(v) * float64(v)
	}
	mean := sum / float64(len(out))
	std := math.Sqrt(sqSum/float64(len(out)) - mean*mean)
	if math.Abs(mean) > 1e-6 {
		t.Fatalf("expected zero mean, got %v", mean)
	}
	if math.Abs(std-1) > 1e-6 {
		t.Fatalf("expected unit std, got %v", std)
	}
}

func TestPreprocessConstantBufferOnlyMeanShifts(t *testing.T) {
	in := singleInput([]int{3, 1}, []float32{5, 5, 5}, &types.PreprocessConfig{Normalize: true})
	out, err := Preprocess(in, []int{3, 1})
	if err != nil {
		t.Fatalf("preprocess: %v", err)
	}
	for _, v := range out {
		if v != 0 {
			t.Fatalf("constant buffer should mean-shift to zero, got %v", v)
		}
	}
}

func TestPreprocessWindowClampsAndRescales(t *testing.T) {
	in := singleInput([]int{4, 1}, []float32{-100, 0, 100, 300}, &types.PreprocessConfig{
		Window: &types.IntensityWindow{Center: 100, Width: 200},
	})
	out, err := Preprocess(in, []int{4, 1})
	if err != nil {
		t.Fatalf("preprocess: %v", err)
	}
	want := []float32{0, 0, 0.5, 1}
	for i, v := range out {
		if math.Abs(float64(v-want[i])) > 1e-6 {
			t.Fatalf("element %d: got %v want %v", i, v, want[i])
		}
	}
}

func TestPreprocessWindowRejectsNonPositiveWidth(t *testing.T) {
	in := singleInput([]int{2, 1}, []float32{1, 2}, &types.PreprocessConfig{
		Window: &types.IntensityWindow{Center: 0, Width: 0},
	})
	if _, err := Preprocess(in, []int{2, 1}); !IsPreprocess(err) {
		t.Fatalf("expected preprocess error, got %v", err)
	}
}

func TestPreprocessCropSelectsSubRect(t *testing.T) {
	// 4x4 grid with values equal to their linear index.
	buf := make([]float32, 16)
	for i := range buf {
		buf[i] = float32(i)
	}
	in := singleInput([]int{4, 4}, buf, &types.PreprocessConfig{
		Crop: &types.CropRect{X: 1, Y: 1, W: 2, H: 2},
	})
	out, err := Preprocess(in, []int{2, 2})
	if err != nil {
		t.Fatalf("preprocess: %v", err)
	}
	want := []float32{5, 6, 9, 10}
	for i, v := range out {
		if v != want[i] {
			t.Fatalf("element %d: got %v want %v", i, v, want[i])
		}
	}
}

func TestPreprocessCropOutOfBounds(t *testing.T) {
	in := singleInput([]int{2, 2}, []float32{1, 2, 3, 4}, &types.PreprocessConfig{
		Crop: &types.CropRect{X: 1, Y: 1, W: 2, H: 2},
	})
	if _, err := Preprocess(in, []int{2, 2}); !IsPreprocess(err) {
		t.Fatalf("expected preprocess error, got %v", err)
	}
}

func TestPreprocessResizeSameSizeIsIdentity(t *testing.T) {
	buf := []float32{1, 2, 3, 4}
	in := singleInput([]int{2, 2}, buf, &types.PreprocessConfig{ResizeTo: []int{2, 2}})
	out, err := Preprocess(in, []int{2, 2})
	if err != nil {
		t.Fatalf("preprocess: %v", err)
	}
	for i, v := range out {
		if math.Abs(float64(v-buf[i])) > 1e-6 {
			t.Fatalf("element %d: got %v want %v", i, v, buf[i])
		}
	}
}

func TestPreprocessResizeUpsamplesConstantPlane(t *testing.T) {
	in := singleInput([]int{2, 2}, []float32{7, 7, 7, 7}, &types.PreprocessConfig{ResizeTo: []int{4, 4}})
	out, err := Preprocess(in, []int{4, 4})
	if err != nil {
		t.Fatalf("preprocess: %v", err)
	}
	if len(out) != 16 {
		t.Fatalf("expected 16 elements, got %d", len(out))
	}
	for i, v := range out {
		if math.Abs(float64(v-7)) > 1e-6 {
			t.Fatalf("element %d: constant plane should stay constant, got %v", i, v)
		}
	}
}

func TestPreprocessSmoothFilterAveragesImpulse(t *testing.T) {
	// 3x3 impulse at the center; with replicated borders every output
	// position samples the impulse exactly once.
	in := singleInput([]int{3, 3}, []float32{0, 0, 0, 0, 1, 0, 0, 0, 0}, &types.PreprocessConfig{
		Filters: []string{"smooth"},
	})
	out, err := Preprocess(in, []int{3, 3})
	if err != nil {
		t.Fatalf("preprocess: %v", err)
	}
	for i, v := range out {
		if math.Abs(float64(v)-1.0/9) > 1e-6 {
			t.Fatalf("element %d: got %v want %v", i, v, 1.0/9)
		}
	}
}

func TestPreprocessSharpenFilterKeepsConstantPlane(t *testing.T) {
	in := singleInput([]int{3, 3}, []float32{4, 4, 4, 4, 4, 4, 4, 4, 4}, &types.PreprocessConfig{
		Filters: []string{"sharpen"},
	})
	out, err := Preprocess(in, []int{3, 3})
	if err != nil {
		t.Fatalf("preprocess: %v", err)
	}
	for i, v := range out {
		if math.Abs(float64(v)-4) > 1e-6 {
			t.Fatalf("element %d: constant plane should pass through sharpen, got %v", i, v)
		}
	}
}

func TestPreprocessEdgeFilterZeroesConstantPlane(t *testing.T) {
	in := singleInput([]int{3, 3}, []float32{4, 4, 4, 4, 4, 4, 4, 4, 4}, &types.PreprocessConfig{
		Filters: []string{"edge"},
	})
	out, err := Preprocess(in, []int{3, 3})
	if err != nil {
		t.Fatalf("preprocess: %v", err)
	}
	for i, v := range out {
		if math.Abs(float64(v)) > 1e-6 {
			t.Fatalf("element %d: constant plane has no edges, got %v", i, v)
		}
	}
}

func TestPreprocessRejectsUnknownFilter(t *testing.T) {
	in := singleInput([]int{2, 2}, []float32{1, 2, 3, 4}, &types.PreprocessConfig{
		Filters: []string{"emboss"},
	})
	if _, err := Preprocess(in, []int{2, 2}); !IsPreprocess(err) {
		t.Fatalf("expected preprocess error, got %v", err)
	}
}

func TestCheckShapeRejectsUnknownFilter(t *testing.T) {
	in := singleInput([]int{2, 2}, make([]float32, 4), &types.PreprocessConfig{
		Filters: []string{"emboss"},
	})
	if err := CheckShape(in, []int{2, 2}); !IsPreprocess(err) {
		t.Fatalf("expected preprocess error, got %v", err)
	}
}

func TestPreprocessConcatenatesSeriesAlongChannels(t *testing.T) {
	in := types.InputData{
		Kind: types.InputSeries,
		Buffers: [][]float32{
			{1, 2, 3, 4},
			{10, 20, 30, 40},
		},
		Dims: []int{2, 2, 1},
	}
	out, err := Preprocess(in, []int{2, 2, 2})
	if err != nil {
		t.Fatalf("preprocess: %v", err)
	}
	// Interleaved layout: per pixel, channel 0 from buffer 0, channel 1
	// from buffer 1.
	for p := 0; p < 4; p++ {
		if out[p*2] != in.Buffers[0][p] || out[p*2+1] != in.Buffers[1][p] {
			t.Fatalf("pixel %d: got (%v,%v) want (%v,%v)",
				p, out[p*2], out[p*2+1], in.Buffers[0][p], in.Buffers[1][p])
		}
	}
}

func TestPreprocessRejectsBufferLengthMismatch(t *testing.T) {
	in := singleInput([]int{2, 2}, []float32{1, 2, 3}, nil)
	if _, err := Preprocess(in, []int{2, 2}); !IsPreprocess(err) {
		t.Fatalf("expected preprocess error, got %v", err)
	}
}

func TestPreprocessRejectsSingleKindWithMultipleBuffers(t *testing.T) {
	in := types.InputData{
		Kind:    types.InputSingle,
		Buffers: [][]float32{{1}, {2}},
		Dims:    []int{1},
	}
	if _, err := Preprocess(in, []int{1}); !IsPreprocess(err) {
		t.Fatalf("expected preprocess error, got %v", err)
	}
}

func TestCheckShapeAcceptsResizedInput(t *testing.T) {
	in := singleInput([]int{8, 8}, make([]float32, 64), &types.PreprocessConfig{ResizeTo: []int{4, 4}})
	if err := CheckShape(in, []int{4, 4}); err != nil {
		t.Fatalf("check shape: %v", err)
	}
}

func TestCheckShapeRejectsMismatch(t *testing.T) {
	in := singleInput([]int{3, 3}, make([]float32, 9), nil)
	if err := CheckShape(in, []int{4, 4}); !IsPreprocess(err) {
		t.Fatalf("expected preprocess error, got %v", err)
	}
}

func TestCheckShapeRejectsEmptyInput(t *testing.T) {
	if err := CheckShape(types.InputData{}, []int{4, 4}); !IsPreprocess(err) {
		t.Fatalf("expected preprocess error, got %v", err)
	}
}
