package pipeline

import (
	"math"
	"sort"

	"inferd/pkg/types"
)

const (
	topKPredictions = 5
	maskThreshold   = 0.5
	nmsIoUThreshold = 0.5
	boxRecordStride = 6 // x1 y1 x2 y2 score class
)

// Postprocess interprets a raw output buffer according to the model's task
// type.
func Postprocess(model types.Model, raw []float32) (*types.Output, error) {
	switch model.Type {
	case types.ModelClassification:
		return classify(raw)
	case types.ModelSegmentation:
		return segment(model, raw)
	case types.ModelDetection:
		return detect(raw)
	case types.ModelRegression, types.ModelGenerative:
		return passthrough(model.Type, raw), nil
	default:
		return nil, errPostprocessf("unknown model type %q", model.Type)
	}
}

func classify(raw []float32) (*types.Output, error) {
	if len(raw) == 0 {
		return nil, errPostprocessf("empty classification output")
	}
	probs := softmax(raw)

	k := topKPredictions
	if k > len(probs) {
		k = len(probs)
	}
	idx := make([]int, len(probs))
	for i := range idx {
		idx[i] = i
	}
	// Descending by probability; ties broken by lower class index.
	sort.SliceStable(idx, func(a, b int) bool {
		if probs[idx[a]] != probs[idx[b]] {
			return probs[idx[a]] > probs[idx[b]]
		}
		return idx[a] < idx[b]
	})
	top := make([]types.Prediction, k)
	for i := 0; i < k; i++ {
		top[i] = types.Prediction{Class: idx[i], Probability: probs[idx[i]]}
	}
	return &types.Output{
		Type:           types.ModelClassification,
		Classification: &types.ClassificationOutput{Probabilities: probs, TopK: top},
	}, nil
}

// softmax converts a raw vector into a probability distribution, shifted by
// the max for numeric stability.
func softmax(raw []float32) []float64 {
	maxV := float64(raw[0])
	for _, v := range raw[1:] {
		if float64(v) > maxV {
			maxV = float64(v)
		}
	}
	out := make([]float64, len(raw))
	var sum float64
	for i, v := range raw {
		out[i] = math.Exp(float64(v) - maxV)
		sum += out[i]
	}
	for i := range out {
		out[i] /= sum
	}
	return out
}

func segment(model types.Model, raw []float32) (*types.Output, error) {
	w, h, err := maskDims(model.InputShape)
	if err != nil {
		return nil, err
	}
	if len(raw) != w*h {
		return nil, errPostprocessf("segmentation output has %d elements, mask %dx%d requires %d", len(raw), w, h, w*h)
	}
	mask := make([]uint8, w*h)
	for i, v := range raw {
		if v >= maskThreshold {
			mask[i] = 1
		}
	}
	return &types.Output{
		Type: types.ModelSegmentation,
		Segmentation: &types.SegmentationOutput{
			Mask:    mask,
			Width:   w,
			Height:  h,
			Regions: connectedRegions(mask, w, h),
		},
	}, nil
}

// maskDims takes the model's declared 2D input shape for the mask.
func maskDims(inputShape []int) (int, int, error) {
	if len(inputShape) < 2 || inputShape[0] <= 0 || inputShape[1] <= 0 {
		return 0, 0, errPostprocessf("segmentation model input shape %v lacks 2D dimensions", inputShape)
	}
	return inputShape[0], inputShape[1], nil
}

// connectedRegions labels 4-connected components of the binary mask and
// returns them in discovery order with pixel-count areas.
func connectedRegions(mask []uint8, w, h int) []types.Region {
	var regions []types.Region
	visited := make([]bool, len(mask))
	var stack []int
	for start := range mask {
		if mask[start] == 0 || visited[start] {
			continue
		}
		area := 0
		stack = append(stack[:0], start)
		visited[start] = true
		for len(stack) > 0 {
			p := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			area++
			x, y := p%w, p/w
			for _, d := range [4][2]int{{0, -1}, {0, 1}, {-1, 0}, {1, 0}} {
				nx, ny := x+d[0], y+d[1]
				if nx < 0 || nx >= w || ny < 0 || ny >= h {
					continue
				}
				n := ny*w + nx
				if mask[n] == 0 || visited[n] {
					continue
				}
				visited[n] = true
				stack = append(stack, n)
			}
		}
		regions = append(regions, types.Region{ID: len(regions) + 1, Area: area})
	}
	return regions
}

// detect decodes stride-6 box records, drops non-positive scores, and runs
// non-maximum suppression at IoU 0.5.
func detect(raw []float32) (*types.Output, error) {
	var boxes []types.Box
	for i := 0; i+boxRecordStride <= len(raw); i += boxRecordStride {
		b := types.Box{
			X1:    float64(raw[i]),
			Y1:    float64(raw[i+1]),
			X2:    float64(raw[i+2]),
			Y2:    float64(raw[i+3]),
			Score: float64(raw[i+4]),
			Class: int(raw[i+5]),
		}
		if b.Score <= 0 || b.X2 <= b.X1 || b.Y2 <= b.Y1 {
			continue
		}
		boxes = append(boxes, b)
	}
	return &types.Output{
		Type:      types.ModelDetection,
		Detection: &types.DetectionOutput{Boxes: nonMaxSuppress(boxes, nmsIoUThreshold)},
	}, nil
}

// nonMaxSuppress keeps the highest-confidence box of each overlapping group.
func nonMaxSuppress(boxes []types.Box, iouThreshold float64) []types.Box {
	sort.SliceStable(boxes, func(a, b int) bool { return boxes[a].Score > boxes[b].Score })
	kept := make([]types.Box, 0, len(boxes))
	for _, b := range boxes {
		suppressed := false
		for _, k := range kept {
			if iou(b, k) >= iouThreshold {
				suppressed = true
				break
			}
		}
		if !suppressed {
			kept = append(kept, b)
		}
	}
	return kept
}

func iou(a, b types.Box) float64 {
	ix1 := math.Max(a.X1, b.X1)
	iy1 := math.Max(a.Y1, b.Y1)
	ix2 := math.Min(a.X2, b.X2)
	iy2 := math.Min(a.Y2, b.Y2)
	iw := ix2 - ix1
	ih := iy2 - iy1
	if iw <= 0 || ih <= 0 {
		return 0
	}
	inter := iw * ih
	areaA := (a.X2 - a.X1) * (a.Y2 - a.Y1)
	areaB := (b.X2 - b.X1) * (b.Y2 - b.Y1)
	return inter / (areaA + areaB - inter)
}

func passthrough(t types.ModelType, raw []float32) *types.Output {
	vals := make([]float64, len(raw))
	for i, v := range raw {
		vals[i] = float64(v)
	}
	return &types.Output{Type: t, Raw: &types.RawOutput{Values: vals}}
}
