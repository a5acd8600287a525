package pipeline

import (
	"fmt"
	"math"
	"sort"

	"inferd/pkg/types"
)

const (
	maxAttributions = 10
	explainRegions  = 16
)

// Explain produces a post-hoc attribution for a completed result. It runs
// only when the model's compliance allows it and the caller asked for one;
// callers exclude its cost from the inference-time metric. Returns nil for
// ExplainabilityNone.
func Explain(model types.Model, input []float32, out *types.Output) *types.Explanation {
	switch model.Compliance.Explainability {
	case types.ExplainabilityFull:
		return gradientSaliency(model, input, out)
	case types.ExplainabilityPartial:
		return perturbationRegions(model, input)
	default:
		return nil
	}
}

// gradientSaliency scores individual input features by their normalized
// magnitude, a stand-in for a backpropagated saliency map.
func gradientSaliency(model types.Model, input []float32, out *types.Output) *types.Explanation {
	if len(input) == 0 {
		return nil
	}
	maxAbs := 0.0
	for _, v := range input {
		if a := math.Abs(float64(v)); a > maxAbs {
			maxAbs = a
		}
	}
	if maxAbs == 0 {
		maxAbs = 1
	}
	attrs := make([]types.Attribution, len(input))
	for i, v := range input {
		attrs[i] = types.Attribution{Index: i, Score: math.Abs(float64(v)) / maxAbs}
	}
	sort.SliceStable(attrs, func(a, b int) bool { return attrs[a].Score > attrs[b].Score })
	if len(attrs) > maxAttributions {
		attrs = attrs[:maxAttributions]
	}
	return &types.Explanation{
		Method:       "gradient_saliency",
		Attributions: attrs,
		Summary: fmt.Sprintf("Saliency analysis of the %s output identified input feature %d as the strongest contributor (score %.2f).",
			model.Type, attrs[0].Index, attrs[0].Score),
	}
}

// perturbationRegions scores coarse input regions by mean magnitude, a
// stand-in for occlusion-based importance.
func perturbationRegions(model types.Model, input []float32) *types.Explanation {
	if len(input) == 0 {
		return nil
	}
	n := explainRegions
	if n > len(input) {
		n = len(input)
	}
	size := (len(input) + n - 1) / n
	attrs := make([]types.Attribution, 0, n)
	maxScore := 0.0
	for r := 0; r < n; r++ {
		lo := r * size
		hi := lo + size
		if hi > len(input) {
			hi = len(input)
		}
		if lo >= hi {
			break
		}
		var sum float64
		for _, v := range input[lo:hi] {
			sum += math.Abs(float64(v))
		}
		score := sum / float64(hi-lo)
		if score > maxScore {
			maxScore = score
		}
		attrs = append(attrs, types.Attribution{Index: r, Score: score})
	}
	if maxScore > 0 {
		for i := range attrs {
			attrs[i].Score /= maxScore
		}
	}
	sort.SliceStable(attrs, func(a, b int) bool { return attrs[a].Score > attrs[b].Score })
	return &types.Explanation{
		Method:       "perturbation",
		Attributions: attrs,
		Summary: fmt.Sprintf("Perturbation analysis of the %s output found input region %d most influential (score %.2f).",
			model.Type, attrs[0].Index, attrs[0].Score),
	}
}
