package pipeline

import "inferd/pkg/types"

// defaultCalibration is used for regression/generative models that do not
// declare a calibrated confidence.
const defaultCalibration = 0.5

// Confidence derives a score from the postprocessed output; it is never
// user-supplied. Classification uses the top probability; segmentation uses
// the mean raw probability over mask-positive pixels; detection uses the
// mean surviving box score; regression/generative use the model's
// calibration constant or a fixed default.
func Confidence(model types.Model, out *types.Output, raw []float32) float64 {
	switch {
	case out == nil:
		return 0
	case out.Classification != nil:
		if len(out.Classification.TopK) == 0 {
			return 0
		}
		return out.Classification.TopK[0].Probability
	case out.Segmentation != nil:
		var sum float64
		n := 0
		for i, m := range out.Segmentation.Mask {
			if m != 0 && i < len(raw) {
				sum += float64(raw[i])
				n++
			}
		}
		if n == 0 {
			return 0
		}
		return sum / float64(n)
	case out.Detection != nil:
		boxes := out.Detection.Boxes
		if len(boxes) == 0 {
			return 0
		}
		var sum float64
		for _, b := range boxes {
			sum += b.Score
		}
		return sum / float64(len(boxes))
	default:
		if c := model.Performance.CalibratedConfidence; c > 0 {
			return c
		}
		return defaultCalibration
	}
}
