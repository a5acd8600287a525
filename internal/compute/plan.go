package compute

import "context"

// execPlan carries kernel launch parameters derived from a model's declared
// shapes: tile geometry, channel counts, and the fixed kernel order
// conv+bias+ReLU -> max-pool -> attention -> output projection.
type execPlan struct {
	w, h, c int
	conv    convParams
	pool    int // 0 disables pooling
	poolStr int
	seq     int // 0 disables attention
	dim     int
	outLen  int
}

// attention cost is quadratic in sequence length; larger feature maps skip
// the stage rather than stall the device queue.
const maxAttentionSeq = 4096

// planFor derives an execution plan from the model's declared shapes.
func planFor(spec ExecSpec) (execPlan, error) {
	w, h, c, err := normalizeShape(spec.InputShape)
	if err != nil {
		return execPlan{}, err
	}
	outLen := shapeLen(spec.OutputShape)
	if outLen <= 0 {
		return execPlan{}, errExecutionf("plan", "model %s: invalid output shape %v", spec.ModelID, spec.OutputShape)
	}

	p := execPlan{w: w, h: h, c: c, outLen: outLen}

	k := 3
	if w < 3 || h < 3 {
		k = 1
	}
	cout := c * 2
	if cout > 16 {
		cout = 16
	}
	p.conv = convParams{w: w, h: h, cin: c, cout: cout, k: k, stride: 1, pad: k / 2}

	ow, oh := p.conv.outW(), p.conv.outH()
	if ow >= 2 && oh >= 2 {
		p.pool, p.poolStr = 2, 2
		ow, oh = pooledDims(ow, oh, 2, 2)
	}
	if seq := ow * oh; seq <= maxAttentionSeq {
		p.seq, p.dim = seq, cout
	}
	return p, nil
}

// runPlan executes the kernel pipeline over input, checking ctx between
// kernel launches so abandoned work stops at the next kernel boundary.
func runPlan(ctx context.Context, spec ExecSpec, input []float32, launch launcher) ([]float32, error) {
	p, err := planFor(spec)
	if err != nil {
		return nil, err
	}
	if want := p.w * p.h * p.c; len(input) != want {
		return nil, errExecutionf("execute", "model %s: input length %d does not match shape %v (want %d)",
			spec.ModelID, len(input), spec.InputShape, want)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	ow, oh := p.conv.outW(), p.conv.outH()
	buf := make([]float32, ow*oh*p.conv.cout)
	kernelConvReLU(buf, input, spec.Weights, p.conv, launch)

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if p.pool > 0 {
		pw, ph := pooledDims(ow, oh, p.pool, p.poolStr)
		pooled := make([]float32, pw*ph*p.conv.cout)
		kernelMaxPool(pooled, buf, ow, oh, p.conv.cout, p.pool, p.poolStr, launch)
		buf, ow, oh = pooled, pw, ph
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if p.seq > 0 {
		attn := make([]float32, len(buf))
		kernelAttention(attn, buf, ow*oh, p.conv.cout, launch)
		buf = attn
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	out := make([]float32, p.outLen)
	kernelProject(out, buf, spec.Weights, len(buf), p.outLen, launch)
	return out, nil
}

// normalizeShape folds a declared input shape into width, height, channels.
// Trailing dimensions beyond the third fold into channels.
func normalizeShape(shape []int) (int, int, int, error) {
	if len(shape) == 0 {
		return 0, 0, 0, errExecutionf("plan", "empty input shape")
	}
	for _, d := range shape {
		if d <= 0 {
			return 0, 0, 0, errExecutionf("plan", "non-positive dimension in shape %v", shape)
		}
	}
	switch len(shape) {
	case 1:
		return shape[0], 1, 1, nil
	case 2:
		return shape[0], shape[1], 1, nil
	default:
		c := 1
		for _, d := range shape[2:] {
			c *= d
		}
		return shape[0], shape[1], c, nil
	}
}

// shapeLen is the flattened element count of a shape, 0 when invalid.
func shapeLen(shape []int) int {
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
