package tensor

import (
	"fmt"
	"math"
)

// BatchNorm2DOp normalizes NCHW input per channel over the batch and spatial
// dimensions, then applies the learned scale and shift. In training mode the
// batch statistics are used; in inference mode the caller supplies fixed
// running statistics.
type BatchNorm2DOp struct {
	inputs []*Tensor
	eps    float64

	// fixed statistics for inference mode, nil in training mode
	runningMean []float32
	runningVar  []float32

	// saved by Forward for Backward
	xhat   []float32
	invStd []float32

	// batch statistics computed in training mode
	batchMean []float32
	batchVar  []float32
}

func (op *BatchNorm2DOp) Forward(inputs ...*Tensor) *Tensor {
	if len(inputs) != 3 {
		panic("BatchNorm2DOp requires input, gamma and beta")
	}
	op.inputs = inputs

	input, gamma, beta := inputs[0], inputs[1], inputs[2]
	if len(input.Shape) != 4 {
		panic(fmt.Sprintf("BatchNorm2DOp expects 4D input [batch, channels, height, width], got %v", input.Shape))
	}
	channels := input.Shape[1]
	if gamma.Shape[0] != channels || beta.Shape[0] != channels {
		panic(fmt.Sprintf("BatchNorm2DOp scale/shift size must match %d channels", channels))
	}

	batch, height, width := input.Shape[0], input.Shape[2], input.Shape[3]
	perChannel := batch * height * width

	in := input.Data.([]float32)
	g := gamma.Data.([]float32)
	b := beta.Data.([]float32)

	mean := op.runningMean
	variance := op.runningVar
	if mean == nil {
		mean = make([]float32, channels)
		variance = make([]float32, channels)
		for c := 0; c < channels; c++ {
			var sum float64
			for n := 0; n < batch; n++ {
				base := (n*channels + c) * height * width
				for i := 0; i < height*width; i++ {
					sum += float64(in[base+i])
				}
			}
			m := sum / float64(perChannel)
			var sq float64
			for n := 0; n < batch; n++ {
				base := (n*channels + c) * height * width
				for i := 0; i < height*width; i++ {
					d := float64(in[base+i]) - m
					sq += d * d
				}
			}
			mean[c] = float32(m)
			variance[c] = float32(sq / float64(perChannel))
		}
		op.batchMean = mean
		op.batchVar = variance
	}

	result, err := Zeros(input.Shape, Float32)
	if err != nil {
		panic(fmt.Sprintf("BatchNorm2DOp forward failed: %v", err))
	}
	out := result.Data.([]float32)

	op.xhat = make([]float32, len(in))
	op.invStd = make([]float32, channels)
	for c := 0; c < channels; c++ {
		op.invStd[c] = float32(1.0 / math.Sqrt(float64(variance[c])+op.eps))
	}

	for n := 0; n < batch; n++ {
		for c := 0; c < channels; c++ {
			base := (n*channels + c) * height * width
			for i := 0; i < height*width; i++ {
				xhat := (in[base+i] - mean[c]) * op.invStd[c]
				op.xhat[base+i] = xhat
				out[base+i] = g[c]*xhat + b[c]
			}
		}
	}

	attachCreator(result, op, inputs...)
	return result
}

func (op *BatchNorm2DOp) Backward(gradOut *Tensor) []*Tensor {
	input, gamma := op.inputs[0], op.inputs[1]
	batch, channels, height, width := input.Shape[0], input.Shape[1], input.Shape[2], input.Shape[3]
	perChannel := float32(batch * height * width)

	gradInput, err := Zeros(input.Shape, Float32)
	if err != nil {
		panic(fmt.Sprintf("BatchNorm2DOp backward failed: %v", err))
	}
	gradGamma, err := Zeros(gamma.Shape, Float32)
	if err != nil {
		panic(fmt.Sprintf("BatchNorm2DOp backward failed: %v", err))
	}
	gradBeta, err := Zeros(gamma.Shape, Float32)
	if err != nil {
		panic(fmt.Sprintf("BatchNorm2DOp backward failed: %v", err))
	}

	g := gradOut.Data.([]float32)
	gi := gradInput.Data.([]float32)
	gg := gradGamma.Data.([]float32)
	gb := gradBeta.Data.([]float32)
	gm := gamma.Data.([]float32)

	for c := 0; c < channels; c++ {
		var sumDy, sumDyXhat float32
		for n := 0; n < batch; n++ {
			base := (n*channels + c) * height * width
			for i := 0; i < height*width; i++ {
				sumDy += g[base+i]
				sumDyXhat += g[base+i] * op.xhat[base+i]
			}
		}
		gg[c] = sumDyXhat
		gb[c] = sumDy

		scale := gm[c] * op.invStd[c]
		if op.runningMean != nil {
			// Inference statistics are constants: the chain is a plain
			// per-channel affine transform.
			for n := 0; n < batch; n++ {
				base := (n*channels + c) * height * width
				for i := 0; i < height*width; i++ {
					gi[base+i] = g[base+i] * scale
				}
			}
			continue
		}

		meanDy := sumDy / perChannel
		meanDyXhat := sumDyXhat / perChannel
		for n := 0; n < batch; n++ {
			base := (n*channels + c) * height * width
			for i := 0; i < height*width; i++ {
				gi[base+i] = scale * (g[base+i] - meanDy - op.xhat[base+i]*meanDyXhat)
			}
		}
	}

	return []*Tensor{gradInput, gradGamma, gradBeta}
}

func (op *BatchNorm2DOp) Inputs() []*Tensor { return op.inputs }

// BatchMean returns the per-channel mean computed by the last training-mode
// forward pass, nil in inference mode.
func (op *BatchNorm2DOp) BatchMean() []float32 { return op.batchMean }

// BatchVar returns the per-channel biased variance computed by the last
// training-mode forward pass, nil in inference mode.
func (op *BatchNorm2DOp) BatchVar() []float32 { return op.batchVar }

// BatchNorm2DAutograd normalizes with batch statistics and records the op on
// the autograd graph. The returned op exposes the batch statistics so callers
// can maintain running averages.
func BatchNorm2DAutograd(input, gamma, beta *Tensor, eps float64) (*Tensor, *BatchNorm2DOp) {
	op := &BatchNorm2DOp{eps: eps}
	return op.Forward(input, gamma, beta), op
}

// BatchNorm2DInference normalizes with fixed running statistics.
func BatchNorm2DInference(input, gamma, beta *Tensor, runningMean, runningVar []float32, eps float64) *Tensor {
	op := &BatchNorm2DOp{eps: eps, runningMean: runningMean, runningVar: runningVar}
	return op.Forward(input, gamma, beta)
}
