package tensor

import (
	"fmt"
)

// Conv2DOp implements a 2D convolution over NCHW input with an FCHW kernel.
// The bias input is optional.
type Conv2DOp struct {
	inputs  []*Tensor
	stride  int
	padding int
}

func conv2DOutputSize(in, kernel, stride, padding int) int {
	return (in+2*padding-kernel)/stride + 1
}

func (op *Conv2DOp) Forward(inputs ...*Tensor) *Tensor {
	if len(inputs) != 2 && len(inputs) != 3 {
		panic("Conv2DOp requires input, weight and optional bias")
	}
	op.inputs = inputs

	input, weight := inputs[0], inputs[1]
	if len(input.Shape) != 4 {
		panic(fmt.Sprintf("Conv2DOp expects 4D input [batch, channels, height, width], got %v", input.Shape))
	}
	if len(weight.Shape) != 4 {
		panic(fmt.Sprintf("Conv2DOp expects 4D weight [filters, channels, kh, kw], got %v", weight.Shape))
	}
	if input.Shape[1] != weight.Shape[1] {
		panic(fmt.Sprintf("Conv2DOp channel mismatch: input %d vs weight %d", input.Shape[1], weight.Shape[1]))
	}

	batch, channels, height, width := input.Shape[0], input.Shape[1], input.Shape[2], input.Shape[3]
	filters, kh, kw := weight.Shape[0], weight.Shape[2], weight.Shape[3]
	outH := conv2DOutputSize(height, kh, op.stride, op.padding)
	outW := conv2DOutputSize(width, kw, op.stride, op.padding)
	if outH <= 0 || outW <= 0 {
		panic(fmt.Sprintf("Conv2DOp output collapsed to %dx%d for input %v", outH, outW, input.Shape))
	}

	result, err := Zeros([]int{batch, filters, outH, outW}, Float32)
	if err != nil {
		panic(fmt.Sprintf("Conv2DOp forward failed: %v", err))
	}

	in := input.Data.([]float32)
	w := weight.Data.([]float32)
	out := result.Data.([]float32)

	var bias []float32
	if len(inputs) == 3 {
		if inputs[2].Shape[0] != filters {
			panic(fmt.Sprintf("Conv2DOp bias size %d does not match %d filters", inputs[2].Shape[0], filters))
		}
		bias = inputs[2].Data.([]float32)
	}

	for b := 0; b < batch; b++ {
		for f := 0; f < filters; f++ {
			for oh := 0; oh < outH; oh++ {
				for ow := 0; ow < outW; ow++ {
					var acc float32
					if bias != nil {
						acc = bias[f]
					}
					for c := 0; c < channels; c++ {
						for i := 0; i < kh; i++ {
							ih := oh*op.stride - op.padding + i
							if ih < 0 || ih >= height {
								continue
							}
							for j := 0; j < kw; j++ {
								iw := ow*op.stride - op.padding + j
								if iw < 0 || iw >= width {
									continue
								}
								acc += in[((b*channels+c)*height+ih)*width+iw] *
									w[((f*channels+c)*kh+i)*kw+j]
							}
						}
					}
					out[((b*filters+f)*outH+oh)*outW+ow] = acc
				}
			}
		}
	}

	attachCreator(result, op, inputs...)
	return result
}

func (op *Conv2DOp) Backward(gradOut *Tensor) []*Tensor {
	input, weight := op.inputs[0], op.inputs[1]
	batch, channels, height, width := input.Shape[0], input.Shape[1], input.Shape[2], input.Shape[3]
	filters, kh, kw := weight.Shape[0], weight.Shape[2], weight.Shape[3]
	outH, outW := gradOut.Shape[2], gradOut.Shape[3]

	gradInput, err := Zeros(input.Shape, Float32)
	if err != nil {
		panic(fmt.Sprintf("Conv2DOp backward failed: %v", err))
	}
	gradWeight, err := Zeros(weight.Shape, Float32)
	if err != nil {
		panic(fmt.Sprintf("Conv2DOp backward failed: %v", err))
	}

	var gradBias *Tensor
	var gb []float32
	if len(op.inputs) == 3 {
		gradBias, err = Zeros(op.inputs[2].Shape, Float32)
		if err != nil {
			panic(fmt.Sprintf("Conv2DOp backward failed: %v", err))
		}
		gb = gradBias.Data.([]float32)
	}

	in := input.Data.([]float32)
	w := weight.Data.([]float32)
	g := gradOut.Data.([]float32)
	gi := gradInput.Data.([]float32)
	gw := gradWeight.Data.([]float32)

	for b := 0; b < batch; b++ {
		for f := 0; f < filters; f++ {
			for oh := 0; oh < outH; oh++ {
				for ow := 0; ow < outW; ow++ {
					gv := g[((b*filters+f)*outH+oh)*outW+ow]
					if gb != nil {
						gb[f] += gv
					}
					if gv == 0 {
						continue
					}
					for c := 0; c < channels; c++ {
						for i := 0; i < kh; i++ {
							ih := oh*op.stride - op.padding + i
							if ih < 0 || ih >= height {
								continue
							}
							for j := 0; j < kw; j++ {
								iw := ow*op.stride - op.padding + j
								if iw < 0 || iw >= width {
									continue
								}
								inIdx := ((b*channels+c)*height+ih)*width + iw
								wIdx := ((f*channels+c)*kh+i)*kw + j
								gi[inIdx] += gv * w[wIdx]
								gw[wIdx] += gv * in[inIdx]
							}
						}
					}
				}
			}
		}
	}

	if gradBias != nil {
		return []*Tensor{gradInput, gradWeight, gradBias}
	}
	return []*Tensor{gradInput, gradWeight}
}

func (op *Conv2DOp) Inputs() []*Tensor { return op.inputs }

// Conv2DAutograd applies a 2D convolution and records it on the autograd graph.
// Pass a nil bias to skip the bias term.
func Conv2DAutograd(input, weight, bias *Tensor, stride, padding int) *Tensor {
	op := &Conv2DOp{stride: stride, padding: padding}
	if bias == nil {
		return op.Forward(input, weight)
	}
	return op.Forward(input, weight, bias)
}

// MaxPool2DOp implements non-overlapping max pooling with kernel == stride.
type MaxPool2DOp struct {
	inputs []*Tensor
	kernel int
	argmax []int
}

func (op *MaxPool2DOp) Forward(inputs ...*Tensor) *Tensor {
	if len(inputs) != 1 {
		panic("MaxPool2DOp requires exactly 1 input")
	}
	op.inputs = inputs

	input := inputs[0]
	if len(input.Shape) != 4 {
		panic(fmt.Sprintf("MaxPool2DOp expects 4D input, got %v", input.Shape))
	}

	batch, channels, height, width := input.Shape[0], input.Shape[1], input.Shape[2], input.Shape[3]
	k := op.kernel
	outH, outW := height/k, width/k
	if outH == 0 || outW == 0 {
		panic(fmt.Sprintf("MaxPool2DOp kernel %d too large for input %v", k, input.Shape))
	}

	result, err := Zeros([]int{batch, channels, outH, outW}, Float32)
	if err != nil {
		panic(fmt.Sprintf("MaxPool2DOp forward failed: %v", err))
	}

	in := input.Data.([]float32)
	out := result.Data.([]float32)
	op.argmax = make([]int, result.NumElems)

	for b := 0; b < batch; b++ {
		for c := 0; c < channels; c++ {
			for oh := 0; oh < outH; oh++ {
				for ow := 0; ow < outW; ow++ {
					best := float32(0)
					bestIdx := -1
					for i := 0; i < k; i++ {
						for j := 0; j < k; j++ {
							idx := ((b*channels+c)*height+oh*k+i)*width + ow*k + j
							if bestIdx == -1 || in[idx] > best {
								best = in[idx]
								bestIdx = idx
							}
						}
					}
					outIdx := ((b*channels+c)*outH+oh)*outW + ow
					out[outIdx] = best
					op.argmax[outIdx] = bestIdx
				}
			}
		}
	}

	attachCreator(result, op, inputs...)
	return result
}

func (op *MaxPool2DOp) Backward(gradOut *Tensor) []*Tensor {
	grad, err := Zeros(op.inputs[0].Shape, Float32)
	if err != nil {
		panic(fmt.Sprintf("MaxPool2DOp backward failed: %v", err))
	}

	g := gradOut.Data.([]float32)
	gi := grad.Data.([]float32)
	for outIdx, inIdx := range op.argmax {
		gi[inIdx] += g[outIdx]
	}

	return []*Tensor{grad}
}

func (op *MaxPool2DOp) Inputs() []*Tensor { return op.inputs }

func MaxPool2DAutograd(input *Tensor, kernel int) *Tensor {
	op := &MaxPool2DOp{kernel: kernel}
	return op.Forward(input)
}

// GlobalAvgPool2DOp averages each channel plane to a single value: [b, c, h, w] -> [b, c].
type GlobalAvgPool2DOp struct {
	inputs []*Tensor
}

func (op *GlobalAvgPool2DOp) Forward(inputs ...*Tensor) *Tensor {
	if len(inputs) != 1 {
		panic("GlobalAvgPool2DOp requires exactly 1 input")
	}
	op.inputs = inputs

	input := inputs[0]
	if len(input.Shape) != 4 {
		panic(fmt.Sprintf("GlobalAvgPool2DOp expects 4D input, got %v", input.Shape))
	}

	batch, channels, height, width := input.Shape[0], input.Shape[1], input.Shape[2], input.Shape[3]
	plane := height * width

	result, err := Zeros([]int{batch, channels}, Float32)
	if err != nil {
		panic(fmt.Sprintf("GlobalAvgPool2DOp forward failed: %v", err))
	}

	in := input.Data.([]float32)
	out := result.Data.([]float32)
	for b := 0; b < batch; b++ {
		for c := 0; c < channels; c++ {
			var sum float64
			base := (b*channels + c) * plane
			for i := 0; i < plane; i++ {
				sum += float64(in[base+i])
			}
			out[b*channels+c] = float32(sum / float64(plane))
		}
	}

	attachCreator(result, op, inputs...)
	return result
}

func (op *GlobalAvgPool2DOp) Backward(gradOut *Tensor) []*Tensor {
	input := op.inputs[0]
	batch, channels, height, width := input.Shape[0], input.Shape[1], input.Shape[2], input.Shape[3]
	plane := height * width

	grad, err := Zeros(input.Shape, Float32)
	if err != nil {
		panic(fmt.Sprintf("GlobalAvgPool2DOp backward failed: %v", err))
	}

	g := gradOut.Data.([]float32)
	gi := grad.Data.([]float32)
	for b := 0; b < batch; b++ {
		for c := 0; c < channels; c++ {
			share := g[b*channels+c] / float32(plane)
			base := (b*channels + c) * plane
			for i := 0; i < plane; i++ {
				gi[base+i] = share
			}
		}
	}

	return []*Tensor{grad}
}

func (op *GlobalAvgPool2DOp) Inputs() []*Tensor { return op.inputs }

func GlobalAvgPool2DAutograd(input *Tensor) *Tensor {
	op := &GlobalAvgPool2DOp{}
	return op.Forward(input)
}
