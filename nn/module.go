package nn

import (
	"fmt"
	"math"

	"github.com/OscarLlorente/AgeGenderDetector/tensor"
)

// Module interface defines methods that all neural network layers must implement
type Module interface {
	Forward(input *tensor.Tensor) (*tensor.Tensor, error)
	Parameters() []*tensor.Tensor
	Train()
	Eval()
	IsTraining() bool
}

// Linear implements a fully connected layer: y = x*W + b
type Linear struct {
	weight   *tensor.Tensor // [inputSize, outputSize]
	bias     *tensor.Tensor // [outputSize], nil when disabled
	training bool
}

// NewLinear creates a fully connected layer with He-initialized weights.
func NewLinear(inputSize, outputSize int, bias bool) (*Linear, error) {
	if inputSize <= 0 || outputSize <= 0 {
		return nil, fmt.Errorf("linear layer sizes must be positive, got %d and %d", inputSize, outputSize)
	}

	std := float32(math.Sqrt(2.0 / float64(inputSize)))
	weight, err := tensor.RandomNormal([]int{inputSize, outputSize}, 0, std)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize linear weight: %w", err)
	}
	weight.SetRequiresGrad(true)

	l := &Linear{weight: weight, training: true}

	if bias {
		b, err := tensor.Zeros([]int{outputSize}, tensor.Float32)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize linear bias: %w", err)
		}
		b.SetRequiresGrad(true)
		l.bias = b
	}

	return l, nil
}

func (l *Linear) Forward(input *tensor.Tensor) (*tensor.Tensor, error) {
	if len(input.Shape) != 2 {
		return nil, fmt.Errorf("Linear expects 2D input [batch_size, features], got shape %v", input.Shape)
	}
	if input.Shape[1] != l.weight.Shape[0] {
		return nil, fmt.Errorf("Linear input features %d do not match weight %d", input.Shape[1], l.weight.Shape[0])
	}

	out := tensor.MatMulAutograd(input, l.weight)
	if l.bias != nil {
		out = tensor.AddAutograd(out, l.bias)
	}
	return out, nil
}

func (l *Linear) Parameters() []*tensor.Tensor {
	params := []*tensor.Tensor{l.weight}
	if l.bias != nil {
		params = append(params, l.bias)
	}
	return params
}

func (l *Linear) Train()           { l.training = true }
func (l *Linear) Eval()            { l.training = false }
func (l *Linear) IsTraining() bool { return l.training }

// ReLU applies the rectified linear activation element-wise.
type ReLU struct {
	training bool
}

func NewReLU() *ReLU {
	return &ReLU{training: true}
}

func (r *ReLU) Forward(input *tensor.Tensor) (*tensor.Tensor, error) {
	return tensor.ReLUAutograd(input), nil
}

func (r *ReLU) Parameters() []*tensor.Tensor { return nil }
func (r *ReLU) Train()                       { r.training = true }
func (r *ReLU) Eval()                        { r.training = false }
func (r *ReLU) IsTraining() bool             { return r.training }

// Conv2D implements a 2D convolution layer over NCHW input.
type Conv2D struct {
	weight   *tensor.Tensor // [filters, channels, kernel, kernel]
	bias     *tensor.Tensor // [filters], nil when disabled
	stride   int
	padding  int
	training bool
}

// NewConv2D creates a convolution layer with He-initialized weights.
func NewConv2D(inputChannels, outputChannels, kernelSize, stride, padding int, bias bool) (*Conv2D, error) {
	if inputChannels <= 0 || outputChannels <= 0 || kernelSize <= 0 {
		return nil, fmt.Errorf("conv2d dimensions must be positive")
	}
	if stride <= 0 {
		return nil, fmt.Errorf("conv2d stride must be positive, got %d", stride)
	}

	fanIn := inputChannels * kernelSize * kernelSize
	std := float32(math.Sqrt(2.0 / float64(fanIn)))
	weight, err := tensor.RandomNormal([]int{outputChannels, inputChannels, kernelSize, kernelSize}, 0, std)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize conv weight: %w", err)
	}
	weight.SetRequiresGrad(true)

	c := &Conv2D{weight: weight, stride: stride, padding: padding, training: true}

	if bias {
		b, err := tensor.Zeros([]int{outputChannels}, tensor.Float32)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize conv bias: %w", err)
		}
		b.SetRequiresGrad(true)
		c.bias = b
	}

	return c, nil
}

func (c *Conv2D) Forward(input *tensor.Tensor) (*tensor.Tensor, error) {
	if len(input.Shape) != 4 {
		return nil, fmt.Errorf("Conv2D expects 4D input [batch_size, channels, height, width], got shape %v", input.Shape)
	}
	return tensor.Conv2DAutograd(input, c.weight, c.bias, c.stride, c.padding), nil
}

func (c *Conv2D) Parameters() []*tensor.Tensor {
	params := []*tensor.Tensor{c.weight}
	if c.bias != nil {
		params = append(params, c.bias)
	}
	return params
}

func (c *Conv2D) Train()           { c.training = true }
func (c *Conv2D) Eval()            { c.training = false }
func (c *Conv2D) IsTraining() bool { return c.training }

// MaxPool2D downsamples by taking the maximum over non-overlapping windows.
type MaxPool2D struct {
	kernel   int
	training bool
}

func NewMaxPool2D(kernel int) *MaxPool2D {
	return &MaxPool2D{kernel: kernel, training: true}
}

func (m *MaxPool2D) Forward(input *tensor.Tensor) (*tensor.Tensor, error) {
	if len(input.Shape) != 4 {
		return nil, fmt.Errorf("MaxPool2D expects 4D input, got shape %v", input.Shape)
	}
	return tensor.MaxPool2DAutograd(input, m.kernel), nil
}

func (m *MaxPool2D) Parameters() []*tensor.Tensor { return nil }
func (m *MaxPool2D) Train()                       { m.training = true }
func (m *MaxPool2D) Eval()                        { m.training = false }
func (m *MaxPool2D) IsTraining() bool             { return m.training }

// GlobalAvgPool2D reduces each channel plane to its mean: [b, c, h, w] -> [b, c].
type GlobalAvgPool2D struct {
	training bool
}

func NewGlobalAvgPool2D() *GlobalAvgPool2D {
	return &GlobalAvgPool2D{training: true}
}

func (g *GlobalAvgPool2D) Forward(input *tensor.Tensor) (*tensor.Tensor, error) {
	if len(input.Shape) != 4 {
		return nil, fmt.Errorf("GlobalAvgPool2D expects 4D input, got shape %v", input.Shape)
	}
	return tensor.GlobalAvgPool2DAutograd(input), nil
}

func (g *GlobalAvgPool2D) Parameters() []*tensor.Tensor { return nil }
func (g *GlobalAvgPool2D) Train()                       { g.training = true }
func (g *GlobalAvgPool2D) Eval()                        { g.training = false }
func (g *GlobalAvgPool2D) IsTraining() bool             { return g.training }

// Sequential chains modules, feeding each output into the next.
type Sequential struct {
	modules []Module
}

func NewSequential(modules ...Module) *Sequential {
	return &Sequential{modules: modules}
}

func (s *Sequential) Forward(input *tensor.Tensor) (*tensor.Tensor, error) {
	out := input
	var err error
	for i, m := range s.modules {
		out, err = m.Forward(out)
		if err != nil {
			return nil, fmt.Errorf("sequential module %d: %w", i, err)
		}
	}
	return out, nil
}

func (s *Sequential) Parameters() []*tensor.Tensor {
	var params []*tensor.Tensor
	for _, m := range s.modules {
		params = append(params, m.Parameters()...)
	}
	return params
}

func (s *Sequential) Train() {
	for _, m := range s.modules {
		m.Train()
	}
}

func (s *Sequential) Eval() {
	for _, m := range s.modules {
		m.Eval()
	}
}

func (s *Sequential) IsTraining() bool {
	if len(s.modules) == 0 {
		return false
	}
	return s.modules[0].IsTraining()
}
