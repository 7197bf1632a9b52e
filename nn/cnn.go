package nn

import (
	"fmt"

	"github.com/OscarLlorente/AgeGenderDetector/tensor"
)

// ModelConfig identifies a CNNClassifier variant. The zero value is not
// usable; DefaultModelConfig returns the reference configuration.
type ModelConfig struct {
	InChannels      int   `json:"in_channels" mapstructure:"in_channels"`
	OutChannels     int   `json:"out_channels" mapstructure:"out_channels"`
	DimLayers       []int `json:"dim_layers" mapstructure:"dim_layers"`
	BlockConvLayers int   `json:"block_conv_layers" mapstructure:"block_conv_layers"`
	Residual        bool  `json:"residual" mapstructure:"residual"`
	MaxPooling      bool  `json:"max_pooling" mapstructure:"max_pooling"`
}

// DefaultModelConfig mirrors the reference variant: RGB input, two output
// heads (gender logit, age), three stages of three 3x3 convolutions each.
func DefaultModelConfig() ModelConfig {
	return ModelConfig{
		InChannels:      3,
		OutChannels:     2,
		DimLayers:       []int{32, 64, 128},
		BlockConvLayers: 3,
		Residual:        true,
		MaxPooling:      true,
	}
}

func (c ModelConfig) validate() error {
	if c.InChannels <= 0 {
		return fmt.Errorf("in_channels must be positive, got %d", c.InChannels)
	}
	if c.OutChannels <= 0 {
		return fmt.Errorf("out_channels must be positive, got %d", c.OutChannels)
	}
	if len(c.DimLayers) == 0 {
		return fmt.Errorf("dim_layers must not be empty")
	}
	for i, d := range c.DimLayers {
		if d <= 0 {
			return fmt.Errorf("dim_layers[%d] must be positive, got %d", i, d)
		}
	}
	if c.BlockConvLayers <= 0 {
		return fmt.Errorf("block_conv_layers must be positive, got %d", c.BlockConvLayers)
	}
	return nil
}

// convBlock is one stage of the classifier: a stack of 3x3 convolutions with
// an optional residual connection, followed by 2x downsampling.
type convBlock struct {
	convs      []*Conv2D
	activation *ReLU
	residual   bool
	pool       Module // MaxPool2D or stride-2 Conv2D
}

func (b *convBlock) forward(input *tensor.Tensor) (*tensor.Tensor, error) {
	out := input
	var err error
	for _, conv := range b.convs {
		out, err = conv.Forward(out)
		if err != nil {
			return nil, err
		}
		out, err = b.activation.Forward(out)
		if err != nil {
			return nil, err
		}
	}

	// Identity shortcut over the conv stack when the shapes line up.
	if b.residual && shapeMatch(input, out) {
		out = tensor.AddAutograd(out, input)
	}

	return b.pool.Forward(out)
}

func shapeMatch(a, b *tensor.Tensor) bool {
	if len(a.Shape) != len(b.Shape) {
		return false
	}
	for i := range a.Shape {
		if a.Shape[i] != b.Shape[i] {
			return false
		}
	}
	return true
}

// CNNClassifier maps a [batch, channels, size, size] image tensor to a
// [batch, out_channels] output where column 0 is the gender logit and
// column 1 the predicted age.
type CNNClassifier struct {
	config   ModelConfig
	blocks   []*convBlock
	pool     *GlobalAvgPool2D
	head     *Linear
	training bool
}

// NewCNNClassifier builds a classifier from its configuration record.
func NewCNNClassifier(config ModelConfig) (*CNNClassifier, error) {
	if err := config.validate(); err != nil {
		return nil, fmt.Errorf("invalid model config: %w", err)
	}

	model := &CNNClassifier{config: config, training: true}

	prev := config.InChannels
	for _, dim := range config.DimLayers {
		block := &convBlock{activation: NewReLU(), residual: config.Residual}
		for i := 0; i < config.BlockConvLayers; i++ {
			in := dim
			if i == 0 {
				in = prev
			}
			conv, err := NewConv2D(in, dim, 3, 1, 1, true)
			if err != nil {
				return nil, fmt.Errorf("failed to build conv block: %w", err)
			}
			block.convs = append(block.convs, conv)
		}

		if config.MaxPooling {
			block.pool = NewMaxPool2D(2)
		} else {
			down, err := NewConv2D(dim, dim, 3, 2, 1, true)
			if err != nil {
				return nil, fmt.Errorf("failed to build downsampling conv: %w", err)
			}
			block.pool = down
		}

		model.blocks = append(model.blocks, block)
		prev = dim
	}

	model.pool = NewGlobalAvgPool2D()

	head, err := NewLinear(prev, config.OutChannels, true)
	if err != nil {
		return nil, fmt.Errorf("failed to build classifier head: %w", err)
	}
	model.head = head

	return model, nil
}

func (m *CNNClassifier) Config() ModelConfig {
	return m.config
}

func (m *CNNClassifier) Forward(input *tensor.Tensor) (*tensor.Tensor, error) {
	if len(input.Shape) != 4 {
		return nil, fmt.Errorf("CNNClassifier expects 4D input [batch, channels, height, width], got %v", input.Shape)
	}
	if input.Shape[1] != m.config.InChannels {
		return nil, fmt.Errorf("CNNClassifier expects %d input channels, got %d", m.config.InChannels, input.Shape[1])
	}

	out := input
	var err error
	for i, block := range m.blocks {
		out, err = block.forward(out)
		if err != nil {
			return nil, fmt.Errorf("block %d: %w", i, err)
		}
	}

	out, err = m.pool.Forward(out)
	if err != nil {
		return nil, err
	}
	return m.head.Forward(out)
}

func (m *CNNClassifier) Parameters() []*tensor.Tensor {
	var params []*tensor.Tensor
	for _, block := range m.blocks {
		for _, conv := range block.convs {
			params = append(params, conv.Parameters()...)
		}
		params = append(params, block.pool.Parameters()...)
	}
	params = append(params, m.head.Parameters()...)
	return params
}

func (m *CNNClassifier) Train() { m.training = true }
func (m *CNNClassifier) Eval()  { m.training = false }

func (m *CNNClassifier) IsTraining() bool { return m.training }
