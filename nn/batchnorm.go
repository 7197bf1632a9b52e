package nn

import (
	"fmt"

	"github.com/OscarLlorente/AgeGenderDetector/tensor"
)

// BatchNorm2D normalizes NCHW activations per channel. Training mode uses the
// batch statistics and updates the running averages; eval mode uses the
// running averages.
type BatchNorm2D struct {
	gamma    *tensor.Tensor // [channels]
	beta     *tensor.Tensor // [channels]
	momentum float64
	eps      float64
	training bool

	runningMean []float32
	runningVar  []float32
}

// NewBatchNorm2D creates a batch normalization layer over the given number of
// channels with unit scale and zero shift.
func NewBatchNorm2D(channels int, momentum, eps float64) (*BatchNorm2D, error) {
	if channels <= 0 {
		return nil, fmt.Errorf("batchnorm channels must be positive, got %d", channels)
	}
	if momentum <= 0 || momentum >= 1 {
		momentum = 0.1
	}
	if eps <= 0 {
		eps = 1e-5
	}

	gamma, err := tensor.Ones([]int{channels}, tensor.Float32)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize batchnorm scale: %w", err)
	}
	gamma.SetRequiresGrad(true)

	beta, err := tensor.Zeros([]int{channels}, tensor.Float32)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize batchnorm shift: %w", err)
	}
	beta.SetRequiresGrad(true)

	runningVar := make([]float32, channels)
	for i := range runningVar {
		runningVar[i] = 1
	}

	return &BatchNorm2D{
		gamma:       gamma,
		beta:        beta,
		momentum:    momentum,
		eps:         eps,
		training:    true,
		runningMean: make([]float32, channels),
		runningVar:  runningVar,
	}, nil
}

func (b *BatchNorm2D) Forward(input *tensor.Tensor) (*tensor.Tensor, error) {
	if len(input.Shape) != 4 {
		return nil, fmt.Errorf("BatchNorm2D expects 4D input [batch_size, channels, height, width], got shape %v", input.Shape)
	}
	if input.Shape[1] != b.gamma.Shape[0] {
		return nil, fmt.Errorf("BatchNorm2D expects %d channels, got %d", b.gamma.Shape[0], input.Shape[1])
	}

	if !b.training {
		return tensor.BatchNorm2DInference(input, b.gamma, b.beta, b.runningMean, b.runningVar, b.eps), nil
	}

	out, op := tensor.BatchNorm2DAutograd(input, b.gamma, b.beta, b.eps)
	mean, variance := op.BatchMean(), op.BatchVar()
	for c := range b.runningMean {
		b.runningMean[c] = float32((1-b.momentum)*float64(b.runningMean[c]) + b.momentum*float64(mean[c]))
		b.runningVar[c] = float32((1-b.momentum)*float64(b.runningVar[c]) + b.momentum*float64(variance[c]))
	}
	return out, nil
}

func (b *BatchNorm2D) Parameters() []*tensor.Tensor {
	return []*tensor.Tensor{b.gamma, b.beta}
}

func (b *BatchNorm2D) Train()           { b.training = true }
func (b *BatchNorm2D) Eval()            { b.training = false }
func (b *BatchNorm2D) IsTraining() bool { return b.training }
