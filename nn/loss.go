package nn

import (
	"fmt"

	"github.com/OscarLlorente/AgeGenderDetector/tensor"
)

// Loss computes a scalar loss tensor attached to the autograd graph, so a
// single Backward call propagates through the whole forward pass.
type Loss interface {
	Forward(predicted, target *tensor.Tensor) (*tensor.Tensor, error)
}

// BCEWithLogitsLoss combines a sigmoid with binary cross-entropy in one
// numerically stable step, matching two-class classification on a single logit.
type BCEWithLogitsLoss struct{}

func NewBCEWithLogitsLoss() *BCEWithLogitsLoss {
	return &BCEWithLogitsLoss{}
}

func (l *BCEWithLogitsLoss) Forward(predicted, target *tensor.Tensor) (*tensor.Tensor, error) {
	if err := checkLossInputs(predicted, target); err != nil {
		return nil, err
	}
	return tensor.BCEWithLogitsAutograd(predicted, target), nil
}

// MSELoss computes mean squared error.
type MSELoss struct{}

func NewMSELoss() *MSELoss {
	return &MSELoss{}
}

func (l *MSELoss) Forward(predicted, target *tensor.Tensor) (*tensor.Tensor, error) {
	if err := checkLossInputs(predicted, target); err != nil {
		return nil, err
	}
	return tensor.MSEAutograd(predicted, target), nil
}

func checkLossInputs(predicted, target *tensor.Tensor) error {
	if predicted.DType != tensor.Float32 || target.DType != tensor.Float32 {
		return fmt.Errorf("loss inputs must be Float32, got %s and %s", predicted.DType, target.DType)
	}
	if predicted.NumElems != target.NumElems {
		return fmt.Errorf("loss size mismatch: %d predictions vs %d targets", predicted.NumElems, target.NumElems)
	}
	return nil
}
