package metrics

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/stat"
)

// MeanSquaredError returns the mean of squared prediction errors.
func MeanSquaredError(preds, targets []float32) (float64, error) {
	if len(preds) != len(targets) {
		return 0, fmt.Errorf("length mismatch: %d predictions vs %d targets", len(preds), len(targets))
	}
	if len(preds) == 0 {
		return 0, fmt.Errorf("cannot compute MSE over zero samples")
	}

	sum := 0.0
	for i := range preds {
		d := float64(preds[i]) - float64(targets[i])
		sum += d * d
	}
	return sum / float64(len(preds)), nil
}

// MeanAbsoluteError returns the mean of absolute prediction errors.
func MeanAbsoluteError(preds, targets []float32) (float64, error) {
	if len(preds) != len(targets) {
		return 0, fmt.Errorf("length mismatch: %d predictions vs %d targets", len(preds), len(targets))
	}
	if len(preds) == 0 {
		return 0, fmt.Errorf("cannot compute MAE over zero samples")
	}

	sum := 0.0
	for i := range preds {
		sum += math.Abs(float64(preds[i]) - float64(targets[i]))
	}
	return sum / float64(len(preds)), nil
}

// Mean returns the arithmetic mean of a series, 0 for an empty one.
func Mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	return stat.Mean(values, nil)
}

// MeanStdDev returns the mean and sample standard deviation of a series.
func MeanStdDev(values []float64) (mean, std float64) {
	if len(values) == 0 {
		return 0, 0
	}
	if len(values) == 1 {
		return values[0], 0
	}
	return stat.MeanStdDev(values, nil)
}
