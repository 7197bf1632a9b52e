package metrics

import (
	"fmt"
	"math"
)

// ConfusionMatrix accumulates predicted vs true class labels for a fixed number
// of classes. Matrix is indexed [true class][predicted class]. All derived
// metrics are pure functions of the counts.
type ConfusionMatrix struct {
	Size   int     `json:"size"`
	Name   string  `json:"name"`
	Matrix [][]int `json:"matrix"`
}

// NewConfusionMatrix creates an empty size x size confusion matrix.
func NewConfusionMatrix(size int, name string) *ConfusionMatrix {
	matrix := make([][]int, size)
	for i := range matrix {
		matrix[i] = make([]int, size)
	}
	return &ConfusionMatrix{Size: size, Name: name, Matrix: matrix}
}

// Reset clears all accumulated counts.
func (cm *ConfusionMatrix) Reset() {
	for i := range cm.Matrix {
		for j := range cm.Matrix[i] {
			cm.Matrix[i][j] = 0
		}
	}
}

// Add accumulates a batch of predicted and true labels. Values are rounded to
// the nearest integer class index; out-of-range pairs are rejected.
func (cm *ConfusionMatrix) Add(preds, labels []float32) error {
	if len(preds) != len(labels) {
		return fmt.Errorf("length mismatch: %d predictions vs %d labels", len(preds), len(labels))
	}

	for i := range preds {
		pred := int(math.Round(float64(preds[i])))
		label := int(math.Round(float64(labels[i])))
		if pred < 0 || pred >= cm.Size {
			return fmt.Errorf("predicted class %d out of range [0, %d)", pred, cm.Size)
		}
		if label < 0 || label >= cm.Size {
			return fmt.Errorf("true class %d out of range [0, %d)", label, cm.Size)
		}
		cm.Matrix[label][pred]++
	}
	return nil
}

// Total returns the number of accumulated samples.
func (cm *ConfusionMatrix) Total() int {
	total := 0
	for i := range cm.Matrix {
		for j := range cm.Matrix[i] {
			total += cm.Matrix[i][j]
		}
	}
	return total
}

// GlobalAccuracy returns the fraction of samples on the diagonal.
func (cm *ConfusionMatrix) GlobalAccuracy() float64 {
	total := cm.Total()
	if total == 0 {
		return 0
	}
	correct := 0
	for i := 0; i < cm.Size; i++ {
		correct += cm.Matrix[i][i]
	}
	return float64(correct) / float64(total)
}

// ClassAccuracy returns per-class recall: diagonal count over row sum. Classes
// with no samples report zero.
func (cm *ConfusionMatrix) ClassAccuracy() []float64 {
	acc := make([]float64, cm.Size)
	for i := 0; i < cm.Size; i++ {
		rowSum := 0
		for j := 0; j < cm.Size; j++ {
			rowSum += cm.Matrix[i][j]
		}
		if rowSum > 0 {
			acc[i] = float64(cm.Matrix[i][i]) / float64(rowSum)
		}
	}
	return acc
}

// AverageAccuracy returns the unweighted mean of the per-class accuracies.
func (cm *ConfusionMatrix) AverageAccuracy() float64 {
	acc := cm.ClassAccuracy()
	if len(acc) == 0 {
		return 0
	}
	sum := 0.0
	for _, a := range acc {
		sum += a
	}
	return sum / float64(len(acc))
}

// MatthewsCorrCoef returns the multi-class Matthews correlation coefficient,
// computed from the counts as cov(true, pred) normalized by the class
// marginals. Returns 0 when either marginal is degenerate.
func (cm *ConfusionMatrix) MatthewsCorrCoef() float64 {
	s := float64(cm.Total())
	if s == 0 {
		return 0
	}

	correct := 0.0
	for i := 0; i < cm.Size; i++ {
		correct += float64(cm.Matrix[i][i])
	}

	var sumPT, sumPP, sumTT float64
	for k := 0; k < cm.Size; k++ {
		var pk, tk float64 // predicted-as-k and truly-k counts
		for i := 0; i < cm.Size; i++ {
			pk += float64(cm.Matrix[i][k])
			tk += float64(cm.Matrix[k][i])
		}
		sumPT += pk * tk
		sumPP += pk * pk
		sumTT += tk * tk
	}

	denom := math.Sqrt(s*s-sumPP) * math.Sqrt(s*s-sumTT)
	if denom == 0 {
		return 0
	}
	return (correct*s - sumPT) / denom
}

func (cm *ConfusionMatrix) String() string {
	return fmt.Sprintf("ConfusionMatrix(%s, size=%d, samples=%d, acc=%.4f)",
		cm.Name, cm.Size, cm.Total(), cm.GlobalAccuracy())
}
