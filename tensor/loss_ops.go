package tensor

import (
	"fmt"
	"math"
)

// BCEWithLogitsOp computes mean binary cross-entropy directly on logits, using
// the numerically stable form max(x, 0) - x*y + log(1 + exp(-|x|)).
type BCEWithLogitsOp struct {
	inputs []*Tensor
}

func (op *BCEWithLogitsOp) Forward(inputs ...*Tensor) *Tensor {
	if len(inputs) != 2 {
		panic("BCEWithLogitsOp requires logits and targets")
	}
	op.inputs = inputs

	logits, targets := inputs[0], inputs[1]
	if logits.DType != Float32 || targets.DType != Float32 {
		panic("BCEWithLogitsOp only supports Float32 tensors")
	}
	if logits.NumElems != targets.NumElems {
		panic(fmt.Sprintf("BCEWithLogitsOp size mismatch: %d logits vs %d targets", logits.NumElems, targets.NumElems))
	}

	x := logits.Data.([]float32)
	y := targets.Data.([]float32)

	var total float64
	for i := 0; i < logits.NumElems; i++ {
		xi := float64(x[i])
		total += math.Max(xi, 0) - xi*float64(y[i]) + math.Log1p(math.Exp(-math.Abs(xi)))
	}

	result, err := NewTensor([]int{1}, Float32, []float32{float32(total / float64(logits.NumElems))})
	if err != nil {
		panic(fmt.Sprintf("BCEWithLogitsOp forward failed: %v", err))
	}

	attachCreator(result, op, inputs...)
	return result
}

func (op *BCEWithLogitsOp) Backward(gradOut *Tensor) []*Tensor {
	logits, targets := op.inputs[0], op.inputs[1]

	grad, err := Zeros(logits.Shape, Float32)
	if err != nil {
		panic(fmt.Sprintf("BCEWithLogitsOp backward failed: %v", err))
	}

	x := logits.Data.([]float32)
	y := targets.Data.([]float32)
	g := grad.Data.([]float32)
	scale := gradOut.Data.([]float32)[0] / float32(logits.NumElems)
	for i := range g {
		s := float32(1.0 / (1.0 + math.Exp(-float64(x[i]))))
		g[i] = (s - y[i]) * scale
	}

	// No gradient flows into the targets.
	return []*Tensor{grad, nil}
}

func (op *BCEWithLogitsOp) Inputs() []*Tensor { return op.inputs }

func BCEWithLogitsAutograd(logits, targets *Tensor) *Tensor {
	op := &BCEWithLogitsOp{}
	return op.Forward(logits, targets)
}

// MSEOp computes the mean squared error between predictions and targets.
type MSEOp struct {
	inputs []*Tensor
}

func (op *MSEOp) Forward(inputs ...*Tensor) *Tensor {
	if len(inputs) != 2 {
		panic("MSEOp requires predictions and targets")
	}
	op.inputs = inputs

	pred, targets := inputs[0], inputs[1]
	if pred.DType != Float32 || targets.DType != Float32 {
		panic("MSEOp only supports Float32 tensors")
	}
	if pred.NumElems != targets.NumElems {
		panic(fmt.Sprintf("MSEOp size mismatch: %d predictions vs %d targets", pred.NumElems, targets.NumElems))
	}

	p := pred.Data.([]float32)
	y := targets.Data.([]float32)

	var total float64
	for i := 0; i < pred.NumElems; i++ {
		d := float64(p[i] - y[i])
		total += d * d
	}

	result, err := NewTensor([]int{1}, Float32, []float32{float32(total / float64(pred.NumElems))})
	if err != nil {
		panic(fmt.Sprintf("MSEOp forward failed: %v", err))
	}

	attachCreator(result, op, inputs...)
	return result
}

func (op *MSEOp) Backward(gradOut *Tensor) []*Tensor {
	pred, targets := op.inputs[0], op.inputs[1]

	grad, err := Zeros(pred.Shape, Float32)
	if err != nil {
		panic(fmt.Sprintf("MSEOp backward failed: %v", err))
	}

	p := pred.Data.([]float32)
	y := targets.Data.([]float32)
	g := grad.Data.([]float32)
	scale := gradOut.Data.([]float32)[0] * 2 / float32(pred.NumElems)
	for i := range g {
		g[i] = (p[i] - y[i]) * scale
	}

	return []*Tensor{grad, nil}
}

func (op *MSEOp) Inputs() []*Tensor { return op.inputs }

func MSEAutograd(pred, targets *Tensor) *Tensor {
	op := &MSEOp{}
	return op.Forward(pred, targets)
}

// ScaleOp multiplies by a constant, used to weight loss terms.
type ScaleOp struct {
	inputs []*Tensor
	factor float64
}

func (op *ScaleOp) Forward(inputs ...*Tensor) *Tensor {
	if len(inputs) != 1 {
		panic("ScaleOp requires exactly 1 input")
	}
	op.inputs = inputs

	result, err := Scale(inputs[0], op.factor)
	if err != nil {
		panic(fmt.Sprintf("ScaleOp forward failed: %v", err))
	}

	attachCreator(result, op, inputs...)
	return result
}

func (op *ScaleOp) Backward(gradOut *Tensor) []*Tensor {
	grad, err := Scale(gradOut, op.factor)
	if err != nil {
		panic(fmt.Sprintf("ScaleOp backward failed: %v", err))
	}
	return []*Tensor{grad}
}

func (op *ScaleOp) Inputs() []*Tensor { return op.inputs }

func ScaleAutograd(a *Tensor, factor float64) *Tensor {
	op := &ScaleOp{factor: factor}
	return op.Forward(a)
}
