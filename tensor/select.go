package tensor

import (
	"fmt"
)

// SelectColumnOp extracts one column of a 2D tensor: [rows, cols] -> [rows].
// The backward pass scatters the gradient back into that column.
type SelectColumnOp struct {
	inputs []*Tensor
	col    int
}

func (op *SelectColumnOp) Forward(inputs ...*Tensor) *Tensor {
	if len(inputs) != 1 {
		panic("SelectColumnOp requires exactly 1 input")
	}
	op.inputs = inputs

	input := inputs[0]
	if len(input.Shape) != 2 {
		panic(fmt.Sprintf("SelectColumnOp requires a 2D tensor, got shape %v", input.Shape))
	}
	if input.DType != Float32 {
		panic("SelectColumnOp only supports Float32 tensors")
	}
	rows, cols := input.Shape[0], input.Shape[1]
	if op.col < 0 || op.col >= cols {
		panic(fmt.Sprintf("SelectColumnOp column %d out of range for %d columns", op.col, cols))
	}

	src := input.Data.([]float32)
	data := make([]float32, rows)
	for i := 0; i < rows; i++ {
		data[i] = src[i*cols+op.col]
	}

	result, err := NewTensor([]int{rows}, Float32, data)
	if err != nil {
		panic(fmt.Sprintf("SelectColumnOp forward failed: %v", err))
	}

	attachCreator(result, op, inputs...)
	return result
}

func (op *SelectColumnOp) Backward(gradOut *Tensor) []*Tensor {
	input := op.inputs[0]
	rows, cols := input.Shape[0], input.Shape[1]

	grad, err := Zeros(input.Shape, Float32)
	if err != nil {
		panic(fmt.Sprintf("SelectColumnOp backward failed: %v", err))
	}

	g := grad.Data.([]float32)
	src := gradOut.Data.([]float32)
	for i := 0; i < rows; i++ {
		g[i*cols+op.col] = src[i]
	}

	return []*Tensor{grad}
}

func (op *SelectColumnOp) Inputs() []*Tensor { return op.inputs }

func SelectColumnAutograd(a *Tensor, col int) *Tensor {
	op := &SelectColumnOp{col: col}
	return op.Forward(a)
}
