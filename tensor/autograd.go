package tensor

import (
	"fmt"
)

// expandToShape tiles a tensor whose shape is a trailing suffix of targetShape
// (e.g. bias [n] against activations [b, n]).
func expandToShape(t *Tensor, targetShape []int) (*Tensor, error) {
	if shapesEqual(t.Shape, targetShape) {
		return t, nil
	}
	if len(t.Shape) > len(targetShape) {
		return nil, fmt.Errorf("cannot expand shape %v to %v", t.Shape, targetShape)
	}
	offset := len(targetShape) - len(t.Shape)
	for i, dim := range t.Shape {
		if dim != targetShape[offset+i] {
			return nil, fmt.Errorf("cannot expand shape %v to %v", t.Shape, targetShape)
		}
	}
	if t.DType != Float32 {
		return nil, fmt.Errorf("expand only supports Float32 dtype")
	}

	result, err := Zeros(targetShape, Float32)
	if err != nil {
		return nil, err
	}

	src := t.Data.([]float32)
	dst := result.Data.([]float32)
	for i := 0; i < result.NumElems; i++ {
		dst[i] = src[i%t.NumElems]
	}
	return result, nil
}

// reduceGradientToShape sums a gradient over the leading dimensions that were
// introduced by broadcasting, recovering the original parameter shape.
func reduceGradientToShape(grad *Tensor, targetShape []int) (*Tensor, error) {
	if shapesEqual(grad.Shape, targetShape) {
		return grad, nil
	}
	if grad.DType != Float32 {
		return nil, fmt.Errorf("gradient reduction only supports Float32 dtype")
	}

	targetElems := calculateNumElements(targetShape)
	if targetElems == 0 || grad.NumElems%targetElems != 0 {
		return nil, fmt.Errorf("cannot reduce gradient of shape %v to %v", grad.Shape, targetShape)
	}

	result, err := Zeros(targetShape, Float32)
	if err != nil {
		return nil, err
	}

	src := grad.Data.([]float32)
	dst := result.Data.([]float32)
	for i := 0; i < grad.NumElems; i++ {
		dst[i%targetElems] += src[i]
	}
	return result, nil
}

func shapesEqual(shape1, shape2 []int) bool {
	if len(shape1) != len(shape2) {
		return false
	}
	for i := range shape1 {
		if shape1[i] != shape2[i] {
			return false
		}
	}
	return true
}

func attachCreator(result *Tensor, op Operation, inputs ...*Tensor) {
	result.creator = op
	for _, input := range inputs {
		if input.requiresGrad || input.creator != nil {
			result.requiresGrad = true
			return
		}
	}
}

// AddOp implements broadcast-aware addition.
type AddOp struct {
	inputs []*Tensor
}

func (op *AddOp) Forward(inputs ...*Tensor) *Tensor {
	if len(inputs) != 2 {
		panic("AddOp requires exactly 2 inputs")
	}
	a, b := inputs[0], inputs[1]
	op.inputs = inputs

	bb := b
	if !shapesEqual(a.Shape, b.Shape) {
		var err error
		bb, err = expandToShape(b, a.Shape)
		if err != nil {
			panic(fmt.Sprintf("AddOp forward failed: %v", err))
		}
	}

	result, err := Add(a, bb)
	if err != nil {
		panic(fmt.Sprintf("AddOp forward failed: %v", err))
	}

	attachCreator(result, op, a, b)
	return result
}

func (op *AddOp) Backward(gradOut *Tensor) []*Tensor {
	gradA, err := reduceGradientToShape(gradOut, op.inputs[0].Shape)
	if err != nil {
		panic(fmt.Sprintf("AddOp backward failed: %v", err))
	}
	gradB, err := reduceGradientToShape(gradOut, op.inputs[1].Shape)
	if err != nil {
		panic(fmt.Sprintf("AddOp backward failed: %v", err))
	}
	return []*Tensor{gradA, gradB}
}

func (op *AddOp) Inputs() []*Tensor { return op.inputs }

// SubOp implements element-wise subtraction.
type SubOp struct {
	inputs []*Tensor
}

func (op *SubOp) Forward(inputs ...*Tensor) *Tensor {
	if len(inputs) != 2 {
		panic("SubOp requires exactly 2 inputs")
	}
	op.inputs = inputs

	result, err := Sub(inputs[0], inputs[1])
	if err != nil {
		panic(fmt.Sprintf("SubOp forward failed: %v", err))
	}

	attachCreator(result, op, inputs...)
	return result
}

func (op *SubOp) Backward(gradOut *Tensor) []*Tensor {
	negGrad, err := Scale(gradOut, -1)
	if err != nil {
		panic(fmt.Sprintf("SubOp backward failed: %v", err))
	}
	return []*Tensor{gradOut, negGrad}
}

func (op *SubOp) Inputs() []*Tensor { return op.inputs }

// MulOp implements element-wise multiplication.
type MulOp struct {
	inputs []*Tensor
}

func (op *MulOp) Forward(inputs ...*Tensor) *Tensor {
	if len(inputs) != 2 {
		panic("MulOp requires exactly 2 inputs")
	}
	op.inputs = inputs

	result, err := Mul(inputs[0], inputs[1])
	if err != nil {
		panic(fmt.Sprintf("MulOp forward failed: %v", err))
	}

	attachCreator(result, op, inputs...)
	return result
}

func (op *MulOp) Backward(gradOut *Tensor) []*Tensor {
	gradA, err := Mul(gradOut, op.inputs[1])
	if err != nil {
		panic(fmt.Sprintf("MulOp backward failed: %v", err))
	}
	gradB, err := Mul(gradOut, op.inputs[0])
	if err != nil {
		panic(fmt.Sprintf("MulOp backward failed: %v", err))
	}
	return []*Tensor{gradA, gradB}
}

func (op *MulOp) Inputs() []*Tensor { return op.inputs }

// MatMulOp implements 2D matrix multiplication.
type MatMulOp struct {
	inputs []*Tensor
}

func (op *MatMulOp) Forward(inputs ...*Tensor) *Tensor {
	if len(inputs) != 2 {
		panic("MatMulOp requires exactly 2 inputs")
	}
	op.inputs = inputs

	result, err := MatMul(inputs[0], inputs[1])
	if err != nil {
		panic(fmt.Sprintf("MatMulOp forward failed: %v", err))
	}

	attachCreator(result, op, inputs...)
	return result
}

func (op *MatMulOp) Backward(gradOut *Tensor) []*Tensor {
	// dA = gradOut x B^T, dB = A^T x gradOut
	bT, err := Transpose(op.inputs[1])
	if err != nil {
		panic(fmt.Sprintf("MatMulOp backward failed: %v", err))
	}
	gradA, err := MatMul(gradOut, bT)
	if err != nil {
		panic(fmt.Sprintf("MatMulOp backward failed: %v", err))
	}

	aT, err := Transpose(op.inputs[0])
	if err != nil {
		panic(fmt.Sprintf("MatMulOp backward failed: %v", err))
	}
	gradB, err := MatMul(aT, gradOut)
	if err != nil {
		panic(fmt.Sprintf("MatMulOp backward failed: %v", err))
	}

	return []*Tensor{gradA, gradB}
}

func (op *MatMulOp) Inputs() []*Tensor { return op.inputs }

// ReLUOp implements the rectified linear activation.
type ReLUOp struct {
	inputs []*Tensor
}

func (op *ReLUOp) Forward(inputs ...*Tensor) *Tensor {
	if len(inputs) != 1 {
		panic("ReLUOp requires exactly 1 input")
	}
	op.inputs = inputs

	result, err := ReLU(inputs[0])
	if err != nil {
		panic(fmt.Sprintf("ReLUOp forward failed: %v", err))
	}

	attachCreator(result, op, inputs...)
	return result
}

func (op *ReLUOp) Backward(gradOut *Tensor) []*Tensor {
	input := op.inputs[0]
	grad, err := Zeros(input.Shape, Float32)
	if err != nil {
		panic(fmt.Sprintf("ReLUOp backward failed: %v", err))
	}

	inData := input.Data.([]float32)
	gradOutData := gradOut.Data.([]float32)
	gradData := grad.Data.([]float32)
	for i := 0; i < input.NumElems; i++ {
		if inData[i] > 0 {
			gradData[i] = gradOutData[i]
		}
	}

	return []*Tensor{grad}
}

func (op *ReLUOp) Inputs() []*Tensor { return op.inputs }

// SigmoidOp implements the logistic activation.
type SigmoidOp struct {
	inputs []*Tensor
	output *Tensor
}

func (op *SigmoidOp) Forward(inputs ...*Tensor) *Tensor {
	if len(inputs) != 1 {
		panic("SigmoidOp requires exactly 1 input")
	}
	op.inputs = inputs

	result, err := Sigmoid(inputs[0])
	if err != nil {
		panic(fmt.Sprintf("SigmoidOp forward failed: %v", err))
	}
	op.output = result

	attachCreator(result, op, inputs...)
	return result
}

func (op *SigmoidOp) Backward(gradOut *Tensor) []*Tensor {
	// d sigmoid(x)/dx = s * (1 - s)
	grad, err := Zeros(op.inputs[0].Shape, Float32)
	if err != nil {
		panic(fmt.Sprintf("SigmoidOp backward failed: %v", err))
	}

	s := op.output.Data.([]float32)
	gradOutData := gradOut.Data.([]float32)
	gradData := grad.Data.([]float32)
	for i := range gradData {
		gradData[i] = gradOutData[i] * s[i] * (1 - s[i])
	}

	return []*Tensor{grad}
}

func (op *SigmoidOp) Inputs() []*Tensor { return op.inputs }

// ReshapeOp reinterprets the input with a new shape.
type ReshapeOp struct {
	inputs []*Tensor
	shape  []int
}

func (op *ReshapeOp) Forward(inputs ...*Tensor) *Tensor {
	if len(inputs) != 1 {
		panic("ReshapeOp requires exactly 1 input")
	}
	op.inputs = inputs

	result, err := inputs[0].Reshape(op.shape)
	if err != nil {
		panic(fmt.Sprintf("ReshapeOp forward failed: %v", err))
	}

	attachCreator(result, op, inputs...)
	return result
}

func (op *ReshapeOp) Backward(gradOut *Tensor) []*Tensor {
	grad, err := gradOut.Reshape(op.inputs[0].Shape)
	if err != nil {
		panic(fmt.Sprintf("ReshapeOp backward failed: %v", err))
	}
	return []*Tensor{grad}
}

func (op *ReshapeOp) Inputs() []*Tensor { return op.inputs }

// Convenience wrappers mirroring the plain op functions.

func AddAutograd(a, b *Tensor) *Tensor {
	op := &AddOp{}
	return op.Forward(a, b)
}

func SubAutograd(a, b *Tensor) *Tensor {
	op := &SubOp{}
	return op.Forward(a, b)
}

func MulAutograd(a, b *Tensor) *Tensor {
	op := &MulOp{}
	return op.Forward(a, b)
}

func MatMulAutograd(a, b *Tensor) *Tensor {
	op := &MatMulOp{}
	return op.Forward(a, b)
}

func ReLUAutograd(a *Tensor) *Tensor {
	op := &ReLUOp{}
	return op.Forward(a)
}

func SigmoidAutograd(a *Tensor) *Tensor {
	op := &SigmoidOp{}
	return op.Forward(a)
}

func ReshapeAutograd(a *Tensor, shape []int) *Tensor {
	op := &ReshapeOp{shape: shape}
	return op.Forward(a)
}
