package tensor

import (
	"fmt"
	"math"
)

func checkCompatibility(t1, t2 *Tensor) error {
	if t1.DType != t2.DType {
		return fmt.Errorf("tensors must have same dtype: %s vs %s", t1.DType, t2.DType)
	}
	return nil
}

func checkShapesCompatible(shape1, shape2 []int) ([]int, error) {
	if len(shape1) == 0 || len(shape2) == 0 {
		return nil, fmt.Errorf("cannot operate on empty tensors")
	}

	if len(shape1) != len(shape2) {
		return nil, fmt.Errorf("tensor shapes must have same number of dimensions: %v vs %v", shape1, shape2)
	}

	for i := range shape1 {
		if shape1[i] != shape2[i] {
			return nil, fmt.Errorf("tensor shapes must match: %v vs %v", shape1, shape2)
		}
	}

	return shape1, nil
}

type binaryFloatFunc func(a, b float32) float32
type binaryIntFunc func(a, b int32) (int32, error)

func elementwise(t1, t2 *Tensor, name string, ff binaryFloatFunc, fi binaryIntFunc) (*Tensor, error) {
	if err := checkCompatibility(t1, t2); err != nil {
		return nil, err
	}

	outputShape, err := checkShapesCompatible(t1.Shape, t2.Shape)
	if err != nil {
		return nil, err
	}

	result, err := Zeros(outputShape, t1.DType)
	if err != nil {
		return nil, err
	}

	switch t1.DType {
	case Float32:
		data1 := t1.Data.([]float32)
		data2 := t2.Data.([]float32)
		resultData := result.Data.([]float32)

		for i := 0; i < t1.NumElems; i++ {
			resultData[i] = ff(data1[i], data2[i])
		}
	case Int32:
		data1 := t1.Data.([]int32)
		data2 := t2.Data.([]int32)
		resultData := result.Data.([]int32)

		for i := 0; i < t1.NumElems; i++ {
			v, err := fi(data1[i], data2[i])
			if err != nil {
				return nil, fmt.Errorf("%s at index %d: %w", name, i, err)
			}
			resultData[i] = v
		}
	default:
		return nil, fmt.Errorf("unsupported dtype for %s: %s", name, t1.DType)
	}

	return result, nil
}

func Add(t1, t2 *Tensor) (*Tensor, error) {
	return elementwise(t1, t2, "Add",
		func(a, b float32) float32 { return a + b },
		func(a, b int32) (int32, error) { return a + b, nil })
}

func Sub(t1, t2 *Tensor) (*Tensor, error) {
	return elementwise(t1, t2, "Sub",
		func(a, b float32) float32 { return a - b },
		func(a, b int32) (int32, error) { return a - b, nil })
}

func Mul(t1, t2 *Tensor) (*Tensor, error) {
	return elementwise(t1, t2, "Mul",
		func(a, b float32) float32 { return a * b },
		func(a, b int32) (int32, error) { return a * b, nil })
}

func Div(t1, t2 *Tensor) (*Tensor, error) {
	return elementwise(t1, t2, "Div",
		func(a, b float32) float32 { return a / b },
		func(a, b int32) (int32, error) {
			if b == 0 {
				return 0, fmt.Errorf("division by zero")
			}
			return a / b, nil
		})
}

// Scale multiplies every element by a scalar.
func Scale(t *Tensor, factor float64) (*Tensor, error) {
	if t.DType != Float32 {
		return nil, fmt.Errorf("Scale only supports Float32 dtype")
	}

	result, err := Zeros(t.Shape, t.DType)
	if err != nil {
		return nil, err
	}

	data := t.Data.([]float32)
	resultData := result.Data.([]float32)
	f := float32(factor)
	for i := 0; i < t.NumElems; i++ {
		resultData[i] = data[i] * f
	}

	return result, nil
}

func unaryFloat(t *Tensor, name string, f func(float64) (float64, error)) (*Tensor, error) {
	if t.DType != Float32 {
		return nil, fmt.Errorf("%s only supports Float32 dtype", name)
	}

	result, err := Zeros(t.Shape, t.DType)
	if err != nil {
		return nil, err
	}

	data := t.Data.([]float32)
	resultData := result.Data.([]float32)

	for i := 0; i < t.NumElems; i++ {
		v, err := f(float64(data[i]))
		if err != nil {
			return nil, fmt.Errorf("%s at index %d: %w", name, i, err)
		}
		resultData[i] = float32(v)
	}

	return result, nil
}

func ReLU(t *Tensor) (*Tensor, error) {
	return unaryFloat(t, "ReLU", func(x float64) (float64, error) {
		return math.Max(x, 0), nil
	})
}

func Sigmoid(t *Tensor) (*Tensor, error) {
	return unaryFloat(t, "Sigmoid", func(x float64) (float64, error) {
		return 1.0 / (1.0 + math.Exp(-x)), nil
	})
}

func Exp(t *Tensor) (*Tensor, error) {
	return unaryFloat(t, "Exp", func(x float64) (float64, error) {
		return math.Exp(x), nil
	})
}

func Log(t *Tensor) (*Tensor, error) {
	return unaryFloat(t, "Log", func(x float64) (float64, error) {
		if x <= 0 {
			return 0, fmt.Errorf("log of non-positive value %f", x)
		}
		return math.Log(x), nil
	})
}

func Sqrt(t *Tensor) (*Tensor, error) {
	return unaryFloat(t, "Sqrt", func(x float64) (float64, error) {
		if x < 0 {
			return 0, fmt.Errorf("sqrt of negative value %f", x)
		}
		return math.Sqrt(x), nil
	})
}

// Abs returns element-wise absolute values, computed as sqrt(x^2) so that the
// inference path matches the training-time treatment of negative ages.
func Abs(t *Tensor) (*Tensor, error) {
	return unaryFloat(t, "Abs", func(x float64) (float64, error) {
		return math.Sqrt(x * x), nil
	})
}

// Sum reduces all elements to a one-element tensor.
func Sum(t *Tensor) (*Tensor, error) {
	if t.DType != Float32 {
		return nil, fmt.Errorf("Sum only supports Float32 dtype")
	}

	data := t.Data.([]float32)
	var total float64
	for i := 0; i < t.NumElems; i++ {
		total += float64(data[i])
	}

	return NewTensor([]int{1}, Float32, []float32{float32(total)})
}

// Mean reduces all elements to their arithmetic mean as a one-element tensor.
func Mean(t *Tensor) (*Tensor, error) {
	sum, err := Sum(t)
	if err != nil {
		return nil, err
	}
	return Scale(sum, 1.0/float64(t.NumElems))
}
