package tensor

import (
	"fmt"
)

// Reshape returns a tensor sharing the same backing data with a new shape.
func (t *Tensor) Reshape(newShape []int) (*Tensor, error) {
	if err := validateShape(newShape); err != nil {
		return nil, err
	}

	if calculateNumElements(newShape) != t.NumElems {
		return nil, fmt.Errorf("cannot reshape tensor of %d elements to shape %v", t.NumElems, newShape)
	}

	shape := make([]int, len(newShape))
	copy(shape, newShape)

	return &Tensor{
		Shape:    shape,
		Strides:  calculateStrides(shape),
		DType:    t.DType,
		Data:     t.Data,
		NumElems: t.NumElems,
	}, nil
}

// Clone returns a deep copy detached from the autograd graph.
func (t *Tensor) Clone() (*Tensor, error) {
	var data interface{}
	switch t.DType {
	case Float32:
		src := t.Data.([]float32)
		dst := make([]float32, len(src))
		copy(dst, src)
		data = dst
	case Int32:
		src := t.Data.([]int32)
		dst := make([]int32, len(src))
		copy(dst, src)
		data = dst
	default:
		return nil, fmt.Errorf("unsupported dtype for Clone: %s", t.DType)
	}

	shape := make([]int, len(t.Shape))
	copy(shape, t.Shape)
	return NewTensor(shape, t.DType, data)
}

func (t *Tensor) GetFloat32Data() ([]float32, error) {
	if t.DType != Float32 {
		return nil, fmt.Errorf("tensor is not Float32, got %s", t.DType)
	}
	return t.Data.([]float32), nil
}

func (t *Tensor) GetInt32Data() ([]int32, error) {
	if t.DType != Int32 {
		return nil, fmt.Errorf("tensor is not Int32, got %s", t.DType)
	}
	return t.Data.([]int32), nil
}

// Item returns the value of a one-element tensor.
func (t *Tensor) Item() (interface{}, error) {
	if t.NumElems != 1 {
		return nil, fmt.Errorf("Item requires a one-element tensor, got %d elements", t.NumElems)
	}
	switch t.DType {
	case Float32:
		return t.Data.([]float32)[0], nil
	case Int32:
		return t.Data.([]int32)[0], nil
	default:
		return nil, fmt.Errorf("unsupported dtype for Item: %s", t.DType)
	}
}

func (t *Tensor) flatIndex(indices []int) (int, error) {
	if len(indices) != len(t.Shape) {
		return 0, fmt.Errorf("expected %d indices, got %d", len(t.Shape), len(indices))
	}
	index := 0
	for i, idx := range indices {
		if idx < 0 || idx >= t.Shape[i] {
			return 0, fmt.Errorf("index %d out of range for dimension %d of size %d", idx, i, t.Shape[i])
		}
		index += idx * t.Strides[i]
	}
	return index, nil
}

func (t *Tensor) At(indices ...int) (interface{}, error) {
	index, err := t.flatIndex(indices)
	if err != nil {
		return nil, err
	}
	switch t.DType {
	case Float32:
		return t.Data.([]float32)[index], nil
	case Int32:
		return t.Data.([]int32)[index], nil
	default:
		return nil, fmt.Errorf("unsupported dtype for At: %s", t.DType)
	}
}

func (t *Tensor) SetAt(value interface{}, indices ...int) error {
	index, err := t.flatIndex(indices)
	if err != nil {
		return err
	}
	switch t.DType {
	case Float32:
		v, ok := value.(float32)
		if !ok {
			return fmt.Errorf("expected float32 value, got %T", value)
		}
		t.Data.([]float32)[index] = v
	case Int32:
		v, ok := value.(int32)
		if !ok {
			return fmt.Errorf("expected int32 value, got %T", value)
		}
		t.Data.([]int32)[index] = v
	default:
		return fmt.Errorf("unsupported dtype for SetAt: %s", t.DType)
	}
	return nil
}

func (t *Tensor) Size() []int {
	return t.Shape
}

func (t *Tensor) Numel() int {
	return t.NumElems
}

func (t *Tensor) Dim() int {
	return len(t.Shape)
}

func (t *Tensor) Equal(other *Tensor) (bool, error) {
	if t.DType != other.DType {
		return false, nil
	}
	if !shapesEqual(t.Shape, other.Shape) {
		return false, nil
	}
	switch t.DType {
	case Float32:
		a := t.Data.([]float32)
		b := other.Data.([]float32)
		for i := range a {
			if a[i] != b[i] {
				return false, nil
			}
		}
	case Int32:
		a := t.Data.([]int32)
		b := other.Data.([]int32)
		for i := range a {
			if a[i] != b[i] {
				return false, nil
			}
		}
	default:
		return false, fmt.Errorf("unsupported dtype for Equal: %s", t.DType)
	}
	return true, nil
}

// ZeroGrad clears gradients on a set of tensors.
func ZeroGrad(tensors []*Tensor) {
	for _, t := range tensors {
		if t != nil {
			t.ZeroGrad()
		}
	}
}

// Stack concatenates tensors of identical shape along a new leading dimension.
func Stack(tensors []*Tensor) (*Tensor, error) {
	if len(tensors) == 0 {
		return nil, fmt.Errorf("cannot stack zero tensors")
	}

	first := tensors[0]
	if first.DType != Float32 {
		return nil, fmt.Errorf("Stack only supports Float32 dtype")
	}
	for i, t := range tensors[1:] {
		if !shapesEqual(t.Shape, first.Shape) {
			return nil, fmt.Errorf("tensor %d has shape %v, want %v", i+1, t.Shape, first.Shape)
		}
	}

	shape := append([]int{len(tensors)}, first.Shape...)
	data := make([]float32, len(tensors)*first.NumElems)
	for i, t := range tensors {
		copy(data[i*first.NumElems:(i+1)*first.NumElems], t.Data.([]float32))
	}

	return NewTensor(shape, Float32, data)
}

// Cat concatenates tensors along the first (batch) dimension.
func Cat(tensors []*Tensor) (*Tensor, error) {
	if len(tensors) == 0 {
		return nil, fmt.Errorf("cannot concatenate zero tensors")
	}

	first := tensors[0]
	if first.DType != Float32 {
		return nil, fmt.Errorf("Cat only supports Float32 dtype")
	}
	if len(first.Shape) < 1 {
		return nil, fmt.Errorf("Cat requires at least 1D tensors")
	}

	rows := 0
	rowElems := first.NumElems / first.Shape[0]
	for i, t := range tensors {
		if len(t.Shape) != len(first.Shape) || !shapesEqual(t.Shape[1:], first.Shape[1:]) {
			return nil, fmt.Errorf("tensor %d has shape %v, incompatible with %v", i, t.Shape, first.Shape)
		}
		rows += t.Shape[0]
	}

	shape := make([]int, len(first.Shape))
	copy(shape, first.Shape)
	shape[0] = rows

	data := make([]float32, rows*rowElems)
	offset := 0
	for _, t := range tensors {
		src := t.Data.([]float32)
		copy(data[offset:offset+len(src)], src)
		offset += len(src)
	}

	return NewTensor(shape, Float32, data)
}
