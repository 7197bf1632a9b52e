package tensor

import (
	"math"
	"testing"
)

func TestSelectColumnForward(t *testing.T) {
	a := tensorFrom(t, []int{3, 2}, []float32{1, 2, 3, 4, 5, 6})

	col0 := SelectColumnAutograd(a, 0)
	col1 := SelectColumnAutograd(a, 1)

	if len(col0.Shape) != 1 || col0.Shape[0] != 3 {
		t.Fatalf("expected shape [3], got %v", col0.Shape)
	}

	want0 := []float32{1, 3, 5}
	want1 := []float32{2, 4, 6}
	got0 := col0.Data.([]float32)
	got1 := col1.Data.([]float32)
	for i := range want0 {
		if got0[i] != want0[i] || got1[i] != want1[i] {
			t.Errorf("row %d: got (%f, %f), want (%f, %f)", i, got0[i], got1[i], want0[i], want1[i])
		}
	}
}

func TestSelectColumnBackwardScatters(t *testing.T) {
	a := paramFrom(t, []int{2, 2}, []float32{1, 2, 3, 4})

	col := SelectColumnAutograd(a, 1)
	loss := MSEAutograd(col, tensorFrom(t, []int{2}, []float32{0, 0}))
	if err := loss.Backward(); err != nil {
		t.Fatalf("Backward failed: %v", err)
	}

	// d mean(a[:,1]^2) / da = 2*a[:,1]/N in column 1, zero in column 0.
	want := []float32{0, 2, 0, 4}
	grad := a.Grad().Data.([]float32)
	for i := range want {
		if math.Abs(float64(grad[i]-want[i])) > 1e-5 {
			t.Errorf("grad[%d]: expected %f, got %f", i, want[i], grad[i])
		}
	}
}
