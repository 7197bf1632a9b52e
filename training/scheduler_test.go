package training

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/OscarLlorente/AgeGenderDetector/tensor"
)

func TestParseSchedulerMode(t *testing.T) {
	for _, tc := range []struct {
		input string
		want  SchedulerMode
	}{
		{"min_loss", MinLoss},
		{"min_mse", MinMSE},
		{"max_acc", MaxAcc},
		{"max_val_acc", MaxValAcc},
		{"max_val_mcc", MaxValMCC},
	} {
		got, err := ParseSchedulerMode(tc.input)
		require.NoError(t, err, tc.input)
		assert.Equal(t, tc.want, got)
		assert.Equal(t, tc.input, got.String())
	}

	_, err := ParseSchedulerMode("max_f1")
	assert.Error(t, err)
	_, err = ParseSchedulerMode("")
	assert.Error(t, err)
}

func TestSchedulerModeDirection(t *testing.T) {
	assert.True(t, MinLoss.Minimize())
	assert.True(t, MinMSE.Minimize())
	assert.False(t, MaxAcc.Minimize())
	assert.False(t, MaxValAcc.Minimize())
	assert.False(t, MaxValMCC.Minimize())
}

func TestSchedulerModeBetter(t *testing.T) {
	// min modes: lower or equal is better.
	assert.True(t, MinMSE.Better(1.0, 2.0))
	assert.True(t, MinMSE.Better(2.0, 2.0))
	assert.False(t, MinMSE.Better(3.0, 2.0))

	// max modes: higher or equal is better.
	assert.True(t, MaxValAcc.Better(0.9, 0.8))
	assert.True(t, MaxValAcc.Better(0.8, 0.8))
	assert.False(t, MaxValAcc.Better(0.7, 0.8))
}

func newTestOptimizer(t *testing.T, lr float64) Optimizer {
	t.Helper()
	param, err := tensor.Zeros([]int{1}, tensor.Float32)
	require.NoError(t, err)
	param.SetRequiresGrad(true)
	return NewSGD([]*tensor.Tensor{param}, lr, 0, 0)
}

func TestReduceLROnPlateauReducesAfterPatience(t *testing.T) {
	opt := newTestOptimizer(t, 1.0)
	sched := NewReduceLROnPlateau(opt, MinMSE, 2, 0.1, 1e-4)

	sched.Step(1.0) // establishes the baseline
	sched.Step(1.0) // bad epoch 1
	assert.Equal(t, 1.0, opt.LR())
	sched.Step(1.0) // bad epoch 2 triggers the reduction
	assert.InDelta(t, 0.1, opt.LR(), 1e-12)
}

func TestReduceLROnPlateauImprovementResetsCounter(t *testing.T) {
	opt := newTestOptimizer(t, 1.0)
	sched := NewReduceLROnPlateau(opt, MinMSE, 2, 0.1, 1e-4)

	sched.Step(1.0)
	sched.Step(1.0) // bad epoch 1
	sched.Step(0.5) // improvement resets
	sched.Step(0.5) // bad epoch 1 again
	assert.Equal(t, 1.0, opt.LR())
}

func TestReduceLROnPlateauMaxMode(t *testing.T) {
	opt := newTestOptimizer(t, 1.0)
	sched := NewReduceLROnPlateau(opt, MaxValAcc, 1, 0.5, 1e-4)

	sched.Step(0.8)
	sched.Step(0.9) // improvement
	assert.Equal(t, 1.0, opt.LR())
	sched.Step(0.9) // within threshold: not an improvement
	assert.InDelta(t, 0.5, opt.LR(), 1e-12)
}

func TestReduceLROnPlateauDefaults(t *testing.T) {
	opt := newTestOptimizer(t, 1.0)
	// Out-of-range factor and threshold fall back to the defaults.
	sched := NewReduceLROnPlateau(opt, MinLoss, 0, 0, -1)
	assert.Equal(t, 0.1, sched.factor)
	assert.Equal(t, 10, sched.patience)
	assert.Equal(t, 1e-4, sched.threshold)
}
