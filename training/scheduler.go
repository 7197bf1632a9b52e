package training

import (
	"fmt"
)

// SchedulerMode selects which scalar metric drives learning-rate reduction
// and the "best checkpoint" policy. It is a closed set: parsing an unknown
// mode fails before training starts.
type SchedulerMode int

const (
	MinLoss SchedulerMode = iota
	MinMSE
	MaxAcc
	MaxValAcc
	MaxValMCC
)

func (m SchedulerMode) String() string {
	switch m {
	case MinLoss:
		return "min_loss"
	case MinMSE:
		return "min_mse"
	case MaxAcc:
		return "max_acc"
	case MaxValAcc:
		return "max_val_acc"
	case MaxValMCC:
		return "max_val_mcc"
	default:
		return fmt.Sprintf("unknown(%d)", int(m))
	}
}

// ParseSchedulerMode maps a configuration string to a SchedulerMode.
func ParseSchedulerMode(mode string) (SchedulerMode, error) {
	switch mode {
	case "min_loss":
		return MinLoss, nil
	case "min_mse":
		return MinMSE, nil
	case "max_acc":
		return MaxAcc, nil
	case "max_val_acc":
		return MaxValAcc, nil
	case "max_val_mcc":
		return MaxValMCC, nil
	default:
		return 0, fmt.Errorf("unsupported scheduler mode %q (want min_loss, min_mse, max_acc, max_val_acc or max_val_mcc)", mode)
	}
}

// Minimize reports whether the mode's metric should be minimized.
func (m SchedulerMode) Minimize() bool {
	return m == MinLoss || m == MinMSE
}

// Better reports whether value improves on best for this mode. Ties count as
// improvements in both directions.
func (m SchedulerMode) Better(value, best float64) bool {
	if m.Minimize() {
		return value <= best
	}
	return value >= best
}

// ReduceLROnPlateau lowers the optimizer's learning rate by a factor once the
// driven metric has stopped improving for patience epochs.
type ReduceLROnPlateau struct {
	optimizer Optimizer
	mode      SchedulerMode
	factor    float64
	patience  int
	threshold float64

	best        float64
	badEpochs   int
	initialized bool
}

// NewReduceLROnPlateau creates a plateau scheduler driving the given
// optimizer. Factor and threshold fall back to 0.1 and 1e-4.
func NewReduceLROnPlateau(optimizer Optimizer, mode SchedulerMode, patience int, factor, threshold float64) *ReduceLROnPlateau {
	if factor <= 0 || factor >= 1 {
		factor = 0.1
	}
	if patience <= 0 {
		patience = 10
	}
	if threshold < 0 {
		threshold = 1e-4
	}
	return &ReduceLROnPlateau{
		optimizer: optimizer,
		mode:      mode,
		factor:    factor,
		patience:  patience,
		threshold: threshold,
	}
}

// Step feeds one epoch's metric to the scheduler and reduces the optimizer's
// learning rate when the plateau condition is met.
func (s *ReduceLROnPlateau) Step(metric float64) {
	if !s.initialized {
		s.best = metric
		s.initialized = true
		return
	}

	improved := false
	if s.mode.Minimize() {
		improved = metric < s.best-s.threshold
	} else {
		improved = metric > s.best+s.threshold
	}

	if improved {
		s.best = metric
		s.badEpochs = 0
		return
	}

	s.badEpochs++
	if s.badEpochs >= s.patience {
		s.optimizer.SetLR(s.optimizer.LR() * s.factor)
		s.badEpochs = 0
	}
}
