package training

import (
	"fmt"
	"math"
	"sync"

	"github.com/OscarLlorente/AgeGenderDetector/tensor"
)

// OptimizerName is the closed set of supported optimizers. Parsing an unknown
// name fails before training starts.
type OptimizerName int

const (
	SGDOptimizer OptimizerName = iota
	AdamOptimizer
	AdamWOptimizer
)

func (n OptimizerName) String() string {
	switch n {
	case SGDOptimizer:
		return "sgd"
	case AdamOptimizer:
		return "adam"
	case AdamWOptimizer:
		return "adamw"
	default:
		return fmt.Sprintf("unknown(%d)", int(n))
	}
}

// ParseOptimizerName maps a configuration string to an OptimizerName.
func ParseOptimizerName(name string) (OptimizerName, error) {
	switch name {
	case "sgd":
		return SGDOptimizer, nil
	case "adam":
		return AdamOptimizer, nil
	case "adamw":
		return AdamWOptimizer, nil
	default:
		return 0, fmt.Errorf("unsupported optimizer %q (want sgd, adam or adamw)", name)
	}
}

// Optimizer updates model parameters from their accumulated gradients.
type Optimizer interface {
	Step() error
	ZeroGrad()
	LR() float64
	SetLR(lr float64)
}

// NewOptimizer builds the named optimizer over the given parameters with the
// standard hyperparameters for each variant.
func NewOptimizer(name OptimizerName, params []*tensor.Tensor, lr float64) (Optimizer, error) {
	switch name {
	case SGDOptimizer:
		return NewSGD(params, lr, 0.9, 1e-4), nil
	case AdamOptimizer:
		return NewAdam(params, lr, 0.9, 0.999, 1e-8), nil
	case AdamWOptimizer:
		return NewAdamW(params, lr, 0.9, 0.999, 1e-8, 1e-2), nil
	default:
		return nil, fmt.Errorf("unsupported optimizer %s", name)
	}
}

func gradData(param *tensor.Tensor) ([]float32, []float32, error) {
	grad := param.Grad()
	if grad == nil {
		return nil, nil, nil
	}
	p, err := param.GetFloat32Data()
	if err != nil {
		return nil, nil, fmt.Errorf("parameter data: %w", err)
	}
	g, err := grad.GetFloat32Data()
	if err != nil {
		return nil, nil, fmt.Errorf("gradient data: %w", err)
	}
	if len(p) != len(g) {
		return nil, nil, fmt.Errorf("gradient size %d does not match parameter size %d", len(g), len(p))
	}
	return p, g, nil
}

// SGD implements stochastic gradient descent with momentum and L2 weight
// decay folded into the gradient.
type SGD struct {
	params      []*tensor.Tensor
	lr          float64
	momentum    float64
	weightDecay float64
	velocities  map[*tensor.Tensor][]float32
	mu          sync.Mutex
}

func NewSGD(params []*tensor.Tensor, lr, momentum, weightDecay float64) *SGD {
	return &SGD{
		params:      params,
		lr:          lr,
		momentum:    momentum,
		weightDecay: weightDecay,
		velocities:  make(map[*tensor.Tensor][]float32),
	}
}

func (s *SGD) Step() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, param := range s.params {
		if !param.RequiresGrad() {
			continue
		}
		p, g, err := gradData(param)
		if err != nil {
			return fmt.Errorf("sgd step parameter %d: %w", i, err)
		}
		if g == nil {
			continue
		}

		var velocity []float32
		if s.momentum > 0 {
			velocity = s.velocities[param]
			if velocity == nil {
				velocity = make([]float32, len(p))
				s.velocities[param] = velocity
			}
		}

		for j := range p {
			grad := float64(g[j]) + s.weightDecay*float64(p[j])
			if s.momentum > 0 {
				v := s.momentum*float64(velocity[j]) + grad
				velocity[j] = float32(v)
				grad = v
			}
			p[j] -= float32(s.lr * grad)
		}
	}
	return nil
}

func (s *SGD) ZeroGrad() { tensor.ZeroGrad(s.params) }

func (s *SGD) LR() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lr
}

func (s *SGD) SetLR(lr float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lr = lr
}

// Adam implements the Adam optimizer with bias-corrected moment estimates.
type Adam struct {
	params []*tensor.Tensor
	lr     float64
	beta1  float64
	beta2  float64
	eps    float64
	step   int64
	m      map[*tensor.Tensor][]float32
	v      map[*tensor.Tensor][]float32
	mu     sync.Mutex

	// decoupled weight decay, zero for plain Adam
	weightDecay float64
}

func NewAdam(params []*tensor.Tensor, lr, beta1, beta2, eps float64) *Adam {
	return &Adam{
		params: params,
		lr:     lr,
		beta1:  beta1,
		beta2:  beta2,
		eps:    eps,
		m:      make(map[*tensor.Tensor][]float32),
		v:      make(map[*tensor.Tensor][]float32),
	}
}

// NewAdamW creates Adam with decoupled weight decay applied directly to the
// parameters before the adaptive update.
func NewAdamW(params []*tensor.Tensor, lr, beta1, beta2, eps, weightDecay float64) *Adam {
	adam := NewAdam(params, lr, beta1, beta2, eps)
	adam.weightDecay = weightDecay
	return adam
}

func (a *Adam) Step() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.step++
	bias1 := 1.0 - math.Pow(a.beta1, float64(a.step))
	bias2 := 1.0 - math.Pow(a.beta2, float64(a.step))

	for i, param := range a.params {
		if !param.RequiresGrad() {
			continue
		}
		p, g, err := gradData(param)
		if err != nil {
			return fmt.Errorf("adam step parameter %d: %w", i, err)
		}
		if g == nil {
			continue
		}

		m := a.m[param]
		v := a.v[param]
		if m == nil {
			m = make([]float32, len(p))
			v = make([]float32, len(p))
			a.m[param] = m
			a.v[param] = v
		}

		for j := range p {
			if a.weightDecay > 0 {
				p[j] -= float32(a.lr * a.weightDecay * float64(p[j]))
			}

			grad := float64(g[j])
			mj := a.beta1*float64(m[j]) + (1-a.beta1)*grad
			vj := a.beta2*float64(v[j]) + (1-a.beta2)*grad*grad
			m[j] = float32(mj)
			v[j] = float32(vj)

			mHat := mj / bias1
			vHat := vj / bias2
			p[j] -= float32(a.lr * mHat / (math.Sqrt(vHat) + a.eps))
		}
	}
	return nil
}

func (a *Adam) ZeroGrad() { tensor.ZeroGrad(a.params) }

func (a *Adam) LR() float64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.lr
}

func (a *Adam) SetLR(lr float64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.lr = lr
}
