package optim

import (
	"math"

	"github.com/born-ml/distill/internal/autodiff"
	"github.com/born-ml/distill/internal/nn"
)

// Default Adam hyperparameters.
const (
	DefaultAdamLR      = 1e-3
	DefaultAdamBeta1   = 0.9
	DefaultAdamBeta2   = 0.999
	DefaultAdamEpsilon = 1e-7
)

// Adam implements the Adam (Adaptive Moment Estimation) optimizer.
//
// Update rule:
//
//	m_t = beta1 * m_{t-1} + (1-beta1) * gradient       // First moment
//	v_t = beta2 * v_{t-1} + (1-beta2) * gradient²      // Second moment
//	m_hat = m_t / (1 - beta1^t)                        // Bias correction
//	v_hat = v_t / (1 - beta2^t)                        // Bias correction
//	param = param - lr * m_hat / (sqrt(v_hat) + eps)  // Parameter update
//
// Reference: "Adam: A Method for Stochastic Optimization" (Kingma & Ba, 2014)
type Adam struct {
	params []*nn.Parameter
	lr     float32
	beta1  float32
	beta2  float32
	eps    float32
	t      int                         // Timestep for bias correction
	m      map[*nn.Parameter][]float32 // First moment estimates
	v      map[*nn.Parameter][]float32 // Second moment estimates
}

// AdamConfig holds configuration for Adam optimizer.
type AdamConfig struct {
	LR    float32    // Learning rate (default: 0.001)
	Betas [2]float32 // Coefficients for computing running averages (default: [0.9, 0.999])
	Eps   float32    // Term for numerical stability (default: 1e-7)
}

// NewAdam creates a new Adam optimizer. Zero fields in config take the
// package defaults.
func NewAdam(params []*nn.Parameter, config AdamConfig) *Adam {
	if config.LR == 0 {
		config.LR = DefaultAdamLR
	}
	if config.Betas[0] == 0 {
		config.Betas[0] = DefaultAdamBeta1
	}
	if config.Betas[1] == 0 {
		config.Betas[1] = DefaultAdamBeta2
	}
	if config.Eps == 0 {
		config.Eps = DefaultAdamEpsilon
	}

	return &Adam{
		params: params,
		lr:     config.LR,
		beta1:  config.Betas[0],
		beta2:  config.Betas[1],
		eps:    config.Eps,
		m:      make(map[*nn.Parameter][]float32),
		v:      make(map[*nn.Parameter][]float32),
	}
}

// Step performs a single optimization step using Adam algorithm.
func (a *Adam) Step(grads autodiff.Gradients) error {
	updates, err := collect(a.params, grads)
	if err != nil {
		return err
	}

	a.t++
	biasCorrection1 := float32(1.0 - math.Pow(float64(a.beta1), float64(a.t)))
	biasCorrection2 := float32(1.0 - math.Pow(float64(a.beta2), float64(a.t)))

	for _, u := range updates {
		m, ok := a.m[u.param]
		if !ok {
			m = make([]float32, u.param.NumElements())
			a.m[u.param] = m
		}
		v, ok := a.v[u.param]
		if !ok {
			v = make([]float32, u.param.NumElements())
			a.v[u.param] = v
		}

		data := u.param.Tensor().Data()
		for i, g := range u.grad {
			m[i] = a.beta1*m[i] + (1.0-a.beta1)*g
			v[i] = a.beta2*v[i] + (1.0-a.beta2)*g*g
			mHat := m[i] / biasCorrection1
			vHat := v[i] / biasCorrection2
			data[i] -= a.lr * mHat / (float32(math.Sqrt(float64(vHat))) + a.eps)
		}
	}
	return nil
}

// LR returns the current learning rate.
func (a *Adam) LR() float32 {
	return a.lr
}

// SetLR updates the learning rate.
func (a *Adam) SetLR(lr float32) {
	a.lr = lr
}

// Timestep returns the number of steps taken so far.
func (a *Adam) Timestep() int {
	return a.t
}
