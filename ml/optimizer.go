package ml

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
)

const (
	OptSGD      OptimizerType = "sgd"
	OptMomentum OptimizerType = "momentum"
	OptRMSProp  OptimizerType = "rmsprop"
	OptAdagrad  OptimizerType = "adagrad"
	OptAdam     OptimizerType = "adam"
)

// Epsilon is added under the square root of adaptive optimizers.
const Epsilon = 1e-6

// AdamBiasCutoff is the last iteration at which Adam bias-corrects its
// moment estimates. Later iterations use the raw estimates.
const AdamBiasCutoff = 50

type OptimizerType string

// Ratio is an exact rational hyperparameter, fixed at construction.
type Ratio struct {
	Num, Den int
}

// R is shorthand for Ratio{num, den}.
func R(num, den int) Ratio { return Ratio{Num: num, Den: den} }

func (r Ratio) Float() float64 {
	if r.Den == 0 {
		panic(fmt.Sprintf("ratio %d/0 has a zero denominator", r.Num))
	}
	return float64(r.Num) / float64(r.Den)
}

func (r Ratio) IsZero() bool { return r.Num == 0 && r.Den == 0 }

func (r Ratio) String() string { return fmt.Sprintf("%d/%d", r.Num, r.Den) }

// Optimizer owns the running state for exactly one parameter tensor.
type Optimizer interface {
	// UpdateParam mutates weight in place using gradient.
	UpdateParam(weight, gradient *Matrix)
}

// OptimizerFactory creates a zero-state optimizer for a parameter shape.
// Layers call Init once per learnable tensor at construction.
type OptimizerFactory interface {
	Init(rows, cols int) Optimizer
	Name() string
}

// OptimizerConfig selects a strategy and its hyperparameters.
// Zero ratios fall back to the defaults documented on each field.
type OptimizerConfig struct {
	Type  OptimizerType
	Alpha Ratio // learning rate (default 1/100)
	Beta  Ratio // momentum decay (default 9/10)
	Rho   Ratio // RMSProp decay (default 9/10)
	Beta1 Ratio // Adam first moment decay (default 9/10)
	Beta2 Ratio // Adam second moment decay (default 999/1000)
}

func NewOptimizerFactory(cfg OptimizerConfig) OptimizerFactory {
	orDefault := func(r, def Ratio) Ratio {
		if r.IsZero() {
			return def
		}
		return r
	}
	alpha := orDefault(cfg.Alpha, R(1, 100))

	switch cfg.Type {
	case OptSGD:
		return SGD{Alpha: alpha}
	case OptMomentum:
		return Momentum{Alpha: alpha, Beta: orDefault(cfg.Beta, R(9, 10))}
	case OptRMSProp:
		return RMSProp{Alpha: alpha, Rho: orDefault(cfg.Rho, R(9, 10))}
	case OptAdagrad:
		return Adagrad{Alpha: alpha}
	case OptAdam:
		return Adam{
			Alpha: alpha,
			Beta1: orDefault(cfg.Beta1, R(9, 10)),
			Beta2: orDefault(cfg.Beta2, R(999, 1000)),
		}
	default:
		panic("unknown optimizer type: " + string(cfg.Type))
	}
}

// ------ SGD ------ //

// SGD applies weight -= alpha * gradient.
type SGD struct {
	Alpha Ratio
}

type sgdOptimizer struct {
	alpha float64
}

func (f SGD) Init(int, int) Optimizer { return &sgdOptimizer{alpha: f.Alpha.Float()} }
func (f SGD) Name() string             { return fmt.Sprintf("sgd(alpha=%s)", f.Alpha) }

func (opt *sgdOptimizer) UpdateParam(weight, gradient *Matrix) {
	mustSameShape("sgd", weight, gradient)
	floats.AddScaled(weight.data, -opt.alpha, gradient.data)
}

// ------ MOMENTUM ------ //

// Momentum keeps an exponential average v of the gradient:
// v = beta*v + (1-beta)*gradient; weight -= alpha*v.
type Momentum struct {
	Alpha, Beta Ratio
}

type momentumOptimizer struct {
	alpha, beta float64
	velocity    *Matrix
}

func (f Momentum) Init(rows, cols int) Optimizer {
	return &momentumOptimizer{
		alpha:    f.Alpha.Float(),
		beta:     f.Beta.Float(),
		velocity: NewMatrix(rows, cols),
	}
}

func (f Momentum) Name() string {
	return fmt.Sprintf("momentum(alpha=%s, beta=%s)", f.Alpha, f.Beta)
}

func (opt *momentumOptimizer) UpdateParam(weight, gradient *Matrix) {
	mustSameShape("momentum", weight, gradient)
	v := opt.velocity.data
	for i, g := range gradient.data {
		v[i] = opt.beta*v[i] + (1-opt.beta)*g
	}
	floats.AddScaled(weight.data, -opt.alpha, v)
}

// ------ RMSPROP ------ //

// RMSProp keeps a decaying average of squared gradients.
type RMSProp struct {
	Alpha, Rho Ratio
}

type rmsPropOptimizer struct {
	alpha, rho float64
	g          *Matrix
}

func (f RMSProp) Init(rows, cols int) Optimizer {
	return &rmsPropOptimizer{alpha: f.Alpha.Float(), rho: f.Rho.Float(), g: NewMatrix(rows, cols)}
}

func (f RMSProp) Name() string {
	return fmt.Sprintf("rmsprop(alpha=%s, rho=%s)", f.Alpha, f.Rho)
}

func (opt *rmsPropOptimizer) UpdateParam(weight, gradient *Matrix) {
	mustSameShape("rmsprop", weight, gradient)
	acc := opt.g.data
	w := weight.data
	for i, g := range gradient.data {
		acc[i] = opt.rho*acc[i] + (1-opt.rho)*g*g
		w[i] -= opt.alpha * g / math.Sqrt(acc[i]+Epsilon)
	}
}

// ------ ADAGRAD ------ //

// Adagrad accumulates squared gradients without decay.
type Adagrad struct {
	Alpha Ratio
}

type adagradOptimizer struct {
	alpha float64
	g     *Matrix
}

func (f Adagrad) Init(rows, cols int) Optimizer {
	return &adagradOptimizer{alpha: f.Alpha.Float(), g: NewMatrix(rows, cols)}
}

func (f Adagrad) Name() string { return fmt.Sprintf("adagrad(alpha=%s)", f.Alpha) }

func (opt *adagradOptimizer) UpdateParam(weight, gradient *Matrix) {
	mustSameShape("adagrad", weight, gradient)
	acc := opt.g.data
	w := weight.data
	for i, g := range gradient.data {
		acc[i] += g * g
		w[i] -= opt.alpha * g / math.Sqrt(acc[i]+Epsilon)
	}
}

// ------ ADAM ------ //

// Adam tracks first and second moments. Bias correction is applied only
// while the iteration counter is at or below AdamBiasCutoff; after that the
// counter stops advancing and the raw moments are used.
type Adam struct {
	Alpha, Beta1, Beta2 Ratio
}

type adamOptimizer struct {
	alpha, beta1, beta2 float64
	m, v                *Matrix
	t                   int
}

func (f Adam) Init(rows, cols int) Optimizer {
	return &adamOptimizer{
		alpha: f.Alpha.Float(),
		beta1: f.Beta1.Float(),
		beta2: f.Beta2.Float(),
		m:     NewMatrix(rows, cols),
		v:     NewMatrix(rows, cols),
		t:     1,
	}
}

func (f Adam) Name() string {
	return fmt.Sprintf("adam(alpha=%s, beta1=%s, beta2=%s)", f.Alpha, f.Beta1, f.Beta2)
}

func (opt *adamOptimizer) UpdateParam(weight, gradient *Matrix) {
	mustSameShape("adam", weight, gradient)

	correction1, correction2 := 1.0, 1.0
	if opt.t <= AdamBiasCutoff {
		correction1 = 1 - math.Pow(opt.beta1, float64(opt.t))
		correction2 = 1 - math.Pow(opt.beta2, float64(opt.t))
	}

	m, v, w := opt.m.data, opt.v.data, weight.data
	for i, g := range gradient.data {
		m[i] = opt.beta1*m[i] + (1-opt.beta1)*g
		v[i] = opt.beta2*v[i] + (1-opt.beta2)*g*g

		mHat := m[i] / correction1
		vHat := v[i] / correction2
		w[i] -= opt.alpha * mHat / math.Sqrt(vHat+Epsilon)
	}

	if opt.t <= AdamBiasCutoff {
		opt.t++
	}
}
