package ukf

import (
	"github.com/dimasad/qwfilter"
	"github.com/dimasad/qwfilter/estimate"
	"github.com/dimasad/qwfilter/unscented"
	"gonum.org/v1/gonum/mat"
)

// Filter is a discrete-time unscented Kalman filter over a
// qwfilter.Model, with first-order sensitivity propagation available
// whenever the model additionally implements qwfilter.ModelDiff.
type Filter struct {
	model qwfilter.Model
	cfg   Config
	nx    int
	nq    int
	ny    int

	predUT *unscented.Transform
	corrUT *unscented.Transform

	state *State
	phase Phase
}

// New builds a Filter around model with the given configuration and
// initial state. Px0 must be symmetric positive-definite; failure is
// detected lazily at the first Predict/Correct that calls
// sqrtmat.Sqrt on it (spec §8 scenario S4), since MatrixSqrt is the
// only component that actually needs to factor it.
func New(model qwfilter.Model, cfg Config, x0 *mat.VecDense, px0 *mat.SymDense) (*Filter, error) {
	nx, nq, ny := model.Dims()
	if nx <= 0 || ny <= 0 {
		return nil, qwfilter.NewError(qwfilter.KindShape, "ukf.New",
			"invalid model dimensions nx=%d ny=%d", nx, ny)
	}
	if x0.Len() != nx {
		return nil, qwfilter.NewError(qwfilter.KindShape, "ukf.New",
			"x0 has length %d, want %d", x0.Len(), nx)
	}
	if px0.Symmetric() != nx {
		return nil, qwfilter.NewError(qwfilter.KindShape, "ukf.New",
			"Px0 has size %d, want %d", px0.Symmetric(), nx)
	}
	if err := cfg.validate(nx); err != nil {
		return nil, err
	}

	predUT, err := unscented.New(nx, cfg.predUT(), cfg.Sqrt)
	if err != nil {
		return nil, err
	}
	corrUT, err := unscented.New(nx, cfg.corrUT(), cfg.Sqrt)
	if err != nil {
		return nil, err
	}

	return &Filter{
		model:  model,
		cfg:    cfg,
		nx:     nx,
		nq:     nq,
		ny:     ny,
		predUT: predUT,
		corrUT: corrUT,
		state:  newState(nx, nq, x0, px0),
		phase:  Quiescent,
	}, nil
}

// State returns the filter's current state bundle. Callers must treat
// it as read-only; Filter continues to mutate it in place.
func (f *Filter) State() *State { return f.state }

// Phase returns the current call-order state.
func (f *Filter) Phase() Phase { return f.phase }

// Step returns an estimate.Step snapshot of the current (k, x, Px).
func (f *Filter) Step() estimate.Step {
	return estimate.New(f.state.K, f.state.X, f.state.Px)
}

// Filter sweeps the measurement sequence Y, correcting then (except
// after the last sample) predicting at every step, and returns the
// filtered mean and covariance history. Spec §4.5, filter.
func (f *Filter) Filter(Y []qwfilter.Measurement) ([]estimate.Step, error) {
	n := len(Y)
	out := make([]estimate.Step, n)

	for k := 0; k < n; k++ {
		if err := f.Correct(Y[k]); err != nil {
			return nil, err
		}
		out[k] = f.Step()
		if k < n-1 {
			if err := f.Predict(); err != nil {
				return nil, err
			}
		}
	}

	return out, nil
}

// PEMMerit sweeps Y like Filter but additionally accumulates the
// measurement log-likelihood and returns it. Spec §4.5, pem_merit.
func (f *Filter) PEMMerit(Y []qwfilter.Measurement) (float64, error) {
	n := len(Y)

	for k := 0; k < n; k++ {
		if err := f.Correct(Y[k]); err != nil {
			return 0, err
		}
		if err := f.UpdateLikelihood(); err != nil {
			return 0, err
		}
		if k < n-1 {
			if err := f.Predict(); err != nil {
				return 0, err
			}
		}
	}

	return f.state.L, nil
}

// PEMGradient sweeps Y like PEMMerit but additionally propagates
// d(L)/dq through every step via CorrectionDiff/LikelihoodDiff and
// PredictionDiff, returning the accumulated gradient. Spec §4.5,
// pem_gradient.
func (f *Filter) PEMGradient(Y []qwfilter.Measurement) ([]float64, error) {
	n := len(Y)

	for k := 0; k < n; k++ {
		if err := f.Correct(Y[k]); err != nil {
			return nil, err
		}
		if err := f.CorrectionDiff(); err != nil {
			return nil, err
		}
		if err := f.LikelihoodDiff(); err != nil {
			return nil, err
		}
		if k < n-1 {
			if err := f.Predict(); err != nil {
				return nil, err
			}
			if err := f.PredictionDiff(); err != nil {
				return nil, err
			}
		}
	}

	return append([]float64(nil), f.state.DLDq...), nil
}
