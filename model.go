// Package qwfilter defines the collaborator contracts consumed by the
// discrete-time unscented Kalman filter core: the system Model, the
// measurement type and its partial-observation mask, and the typed
// errors the filtering packages in this module can return.
package qwfilter

import "gonum.org/v1/gonum/mat"

// Model is a discrete-time nonlinear system model. It exposes the
// drift, measurement and noise-covariance functions the unscented
// transform propagates sigma points through. The core never builds or
// differentiates a Model; it only calls it.
type Model interface {
	// Dims returns the state, parameter and output vector lengths.
	Dims() (nx, nq, ny int)
	// F is the drift function: x_{k+1} = F(k, x_k) (noise-free part).
	F(k int, x mat.Vector) (*mat.VecDense, error)
	// H is the measurement function: y_k = H(k, x_k) (noise-free part).
	H(k int, x mat.Vector) (*mat.VecDense, error)
	// Q is the process noise covariance at step k, evaluated at x.
	Q(k int, x mat.Vector) (mat.Symmetric, error)
	// R is the (stationary) measurement noise covariance.
	R() (mat.Symmetric, error)
}

// ModelDiff is a Model that additionally exposes the first partial
// derivatives of F, H, Q and R with respect to the state x and the
// external parameter vector q. Shapes follow the usual Jacobian
// convention of output-rows by input-columns.
type ModelDiff interface {
	Model

	// DfDx is d F / d x, shape nx × nx.
	DfDx(k int, x mat.Vector) (*mat.Dense, error)
	// DfDq is d F / d q, shape nx × nq.
	DfDq(k int, x mat.Vector) (*mat.Dense, error)
	// DhDx is d H / d x, shape ny × nx.
	DhDx(k int, x mat.Vector) (*mat.Dense, error)
	// DhDq is d H / d q, shape ny × nq.
	DhDq(k int, x mat.Vector) (*mat.Dense, error)
	// DQDx is d Q / d x, one symmetric nx × nx slice per x component.
	DQDx(k int, x mat.Vector) ([]*mat.SymDense, error)
	// DQDq is d Q / d q, one symmetric nx × nx slice per parameter.
	DQDq(k int, x mat.Vector) ([]*mat.SymDense, error)
	// DRDq is d R / d q, one symmetric ny × ny slice per parameter.
	DRDq() ([]*mat.SymDense, error)
}

// Parametrizer binds a Model to a specific parameter vector q,
// returning a Model that can be queried repeatedly without
// re-threading q through every call. Optional: Models used only in
// gradient-free mode never need it.
type Parametrizer interface {
	Parametrize(q []float64) (Model, error)
}

// Measurement is a single measurement vector together with a mask
// flagging components that were not observed at this time step.
// Masked components are skipped by ukf.Filter.Correct.
type Measurement struct {
	Y    *mat.VecDense
	Mask []bool
}

// Len returns the nominal measurement dimension ny.
func (m Measurement) Len() int {
	if m.Y == nil {
		return len(m.Mask)
	}
	return m.Y.Len()
}

// Active returns the indices of the unmasked (observed) components.
func (m Measurement) Active() []int {
	active := make([]int, 0, m.Len())
	for i, masked := range m.Mask {
		if !masked {
			active = append(active, i)
		}
	}
	return active
}

// FullMask builds a Measurement with no masked components.
func FullMask(y *mat.VecDense) Measurement {
	mask := make([]bool, y.Len())
	return Measurement{Y: y, Mask: mask}
}
