// Package model provides concrete qwfilter.Model/qwfilter.ModelDiff
// implementations used to exercise and validate the filtering core:
// a constant-coefficient linear/Gaussian model comparable against a
// textbook linear Kalman filter, and a discretized Duffing oscillator
// with full analytic sensitivities for PEM gradient checks.
package model

import (
	"github.com/dimasad/qwfilter"
	"gonum.org/v1/gonum/mat"
)

// Linear is a constant-coefficient, noise-additive linear/Gaussian
// state-space model: x_{k+1} = A*x_k, y_k = C*x_k, with stationary
// process and measurement noise covariances Qcov and Rcov. It has no
// parameter vector and does not implement qwfilter.ModelDiff; it
// exists to validate the unscented transform degenerates to the exact
// linear Kalman filter recursion when F and H are linear.
type Linear struct {
	A    *mat.Dense
	C    *mat.Dense
	Qcov *mat.SymDense
	Rcov *mat.SymDense
}

// NewLinear builds a Linear model and checks the shapes of A, C, Qcov
// and Rcov are mutually consistent.
func NewLinear(a, c *mat.Dense, qcov, rcov *mat.SymDense) (*Linear, error) {
	nx, nxc := a.Dims()
	if nx != nxc {
		return nil, qwfilter.NewError(qwfilter.KindShape, "model.NewLinear",
			"A is %d x %d, want square", nx, nxc)
	}
	ny, nxh := c.Dims()
	if nxh != nx {
		return nil, qwfilter.NewError(qwfilter.KindShape, "model.NewLinear",
			"C is %d x %d, want %d columns", ny, nxh, nx)
	}
	if qcov.Symmetric() != nx {
		return nil, qwfilter.NewError(qwfilter.KindShape, "model.NewLinear",
			"Qcov has size %d, want %d", qcov.Symmetric(), nx)
	}
	if rcov.Symmetric() != ny {
		return nil, qwfilter.NewError(qwfilter.KindShape, "model.NewLinear",
			"Rcov has size %d, want %d", rcov.Symmetric(), ny)
	}
	return &Linear{A: a, C: c, Qcov: qcov, Rcov: rcov}, nil
}

// Dims returns (nx, 0, ny): Linear carries no external parameters.
func (m *Linear) Dims() (nx, nq, ny int) {
	nx, _ = m.A.Dims()
	ny, _ = m.C.Dims()
	return nx, 0, ny
}

// F returns A*x.
func (m *Linear) F(k int, x mat.Vector) (*mat.VecDense, error) {
	var out mat.VecDense
	out.MulVec(m.A, x)
	return &out, nil
}

// H returns C*x.
func (m *Linear) H(k int, x mat.Vector) (*mat.VecDense, error) {
	var out mat.VecDense
	out.MulVec(m.C, x)
	return &out, nil
}

// Q returns the stationary process noise covariance, independent of
// k and x.
func (m *Linear) Q(k int, x mat.Vector) (mat.Symmetric, error) {
	return m.Qcov, nil
}

// R returns the stationary measurement noise covariance.
func (m *Linear) R() (mat.Symmetric, error) {
	return m.Rcov, nil
}
