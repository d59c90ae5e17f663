package model

import (
	"math"

	"github.com/dimasad/qwfilter"
	"gonum.org/v1/gonum/mat"
)

// Duffing is a forward-Euler discretization of the Duffing oscillator
//
//	x' = v
//	v' = -delta*v - beta*x - alpha*x^3 + gamma*cos(omega*t) + g2*w
//
// with state x = [x, v], parameter vector q = [alpha, beta, delta,
// g2, xMeasStd], and constants gamma, omega fixed at construction.
// Adapted from the continuous-time SymbolicDuffing model: Gamma and
// Omega are the forcing constants c, Q/H/R follow from g/h/R
// evaluated in closed form instead of symbolically.
type Duffing struct {
	Dt    float64
	Gamma float64
	Omega float64

	Alpha    float64
	Beta     float64
	Delta    float64
	G2       float64
	XMeasStd float64
}

// NewDuffing builds a Duffing model from its constants and initial
// parameter values.
func NewDuffing(dt, gamma, omega, alpha, beta, delta, g2, xMeasStd float64) *Duffing {
	return &Duffing{
		Dt: dt, Gamma: gamma, Omega: omega,
		Alpha: alpha, Beta: beta, Delta: delta, G2: g2, XMeasStd: xMeasStd,
	}
}

// Dims returns nx=2, nq=5, ny=1.
func (m *Duffing) Dims() (nx, nq, ny int) { return 2, 5, 1 }

func (m *Duffing) t(k int) float64 { return float64(k) * m.Dt }

// F propagates [x, v] by one explicit-Euler step of the drift.
func (m *Duffing) F(k int, xv mat.Vector) (*mat.VecDense, error) {
	x, v := xv.AtVec(0), xv.AtVec(1)
	fc1 := v
	fc2 := -m.Delta*v - m.Beta*x - m.Alpha*x*x*x + m.Gamma*math.Cos(m.Omega*m.t(k))
	return mat.NewVecDense(2, []float64{
		x + m.Dt*fc1,
		v + m.Dt*fc2,
	}), nil
}

// H returns the position measurement [x].
func (m *Duffing) H(k int, xv mat.Vector) (*mat.VecDense, error) {
	return mat.NewVecDense(1, []float64{xv.AtVec(0)}), nil
}

// Q is the Euler-discretized process noise covariance dt*g*g^T, where
// g = diag(0, G2) is independent of x.
func (m *Duffing) Q(k int, x mat.Vector) (mat.Symmetric, error) {
	return mat.NewSymDense(2, []float64{
		0, 0,
		0, m.Dt * m.G2 * m.G2,
	}), nil
}

// R is the measurement noise variance XMeasStd^2.
func (m *Duffing) R() (mat.Symmetric, error) {
	return mat.NewSymDense(1, []float64{m.XMeasStd * m.XMeasStd}), nil
}

// DfDx is d F / d x = I + dt * d fc / d x.
func (m *Duffing) DfDx(k int, xv mat.Vector) (*mat.Dense, error) {
	x := xv.AtVec(0)
	return mat.NewDense(2, 2, []float64{
		1, m.Dt,
		m.Dt * (-m.Beta - 3*m.Alpha*x*x), 1 - m.Dt*m.Delta,
	}), nil
}

// DfDq is d F / d q, shape 2x5, columns ordered
// [alpha, beta, delta, g2, xMeasStd].
func (m *Duffing) DfDq(k int, xv mat.Vector) (*mat.Dense, error) {
	x, v := xv.AtVec(0), xv.AtVec(1)
	return mat.NewDense(2, 5, []float64{
		0, 0, 0, 0, 0,
		m.Dt * (-x * x * x), m.Dt * (-x), m.Dt * (-v), 0, 0,
	}), nil
}

// DhDx is d H / d x, shape 1x2.
func (m *Duffing) DhDx(k int, xv mat.Vector) (*mat.Dense, error) {
	return mat.NewDense(1, 2, []float64{1, 0}), nil
}

// DhDq is d H / d q, shape 1x5: H does not depend on q.
func (m *Duffing) DhDq(k int, xv mat.Vector) (*mat.Dense, error) {
	return mat.NewDense(1, 5, nil), nil
}

// DQDx is d Q / d x: Q is constant in x, so both slices are zero.
func (m *Duffing) DQDx(k int, x mat.Vector) ([]*mat.SymDense, error) {
	return []*mat.SymDense{
		mat.NewSymDense(2, nil),
		mat.NewSymDense(2, nil),
	}, nil
}

// DQDq is d Q / d q: only G2 affects Q, via d(dt*g2^2)/dg2 = 2*dt*g2.
func (m *Duffing) DQDq(k int, x mat.Vector) ([]*mat.SymDense, error) {
	zero := func() *mat.SymDense { return mat.NewSymDense(2, nil) }
	dg2 := mat.NewSymDense(2, []float64{
		0, 0,
		0, 2 * m.Dt * m.G2,
	})
	return []*mat.SymDense{zero(), zero(), zero(), dg2, zero()}, nil
}

// DRDq is d R / d q: only XMeasStd affects R, via d(s^2)/ds = 2*s.
func (m *Duffing) DRDq() ([]*mat.SymDense, error) {
	zero := func() *mat.SymDense { return mat.NewSymDense(1, nil) }
	dstd := mat.NewSymDense(1, []float64{2 * m.XMeasStd})
	return []*mat.SymDense{zero(), zero(), zero(), zero(), dstd}, nil
}

// Parametrize returns a copy of m with q = [alpha, beta, delta, g2,
// xMeasStd] substituted in place of the receiver's current values,
// leaving Dt, Gamma and Omega untouched.
func (m *Duffing) Parametrize(q []float64) (qwfilter.Model, error) {
	if len(q) != 5 {
		return nil, qwfilter.NewError(qwfilter.KindShape, "model.Duffing.Parametrize",
			"q has length %d, want 5", len(q))
	}
	out := *m
	out.Alpha, out.Beta, out.Delta, out.G2, out.XMeasStd = q[0], q[1], q[2], q[3], q[4]
	return &out, nil
}
