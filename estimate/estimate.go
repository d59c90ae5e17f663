// Package estimate holds the per-step state estimate snapshot the
// filter core hands back to callers: a time index paired with a
// state mean and covariance.
package estimate

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

// Step is one time step's state estimate: the filtered or predicted
// mean X and covariance Px at step K.
type Step struct {
	K  int
	X  *mat.VecDense
	Px *mat.SymDense
}

// New builds a Step, cloning x and px so the filter's own workspace
// can keep mutating after the snapshot is handed out.
func New(k int, x *mat.VecDense, px *mat.SymDense) Step {
	return Step{
		K:  k,
		X:  mat.VecDenseCopyOf(x),
		Px: symDenseCopyOf(px),
	}
}

// State returns the state mean.
func (s Step) State() *mat.VecDense { return s.X }

// Covariance returns the state covariance.
func (s Step) Covariance() *mat.SymDense { return s.Px }

// StdDev returns the per-component standard deviation, sqrt(diag(Px)).
func (s Step) StdDev() []float64 {
	n := s.Px.Symmetric()
	sd := make([]float64, n)
	for i := 0; i < n; i++ {
		sd[i] = sqrtNonNeg(s.Px.At(i, i))
	}
	return sd
}

func symDenseCopyOf(m *mat.SymDense) *mat.SymDense {
	n := m.Symmetric()
	cp := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			cp.SetSym(i, j, m.At(i, j))
		}
	}
	return cp
}

func sqrtNonNeg(v float64) float64 {
	if v < 0 {
		return 0
	}
	return math.Sqrt(v)
}
