package ukf

import "gonum.org/v1/gonum/mat"

// State is the mutable bundle carried step to step: the time index,
// posterior (x, Px), accumulated log-likelihood, and their
// derivatives with respect to the external parameter vector q. Filter
// owns exactly one State for its lifetime.
type State struct {
	K  int
	X  *mat.VecDense
	Px *mat.SymDense
	L  float64

	// DxDq is nq × nx: row i is d(x)/dq_i.
	DxDq *mat.Dense
	// DPxDq has one nx × nx symmetric slice per parameter.
	DPxDq []*mat.SymDense
	// DLDq is length nq.
	DLDq []float64

	// prev* retains the pre-step snapshot consumed by the matching
	// *Diff call; valid iff the last forward call was Predict or
	// Correct and its *Diff counterpart has not yet consumed it.
	prevK     int
	prevX     *mat.VecDense
	prevPx    *mat.SymDense
	prevDxDq  *mat.Dense
	prevDPxDq []*mat.SymDense

	// correction workspace, set by Correct and consumed by
	// CorrectionDiff/LikelihoodDiff.
	active []int
	e      *mat.VecDense
	Pxh    *mat.Dense
	Py     *mat.SymDense
	PyI    *mat.SymDense
	PyC    *mat.Dense
	PyCI   *mat.Dense
	gainK  *mat.Dense

	// de/dq, dPy/dq, dPyI/dq and dK/dq are set by CorrectionDiff;
	// LikelihoodDiff consumes the first three.
	deDq   []*mat.VecDense
	dPyDq  []*mat.SymDense
	dPyIDq []*mat.SymDense
	dKDq   []*mat.Dense
}

func newState(nx, nq int, x0 *mat.VecDense, px0 *mat.SymDense) *State {
	dxdq := mat.NewDense(nq, nx, nil)
	dpxdq := make([]*mat.SymDense, nq)
	for i := range dpxdq {
		dpxdq[i] = mat.NewSymDense(nx, nil)
	}

	return &State{
		X:     mat.VecDenseCopyOf(x0),
		Px:    symDenseCopyOf(px0),
		DxDq:  dxdq,
		DPxDq: dpxdq,
		DLDq:  make([]float64, nq),
	}
}

func (s *State) snapshotPrev() {
	s.prevX = mat.VecDenseCopyOf(s.X)
	s.prevPx = symDenseCopyOf(s.Px)
	s.prevDxDq = denseCopyOf(s.DxDq)
	s.prevDPxDq = make([]*mat.SymDense, len(s.DPxDq))
	for i, m := range s.DPxDq {
		s.prevDPxDq[i] = symDenseCopyOf(m)
	}
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

func denseCopyOf(m *mat.Dense) *mat.Dense {
	r, c := m.Dims()
	cp := mat.NewDense(r, c, nil)
	cp.Copy(m)
	return cp
}
