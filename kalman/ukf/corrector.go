package ukf

import (
	"math"

	"github.com/dimasad/qwfilter"
	"github.com/dimasad/qwfilter/sqrtmat"
	"gonum.org/v1/gonum/mat"
)

// Correct applies a measurement update using the correction-side
// unscented transform on the model's measurement function, restricted
// to the unmasked components of y. A fully-masked measurement leaves
// (x, Px, L) unchanged (spec §8 invariant 6). Spec §4.4, correct.
func (f *Filter) Correct(y qwfilter.Measurement) error {
	if !f.phase.in(Quiescent, Predicted, PredDiffed) {
		return outOfOrder("ukf.Filter.Correct", f.phase, Quiescent, Predicted, PredDiffed)
	}

	s := f.state
	active := y.Active()
	s.active = active

	if len(active) == 0 {
		f.phase = Corrected
		return nil
	}

	k := s.K
	na := len(active)

	R, err := f.model.R()
	if err != nil {
		return err
	}
	Ra := restrictSym(R, active)

	hFun := func(x *mat.VecDense) (*mat.VecDense, error) {
		full, err := f.model.H(k, x)
		if err != nil {
			return nil, err
		}
		return selectVec(full, active), nil
	}

	hMean, Ph, err := f.corrUT.Transform(s.X, s.Px, hFun)
	if err != nil {
		return err
	}
	Pxh, err := f.corrUT.CrossCov()
	if err != nil {
		return err
	}

	Py := mat.NewSymDense(na, nil)
	for i := 0; i < na; i++ {
		for j := i; j < na; j++ {
			Py.SetSym(i, j, Ph.At(i, j)+Ra.At(i, j))
		}
	}

	// The innovation covariance factor must stay triangular regardless
	// of cfg.Sqrt: UpdateLikelihood's log-determinant via sum(log(diag))
	// only holds for a triangular factor, so this is always Cholesky.
	PyC, err := sqrtmat.New(sqrtmat.Cholesky).SqrtOf(Py)
	if err != nil {
		return err
	}

	var PyCI mat.Dense
	if err := PyCI.Inverse(PyC); err != nil {
		return qwfilter.NewError(qwfilter.KindNotSPD, "ukf.Filter.Correct",
			"innovation covariance factor is singular: %v", err)
	}

	var PyI mat.Dense
	PyI.Mul(&PyCI, PyCI.T())
	PyISym := denseToSym(&PyI, na)

	e := mat.NewVecDense(na, nil)
	for i, gi := range active {
		e.SetVec(i, y.Y.AtVec(gi)-hMean.AtVec(i))
	}

	var K mat.Dense
	K.Mul(Pxh, PyISym)

	corr := mat.NewVecDense(f.nx, nil)
	corr.MulVec(&K, e)

	newX := mat.NewVecDense(f.nx, nil)
	newX.AddVec(s.X, corr)

	var KPy mat.Dense
	KPy.Mul(&K, Py)
	var KPyKT mat.Dense
	KPyKT.Mul(&KPy, K.T())

	newPx := mat.NewSymDense(f.nx, nil)
	for i := 0; i < f.nx; i++ {
		for j := i; j < f.nx; j++ {
			newPx.SetSym(i, j, s.Px.At(i, j)-KPyKT.At(i, j))
		}
	}

	s.snapshotPrev()
	s.prevK = k

	s.e = e
	s.Pxh = denseCopyOf(Pxh)
	s.Py = Py
	s.PyI = PyISym
	s.PyC = denseCopyOf(PyC)
	s.PyCI = denseCopyOf(&PyCI)
	s.gainK = denseCopyOf(&K)

	s.X = newX
	s.Px = newPx

	f.phase = Corrected
	return nil
}

// UpdateLikelihood accumulates the measurement log-likelihood using
// the workspace Correct just built. A no-op when the last Correct saw
// a fully-masked measurement. Spec §4.4, update_likelihood.
func (f *Filter) UpdateLikelihood() error {
	if !f.phase.in(Corrected) {
		return outOfOrder("ukf.Filter.UpdateLikelihood", f.phase, Corrected)
	}
	s := f.state
	if len(s.active) == 0 {
		return nil
	}

	na := len(s.active)
	var quad float64
	tmp := mat.NewVecDense(na, nil)
	tmp.MulVec(s.PyI, s.e)
	quad = mat.Dot(s.e, tmp)

	var logDet float64
	for i := 0; i < na; i++ {
		logDet += math.Log(s.PyC.At(i, i))
	}

	s.L -= 0.5*quad + logDet
	return nil
}

// restrictSym returns the principal submatrix of m on the given
// (sorted) index set.
func restrictSym(m mat.Symmetric, idxs []int) *mat.SymDense {
	n := len(idxs)
	out := mat.NewSymDense(n, nil)
	for i, gi := range idxs {
		for j := i; j < n; j++ {
			out.SetSym(i, j, m.At(gi, idxs[j]))
		}
	}
	return out
}

func selectVec(v *mat.VecDense, idxs []int) *mat.VecDense {
	out := mat.NewVecDense(len(idxs), nil)
	for i, gi := range idxs {
		out.SetVec(i, v.AtVec(gi))
	}
	return out
}

func denseToSym(m *mat.Dense, n int) *mat.SymDense {
	out := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			v := 0.5 * (m.At(i, j) + m.At(j, i))
			out.SetSym(i, j, v)
		}
	}
	return out
}
