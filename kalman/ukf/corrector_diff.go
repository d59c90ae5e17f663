package ukf

import (
	"github.com/dimasad/qwfilter"
	"gonum.org/v1/gonum/mat"
)

// CorrectionDiff propagates d(x)/dq and d(Px)/dq through the
// measurement update Correct just performed, consuming the prev_*
// snapshot and the e/Pxh/Py/PyI/K workspace Correct saved. Spec §4.4,
// correction_diff.
func (f *Filter) CorrectionDiff() error {
	if !f.phase.in(Corrected) {
		return outOfOrder("ukf.Filter.CorrectionDiff", f.phase, Corrected)
	}
	dm, ok := f.model.(qwfilter.ModelDiff)
	if !ok {
		return qwfilter.NewError(qwfilter.KindNotImplemented, "ukf.Filter.CorrectionDiff",
			"model does not implement ModelDiff")
	}

	s := f.state
	nq := f.nq

	if len(s.active) == 0 {
		f.phase = CorrDiffed
		return nil
	}

	k := s.prevK
	active := s.active
	na := len(active)

	dhdi := func(x *mat.VecDense) (*mat.Dense, error) {
		full, err := dm.DhDx(k, x)
		if err != nil {
			return nil, err
		}
		return selectRows(full, active), nil
	}
	dhdq := func(x *mat.VecDense) (*mat.Dense, error) {
		full, err := dm.DhDq(k, x)
		if err != nil {
			return nil, err
		}
		return selectRows(full, active), nil
	}

	dMeanDq := rowsToVecs(s.prevDxDq)
	dCovDq := s.prevDPxDq

	DhDq, DPhDq, err := f.corrUT.TransformDiff(dMeanDq, dCovDq, dhdi, dhdq)
	if err != nil {
		return err
	}
	dPxhDq, err := f.corrUT.CrossCovDiff()
	if err != nil {
		return err
	}

	dRDqFull, err := dm.DRDq()
	if err != nil {
		return err
	}
	dRDq := make([]*mat.SymDense, nq)
	for qi := 0; qi < nq; qi++ {
		dRDq[qi] = restrictSym(dRDqFull[qi], active)
	}

	PyI := s.PyI
	Pxh := s.Pxh
	Py := s.Py
	K := s.gainK

	deDq := make([]*mat.VecDense, nq)
	dPyDq := make([]*mat.SymDense, nq)
	dPyIDq := make([]*mat.SymDense, nq)
	dKDq := make([]*mat.Dense, nq)
	newDxDq := mat.NewDense(nq, f.nx, nil)
	newDPxDq := make([]*mat.SymDense, nq)

	for qi := 0; qi < nq; qi++ {
		de := mat.NewVecDense(na, nil)
		de.ScaleVec(-1, DhDq[qi])
		deDq[qi] = de

		dpy := mat.NewSymDense(na, nil)
		for i := 0; i < na; i++ {
			for j := i; j < na; j++ {
				dpy.SetSym(i, j, DPhDq[qi].At(i, j)+dRDq[qi].At(i, j))
			}
		}
		dPyDq[qi] = dpy

		// dPyI/dq = -PyI * dPy/dq * PyI.
		var tmp, tmp2 mat.Dense
		tmp.Mul(PyI, dpy)
		tmp2.Mul(&tmp, PyI)
		dpyi := mat.NewSymDense(na, nil)
		for i := 0; i < na; i++ {
			for j := i; j < na; j++ {
				dpyi.SetSym(i, j, -tmp2.At(i, j))
			}
		}
		dPyIDq[qi] = dpyi

		// dK/dq = dPxh/dq * PyI + Pxh * dPyI/dq.
		var t1, t2 mat.Dense
		t1.Mul(dPxhDq[qi], PyI)
		t2.Mul(Pxh, dpyi)
		dk := mat.NewDense(f.nx, na, nil)
		dk.Add(&t1, &t2)
		dKDq[qi] = dk

		// dx/dq <- dx/dq + dK/dq*e + K*de/dq.
		var dkE, kDe mat.VecDense
		dkE.MulVec(dk, s.e)
		kDe.MulVec(K, de)
		row := make([]float64, f.nx)
		for i := 0; i < f.nx; i++ {
			row[i] = s.prevDxDq.At(qi, i) + dkE.AtVec(i) + kDe.AtVec(i)
		}
		newDxDq.SetRow(qi, row)

		// dPx/dq <- dPx/dq - (dK/dq*Py*K^T + K*dPy/dq*K^T + K*Py*dK/dq^T).
		var dKPy, term1 mat.Dense
		dKPy.Mul(dk, Py)
		term1.Mul(&dKPy, K.T())

		var KdPy, term2 mat.Dense
		KdPy.Mul(K, dpy)
		term2.Mul(&KdPy, K.T())

		var KPy, term3 mat.Dense
		KPy.Mul(K, Py)
		term3.Mul(&KPy, dk.T())

		total := mat.NewSymDense(f.nx, nil)
		for i := 0; i < f.nx; i++ {
			for j := i; j < f.nx; j++ {
				v := s.prevDPxDq[qi].At(i, j) - (term1.At(i, j) + term2.At(i, j) + term3.At(i, j))
				total.SetSym(i, j, v)
			}
		}
		newDPxDq[qi] = total
	}

	s.DxDq = newDxDq
	s.DPxDq = newDPxDq
	s.deDq = deDq
	s.dPyDq = dPyDq
	s.dPyIDq = dPyIDq
	s.dKDq = dKDq

	f.phase = CorrDiffed
	return nil
}

func selectRows(m *mat.Dense, idxs []int) *mat.Dense {
	_, c := m.Dims()
	out := mat.NewDense(len(idxs), c, nil)
	for i, gi := range idxs {
		out.SetRow(i, mat.Row(nil, gi, m))
	}
	return out
}
