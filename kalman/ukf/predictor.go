package ukf

import (
	"github.com/dimasad/qwfilter"
	"gonum.org/v1/gonum/mat"
)

// Predict propagates the current state through one step of the
// model's drift function via the prediction-side unscented transform,
// adds process-noise covariance, and advances the time index. Spec
// §4.3, step 1.
func (f *Filter) Predict() error {
	if !f.phase.in(Corrected, CorrDiffed) {
		return outOfOrder("ukf.Filter.Predict", f.phase, Corrected, CorrDiffed)
	}

	s := f.state
	k := s.K

	fFun := func(x *mat.VecDense) (*mat.VecDense, error) {
		return f.model.F(k, x)
	}

	fMean, pf, err := f.predUT.Transform(s.X, s.Px, fFun)
	if err != nil {
		return err
	}

	Q, err := f.model.Q(k, s.X)
	if err != nil {
		return err
	}
	if Q.Symmetric() != f.nx {
		return qwfilter.NewError(qwfilter.KindShape, "ukf.Filter.Predict",
			"Q has size %d, want %d", Q.Symmetric(), f.nx)
	}

	s.snapshotPrev()
	s.prevK = k

	px := mat.NewSymDense(f.nx, nil)
	for i := 0; i < f.nx; i++ {
		for j := i; j < f.nx; j++ {
			px.SetSym(i, j, pf.At(i, j)+Q.At(i, j))
		}
	}

	s.K = k + 1
	s.X = fMean
	s.Px = px

	f.phase = Predicted
	return nil
}

// PredictionDiff propagates d(x)/dq and d(Px)/dq through the same
// step Predict just took, consuming the prev_* snapshot Predict saved.
// Spec §4.3, prediction_diff.
func (f *Filter) PredictionDiff() error {
	if !f.phase.in(Predicted) {
		return outOfOrder("ukf.Filter.PredictionDiff", f.phase, Predicted)
	}
	dm, ok := f.model.(qwfilter.ModelDiff)
	if !ok {
		return qwfilter.NewError(qwfilter.KindNotImplemented, "ukf.Filter.PredictionDiff",
			"model does not implement ModelDiff")
	}

	s := f.state
	k := s.prevK
	nq := f.nq

	dfdi := func(x *mat.VecDense) (*mat.Dense, error) {
		return dm.DfDx(k, x)
	}
	dfdq := func(x *mat.VecDense) (*mat.Dense, error) {
		return dm.DfDq(k, x)
	}

	dMeanDq := rowsToVecs(s.prevDxDq)
	dCovDq := s.prevDPxDq

	dFDq, dPfDq, err := f.predUT.TransformDiff(dMeanDq, dCovDq, dfdi, dfdq)
	if err != nil {
		return err
	}

	dQDx, err := dm.DQDx(k, s.prevX)
	if err != nil {
		return err
	}
	dQDq, err := dm.DQDq(k, s.prevX)
	if err != nil {
		return err
	}

	// Total derivative of Q through x's own dependence on q:
	// DQ/Dq_i = dQ/dq_i + sum_j dQ/dx_j * dx_j/dq_i.
	dQTotal := make([]*mat.SymDense, nq)
	for qi := 0; qi < nq; qi++ {
		total := mat.NewSymDense(f.nx, nil)
		for i := 0; i < f.nx; i++ {
			for j := i; j < f.nx; j++ {
				total.SetSym(i, j, dQDq[qi].At(i, j))
			}
		}
		dxRow := s.prevDxDq.RawRowView(qi)
		for xc := 0; xc < f.nx; xc++ {
			coef := dxRow[xc]
			if coef == 0 {
				continue
			}
			for i := 0; i < f.nx; i++ {
				for j := i; j < f.nx; j++ {
					total.SetSym(i, j, total.At(i, j)+coef*dQDx[xc].At(i, j))
				}
			}
		}
		dQTotal[qi] = total
	}

	newDxDq := mat.NewDense(nq, f.nx, nil)
	newDPxDq := make([]*mat.SymDense, nq)
	for qi := 0; qi < nq; qi++ {
		row := make([]float64, f.nx)
		for i := 0; i < f.nx; i++ {
			row[i] = dFDq[qi].AtVec(i)
		}
		newDxDq.SetRow(qi, row)

		total := mat.NewSymDense(f.nx, nil)
		for i := 0; i < f.nx; i++ {
			for j := i; j < f.nx; j++ {
				total.SetSym(i, j, dPfDq[qi].At(i, j)+dQTotal[qi].At(i, j))
			}
		}
		newDPxDq[qi] = total
	}

	s.DxDq = newDxDq
	s.DPxDq = newDPxDq

	f.phase = PredDiffed
	return nil
}

// rowsToVecs splits an nq × n Dense into nq independent VecDense rows,
// the shape unscented.Transform's *Diff entry points expect for a
// per-parameter mean derivative.
func rowsToVecs(m *mat.Dense) []*mat.VecDense {
	nq, _ := m.Dims()
	out := make([]*mat.VecDense, nq)
	for i := 0; i < nq; i++ {
		out[i] = mat.VecDenseCopyOf(m.RowView(i))
	}
	return out
}
