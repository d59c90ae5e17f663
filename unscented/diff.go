package unscented

import (
	"github.com/dimasad/qwfilter"
	"github.com/dimasad/qwfilter/sqrtmat"
	"gonum.org/v1/gonum/mat"
)

// DiffFunc is the derivative counterpart of Func: it returns the
// Jacobian of f's output with respect to the state at a single sigma
// point (shape no × ni), so that TransformDiff can chain it against
// the sigma points' own q-derivative.
type DiffFunc func(sigma *mat.VecDense) (*mat.Dense, error)

// ParamJacFunc returns the direct Jacobian of f's output with respect
// to the external parameter vector q at a single sigma point (shape
// no × nq) — the part of d(f(sigma))/dq that does not flow through
// the sigma point's own dependence on q.
type ParamJacFunc func(sigma *mat.VecDense) (*mat.Dense, error)

// ensureDiffBuilder lazily builds (and caches) the square-root
// derivative builder for this transform's input dimension, returning
// the cached error (e.g. NotImplemented for the SVD variant) on every
// call after the first failure.
func (t *Transform) ensureDiffBuilder() (sqrtmat.DiffBuilder, error) {
	if t.diffB != nil {
		return t.diffB, nil
	}
	if t.diffErr != nil {
		return nil, t.diffErr
	}
	b, err := t.sqrtImpl.DiffBuilder(t.ni)
	if err != nil {
		t.diffErr = err
		return nil, err
	}
	t.diffB = b
	return b, nil
}

// SigmaPointsDiff returns d(isigma)/dq for each parameter, given
// dMean/dq and dCov/dq (dCov symmetric per parameter), chaining
// through the retained square root from the last SigmaPoints call via
// its analytic derivative. Must follow a SigmaPoints/Transform call on
// the same (mean, cov).
func (t *Transform) SigmaPointsDiff(dMeanDq []*mat.VecDense, dCovDq []*mat.SymDense) ([]*mat.Dense, error) {
	if t.idev == nil {
		return nil, qwfilter.NewError(qwfilter.KindNotTransformed, "unscented.Transform.SigmaPointsDiff",
			"sigma points must be generated before differentiating them")
	}
	nq := len(dMeanDq)
	if len(dCovDq) != nq {
		return nil, qwfilter.NewError(qwfilter.KindShape, "unscented.Transform.SigmaPointsDiff",
			"dMeanDq has %d entries, dCovDq has %d", nq, len(dCovDq))
	}

	builder, err := t.ensureDiffBuilder()
	if err != nil {
		return nil, err
	}

	scaledDq := make([]*mat.SymDense, nq)
	for qi, dcov := range dCovDq {
		s := mat.NewSymDense(t.ni, nil)
		for i := 0; i < t.ni; i++ {
			for j := i; j < t.ni; j++ {
				s.SetSym(i, j, (float64(t.ni)+t.kappa)*dcov.At(i, j))
			}
		}
		scaledDq[qi] = s
	}

	S, err := t.currentS()
	if err != nil {
		return nil, err
	}

	dS, err := builder.Diff(S, scaledDq)
	if err != nil {
		return nil, err
	}

	disigmaDq := make([]*mat.Dense, nq)
	didevDq := make([]*mat.Dense, nq)
	for qi := range dS {
		ddev := mat.NewDense(t.nsigma, t.ni, nil)
		for k := 0; k < t.ni; k++ {
			ddev.SetRow(k, dS[qi].RawRowView(k))
			neg := make([]float64, t.ni)
			for c := 0; c < t.ni; c++ {
				neg[c] = -dS[qi].At(k, c)
			}
			ddev.SetRow(t.ni+k, neg)
		}

		dsigma := mat.NewDense(t.nsigma, t.ni, nil)
		for k := 0; k < t.nsigma; k++ {
			row := make([]float64, t.ni)
			for c := 0; c < t.ni; c++ {
				row[c] = ddev.At(k, c) + dMeanDq[qi].AtVec(c)
			}
			dsigma.SetRow(k, row)
		}

		didevDq[qi] = ddev
		disigmaDq[qi] = dsigma
	}

	t.disigmaDq = disigmaDq
	t.didevDq = didevDq

	return disigmaDq, nil
}

// currentS recovers the last-used square root S from idev: idev's
// first ni rows are S itself (the positive-deviation sigma points).
func (t *Transform) currentS() (*mat.Dense, error) {
	if t.idev == nil {
		return nil, qwfilter.NewError(qwfilter.KindNotTransformed, "unscented.Transform.currentS",
			"no sigma points generated yet")
	}
	S := mat.NewDense(t.ni, t.ni, nil)
	for k := 0; k < t.ni; k++ {
		S.SetRow(k, t.idev.RawRowView(k))
	}
	return S, nil
}

// TransformDiff returns d(out)/dq and d(pout)/dq given the sigma
// points' own q-derivative (computed internally via SigmaPointsDiff),
// dfdi (the Jacobian of f at each sigma point with respect to the
// input) and dfdq (the direct Jacobian of f with respect to q at each
// sigma point). The total derivative at each sigma point is
// Dosigma/Dq = dfdi(sigma)·disigma/dq + dfdq(sigma). Must follow a
// Transform call for the same (mean, cov, f).
func (t *Transform) TransformDiff(dMeanDq []*mat.VecDense, dCovDq []*mat.SymDense, dfdi DiffFunc, dfdq ParamJacFunc) ([]*mat.VecDense, []*mat.SymDense, error) {
	if !t.transformed {
		return nil, nil, qwfilter.NewError(qwfilter.KindNotTransformed, "unscented.Transform.TransformDiff",
			"transform must run before requesting its derivative")
	}

	disigmaDq, err := t.SigmaPointsDiff(dMeanDq, dCovDq)
	if err != nil {
		return nil, nil, err
	}
	nq := len(disigmaDq)

	_, no := t.osigma.Dims()

	// dosigma[k] is no × nq: column q holds d(osigma_k)/dq.
	dosigma := make([]*mat.Dense, t.nsigma)
	for k := 0; k < t.nsigma; k++ {
		sigma := mat.VecDenseCopyOf(t.isigma.RowView(k))
		Jdi, err := dfdi(sigma)
		if err != nil {
			return nil, nil, err
		}
		jr, jc := Jdi.Dims()
		if jr != no || jc != t.ni {
			return nil, nil, qwfilter.NewError(qwfilter.KindShape, "unscented.Transform.TransformDiff",
				"dfdi returned %dx%d at sigma %d, want %dx%d", jr, jc, k, no, t.ni)
		}
		Jdq, err := dfdq(sigma)
		if err != nil {
			return nil, nil, err
		}
		qr, qc := Jdq.Dims()
		if qr != no || qc != nq {
			return nil, nil, qwfilter.NewError(qwfilter.KindShape, "unscented.Transform.TransformDiff",
				"dfdq returned %dx%d at sigma %d, want %dx%d", qr, qc, k, no, nq)
		}

		dok := mat.NewDense(no, nq, nil)
		for qi := 0; qi < nq; qi++ {
			dxk := mat.VecDenseCopyOf(disigmaDq[qi].RowView(k))
			var col mat.VecDense
			col.MulVec(Jdi, dxk)
			for r := 0; r < no; r++ {
				dok.Set(r, qi, col.AtVec(r)+Jdq.At(r, qi))
			}
		}
		dosigma[k] = dok
	}

	dOutDq := make([]*mat.VecDense, nq)
	for qi := 0; qi < nq; qi++ {
		v := mat.NewVecDense(no, nil)
		for k := 0; k < t.nsigma; k++ {
			for r := 0; r < no; r++ {
				v.SetVec(r, v.AtVec(r)+t.weights[k]*dosigma[k].At(r, qi))
			}
		}
		dOutDq[qi] = v
	}

	// d(odev_k)/dq = d(osigma_k)/dq - d(out)/dq, stored per-parameter
	// as an nsigma × no matrix to match odev's own layout.
	dodevDq := make([]*mat.Dense, nq)
	for qi := 0; qi < nq; qi++ {
		m := mat.NewDense(t.nsigma, no, nil)
		for k := 0; k < t.nsigma; k++ {
			for r := 0; r < no; r++ {
				m.Set(k, r, dosigma[k].At(r, qi)-dOutDq[qi].AtVec(r))
			}
		}
		dodevDq[qi] = m
	}

	dPoutDq := make([]*mat.SymDense, nq)
	for qi := 0; qi < nq; qi++ {
		dp := mat.NewSymDense(no, nil)
		for k := 0; k < t.nsigma; k++ {
			w := t.weights[k]
			odevRow := t.odev.RawRowView(k)
			dodevRow := dodevDq[qi].RawRowView(k)
			for i := 0; i < no; i++ {
				for j := i; j < no; j++ {
					// d/dq (odev_i odev_j) = dodev_i odev_j + odev_i dodev_j
					contrib := w * (dodevRow[i]*odevRow[j] + odevRow[i]*dodevRow[j])
					dp.SetSym(i, j, dp.At(i, j)+contrib)
				}
			}
		}
		dPoutDq[qi] = dp
	}

	t.dodevDq = dodevDq
	t.diffed = true
	return dOutDq, dPoutDq, nil
}

// CrossCovDiff returns d(Pio)/dq following a TransformDiff call.
func (t *Transform) CrossCovDiff() ([]*mat.Dense, error) {
	if !t.diffed {
		return nil, qwfilter.NewError(qwfilter.KindNotTransformed, "unscented.Transform.CrossCovDiff",
			"transform derivative must run before requesting cross-covariance derivative")
	}

	nq := len(t.disigmaDq)
	_, no := t.odev.Dims()

	// d/dq (idev odev^T) = didev odev^T + idev dodev^T.
	dPio := make([]*mat.Dense, nq)
	for qi := 0; qi < nq; qi++ {
		dp := mat.NewDense(t.ni, no, nil)
		for k := 0; k < t.nsigma; k++ {
			w := t.weights[k]
			idevRow := t.idev.RawRowView(k)
			odevRow := t.odev.RawRowView(k)
			didevRow := t.didevDq[qi].RawRowView(k)
			dodevRow := t.dodevDq[qi].RawRowView(k)
			for i := 0; i < t.ni; i++ {
				for j := 0; j < no; j++ {
					contrib := w * (didevRow[i]*odevRow[j] + idevRow[i]*dodevRow[j])
					dp.Set(i, j, dp.At(i, j)+contrib)
				}
			}
		}
		dPio[qi] = dp
	}
	return dPio, nil
}
