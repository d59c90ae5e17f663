package ukf

import (
	"github.com/dimasad/qwfilter/sqrtmat"
	"gonum.org/v1/gonum/mat"
)

// LikelihoodDiff accumulates d(L)/dq using the workspace
// CorrectionDiff just built. Must follow CorrectionDiff for the same
// step. Spec §4.4, likelihood_diff.
func (f *Filter) LikelihoodDiff() error {
	if !f.phase.in(CorrDiffed) {
		return outOfOrder("ukf.Filter.LikelihoodDiff", f.phase, CorrDiffed)
	}
	s := f.state
	if len(s.active) == 0 {
		return nil
	}

	na := len(s.active)
	nq := f.nq

	// s.PyC is always Cholesky (see corrector.go), so its derivative
	// must come from the Cholesky DiffBuilder regardless of cfg.Sqrt,
	// which only controls the predict/correct sigma-point square root.
	builder, err := sqrtmat.New(sqrtmat.Cholesky).DiffBuilder(na)
	if err != nil {
		return err
	}
	dPyCDq, err := builder.Diff(s.PyC, s.dPyDq)
	if err != nil {
		return err
	}

	for qi := 0; qi < nq; qi++ {
		var sumDiagRatio float64
		for i := 0; i < na; i++ {
			sumDiagRatio += dPyCDq[qi].At(i, i) / s.PyC.At(i, i)
		}

		var deTPyIe, eTdPyIe, eTPyIde float64

		var tmp mat.VecDense
		tmp.MulVec(s.PyI, s.e)
		deTPyIe = mat.Dot(s.deDq[qi], &tmp)

		var tmp2 mat.VecDense
		tmp2.MulVec(s.dPyIDq[qi], s.e)
		eTdPyIe = mat.Dot(s.e, &tmp2)

		var tmp3 mat.VecDense
		tmp3.MulVec(s.PyI, s.deDq[qi])
		eTPyIde = mat.Dot(s.e, &tmp3)

		s.DLDq[qi] -= sumDiagRatio + 0.5*(deTPyIe+eTdPyIe+eTPyIde)
	}

	return nil
}
