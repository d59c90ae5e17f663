// Package unscented implements the unscented transform: deterministic
// sigma-point generation, propagation of a mean/covariance pair
// through an arbitrary nonlinear map, input/output cross-covariance,
// and the parallel first-order derivative path used by PEM sensitivity
// analysis.
package unscented

import (
	"github.com/dimasad/qwfilter"
	"github.com/dimasad/qwfilter/sqrtmat"
	"gonum.org/v1/gonum/mat"
)

// Config holds the unitless unscented-transform parameters.
type Config struct {
	// Kappa is the relative weight of the center sigma point. Zero by
	// default. Must satisfy ni + Kappa != 0.
	Kappa float64
}

// Func maps one sigma point to its image under the transformed
// function, e.g. the model drift or measurement function evaluated at
// a single sigma point.
type Func func(sigma *mat.VecDense) (*mat.VecDense, error)

// Transform is an unscented transform over an ni-dimensional input. A
// Transform is constructed once and reused across time steps; forward
// and derivative workspace is cleared and repopulated on every call,
// making out-of-order derivative requests detectable.
type Transform struct {
	ni      int
	kappa   float64
	nsigma  int
	weights []float64

	sqrtImpl sqrtmat.Sqrt
	diffB    sqrtmat.DiffBuilder // nil until first successful diff build
	diffErr  error               // cached failure from building diffB (e.g. SVD)

	// forward workspace, set by SigmaPoints/Transform.
	transformed bool
	mean        *mat.VecDense // retained input mean
	isigma      *mat.Dense    // nsigma × ni
	idev        *mat.Dense    // nsigma × ni
	osigma      *mat.Dense    // nsigma × no
	odev        *mat.Dense    // nsigma × no
	out         *mat.VecDense // no
	pout        *mat.SymDense // no × no

	// derivative workspace, set by SigmaPointsDiff/TransformDiff.
	diffed    bool
	disigmaDq []*mat.Dense // len nq, each nsigma × ni
	didevDq   []*mat.Dense // len nq, each nsigma × ni
	dodevDq   []*mat.Dense // len nq, each nsigma × no
}

// New builds a Transform over an ni-dimensional input.
func New(ni int, cfg Config, kind sqrtmat.Kind) (*Transform, error) {
	if ni <= 0 {
		return nil, qwfilter.NewError(qwfilter.KindInvalidOption, "unscented.New",
			"input dimension must be positive, got %d", ni)
	}
	if float64(ni)+cfg.Kappa == 0 {
		return nil, qwfilter.NewError(qwfilter.KindInvalidOption, "unscented.New",
			"ni + kappa must not be zero (ni=%d, kappa=%v)", ni, cfg.Kappa)
	}

	hasCenter := cfg.Kappa != 0
	nsigma := 2 * ni
	if hasCenter {
		nsigma++
	}

	weights := make([]float64, nsigma)
	w := 0.5 / (float64(ni) + cfg.Kappa)
	for i := 0; i < 2*ni; i++ {
		weights[i] = w
	}
	if hasCenter {
		weights[2*ni] = cfg.Kappa / (float64(ni) + cfg.Kappa)
	}

	return &Transform{
		ni:       ni,
		kappa:    cfg.Kappa,
		nsigma:   nsigma,
		weights:  weights,
		sqrtImpl: sqrtmat.New(kind),
	}, nil
}

// NSigma returns the number of sigma points.
func (t *Transform) NSigma() int { return t.nsigma }

// Weights returns the sigma-point weights (read-only).
func (t *Transform) Weights() []float64 { return t.weights }

func (t *Transform) hasCenter() bool { return t.kappa != 0 }

func (t *Transform) resetForward() {
	t.transformed = false
	t.diffed = false
}

// SigmaPoints generates the sigma points around (mean, cov) and
// retains them (and their deviations from the mean) on the workspace
// for later Transform/CrossCov/*Diff calls.
func (t *Transform) SigmaPoints(mean *mat.VecDense, cov mat.Symmetric) (*mat.Dense, error) {
	if mean.Len() != t.ni {
		return nil, qwfilter.NewError(qwfilter.KindShape, "unscented.Transform.SigmaPoints",
			"mean has length %d, want %d", mean.Len(), t.ni)
	}
	if cov.Symmetric() != t.ni {
		return nil, qwfilter.NewError(qwfilter.KindShape, "unscented.Transform.SigmaPoints",
			"cov has size %d, want %d", cov.Symmetric(), t.ni)
	}

	scaled := mat.NewSymDense(t.ni, nil)
	for i := 0; i < t.ni; i++ {
		for j := i; j < t.ni; j++ {
			scaled.SetSym(i, j, (float64(t.ni)+t.kappa)*cov.At(i, j))
		}
	}

	S, err := t.sqrtImpl.SqrtOf(scaled)
	if err != nil {
		return nil, err
	}

	idev := mat.NewDense(t.nsigma, t.ni, nil)
	for k := 0; k < t.ni; k++ {
		idev.SetRow(k, S.RawRowView(k))
		neg := make([]float64, t.ni)
		for c := 0; c < t.ni; c++ {
			neg[c] = -S.At(k, c)
		}
		idev.SetRow(t.ni+k, neg)
	}
	// Center sigma point (if present) stays at zero deviation.

	isigma := mat.NewDense(t.nsigma, t.ni, nil)
	for k := 0; k < t.nsigma; k++ {
		row := make([]float64, t.ni)
		for c := 0; c < t.ni; c++ {
			row[c] = idev.At(k, c) + mean.AtVec(c)
		}
		isigma.SetRow(k, row)
	}

	t.mean = mat.VecDenseCopyOf(mean)
	t.idev = idev
	t.isigma = isigma

	return isigma, nil
}

// Transform propagates the sigma points of (mean, cov) through f and
// reduces them back to a mean/covariance pair.
func (t *Transform) Transform(mean *mat.VecDense, cov mat.Symmetric, f Func) (*mat.VecDense, *mat.SymDense, error) {
	t.resetForward()

	if _, err := t.SigmaPoints(mean, cov); err != nil {
		return nil, nil, err
	}

	var no int
	osigmaRows := make([][]float64, t.nsigma)
	for k := 0; k < t.nsigma; k++ {
		sigma := mat.VecDenseCopyOf(t.isigma.RowView(k))
		fk, err := f(sigma)
		if err != nil {
			return nil, nil, err
		}
		if k == 0 {
			no = fk.Len()
		} else if fk.Len() != no {
			return nil, nil, qwfilter.NewError(qwfilter.KindShape, "unscented.Transform.Transform",
				"f returned length %d at sigma %d, want %d", fk.Len(), k, no)
		}
		row := make([]float64, no)
		for c := 0; c < no; c++ {
			row[c] = fk.AtVec(c)
		}
		osigmaRows[k] = row
	}

	osigma := mat.NewDense(t.nsigma, no, nil)
	for k, row := range osigmaRows {
		osigma.SetRow(k, row)
	}

	out := mat.NewVecDense(no, nil)
	for k := 0; k < t.nsigma; k++ {
		out.AddScaledVec(out, t.weights[k], osigma.RowView(k))
	}

	odev := mat.NewDense(t.nsigma, no, nil)
	for k := 0; k < t.nsigma; k++ {
		row := make([]float64, no)
		for c := 0; c < no; c++ {
			row[c] = osigma.At(k, c) - out.AtVec(c)
		}
		odev.SetRow(k, row)
	}

	pout := mat.NewSymDense(no, nil)
	for k := 0; k < t.nsigma; k++ {
		w := t.weights[k]
		devRow := odev.RawRowView(k)
		for i := 0; i < no; i++ {
			for j := i; j < no; j++ {
				pout.SetSym(i, j, pout.At(i, j)+w*devRow[i]*devRow[j])
			}
		}
	}

	t.osigma = osigma
	t.odev = odev
	t.out = out
	t.pout = pout
	t.transformed = true

	return out, pout, nil
}

// CrossCov returns the retained input/output cross-covariance
// Pio = sum_k w_k idev_k odev_k^T. Requires a prior Transform call.
func (t *Transform) CrossCov() (*mat.Dense, error) {
	if !t.transformed {
		return nil, qwfilter.NewError(qwfilter.KindNotTransformed, "unscented.Transform.CrossCov",
			"transform must run before requesting cross-covariance")
	}

	_, no := t.odev.Dims()
	pio := mat.NewDense(t.ni, no, nil)
	for k := 0; k < t.nsigma; k++ {
		w := t.weights[k]
		idevRow := t.idev.RawRowView(k)
		odevRow := t.odev.RawRowView(k)
		for i := 0; i < t.ni; i++ {
			for j := 0; j < no; j++ {
				pio.Set(i, j, pio.At(i, j)+w*idevRow[i]*odevRow[j])
			}
		}
	}
	return pio, nil
}
