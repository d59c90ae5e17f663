package model_test

import (
	"testing"

	"github.com/dimasad/qwfilter"
	"github.com/dimasad/qwfilter/kalman/ukf"
	"github.com/dimasad/qwfilter/model"
	"github.com/dimasad/qwfilter/sqrtmat"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

// textbookKF runs the ordinary linear Kalman filter recursion (same
// correct-then-predict order as ukf.Filter) and returns the posterior
// mean at each step, for comparison against the UKF on a linear model
// (scenario S2).
func textbookKF(a, c *mat.Dense, q, r *mat.SymDense, x0 *mat.VecDense, px0 *mat.SymDense, y []float64) []*mat.VecDense {
	nx, _ := a.Dims()
	x := mat.VecDenseCopyOf(x0)
	px := mat.NewSymDense(nx, nil)
	px.CopySym(px0)

	out := make([]*mat.VecDense, len(y))
	for k := range y {
		var cx mat.VecDense
		cx.MulVec(c, x)
		e := y[k] - cx.AtVec(0)

		var pct mat.Dense
		pct.Mul(px, c.T())

		var cpct mat.Dense
		cpct.Mul(c, &pct)
		s := cpct.At(0, 0) + r.At(0, 0)

		gain := mat.NewVecDense(nx, nil)
		for i := 0; i < nx; i++ {
			gain.SetVec(i, pct.At(i, 0)/s)
		}

		newX := mat.NewVecDense(nx, nil)
		for i := 0; i < nx; i++ {
			newX.SetVec(i, x.AtVec(i)+gain.AtVec(i)*e)
		}
		x = newX

		newPx := mat.NewSymDense(nx, nil)
		for i := 0; i < nx; i++ {
			for j := i; j < nx; j++ {
				newPx.SetSym(i, j, px.At(i, j)-gain.AtVec(i)*s*gain.AtVec(j))
			}
		}
		px = newPx

		out[k] = mat.VecDenseCopyOf(x)

		if k < len(y)-1 {
			var ax mat.VecDense
			ax.MulVec(a, x)
			x = mat.VecDenseCopyOf(&ax)

			var apxat mat.Dense
			var apx mat.Dense
			apx.Mul(a, px)
			apxat.Mul(&apx, a.T())

			predPx := mat.NewSymDense(nx, nil)
			for i := 0; i < nx; i++ {
				for j := i; j < nx; j++ {
					predPx.SetSym(i, j, apxat.At(i, j)+q.At(i, j))
				}
			}
			px = predPx
		}
	}
	return out
}

// S2: a linear model's UKF trajectory matches a textbook linear
// Kalman filter to < 1e-6.
func TestScenarioS2LinearMatchesTextbookKF(t *testing.T) {
	a := mat.NewDense(2, 2, []float64{1, 0.1, 0, 1})
	c := mat.NewDense(1, 2, []float64{1, 0})
	q := mat.NewSymDense(2, []float64{1e-4, 0, 0, 1e-4})
	r := mat.NewSymDense(1, []float64{1})

	x0 := mat.NewVecDense(2, []float64{1, 0})
	px0 := mat.NewSymDense(2, []float64{0.1, 0, 0, 0.1})

	lm, err := model.NewLinear(a, c, q, r)
	require.NoError(t, err)

	y := make([]float64, 20)
	for k := range y {
		y[k] = 1 + 0.05*float64(k) + 0.3*float64(k%3-1)
	}

	want := textbookKF(a, c, q, r, x0, px0, y)

	f, err := ukf.New(lm, ukf.Config{Sqrt: sqrtmat.Cholesky, Kappa: 0}, x0, px0)
	require.NoError(t, err)

	measurements := make([]qwfilter.Measurement, len(y))
	for k, v := range y {
		measurements[k] = qwfilter.FullMask(mat.NewVecDense(1, []float64{v}))
	}

	steps, err := f.Filter(measurements)
	require.NoError(t, err)
	require.Len(t, steps, len(want))

	for k := range want {
		for i := 0; i < 2; i++ {
			assert.InDelta(t, want[k].AtVec(i), steps[k].State().AtVec(i), 1e-6,
				"state component %d at step %d", i, k)
		}
	}
}
