package diagnostics_test

import (
	"testing"

	"github.com/dimasad/qwfilter"
	"github.com/dimasad/qwfilter/diagnostics"
	"github.com/dimasad/qwfilter/kalman/ukf"
	"github.com/dimasad/qwfilter/model"
	"github.com/dimasad/qwfilter/sqrtmat"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

// TestStatePlotAndInnovationPlotRenderFilteredRun drives StatePlot and
// InnovationPlot off an actual filtered run, the way a caller wanting
// a diagnostic artifact of scenario S2's trajectory would.
func TestStatePlotAndInnovationPlotRenderFilteredRun(t *testing.T) {
	a := mat.NewDense(2, 2, []float64{1, 0.1, 0, 1})
	c := mat.NewDense(1, 2, []float64{1, 0})
	q := mat.NewSymDense(2, []float64{1e-4, 0, 0, 1e-4})
	r := mat.NewSymDense(1, []float64{1})

	x0 := mat.NewVecDense(2, []float64{1, 0})
	px0 := mat.NewSymDense(2, []float64{0.1, 0, 0, 0.1})

	lm, err := model.NewLinear(a, c, q, r)
	require.NoError(t, err)

	y := make([]float64, 15)
	for k := range y {
		y[k] = 1 + 0.05*float64(k)
	}
	measurements := make([]qwfilter.Measurement, len(y))
	for k, v := range y {
		measurements[k] = qwfilter.FullMask(mat.NewVecDense(1, []float64{v}))
	}

	f, err := ukf.New(lm, ukf.Config{Sqrt: sqrtmat.Cholesky, Kappa: 0}, x0, px0)
	require.NoError(t, err)

	steps, err := f.Filter(measurements)
	require.NoError(t, err)

	truth := make([]*mat.VecDense, len(steps))
	innovations := make([]float64, len(steps))
	for k, s := range steps {
		truth[k] = mat.VecDenseCopyOf(s.State())
		hx, err := lm.H(k, s.State())
		require.NoError(t, err)
		innovations[k] = y[k] - hx.AtVec(0)
	}

	p, err := diagnostics.StatePlot(steps, truth, 0)
	require.NoError(t, err)
	assert.NotNil(t, p)

	p2, err := diagnostics.InnovationPlot(innovations)
	require.NoError(t, err)
	assert.NotNil(t, p2)
}

func TestStatePlotRejectsEmptyOrOutOfRangeComponent(t *testing.T) {
	_, err := diagnostics.StatePlot(nil, nil, 0)
	assert.Error(t, err)

	lm, err := model.NewLinear(
		mat.NewDense(1, 1, []float64{1}),
		mat.NewDense(1, 1, []float64{1}),
		mat.NewSymDense(1, []float64{1e-4}),
		mat.NewSymDense(1, []float64{1}),
	)
	require.NoError(t, err)

	x0 := mat.NewVecDense(1, []float64{0})
	px0 := mat.NewSymDense(1, []float64{1})
	f, err := ukf.New(lm, ukf.Config{Sqrt: sqrtmat.Cholesky, Kappa: 0}, x0, px0)
	require.NoError(t, err)

	steps, err := f.Filter([]qwfilter.Measurement{qwfilter.FullMask(mat.NewVecDense(1, []float64{0.1}))})
	require.NoError(t, err)

	_, err = diagnostics.StatePlot(steps, nil, 5)
	assert.Error(t, err)
}

func TestInnovationPlotRejectsEmpty(t *testing.T) {
	_, err := diagnostics.InnovationPlot(nil)
	assert.Error(t, err)
}
