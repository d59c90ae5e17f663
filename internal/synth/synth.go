// Package synth draws a state trajectory and a partially-masked
// measurement sequence from a qwfilter.Model, for use in tests that
// need a realistic (model, x, y) triple rather than hand-built
// fixtures. Measurement noise is drawn with noise.Gaussian (R is
// assumed invertible, as the Kalman gain already requires); process
// noise goes through the teacher's SVD-based rand.WithCovN instead,
// since a model's Q (Duffing's, notably) may be singular. Masking
// follows the reference sim() routine's "mask every other sample"
// scheme.
package synth

import (
	mathrand "math/rand"

	"github.com/dimasad/qwfilter"
	"github.com/dimasad/qwfilter/noise"
	qwrand "github.com/dimasad/qwfilter/rand"
	"gonum.org/v1/gonum/mat"
)

// Run is the result of a synthetic simulation: the true state
// trajectory X (length n, each an nx-vector) and the generated
// measurement sequence Y (length n), where Y[k].Mask flags components
// dropped by the mask period.
type Run struct {
	X []*mat.VecDense
	Y []qwfilter.Measurement
}

// Options controls how Sample draws a trajectory.
type Options struct {
	// N is the number of time steps to generate, including k=0.
	N int
	// X0 is the true initial state.
	X0 *mat.VecDense
	// Seed seeds the global math/rand source consumed by
	// qwfilter/rand.WithCovN for process noise; measurement noise
	// comes from noise.Gaussian, which reseeds itself from the clock,
	// so only the process-noise draw is reproducible across runs.
	Seed int64
	// MaskPeriod, if > 0, masks every MaskPeriod-th measurement
	// sample, i.e. each k with k % MaskPeriod == MaskPeriod-1 (indices
	// 1, 3, 5, ... for MaskPeriod=2, the reference implementation's
	// y[1::2] = masked convention).
	// Zero disables masking: every sample is fully observed.
	MaskPeriod int
}

// Sample draws a state trajectory by iterating model.F with process
// noise from model.Q, then synthesizes measurements by applying
// model.H and adding measurement noise from model.R, masking samples
// per opts.MaskPeriod.
func Sample(model qwfilter.Model, opts Options) (*Run, error) {
	nx, _, ny := model.Dims()
	if opts.X0.Len() != nx {
		return nil, qwfilter.NewError(qwfilter.KindShape, "synth.Sample",
			"X0 has length %d, want %d", opts.X0.Len(), nx)
	}

	mathrand.Seed(opts.Seed)

	r, err := model.R()
	if err != nil {
		return nil, err
	}
	measNoise, err := noise.NewGaussian(make([]float64, ny), r)
	if err != nil {
		return nil, qwfilter.NewError(qwfilter.KindNotSPD, "synth.Sample",
			"measurement noise covariance is not positive definite")
	}

	x := make([]*mat.VecDense, opts.N)
	y := make([]qwfilter.Measurement, opts.N)
	x[0] = mat.VecDenseCopyOf(opts.X0)

	for k := 0; k < opts.N; k++ {
		if k > 0 {
			q, err := model.Q(k-1, x[k-1])
			if err != nil {
				return nil, err
			}
			w, err := qwrand.WithCovN(q, 1)
			if err != nil {
				return nil, err
			}
			fx, err := model.F(k-1, x[k-1])
			if err != nil {
				return nil, err
			}
			next := mat.NewVecDense(nx, nil)
			next.AddVec(fx, w.ColView(0))
			x[k] = next
		}

		hx, err := model.H(k, x[k])
		if err != nil {
			return nil, err
		}
		v := measNoise.Sample()
		yk := mat.NewVecDense(ny, nil)
		yk.AddVec(hx, v)

		mask := make([]bool, ny)
		if opts.MaskPeriod > 0 && k%opts.MaskPeriod == (opts.MaskPeriod-1) {
			for i := range mask {
				mask[i] = true
			}
		}
		y[k] = qwfilter.Measurement{Y: yk, Mask: mask}
	}

	return &Run{X: x, Y: y}, nil
}
