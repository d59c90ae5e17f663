package ukf

import (
	"github.com/dimasad/qwfilter"
	"github.com/dimasad/qwfilter/sqrtmat"
	"github.com/dimasad/qwfilter/unscented"
)

// Config is the unitless UKF configuration, validated once at
// construction. PredUT and CorrUT let the predict and correct sides
// carry independent center-weights, mirroring the teacher's
// UKF.Config construction-time validation in kalman/ukf's original
// New but generalized to an explicit per-direction UT config instead
// of a single shared (alpha, beta, kappa) triple.
type Config struct {
	// Sqrt selects the matrix-square-root backend ("cholesky" or
	// "svd"); "svd" disables every *Diff method.
	Sqrt sqrtmat.Kind
	// Kappa is the default center-weight shared by PredUT/CorrUT
	// unless they are set explicitly.
	Kappa float64
	// PredUT overrides the prediction-side unscented transform config.
	// Zero value falls back to Config.Kappa.
	PredUT *unscented.Config
	// CorrUT overrides the correction-side unscented transform config.
	// Zero value falls back to Config.Kappa.
	CorrUT *unscented.Config
}

func (c Config) predUT() unscented.Config {
	if c.PredUT != nil {
		return *c.PredUT
	}
	return unscented.Config{Kappa: c.Kappa}
}

func (c Config) corrUT() unscented.Config {
	if c.CorrUT != nil {
		return *c.CorrUT
	}
	return unscented.Config{Kappa: c.Kappa}
}

func (c Config) validate(nx int) error {
	if c.Sqrt != sqrtmat.Cholesky && c.Sqrt != sqrtmat.SVD {
		return qwfilter.NewError(qwfilter.KindInvalidOption, "ukf.Config",
			"unknown sqrt variant %d", c.Sqrt)
	}
	if float64(nx)+c.predUT().Kappa == 0 {
		return qwfilter.NewError(qwfilter.KindInvalidOption, "ukf.Config",
			"nx + PredUT.Kappa must not be zero")
	}
	if float64(nx)+c.corrUT().Kappa == 0 {
		return qwfilter.NewError(qwfilter.KindInvalidOption, "ukf.Config",
			"nx + CorrUT.Kappa must not be zero")
	}
	return nil
}
