package ukf

import "github.com/dimasad/qwfilter"

// Phase is the per-step call-order state machine enforced by Filter.
// Correct/Predict/*Diff check and advance it so that a *Diff call
// consuming a forward pass's workspace can never run out of order.
type Phase int

const (
	// Quiescent is the state at construction, ready for the first
	// correct. After a predict(+prediction_diff) leg the phase stays
	// Predicted or PredDiffed, from which Correct is also accepted.
	Quiescent Phase = iota
	// Corrected follows a successful Correct.
	Corrected
	// CorrDiffed follows a successful CorrectionDiff.
	CorrDiffed
	// Predicted follows a successful Predict.
	Predicted
	// PredDiffed follows a successful PredictionDiff.
	PredDiffed
)

func (p Phase) String() string {
	switch p {
	case Quiescent:
		return "quiescent"
	case Corrected:
		return "corrected"
	case CorrDiffed:
		return "corr_diffed"
	case Predicted:
		return "predicted"
	case PredDiffed:
		return "pred_diffed"
	default:
		return "unknown"
	}
}

func (p Phase) in(allowed ...Phase) bool {
	for _, a := range allowed {
		if p == a {
			return true
		}
	}
	return false
}

func outOfOrder(op string, got Phase, want ...Phase) error {
	return qwfilter.NewError(qwfilter.KindOutOfOrder, op,
		"called in phase %s, expected one of %v", got, want)
}
