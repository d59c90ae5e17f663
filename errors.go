package qwfilter

import "fmt"

// ErrorKind classifies the failure modes the filtering core can
// surface to its caller. See spec §7.
type ErrorKind int

const (
	// KindShape marks a dimension mismatch between a Model's outputs
	// and the dimensions it advertised through Dims.
	KindShape ErrorKind = iota
	// KindNotSPD marks a Cholesky factorization of a non symmetric
	// positive-definite matrix.
	KindNotSPD
	// KindSingular marks a singular Cholesky-derivative linear system.
	KindSingular
	// KindNotImplemented marks a requested operation with no
	// implementation (the SVD square-root derivative, or a derivative
	// request against a Model that isn't a ModelDiff).
	KindNotImplemented
	// KindNotTransformed marks a derivative request against an
	// unscented transform that has not yet run its forward pass.
	KindNotTransformed
	// KindOutOfOrder marks a predict/correct/*Diff call that violates
	// the Filter state machine.
	KindOutOfOrder
	// KindInvalidOption marks a bad filter/transform configuration.
	KindInvalidOption
)

func (k ErrorKind) String() string {
	switch k {
	case KindShape:
		return "shape"
	case KindNotSPD:
		return "not_spd"
	case KindSingular:
		return "singular"
	case KindNotImplemented:
		return "not_implemented"
	case KindNotTransformed:
		return "not_transformed"
	case KindOutOfOrder:
		return "out_of_order"
	case KindInvalidOption:
		return "invalid_option"
	default:
		return "unknown"
	}
}

// Error is the error type returned across package boundaries by this
// module's filtering packages. Callers distinguish failure modes by
// inspecting Kind (or with errors.Is against the Is* sentinels below).
type Error struct {
	Kind ErrorKind
	Op   string
	Msg  string
}

func (e *Error) Error() string {
	if e.Op == "" {
		return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
	}
	return fmt.Sprintf("%s: %s: %s", e.Op, e.Kind, e.Msg)
}

// Is reports whether target is an *Error with the same Kind, so that
// errors.Is(err, qwfilter.ErrNotSPD) etc. work without caring about Op
// or Msg.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

// NewError builds an *Error tagged with op for a fmt-style message.
func NewError(kind ErrorKind, op, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Op: op, Msg: fmt.Sprintf(format, args...)}
}

// Sentinels usable with errors.Is(err, qwfilter.ErrNotSPD).
var (
	ErrShape          = &Error{Kind: KindShape}
	ErrNotSPD         = &Error{Kind: KindNotSPD}
	ErrSingular       = &Error{Kind: KindSingular}
	ErrNotImplemented = &Error{Kind: KindNotImplemented}
	ErrNotTransformed = &Error{Kind: KindNotTransformed}
	ErrOutOfOrder     = &Error{Kind: KindOutOfOrder}
	ErrInvalidOption  = &Error{Kind: KindInvalidOption}
)
