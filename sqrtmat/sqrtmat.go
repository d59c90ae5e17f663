// Package sqrtmat implements symmetric-PSD matrix square roots and
// their analytic first derivative, in two interchangeable variants
// backed by Cholesky and SVD factorizations. Both satisfy S^T S = Q:
// S is the "upper-triangular-like" factor, not its transpose.
package sqrtmat

import (
	"math"

	"github.com/dimasad/qwfilter"
	"gonum.org/v1/gonum/mat"
)

// Kind selects a square-root backend.
type Kind int

const (
	// Cholesky is the default: S is the unique upper-triangular
	// factor with positive diagonal, and supports DiffBuilder.
	Cholesky Kind = iota
	// SVD factors Q = U diag(s) V^T and returns S = (U diag(sqrt(s)))^T.
	// Its DiffBuilder always fails with KindNotImplemented.
	SVD
)

// ParseKind maps the filter configuration's sqrt option to a Kind.
func ParseKind(s string) (Kind, error) {
	switch s {
	case "", "cholesky":
		return Cholesky, nil
	case "svd":
		return SVD, nil
	default:
		return 0, qwfilter.NewError(qwfilter.KindInvalidOption, "sqrtmat.ParseKind",
			"unknown sqrt variant %q", s)
	}
}

// Sqrt computes square roots of symmetric-PSD matrices and, where
// supported, builders for their parameter derivative.
type Sqrt interface {
	// SqrtOf returns S such that S^T S = Q.
	SqrtOf(Q mat.Symmetric) (*mat.Dense, error)
	// DiffBuilder returns a reusable derivative builder for n × n
	// inputs, or a KindNotImplemented error if this variant has no
	// derivative (the SVD case).
	DiffBuilder(n int) (DiffBuilder, error)
}

// DiffBuilder computes dS/dq given S and the corresponding dQ/dq
// slices (one symmetric n × n matrix per parameter). It precomputes
// its index bookkeeping once per dimension n at construction time and
// is stateless across Diff calls thereafter.
type DiffBuilder interface {
	Diff(S *mat.Dense, dQ []*mat.SymDense) ([]*mat.Dense, error)
}

// New returns the Sqrt implementation for kind.
func New(kind Kind) Sqrt {
	switch kind {
	case SVD:
		return svdSqrt{}
	default:
		return choleskySqrt{}
	}
}

// choleskySqrt is the Cholesky-backed variant.
type choleskySqrt struct{}

func (choleskySqrt) SqrtOf(Q mat.Symmetric) (*mat.Dense, error) {
	var chol mat.Cholesky
	if ok := chol.Factorize(Q); !ok {
		return nil, qwfilter.NewError(qwfilter.KindNotSPD, "sqrtmat.Cholesky.SqrtOf",
			"matrix of size %d is not symmetric positive-definite", Q.Symmetric())
	}
	var S mat.Dense
	chol.UTo(&S)
	return &S, nil
}

func (choleskySqrt) DiffBuilder(n int) (DiffBuilder, error) {
	return newCholeskyDiffBuilder(n), nil
}

// svdSqrt is the SVD-backed variant. It has no derivative.
type svdSqrt struct{}

func (svdSqrt) SqrtOf(Q mat.Symmetric) (*mat.Dense, error) {
	var svd mat.SVD
	if ok := svd.Factorize(Q, mat.SVDFull); !ok {
		return nil, qwfilter.NewError(qwfilter.KindNotSPD, "sqrtmat.SVD.SqrtOf",
			"SVD factorization failed for matrix of size %d", Q.Symmetric())
	}

	var U mat.Dense
	svd.UTo(&U)
	vals := svd.Values(nil)
	for i := range vals {
		vals[i] = sqrtNonNeg(vals[i])
	}
	diag := mat.NewDiagDense(len(vals), vals)

	var US mat.Dense
	US.Mul(&U, diag)

	S := new(mat.Dense)
	S.CloneFrom(US.T())
	return S, nil
}

func (svdSqrt) DiffBuilder(int) (DiffBuilder, error) {
	return nil, qwfilter.NewError(qwfilter.KindNotImplemented, "sqrtmat.SVD.DiffBuilder",
		"the SVD square-root variant has no analytic derivative")
}

func sqrtNonNeg(v float64) float64 {
	if v < 0 {
		v = 0
	}
	return math.Sqrt(v)
}
