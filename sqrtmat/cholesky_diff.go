package sqrtmat

import (
	"math"

	"github.com/dimasad/qwfilter"
	"gonum.org/v1/gonum/mat"
)

// trilPair is a lower-triangular (row, col) index with row >= col.
type trilPair struct{ i, j int }

// choleskyDiffBuilder differentiates the upper Cholesky factor S of an
// n × n matrix Q (S^T S = Q) with respect to an external parameter.
// Differentiating S^T S = Q at the lower-triangular indices (i, j)
// with i >= j and L = S^T (so Q = L L^T) gives, for each q,
//
//	sum_k ( L[j,k] * dL[i,k]/dq + L[i,k] * dL[j,k]/dq ) = dQ[i,j]/dq
//
// (on the diagonal i == j the two terms coincide and count twice).
// dL[i,k] is identically zero for k > i since L is lower triangular, so
// the sums only ever touch valid lower-triangular entries. Flattening
// by (i, j) produces a dense linear system A_tril · vec(dL_tril) =
// vec(dQ_tril) whose coefficients depend only on L (hence only on S,
// not on Q), so the nnz × nnz index bookkeeping is built once here and
// reused, LU-factorized fresh, for every Diff call.
type choleskyDiffBuilder struct {
	n    int
	tril []trilPair  // flattened (i, j) pairs, i >= j, in row-major order
	pos  map[int]int // (i*n+j) -> flat index into tril, for i >= j
}

func newCholeskyDiffBuilder(n int) *choleskyDiffBuilder {
	tril := make([]trilPair, 0, n*(n+1)/2)
	pos := make(map[int]int, n*(n+1)/2)
	for i := 0; i < n; i++ {
		for j := 0; j <= i; j++ {
			pos[i*n+j] = len(tril)
			tril = append(tril, trilPair{i, j})
		}
	}
	return &choleskyDiffBuilder{n: n, tril: tril, pos: pos}
}

func (b *choleskyDiffBuilder) trilIndex(i, j int) (int, bool) {
	p, ok := b.pos[i*b.n+j]
	return p, ok
}

// Diff returns dS/dq for each symmetric dQ/dq slice in dQ.
func (b *choleskyDiffBuilder) Diff(S *mat.Dense, dQ []*mat.SymDense) ([]*mat.Dense, error) {
	n := b.n
	r, c := S.Dims()
	if r != n || c != n {
		return nil, qwfilter.NewError(qwfilter.KindShape, "sqrtmat.CholeskyDiffBuilder.Diff",
			"S has shape %dx%d, want %dx%d", r, c, n, n)
	}
	for idx, dq := range dQ {
		if dq.Symmetric() != n {
			return nil, qwfilter.NewError(qwfilter.KindShape, "sqrtmat.CholeskyDiffBuilder.Diff",
				"dQ[%d] has size %d, want %d", idx, dq.Symmetric(), n)
		}
	}

	nnz := len(b.tril)
	A := mat.NewDense(nnz, nnz, nil)
	for p, pair := range b.tril {
		i, j := pair.i, pair.j
		for k := 0; k <= i; k++ {
			q, ok := b.trilIndex(i, k)
			if !ok {
				continue
			}
			// L[j,k] = S[k,j]
			A.Set(p, q, A.At(p, q)+S.At(k, j))
		}
		for k := 0; k <= j; k++ {
			q, ok := b.trilIndex(j, k)
			if !ok {
				continue
			}
			// L[i,k] = S[k,i]
			A.Set(p, q, A.At(p, q)+S.At(k, i))
		}
	}

	var lu mat.LU
	lu.Factorize(A)
	if cond := lu.Cond(); math.IsInf(cond, 1) || math.IsNaN(cond) {
		return nil, qwfilter.NewError(qwfilter.KindSingular, "sqrtmat.CholeskyDiffBuilder.Diff",
			"A_tril linear system is singular (cond=%v)", cond)
	}

	nq := len(dQ)
	dQTril := mat.NewDense(nnz, nq, nil)
	for qi, dq := range dQ {
		for p, pair := range b.tril {
			dQTril.Set(p, qi, dq.At(pair.i, pair.j))
		}
	}

	var dLTril mat.Dense
	if err := lu.SolveTo(&dLTril, false, dQTril); err != nil {
		return nil, qwfilter.NewError(qwfilter.KindSingular, "sqrtmat.CholeskyDiffBuilder.Diff",
			"failed solving A_tril system: %v", err)
	}

	dS := make([]*mat.Dense, nq)
	for qi := range dQ {
		dL := mat.NewDense(n, n, nil)
		for p, pair := range b.tril {
			dL.Set(pair.i, pair.j, dLTril.At(p, qi))
		}
		dSq := new(mat.Dense)
		dSq.CloneFrom(dL.T())
		dS[qi] = dSq
	}

	return dS, nil
}
