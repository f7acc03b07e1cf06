// Package winner implements the winner-take-all family of connectivity
// models: each target keeps only its strongest source (WTA), its n
// strongest sources (WNTA), or refits a ridge model on its n strongest
// sources (Staged).
package winner

import (
	"context"
	"math"
	"sort"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/connmodel/linear"
	"github.com/YuminosukeSato/connmodel/qp"
)

// SelectTop keeps, for every row of the V×P matrix dense, the n entries
// with the largest ranking key and zeroes the rest. The key is the signed
// value, or |value| when byMagnitude is set. Rows are sorted stably, so
// ties go to the lowest column index. n larger than P keeps all P columns.
// labels[v] lists the kept columns, strongest first.
func SelectTop(dense *mat.Dense, n int, byMagnitude bool) (*mat.Dense, [][]int) {
	v, p := dense.Dims()
	k := min(n, p)
	sparse := mat.NewDense(v, p, nil)
	labels := make([][]int, v)

	order := make([]int, p)
	for i := 0; i < v; i++ {
		row := dense.RawRowView(i)
		key := func(j int) float64 {
			if byMagnitude {
				return math.Abs(row[j])
			}
			return row[j]
		}
		for j := range order {
			order[j] = j
		}
		sort.SliceStable(order, func(a, b int) bool {
			return key(order[a]) > key(order[b])
		})

		labels[i] = append([]int(nil), order[:k]...)
		for _, j := range labels[i] {
			sparse.Set(i, j, row[j])
		}
	}
	return sparse, labels
}

// denseFit is the stage-1 fit on the scaled sources: ordinary least squares,
// or non-negative least squares when positive is set.
func denseFit(ctx context.Context, Xs, Y mat.Matrix, positive bool, workers int) (*mat.Dense, error) {
	if positive {
		coef, _, err := linear.SolveNNLS(ctx, Xs, Y, 0, 0, qp.NewActiveSet(), workers)
		return coef, err
	}
	sol, err := linear.SolveRidge(Xs, Y, 0)
	if err != nil {
		return nil, err
	}
	return sol.Coef, nil
}
