package qp

import (
	"context"
	"math"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/YuminosukeSato/connmodel/pkg/errors"
)

// randomProblem returns G = XᵀX + ridge·I and a = Xᵀ(X·truth).
func randomProblem(seed uint64, n, p int, truth []float64, ridge float64) (*mat.SymDense, []float64) {
	norm := distuv.Normal{Mu: 0, Sigma: 1, Src: rand.NewPCG(seed, seed+1)}
	X := mat.NewDense(n, p, nil)
	for i := 0; i < n; i++ {
		for j := 0; j < p; j++ {
			X.Set(i, j, norm.Rand())
		}
	}
	y := mat.NewVecDense(n, nil)
	y.MulVec(X, mat.NewVecDense(p, truth))

	G := mat.NewSymDense(p, nil)
	G.SymOuterK(1, X.T())
	for j := 0; j < p; j++ {
		G.SetSym(j, j, G.At(j, j)+ridge)
	}
	a := mat.NewVecDense(p, nil)
	a.MulVec(X.T(), y)
	return G, a.RawVector().Data
}

func backends(t *testing.T) []Solver {
	t.Helper()
	var out []Solver
	for _, name := range []string{ActiveSetName, InteriorPointName} {
		s, err := New(name)
		require.NoError(t, err)
		out = append(out, s)
	}
	return out
}

func assertKKT(t *testing.T, G mat.Symmetric, a, c []float64, tol float64) {
	t.Helper()
	n := len(a)
	for i := 0; i < n; i++ {
		if c[i] < -1e-12 {
			t.Fatalf("c[%d] = %v is negative", i, c[i])
		}
		w := a[i]
		for j := 0; j < n; j++ {
			w -= G.At(i, j) * c[j]
		}
		if c[i] > tol {
			assert.InDelta(t, 0, w, tol*10, "dual must vanish on free variable %d", i)
		} else {
			assert.LessOrEqual(t, w, tol*10, "dual must be non-positive on bound variable %d", i)
		}
	}
}

func TestSolve_RecoversNonNegativeTruth(t *testing.T) {
	truth := []float64{0.5, 0, 1.2, 0, 0, 2.0, 0.1, 0}
	G, a := randomProblem(1, 60, len(truth), truth, 0)

	// zero entries of the truth are degenerate for the interior method
	deltas := map[string]float64{ActiveSetName: 1e-6, InteriorPointName: 1e-4}
	for _, s := range backends(t) {
		t.Run(s.Name(), func(t *testing.T) {
			res, err := s.Solve(context.Background(), G, a, nil)
			require.NoError(t, err)
			for j := range truth {
				assert.InDelta(t, truth[j], res.X[j], deltas[s.Name()], "coefficient %d", j)
			}
		})
	}
}

func TestSolve_ActiveConstraints(t *testing.T) {
	truth := []float64{1, -2, 0.5, -0.3, 0.8, -1}
	G, a := randomProblem(7, 40, len(truth), truth, 0.5)

	var solutions [][]float64
	for _, s := range backends(t) {
		res, err := s.Solve(context.Background(), G, a, nil)
		require.NoError(t, err, s.Name())
		assertKKT(t, G, a, res.X, 1e-6)
		solutions = append(solutions, res.X)
	}
	assert.InDeltaSlice(t, solutions[0], solutions[1], 1e-5, "backends must agree")
}

func TestSolve_WarmStart(t *testing.T) {
	truth := []float64{0.3, 0, 0.9, 0.2, 0}
	G, a := randomProblem(3, 30, len(truth), truth, 0)

	cold, err := NewActiveSet().Solve(context.Background(), G, a, nil)
	require.NoError(t, err)

	warm, err := NewActiveSet().Solve(context.Background(), G, a, cold.X)
	require.NoError(t, err)
	assert.InDeltaSlice(t, cold.X, warm.X, 1e-9)
	assert.LessOrEqual(t, warm.Iterations, cold.Iterations)

	ip, err := NewInteriorPoint().Solve(context.Background(), G, a, cold.X)
	require.NoError(t, err)
	assert.InDeltaSlice(t, cold.X, ip.X, 1e-4)
}

func TestSolve_ZeroCurvatureCoordinate(t *testing.T) {
	// coordinate 1 has no curvature and a non-positive linear term
	G := mat.NewSymDense(3, []float64{
		2, 0, 0.5,
		0, 0, 0,
		0.5, 0, 1,
	})
	a := []float64{2, 0, 1}
	want, err := NewActiveSet().Solve(context.Background(), G, a, nil)
	require.NoError(t, err)

	warms := [][]float64{nil, {1, math.Inf(1), 1}, {1, math.NaN(), 1}}
	for _, warm := range warms {
		res, err := NewInteriorPoint().Solve(context.Background(), G, a, warm)
		require.NoError(t, err)
		assert.Equal(t, 0.0, res.X[1])
		assert.InDeltaSlice(t, want.X, res.X, 1e-6)
	}

	a[1] = 1
	_, err = NewInteriorPoint().Solve(context.Background(), G, a, nil)
	var se *errors.SolverError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, errors.SolverInfeasible, se.Kind)
}

func TestSolve_NotConverged(t *testing.T) {
	truth := []float64{1, 1, 1, 1}
	G, a := randomProblem(5, 20, len(truth), truth, 0)

	tests := []struct {
		name   string
		solver Solver
	}{
		{"activeset", NewActiveSet(WithMaxIter(1))},
		{"interior", NewInteriorPoint(WithMaxIter(2))},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.solver.Solve(context.Background(), G, a, nil)
			var se *errors.SolverError
			require.True(t, errors.As(err, &se), "got %v", err)
			assert.Equal(t, errors.SolverNotConverged, se.Kind)
			assert.Equal(t, tt.name, se.Solver)
		})
	}
}

func TestSolve_Infeasible(t *testing.T) {
	G := mat.NewSymDense(2, []float64{1, 0, 0, 1})
	a := []float64{1, math.NaN()}
	for _, s := range backends(t) {
		_, err := s.Solve(context.Background(), G, a, nil)
		var se *errors.SolverError
		require.True(t, errors.As(err, &se))
		assert.Equal(t, errors.SolverInfeasible, se.Kind)
	}
}

func TestSolve_Cancelled(t *testing.T) {
	G, a := randomProblem(9, 10, 3, []float64{1, 2, 3}, 0)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	for _, s := range backends(t) {
		_, err := s.Solve(ctx, G, a, nil)
		assert.ErrorIs(t, err, context.Canceled)
	}
}

func TestNew_Aliases(t *testing.T) {
	tests := map[string]string{
		"":         ActiveSetName,
		"quadprog": ActiveSetName,
		"QuadProg": ActiveSetName,
		"cvxopt":   InteriorPointName,
		"interior": InteriorPointName,
	}
	for name, want := range tests {
		s, err := New(name)
		require.NoError(t, err, name)
		assert.Equal(t, want, s.Name())
	}

	_, err := New("gurobi")
	var ve *errors.ValidationError
	assert.True(t, errors.As(err, &ve))

	_, err = New(ActiveSetName, WithMaxIter(-1))
	assert.True(t, errors.As(err, &ve))

	_, err = New(InteriorPointName, WithTol(math.NaN()))
	assert.True(t, errors.As(err, &ve))
}

func TestSolve_DimensionMismatch(t *testing.T) {
	G := mat.NewSymDense(2, []float64{1, 0, 0, 1})
	_, err := NewActiveSet().Solve(context.Background(), G, []float64{1}, nil)
	var de *errors.DimensionError
	assert.True(t, errors.As(err, &de))
}
