// Package validation provides K-fold splitting, cross-validated scoring and
// the log-alpha grid search used to tune regularised connectivity models.
package validation

import (
	"math/rand/v2"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/connmodel/pkg/errors"
)

// Fold holds the row indices of one train/test split.
type Fold struct {
	Train []int
	Test  []int
}

// Splitter yields train/test folds over n rows.
type Splitter interface {
	Split(n int) ([]Fold, error)
	NSplits() int
}

// KFold splits rows into k contiguous test blocks. The first n%k blocks
// get one extra row. With Shuffle set, rows are permuted with Seed first.
type KFold struct {
	K       int
	Shuffle bool
	Seed    uint64
}

// NewKFold creates an unshuffled K-fold splitter. k below 2 means 5.
func NewKFold(k int) *KFold {
	if k < 2 {
		k = 5
	}
	return &KFold{K: k}
}

// NSplits returns k.
func (kf *KFold) NSplits() int { return kf.K }

// Split returns k folds; every row appears in exactly one test block.
// Train indices are ascending.
func (kf *KFold) Split(n int) ([]Fold, error) {
	if kf.K < 2 {
		return nil, errors.NewValidationError("cv", "must be at least 2", kf.K)
	}
	if n < kf.K {
		return nil, errors.NewValidationError("cv", "cannot exceed the number of samples", kf.K)
	}

	indices := make([]int, n)
	for i := range indices {
		indices[i] = i
	}
	if kf.Shuffle {
		r := rand.New(rand.NewPCG(kf.Seed, kf.Seed))
		r.Shuffle(n, func(i, j int) {
			indices[i], indices[j] = indices[j], indices[i]
		})
	}

	folds := make([]Fold, kf.K)
	foldSize, remainder := n/kf.K, n%kf.K
	current := 0
	for i := range folds {
		size := foldSize
		if i < remainder {
			size++
		}
		test := append([]int(nil), indices[current:current+size]...)
		inTest := make([]bool, n)
		for _, idx := range test {
			inTest[idx] = true
		}
		train := make([]int, 0, n-size)
		for j := 0; j < n; j++ {
			if !inTest[j] {
				train = append(train, j)
			}
		}
		folds[i] = Fold{Train: train, Test: test}
		current += size
	}
	return folds, nil
}

// Rows copies the listed rows of X into a new matrix.
func Rows(X mat.Matrix, idx []int) *mat.Dense {
	_, c := X.Dims()
	out := mat.NewDense(len(idx), c, nil)
	for i, r := range idx {
		for j := 0; j < c; j++ {
			out.Set(i, j, X.At(r, j))
		}
	}
	return out
}

// Columns copies the listed columns of X into a new matrix.
func Columns(X mat.Matrix, idx []int) *mat.Dense {
	r, _ := X.Dims()
	out := mat.NewDense(r, len(idx), nil)
	for k, j := range idx {
		for i := 0; i < r; i++ {
			out.Set(i, k, X.At(i, j))
		}
	}
	return out
}
