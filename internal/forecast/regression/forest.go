// Package regression implements a bagged regression-tree ensemble.
package regression

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"runtime"

	"github.com/smallbiznis/forecast/internal/config"
	"golang.org/x/sync/errgroup"
)

var (
	ErrEmptyTrainingSet = errors.New("empty_training_set")
	ErrShapeMismatch    = errors.New("shape_mismatch")
)

// Params configures Fit.
type Params struct {
	Trees           int
	Seed            int64
	MaxDepth        int // 0 means unbounded
	MinSamplesSplit int
	MinSamplesLeaf  int
	// MaxFeatures is the fraction of features tried per split. 0 means sqrt(p).
	MaxFeatures float64
	Workers     int
	Bootstrap   bool
}

func ParamsFromConfig(cfg config.ForestConfig) Params {
	return Params{
		Trees:           cfg.Trees,
		Seed:            cfg.Seed,
		MaxDepth:        cfg.MaxDepth,
		MinSamplesSplit: cfg.MinSamplesSplit,
		MinSamplesLeaf:  cfg.MinSamplesLeaf,
		MaxFeatures:     cfg.MaxFeatures,
		Workers:         cfg.Workers,
		Bootstrap:       true,
	}
}

func (p Params) withDefaults() Params {
	if p.Trees <= 0 {
		p.Trees = 100
	}
	if p.MinSamplesSplit < 2 {
		p.MinSamplesSplit = 2
	}
	if p.MinSamplesLeaf < 1 {
		p.MinSamplesLeaf = 1
	}
	if p.Workers <= 0 {
		p.Workers = runtime.GOMAXPROCS(0)
	}
	return p
}

// featuresPerSplit returns how many candidate features each split considers.
func (p Params) featuresPerSplit(total int) int {
	var k int
	if p.MaxFeatures <= 0 {
		k = int(math.Sqrt(float64(total)))
	} else {
		k = int(p.MaxFeatures * float64(total))
	}
	return min(max(k, 1), total)
}

// Forest is an immutable fitted ensemble.
type Forest struct {
	trees     []*tree
	nFeatures int
}

// Fit trains the ensemble. Trees are fit concurrently; each tree draws from
// its own generator seeded by (Seed, tree index), so results do not depend on
// scheduling.
func Fit(ctx context.Context, X [][]float64, y []float64, p Params) (*Forest, error) {
	if len(X) == 0 {
		return nil, ErrEmptyTrainingSet
	}
	if len(X) != len(y) {
		return nil, fmt.Errorf("%w: %d rows, %d targets", ErrShapeMismatch, len(X), len(y))
	}
	nFeatures := len(X[0])
	for i, row := range X {
		if len(row) != nFeatures {
			return nil, fmt.Errorf("%w: row %d has %d features, want %d", ErrShapeMismatch, i, len(row), nFeatures)
		}
	}

	p = p.withDefaults()
	forest := &Forest{trees: make([]*tree, p.Trees), nFeatures: nFeatures}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(p.Workers)
	for i := range forest.trees {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			rng := rand.New(rand.NewPCG(uint64(p.Seed), uint64(i)))
			forest.trees[i] = growTree(X, y, sample(rng, len(X), p.Bootstrap), p, rng)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return forest, nil
}

// Predict averages the tree outputs for one feature vector.
func (f *Forest) Predict(x []float64) (float64, error) {
	if len(x) != f.nFeatures {
		return 0, fmt.Errorf("%w: got %d features, want %d", ErrShapeMismatch, len(x), f.nFeatures)
	}
	var sum float64
	for _, t := range f.trees {
		sum += t.predict(x)
	}
	return sum / float64(len(f.trees)), nil
}

// PredictBatch predicts every row of X.
func (f *Forest) PredictBatch(X [][]float64) ([]float64, error) {
	out := make([]float64, len(X))
	for i, row := range X {
		value, err := f.Predict(row)
		if err != nil {
			return nil, err
		}
		out[i] = value
	}
	return out, nil
}

func (f *Forest) Trees() int {
	return len(f.trees)
}

func (f *Forest) Features() int {
	return f.nFeatures
}

func sample(rng *rand.Rand, n int, bootstrap bool) []int {
	idx := make([]int, n)
	for i := range idx {
		if bootstrap {
			idx[i] = rng.IntN(n)
		} else {
			idx[i] = i
		}
	}
	return idx
}
