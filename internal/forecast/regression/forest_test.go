package regression

import (
	"context"
	"errors"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dataset(n int, seed int64) ([][]float64, []float64) {
	rng := rand.New(rand.NewSource(seed))
	X := make([][]float64, n)
	y := make([]float64, n)
	for i := range X {
		X[i] = []float64{rng.Float64() * 10, rng.Float64(), float64(i % 7)}
		y[i] = 3*X[i][0] + 0.5*X[i][2]
	}
	return X, y
}

func TestFitIsDeterministicAcrossWorkerCounts(t *testing.T) {
	X, y := dataset(200, 1)
	params := Params{Trees: 40, Seed: 42, MaxFeatures: 1, Bootstrap: true}

	params.Workers = 1
	serial, err := Fit(context.Background(), X, y, params)
	require.NoError(t, err)

	params.Workers = 8
	parallel, err := Fit(context.Background(), X, y, params)
	require.NoError(t, err)

	a, err := serial.PredictBatch(X[:20])
	require.NoError(t, err)
	b, err := parallel.PredictBatch(X[:20])
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestFitLearnsSignal(t *testing.T) {
	X, y := dataset(300, 2)
	forest, err := Fit(context.Background(), X, y, Params{Trees: 50, Seed: 7, MaxFeatures: 1, Bootstrap: true})
	require.NoError(t, err)

	got, err := forest.Predict([]float64{5, 0.5, 3})
	require.NoError(t, err)
	assert.InDelta(t, 16.5, got, 1.5)
}

func TestFitConstantTarget(t *testing.T) {
	X, _ := dataset(50, 3)
	y := make([]float64, len(X))
	for i := range y {
		y[i] = 1000
	}
	forest, err := Fit(context.Background(), X, y, Params{Trees: 10, Seed: 1, Bootstrap: true})
	require.NoError(t, err)

	got, err := forest.Predict(X[0])
	require.NoError(t, err)
	assert.InDelta(t, 1000, got, 1e-9)
}

func TestFitValidatesInput(t *testing.T) {
	_, err := Fit(context.Background(), nil, nil, Params{})
	assert.ErrorIs(t, err, ErrEmptyTrainingSet)

	_, err = Fit(context.Background(), [][]float64{{1}, {1, 2}}, []float64{1, 2}, Params{})
	assert.ErrorIs(t, err, ErrShapeMismatch)

	forest, err := Fit(context.Background(), [][]float64{{1}, {2}}, []float64{1, 2}, Params{Trees: 2})
	require.NoError(t, err)
	_, err = forest.Predict([]float64{1, 2})
	assert.ErrorIs(t, err, ErrShapeMismatch)
}

func TestFitHonoursCancellation(t *testing.T) {
	X, y := dataset(100, 4)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Fit(ctx, X, y, Params{Trees: 20, Workers: 2})
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestFeaturesPerSplit(t *testing.T) {
	assert.Equal(t, 10, Params{}.featuresPerSplit(109))
	assert.Equal(t, 1, Params{}.featuresPerSplit(1))
	assert.Equal(t, 54, Params{MaxFeatures: 0.5}.featuresPerSplit(109))
	assert.Equal(t, 3, Params{MaxFeatures: 1}.featuresPerSplit(3))
}
