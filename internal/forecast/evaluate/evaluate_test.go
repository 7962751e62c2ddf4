package evaluate

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplit(t *testing.T) {
	assert.Equal(t, 0, Split(0, 0.75))
	assert.Equal(t, 1, Split(1, 0.75))
	assert.Equal(t, 1, Split(2, 0.75))
	assert.Equal(t, 75, Split(100, 0.75))
	assert.Equal(t, 80, Split(100, 0.8))
	assert.Equal(t, 75, Split(100, 0))
}

func TestScore(t *testing.T) {
	m, err := Score([]float64{100, 200, 0}, []float64{110, 190, 1})
	require.NoError(t, err)
	require.True(t, m.Available())
	assert.Equal(t, 7.0, *m.MAE)
	assert.Equal(t, 8.1854, *m.RMSE)
	// 0.1 + 0.05 + 1e6, averaged, as a percentage
	assert.InDelta(t, 33333338.33, *m.MAPE, 0.01)
}

func TestScoreWithoutHoldout(t *testing.T) {
	m, err := Score(nil, nil)
	require.NoError(t, err)
	assert.False(t, m.Available())
	assert.Nil(t, m.MAE)
	assert.Nil(t, m.RMSE)
	assert.Nil(t, m.MAPE)
}

func TestScoreLengthMismatch(t *testing.T) {
	_, err := Score([]float64{1}, nil)
	assert.Error(t, err)
}
