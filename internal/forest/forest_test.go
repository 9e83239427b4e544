package forest

import (
	"context"
	"encoding/json"
	"math/rand"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/riverweft/patrolcast/internal/domain"
)

func testParams() domain.ForestParams {
	return domain.ForestParams{Trees: 30, MaxDepth: 0, MinLeaf: 1, SampleRatio: 1.0, Seed: 42}
}

// twoClusters builds rows where feature 0 fully determines the target: low
// inputs average near 2, high inputs near 10. Features 1 and 2 are noise.
func twoClusters(n int, seed int64) ([][]float64, []float64) {
	rng := rand.New(rand.NewSource(seed))
	features := make([][]float64, n)
	targets := make([]float64, n)
	for i := range features {
		var base float64
		x0 := rng.Float64()
		if x0 < 0.5 {
			base = 2
		} else {
			base = 10
		}
		features[i] = []float64{x0, rng.Float64() * 100, rng.Float64()}
		targets[i] = base + rng.Float64()*0.5
	}
	return features, targets
}

func TestTrainValidation(t *testing.T) {
	ctx := context.Background()

	t.Run("no rows", func(t *testing.T) {
		_, err := Train(ctx, nil, nil, testParams())
		require.Error(t, err)
	})

	t.Run("row and target length mismatch", func(t *testing.T) {
		_, err := Train(ctx, [][]float64{{1, 2}}, []float64{1, 2}, testParams())
		require.Error(t, err)
	})

	t.Run("ragged feature rows", func(t *testing.T) {
		_, err := Train(ctx, [][]float64{{1, 2}, {1}}, []float64{1, 2}, testParams())
		require.Error(t, err)
		assert.ErrorIs(t, err, domain.ErrSchemaMismatch)
	})

	t.Run("bad hyperparameters", func(t *testing.T) {
		params := testParams()
		params.Trees = 0
		_, err := Train(ctx, [][]float64{{1}}, []float64{1}, params)
		require.Error(t, err)
	})
}

func TestTrainLearnsSignal(t *testing.T) {
	features, targets := twoClusters(300, 1)
	f, err := Train(context.Background(), features, targets, testParams())
	require.NoError(t, err)

	low, err := f.Predict([]float64{0.1, 50, 0.5})
	require.NoError(t, err)
	high, err := f.Predict([]float64{0.9, 50, 0.5})
	require.NoError(t, err)

	assert.InDelta(t, 2.25, low, 1.0, "low cluster averages near 2.25")
	assert.InDelta(t, 10.25, high, 1.0, "high cluster averages near 10.25")
	assert.Greater(t, high, low)
}

func TestTrainDeterministic(t *testing.T) {
	features, targets := twoClusters(200, 3)

	first, err := Train(context.Background(), features, targets, testParams())
	require.NoError(t, err)
	second, err := Train(context.Background(), features, targets, testParams())
	require.NoError(t, err)

	if diff := cmp.Diff(first, second); diff != "" {
		t.Errorf("same seed produced different forests (-first +second):\n%s", diff)
	}

	t.Run("different seed differs", func(t *testing.T) {
		params := testParams()
		params.Seed = 43
		other, err := Train(context.Background(), features, targets, params)
		require.NoError(t, err)
		assert.NotEqual(t, first.Trees, other.Trees)
	})
}

func TestPredict(t *testing.T) {
	features, targets := twoClusters(200, 5)
	f, err := Train(context.Background(), features, targets, testParams())
	require.NoError(t, err)

	t.Run("never negative, even far outside training range", func(t *testing.T) {
		vectors := [][]float64{
			{-1000, -1000, -1000},
			{1000, 1000, 1000},
			{0, 0, 0},
		}
		for _, x := range vectors {
			got, err := f.Predict(x)
			require.NoError(t, err)
			assert.GreaterOrEqual(t, got, 0.0)
		}
	})

	t.Run("wrong vector length is a schema mismatch", func(t *testing.T) {
		_, err := f.Predict([]float64{1, 2})
		require.Error(t, err)
		assert.ErrorIs(t, err, domain.ErrSchemaMismatch)
	})

	t.Run("empty forest refuses", func(t *testing.T) {
		var empty Forest
		empty.NumFeatures = 3
		_, err := empty.Predict([]float64{1, 2, 3})
		require.Error(t, err)
	})
}

func TestFeatureImportances(t *testing.T) {
	features, targets := twoClusters(300, 9)
	f, err := Train(context.Background(), features, targets, testParams())
	require.NoError(t, err)

	require.Len(t, f.FeatureImportances, 3)

	var total float64
	for _, v := range f.FeatureImportances {
		assert.GreaterOrEqual(t, v, 0.0)
		total += v
	}
	assert.InDelta(t, 1.0, total, 1e-9)

	assert.Greater(t, f.FeatureImportances[0], 0.5,
		"the target is a function of feature 0, which must dominate")
}

func TestForestJSONRoundTrip(t *testing.T) {
	features, targets := twoClusters(100, 11)
	f, err := Train(context.Background(), features, targets, testParams())
	require.NoError(t, err)

	data, err := json.Marshal(f)
	require.NoError(t, err)

	var restored Forest
	require.NoError(t, json.Unmarshal(data, &restored))

	probe := []float64{0.7, 42, 0.1}
	want, err := f.Predict(probe)
	require.NoError(t, err)
	got, err := restored.Predict(probe)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestTrainCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	features, targets := twoClusters(200, 13)
	_, err := Train(ctx, features, targets, testParams())
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestSingleRowTrains(t *testing.T) {
	f, err := Train(context.Background(), [][]float64{{1, 2}}, []float64{7}, testParams())
	require.NoError(t, err)

	got, err := f.Predict([]float64{9, 9})
	require.NoError(t, err)
	assert.Equal(t, 7.0, got, "a one-row fit is a constant model")
}
