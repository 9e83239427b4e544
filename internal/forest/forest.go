// Package forest implements a bagged ensemble of variance-minimizing
// regression trees for incident-density prediction.
//
// Each tree trains on a seeded bootstrap sample; predictions average the
// trees and clip at zero, since a negative incident density is meaningless.
// Tree seeds derive from the base seed plus the tree's position, so training
// is bit-for-bit reproducible no matter how many goroutines fit trees
// concurrently.
package forest

import (
	"context"
	"fmt"
	"math/rand"
	"runtime"

	"golang.org/x/sync/errgroup"

	"github.com/riverweft/patrolcast/internal/domain"
)

// Forest is a trained ensemble. The zero value is unusable; obtain one from
// [Train] or by unmarshaling a stored artifact. A Forest is immutable after
// training and safe for concurrent Predict calls.
type Forest struct {
	NumFeatures        int       `json:"num_features"`
	Trees              []tree    `json:"trees"`
	FeatureImportances []float64 `json:"feature_importances"`
}

// Train fits the ensemble on a feature matrix and targets. Rows must share
// one feature length; per-tree work runs on all cores via an errgroup with
// results identical to a serial fit.
func Train(ctx context.Context, features [][]float64, targets []float64, params domain.ForestParams) (*Forest, error) {
	if len(features) == 0 {
		return nil, fmt.Errorf("forest: no training rows")
	}
	if len(features) != len(targets) {
		return nil, fmt.Errorf("forest: %d feature rows but %d targets", len(features), len(targets))
	}
	numFeatures := len(features[0])
	if numFeatures == 0 {
		return nil, fmt.Errorf("forest: empty feature vectors")
	}
	for i, row := range features {
		if len(row) != numFeatures {
			return nil, fmt.Errorf("%w: row %d has %d features, want %d", domain.ErrSchemaMismatch, i, len(row), numFeatures)
		}
	}
	if params.Trees < 1 || params.MinLeaf < 1 || params.SampleRatio <= 0 || params.SampleRatio > 1 {
		return nil, fmt.Errorf("forest: invalid hyperparameters %+v", params)
	}

	n := len(features)
	sampleSize := int(params.SampleRatio * float64(n))
	if sampleSize < 1 {
		sampleSize = 1
	}

	trees := make([]tree, params.Trees)
	perTreeImportances := make([][]float64, params.Trees)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.GOMAXPROCS(0))
	for t := 0; t < params.Trees; t++ {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			rng := rand.New(rand.NewSource(params.Seed + int64(t)))
			builder := &treeBuilder{
				features:    features,
				targets:     targets,
				numFeatures: numFeatures,
				maxDepth:    params.MaxDepth,
				minLeaf:     params.MinLeaf,
			}
			trees[t] = builder.fit(bootstrap(rng, n, sampleSize))
			perTreeImportances[t] = builder.importances
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("forest: training aborted: %w", err)
	}

	// Summed in tree order after the fact, so parallelism cannot reorder
	// floating-point accumulation.
	importances := make([]float64, numFeatures)
	for _, imp := range perTreeImportances {
		for f, v := range imp {
			importances[f] += v
		}
	}
	var total float64
	for _, v := range importances {
		total += v
	}
	if total > 0 {
		for f := range importances {
			importances[f] /= total
		}
	}

	return &Forest{
		NumFeatures:        numFeatures,
		Trees:              trees,
		FeatureImportances: importances,
	}, nil
}

// Predict returns the ensemble estimate for one feature vector, never
// negative. Vectors of the wrong length fail with [domain.ErrSchemaMismatch].
func (f *Forest) Predict(x []float64) (float64, error) {
	if len(x) != f.NumFeatures {
		return 0, fmt.Errorf("%w: vector has %d features, model wants %d", domain.ErrSchemaMismatch, len(x), f.NumFeatures)
	}
	if len(f.Trees) == 0 {
		return 0, fmt.Errorf("forest: no trees, model not trained")
	}

	var sum float64
	for _, t := range f.Trees {
		sum += t.predict(x)
	}
	estimate := sum / float64(len(f.Trees))
	if estimate < 0 {
		estimate = 0
	}
	return estimate, nil
}
