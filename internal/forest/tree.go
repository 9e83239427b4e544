package forest

import (
	"math/rand"
	"sort"
)

// node is one decision node in flattened form. Leaves have Feature == -1 and
// carry the prediction in Value; internal nodes route on Feature/Threshold to
// child positions in the tree's node slice. Short JSON keys keep 100-tree
// artifacts from ballooning.
type node struct {
	Feature   int     `json:"f"`
	Threshold float64 `json:"t,omitempty"`
	Left      int     `json:"l,omitempty"`
	Right     int     `json:"r,omitempty"`
	Value     float64 `json:"v,omitempty"`
}

const leaf = -1

// tree is a regression tree over a flattened node slice; index 0 is the root.
type tree struct {
	Nodes []node `json:"nodes"`
}

// predict walks the tree for one feature vector. The vector length is
// validated by the forest before any tree is consulted.
func (t tree) predict(x []float64) float64 {
	i := 0
	for {
		n := t.Nodes[i]
		if n.Feature == leaf {
			return n.Value
		}
		if x[n.Feature] <= n.Threshold {
			i = n.Left
		} else {
			i = n.Right
		}
	}
}

// treeBuilder grows one tree with variance-minimizing splits (CART). Split
// quality is the reduction in sum of squared errors; a split must leave at
// least minLeaf samples on each side.
type treeBuilder struct {
	features    [][]float64
	targets     []float64
	numFeatures int
	maxDepth    int // 0 means unlimited
	minLeaf     int

	nodes       []node
	importances []float64
}

func (b *treeBuilder) fit(indices []int) tree {
	b.nodes = b.nodes[:0]
	b.importances = make([]float64, b.numFeatures)
	b.build(indices, 1)
	return tree{Nodes: append([]node(nil), b.nodes...)}
}

// build grows the subtree for the given sample and returns its node index.
func (b *treeBuilder) build(indices []int, depth int) int {
	sum, sumSq := b.moments(indices)
	n := float64(len(indices))
	mean := sum / n
	sse := sumSq - sum*sum/n

	if len(indices) < 2*b.minLeaf || (b.maxDepth > 0 && depth > b.maxDepth) || sse <= 0 {
		return b.appendLeaf(mean)
	}

	feature, threshold, gain, ok := b.bestSplit(indices, sse)
	if !ok {
		return b.appendLeaf(mean)
	}

	var left, right []int
	for _, idx := range indices {
		if b.features[idx][feature] <= threshold {
			left = append(left, idx)
		} else {
			right = append(right, idx)
		}
	}

	b.importances[feature] += gain

	// Reserve the parent slot before recursing so child indexes are known.
	parent := len(b.nodes)
	b.nodes = append(b.nodes, node{})
	leftIdx := b.build(left, depth+1)
	rightIdx := b.build(right, depth+1)
	b.nodes[parent] = node{Feature: feature, Threshold: threshold, Left: leftIdx, Right: rightIdx}
	return parent
}

func (b *treeBuilder) appendLeaf(value float64) int {
	b.nodes = append(b.nodes, node{Feature: leaf, Value: value})
	return len(b.nodes) - 1
}

func (b *treeBuilder) moments(indices []int) (sum, sumSq float64) {
	for _, idx := range indices {
		y := b.targets[idx]
		sum += y
		sumSq += y * y
	}
	return sum, sumSq
}

// bestSplit scans every feature for the boundary with the largest SSE
// reduction. Candidate thresholds are midpoints between adjacent distinct
// values, so ties on identical values can never split.
func (b *treeBuilder) bestSplit(indices []int, parentSSE float64) (feature int, threshold, gain float64, ok bool) {
	order := make([]int, len(indices))
	totalSum, totalSumSq := b.moments(indices)
	n := len(indices)

	for f := 0; f < b.numFeatures; f++ {
		copy(order, indices)
		sort.Slice(order, func(i, j int) bool {
			return b.features[order[i]][f] < b.features[order[j]][f]
		})

		var leftSum, leftSumSq float64

		for k := 1; k < n; k++ {
			y := b.targets[order[k-1]]
			leftSum += y
			leftSumSq += y * y

			if k < b.minLeaf || n-k < b.minLeaf {
				continue
			}
			prev := b.features[order[k-1]][f]
			cur := b.features[order[k]][f]
			if prev == cur {
				continue
			}

			rightSum := totalSum - leftSum
			rightSumSq := totalSumSq - leftSumSq
			leftSSE := leftSumSq - leftSum*leftSum/float64(k)
			rightSSE := rightSumSq - rightSum*rightSum/float64(n-k)

			if g := parentSSE - leftSSE - rightSSE; g > gain {
				feature, threshold, gain, ok = f, (prev+cur)/2, g, true
			}
		}
	}
	return feature, threshold, gain, ok
}

// bootstrap draws a with-replacement sample of the given size from [0, n).
func bootstrap(rng *rand.Rand, n, size int) []int {
	indices := make([]int, size)
	for i := range indices {
		indices[i] = rng.Intn(n)
	}
	return indices
}
