package predictor

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"
)

// Hyperparameters configure the boosted tree ensemble and the evaluation
// split.
type Hyperparameters struct {
	NEstimators     int     `json:"n_estimators"`
	MaxDepth        int     `json:"max_depth"`
	LearningRate    float64 `json:"learning_rate"`
	MinSamplesSplit int     `json:"min_samples_split"`
	MinSamplesLeaf  int     `json:"min_samples_leaf"`
	TestFraction    float64 `json:"test_fraction"`
	Seed            uint64  `json:"seed"`
}

func DefaultHyperparameters() Hyperparameters {
	return Hyperparameters{
		NEstimators:     100,
		MaxDepth:        5,
		LearningRate:    0.1,
		MinSamplesSplit: 10,
		MinSamplesLeaf:  5,
		TestFraction:    0.2,
		Seed:            42,
	}
}

func (p Hyperparameters) Validate() error {
	switch {
	case p.NEstimators < 1:
		return fmt.Errorf("n_estimators must be positive, got %d", p.NEstimators)
	case p.MaxDepth < 1:
		return fmt.Errorf("max_depth must be positive, got %d", p.MaxDepth)
	case p.LearningRate <= 0 || p.LearningRate > 1:
		return fmt.Errorf("learning_rate must be in (0, 1], got %v", p.LearningRate)
	case p.MinSamplesSplit < 2:
		return fmt.Errorf("min_samples_split must be at least 2, got %d", p.MinSamplesSplit)
	case p.MinSamplesLeaf < 1:
		return fmt.Errorf("min_samples_leaf must be positive, got %d", p.MinSamplesLeaf)
	case p.TestFraction <= 0 || p.TestFraction >= 1:
		return fmt.Errorf("test_fraction must be in (0, 1), got %v", p.TestFraction)
	}
	return nil
}

// treeNode is a node of a regression tree stored in a flat slice. Leaves
// have Left == -1.
type treeNode struct {
	Feature   int     `json:"f"`
	Threshold float64 `json:"t"`
	Left      int     `json:"l"`
	Right     int     `json:"r"`
	Value     float64 `json:"v"`
}

type regressionTree struct {
	Nodes []treeNode `json:"nodes"`
}

func (t regressionTree) predict(x []float64) float64 {
	i := 0
	for {
		n := t.Nodes[i]
		if n.Left < 0 {
			return n.Value
		}
		if x[n.Feature] <= n.Threshold {
			i = n.Left
		} else {
			i = n.Right
		}
	}
}

// Ensemble is a least-squares gradient-boosted regression tree model.
type Ensemble struct {
	NumFeatures  int              `json:"num_features"`
	Init         float64          `json:"init"`
	LearningRate float64          `json:"learning_rate"`
	Trees        []regressionTree `json:"trees"`
}

var errNonFinitePrediction = errors.New("model produced a non-finite prediction")

// Predict evaluates the ensemble on one feature row.
func (e *Ensemble) Predict(x []float64) (float64, error) {
	if e == nil {
		return 0, errors.New("model is nil")
	}
	if len(x) != e.NumFeatures {
		return 0, fmt.Errorf("model expects %d features, got %d", e.NumFeatures, len(x))
	}
	y := e.Init
	for _, t := range e.Trees {
		y += e.LearningRate * t.predict(x)
	}
	if math.IsNaN(y) || math.IsInf(y, 0) {
		return 0, errNonFinitePrediction
	}
	return y, nil
}

// validate checks the structural integrity of a decoded ensemble so a corrupt
// artifact is rejected at load time rather than at prediction time.
func (e *Ensemble) validate() error {
	if e.NumFeatures < 1 {
		return errors.New("ensemble has no features")
	}
	for ti, t := range e.Trees {
		if len(t.Nodes) == 0 {
			return fmt.Errorf("tree %d is empty", ti)
		}
		for ni, n := range t.Nodes {
			if n.Left < 0 {
				continue
			}
			if n.Feature < 0 || n.Feature >= e.NumFeatures {
				return fmt.Errorf("tree %d node %d: feature index %d out of range", ti, ni, n.Feature)
			}
			if n.Left <= ni || n.Left >= len(t.Nodes) || n.Right <= ni || n.Right >= len(t.Nodes) {
				return fmt.Errorf("tree %d node %d: child index out of range", ti, ni)
			}
		}
	}
	return nil
}

// fitEnsemble trains the ensemble on X (rows) and y and returns the total
// squared-error reduction credited to each feature, normalised to sum to 1.
func fitEnsemble(X [][]float64, y []float64, p Hyperparameters) (*Ensemble, []float64) {
	numFeatures := len(X[0])
	init := stat.Mean(y, nil)

	pred := make([]float64, len(y))
	for i := range pred {
		pred[i] = init
	}
	residual := make([]float64, len(y))
	importance := make([]float64, numFeatures)

	ens := &Ensemble{
		NumFeatures:  numFeatures,
		Init:         init,
		LearningRate: p.LearningRate,
		Trees:        make([]regressionTree, 0, p.NEstimators),
	}

	all := make([]int, len(y))
	for i := range all {
		all[i] = i
	}

	for m := 0; m < p.NEstimators; m++ {
		for i := range y {
			residual[i] = y[i] - pred[i]
		}
		b := &treeBuilder{X: X, target: residual, params: p, importance: importance}
		b.build(append([]int(nil), all...), 0)
		tree := regressionTree{Nodes: b.nodes}
		for i := range pred {
			pred[i] += p.LearningRate * tree.predict(X[i])
		}
		ens.Trees = append(ens.Trees, tree)
	}

	var total float64
	for _, v := range importance {
		total += v
	}
	if total > 0 {
		for i := range importance {
			importance[i] /= total
		}
	}
	return ens, importance
}

type treeBuilder struct {
	X          [][]float64
	target     []float64
	params     Hyperparameters
	nodes      []treeNode
	importance []float64
}

type split struct {
	feature   int
	threshold float64
	gain      float64
}

func (b *treeBuilder) build(idx []int, depth int) int {
	var sum, sumSq float64
	for _, i := range idx {
		sum += b.target[i]
		sumSq += b.target[i] * b.target[i]
	}
	id := len(b.nodes)
	b.nodes = append(b.nodes, treeNode{Left: -1, Right: -1, Value: sum / float64(len(idx))})

	if depth >= b.params.MaxDepth || len(idx) < b.params.MinSamplesSplit || len(idx) < 2*b.params.MinSamplesLeaf {
		return id
	}
	best, ok := b.bestSplit(idx, sum, sumSq)
	if !ok {
		return id
	}
	b.importance[best.feature] += best.gain

	var left, right []int
	for _, i := range idx {
		if b.X[i][best.feature] <= best.threshold {
			left = append(left, i)
		} else {
			right = append(right, i)
		}
	}

	l := b.build(left, depth+1)
	r := b.build(right, depth+1)
	b.nodes[id].Feature = best.feature
	b.nodes[id].Threshold = best.threshold
	b.nodes[id].Left = l
	b.nodes[id].Right = r
	return id
}

// bestSplit scans every feature for the threshold with the largest
// squared-error reduction that leaves at least MinSamplesLeaf rows per side.
// Reductions within rounding noise of the node's sum of squares are ignored.
func (b *treeBuilder) bestSplit(idx []int, sum, sumSq float64) (split, bool) {
	n := len(idx)
	minLeaf := b.params.MinSamplesLeaf
	parent := sum * sum / float64(n)

	best := split{gain: 1e-10*sumSq + 1e-12}
	found := false
	sorted := make([]int, n)

	for f := range b.X[idx[0]] {
		copy(sorted, idx)
		sort.SliceStable(sorted, func(a, c int) bool {
			return b.X[sorted[a]][f] < b.X[sorted[c]][f]
		})

		var leftSum float64
		for k := 1; k < n; k++ {
			leftSum += b.target[sorted[k-1]]
			if k < minLeaf || n-k < minLeaf {
				continue
			}
			lo, hi := b.X[sorted[k-1]][f], b.X[sorted[k]][f]
			if lo == hi {
				continue
			}
			rightSum := sum - leftSum
			gain := leftSum*leftSum/float64(k) + rightSum*rightSum/float64(n-k) - parent
			if gain > best.gain {
				best = split{feature: f, threshold: (lo + hi) / 2, gain: gain}
				found = true
			}
		}
	}
	return best, found
}
