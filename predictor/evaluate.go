package predictor

import (
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// MeanAbsoluteError of predictions against observed values.
func MeanAbsoluteError(observed, predicted []float64) float64 {
	if len(observed) == 0 {
		return 0
	}
	return floats.Distance(observed, predicted, 1) / float64(len(observed))
}

// R2Score is the coefficient of determination. When the observed values are
// constant it is 1 for a perfect fit and 0 otherwise, so the score is always
// finite.
func R2Score(observed, predicted []float64) float64 {
	if len(observed) < 2 {
		return 0
	}
	if stat.Variance(observed, nil) == 0 {
		if floats.Equal(observed, predicted) {
			return 1
		}
		return 0
	}
	return stat.RSquaredFrom(predicted, observed, nil)
}

// splitIndices shuffles 0..n-1 with a fixed seed and returns the train and
// test partitions. The test partition gets ceil(n*testFraction) rows and
// both partitions are non-empty for n >= 2.
func splitIndices(n int, testFraction float64, seed uint64) (train, test []int) {
	r := rand.New(rand.NewPCG(seed, seed))
	perm := r.Perm(n)

	nTest := int(math.Ceil(float64(n) * testFraction))
	nTest = min(max(nTest, 1), n-1)
	return perm[nTest:], perm[:nTest]
}
