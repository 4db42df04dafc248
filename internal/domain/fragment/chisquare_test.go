package fragment

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNominalCounts(t *testing.T) {
	counts := nominalCounts([]string{"a", "b", "c"}, []string{"b", "a", "b", "x"})
	assert.Equal(t, []float64{1, 2, 0}, counts)
}

func TestChiSquareDataSetsComparison(t *testing.T) {
	t.Run("identical distributions", func(t *testing.T) {
		assert.InDelta(t, 1.0, chiSquareDataSetsComparison([]float64{10, 10}, []float64{10, 10}), 1e-12)
	})
	t.Run("proportional distributions", func(t *testing.T) {
		assert.InDelta(t, 1.0, chiSquareDataSetsComparison([]float64{5, 5}, []float64{10, 10}), 1e-12)
	})
	t.Run("skewed sample", func(t *testing.T) {
		// weight = sqrt(8/20); statistic = 40/18 + 40/10
		weight := math.Sqrt(0.4)
		stat := math.Pow(8/weight-10*weight, 2)/18 + math.Pow(10*weight, 2)/10
		p := chiSquareDataSetsComparison([]float64{8, 0}, []float64{10, 10})
		assert.InDelta(t, math.Erfc(math.Sqrt(stat/2)), p, 1e-9)
		assert.Less(t, p, 0.05)
	})
	t.Run("empty columns are skipped", func(t *testing.T) {
		withEmpty := chiSquareDataSetsComparison([]float64{8, 0, 0}, []float64{10, 10, 0})
		without := chiSquareDataSetsComparison([]float64{8, 0}, []float64{10, 10})
		assert.InDelta(t, without, withEmpty, 1e-12)
	})
	t.Run("single informative column", func(t *testing.T) {
		assert.Equal(t, 1.0, chiSquareDataSetsComparison([]float64{3, 0}, []float64{5, 0}))
	})
}

func TestSubsetOf(t *testing.T) {
	assert.True(t, subsetOf(nil, []int{1}))
	assert.True(t, subsetOf([]int{1, 3}, []int{1, 2, 3}))
	assert.False(t, subsetOf([]int{1, 4}, []int{1, 2, 3}))
	assert.False(t, subsetOf([]int{1, 2, 3}, []int{1, 2}))
}

func TestSortedUnique(t *testing.T) {
	assert.Equal(t, []int{1, 2, 5}, sortedUnique([]int{5, 1, 2, 1, 5}))
	assert.Empty(t, sortedUnique(nil))
}
