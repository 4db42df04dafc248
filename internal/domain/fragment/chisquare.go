package fragment

import (
	"math"

	"gonum.org/v1/gonum/stat/distuv"
)

// nominalCounts counts values per domain entry.
func nominalCounts(domain []string, values []string) []float64 {
	pos := make(map[string]int, len(domain))
	for i, v := range domain {
		pos[v] = i
	}
	counts := make([]float64, len(domain))
	for _, v := range values {
		if i, ok := pos[v]; ok {
			counts[i]++
		}
	}
	return counts
}

// chiSquareDataSetsComparison returns the p-value of the two-sample
// chi-square test that observed1 and observed2 come from the same
// distribution.  Columns empty in both samples carry no information and are
// skipped; fewer than two informative columns yield 1.
func chiSquareDataSetsComparison(observed1, observed2 []float64) float64 {
	var o1, o2 []float64
	var sum1, sum2 float64
	for i := range observed1 {
		if observed1[i] == 0 && observed2[i] == 0 {
			continue
		}
		o1 = append(o1, observed1[i])
		o2 = append(o2, observed2[i])
		sum1 += observed1[i]
		sum2 += observed2[i]
	}
	if len(o1) < 2 || sum1 == 0 || sum2 == 0 {
		return 1
	}

	unequal := sum1 != sum2
	weight := 1.0
	if unequal {
		weight = math.Sqrt(sum1 / sum2)
	}
	var stat float64
	for i := range o1 {
		var dev float64
		if unequal {
			dev = o1[i]/weight - o2[i]*weight
		} else {
			dev = o1[i] - o2[i]
		}
		stat += dev * dev / (o1[i] + o2[i])
	}
	dist := distuv.ChiSquared{K: float64(len(o1) - 1)}
	return dist.Survival(stat)
}
