package fragment

import (
	"fmt"
	"sort"
	"strconv"

	"gonum.org/v1/gonum/stat"

	"github.com/turtacn/cfpminer/pkg/types/cfp"
)

// Distribution summarises a list of counts.
type Distribution struct {
	Mean   float64 `json:"mean"`
	Median float64 `json:"median"`
	Min    float64 `json:"min"`
	Max    float64 `json:"max"`
}

func (d Distribution) String() string {
	return fmt.Sprintf("%.2f (median %.1f, min %.0f, max %.0f)", d.Mean, d.Median, d.Min, d.Max)
}

func distributionOf(counts []int) Distribution {
	if len(counts) == 0 {
		return Distribution{}
	}
	xs := make([]float64, len(counts))
	for i, c := range counts {
		xs[i] = float64(c)
	}
	sort.Float64s(xs)
	return Distribution{
		Mean:   stat.Mean(xs, nil),
		Median: stat.Quantile(0.5, stat.Empirical, xs, nil),
		Min:    xs[0],
		Max:    xs[len(xs)-1],
	}
}

// Summary describes a mined index.
type Summary struct {
	Name                 string               `json:"name"`
	NumFragments         int                  `json:"num_fragments"`
	NumCompounds         int                  `json:"num_compounds"`
	Type                 cfp.FragmentType     `json:"fragment_type"`
	Selection            cfp.FeatureSelection `json:"feature_selection"`
	FoldSize             int                  `json:"fold_size"`
	Target               int                  `json:"target_features"`
	UnfoldedConflicts    int                  `json:"unfolded_conflicts"`
	CompoundsWithout     int                  `json:"compounds_without_fragments"`
	CompoundsPerFragment Distribution         `json:"compounds_per_fragment"`
	FrequencyHistogram   [11]int              `json:"frequency_histogram"`
	FragmentsPerCompound Distribution         `json:"fragments_per_compound"`
	Collisions           *CollisionStats      `json:"collisions,omitempty"`
}

// Summary computes the index statistics.  FrequencyHistogram[k] counts the
// fragments occurring in exactly k compounds, for k up to 10.
func (m *Miner) Summary() Summary {
	m.mu.Lock()
	defer m.mu.Unlock()

	s := Summary{
		NumFragments:      m.index.Len(),
		NumCompounds:      m.numCompounds,
		Type:              m.cfg.Type,
		Selection:         m.cfg.Selection,
		FoldSize:          m.cfg.FoldSize,
		Target:            m.cfg.Target(),
		UnfoldedConflicts: m.conflicts,
	}
	s.Name = m.Name()

	perFragment := make([]int, 0, m.index.Len())
	for _, f := range m.index.order {
		n := len(m.index.support[f])
		perFragment = append(perFragment, n)
		if n < len(s.FrequencyHistogram) {
			s.FrequencyHistogram[n]++
		}
	}
	s.CompoundsPerFragment = distributionOf(perFragment)

	perCompound := make([]int, m.numCompounds)
	for c := range perCompound {
		perCompound[c] = len(m.fragmentsForCompound(c))
		if perCompound[c] == 0 {
			s.CompoundsWithout++
		}
	}
	s.FragmentsPerCompound = distributionOf(perCompound)

	if m.encoder != nil {
		st := m.encoder.Collisions().Stats()
		s.Collisions = &st
	}
	return s
}

// Rows renders the summary as label/value pairs.  Nice output omits the
// diagnostic rows.
func (s Summary) Rows(nice bool) [][2]string {
	rows := [][2]string{{"Num fragments", strconv.Itoa(s.NumFragments)}}
	if !nice {
		rows = append(rows, [2]string{"Num compounds", strconv.Itoa(s.NumCompounds)})
	}
	if nice {
		rows = append(rows,
			[2]string{"Fragment type", s.Type.NiceString()},
			[2]string{"Feature selection", s.Selection.NiceString()})
		return rows
	}
	rows = append(rows,
		[2]string{"Fragment type", s.Type.String()},
		[2]string{"Feature selection", s.Selection.String()},
		[2]string{"Fingerprint size", strconv.Itoa(s.FoldSize)},
		[2]string{"Num unfolded conflicts", strconv.Itoa(s.UnfoldedConflicts)},
		[2]string{"Compounds w/o fragments", strconv.Itoa(s.CompoundsWithout)},
		[2]string{"Mean compounds per fragment", s.CompoundsPerFragment.String()},
	)
	for k, n := range s.FrequencyHistogram {
		rows = append(rows, [2]string{fmt.Sprintf("Fragments with freq %d", k), strconv.Itoa(n)})
	}
	rows = append(rows, [2]string{"Mean fragments per compound", s.FragmentsPerCompound.String()})
	if s.Collisions != nil {
		rows = append(rows,
			[2]string{"Collisions", strconv.FormatFloat(s.Collisions.Ratio, 'f', 4, 64)},
			[2]string{"Bit-load", strconv.FormatFloat(s.Collisions.MeanBitLoad, 'f', 4, 64)})
	}
	return rows
}
