package fragment

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/turtacn/cfpminer/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/cfpminer/pkg/errors"
	"github.com/turtacn/cfpminer/pkg/types/cfp"
)

// Filter stage names, used in logs and reports.
const (
	StageMinFrequency = "min-frequency"
	StageClosedSet    = "closed-set"
	StageChiSquare    = "chi-square"
)

// FilterReport records the fragment count before and after each stage.
type FilterReport struct {
	Target  int           `json:"target"`
	Initial int           `json:"initial"`
	Stages  []StageResult `json:"stages"`
}

// StageResult is the outcome of one filter stage.
type StageResult struct {
	Name      string        `json:"name"`
	Remaining int           `json:"remaining"`
	Removed   int           `json:"removed"`
	Duration  time.Duration `json:"duration"`
}

// Final returns the fragment count after the last stage.
func (r *FilterReport) Final() int {
	if len(r.Stages) == 0 {
		return r.Initial
	}
	return r.Stages[len(r.Stages)-1].Remaining
}

// ─────────────────────────────────────────────────────────────────────────────
// FeatureSelector
// ─────────────────────────────────────────────────────────────────────────────

// ApplyFilter runs the filter pipeline over all compounds.
func (m *Miner) ApplyFilter(ctx context.Context) (*FilterReport, error) {
	m.mu.Lock()
	n := m.numCompounds
	m.mu.Unlock()
	all := make([]int, n)
	for i := range all {
		all[i] = i
	}
	return m.ApplyFilterSubset(ctx, all)
}

// ApplyFilterSubset reduces the index to the target feature count using only
// the compounds in subset.  Every call starts again from the unfiltered
// index.  On error the current index is left unchanged.
func (m *Miner) ApplyFilterSubset(ctx context.Context, subset []int) (*FilterReport, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.requireMined(); err != nil {
		return nil, err
	}
	if m.cfg.Selection != cfp.SelectionFilt {
		return nil, errors.Configuration("feature filtering requires filt selection").WithDetail(m.cfg.Selection.String())
	}
	if len(m.endpoints) != m.numCompounds {
		return nil, errors.New(errors.ErrCodeEndpointMismatch, "endpoint count does not match compound count").
			WithDetail(fmt.Sprintf("%d != %d", len(m.endpoints), m.numCompounds))
	}
	members := make(compoundSubset, m.numCompounds)
	for _, c := range subset {
		if c < 0 || c >= m.numCompounds {
			return nil, errors.InvalidParam("filter subset contains unknown compound").WithDetail(fmt.Sprint(c))
		}
		members[c] = true
	}

	base := m.unfiltered
	if base == nil {
		base = m.index
	}
	s := &selector{m: m, subset: members, target: m.cfg.Target(), index: base}
	report := &FilterReport{Target: s.target, Initial: base.Len()}
	m.logger.Info("applying feature filter",
		logging.Int(logging.FieldFragments, base.Len()),
		logging.Int("target", s.target),
		logging.Int("subset", len(members.members())))

	stages := []struct {
		name string
		run  func() error
	}{
		{StageMinFrequency, s.minFrequency},
		{StageClosedSet, s.closedSet},
		{StageChiSquare, s.chiSquare},
	}
	for _, st := range stages {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		before := s.index.Len()
		start := time.Now()
		if err := st.run(); err != nil {
			return nil, err
		}
		res := StageResult{Name: st.name, Remaining: s.index.Len(), Removed: before - s.index.Len(), Duration: time.Since(start)}
		report.Stages = append(report.Stages, res)
		logging.LogStageDuration(m.logger, st.name, start,
			logging.Int(logging.FieldFragments, res.Remaining),
			logging.Int("removed", res.Removed))
	}

	m.unfiltered = base
	m.index = s.index
	m.state = StateFiltered
	m.invalidate()
	return report, nil
}

// selector holds the working index of one filter run.  Callers hold m.mu.
type selector struct {
	m      *Miner
	subset compoundSubset
	target int
	index  *Index
}

func (s *selector) remove(set map[Fragment]struct{}) {
	s.index = s.index.Without(set)
}

// minFrequency drops fragments unseen in the subset, then, above target, drops
// fragments ranked past the target whose restricted support is below the
// absolute minimum frequency.
func (s *selector) minFrequency() error {
	empty := make(map[Fragment]struct{})
	for _, f := range s.index.order {
		if s.subset.count(s.index.support[f]) == 0 {
			empty[f] = struct{}{}
		}
	}
	s.remove(empty)

	if s.index.Len() <= s.target {
		return nil
	}
	type ranked struct {
		f    Fragment
		freq int
	}
	hf := make([]ranked, 0, s.index.Len())
	for _, f := range s.index.order {
		hf = append(hf, ranked{f: f, freq: s.subset.count(s.index.support[f])})
	}
	sort.SliceStable(hf, func(i, j int) bool { return hf[i].freq > hf[j].freq })

	drop := make(map[Fragment]struct{})
	for i := s.target; i < len(hf); i++ {
		if hf[i].freq < s.m.cfg.AbsMinFreq {
			drop[hf[i].f] = struct{}{}
		}
	}
	s.remove(drop)
	return nil
}

// closedSet removes fragments whose occurrences are dominated by another
// fragment with the same restricted support, until count - target fragments
// are gone or no bucket has a dominated pair left.
func (s *selector) closedSet() error {
	if s.index.Len() <= s.target {
		return nil
	}
	quota := s.index.Len() - s.target

	restricted := make(map[Fragment][]int, s.index.Len())
	var bucketOrder []string
	buckets := make(map[string][]Fragment)
	for _, f := range s.index.order {
		r := s.subset.restrict(s.index.support[f])
		restricted[f] = r
		sig := signature(r)
		if _, ok := buckets[sig]; !ok {
			bucketOrder = append(bucketOrder, sig)
		}
		buckets[sig] = append(buckets[sig], f)
	}

	drop := make(map[Fragment]struct{})
	for _, sig := range bucketOrder {
		bucket := buckets[sig]
		for i := 0; i < len(bucket)-1 && len(drop) < quota; i++ {
			f1 := bucket[i]
			if _, gone := drop[f1]; gone {
				continue
			}
			for j := i + 1; j < len(bucket); j++ {
				f2 := bucket[j]
				if _, gone := drop[f2]; gone {
					continue
				}
				obsolete, found, err := s.dominated(f1, f2, restricted[f1])
				if err != nil {
					return err
				}
				if !found {
					continue
				}
				drop[obsolete] = struct{}{}
				if len(drop) >= quota || obsolete == f1 {
					break
				}
			}
		}
		if len(drop) >= quota {
			break
		}
	}
	s.remove(drop)
	return nil
}

// dominated decides which of f1 and f2 to discard.  f1 is dominated when, in
// every compound, each of its distinct atom sets is contained in some atom
// set of f2; likewise for f2.  found is false when neither is dominated.
func (s *selector) dominated(f1, f2 Fragment, compounds []int) (Fragment, bool, error) {
	f1Dominated, f2Dominated := true, true
	for _, c := range compounds {
		g, err := s.m.graphFor(c)
		if err != nil {
			return 0, false, err
		}
		sets1, err := s.m.cache.Distinct(g, s.m.cfg.Type, f1)
		if err != nil {
			return 0, false, err
		}
		sets2, err := s.m.cache.Distinct(g, s.m.cfg.Type, f2)
		if err != nil {
			return 0, false, err
		}
		if f1Dominated && !covered(sets1, sets2) {
			f1Dominated = false
		}
		if f2Dominated && !covered(sets2, sets1) {
			f2Dominated = false
		}
		if !f1Dominated && !f2Dominated {
			return 0, false, nil
		}
	}
	switch {
	case f1Dominated && f2Dominated:
		panic(errors.Invariant("fragments %s and %s dominate each other", f1, f2))
	case f1Dominated:
		return f1, true, nil
	default:
		return f2, true, nil
	}
}

// covered reports whether every set in inner is a subset of some set in outer.
func covered(inner, outer [][]int) bool {
	for _, a := range inner {
		found := false
		for _, b := range outer {
			if subsetOf(a, b) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

// chiSquare keeps the target fragments whose class distribution differs most
// from the subset's.
func (s *selector) chiSquare() error {
	if s.index.Len() <= s.target {
		return nil
	}
	endpoints := s.m.endpoints
	domain := distinctSorted(endpoints)
	members := s.subset.members()
	subsetValues := make([]string, len(members))
	for i, c := range members {
		subsetValues[i] = endpoints[c]
	}
	all := nominalCounts(domain, subsetValues)

	type scored struct {
		f Fragment
		p float64
	}
	hp := make([]scored, 0, s.index.Len())
	for _, f := range s.index.order {
		var values []string
		for _, c := range s.index.support[f] {
			if s.subset.contains(c) {
				values = append(values, endpoints[c])
			}
		}
		p := math.Inf(1)
		if len(values) > 0 {
			p = chiSquareDataSetsComparison(nominalCounts(domain, values), all)
		}
		hp = append(hp, scored{f: f, p: p})
	}
	sort.SliceStable(hp, func(i, j int) bool { return hp[i].p < hp[j].p })

	drop := make(map[Fragment]struct{}, len(hp)-s.target)
	for i := s.target; i < len(hp); i++ {
		drop[hp[i].f] = struct{}{}
	}
	s.remove(drop)
	if s.index.Len() != s.target {
		panic(errors.Invariant("chi-square filter kept %d fragments, want %d", s.index.Len(), s.target))
	}
	return nil
}
