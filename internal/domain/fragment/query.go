package fragment

import (
	"math"

	"github.com/turtacn/cfpminer/pkg/errors"
	"github.com/turtacn/cfpminer/pkg/types/cfp"
)

// ─────────────────────────────────────────────────────────────────────────────
// Compound and position lookups
// ─────────────────────────────────────────────────────────────────────────────

// CompoundsForFragment returns the support of f, or nil if f is unknown.
func (m *Miner) CompoundsForFragment(f Fragment) []int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]int(nil), m.index.Support(f)...)
}

// FragmentsForCompound returns the fragments of compound c in index order.
// Unknown compounds yield an empty slice.
func (m *Miner) FragmentsForCompound(c int) []Fragment {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Fragment{}, m.fragmentsForCompound(c)...)
}

func (m *Miner) fragmentsForCompound(c int) []Fragment {
	if m.inverse == nil {
		inv := make([][]Fragment, m.numCompounds)
		for _, f := range m.index.order {
			for _, comp := range m.index.support[f] {
				inv[comp] = append(inv[comp], f)
			}
		}
		m.inverse = inv
	}
	if c < 0 || c >= len(m.inverse) {
		return nil
	}
	return m.inverse[c]
}

// IsFragmentIncludedInCompound reports whether c is in the support of f.  A
// fragment without support is an invariant violation.
func (m *Miner) IsFragmentIncludedInCompound(c int, f Fragment) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	support, ok := m.index.support[f]
	if !ok || len(support) == 0 {
		panic(errors.Invariant("no compounds for fragment %s", f))
	}
	for _, s := range support {
		if s == c {
			return true
		}
	}
	return false
}

// TanimotoSimilarity returns |F(i) ∩ F(j)| / |F(i) ∪ F(j)| over the fragment
// sets of two compounds.  It is NaN when both sets are empty.
func (m *Miner) TanimotoSimilarity(i, j int) float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	a := m.fragmentsForCompound(i)
	b := m.fragmentsForCompound(j)
	if len(a) == 0 && len(b) == 0 {
		return math.NaN()
	}
	set := make(map[Fragment]struct{}, len(a))
	for _, f := range a {
		set[f] = struct{}{}
	}
	and := 0
	for _, f := range b {
		if _, ok := set[f]; ok {
			and++
		}
	}
	or := len(a) + len(b) - and
	return float64(and) / float64(or)
}

// FragmentAt returns the fragment at position pos in index order.
func (m *Miner) FragmentAt(pos int) (Fragment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if pos < 0 || pos >= m.index.Len() {
		return 0, errors.InvalidParam("fragment position out of range")
	}
	return m.index.order[pos], nil
}

// PositionOf returns the index position of f.
func (m *Miner) PositionOf(f Fragment) (int, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.positions == nil {
		m.positions = make(map[Fragment]int, m.index.Len())
		for i, frag := range m.index.order {
			m.positions[frag] = i
		}
	}
	pos, ok := m.positions[f]
	return pos, ok
}

// ─────────────────────────────────────────────────────────────────────────────
// External molecules
// ─────────────────────────────────────────────────────────────────────────────

// FragmentsForTestCompound returns the fragments of g known to the index, in
// generator order.  In fold mode it returns every folded bit of g.
func (m *Miner) FragmentsForTestCompound(g Graph) ([]Fragment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	frags, err := m.fragmentsForTestCompound(g)
	if err != nil {
		return nil, err
	}
	return append([]Fragment{}, frags...), nil
}

func (m *Miner) fragmentsForTestCompound(g Graph) ([]Fragment, error) {
	if err := m.requireMined(); err != nil {
		return nil, err
	}
	if frags, ok := m.testFragments[g.Key()]; ok {
		return frags, nil
	}
	occs, err := m.cache.Occurrences(g, m.cfg.Type)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeFingerprintGenerationFailed, "cannot generate fragments")
	}
	var frags []Fragment
	if m.encoder != nil {
		for _, bit := range m.encoder.Peek(occs) {
			frags = append(frags, Fragment(bit))
		}
	} else {
		seen := make(map[Fragment]struct{}, len(occs))
		for _, o := range occs {
			if _, dup := seen[o.Hash]; dup || !m.index.Contains(o.Hash) {
				continue
			}
			seen[o.Hash] = struct{}{}
			frags = append(frags, o.Hash)
		}
	}
	if m.testFragments == nil {
		m.testFragments = make(map[string][]Fragment)
	}
	m.testFragments[g.Key()] = frags
	return frags, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Atom attribution
// ─────────────────────────────────────────────────────────────────────────────

func (m *Miner) requireUnfolded() error {
	if m.cfg.Selection == cfp.SelectionFold {
		return errors.Configuration("atom attribution is undefined for folded fragments")
	}
	return nil
}

// AtomsForFragment returns the atoms of the first occurrence of f in g, or nil
// if f does not occur.
func (m *Miner) AtomsForFragment(g Graph, f Fragment) ([]int, error) {
	if err := m.requireUnfolded(); err != nil {
		return nil, err
	}
	return m.cache.First(g, m.cfg.Type, f)
}

// AtomsMultiple returns the sorted union of atoms over every occurrence of f
// in g.
func (m *Miner) AtomsMultiple(g Graph, f Fragment) ([]int, error) {
	if err := m.requireUnfolded(); err != nil {
		return nil, err
	}
	atoms, err := m.cache.Union(g, m.cfg.Type, f)
	if err != nil {
		return nil, err
	}
	return append([]int(nil), atoms...), nil
}

// AtomsMultipleDistinct returns the distinct atom sets of f in g.
func (m *Miner) AtomsMultipleDistinct(g Graph, f Fragment) ([][]int, error) {
	if err := m.requireUnfolded(); err != nil {
		return nil, err
	}
	sets, err := m.cache.Distinct(g, m.cfg.Type, f)
	if err != nil {
		return nil, err
	}
	out := make([][]int, len(sets))
	for i, s := range sets {
		out[i] = append([]int(nil), s...)
	}
	return out, nil
}

// IncludedFragments maps each known fragment of g to the known fragments whose
// atom union in g is contained in its own.
func (m *Miner) IncludedFragments(g Graph) (map[Fragment][]Fragment, error) {
	if err := m.requireUnfolded(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if inc, ok := m.included[g.Key()]; ok {
		return copyRelation(inc), nil
	}
	frags, err := m.fragmentsForTestCompound(g)
	if err != nil {
		return nil, err
	}
	atoms := make([][]int, len(frags))
	for i, f := range frags {
		if atoms[i], err = m.cache.Union(g, m.cfg.Type, f); err != nil {
			return nil, err
		}
	}
	inc := make(map[Fragment][]Fragment)
	for i1 := 0; i1 < len(frags)-1; i1++ {
		for i2 := i1 + 1; i2 < len(frags); i2++ {
			switch {
			case subsetOf(atoms[i2], atoms[i1]):
				inc[frags[i1]] = append(inc[frags[i1]], frags[i2])
			case subsetOf(atoms[i1], atoms[i2]):
				inc[frags[i2]] = append(inc[frags[i2]], frags[i1])
			}
		}
	}
	if m.included == nil {
		m.included = make(map[string]map[Fragment][]Fragment)
	}
	m.included[g.Key()] = inc
	return copyRelation(inc), nil
}

func copyRelation(in map[Fragment][]Fragment) map[Fragment][]Fragment {
	out := make(map[Fragment][]Fragment, len(in))
	for k, v := range in {
		out[k] = append([]Fragment(nil), v...)
	}
	return out
}
