package fragment

import (
	"github.com/turtacn/cfpminer/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/cfpminer/pkg/errors"
)

// Lattice holds the corpus-wide sub/super fragment relation.  It is built
// once and read-only afterwards.
type Lattice struct {
	built bool
	sub   map[Fragment][]Fragment
	super map[Fragment][]Fragment
}

// Sub returns the sub-fragments of f.
func (l *Lattice) Sub(f Fragment) []Fragment { return append([]Fragment(nil), l.sub[f]...) }

// Super returns the super-fragments of f.
func (l *Lattice) Super(f Fragment) []Fragment { return append([]Fragment(nil), l.super[f]...) }

// Pairs returns the number of recorded sub-fragment edges.
func (l *Lattice) Pairs() int {
	n := 0
	for _, s := range l.sub {
		n += len(s)
	}
	return n
}

// latticeSource supplies what the build needs from the miner.
type latticeSource interface {
	order() []Fragment
	support(f Fragment) []int
	fragmentsOf(c int) []Fragment
	distinct(c int, f Fragment) ([][]int, error)
}

// build records f2 as a sub-fragment of f1 when, in the first compound of f1,
// f2 has fewer atoms per match, at least as many matches, and every match of
// f1 contains a match of f2.
func (l *Lattice) build(src latticeSource) error {
	if l.built {
		panic(errors.Invariant("fragment lattice already built"))
	}
	l.sub = make(map[Fragment][]Fragment)
	l.super = make(map[Fragment][]Fragment)

	for _, f1 := range src.order() {
		support := src.support(f1)
		if len(support) == 0 {
			panic(errors.Invariant("no compounds for fragment %s", f1))
		}
		c := support[0]
		atoms1, err := src.distinct(c, f1)
		if err != nil {
			return err
		}
		if len(atoms1) == 0 {
			panic(errors.Invariant("fragment %s has no match in compound %d", f1, c))
		}
		numAtoms1 := len(atoms1[0])

		for _, f2 := range src.fragmentsOf(c) {
			if f2 == f1 {
				continue
			}
			atoms2, err := src.distinct(c, f2)
			if err != nil {
				return err
			}
			if len(atoms2) == 0 {
				panic(errors.Invariant("fragment %s has no match in compound %d", f2, c))
			}
			if len(atoms2[0]) >= numAtoms1 || len(atoms2) < len(atoms1) {
				continue
			}
			if eachContainsSome(atoms1, atoms2) {
				l.sub[f1] = append(l.sub[f1], f2)
				l.super[f2] = append(l.super[f2], f1)
			}
		}
	}
	l.built = true
	return nil
}

// eachContainsSome reports whether every set in outer contains some set in
// inner.
func eachContainsSome(outer, inner [][]int) bool {
	for _, a := range outer {
		found := false
		for _, b := range inner {
			if subsetOf(b, a) {
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

// ─────────────────────────────────────────────────────────────────────────────
// Miner integration
// ─────────────────────────────────────────────────────────────────────────────

type minerLatticeSource struct{ m *Miner }

func (s minerLatticeSource) order() []Fragment            { return s.m.index.order }
func (s minerLatticeSource) support(f Fragment) []int     { return s.m.index.support[f] }
func (s minerLatticeSource) fragmentsOf(c int) []Fragment { return s.m.fragmentsForCompound(c) }
func (s minerLatticeSource) distinct(c int, f Fragment) ([][]int, error) {
	g, err := s.m.graphFor(c)
	if err != nil {
		return nil, err
	}
	return s.m.cache.Distinct(g, s.m.cfg.Type, f)
}

// Lattice returns the sub/super fragment relation of the current index,
// building it on first use.
func (m *Miner) Lattice() (*Lattice, error) {
	if err := m.requireUnfolded(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.requireMined(); err != nil {
		return nil, err
	}
	if m.lattice != nil {
		return m.lattice, nil
	}
	l := &Lattice{}
	if err := l.build(minerLatticeSource{m: m}); err != nil {
		return nil, err
	}
	m.lattice = l
	m.logger.Debug("built fragment lattice",
		logging.Int(logging.FieldFragments, m.index.Len()),
		logging.Int("pairs", l.Pairs()))
	return l, nil
}

// SubFragments returns the fragments contained in f.
func (m *Miner) SubFragments(f Fragment) ([]Fragment, error) {
	l, err := m.Lattice()
	if err != nil {
		return nil, err
	}
	return l.Sub(f), nil
}

// SuperFragments returns the fragments containing f.
func (m *Miner) SuperFragments(f Fragment) ([]Fragment, error) {
	l, err := m.Lattice()
	if err != nil {
		return nil, err
	}
	return l.Super(f), nil
}
