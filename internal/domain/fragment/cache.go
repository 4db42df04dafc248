package fragment

import (
	"sync"

	"github.com/turtacn/cfpminer/pkg/types/cfp"
)

type graphKey struct {
	typ cfp.FragmentType
	key string
}

type attrKey struct {
	graphKey
	frag Fragment
}

// AttributionCache memoises generator output and per-fragment atom sets for
// one mining session.  It is safe for concurrent use.
type AttributionCache struct {
	gen Generator

	mu          sync.Mutex
	occurrences map[graphKey][]Occurrence
	union       map[attrKey][]int
	distinct    map[attrKey][][]int
}

// NewAttributionCache returns an empty cache backed by gen.
func NewAttributionCache(gen Generator) *AttributionCache {
	c := &AttributionCache{gen: gen}
	c.Reset()
	return c
}

// Reset drops every entry.
func (c *AttributionCache) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.occurrences = make(map[graphKey][]Occurrence)
	c.union = make(map[attrKey][]int)
	c.distinct = make(map[attrKey][][]int)
}

// Len returns the number of graphs with cached generator output.
func (c *AttributionCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.occurrences)
}

// Occurrences returns the generator output for g.
func (c *AttributionCache) Occurrences(g Graph, t cfp.FragmentType) ([]Occurrence, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.occurrencesLocked(graphKey{typ: t, key: g.Key()}, g)
}

func (c *AttributionCache) occurrencesLocked(k graphKey, g Graph) ([]Occurrence, error) {
	if occs, ok := c.occurrences[k]; ok {
		return occs, nil
	}
	occs, err := c.gen.Generate(g, k.typ)
	if err != nil {
		return nil, err
	}
	c.occurrences[k] = occs
	return occs, nil
}

// First returns the atoms of the first occurrence of f in g, or nil.
func (c *AttributionCache) First(g Graph, t cfp.FragmentType, f Fragment) ([]int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	occs, err := c.occurrencesLocked(graphKey{typ: t, key: g.Key()}, g)
	if err != nil {
		return nil, err
	}
	for _, o := range occs {
		if o.Hash == f {
			out := make([]int, len(o.Atoms))
			copy(out, o.Atoms)
			return out, nil
		}
	}
	return nil, nil
}

// Union returns the sorted union of atoms over all occurrences of f in g.
func (c *AttributionCache) Union(g Graph, t cfp.FragmentType, f Fragment) ([]int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	k := attrKey{graphKey: graphKey{typ: t, key: g.Key()}, frag: f}
	if atoms, ok := c.union[k]; ok {
		return atoms, nil
	}
	occs, err := c.occurrencesLocked(k.graphKey, g)
	if err != nil {
		return nil, err
	}
	var all []int
	for _, o := range occs {
		if o.Hash == f {
			all = append(all, o.Atoms...)
		}
	}
	atoms := sortedUnique(all)
	c.union[k] = atoms
	return atoms, nil
}

// Distinct returns the distinct sorted atom sets of f in g, in order of first
// occurrence.
func (c *AttributionCache) Distinct(g Graph, t cfp.FragmentType, f Fragment) ([][]int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	k := attrKey{graphKey: graphKey{typ: t, key: g.Key()}, frag: f}
	if sets, ok := c.distinct[k]; ok {
		return sets, nil
	}
	occs, err := c.occurrencesLocked(k.graphKey, g)
	if err != nil {
		return nil, err
	}
	seen := make(map[string]struct{})
	var sets [][]int
	for _, o := range occs {
		if o.Hash != f {
			continue
		}
		atoms := sortedUnique(o.Atoms)
		sig := signature(atoms)
		if _, dup := seen[sig]; dup {
			continue
		}
		seen[sig] = struct{}{}
		sets = append(sets, atoms)
	}
	c.distinct[k] = sets
	return sets, nil
}
