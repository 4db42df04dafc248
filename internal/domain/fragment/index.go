package fragment

import (
	"sort"
	"strconv"
	"strings"
)

// ─────────────────────────────────────────────────────────────────────────────
// Index: ordered fragment → support map
// ─────────────────────────────────────────────────────────────────────────────

// Index maps each fragment to the ascending list of compounds it occurs in.
// Fragment insertion order is preserved and defines FragmentAt positions.
// An Index is immutable once built; filtering derives new indexes with
// Without, sharing the support slices.
type Index struct {
	order   []Fragment
	support map[Fragment][]int
}

func newIndex() *Index {
	return &Index{support: make(map[Fragment][]int)}
}

// add registers (f, c).  Compounds arrive in ascending order during mining so
// a repeated c is always the tail of the support list.
func (x *Index) add(f Fragment, c int) {
	s, ok := x.support[f]
	if !ok {
		x.order = append(x.order, f)
		x.support[f] = []int{c}
		return
	}
	if s[len(s)-1] != c {
		x.support[f] = append(s, c)
	}
}

// Len returns the number of fragments.
func (x *Index) Len() int { return len(x.order) }

// Fragments returns the fragments in insertion order.  The slice is a copy.
func (x *Index) Fragments() []Fragment {
	out := make([]Fragment, len(x.order))
	copy(out, x.order)
	return out
}

// Support returns the compounds of f, or nil.  The slice must not be modified.
func (x *Index) Support(f Fragment) []int { return x.support[f] }

// Contains reports whether f is a key.
func (x *Index) Contains(f Fragment) bool {
	_, ok := x.support[f]
	return ok
}

// Without returns an index lacking the fragments in remove.  The receiver is
// returned unchanged when remove is empty.
func (x *Index) Without(remove map[Fragment]struct{}) *Index {
	if len(remove) == 0 {
		return x
	}
	out := &Index{
		order:   make([]Fragment, 0, len(x.order)),
		support: make(map[Fragment][]int, len(x.support)),
	}
	for _, f := range x.order {
		if _, drop := remove[f]; drop {
			continue
		}
		out.order = append(out.order, f)
		out.support[f] = x.support[f]
	}
	return out
}

// Equal reports structural equality: same fragments in the same order with
// identical supports.
func (x *Index) Equal(y *Index) bool {
	if x == nil || y == nil {
		return x == y
	}
	if len(x.order) != len(y.order) {
		return false
	}
	for i, f := range x.order {
		if y.order[i] != f {
			return false
		}
		if !equalInts(x.support[f], y.support[f]) {
			return false
		}
	}
	return true
}

// ─────────────────────────────────────────────────────────────────────────────
// Compound-set helpers
// ─────────────────────────────────────────────────────────────────────────────

// compoundSubset is a membership table over compound indices.
type compoundSubset []bool

func allCompounds(n int) compoundSubset {
	s := make(compoundSubset, n)
	for i := range s {
		s[i] = true
	}
	return s
}

func (s compoundSubset) contains(c int) bool { return c >= 0 && c < len(s) && s[c] }

// restrict returns the members of support that are in s, preserving order.
func (s compoundSubset) restrict(support []int) []int {
	out := make([]int, 0, len(support))
	for _, c := range support {
		if s.contains(c) {
			out = append(out, c)
		}
	}
	return out
}

func (s compoundSubset) count(support []int) int {
	n := 0
	for _, c := range support {
		if s.contains(c) {
			n++
		}
	}
	return n
}

func (s compoundSubset) members() []int {
	out := make([]int, 0, len(s))
	for c, in := range s {
		if in {
			out = append(out, c)
		}
	}
	return out
}

// signature is an exact-equality key for a compound list.
func signature(compounds []int) string {
	var sb strings.Builder
	for i, c := range compounds {
		if i > 0 {
			sb.WriteByte(',')
		}
		sb.WriteString(strconv.Itoa(c))
	}
	return sb.String()
}

func equalInts(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// subsetOf reports whether every element of a occurs in b.  Both are sorted.
func subsetOf(a, b []int) bool {
	if len(a) > len(b) {
		return false
	}
	j := 0
	for _, v := range a {
		for j < len(b) && b[j] < v {
			j++
		}
		if j == len(b) || b[j] != v {
			return false
		}
		j++
	}
	return true
}

// sortedUnique returns a sorted copy of atoms without duplicates.
func sortedUnique(atoms []int) []int {
	out := make([]int, len(atoms))
	copy(out, atoms)
	sort.Ints(out)
	w := 0
	for i, v := range out {
		if i == 0 || v != out[w-1] {
			out[w] = v
			w++
		}
	}
	return out[:w]
}
