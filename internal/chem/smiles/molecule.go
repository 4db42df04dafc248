// Package smiles reads SMILES strings into simple molecular graphs.  It covers
// the organic subset, bracket atoms, branches, ring closures (including %nn),
// explicit bond symbols and dot-disconnected components.  Stereo markers are
// accepted and ignored.
package smiles

import (
	"sort"
	"strconv"
	"strings"
)

// Bond orders.  Aromatic bonds are kept distinct from single and double.
const (
	BondSingle   = 1
	BondDouble   = 2
	BondTriple   = 3
	BondAromatic = 4
)

// Atom is one heavy atom of a parsed molecule.
type Atom struct {
	Symbol    string
	AtomicNum int
	Aromatic  bool
	Charge    int
	Isotope   int

	// HCount is the total attached hydrogen count: the bracket count for
	// bracket atoms, otherwise derived from the default valence.
	HCount int

	bracket bool
}

// Bond connects two atom indices.
type Bond struct {
	A, B  int
	Order int
}

// Molecule is an immutable parsed SMILES.  Its Key is the trimmed input text,
// so two decodes of the same text share cached fragment data.
type Molecule struct {
	text  string
	atoms []Atom
	bonds []Bond
	adj   [][]int // atom -> bond indices
}

// Key implements fragment.Graph.
func (m *Molecule) Key() string { return m.text }

// NumAtoms returns the heavy-atom count.
func (m *Molecule) NumAtoms() int { return len(m.atoms) }

// Atom returns atom i.
func (m *Molecule) Atom(i int) Atom { return m.atoms[i] }

// Bonds returns the bond list.
func (m *Molecule) Bonds() []Bond { return append([]Bond(nil), m.bonds...) }

// Neighbors returns the (neighbor atom, bond order) pairs of atom i in bond
// order.
func (m *Molecule) Neighbors(i int) (atoms []int, orders []int) {
	for _, b := range m.adj[i] {
		bond := m.bonds[b]
		other := bond.A
		if other == i {
			other = bond.B
		}
		atoms = append(atoms, other)
		orders = append(orders, bond.Order)
	}
	return atoms, orders
}

// Degree returns the number of heavy-atom neighbours of atom i.
func (m *Molecule) Degree(i int) int { return len(m.adj[i]) }

// RingBonds reports, per bond, whether it lies on a cycle.  A bond is a ring
// bond iff it is not a bridge of the molecular graph.
func (m *Molecule) RingBonds() []bool {
	n := len(m.atoms)
	disc := make([]int, n)
	low := make([]int, n)
	for i := range disc {
		disc[i] = -1
	}
	bridge := make([]bool, len(m.bonds))
	timer := 0

	var visit func(u, parentBond int)
	visit = func(u, parentBond int) {
		disc[u] = timer
		low[u] = timer
		timer++
		for _, b := range m.adj[u] {
			if b == parentBond {
				continue
			}
			v := m.bonds[b].A
			if v == u {
				v = m.bonds[b].B
			}
			if disc[v] < 0 {
				visit(v, b)
				if low[v] < low[u] {
					low[u] = low[v]
				}
				if low[v] > disc[u] {
					bridge[b] = true
				}
			} else if disc[v] < low[u] {
				low[u] = disc[v]
			}
		}
	}
	for i := 0; i < n; i++ {
		if disc[i] < 0 {
			visit(i, -1)
		}
	}

	ring := make([]bool, len(m.bonds))
	for i := range ring {
		ring[i] = !bridge[i]
	}
	return ring
}

// RingAtoms reports, per atom, whether it has at least one ring bond.
func (m *Molecule) RingAtoms() []bool {
	ringBonds := m.RingBonds()
	out := make([]bool, len(m.atoms))
	for b, in := range ringBonds {
		if in {
			out[m.bonds[b].A] = true
			out[m.bonds[b].B] = true
		}
	}
	return out
}

// Formula returns a Hill-order formula, useful in logs and tests.
func (m *Molecule) Formula() string {
	counts := make(map[string]int)
	h := 0
	for _, a := range m.atoms {
		counts[a.Symbol]++
		h += a.HCount
	}
	if h > 0 {
		counts["H"] += h
	}
	var sb strings.Builder
	write := func(sym string) {
		n, ok := counts[sym]
		if !ok {
			return
		}
		sb.WriteString(sym)
		if n > 1 {
			sb.WriteString(strconv.Itoa(n))
		}
		delete(counts, sym)
	}
	write("C")
	write("H")
	rest := make([]string, 0, len(counts))
	for sym := range counts {
		rest = append(rest, sym)
	}
	sort.Strings(rest)
	for _, sym := range rest {
		write(sym)
	}
	return sb.String()
}
