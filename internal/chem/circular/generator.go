// Package circular generates ECFP/FCFP-style circular fragments.  Each atom
// seeds an identifier from its invariants; every iteration folds in the
// sorted (bond order, identifier) pairs of the neighbours and grows the atom
// environment by one bond.  Environments whose atom set was already emitted
// are suppressed.
package circular

import (
	"encoding/binary"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/cespare/xxhash/v2"

	"github.com/turtacn/cfpminer/internal/chem/smiles"
	"github.com/turtacn/cfpminer/internal/domain/fragment"
	"github.com/turtacn/cfpminer/pkg/errors"
	"github.com/turtacn/cfpminer/pkg/types/cfp"
)

// Generator implements fragment.Generator over *smiles.Molecule graphs.
type Generator struct{}

// NewGenerator returns a Generator.
func NewGenerator() *Generator { return &Generator{} }

// Generate returns every circular fragment of g up to the diameter of t.
// Output is deterministic for identical inputs.
func (gen *Generator) Generate(g fragment.Graph, t cfp.FragmentType) ([]fragment.Occurrence, error) {
	if !t.IsValid() {
		return nil, errors.New(errors.ErrCodeFingerprintTypeUnsupported, "unsupported fragment type").WithDetail(string(t))
	}
	mol, ok := g.(*smiles.Molecule)
	if !ok {
		return nil, errors.New(errors.ErrCodeFingerprintGenerationFailed, "unsupported graph implementation").
			WithDetail(fmt.Sprintf("%T", g))
	}
	n := mol.NumAtoms()
	if n == 0 {
		return nil, nil
	}

	ring := mol.RingAtoms()
	ids := make([]uint32, n)
	envs := make([][]int, n)
	seen := make(map[string]struct{}, n)
	out := make([]fragment.Occurrence, 0, n*(t.MaxIteration()+1))

	for a := 0; a < n; a++ {
		if t.IsECFP() {
			ids[a] = hashInts(ecfpInvariants(mol, a, ring[a])...)
		} else {
			ids[a] = hashInts(fcfpInvariants(mol, a)...)
		}
		envs[a] = []int{a}
		seen[keyOf(envs[a])] = struct{}{}
		out = append(out, fragment.Occurrence{Hash: fragment.Fragment(int32(ids[a])), Depth: 0, Atoms: []int{a}})
	}

	for depth := 1; depth <= t.MaxIteration(); depth++ {
		nextIDs := make([]uint32, n)
		nextEnvs := make([][]int, n)
		type candidate struct {
			key   string
			hash  uint32
			atoms []int
		}
		var order []string
		best := make(map[string]candidate)

		for a := 0; a < n; a++ {
			nbrs, orders := mol.Neighbors(a)
			pairs := make([][2]uint32, len(nbrs))
			env := append([]int(nil), envs[a]...)
			for i, nb := range nbrs {
				pairs[i] = [2]uint32{uint32(orders[i]), ids[nb]}
				env = append(env, envs[nb]...)
			}
			sort.Slice(pairs, func(i, j int) bool {
				if pairs[i][0] != pairs[j][0] {
					return pairs[i][0] < pairs[j][0]
				}
				return pairs[i][1] < pairs[j][1]
			})
			args := make([]int64, 0, 2+2*len(pairs))
			args = append(args, int64(depth), int64(ids[a]))
			for _, p := range pairs {
				args = append(args, int64(p[0]), int64(p[1]))
			}
			nextIDs[a] = hashInts(args...)
			nextEnvs[a] = uniqueSorted(env)

			key := keyOf(nextEnvs[a])
			if _, dup := seen[key]; dup {
				continue
			}
			c, ok := best[key]
			if !ok {
				order = append(order, key)
				best[key] = candidate{key: key, hash: nextIDs[a], atoms: nextEnvs[a]}
				continue
			}
			if nextIDs[a] < c.hash {
				best[key] = candidate{key: key, hash: nextIDs[a], atoms: nextEnvs[a]}
			}
		}

		for _, key := range order {
			c := best[key]
			seen[key] = struct{}{}
			out = append(out, fragment.Occurrence{
				Hash:  fragment.Fragment(int32(c.hash)),
				Depth: depth,
				Atoms: append([]int(nil), c.atoms...),
			})
		}
		ids, envs = nextIDs, nextEnvs
	}
	return out, nil
}

// ---------------------------------------------------------------------------
// Atom invariants
// ---------------------------------------------------------------------------

const (
	familyECFP = 1
	familyFCFP = 2
)

func ecfpInvariants(m *smiles.Molecule, a int, inRing bool) []int64 {
	atom := m.Atom(a)
	return []int64{
		familyECFP,
		int64(atom.AtomicNum),
		int64(m.Degree(a)),
		int64(atom.HCount),
		int64(atom.Charge),
		int64(atom.Isotope),
		boolInt(inRing),
		boolInt(atom.Aromatic),
	}
}

// Pharmacophoric feature bits used by the FCFP family.
const (
	featDonor = 1 << iota
	featAcceptor
	featAromatic
	featHalogen
	featBasic
	featAcidic
)

func fcfpInvariants(m *smiles.Molecule, a int) []int64 {
	return []int64{familyFCFP, int64(featureBits(m, a))}
}

func featureBits(m *smiles.Molecule, a int) int {
	atom := m.Atom(a)
	bits := 0
	if atom.Aromatic {
		bits |= featAromatic
	}
	switch atom.AtomicNum {
	case 9, 17, 35, 53:
		bits |= featHalogen
	case 7:
		if atom.HCount > 0 {
			bits |= featDonor
		}
		if atom.Charge <= 0 && !(atom.Aromatic && atom.HCount > 0) {
			bits |= featAcceptor
		}
		if !atom.Aromatic && atom.Charge >= 0 && !bondedToCarbonyl(m, a) {
			bits |= featBasic
		}
	case 8:
		if atom.HCount > 0 {
			bits |= featDonor
		}
		bits |= featAcceptor
		if atom.Charge < 0 || (atom.HCount > 0 && bondedToCarbonyl(m, a)) {
			bits |= featAcidic
		}
	}
	return bits
}

// bondedToCarbonyl reports whether atom a is singly bonded to a carbon that
// carries a double-bonded oxygen.
func bondedToCarbonyl(m *smiles.Molecule, a int) bool {
	nbrs, orders := m.Neighbors(a)
	for i, c := range nbrs {
		if orders[i] != smiles.BondSingle || m.Atom(c).AtomicNum != 6 {
			continue
		}
		cn, co := m.Neighbors(c)
		for j, o := range cn {
			if o != a && co[j] == smiles.BondDouble && m.Atom(o).AtomicNum == 8 {
				return true
			}
		}
	}
	return false
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

func hashInts(vals ...int64) uint32 {
	d := xxhash.New()
	var buf [8]byte
	for _, v := range vals {
		binary.LittleEndian.PutUint64(buf[:], uint64(v))
		_, _ = d.Write(buf[:])
	}
	return uint32(d.Sum64())
}

func boolInt(b bool) int64 {
	if b {
		return 1
	}
	return 0
}

func uniqueSorted(xs []int) []int {
	sort.Ints(xs)
	out := xs[:0]
	for i, x := range xs {
		if i == 0 || x != xs[i-1] {
			out = append(out, x)
		}
	}
	return out
}

func keyOf(atoms []int) string {
	var sb strings.Builder
	for i, a := range atoms {
		if i > 0 {
			sb.WriteByte(',')
		}
		sb.WriteString(strconv.Itoa(a))
	}
	return sb.String()
}
