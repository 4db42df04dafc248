package smiles

import (
	"fmt"
	"sort"
	"strings"
	"unicode"

	"github.com/turtacn/cfpminer/internal/domain/fragment"
	"github.com/turtacn/cfpminer/pkg/errors"
)

// ---------------------------------------------------------------------------
// Element tables
// ---------------------------------------------------------------------------

var atomicNumberMap = map[string]int{
	"H": 1, "He": 2, "Li": 3, "Be": 4, "B": 5, "C": 6, "N": 7, "O": 8,
	"F": 9, "Ne": 10, "Na": 11, "Mg": 12, "Al": 13, "Si": 14, "P": 15,
	"S": 16, "Cl": 17, "Ar": 18, "K": 19, "Ca": 20, "Fe": 26, "Co": 27,
	"Ni": 28, "Cu": 29, "Zn": 30, "As": 33, "Se": 34, "Br": 35, "Sn": 50,
	"I": 53, "Pt": 78, "Hg": 80,
}

// defaultValences lists the normal valences of the organic subset, lowest
// first.
var defaultValences = map[int][]int{
	5: {3}, 6: {4}, 7: {3, 5}, 8: {2}, 9: {1},
	15: {3, 5}, 16: {2, 4, 6}, 17: {1}, 35: {1}, 53: {1},
}

var organicSubset = map[string]bool{
	"B": true, "C": true, "N": true, "O": true, "P": true, "S": true,
	"F": true, "Cl": true, "Br": true, "I": true,
}

var aromaticOrganic = map[rune]string{
	'b': "B", 'c': "C", 'n': "N", 'o': "O", 'p': "P", 's': "S",
}

var aromaticBracket = map[string]string{
	"b": "B", "c": "C", "n": "N", "o": "O", "p": "P", "s": "S", "se": "Se", "as": "As",
}

// ---------------------------------------------------------------------------
// Parser
// ---------------------------------------------------------------------------

// Parser decodes SMILES text.  The zero value is ready to use.
type Parser struct{}

// NewParser returns a Parser.
func NewParser() *Parser { return &Parser{} }

// Decode implements fragment.Decoder.
func (p *Parser) Decode(text string) (fragment.Graph, error) {
	m, err := p.Parse(text)
	if err != nil {
		return nil, err
	}
	return m, nil
}

// Parse returns the molecule described by text.  Failures are
// ErrCodeMoleculeParsingFailed errors carrying the input.
func (p *Parser) Parse(text string) (*Molecule, error) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return nil, errors.Decode(fmt.Errorf("empty SMILES"), text)
	}
	st := &parseState{runes: []rune(trimmed), rings: make(map[int]ringBond), prev: -1}
	if err := st.run(); err != nil {
		return nil, errors.Decode(err, text)
	}
	m := &Molecule{text: trimmed, atoms: st.atoms, bonds: st.bonds, adj: make([][]int, len(st.atoms))}
	for b, bond := range m.bonds {
		m.adj[bond.A] = append(m.adj[bond.A], b)
		m.adj[bond.B] = append(m.adj[bond.B], b)
	}
	assignImplicitHydrogens(m)
	return m, nil
}

type ringBond struct {
	atom  int
	order int // 0 when unspecified
}

type parseState struct {
	runes    []rune
	pos      int
	atoms    []Atom
	bonds    []Bond
	branches []int
	rings    map[int]ringBond
	prev     int
	bond     int // pending explicit bond order, 0 if none
}

func (st *parseState) run() error {
	for st.pos < len(st.runes) {
		ch := st.runes[st.pos]
		switch {
		case ch == '(':
			if st.prev < 0 {
				return fmt.Errorf("branch without preceding atom at position %d", st.pos)
			}
			if st.bond != 0 {
				return fmt.Errorf("bond symbol before branch at position %d", st.pos)
			}
			st.branches = append(st.branches, st.prev)
			st.pos++

		case ch == ')':
			if len(st.branches) == 0 {
				return fmt.Errorf("unbalanced ')' at position %d", st.pos)
			}
			if st.bond != 0 {
				return fmt.Errorf("dangling bond at position %d", st.pos)
			}
			st.prev = st.branches[len(st.branches)-1]
			st.branches = st.branches[:len(st.branches)-1]
			st.pos++

		case ch == '-', ch == '=', ch == '#', ch == ':', ch == '/', ch == '\\':
			if st.bond != 0 {
				return fmt.Errorf("consecutive bond symbols at position %d", st.pos)
			}
			st.bond = bondOrderOf(ch)
			st.pos++

		case ch == '.':
			if st.bond != 0 {
				return fmt.Errorf("dangling bond at position %d", st.pos)
			}
			st.prev = -1
			st.pos++

		case ch == '%':
			if st.pos+2 >= len(st.runes) || !unicode.IsDigit(st.runes[st.pos+1]) || !unicode.IsDigit(st.runes[st.pos+2]) {
				return fmt.Errorf("malformed ring closure at position %d", st.pos)
			}
			n := int(st.runes[st.pos+1]-'0')*10 + int(st.runes[st.pos+2]-'0')
			if err := st.ring(n); err != nil {
				return err
			}
			st.pos += 3

		case unicode.IsDigit(ch):
			if err := st.ring(int(ch - '0')); err != nil {
				return err
			}
			st.pos++

		case ch == '[':
			end := st.pos + 1
			for end < len(st.runes) && st.runes[end] != ']' {
				end++
			}
			if end >= len(st.runes) {
				return fmt.Errorf("unclosed bracket at position %d", st.pos)
			}
			atom, err := parseBracketAtom(string(st.runes[st.pos+1 : end]))
			if err != nil {
				return fmt.Errorf("bracket atom at position %d: %w", st.pos, err)
			}
			st.addAtom(atom)
			st.pos = end + 1

		case unicode.IsLetter(ch):
			atom, n, err := parseOrganicAtom(st.runes, st.pos)
			if err != nil {
				return err
			}
			st.addAtom(atom)
			st.pos += n

		default:
			return fmt.Errorf("unexpected character %q at position %d", ch, st.pos)
		}
	}

	switch {
	case st.bond != 0:
		return fmt.Errorf("dangling bond at end of input")
	case len(st.branches) != 0:
		return fmt.Errorf("unclosed branch")
	case len(st.rings) != 0:
		open := make([]int, 0, len(st.rings))
		for n := range st.rings {
			open = append(open, n)
		}
		sort.Ints(open)
		return fmt.Errorf("unclosed ring %d", open[0])
	}
	return nil
}

func bondOrderOf(ch rune) int {
	switch ch {
	case '=':
		return BondDouble
	case '#':
		return BondTriple
	case ':':
		return BondAromatic
	}
	return BondSingle
}

func (st *parseState) addAtom(a Atom) {
	idx := len(st.atoms)
	st.atoms = append(st.atoms, a)
	if st.prev >= 0 {
		st.bonds = append(st.bonds, Bond{A: st.prev, B: idx, Order: st.orderFor(st.prev, idx, st.bond)})
	}
	st.bond = 0
	st.prev = idx
}

// orderFor resolves an unspecified bond between two aromatic atoms to
// aromatic and any other unspecified bond to single.
func (st *parseState) orderFor(a, b, explicit int) int {
	if explicit != 0 {
		return explicit
	}
	if st.atoms[a].Aromatic && st.atoms[b].Aromatic {
		return BondAromatic
	}
	return BondSingle
}

func (st *parseState) ring(n int) error {
	if st.prev < 0 {
		return fmt.Errorf("ring closure %d without preceding atom", n)
	}
	open, ok := st.rings[n]
	if !ok {
		st.rings[n] = ringBond{atom: st.prev, order: st.bond}
		st.bond = 0
		return nil
	}
	delete(st.rings, n)
	if open.atom == st.prev {
		return fmt.Errorf("ring closure %d bonds an atom to itself", n)
	}
	for _, b := range st.bonds {
		if (b.A == open.atom && b.B == st.prev) || (b.A == st.prev && b.B == open.atom) {
			return fmt.Errorf("ring closure %d duplicates an existing bond", n)
		}
	}
	explicit := st.bond
	if explicit == 0 {
		explicit = open.order
	} else if open.order != 0 && open.order != explicit {
		return fmt.Errorf("conflicting bond orders on ring closure %d", n)
	}
	st.bonds = append(st.bonds, Bond{A: open.atom, B: st.prev, Order: st.orderFor(open.atom, st.prev, explicit)})
	st.bond = 0
	return nil
}

// parseOrganicAtom reads an organic-subset atom at position i and returns it
// with the number of runes consumed.
func parseOrganicAtom(runes []rune, i int) (Atom, int, error) {
	ch := runes[i]
	if i+1 < len(runes) {
		two := string(runes[i : i+2])
		if organicSubset[two] {
			return Atom{Symbol: two, AtomicNum: atomicNumberMap[two]}, 2, nil
		}
	}
	if sym, ok := aromaticOrganic[ch]; ok {
		return Atom{Symbol: sym, AtomicNum: atomicNumberMap[sym], Aromatic: true}, 1, nil
	}
	sym := string(ch)
	if organicSubset[sym] {
		return Atom{Symbol: sym, AtomicNum: atomicNumberMap[sym]}, 1, nil
	}
	return Atom{}, 0, fmt.Errorf("unknown organic-subset atom %q at position %d", sym, i)
}

// parseBracketAtom parses the content inside [...]:
// isotope? symbol chirality? hcount? charge? class?
func parseBracketAtom(content string) (Atom, error) {
	atom := Atom{bracket: true}
	runes := []rune(content)
	idx := 0

	for idx < len(runes) && unicode.IsDigit(runes[idx]) {
		atom.Isotope = atom.Isotope*10 + int(runes[idx]-'0')
		idx++
	}

	if idx >= len(runes) || !unicode.IsLetter(runes[idx]) {
		return atom, fmt.Errorf("missing element symbol in [%s]", content)
	}
	switch {
	case idx+1 < len(runes) && aromaticBracket[string(runes[idx:idx+2])] != "":
		atom.Symbol = aromaticBracket[string(runes[idx:idx+2])]
		atom.Aromatic = true
		idx += 2
	case aromaticBracket[string(runes[idx])] != "":
		atom.Symbol = aromaticBracket[string(runes[idx])]
		atom.Aromatic = true
		idx++
	case unicode.IsUpper(runes[idx]):
		sym := string(runes[idx])
		if idx+1 < len(runes) && unicode.IsLower(runes[idx+1]) {
			if _, ok := atomicNumberMap[sym+string(runes[idx+1])]; ok {
				sym += string(runes[idx+1])
			}
		}
		atom.Symbol = sym
		idx += len([]rune(sym))
	}
	n, ok := atomicNumberMap[atom.Symbol]
	if !ok {
		return atom, fmt.Errorf("unknown element in [%s]", content)
	}
	atom.AtomicNum = n

	for idx < len(runes) && runes[idx] == '@' {
		idx++
	}

	if idx < len(runes) && runes[idx] == 'H' {
		idx++
		atom.HCount = 1
		if idx < len(runes) && unicode.IsDigit(runes[idx]) {
			atom.HCount = int(runes[idx] - '0')
			idx++
		}
	}

	if idx < len(runes) && (runes[idx] == '+' || runes[idx] == '-') {
		sign := 1
		if runes[idx] == '-' {
			sign = -1
		}
		sym := runes[idx]
		idx++
		switch {
		case idx < len(runes) && unicode.IsDigit(runes[idx]):
			atom.Charge = sign * int(runes[idx]-'0')
			idx++
		default:
			atom.Charge = sign
			for idx < len(runes) && runes[idx] == sym {
				atom.Charge += sign
				idx++
			}
		}
	}

	if idx < len(runes) && runes[idx] == ':' {
		idx++
		for idx < len(runes) && unicode.IsDigit(runes[idx]) {
			idx++
		}
	}
	if idx != len(runes) {
		return atom, fmt.Errorf("unexpected %q in [%s]", string(runes[idx:]), content)
	}
	return atom, nil
}

// assignImplicitHydrogens fills HCount for organic-subset atoms from the
// lowest default valence that accommodates the bond-order sum.  An aromatic
// atom uses one valence for the delocalised system.
func assignImplicitHydrogens(m *Molecule) {
	for i := range m.atoms {
		a := &m.atoms[i]
		if a.bracket {
			continue
		}
		sum := 0
		for _, b := range m.adj[i] {
			order := m.bonds[b].Order
			if order == BondAromatic {
				order = 1
			}
			sum += order
		}
		if a.Aromatic {
			sum++
		}
		a.HCount = 0
		for _, v := range defaultValences[a.AtomicNum] {
			if v >= sum {
				a.HCount = v - sum
				break
			}
		}
	}
}
