// Package cfp defines the closed enumerations shared by every layer of the
// fragment miner: the circular-fragment type and the feature-selection mode.
// Only plain data lives here so that any layer can import it.
package cfp

import (
	"fmt"
	"strings"
)

// ─────────────────────────────────────────────────────────────────────────────
// FragmentType: atom-typing family crossed with neighbourhood diameter
// ─────────────────────────────────────────────────────────────────────────────

// FragmentType selects the atom-typing scheme and diameter used by the
// circular fragment generator.  The engine never mixes types within one index.
type FragmentType string

const (
	ECFP6 FragmentType = "ecfp6"
	ECFP4 FragmentType = "ecfp4"
	ECFP2 FragmentType = "ecfp2"
	ECFP0 FragmentType = "ecfp0"
	FCFP6 FragmentType = "fcfp6"
	FCFP4 FragmentType = "fcfp4"
	FCFP2 FragmentType = "fcfp2"
	FCFP0 FragmentType = "fcfp0"
)

// FragmentTypeInfo is the lookup-table row for one FragmentType.
type FragmentTypeInfo struct {
	// ClassID is the generator class identifier.
	ClassID int
	// Diameter is the bond-distance extent of the largest neighbourhood.
	Diameter int
	// ECFP is true for extended-connectivity typing, false for functional-class typing.
	ECFP bool
}

var fragmentTypes = map[FragmentType]FragmentTypeInfo{
	ECFP0: {ClassID: 1, Diameter: 0, ECFP: true},
	ECFP2: {ClassID: 2, Diameter: 2, ECFP: true},
	ECFP4: {ClassID: 3, Diameter: 4, ECFP: true},
	ECFP6: {ClassID: 4, Diameter: 6, ECFP: true},
	FCFP0: {ClassID: 5, Diameter: 0, ECFP: false},
	FCFP2: {ClassID: 6, Diameter: 2, ECFP: false},
	FCFP4: {ClassID: 7, Diameter: 4, ECFP: false},
	FCFP6: {ClassID: 8, Diameter: 6, ECFP: false},
}

// AllFragmentTypes lists every variant in declaration order.
func AllFragmentTypes() []FragmentType {
	return []FragmentType{ECFP6, ECFP4, ECFP2, ECFP0, FCFP6, FCFP4, FCFP2, FCFP0}
}

// Info returns the lookup-table row.  ok is false for unknown values.
func (t FragmentType) Info() (FragmentTypeInfo, bool) {
	info, ok := fragmentTypes[t]
	return info, ok
}

// IsValid reports whether t is one of the declared variants.
func (t FragmentType) IsValid() bool {
	_, ok := fragmentTypes[t]
	return ok
}

func (t FragmentType) ClassID() int  { return fragmentTypes[t].ClassID }
func (t FragmentType) Diameter() int { return fragmentTypes[t].Diameter }
func (t FragmentType) IsECFP() bool  { return fragmentTypes[t].ECFP }

// MaxIteration is the number of neighbourhood-expansion rounds, diameter / 2.
func (t FragmentType) MaxIteration() int { return fragmentTypes[t].Diameter / 2 }

func (t FragmentType) String() string { return string(t) }

// NiceString returns the upper-case display name, e.g. "ECFP4".
func (t FragmentType) NiceString() string { return strings.ToUpper(string(t)) }

// ParseFragmentType accepts any case.
func ParseFragmentType(s string) (FragmentType, error) {
	t := FragmentType(strings.ToLower(strings.TrimSpace(s)))
	if !t.IsValid() {
		return "", fmt.Errorf("unknown fragment type %q", s)
	}
	return t, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// FeatureSelection: how raw fragments are materialised as features
// ─────────────────────────────────────────────────────────────────────────────

// FeatureSelection is fixed for the lifetime of one mined index.
type FeatureSelection string

const (
	// SelectionFilt keeps raw fragments and reduces them with the filter pipeline.
	SelectionFilt FeatureSelection = "filt"
	// SelectionFold hash-folds raw fragments into a fixed number of bits.
	SelectionFold FeatureSelection = "fold"
	// SelectionNone keeps every raw fragment.
	SelectionNone FeatureSelection = "none"
)

func (s FeatureSelection) String() string { return string(s) }

// IsValid reports whether s is one of the declared modes.
func (s FeatureSelection) IsValid() bool {
	switch s {
	case SelectionFilt, SelectionFold, SelectionNone:
		return true
	}
	return false
}

// NiceString returns the long display name.
func (s FeatureSelection) NiceString() string {
	switch s {
	case SelectionFilt:
		return "Filtering"
	case SelectionFold:
		return "Folding"
	case SelectionNone:
		return "Unprocessed"
	}
	return string(s)
}

// Attribute returns the adjective used in feature descriptions.
func (s FeatureSelection) Attribute() string {
	switch s {
	case SelectionFilt:
		return "Filtered"
	case SelectionFold:
		return "Folded"
	case SelectionNone:
		return "Unprocessed"
	}
	return string(s)
}

// ShortString returns the abbreviated display name.
func (s FeatureSelection) ShortString() string {
	switch s {
	case SelectionFilt:
		return "Filt."
	case SelectionFold:
		return "Fold."
	case SelectionNone:
		return "Unproc."
	}
	return string(s)
}

// ParseFeatureSelection accepts any case.
func ParseFeatureSelection(s string) (FeatureSelection, error) {
	fs := FeatureSelection(strings.ToLower(strings.TrimSpace(s)))
	if !fs.IsValid() {
		return "", fmt.Errorf("unknown feature selection %q", s)
	}
	return fs, nil
}
