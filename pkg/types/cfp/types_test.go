package cfp

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFragmentType_LookupTable(t *testing.T) {
	tests := []struct {
		typ      FragmentType
		classID  int
		diameter int
		ecfp     bool
	}{
		{ECFP0, 1, 0, true},
		{ECFP2, 2, 2, true},
		{ECFP4, 3, 4, true},
		{ECFP6, 4, 6, true},
		{FCFP0, 5, 0, false},
		{FCFP2, 6, 2, false},
		{FCFP4, 7, 4, false},
		{FCFP6, 8, 6, false},
	}
	for _, tt := range tests {
		t.Run(tt.typ.String(), func(t *testing.T) {
			assert.True(t, tt.typ.IsValid())
			assert.Equal(t, tt.classID, tt.typ.ClassID())
			assert.Equal(t, tt.diameter, tt.typ.Diameter())
			assert.Equal(t, tt.ecfp, tt.typ.IsECFP())
			assert.Equal(t, tt.diameter/2, tt.typ.MaxIteration())
		})
	}
	assert.Len(t, AllFragmentTypes(), len(tests))
}

func TestFragmentType_NiceString(t *testing.T) {
	assert.Equal(t, "ECFP4", ECFP4.NiceString())
	assert.Equal(t, "FCFP0", FCFP0.NiceString())
}

func TestParseFragmentType(t *testing.T) {
	typ, err := ParseFragmentType(" ECFP6 ")
	require.NoError(t, err)
	assert.Equal(t, ECFP6, typ)

	_, err = ParseFragmentType("ecfp8")
	assert.Error(t, err)

	_, ok := FragmentType("maccs").Info()
	assert.False(t, ok)
}

func TestFeatureSelection_Strings(t *testing.T) {
	tests := []struct {
		sel       FeatureSelection
		nice      string
		attribute string
		short     string
	}{
		{SelectionFilt, "Filtering", "Filtered", "Filt."},
		{SelectionFold, "Folding", "Folded", "Fold."},
		{SelectionNone, "Unprocessed", "Unprocessed", "Unproc."},
	}
	for _, tt := range tests {
		t.Run(tt.sel.String(), func(t *testing.T) {
			assert.Equal(t, tt.nice, tt.sel.NiceString())
			assert.Equal(t, tt.attribute, tt.sel.Attribute())
			assert.Equal(t, tt.short, tt.sel.ShortString())
		})
	}
}

func TestParseFeatureSelection(t *testing.T) {
	sel, err := ParseFeatureSelection("Fold")
	require.NoError(t, err)
	assert.Equal(t, SelectionFold, sel)

	_, err = ParseFeatureSelection("pca")
	assert.Error(t, err)
}
