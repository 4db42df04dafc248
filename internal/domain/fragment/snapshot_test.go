package fragment_test

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/cfpminer/internal/domain/fragment"
	"github.com/turtacn/cfpminer/internal/testutil"
	"github.com/turtacn/cfpminer/pkg/errors"
	"github.com/turtacn/cfpminer/pkg/types/cfp"
)

func TestSnapshot_RoundTrip(t *testing.T) {
	gen := testutil.NewStubGenerator().
		Add("c0", 1, 0).Add("c1", 1, 0).Add("c2", 1, 0).
		Add("c0", 2, 1).Add("c1", 2, 1).
		Add("c2", 3, 2)
	m := filtMiner(t, 2, gen)
	require.NoError(t, m.Mine(context.Background(), names(3), []string{"a", "b", "a"}))
	_, err := m.ApplyFilter(context.Background())
	require.NoError(t, err)

	snap, err := m.Snapshot()
	require.NoError(t, err)
	raw, err := fragment.MarshalSnapshot(snap)
	require.NoError(t, err)
	decoded, err := fragment.UnmarshalSnapshot(raw)
	require.NoError(t, err)

	restored, err := fragment.Restore(decoded, gen, fragment.WithDecoder(testutil.StubDecoder{}))
	require.NoError(t, err)

	assert.Equal(t, snap.ID, decoded.ID)
	assert.Equal(t, m.ID(), restored.ID())
	assert.Equal(t, m.Config(), restored.Config())
	assert.True(t, m.Index().Equal(restored.Index()))
	assert.Equal(t, m.NumCompounds(), restored.NumCompounds())
	assert.Equal(t, m.Texts(), restored.Texts())
	assert.Equal(t, m.Endpoints(), restored.Endpoints())
	assert.Equal(t, fragment.StateFiltered, restored.State())
	assert.Equal(t, []fragment.Fragment{1, 2}, restored.Index().Fragments())
	assert.Equal(t, []fragment.Fragment{1}, restored.FragmentsForCompound(2))

	// the unfiltered index travels with the snapshot
	_, err = restored.ApplyFilterSubset(context.Background(), []int{2})
	require.NoError(t, err)
	assert.Equal(t, []fragment.Fragment{1, 3}, restored.Index().Fragments())
}

func TestSnapshot_FoldKeepsCollisions(t *testing.T) {
	gen := testutil.NewStubGenerator().Add("a", 2, 0).Add("b", 6, 0)
	m := newMiner(t, config(cfp.SelectionFold, 4), gen)
	require.NoError(t, m.Mine(context.Background(), []string{"a", "b"}, nil))

	snap, err := m.Snapshot()
	require.NoError(t, err)
	raw, err := fragment.MarshalSnapshot(snap)
	require.NoError(t, err)
	decoded, err := fragment.UnmarshalSnapshot(raw)
	require.NoError(t, err)
	restored, err := fragment.Restore(decoded, gen)
	require.NoError(t, err)

	assert.Equal(t, []fragment.Fragment{2, 6}, restored.Collisions().Hashes(2))
	assert.Equal(t, m.Summary().Collisions, restored.Summary().Collisions)
}

func TestSnapshot_Unmined(t *testing.T) {
	m := newMiner(t, config(cfp.SelectionNone, 8), scenarioA())
	_, err := m.Snapshot()
	assert.True(t, errors.IsCode(err, errors.ErrCodeConfiguration))
}

func TestRestore_RejectsCorruptSnapshots(t *testing.T) {
	base := func() *fragment.Snapshot {
		return &fragment.Snapshot{
			ID:           "s",
			Type:         cfp.ECFP4,
			Selection:    cfp.SelectionNone,
			FoldSize:     8,
			AbsMinFreq:   2,
			NumCompounds: 2,
			Fragments:    []fragment.SnapshotEntry{{Fragment: 1, Compounds: []int{0, 1}}},
		}
	}
	tests := []struct {
		name   string
		mutate func(*fragment.Snapshot)
	}{
		{"empty support", func(s *fragment.Snapshot) { s.Fragments[0].Compounds = nil }},
		{"compound out of range", func(s *fragment.Snapshot) { s.Fragments[0].Compounds = []int{0, 2} }},
		{"unsorted support", func(s *fragment.Snapshot) { s.Fragments[0].Compounds = []int{1, 0} }},
		{"duplicate fragment", func(s *fragment.Snapshot) {
			s.Fragments = append(s.Fragments, fragment.SnapshotEntry{Fragment: 1, Compounds: []int{0}})
		}},
		{"text count", func(s *fragment.Snapshot) { s.Texts = []string{"only-one"} }},
		{"bad type", func(s *fragment.Snapshot) { s.Type = "ecfp9" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := base()
			tt.mutate(s)
			_, err := fragment.Restore(s, scenarioA())
			assert.True(t, errors.IsCode(err, errors.ErrCodeSnapshotCorrupt), "%v", err)
		})
	}

	_, err := fragment.Restore(base(), scenarioA())
	assert.NoError(t, err)
}

func TestUnmarshalSnapshot_Garbage(t *testing.T) {
	_, err := fragment.UnmarshalSnapshot([]byte("{not json"))
	assert.True(t, errors.IsCode(err, errors.ErrCodeSnapshotCorrupt))
}

func TestWriteCSV(t *testing.T) {
	m := newMiner(t, config(cfp.SelectionNone, 1024), scenarioA())
	require.NoError(t, m.Mine(context.Background(), []string{"m0", "m1", "m2"}, []string{"1", "0", "1"}))

	var buf bytes.Buffer
	require.NoError(t, m.WriteCSV(&buf, nil, nil))
	assert.Equal(t, "SMILES,endpoint,11,22\nm0,1,1,0\nm1,0,1,1\nm2,1,0,1\n", buf.String())
}

func TestWriteCSV_Mismatch(t *testing.T) {
	m := newMiner(t, config(cfp.SelectionNone, 1024), scenarioA())
	require.NoError(t, m.Mine(context.Background(), []string{"m0", "m1", "m2"}, nil))

	var buf bytes.Buffer
	err := m.WriteCSV(&buf, []string{"x"}, nil)
	assert.True(t, errors.IsCode(err, errors.CodeInvalidParam))

	buf.Reset()
	require.NoError(t, m.WriteCSV(&buf, nil, nil))
	assert.Equal(t, "SMILES,endpoint,11,22\nm0,,1,0\nm1,,1,1\nm2,,0,1\n", buf.String())
}

func TestSummary(t *testing.T) {
	m := newMiner(t, config(cfp.SelectionNone, 1024), scenarioA())
	require.NoError(t, m.Mine(context.Background(), []string{"m0", "m1", "m2", "empty"}, nil))

	s := m.Summary()
	assert.Equal(t, "ecfp4_none", s.Name)
	assert.Equal(t, 2, s.NumFragments)
	assert.Equal(t, 4, s.NumCompounds)
	assert.Equal(t, 1, s.CompoundsWithout)
	assert.Equal(t, 2, s.FrequencyHistogram[2])
	assert.InDelta(t, 2.0, s.CompoundsPerFragment.Mean, 1e-12)
	assert.InDelta(t, 1.0, s.FragmentsPerCompound.Mean, 1e-12)
	assert.Equal(t, 2.0, s.FragmentsPerCompound.Max)
	assert.Nil(t, s.Collisions)

	nice := s.Rows(true)
	assert.Equal(t, [2]string{"Fragment type", "ECFP4"}, nice[1])
	assert.Greater(t, len(s.Rows(false)), len(nice))
}

func TestValidateSnapshotID(t *testing.T) {
	for _, id := range []string{"a", "0f8c2a1e-6b1d-4c4e-9f55-0e8d6c1a9b20", "ecfp4_filt.v2"} {
		assert.NoError(t, fragment.ValidateSnapshotID(id), id)
	}
	for _, id := range []string{"", ".hidden", "a/b", "../x", "sp ace", strings.Repeat("x", 129)} {
		err := fragment.ValidateSnapshotID(id)
		assert.True(t, errors.IsCode(err, errors.CodeInvalidParam), "%q", id)
	}
}
