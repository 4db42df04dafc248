package fragment_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/cfpminer/internal/domain/fragment"
	"github.com/turtacn/cfpminer/internal/testutil"
	"github.com/turtacn/cfpminer/pkg/errors"
	"github.com/turtacn/cfpminer/pkg/types/cfp"
)

func latticeGenerator() *testutil.StubGenerator {
	return testutil.NewStubGenerator().
		// compound 0: 1 = {0,1,2}, 2 = {0,1}, 3 = {1}, 4 = {7,8}
		Add("c0", 1, 0, 1, 2).
		Add("c0", 2, 0, 1).
		Add("c0", 3, 1).
		Add("c0", 4, 7, 8).
		// compound 1: 2 matches twice, 1 does not occur
		Add("c1", 2, 3, 4).
		Add("c1", 2, 5, 6).
		Add("c1", 3, 3)
}

func TestLattice_SubAndSuperFragments(t *testing.T) {
	m := newMiner(t, config(cfp.SelectionNone, 1024), latticeGenerator())
	require.NoError(t, m.Mine(context.Background(), []string{"c0", "c1"}, nil))

	sub, err := m.SubFragments(1)
	require.NoError(t, err)
	assert.Equal(t, []fragment.Fragment{2, 3}, sub)

	sub, err = m.SubFragments(2)
	require.NoError(t, err)
	assert.Equal(t, []fragment.Fragment{3}, sub)

	super, err := m.SuperFragments(3)
	require.NoError(t, err)
	assert.Equal(t, []fragment.Fragment{1, 2}, super)

	sub, err = m.SubFragments(4)
	require.NoError(t, err)
	assert.Empty(t, sub)
}

func TestLattice_RelationIsConsistent(t *testing.T) {
	m := newMiner(t, config(cfp.SelectionNone, 1024), latticeGenerator())
	require.NoError(t, m.Mine(context.Background(), []string{"c0", "c1"}, nil))

	l, err := m.Lattice()
	require.NoError(t, err)
	frags := m.Index().Fragments()
	for _, f1 := range frags {
		for _, f2 := range l.Sub(f1) {
			assert.Contains(t, l.Super(f2), f1)
			assert.NotContains(t, l.Sub(f2), f1)
		}
		for _, f2 := range l.Super(f1) {
			assert.Contains(t, l.Sub(f2), f1)
		}
	}
	assert.Equal(t, 3, l.Pairs())
}

func TestLattice_BuiltOnce(t *testing.T) {
	gen := latticeGenerator()
	m := newMiner(t, config(cfp.SelectionNone, 1024), gen)
	require.NoError(t, m.Mine(context.Background(), []string{"c0", "c1"}, nil))

	l1, err := m.Lattice()
	require.NoError(t, err)
	l2, err := m.Lattice()
	require.NoError(t, err)
	assert.Same(t, l1, l2)

	run := func() (err error) {
		defer errors.RecoverInvariant(&err)
		return fragment.RebuildLattice(m, l1)
	}
	assert.True(t, errors.IsCode(run(), errors.ErrCodeInvariantViolation))
}

func TestLattice_DecodesCompoundsAfterRestore(t *testing.T) {
	gen := latticeGenerator()
	m := newMiner(t, config(cfp.SelectionNone, 1024), gen)
	require.NoError(t, m.Mine(context.Background(), []string{"c0", "c1"}, nil))
	snap, err := m.Snapshot()
	require.NoError(t, err)

	restored, err := fragment.Restore(snap, gen, fragment.WithDecoder(testutil.StubDecoder{}))
	require.NoError(t, err)
	sub, err := restored.SubFragments(1)
	require.NoError(t, err)
	assert.Equal(t, []fragment.Fragment{2, 3}, sub)

	noDecoder, err := fragment.Restore(snap, gen)
	require.NoError(t, err)
	_, err = noDecoder.Lattice()
	assert.True(t, errors.IsCode(err, errors.ErrCodeConfiguration))
}
