package testutil

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/turtacn/cfpminer/internal/domain/fragment"
	"github.com/turtacn/cfpminer/pkg/errors"
	"github.com/turtacn/cfpminer/pkg/types/cfp"
)

// StubGraph is a Graph identified by its text.
type StubGraph string

func (g StubGraph) Key() string { return string(g) }

// StubDecoder decodes any text into a StubGraph except those listed in Fail.
type StubDecoder struct {
	Fail map[string]bool
}

func (d StubDecoder) Decode(text string) (fragment.Graph, error) {
	if d.Fail[text] {
		return nil, errors.Decode(fmt.Errorf("stub rejects %q", text), text)
	}
	return StubGraph(text), nil
}

// StubGenerator returns fixed occurrences per graph key.
type StubGenerator struct {
	Occurrences map[string][]fragment.Occurrence
	Err         map[string]error

	mu    sync.Mutex
	calls int
}

// NewStubGenerator returns an empty generator.
func NewStubGenerator() *StubGenerator {
	return &StubGenerator{Occurrences: make(map[string][]fragment.Occurrence), Err: make(map[string]error)}
}

// Add appends an occurrence of hash h with the given atoms to graph key.
// Depth defaults to one less than the atom count, capped at 3.
func (s *StubGenerator) Add(key string, h int32, atoms ...int) *StubGenerator {
	depth := len(atoms) - 1
	if depth > 3 {
		depth = 3
	}
	if depth < 0 {
		depth = 0
	}
	s.Occurrences[key] = append(s.Occurrences[key], fragment.Occurrence{
		Hash:  fragment.Fragment(h),
		Depth: depth,
		Atoms: atoms,
	})
	return s
}

func (s *StubGenerator) Generate(g fragment.Graph, _ cfp.FragmentType) ([]fragment.Occurrence, error) {
	s.mu.Lock()
	s.calls++
	s.mu.Unlock()
	if err := s.Err[g.Key()]; err != nil {
		return nil, err
	}
	return s.Occurrences[g.Key()], nil
}

// Calls returns the number of Generate invocations.
func (s *StubGenerator) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

// MemorySnapshotRepository is an in-memory fragment.SnapshotRepository.
type MemorySnapshotRepository struct {
	mu        sync.Mutex
	snapshots map[string]*fragment.Snapshot
}

func NewMemorySnapshotRepository() *MemorySnapshotRepository {
	return &MemorySnapshotRepository{snapshots: make(map[string]*fragment.Snapshot)}
}

func (r *MemorySnapshotRepository) Save(_ context.Context, s *fragment.Snapshot) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.snapshots[s.ID] = s
	return nil
}

func (r *MemorySnapshotRepository) Load(_ context.Context, id string) (*fragment.Snapshot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.snapshots[id]
	if !ok {
		return nil, errors.New(errors.ErrCodeSnapshotNotFound, "snapshot not found").WithDetail(id)
	}
	return s, nil
}

func (r *MemorySnapshotRepository) List(_ context.Context) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ids := make([]string, 0, len(r.snapshots))
	for id := range r.snapshots {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

func (r *MemorySnapshotRepository) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.snapshots[id]; !ok {
		return errors.New(errors.ErrCodeSnapshotNotFound, "snapshot not found").WithDetail(id)
	}
	delete(r.snapshots, id)
	return nil
}

// SnapshotFixture returns a small unfolded snapshot over three compounds.
func SnapshotFixture(id string) *fragment.Snapshot {
	return &fragment.Snapshot{
		ID:              id,
		SessionID:       "session-" + id,
		Type:            cfp.ECFP4,
		Selection:       cfp.SelectionNone,
		FoldSize:        1024,
		AbsMinFreq:      2,
		CheckDuplicates: true,
		NumCompounds:    3,
		Fragments: []fragment.SnapshotEntry{
			{Fragment: 11, Compounds: []int{0, 1}},
			{Fragment: 22, Compounds: []int{1, 2}},
		},
		Texts: []string{"m0", "m1", "m2"},
	}
}
