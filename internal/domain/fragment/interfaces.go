// Package fragment implements the circular-fragment miner: the fragment to
// compound index, hash folding, the three-stage feature selector, the
// sub/super fragment lattice and the per-compound query operations.
package fragment

import (
	"context"
	"strconv"

	"github.com/turtacn/cfpminer/pkg/types/cfp"
)

// Fragment is the 32-bit hash identity of a circular subgraph.  In fold mode
// the same type carries a bit index instead.
type Fragment int32

func (f Fragment) String() string { return strconv.FormatInt(int64(f), 10) }

// Occurrence is one match of a fragment inside a molecule graph.
type Occurrence struct {
	Hash  Fragment
	Depth int
	Atoms []int
}

// Graph is a decoded molecule.  Key must be stable for identical inputs; the
// miner uses it to memoise attribution queries and to re-decode compounds.
type Graph interface {
	Key() string
}

// Decoder turns molecule text into a Graph.  Malformed input yields an error
// carrying errors.ErrCodeMoleculeParsingFailed.
type Decoder interface {
	Decode(text string) (Graph, error)
}

// Generator enumerates the circular fragments of a graph.  Results must be
// deterministic for identical (graph, type) pairs.
type Generator interface {
	Generate(g Graph, t cfp.FragmentType) ([]Occurrence, error)
}

// SnapshotRepository persists index snapshots.
type SnapshotRepository interface {
	// Save stores s under s.ID, replacing any previous snapshot with that ID.
	Save(ctx context.Context, s *Snapshot) error

	// Load returns errors.ErrCodeSnapshotNotFound if id is unknown.
	Load(ctx context.Context, id string) (*Snapshot, error)

	// List returns the stored snapshot IDs in ascending order.
	List(ctx context.Context) ([]string, error)

	// Delete returns errors.ErrCodeSnapshotNotFound if id is unknown.
	Delete(ctx context.Context, id string) error
}
