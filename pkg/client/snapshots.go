package client

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
)

// ─────────────────────────────────────────────────────────────────────────────
// Types
// ─────────────────────────────────────────────────────────────────────────────

// Summary is the subset of the index summary most callers need.
type Summary struct {
	Name              string `json:"name"`
	NumFragments      int    `json:"num_fragments"`
	NumCompounds      int    `json:"num_compounds"`
	FragmentType      string `json:"fragment_type"`
	FeatureSelection  string `json:"feature_selection"`
	FoldSize          int    `json:"fold_size"`
	TargetFeatures    int    `json:"target_features"`
	UnfoldedConflicts int    `json:"unfolded_conflicts"`
	CompoundsWithout  int    `json:"compounds_without_fragments"`
}

type Snapshot struct {
	ID          string   `json:"id"`
	SessionID   string   `json:"session_id"`
	State       string   `json:"state"`
	Description string   `json:"description"`
	ClassValues []string `json:"class_values,omitempty"`
	Summary     Summary  `json:"summary"`
}

// FilterStage is one stage of a feature selection run.
type FilterStage struct {
	Name      string `json:"name"`
	Remaining int    `json:"remaining"`
	Removed   int    `json:"removed"`
}

type FilterReport struct {
	Target  int           `json:"target"`
	Initial int           `json:"initial"`
	Stages  []FilterStage `json:"stages"`
}

// MineResult describes a stored snapshot created by a filter run.
type MineResult struct {
	SnapshotID string        `json:"snapshot_id"`
	SessionID  string        `json:"session_id"`
	Summary    Summary       `json:"summary"`
	Report     *FilterReport `json:"filter,omitempty"`
}

type Similarity struct {
	I        int      `json:"i"`
	J        int      `json:"j"`
	Tanimoto *float64 `json:"tanimoto"`
}

type CompoundFragments struct {
	Compound  int     `json:"compound"`
	Fragments []int32 `json:"fragments"`
}

type FragmentCompounds struct {
	Fragment  int32 `json:"fragment"`
	Position  int   `json:"position"`
	Compounds []int `json:"compounds"`
}

type Lattice struct {
	Fragment int32   `json:"fragment"`
	Sub      []int32 `json:"sub"`
	Super    []int32 `json:"super"`
}

// TestFragment is a fragment of a molecule outside the training set.
// Position is -1 when the fragment is not part of the index.
type TestFragment struct {
	Fragment int32 `json:"fragment"`
	Position int   `json:"position"`
}

// Atom attribution modes.
const (
	AtomsFirst    = "first"
	AtomsMultiple = "multiple"
	AtomsDistinct = "distinct"
)

type Atoms struct {
	Fragment int32   `json:"fragment"`
	Mode     string  `json:"mode"`
	Atoms    []int   `json:"atoms,omitempty"`
	AtomSets [][]int `json:"atom_sets,omitempty"`
}

// ─────────────────────────────────────────────────────────────────────────────
// SnapshotsClient
// ─────────────────────────────────────────────────────────────────────────────

// SnapshotsClient queries stored fragment indexes.
type SnapshotsClient struct {
	client *Client
}

func snapshotPath(id string, parts ...string) string {
	p := "/snapshots/" + url.PathEscape(id)
	for _, s := range parts {
		p += "/" + s
	}
	return p
}

func (s *SnapshotsClient) List(ctx context.Context) ([]string, error) {
	var resp struct {
		Snapshots []string `json:"snapshots"`
	}
	if err := s.client.get(ctx, "/snapshots", &resp); err != nil {
		return nil, err
	}
	return resp.Snapshots, nil
}

func (s *SnapshotsClient) Get(ctx context.Context, id string) (*Snapshot, error) {
	var resp Snapshot
	if err := s.client.get(ctx, snapshotPath(id), &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (s *SnapshotsClient) Delete(ctx context.Context, id string) error {
	return s.client.delete(ctx, snapshotPath(id))
}

// Filter re-runs feature selection on a filt snapshot, restricted to subset
// when it is non-nil, and stores the result as a new snapshot.
func (s *SnapshotsClient) Filter(ctx context.Context, id string, subset []int) (*MineResult, error) {
	body := struct {
		Subset []int `json:"subset,omitempty"`
	}{Subset: subset}
	var resp MineResult
	if err := s.client.post(ctx, snapshotPath(id, "filter"), body, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Export returns the compound by fragment matrix as CSV.
func (s *SnapshotsClient) Export(ctx context.Context, id string) ([]byte, error) {
	var raw []byte
	if err := s.client.get(ctx, snapshotPath(id, "export"), &raw); err != nil {
		return nil, err
	}
	return raw, nil
}

func (s *SnapshotsClient) Similarity(ctx context.Context, id string, i, j int) (*Similarity, error) {
	q := url.Values{"i": {strconv.Itoa(i)}, "j": {strconv.Itoa(j)}}
	var resp Similarity
	if err := s.client.get(ctx, snapshotPath(id, "similarity")+"?"+q.Encode(), &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Activity returns the training endpoint of smiles.
func (s *SnapshotsClient) Activity(ctx context.Context, id, smiles string) (string, error) {
	q := url.Values{"smiles": {smiles}}
	var resp struct {
		Endpoint string `json:"endpoint"`
	}
	if err := s.client.get(ctx, snapshotPath(id, "activity")+"?"+q.Encode(), &resp); err != nil {
		return "", err
	}
	return resp.Endpoint, nil
}

func (s *SnapshotsClient) FragmentAt(ctx context.Context, id string, pos int) (int32, error) {
	var resp struct {
		Fragment int32 `json:"fragment"`
	}
	if err := s.client.get(ctx, snapshotPath(id, "positions", strconv.Itoa(pos)), &resp); err != nil {
		return 0, err
	}
	return resp.Fragment, nil
}

func (s *SnapshotsClient) CompoundFragments(ctx context.Context, id string, compound int) (*CompoundFragments, error) {
	var resp CompoundFragments
	if err := s.client.get(ctx, snapshotPath(id, "compounds", strconv.Itoa(compound), "fragments"), &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (s *SnapshotsClient) FragmentCompounds(ctx context.Context, id string, f int32) (*FragmentCompounds, error) {
	var resp FragmentCompounds
	if err := s.client.get(ctx, snapshotPath(id, "fragments", fmt.Sprint(f), "compounds"), &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (s *SnapshotsClient) Lattice(ctx context.Context, id string, f int32) (*Lattice, error) {
	var resp Lattice
	if err := s.client.get(ctx, snapshotPath(id, "fragments", fmt.Sprint(f), "lattice"), &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// TestFragments returns the fragments of a molecule outside the training set.
func (s *SnapshotsClient) TestFragments(ctx context.Context, id, smiles string) ([]TestFragment, error) {
	body := map[string]string{"smiles": smiles}
	var resp struct {
		Fragments []TestFragment `json:"fragments"`
	}
	if err := s.client.post(ctx, snapshotPath(id, "test-fragments"), body, &resp); err != nil {
		return nil, err
	}
	return resp.Fragments, nil
}

// Atoms attributes fragment f to the atoms of smiles.  mode is one of
// AtomsFirst, AtomsMultiple or AtomsDistinct; empty means AtomsFirst.
func (s *SnapshotsClient) Atoms(ctx context.Context, id, smiles string, f int32, mode string) (*Atoms, error) {
	body := struct {
		SMILES   string `json:"smiles"`
		Fragment int32  `json:"fragment"`
		Mode     string `json:"mode,omitempty"`
	}{smiles, f, mode}
	var resp Atoms
	if err := s.client.post(ctx, snapshotPath(id, "atoms"), body, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}
