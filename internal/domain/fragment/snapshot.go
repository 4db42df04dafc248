package fragment

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/turtacn/cfpminer/pkg/errors"
	"github.com/turtacn/cfpminer/pkg/types/cfp"
)

// SnapshotEntry is one forward-map row.
type SnapshotEntry struct {
	Fragment  Fragment `json:"f"`
	Compounds []int    `json:"c"`
}

// Snapshot is the persisted core state of a Miner.  Derived structures are
// never included; they are rebuilt lazily after Restore.
type Snapshot struct {
	ID        string    `json:"id"`
	SessionID string    `json:"session_id"`
	CreatedAt time.Time `json:"created_at"`

	Type            cfp.FragmentType     `json:"fragment_type"`
	Selection       cfp.FeatureSelection `json:"feature_selection"`
	FoldSize        int                  `json:"fold_size"`
	TargetFeatures  int                  `json:"target_features,omitempty"`
	AbsMinFreq      int                  `json:"abs_min_freq"`
	CheckDuplicates bool                 `json:"check_duplicates"`

	NumCompounds int  `json:"num_compounds"`
	Conflicts    int  `json:"unfolded_conflicts"`
	Filtered     bool `json:"filtered"`

	Fragments  []SnapshotEntry `json:"fragments"`
	Unfiltered []SnapshotEntry `json:"unfiltered,omitempty"`

	Texts      []string           `json:"texts,omitempty"`
	Endpoints  []string           `json:"endpoints,omitempty"`
	Collisions map[int][]Fragment `json:"collisions,omitempty"`
}

// Config returns the miner configuration recorded in s.
func (s *Snapshot) Config() Config {
	return Config{
		Type:            s.Type,
		Selection:       s.Selection,
		FoldSize:        s.FoldSize,
		TargetFeatures:  s.TargetFeatures,
		AbsMinFreq:      s.AbsMinFreq,
		CheckDuplicates: s.CheckDuplicates,
	}
}

func entriesOf(x *Index) []SnapshotEntry {
	out := make([]SnapshotEntry, 0, x.Len())
	for _, f := range x.order {
		out = append(out, SnapshotEntry{Fragment: f, Compounds: append([]int(nil), x.support[f]...)})
	}
	return out
}

// Snapshot captures the persisted state under a fresh snapshot ID.
func (m *Miner) Snapshot() (*Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.requireMined(); err != nil {
		return nil, err
	}
	s := &Snapshot{
		ID:              uuid.NewString(),
		SessionID:       m.id,
		CreatedAt:       time.Now().UTC(),
		Type:            m.cfg.Type,
		Selection:       m.cfg.Selection,
		FoldSize:        m.cfg.FoldSize,
		TargetFeatures:  m.cfg.TargetFeatures,
		AbsMinFreq:      m.cfg.AbsMinFreq,
		CheckDuplicates: m.cfg.CheckDuplicates,
		NumCompounds:    m.numCompounds,
		Conflicts:       m.conflicts,
		Filtered:        m.state == StateFiltered,
		Fragments:       entriesOf(m.index),
		Texts:           append([]string(nil), m.texts...),
		Endpoints:       append([]string(nil), m.endpoints...),
	}
	if m.unfiltered != nil {
		s.Unfiltered = entriesOf(m.unfiltered)
	}
	if m.encoder != nil {
		s.Collisions = m.encoder.Collisions().export()
	}
	return s, nil
}

func indexFrom(entries []SnapshotEntry, numCompounds int) (*Index, error) {
	x := newIndex()
	for _, e := range entries {
		if x.Contains(e.Fragment) {
			return nil, errors.New(errors.ErrCodeSnapshotCorrupt, "duplicate fragment").WithDetail(e.Fragment.String())
		}
		if len(e.Compounds) == 0 {
			return nil, errors.New(errors.ErrCodeSnapshotCorrupt, "fragment without support").WithDetail(e.Fragment.String())
		}
		prev := -1
		for _, c := range e.Compounds {
			if c <= prev || c >= numCompounds {
				return nil, errors.New(errors.ErrCodeSnapshotCorrupt, "invalid support").
					WithDetail(fmt.Sprintf("fragment %s compound %d", e.Fragment, c))
			}
			prev = c
		}
		x.order = append(x.order, e.Fragment)
		x.support[e.Fragment] = append([]int(nil), e.Compounds...)
	}
	return x, nil
}

// Restore rebuilds a Miner from s.  The snapshot's session ID is kept unless
// opts override it.
func Restore(s *Snapshot, gen Generator, opts ...Option) (*Miner, error) {
	if s == nil {
		return nil, errors.New(errors.ErrCodeSnapshotCorrupt, "nil snapshot")
	}
	if s.NumCompounds < 0 {
		return nil, errors.New(errors.ErrCodeSnapshotCorrupt, "negative compound count")
	}
	if len(s.Texts) != 0 && len(s.Texts) != s.NumCompounds {
		return nil, errors.New(errors.ErrCodeSnapshotCorrupt, "text count does not match compound count")
	}
	if len(s.Endpoints) != 0 && len(s.Endpoints) != s.NumCompounds {
		return nil, errors.New(errors.ErrCodeSnapshotCorrupt, "endpoint count does not match compound count")
	}
	m, err := NewMiner(s.Config(), gen, append([]Option{WithID(s.SessionID)}, opts...)...)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeSnapshotCorrupt, "invalid snapshot configuration")
	}
	idx, err := indexFrom(s.Fragments, s.NumCompounds)
	if err != nil {
		return nil, err
	}
	if s.Unfiltered != nil {
		if m.unfiltered, err = indexFrom(s.Unfiltered, s.NumCompounds); err != nil {
			return nil, err
		}
	}
	textIndex, err := indexTexts(s.Texts, false)
	if err != nil {
		return nil, err
	}

	m.index = idx
	m.numCompounds = s.NumCompounds
	m.conflicts = s.Conflicts
	m.texts = append([]string(nil), s.Texts...)
	if len(s.Endpoints) > 0 {
		m.endpoints = append([]string(nil), s.Endpoints...)
	}
	m.textIndex = textIndex
	if s.Selection == cfp.SelectionFold {
		m.encoder = &FoldedEncoder{size: s.FoldSize, collisions: collisionMapFrom(s.Collisions)}
	}
	m.state = StateMined
	if s.Filtered {
		m.state = StateFiltered
	}
	return m, nil
}

// MarshalSnapshot encodes s as JSON.
func MarshalSnapshot(s *Snapshot) ([]byte, error) {
	b, err := json.Marshal(s)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeSerialization, "cannot encode snapshot")
	}
	return b, nil
}

// UnmarshalSnapshot decodes JSON produced by MarshalSnapshot.
func UnmarshalSnapshot(b []byte) (*Snapshot, error) {
	var s Snapshot
	if err := json.Unmarshal(b, &s); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeSnapshotCorrupt, "cannot decode snapshot")
	}
	return &s, nil
}

// ValidateSnapshotID rejects IDs that cannot double as a file name, object key
// or database key.  Letters, digits, '-', '_' and '.' are allowed; the ID may
// not start with '.'.
func ValidateSnapshotID(id string) error {
	if id == "" || len(id) > 128 || id[0] == '.' {
		return errors.InvalidParam("invalid snapshot id").WithDetail(id)
	}
	for _, r := range id {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		case r == '-', r == '_', r == '.':
		default:
			return errors.InvalidParam("invalid snapshot id").WithDetail(id)
		}
	}
	return nil
}
