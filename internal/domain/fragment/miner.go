package fragment

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/turtacn/cfpminer/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/cfpminer/pkg/errors"
	"github.com/turtacn/cfpminer/pkg/types/cfp"
)

// ─────────────────────────────────────────────────────────────────────────────
// Config
// ─────────────────────────────────────────────────────────────────────────────

// Config fixes the behaviour of one mining session.
type Config struct {
	Type      cfp.FragmentType
	Selection cfp.FeatureSelection

	// FoldSize is the bit width in fold mode.
	FoldSize int

	// TargetFeatures is the filter-mode target cardinality.  Zero means
	// FoldSize.
	TargetFeatures int

	// AbsMinFreq is the restricted support below which low-ranked fragments
	// are dropped by the min-frequency stage.
	AbsMinFreq int

	// CheckDuplicates rejects corpora containing the same molecule text twice.
	CheckDuplicates bool
}

// DefaultConfig returns ecfp4 filtering to 1024 features.
func DefaultConfig() Config {
	return Config{
		Type:            cfp.ECFP4,
		Selection:       cfp.SelectionFilt,
		FoldSize:        1024,
		AbsMinFreq:      2,
		CheckDuplicates: true,
	}
}

// Target returns the filter-mode target feature count.
func (c Config) Target() int {
	if c.TargetFeatures > 0 {
		return c.TargetFeatures
	}
	return c.FoldSize
}

// Validate checks field ranges.
func (c Config) Validate() error {
	if !c.Type.IsValid() {
		return errors.New(errors.ErrCodeFingerprintTypeUnsupported, "unsupported fragment type").WithDetail(string(c.Type))
	}
	if !c.Selection.IsValid() {
		return errors.InvalidParam("unsupported feature selection").WithDetail(string(c.Selection))
	}
	if c.Selection != cfp.SelectionNone && c.Target() <= 0 {
		return errors.InvalidParam("fold size must be positive")
	}
	if c.Selection == cfp.SelectionFold && c.FoldSize <= 0 {
		return errors.InvalidParam("fold size must be positive")
	}
	if c.TargetFeatures < 0 {
		return errors.InvalidParam("target features must not be negative")
	}
	if c.AbsMinFreq < 0 {
		return errors.InvalidParam("absolute minimum frequency must not be negative")
	}
	return nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Miner
// ─────────────────────────────────────────────────────────────────────────────

// State is the lifecycle position of a Miner.
type State int

const (
	StateUnmined State = iota
	StateMined
	StateFiltered
)

func (s State) String() string {
	switch s {
	case StateMined:
		return "mined"
	case StateFiltered:
		return "filtered"
	}
	return "unmined"
}

// Miner is one mining session.  Mine and ApplyFilter are single-writer; all
// other methods may be called concurrently once the index is stable.
type Miner struct {
	id     string
	cfg    Config
	gen    Generator
	dec    Decoder
	logger logging.Logger
	cache  *AttributionCache

	mu           sync.Mutex
	state        State
	numCompounds int
	texts        []string
	endpoints    []string
	textIndex    map[string]int
	conflicts    int
	index        *Index
	unfiltered   *Index
	encoder      *FoldedEncoder
	graphs       []Graph

	// derived state, rebuilt lazily after every structural change
	inverse       [][]Fragment
	positions     map[Fragment]int
	lattice       *Lattice
	testFragments map[string][]Fragment
	included      map[string]map[Fragment][]Fragment
	classValues   []string
}

// Option customises a Miner.
type Option func(*Miner)

// WithLogger sets the logger.  The default discards output.
func WithLogger(l logging.Logger) Option {
	return func(m *Miner) {
		if l != nil {
			m.logger = l
		}
	}
}

// WithDecoder sets the decoder used by Mine and by attribution queries on
// compounds whose graphs are not held in memory.
func WithDecoder(d Decoder) Option {
	return func(m *Miner) { m.dec = d }
}

// WithAttributionCache shares an existing cache.  It must wrap the same
// generator.
func WithAttributionCache(c *AttributionCache) Option {
	return func(m *Miner) {
		if c != nil {
			m.cache = c
		}
	}
}

// WithID overrides the generated session identifier.
func WithID(id string) Option {
	return func(m *Miner) {
		if id != "" {
			m.id = id
		}
	}
}

// NewMiner validates cfg and returns an unmined session.
func NewMiner(cfg Config, gen Generator, opts ...Option) (*Miner, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if gen == nil {
		return nil, errors.InvalidParam("fragment generator is required")
	}
	m := &Miner{
		id:     uuid.NewString(),
		cfg:    cfg,
		gen:    gen,
		logger: logging.NewNopLogger(),
		index:  newIndex(),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.cache == nil {
		m.cache = NewAttributionCache(gen)
	}
	m.logger = m.logger.With(logging.String(logging.FieldSessionID, m.id))
	return m, nil
}

func (m *Miner) ID() string     { return m.id }
func (m *Miner) Config() Config { return m.cfg }

// Cache returns the session's attribution cache.
func (m *Miner) Cache() *AttributionCache { return m.cache }

func (m *Miner) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

func (m *Miner) NumCompounds() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.numCompounds
}

func (m *Miner) NumFragments() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.index.Len()
}

// Conflicts returns the number of unfolded hash collisions seen while mining.
func (m *Miner) Conflicts() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.conflicts
}

// Index returns the current (possibly filtered) index.
func (m *Miner) Index() *Index {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.index
}

// Texts returns the molecule texts in compound order.
func (m *Miner) Texts() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.texts...)
}

// Endpoints returns the per-compound labels, or nil if none were supplied.
func (m *Miner) Endpoints() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.endpoints...)
}

// Collisions returns the fold-mode collision map, or nil in other modes.
func (m *Miner) Collisions() *CollisionMap {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.encoder == nil {
		return nil
	}
	return m.encoder.Collisions()
}

// Name returns "<type>_<selection>" with "_<size>" appended for fold and filt.
func (m *Miner) Name() string {
	switch m.cfg.Selection {
	case cfp.SelectionFold:
		return fmt.Sprintf("%s_%s_%d", m.cfg.Type, m.cfg.Selection, m.cfg.FoldSize)
	case cfp.SelectionFilt:
		return fmt.Sprintf("%s_%s_%d", m.cfg.Type, m.cfg.Selection, m.cfg.Target())
	}
	return fmt.Sprintf("%s_%s", m.cfg.Type, m.cfg.Selection)
}

// NiceFragmentDescription returns e.g. "Filtered ECFP4 fragments".
func (m *Miner) NiceFragmentDescription() string {
	return m.cfg.Selection.Attribute() + " " + m.cfg.Type.NiceString() + " fragments"
}

// ─────────────────────────────────────────────────────────────────────────────
// Mining
// ─────────────────────────────────────────────────────────────────────────────

// Mine decodes texts in order and mines them.  endpoints may be nil; otherwise
// it must have one label per text.  A decode failure aborts mining and leaves
// the miner unmined.
func (m *Miner) Mine(ctx context.Context, texts []string, endpoints []string) error {
	if m.dec == nil {
		return errors.Configuration("mining molecule texts requires a decoder")
	}
	return m.mine(ctx, texts, endpoints, func(i int) (Graph, error) {
		g, err := m.dec.Decode(texts[i])
		if err != nil {
			return nil, errors.Wrap(err, errors.CodeUnknown, fmt.Sprintf("cannot decode compound %d", i))
		}
		return g, nil
	})
}

// MineGraphs mines already decoded graphs.  Each graph's Key is kept as the
// compound's text.
func (m *Miner) MineGraphs(ctx context.Context, graphs []Graph, endpoints []string) error {
	texts := make([]string, len(graphs))
	for i, g := range graphs {
		texts[i] = g.Key()
	}
	return m.mine(ctx, texts, endpoints, func(i int) (Graph, error) { return graphs[i], nil })
}

func (m *Miner) mine(ctx context.Context, texts, endpoints []string, graphAt func(int) (Graph, error)) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state != StateUnmined {
		return errors.Configuration("index already mined")
	}
	if endpoints != nil && len(endpoints) != len(texts) {
		return errors.New(errors.ErrCodeEndpointMismatch, "endpoint count does not match compound count").
			WithDetail(fmt.Sprintf("%d != %d", len(endpoints), len(texts)))
	}
	textIndex, err := indexTexts(texts, m.cfg.CheckDuplicates)
	if err != nil {
		return err
	}

	start := time.Now()
	idx := newIndex()
	graphs := make([]Graph, len(texts))
	var encoder *FoldedEncoder
	if m.cfg.Selection == cfp.SelectionFold {
		encoder = NewFoldedEncoder(m.cfg.FoldSize)
	}
	depthOf := make(map[Fragment]int)
	sizeOf := make(map[Fragment]int)
	conflicts := 0

	for c := range texts {
		if err := ctx.Err(); err != nil {
			return err
		}
		g, err := graphAt(c)
		if err != nil {
			return err
		}
		graphs[c] = g
		occs, err := m.cache.Occurrences(g, m.cfg.Type)
		if err != nil {
			return errors.Wrap(err, errors.ErrCodeFingerprintGenerationFailed, fmt.Sprintf("cannot generate fragments for compound %d", c))
		}
		if encoder != nil {
			for _, bit := range encoder.Encode(occs) {
				idx.add(Fragment(bit), c)
			}
			continue
		}
		for _, o := range occs {
			idx.add(o.Hash, c)
			conflict := checkFirst(depthOf, o.Hash, o.Depth)
			if checkFirst(sizeOf, o.Hash, len(o.Atoms)) {
				conflict = true
			}
			if conflict {
				conflicts++
			}
		}
	}

	m.texts = append([]string(nil), texts...)
	if endpoints != nil {
		m.endpoints = append([]string(nil), endpoints...)
	}
	m.textIndex = textIndex
	m.numCompounds = len(texts)
	m.index = idx
	m.unfiltered = nil
	m.encoder = encoder
	m.conflicts = conflicts
	m.graphs = graphs
	m.state = StateMined
	m.invalidate()

	logging.LogStageDuration(m.logger, "mine", start,
		logging.Int(logging.FieldCompounds, m.numCompounds),
		logging.Int(logging.FieldFragments, idx.Len()),
		logging.Int(logging.FieldConflicts, conflicts),
		logging.String("fragment_type", m.cfg.Type.String()),
		logging.String("feature_selection", m.cfg.Selection.String()),
	)
	return nil
}

// checkFirst keeps the first value seen for f and reports whether v differs
// from it.
func checkFirst(seen map[Fragment]int, f Fragment, v int) bool {
	if first, ok := seen[f]; ok {
		return first != v
	}
	seen[f] = v
	return false
}

func indexTexts(texts []string, rejectDuplicates bool) (map[string]int, error) {
	out := make(map[string]int, len(texts))
	for i, t := range texts {
		key := strings.TrimSpace(t)
		if first, dup := out[key]; dup {
			if rejectDuplicates {
				return nil, errors.New(errors.ErrCodeMoleculeAlreadyExists, "duplicate molecule in corpus").
					WithDetail(fmt.Sprintf("compounds %d and %d: %s", first, i, key))
			}
			continue
		}
		out[key] = i
	}
	return out, nil
}

// invalidate drops every derived structure.  Callers hold m.mu.
func (m *Miner) invalidate() {
	m.inverse = nil
	m.positions = nil
	m.lattice = nil
	m.testFragments = nil
	m.included = nil
	m.classValues = nil
}

func (m *Miner) requireMined() error {
	if m.state == StateUnmined {
		return errors.Configuration("index not mined yet")
	}
	return nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Endpoints
// ─────────────────────────────────────────────────────────────────────────────

// ClassValues returns the sorted distinct endpoint labels.
func (m *Miner) ClassValues() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.classValuesLocked()...)
}

func (m *Miner) classValuesLocked() []string {
	if m.classValues == nil && m.endpoints != nil {
		m.classValues = distinctSorted(m.endpoints)
	}
	return m.classValues
}

var activeLabels = map[string]bool{"active": true, "mutagen": true, "1": true, "most-concern": true}

// ActiveIndex returns the position in ClassValues of the label meaning
// "active".  The last matching label wins.
func (m *Miner) ActiveIndex() (int, error) {
	vals := m.ClassValues()
	idx := -1
	for i, v := range vals {
		if activeLabels[v] {
			idx = i
		}
	}
	if idx < 0 {
		return -1, errors.InvalidParam("no active class value").WithDetail(strings.Join(vals, ","))
	}
	return idx, nil
}

// TrainingActivity returns the endpoint of the training compound with the
// given text.
func (m *Miner) TrainingActivity(text string) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.textIndex[strings.TrimSpace(text)]
	if !ok || m.endpoints == nil {
		return "", false
	}
	return m.endpoints[c], true
}

func distinctSorted(values []string) []string {
	set := make(map[string]struct{}, len(values))
	for _, v := range values {
		set[v] = struct{}{}
	}
	out := make([]string, 0, len(set))
	for v := range set {
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}

// graphFor returns the graph of compound c, decoding its text if the graph is
// not held in memory.  Callers hold m.mu.
func (m *Miner) graphFor(c int) (Graph, error) {
	if c < len(m.graphs) && m.graphs[c] != nil {
		return m.graphs[c], nil
	}
	if m.dec == nil {
		return nil, errors.Configuration("compound graphs are not available without a decoder")
	}
	g, err := m.dec.Decode(m.texts[c])
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeUnknown, fmt.Sprintf("cannot decode compound %d", c))
	}
	if m.graphs == nil {
		m.graphs = make([]Graph, m.numCompounds)
	}
	m.graphs[c] = g
	return g, nil
}
