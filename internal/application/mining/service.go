// Package mining orchestrates a mining run: dataset in, index mined and
// optionally filtered, snapshot persisted, events published, metrics recorded.
package mining

import (
	"context"
	"time"

	"github.com/turtacn/cfpminer/internal/domain/fragment"
	"github.com/turtacn/cfpminer/internal/infrastructure/messaging/kafka"
	"github.com/turtacn/cfpminer/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/cfpminer/internal/infrastructure/monitoring/prometheus"
	"github.com/turtacn/cfpminer/pkg/errors"
	"github.com/turtacn/cfpminer/pkg/types/cfp"
)

// DefaultCollisionSizes are the fold widths compared by CollisionReport.
var DefaultCollisionSizes = []int{1024, 2048, 4096, 8192}

// EventSink receives mining events.
type EventSink interface {
	PublishMined(ctx context.Context, payload kafka.IndexMinedPayload) error
	PublishFiltered(ctx context.Context, payload kafka.IndexFilteredPayload) error
	Topics() kafka.Topics
}

type nopSink struct{}

func (nopSink) PublishMined(context.Context, kafka.IndexMinedPayload) error       { return nil }
func (nopSink) PublishFiltered(context.Context, kafka.IndexFilteredPayload) error { return nil }
func (nopSink) Topics() kafka.Topics                                              { return kafka.Topics{} }

// MineInput describes one mining run.
type MineInput struct {
	Dataset *Dataset
	Config  fragment.Config
}

// MineResult is the outcome of a mining run.
type MineResult struct {
	SnapshotID string                 `json:"snapshot_id"`
	SessionID  string                 `json:"session_id"`
	Summary    fragment.Summary       `json:"summary"`
	Report     *fragment.FilterReport `json:"filter,omitempty"`
	Duration   time.Duration          `json:"duration"`

	Miner *fragment.Miner `json:"-"`
}

// CollisionRow is one fold width of a collision report.
type CollisionRow struct {
	FoldSize  int                     `json:"fold_size"`
	Fragments int                     `json:"fragments"`
	Stats     fragment.CollisionStats `json:"stats"`
}

// Service runs and persists mining sessions.
type Service struct {
	repo    fragment.SnapshotRepository
	decoder fragment.Decoder
	gen     fragment.Generator
	events  EventSink
	metrics *prometheus.MiningMetrics
	logger  logging.Logger
}

// Option customises a Service.
type Option func(*Service)

// WithEvents publishes mining events to sink.
func WithEvents(sink EventSink) Option {
	return func(s *Service) {
		if sink != nil {
			s.events = sink
		}
	}
}

// WithMetrics records runs on m.
func WithMetrics(m *prometheus.MiningMetrics) Option {
	return func(s *Service) { s.metrics = m }
}

func WithLogger(l logging.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// NewService creates a mining service.
func NewService(repo fragment.SnapshotRepository, dec fragment.Decoder, gen fragment.Generator, opts ...Option) (*Service, error) {
	if repo == nil {
		return nil, errors.InvalidParam("snapshot repository is required")
	}
	if dec == nil || gen == nil {
		return nil, errors.InvalidParam("decoder and generator are required")
	}
	s := &Service{
		repo:    repo,
		decoder: dec,
		gen:     gen,
		events:  nopSink{},
		logger:  logging.NewNopLogger(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.Named("mining")
	return s, nil
}

// Repository returns the snapshot store.
func (s *Service) Repository() fragment.SnapshotRepository { return s.repo }

// Mine mines the dataset, filters it in filt mode and saves a snapshot.  Event
// publishing failures are logged and counted but do not fail the run.
func (s *Service) Mine(ctx context.Context, in MineInput) (*MineResult, error) {
	if in.Dataset == nil || in.Dataset.Len() == 0 {
		return nil, errors.InvalidParam("dataset is empty")
	}
	start := time.Now()
	cfg := in.Config

	m, err := fragment.NewMiner(cfg, s.gen, fragment.WithDecoder(s.decoder), fragment.WithLogger(s.logger))
	if err != nil {
		return nil, err
	}
	log := s.logger.With(logging.String(logging.FieldSessionID, m.ID()))

	if err := m.Mine(ctx, in.Dataset.Texts, in.Dataset.Endpoints); err != nil {
		s.recordMine(cfg, time.Since(start), err)
		s.recordError("mine", err)
		return nil, err
	}
	mineDur := time.Since(start)
	s.recordMine(cfg, mineDur, nil)

	var report *fragment.FilterReport
	var filterDur time.Duration
	if cfg.Selection == cfp.SelectionFilt {
		fstart := time.Now()
		report, err = m.ApplyFilter(ctx)
		filterDur = time.Since(fstart)
		s.recordFilter(report, err)
		if err != nil {
			s.recordError("filter", err)
			return nil, err
		}
	}

	snap, err := m.Snapshot()
	if err != nil {
		return nil, err
	}
	if err := s.repo.Save(ctx, snap); err != nil {
		s.recordError("storage", err)
		return nil, err
	}

	summary := m.Summary()
	s.recordIndex(summary)
	log.Info("index saved",
		logging.String(logging.FieldSnapshotID, snap.ID),
		logging.Int(logging.FieldCompounds, summary.NumCompounds),
		logging.Int(logging.FieldFragments, summary.NumFragments))

	s.publishMined(ctx, kafka.MinedPayloadFrom(snap.ID, m.ID(), summary, mineDur))
	if report != nil {
		s.publishFiltered(ctx, kafka.FilteredPayloadFrom(snap.ID, m.ID(), summary.Name, report, filterDur))
	}

	return &MineResult{
		SnapshotID: snap.ID,
		SessionID:  m.ID(),
		Summary:    summary,
		Report:     report,
		Duration:   time.Since(start),
		Miner:      m,
	}, nil
}

// Load restores the miner saved under id.
func (s *Service) Load(ctx context.Context, id string) (*fragment.Miner, error) {
	if err := fragment.ValidateSnapshotID(id); err != nil {
		return nil, err
	}
	snap, err := s.repo.Load(ctx, id)
	if err != nil {
		return nil, err
	}
	return fragment.Restore(snap, s.gen, fragment.WithDecoder(s.decoder), fragment.WithLogger(s.logger))
}

// Refilter reloads id, re-runs the filter restricted to subset (all compounds
// when nil) and saves the result as a new snapshot.
func (s *Service) Refilter(ctx context.Context, id string, subset []int) (*MineResult, error) {
	start := time.Now()
	m, err := s.Load(ctx, id)
	if err != nil {
		return nil, err
	}
	var report *fragment.FilterReport
	if subset == nil {
		report, err = m.ApplyFilter(ctx)
	} else {
		report, err = m.ApplyFilterSubset(ctx, subset)
	}
	s.recordFilter(report, err)
	if err != nil {
		s.recordError("filter", err)
		return nil, err
	}
	filterDur := time.Since(start)

	snap, err := m.Snapshot()
	if err != nil {
		return nil, err
	}
	if err := s.repo.Save(ctx, snap); err != nil {
		s.recordError("storage", err)
		return nil, err
	}
	summary := m.Summary()
	s.recordIndex(summary)
	s.publishFiltered(ctx, kafka.FilteredPayloadFrom(snap.ID, m.ID(), summary.Name, report, filterDur))

	return &MineResult{
		SnapshotID: snap.ID,
		SessionID:  m.ID(),
		Summary:    summary,
		Report:     report,
		Duration:   time.Since(start),
		Miner:      m,
	}, nil
}

// List returns the stored snapshot IDs.
func (s *Service) List(ctx context.Context) ([]string, error) {
	return s.repo.List(ctx)
}

// Delete removes a stored snapshot.
func (s *Service) Delete(ctx context.Context, id string) error {
	if err := fragment.ValidateSnapshotID(id); err != nil {
		return err
	}
	return s.repo.Delete(ctx, id)
}

// CollisionReport folds the dataset at each size and reports the collision
// statistics.  Generator output is shared across sizes.  Nothing is
// persisted.
func (s *Service) CollisionReport(ctx context.Context, ds *Dataset, t cfp.FragmentType, sizes []int) ([]CollisionRow, error) {
	if ds == nil || ds.Len() == 0 {
		return nil, errors.InvalidParam("dataset is empty")
	}
	if len(sizes) == 0 {
		sizes = DefaultCollisionSizes
	}
	cache := fragment.NewAttributionCache(s.gen)
	rows := make([]CollisionRow, 0, len(sizes))
	for _, size := range sizes {
		cfg := fragment.Config{Type: t, Selection: cfp.SelectionFold, FoldSize: size}
		m, err := fragment.NewMiner(cfg, s.gen,
			fragment.WithDecoder(s.decoder),
			fragment.WithLogger(s.logger),
			fragment.WithAttributionCache(cache))
		if err != nil {
			return nil, err
		}
		if err := m.Mine(ctx, ds.Texts, nil); err != nil {
			return nil, err
		}
		sum := m.Summary()
		row := CollisionRow{FoldSize: size, Fragments: sum.NumFragments}
		if sum.Collisions != nil {
			row.Stats = *sum.Collisions
		}
		rows = append(rows, row)
		s.logger.Debug("collision estimate",
			logging.Int("fold_size", size),
			logging.Float64("ratio", row.Stats.Ratio),
			logging.Float64("bit_load", row.Stats.MeanBitLoad))
	}
	return rows, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Events and metrics
// ─────────────────────────────────────────────────────────────────────────────

func (s *Service) publishMined(ctx context.Context, p kafka.IndexMinedPayload) {
	err := s.events.PublishMined(ctx, p)
	s.recordEvent(s.events.Topics().Mined, err)
}

func (s *Service) publishFiltered(ctx context.Context, p kafka.IndexFilteredPayload) {
	err := s.events.PublishFiltered(ctx, p)
	s.recordEvent(s.events.Topics().Filtered, err)
}

func (s *Service) recordEvent(topic string, err error) {
	if err != nil {
		s.logger.Warn("mining event not delivered", logging.String("topic", topic), logging.Err(err))
		s.recordError("events", err)
	}
	if s.metrics != nil && topic != "" {
		prometheus.RecordEvent(s.metrics, topic, err)
	}
}

func (s *Service) recordMine(cfg fragment.Config, d time.Duration, err error) {
	if s.metrics != nil {
		prometheus.RecordMine(s.metrics, cfg.Type.String(), cfg.Selection.String(), d, err)
	}
}

func (s *Service) recordFilter(r *fragment.FilterReport, err error) {
	if s.metrics == nil {
		return
	}
	prometheus.RecordFilter(s.metrics, err)
	if r == nil {
		return
	}
	for _, st := range r.Stages {
		prometheus.RecordFilterStage(s.metrics, st.Name, st.Removed, st.Duration)
	}
}

func (s *Service) recordIndex(sum fragment.Summary) {
	if s.metrics == nil {
		return
	}
	shape := prometheus.IndexShape{
		Name:      sum.Name,
		Fragments: sum.NumFragments,
		Compounds: sum.NumCompounds,
		Conflicts: sum.UnfoldedConflicts,
	}
	if sum.Collisions != nil {
		shape.Folded = true
		shape.CollisionRatio = sum.Collisions.Ratio
		shape.BitLoad = sum.Collisions.MeanBitLoad
	}
	prometheus.RecordIndex(s.metrics, shape)
}

func (s *Service) recordError(component string, err error) {
	if s.metrics != nil {
		prometheus.RecordError(s.metrics, component, errors.GetCode(err).String())
	}
}
