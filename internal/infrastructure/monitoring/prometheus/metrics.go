package prometheus

import (
	"strconv"
	"time"
)

// MiningMetrics holds every metric family the miner exports.
type MiningMetrics struct {
	// Mining
	MineTotal         CounterVec   // fragment_type, feature_selection, status
	MineDuration      HistogramVec // fragment_type, feature_selection
	IndexFragments    GaugeVec     // index
	IndexCompounds    GaugeVec     // index
	UnfoldedConflicts GaugeVec     // index
	CollisionRatio    GaugeVec     // index
	BitLoad           GaugeVec     // index

	// Filtering
	FilterTotal        CounterVec   // status
	FilterStageSeconds HistogramVec // stage
	FilterRemoved      CounterVec   // stage

	// Persistence and events
	SnapshotOpsTotal   CounterVec   // backend, op, status
	SnapshotOpDuration HistogramVec // backend, op
	EventsTotal        CounterVec   // topic, status

	// HTTP
	HTTPRequestsTotal   CounterVec   // method, route, status_code
	HTTPRequestDuration HistogramVec // method, route

	ErrorsTotal CounterVec // component, code
}

// Default buckets.
var (
	DefaultMiningDurationBuckets = []float64{.01, .05, .1, .5, 1, 5, 10, 30, 60, 300, 900}
	DefaultStageDurationBuckets  = []float64{.001, .005, .01, .05, .1, .5, 1, 5, 30}
	DefaultIODurationBuckets     = []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 5}
	DefaultHTTPDurationBuckets   = []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10}
)

// NewMiningMetrics registers every family on collector.
func NewMiningMetrics(collector MetricsCollector) *MiningMetrics {
	m := &MiningMetrics{}

	m.MineTotal = collector.RegisterCounter("mine_total", "Mining runs", "fragment_type", "feature_selection", "status")
	m.MineDuration = collector.RegisterHistogram("mine_duration_seconds", "Mining duration", DefaultMiningDurationBuckets, "fragment_type", "feature_selection")
	m.IndexFragments = collector.RegisterGauge("index_fragments", "Fragments in the current index", "index")
	m.IndexCompounds = collector.RegisterGauge("index_compounds", "Compounds in the current index", "index")
	m.UnfoldedConflicts = collector.RegisterGauge("unfolded_conflicts", "Hash collisions detected while mining unfolded fragments", "index")
	m.CollisionRatio = collector.RegisterGauge("fold_collision_ratio", "Share of used bits holding more than one raw fragment", "index")
	m.BitLoad = collector.RegisterGauge("fold_bit_load", "Mean raw fragments per used bit", "index")

	m.FilterTotal = collector.RegisterCounter("filter_total", "Filter pipeline runs", "status")
	m.FilterStageSeconds = collector.RegisterHistogram("filter_stage_duration_seconds", "Filter stage duration", DefaultStageDurationBuckets, "stage")
	m.FilterRemoved = collector.RegisterCounter("filter_removed_fragments_total", "Fragments removed per filter stage", "stage")

	m.SnapshotOpsTotal = collector.RegisterCounter("snapshot_operations_total", "Snapshot repository operations", "backend", "op", "status")
	m.SnapshotOpDuration = collector.RegisterHistogram("snapshot_operation_duration_seconds", "Snapshot repository latency", DefaultIODurationBuckets, "backend", "op")
	m.EventsTotal = collector.RegisterCounter("events_published_total", "Mining events published", "topic", "status")

	m.HTTPRequestsTotal = collector.RegisterCounter("http_requests_total", "HTTP requests", "method", "route", "status_code")
	m.HTTPRequestDuration = collector.RegisterHistogram("http_request_duration_seconds", "HTTP request duration", DefaultHTTPDurationBuckets, "method", "route")

	m.ErrorsTotal = collector.RegisterCounter("errors_total", "Errors by component and code", "component", "code")
	return m
}

// ─────────────────────────────────────────────────────────────────────────────
// Helpers
// ─────────────────────────────────────────────────────────────────────────────

func status(err error) string {
	if err != nil {
		return "failure"
	}
	return "success"
}

// RecordMine counts one mining run and observes its duration.
func RecordMine(m *MiningMetrics, fragmentType, selection string, d time.Duration, err error) {
	m.MineTotal.WithLabelValues(fragmentType, selection, status(err)).Inc()
	if err == nil {
		m.MineDuration.WithLabelValues(fragmentType, selection).Observe(d.Seconds())
	}
}

// IndexShape is the subset of an index summary exported as gauges.
type IndexShape struct {
	Name           string
	Fragments      int
	Compounds      int
	Conflicts      int
	Folded         bool
	CollisionRatio float64
	BitLoad        float64
}

// RecordIndex sets the gauges describing one index.
func RecordIndex(m *MiningMetrics, s IndexShape) {
	m.IndexFragments.WithLabelValues(s.Name).Set(float64(s.Fragments))
	m.IndexCompounds.WithLabelValues(s.Name).Set(float64(s.Compounds))
	m.UnfoldedConflicts.WithLabelValues(s.Name).Set(float64(s.Conflicts))
	if s.Folded {
		m.CollisionRatio.WithLabelValues(s.Name).Set(s.CollisionRatio)
		m.BitLoad.WithLabelValues(s.Name).Set(s.BitLoad)
	}
}

// RecordFilterStage observes one filter stage.
func RecordFilterStage(m *MiningMetrics, stage string, removed int, d time.Duration) {
	m.FilterStageSeconds.WithLabelValues(stage).Observe(d.Seconds())
	m.FilterRemoved.WithLabelValues(stage).Add(float64(removed))
}

// RecordFilter counts one filter pipeline run.
func RecordFilter(m *MiningMetrics, err error) {
	m.FilterTotal.WithLabelValues(status(err)).Inc()
}

// RecordSnapshotOp counts and times one repository call.
func RecordSnapshotOp(m *MiningMetrics, backend, op string, d time.Duration, err error) {
	m.SnapshotOpsTotal.WithLabelValues(backend, op, status(err)).Inc()
	m.SnapshotOpDuration.WithLabelValues(backend, op).Observe(d.Seconds())
}

// RecordEvent counts one publish attempt.
func RecordEvent(m *MiningMetrics, topic string, err error) {
	m.EventsTotal.WithLabelValues(topic, status(err)).Inc()
}

// RecordHTTPRequest counts and times one request.
func RecordHTTPRequest(m *MiningMetrics, method, route string, statusCode int, d time.Duration) {
	m.HTTPRequestsTotal.WithLabelValues(method, route, strconv.Itoa(statusCode)).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, route).Observe(d.Seconds())
}

// RecordError counts one error.
func RecordError(m *MiningMetrics, component, code string) {
	m.ErrorsTotal.WithLabelValues(component, code).Inc()
}
