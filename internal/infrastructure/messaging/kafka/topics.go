package kafka

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"

	"github.com/turtacn/cfpminer/internal/domain/fragment"
	"github.com/turtacn/cfpminer/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/cfpminer/pkg/errors"
)

// Event types
const (
	EventTypeIndexMined    = "index.mined"
	EventTypeIndexFiltered = "index.filtered"
)

const (
	eventSource   = "cfpminer"
	schemaVersion = "v1"
)

// EventEnvelope standardizes event messages.
type EventEnvelope struct {
	EventID       string            `json:"event_id"`
	EventType     string            `json:"event_type"`
	Source        string            `json:"source"`
	Timestamp     time.Time         `json:"timestamp"`
	SchemaVersion string            `json:"schema_version"`
	Payload       json.RawMessage   `json:"payload"`
	Metadata      map[string]string `json:"metadata,omitempty"`
}

// IndexMinedPayload announces a freshly mined index.
type IndexMinedPayload struct {
	SnapshotID                string `json:"snapshot_id"`
	SessionID                 string `json:"session_id"`
	Name                      string `json:"name"`
	FragmentType              string `json:"fragment_type"`
	FeatureSelection          string `json:"feature_selection"`
	FoldSize                  int    `json:"fold_size"`
	Compounds                 int    `json:"compounds"`
	Fragments                 int    `json:"fragments"`
	UnfoldedConflicts         int    `json:"unfolded_conflicts"`
	CompoundsWithoutFragments int    `json:"compounds_without_fragments"`
	DurationMs                int64  `json:"duration_ms"`
}

// IndexFilteredPayload announces the outcome of a filter run.
type IndexFilteredPayload struct {
	SnapshotID string                 `json:"snapshot_id"`
	SessionID  string                 `json:"session_id"`
	Name       string                 `json:"name"`
	Target     int                    `json:"target"`
	Before     int                    `json:"before"`
	After      int                    `json:"after"`
	Stages     []fragment.StageResult `json:"stages"`
	DurationMs int64                  `json:"duration_ms"`
}

// MinedPayloadFrom builds the mined payload from an index summary.
func MinedPayloadFrom(snapshotID, sessionID string, s fragment.Summary, d time.Duration) IndexMinedPayload {
	return IndexMinedPayload{
		SnapshotID:                snapshotID,
		SessionID:                 sessionID,
		Name:                      s.Name,
		FragmentType:              s.Type.String(),
		FeatureSelection:          s.Selection.String(),
		FoldSize:                  s.FoldSize,
		Compounds:                 s.NumCompounds,
		Fragments:                 s.NumFragments,
		UnfoldedConflicts:         s.UnfoldedConflicts,
		CompoundsWithoutFragments: s.CompoundsWithout,
		DurationMs:                d.Milliseconds(),
	}
}

// FilteredPayloadFrom builds the filtered payload from a filter report.
func FilteredPayloadFrom(snapshotID, sessionID, name string, r *fragment.FilterReport, d time.Duration) IndexFilteredPayload {
	return IndexFilteredPayload{
		SnapshotID: snapshotID,
		SessionID:  sessionID,
		Name:       name,
		Target:     r.Target,
		Before:     r.Initial,
		After:      r.Final(),
		Stages:     r.Stages,
		DurationMs: d.Milliseconds(),
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// Envelope helpers
// ─────────────────────────────────────────────────────────────────────────────

func NewEventEnvelope(eventType string, payload interface{}) (*EventEnvelope, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeSerialization, "failed to marshal payload")
	}
	return &EventEnvelope{
		EventID:       uuid.New().String(),
		EventType:     eventType,
		Source:        eventSource,
		Timestamp:     time.Now().UTC(),
		SchemaVersion: schemaVersion,
		Payload:       data,
	}, nil
}

func (e *EventEnvelope) DecodePayload(target interface{}) error {
	if len(e.Payload) == 0 || string(e.Payload) == "null" {
		return errors.New(errors.ErrCodeValidation, "empty payload")
	}
	if err := json.Unmarshal(e.Payload, target); err != nil {
		return errors.Wrap(err, errors.ErrCodeSerialization, "failed to unmarshal payload")
	}
	return nil
}

// ToMessage encodes the envelope.  The key keeps all events of one session on
// one partition.
func (e *EventEnvelope) ToMessage(topic, key string) (*Message, error) {
	val, err := json.Marshal(e)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeSerialization, "failed to marshal envelope")
	}
	headers := map[string]string{
		"event_type":     e.EventType,
		"source_service": e.Source,
		"schema_version": e.SchemaVersion,
	}
	for k, v := range e.Metadata {
		headers[k] = v
	}
	return &Message{
		Topic:     topic,
		Key:       []byte(key),
		Value:     val,
		Headers:   headers,
		Timestamp: e.Timestamp,
	}, nil
}

func MessageToEventEnvelope(msg kafka.Message) (*EventEnvelope, error) {
	if len(msg.Value) == 0 {
		return nil, errors.New(errors.ErrCodeValidation, "empty message value")
	}
	var env EventEnvelope
	if err := json.Unmarshal(msg.Value, &env); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeSerialization, "failed to unmarshal envelope")
	}
	return &env, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// EventPublisher
// ─────────────────────────────────────────────────────────────────────────────

// Publisher is the subset of Producer used by EventPublisher.
type Publisher interface {
	Publish(ctx context.Context, msg *Message) error
}

// Topics names the destination of each event type.
type Topics struct {
	Mined    string
	Filtered string
}

// EventPublisher sends mining events.
type EventPublisher struct {
	pub    Publisher
	topics Topics
	logger logging.Logger
}

func NewEventPublisher(pub Publisher, topics Topics, logger logging.Logger) *EventPublisher {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &EventPublisher{pub: pub, topics: topics, logger: logger.Named("events")}
}

// Topics returns the configured destinations.
func (p *EventPublisher) Topics() Topics { return p.topics }

func (p *EventPublisher) PublishMined(ctx context.Context, payload IndexMinedPayload) error {
	return p.publish(ctx, p.topics.Mined, EventTypeIndexMined, payload.SessionID, payload)
}

func (p *EventPublisher) PublishFiltered(ctx context.Context, payload IndexFilteredPayload) error {
	return p.publish(ctx, p.topics.Filtered, EventTypeIndexFiltered, payload.SessionID, payload)
}

func (p *EventPublisher) publish(ctx context.Context, topic, eventType, key string, payload interface{}) error {
	env, err := NewEventEnvelope(eventType, payload)
	if err != nil {
		return err
	}
	msg, err := env.ToMessage(topic, key)
	if err != nil {
		return err
	}
	if err := p.pub.Publish(ctx, msg); err != nil {
		p.logger.Warn("event not published",
			logging.String("topic", topic),
			logging.String("event_type", eventType),
			logging.Err(err))
		return err
	}
	p.logger.Debug("event published",
		logging.String("topic", topic),
		logging.String("event_id", env.EventID))
	return nil
}
