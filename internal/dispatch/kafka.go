package dispatch

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/ijol/sclog-core/pkg/kafka"
)

// kafkaBatchEnvelope matches the shape KafkaProducer.PublishBatch decodes
// via its JSON round-trip: a batch id/source/tenant wrapper around a list
// of events, each carrying its own event_id/event_type/data.
type kafkaBatchEnvelope struct {
	BatchID  string                   `json:"batch_id"`
	Source   string                   `json:"source"`
	TenantID string                   `json:"tenant_id"`
	Events   []kafkaBatchEnvelopeItem `json:"events"`
}

type kafkaBatchEnvelopeItem struct {
	EventID   string            `json:"event_id"`
	EventType string            `json:"event_type"`
	Data      map[string]string `json:"data"`
}

// KafkaDataProvider adapts dispatch batches onto the shared analytics_events
// stream via the existing KafkaProducer. It is a write-only sink: the
// original semantics of fetching/purging/view-management belong to the
// durable store on the other side of the stream, not the producer.
type KafkaDataProvider struct {
	producer *kafka.KafkaProducer
	source   string
}

// NewKafkaDataProvider wraps an existing KafkaProducer. source tags every
// published batch (e.g. "sclog-core").
func NewKafkaDataProvider(producer *kafka.KafkaProducer, source string) *KafkaDataProvider {
	return &KafkaDataProvider{producer: producer, source: source}
}

func (p *KafkaDataProvider) IsConnected() bool {
	return p.producer.HealthCheck() == nil
}

func (p *KafkaDataProvider) ProcessData(ctx context.Context, batch []Item) error {
	return p.producer.PublishBatch(buildKafkaEnvelope(p.source, batch))
}

func buildKafkaEnvelope(source string, batch []Item) kafkaBatchEnvelope {
	envelope := kafkaBatchEnvelope{
		BatchID: uuid.NewString(),
		Source:  source,
		Events:  make([]kafkaBatchEnvelopeItem, 0, len(batch)),
	}
	for _, item := range batch {
		envelope.Events = append(envelope.Events, kafkaBatchEnvelopeItem{
			EventID:   uuid.NewString(),
			EventType: item.Sheet,
			Data:      item.Data,
		})
	}
	return envelope
}

var errKafkaReadNotSupported = errors.New("kafka stream provider is write-only and does not support this operation")

func (p *KafkaDataProvider) FetchData(ctx context.Context, sheet, username string) ([]map[string]string, error) {
	return nil, errKafkaReadNotSupported
}

func (p *KafkaDataProvider) Purge(ctx context.Context, sheet string) error {
	return errKafkaReadNotSupported
}

func (p *KafkaDataProvider) FetchRecordHashes(ctx context.Context, sheet string) (map[string]string, error) {
	return nil, errKafkaReadNotSupported
}

func (p *KafkaDataProvider) EnsureDynamicViews(ctx context.Context, views map[string]string) error {
	return errKafkaReadNotSupported
}

func (p *KafkaDataProvider) ViewExists(ctx context.Context, name string) (bool, error) {
	return false, errKafkaReadNotSupported
}
