package producer

import (
	"context"
	"log"

	"acctforge/internal/models"
)

// NoopProducer logs events locally when no Kafka brokers are configured.
type NoopProducer struct {
	logger *log.Logger
}

// NewNoopProducer creates a NoopProducer.
func NewNoopProducer(logger *log.Logger) *NoopProducer {
	logger.Println("[NoopProducer] Kafka not configured, pipeline events will only be logged")
	return &NoopProducer{logger: logger}
}

// Publish logs the event and drops it.
func (p *NoopProducer) Publish(_ context.Context, event *models.PipelineEvent) error {
	p.logger.Printf("[NoopProducer] event=%s requester=%s account=%s reason=%q", event.Kind, event.Requester, event.Account, event.Reason)
	return nil
}

// Close is a no-op.
func (p *NoopProducer) Close() error { return nil }

var _ Producer = (*NoopProducer)(nil)
