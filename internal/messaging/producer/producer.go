package producer

import (
	"context"

	"acctforge/internal/models"
)

// Producer defines the interface for the pipeline lifecycle-event publisher
type Producer interface {
	// Publish sends a single pipeline event to the configured topic
	Publish(ctx context.Context, event *models.PipelineEvent) error

	// Close closes the producer connection
	Close() error
}
