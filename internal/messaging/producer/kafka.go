package producer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/segmentio/kafka-go"

	"acctforge/config"
	"acctforge/internal/models"
)

// KafkaProducer implements the Producer interface
type KafkaProducer struct {
	writer *kafka.Writer
	logger *log.Logger
	topic  string
}

// NewKafkaProducer creates a new KafkaProducer
func NewKafkaProducer(cfg config.KafkaProducerConfig, logger *log.Logger) (*KafkaProducer, error) {
	if len(cfg.Brokers) == 0 || cfg.Topic == "" {
		return nil, errors.New("kafka producer configuration incomplete: both brokers and topic are required")
	}

	// Parse required_acks setting
	var requiredAcks kafka.RequiredAcks
	switch cfg.RequiredAcks {
	case "none":
		requiredAcks = kafka.RequireNone
	case "all":
		requiredAcks = kafka.RequireAll
	default:
		requiredAcks = kafka.RequireOne // Default to wait for leader
	}

	writeTimeout := cfg.WriteTimeout
	if writeTimeout == 0 {
		writeTimeout = 5 * time.Second
	}
	readTimeout := cfg.ReadTimeout
	if readTimeout == 0 {
		readTimeout = 5 * time.Second
	}

	w := &kafka.Writer{
		Addr:     kafka.TCP(cfg.Brokers...),
		Topic:    cfg.Topic,
		Balancer: &kafka.LeastBytes{},

		RequiredAcks: requiredAcks,
		Async:        cfg.Async,

		WriteTimeout: writeTimeout,
		ReadTimeout:  readTimeout,

		ErrorLogger: kafka.LoggerFunc(func(msg string, args ...interface{}) {
			logger.Printf("Kafka Writer Error: "+msg, args...)
		}),
	}

	logger.Printf("Kafka producer created, connected to Brokers: %v, Topic: %s", cfg.Brokers, cfg.Topic)

	return &KafkaProducer{
		writer: w,
		logger: logger,
		topic:  cfg.Topic,
	}, nil
}

// Publish sends one pipeline event, keyed by requester for partitioning
func (p *KafkaProducer) Publish(ctx context.Context, event *models.PipelineEvent) error {
	eventBytes, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to serialize pipeline event: %w", err)
	}

	kafkaMsg := kafka.Message{
		Key:   []byte(event.Requester),
		Value: eventBytes,
	}

	err = p.writer.WriteMessages(ctx, kafkaMsg)
	if err != nil {
		p.logger.Printf("Failed to send Kafka event (EventID: %s): %v", event.EventID, err)
		return fmt.Errorf("failed to write to Kafka buffer: %w", err)
	}
	return nil
}

// Close closes the producer
func (p *KafkaProducer) Close() error {
	p.logger.Println("Closing Kafka producer (and flushing buffer)...")
	return p.writer.Close() // Close will attempt to send remaining messages in buffer
}

var _ Producer = (*KafkaProducer)(nil) // Compile-time interface check
