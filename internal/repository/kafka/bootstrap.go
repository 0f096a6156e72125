package kafka

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// BootstrapProducer makes a best effort to create topic and returns a
// producer for it. Topic creation failures are only logged; the writer
// retries on its own once brokers become reachable.
func BootstrapProducer(ctx context.Context, brokers []string, topic string, logger *zap.Logger) *Producer {
	if err := EnsureTopic(ctx, brokers, TopicSpec{
		Name:              topic,
		NumPartitions:     1,
		ReplicationFactor: 1,
		MaxWait:           5 * time.Second,
	}, logger); err != nil && logger != nil {
		logger.Warn("ensure topic", zap.String("topic", topic), zap.Error(err))
	}
	return NewProducer(brokers, topic).WithLogger(logger)
}
