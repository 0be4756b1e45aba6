package producers

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"
)

const (
	partitionReadAttempts = 5
	partitionReadBackoff  = 2 * time.Second
)

// createKafkaTopicIfNotExists probes the topic's partitions and creates the
// topic when none are visible. Partition reads are retried because brokers
// may still be electing leaders right after startup.
func createKafkaTopicIfNotExists(conn *kafka.Conn, topicName string, numPartitions int, replicationFactor int, log *slog.Logger) error {
	var partitions []kafka.Partition
	var err error

	log.Info("Checking Kafka topic", "topic", topicName)
	for attempt := 1; attempt <= partitionReadAttempts; attempt++ {
		partitions, err = conn.ReadPartitions(topicName)
		if err == nil {
			break
		}
		log.Warn("Partition read failed, retrying", "topic", topicName, "attempt", attempt, "error", err)
		time.Sleep(partitionReadBackoff)
	}

	if len(partitions) > 0 {
		if err != nil {
			log.Warn("Topic exists but the last partition read errored", "topic", topicName, "error", err)
		} else {
			log.Info("Kafka topic already exists", "topic", topicName)
		}
		return nil
	}

	log.Info("Kafka topic not visible, creating it", "topic", topicName, "last_read_error", err)
	topicConfig := kafka.TopicConfig{
		Topic:             topicName,
		NumPartitions:     numPartitions,
		ReplicationFactor: replicationFactor,
	}
	if topicConfig.NumPartitions == 0 {
		topicConfig.NumPartitions = 1
	}
	if topicConfig.ReplicationFactor == 0 {
		topicConfig.ReplicationFactor = 1
	}

	if err := conn.CreateTopics(topicConfig); err != nil {
		return fmt.Errorf("failed to create kafka topic %s: %w", topicName, err)
	}
	log.Info("Created Kafka topic", "topic", topicName)
	return nil
}
