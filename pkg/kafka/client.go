// Package kafka 提供了与 Kafka 消息队列交互的功能。
package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"agri-ai-go/internal/config"
	"agri-ai-go/pkg/log"
	"agri-ai-go/pkg/tasks"

	"github.com/segmentio/kafka-go"
)

// EventPublisher 投递扫描完成事件
type EventPublisher interface {
	PublishScan(ctx context.Context, event tasks.ScanCompletedEvent) error
	Close() error
}

type producer struct {
	writer *kafka.Writer
}

// NewProducer 初始化 Kafka 生产者，Brokers 以逗号分隔。
func NewProducer(cfg config.KafkaConfig) EventPublisher {
	brokers := strings.Split(cfg.Brokers, ",")
	for i := range brokers {
		brokers[i] = strings.TrimSpace(brokers[i])
	}
	w := &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  cfg.Topic,
		Balancer:               &kafka.Hash{},
		AllowAutoTopicCreation: true,
	}
	log.Infof("Kafka 生产者初始化成功，主题 '%s'", cfg.Topic)
	return &producer{writer: w}
}

// PublishScan 以设备 ID 为 key 投递事件，同一设备的事件保持有序。
func (p *producer) PublishScan(ctx context.Context, event tasks.ScanCompletedEvent) error {
	value, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal scan event: %w", err)
	}
	err = p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(event.DeviceID),
		Value: value,
	})
	if err != nil {
		return fmt.Errorf("failed to write scan event: %w", err)
	}
	return nil
}

func (p *producer) Close() error {
	return p.writer.Close()
}
