package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/IBM/sarama"
	"github.com/aihub/ragbot/internal/config"
	"github.com/aihub/ragbot/internal/logger"
	"go.uber.org/zap"
)

// EventTypeDocumentIngested 入库完成事件类型
const EventTypeDocumentIngested = "document_ingested"

// IngestionEvent 文档入库完成事件
type IngestionEvent struct {
	DocName    string    `json:"doc_name"`
	Source     Source    `json:"source"`
	Table      string    `json:"table"`
	Total      int       `json:"total"`
	Succeeded  int       `json:"succeeded"`
	Failed     int       `json:"failed"`
	ArchiveKey string    `json:"archive_key,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

// EventPublisher 入库事件发布接口
type EventPublisher interface {
	Publish(ctx context.Context, event IngestionEvent) error
	Close() error
}

// KafkaPublisher Kafka入库事件生产者
type KafkaPublisher struct {
	producer sarama.SyncProducer
	topic    string
}

// NewKafkaPublisher 按配置创建同步生产者
func NewKafkaPublisher(cfg config.EventsConfig) (*KafkaPublisher, error) {
	saramaConfig := sarama.NewConfig()
	saramaConfig.Producer.Return.Successes = true
	saramaConfig.Producer.RequiredAcks = sarama.WaitForAll
	saramaConfig.Producer.Retry.Max = 5
	saramaConfig.Producer.Timeout = 10 * time.Second

	producer, err := sarama.NewSyncProducer(cfg.Brokers, saramaConfig)
	if err != nil {
		return nil, fmt.Errorf("创建Kafka生产者失败: %w", err)
	}

	logger.Info("Kafka生产者初始化成功", zap.Strings("brokers", cfg.Brokers), zap.String("topic", cfg.Topic))
	return NewKafkaPublisherWithProducer(producer, cfg.Topic), nil
}

// NewKafkaPublisherWithProducer 使用已有的 producer 创建发布器
func NewKafkaPublisherWithProducer(producer sarama.SyncProducer, topic string) *KafkaPublisher {
	return &KafkaPublisher{producer: producer, topic: topic}
}

// Publish 发送入库事件，以文档名作为分区键
func (p *KafkaPublisher) Publish(ctx context.Context, event IngestionEvent) error {
	if p == nil || p.producer == nil {
		return fmt.Errorf("Kafka生产者未初始化")
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("序列化消息失败: %w", err)
	}

	msg := &sarama.ProducerMessage{
		Topic: p.topic,
		Key:   sarama.StringEncoder(event.DocName),
		Value: sarama.ByteEncoder(data),
		Headers: []sarama.RecordHeader{
			{Key: []byte("event_type"), Value: []byte(EventTypeDocumentIngested)},
			{Key: []byte("table"), Value: []byte(event.Table)},
			{Key: []byte("succeeded"), Value: []byte(strconv.Itoa(event.Succeeded))},
		},
	}

	partition, offset, err := p.producer.SendMessage(msg)
	if err != nil {
		logger.Error("发送Kafka消息失败", zap.Error(err), zap.String("doc_name", event.DocName))
		return fmt.Errorf("发送消息失败: %w", err)
	}

	logger.Debug("Kafka消息发送成功",
		zap.Int32("partition", partition),
		zap.Int64("offset", offset),
		zap.String("doc_name", event.DocName))
	return nil
}

// Close 关闭生产者
func (p *KafkaPublisher) Close() error {
	if p != nil && p.producer != nil {
		return p.producer.Close()
	}
	return nil
}
