// Package kafka 将每步训练指标以 JSON 记录的形式发布到 Kafka,
// 供下游的监控面板与离线分析消费。
package kafka

import (
	"context"
	"encoding/json"

	"github.com/IBM/sarama"

	"github.com/safealign/safealign/internal/platform/training"
	"github.com/safealign/safealign/pkg/errors"
)

// Publisher 实现 training.StepPublisher,使用同步生产者保证
// 指标记录按步序落盘。
type Publisher struct {
	producer sarama.SyncProducer
	topic    string
}

// PublisherConfig 定义 Kafka 发布器配置
type PublisherConfig struct {
	Brokers []string
	Topic   string
}

// NewPublisher 创建 Kafka 指标发布器
func NewPublisher(cfg PublisherConfig) (*Publisher, error) {
	saramaCfg := sarama.NewConfig()
	saramaCfg.Producer.RequiredAcks = sarama.WaitForAll
	saramaCfg.Producer.Retry.Max = 3
	saramaCfg.Producer.Return.Successes = true

	producer, err := sarama.NewSyncProducer(cfg.Brokers, saramaCfg)
	if err != nil {
		return nil, errors.WrapCode(err, errors.ErrInfraPublish)
	}

	return &Publisher{producer: producer, topic: cfg.Topic}, nil
}

// Publish 将一步的指标记录发送到主题,以 run_id 为分区键,
// 保证同一 run 的记录保序。
func (p *Publisher) Publish(ctx context.Context, record *training.StepRecord) error {
	if err := ctx.Err(); err != nil {
		return errors.Wrap(err, errors.CodeCancelled, "publish cancelled")
	}

	payload, err := json.Marshal(record)
	if err != nil {
		return errors.WrapCode(err, errors.ErrInfraPublish)
	}

	msg := &sarama.ProducerMessage{
		Topic: p.topic,
		Key:   sarama.StringEncoder(record.RunID),
		Value: sarama.ByteEncoder(payload),
	}

	if _, _, err := p.producer.SendMessage(msg); err != nil {
		return errors.WrapCode(err, errors.ErrInfraPublish)
	}
	return nil
}

// Close 关闭底层生产者
func (p *Publisher) Close() error {
	return p.producer.Close()
}
