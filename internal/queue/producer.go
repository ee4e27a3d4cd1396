package queue

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/sirupsen/logrus"
)

// AnalysisEvent 分析完成事件
type AnalysisEvent struct {
	TaskID   string `json:"task_id"`
	FileName string `json:"file_name"`
	FilePath string `json:"file_path"`
	Status   string `json:"status"`
	Error    string `json:"error,omitempty"`
}

// Producer 事件生产者
type Producer struct {
	mq     *RabbitMQ
	logger *logrus.Logger
}

// NewProducer 创建生产者
func NewProducer(mq *RabbitMQ, logger *logrus.Logger) *Producer {
	return &Producer{mq: mq, logger: logger}
}

// PublishEvent 发布分析完成事件
func (p *Producer) PublishEvent(ctx context.Context, event *AnalysisEvent) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	if err := p.mq.Publish(ctx, body); err != nil {
		p.logger.WithError(err).WithField("task_id", event.TaskID).Error("Failed to publish event")
		return fmt.Errorf("failed to publish: %w", err)
	}

	p.logger.WithFields(logrus.Fields{
		"task_id": event.TaskID,
		"status":  event.Status,
	}).Info("Analysis event published")

	return nil
}
