// Package queue 负责向消息队列发布分析完成事件
package queue

import (
	"context"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/sirupsen/logrus"

	"github.com/haeter525/quark-engine/internal/config"
)

// RabbitMQ RabbitMQ 客户端
type RabbitMQ struct {
	conn      *amqp.Connection
	channel   *amqp.Channel
	queueName string
	logger    *logrus.Logger

	mu     sync.Mutex
	closed bool
}

// NewRabbitMQ 建立连接并声明队列
func NewRabbitMQ(cfg *config.RabbitMQConfig, logger *logrus.Logger) (*RabbitMQ, error) {
	url := fmt.Sprintf("amqp://%s:%s@%s:%d/%s",
		cfg.User, cfg.Password, cfg.Host, cfg.Port, cfg.VHost)

	conn, err := amqp.DialConfig(url, amqp.Config{
		Heartbeat: 10 * time.Second,
		Locale:    "en_US",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}

	if _, err := channel.QueueDeclare(cfg.Queue, true, false, false, false, nil); err != nil {
		channel.Close()
		conn.Close()
		return nil, fmt.Errorf("failed to declare queue: %w", err)
	}

	logger.WithField("queue", cfg.Queue).Info("RabbitMQ connected")

	return &RabbitMQ{
		conn:      conn,
		channel:   channel,
		queueName: cfg.Queue,
		logger:    logger,
	}, nil
}

// Publish 发布一条持久化消息
func (mq *RabbitMQ) Publish(ctx context.Context, body []byte) error {
	mq.mu.Lock()
	defer mq.mu.Unlock()

	if mq.closed {
		return fmt.Errorf("rabbitmq client is closed")
	}

	return mq.channel.PublishWithContext(ctx, "", mq.queueName, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Body:         body,
	})
}

// Close 关闭通道与连接
func (mq *RabbitMQ) Close() error {
	mq.mu.Lock()
	defer mq.mu.Unlock()

	if mq.closed {
		return nil
	}
	mq.closed = true

	if mq.channel != nil {
		mq.channel.Close()
	}
	if mq.conn != nil {
		return mq.conn.Close()
	}
	return nil
}
