// Package retry 提供带退避策略的重试帮助函数
// 只用于后端进程启动等瞬态失败，进行中的后端查询绝不重试
package retry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
)

// Strategy 重试间隔策略
type Strategy string

const (
	StrategyFixed       Strategy = "fixed"       // 固定间隔
	StrategyExponential Strategy = "exponential" // 指数退避
)

// Config 重试配置
type Config struct {
	MaxAttempts     int           // 最大尝试次数
	InitialInterval time.Duration // 初始间隔
	MaxInterval     time.Duration // 最大间隔
	Strategy        Strategy      // 重试策略
	Logger          *logrus.Logger
}

// DefaultConfig 默认配置
func DefaultConfig() *Config {
	return &Config{
		MaxAttempts:     3,
		InitialInterval: 500 * time.Millisecond,
		MaxInterval:     10 * time.Second,
		Strategy:        StrategyExponential,
		Logger:          logrus.New(),
	}
}

// Func 可重试的操作
type Func func(ctx context.Context) error

// Do 执行带重试的操作
// 上下文取消立即终止，不再继续尝试
func Do(ctx context.Context, config *Config, fn Func) error {
	if config == nil {
		config = DefaultConfig()
	}

	var lastErr error
	interval := config.InitialInterval

	for attempt := 1; attempt <= config.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("retry canceled: %w", err)
		}

		err := fn(ctx)
		if err == nil {
			if attempt > 1 {
				config.Logger.WithField("attempt", attempt).Info("Operation succeeded after retry")
			}
			return nil
		}

		lastErr = err
		config.Logger.WithFields(logrus.Fields{
			"attempt": attempt,
			"max":     config.MaxAttempts,
			"error":   err.Error(),
		}).Warn("Operation failed")

		// 取消与超时不可重试
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return fmt.Errorf("non-retryable error: %w", err)
		}

		if attempt >= config.MaxAttempts {
			break
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("retry canceled during wait: %w", ctx.Err())
		case <-time.After(interval):
		}

		if config.Strategy == StrategyExponential {
			interval *= 2
			if interval > config.MaxInterval {
				interval = config.MaxInterval
			}
		}
	}

	return fmt.Errorf("max attempts (%d) reached: %w", config.MaxAttempts, lastErr)
}

// DoWithResult 执行带重试的操作并返回结果
func DoWithResult[T any](ctx context.Context, config *Config, fn func(ctx context.Context) (T, error)) (T, error) {
	var result T

	err := Do(ctx, config, func(ctx context.Context) error {
		res, err := fn(ctx)
		if err != nil {
			return err
		}
		result = res
		return nil
	})

	return result, err
}

// RetryWithAttempts 指定尝试次数的重试
func RetryWithAttempts(ctx context.Context, attempts int, fn Func) error {
	config := DefaultConfig()
	config.MaxAttempts = attempts
	return Do(ctx, config, fn)
}
