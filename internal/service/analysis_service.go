// Package service 负责调度一次完整的样本分析：
// 打开提取引擎、汇总提取结果、持久化报告并发布事件
package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/haeter525/quark-engine/internal/apkinfo"
	"github.com/haeter525/quark-engine/internal/config"
	"github.com/haeter525/quark-engine/internal/domain"
	"github.com/haeter525/quark-engine/internal/queue"
	"github.com/haeter525/quark-engine/internal/repository"
)

// Broadcaster 向外推送分析进度事件，由 websocket hub 实现
type Broadcaster interface {
	Broadcast(event any)
}

// MetricsObserver 记录分析结果指标，由 Prometheus 收集器实现
type MetricsObserver interface {
	ObserveAnalysis(status string, duration time.Duration, methodCount int)
	SessionOpened()
	SessionClosed()
}

// AnalysisService 样本分析调度器
type AnalysisService struct {
	cfg      *config.Config
	repo     *repository.ReportRepository
	producer *queue.Producer // 可为 nil
	hub      Broadcaster     // 可为 nil
	metrics  MetricsObserver // 可为 nil
	logger   *logrus.Logger

	mu      sync.Mutex
	facades map[string]apkinfo.Apkinfo // taskID -> 活跃的提取引擎
}

// NewAnalysisService 创建分析调度器
func NewAnalysisService(cfg *config.Config, repo *repository.ReportRepository, producer *queue.Producer, hub Broadcaster, metrics MetricsObserver, logger *logrus.Logger) *AnalysisService {
	return &AnalysisService{
		cfg:      cfg,
		repo:     repo,
		producer: producer,
		hub:      hub,
		metrics:  metrics,
		logger:   logger,
		facades:  make(map[string]apkinfo.Apkinfo),
	}
}

// Analyze 对一个样本执行完整提取并持久化报告
// 单个 dex 会话的失败不影响其余 dex 的结果
func (s *AnalysisService) Analyze(ctx context.Context, path string) (*domain.AnalysisReport, error) {
	taskID := uuid.New().String()
	startTime := time.Now()

	if s.cfg.Rizin.QueryTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(s.cfg.Rizin.QueryTimeout)*time.Second)
		defer cancel()
	}

	report := &domain.AnalysisReport{
		TaskID:   taskID,
		FileName: filepath.Base(path),
		FilePath: path,
		Status:   domain.StatusAnalyzing,
	}
	if err := s.repo.Create(report); err != nil {
		return nil, err
	}

	s.broadcast(map[string]any{"task_id": taskID, "status": domain.StatusAnalyzing})

	s.logger.WithFields(logrus.Fields{
		"task_id": taskID,
		"file":    path,
	}).Info("Starting analysis")

	info, err := apkinfo.NewRizinApkinfo(path, apkinfo.Options{
		RizinPath: s.cfg.Rizin.Path,
		AaptPath:  s.cfg.Rizin.AaptPath,
		TempDir:   s.cfg.Rizin.TempDir,
		Logger:    s.logger,
	})
	if err != nil {
		return s.fail(ctx, report, err)
	}

	if err := s.fillReport(ctx, report, info); err != nil {
		info.Close()
		return s.fail(ctx, report, err)
	}

	report.Status = domain.StatusCompleted
	report.Duration = time.Since(startTime).Milliseconds()
	if err := s.repo.Update(report); err != nil {
		info.Close()
		return nil, err
	}

	// 保留活跃引擎供后续查询接口使用
	s.mu.Lock()
	s.facades[taskID] = info
	s.mu.Unlock()

	if s.metrics != nil {
		s.metrics.SessionOpened()
		s.metrics.ObserveAnalysis(report.Status,
			time.Duration(report.Duration)*time.Millisecond, report.MethodCount)
	}

	s.publish(ctx, report)
	s.broadcast(report)

	s.logger.WithFields(logrus.Fields{
		"task_id":  taskID,
		"methods":  report.MethodCount,
		"duration": report.Duration,
	}).Info("Analysis completed")

	return report, nil
}

// fillReport 汇总提取结果
func (s *AnalysisService) fillReport(ctx context.Context, report *domain.AnalysisReport, info apkinfo.Apkinfo) error {
	if rz, ok := info.(*apkinfo.RizinApkinfo); ok {
		report.DexCount = rz.DexCount()
		report.Kind = rz.Kind()
	}

	if sum, err := fileSHA256(report.FilePath); err == nil {
		report.SHA256 = sum
	} else {
		s.logger.WithError(err).Warn("Failed to hash sample")
	}

	permissions, err := info.Permissions(ctx)
	if err != nil {
		s.logger.WithError(err).Warn("Failed to read permissions")
	} else {
		report.PermissionCount = len(permissions)
		if encoded, err := json.Marshal(permissions); err == nil {
			report.Permissions = string(encoded)
		}
	}

	all, err := info.AllMethods(ctx)
	if err != nil {
		return fmt.Errorf("method extraction failed: %w", err)
	}
	report.MethodCount = len(all)

	apis, err := info.AndroidAPIs(ctx)
	if err != nil {
		return err
	}
	report.APICount = len(apis)

	custom, err := info.CustomMethods(ctx)
	if err != nil {
		return err
	}
	report.CustomCount = len(custom)

	strs, err := info.GetStrings(ctx)
	if err != nil {
		s.logger.WithError(err).Warn("Failed to list strings")
	} else {
		report.StringCount = len(strs)
	}

	return nil
}

// fail 标记报告失败并发布事件
func (s *AnalysisService) fail(ctx context.Context, report *domain.AnalysisReport, cause error) (*domain.AnalysisReport, error) {
	report.Status = domain.StatusFailed
	report.Error = cause.Error()

	if err := s.repo.Update(report); err != nil {
		s.logger.WithError(err).Error("Failed to persist failed report")
	}

	if s.metrics != nil {
		s.metrics.ObserveAnalysis(report.Status, 0, 0)
	}

	s.publish(ctx, report)
	s.broadcast(report)

	return report, cause
}

// publish 把报告状态发布到消息队列
func (s *AnalysisService) publish(ctx context.Context, report *domain.AnalysisReport) {
	if s.producer == nil {
		return
	}

	event := &queue.AnalysisEvent{
		TaskID:   report.TaskID,
		FileName: report.FileName,
		FilePath: report.FilePath,
		Status:   report.Status,
		Error:    report.Error,
	}
	if err := s.producer.PublishEvent(ctx, event); err != nil {
		s.logger.WithError(err).Warn("Failed to publish analysis event")
	}
}

// broadcast 把事件推送给 websocket 客户端
func (s *AnalysisService) broadcast(event any) {
	if s.hub != nil {
		s.hub.Broadcast(event)
	}
}

// Facade 返回指定任务的活跃提取引擎
func (s *AnalysisService) Facade(taskID string) (apkinfo.Apkinfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	info, ok := s.facades[taskID]
	if !ok {
		return nil, fmt.Errorf("no active session for task %s", taskID)
	}
	return info, nil
}

// GetReport 按任务 ID 查询报告
func (s *AnalysisService) GetReport(taskID string) (*domain.AnalysisReport, error) {
	return s.repo.GetByTaskID(taskID)
}

// ListReports 分页列出报告
func (s *AnalysisService) ListReports(offset, limit int) ([]domain.AnalysisReport, int64, error) {
	return s.repo.List(offset, limit)
}

// Close 关闭全部活跃引擎
func (s *AnalysisService) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for taskID, info := range s.facades {
		if err := info.Close(); err != nil {
			s.logger.WithError(err).WithField("task_id", taskID).Warn("Failed to close session")
		}
		if s.metrics != nil {
			s.metrics.SessionClosed()
		}
	}
	s.facades = make(map[string]apkinfo.Apkinfo)
}

// fileSHA256 计算样本文件的 SHA256
func fileSHA256(path string) (string, error) {
	file, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer file.Close()

	hash := sha256.New()
	if _, err := io.Copy(hash, file); err != nil {
		return "", err
	}

	return hex.EncodeToString(hash.Sum(nil)), nil
}
