package repository

import (
	"fmt"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/haeter525/quark-engine/internal/domain"
)

// ReportRepository 分析报告的数据访问层
type ReportRepository struct {
	db     *gorm.DB
	logger *logrus.Logger
}

// NewReportRepository 创建报告仓库
func NewReportRepository(db *gorm.DB, logger *logrus.Logger) *ReportRepository {
	return &ReportRepository{db: db, logger: logger}
}

// Create 新建报告记录
func (r *ReportRepository) Create(report *domain.AnalysisReport) error {
	if err := r.db.Create(report).Error; err != nil {
		return fmt.Errorf("failed to create report: %w", err)
	}
	return nil
}

// Update 保存报告记录
func (r *ReportRepository) Update(report *domain.AnalysisReport) error {
	if err := r.db.Save(report).Error; err != nil {
		return fmt.Errorf("failed to update report: %w", err)
	}
	return nil
}

// GetByTaskID 按任务 ID 查询报告
func (r *ReportRepository) GetByTaskID(taskID string) (*domain.AnalysisReport, error) {
	var report domain.AnalysisReport
	if err := r.db.Where("task_id = ?", taskID).First(&report).Error; err != nil {
		return nil, err
	}
	return &report, nil
}

// List 分页列出报告，按创建时间倒序
func (r *ReportRepository) List(offset, limit int) ([]domain.AnalysisReport, int64, error) {
	var reports []domain.AnalysisReport
	var total int64

	if err := r.db.Model(&domain.AnalysisReport{}).Count(&total).Error; err != nil {
		return nil, 0, err
	}

	err := r.db.Order("created_at DESC").Offset(offset).Limit(limit).Find(&reports).Error
	if err != nil {
		return nil, 0, err
	}

	return reports, total, nil
}
