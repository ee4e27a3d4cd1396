package domain

import (
	"time"
)

// 分析任务状态
const (
	StatusPending   = "pending"
	StatusAnalyzing = "analyzing"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

// AnalysisReport 一次样本分析的持久化记录
type AnalysisReport struct {
	ID        uint   `gorm:"primaryKey" json:"id"`
	TaskID    string `gorm:"uniqueIndex;size:64" json:"task_id"`
	FileName  string `gorm:"size:255" json:"file_name"`
	FilePath  string `gorm:"size:512" json:"file_path"`
	SHA256    string `gorm:"size:64;index" json:"sha256"`
	Kind      string `gorm:"size:8" json:"kind"` // DEX / APK
	Status    string `gorm:"size:16;index" json:"status"`
	Error     string `gorm:"type:text" json:"error,omitempty"`
	DexCount  int    `json:"dex_count"`
	Duration  int64  `json:"duration_ms"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// 提取结果摘要
	PermissionCount int `json:"permission_count"`
	MethodCount     int `json:"method_count"`
	APICount        int `json:"api_count"`
	CustomCount     int `json:"custom_count"`
	StringCount     int `json:"string_count"`

	// 完整权限列表，JSON 编码
	Permissions string `gorm:"type:text" json:"-"`
}
