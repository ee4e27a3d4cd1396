package repository

import (
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/driver/mysql"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/haeter525/quark-engine/internal/config"
	"github.com/haeter525/quark-engine/internal/domain"
)

// InitDB 初始化数据库连接并迁移表结构
func InitDB(cfg *config.DatabaseConfig, log *logrus.Logger) (*gorm.DB, error) {
	var dialector gorm.Dialector

	if cfg.Type == "mysql" {
		dsn := fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=utf8mb4&parseTime=True&loc=Local",
			cfg.User, cfg.Password, cfg.Host, cfg.Port, cfg.DBName)
		dialector = mysql.Open(dsn)
	} else {
		// SQLite (fallback)
		path := cfg.Path
		if path == "" {
			path = "./data/reports.db"
		}
		dialector = sqlite.Open(path)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
		PrepareStmt: true,
	})
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}

	sqlDB.SetMaxOpenConns(50)
	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetConnMaxLifetime(time.Hour)

	log.Info("Running database migrations...")
	if err := db.AutoMigrate(&domain.AnalysisReport{}); err != nil {
		return nil, err
	}
	log.Info("Database migrations completed")

	return db, nil
}
