package config

import (
	"github.com/spf13/viper"
)

type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	RabbitMQ RabbitMQConfig `mapstructure:"rabbitmq"`
	Rizin    RizinConfig    `mapstructure:"rizin"`
	Watcher  WatcherConfig  `mapstructure:"watcher"`
	Log      LogConfig      `mapstructure:"log"`
	DataDir  string         `mapstructure:"data_dir"`
}

type ServerConfig struct {
	Port int    `mapstructure:"port"`
	Mode string `mapstructure:"mode"` // debug, release
}

type DatabaseConfig struct {
	Type     string `mapstructure:"type"` // mysql, sqlite
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"db_name"`
	Path     string `mapstructure:"path"` // sqlite 数据库文件路径
}

type RabbitMQConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	VHost    string `mapstructure:"vhost"`
	Queue    string `mapstructure:"queue"`
}

// RizinConfig 反汇编后端配置
type RizinConfig struct {
	Path         string `mapstructure:"path"`          // rizin 可执行文件路径，空则搜索 PATH
	AaptPath     string `mapstructure:"aapt_path"`     // aapt 可执行文件路径，空则搜索 PATH
	QueryTimeout int    `mapstructure:"query_timeout"` // seconds - 单次后端查询超时
	TempDir      string `mapstructure:"temp_dir"`      // APK 解压目录
}

// WatcherConfig 样本目录监控配置
type WatcherConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	WatchDir string `mapstructure:"watch_dir"`
	Pattern  string `mapstructure:"pattern"` // 文件匹配模式 (如 "*.apk")
}

type LogConfig struct {
	Level  string `mapstructure:"level"`  // debug, info, warn, error
	Format string `mapstructure:"format"` // json, text
}

func Load(path string) (*Config, error) {
	viper.SetConfigFile(path)
	viper.SetConfigType("yaml")

	// 环境变量覆盖（支持嵌套配置）
	viper.AutomaticEnv()

	viper.BindEnv("rabbitmq.host", "RABBITMQ_HOST")
	viper.BindEnv("rabbitmq.port", "RABBITMQ_PORT")
	viper.BindEnv("rabbitmq.user", "RABBITMQ_USER")
	viper.BindEnv("rabbitmq.password", "RABBITMQ_PASS")

	viper.BindEnv("database.host", "MYSQL_HOST")
	viper.BindEnv("database.port", "MYSQL_PORT")
	viper.BindEnv("database.user", "MYSQL_USER")
	viper.BindEnv("database.password", "MYSQL_PASS")
	viper.BindEnv("database.db_name", "MYSQL_DB")

	viper.BindEnv("rizin.path", "RIZIN_PATH")
	viper.BindEnv("rizin.aapt_path", "AAPT_PATH")

	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.mode", "release")
	viper.SetDefault("database.type", "sqlite")
	viper.SetDefault("database.path", "./data/reports.db")
	viper.SetDefault("rizin.query_timeout", 300)
	viper.SetDefault("watcher.pattern", "*.apk")
	viper.SetDefault("log.level", "info")
	viper.SetDefault("log.format", "text")

	if err := viper.ReadInConfig(); err != nil {
		return nil, err
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}
