package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestLoad 测试配置文件加载与默认值
func TestLoad(t *testing.T) {
	content := `
server:
  port: 9090
database:
  type: sqlite
  path: /tmp/reports.db
rizin:
  path: /usr/local/bin/rizin
watcher:
  enabled: true
  watch_dir: /srv/samples
log:
  level: debug
`
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "sqlite", cfg.Database.Type)
	assert.Equal(t, "/tmp/reports.db", cfg.Database.Path)
	assert.Equal(t, "/usr/local/bin/rizin", cfg.Rizin.Path)
	assert.True(t, cfg.Watcher.Enabled)
	assert.Equal(t, "/srv/samples", cfg.Watcher.WatchDir)
	assert.Equal(t, "debug", cfg.Log.Level)

	// 未设置的字段回退到默认值
	assert.Equal(t, "release", cfg.Server.Mode)
	assert.Equal(t, 300, cfg.Rizin.QueryTimeout)
	assert.Equal(t, "*.apk", cfg.Watcher.Pattern)
	assert.Equal(t, "text", cfg.Log.Format)
}

// TestLoad_MissingFile 测试配置文件不存在
func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}
