package manifest

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// writeStubAapt 写出一个输出固定内容的 aapt 桩脚本
func writeStubAapt(t *testing.T, output string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "aapt")
	script := "#!/bin/sh\ncat <<'EOF'\n" + output + "\nEOF\n"
	require.NoError(t, os.WriteFile(path, []byte(script), 0755))

	return path
}

// TestAaptReader_Permissions 测试 aapt dump permissions 输出的解析
func TestAaptReader_Permissions(t *testing.T) {
	output := "package: com.example.app\n" +
		"uses-permission: name='android.permission.INTERNET'\n" +
		"uses-permission: name='android.permission.READ_PHONE_STATE'\n" +
		"uses-permission: name='android.permission.INTERNET'\n" +
		"permission: com.example.app.permission.C2D_MESSAGE\n" +
		"other-line: ignored\n"

	logger := logrus.New()
	logger.SetLevel(logrus.WarnLevel)

	reader := NewAaptReader(writeStubAapt(t, output), "sample.apk", logger)

	permissions, err := reader.Permissions(context.Background())
	require.NoError(t, err)

	// 重复权限只保留一次，非权限行忽略
	assert.Equal(t, []string{
		"android.permission.INTERNET",
		"android.permission.READ_PHONE_STATE",
		"com.example.app.permission.C2D_MESSAGE",
	}, permissions)
}

// TestAaptReader_CommandFailure 测试 aapt 执行失败
func TestAaptReader_CommandFailure(t *testing.T) {
	logger := logrus.New()
	logger.SetLevel(logrus.WarnLevel)

	reader := NewAaptReader(filepath.Join(t.TempDir(), "missing-aapt"), "sample.apk", logger)

	_, err := reader.Permissions(context.Background())
	assert.Error(t, err)
}

// TestNoPermissions 测试无 manifest 输入的空实现
func TestNoPermissions(t *testing.T) {
	permissions, err := NoPermissions{}.Permissions(context.Background())
	require.NoError(t, err)
	assert.Empty(t, permissions)
}
