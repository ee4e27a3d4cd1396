// Package manifest 提供 AndroidManifest 权限的读取
// 二进制 AXML 的解析交给外部工具，本包只定义契约与 aapt 实现
package manifest

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"

	"github.com/sirupsen/logrus"
)

// Reader 权限读取契约
type Reader interface {
	// Permissions 返回样本声明的全部权限
	Permissions(ctx context.Context) ([]string, error)
}

// AaptReader 基于 aapt dump permissions 的 Reader 实现
type AaptReader struct {
	aaptPath string
	apkPath  string
	logger   *logrus.Logger
}

// NewAaptReader 创建 aapt 实现，aaptPath 为空时从 PATH 查找
func NewAaptReader(aaptPath, apkPath string, logger *logrus.Logger) *AaptReader {
	if aaptPath == "" {
		aaptPath = "aapt"
	}
	return &AaptReader{aaptPath: aaptPath, apkPath: apkPath, logger: logger}
}

// Permissions 执行 aapt dump permissions 并解析输出
func (r *AaptReader) Permissions(ctx context.Context) ([]string, error) {
	output, err := exec.CommandContext(ctx, r.aaptPath, "dump", "permissions", r.apkPath).Output()
	if err != nil {
		return nil, fmt.Errorf("failed to dump permissions: %w", err)
	}

	seen := make(map[string]bool)
	var permissions []string

	scanner := bufio.NewScanner(bytes.NewReader(output))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())

		// aapt 输出形如 uses-permission: name='android.permission.INTERNET'
		if !strings.HasPrefix(line, "uses-permission:") && !strings.HasPrefix(line, "permission:") {
			continue
		}

		name := line
		if index := strings.Index(line, "name='"); index >= 0 {
			name = line[index+len("name='"):]
			if end := strings.Index(name, "'"); end >= 0 {
				name = name[:end]
			}
		} else if index := strings.Index(line, ": "); index >= 0 {
			name = line[index+2:]
		}

		if name != "" && !seen[name] {
			seen[name] = true
			permissions = append(permissions, name)
		}
	}

	r.logger.WithFields(logrus.Fields{
		"apk":         r.apkPath,
		"permissions": len(permissions),
	}).Debug("Permissions extracted")

	return permissions, nil
}

// NoPermissions 无 manifest 输入（单个 dex）使用的空实现
type NoPermissions struct{}

func (NoPermissions) Permissions(context.Context) ([]string, error) {
	return nil, nil
}
