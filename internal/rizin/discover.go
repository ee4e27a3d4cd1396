package rizin

import (
	"context"
	"fmt"
	"os/exec"
	"regexp"
	"strings"
	"time"
)

var versionPattern = regexp.MustCompile(`[0-9]+\.[0-9]+\.[0-9]+`)

// Version 执行 rizin -v 并提取版本号
func Version(rizinPath string) (string, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	output, err := exec.CommandContext(ctx, rizinPath, "-v").Output()
	if err != nil {
		return "", fmt.Errorf("failed to run %s -v: %w", rizinPath, err)
	}

	matched := versionPattern.FindString(string(output))
	if matched == "" {
		return "", fmt.Errorf("cannot parse rizin version from %q", strings.TrimSpace(string(output)))
	}

	return matched, nil
}

// Find 定位可用的 rizin 可执行文件
// 配置了显式路径时优先使用，否则搜索 PATH，并验证其可以运行
func Find(configured string) (string, error) {
	candidate := configured
	if candidate == "" {
		found, err := exec.LookPath("rizin")
		if err != nil {
			return "", fmt.Errorf("rizin not found in PATH: %w", err)
		}
		candidate = found
	}

	if _, err := Version(candidate); err != nil {
		return "", fmt.Errorf("rizin at %s is not usable: %w", candidate, err)
	}

	return candidate, nil
}
