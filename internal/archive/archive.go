// Package archive 负责识别输入类型并从 APK 容器中抽取分析所需的文件
package archive

import (
	"archive/zip"
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"
)

// ErrUnsupportedInput 输入既不是 dex 也不是 APK 容器
var ErrUnsupportedInput = errors.New("unsupported file type")

// Kind 输入文件类型
type Kind string

const (
	KindDEX Kind = "DEX"
	KindAPK Kind = "APK"
)

// dexMagic dex 文件头，zipMagic 为 APK（zip 容器）文件头
var (
	dexMagic = []byte("dex\n")
	zipMagic = []byte("PK\x03\x04")
)

// DetectKind 按文件头识别输入类型
func DetectKind(path string) (Kind, error) {
	file, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("failed to open input: %w", err)
	}
	defer file.Close()

	magic := make([]byte, 4)
	if _, err := io.ReadFull(file, magic); err != nil {
		return "", fmt.Errorf("%w: %s", ErrUnsupportedInput, path)
	}

	switch {
	case bytes.Equal(magic, dexMagic):
		return KindDEX, nil
	case bytes.Equal(magic, zipMagic):
		return KindAPK, nil
	default:
		return "", fmt.Errorf("%w: %s", ErrUnsupportedInput, path)
	}
}

// Contents 从输入中抽取出的分析素材
type Contents struct {
	Kind         Kind
	DexPaths     []string // 按 classes.dex, classes2.dex, ... 排序
	ManifestPath string   // 仅 APK 输入有值
	TempDir      string   // 抽取目录，APK 输入时由调用方负责清理
}

// Extract 识别输入类型并抽取 dex 与 manifest
// dex 输入直接使用原路径，APK 输入解压 classes*.dex 与 AndroidManifest.xml 到临时目录
func Extract(path, tmpDir string, logger *logrus.Logger) (*Contents, error) {
	kind, err := DetectKind(path)
	if err != nil {
		return nil, err
	}

	if kind == KindDEX {
		return &Contents{Kind: KindDEX, DexPaths: []string{path}}, nil
	}

	if tmpDir == "" {
		tmpDir, err = os.MkdirTemp("", "quark-apk-*")
		if err != nil {
			return nil, fmt.Errorf("failed to create temp dir: %w", err)
		}
	}

	reader, err := zip.OpenReader(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open APK: %w", err)
	}
	defer reader.Close()

	contents := &Contents{Kind: KindAPK, TempDir: tmpDir}

	for _, entry := range reader.File {
		name := entry.Name

		isDex := strings.HasPrefix(name, "classes") && strings.HasSuffix(name, ".dex") && !strings.Contains(name, "/")
		isManifest := name == "AndroidManifest.xml"

		if !isDex && !isManifest {
			continue
		}

		target := filepath.Join(tmpDir, name)
		if err := extractEntry(entry, target); err != nil {
			return nil, fmt.Errorf("failed to extract %s: %w", name, err)
		}

		if isDex {
			contents.DexPaths = append(contents.DexPaths, target)
		} else {
			contents.ManifestPath = target
		}
	}

	if len(contents.DexPaths) == 0 {
		return nil, fmt.Errorf("%w: APK contains no dex", ErrUnsupportedInput)
	}

	// 按数字后缀排序，classes10.dex 排在 classes2.dex 之后
	sort.Slice(contents.DexPaths, func(i, j int) bool {
		return dexOrder(contents.DexPaths[i]) < dexOrder(contents.DexPaths[j])
	})

	logger.WithFields(logrus.Fields{
		"apk":       path,
		"dex_count": len(contents.DexPaths),
	}).Info("APK contents extracted")

	return contents, nil
}

// dexOrder 返回 classesN.dex 的序号，classes.dex 记为 1
func dexOrder(path string) int {
	name := filepath.Base(path)
	digits := strings.TrimSuffix(strings.TrimPrefix(name, "classes"), ".dex")
	if digits == "" {
		return 1
	}

	order, err := strconv.Atoi(digits)
	if err != nil {
		return 1 << 30
	}
	return order
}

// extractEntry 解压单个 zip 条目
func extractEntry(entry *zip.File, target string) error {
	source, err := entry.Open()
	if err != nil {
		return err
	}
	defer source.Close()

	dest, err := os.Create(target)
	if err != nil {
		return err
	}
	defer dest.Close()

	_, err = io.Copy(dest, source)
	return err
}
