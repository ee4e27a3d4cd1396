package archive

import (
	"archive/zip"
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// writeDexFixture 写出一个只有文件头有效的 dex 测试文件
func writeDexFixture(t *testing.T, dir, name string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	content := append([]byte("dex\n035\x00"), make([]byte, 32)...)
	require.NoError(t, os.WriteFile(path, content, 0644))
	return path
}

// writeAPKFixture 写出一个包含指定条目的 APK（zip）测试文件
func writeAPKFixture(t *testing.T, dir string, entries map[string][]byte) string {
	t.Helper()
	path := filepath.Join(dir, "sample.apk")

	file, err := os.Create(path)
	require.NoError(t, err)
	defer file.Close()

	writer := zip.NewWriter(file)
	for name, content := range entries {
		entry, err := writer.Create(name)
		require.NoError(t, err)
		_, err = entry.Write(content)
		require.NoError(t, err)
	}
	require.NoError(t, writer.Close())

	return path
}

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.WarnLevel)
	return logger
}

// TestDetectKind 测试按文件头识别输入类型
func TestDetectKind(t *testing.T) {
	dir := t.TempDir()

	dexPath := writeDexFixture(t, dir, "classes.dex")
	apkPath := writeAPKFixture(t, dir, map[string][]byte{
		"classes.dex": []byte("dex\n035\x00"),
	})

	kind, err := DetectKind(dexPath)
	require.NoError(t, err)
	assert.Equal(t, KindDEX, kind)

	kind, err = DetectKind(apkPath)
	require.NoError(t, err)
	assert.Equal(t, KindAPK, kind)
}

// TestDetectKind_Unsupported 测试既不是 dex 也不是 APK 的输入
func TestDetectKind_Unsupported(t *testing.T) {
	dir := t.TempDir()

	textPath := filepath.Join(dir, "note.txt")
	require.NoError(t, os.WriteFile(textPath, []byte("not a sample at all"), 0644))

	_, err := DetectKind(textPath)
	assert.ErrorIs(t, err, ErrUnsupportedInput)

	// 不足 4 字节的文件同样拒绝
	tinyPath := filepath.Join(dir, "tiny.bin")
	require.NoError(t, os.WriteFile(tinyPath, []byte("PK"), 0644))

	_, err = DetectKind(tinyPath)
	assert.ErrorIs(t, err, ErrUnsupportedInput)
}

// TestExtract_Dex 测试 dex 输入直接使用原路径
func TestExtract_Dex(t *testing.T) {
	dir := t.TempDir()
	dexPath := writeDexFixture(t, dir, "classes.dex")

	contents, err := Extract(dexPath, "", quietLogger())
	require.NoError(t, err)

	assert.Equal(t, KindDEX, contents.Kind)
	assert.Equal(t, []string{dexPath}, contents.DexPaths)
	assert.Empty(t, contents.ManifestPath)
	assert.Empty(t, contents.TempDir)
}

// TestExtract_APK 测试 APK 输入抽取全部 dex 与 manifest
func TestExtract_APK(t *testing.T) {
	dir := t.TempDir()
	dexContent := []byte("dex\n035\x00")

	apkPath := writeAPKFixture(t, dir, map[string][]byte{
		"classes.dex":         dexContent,
		"classes2.dex":        dexContent,
		"AndroidManifest.xml": []byte("binary-axml"),
		"resources.arsc":      []byte("ignored"),
		"lib/arm64/app.so":    []byte("ignored"),
		"assets/classes.dex":  dexContent, // 子目录中的 dex 不抽取
	})

	tmpDir := t.TempDir()
	contents, err := Extract(apkPath, tmpDir, quietLogger())
	require.NoError(t, err)

	assert.Equal(t, KindAPK, contents.Kind)
	assert.Equal(t, tmpDir, contents.TempDir)
	assert.Equal(t, []string{
		filepath.Join(tmpDir, "classes.dex"),
		filepath.Join(tmpDir, "classes2.dex"),
	}, contents.DexPaths)
	assert.Equal(t, filepath.Join(tmpDir, "AndroidManifest.xml"), contents.ManifestPath)

	for _, dexPath := range contents.DexPaths {
		extracted, err := os.ReadFile(dexPath)
		require.NoError(t, err)
		assert.Equal(t, dexContent, extracted)
	}
}

// TestExtract_DexNumericOrder 测试 dex 按数字后缀排序
func TestExtract_DexNumericOrder(t *testing.T) {
	dir := t.TempDir()
	dexContent := []byte("dex\n035\x00")

	apkPath := writeAPKFixture(t, dir, map[string][]byte{
		"classes10.dex": dexContent,
		"classes2.dex":  dexContent,
		"classes.dex":   dexContent,
	})

	tmpDir := t.TempDir()
	contents, err := Extract(apkPath, tmpDir, quietLogger())
	require.NoError(t, err)

	assert.Equal(t, []string{
		filepath.Join(tmpDir, "classes.dex"),
		filepath.Join(tmpDir, "classes2.dex"),
		filepath.Join(tmpDir, "classes10.dex"),
	}, contents.DexPaths)
}

// TestExtract_APKWithoutDex 测试不含 dex 的 APK 被拒绝
func TestExtract_APKWithoutDex(t *testing.T) {
	dir := t.TempDir()
	apkPath := writeAPKFixture(t, dir, map[string][]byte{
		"AndroidManifest.xml": []byte("binary-axml"),
	})

	_, err := Extract(apkPath, t.TempDir(), quietLogger())
	assert.ErrorIs(t, err, ErrUnsupportedInput)
}
