// Package watcher 监控样本目录，新落地的 APK / dex 自动送入分析
package watcher

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"
)

// FileHandler 新样本的处理函数
type FileHandler func(ctx context.Context, filePath string) error

// FileWatcher 样本目录监控器
type FileWatcher struct {
	watcher  *fsnotify.Watcher
	watchDir string
	pattern  string // 文件匹配模式 (如 "*.apk")
	handler  FileHandler
	logger   *logrus.Logger
	debounce time.Duration

	// timers 由事件循环与定时器回调两侧并发访问
	mu     sync.Mutex
	timers map[string]*time.Timer
}

// NewFileWatcher 创建监控器并注册目录
func NewFileWatcher(watchDir, pattern string, handler FileHandler, logger *logrus.Logger) (*FileWatcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}

	if err := os.MkdirAll(watchDir, 0755); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("failed to create watch directory: %w", err)
	}

	if err := watcher.Add(watchDir); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("failed to add watch directory: %w", err)
	}

	fw := &FileWatcher{
		watcher:  watcher,
		watchDir: watchDir,
		pattern:  pattern,
		handler:  handler,
		logger:   logger,
		debounce: 2 * time.Second,
		timers:   make(map[string]*time.Timer),
	}

	logger.WithFields(logrus.Fields{
		"watch_dir": watchDir,
		"pattern":   pattern,
	}).Info("File watcher created")

	return fw, nil
}

// Start 启动事件循环
func (fw *FileWatcher) Start(ctx context.Context) {
	go fw.eventLoop(ctx)
	fw.logger.Info("File watcher started")
}

// eventLoop 处理文件事件，带防抖
func (fw *FileWatcher) eventLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			fw.logger.Info("File watcher stopped")
			return

		case event, ok := <-fw.watcher.Events:
			if !ok {
				return
			}

			if event.Op&fsnotify.Create != fsnotify.Create &&
				event.Op&fsnotify.Write != fsnotify.Write {
				continue
			}

			if !fw.matchPattern(filepath.Base(event.Name)) {
				continue
			}

			fw.scheduleFile(ctx, event.Name)

		case err, ok := <-fw.watcher.Errors:
			if !ok {
				return
			}
			fw.logger.WithError(err).Error("Watcher error")
		}
	}
}

// scheduleFile 注册防抖定时器，同一文件短时间内的多次事件只处理一次
func (fw *FileWatcher) scheduleFile(ctx context.Context, name string) {
	fw.mu.Lock()
	defer fw.mu.Unlock()

	if timer, exists := fw.timers[name]; exists {
		timer.Stop()
	}
	fw.timers[name] = time.AfterFunc(fw.debounce, func() {
		fw.mu.Lock()
		delete(fw.timers, name)
		fw.mu.Unlock()

		fw.handleFile(ctx, name)
	})
}

// handleFile 等待写入完成后交给处理函数
func (fw *FileWatcher) handleFile(ctx context.Context, filePath string) {
	if err := fw.waitForFileReady(filePath); err != nil {
		fw.logger.WithError(err).WithField("file", filePath).Error("File not ready")
		return
	}

	fw.logger.WithField("file", filePath).Info("Processing file")

	if err := fw.handler(ctx, filePath); err != nil {
		fw.logger.WithError(err).WithField("file", filePath).Error("Failed to process file")
		return
	}

	fw.logger.WithField("file", filePath).Info("File processed successfully")
}

// waitForFileReady 轮询文件大小直到稳定，视为写入完成
func (fw *FileWatcher) waitForFileReady(filePath string) error {
	const maxAttempts = 10
	for i := 0; i < maxAttempts; i++ {
		info1, err := os.Stat(filePath)
		if err != nil {
			if os.IsNotExist(err) {
				return fmt.Errorf("file does not exist")
			}
			time.Sleep(500 * time.Millisecond)
			continue
		}

		time.Sleep(500 * time.Millisecond)

		info2, err := os.Stat(filePath)
		if err != nil {
			return err
		}

		if info1.Size() == info2.Size() && info1.Size() > 0 {
			return nil
		}
	}

	return fmt.Errorf("file not ready after %d attempts", maxAttempts)
}

// matchPattern 检查文件名是否匹配模式，支持逗号分隔的多个扩展名
func (fw *FileWatcher) matchPattern(fileName string) bool {
	if fw.pattern == "*" {
		return true
	}

	for _, pattern := range strings.Split(fw.pattern, ",") {
		pattern = strings.TrimSpace(pattern)
		if strings.HasPrefix(pattern, "*.") {
			ext := strings.TrimPrefix(pattern, "*")
			if strings.HasSuffix(strings.ToLower(fileName), strings.ToLower(ext)) {
				return true
			}
		} else if fileName == pattern {
			return true
		}
	}

	return false
}

// Stop 关闭监控器
func (fw *FileWatcher) Stop() error {
	fw.logger.Info("Stopping file watcher")
	return fw.watcher.Close()
}
