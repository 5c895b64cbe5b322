package config

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// ReloadFunc 配置变更回调，new 为重新加载并通过校验的配置
type ReloadFunc func(new *Config)

// ConfigWatcher 配置文件监控器，用于热更新日志级别、语言等运行期可调参数
type ConfigWatcher struct {
	configPath  string
	watcher     *fsnotify.Watcher
	onReload    ReloadFunc
	mu          sync.Mutex
	isWatching  bool
	lastModTime time.Time
}

// NewConfigWatcher 创建配置监控器
func NewConfigWatcher(configPath string, onReload ReloadFunc) (*ConfigWatcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("创建文件监控器失败: %w", err)
	}

	abs, err := filepath.Abs(configPath)
	if err != nil {
		watcher.Close()
		return nil, fmt.Errorf("解析配置路径失败: %w", err)
	}

	var lastModTime time.Time
	if info, err := os.Stat(abs); err == nil {
		lastModTime = info.ModTime()
	}

	return &ConfigWatcher{
		configPath:  abs,
		watcher:     watcher,
		onReload:    onReload,
		lastModTime: lastModTime,
	}, nil
}

// Start 开始监控配置文件
func (cw *ConfigWatcher) Start(ctx context.Context) error {
	cw.mu.Lock()
	defer cw.mu.Unlock()

	if cw.isWatching {
		return fmt.Errorf("配置监控器已经在运行")
	}

	// 监控配置文件所在目录（编辑器常用临时文件+重命名方式保存）
	if err := cw.watcher.Add(filepath.Dir(cw.configPath)); err != nil {
		return fmt.Errorf("添加监控目录失败: %w", err)
	}

	cw.isWatching = true
	go cw.watchLoop(ctx)

	return nil
}

// Stop 停止监控
func (cw *ConfigWatcher) Stop() error {
	cw.mu.Lock()
	defer cw.mu.Unlock()

	if !cw.isWatching {
		return nil
	}

	cw.isWatching = false
	return cw.watcher.Close()
}

// watchLoop 监控循环
func (cw *ConfigWatcher) watchLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-cw.watcher.Events:
			if !ok {
				return
			}
			if event.Name != cw.configPath {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			// 延迟处理，避免文件正在写入时读取
			time.Sleep(100 * time.Millisecond)
			cw.handleConfigChange()

		case _, ok := <-cw.watcher.Errors:
			if !ok {
				return
			}
		}
	}
}

// handleConfigChange 处理配置文件变更
func (cw *ConfigWatcher) handleConfigChange() {
	info, err := os.Stat(cw.configPath)
	if err != nil {
		return
	}

	cw.mu.Lock()
	if !info.ModTime().After(cw.lastModTime) {
		cw.mu.Unlock()
		return
	}
	cw.lastModTime = info.ModTime()
	onReload := cw.onReload
	cw.mu.Unlock()

	newCfg, err := LoadConfig(cw.configPath)
	if err != nil {
		// 配置非法时保持旧配置
		return
	}

	if onReload != nil {
		onReload(newCfg)
	}
}
