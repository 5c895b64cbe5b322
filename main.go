package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"edgerisk/config"
	"edgerisk/database"
	"edgerisk/event"
	"edgerisk/i18n"
	"edgerisk/ledger"
	"edgerisk/logger"
	"edgerisk/metrics"
	"edgerisk/sandbox"
	"edgerisk/storage"
	"edgerisk/utils"
	"edgerisk/web"
)

// Version 版本号
var Version = "1.2.0"

const appName = "EdgeRisk Insight"

func main() {
	configPath := "./config.yaml"
	debugMode := false
	args := os.Args[1:]
	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "-version", "--version":
			fmt.Printf("%s\nVersion: %s\n", appName, Version)
			os.Exit(0)
		case "-debug", "--debug":
			debugMode = true
		case "-config", "--config":
			if i+1 < len(args) {
				configPath = args[i+1]
				i++
			}
		}
	}

	// 1. 加载配置
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		log.Fatalf("[FATAL] 加载配置失败: %v", err)
	}
	if debugMode {
		cfg.System.LogLevel = "debug"
	}

	// 2. 时区与日志
	if err := utils.SetLocation(cfg.System.Timezone); err != nil {
		log.Printf("[WARN] 设置时区失败: %v，使用默认时区", err)
	}
	logger.SetLocation(utils.GlobalLocation)
	logger.SetLevel(logger.ParseLogLevel(cfg.System.LogLevel))

	// 3. 国际化
	if err := i18n.Init(cfg.System.Language); err != nil {
		log.Fatalf("[FATAL] 初始化国际化失败: %v", err)
	}

	// 4. 日志存储（失败时继续运行，只是不落库）
	logStore, err := storage.NewLogStore(cfg.System.LogDBPath)
	if err != nil {
		log.Printf("[WARN] 初始化日志存储失败: %v，日志将不保存到数据库", err)
		logStore = nil
	} else {
		logger.InitLogStorage(logStore.WriteLog)
		go runLogCleanup(logStore, cfg.System.LogRetentionDays)
	}

	logger.Info("⚙️ %s v%s 启动中...", appName, Version)

	// 5. 台账加载，任何模式错误都是致命的
	book, err := ledger.Load(cfg.Data.LedgerPath)
	if err != nil {
		logger.Fatal("❌ 加载台账失败: %v", err)
	}
	logger.Info("📒 台账已加载: %s (%d 条记录)", book.Path(), book.Len())
	metrics.GetPrometheusMetrics().SetLedgerRows(book.Len())

	// 6. 运行记录数据库
	db, err := database.NewDatabase(&database.Config{
		Type:            cfg.Database.Type,
		DSN:             cfg.Database.DSN,
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: time.Duration(cfg.Database.ConnMaxLifetime) * time.Second,
		LogLevel:        cfg.Database.LogLevel,
	})
	if err != nil {
		logger.Fatal("❌ 初始化数据库失败: %v", err)
	}

	// 7. 事件总线与脚本执行器
	bus := event.NewBus(64)
	executor, err := sandbox.NewExecutor(sandbox.Options{
		OutputDir:     cfg.Sandbox.OutputDir,
		TranscriptDir: cfg.Sandbox.TranscriptDir,
		Timeout:       time.Duration(cfg.Sandbox.TimeoutSeconds) * time.Second,
		MaxConcurrent: cfg.Sandbox.MaxConcurrent,
	}, book, bus)
	if err != nil {
		logger.Fatal("❌ 初始化脚本执行器失败: %v", err)
	}

	// 8. Web 层依赖注入
	web.SetAppInfo(appName, Version)
	web.SetLedger(book)
	web.SetExecutor(executor)
	web.SetDatabase(db)
	web.SetLogStore(logStore)
	web.SetEventBus(bus)

	var pm *web.PasswordManager
	if cfg.Web.AuthEnabled {
		pm, err = web.NewPasswordManager(cfg.Web.DataDir)
		if err != nil {
			logger.Fatal("❌ 初始化密码管理器失败: %v", err)
		}
		web.SetPasswordManager(pm)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 9. 系统指标采集
	collector := metrics.NewSystemMetricsCollector(30 * time.Second)
	collector.Start()

	// 10. 配置热更新：日志级别与系统语言即时生效
	watcher, err := config.NewConfigWatcher(configPath, func(newCfg *config.Config) {
		logger.SetLevel(logger.ParseLogLevel(newCfg.System.LogLevel))
		i18n.SetSystemLanguage(newCfg.System.Language)
		logger.Info("🔄 配置已热更新: log_level=%s language=%s",
			newCfg.System.LogLevel, newCfg.System.Language)
	})
	if err != nil {
		logger.Warn("⚠️ 初始化配置监听失败: %v", err)
	} else if err := watcher.Start(ctx); err != nil {
		logger.Warn("⚠️ 启动配置监听失败: %v", err)
	}

	// 11. Web 服务器
	server := web.NewWebServer(cfg)
	if server != nil {
		if err := server.Start(ctx); err != nil {
			logger.Fatal("❌ 启动Web服务器失败: %v", err)
		}
	}

	bus.Publish(&event.Event{Type: event.EventTypeSystemStart})
	logger.Info("✅ %s 已就绪", appName)

	// 等待退出信号
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	logger.Info("⏹️ 收到信号 %v，开始优雅关闭...", sig)

	bus.Publish(&event.Event{Type: event.EventTypeSystemStop})
	cancel()
	collector.Stop()
	if watcher != nil {
		watcher.Stop()
	}
	if server != nil {
		server.Stop()
	}
	bus.Close()
	if pm != nil {
		pm.Close()
	}
	if err := db.Close(); err != nil {
		logger.Warn("⚠️ 关闭数据库失败: %v", err)
	}
	if logStore != nil {
		logStore.Close()
	}
	logger.Info("✅ 已退出")
	logger.Close()
}

// runLogCleanup 每天清理一次过期日志
func runLogCleanup(logStore *storage.LogStore, retentionDays int) {
	if retentionDays <= 0 {
		retentionDays = 30
	}
	ticker := time.NewTicker(24 * time.Hour)
	defer ticker.Stop()

	for range ticker.C {
		logger.Info("🧹 开始清理 %d 天前的日志...", retentionDays)
		if err := logStore.CleanOldLogs(retentionDays); err != nil {
			logger.Warn("⚠️ 清理日志失败: %v", err)
			continue
		}
		if err := logStore.Vacuum(); err != nil {
			logger.Warn("⚠️ 回收日志空间失败: %v", err)
		}
	}
}
