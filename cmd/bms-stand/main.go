package main

import (
	"fmt"
	"os"
	"runtime"
	"time"

	"github.com/wfunc/bms-stand/internal/config"
	"github.com/wfunc/bms-stand/internal/logger"
	"go.uber.org/zap"
)

// 版本信息
var (
	Version   = "1.0.0"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

func main() {
	// 配置文件: ./config/config.yaml 或 ./config.yaml，环境变量前缀 BMS_STAND
	if err := config.Init(""); err != nil {
		fmt.Fprintf(os.Stderr, "加载配置失败: %v\n", err)
		os.Exit(1)
	}

	cfg := config.Get()

	// 初始化日志系统
	if err := logger.Init(&cfg.Log); err != nil {
		fmt.Fprintf(os.Stderr, "初始化日志失败: %v\n", err)
		os.Exit(1)
	}

	// 设置系统参数
	setupSystem(&cfg.System)

	// 打印启动信息
	printStartInfo(cfg)

	server := NewServer(cfg)
	if err := server.Start(); err != nil {
		logger.LogError(err, "启动失败")
		fmt.Fprintf(os.Stderr, "Ошибка запуска: %v\n", err)
		server.Shutdown()
		logger.Cleanup()
		os.Exit(1)
	}

	code := server.Wait()

	if err := server.Shutdown(); err != nil {
		logger.LogError(err, "关闭失败")
		if code == 0 {
			code = 1
		}
	}

	logger.Info("试验台已关闭", zap.Int("exit_code", code))
	logger.Cleanup()
	os.Exit(code)
}

// setupSystem 设置系统参数
func setupSystem(cfg *config.SystemConfig) {
	// 设置时区
	if cfg.Timezone != "" {
		if loc, err := time.LoadLocation(cfg.Timezone); err == nil {
			time.Local = loc
		} else {
			logger.Warn("时区无效，使用系统时区", zap.String("timezone", cfg.Timezone), zap.Error(err))
		}
	}
}

// printStartInfo 打印启动信息
func printStartInfo(cfg *config.Config) {
	fmt.Println("═══════════════════════════════════════════════════════════════")
	fmt.Printf("  %s\n", cfg.App.Name)
	fmt.Printf("  Версия: %s (%s, %s) | %s %s/%s\n", Version, GitCommit, BuildTime, runtime.Version(), runtime.GOOS, runtime.GOARCH)
	fmt.Printf("  Режим устройства: %s | PID: %d\n", cfg.Device.Mode, os.Getpid())
	if file := config.ConfigFile(); file != "" {
		fmt.Printf("  Конфигурация: %s\n", file)
	}
	if cfg.API.Enabled {
		fmt.Printf("  Мониторинг: http://%s:%d\n", cfg.API.Host, cfg.API.Port)
	}
	fmt.Println("═══════════════════════════════════════════════════════════════")
}
