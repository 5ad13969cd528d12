package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/wfunc/bms-stand/internal/api"
	"github.com/wfunc/bms-stand/internal/archive"
	"github.com/wfunc/bms-stand/internal/config"
	"github.com/wfunc/bms-stand/internal/console"
	"github.com/wfunc/bms-stand/internal/credentials"
	"github.com/wfunc/bms-stand/internal/database"
	"github.com/wfunc/bms-stand/internal/device"
	"github.com/wfunc/bms-stand/internal/errors"
	"github.com/wfunc/bms-stand/internal/eventlog"
	"github.com/wfunc/bms-stand/internal/logger"
	"github.com/wfunc/bms-stand/internal/report"
	"github.com/wfunc/bms-stand/internal/repository"
	"github.com/wfunc/bms-stand/internal/service"
	"github.com/wfunc/bms-stand/internal/stand"
	ws "github.com/wfunc/bms-stand/internal/websocket"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Server 试验台进程
type Server struct {
	cfg    *config.Config
	logger *zap.Logger

	events     *eventlog.FileSink
	services   *service.Services
	controller *stand.Controller
	console    *console.Console
	hub        *ws.Hub
	apiServer  *api.Server

	// 关闭控制
	consoleDone chan error
	group       errgroup.Group
	ctx         context.Context
	cancel      context.CancelFunc
}

// NewServer 创建进程实例
func NewServer(cfg *config.Config) *Server {
	ctx, cancel := context.WithCancel(context.Background())

	return &Server{
		cfg:         cfg,
		logger:      logger.GetLogger(),
		consoleDone: make(chan error, 1),
		ctx:         ctx,
		cancel:      cancel,
	}
}

// Start 初始化组件并启动后台协程
func (s *Server) Start() error {
	s.logger.Info("正在启动试验台...")

	if err := s.initComponents(); err != nil {
		return err
	}

	s.startServices()

	// 监听配置变化，只热更新日志级别
	config.Watch(s.reloadConfig)

	s.logger.Info("试验台启动完成", zap.String("device_mode", s.cfg.Device.Mode))
	return nil
}

// initComponents 初始化组件
func (s *Server) initComponents() error {
	repos := s.initDatabase()

	store, err := credentials.Open(s.cfg.Credentials.Path, logger.WithModule("credentials"))
	if err != nil {
		return err
	}

	s.events, err = eventlog.Open(s.cfg.EventLog.Path, logger.WithModule("eventlog"))
	if err != nil {
		return err
	}

	svcCfg := service.DefaultConfig()
	if s.cfg.API.JWTSecret != "" {
		svcCfg.JWTSecret = s.cfg.API.JWTSecret
	}
	if s.cfg.API.TokenExpiry > 0 {
		svcCfg.AccessTokenExpiry = s.cfg.API.TokenExpiry
	}
	svcCfg.HashScheme = s.cfg.Credentials.HashScheme
	svcCfg.MaxAttempts = s.cfg.Credentials.MaxAttempts
	svcCfg.LockoutDuration = s.cfg.Credentials.LockoutDuration
	s.services = service.NewServices(store, s.events, repos, svcCfg, logger.WithModule("service"))

	session, err := device.New(&s.cfg.Device, logger.WithModule("device"))
	if err != nil {
		return err
	}

	s.controller = stand.New(stand.Options{
		Session:   session,
		Generator: report.NewGenerator(&s.cfg.Report, logger.WithModule("report")),
		History:   s.services.History,
		Events:    s.events,
		Report:    s.cfg.Report,
		TestArea:  s.services.User.TestArea,
		Logger:    logger.WithModule("stand"),
	})

	index := archive.NewIndex(s.cfg.Report.Dir, s.services.History, s.cfg.EventLog.Path, logger.WithModule("archive"))

	s.console = console.New(console.Options{
		Title:   s.cfg.App.Name,
		Auth:    s.services.Auth,
		Users:   s.services.User,
		Stand:   s.controller,
		Archive: index,
		Logger:  logger.WithModule("console"),
	})
	s.controller.AddPublisher(s.console)

	if s.cfg.API.Enabled {
		s.hub = ws.NewHub(logger.WithModule("websocket"))
		s.controller.AddPublisher(s.hub)

		deps := api.Deps{
			Services: s.services,
			Stand:    s.controller,
			Archive:  index,
			Hub:      s.hub,
			Mode:     s.cfg.API.Mode,
			Logger:   logger.WithModule("api"),
		}
		if s.services.History.Enabled() {
			deps.DatabaseUp = database.IsConnected
		}
		router := api.NewRouter(deps)
		s.apiServer = api.NewServer(&s.cfg.API, router, logger.WithModule("api"))
	}

	return nil
}

// initDatabase 初始化运行历史数据库，失败时只告警，历史功能关闭
func (s *Server) initDatabase() *repository.Manager {
	if !s.cfg.Database.Enabled {
		s.logger.Info("运行历史数据库已关闭")
		return nil
	}

	if err := database.Init(&s.cfg.Database); err != nil {
		s.logger.Warn("数据库初始化失败，历史记录关闭", zap.Error(errors.Wrap(err, errors.ErrDatabaseConnect)))
		return nil
	}

	if s.cfg.Database.AutoMigrate {
		if err := database.AutoMigrate(s.cfg.Database.DSN); err != nil {
			s.logger.Warn("数据库迁移失败，历史记录关闭", zap.Error(err))
			database.Close()
			database.DB = nil
			return nil
		}
	}

	s.logger.Info("数据库初始化完成", zap.String("driver", s.cfg.Database.Driver))
	return repository.NewManager(database.GetDB())
}

// startServices 启动后台协程，任一协程出错不影响其他协程
func (s *Server) startServices() {
	s.group.Go(func() error {
		if err := s.controller.Run(s.ctx); err != nil {
			s.logger.Error("试验台控制器退出", zap.Error(err))
			return err
		}
		return nil
	})

	if s.hub != nil {
		s.group.Go(func() error {
			s.hub.Run(s.ctx)
			return nil
		})
	}

	if s.apiServer != nil {
		s.group.Go(func() error {
			if err := s.apiServer.Run(s.ctx); err != nil {
				s.logger.Error("监控接口退出", zap.Error(err))
				return err
			}
			return nil
		})
	}

	// 操作台阻塞在标准输入上，不计入 group
	go func() {
		s.consoleDone <- s.console.Run(s.ctx)
	}()
}

// Wait 等待操作台退出或系统信号，返回进程退出码
func (s *Server) Wait() int {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)
	defer signal.Stop(sigCh)

	select {
	case sig := <-sigCh:
		s.logger.Info("收到退出信号", zap.String("signal", sig.String()))
		return 0
	case err := <-s.consoleDone:
		if err == nil {
			return 0
		}
		if errors.Is(err, errors.ErrLoginLockout) {
			s.logger.Warn("登录次数超限，退出")
		} else {
			s.logger.Error("操作台异常退出", zap.Error(err))
		}
		return 1
	}
}

// Shutdown 优雅关闭
func (s *Server) Shutdown() error {
	s.logger.Info("正在关闭试验台...")

	timeout := s.cfg.API.ShutdownTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	// 取消主上下文，触发所有协程退出
	s.cancel()

	done := make(chan error, 1)
	go func() {
		done <- s.group.Wait()
	}()

	var result error
	select {
	case err := <-done:
		if err != nil {
			s.logger.Warn("后台协程曾异常退出", zap.Error(err))
		}
		s.logger.Info("后台协程已全部退出")
	case <-shutdownCtx.Done():
		s.logger.Warn("关闭超时，强制退出")
		result = errors.New(errors.ErrTimeout, "关闭超时")
	}

	s.closeComponents()
	return result
}

// closeComponents 关闭组件
func (s *Server) closeComponents() {
	if s.services != nil {
		s.services.History.Close()
	}
	if s.events != nil {
		if err := s.events.Close(); err != nil {
			s.logger.Error("关闭事件日志失败", zap.Error(err))
		}
	}
	if err := database.Close(); err != nil {
		s.logger.Error("关闭数据库失败", zap.Error(err))
	}
}

// reloadConfig 重新加载配置
func (s *Server) reloadConfig(newCfg *config.Config) {
	logger.SetLevel(newCfg.Log.Level)
	s.logger.Info("配置重新加载完成", zap.String("log_level", newCfg.Log.Level))
}
