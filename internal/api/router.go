package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/wfunc/bms-stand/internal/archive"
	"github.com/wfunc/bms-stand/internal/credentials"
	"github.com/wfunc/bms-stand/internal/middleware"
	"github.com/wfunc/bms-stand/internal/service"
	"github.com/wfunc/bms-stand/internal/stand"
	ws "github.com/wfunc/bms-stand/internal/websocket"
	"go.uber.org/zap"
)

// StatusProvider 试验台状态来源
type StatusProvider interface {
	Status(ctx context.Context) (*stand.Status, error)
}

// ReportArchive 协议归档
type ReportArchive interface {
	Entries(serialFilter, dateFilter string) ([]archive.Entry, error)
	Path(name string) (string, error)
	Verify(ctx context.Context, name string) (*archive.Verification, error)
}

// Deps 路由依赖
type Deps struct {
	Services *service.Services
	Stand    StatusProvider
	Archive  ReportArchive
	Hub      *ws.Hub
	// DatabaseUp 历史数据库连通性检查，nil 表示未启用
	DatabaseUp func() bool
	Mode       string
	Logger     *zap.Logger
}

// Router API路由器
type Router struct {
	engine         *gin.Engine
	authHandler    *AuthHandler
	standHandler   *StandHandler
	reportHandler  *ReportHandler
	wsHandler      *WebSocketHandler
	authMiddleware *middleware.AuthMiddleware
	hub            *ws.Hub
	databaseUp     func() bool
	started        time.Time
	log            *zap.Logger
}

// NewRouter 创建路由器
func NewRouter(deps Deps) *Router {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.Mode != "" {
		gin.SetMode(deps.Mode)
	}

	// 创建Gin引擎
	engine := gin.New()

	// 全局中间件
	engine.Use(gin.Recovery())
	engine.Use(middleware.RequestLogger(deps.Logger))

	router := &Router{
		engine:         engine,
		authHandler:    NewAuthHandler(deps.Services.Auth),
		standHandler:   NewStandHandler(deps.Stand, deps.Services.History),
		reportHandler:  NewReportHandler(deps.Archive),
		authMiddleware: middleware.NewAuthMiddleware(deps.Services.Auth),
		hub:            deps.Hub,
		databaseUp:     deps.DatabaseUp,
		started:        time.Now(),
		log:            deps.Logger,
	}
	if deps.Hub != nil {
		router.wsHandler = NewWebSocketHandler(deps.Hub, deps.Logger)
	}

	// 设置路由
	router.setupRoutes()

	return router
}

// setupRoutes 设置路由
func (r *Router) setupRoutes() {
	// 健康检查
	r.engine.GET("/health", r.healthCheck)

	v1 := r.engine.Group("/api/v1")
	{
		// 认证相关路由（不需要认证）
		auth := v1.Group("/auth")
		{
			auth.POST("/login", r.authHandler.Login)
			auth.POST("/refresh", r.authHandler.RefreshToken)
		}

		// 只读监控接口
		authed := v1.Group("")
		authed.Use(r.authMiddleware.RequireAuth())
		{
			authed.GET("/status", r.standHandler.GetStatus)
			authed.GET("/runs", r.standHandler.ListRuns)
			authed.GET("/runs/stats", r.standHandler.RunStats)
			// 设备诊断只对管理员开放
			authed.GET("/device/events", r.authMiddleware.RequireRole(string(credentials.RoleAdmin)), r.standHandler.DeviceEvents)

			authed.GET("/reports", r.reportHandler.List)
			authed.GET("/reports/:name", r.reportHandler.Download)
			authed.GET("/reports/:name/verify", r.reportHandler.Verify)
		}
	}

	// WebSocket路由
	if r.wsHandler != nil {
		r.engine.GET("/ws", r.authMiddleware.RequireAuth(), r.wsHandler.Subscribe)
	}
}

// healthCheck 健康检查
func (r *Router) healthCheck(c *gin.Context) {
	resp := gin.H{
		"status": "ok",
		"time":   time.Now().Unix(),
		"uptime": time.Since(r.started).Round(time.Second).String(),
	}
	if r.hub != nil {
		resp["subscribers"] = r.hub.OnlineCount()
	}
	// 历史数据库不可用时试验仍可进行，只报告状态
	if r.databaseUp != nil {
		resp["database"] = "down"
		if r.databaseUp() {
			resp["database"] = "up"
		}
	}
	c.JSON(http.StatusOK, resp)
}

// Handler 返回HTTP处理器
func (r *Router) Handler() http.Handler {
	return r.engine
}
