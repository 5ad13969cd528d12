package stand

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/wfunc/bms-stand/internal/config"
	"github.com/wfunc/bms-stand/internal/credentials"
	"github.com/wfunc/bms-stand/internal/device"
	"github.com/wfunc/bms-stand/internal/errors"
	"github.com/wfunc/bms-stand/internal/eventlog"
	"github.com/wfunc/bms-stand/internal/logger"
	"github.com/wfunc/bms-stand/internal/models"
	"github.com/wfunc/bms-stand/internal/report"
	"github.com/wfunc/bms-stand/internal/results"
	"github.com/wfunc/bms-stand/internal/service"
	"go.uber.org/zap"
)

// 推送消息类型
const (
	MessageConnectivity  = "device_connectivity"
	MessageTestCompleted = "test_completed"
	MessageTestDropped   = "test_dropped"
	MessageReport        = "report_generated"
	MessageReset         = "results_reset"
)

// Publisher 实时事件推送，只接收事件副本
type Publisher interface {
	Publish(msgType string, data interface{})
}

// Publishers 依次推送给多个订阅方
type Publishers []Publisher

// Publish 实现 Publisher
func (ps Publishers) Publish(msgType string, data interface{}) {
	for _, p := range ps {
		if p != nil {
			p.Publish(msgType, data)
		}
	}
}

// Options 控制器依赖
type Options struct {
	Session   device.Session
	Generator *report.Generator
	History   service.HistoryService
	Events    eventlog.Sink
	Publisher Publisher
	Report    config.ReportConfig
	TestArea  func() string
	Logger    *zap.Logger
	Now       func() time.Time
}

// RunInfo 最近一次被接受的测试
type RunInfo struct {
	RunID      string    `json:"run_id"`
	ReceivedAt time.Time `json:"received_at"`
	DeviceTime string    `json:"device_time"`
	Duration   float64   `json:"duration"`
}

// Controller 试验台控制器。结果矩阵只由 Run 协程访问，外部操作通过命令通道执行
type Controller struct {
	session   device.Session
	generator *report.Generator
	history   service.HistoryService
	events    eventlog.Sink
	publisher Publishers
	reportCfg config.ReportConfig
	testArea  func() string
	logger    *zap.Logger
	now       func() time.Time

	commands chan func()
	done     chan struct{}

	// 以下字段只在 Run 协程中读写
	matrix   *results.Matrix
	operator *credentials.User
	lastRun  *RunInfo
	connErr  error
	dropped  int
}

// New 创建控制器并绑定设备会话观察者
func New(opts Options) *Controller {
	if opts.Logger == nil {
		opts.Logger = logger.WithModule("stand")
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.History == nil {
		opts.History = service.NewHistoryService(nil, opts.Logger)
	}
	if opts.TestArea == nil {
		area := opts.Report.TestArea
		opts.TestArea = func() string { return area }
	}

	c := &Controller{
		session:   opts.Session,
		generator: opts.Generator,
		history:   opts.History,
		events:    opts.Events,
		reportCfg: opts.Report,
		testArea:  opts.TestArea,
		logger:    opts.Logger,
		now:       opts.Now,
		commands:  make(chan func()),
		done:      make(chan struct{}),
		matrix:    results.NewMatrix(opts.Session),
	}
	if opts.Publisher != nil {
		c.publisher = Publishers{opts.Publisher}
	}

	mode := opts.Session.Mode()
	opts.Session.OnConnectivity(func(ev device.ConnectivityEvent) {
		fields := []zap.Field{zap.String("mode", mode), zap.Bool("success", ev.Success)}
		if ev.Err != nil {
			fields = append(fields, zap.Error(ev.Err))
		}
		logger.LogDeviceEvent("connectivity", fields...)
	})
	opts.Session.OnTestCompleted(func(ev device.TestEvent) {
		logger.LogDeviceEvent("test_completed",
			zap.String("mode", mode),
			zap.Float64("duration", ev.Duration),
			zap.String("grid", ev.Grid.Encode()),
			zap.Int("verdict", int(ev.Verdict)))
	})
	return c
}

// Run 启动设备会话并处理事件与命令，直到 ctx 取消或会话关闭
func (c *Controller) Run(ctx context.Context) error {
	defer close(c.done)
	if err := c.session.Start(ctx); err != nil {
		return err
	}
	defer c.session.Stop()

	c.logger.Info("试验台控制器已启动", zap.String("mode", c.session.Mode()))
	events := c.session.Events()
	for {
		select {
		case <-ctx.Done():
			c.logger.Info("试验台控制器已停止")
			return nil
		case ev, ok := <-events:
			if !ok {
				c.logger.Warn("设备事件通道已关闭")
				return nil
			}
			c.handle(ctx, ev)
		case cmd := <-c.commands:
			cmd()
		}
	}
}

// do 在 Run 协程中执行 fn
func (c *Controller) do(ctx context.Context, fn func() error) error {
	result := make(chan error, 1)
	cmd := func() { result <- fn() }

	select {
	case c.commands <- cmd:
	case <-ctx.Done():
		return errors.Wrap(ctx.Err(), errors.ErrCanceled)
	case <-c.done:
		return errors.New(errors.ErrCanceled, "контроллер остановлен")
	}

	select {
	case err := <-result:
		return err
	case <-ctx.Done():
		return errors.Wrap(ctx.Err(), errors.ErrCanceled)
	}
}

func (c *Controller) handle(ctx context.Context, ev device.Event) {
	switch e := ev.(type) {
	case device.ConnectivityEvent:
		c.onConnectivity(e)
	case device.TestEvent:
		c.onTest(ctx, e)
	}
}

func (c *Controller) onConnectivity(ev device.ConnectivityEvent) {
	c.matrix.SetConnected(ev.Success)
	c.connErr = ev.Err

	rec := &models.DeviceEvent{
		Kind:    models.DeviceEventConnectivity,
		Mode:    c.session.Mode(),
		Success: ev.Success,
	}
	if ev.Success {
		rec.Message = "Устройство подключено"
		c.logger.Info("设备已连接")
	} else {
		rec.Message = "Устройство не подключено"
		if ev.Err != nil {
			rec.Error = ev.Err.Error()
		}
		if errors.IsCritical(ev.Err) {
			c.logger.Error("设备连接失败", zap.Error(ev.Err))
		} else {
			c.logger.Warn("设备未连接", zap.Error(ev.Err))
		}
	}
	c.history.RecordDeviceEvent(rec)
	c.publish(MessageConnectivity, rec)
}

func (c *Controller) onTest(ctx context.Context, ev device.TestEvent) {
	if !c.matrix.Connected() {
		c.drop(ev, "устройство не подключено")
		return
	}
	if c.matrix.Sealed() {
		c.drop(ev, "результаты уже получены")
		return
	}

	summary, err := c.matrix.RecordRun(ev.Grid, ev.Verdict)
	if err != nil {
		if !errors.IsState(err) {
			c.logger.Warn("测试数据无效", zap.Error(err))
		}
		c.drop(ev, err.Error())
		return
	}

	info := &RunInfo{
		RunID:      uuid.NewString(),
		ReceivedAt: c.now(),
		DeviceTime: ev.DeviceTime(),
		Duration:   ev.Duration,
	}
	c.lastRun = info

	c.logger.Info("测试结果已记录",
		zap.String("run_id", info.RunID),
		zap.Int("failed", summary.Failed),
		zap.Int("verdict", int(summary.Verdict)),
		zap.Bool("negative", summary.Negative))

	record := &models.TestRunRecord{
		RunID:       info.RunID,
		Operator:    c.operatorID(),
		TestArea:    c.testArea(),
		ReceivedAt:  info.ReceivedAt,
		DeviceTime:  info.DeviceTime,
		Duration:    info.Duration,
		Grid:        summary.Grid.Encode(),
		Verdict:     int(summary.Verdict),
		VerdictText: summary.Verdict.String(),
		Passed:      !summary.Negative,
	}
	if err := c.history.RecordRun(ctx, record); err != nil {
		c.logger.Warn("测试记录未保存", zap.Error(err))
	}
	c.history.RecordDeviceEvent(&models.DeviceEvent{
		Kind:    models.DeviceEventTest,
		Mode:    c.session.Mode(),
		Success: true,
		RunID:   info.RunID,
		Message: summary.Verdict.String(),
	})
	c.publish(MessageTestCompleted, record)
}

// drop 已锁定或未连接时丢弃测试事件，不排队
func (c *Controller) drop(ev device.TestEvent, reason string) {
	c.dropped++
	c.logger.Debug("丢弃测试事件",
		zap.String("reason", reason),
		zap.Bool("connected", c.matrix.Connected()),
		zap.Bool("sealed", c.matrix.Sealed()))
	rec := &models.DeviceEvent{
		Kind:    models.DeviceEventDropped,
		Mode:    c.session.Mode(),
		Message: reason,
	}
	c.history.RecordDeviceEvent(rec)
	c.publish(MessageTestDropped, rec)
}

// AddPublisher 追加订阅方，必须在 Run 之前调用
func (c *Controller) AddPublisher(p Publisher) {
	c.publisher = append(c.publisher, p)
}

func (c *Controller) publish(msgType string, data interface{}) {
	c.publisher.Publish(msgType, data)
}

func (c *Controller) operatorID() string {
	if c.operator == nil {
		return ""
	}
	return c.operator.ID
}

func (c *Controller) logEvent(format string, args ...interface{}) error {
	if c.events == nil {
		return nil
	}
	if err := c.events.Logf(format, args...); err != nil {
		c.logger.Error("写入事件日志失败", zap.Error(err))
		return err
	}
	return nil
}
