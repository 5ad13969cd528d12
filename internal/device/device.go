package device

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/wfunc/bms-stand/internal/results"
	"go.uber.org/zap"
)

// 设备模式
const (
	ModeEmulator = "emulator"
	ModeSerial   = "serial"
)

// Event 设备事件
type Event interface {
	event()
}

// ConnectivityEvent 连接结果。启动时产生一次，串口断开时再产生一次
type ConnectivityEvent struct {
	Success bool
	Err     error
	At      time.Time
}

// TestEvent 一次测试完成
type TestEvent struct {
	Timestamp time.Time
	Duration  float64 // 秒，保留3位小数
	Grid      results.Grid
	Verdict   results.Verdict
}

func (ConnectivityEvent) event() {}
func (TestEvent) event()         {}

// DeviceTime 设备侧时间 HH:MM:SS
func (e TestEvent) DeviceTime() string {
	return e.Timestamp.Format("15:04:05")
}

// Session 测试设备会话
type Session interface {
	results.Listener

	// Start 启动后台协程，只能调用一次
	Start(ctx context.Context) error
	// Stop 停止后台协程并关闭事件通道
	Stop()
	Enabled() bool
	Events() <-chan Event
	Mode() string

	// 观察者在会话协程中同步调用，不能阻塞，也不能访问控制器状态
	OnConnectivity(fn func(ConnectivityEvent))
	OnTestCompleted(fn func(TestEvent))
}

// base 会话公共部分：开关、事件通道与生命周期
type base struct {
	mode    string
	logger  *zap.Logger
	enabled atomic.Bool
	events  chan Event

	mu             sync.Mutex
	started        bool
	stopped        bool
	cancel         context.CancelFunc
	wg             sync.WaitGroup
	onConnectivity []func(ConnectivityEvent)
	onTest         []func(TestEvent)
}

// init 就地初始化，base 含锁，不可按值复制
func (b *base) init(mode string, buffer int, log *zap.Logger) {
	if buffer <= 0 {
		buffer = 4
	}
	if log == nil {
		log = zap.NewNop()
	}
	b.mode = mode
	b.logger = log
	b.events = make(chan Event, buffer)
	b.enabled.Store(true)
}

// Mode 设备模式
func (b *base) Mode() string { return b.mode }

// Enable 打开事件监听
func (b *base) Enable() {
	if !b.enabled.Swap(true) {
		b.logger.Debug("设备监听已开启")
	}
}

// Disable 关闭事件监听
func (b *base) Disable() {
	if b.enabled.Swap(false) {
		b.logger.Debug("设备监听已关闭")
	}
}

// Enabled 是否正在监听
func (b *base) Enabled() bool { return b.enabled.Load() }

// Events 事件通道
func (b *base) Events() <-chan Event { return b.events }

// OnConnectivity 注册连接事件观察者
func (b *base) OnConnectivity(fn func(ConnectivityEvent)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.onConnectivity = append(b.onConnectivity, fn)
}

// OnTestCompleted 注册测试完成观察者
func (b *base) OnTestCompleted(fn func(TestEvent)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.onTest = append(b.onTest, fn)
}

// launch 启动会话协程
func (b *base) launch(ctx context.Context, run func(ctx context.Context)) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.started {
		return errAlreadyStarted
	}
	b.started = true

	ctx, b.cancel = context.WithCancel(ctx)
	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		run(ctx)
	}()
	return nil
}

// shutdown 取消并等待全部协程退出，然后关闭事件通道
func (b *base) shutdown(beforeWait func()) {
	b.mu.Lock()
	if b.stopped {
		b.mu.Unlock()
		return
	}
	b.stopped = true
	cancel := b.cancel
	started := b.started
	b.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if beforeWait != nil {
		beforeWait()
	}
	if started {
		b.wg.Wait()
	}
	close(b.events)
}

// emit 通知观察者并投递事件，ctx 取消时放弃投递
func (b *base) emit(ctx context.Context, e Event) bool {
	b.mu.Lock()
	connObservers := b.onConnectivity
	testObservers := b.onTest
	b.mu.Unlock()

	switch ev := e.(type) {
	case ConnectivityEvent:
		for _, fn := range connObservers {
			fn(ev)
		}
	case TestEvent:
		for _, fn := range testObservers {
			fn(ev)
		}
	}

	select {
	case b.events <- e:
		return true
	case <-ctx.Done():
		return false
	}
}

// sleep 可取消的等待
func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}
