package device

import (
	"context"
	"math"
	"math/rand"
	"time"

	"github.com/wfunc/bms-stand/internal/results"
	"go.uber.org/zap"
)

// EmulatorConfig 模拟器参数
type EmulatorConfig struct {
	HandshakeDelay time.Duration
	MinInterval    time.Duration
	MaxInterval    time.Duration
	MinDuration    float64
	MaxDuration    float64
	IdlePoll       time.Duration
	EventBuffer    int

	// 测试注入
	Rand *rand.Rand
	Now  func() time.Time
}

// Emulator 模拟测试设备：握手后按随机间隔产生测试完成事件
type Emulator struct {
	base
	cfg EmulatorConfig
	rng *rand.Rand
	now func() time.Time
}

// NewEmulator 创建模拟器
func NewEmulator(cfg EmulatorConfig, log *zap.Logger) *Emulator {
	if cfg.IdlePoll <= 0 {
		cfg.IdlePoll = time.Second
	}
	if cfg.MaxInterval < cfg.MinInterval {
		cfg.MaxInterval = cfg.MinInterval
	}
	if cfg.MaxDuration < cfg.MinDuration {
		cfg.MaxDuration = cfg.MinDuration
	}
	rng := cfg.Rand
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	if log == nil {
		log = zap.NewNop()
	}
	e := &Emulator{
		cfg: cfg,
		rng: rng,
		now: now,
	}
	e.init(ModeEmulator, cfg.EventBuffer, log.With(zap.String("mode", ModeEmulator)))
	return e
}

// Start 启动模拟器
func (e *Emulator) Start(ctx context.Context) error {
	return e.launch(ctx, e.run)
}

// Stop 停止模拟器
func (e *Emulator) Stop() {
	e.shutdown(nil)
	e.logger.Info("模拟器已停止")
}

func (e *Emulator) run(ctx context.Context) {
	if !sleep(ctx, e.cfg.HandshakeDelay) {
		return
	}
	e.logger.Info("模拟器握手完成")
	if !e.emit(ctx, ConnectivityEvent{Success: true, At: e.now()}) {
		return
	}

	for {
		if !e.Enabled() {
			if !sleep(ctx, e.cfg.IdlePoll) {
				return
			}
			continue
		}

		if !sleep(ctx, e.nextInterval()) {
			return
		}
		// 等待期间被关闭则放弃本次事件
		if !e.Enabled() {
			continue
		}

		ev := TestEvent{
			Timestamp: e.now(),
			Duration:  e.nextDuration(),
			Grid:      results.RandomGrid(e.rng),
			Verdict:   results.RandomVerdict(e.rng),
		}
		e.logger.Debug("模拟测试完成",
			zap.Float64("duration", ev.Duration),
			zap.String("grid", ev.Grid.Encode()),
			zap.Int("verdict", int(ev.Verdict)))
		if !e.emit(ctx, ev) {
			return
		}
	}
}

// nextInterval 整秒配置时取整数秒，否则在区间内均匀取值
func (e *Emulator) nextInterval() time.Duration {
	lo, hi := e.cfg.MinInterval, e.cfg.MaxInterval
	if lo%time.Second == 0 && hi%time.Second == 0 {
		s := int64(lo / time.Second)
		n := int64(hi/time.Second) - s + 1
		return time.Duration(s+e.rng.Int63n(n)) * time.Second
	}
	if hi == lo {
		return lo
	}
	return lo + time.Duration(e.rng.Int63n(int64(hi-lo)+1))
}

func (e *Emulator) nextDuration() float64 {
	d := e.cfg.MinDuration + e.rng.Float64()*(e.cfg.MaxDuration-e.cfg.MinDuration)
	return math.Round(d*1000) / 1000
}
