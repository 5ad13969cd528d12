package device

import (
	"context"
	"math/rand"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wfunc/bms-stand/internal/results"
	"go.uber.org/goleak"
	"go.uber.org/zap"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func fastEmulator(seed int64) *Emulator {
	return NewEmulator(EmulatorConfig{
		HandshakeDelay: 5 * time.Millisecond,
		MinInterval:    5 * time.Millisecond,
		MaxInterval:    10 * time.Millisecond,
		MinDuration:    0.1,
		MaxDuration:    1.0,
		IdlePoll:       5 * time.Millisecond,
		EventBuffer:    4,
		Rand:           rand.New(rand.NewSource(seed)),
	}, zap.NewNop())
}

func nextEvent(t *testing.T, s Session) Event {
	t.Helper()
	select {
	case ev, ok := <-s.Events():
		require.True(t, ok, "事件通道已关闭")
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("等待设备事件超时")
		return nil
	}
}

func TestEmulatorHandshakeThenTests(t *testing.T) {
	e := fastEmulator(1)
	var observed atomic.Int32
	e.OnTestCompleted(func(TestEvent) {
		observed.Add(1)
	})

	require.NoError(t, e.Start(context.Background()))
	defer e.Stop()

	conn, ok := nextEvent(t, e).(ConnectivityEvent)
	require.True(t, ok, "第一个事件必须是连接事件")
	assert.True(t, conn.Success)
	assert.NoError(t, conn.Err)

	for i := 0; i < 3; i++ {
		ev, ok := nextEvent(t, e).(TestEvent)
		require.True(t, ok)
		assert.GreaterOrEqual(t, ev.Duration, 0.1)
		assert.LessOrEqual(t, ev.Duration, 1.0)
		assert.InDelta(t, ev.Duration, float64(int(ev.Duration*1000+0.5))/1000, 1e-9)
		assert.True(t, ev.Verdict.Valid())
		assert.True(t, ev.Grid.Complete())
		assert.Len(t, ev.DeviceTime(), 8)
	}
	assert.GreaterOrEqual(t, observed.Load(), int32(3))
}

func TestEmulatorDisableSuppressesEvents(t *testing.T) {
	e := fastEmulator(2)
	require.NoError(t, e.Start(context.Background()))
	defer e.Stop()

	_ = nextEvent(t, e)
	e.Disable()
	assert.False(t, e.Enabled())

	// 关闭前已生成的事件
	drain := time.After(30 * time.Millisecond)
draining:
	for {
		select {
		case <-e.Events():
		case <-drain:
			break draining
		}
	}

	select {
	case ev := <-e.Events():
		t.Fatalf("监听关闭后不应产生事件: %#v", ev)
	case <-time.After(60 * time.Millisecond):
	}

	e.Enable()
	_, ok := nextEvent(t, e).(TestEvent)
	assert.True(t, ok)
}

func TestEmulatorStopClosesEvents(t *testing.T) {
	e := fastEmulator(3)
	require.NoError(t, e.Start(context.Background()))
	assert.Error(t, e.Start(context.Background()))

	e.Stop()
	e.Stop()

	for range e.Events() {
	}
}

func TestEmulatorStopsOnContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	e := fastEmulator(4)
	require.NoError(t, e.Start(ctx))
	_ = nextEvent(t, e)
	cancel()
	e.Stop()
}

func TestEmulatorStopBeforeStart(t *testing.T) {
	e := fastEmulator(5)
	e.Stop()
	_, ok := <-e.Events()
	assert.False(t, ok)
}

func TestNextIntervalWholeSeconds(t *testing.T) {
	e := NewEmulator(EmulatorConfig{
		MinInterval: 3 * time.Second,
		MaxInterval: 10 * time.Second,
		Rand:        rand.New(rand.NewSource(7)),
	}, nil)

	seen := map[time.Duration]bool{}
	for i := 0; i < 500; i++ {
		d := e.nextInterval()
		assert.Zero(t, d%time.Second)
		assert.GreaterOrEqual(t, d, 3*time.Second)
		assert.LessOrEqual(t, d, 10*time.Second)
		seen[d] = true
	}
	assert.Len(t, seen, 8)
}

func TestNextDurationRounded(t *testing.T) {
	e := NewEmulator(EmulatorConfig{MinDuration: 0.1, MaxDuration: 1.0, Rand: rand.New(rand.NewSource(9))}, nil)
	for i := 0; i < 200; i++ {
		d := e.nextDuration()
		assert.GreaterOrEqual(t, d, 0.1)
		assert.LessOrEqual(t, d, 1.0)
		assert.InDelta(t, d*1000, float64(int64(d*1000+0.5)), 1e-6)
	}
}

func TestEmulatorSatisfiesListener(t *testing.T) {
	var l results.Listener = fastEmulator(6)
	l.Disable()
	l.Enable()
}

// 会话在构造处就地初始化，默认缓冲与监听状态
func TestSessionDefaults(t *testing.T) {
	e := NewEmulator(EmulatorConfig{}, nil)
	assert.Equal(t, ModeEmulator, e.Mode())
	assert.True(t, e.Enabled())
	assert.Equal(t, 4, cap(e.events))

	s := NewSerialSession(SerialConfig{Port: "/dev/null", EventBuffer: 2}, nil, nil)
	assert.Equal(t, ModeSerial, s.Mode())
	assert.True(t, s.Enabled())
	assert.Equal(t, 2, cap(s.events))
	s.Disable()
	assert.False(t, s.Enabled())
}
