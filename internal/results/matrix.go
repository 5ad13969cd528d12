package results

import (
	"github.com/wfunc/bms-stand/internal/errors"
)

// Listener 设备会话的监听开关
type Listener interface {
	Enable()
	Disable()
}

// Summary 一次被接受的测试结果摘要
type Summary struct {
	Grid     Grid    `json:"-"`
	Verdict  Verdict `json:"verdict"`
	Passed   int     `json:"passed"`
	Failed   int     `json:"failed"`
	Negative bool    `json:"negative"`
}

// Snapshot 矩阵状态快照
type Snapshot struct {
	Connected  bool
	Sealed     bool
	Grid       Grid
	Verdict    Verdict
	HasVerdict bool
}

// Matrix 结果矩阵。不是并发安全的，只能由控制器协程持有
type Matrix struct {
	listener   Listener
	connected  bool
	sealed     bool
	grid       Grid
	verdict    Verdict
	hasVerdict bool
}

// NewMatrix 创建结果矩阵，listener 可以为空
func NewMatrix(listener Listener) *Matrix {
	return &Matrix{listener: listener}
}

// SetConnected 设置设备连接状态
func (m *Matrix) SetConnected(connected bool) {
	m.connected = connected
}

// Connected 设备是否已连接
func (m *Matrix) Connected() bool {
	return m.connected
}

// Sealed 是否已锁定
func (m *Matrix) Sealed() bool {
	return m.sealed
}

// RecordRun 写入一次测试结果并锁定，同时关闭设备监听。
// 未连接或已锁定时返回状态错误，不修改任何数据
func (m *Matrix) RecordRun(grid Grid, verdict Verdict) (Summary, error) {
	if !m.connected {
		return Summary{}, errors.New(errors.ErrDeviceNotConnected)
	}
	if m.sealed {
		return Summary{}, errors.New(errors.ErrMatrixSealed)
	}
	if !verdict.Valid() {
		return Summary{}, errors.Newf(errors.ErrInvalidParam, "verdict %d", int(verdict))
	}

	m.grid = grid
	m.verdict = verdict
	m.hasVerdict = true
	m.sealed = true
	if m.listener != nil {
		m.listener.Disable()
	}

	return m.summary(), nil
}

// Reset 清空结果，解除锁定并重新打开设备监听
func (m *Matrix) Reset() {
	m.grid = Grid{}
	m.verdict = 0
	m.hasVerdict = false
	m.sealed = false
	if m.listener != nil {
		m.listener.Enable()
	}
}

// Summary 当前结果摘要，未锁定时返回 ErrNoResults
func (m *Matrix) Summary() (Summary, error) {
	if !m.sealed {
		return Summary{}, errors.New(errors.ErrNoResults)
	}
	return m.summary(), nil
}

func (m *Matrix) summary() Summary {
	return Summary{
		Grid:     m.grid,
		Verdict:  m.verdict,
		Passed:   m.grid.Count(Pass),
		Failed:   m.grid.Count(Fail),
		Negative: Negative(m.grid, m.verdict),
	}
}

// Snapshot 返回状态副本
func (m *Matrix) Snapshot() Snapshot {
	return Snapshot{
		Connected:  m.connected,
		Sealed:     m.sealed,
		Grid:       m.grid,
		Verdict:    m.verdict,
		HasVerdict: m.hasVerdict,
	}
}
