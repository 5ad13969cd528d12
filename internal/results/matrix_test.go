package results

import (
	"testing"

	"github.com/stretchr/testify/suite"
	"github.com/wfunc/bms-stand/internal/errors"
)

// fakeListener 记录开关调用
type fakeListener struct {
	enabled  bool
	enables  int
	disables int
}

func (f *fakeListener) Enable() {
	f.enabled = true
	f.enables++
}

func (f *fakeListener) Disable() {
	f.enabled = false
	f.disables++
}

// MatrixTestSuite 结果矩阵测试套件
type MatrixTestSuite struct {
	suite.Suite
	listener *fakeListener
	matrix   *Matrix
}

func (suite *MatrixTestSuite) SetupTest() {
	suite.listener = &fakeListener{enabled: true}
	suite.matrix = NewMatrix(suite.listener)
}

// 未连接时丢弃
func (suite *MatrixTestSuite) TestRejectWhenDisconnected() {
	_, err := suite.matrix.RecordRun(allPass(), VerdictTripped)
	suite.True(errors.Is(err, errors.ErrDeviceNotConnected))
	suite.True(errors.IsState(err))
	suite.False(suite.matrix.Sealed())
	suite.Equal(0, suite.listener.disables)
}

// 接受一次后锁定
func (suite *MatrixTestSuite) TestSealInvariant() {
	suite.matrix.SetConnected(true)

	first := allPass()
	first[0][0] = Fail
	summary, err := suite.matrix.RecordRun(first, VerdictNotTripped)
	suite.Require().NoError(err)
	suite.Equal(31, summary.Passed)
	suite.Equal(1, summary.Failed)
	suite.True(summary.Negative)
	suite.True(suite.matrix.Sealed())
	suite.False(suite.listener.enabled)

	// 第二次写入没有任何效果
	_, err = suite.matrix.RecordRun(allPass(), VerdictTripped)
	suite.True(errors.Is(err, errors.ErrMatrixSealed))

	snap := suite.matrix.Snapshot()
	suite.Equal(first, snap.Grid)
	suite.Equal(VerdictNotTripped, snap.Verdict)
	suite.Equal(1, suite.listener.disables)
}

// 重置后重新接受
func (suite *MatrixTestSuite) TestResetReArms() {
	suite.matrix.SetConnected(true)
	_, err := suite.matrix.RecordRun(allPass(), VerdictTripped)
	suite.Require().NoError(err)

	suite.matrix.Reset()
	suite.False(suite.matrix.Sealed())
	suite.True(suite.listener.enabled)
	snap := suite.matrix.Snapshot()
	suite.False(snap.HasVerdict)
	suite.Equal(Grid{}, snap.Grid)

	_, err = suite.matrix.Summary()
	suite.True(errors.Is(err, errors.ErrNoResults))

	summary, err := suite.matrix.RecordRun(allPass(), VerdictTripped)
	suite.NoError(err)
	suite.False(summary.Negative)
}

// 非法结论被拒绝且不锁定
func (suite *MatrixTestSuite) TestInvalidVerdict() {
	suite.matrix.SetConnected(true)
	_, err := suite.matrix.RecordRun(allPass(), Verdict(9))
	suite.True(errors.Is(err, errors.ErrInvalidParam))
	suite.False(suite.matrix.Sealed())
}

// 没有监听器时同样工作
func (suite *MatrixTestSuite) TestNilListener() {
	m := NewMatrix(nil)
	m.SetConnected(true)
	_, err := m.RecordRun(allPass(), VerdictTripped)
	suite.NoError(err)
	m.Reset()
	suite.False(m.Sealed())
}

func TestMatrixSuite(t *testing.T) {
	suite.Run(t, new(MatrixTestSuite))
}
