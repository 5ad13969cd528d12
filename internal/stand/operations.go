package stand

import (
	"context"

	"github.com/wfunc/bms-stand/internal/credentials"
	"github.com/wfunc/bms-stand/internal/errors"
	"github.com/wfunc/bms-stand/internal/models"
	"github.com/wfunc/bms-stand/internal/report"
	"github.com/wfunc/bms-stand/internal/results"
	"go.uber.org/zap"
)

// 状态栏文本
const (
	StatusConnecting = "Подключение к устройству..."
	StatusWaiting    = "Ожидание результатов испытаний..."
	StatusReceived   = "Результаты получены"
	StatusNoDevice   = "Устройство не подключено"
)

// Status 试验台状态快照
type Status struct {
	Mode        string                                       `json:"mode"`
	Connected   bool                                         `json:"connected"`
	Sealed      bool                                         `json:"sealed"`
	Listening   bool                                         `json:"listening"`
	Text        string                                       `json:"status"`
	Operator    string                                       `json:"operator,omitempty"`
	Cells       [results.Channels][results.Conditions]string `json:"cells"`
	Verdict     *int                                         `json:"verdict,omitempty"`
	VerdictText string                                       `json:"verdict_text,omitempty"`
	Negative    *bool                                        `json:"negative,omitempty"`
	LastRun     *RunInfo                                     `json:"last_run,omitempty"`
	Dropped     int                                          `json:"dropped"`
	DeviceError string                                       `json:"device_error,omitempty"`
}

// SetOperator 设置当前登录的操作员
func (c *Controller) SetOperator(ctx context.Context, user *credentials.User) error {
	return c.do(ctx, func() error {
		c.operator = user
		c.logger.Info("操作员已切换", zap.String("user", user.ID))
		return nil
	})
}

// Operator 当前操作员
func (c *Controller) Operator(ctx context.Context) (*credentials.User, error) {
	var u *credentials.User
	err := c.do(ctx, func() error {
		if c.operator != nil {
			cp := *c.operator
			u = &cp
		}
		return nil
	})
	return u, err
}

// Status 当前状态
func (c *Controller) Status(ctx context.Context) (*Status, error) {
	var st *Status
	err := c.do(ctx, func() error {
		st = c.status()
		return nil
	})
	return st, err
}

func (c *Controller) status() *Status {
	snap := c.matrix.Snapshot()
	st := &Status{
		Mode:      c.session.Mode(),
		Connected: snap.Connected,
		Sealed:    snap.Sealed,
		Listening: c.session.Enabled(),
		Operator:  c.operatorID(),
		Dropped:   c.dropped,
	}
	for i := range snap.Grid {
		for j := range snap.Grid[i] {
			st.Cells[i][j] = snap.Grid[i][j].Symbol()
		}
	}
	switch {
	case snap.Sealed:
		st.Text = StatusReceived
	case snap.Connected:
		st.Text = StatusWaiting
	case c.connErr != nil:
		st.Text = StatusNoDevice
		st.DeviceError = c.connErr.Error()
	default:
		st.Text = StatusConnecting
	}
	if snap.HasVerdict {
		v := int(snap.Verdict)
		neg := results.Negative(snap.Grid, snap.Verdict)
		st.Verdict = &v
		st.VerdictText = snap.Verdict.String()
		st.Negative = &neg
	}
	if c.lastRun != nil && snap.Sealed {
		run := *c.lastRun
		st.LastRun = &run
	}
	return st
}

// Reset 清空结果并重新开启监听，确认由调用方负责
func (c *Controller) Reset(ctx context.Context) error {
	return c.do(ctx, func() error {
		c.matrix.Reset()
		c.lastRun = nil
		c.logger.Info("结果已清空", zap.String("user", c.operatorID()))
		c.publish(MessageReset, c.status())
		return c.logEvent("Пользователь %s сбросил результаты испытания", c.operatorID())
	})
}

// GenerateReport 生成协议，写入事件日志并保存报告记录。失败时结果保持锁定
func (c *Controller) GenerateReport(ctx context.Context, systemName, serialNumber string) (*report.Artifact, error) {
	var art *report.Artifact
	err := c.do(ctx, func() error {
		summary, err := c.matrix.Summary()
		if err != nil {
			return err
		}

		meta := report.Meta{
			BMSModel:    c.reportCfg.BMSModel,
			ProtocolNo:  c.reportCfg.ProtocolNo,
			TestArea:    c.testArea(),
			QCInspector: c.reportCfg.QCInspector,
			Time:        c.now(),
		}
		if c.operator != nil {
			meta.Engineer = c.operator.ShortName()
		}

		art, err = c.generator.Generate(systemName, serialNumber, meta, summary)
		if err != nil {
			c.logger.Error("生成协议失败", zap.Error(err))
			return err
		}

		if err := c.logEvent("Report: %s, hash: %s", art.Path, art.Digest); err != nil {
			return errors.Wrap(err, errors.ErrFileWrite, "журнал событий")
		}

		rec := &models.ReportRecord{
			Filename:     art.Filename,
			Path:         art.Path,
			SystemName:   art.SystemName,
			SerialNumber: art.SerialNumber,
			Digest:       art.Digest,
			Size:         art.Size,
			Operator:     c.operatorID(),
			Passed:       !art.Negative,
			GeneratedAt:  art.GeneratedAt,
		}
		if c.lastRun != nil {
			rec.RunID = c.lastRun.RunID
		}
		if err := c.history.RecordReport(ctx, rec); err != nil {
			c.logger.Warn("报告记录未保存", zap.Error(err))
		}
		c.publish(MessageReport, art)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return art, nil
}
