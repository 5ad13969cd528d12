package service

import (
	"context"
	stderrors "errors"
	"time"

	"github.com/wfunc/bms-stand/internal/errors"
	"github.com/wfunc/bms-stand/internal/logger"
	"github.com/wfunc/bms-stand/internal/models"
	"github.com/wfunc/bms-stand/internal/repository"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// HistoryService 测试与报告历史
type HistoryService interface {
	Enabled() bool
	RecordRun(ctx context.Context, run *models.TestRunRecord) error
	RecordReport(ctx context.Context, rec *models.ReportRecord) error
	RecordDeviceEvent(event *models.DeviceEvent)
	ListRuns(ctx context.Context, query *models.TestRunQuery) ([]*models.TestRunRecord, int64, error)
	RunStats(ctx context.Context) (*repository.TestRunStats, error)
	FindReport(ctx context.Context, filename string) (*models.ReportRecord, error)
	RecentDeviceEvents(ctx context.Context, kind models.DeviceEventKind, limit int) ([]*models.DeviceEvent, error)
	Close()
}

// NewHistoryService 创建历史服务，repos 为空时返回空实现
func NewHistoryService(repos *repository.Manager, log *zap.Logger) HistoryService {
	if repos == nil {
		return noopHistory{}
	}
	return &historyService{
		repos:    repos,
		recorder: NewDeviceEventRecorder(repos.DeviceEvent(), 5*time.Second, log),
		log:      log,
	}
}

// historyService 历史服务实现
type historyService struct {
	repos    *repository.Manager
	recorder *DeviceEventRecorder
	log      *zap.Logger
}

func (s *historyService) Enabled() bool { return true }

// RecordRun 保存测试记录
func (s *historyService) RecordRun(ctx context.Context, run *models.TestRunRecord) error {
	start := time.Now()
	err := s.repos.TestRun().Create(ctx, run)
	logger.LogDatabaseOperation("create", "test_runs", time.Since(start), err)
	if err != nil {
		s.log.Error("保存测试记录失败", zap.String("run_id", run.RunID), zap.Error(err))
		return errors.Wrap(err, errors.ErrDatabaseInsert)
	}
	return nil
}

// RecordReport 保存报告记录
func (s *historyService) RecordReport(ctx context.Context, rec *models.ReportRecord) error {
	start := time.Now()
	err := s.repos.Report().Create(ctx, rec)
	logger.LogDatabaseOperation("create", "report_records", time.Since(start), err)
	if err != nil {
		s.log.Error("保存报告记录失败", zap.String("filename", rec.Filename), zap.Error(err))
		return errors.Wrap(err, errors.ErrDatabaseInsert)
	}
	return nil
}

// RecordDeviceEvent 异步记录设备事件
func (s *historyService) RecordDeviceEvent(event *models.DeviceEvent) {
	s.recorder.Record(event)
}

// ListRuns 分页查询测试记录
func (s *historyService) ListRuns(ctx context.Context, query *models.TestRunQuery) ([]*models.TestRunRecord, int64, error) {
	runs, total, err := s.repos.TestRun().Query(ctx, query)
	if err != nil {
		return nil, 0, errors.Wrap(err, errors.ErrDatabaseQuery)
	}
	return runs, total, nil
}

// RunStats 测试统计
func (s *historyService) RunStats(ctx context.Context) (*repository.TestRunStats, error) {
	stats, err := s.repos.TestRun().Stats(ctx)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrDatabaseQuery)
	}
	return stats, nil
}

// FindReport 按文件名查找报告记录
func (s *historyService) FindReport(ctx context.Context, filename string) (*models.ReportRecord, error) {
	rec, err := s.repos.Report().FindByFilename(ctx, filename)
	if err != nil {
		if stderrors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errors.Newf(errors.ErrNotFound, "нет записи об отчете %s", filename)
		}
		return nil, errors.Wrap(err, errors.ErrDatabaseQuery)
	}
	return rec, nil
}

// RecentDeviceEvents 最近的设备事件
func (s *historyService) RecentDeviceEvents(ctx context.Context, kind models.DeviceEventKind, limit int) ([]*models.DeviceEvent, error) {
	events, err := s.repos.DeviceEvent().Recent(ctx, kind, limit)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrDatabaseQuery)
	}
	return events, nil
}

// Close 写入剩余设备事件
func (s *historyService) Close() {
	s.recorder.Stop()
}

// noopHistory 数据库关闭时的空实现
type noopHistory struct{}

func (noopHistory) Enabled() bool                                            { return false }
func (noopHistory) RecordRun(context.Context, *models.TestRunRecord) error   { return nil }
func (noopHistory) RecordReport(context.Context, *models.ReportRecord) error { return nil }
func (noopHistory) RecordDeviceEvent(*models.DeviceEvent)                    {}
func (noopHistory) Close()                                                   {}
func (noopHistory) RunStats(context.Context) (*repository.TestRunStats, error) {
	return &repository.TestRunStats{}, nil
}
func (noopHistory) ListRuns(context.Context, *models.TestRunQuery) ([]*models.TestRunRecord, int64, error) {
	return nil, 0, nil
}
func (noopHistory) FindReport(_ context.Context, filename string) (*models.ReportRecord, error) {
	return nil, errors.Newf(errors.ErrNotFound, "нет записи об отчете %s", filename)
}
func (noopHistory) RecentDeviceEvents(context.Context, models.DeviceEventKind, int) ([]*models.DeviceEvent, error) {
	return nil, nil
}
