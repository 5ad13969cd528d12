package service

import (
	"context"
	stderrors "errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wfunc/bms-stand/internal/errors"
	"github.com/wfunc/bms-stand/internal/models"
	"github.com/wfunc/bms-stand/internal/repository"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func TestHistoryServiceRecordsAndQueries(t *testing.T) {
	db := repository.SetupTestDB(t)
	history := NewHistoryService(repository.NewManager(db), zap.NewNop())
	ctx := context.Background()
	assert.True(t, history.Enabled())

	run := repository.CreateTestRun("run-1", "ivanov", true, time.Now())
	require.NoError(t, history.RecordRun(ctx, run))

	runs, total, err := history.ListRuns(ctx, &models.TestRunQuery{})
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	assert.Equal(t, "run-1", runs[0].RunID)

	stats, err := history.RunStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.Passed)

	rec := &models.ReportRecord{Filename: "a.pdf", Path: "reports/a.pdf", Digest: "ff", GeneratedAt: time.Now()}
	require.NoError(t, history.RecordReport(ctx, rec))
	found, err := history.FindReport(ctx, "a.pdf")
	require.NoError(t, err)
	assert.Equal(t, "ff", found.Digest)

	_, err = history.FindReport(ctx, "b.pdf")
	assert.True(t, errors.Is(err, errors.ErrNotFound))

	// Close 会把缓冲中的事件写入数据库
	history.RecordDeviceEvent(&models.DeviceEvent{Kind: models.DeviceEventConnectivity, Success: true})
	history.RecordDeviceEvent(&models.DeviceEvent{Kind: models.DeviceEventTest, RunID: "run-1"})
	history.Close()

	events, err := history.RecentDeviceEvents(ctx, "", 10)
	require.NoError(t, err)
	assert.Len(t, events, 2)
}

func TestNoopHistory(t *testing.T) {
	history := NewHistoryService(nil, zap.NewNop())
	ctx := context.Background()

	assert.False(t, history.Enabled())
	assert.NoError(t, history.RecordRun(ctx, &models.TestRunRecord{}))
	assert.NoError(t, history.RecordReport(ctx, &models.ReportRecord{}))
	history.RecordDeviceEvent(&models.DeviceEvent{})

	runs, total, err := history.ListRuns(ctx, &models.TestRunQuery{})
	assert.NoError(t, err)
	assert.Empty(t, runs)
	assert.Zero(t, total)

	_, err = history.FindReport(ctx, "x.pdf")
	assert.True(t, errors.Is(err, errors.ErrNotFound))
	history.Close()
}

func TestDeviceEventRecorderDropsAfterStop(t *testing.T) {
	db := repository.SetupTestDB(t)
	repo := repository.NewDeviceEventRepository(db)
	recorder := NewDeviceEventRecorder(repo, time.Hour, zap.NewNop())

	recorder.Record(&models.DeviceEvent{Kind: models.DeviceEventTest})
	recorder.Stop()
	recorder.Stop()
	recorder.Record(&models.DeviceEvent{Kind: models.DeviceEventTest})

	events, err := repo.Recent(context.Background(), "", 10)
	require.NoError(t, err)
	assert.Len(t, events, 1)
}

// flakyEventRepo 前几次批量写入返回指定错误
type flakyEventRepo struct {
	mu       sync.Mutex
	failures int
	err      error
	attempts int
	saved    []*models.DeviceEvent
}

func (r *flakyEventRepo) GetDB() *gorm.DB { return nil }

func (r *flakyEventRepo) Create(ctx context.Context, event *models.DeviceEvent) error {
	return r.CreateBatch(ctx, []*models.DeviceEvent{event})
}

func (r *flakyEventRepo) CreateBatch(_ context.Context, events []*models.DeviceEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.attempts++
	if r.attempts <= r.failures {
		return r.err
	}
	r.saved = append(r.saved, events...)
	return nil
}

func (r *flakyEventRepo) Recent(context.Context, models.DeviceEventKind, int) ([]*models.DeviceEvent, error) {
	return nil, nil
}

func (r *flakyEventRepo) CleanOld(context.Context, time.Time) (int64, error) { return 0, nil }

func (r *flakyEventRepo) state() (int, int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.attempts, len(r.saved)
}

func TestDeviceEventRecorderRetriesTimeout(t *testing.T) {
	repo := &flakyEventRepo{failures: 1, err: context.DeadlineExceeded}
	recorder := NewDeviceEventRecorder(repo, 10*time.Millisecond, zap.NewNop())
	defer recorder.Stop()

	recorder.Record(&models.DeviceEvent{Kind: models.DeviceEventTest})

	// 超时后事件保留，下一次写入成功
	require.Eventually(t, func() bool {
		attempts, saved := repo.state()
		return attempts >= 2 && saved == 1
	}, 2*time.Second, 5*time.Millisecond)
}

func TestDeviceEventRecorderDropsOnWriteError(t *testing.T) {
	repo := &flakyEventRepo{failures: 1, err: stderrors.New("constraint failed")}
	recorder := NewDeviceEventRecorder(repo, 10*time.Millisecond, zap.NewNop())

	recorder.Record(&models.DeviceEvent{Kind: models.DeviceEventTest})
	require.Eventually(t, func() bool {
		attempts, _ := repo.state()
		return attempts >= 1
	}, 2*time.Second, 5*time.Millisecond)
	recorder.Stop()

	_, saved := repo.state()
	assert.Zero(t, saved)
}

func TestClassifyWriteError(t *testing.T) {
	err := classifyWriteError(context.DeadlineExceeded)
	assert.True(t, errors.IsRetryable(err))
	assert.True(t, stderrors.Is(err, context.DeadlineExceeded))

	err = classifyWriteError(stderrors.New("disk full"))
	assert.True(t, errors.Is(err, errors.ErrDatabaseInsert))
	assert.False(t, errors.IsRetryable(err))
}
