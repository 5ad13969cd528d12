package repository

import (
	"context"

	"github.com/wfunc/bms-stand/internal/models"
	"gorm.io/gorm"
)

// TestRunRepository 测试记录仓储接口
type TestRunRepository interface {
	BaseRepository
	Create(ctx context.Context, run *models.TestRunRecord) error
	FindByRunID(ctx context.Context, runID string) (*models.TestRunRecord, error)
	Query(ctx context.Context, query *models.TestRunQuery) ([]*models.TestRunRecord, int64, error)
	Latest(ctx context.Context) (*models.TestRunRecord, error)
	Stats(ctx context.Context) (*TestRunStats, error)
}

// TestRunStats 测试统计
type TestRunStats struct {
	Total  int64 `json:"total"`
	Passed int64 `json:"passed"`
	Failed int64 `json:"failed"`
}

// testRunRepo 测试记录仓储实现
type testRunRepo struct {
	*BaseRepo
}

// NewTestRunRepository 创建测试记录仓储
func NewTestRunRepository(db *gorm.DB) TestRunRepository {
	return &testRunRepo{BaseRepo: NewBaseRepo(db)}
}

// Create 保存测试记录
func (r *testRunRepo) Create(ctx context.Context, run *models.TestRunRecord) error {
	return r.db.WithContext(ctx).Create(run).Error
}

// FindByRunID 按运行ID查找
func (r *testRunRepo) FindByRunID(ctx context.Context, runID string) (*models.TestRunRecord, error) {
	var run models.TestRunRecord
	if err := r.db.WithContext(ctx).Where("run_id = ?", runID).First(&run).Error; err != nil {
		return nil, err
	}
	return &run, nil
}

// Query 分页查询测试记录，按接收时间倒序
func (r *testRunRepo) Query(ctx context.Context, query *models.TestRunQuery) ([]*models.TestRunRecord, int64, error) {
	db := r.db.WithContext(ctx).Model(&models.TestRunRecord{})

	if query.Operator != "" {
		db = db.Where("operator = ?", query.Operator)
	}
	if query.Passed != nil {
		db = db.Where("passed = ?", *query.Passed)
	}
	db = db.Scopes(Within("received_at", query.StartTime, query.EndTime))

	var total int64
	if err := db.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	p := NewPagination(query.Page, query.PageSize)
	var runs []*models.TestRunRecord
	err := db.Scopes(Paginate(p), Newest("received_at")).Find(&runs).Error
	return runs, total, err
}

// Latest 最近一次测试
func (r *testRunRepo) Latest(ctx context.Context) (*models.TestRunRecord, error) {
	var run models.TestRunRecord
	err := r.db.WithContext(ctx).Scopes(Newest("received_at")).First(&run).Error
	if err != nil {
		return nil, err
	}
	return &run, nil
}

// Stats 合格与不合格统计
func (r *testRunRepo) Stats(ctx context.Context) (*TestRunStats, error) {
	stats := &TestRunStats{}
	db := r.db.WithContext(ctx).Model(&models.TestRunRecord{})
	if err := db.Count(&stats.Total).Error; err != nil {
		return nil, err
	}
	if err := r.db.WithContext(ctx).Model(&models.TestRunRecord{}).Where("passed = ?", true).Count(&stats.Passed).Error; err != nil {
		return nil, err
	}
	stats.Failed = stats.Total - stats.Passed
	return stats, nil
}
