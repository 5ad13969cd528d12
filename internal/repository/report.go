package repository

import (
	"context"

	"github.com/wfunc/bms-stand/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ReportRepository 报告记录仓储接口
type ReportRepository interface {
	BaseRepository
	Create(ctx context.Context, rec *models.ReportRecord) error
	FindByFilename(ctx context.Context, filename string) (*models.ReportRecord, error)
	FindBySerial(ctx context.Context, serial string) ([]*models.ReportRecord, error)
	FindByRunID(ctx context.Context, runID string) ([]*models.ReportRecord, error)
}

// reportRepo 报告记录仓储实现
type reportRepo struct {
	*BaseRepo
}

// NewReportRepository 创建报告记录仓储
func NewReportRepository(db *gorm.DB) ReportRepository {
	return &reportRepo{BaseRepo: NewBaseRepo(db)}
}

// Create 保存报告记录，同名文件覆盖旧记录
func (r *reportRepo) Create(ctx context.Context, rec *models.ReportRecord) error {
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "filename"}},
		DoUpdates: clause.AssignmentColumns([]string{"path", "system_name", "serial_number", "digest", "size", "operator", "run_id", "passed", "generated_at", "updated_at"}),
	}).Create(rec).Error
}

// FindByFilename 按文件名查找
func (r *reportRepo) FindByFilename(ctx context.Context, filename string) (*models.ReportRecord, error) {
	var rec models.ReportRecord
	if err := r.db.WithContext(ctx).Where("filename = ?", filename).First(&rec).Error; err != nil {
		return nil, err
	}
	return &rec, nil
}

// FindBySerial 按序列号查找（不区分大小写）
func (r *reportRepo) FindBySerial(ctx context.Context, serial string) ([]*models.ReportRecord, error) {
	var recs []*models.ReportRecord
	err := r.db.WithContext(ctx).
		Where("LOWER(serial_number) = LOWER(?)", serial).
		Order("generated_at DESC").
		Find(&recs).Error
	return recs, err
}

// FindByRunID 某次测试生成的全部报告
func (r *reportRepo) FindByRunID(ctx context.Context, runID string) ([]*models.ReportRecord, error) {
	var recs []*models.ReportRecord
	err := r.db.WithContext(ctx).
		Where("run_id = ?", runID).
		Order("generated_at ASC").
		Find(&recs).Error
	return recs, err
}
