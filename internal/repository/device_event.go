package repository

import (
	"context"
	"time"

	"github.com/wfunc/bms-stand/internal/models"
	"gorm.io/gorm"
)

// DeviceEventRepository 设备事件仓储接口
type DeviceEventRepository interface {
	BaseRepository
	Create(ctx context.Context, event *models.DeviceEvent) error
	CreateBatch(ctx context.Context, events []*models.DeviceEvent) error
	Recent(ctx context.Context, kind models.DeviceEventKind, limit int) ([]*models.DeviceEvent, error)
	CleanOld(ctx context.Context, before time.Time) (int64, error)
}

// deviceEventRepo 设备事件仓储实现
type deviceEventRepo struct {
	*BaseRepo
}

// NewDeviceEventRepository 创建设备事件仓储
func NewDeviceEventRepository(db *gorm.DB) DeviceEventRepository {
	return &deviceEventRepo{BaseRepo: NewBaseRepo(db)}
}

// Create 保存设备事件
func (r *deviceEventRepo) Create(ctx context.Context, event *models.DeviceEvent) error {
	return r.db.WithContext(ctx).Create(event).Error
}

// CreateBatch 批量保存设备事件
func (r *deviceEventRepo) CreateBatch(ctx context.Context, events []*models.DeviceEvent) error {
	if len(events) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).CreateInBatches(events, 100).Error
}

// Recent 最近的设备事件，kind 为空时返回全部类型
func (r *deviceEventRepo) Recent(ctx context.Context, kind models.DeviceEventKind, limit int) ([]*models.DeviceEvent, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	db := r.db.WithContext(ctx).Model(&models.DeviceEvent{})
	if kind != "" {
		db = db.Where("kind = ?", kind)
	}
	var events []*models.DeviceEvent
	err := db.Scopes(Newest("created_at")).Limit(limit).Find(&events).Error
	return events, err
}

// CleanOld 清理旧事件
func (r *deviceEventRepo) CleanOld(ctx context.Context, before time.Time) (int64, error) {
	result := r.db.WithContext(ctx).Where("created_at < ?", before).Delete(&models.DeviceEvent{})
	return result.RowsAffected, result.Error
}
