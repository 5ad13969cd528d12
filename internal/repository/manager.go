package repository

import (
	"sync"

	"gorm.io/gorm"
)

// Manager 仓储管理器，提供所有仓储的统一访问接口
type Manager struct {
	db *gorm.DB

	// 仓储实例（使用懒加载）
	testRunOnce sync.Once
	testRun     TestRunRepository

	reportOnce sync.Once
	report     ReportRepository

	deviceEventOnce sync.Once
	deviceEvent     DeviceEventRepository
}

// NewManager 创建仓储管理器
func NewManager(db *gorm.DB) *Manager {
	return &Manager{db: db}
}

// GetDB 获取数据库实例
func (m *Manager) GetDB() *gorm.DB {
	return m.db
}

// TestRun 获取测试记录仓储
func (m *Manager) TestRun() TestRunRepository {
	m.testRunOnce.Do(func() {
		m.testRun = NewTestRunRepository(m.db)
	})
	return m.testRun
}

// Report 获取报告记录仓储
func (m *Manager) Report() ReportRepository {
	m.reportOnce.Do(func() {
		m.report = NewReportRepository(m.db)
	})
	return m.report
}

// DeviceEvent 获取设备事件仓储
func (m *Manager) DeviceEvent() DeviceEventRepository {
	m.deviceEventOnce.Do(func() {
		m.deviceEvent = NewDeviceEventRepository(m.db)
	})
	return m.deviceEvent
}
