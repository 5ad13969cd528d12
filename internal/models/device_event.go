package models

import (
	"time"

	"gorm.io/gorm"
)

// DeviceEventKind 设备事件类型
type DeviceEventKind string

const (
	DeviceEventConnectivity DeviceEventKind = "CONNECTIVITY"
	DeviceEventTest         DeviceEventKind = "TEST"
	DeviceEventDropped      DeviceEventKind = "DROPPED" // 已锁定或未连接时收到的测试事件
)

// DeviceEvent 设备事件日志
type DeviceEvent struct {
	ID        uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	CreatedAt time.Time `gorm:"index;not null" json:"created_at"`

	Kind    DeviceEventKind `gorm:"type:varchar(20);index;not null" json:"kind"`
	Mode    string          `gorm:"type:varchar(20)" json:"mode"` // emulator, serial
	Success bool            `json:"success"`
	RunID   string          `gorm:"type:varchar(36);index" json:"run_id,omitempty"`
	Message string          `gorm:"type:text" json:"message,omitempty"`
	Error   string          `gorm:"type:text" json:"error,omitempty"`
}

// TableName 指定表名
func (DeviceEvent) TableName() string {
	return "device_events"
}

// BeforeCreate 创建前的钩子
func (e *DeviceEvent) BeforeCreate(tx *gorm.DB) error {
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}
	return nil
}
