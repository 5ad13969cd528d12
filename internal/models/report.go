package models

import "time"

// ReportRecord 已生成的测试协议
type ReportRecord struct {
	BaseModel
	Filename     string    `gorm:"type:varchar(255);uniqueIndex;not null" json:"filename"`
	Path         string    `gorm:"type:varchar(1024);not null" json:"path"`
	SystemName   string    `gorm:"type:varchar(255)" json:"system_name"`
	SerialNumber string    `gorm:"type:varchar(255);index" json:"serial_number"`
	Digest       string    `gorm:"type:varchar(64);not null" json:"digest"` // SHA-256 hex
	Size         int64     `json:"size"`
	Operator     string    `gorm:"type:varchar(100)" json:"operator"`
	RunID        string    `gorm:"type:varchar(36);index" json:"run_id"`
	Passed       bool      `json:"passed"`
	GeneratedAt  time.Time `gorm:"index;not null" json:"generated_at"`
}

// TableName 指定表名
func (ReportRecord) TableName() string {
	return "report_records"
}
