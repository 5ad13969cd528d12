package models

import (
	"time"

	"gorm.io/gorm"
)

// GridCells 结果矩阵单元数（8通道 x 4条件）
const GridCells = 32

// TestRunRecord 一次被接受的测试结果
type TestRunRecord struct {
	BaseModel
	RunID       string    `gorm:"type:varchar(36);uniqueIndex;not null" json:"run_id"`
	Operator    string    `gorm:"type:varchar(100);index" json:"operator"`
	TestArea    string    `gorm:"type:varchar(255)" json:"test_area"`
	ReceivedAt  time.Time `gorm:"index;not null" json:"received_at"`
	DeviceTime  string    `gorm:"type:varchar(16)" json:"device_time"`   // HH:MM:SS
	Duration    float64   `json:"duration"`                              // 秒，保留3位小数
	Grid        string    `gorm:"type:varchar(32);not null" json:"grid"` // 行优先，'+' '-' ' '
	Verdict     int       `gorm:"index" json:"verdict"`
	VerdictText string    `gorm:"type:varchar(255)" json:"verdict_text"`
	Passed      bool      `gorm:"index" json:"passed"`
}

// TableName 指定表名
func (TestRunRecord) TableName() string {
	return "test_runs"
}

// BeforeCreate 创建前的钩子
func (r *TestRunRecord) BeforeCreate(tx *gorm.DB) error {
	if r.ReceivedAt.IsZero() {
		r.ReceivedAt = time.Now()
	}
	return nil
}

// TestRunQuery 测试记录查询条件
type TestRunQuery struct {
	Operator  string     `form:"operator"`
	Passed    *bool      `form:"passed"`
	StartTime *time.Time `form:"start_time" time_format:"2006-01-02T15:04:05Z07:00"`
	EndTime   *time.Time `form:"end_time" time_format:"2006-01-02T15:04:05Z07:00"`
	Page      int        `form:"page"`
	PageSize  int        `form:"page_size"`
}
