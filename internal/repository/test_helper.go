package repository

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wfunc/bms-stand/internal/models"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// SetupTestDB 创建迁移完成的内存数据库
func SetupTestDB(t testing.TB) *gorm.DB {
	// 使用内存数据库进行测试（更快，不需要文件系统，在所有环境中都能工作）
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	// 每个连接都是独立的内存库，只保留一个连接
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, db.AutoMigrate(models.All()...))

	t.Cleanup(func() { CleanupTestDB(db) })
	return db
}

// CleanupTestDB 清理测试数据库
func CleanupTestDB(db *gorm.DB) {
	sqlDB, _ := db.DB()
	if sqlDB != nil {
		sqlDB.Close()
	}
}

// CreateTestRun 创建测试记录
func CreateTestRun(runID, operator string, passed bool, at time.Time) *models.TestRunRecord {
	grid := "++++++++++++++++++++++++++++++++"
	verdict := 0
	if !passed {
		grid = "+++++++++++++++++++++++++++++++-"
		verdict = 1
	}
	return &models.TestRunRecord{
		RunID:      runID,
		Operator:   operator,
		TestArea:   "Участок 1",
		ReceivedAt: at,
		DeviceTime: at.Format("15:04:05"),
		Duration:   0.5,
		Grid:       grid,
		Verdict:    verdict,
		Passed:     passed,
	}
}

// AssertTestRun 验证测试记录
func AssertTestRun(t *testing.T, expected, actual *models.TestRunRecord) {
	assert.Equal(t, expected.RunID, actual.RunID)
	assert.Equal(t, expected.Operator, actual.Operator)
	assert.Equal(t, expected.Grid, actual.Grid)
	assert.Equal(t, expected.Verdict, actual.Verdict)
	assert.Equal(t, expected.Passed, actual.Passed)
}
