package database

import (
	"fmt"
	"strings"

	"github.com/wfunc/bms-stand/internal/logger"
	"github.com/wfunc/bms-stand/internal/models"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// AutoMigrate 迁移全局数据库
func AutoMigrate(dsn string) error {
	if DB == nil {
		return fmt.Errorf("数据库未初始化")
	}
	return Migrate(DB, dsn, logger.WithModule("database"))
}

// Migrate 迁移表结构并创建组合索引
func Migrate(db *gorm.DB, dsn string, log *zap.Logger) error {
	if log == nil {
		log = zap.NewNop()
	}

	// 获取迁移锁，避免两个进程同时迁移同一个SQLite文件
	if path := sqlitePath(db, dsn); path != "" {
		lockFile, err := acquireMigrationLock(path, defaultLockAttempts, defaultLockWait, log)
		if err != nil {
			log.Error("无法获取迁移锁", zap.Error(err))
			return fmt.Errorf("获取迁移锁失败: %w", err)
		}
		defer releaseMigrationLock(lockFile, log)
	}

	log.Info("开始数据库迁移...")
	for _, model := range models.All() {
		if err := db.AutoMigrate(model); err != nil {
			log.Error("迁移失败",
				zap.String("model", fmt.Sprintf("%T", model)),
				zap.Error(err),
			)
			return err
		}
		log.Debug("迁移成功", zap.String("model", fmt.Sprintf("%T", model)))
	}

	createIndexes(db, log)
	log.Info("数据库迁移完成")
	return nil
}

// createIndexes 创建按序列号和时间检索的组合索引
func createIndexes(db *gorm.DB, log *zap.Logger) {
	statements := map[string]string{
		"idx_report_records_serial_generated": "CREATE INDEX IF NOT EXISTS idx_report_records_serial_generated ON report_records(serial_number, generated_at)",
		"idx_test_runs_operator_received":     "CREATE INDEX IF NOT EXISTS idx_test_runs_operator_received ON test_runs(operator, received_at)",
	}
	for name, stmt := range statements {
		if err := db.Exec(stmt).Error; err != nil {
			log.Warn("创建索引失败", zap.String("index", name), zap.Error(err))
		}
	}
}

// sqlitePath 返回SQLite数据库文件路径，内存库与其他驱动返回空
func sqlitePath(db *gorm.DB, dsn string) string {
	if db.Dialector.Name() != "sqlite" {
		return ""
	}
	path := strings.TrimPrefix(strings.SplitN(dsn, "?", 2)[0], "file:")
	if path == "" || path == ":memory:" || strings.Contains(dsn, "mode=memory") {
		return ""
	}
	return path
}
