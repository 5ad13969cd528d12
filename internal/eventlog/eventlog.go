package eventlog

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/wfunc/bms-stand/internal/errors"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// TimeLayout 事件日志行首时间格式
const TimeLayout = "2006-01-02 15:04:05"

// Sink 追加式事件日志接口
type Sink interface {
	Log(message string) error
	Logf(format string, args ...interface{}) error
}

// FileSink 基于文件的追加式事件日志，每行格式为 "[YYYY-MM-DD HH:MM:SS] message"
type FileSink struct {
	mu     sync.Mutex
	file   *os.File
	core   zapcore.Core
	path   string
	now    func() time.Time
	logger *zap.Logger
}

// encoderConfig 只输出方括号时间与消息，不带级别与调用位置
func encoderConfig() zapcore.EncoderConfig {
	return zapcore.EncoderConfig{
		TimeKey:    "time",
		MessageKey: "msg",
		LineEnding: "\n",
		EncodeTime: func(t time.Time, enc zapcore.PrimitiveArrayEncoder) {
			enc.AppendString("[" + t.Format(TimeLayout) + "]")
		},
		ConsoleSeparator: " ",
	}
}

// Open 打开（或创建）事件日志文件
func Open(path string, log *zap.Logger) (*FileSink, error) {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, errors.Wrap(err, errors.ErrFileWrite, "创建事件日志目录失败")
		}
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrFileWrite, "打开事件日志失败")
	}

	if log == nil {
		log = zap.NewNop()
	}

	return &FileSink{
		file:   f,
		core:   zapcore.NewCore(zapcore.NewConsoleEncoder(encoderConfig()), zapcore.AddSync(f), zap.InfoLevel),
		path:   path,
		now:    time.Now,
		logger: log,
	}, nil
}

// Log 追加一条事件并立即刷盘
func (s *FileSink) Log(message string) error {
	// 单行记录，换行会破坏按行解析
	message = strings.ReplaceAll(strings.ReplaceAll(message, "\r", " "), "\n", " ")

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.file == nil {
		return errors.New(errors.ErrFileWrite, "事件日志已关闭")
	}
	entry := zapcore.Entry{Level: zapcore.InfoLevel, Time: s.now(), Message: message}
	if err := s.core.Write(entry, nil); err != nil {
		s.logger.Error("写入事件日志失败", zap.String("path", s.path), zap.Error(err))
		return errors.Wrap(err, errors.ErrFileWrite, "写入事件日志失败")
	}
	if err := s.core.Sync(); err != nil {
		s.logger.Error("事件日志刷盘失败", zap.String("path", s.path), zap.Error(err))
		return errors.Wrap(err, errors.ErrFileWrite, "事件日志刷盘失败")
	}

	s.logger.Info("event", zap.String("message", message))
	return nil
}

// Logf 格式化追加一条事件
func (s *FileSink) Logf(format string, args ...interface{}) error {
	return s.Log(fmt.Sprintf(format, args...))
}

// Path 返回日志文件路径
func (s *FileSink) Path() string {
	return s.path
}

// Close 关闭日志文件
func (s *FileSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.file == nil {
		return nil
	}
	err := s.file.Close()
	s.file = nil
	return err
}
