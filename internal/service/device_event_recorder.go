package service

import (
	"context"
	stderrors "errors"
	"sync"
	"time"

	"github.com/wfunc/bms-stand/internal/errors"
	"github.com/wfunc/bms-stand/internal/logger"
	"github.com/wfunc/bms-stand/internal/models"
	"github.com/wfunc/bms-stand/internal/repository"
	"go.uber.org/zap"
)

// maxRetained 写入超时时最多保留的事件数
const maxRetained = 1000

// DeviceEventRecorder 设备事件异步批量写入
type DeviceEventRecorder struct {
	repo     repository.DeviceEventRepository
	logger   *zap.Logger
	buffer   []*models.DeviceEvent
	bufferCh chan *models.DeviceEvent
	stopCh   chan struct{}
	done     chan struct{}
	interval time.Duration
	// writeTimeout 单次批量写入超时
	writeTimeout time.Duration
	stopOnce     sync.Once
}

// NewDeviceEventRecorder 创建并启动后台写入协程
func NewDeviceEventRecorder(repo repository.DeviceEventRepository, interval time.Duration, log *zap.Logger) *DeviceEventRecorder {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	r := &DeviceEventRecorder{
		repo:     repo,
		logger:   log,
		buffer:   make([]*models.DeviceEvent, 0, 100),
		bufferCh: make(chan *models.DeviceEvent, 1000),
		stopCh:   make(chan struct{}),
		done:     make(chan struct{}),
		interval: interval,

		writeTimeout: 5 * time.Second,
	}

	go r.backgroundWriter()

	return r
}

// backgroundWriter 后台写入协程
func (r *DeviceEventRecorder) backgroundWriter() {
	defer close(r.done)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case event := <-r.bufferCh:
			r.buffer = append(r.buffer, event)
			// 缓冲区满了立即写入
			if len(r.buffer) >= 100 {
				r.flushBuffer()
			}

		case <-ticker.C:
			r.flushBuffer()

		case <-r.stopCh:
			// 退出前写入剩余的事件
			for {
				select {
				case event := <-r.bufferCh:
					r.buffer = append(r.buffer, event)
				default:
					r.flushBuffer()
					return
				}
			}
		}
	}
}

// flushBuffer 写入缓冲区的事件，可重试的失败保留到下次写入
func (r *DeviceEventRecorder) flushBuffer() {
	if len(r.buffer) == 0 {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), r.writeTimeout)
	defer cancel()

	start := time.Now()
	err := r.repo.CreateBatch(ctx, r.buffer)
	logger.LogDatabaseOperation("create_batch", "device_events", time.Since(start), err)
	if err == nil {
		r.logger.Debug("批量写入设备事件成功", zap.Int("count", len(r.buffer)))
		r.buffer = make([]*models.DeviceEvent, 0, 100)
		return
	}

	err = classifyWriteError(err)
	if errors.IsRetryable(err) && len(r.buffer) < maxRetained {
		r.logger.Warn("写入设备事件超时，稍后重试", zap.Error(err), zap.Int("count", len(r.buffer)))
		return
	}
	r.logger.Error("批量写入设备事件失败", zap.Error(err), zap.Int("count", len(r.buffer)))
	r.buffer = make([]*models.DeviceEvent, 0, 100)
}

// classifyWriteError 超时归为可重试，其余为写入失败
func classifyWriteError(err error) error {
	if stderrors.Is(err, context.DeadlineExceeded) {
		return errors.New(errors.ErrTimeout, "写入设备事件超时").WithCause(err)
	}
	return errors.New(errors.ErrDatabaseInsert).WithCause(err)
}

// Record 异步记录一条设备事件，缓冲区满时丢弃
func (r *DeviceEventRecorder) Record(event *models.DeviceEvent) {
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now()
	}
	select {
	case <-r.stopCh:
		return
	default:
	}

	select {
	case r.bufferCh <- event:
	default:
		r.logger.Warn("设备事件缓冲区满，丢弃事件", zap.String("kind", string(event.Kind)))
	}
}

// Stop 停止并写入剩余事件
func (r *DeviceEventRecorder) Stop() {
	r.stopOnce.Do(func() {
		close(r.stopCh)
	})
	<-r.done
}
