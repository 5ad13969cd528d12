package device

import (
	"context"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/wfunc/bms-stand/internal/errors"
	"go.uber.org/zap"
)

// SerialSession 通过串口连接真实测试设备
type SerialSession struct {
	base
	cfg  SerialConfig
	open PortOpener
	now  func() time.Time

	portMu sync.Mutex
	port   SerialPort
}

// NewSerialSession 创建串口会话，opener 为空时使用 tarm/serial
func NewSerialSession(cfg SerialConfig, opener PortOpener, log *zap.Logger) *SerialSession {
	if opener == nil {
		opener = OpenTarmPort
	}
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = 2 * time.Second
	}
	if log == nil {
		log = zap.NewNop()
	}
	s := &SerialSession{
		cfg:  cfg,
		open: opener,
		now:  time.Now,
	}
	s.init(ModeSerial, cfg.EventBuffer, log.With(zap.String("mode", ModeSerial), zap.String("port", cfg.Port)))
	return s
}

// Start 打开串口并开始握手
func (s *SerialSession) Start(ctx context.Context) error {
	return s.launch(ctx, s.run)
}

// Stop 关闭串口并等待读协程退出
func (s *SerialSession) Stop() {
	s.shutdown(s.closePort)
	s.logger.Info("串口会话已停止")
}

func (s *SerialSession) closePort() {
	s.portMu.Lock()
	defer s.portMu.Unlock()
	if s.port == nil {
		return
	}
	if err := s.port.Close(); err != nil {
		s.logger.Warn("关闭串口失败", zap.Error(err))
	}
	s.port = nil
}

func (s *SerialSession) fail(ctx context.Context, err error) {
	s.logger.Error("设备连接失败", zap.Error(err))
	s.emit(ctx, ConnectivityEvent{Success: false, Err: err, At: s.now()})
}

func (s *SerialSession) run(ctx context.Context) {
	port, err := s.open(s.cfg.tarmConfig())
	if err != nil {
		s.fail(ctx, errors.Wrap(err, errors.ErrSerialPortOpen, s.cfg.Port))
		return
	}

	s.portMu.Lock()
	if ctx.Err() != nil {
		s.portMu.Unlock()
		port.Close()
		return
	}
	s.port = port
	s.portMu.Unlock()
	defer s.closePort()

	lines := make(chan string, 16)
	readErr := make(chan error, 1)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.readLoop(ctx, port, lines, readErr)
	}()

	if err := port.Flush(); err != nil {
		s.logger.Warn("清空串口缓冲失败", zap.Error(err))
	}
	if _, err := port.Write([]byte(cmdPing + "\n")); err != nil {
		s.fail(ctx, errors.Wrap(err, errors.ErrSerialPortWrite, "PING"))
		return
	}

	if !s.awaitPong(ctx, lines, readErr) {
		return
	}
	s.logger.Info("设备握手完成")
	if !s.emit(ctx, ConnectivityEvent{Success: true, At: s.now()}) {
		return
	}

	for {
		select {
		case <-ctx.Done():
			return
		case err := <-readErr:
			s.fail(ctx, errors.Wrap(err, errors.ErrDeviceDisconnect))
			return
		case line := <-lines:
			if !s.Enabled() {
				s.logger.Debug("监听关闭，丢弃设备数据", zap.String("line", line))
				continue
			}
			duration, grid, verdict, err := ParseTripLine(line)
			if err != nil {
				s.logger.Warn("无法解析设备数据", zap.String("line", line), zap.Error(err))
				continue
			}
			if !s.emit(ctx, TestEvent{Timestamp: s.now(), Duration: duration, Grid: grid, Verdict: verdict}) {
				return
			}
		}
	}
}

// awaitPong 在读超时内等待 PONG
func (s *SerialSession) awaitPong(ctx context.Context, lines <-chan string, readErr <-chan error) bool {
	timer := time.NewTimer(s.cfg.ReadTimeout)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return false
		case <-timer.C:
			s.fail(ctx, errors.New(errors.ErrHandshakeTimeout, "нет ответа PONG"))
			return false
		case err := <-readErr:
			s.fail(ctx, errors.Wrap(err, errors.ErrDeviceDisconnect))
			return false
		case line := <-lines:
			if line == replyPong {
				return true
			}
			s.logger.Debug("握手期间忽略数据", zap.String("line", line))
		}
	}
}

// readLoop 按行读取串口。tarm/serial 读超时返回 io.EOF，视为空闲
func (s *SerialSession) readLoop(ctx context.Context, port SerialPort, lines chan<- string, readErr chan<- error) {
	buf := make([]byte, 256)
	var pending strings.Builder
	for {
		n, err := port.Read(buf)
		if n > 0 {
			for _, b := range buf[:n] {
				if b != '\n' {
					pending.WriteByte(b)
					continue
				}
				line := strings.TrimSpace(pending.String())
				pending.Reset()
				if line == "" {
					continue
				}
				select {
				case lines <- line:
				case <-ctx.Done():
					return
				}
			}
		}
		if err == io.EOF {
			err = nil
		}
		if err != nil {
			if ctx.Err() == nil {
				readErr <- err
			}
			return
		}
		if ctx.Err() != nil {
			return
		}
	}
}
