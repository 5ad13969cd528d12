package device

import (
	"fmt"

	"github.com/wfunc/bms-stand/internal/config"
	"go.uber.org/zap"
)

// New 根据配置创建设备会话
func New(cfg *config.DeviceConfig, log *zap.Logger) (Session, error) {
	switch cfg.Mode {
	case ModeEmulator, "":
		return NewEmulator(EmulatorConfig{
			HandshakeDelay: cfg.HandshakeDelay,
			MinInterval:    cfg.MinInterval,
			MaxInterval:    cfg.MaxInterval,
			MinDuration:    cfg.MinDuration,
			MaxDuration:    cfg.MaxDuration,
			IdlePoll:       cfg.IdlePoll,
			EventBuffer:    cfg.EventBuffer,
		}, log), nil
	case ModeSerial:
		if !SerialPortExists(cfg.Serial.Port) {
			log.Warn("串口设备不存在", zap.String("port", cfg.Serial.Port))
		}
		return NewSerialSession(SerialConfig{
			Port:        cfg.Serial.Port,
			BaudRate:    cfg.Serial.BaudRate,
			DataBits:    cfg.Serial.DataBits,
			StopBits:    cfg.Serial.StopBits,
			Parity:      cfg.Serial.Parity,
			ReadTimeout: cfg.Serial.ReadTimeout,
			EventBuffer: cfg.EventBuffer,
		}, nil, log), nil
	default:
		return nil, fmt.Errorf("unknown device mode %q", cfg.Mode)
	}
}
