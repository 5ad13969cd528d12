package device

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/tarm/serial"
)

// SerialPort 串口接口，便于测试替换
type SerialPort interface {
	io.ReadWriteCloser
	Flush() error
}

// PortOpener 打开串口
type PortOpener func(cfg *serial.Config) (SerialPort, error)

// SerialConfig 串口参数
type SerialConfig struct {
	Port        string
	BaudRate    int
	DataBits    int
	StopBits    int
	Parity      string
	ReadTimeout time.Duration
	EventBuffer int
}

// SerialPortExists 检查串口设备是否存在
func SerialPortExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// OpenTarmPort 使用 tarm/serial 打开串口
func OpenTarmPort(cfg *serial.Config) (SerialPort, error) {
	return serial.OpenPort(cfg)
}

// tarmConfig 转换为 tarm/serial 配置
func (c SerialConfig) tarmConfig() *serial.Config {
	// 解析校验位
	parity := serial.ParityNone
	switch strings.ToLower(c.Parity) {
	case "o", "odd":
		parity = serial.ParityOdd
	case "e", "even":
		parity = serial.ParityEven
	}

	size := byte(c.DataBits)
	if size == 0 {
		size = serial.DefaultSize
	}
	stopBits := serial.Stop1
	if c.StopBits == 2 {
		stopBits = serial.Stop2
	}

	return &serial.Config{
		Name:        c.Port,
		Baud:        c.BaudRate,
		Size:        size,
		Parity:      parity,
		StopBits:    stopBits,
		ReadTimeout: c.ReadTimeout,
	}
}
