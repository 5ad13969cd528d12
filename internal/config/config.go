package config

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// EnvPrefix 环境变量前缀，例如 BMS_STAND_DEVICE_MODE=serial
const EnvPrefix = "BMS_STAND"

// PlaceholderJWTSecret 默认占位密钥，仅允许在监控接口关闭时存在
const PlaceholderJWTSecret = "change-me"

// Config 全局配置结构体
type Config struct {
	App         AppConfig         `mapstructure:"app"`
	Device      DeviceConfig      `mapstructure:"device"`
	Report      ReportConfig      `mapstructure:"report"`
	Credentials CredentialsConfig `mapstructure:"credentials"`
	EventLog    EventLogConfig    `mapstructure:"event_log"`
	Database    DatabaseConfig    `mapstructure:"database"`
	API         APIConfig         `mapstructure:"api"`
	Log         LogConfig         `mapstructure:"log"`
	System      SystemConfig      `mapstructure:"system"`
}

// AppConfig 应用配置
type AppConfig struct {
	Name     string `mapstructure:"name"`
	Language string `mapstructure:"language"`
}

// DeviceConfig 测试设备配置
type DeviceConfig struct {
	Mode           string        `mapstructure:"mode"` // emulator, serial
	HandshakeDelay time.Duration `mapstructure:"handshake_delay"`
	MinInterval    time.Duration `mapstructure:"min_interval"`
	MaxInterval    time.Duration `mapstructure:"max_interval"`
	MinDuration    float64       `mapstructure:"min_duration"`
	MaxDuration    float64       `mapstructure:"max_duration"`
	IdlePoll       time.Duration `mapstructure:"idle_poll"`
	EventBuffer    int           `mapstructure:"event_buffer"`
	Serial         SerialConfig  `mapstructure:"serial"`
}

// SerialConfig 串口配置
type SerialConfig struct {
	Port        string        `mapstructure:"port"`
	BaudRate    int           `mapstructure:"baud_rate"`
	DataBits    int           `mapstructure:"data_bits"`
	StopBits    int           `mapstructure:"stop_bits"`
	Parity      string        `mapstructure:"parity"`
	ReadTimeout time.Duration `mapstructure:"read_timeout"`
}

// ReportConfig 报告配置
type ReportConfig struct {
	Dir          string     `mapstructure:"dir"`
	BMSModel     string     `mapstructure:"bms_model"`
	ProtocolNo   string     `mapstructure:"protocol_no"`
	TestArea     string     `mapstructure:"test_area"`
	QCInspector  string     `mapstructure:"qc_inspector"`
	BottomMargin float64    `mapstructure:"bottom_margin"`
	Fonts        FontConfig `mapstructure:"fonts"`
}

// FontConfig 字体配置
type FontConfig struct {
	Regular string `mapstructure:"regular"`
	Bold    string `mapstructure:"bold"`
}

// CredentialsConfig 用户凭据存储配置
type CredentialsConfig struct {
	Path        string `mapstructure:"path"`
	HashScheme  string `mapstructure:"hash_scheme"` // sha256, argon2id
	MaxAttempts int    `mapstructure:"max_attempts"`
	// 监控接口连续失败后的锁定时长
	LockoutDuration time.Duration `mapstructure:"lockout_duration"`
}

// EventLogConfig 事件日志配置
type EventLogConfig struct {
	Path string `mapstructure:"path"`
}

// DatabaseConfig 数据库配置
type DatabaseConfig struct {
	Enabled         bool          `mapstructure:"enabled"`
	Driver          string        `mapstructure:"driver"`
	DSN             string        `mapstructure:"dsn"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	LogLevel        string        `mapstructure:"log_level"`
	AutoMigrate     bool          `mapstructure:"auto_migrate"`
}

// APIConfig 监控接口配置
type APIConfig struct {
	Enabled         bool          `mapstructure:"enabled"`
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	Mode            string        `mapstructure:"mode"`
	JWTSecret       string        `mapstructure:"jwt_secret"`
	TokenExpiry     time.Duration `mapstructure:"token_expiry"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// LogConfig 日志配置
type LogConfig struct {
	Level   string            `mapstructure:"level"`
	Format  string            `mapstructure:"format"`
	Output  string            `mapstructure:"output"`
	File    LogFileConfig     `mapstructure:"file"`
	Modules map[string]string `mapstructure:"modules"`
}

// LogFileConfig 日志文件配置
type LogFileConfig struct {
	Path       string `mapstructure:"path"`
	Filename   string `mapstructure:"filename"`
	MaxSize    int    `mapstructure:"max_size"`
	MaxAge     int    `mapstructure:"max_age"`
	MaxBackups int    `mapstructure:"max_backups"`
	Compress   bool   `mapstructure:"compress"`
}

// SystemConfig 系统配置
type SystemConfig struct {
	Timezone string `mapstructure:"timezone"`
}

var (
	cfg  *Config
	once sync.Once
	mu   sync.RWMutex
	v    *viper.Viper
)

// Init 初始化全局配置
func Init(configPath string) error {
	var err error
	once.Do(func() {
		var loaded *Config
		v, loaded, err = load(configPath)
		if err != nil {
			return
		}
		mu.Lock()
		cfg = loaded
		mu.Unlock()
	})

	return err
}

// Load 加载一份独立的配置（不影响全局实例）
func Load(configPath string) (*Config, error) {
	_, c, err := load(configPath)
	return c, err
}

func load(configPath string) (*viper.Viper, *Config, error) {
	vp := viper.New()

	// 设置配置文件路径
	if configPath != "" {
		vp.SetConfigFile(configPath)
	} else {
		vp.SetConfigName("config")
		vp.SetConfigType("yaml")
		vp.AddConfigPath("./config")
		vp.AddConfigPath(".")
	}

	// 设置环境变量前缀
	vp.SetEnvPrefix(EnvPrefix)
	vp.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	vp.AutomaticEnv()

	setDefaults(vp)

	// 如果配置文件不存在，使用默认配置
	if err := vp.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, nil, fmt.Errorf("读取配置文件失败: %w", err)
		}
	}

	c := &Config{}
	if err := vp.Unmarshal(c); err != nil {
		return nil, nil, fmt.Errorf("解析配置失败: %w", err)
	}

	if err := c.Validate(); err != nil {
		return nil, nil, err
	}

	return vp, c, nil
}

// Validate 校验配置
func (c *Config) Validate() error {
	switch c.Device.Mode {
	case "emulator", "serial":
	default:
		return fmt.Errorf("不支持的设备模式: %s", c.Device.Mode)
	}
	if c.Device.MinInterval <= 0 || c.Device.MaxInterval < c.Device.MinInterval {
		return fmt.Errorf("设备事件间隔配置无效: %s..%s", c.Device.MinInterval, c.Device.MaxInterval)
	}
	if c.Device.MinDuration < 0 || c.Device.MaxDuration < c.Device.MinDuration {
		return fmt.Errorf("测试时长配置无效: %.3f..%.3f", c.Device.MinDuration, c.Device.MaxDuration)
	}
	switch c.Credentials.HashScheme {
	case "sha256", "argon2id":
	default:
		return fmt.Errorf("不支持的密码哈希方案: %s", c.Credentials.HashScheme)
	}
	if c.Credentials.MaxAttempts <= 0 {
		return fmt.Errorf("登录尝试次数必须大于0")
	}
	if c.Report.Dir == "" {
		return fmt.Errorf("报告目录不能为空")
	}
	// 开启监控接口时必须替换默认密钥
	if c.API.Enabled && (c.API.JWTSecret == "" || c.API.JWTSecret == PlaceholderJWTSecret) {
		return fmt.Errorf("监控接口已开启，api.jwt_secret 必须设置为非默认值")
	}
	return nil
}

// setDefaults 设置默认配置值
func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "Стенд электрических испытаний СКУ ЛИАБ")
	v.SetDefault("app.language", "ru")

	// 设备默认配置（模拟器）
	v.SetDefault("device.mode", "emulator")
	v.SetDefault("device.handshake_delay", "1s")
	v.SetDefault("device.min_interval", "3s")
	v.SetDefault("device.max_interval", "10s")
	v.SetDefault("device.min_duration", 0.1)
	v.SetDefault("device.max_duration", 1.0)
	v.SetDefault("device.idle_poll", "1s")
	v.SetDefault("device.event_buffer", 4)
	v.SetDefault("device.serial.port", "/dev/ttyUSB0")
	v.SetDefault("device.serial.baud_rate", 9600)
	v.SetDefault("device.serial.data_bits", 8)
	v.SetDefault("device.serial.stop_bits", 1)
	v.SetDefault("device.serial.parity", "N")
	v.SetDefault("device.serial.read_timeout", "2s")

	// 报告默认配置
	v.SetDefault("report.dir", "reports")
	v.SetDefault("report.bms_model", "BMS_ABC123")
	v.SetDefault("report.protocol_no", "1246")
	v.SetDefault("report.test_area", "испытательный участок ООО «__________»")
	v.SetDefault("report.qc_inspector", "Финогенова Е.С.")
	v.SetDefault("report.bottom_margin", 50.0)
	v.SetDefault("report.fonts.regular", "C:/Windows/Fonts/times.ttf")
	v.SetDefault("report.fonts.bold", "C:/Windows/Fonts/timesbd.ttf")

	v.SetDefault("credentials.path", "users.json")
	v.SetDefault("credentials.hash_scheme", "sha256")
	v.SetDefault("credentials.max_attempts", 3)
	v.SetDefault("credentials.lockout_duration", "15m")

	v.SetDefault("event_log.path", "log.txt")

	// 数据库默认配置
	v.SetDefault("database.enabled", true)
	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.dsn", "./data/bms-stand.db")
	v.SetDefault("database.max_idle_conns", 2)
	v.SetDefault("database.max_open_conns", 4)
	v.SetDefault("database.conn_max_lifetime", "1h")
	v.SetDefault("database.log_level", "warn")
	v.SetDefault("database.auto_migrate", true)

	// 监控接口默认关闭
	v.SetDefault("api.enabled", false)
	v.SetDefault("api.host", "127.0.0.1")
	v.SetDefault("api.port", 8090)
	v.SetDefault("api.mode", "release")
	v.SetDefault("api.jwt_secret", PlaceholderJWTSecret)
	v.SetDefault("api.token_expiry", "8h")
	v.SetDefault("api.shutdown_timeout", "5s")

	// 日志默认配置
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("log.output", "file")
	v.SetDefault("log.file.path", "./logs")
	v.SetDefault("log.file.filename", "bms-stand.log")
	v.SetDefault("log.file.max_size", 20)
	v.SetDefault("log.file.max_age", 90)
	v.SetDefault("log.file.max_backups", 10)
	v.SetDefault("log.file.compress", true)
}

// Get 获取配置实例
func Get() *Config {
	mu.RLock()
	defer mu.RUnlock()
	return cfg
}

// Watch 监听配置文件变化
func Watch(callback func(*Config)) {
	if v == nil {
		return
	}
	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		mu.Lock()
		defer mu.Unlock()

		newCfg := &Config{}
		if err := v.Unmarshal(newCfg); err != nil {
			fmt.Printf("配置重载失败: %v\n", err)
			return
		}
		if err := newCfg.Validate(); err != nil {
			fmt.Printf("配置重载失败: %v\n", err)
			return
		}

		cfg = newCfg

		if callback != nil {
			callback(cfg)
		}
	})
}

// ConfigFile 返回实际使用的配置文件路径
func ConfigFile() string {
	if v == nil {
		return ""
	}
	return v.ConfigFileUsed()
}
