package report

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/wfunc/bms-stand/internal/config"
	"github.com/wfunc/bms-stand/internal/errors"
	"github.com/wfunc/bms-stand/internal/logger"
	"github.com/wfunc/bms-stand/internal/results"
	"go.uber.org/zap"
	"golang.org/x/image/font/gofont/gobold"
	"golang.org/x/image/font/gofont/goregular"
)

// Meta 协议会话信息
type Meta struct {
	BMSModel    string
	ProtocolNo  string
	TestArea    string
	Engineer    string // 简称，例如 Иванов И.И.
	QCInspector string
	Time        time.Time
}

// Artifact 已生成的协议文件
type Artifact struct {
	Filename     string    `json:"filename"`
	Path         string    `json:"path"`
	SystemName   string    `json:"system_name"`
	SerialNumber string    `json:"serial_number"`
	Digest       string    `json:"sha256"`
	Size         int64     `json:"size"`
	Negative     bool      `json:"negative"`
	GeneratedAt  time.Time `json:"generated_at"`
}

// Generator 协议生成器
type Generator struct {
	dir          string
	bottomMargin float64
	regular      []byte
	bold         []byte
	fallback     bool
	logger       *zap.Logger
}

// NewGenerator 创建生成器并加载字体，字体缺失时回退到内嵌的 Go 字体（含西里尔字母）
func NewGenerator(cfg *config.ReportConfig, log *zap.Logger) *Generator {
	if log == nil {
		log = logger.WithModule("report")
	}
	g := &Generator{
		dir:          cfg.Dir,
		bottomMargin: cfg.BottomMargin,
		logger:       log,
	}
	if g.bottomMargin <= 0 {
		g.bottomMargin = 50
	}

	regular, err := os.ReadFile(cfg.Fonts.Regular)
	if err != nil {
		log.Warn("无法加载常规字体，使用内嵌 Go 字体", zap.String("path", cfg.Fonts.Regular), zap.Error(err))
		g.regular, g.bold, g.fallback = goregular.TTF, gobold.TTF, true
		return g
	}
	bold, err := os.ReadFile(cfg.Fonts.Bold)
	if err != nil {
		log.Warn("无法加载粗体字体，使用常规字体代替", zap.String("path", cfg.Fonts.Bold), zap.Error(err))
		bold = regular
	}
	g.regular, g.bold = regular, bold
	return g
}

// Dir 报告目录
func (g *Generator) Dir() string { return g.dir }

// FallbackFonts 是否使用内嵌的后备字体
func (g *Generator) FallbackFonts() bool { return g.fallback }

// Generate 生成协议 PDF 并计算哈希。文件一经写入不再覆盖
func (g *Generator) Generate(systemName, serialNumber string, meta Meta, summary results.Summary) (*Artifact, error) {
	if strings.TrimSpace(systemName) == "" {
		return nil, errors.New(errors.ErrInvalidParam, "Название системы контроля обязательно.")
	}
	if strings.TrimSpace(serialNumber) == "" {
		return nil, errors.New(errors.ErrInvalidParam, "Заводской номер обязателен.")
	}
	if meta.Time.IsZero() {
		meta.Time = time.Now()
	}

	system := Sanitize(systemName)
	serial := Sanitize(serialNumber)
	start := time.Now()

	if err := os.MkdirAll(g.dir, 0755); err != nil {
		return nil, errors.Wrap(err, errors.ErrFileWrite, g.dir)
	}
	name := Filename(system, serial, meta.Time)
	path := filepath.Join(g.dir, name)
	if _, err := os.Stat(path); err == nil {
		return nil, errors.New(errors.ErrAlreadyExists, name)
	}

	doc := g.render(system, serial, meta, summary)
	if err := doc.OutputFileAndClose(path); err != nil {
		logger.LogReport(path, "", time.Since(start), err)
		os.Remove(path)
		return nil, errors.Wrap(err, errors.ErrReportRender, name)
	}

	digest, err := HashFile(path)
	if err != nil {
		logger.LogReport(path, "", time.Since(start), err)
		return nil, err
	}
	info, err := os.Stat(path)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrFileRead, path)
	}

	logger.LogReport(path, digest, time.Since(start), nil)
	g.logger.Info("协议已生成",
		zap.String("file", name),
		zap.String("sha256", digest),
		zap.Bool("negative", summary.Negative))

	return &Artifact{
		Filename:     name,
		Path:         path,
		SystemName:   system,
		SerialNumber: serial,
		Digest:       digest,
		Size:         info.Size(),
		Negative:     summary.Negative,
		GeneratedAt:  meta.Time,
	}, nil
}
