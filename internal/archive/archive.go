package archive

import (
	"bufio"
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/wfunc/bms-stand/internal/errors"
	"github.com/wfunc/bms-stand/internal/models"
	"github.com/wfunc/bms-stand/internal/report"
	"go.uber.org/zap"
)

// RecordFinder 报告记录来源
type RecordFinder interface {
	FindReport(ctx context.Context, filename string) (*models.ReportRecord, error)
}

// Entry 归档中的一个协议文件
type Entry struct {
	Name    string    `json:"name"`
	Size    int64     `json:"size"`
	ModTime time.Time `json:"mod_time"`
}

// Verification 完整性校验结果
type Verification struct {
	Name     string `json:"name"`
	Expected string `json:"expected"`
	Actual   string `json:"actual"`
	Source   string `json:"source"` // database, event_log
	Valid    bool   `json:"valid"`
}

// Index 协议归档索引
type Index struct {
	dir      string
	records  RecordFinder
	eventLog string
	logger   *zap.Logger
}

// NewIndex 创建归档索引。records 为空时只能依赖事件日志校验
func NewIndex(dir string, records RecordFinder, eventLogPath string, log *zap.Logger) *Index {
	if log == nil {
		log = zap.NewNop()
	}
	return &Index{dir: dir, records: records, eventLog: eventLogPath, logger: log}
}

// Dir 归档目录
func (x *Index) Dir() string { return x.dir }

// List 按出厂编号（不区分大小写）和日期标记过滤，返回排序后的文件名
func (x *Index) List(serialFilter, dateFilter string) ([]string, error) {
	entries, err := x.Entries(serialFilter, dateFilter)
	if err != nil {
		return nil, err
	}
	names := make([]string, len(entries))
	for i, e := range entries {
		names[i] = e.Name
	}
	return names, nil
}

// Entries 与 List 相同，附带文件信息
func (x *Index) Entries(serialFilter, dateFilter string) ([]Entry, error) {
	if err := os.MkdirAll(x.dir, 0755); err != nil {
		return nil, errors.Wrap(err, errors.ErrFileWrite, x.dir)
	}
	dirEntries, err := os.ReadDir(x.dir)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrFileRead, x.dir)
	}

	serial := strings.ToLower(strings.TrimSpace(serialFilter))
	date := strings.TrimSpace(dateFilter)

	var out []Entry
	for _, de := range dirEntries {
		name := de.Name()
		if de.IsDir() || !strings.EqualFold(filepath.Ext(name), ".pdf") {
			continue
		}
		if serial != "" && !strings.Contains(strings.ToLower(name), serial) {
			continue
		}
		if date != "" && !strings.Contains(name, date) {
			continue
		}
		e := Entry{Name: name}
		if info, err := de.Info(); err == nil {
			e.Size = info.Size()
			e.ModTime = info.ModTime()
		}
		out = append(out, e)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// DateToken 日期过滤标记 YYYYMMDD
func DateToken(t time.Time) string {
	return t.Format("20060102")
}

// Path 返回归档文件的完整路径，拒绝目录穿越
func (x *Index) Path(name string) (string, error) {
	if name == "" || name != filepath.Base(name) || strings.ContainsAny(name, `/\`) || name == "." || name == ".." {
		return "", errors.Newf(errors.ErrInvalidParam, "недопустимое имя файла %q", name)
	}
	path := filepath.Join(x.dir, name)
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", errors.Newf(errors.ErrNotFound, "отчет %s не найден", name)
		}
		return "", errors.Wrap(err, errors.ErrFileRead, path)
	}
	if info.IsDir() {
		return "", errors.Newf(errors.ErrInvalidParam, "%s является каталогом", name)
	}
	return path, nil
}

// Verify 重新计算文件哈希并与记录比对
func (x *Index) Verify(ctx context.Context, name string) (*Verification, error) {
	path, err := x.Path(name)
	if err != nil {
		return nil, err
	}

	expected, source, err := x.expectedDigest(ctx, name, path)
	if err != nil {
		return nil, err
	}

	actual, err := report.HashFile(path)
	if err != nil {
		return nil, err
	}

	v := &Verification{
		Name:     name,
		Expected: expected,
		Actual:   actual,
		Source:   source,
		Valid:    strings.EqualFold(expected, actual),
	}
	if !v.Valid {
		x.logger.Error("协议文件哈希不一致",
			zap.String("file", name),
			zap.String("expected", expected),
			zap.String("actual", actual))
		return v, errors.Newf(errors.ErrDataIntegrity, "%s: ожидалось %s, получено %s", name, expected, actual)
	}
	x.logger.Info("协议文件校验通过", zap.String("file", name), zap.String("source", source))
	return v, nil
}

// expectedDigest 先查数据库记录，找不到时查事件日志
func (x *Index) expectedDigest(ctx context.Context, name, path string) (string, string, error) {
	var lookupErr error
	if x.records != nil {
		rec, err := x.records.FindReport(ctx, name)
		if err == nil {
			return rec.Digest, "database", nil
		}
		if !errors.Is(err, errors.ErrNotFound) {
			return "", "", err
		}
		lookupErr = err
	}

	if x.eventLog != "" {
		digest, err := digestFromEventLog(x.eventLog, name)
		if err != nil {
			return "", "", err
		}
		if digest != "" {
			return digest, "event_log", nil
		}
	}

	if lookupErr != nil {
		return "", "", lookupErr
	}
	return "", "", errors.Newf(errors.ErrNotFound, "нет записи об отчете %s", name)
}

// digestFromEventLog 查找事件日志中该文件最后一条 "Report: <path>, hash: <hex>"
func digestFromEventLog(logPath, name string) (string, error) {
	f, err := os.Open(logPath)
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", errors.Wrap(err, errors.ErrFileRead, logPath)
	}
	defer f.Close()

	var digest string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Text()
		i := strings.Index(line, "Report: ")
		if i < 0 {
			continue
		}
		rest := line[i+len("Report: "):]
		j := strings.LastIndex(rest, ", hash: ")
		if j < 0 {
			continue
		}
		if filepath.Base(filepath.FromSlash(rest[:j])) == name {
			digest = strings.TrimSpace(rest[j+len(", hash: "):])
		}
	}
	if err := scanner.Err(); err != nil {
		return "", errors.Wrap(err, errors.ErrFileRead, logPath)
	}
	return digest, nil
}
