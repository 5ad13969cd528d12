package report

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"
)

// FilenameTimeLayout 文件名中的时间格式，日期部分即归档过滤用的日期标记
const FilenameTimeLayout = "20060102_150405"

// pathSeparators 路径分隔符换成下划线，文件只落在报告目录
var pathSeparators = strings.NewReplacer("/", "_", "\\", "_", string(filepath.Separator), "_")

// Sanitize 规范化系统名称与出厂编号：去首尾空白，空格替换为下划线
func Sanitize(s string) string {
	s = strings.ReplaceAll(strings.TrimSpace(s), " ", "_")
	return pathSeparators.Replace(s)
}

// Filename 报告文件名 report_{system}_{serial}_{YYYYMMDD_HHMMSS}.pdf
func Filename(system, serial string, at time.Time) string {
	return fmt.Sprintf("report_%s_%s_%s.pdf", Sanitize(system), Sanitize(serial), at.Format(FilenameTimeLayout))
}

// 俄语月份（属格）
var monthsGenitive = [...]string{
	"января", "февраля", "марта", "апреля", "мая", "июня",
	"июля", "августа", "сентября", "октября", "ноября", "декабря",
}

// FormatDate 协议日期 «dd» месяца yyyy г.
func FormatDate(t time.Time) string {
	return fmt.Sprintf("«%02d» %s %d г.", t.Day(), monthsGenitive[t.Month()-1], t.Year())
}
