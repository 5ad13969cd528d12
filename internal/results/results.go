package results

import (
	"fmt"
	"math/rand"
	"strings"
)

// 矩阵尺寸：8个通道，4个保护条件
const (
	Channels   = 8
	Conditions = 4
	Cells      = Channels * Conditions
)

// ConditionHeaders 四个保护条件的列标题
var ConditionHeaders = [Conditions]string{
	"Работа при напряжении ниже 4,2 В",
	"Отключение при напряжении выше 4,3 В",
	"Работа при напряжении выше 2,9 В",
	"Отключение при напряжении ниже 2,8 В",
}

// Outcome 单元格结果
type Outcome uint8

const (
	Unset Outcome = iota
	Pass
	Fail
)

// Symbol 显示符号
func (o Outcome) Symbol() string {
	switch o {
	case Pass:
		return "+"
	case Fail:
		return "-"
	default:
		return ""
	}
}

// code 单字符编码，用于持久化与串口协议
func (o Outcome) code() byte {
	switch o {
	case Pass:
		return '+'
	case Fail:
		return '-'
	default:
		return ' '
	}
}

func outcomeFromCode(c byte) (Outcome, bool) {
	switch c {
	case '+':
		return Pass, true
	case '-':
		return Fail, true
	case ' ', '.':
		return Unset, true
	default:
		return Unset, false
	}
}

// Grid 8x4结果矩阵，按通道行优先
type Grid [Channels][Conditions]Outcome

// Encode 编码为32个字符
func (g Grid) Encode() string {
	var b strings.Builder
	b.Grow(Cells)
	for i := 0; i < Channels; i++ {
		for j := 0; j < Conditions; j++ {
			b.WriteByte(g[i][j].code())
		}
	}
	return b.String()
}

// ParseGrid 解析32字符编码
func ParseGrid(s string) (Grid, error) {
	var g Grid
	if len(s) != Cells {
		return g, fmt.Errorf("grid must have %d cells, got %d", Cells, len(s))
	}
	for k := 0; k < Cells; k++ {
		o, ok := outcomeFromCode(s[k])
		if !ok {
			return g, fmt.Errorf("invalid cell %q at %d", s[k], k)
		}
		g[k/Conditions][k%Conditions] = o
	}
	return g, nil
}

// Count 指定结果的单元格数量
func (g Grid) Count(o Outcome) int {
	n := 0
	for i := range g {
		for j := range g[i] {
			if g[i][j] == o {
				n++
			}
		}
	}
	return n
}

// HasFailure 是否存在不合格单元格
func (g Grid) HasFailure() bool {
	return g.Count(Fail) > 0
}

// Complete 所有单元格都有结果
func (g Grid) Complete() bool {
	return g.Count(Unset) == 0
}

// RandomGrid 每个单元格独立均匀取合格/不合格
func RandomGrid(r *rand.Rand) Grid {
	var g Grid
	for i := range g {
		for j := range g[i] {
			if r.Intn(2) == 0 {
				g[i][j] = Pass
			} else {
				g[i][j] = Fail
			}
		}
	}
	return g
}

// Verdict 短路保护结论
type Verdict int

const (
	VerdictTripped Verdict = iota
	VerdictNotTripped
	VerdictThresholdNotReached
)

var verdictTexts = map[Verdict]string{
	VerdictTripped:             "СКУ ЛИАБ сработало по короткому замыканию",
	VerdictNotTripped:          "СКУ ЛИАБ не сработало по короткому замыканию",
	VerdictThresholdNotReached: "Порог по КЗ не достигнут",
}

// Verdicts 全部结论，顺序与编码一致
var Verdicts = []Verdict{VerdictTripped, VerdictNotTripped, VerdictThresholdNotReached}

// String 俄文描述
func (v Verdict) String() string {
	if s, ok := verdictTexts[v]; ok {
		return s
	}
	return fmt.Sprintf("Verdict(%d)", int(v))
}

// Valid 是否为已知结论
func (v Verdict) Valid() bool {
	_, ok := verdictTexts[v]
	return ok
}

// Succeeded 只有按短路成功脱扣才算通过
func (v Verdict) Succeeded() bool {
	return v == VerdictTripped
}

// ParseVerdict 按完整文本解析结论
func ParseVerdict(text string) (Verdict, error) {
	text = strings.TrimSpace(text)
	for _, v := range Verdicts {
		if verdictTexts[v] == text {
			return v, nil
		}
	}
	return 0, fmt.Errorf("unknown verdict %q", text)
}

// RandomVerdict 三种结论均匀随机
func RandomVerdict(r *rand.Rand) Verdict {
	return Verdicts[r.Intn(len(Verdicts))]
}

// Negative 任一单元格不合格或未成功脱扣即为否定结论
func Negative(g Grid, v Verdict) bool {
	return g.HasFailure() || !v.Succeeded()
}
