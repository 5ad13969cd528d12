package report

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/go-pdf/fpdf"
	"github.com/wfunc/bms-stand/internal/results"
)

const (
	fontFamily   = "Protocol"
	fontSize     = 12.0
	tableSize    = 10.0
	marginLeft   = 50.0
	marginIndent = 70.0
	pageTop      = 50.0
	mm           = 72.0 / 25.4
)

// 协议固定文本
var (
	titleSubtitle = [...]string{
		"Проверки соответствия системы контроля литий-ионной аккумуляторной батареи",
		"функциональным требованиям",
	}
	purposeLines = [...]string{
		"Проверка соответствия системы контроля литий-ионной аккумуляторной батареи",
		"функциональным требованиям",
		"по защите аккумуляторной батареи от перезаряда, переразряда, токов короткого замыкания.",
		"- отключение тока заряда при напряжении 4,25±0,05 В на любом из аккумуляторов;",
		"- отключение тока разряда при напряжении 2,85±0,05 В на любом из аккумуляторов;",
		"- отключение при превышении тока разряда свыше 50 А.",
	}
	tableHeader = [results.Conditions + 1][]string{
		{"№ канала"},
		{"Работа при", "напряжении", "ниже 4,2 В"},
		{"Отключение при", "напряжении", "выше 4,3 В"},
		{"Работа при", "напряжении", "выше 2,9 В"},
		{"Отключение при", "напряжении", "ниже 2,8 В"},
	}
	columnWidths = [results.Conditions + 1]float64{20 * mm, 40 * mm, 40 * mm, 40 * mm, 40 * mm}
)

// page 带纵向游标的页面
type page struct {
	pdf    *fpdf.Fpdf
	width  float64
	height float64
	bottom float64
	y      float64
	style  string
	size   float64
}

func (p *page) font(style string, size float64) {
	p.style, p.size = style, size
	p.pdf.SetFont(fontFamily, style, size)
}

// ensure 剩余空间不足时换页并恢复字体
func (p *page) ensure(dy float64) {
	if p.y+dy > p.height-p.bottom {
		p.newPage()
	}
}

func (p *page) newPage() {
	p.pdf.AddPage()
	p.pdf.SetFont(fontFamily, p.style, p.size)
	p.y = pageTop
}

func (p *page) text(x, y float64, s string) {
	p.pdf.Text(x, y, s)
}

func (p *page) centered(y float64, s string) {
	p.pdf.Text((p.width-p.pdf.GetStringWidth(s))/2, y, s)
}

func (p *page) right(y float64, s string) {
	p.pdf.Text(p.width-marginLeft-p.pdf.GetStringWidth(s), y, s)
}

// wrap 按宽度折行
func (p *page) wrap(s string, width float64) []string {
	var lines []string
	var line string
	for _, word := range strings.Fields(s) {
		candidate := word
		if line != "" {
			candidate = line + " " + word
		}
		if line != "" && p.pdf.GetStringWidth(candidate) > width {
			lines = append(lines, line)
			line = word
			continue
		}
		line = candidate
	}
	if line != "" {
		lines = append(lines, line)
	}
	return lines
}

// render 按固定版式绘制协议
func (g *Generator) render(system, serial string, meta Meta, summary results.Summary) *fpdf.Fpdf {
	pdf := fpdf.New("P", "pt", "A4", "")
	pdf.SetAutoPageBreak(false, g.bottomMargin)
	pdf.SetCreationDate(meta.Time)
	pdf.SetModificationDate(meta.Time)
	pdf.SetCatalogSort(true)
	pdf.SetTitle("Протокол № "+meta.ProtocolNo, true)
	pdf.SetCreator("bms-stand", true)

	width, height := pdf.GetPageSize()
	p := &page{
		pdf:    pdf,
		width:  width,
		height: height,
		bottom: g.bottomMargin,
	}
	// 字体必须在任何文本操作之前注册
	pdf.AddUTF8FontFromBytes(fontFamily, "", g.regular)
	pdf.AddUTF8FontFromBytes(fontFamily, "B", g.bold)
	pdf.AddPage()

	// 标题
	p.font("B", fontSize)
	p.centered(50, "ПРОТОКОЛ")
	p.font("", fontSize)
	p.centered(70, titleSubtitle[0])
	p.centered(85, titleSubtitle[1])
	p.text(marginLeft, 110, "№ "+meta.ProtocolNo)
	date := FormatDate(meta.Time)
	p.right(110, date)
	p.y = 140

	// 1. 试验对象
	p.text(marginLeft, p.y, "1.  Объект испытания: система контроля литий-ионной аккумуляторной батареи")
	p.ensure(15)
	p.y += 15
	p.font("B", fontSize)
	p.text(marginIndent, p.y, meta.BMSModel)
	p.font("", fontSize)
	p.text(150, p.y, fmt.Sprintf("зав. № %s.", serial))
	p.ensure(25)
	p.y += 25

	// 2. 试验目的
	p.text(marginLeft, p.y, "2.  Цель испытания:")
	p.ensure(15)
	p.y += 15
	for _, line := range purposeLines {
		p.ensure(15)
		p.text(marginIndent, p.y, line)
		p.y += 15
	}
	p.ensure(10)
	p.y += 10

	// 3. 日期 4. 地点
	p.text(marginLeft, p.y, "3.  Дата проведения испытания: "+date)
	p.ensure(20)
	p.y += 20
	p.text(marginLeft, p.y, fmt.Sprintf("4.  Место проведения испытания: %s.", meta.TestArea))
	p.ensure(30)
	p.y += 30

	// 5. 结果表
	p.ensure(20)
	p.text(marginLeft, p.y, "5.  Результаты испытания:")
	p.y += 20
	p.table(summary.Grid)
	p.y += 40

	p.y -= 5
	p.ensure(20)
	p.text(marginLeft, p.y, "Отключение разряда по превышению тока 50 А: "+DischargeStatus(summary.Verdict))
	p.y += 30

	// 6. 结论
	p.font("", fontSize)
	lines := append([]string{"6. Заключение"}, p.wrap(Conclusion(system, serial, summary.Negative), p.width-100)...)
	for _, line := range lines {
		if p.y > p.height-p.bottom-20 {
			p.newPage()
		}
		p.text(marginLeft, p.y, line)
		p.y += 15
	}

	// 签字
	if p.y > p.height-p.bottom-60 {
		p.newPage()
	}
	p.y += 20
	p.text(marginLeft, p.y, "Испытание проводил:")
	p.y += 20
	p.text(marginLeft, p.y, "Инженер:")
	p.right(p.y, meta.Engineer)
	p.y += 20
	p.text(marginLeft, p.y, "Контролер ОТК:")
	p.right(p.y, meta.QCInspector)

	return pdf
}

// table 绘制结果表：表头三行，8个通道
func (p *page) table(grid results.Grid) {
	const (
		headerHeight = 42.0
		rowHeight    = 18.0
		lineStep     = 12.0
	)
	p.ensure(headerHeight + rowHeight*results.Channels)

	p.font("", tableSize)
	p.pdf.SetLineWidth(0.5)

	x := marginLeft
	for col, lines := range tableHeader {
		w := columnWidths[col]
		p.pdf.Rect(x, p.y, w, headerHeight, "D")
		top := p.y + (headerHeight-lineStep*float64(len(lines)))/2 + tableSize
		for i, line := range lines {
			p.pdf.Text(x+(w-p.pdf.GetStringWidth(line))/2, top+lineStep*float64(i), line)
		}
		x += w
	}
	p.y += headerHeight

	for ch := 0; ch < results.Channels; ch++ {
		p.pdf.SetXY(marginLeft, p.y)
		p.pdf.CellFormat(columnWidths[0], rowHeight, strconv.Itoa(ch+1), "1", 0, "CM", false, 0, "")
		for c := 0; c < results.Conditions; c++ {
			p.pdf.CellFormat(columnWidths[c+1], rowHeight, grid[ch][c].Symbol(), "1", 0, "CM", false, 0, "")
		}
		p.y += rowHeight
	}

	p.font("", fontSize)
}

// DischargeStatus 过流断开结论
func DischargeStatus(v results.Verdict) string {
	if v.Succeeded() {
		return "выполнено"
	}
	return "не выполнено"
}

// Conclusion 结论正文。否定结果同时决定“отрицательным”与“не пригодна”
func Conclusion(system, serial string, negative bool) string {
	result, fit := "положительным", ""
	if negative {
		result, fit = "отрицательным", "не "
	}
	return fmt.Sprintf(
		"Система контроля литий-ионной аккумуляторной батареи %s зав. № %s прошла проверку на соответствие "+
			"функциональным требованиям по защите аккумуляторной батареи от перезаряда, переразряда, "+
			"токов короткого замыкания с %s результатом и %sпригодна к использованию по назначению.",
		system, serial, result, fit)
}
