package device

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/wfunc/bms-stand/internal/results"
)

// 行协议：主机发送 PING，设备回复 PONG；
// 每次测试完成设备发送 TRIP <时长秒> <32个+/-> <判定0|1|2>
const (
	cmdPing   = "PING"
	replyPong = "PONG"
	lineTrip  = "TRIP"
)

// ParseTripLine 解析测试完成行
func ParseTripLine(line string) (duration float64, grid results.Grid, verdict results.Verdict, err error) {
	fields := strings.Fields(line)
	if len(fields) != 4 || fields[0] != lineTrip {
		return 0, grid, 0, fmt.Errorf("unexpected line %q", line)
	}

	duration, err = strconv.ParseFloat(fields[1], 64)
	if err != nil || duration < 0 || math.IsNaN(duration) || math.IsInf(duration, 0) {
		return 0, grid, 0, fmt.Errorf("invalid duration %q", fields[1])
	}
	duration = math.Round(duration*1000) / 1000

	grid, err = results.ParseGrid(fields[2])
	if err != nil {
		return 0, grid, 0, err
	}

	code, err := strconv.Atoi(fields[3])
	if err != nil || !results.Verdict(code).Valid() {
		return 0, grid, 0, fmt.Errorf("invalid verdict %q", fields[3])
	}
	return duration, grid, results.Verdict(code), nil
}

// FormatTripLine 生成测试完成行
func FormatTripLine(duration float64, grid results.Grid, verdict results.Verdict) string {
	return fmt.Sprintf("%s %.3f %s %d", lineTrip, duration, grid.Encode(), int(verdict))
}
