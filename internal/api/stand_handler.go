package api

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/wfunc/bms-stand/internal/errors"
	"github.com/wfunc/bms-stand/internal/models"
	"github.com/wfunc/bms-stand/internal/repository"
	"github.com/wfunc/bms-stand/internal/service"
)

// maxEventLimit 设备事件查询上限
const maxEventLimit = 500

// StandHandler 试验台状态与历史
type StandHandler struct {
	stand   StatusProvider
	history service.HistoryService
}

// NewStandHandler 创建处理器
func NewStandHandler(stand StatusProvider, history service.HistoryService) *StandHandler {
	return &StandHandler{stand: stand, history: history}
}

// GetStatus 当前结果矩阵与连接状态
func (h *StandHandler) GetStatus(c *gin.Context) {
	st, err := h.stand.Status(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, st)
}

// ListRuns 分页查询测试记录
func (h *StandHandler) ListRuns(c *gin.Context) {
	var query models.TestRunQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		badRequest(c, err)
		return
	}

	runs, total, err := h.history.ListRuns(c.Request.Context(), &query)
	if err != nil {
		respondError(c, err)
		return
	}
	if runs == nil {
		runs = []*models.TestRunRecord{}
	}

	p := repository.NewPagination(query.Page, query.PageSize)
	c.JSON(http.StatusOK, gin.H{
		"items":     runs,
		"total":     total,
		"page":      p.Page,
		"page_size": p.PageSize,
		"history":   h.history.Enabled(),
	})
}

// RunStats 合格与不合格统计
func (h *StandHandler) RunStats(c *gin.Context) {
	stats, err := h.history.RunStats(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

// DeviceEvents 最近的设备事件，可按类型过滤
func (h *StandHandler) DeviceEvents(c *gin.Context) {
	kind := models.DeviceEventKind(strings.ToUpper(c.Query("kind")))
	switch kind {
	case "", models.DeviceEventConnectivity, models.DeviceEventTest, models.DeviceEventDropped:
	default:
		respondError(c, errors.Newf(errors.ErrInvalidParam, "unknown event kind %q", kind))
		return
	}

	limit := 50
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			respondError(c, errors.Newf(errors.ErrInvalidParam, "invalid limit %q", raw))
			return
		}
		limit = n
	}
	if limit > maxEventLimit {
		limit = maxEventLimit
	}

	events, err := h.history.RecentDeviceEvents(c.Request.Context(), kind, limit)
	if err != nil {
		respondError(c, err)
		return
	}
	if events == nil {
		events = []*models.DeviceEvent{}
	}
	c.JSON(http.StatusOK, gin.H{"items": events})
}
