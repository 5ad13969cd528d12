package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/wfunc/bms-stand/internal/archive"
	"github.com/wfunc/bms-stand/internal/errors"
)

// ReportHandler 协议归档处理器
type ReportHandler struct {
	archive ReportArchive
}

// NewReportHandler 创建处理器
func NewReportHandler(archive ReportArchive) *ReportHandler {
	return &ReportHandler{archive: archive}
}

// List 按出厂编号与日期标记过滤协议，例如 ?serial=sn001&date=20240315
func (h *ReportHandler) List(c *gin.Context) {
	entries, err := h.archive.Entries(c.Query("serial"), c.Query("date"))
	if err != nil {
		respondError(c, err)
		return
	}
	if entries == nil {
		entries = []archive.Entry{}
	}
	c.JSON(http.StatusOK, gin.H{"items": entries, "total": len(entries)})
}

// Download 下载协议文件
func (h *ReportHandler) Download(c *gin.Context) {
	name := c.Param("name")
	path, err := h.archive.Path(name)
	if err != nil {
		respondError(c, err)
		return
	}
	c.FileAttachment(path, name)
}

// Verify 校验协议文件哈希。不一致时返回409并附带两次哈希
func (h *ReportHandler) Verify(c *gin.Context) {
	v, err := h.archive.Verify(c.Request.Context(), c.Param("name"))
	if err != nil {
		if errors.Is(err, errors.ErrDataIntegrity) && v != nil {
			c.JSON(http.StatusConflict, v)
			return
		}
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, v)
}
