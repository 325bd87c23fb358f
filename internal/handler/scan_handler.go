package handler

import (
	"net/http"

	"agri-ai-go/internal/middleware"
	"agri-ai-go/internal/service"
	"agri-ai-go/pkg/log"
	"agri-ai-go/pkg/media"

	"github.com/gin-gonic/gin"
)

// ScanHandler 负责植物图片扫描与扫描历史。
type ScanHandler struct {
	scans   service.ScanService
	history service.HistoryService
}

// NewScanHandler 创建一个新的 ScanHandler 实例。
func NewScanHandler(scans service.ScanService, history service.HistoryService) *ScanHandler {
	return &ScanHandler{scans: scans, history: history}
}

// Scan 接收 multipart 表单中的 image 字段，分析成功后写入历史并返回记录。
func (h *ScanHandler) Scan(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, media.MaxImageBytes+1<<20)
	fileHeader, err := c.FormFile("image")
	if err != nil {
		badRequest(c, "请求中缺少 image 文件")
		return
	}
	file, err := fileHeader.Open()
	if err != nil {
		log.Error("Scan: 打开上传文件失败", err)
		badRequest(c, "无法读取上传的图片")
		return
	}
	defer file.Close()

	deviceID := middleware.DeviceID(c)
	entry, err := h.scans.Scan(c.Request.Context(), middleware.SessionID(c), deviceID, file, fileHeader.Filename)
	if err != nil {
		respondError(c, err)
		return
	}
	log.Infof("设备 %s 扫描完成: %s (%.1f%%)", deviceID, entry.DiseaseName, entry.Confidence)
	ok(c, gin.H{"entry": entry})
}

// ListHistory 返回设备的扫描历史，最新的在前
func (h *ScanHandler) ListHistory(c *gin.Context) {
	entries, err := h.history.List(c.Request.Context(), middleware.DeviceID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	ok(c, entries)
}

// ClearHistory 清空设备的扫描历史
func (h *ScanHandler) ClearHistory(c *gin.Context) {
	if err := h.history.Clear(c.Request.Context(), middleware.DeviceID(c)); err != nil {
		respondError(c, err)
		return
	}
	ok(c, nil)
}

// GetHistoryEntry 返回一条历史记录，附带 lang 指定语言的展示文本和相关文章。
// 翻译或匹配失败时分别降级为英文原文和空列表。
func (h *ScanHandler) GetHistoryEntry(c *gin.Context) {
	deviceID := middleware.DeviceID(c)
	entry, err := h.history.Get(c.Request.Context(), deviceID, c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	ok(c, h.scans.Enrich(c.Request.Context(), middleware.SessionID(c), deviceID, *entry, c.Query("lang")))
}
