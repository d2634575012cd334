package handlers

import (
	"bytes"
	"net/http"
	"time"

	"conveniencia/internal/services"

	"github.com/gin-gonic/gin"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

func bindReportFilter(c *gin.Context) (services.ReportFilter, bool) {
	var filter services.ReportFilter
	if err := c.ShouldBindQuery(&filter); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid query parameters"})
		return filter, false
	}
	return filter, true
}

func (h *APIHandler) ListTransactions(c *gin.Context) {
	filter, ok := bindReportFilter(c)
	if !ok {
		return
	}
	txs, err := h.reportService.Transactions(c.Request.Context(), filter)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"transacoes": txs, "total": len(txs)})
}

func (h *APIHandler) GetStats(c *gin.Context) {
	filter, ok := bindReportFilter(c)
	if !ok {
		return
	}
	stats, err := h.reportService.Stats(c.Request.Context(), filter)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

func exportName(ext string) string {
	return "relatorio-pagamentos-" + time.Now().Format("2006-01-02") + "." + ext
}

func (h *APIHandler) ExportCSV(c *gin.Context) {
	filter, ok := bindReportFilter(c)
	if !ok {
		return
	}
	var buf bytes.Buffer
	if err := h.reportService.ExportCSV(c.Request.Context(), filter, &buf); err != nil {
		respondError(c, err)
		return
	}
	c.Header("Content-Disposition", `attachment; filename="`+exportName("csv")+`"`)
	c.Data(http.StatusOK, "text/csv; charset=utf-8", buf.Bytes())
}

func (h *APIHandler) ExportXLSX(c *gin.Context) {
	filter, ok := bindReportFilter(c)
	if !ok {
		return
	}
	var buf bytes.Buffer
	if err := h.reportService.ExportXLSX(c.Request.Context(), filter, &buf); err != nil {
		respondError(c, err)
		return
	}
	c.Header("Content-Disposition", `attachment; filename="`+exportName("xlsx")+`"`)
	c.Data(http.StatusOK, xlsxContentType, buf.Bytes())
}

func (h *APIHandler) CloseCashRegister(c *gin.Context) {
	record, err := h.reportService.CloseCashRegister(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, record)
}

func (h *APIHandler) GetCashCloseHistory(c *gin.Context) {
	history, err := h.reportService.CashCloseHistory(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"historico": history})
}

func (h *APIHandler) ClearHistory(c *gin.Context) {
	if err := h.reportService.ClearHistory(c.Request.Context()); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "cleared"})
}

func (h *APIHandler) RebuildHistory(c *gin.Context) {
	n, err := h.reportService.RebuildFromClosedTabs(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"recuperadas": n})
}
