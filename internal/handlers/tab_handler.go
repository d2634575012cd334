package handlers

import (
	"errors"
	"log"
	"net/http"

	"conveniencia/internal/models"
	"conveniencia/internal/redis"
	"conveniencia/internal/services"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const deleteConfirmPrefix = "confirm:delete:"

type tabView struct {
	models.Tab
	DisplayName   string             `json:"nome_exibicao"`
	Lines         []models.OrderLine `json:"pedidos"`
	ComputedTotal decimal.Decimal    `json:"total_calculado"`
	Printed       bool               `json:"impressa"`
}

func (h *APIHandler) view(tab models.Tab, printed map[string]bool) tabView {
	return tabView{
		Tab:           tab,
		DisplayName:   models.DisplayName(tab.Number),
		Lines:         h.tabService.GetOrderLines(tab.ID),
		ComputedTotal: h.tabService.ComputeTabTotal(tab.ID),
		Printed:       printed[tab.ID],
	}
}

// ListTabs returns the open tabs from the cache.
func (h *APIHandler) ListTabs(c *gin.Context) {
	printed, err := h.printService.PrintedTabs(c.Request.Context())
	if err != nil {
		log.Printf("Failed to load printed markers: %v", err)
	}

	snap := h.store.Snapshot()
	views := make([]tabView, 0, len(snap.Tabs))
	for _, tab := range snap.Tabs {
		views = append(views, h.view(tab, printed))
	}
	c.JSON(http.StatusOK, gin.H{"comandas": views, "total": len(views)})
}

func (h *APIHandler) CreateTab(c *gin.Context) {
	var req struct {
		Number string `json:"numero_comanda"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request format"})
		return
	}

	tab, err := h.tabService.CreateTab(c.Request.Context(), req.Number)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, h.view(*tab, nil))
}

func (h *APIHandler) GetTab(c *gin.Context) {
	ctx := c.Request.Context()
	tab, err := h.tabService.GetTab(ctx, c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	status, err := h.tabService.KitchenStatus(ctx, tab.ID)
	if err != nil {
		respondError(c, err)
		return
	}
	printed, err := h.printService.IsPrinted(ctx, tab.ID)
	if err != nil {
		log.Printf("Failed to load printed marker: %v", err)
	}

	c.JSON(http.StatusOK, gin.H{
		"comanda":        h.view(*tab, map[string]bool{tab.ID: printed}),
		"status_cozinha": status,
	})
}

func (h *APIHandler) AddItems(c *gin.Context) {
	var req struct {
		Items []services.OrderItemInput `json:"itens" binding:"required,dive"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request format"})
		return
	}

	lines, err := h.tabService.AddOrderLines(c.Request.Context(), c.Param("id"), req.Items)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"pedidos": lines,
		"total":   h.tabService.ComputeTabTotal(c.Param("id")),
	})
}

func (h *APIHandler) AddMiscItem(c *gin.Context) {
	var req struct {
		Name  string          `json:"nome"`
		Price decimal.Decimal `json:"preco"`
		Notes string          `json:"observacoes"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request format"})
		return
	}

	line, err := h.paymentService.AddMiscItem(c.Request.Context(), c.Param("id"), req.Name, req.Price, req.Notes)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, line)
}

func (h *APIHandler) RemoveLine(c *gin.Context) {
	if err := h.tabService.RemoveOrderLine(c.Request.Context(), c.Param("id")); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": c.Param("id"), "status": "removed"})
}

func (h *APIHandler) UpdateLineStatus(c *gin.Context) {
	var req struct {
		Status models.LineStatus `json:"status" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request format"})
		return
	}

	line, err := h.tabService.UpdateLineStatus(c.Request.Context(), c.Param("id"), req.Status)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, line)
}

func (h *APIHandler) GetKitchenStatus(c *gin.Context) {
	status, err := h.tabService.KitchenStatus(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": c.Param("id"), "status_cozinha": status})
}

func (h *APIHandler) RecalculateTotal(c *gin.Context) {
	total, err := h.tabService.RecalculateTabTotal(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": c.Param("id"), "total": total})
}

func (h *APIHandler) UpdateTotal(c *gin.Context) {
	var req struct {
		Total decimal.Decimal `json:"total"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request format"})
		return
	}

	if err := h.tabService.UpdateTabTotal(c.Request.Context(), c.Param("id"), req.Total); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": c.Param("id"), "total": req.Total})
}

func (h *APIHandler) CloseTab(c *gin.Context) {
	if err := h.tabService.CloseTab(c.Request.Context(), c.Param("id")); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": c.Param("id"), "status": models.TabClosed})
}

// DeleteTab needs two calls: the first returns a confirmation token, the
// second deletes when it presents that token for the same tab.
func (h *APIHandler) DeleteTab(c *gin.Context) {
	ctx := c.Request.Context()
	tabID := c.Param("id")

	token := c.Query("confirm")
	if token == "" {
		tab, err := h.tabService.GetTab(ctx, tabID)
		if err != nil {
			respondError(c, err)
			return
		}
		token = uuid.NewString()
		if err := h.confirms.SetTempData(ctx, deleteConfirmPrefix+token, tab.ID, h.confirmTTL); err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusAccepted, gin.H{
			"confirm_token": token,
			"expires_in":    int(h.confirmTTL.Seconds()),
			"message":       "Confirme a exclusão de " + models.DisplayName(tab.Number) + ". Esta ação não pode ser desfeita.",
		})
		return
	}

	var confirmedID string
	err := h.confirms.GetTempData(ctx, deleteConfirmPrefix+token, &confirmedID)
	if errors.Is(err, redis.ErrNotFound) || (err == nil && confirmedID != tabID) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid or expired confirmation token"})
		return
	}
	if err != nil {
		respondError(c, err)
		return
	}
	if err := h.confirms.DeleteTempData(ctx, deleteConfirmPrefix+token); err != nil {
		log.Printf("Failed to discard confirmation token: %v", err)
	}

	if err := h.tabService.DeleteTab(ctx, tabID); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": tabID, "status": "deleted"})
}

func (h *APIHandler) ListPrinted(c *gin.Context) {
	ctx := c.Request.Context()
	printed, err := h.printService.PrintedTabs(ctx)
	if err != nil {
		respondError(c, err)
		return
	}
	pending, err := h.printService.UnprintedCount(ctx)
	if err != nil {
		respondError(c, err)
		return
	}
	ids := make([]string, 0, len(printed))
	for id := range printed {
		ids = append(ids, id)
	}
	c.JSON(http.StatusOK, gin.H{"impressas": ids, "pendentes": pending})
}

func (h *APIHandler) IsPrinted(c *gin.Context) {
	printed, err := h.printService.IsPrinted(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": c.Param("id"), "impressa": printed})
}

func (h *APIHandler) MarkPrinted(c *gin.Context) {
	if err := h.printService.MarkPrinted(c.Request.Context(), c.Param("id")); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": c.Param("id"), "impressa": true})
}

func (h *APIHandler) UnmarkPrinted(c *gin.Context) {
	if err := h.printService.UnmarkPrinted(c.Request.Context(), c.Param("id")); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": c.Param("id"), "impressa": false})
}
