package handlers

import (
	"net/http"

	"conveniencia/internal/services"

	"github.com/gin-gonic/gin"
)

func (h *APIHandler) bindSettlement(c *gin.Context) (services.SettlementRequest, bool) {
	var req services.SettlementRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request format"})
		return req, false
	}
	req.TabID = c.Param("id")
	return req, true
}

// QuotePayment previews a settlement without writing anything.
func (h *APIHandler) QuotePayment(c *gin.Context) {
	req, ok := h.bindSettlement(c)
	if !ok {
		return
	}
	quote, err := h.paymentService.Quote(c.Request.Context(), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, quote)
}

func (h *APIHandler) SettlePayment(c *gin.Context) {
	req, ok := h.bindSettlement(c)
	if !ok {
		return
	}
	settlement, err := h.paymentService.Settle(c.Request.Context(), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, settlement)
}

func (h *APIHandler) GetPaidItems(c *gin.Context) {
	paid, err := h.paymentService.PaidQuantities(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": c.Param("id"), "itens_pagos": paid})
}
