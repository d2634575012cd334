package handlers

import (
	"github.com/gin-gonic/gin"
)

func SetupRouter(h *APIHandler, gate *PasswordGate) *gin.Engine {
	router := gin.New()
	router.Use(gin.Logger(), gin.Recovery())

	api := router.Group("/api")
	{
		api.GET("/snapshot", h.GetSnapshot)
		api.GET("/snapshot/changes", h.WaitForChange)
		api.GET("/sync", h.GetSyncStatus)
		api.POST("/sync", h.Sync)

		api.GET("/tabs", h.ListTabs)
		api.POST("/tabs", h.CreateTab)
		api.GET("/tabs/:id", h.GetTab)
		api.DELETE("/tabs/:id", h.DeleteTab)
		api.POST("/tabs/:id/items", h.AddItems)
		api.POST("/tabs/:id/misc-items", h.AddMiscItem)
		api.GET("/tabs/:id/kitchen-status", h.GetKitchenStatus)
		api.POST("/tabs/:id/recalculate", h.RecalculateTotal)
		api.PUT("/tabs/:id/total", h.UpdateTotal)
		api.POST("/tabs/:id/close", h.CloseTab)
		api.POST("/tabs/:id/payments/quote", h.QuotePayment)
		api.POST("/tabs/:id/payments", h.SettlePayment)
		api.GET("/tabs/:id/paid-items", h.GetPaidItems)

		api.DELETE("/lines/:id", h.RemoveLine)
		api.PATCH("/lines/:id/status", h.UpdateLineStatus)

		api.GET("/printed", h.ListPrinted)
		api.GET("/printed/:id", h.IsPrinted)
		api.PUT("/printed/:id", h.MarkPrinted)
		api.DELETE("/printed/:id", h.UnmarkPrinted)

		api.GET("/products", h.ListProducts)
		api.GET("/categories", h.ListCategories)

		api.GET("/reports/transactions", h.ListTransactions)
		api.GET("/reports/stats", h.GetStats)
		api.GET("/reports/export.csv", h.ExportCSV)
		api.GET("/reports/export.xlsx", h.ExportXLSX)
		api.GET("/reports/cash-close", h.GetCashCloseHistory)
		api.POST("/reports/cash-close", h.CloseCashRegister)

		api.POST("/admin/login", gate.Login)
	}

	admin := api.Group("/admin", gate.Middleware())
	{
		admin.POST("/products", h.CreateProduct)
		admin.PUT("/products/:id", h.UpdateProduct)
		admin.DELETE("/products/:id", h.DeleteProduct)
		admin.DELETE("/reports/transactions", h.ClearHistory)
		admin.POST("/reports/rebuild", h.RebuildHistory)
	}

	return router
}
