package handlers

import (
	"context"
	"errors"
	"log"
	"net/http"
	"strconv"
	"time"

	"conveniencia/internal/cache"
	"conveniencia/internal/services"

	"github.com/gin-gonic/gin"
)

// Syncer is the cache refresher behind the "last updated" indicator.
type Syncer interface {
	Refresh(ctx context.Context) error
	Status() cache.Status
}

// ConfirmStore keeps short-lived confirmation tokens.
type ConfirmStore interface {
	SetTempData(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	GetTempData(ctx context.Context, key string, dest interface{}) error
	DeleteTempData(ctx context.Context, key string) error
}

type APIHandler struct {
	tabService     services.TabService
	paymentService services.PaymentService
	productService services.ProductService
	reportService  services.ReportService
	printService   services.PrintService
	store          *cache.Store
	syncer         Syncer
	confirms       ConfirmStore
	confirmTTL     time.Duration
}

func NewAPIHandler(
	tabService services.TabService,
	paymentService services.PaymentService,
	productService services.ProductService,
	reportService services.ReportService,
	printService services.PrintService,
	store *cache.Store,
	syncer Syncer,
	confirms ConfirmStore,
	confirmTTL time.Duration,
) *APIHandler {
	return &APIHandler{
		tabService:     tabService,
		paymentService: paymentService,
		productService: productService,
		reportService:  reportService,
		printService:   printService,
		store:          store,
		syncer:         syncer,
		confirms:       confirms,
		confirmTTL:     confirmTTL,
	}
}

// GetSnapshot returns the whole cached view in one call.
func (h *APIHandler) GetSnapshot(c *gin.Context) {
	snap := h.store.Snapshot()
	c.JSON(http.StatusOK, gin.H{
		"comandas":      snap.Tabs,
		"pedidos":       snap.Lines,
		"produtos":      snap.Products,
		"versao":        snap.Version,
		"atualizado_em": snap.RefreshedAt,
		"sincronizacao": h.syncer.Status(),
	})
}

const longPollWait = 25 * time.Second

// WaitForChange holds the request until the cache moves past ?since=<version>
// and then answers like GetSnapshot. It answers 204 when nothing changed in
// time.
func (h *APIHandler) WaitForChange(c *gin.Context) {
	since, err := strconv.ParseUint(c.DefaultQuery("since", "0"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid version"})
		return
	}

	updates, cancel := h.store.Subscribe()
	defer cancel()

	if h.store.Version() <= since {
		timer := time.NewTimer(longPollWait)
		defer timer.Stop()
	wait:
		for {
			select {
			case v := <-updates:
				if v > since {
					break wait
				}
			case <-timer.C:
				c.Status(http.StatusNoContent)
				return
			case <-c.Request.Context().Done():
				return
			}
		}
	}
	h.GetSnapshot(c)
}

func (h *APIHandler) GetSyncStatus(c *gin.Context) {
	c.JSON(http.StatusOK, h.syncer.Status())
}

// Sync forces a refresh and waits for it.
func (h *APIHandler) Sync(c *gin.Context) {
	if err := h.syncer.Refresh(c.Request.Context()); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, h.syncer.Status())
}

func respondError(c *gin.Context, err error) {
	var insufficient *services.InsufficientFundsError
	switch {
	case errors.As(err, &insufficient):
		c.JSON(http.StatusUnprocessableEntity, gin.H{
			"error":          "Valor recebido insuficiente",
			"valor_devido":   insufficient.Due,
			"valor_recebido": insufficient.Tendered,
			"falta":          insufficient.Missing(),
		})
	case errors.Is(err, services.ErrValidation), errors.Is(err, services.ErrInvalidAmount):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, services.ErrTabNotFound),
		errors.Is(err, services.ErrLineNotFound),
		errors.Is(err, services.ErrProductNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, services.ErrNoTransactions):
		c.JSON(http.StatusNotFound, gin.H{"error": "Nenhuma transação encontrada"})
	case errors.Is(err, services.ErrTabNotOpen):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, services.ErrTimeout), errors.Is(err, cache.ErrTimeout):
		c.JSON(http.StatusGatewayTimeout, gin.H{"error": "Tempo de resposta excedido, tente novamente"})
	default:
		log.Printf("Request %s %s failed: %v", c.Request.Method, c.FullPath(), err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
	}
}
