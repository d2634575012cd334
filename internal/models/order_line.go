package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// OrderLine is a "pedido": one product, quantity and price snapshot inside a tab.
type OrderLine struct {
	ID          string          `json:"id" gorm:"type:varchar(36);primaryKey"`
	TabID       string          `json:"comanda_id" gorm:"type:varchar(36);not null;index"`
	ProductID   string          `json:"produto_id" gorm:"type:varchar(36);not null;index"`
	Quantity    int             `json:"quantidade" gorm:"not null"`
	UnitPrice   decimal.Decimal `json:"preco_unitario" gorm:"type:decimal(10,2);not null"`
	Subtotal    decimal.Decimal `json:"subtotal" gorm:"type:decimal(10,2);not null"`
	Status      *LineStatus     `json:"status" gorm:"type:varchar(16);index"`
	Notes       string          `json:"observacoes,omitempty"`
	OrderedAt   time.Time       `json:"tempo_pedido" gorm:"not null;index"`
	StartedAt   *time.Time      `json:"tempo_inicio_preparo,omitempty"`
	ReadyAt     *time.Time      `json:"tempo_pronto,omitempty"`
	DeliveredAt *time.Time      `json:"tempo_entrega,omitempty"`
	Product     *Product        `json:"produto,omitempty" gorm:"foreignKey:ProductID;constraint:OnDelete:RESTRICT"`
}

// LineStatus is only set for lines that go through the kitchen. Beverages
// and generic items carry no status (nil).
type LineStatus string

const (
	LinePreparing LineStatus = "preparing"
	LineReady     LineStatus = "ready"
	LineDelivered LineStatus = "delivered"
	LineCancelled LineStatus = "cancelled"
)

// MissingProductName is shown for lines whose product row is gone.
const MissingProductName = "Produto não encontrado"

func (l *OrderLine) BeforeCreate(tx *gorm.DB) error {
	if l.ID == "" {
		l.ID = uuid.NewString()
	}
	if l.OrderedAt.IsZero() {
		l.OrderedAt = time.Now()
	}
	return nil
}

func (l OrderLine) IsDelivered() bool {
	return l.Status != nil && *l.Status == LineDelivered
}

func (l OrderLine) ProductName() string {
	if l.Product == nil {
		return MissingProductName
	}
	return l.Product.Name
}

func StatusPtr(s LineStatus) *LineStatus {
	return &s
}
