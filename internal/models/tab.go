package models

import (
	"regexp"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Tab is a "comanda": the running bill of one party.
type Tab struct {
	ID            string          `json:"id" gorm:"type:varchar(36);primaryKey"`
	Number        string          `json:"numero_comanda" gorm:"not null;uniqueIndex:idx_tabs_open_number,where:status = 'open'"`
	Kind          string          `json:"tipo" gorm:"default:'individual'"` // individual, unified, separate
	Status        TabStatus       `json:"status" gorm:"type:varchar(16);not null;default:'open';index"`
	Total         decimal.Decimal `json:"total" gorm:"type:decimal(10,2);not null;default:0"`
	PaidAmount    decimal.Decimal `json:"valor_pago" gorm:"type:decimal(10,2);not null;default:0"`
	Discount      decimal.Decimal `json:"desconto" gorm:"type:decimal(10,2);not null;default:0"`
	ServiceCharge decimal.Decimal `json:"taxa_servico" gorm:"type:decimal(10,2);not null;default:0"`
	Notes         string          `json:"observacoes,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

type TabStatus string

const (
	TabOpen      TabStatus = "open"
	TabClosed    TabStatus = "closed"
	TabCancelled TabStatus = "cancelled"
)

func (t *Tab) BeforeCreate(tx *gorm.DB) error {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	if t.Status == "" {
		t.Status = TabOpen
	}
	if t.Kind == "" {
		t.Kind = "individual"
	}
	return nil
}

func (t Tab) IsOpen() bool {
	return t.Status == TabOpen
}

var disambiguationSuffix = regexp.MustCompile(`-\d+$`)

// DisplayName strips the "-<timestamp>" suffix added when a name collided
// with another open tab.
func DisplayName(number string) string {
	if number == "" {
		return "Comanda"
	}
	return disambiguationSuffix.ReplaceAllString(number, "")
}
