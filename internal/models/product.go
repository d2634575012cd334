package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// GenericProductName is the catalog entry that carries ad-hoc "diversos" lines.
const GenericProductName = "Diversos"

type Product struct {
	ID              string                      `json:"id" gorm:"type:varchar(36);primaryKey"`
	Name            string                      `json:"nome" gorm:"not null;index"`
	Price           decimal.Decimal             `json:"preco" gorm:"type:decimal(10,2);not null"`
	CategoryID      string                      `json:"categoria_id" gorm:"type:varchar(36);index"`
	Available       bool                        `json:"disponivel" gorm:"not null;default:true"`
	PreparationTime int                         `json:"tempo_preparo" gorm:"default:0"` // minutes
	Description     string                      `json:"descricao" gorm:"type:text"`
	Ingredients     datatypes.JSONSlice[string] `json:"ingredientes"`
	ImageURL        string                      `json:"imagem_url,omitempty"`
	CreatedAt       time.Time                   `json:"created_at"`
	UpdatedAt       time.Time                   `json:"updated_at"`
}

func (p *Product) BeforeCreate(tx *gorm.DB) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	return nil
}

type Category struct {
	ID          string    `json:"id" gorm:"type:varchar(36);primaryKey"`
	Name        string    `json:"nome" gorm:"not null"`
	Description string    `json:"descricao"`
	Active      bool      `json:"ativo" gorm:"default:true"`
	CreatedAt   time.Time `json:"created_at"`
}

func (c *Category) BeforeCreate(tx *gorm.DB) error {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	return nil
}
