package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type PaymentMethod string

const (
	MethodCash PaymentMethod = "cash"
	MethodCard PaymentMethod = "card"
	MethodPix  PaymentMethod = "pix"
)

func (m PaymentMethod) Valid() bool {
	switch m {
	case MethodCash, MethodCard, MethodPix:
		return true
	}
	return false
}

func (m PaymentMethod) Label() string {
	switch m {
	case MethodCash:
		return "Dinheiro"
	case MethodCard:
		return "Cartão"
	case MethodPix:
		return "PIX"
	}
	return string(m)
}

type PaymentKind string

const (
	PaymentTotal   PaymentKind = "total"
	PaymentPartial PaymentKind = "partial"
)

// Transaction is a settlement event kept in the local history for reports.
// It is not authoritative; tabs and lines in the database are.
type Transaction struct {
	ID        string          `json:"id"`
	TabID     string          `json:"comanda_id"`
	TabNumber string          `json:"comanda"`
	Amount    decimal.Decimal `json:"valor"`
	Method    PaymentMethod   `json:"metodo_pagamento"`
	Kind      PaymentKind     `json:"tipo"`
	Items     []PaidItem      `json:"itens"`
	CreatedAt time.Time       `json:"data"`
}

type PaidItem struct {
	LineID   string          `json:"pedido_id,omitempty"`
	Name     string          `json:"nome"`
	Quantity int             `json:"quantidade"`
	Price    decimal.Decimal `json:"preco"`
}

// CashClose is one archived end-of-day register close.
type CashClose struct {
	Date         string          `json:"data"`
	Time         string          `json:"hora"`
	Total        decimal.Decimal `json:"total"`
	Transactions int             `json:"transacoes"`
	ClosedAt     time.Time       `json:"fechamento"`
}
