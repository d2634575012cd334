package services

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"conveniencia/internal/cache"
	"conveniencia/internal/models"
	"conveniencia/internal/relay"
	"conveniencia/internal/repository"
	"conveniencia/pkg/money"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type SettlementMode string

const (
	ModeFull         SettlementMode = "full"
	ModePartialValue SettlementMode = "partial_value"
	ModePartialItems SettlementMode = "partial_items"
	ModeSplit        SettlementMode = "split"
)

type ItemSelection struct {
	LineID   string `json:"pedido_id"`
	Quantity int    `json:"quantidade"`
}

type SettlementRequest struct {
	TabID         string               `json:"-"`
	Mode          SettlementMode       `json:"modo"`
	Method        models.PaymentMethod `json:"metodo_pagamento"`
	ServiceCharge bool                 `json:"taxa_servico"`
	Amount        decimal.Decimal      `json:"valor"`
	Items         []ItemSelection      `json:"itens"`
	People        int                  `json:"pessoas"`
	Tendered      *decimal.Decimal     `json:"valor_recebido"`
}

// Quote is what the operator sees before confirming. PerPerson is exact;
// PerPersonRounded is the share shown and collected. Remaining is the tab
// total after a partial payment.
type Quote struct {
	Mode             SettlementMode   `json:"modo"`
	Base             decimal.Decimal  `json:"base"`
	ServiceCharge    decimal.Decimal  `json:"taxa_servico"`
	Due              decimal.Decimal  `json:"valor_devido"`
	People           int              `json:"pessoas,omitempty"`
	PerPerson        *decimal.Decimal `json:"por_pessoa,omitempty"`
	PerPersonRounded *decimal.Decimal `json:"por_pessoa_arredondado,omitempty"`
	Change           *decimal.Decimal `json:"troco,omitempty"`
	Remaining        decimal.Decimal  `json:"restante"`
}

type Settlement struct {
	Quote       Quote               `json:"cotacao"`
	Tab         *models.Tab         `json:"comanda"`
	Transaction *models.Transaction `json:"transacao"`
	Closed      bool                `json:"fechada"`
}

// PaymentLedger is the local record of settlements.
type PaymentLedger interface {
	AppendTransaction(ctx context.Context, tx *models.Transaction) error
	AddPaidQuantities(ctx context.Context, tabID string, quantities map[string]int) error
	PaidQuantities(ctx context.Context, tabID string) (map[string]int, error)
}

type PaymentService interface {
	Quote(ctx context.Context, req SettlementRequest) (*Quote, error)
	Settle(ctx context.Context, req SettlementRequest) (*Settlement, error)
	AddMiscItem(ctx context.Context, tabID, name string, price decimal.Decimal, note string) (*models.OrderLine, error)
	PaidQuantities(ctx context.Context, tabID string) (map[string]int, error)
}

type paymentService struct {
	tabs     TabService
	tabRepo  repository.TabRepository
	lineRepo repository.OrderLineRepository
	products ProductService
	ledger   PaymentLedger
	store    *cache.Store
	notifier Notifier

	serviceRate  decimal.Decimal
	writeTimeout time.Duration
	now          func() time.Time
}

func NewPaymentService(
	tabs TabService,
	tabRepo repository.TabRepository,
	lineRepo repository.OrderLineRepository,
	products ProductService,
	ledger PaymentLedger,
	store *cache.Store,
	notifier Notifier,
	serviceRate decimal.Decimal,
	writeTimeout time.Duration,
) PaymentService {
	return &paymentService{
		tabs:         tabs,
		tabRepo:      tabRepo,
		lineRepo:     lineRepo,
		products:     products,
		ledger:       ledger,
		store:        store,
		notifier:     notifier,
		serviceRate:  serviceRate,
		writeTimeout: writeTimeout,
		now:          time.Now,
	}
}

// quoteState is everything Settle needs after a successful quote.
type quoteState struct {
	quote    Quote
	tab      *models.Tab
	lines    []models.OrderLine
	selected map[string]int
	// discharged is how much of the tab total this payment removes.
	discharged decimal.Decimal
}

func (s *paymentService) Quote(ctx context.Context, req SettlementRequest) (*Quote, error) {
	st, err := s.quote(ctx, req)
	if err != nil {
		return nil, err
	}
	return &st.quote, nil
}

func (s *paymentService) quote(ctx context.Context, req SettlementRequest) (*quoteState, error) {
	if !req.Method.Valid() {
		return nil, validationError("unknown payment method %q", req.Method)
	}
	if req.Mode == ModeSplit && req.People < 2 {
		return nil, validationError("split needs at least 2 people")
	}
	if req.Mode == ModePartialValue && !req.Amount.IsPositive() {
		return nil, ErrInvalidAmount
	}

	tab, err := s.tabRepo.GetByID(ctx, req.TabID)
	if err != nil {
		return nil, gatewayError(err, ErrTabNotFound, "get tab")
	}
	if !tab.IsOpen() {
		return nil, ErrTabNotOpen
	}
	lines, err := s.lineRepo.ListByTab(ctx, req.TabID)
	if err != nil {
		return nil, gatewayError(err, nil, "list order lines")
	}

	st := &quoteState{tab: tab, lines: lines, quote: Quote{Mode: req.Mode}}
	switch req.Mode {
	case ModeFull, ModeSplit:
		st.quote.Base = money.NonNegative(activeSubtotal(lines).Sub(tab.PaidAmount))
		st.discharged = st.quote.Base
		st.quote.Remaining = decimal.Zero

	case ModePartialValue:
		st.quote.Base = req.Amount
		st.discharged = decimal.Min(req.Amount, tab.Total)
		st.quote.Remaining = money.NonNegative(tab.Total.Sub(req.Amount))

	case ModePartialItems:
		base, selected, err := s.selectItems(ctx, req, lines)
		if err != nil {
			return nil, err
		}
		st.quote.Base = base
		st.selected = selected
		st.discharged = decimal.Min(base, tab.Total)
		st.quote.Remaining = money.NonNegative(tab.Total.Sub(base))

	default:
		return nil, validationError("unknown payment mode %q", req.Mode)
	}

	if req.ServiceCharge {
		st.quote.ServiceCharge = money.ServiceCharge(st.quote.Base, s.serviceRate)
	}
	st.quote.Due = st.quote.Base.Add(st.quote.ServiceCharge)

	collect := st.quote.Due
	if req.Mode == ModeSplit {
		perPerson := st.quote.Due.Div(decimal.NewFromInt(int64(req.People)))
		st.quote.People = req.People
		rounded := money.Round(perPerson)
		st.quote.PerPerson = &perPerson
		st.quote.PerPersonRounded = &rounded
		collect = rounded
	}

	if req.Method == models.MethodCash && req.Tendered != nil {
		change := req.Tendered.Sub(collect)
		if change.IsNegative() {
			return nil, &InsufficientFundsError{Due: collect, Tendered: *req.Tendered}
		}
		st.quote.Change = &change
	}
	return st, nil
}

// selectItems validates the selection against what is still unpaid on each line.
func (s *paymentService) selectItems(ctx context.Context, req SettlementRequest, lines []models.OrderLine) (decimal.Decimal, map[string]int, error) {
	if len(req.Items) == 0 {
		return decimal.Zero, nil, validationError("no items selected")
	}
	paid, err := s.ledger.PaidQuantities(ctx, req.TabID)
	if err != nil {
		return decimal.Zero, nil, fmt.Errorf("failed to read paid items: %w", err)
	}

	byID := make(map[string]models.OrderLine, len(lines))
	for _, l := range lines {
		byID[l.ID] = l
	}

	selected := make(map[string]int, len(req.Items))
	for _, item := range req.Items {
		if item.Quantity <= 0 {
			return decimal.Zero, nil, validationError("quantity must be positive for line %s", item.LineID)
		}
		selected[item.LineID] += item.Quantity
	}

	base := decimal.Zero
	for lineID, qty := range selected {
		line, ok := byID[lineID]
		if !ok || line.IsDelivered() {
			return decimal.Zero, nil, fmt.Errorf("%w: %s", ErrLineNotFound, lineID)
		}
		if unpaid := line.Quantity - paid[lineID]; qty > unpaid {
			return decimal.Zero, nil, validationError("line %s has only %d unpaid", lineID, unpaid)
		}
		base = base.Add(line.UnitPrice.Mul(decimal.NewFromInt(int64(qty))))
	}
	return base, selected, nil
}

// Settle commits the payment. The database write is the commit point; local
// bookkeeping only happens after it succeeded.
func (s *paymentService) Settle(ctx context.Context, req SettlementRequest) (*Settlement, error) {
	if req.Method == models.MethodCash && req.Tendered == nil {
		return nil, validationError("tendered amount is required for cash")
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	st, err := s.quote(ctx, req)
	if err != nil {
		return nil, err
	}

	result := &Settlement{Quote: st.quote}
	kind := models.PaymentPartial

	switch req.Mode {
	case ModeFull, ModeSplit:
		if req.ServiceCharge {
			if err := s.tabRepo.SetServiceCharge(ctx, req.TabID, st.quote.ServiceCharge); err != nil {
				return nil, gatewayError(err, ErrTabNotFound, "set service charge")
			}
		}
		if err := s.tabs.CloseTab(ctx, req.TabID); err != nil {
			return nil, err
		}
		kind = models.PaymentTotal
		result.Closed = true
		result.Tab = st.tab
		result.Tab.Status = models.TabClosed

	case ModePartialValue, ModePartialItems:
		paidAmount := st.tab.PaidAmount.Add(st.discharged)
		if err := s.tabRepo.ApplyPayment(ctx, req.TabID, st.quote.Remaining, paidAmount); err != nil {
			return nil, gatewayError(err, ErrTabNotFound, "apply payment")
		}
		s.store.Dispatch(cache.SetTabTotal{ID: req.TabID, Total: st.quote.Remaining, PaidAmount: &paidAmount})

		if len(st.selected) > 0 {
			if err := s.ledger.AddPaidQuantities(ctx, req.TabID, st.selected); err != nil {
				log.Printf("Failed to record paid items for tab %s: %v", req.TabID, err)
			}
		}
		result.Tab = st.tab
		result.Tab.Total = st.quote.Remaining
		result.Tab.PaidAmount = paidAmount
		s.notifier.Broadcast(ctx, relay.PartialPayment, map[string]interface{}{
			"comanda_id": req.TabID,
			"valor":      st.quote.Due,
			"restante":   st.quote.Remaining,
		})
	}

	tx := &models.Transaction{
		ID:        uuid.NewString(),
		TabID:     st.tab.ID,
		TabNumber: st.tab.Number,
		Amount:    st.quote.Due,
		Method:    req.Method,
		Kind:      kind,
		CreatedAt: s.now(),
	}
	if req.Mode != ModePartialValue {
		tx.Items = paidItems(st.lines, st.selected)
	}
	if err := s.ledger.AppendTransaction(ctx, tx); err != nil {
		log.Printf("Failed to record transaction for tab %s: %v", req.TabID, err)
	}
	result.Transaction = tx
	return result, nil
}

// paidItems lists the selected quantities, or every active line when
// selected is empty.
func paidItems(lines []models.OrderLine, selected map[string]int) []models.PaidItem {
	var items []models.PaidItem
	for _, l := range lines {
		if l.IsDelivered() {
			continue
		}
		qty := l.Quantity
		if selected != nil {
			var ok bool
			if qty, ok = selected[l.ID]; !ok {
				continue
			}
		}
		items = append(items, models.PaidItem{LineID: l.ID, Name: lineLabel(l), Quantity: qty, Price: l.UnitPrice})
	}
	return items
}

// lineLabel shows the typed name for generic items.
func lineLabel(l models.OrderLine) string {
	if l.Product != nil && l.Product.Name == models.GenericProductName && l.Notes != "" {
		name, _, _ := strings.Cut(l.Notes, " - R$ ")
		return name
	}
	return l.ProductName()
}

// AddMiscItem adds an ad-hoc item priced by the operator. The name and price
// are kept in the line note since the line points at the generic product.
func (s *paymentService) AddMiscItem(ctx context.Context, tabID, name string, price decimal.Decimal, note string) (*models.OrderLine, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, validationError("name is required")
	}
	if !price.IsPositive() {
		return nil, ErrInvalidAmount
	}

	generic, err := s.products.EnsureGenericProduct(ctx)
	if err != nil {
		return nil, err
	}

	notes := fmt.Sprintf("%s - %s", name, money.Format(price))
	if note = strings.TrimSpace(note); note != "" {
		notes += " | " + note
	}
	line := &models.OrderLine{
		ProductID: generic.ID,
		Quantity:  1,
		UnitPrice: price,
		Notes:     notes,
		Product:   generic,
	}
	if err := s.tabs.AddPricedLine(ctx, tabID, line); err != nil {
		return nil, err
	}
	return line, nil
}

func (s *paymentService) PaidQuantities(ctx context.Context, tabID string) (map[string]int, error) {
	return s.ledger.PaidQuantities(ctx, tabID)
}

func (s *paymentService) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.writeTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.writeTimeout)
}
