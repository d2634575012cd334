package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"conveniencia/internal/cache"
	"conveniencia/internal/catalog"
	"conveniencia/internal/models"
	"conveniencia/internal/relay"
	"conveniencia/internal/repository"
	"conveniencia/pkg/money"

	"github.com/shopspring/decimal"
)

// Notifier tells other sessions that something changed.
type Notifier interface {
	Broadcast(ctx context.Context, action relay.Action, data interface{})
}

// TabBookkeeping is the local, non-authoritative state kept per tab.
type TabBookkeeping interface {
	ClearPaidQuantities(ctx context.Context, tabID string) error
	UnmarkPrinted(ctx context.Context, tabID string) error
}

type OrderItemInput struct {
	ProductID string `json:"produto_id" binding:"required"`
	Quantity  int    `json:"quantidade" binding:"required"`
	Notes     string `json:"observacoes"`
}

type KitchenStatus string

const (
	KitchenEmpty     KitchenStatus = "empty"
	KitchenPreparing KitchenStatus = "preparing"
	KitchenReady     KitchenStatus = "ready"
	KitchenDelivered KitchenStatus = "delivered"
)

type TabService interface {
	CreateTab(ctx context.Context, name string) (*models.Tab, error)
	AddOrderLines(ctx context.Context, tabID string, items []OrderItemInput) ([]models.OrderLine, error)
	AddPricedLine(ctx context.Context, tabID string, line *models.OrderLine) error
	RemoveOrderLine(ctx context.Context, lineID string) error
	CloseTab(ctx context.Context, tabID string) error
	DeleteTab(ctx context.Context, tabID string) error
	GetTab(ctx context.Context, tabID string) (*models.Tab, error)

	GetOrderLines(tabID string) []models.OrderLine
	ComputeTabTotal(tabID string) decimal.Decimal
	RecalculateTabTotal(ctx context.Context, tabID string) (decimal.Decimal, error)
	UpdateTabTotal(ctx context.Context, tabID string, total decimal.Decimal) error

	UpdateLineStatus(ctx context.Context, lineID string, status models.LineStatus) (*models.OrderLine, error)
	KitchenStatus(ctx context.Context, tabID string) (KitchenStatus, error)
}

type tabService struct {
	tabRepo     repository.TabRepository
	lineRepo    repository.OrderLineRepository
	productRepo repository.ProductRepository
	store       *cache.Store
	classifier  *catalog.Classifier
	notifier    Notifier
	books       TabBookkeeping

	writeTimeout time.Duration
	now          func() time.Time
}

const maxCreateAttempts = 3

func NewTabService(
	tabRepo repository.TabRepository,
	lineRepo repository.OrderLineRepository,
	productRepo repository.ProductRepository,
	store *cache.Store,
	classifier *catalog.Classifier,
	notifier Notifier,
	books TabBookkeeping,
	writeTimeout time.Duration,
) TabService {
	return &tabService{
		tabRepo:      tabRepo,
		lineRepo:     lineRepo,
		productRepo:  productRepo,
		store:        store,
		classifier:   classifier,
		notifier:     notifier,
		books:        books,
		writeTimeout: writeTimeout,
		now:          time.Now,
	}
}

func (s *tabService) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.writeTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.writeTimeout)
}

// CreateTab opens a tab. A name already used by an open tab gets a
// "-<unix millis>" suffix instead of failing.
func (s *tabService) CreateTab(ctx context.Context, name string) (*models.Tab, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	name = strings.TrimSpace(name)
	if name == "" {
		name = fmt.Sprintf("CMD%d", s.now().UnixMilli())
	}

	number := name
	taken, err := s.tabRepo.OpenNumberExists(ctx, number)
	if err != nil {
		return nil, gatewayError(err, nil, "check tab number")
	}
	if taken {
		number = s.disambiguate(name, 0)
	}

	var tab *models.Tab
	for attempt := 0; attempt < maxCreateAttempts; attempt++ {
		tab = &models.Tab{Number: number, Status: models.TabOpen}
		err = s.tabRepo.Create(ctx, tab)
		if !errors.Is(err, repository.ErrDuplicate) {
			break
		}
		log.Printf("Tab number %q already open, retrying with a suffix", number)
		number = s.disambiguate(name, attempt+1)
	}
	if err != nil {
		return nil, gatewayError(err, nil, "create tab")
	}

	s.store.Dispatch(cache.UpsertTab{Tab: *tab})
	s.notifier.Broadcast(ctx, relay.TabCreated, tab)
	return tab, nil
}

func (s *tabService) disambiguate(name string, attempt int) string {
	return fmt.Sprintf("%s-%d", name, s.now().UnixMilli()+int64(attempt))
}

func (s *tabService) GetTab(ctx context.Context, tabID string) (*models.Tab, error) {
	tab, err := s.tabRepo.GetByID(ctx, tabID)
	if err != nil {
		return nil, gatewayError(err, ErrTabNotFound, "get tab")
	}
	return tab, nil
}

func (s *tabService) openTab(ctx context.Context, tabID string) (*models.Tab, error) {
	tab, err := s.GetTab(ctx, tabID)
	if err != nil {
		return nil, err
	}
	if !tab.IsOpen() {
		return nil, ErrTabNotOpen
	}
	return tab, nil
}

// AddOrderLines appends one new line per item, never merging with existing
// lines. Items whose product is unknown are skipped.
func (s *tabService) AddOrderLines(ctx context.Context, tabID string, items []OrderItemInput) ([]models.OrderLine, error) {
	if len(items) == 0 {
		return nil, validationError("no items")
	}
	for _, item := range items {
		if item.Quantity <= 0 {
			return nil, validationError("quantity must be positive for product %s", item.ProductID)
		}
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	if _, err := s.openTab(ctx, tabID); err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(items))
	for _, item := range items {
		ids = append(ids, item.ProductID)
	}
	products, err := s.productRepo.GetByIDs(ctx, ids)
	if err != nil {
		return nil, gatewayError(err, nil, "load products")
	}

	base := s.now()
	lines := make([]*models.OrderLine, 0, len(items))
	for _, item := range items {
		product, ok := products[item.ProductID]
		if !ok {
			log.Printf("Skipping unknown product %s on tab %s", item.ProductID, tabID)
			continue
		}
		qty := decimal.NewFromInt(int64(item.Quantity))
		lines = append(lines, &models.OrderLine{
			TabID:     tabID,
			ProductID: product.ID,
			Quantity:  item.Quantity,
			UnitPrice: product.Price,
			Subtotal:  product.Price.Mul(qty),
			Status:    s.classifier.InitialStatus(product),
			Notes:     strings.TrimSpace(item.Notes),
			// keep entry order stable within one batch
			OrderedAt: base.Add(time.Duration(len(lines)) * time.Microsecond),
			Product:   product,
		})
	}
	if len(lines) == 0 {
		return []models.OrderLine{}, nil
	}

	if err := s.lineRepo.CreateBatch(ctx, lines); err != nil {
		return nil, gatewayError(err, nil, "insert order lines")
	}

	added := make([]models.OrderLine, len(lines))
	for i, l := range lines {
		added[i] = *l
	}
	s.store.Dispatch(cache.AppendLines{Lines: added})

	if _, err := s.recompute(ctx, tabID); err != nil {
		return added, err
	}

	s.notifier.Broadcast(ctx, relay.ItemsAdded, map[string]interface{}{
		"comanda_id": tabID,
		"itens":      len(added),
	})
	return added, nil
}

// AddPricedLine inserts a line whose price was set by the caller.
func (s *tabService) AddPricedLine(ctx context.Context, tabID string, line *models.OrderLine) error {
	if line.Quantity <= 0 {
		return validationError("quantity must be positive")
	}
	if !line.UnitPrice.IsPositive() {
		return ErrInvalidAmount
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	if _, err := s.openTab(ctx, tabID); err != nil {
		return err
	}

	line.TabID = tabID
	line.Subtotal = line.UnitPrice.Mul(decimal.NewFromInt(int64(line.Quantity)))
	if line.OrderedAt.IsZero() {
		line.OrderedAt = s.now()
	}
	if err := s.lineRepo.CreateBatch(ctx, []*models.OrderLine{line}); err != nil {
		return gatewayError(err, nil, "insert order line")
	}
	s.store.Dispatch(cache.AppendLines{Lines: []models.OrderLine{*line}})

	if _, err := s.recompute(ctx, tabID); err != nil {
		return err
	}
	s.notifier.Broadcast(ctx, relay.ItemsAdded, map[string]interface{}{
		"comanda_id": tabID,
		"itens":      1,
	})
	return nil
}

// RemoveOrderLine deletes one line. The tab total is left as is until the
// next explicit recalculation.
func (s *tabService) RemoveOrderLine(ctx context.Context, lineID string) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	if err := s.lineRepo.Delete(ctx, lineID); err != nil {
		return gatewayError(err, ErrLineNotFound, "delete order line")
	}
	s.store.Dispatch(cache.RemoveLine{ID: lineID})
	s.notifier.Broadcast(ctx, relay.ItemRemoved, map[string]string{"pedido_id": lineID})
	return nil
}

// CloseTab closes the tab and delivers its lines in one transaction.
func (s *tabService) CloseTab(ctx context.Context, tabID string) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	if err := s.tabRepo.Close(ctx, tabID); err != nil {
		return gatewayError(err, ErrTabNotFound, "close tab")
	}
	s.store.Dispatch(cache.RemoveTab{ID: tabID})

	if err := s.books.ClearPaidQuantities(ctx, tabID); err != nil {
		log.Printf("Failed to clear paid items of tab %s: %v", tabID, err)
	}
	s.notifier.Broadcast(ctx, relay.TabFinalized, map[string]string{"comanda_id": tabID})
	return nil
}

// DeleteTab removes the tab and all of its lines. Callers confirm first.
func (s *tabService) DeleteTab(ctx context.Context, tabID string) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	if err := s.tabRepo.DeleteWithLines(ctx, tabID); err != nil {
		return gatewayError(err, ErrTabNotFound, "delete tab")
	}
	s.store.Dispatch(cache.RemoveTab{ID: tabID})

	if err := s.books.ClearPaidQuantities(ctx, tabID); err != nil {
		log.Printf("Failed to clear paid items of tab %s: %v", tabID, err)
	}
	if err := s.books.UnmarkPrinted(ctx, tabID); err != nil {
		log.Printf("Failed to clear printed marker of tab %s: %v", tabID, err)
	}
	s.notifier.Broadcast(ctx, relay.TabDeleted, map[string]string{"comanda_id": tabID})
	return nil
}

func (s *tabService) GetOrderLines(tabID string) []models.OrderLine {
	return s.store.Lines(tabID)
}

// ComputeTabTotal is the sum of the loaded lines. It does not net out
// partial payments; Tab.Total does.
func (s *tabService) ComputeTabTotal(tabID string) decimal.Decimal {
	return s.store.LinesTotal(tabID)
}

func (s *tabService) RecalculateTabTotal(ctx context.Context, tabID string) (decimal.Decimal, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	total, err := s.recompute(ctx, tabID)
	if err != nil {
		return decimal.Zero, err
	}
	s.notifier.Broadcast(ctx, relay.TotalUpdated, map[string]interface{}{
		"comanda_id": tabID,
		"total":      total,
	})
	return total, nil
}

// recompute persists total = max(0, sum of non-delivered subtotals - paid).
func (s *tabService) recompute(ctx context.Context, tabID string) (decimal.Decimal, error) {
	tab, err := s.tabRepo.GetByID(ctx, tabID)
	if err != nil {
		return decimal.Zero, gatewayError(err, ErrTabNotFound, "get tab")
	}
	lines, err := s.lineRepo.ListByTab(ctx, tabID)
	if err != nil {
		return decimal.Zero, gatewayError(err, nil, "list order lines")
	}

	total := money.NonNegative(activeSubtotal(lines).Sub(tab.PaidAmount))
	if err := s.tabRepo.UpdateTotal(ctx, tabID, total); err != nil {
		return decimal.Zero, gatewayError(err, ErrTabNotFound, "update tab total")
	}
	s.store.Dispatch(cache.SetTabTotal{ID: tabID, Total: total})
	return total, nil
}

func activeSubtotal(lines []models.OrderLine) decimal.Decimal {
	sum := decimal.Zero
	for _, l := range lines {
		if !l.IsDelivered() {
			sum = sum.Add(l.Subtotal)
		}
	}
	return sum
}

func (s *tabService) UpdateTabTotal(ctx context.Context, tabID string, total decimal.Decimal) error {
	if total.IsNegative() {
		return validationError("total must not be negative")
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	if _, err := s.tabRepo.GetByID(ctx, tabID); err != nil {
		return gatewayError(err, ErrTabNotFound, "get tab")
	}
	lines, err := s.lineRepo.ListByTab(ctx, tabID)
	if err != nil {
		return gatewayError(err, nil, "list order lines")
	}

	// The difference to the open items is booked as paid so later
	// recomputes keep the override.
	active := activeSubtotal(lines)
	if total.GreaterThan(active) {
		return validationError("total %s exceeds open items %s", total.StringFixed(2), active.StringFixed(2))
	}
	paid := active.Sub(total)
	if err := s.tabRepo.ApplyPayment(ctx, tabID, total, paid); err != nil {
		return gatewayError(err, ErrTabNotFound, "update tab total")
	}
	s.store.Dispatch(cache.SetTabTotal{ID: tabID, Total: total, PaidAmount: &paid})
	s.notifier.Broadcast(ctx, relay.TotalUpdated, map[string]interface{}{
		"comanda_id": tabID,
		"total":      total,
	})
	return nil
}

func (s *tabService) UpdateLineStatus(ctx context.Context, lineID string, status models.LineStatus) (*models.OrderLine, error) {
	fields := map[string]interface{}{"status": status}
	now := s.now()
	switch status {
	case models.LinePreparing:
		fields["started_at"] = now
	case models.LineReady:
		fields["ready_at"] = now
	case models.LineDelivered:
		fields["delivered_at"] = now
	case models.LineCancelled:
	default:
		return nil, validationError("unknown status %q", status)
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	if err := s.lineRepo.UpdateStatus(ctx, lineID, fields); err != nil {
		return nil, gatewayError(err, ErrLineNotFound, "update order line status")
	}
	line, err := s.lineRepo.GetByID(ctx, lineID)
	if err != nil {
		return nil, gatewayError(err, ErrLineNotFound, "get order line")
	}

	s.store.Dispatch(cache.UpdateLine{Line: *line})
	s.notifier.Broadcast(ctx, relay.LineStatusChanged, map[string]interface{}{
		"pedido_id":  line.ID,
		"comanda_id": line.TabID,
		"status":     status,
	})
	return line, nil
}

// KitchenStatus aggregates the lines that go through the kitchen.
func (s *tabService) KitchenStatus(ctx context.Context, tabID string) (KitchenStatus, error) {
	lines, err := s.lineRepo.ListByTab(ctx, tabID)
	if err != nil {
		return "", gatewayError(err, nil, "list order lines")
	}
	return aggregateKitchenStatus(lines), nil
}

func aggregateKitchenStatus(lines []models.OrderLine) KitchenStatus {
	var tracked, delivered, ready int
	for _, l := range lines {
		if l.Status == nil || *l.Status == models.LineCancelled {
			continue
		}
		tracked++
		switch *l.Status {
		case models.LineDelivered:
			delivered++
		case models.LineReady:
			ready++
		}
	}

	switch {
	case tracked == 0:
		return KitchenEmpty
	case delivered == tracked:
		return KitchenDelivered
	case ready > 0:
		return KitchenReady
	default:
		return KitchenPreparing
	}
}
