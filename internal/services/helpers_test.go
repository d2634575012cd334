package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"conveniencia/internal/cache"
	"conveniencia/internal/catalog"
	"conveniencia/internal/database"
	"conveniencia/internal/models"
	"conveniencia/internal/redis"
	"conveniencia/internal/relay"
	"conveniencia/internal/repository"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/go-redis/redis/v8"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type recordingNotifier struct {
	mu      sync.Mutex
	actions []relay.Action
}

func (n *recordingNotifier) Broadcast(_ context.Context, action relay.Action, _ interface{}) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.actions = append(n.actions, action)
}

func (n *recordingNotifier) has(action relay.Action) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	for _, a := range n.actions {
		if a == action {
			return true
		}
	}
	return false
}

type testEnv struct {
	db       *gorm.DB
	kv       *redis.Client
	store    *cache.Store
	notifier *recordingNotifier

	tabRepo     repository.TabRepository
	lineRepo    repository.OrderLineRepository
	productRepo repository.ProductRepository

	tabs     TabService
	payments PaymentService
	products ProductService
	reports  ReportService
	prints   PrintService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	db, err := database.Open(":memory:", logger.Silent)
	require.NoError(t, err)
	require.NoError(t, database.AutoMigrate(db))

	mr := miniredis.RunT(t)
	kv := redis.NewClient(goredis.NewClient(&goredis.Options{Addr: mr.Addr()}))
	t.Cleanup(func() { kv.Close() })

	env := &testEnv{
		db:          db,
		kv:          kv,
		store:       cache.NewStore(),
		notifier:    &recordingNotifier{},
		tabRepo:     repository.NewTabRepository(db),
		lineRepo:    repository.NewOrderLineRepository(db),
		productRepo: repository.NewProductRepository(db),
	}
	classifier := catalog.NewClassifier(nil, []string{"cerveja", "suco"}, []string{"batata", "porção"})

	env.products = NewProductService(env.productRepo, env.notifier)
	env.tabs = NewTabService(env.tabRepo, env.lineRepo, env.productRepo, env.store, classifier, env.notifier, kv, 5*time.Second)
	env.payments = NewPaymentService(env.tabs, env.tabRepo, env.lineRepo, env.products, kv, env.store, env.notifier, decimal.RequireFromString("0.10"), 5*time.Second)
	env.reports = NewReportService(kv, env.tabRepo, env.lineRepo)
	env.prints = NewPrintService(kv, env.store)
	return env
}

func (e *testEnv) product(t *testing.T, name, price string) *models.Product {
	t.Helper()
	p := &models.Product{Name: name, Price: decimal.RequireFromString(price), Available: true}
	require.NoError(t, e.productRepo.Create(context.Background(), p))
	return p
}

func (e *testEnv) tab(t *testing.T, name string) *models.Tab {
	t.Helper()
	tab, err := e.tabs.CreateTab(context.Background(), name)
	require.NoError(t, err)
	return tab
}

func (e *testEnv) add(t *testing.T, tabID string, items ...OrderItemInput) []models.OrderLine {
	t.Helper()
	lines, err := e.tabs.AddOrderLines(context.Background(), tabID, items)
	require.NoError(t, err)
	return lines
}

func (e *testEnv) persisted(t *testing.T, tabID string) *models.Tab {
	t.Helper()
	tab, err := e.tabRepo.GetByID(context.Background(), tabID)
	require.NoError(t, err)
	return tab
}

// checkInvariant asserts total == max(0, sum of active subtotals - paid).
func (e *testEnv) checkInvariant(t *testing.T, tabID string) {
	t.Helper()
	tab := e.persisted(t, tabID)
	lines, err := e.lineRepo.ListByTab(context.Background(), tabID)
	require.NoError(t, err)

	want := activeSubtotal(lines).Sub(tab.PaidAmount)
	if want.IsNegative() {
		want = decimal.Zero
	}
	require.Equal(t, want.StringFixed(2), tab.Total.StringFixed(2), "tab total out of sync with its lines")
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func decPtr(s string) *decimal.Decimal {
	d := dec(s)
	return &d
}
