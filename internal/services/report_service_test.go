package services

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"conveniencia/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

var reportNow = time.Date(2026, 10, 15, 14, 30, 0, 0, time.Local)

func seedHistory(t *testing.T, env *testEnv) {
	t.Helper()
	ctx := context.Background()
	for _, tx := range []models.Transaction{
		{ID: "a", TabNumber: "Mesa 1", Amount: dec("30"), Method: models.MethodCash, Kind: models.PaymentTotal, CreatedAt: reportNow.Add(-time.Hour), Items: []models.PaidItem{{Name: "Cerveja", Quantity: 2}}},
		{ID: "b", TabNumber: "Mesa 2", Amount: dec("12.50"), Method: models.MethodPix, Kind: models.PaymentPartial, CreatedAt: reportNow.Add(-2 * time.Hour)},
		{ID: "c", TabNumber: "Mesa 3", Amount: dec("20"), Method: models.MethodCard, Kind: models.PaymentTotal, CreatedAt: reportNow.AddDate(0, 0, -1)},
		{ID: "d", TabNumber: "Mesa 4", Amount: dec("40"), Method: models.MethodCash, Kind: models.PaymentTotal, CreatedAt: reportNow.AddDate(0, 0, -10)},
		{ID: "e", TabNumber: "Mesa 5", Amount: dec("100"), Method: models.MethodPix, Kind: models.PaymentTotal, CreatedAt: reportNow.AddDate(0, 0, -60)},
	} {
		tx := tx
		require.NoError(t, env.kv.AppendTransaction(ctx, &tx))
	}
}

func reportsAt(env *testEnv, now time.Time) ReportService {
	svc := env.reports.(*reportService)
	svc.now = func() time.Time { return now }
	return svc
}

func TestReportPeriods(t *testing.T) {
	env := newTestEnv(t)
	seedHistory(t, env)
	reports := reportsAt(env, reportNow)

	tests := []struct {
		period Period
		method models.PaymentMethod
		want   []string
	}{
		{PeriodToday, "", []string{"a", "b"}},
		{PeriodYesterday, "", []string{"c"}},
		{PeriodWeek, "", []string{"a", "b", "c"}},
		{PeriodMonth, "", []string{"a", "b", "c", "d"}},
		{PeriodAll, "", []string{"a", "b", "c", "d", "e"}},
		{PeriodAll, models.MethodPix, []string{"b", "e"}},
	}
	for _, tc := range tests {
		t.Run(string(tc.period)+"/"+string(tc.method), func(t *testing.T) {
			txs, err := reports.Transactions(context.Background(), ReportFilter{Period: tc.period, Method: tc.method})
			require.NoError(t, err)
			ids := make([]string, len(txs))
			for i, tx := range txs {
				ids[i] = tx.ID
			}
			assert.Equal(t, tc.want, ids)
		})
	}

	_, err := reports.Transactions(context.Background(), ReportFilter{Period: "decade"})
	assert.ErrorIs(t, err, ErrValidation)
}

func TestReportStats(t *testing.T) {
	env := newTestEnv(t)
	seedHistory(t, env)
	reports := reportsAt(env, reportNow)

	stats, err := reports.Stats(context.Background(), ReportFilter{Period: PeriodWeek})
	require.NoError(t, err)
	assert.Equal(t, 3, stats.Count)
	assert.Equal(t, "62.50", stats.Total.StringFixed(2))
	assert.Equal(t, "20.83", stats.AverageTicket.StringFixed(2))
	require.Len(t, stats.ByMethod, 3)
	assert.Equal(t, models.MethodCard, stats.ByMethod[0].Method)
	require.Len(t, stats.ByDay, 2)
	assert.Equal(t, 2, stats.ByDay[1].Count)

	empty, err := reports.Stats(context.Background(), ReportFilter{Period: PeriodToday, Method: models.MethodCard})
	require.NoError(t, err)
	assert.Equal(t, 0, empty.Count)
	assert.True(t, empty.AverageTicket.IsZero())
}

func TestExportCSV(t *testing.T) {
	env := newTestEnv(t)
	seedHistory(t, env)
	reports := reportsAt(env, reportNow)

	var buf bytes.Buffer
	require.NoError(t, reports.ExportCSV(context.Background(), ReportFilter{Period: PeriodToday}, &buf))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	assert.Equal(t, "Data;Comanda;Valor (R$);Método;Tipo;Qtd Itens", lines[0])
	assert.Equal(t, "15/10/2026 13:30;Mesa 1;30,00;Dinheiro;Total;1", lines[1])
	assert.Equal(t, "15/10/2026 12:30;Mesa 2;12,50;PIX;Parcial;0", lines[2])
	assert.Contains(t, buf.String(), "Total de Transações;2")
	assert.Contains(t, buf.String(), "Valor Total;R$ 42,50")
	assert.Contains(t, buf.String(), "Ticket Médio;R$ 21,25")

	err := reports.ExportCSV(context.Background(), ReportFilter{Period: PeriodToday, Method: models.MethodCard}, &buf)
	assert.ErrorIs(t, err, ErrNoTransactions)
}

func TestExportXLSX(t *testing.T) {
	env := newTestEnv(t)
	seedHistory(t, env)
	reports := reportsAt(env, reportNow)

	var buf bytes.Buffer
	require.NoError(t, reports.ExportXLSX(context.Background(), ReportFilter{Period: PeriodAll}, &buf))

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()

	header, err := f.GetCellValue("Pagamentos", "C1")
	require.NoError(t, err)
	assert.Equal(t, "Valor (R$)", header)

	tab, err := f.GetCellValue("Pagamentos", "B2")
	require.NoError(t, err)
	assert.Equal(t, "Mesa 1", tab)

	count, err := f.GetCellValue("Pagamentos", "B8")
	require.NoError(t, err)
	assert.Equal(t, "5", count)
}

func TestCloseCashRegister(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	reports := reportsAt(env, reportNow)

	_, err := reports.CloseCashRegister(ctx)
	assert.ErrorIs(t, err, ErrNoTransactions)

	seedHistory(t, env)
	record, err := reports.CloseCashRegister(ctx)
	require.NoError(t, err)
	assert.Equal(t, "202.50", record.Total.StringFixed(2))
	assert.Equal(t, 5, record.Transactions)
	assert.Equal(t, "15/10/2026", record.Date)
	assert.Equal(t, "14:30", record.Time)

	txs, err := reports.Transactions(ctx, ReportFilter{Period: PeriodAll})
	require.NoError(t, err)
	assert.Empty(t, txs)

	history, err := reports.CashCloseHistory(ctx)
	require.NoError(t, err)
	require.Len(t, history, 1)
}

func TestClearHistory(t *testing.T) {
	env := newTestEnv(t)
	seedHistory(t, env)
	require.NoError(t, env.reports.ClearHistory(context.Background()))

	txs, err := env.reports.Transactions(context.Background(), ReportFilter{Period: PeriodAll})
	require.NoError(t, err)
	assert.Empty(t, txs)
}

func TestRebuildFromClosedTabs(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	beer := env.product(t, "Cerveja", "5.00")

	closed := env.tab(t, "Mesa 1")
	env.add(t, closed.ID, OrderItemInput{ProductID: beer.ID, Quantity: 3})
	require.NoError(t, env.tabs.CloseTab(ctx, closed.ID))
	env.tab(t, "Mesa 2")

	n, err := env.reports.RebuildFromClosedTabs(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	txs, err := env.reports.Transactions(ctx, ReportFilter{Period: PeriodAll})
	require.NoError(t, err)
	require.Len(t, txs, 1)
	assert.Equal(t, "15.00", txs[0].Amount.StringFixed(2))
	assert.Equal(t, "Mesa 1", txs[0].TabNumber)
	require.Len(t, txs[0].Items, 1)
	assert.Equal(t, "Cerveja", txs[0].Items[0].Name)

	// an existing history is never overwritten
	n, err = env.reports.RebuildFromClosedTabs(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}
