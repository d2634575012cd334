package services

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"sort"
	"strconv"
	"time"

	"conveniencia/internal/models"
	"conveniencia/internal/repository"
	"conveniencia/pkg/money"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"
)

type Period string

const (
	PeriodToday     Period = "today"
	PeriodYesterday Period = "yesterday"
	PeriodWeek      Period = "week"
	PeriodMonth     Period = "month"
	PeriodAll       Period = "all"
)

type ReportFilter struct {
	Period Period               `form:"periodo"`
	Method models.PaymentMethod `form:"metodo"`
}

type MethodStats struct {
	Method models.PaymentMethod `json:"metodo"`
	Label  string               `json:"label"`
	Total  decimal.Decimal      `json:"total"`
	Count  int                  `json:"quantidade"`
}

type DayStats struct {
	Date  string          `json:"data"`
	Total decimal.Decimal `json:"total"`
	Count int             `json:"quantidade"`
}

type Stats struct {
	Total         decimal.Decimal `json:"total"`
	Count         int             `json:"quantidade"`
	AverageTicket decimal.Decimal `json:"ticket_medio"`
	ByMethod      []MethodStats   `json:"por_metodo"`
	ByDay         []DayStats      `json:"por_dia"`
}

// ReportLedger is the accumulated settlement history.
type ReportLedger interface {
	Transactions(ctx context.Context) ([]models.Transaction, error)
	ReplaceTransactions(ctx context.Context, txs []models.Transaction) error
	ClearTransactions(ctx context.Context) error
	ArchiveCashClose(ctx context.Context, record *models.CashClose) error
	CashCloses(ctx context.Context) ([]models.CashClose, error)
}

type ReportService interface {
	Transactions(ctx context.Context, filter ReportFilter) ([]models.Transaction, error)
	Stats(ctx context.Context, filter ReportFilter) (*Stats, error)
	ExportCSV(ctx context.Context, filter ReportFilter, w io.Writer) error
	ExportXLSX(ctx context.Context, filter ReportFilter, w io.Writer) error
	CloseCashRegister(ctx context.Context) (*models.CashClose, error)
	CashCloseHistory(ctx context.Context) ([]models.CashClose, error)
	ClearHistory(ctx context.Context) error
	RebuildFromClosedTabs(ctx context.Context) (int, error)
}

type reportService struct {
	ledger   ReportLedger
	tabRepo  repository.TabRepository
	lineRepo repository.OrderLineRepository
	now      func() time.Time
}

func NewReportService(ledger ReportLedger, tabRepo repository.TabRepository, lineRepo repository.OrderLineRepository) ReportService {
	return &reportService{ledger: ledger, tabRepo: tabRepo, lineRepo: lineRepo, now: time.Now}
}

// Transactions returns the filtered history, newest first.
func (s *reportService) Transactions(ctx context.Context, filter ReportFilter) ([]models.Transaction, error) {
	all, err := s.ledger.Transactions(ctx)
	if err != nil {
		return nil, err
	}

	from, to, err := s.periodBounds(filter.Period)
	if err != nil {
		return nil, err
	}
	if filter.Method != "" && !filter.Method.Valid() {
		return nil, validationError("unknown payment method %q", filter.Method)
	}

	filtered := make([]models.Transaction, 0, len(all))
	for _, tx := range all {
		if !from.IsZero() && tx.CreatedAt.Before(from) {
			continue
		}
		if !to.IsZero() && !tx.CreatedAt.Before(to) {
			continue
		}
		if filter.Method != "" && tx.Method != filter.Method {
			continue
		}
		filtered = append(filtered, tx)
	}
	sort.SliceStable(filtered, func(i, j int) bool {
		return filtered[i].CreatedAt.After(filtered[j].CreatedAt)
	})
	return filtered, nil
}

// periodBounds returns [from, to); zero values are open ends. Week and month
// count back from the start of today.
func (s *reportService) periodBounds(p Period) (time.Time, time.Time, error) {
	now := s.now()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())

	switch p {
	case PeriodToday:
		return today, time.Time{}, nil
	case PeriodYesterday:
		return today.AddDate(0, 0, -1), today, nil
	case PeriodWeek:
		return today.AddDate(0, 0, -7), time.Time{}, nil
	case PeriodMonth:
		return today.AddDate(0, 0, -30), time.Time{}, nil
	case PeriodAll, "":
		return time.Time{}, time.Time{}, nil
	}
	return time.Time{}, time.Time{}, validationError("unknown period %q", p)
}

func (s *reportService) Stats(ctx context.Context, filter ReportFilter) (*Stats, error) {
	txs, err := s.Transactions(ctx, filter)
	if err != nil {
		return nil, err
	}
	return computeStats(txs), nil
}

func computeStats(txs []models.Transaction) *Stats {
	stats := &Stats{Total: decimal.Zero, AverageTicket: decimal.Zero}
	byMethod := map[models.PaymentMethod]*MethodStats{}
	byDay := map[string]*DayStats{}

	for _, tx := range txs {
		stats.Total = stats.Total.Add(tx.Amount)
		stats.Count++

		m, ok := byMethod[tx.Method]
		if !ok {
			m = &MethodStats{Method: tx.Method, Label: tx.Method.Label(), Total: decimal.Zero}
			byMethod[tx.Method] = m
		}
		m.Total = m.Total.Add(tx.Amount)
		m.Count++

		day := tx.CreatedAt.Format("2006-01-02")
		d, ok := byDay[day]
		if !ok {
			d = &DayStats{Date: day, Total: decimal.Zero}
			byDay[day] = d
		}
		d.Total = d.Total.Add(tx.Amount)
		d.Count++
	}

	if stats.Count > 0 {
		stats.AverageTicket = money.Round(stats.Total.Div(decimal.NewFromInt(int64(stats.Count))))
	}
	for _, m := range byMethod {
		stats.ByMethod = append(stats.ByMethod, *m)
	}
	sort.Slice(stats.ByMethod, func(i, j int) bool { return stats.ByMethod[i].Method < stats.ByMethod[j].Method })
	for _, d := range byDay {
		stats.ByDay = append(stats.ByDay, *d)
	}
	sort.Slice(stats.ByDay, func(i, j int) bool { return stats.ByDay[i].Date < stats.ByDay[j].Date })
	return stats
}

var reportHeader = []string{"Data", "Comanda", "Valor (R$)", "Método", "Tipo", "Qtd Itens"}

func reportRow(tx models.Transaction) []string {
	kind := "Parcial"
	if tx.Kind == models.PaymentTotal {
		kind = "Total"
	}
	return []string{
		tx.CreatedAt.Format("02/01/2006 15:04"),
		tx.TabNumber,
		money.FormatComma(tx.Amount),
		tx.Method.Label(),
		kind,
		strconv.Itoa(len(tx.Items)),
	}
}

// ExportCSV writes a ';' separated report with comma decimals and a summary
// footer.
func (s *reportService) ExportCSV(ctx context.Context, filter ReportFilter, w io.Writer) error {
	txs, err := s.Transactions(ctx, filter)
	if err != nil {
		return err
	}
	if len(txs) == 0 {
		return ErrNoTransactions
	}
	stats := computeStats(txs)

	cw := csv.NewWriter(w)
	cw.Comma = ';'
	records := [][]string{reportHeader}
	for _, tx := range txs {
		records = append(records, reportRow(tx))
	}
	records = append(records,
		[]string{""},
		[]string{"Total de Transações", strconv.Itoa(stats.Count)},
		[]string{"Valor Total", "R$ " + money.FormatComma(stats.Total)},
		[]string{"Ticket Médio", "R$ " + money.FormatComma(stats.AverageTicket)},
	)
	if err := cw.WriteAll(records); err != nil {
		return fmt.Errorf("failed to write csv: %w", err)
	}
	return nil
}

func (s *reportService) ExportXLSX(ctx context.Context, filter ReportFilter, w io.Writer) error {
	txs, err := s.Transactions(ctx, filter)
	if err != nil {
		return err
	}
	if len(txs) == 0 {
		return ErrNoTransactions
	}
	stats := computeStats(txs)

	f := excelize.NewFile()
	defer f.Close()

	const sheet = "Pagamentos"
	if err := f.SetSheetName("Sheet1", sheet); err != nil {
		return fmt.Errorf("failed to name sheet: %w", err)
	}

	header := make([]interface{}, len(reportHeader))
	for i, h := range reportHeader {
		header[i] = h
	}
	if err := f.SetSheetRow(sheet, "A1", &header); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}
	if bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}}); err == nil {
		f.SetCellStyle(sheet, "A1", "F1", bold)
	}

	row := 2
	for _, tx := range txs {
		amount, _ := tx.Amount.Round(2).Float64()
		kind := reportRow(tx)[4]
		values := []interface{}{
			tx.CreatedAt.Format("02/01/2006 15:04"),
			tx.TabNumber,
			amount,
			tx.Method.Label(),
			kind,
			len(tx.Items),
		}
		cell, _ := excelize.CoordinatesToCellName(1, row)
		if err := f.SetSheetRow(sheet, cell, &values); err != nil {
			return fmt.Errorf("failed to write row %d: %w", row, err)
		}
		row++
	}

	total, _ := stats.Total.Round(2).Float64()
	average, _ := stats.AverageTicket.Float64()
	footer := [][]interface{}{
		{"Total de Transações", stats.Count},
		{"Valor Total", total},
		{"Ticket Médio", average},
	}
	row++
	for _, values := range footer {
		values := values
		cell, _ := excelize.CoordinatesToCellName(1, row)
		if err := f.SetSheetRow(sheet, cell, &values); err != nil {
			return fmt.Errorf("failed to write summary: %w", err)
		}
		row++
	}
	f.SetColWidth(sheet, "A", "F", 18)

	if err := f.Write(w); err != nil {
		return fmt.Errorf("failed to write xlsx: %w", err)
	}
	return nil
}

// CloseCashRegister archives the whole accumulated history and clears it.
func (s *reportService) CloseCashRegister(ctx context.Context) (*models.CashClose, error) {
	txs, err := s.ledger.Transactions(ctx)
	if err != nil {
		return nil, err
	}
	if len(txs) == 0 {
		return nil, ErrNoTransactions
	}

	total := decimal.Zero
	for _, tx := range txs {
		total = total.Add(tx.Amount)
	}
	now := s.now()
	record := &models.CashClose{
		Date:         now.Format("02/01/2006"),
		Time:         now.Format("15:04"),
		Total:        total,
		Transactions: len(txs),
		ClosedAt:     now,
	}
	if err := s.ledger.ArchiveCashClose(ctx, record); err != nil {
		return nil, fmt.Errorf("failed to close cash register: %w", err)
	}
	return record, nil
}

func (s *reportService) CashCloseHistory(ctx context.Context) ([]models.CashClose, error) {
	return s.ledger.CashCloses(ctx)
}

func (s *reportService) ClearHistory(ctx context.Context) error {
	return s.ledger.ClearTransactions(ctx)
}

// RebuildFromClosedTabs seeds an empty history from closed tabs. It returns
// the number of transactions written, zero when a history already exists.
func (s *reportService) RebuildFromClosedTabs(ctx context.Context) (int, error) {
	existing, err := s.ledger.Transactions(ctx)
	if err != nil {
		return 0, err
	}
	if len(existing) > 0 {
		return 0, nil
	}

	tabs, err := s.tabRepo.ListClosed(ctx)
	if err != nil {
		return 0, gatewayError(err, nil, "list closed tabs")
	}

	txs := make([]models.Transaction, 0, len(tabs))
	for _, tab := range tabs {
		lines, err := s.lineRepo.ListByTab(ctx, tab.ID)
		if err != nil {
			return 0, gatewayError(err, nil, "list order lines")
		}

		amount := tab.Total
		items := make([]models.PaidItem, 0, len(lines))
		sum := decimal.Zero
		for _, l := range lines {
			sum = sum.Add(l.Subtotal)
			items = append(items, models.PaidItem{LineID: l.ID, Name: lineLabel(l), Quantity: l.Quantity, Price: l.UnitPrice})
		}
		if amount.IsZero() {
			amount = sum
		}

		txs = append(txs, models.Transaction{
			ID:        uuid.NewString(),
			TabID:     tab.ID,
			TabNumber: tab.Number,
			Amount:    amount,
			Method:    models.MethodCash,
			Kind:      models.PaymentTotal,
			Items:     items,
			CreatedAt: tab.UpdatedAt,
		})
	}
	if len(txs) == 0 {
		return 0, nil
	}

	sort.SliceStable(txs, func(i, j int) bool { return txs[i].CreatedAt.After(txs[j].CreatedAt) })
	if err := s.ledger.ReplaceTransactions(ctx, txs); err != nil {
		return 0, fmt.Errorf("failed to store rebuilt history: %w", err)
	}
	return len(txs), nil
}
