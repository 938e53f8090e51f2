package services

import (
	"context"
	"time"

	"PosFiscal/app/models"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// StatusCount pairs a fiscal status with the number of documents in it.
type StatusCount struct {
	Status string `json:"status"`
	Count  int64  `json:"count"`
}

// TaxRateTotal aggregates tax collected per whole-percent rate.
type TaxRateTotal struct {
	TaxRate   int             `json:"tax_rate"`
	NetAmount decimal.Decimal `json:"net_amount"`
	TaxAmount decimal.Decimal `json:"tax_amount"`
}

// FiscalSummary is the end-of-day view: what was sold, what reached the
// authority, and what still needs operator attention.
type FiscalSummary struct {
	Date            string          `json:"date"`
	SaleCount       int64           `json:"sale_count"`
	SaleTotal       decimal.Decimal `json:"sale_total"`
	CreditNoteCount int64           `json:"credit_note_count"`
	CreditNoteTotal decimal.Decimal `json:"credit_note_total"`
	SaleStatuses    []StatusCount   `json:"sale_statuses"`
	NoteStatuses    []StatusCount   `json:"credit_note_statuses"`
	TaxByRate       []TaxRateTotal  `json:"tax_by_rate"`
}

// ReportService builds fiscal reports from the ledger.
type ReportService struct {
	db  *gorm.DB
	log *zap.Logger
}

func NewReportService(db *gorm.DB, log *zap.Logger) *ReportService {
	return &ReportService{db: db, log: log}
}

// DailyFiscalSummary summarises one calendar day (local time) of sales and
// credit notes with their fiscal document statuses.
func (s *ReportService) DailyFiscalSummary(ctx context.Context, day time.Time) (*FiscalSummary, error) {
	start := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, day.Location())
	end := start.Add(24 * time.Hour)

	summary := &FiscalSummary{Date: start.Format("2006-01-02")}
	db := s.db.WithContext(ctx)

	type totalRow struct {
		Count int64
		Total decimal.Decimal
	}

	var sales totalRow
	if err := db.Model(&models.Sale{}).
		Select("COUNT(*) AS count, COALESCE(SUM(total), 0) AS total").
		Where("created_at >= ? AND created_at < ?", start, end).
		Scan(&sales).Error; err != nil {
		return nil, err
	}
	summary.SaleCount = sales.Count
	summary.SaleTotal = sales.Total

	var notes totalRow
	if err := db.Model(&models.CreditNote{}).
		Select("COUNT(*) AS count, COALESCE(SUM(total), 0) AS total").
		Where("issued_at >= ? AND issued_at < ?", start, end).
		Scan(&notes).Error; err != nil {
		return nil, err
	}
	summary.CreditNoteCount = notes.Count
	summary.CreditNoteTotal = notes.Total

	if err := db.Model(&models.SaleFiscalDocument{}).
		Select("status, COUNT(*) AS count").
		Where("created_at >= ? AND created_at < ?", start, end).
		Group("status").
		Scan(&summary.SaleStatuses).Error; err != nil {
		return nil, err
	}
	if err := db.Model(&models.CreditNoteFiscalDocument{}).
		Select("status, COUNT(*) AS count").
		Where("created_at >= ? AND created_at < ?", start, end).
		Group("status").
		Scan(&summary.NoteStatuses).Error; err != nil {
		return nil, err
	}

	if err := db.Model(&models.SaleLine{}).
		Select("sale_lines.tax_rate AS tax_rate, COALESCE(SUM(sale_lines.subtotal), 0) AS net_amount, COALESCE(SUM(sale_lines.tax_amount), 0) AS tax_amount").
		Joins("JOIN sales ON sales.id = sale_lines.sale_id").
		Where("sales.created_at >= ? AND sales.created_at < ?", start, end).
		Group("sale_lines.tax_rate").
		Order("sale_lines.tax_rate ASC").
		Scan(&summary.TaxByRate).Error; err != nil {
		return nil, err
	}

	return summary, nil
}
