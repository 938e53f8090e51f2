package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"PosFiscal/app/fiscal"
	"PosFiscal/app/models"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// LineInput names a product and a quantity for a new sale.
type LineInput struct {
	ProductID uint `json:"productId"`
	Quantity  int  `json:"quantity"`
}

// PaymentInput is the tender captured with a sale.
type PaymentInput struct {
	MethodCode string          `json:"methodCode"`
	AmountPaid decimal.Decimal `json:"amountPaid"`
}

// NoteItemInput names a sale line and the quantity being returned.
type NoteItemInput struct {
	SaleLineID uint `json:"saleLineId"`
	Quantity   int  `json:"quantity"`
}

// LedgerService records sales and credit notes. The commercial ledger and
// the stock ledger move in one transaction; fiscalisation happens after
// commit so a sale is never lost to a slow or offline agent.
type LedgerService struct {
	db        *gorm.DB
	inventory *InventoryService
	engine    *fiscal.Engine
	log       *zap.Logger
}

func NewLedgerService(db *gorm.DB, inventory *InventoryService, engine *fiscal.Engine, log *zap.Logger) *LedgerService {
	return &LedgerService{db: db, inventory: inventory, engine: engine, log: log}
}

// SaleTx is an in-flight sale transaction. Steps must run in order:
// InsertSale, InsertLines, RecordPayment, FinalizeTotals, Commit. Any step
// error rolls the transaction back and poisons the remaining steps.
type SaleTx struct {
	svc    *LedgerService
	tx     *gorm.DB
	sale   *models.Sale
	failed error
	done   bool
}

// BeginSale opens a sale transaction.
func (s *LedgerService) BeginSale(ctx context.Context) *SaleTx {
	return &SaleTx{svc: s, tx: s.db.WithContext(ctx).Begin()}
}

func (t *SaleTx) fail(err error) error {
	t.tx.Rollback()
	t.failed = fmt.Errorf("%w: %v", ErrTransactionAborted, err)
	return t.failed
}

// InsertSale writes the sale header. A reused receipt number aborts with
// ErrDuplicateKey.
func (t *SaleTx) InsertSale(receiptNumber, notes string) error {
	if t.failed != nil {
		return t.failed
	}
	sale := &models.Sale{ReceiptNumber: receiptNumber, Notes: notes}
	if err := t.tx.Create(sale).Error; err != nil {
		if isDuplicateKey(err) {
			return t.fail(fmt.Errorf("receipt %s: %w", receiptNumber, ErrDuplicateKey))
		}
		return t.fail(fmt.Errorf("insert sale: %w", err))
	}
	t.sale = sale
	return nil
}

// InsertLines writes the snapshot lines and decrements stock for each goods
// line through the stock ledger.
func (t *SaleTx) InsertLines(lines []models.SaleLine) error {
	if t.failed != nil {
		return t.failed
	}
	if len(lines) == 0 {
		return t.fail(errors.New("sale has no lines"))
	}
	for i := range lines {
		line := &lines[i]
		line.SaleID = t.sale.ID
		if err := t.tx.Create(line).Error; err != nil {
			return t.fail(fmt.Errorf("insert sale line: %w", err))
		}
		var product models.Product
		if err := t.tx.First(&product, line.ProductID).Error; err != nil {
			return t.fail(fmt.Errorf("load product %d: %w", line.ProductID, err))
		}
		if product.IsService {
			continue
		}
		reason := fmt.Sprintf("sale %s", t.sale.ReceiptNumber)
		if err := t.svc.inventory.ApplyDeltaTx(t.tx, line.ProductID, -line.Quantity, reason); err != nil {
			return t.fail(err)
		}
	}
	t.sale.Lines = lines
	return nil
}

// RecordPayment captures the tender. Change is computed in FinalizeTotals
// once the total is known.
func (t *SaleTx) RecordPayment(input PaymentInput) error {
	if t.failed != nil {
		return t.failed
	}
	payment := &models.Payment{
		SaleID:     t.sale.ID,
		MethodCode: input.MethodCode,
		AmountPaid: input.AmountPaid,
	}
	if err := t.tx.Create(payment).Error; err != nil {
		return t.fail(fmt.Errorf("record payment: %w", err))
	}
	t.sale.Payment = payment
	return nil
}

// FinalizeTotals computes the sale totals from its lines and validates the
// tender covers the total.
func (t *SaleTx) FinalizeTotals() error {
	if t.failed != nil {
		return t.failed
	}
	subtotal := decimal.Zero
	taxTotal := decimal.Zero
	for _, line := range t.sale.Lines {
		subtotal = subtotal.Add(line.Subtotal)
		taxTotal = taxTotal.Add(line.TaxAmount)
	}
	total := subtotal.Add(taxTotal)

	if t.sale.Payment == nil {
		return t.fail(errors.New("sale has no payment"))
	}
	if t.sale.Payment.AmountPaid.LessThan(total) {
		return t.fail(fmt.Errorf("amount paid %s is less than total %s",
			t.sale.Payment.AmountPaid.StringFixed(2), total.StringFixed(2)))
	}
	change := t.sale.Payment.AmountPaid.Sub(total)

	if err := t.tx.Model(&models.Sale{}).Where("id = ?", t.sale.ID).Updates(map[string]interface{}{
		"subtotal":  subtotal,
		"tax_total": taxTotal,
		"total":     total,
	}).Error; err != nil {
		return t.fail(fmt.Errorf("update totals: %w", err))
	}
	if err := t.tx.Model(&models.Payment{}).Where("id = ?", t.sale.Payment.ID).
		Update("change_due", change).Error; err != nil {
		return t.fail(fmt.Errorf("update change: %w", err))
	}
	t.sale.Subtotal = subtotal
	t.sale.TaxTotal = taxTotal
	t.sale.Total = total
	t.sale.Payment.ChangeDue = change
	return nil
}

// Commit makes the sale durable. The sale ID is only meaningful after
// Commit returns nil.
func (t *SaleTx) Commit() (*models.Sale, error) {
	if t.failed != nil {
		return nil, t.failed
	}
	if t.done {
		return nil, errors.New("sale transaction already finished")
	}
	if err := t.tx.Commit().Error; err != nil {
		t.failed = fmt.Errorf("%w: %v", ErrTransactionAborted, err)
		return nil, t.failed
	}
	t.done = true
	return t.sale, nil
}

// Rollback abandons the sale. Safe to call after a failed step.
func (t *SaleTx) Rollback() {
	if t.failed == nil && !t.done {
		t.tx.Rollback()
		t.done = true
	}
}

// ComposeLines snapshots products into sale lines, pricing each line from
// the catalogue at this moment. Later price changes never touch recorded
// sales.
func (s *LedgerService) ComposeLines(ctx context.Context, inputs []LineInput) ([]models.SaleLine, error) {
	lines := make([]models.SaleLine, 0, len(inputs))
	for _, in := range inputs {
		if in.Quantity <= 0 {
			return nil, fmt.Errorf("product %d: quantity must be positive", in.ProductID)
		}
		var product models.Product
		if err := s.db.WithContext(ctx).First(&product, in.ProductID).Error; err != nil {
			return nil, fmt.Errorf("load product %d: %w", in.ProductID, err)
		}
		qty := decimal.NewFromInt(int64(in.Quantity))
		subtotal := product.Price.Mul(qty)
		tax := subtotal.Mul(decimal.NewFromInt(int64(product.TaxRate))).Div(decimal.NewFromInt(100))
		lines = append(lines, models.SaleLine{
			ProductID: product.ID,
			ItemName:  product.Name,
			SKU:       product.SKU,
			Quantity:  in.Quantity,
			UnitPrice: product.Price,
			TaxRate:   product.TaxRate,
			Subtotal:  subtotal,
			TaxAmount: tax,
		})
	}
	return lines, nil
}

// FinalizeSale runs the full sale flow: compose, persist atomically, then
// stage and submit the fiscal document. The sale survives even when
// fiscalisation fails; the document stays FAILED for operator retry.
func (s *LedgerService) FinalizeSale(ctx context.Context, receiptNumber string, items []LineInput, payment PaymentInput, notes string) (*models.Sale, error) {
	lines, err := s.ComposeLines(ctx, items)
	if err != nil {
		return nil, err
	}

	saleTx := s.BeginSale(ctx)
	if err := saleTx.InsertSale(receiptNumber, notes); err != nil {
		return nil, err
	}
	if err := saleTx.InsertLines(lines); err != nil {
		return nil, err
	}
	if err := saleTx.RecordPayment(payment); err != nil {
		return nil, err
	}
	if err := saleTx.FinalizeTotals(); err != nil {
		return nil, err
	}
	sale, err := saleTx.Commit()
	if err != nil {
		return nil, err
	}

	s.log.Info("sale recorded",
		zap.Uint("sale_id", sale.ID),
		zap.String("receipt", sale.ReceiptNumber),
		zap.String("total", sale.Total.StringFixed(2)))

	s.fiscalise(ctx, sale)
	return s.reloadSale(ctx, sale.ID)
}

func (s *LedgerService) fiscalise(ctx context.Context, sale *models.Sale) {
	if _, err := s.engine.StageSale(ctx, sale.ID); err != nil {
		s.log.Error("stage sale for fiscalisation", zap.Uint("sale_id", sale.ID), zap.Error(err))
		return
	}
	if _, err := s.engine.SubmitSale(ctx, sale.ID); err != nil {
		s.log.Warn("sale fiscal submission", zap.Uint("sale_id", sale.ID), zap.Error(err))
	}
}

func (s *LedgerService) reloadSale(ctx context.Context, id uint) (*models.Sale, error) {
	var sale models.Sale
	err := s.db.WithContext(ctx).
		Preload("Lines").
		Preload("Payment").
		Preload("FiscalDocument").
		First(&sale, id).Error
	if err != nil {
		return nil, err
	}
	return &sale, nil
}

// Sale returns a recorded sale with its lines, payment and fiscal document.
func (s *LedgerService) Sale(ctx context.Context, id uint) (*models.Sale, error) {
	return s.reloadSale(ctx, id)
}

// IssueCreditNote creates a credit note against a recorded sale, restocks
// the returned goods, and submits the note for fiscalisation. Each returned
// quantity is capped by what the sale originally sold on that line.
func (s *LedgerService) IssueCreditNote(ctx context.Context, saleID uint, reason, notes string, items []NoteItemInput) (*models.CreditNote, error) {
	var sale models.Sale
	if err := s.db.WithContext(ctx).Preload("Lines").First(&sale, saleID).Error; err != nil {
		return nil, fmt.Errorf("load sale %d: %w", saleID, err)
	}
	if len(items) == 0 {
		return nil, errors.New("credit note has no items")
	}

	linesByID := make(map[uint]models.SaleLine, len(sale.Lines))
	for _, line := range sale.Lines {
		linesByID[line.ID] = line
	}

	noteItems := make([]models.CreditNoteItem, 0, len(items))
	subtotal := decimal.Zero
	taxTotal := decimal.Zero
	for _, in := range items {
		line, ok := linesByID[in.SaleLineID]
		if !ok {
			return nil, fmt.Errorf("sale line %d does not belong to sale %d", in.SaleLineID, saleID)
		}
		if in.Quantity <= 0 {
			return nil, fmt.Errorf("sale line %d: quantity must be positive", in.SaleLineID)
		}
		if in.Quantity > line.Quantity {
			return nil, fmt.Errorf("sale line %d: returning %d of %d: %w",
				in.SaleLineID, in.Quantity, line.Quantity, ErrQuantityExceedsSold)
		}
		qty := decimal.NewFromInt(int64(in.Quantity))
		itemSubtotal := line.UnitPrice.Mul(qty)
		itemTax := itemSubtotal.Mul(decimal.NewFromInt(int64(line.TaxRate))).Div(decimal.NewFromInt(100))
		noteItems = append(noteItems, models.CreditNoteItem{
			SaleLineID: line.ID,
			ProductID:  line.ProductID,
			ItemName:   line.ItemName,
			SKU:        line.SKU,
			Quantity:   in.Quantity,
			UnitPrice:  line.UnitPrice,
			TaxRate:    line.TaxRate,
			Subtotal:   itemSubtotal,
			TaxAmount:  itemTax,
		})
		subtotal = subtotal.Add(itemSubtotal)
		taxTotal = taxTotal.Add(itemTax)
	}

	note := &models.CreditNote{
		SaleID:   saleID,
		Reason:   reason,
		Notes:    notes,
		Items:    noteItems,
		Subtotal: subtotal,
		TaxTotal: taxTotal,
		Total:    subtotal.Add(taxTotal),
		Status:   models.CreditNoteDraft,
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(note).Error; err != nil {
			return fmt.Errorf("insert credit note: %w", err)
		}
		for _, item := range note.Items {
			var product models.Product
			if err := tx.First(&product, item.ProductID).Error; err != nil {
				return fmt.Errorf("load product %d: %w", item.ProductID, err)
			}
			if product.IsService {
				continue
			}
			reason := fmt.Sprintf("credit note %s", fiscal.CreditNoteNumber(note))
			if err := s.inventory.ApplyDeltaTx(tx, item.ProductID, item.Quantity, reason); err != nil {
				return err
			}
		}
		now := time.Now().UTC()
		return tx.Model(&models.CreditNote{}).
			Where("id = ?", note.ID).
			Updates(map[string]interface{}{
				"status":    models.CreditNotePending,
				"issued_at": &now,
			}).Error
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("credit note issued",
		zap.Uint("credit_note_id", note.ID),
		zap.Uint("sale_id", saleID),
		zap.String("total", note.Total.StringFixed(2)))

	if _, err := s.engine.StageCreditNote(ctx, note.ID); err != nil {
		s.log.Error("stage credit note for fiscalisation", zap.Uint("credit_note_id", note.ID), zap.Error(err))
	} else if _, err := s.engine.SubmitCreditNote(ctx, note.ID); err != nil {
		s.log.Warn("credit note fiscal submission", zap.Uint("credit_note_id", note.ID), zap.Error(err))
	}

	return s.reloadCreditNote(ctx, note.ID)
}

func (s *LedgerService) reloadCreditNote(ctx context.Context, id uint) (*models.CreditNote, error) {
	var note models.CreditNote
	err := s.db.WithContext(ctx).
		Preload("Items").
		Preload("FiscalDocument").
		First(&note, id).Error
	if err != nil {
		return nil, err
	}
	return &note, nil
}

// CreditNote returns a credit note with its items and fiscal document.
func (s *LedgerService) CreditNote(ctx context.Context, id uint) (*models.CreditNote, error) {
	return s.reloadCreditNote(ctx, id)
}

func isDuplicateKey(err error) bool {
	return errors.Is(err, gorm.ErrDuplicatedKey) ||
		strings.Contains(err.Error(), "UNIQUE constraint")
}
