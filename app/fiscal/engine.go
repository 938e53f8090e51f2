package fiscal

import (
	"context"
	"errors"
	"fmt"
	"time"

	"PosFiscal/app/models"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Document kinds used in status notifications and list queries.
const (
	DocKindSale       = "sale"
	DocKindCreditNote = "credit_note"
)

// ProfileLoader supplies the business profile consumed by the payload
// builder.
type ProfileLoader interface {
	Profile(ctx context.Context) (*models.BusinessProfile, error)
}

// StatusNotifier receives fiscal status transitions. Implementations must
// not block; the engine calls it after the transition is durable.
type StatusNotifier interface {
	NotifyStatus(kind string, docID uint, status string)
}

// Engine drives the fiscal document state machine:
//
//	(none) --stage--> PENDING --submit ok--> SENT
//	                  PENDING --submit fail--> FAILED
//	                  FAILED  --stage--> PENDING (re-send)
//	                  PENDING/SENT --cancel (credit notes)--> CANCELLED
//
// It is the only writer of fiscal document status. Staging and submission
// run in separate transactions so a slow agent call never blocks ledger
// writes. Submit failures are never retried automatically: fiscal
// submissions have financial consequences, so a retry always goes back
// through an operator.
type Engine struct {
	db       *gorm.DB
	gateway  *Gateway
	profiles ProfileLoader
	notifier StatusNotifier
	log      *zap.Logger
}

// NewEngine builds the engine.
func NewEngine(db *gorm.DB, gateway *Gateway, profiles ProfileLoader, log *zap.Logger) *Engine {
	return &Engine{db: db, gateway: gateway, profiles: profiles, log: log}
}

// SetNotifier attaches a status notifier. Optional.
func (e *Engine) SetNotifier(n StatusNotifier) {
	e.notifier = n
}

// StageSale builds the invoice payload for a persisted sale and upserts its
// fiscal document to PENDING, clearing any prior response and derived
// fields. Safe to call repeatedly; required before every submission.
func (e *Engine) StageSale(ctx context.Context, saleID uint) (*models.SaleFiscalDocument, error) {
	var sale models.Sale
	if err := e.db.WithContext(ctx).Preload("Lines").Preload("Payment").First(&sale, saleID).Error; err != nil {
		return nil, fmt.Errorf("load sale %d: %w", saleID, err)
	}

	profile, err := e.profiles.Profile(ctx)
	if err != nil {
		return nil, err
	}

	payload, err := BuildInvoicePayload(&sale, sale.Payment, profile)
	if err != nil {
		return nil, err
	}

	var doc models.SaleFiscalDocument
	err = e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return stageDocument(tx, &doc, "sale_id", saleID, payload, func() {
			doc.SaleID = saleID
		})
	})
	if err != nil {
		return nil, err
	}

	e.notify(DocKindSale, saleID, doc.Status)
	return &doc, nil
}

// StageCreditNote is the credit note counterpart of StageSale. It also moves
// the note's local status back to PENDING so a FAILED note re-enters the
// retry path.
func (e *Engine) StageCreditNote(ctx context.Context, noteID uint) (*models.CreditNoteFiscalDocument, error) {
	var note models.CreditNote
	if err := e.db.WithContext(ctx).
		Preload("Items").
		Preload("Sale").
		Preload("Sale.FiscalDocument").
		First(&note, noteID).Error; err != nil {
		return nil, fmt.Errorf("load credit note %d: %w", noteID, err)
	}
	if note.Status == models.CreditNoteCancelled {
		return nil, fmt.Errorf("credit note %d is cancelled: %w", noteID, ErrInvalidState)
	}

	profile, err := e.profiles.Profile(ctx)
	if err != nil {
		return nil, err
	}

	payload, err := BuildCreditNotePayload(&note, note.Items, profile)
	if err != nil {
		return nil, err
	}

	var doc models.CreditNoteFiscalDocument
	err = e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := stageDocument(tx, &doc, "credit_note_id", noteID, payload, func() {
			doc.CreditNoteID = noteID
		}); err != nil {
			return err
		}
		return tx.Model(&models.CreditNote{}).
			Where("id = ?", noteID).
			Update("status", models.CreditNotePending).Error
	})
	if err != nil {
		return nil, err
	}

	e.notify(DocKindCreditNote, noteID, doc.Status)
	return &doc, nil
}

// SubmitSale sends the staged payload for a sale and durably records the
// outcome. Requires a PENDING row; the network call happens outside any
// ledger transaction. On gateway failure the document transitions to FAILED
// and the error is returned to the caller for operator-driven retry.
func (e *Engine) SubmitSale(ctx context.Context, saleID uint) (*models.SaleFiscalDocument, error) {
	var doc models.SaleFiscalDocument
	if err := e.db.WithContext(ctx).Where("sale_id = ?", saleID).First(&doc).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("sale %d: %w", saleID, ErrNotStaged)
		}
		return nil, fmt.Errorf("load fiscal document for sale %d: %w", saleID, err)
	}
	if doc.Status != models.FiscalPending {
		return nil, fmt.Errorf("sale %d fiscal document is %s: %w", saleID, doc.Status, ErrInvalidState)
	}

	result := e.gateway.Send(ctx, []byte(doc.RequestJSON))

	err := e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.Model(&models.SaleFiscalDocument{}).
			Where("id = ?", doc.ID).
			Updates(outcomeUpdates(result)).Error
	})
	if err != nil {
		return nil, fmt.Errorf("record submission outcome: %w", err)
	}

	if err := e.db.WithContext(ctx).First(&doc, doc.ID).Error; err != nil {
		return nil, err
	}
	e.notify(DocKindSale, saleID, doc.Status)

	if !result.OK {
		e.log.Warn("sale fiscalisation failed",
			zap.Uint("sale_id", saleID),
			zap.Int("http_status", result.StatusCode),
			zap.String("error", result.Err))
		return &doc, fmt.Errorf("submission failed: %s", result.Err)
	}

	e.log.Info("sale fiscalised",
		zap.Uint("sale_id", saleID),
		zap.String("document_number", doc.DocumentNumber))
	return &doc, nil
}

// SubmitCreditNote mirrors SubmitSale and keeps the note's local status in
// step with its fiscal document.
func (e *Engine) SubmitCreditNote(ctx context.Context, noteID uint) (*models.CreditNoteFiscalDocument, error) {
	var doc models.CreditNoteFiscalDocument
	if err := e.db.WithContext(ctx).Where("credit_note_id = ?", noteID).First(&doc).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("credit note %d: %w", noteID, ErrNotStaged)
		}
		return nil, fmt.Errorf("load fiscal document for credit note %d: %w", noteID, err)
	}
	if doc.Status != models.FiscalPending {
		return nil, fmt.Errorf("credit note %d fiscal document is %s: %w", noteID, doc.Status, ErrInvalidState)
	}

	result := e.gateway.Send(ctx, []byte(doc.RequestJSON))

	noteStatus := models.CreditNoteSent
	if !result.OK {
		noteStatus = models.CreditNoteFailed
	}

	err := e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&models.CreditNoteFiscalDocument{}).
			Where("id = ?", doc.ID).
			Updates(outcomeUpdates(result)).Error; err != nil {
			return err
		}
		return tx.Model(&models.CreditNote{}).
			Where("id = ?", noteID).
			Update("status", noteStatus).Error
	})
	if err != nil {
		return nil, fmt.Errorf("record submission outcome: %w", err)
	}

	if err := e.db.WithContext(ctx).First(&doc, doc.ID).Error; err != nil {
		return nil, err
	}
	e.notify(DocKindCreditNote, noteID, doc.Status)

	if !result.OK {
		e.log.Warn("credit note fiscalisation failed",
			zap.Uint("credit_note_id", noteID),
			zap.Int("http_status", result.StatusCode),
			zap.String("error", result.Err))
		return &doc, fmt.Errorf("submission failed: %s", result.Err)
	}

	e.log.Info("credit note fiscalised",
		zap.Uint("credit_note_id", noteID),
		zap.String("document_number", doc.DocumentNumber))
	return &doc, nil
}

// CancelCreditNote performs a protocol-level cancellation. Only legal while
// the document is PENDING or SENT. If the agent rejects the cancellation the
// document keeps its prior status and the error goes back to the caller;
// cancellation failure is never silently absorbed.
func (e *Engine) CancelCreditNote(ctx context.Context, noteID uint, reason string) (*models.CreditNoteFiscalDocument, error) {
	var note models.CreditNote
	if err := e.db.WithContext(ctx).Preload("FiscalDocument").First(&note, noteID).Error; err != nil {
		return nil, fmt.Errorf("load credit note %d: %w", noteID, err)
	}
	if note.FiscalDocument == nil {
		return nil, fmt.Errorf("credit note %d: %w", noteID, ErrNotStaged)
	}
	doc := note.FiscalDocument
	if doc.Status != models.FiscalPending && doc.Status != models.FiscalSent {
		return nil, fmt.Errorf("credit note %d fiscal document is %s: %w", noteID, doc.Status, ErrInvalidState)
	}

	profile, err := e.profiles.Profile(ctx)
	if err != nil {
		return nil, err
	}
	payload, err := BuildCreditNoteCancelPayload(&note, reason, profile)
	if err != nil {
		return nil, err
	}

	result := e.gateway.Send(ctx, payload)
	if !result.OK {
		e.log.Warn("credit note cancellation rejected",
			zap.Uint("credit_note_id", noteID),
			zap.String("error", result.Err))
		return nil, fmt.Errorf("cancellation failed: %s", result.Err)
	}

	err = e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&models.CreditNoteFiscalDocument{}).
			Where("id = ?", doc.ID).
			Updates(map[string]interface{}{
				"status":        models.FiscalCancelled,
				"response_json": result.RawResponse,
			}).Error; err != nil {
			return err
		}
		return tx.Model(&models.CreditNote{}).
			Where("id = ?", noteID).
			Update("status", models.CreditNoteCancelled).Error
	})
	if err != nil {
		return nil, fmt.Errorf("record cancellation: %w", err)
	}

	if err := e.db.WithContext(ctx).First(doc, doc.ID).Error; err != nil {
		return nil, err
	}
	e.notify(DocKindCreditNote, noteID, doc.Status)
	return doc, nil
}

// SaleDocument returns the fiscal document for a sale, if staged.
func (e *Engine) SaleDocument(ctx context.Context, saleID uint) (*models.SaleFiscalDocument, error) {
	var doc models.SaleFiscalDocument
	if err := e.db.WithContext(ctx).Where("sale_id = ?", saleID).First(&doc).Error; err != nil {
		return nil, err
	}
	return &doc, nil
}

// CreditNoteDocument returns the fiscal document for a credit note, if
// staged.
func (e *Engine) CreditNoteDocument(ctx context.Context, noteID uint) (*models.CreditNoteFiscalDocument, error) {
	var doc models.CreditNoteFiscalDocument
	if err := e.db.WithContext(ctx).Where("credit_note_id = ?", noteID).First(&doc).Error; err != nil {
		return nil, err
	}
	return &doc, nil
}

// ListSaleDocuments returns sale fiscal documents for the retry/list view,
// newest first, optionally filtered by status.
func (e *Engine) ListSaleDocuments(ctx context.Context, status string, limit, offset int) ([]models.SaleFiscalDocument, int64, error) {
	var docs []models.SaleFiscalDocument
	var total int64

	q := e.db.WithContext(ctx).Model(&models.SaleFiscalDocument{})
	if status != "" {
		q = q.Where("status = ?", status)
	}
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	err := q.Order("created_at DESC").Limit(listLimit(limit)).Offset(offset).Find(&docs).Error
	return docs, total, err
}

// ListCreditNoteDocuments is the credit note counterpart of
// ListSaleDocuments.
func (e *Engine) ListCreditNoteDocuments(ctx context.Context, status string, limit, offset int) ([]models.CreditNoteFiscalDocument, int64, error) {
	var docs []models.CreditNoteFiscalDocument
	var total int64

	q := e.db.WithContext(ctx).Model(&models.CreditNoteFiscalDocument{})
	if status != "" {
		q = q.Where("status = ?", status)
	}
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	err := q.Order("created_at DESC").Limit(listLimit(limit)).Offset(offset).Find(&docs).Error
	return docs, total, err
}

func (e *Engine) notify(kind string, id uint, status string) {
	if e.notifier != nil {
		e.notifier.NotifyStatus(kind, id, status)
	}
}

// stageDocument implements the PENDING upsert shared by both document
// tables: read, then insert or update. Terminal documents cannot be
// re-staged.
func stageDocument[T any](tx *gorm.DB, doc *T, keyColumn string, keyID uint, payload []byte, setKey func()) error {
	err := tx.Where(keyColumn+" = ?", keyID).First(doc).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		fields := fieldsOf(doc)
		setKey()
		fields.Status = models.FiscalPending
		fields.RequestJSON = string(payload)
		return tx.Create(doc).Error
	case err != nil:
		return err
	}

	fields := fieldsOf(doc)
	if fields.Status == models.FiscalSent || fields.Status == models.FiscalCancelled {
		return fmt.Errorf("document already %s: %w", fields.Status, ErrInvalidState)
	}

	if err := tx.Model(doc).Updates(map[string]interface{}{
		"status":            models.FiscalPending,
		"request_json":      string(payload),
		"response_json":     "",
		"document_number":   "",
		"verification_code": "",
		"qr_payload":        "",
		"error_message":     "",
		"sent_at":           nil,
	}).Error; err != nil {
		return err
	}
	return tx.Where(keyColumn+" = ?", keyID).First(doc).Error
}

func fieldsOf(doc interface{}) *models.FiscalFields {
	switch d := doc.(type) {
	case *models.SaleFiscalDocument:
		return &d.FiscalFields
	case *models.CreditNoteFiscalDocument:
		return &d.FiscalFields
	}
	panic("unsupported fiscal document type")
}

// outcomeUpdates translates a gateway result into the column set persisted
// with the SENT/FAILED transition.
func outcomeUpdates(result GatewayResult) map[string]interface{} {
	updates := map[string]interface{}{
		"response_json": result.RawResponse,
		"retry_count":   gorm.Expr("retry_count + 1"),
	}
	if result.OK {
		now := time.Now().UTC()
		updates["status"] = models.FiscalSent
		updates["document_number"] = result.DocumentNumber
		updates["verification_code"] = result.VerificationCode
		updates["qr_payload"] = result.QRPayload
		updates["error_message"] = ""
		updates["sent_at"] = &now
	} else {
		updates["status"] = models.FiscalFailed
		updates["error_message"] = result.Err
	}
	return updates
}

func listLimit(limit int) int {
	if limit <= 0 || limit > 200 {
		return 50
	}
	return limit
}
