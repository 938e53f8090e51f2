package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Credit note lifecycle. A note is created DRAFT together with its items,
// advanced to PENDING when issued (stock reversed, fiscal staging), and then
// converges to SENT or FAILED through the fiscal engine. CANCELLED is reached
// only through a protocol-level cancellation from PENDING or SENT.
const (
	CreditNoteDraft     = "DRAFT"
	CreditNotePending   = "PENDING"
	CreditNoteSent      = "SENT"
	CreditNoteFailed    = "FAILED"
	CreditNoteCancelled = "CANCELLED"
)

// CreditNote reverses some or all of a prior sale's lines.
type CreditNote struct {
	ID             uint                      `gorm:"primaryKey" json:"id"`
	SaleID         uint                      `gorm:"index;not null" json:"sale_id"`
	Sale           *Sale                     `json:"sale,omitempty"`
	Reason         string                    `gorm:"not null" json:"reason"`
	Notes          string                    `json:"notes"`
	Items          []CreditNoteItem          `gorm:"foreignKey:CreditNoteID" json:"items"`
	Subtotal       decimal.Decimal           `gorm:"type:decimal(14,2)" json:"subtotal"`
	TaxTotal       decimal.Decimal           `gorm:"type:decimal(14,2)" json:"tax_total"`
	Total          decimal.Decimal           `gorm:"type:decimal(14,2)" json:"total"`
	Status         string                    `gorm:"default:DRAFT" json:"status"`
	IssuedAt       *time.Time                `json:"issued_at,omitempty"` // set on transition to PENDING
	FiscalDocument *CreditNoteFiscalDocument `gorm:"foreignKey:CreditNoteID" json:"fiscal_document,omitempty"`
	CreatedAt      time.Time                 `json:"created_at"`
	UpdatedAt      time.Time                 `json:"updated_at"`
}

// CreditNoteItem mirrors SaleLine, with quantities representing the portion
// being reversed.
type CreditNoteItem struct {
	ID           uint            `gorm:"primaryKey" json:"id"`
	CreditNoteID uint            `gorm:"index;not null" json:"credit_note_id"`
	SaleLineID   uint            `gorm:"index" json:"sale_line_id"`
	ProductID    uint            `json:"product_id"`
	Product      *Product        `json:"product,omitempty"`
	ItemName     string          `gorm:"not null" json:"item_name"`
	SKU          string          `json:"sku"`
	Quantity     int             `gorm:"not null" json:"quantity"`
	UnitPrice    decimal.Decimal `gorm:"type:decimal(14,2)" json:"unit_price"`
	TaxRate      int             `json:"tax_rate"`
	Subtotal     decimal.Decimal `gorm:"type:decimal(14,2)" json:"subtotal"`
	TaxAmount    decimal.Decimal `gorm:"type:decimal(14,2)" json:"tax_amount"`
}
