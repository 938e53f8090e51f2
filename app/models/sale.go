package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Sale represents a completed, immutable sale. Corrections are issued as
// credit notes, never by editing a sale.
type Sale struct {
	ID             uint                `gorm:"primaryKey" json:"id"`
	ReceiptNumber  string              `gorm:"unique;not null" json:"receipt_number"`
	Lines          []SaleLine          `gorm:"foreignKey:SaleID" json:"lines"`
	Subtotal       decimal.Decimal     `gorm:"type:decimal(14,2)" json:"subtotal"`
	TaxTotal       decimal.Decimal     `gorm:"type:decimal(14,2)" json:"tax_total"`
	Total          decimal.Decimal     `gorm:"type:decimal(14,2)" json:"total"`
	Payment        *Payment            `gorm:"foreignKey:SaleID" json:"payment,omitempty"`
	Notes          string              `json:"notes"`
	FiscalDocument *SaleFiscalDocument `gorm:"foreignKey:SaleID" json:"fiscal_document,omitempty"`
	CreatedAt      time.Time           `json:"created_at"`
}

// SaleLine is one line of a sale. Item name and SKU are denormalised
// snapshots taken at sale time so later catalog edits never change a
// persisted receipt.
type SaleLine struct {
	ID        uint            `gorm:"primaryKey" json:"id"`
	SaleID    uint            `gorm:"index;not null" json:"sale_id"`
	ProductID uint            `json:"product_id"`
	Product   *Product        `json:"product,omitempty"`
	ItemName  string          `gorm:"not null" json:"item_name"`
	SKU       string          `json:"sku"`
	Quantity  int             `gorm:"not null" json:"quantity"`
	UnitPrice decimal.Decimal `gorm:"type:decimal(14,2)" json:"unit_price"`
	TaxRate   int             `json:"tax_rate"` // whole-number percent
	Subtotal  decimal.Decimal `gorm:"type:decimal(14,2)" json:"subtotal"`   // qty x unit price
	TaxAmount decimal.Decimal `gorm:"type:decimal(14,2)" json:"tax_amount"` // subtotal x rate/100
}

// Payment records how a sale was settled.
type Payment struct {
	ID         uint            `gorm:"primaryKey" json:"id"`
	SaleID     uint            `gorm:"uniqueIndex;not null" json:"sale_id"`
	MethodCode string          `gorm:"not null" json:"method_code"` // e.g. CASH, CARD, MOBILE
	AmountPaid decimal.Decimal `gorm:"type:decimal(14,2)" json:"amount_paid"`
	ChangeDue  decimal.Decimal `gorm:"type:decimal(14,2)" json:"change_due"`
	CreatedAt  time.Time       `json:"created_at"`
}
