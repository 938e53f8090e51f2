package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Product represents a sellable item. Goods carry a cached stock quantity;
// service products (IsService) have no stock and are never part of inventory
// mutation.
type Product struct {
	ID           uint            `gorm:"primaryKey" json:"id"`
	SKU          string          `gorm:"unique;not null" json:"sku"`
	Name         string          `gorm:"not null" json:"name"`
	Price        decimal.Decimal `gorm:"type:decimal(14,2);not null" json:"price"`
	TaxRate      int             `gorm:"default:18" json:"tax_rate"` // whole-number percent
	IsService    bool            `gorm:"default:false" json:"is_service"`
	Stock        *int            `json:"stock,omitempty"` // nil for service products
	ReorderLevel int             `json:"reorder_level"`
	IsActive     bool            `gorm:"default:true" json:"is_active"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
	DeletedAt    gorm.DeletedAt  `gorm:"index" json:"deleted_at,omitempty"`
}

// NeedsReorder reports whether the cached stock has fallen to or below the
// reorder level. Always false for service products.
func (p *Product) NeedsReorder() bool {
	if p.IsService || p.Stock == nil {
		return false
	}
	return *p.Stock <= p.ReorderLevel
}

// StockMovement is one entry in the append-only stock ledger. The ledger is
// the source of truth: Product.Stock is a cache updated in the same
// transaction as its movement, so for any product
// stock == sum(qty_delta) over all its movements.
type StockMovement struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	ProductID   uint      `gorm:"index;not null" json:"product_id"`
	Product     *Product  `json:"product,omitempty"`
	QtyDelta    int       `gorm:"not null" json:"qty_delta"` // signed
	PreviousQty int       `json:"previous_qty"`
	NewQty      int       `json:"new_qty"`
	Reason      string    `gorm:"not null" json:"reason"`
	CreatedAt   time.Time `json:"created_at"`
}
