package services

import (
	"context"
	"fmt"

	"PosFiscal/app/models"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// InventoryService owns the stock ledger. Every stock change goes through
// it so Product.Stock always equals the sum of the product's movement
// deltas.
type InventoryService struct {
	db  *gorm.DB
	log *zap.Logger
}

func NewInventoryService(db *gorm.DB, log *zap.Logger) *InventoryService {
	return &InventoryService{db: db, log: log}
}

// Adjust applies a signed delta to a product's stock in its own
// transaction. Used for manual corrections; sales and credit notes go
// through ApplyDeltaTx inside their own transactions.
func (s *InventoryService) Adjust(ctx context.Context, productID uint, delta int, note string) (*models.Product, error) {
	var product models.Product
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.ApplyDeltaTx(tx, productID, delta, note); err != nil {
			return err
		}
		return tx.First(&product, productID).Error
	})
	if err != nil {
		return nil, err
	}
	s.log.Info("stock adjusted",
		zap.Uint("product_id", productID),
		zap.Int("delta", delta),
		zap.String("reason", note))
	return &product, nil
}

// SetAbsolute replaces a product's stock with an absolute count, recording
// the difference as a single movement. Used for physical stock takes.
func (s *InventoryService) SetAbsolute(ctx context.Context, productID uint, newQty int, note string) (*models.Product, error) {
	var product models.Product
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&product, productID).Error; err != nil {
			return fmt.Errorf("load product %d: %w", productID, err)
		}
		if product.IsService {
			return fmt.Errorf("product %d: %w", productID, ErrServiceProduct)
		}
		current := 0
		if product.Stock != nil {
			current = *product.Stock
		}
		if delta := newQty - current; delta != 0 {
			if err := s.ApplyDeltaTx(tx, productID, delta, note); err != nil {
				return err
			}
		}
		return tx.First(&product, productID).Error
	})
	if err != nil {
		return nil, err
	}
	s.log.Info("stock set",
		zap.Uint("product_id", productID),
		zap.Int("quantity", newQty),
		zap.String("reason", note))
	return &product, nil
}

// ApplyDeltaTx applies a stock delta inside an existing transaction,
// writing the movement row and the cached stock update together. Goods with
// a nil stock count as zero. Service items are rejected before any write.
func (s *InventoryService) ApplyDeltaTx(tx *gorm.DB, productID uint, delta int, reason string) error {
	var product models.Product
	if err := tx.First(&product, productID).Error; err != nil {
		return fmt.Errorf("load product %d: %w", productID, err)
	}
	if product.IsService {
		return fmt.Errorf("product %d: %w", productID, ErrServiceProduct)
	}

	previous := 0
	if product.Stock != nil {
		previous = *product.Stock
	}
	next := previous + delta

	movement := models.StockMovement{
		ProductID:   productID,
		QtyDelta:    delta,
		PreviousQty: previous,
		NewQty:      next,
		Reason:      reason,
	}
	if err := tx.Create(&movement).Error; err != nil {
		return fmt.Errorf("record stock movement: %w", err)
	}
	if err := tx.Model(&models.Product{}).
		Where("id = ?", productID).
		Update("stock", next).Error; err != nil {
		return fmt.Errorf("update cached stock: %w", err)
	}
	return nil
}

// Movements returns the movement history for a product, newest first.
func (s *InventoryService) Movements(ctx context.Context, productID uint, limit int) ([]models.StockMovement, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	var movements []models.StockMovement
	err := s.db.WithContext(ctx).
		Where("product_id = ?", productID).
		Order("created_at DESC").
		Limit(limit).
		Find(&movements).Error
	return movements, err
}
