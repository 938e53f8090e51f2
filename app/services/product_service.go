package services

import (
	"context"
	"fmt"

	"PosFiscal/app/models"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// ProductService manages the product catalogue.
type ProductService struct {
	db  *gorm.DB
	log *zap.Logger
}

func NewProductService(db *gorm.DB, log *zap.Logger) *ProductService {
	return &ProductService{db: db, log: log}
}

// Create persists a product. Goods get an opening-stock movement in the
// same transaction so the ledger covers the initial count; services carry
// no stock at all.
func (s *ProductService) Create(ctx context.Context, product *models.Product) error {
	if product.IsService {
		product.Stock = nil
	} else if product.Stock == nil {
		zero := 0
		product.Stock = &zero
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(product).Error; err != nil {
			if isDuplicateKey(err) {
				return fmt.Errorf("sku %s: %w", product.SKU, ErrDuplicateKey)
			}
			return err
		}
		if product.IsService || *product.Stock == 0 {
			return nil
		}
		movement := models.StockMovement{
			ProductID:   product.ID,
			QtyDelta:    *product.Stock,
			PreviousQty: 0,
			NewQty:      *product.Stock,
			Reason:      "opening stock",
		}
		return tx.Create(&movement).Error
	})
	if err != nil {
		return err
	}

	s.log.Info("product created",
		zap.Uint("product_id", product.ID),
		zap.String("sku", product.SKU))
	return nil
}

// Update applies catalogue edits. Stock is never updated here; all stock
// changes go through the inventory service.
func (s *ProductService) Update(ctx context.Context, product *models.Product) error {
	return s.db.WithContext(ctx).Model(product).
		Select("SKU", "Name", "Price", "TaxRate", "ReorderLevel", "IsActive").
		Updates(product).Error
}

// List returns active products ordered by name.
func (s *ProductService) List(ctx context.Context) ([]models.Product, error) {
	var products []models.Product
	err := s.db.WithContext(ctx).
		Where("is_active = ?", true).
		Order("name ASC").
		Find(&products).Error
	return products, err
}

// LowStock returns goods at or below their reorder level.
func (s *ProductService) LowStock(ctx context.Context) ([]models.Product, error) {
	var products []models.Product
	err := s.db.WithContext(ctx).
		Where("is_active = ? AND is_service = ? AND stock IS NOT NULL AND stock <= reorder_level", true, false).
		Find(&products).Error
	return products, err
}
