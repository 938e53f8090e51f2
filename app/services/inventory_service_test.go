package services

import (
	"context"
	"testing"

	"PosFiscal/app/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAdjustKeepsLedgerConsistent(t *testing.T) {
	stack := newTestStack(t)
	ctx := context.Background()
	coffee := stack.seedProduct(t, "COF-500", "Coffee 500g", "1000.00", 18, 10)

	_, err := stack.inventory.Adjust(ctx, coffee.ID, 5, "delivery")
	require.NoError(t, err)
	_, err = stack.inventory.Adjust(ctx, coffee.ID, -3, "breakage")
	require.NoError(t, err)

	assert.Equal(t, 12, stack.stockOf(t, coffee.ID))
	assert.Equal(t, 12, stack.movementSum(t, coffee.ID))

	// Each movement records the before/after chain.
	movements, err := stack.inventory.Movements(ctx, coffee.ID, 10)
	require.NoError(t, err)
	require.Len(t, movements, 3) // opening stock + two adjustments
	latest := movements[0]
	assert.Equal(t, -3, latest.QtyDelta)
	assert.Equal(t, 15, latest.PreviousQty)
	assert.Equal(t, 12, latest.NewQty)
	assert.Equal(t, "breakage", latest.Reason)
}

func TestAdjustServiceProductRejected(t *testing.T) {
	stack := newTestStack(t)
	ctx := context.Background()
	repair := stack.seedService(t, "SVC-1", "Repair", "2000.00", 18)

	_, err := stack.inventory.Adjust(ctx, repair.ID, 5, "delivery")
	assert.ErrorIs(t, err, ErrServiceProduct)

	var count int64
	require.NoError(t, stack.db.Model(&models.StockMovement{}).
		Where("product_id = ?", repair.ID).Count(&count).Error)
	assert.Zero(t, count)
}

func TestSetAbsolute(t *testing.T) {
	stack := newTestStack(t)
	ctx := context.Background()
	coffee := stack.seedProduct(t, "COF-500", "Coffee 500g", "1000.00", 18, 10)

	product, err := stack.inventory.SetAbsolute(ctx, coffee.ID, 4, "stock take")
	require.NoError(t, err)
	require.NotNil(t, product.Stock)
	assert.Equal(t, 4, *product.Stock)
	assert.Equal(t, 4, stack.movementSum(t, coffee.ID))

	// Setting the same count records no movement.
	_, err = stack.inventory.SetAbsolute(ctx, coffee.ID, 4, "stock take")
	require.NoError(t, err)
	movements, err := stack.inventory.Movements(ctx, coffee.ID, 10)
	require.NoError(t, err)
	assert.Len(t, movements, 2) // opening stock + one correction
}

func TestNegativeStockAllowed(t *testing.T) {
	stack := newTestStack(t)
	ctx := context.Background()
	coffee := stack.seedProduct(t, "COF-500", "Coffee 500g", "1000.00", 18, 1)

	// Oversell happens on a real counter; the ledger records it rather
	// than blocking the sale.
	_, err := stack.inventory.Adjust(ctx, coffee.ID, -3, "correction")
	require.NoError(t, err)
	assert.Equal(t, -2, stack.stockOf(t, coffee.ID))
	assert.Equal(t, -2, stack.movementSum(t, coffee.ID))
}

func TestLowStockFlag(t *testing.T) {
	stack := newTestStack(t)
	ctx := context.Background()

	low := &models.Product{SKU: "LOW-1", Name: "Filters", Price: dec("100.00"), TaxRate: 18, ReorderLevel: 5}
	qty := 3
	low.Stock = &qty
	require.NoError(t, stack.products.Create(ctx, low))
	stack.seedProduct(t, "OK-1", "Beans", "500.00", 18, 50)

	flagged, err := stack.products.LowStock(ctx)
	require.NoError(t, err)
	require.Len(t, flagged, 1)
	assert.Equal(t, "LOW-1", flagged[0].SKU)
	assert.True(t, flagged[0].NeedsReorder())
}
