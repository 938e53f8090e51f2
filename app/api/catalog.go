package api

import (
	"net/http"
	"strconv"

	"PosFiscal/app/models"

	"github.com/gin-gonic/gin"
)

// ListProducts returns the active catalogue.
func (h *Handlers) ListProducts(c *gin.Context) {
	products, err := h.products.List(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, products)
}

// CreateProduct adds a catalogue entry, recording opening stock for goods.
func (h *Handlers) CreateProduct(c *gin.Context) {
	var product models.Product
	if err := c.ShouldBindJSON(&product); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if product.SKU == "" || product.Name == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "sku and name are required"})
		return
	}
	if err := h.products.Create(c.Request.Context(), &product); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, product)
}

// UpdateProduct applies catalogue edits. Stock cannot be changed here.
func (h *Handlers) UpdateProduct(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var product models.Product
	if err := c.ShouldBindJSON(&product); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	product.ID = id
	if err := h.products.Update(c.Request.Context(), &product); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, product)
}

// LowStockProducts returns goods at or below their reorder level.
func (h *Handlers) LowStockProducts(c *gin.Context) {
	products, err := h.products.LowStock(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, products)
}

// ProductMovements returns the stock ledger for a product, newest first.
func (h *Handlers) ProductMovements(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "100"))
	movements, err := h.inventory.Movements(c.Request.Context(), id, limit)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, movements)
}

type stockAdjustRequest struct {
	ProductID uint   `json:"productId" binding:"required"`
	Delta     int    `json:"delta" binding:"required"`
	Note      string `json:"note"`
}

// AdjustStock applies a signed manual stock correction.
func (h *Handlers) AdjustStock(c *gin.Context) {
	var req stockAdjustRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	note := req.Note
	if note == "" {
		note = "manual adjustment"
	}
	product, err := h.inventory.Adjust(c.Request.Context(), req.ProductID, req.Delta, note)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, product)
}

type stockSetRequest struct {
	ProductID uint   `json:"productId" binding:"required"`
	Quantity  *int   `json:"quantity" binding:"required"`
	Note      string `json:"note"`
}

// SetStock replaces a product's stock with a counted quantity.
func (h *Handlers) SetStock(c *gin.Context) {
	var req stockSetRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	note := req.Note
	if note == "" {
		note = "stock take"
	}
	product, err := h.inventory.SetAbsolute(c.Request.Context(), req.ProductID, *req.Quantity, note)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, product)
}
