package api

import (
	"net/http"

	"PosFiscal/app/services"

	"github.com/gin-gonic/gin"
)

type createSaleRequest struct {
	ReceiptNumber string                 `json:"receiptNumber" binding:"required"`
	Items         []services.LineInput   `json:"items" binding:"required,min=1"`
	Payment       services.PaymentInput  `json:"payment" binding:"required"`
	Notes         string                 `json:"notes"`
}

// CreateSale records a sale and fiscalises it. The sale is returned even
// when fiscalisation fails; the embedded fiscal document carries the
// outcome.
func (h *Handlers) CreateSale(c *gin.Context) {
	var req createSaleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	sale, err := h.ledger.FinalizeSale(c.Request.Context(), req.ReceiptNumber, req.Items, req.Payment, req.Notes)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, sale)
}

// GetSale returns a recorded sale with lines, payment and fiscal document.
func (h *Handlers) GetSale(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	sale, err := h.ledger.Sale(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, sale)
}

type createCreditNoteRequest struct {
	SaleID uint                      `json:"saleId" binding:"required"`
	Reason string                    `json:"reason" binding:"required"`
	Notes  string                    `json:"notes"`
	Items  []services.NoteItemInput  `json:"items" binding:"required,min=1"`
}

// CreateCreditNote issues a credit note against a sale, restocks the
// returned goods and fiscalises the note.
func (h *Handlers) CreateCreditNote(c *gin.Context) {
	var req createCreditNoteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	note, err := h.ledger.IssueCreditNote(c.Request.Context(), req.SaleID, req.Reason, req.Notes, req.Items)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, note)
}

// GetCreditNote returns a credit note with items and fiscal document.
func (h *Handlers) GetCreditNote(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	note, err := h.ledger.CreditNote(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, note)
}

type cancelCreditNoteRequest struct {
	Reason string `json:"reason" binding:"required"`
}

// CancelCreditNote performs a protocol-level cancellation of a PENDING or
// SENT credit note.
func (h *Handlers) CancelCreditNote(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var req cancelCreditNoteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	doc, err := h.engine.CancelCreditNote(c.Request.Context(), id, req.Reason)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, doc)
}
