package api

import (
	"net/http"
	"strconv"

	"PosFiscal/app/fiscal"
	"PosFiscal/app/models"

	"github.com/gin-gonic/gin"
)

// RetrySale re-stages and re-submits a sale's fiscal document. Legal from
// FAILED; the payload is rebuilt byte-identical from the stored sale.
func (h *Handlers) RetrySale(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()

	if _, err := h.engine.StageSale(ctx, id); err != nil {
		respondError(c, err)
		return
	}
	doc, err := h.engine.SubmitSale(ctx, id)
	if err != nil && doc == nil {
		respondError(c, err)
		return
	}
	// A FAILED outcome is still a recorded outcome; return it with the
	// document so the operator sees the agent's error.
	status := http.StatusOK
	if doc.Status == models.FiscalFailed {
		status = http.StatusBadGateway
	}
	c.JSON(status, doc)
}

// RetryCreditNote is the credit note counterpart of RetrySale.
func (h *Handlers) RetryCreditNote(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()

	if _, err := h.engine.StageCreditNote(ctx, id); err != nil {
		respondError(c, err)
		return
	}
	doc, err := h.engine.SubmitCreditNote(ctx, id)
	if err != nil && doc == nil {
		respondError(c, err)
		return
	}
	status := http.StatusOK
	if doc.Status == models.FiscalFailed {
		status = http.StatusBadGateway
	}
	c.JSON(status, doc)
}

// ListSaleDocuments lists sale fiscal documents, newest first. Supports
// ?status= and page/limit.
func (h *Handlers) ListSaleDocuments(c *gin.Context) {
	limit, offset := pageParams(c)
	docs, total, err := h.engine.ListSaleDocuments(c.Request.Context(), c.Query("status"), limit, offset)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"documents": docs, "total": total})
}

// ListCreditNoteDocuments lists credit note fiscal documents.
func (h *Handlers) ListCreditNoteDocuments(c *gin.Context) {
	limit, offset := pageParams(c)
	docs, total, err := h.engine.ListCreditNoteDocuments(c.Request.Context(), c.Query("status"), limit, offset)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"documents": docs, "total": total})
}

// SaleVerificationQR renders the verification QR of a SENT sale document as
// a PNG.
func (h *Handlers) SaleVerificationQR(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	doc, err := h.engine.SaleDocument(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	h.renderQR(c, doc.FiscalFields)
}

// CreditNoteVerificationQR renders the verification QR of a SENT credit
// note document as a PNG.
func (h *Handlers) CreditNoteVerificationQR(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	doc, err := h.engine.CreditNoteDocument(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	h.renderQR(c, doc.FiscalFields)
}

func (h *Handlers) renderQR(c *gin.Context, fields models.FiscalFields) {
	size, _ := strconv.Atoi(c.DefaultQuery("size", "256"))
	png, err := fiscal.VerificationQR(fields, size)
	if err != nil {
		respondError(c, err)
		return
	}
	c.Data(http.StatusOK, "image/png", png)
}
