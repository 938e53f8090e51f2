package api

import (
	"net/http"
	"time"

	"PosFiscal/app/models"

	"github.com/gin-gonic/gin"
)

// GetProfile returns the configured business profile. The operator password
// is excluded from serialization.
func (h *Handlers) GetProfile(c *gin.Context) {
	profile, err := h.profiles.Profile(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, profile)
}

// The model hides the credential from JSON output, so updates carry it in a
// dedicated request field.
type saveProfileRequest struct {
	BusinessName     string `json:"businessName" binding:"required"`
	TaxID            string `json:"taxId" binding:"required"`
	BranchID         string `json:"branchId"`
	DeviceSerial     string `json:"deviceSerial" binding:"required"`
	OperatorCode     string `json:"operatorCode"`
	OperatorPassword string `json:"operatorPassword"`
	Address          string `json:"address"`
	City             string `json:"city"`
	Phone            string `json:"phone"`
	Email            string `json:"email"`
	Currency         string `json:"currency"`
}

// SaveProfile creates or replaces the business profile. An empty operator
// password keeps the stored credential.
func (h *Handlers) SaveProfile(c *gin.Context) {
	var req saveProfileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	profile := models.BusinessProfile{
		BusinessName:     req.BusinessName,
		TaxID:            req.TaxID,
		BranchID:         req.BranchID,
		DeviceSerial:     req.DeviceSerial,
		OperatorCode:     req.OperatorCode,
		OperatorPassword: req.OperatorPassword,
		Address:          req.Address,
		City:             req.City,
		Phone:            req.Phone,
		Email:            req.Email,
		Currency:         req.Currency,
	}
	saved, err := h.profiles.Save(c.Request.Context(), &profile)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, saved)
}

// FiscalSummary returns the daily fiscal summary. Defaults to today;
// ?date=YYYY-MM-DD selects another day.
func (h *Handlers) FiscalSummary(c *gin.Context) {
	day := time.Now()
	if raw := c.Query("date"); raw != "" {
		parsed, err := time.ParseInLocation("2006-01-02", raw, time.Local)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "date must be YYYY-MM-DD"})
			return
		}
		day = parsed
	}
	summary, err := h.reports.DailyFiscalSummary(c.Request.Context(), day)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, summary)
}
