package api

import (
	"errors"
	"net/http"
	"strconv"

	"PosFiscal/app/fiscal"
	"PosFiscal/app/services"
	ws "PosFiscal/app/websocket"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Handlers bundles the service layer behind the HTTP surface.
type Handlers struct {
	ledger    *services.LedgerService
	inventory *services.InventoryService
	products  *services.ProductService
	profiles  *services.ProfileService
	reports   *services.ReportService
	engine    *fiscal.Engine
	hub       *ws.Hub
	log       *zap.Logger
}

func NewHandlers(
	ledger *services.LedgerService,
	inventory *services.InventoryService,
	products *services.ProductService,
	profiles *services.ProfileService,
	reports *services.ReportService,
	engine *fiscal.Engine,
	hub *ws.Hub,
	log *zap.Logger,
) *Handlers {
	return &Handlers{
		ledger:    ledger,
		inventory: inventory,
		products:  products,
		profiles:  profiles,
		reports:   reports,
		engine:    engine,
		hub:       hub,
		log:       log,
	}
}

// NewRouter builds the gin engine with all routes mounted.
func NewRouter(h *Handlers, environment string) *gin.Engine {
	if environment != "development" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/health", h.Health)
	r.GET("/ws", gin.WrapF(h.hub.ServeWS))

	api := r.Group("/api")
	{
		api.POST("/sales", h.CreateSale)
		api.GET("/sales/:id", h.GetSale)

		api.POST("/credit-notes", h.CreateCreditNote)
		api.GET("/credit-notes/:id", h.GetCreditNote)
		api.POST("/credit-notes/:id/cancel", h.CancelCreditNote)

		api.GET("/fiscal/sales", h.ListSaleDocuments)
		api.POST("/fiscal/sales/:id/retry", h.RetrySale)
		api.GET("/fiscal/sales/:id/qr", h.SaleVerificationQR)
		api.GET("/fiscal/credit-notes", h.ListCreditNoteDocuments)
		api.POST("/fiscal/credit-notes/:id/retry", h.RetryCreditNote)
		api.GET("/fiscal/credit-notes/:id/qr", h.CreditNoteVerificationQR)

		api.GET("/products", h.ListProducts)
		api.POST("/products", h.CreateProduct)
		api.PUT("/products/:id", h.UpdateProduct)
		api.GET("/products/low-stock", h.LowStockProducts)
		api.GET("/products/:id/movements", h.ProductMovements)
		api.POST("/inventory/adjust", h.AdjustStock)
		api.POST("/inventory/set", h.SetStock)

		api.GET("/profile", h.GetProfile)
		api.PUT("/profile", h.SaveProfile)

		api.GET("/reports/fiscal-summary", h.FiscalSummary)
	}

	return r
}

// Health reports service liveness and connected display count.
func (h *Handlers) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "healthy",
		"clients": h.hub.ClientCount(),
	})
}

func pathID(c *gin.Context) (uint, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil || id == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return 0, false
	}
	return uint(id), true
}

func pageParams(c *gin.Context) (limit, offset int) {
	limit, _ = strconv.Atoi(c.DefaultQuery("limit", "50"))
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = 50
	}
	return limit, (page - 1) * limit
}

// respondError maps domain errors onto HTTP statuses.
func respondError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
	case errors.Is(err, services.ErrDuplicateKey):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, fiscal.ErrInvalidState), errors.Is(err, fiscal.ErrNotStaged):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, services.ErrQuantityExceedsSold),
		errors.Is(err, services.ErrServiceProduct),
		errors.Is(err, fiscal.ErrEmptyDocument):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
	case errors.Is(err, fiscal.ErrMissingProfile):
		c.JSON(http.StatusPreconditionFailed, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}
