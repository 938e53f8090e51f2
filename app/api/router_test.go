package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"PosFiscal/app/config"
	"PosFiscal/app/database"
	"PosFiscal/app/fiscal"
	"PosFiscal/app/models"
	"PosFiscal/app/security"
	"PosFiscal/app/services"
	ws "PosFiscal/app/websocket"

	"github.com/gin-gonic/gin"
	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

type agentStub struct {
	mu   sync.Mutex
	fail bool
	hits int
}

func (a *agentStub) setFail(fail bool) {
	a.mu.Lock()
	a.fail = fail
	a.mu.Unlock()
}

func (a *agentStub) handler(w http.ResponseWriter, r *http.Request) {
	a.mu.Lock()
	a.hits++
	fail := a.fail
	hits := a.hits
	a.mu.Unlock()

	if fail {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(`{"error":"device offline"}`))
		return
	}
	fmt.Fprintf(w, `{"documentNumber":"FDN-%d","verificationCode":"VC-%d","qrPayload":"cXItZGF0YQ=="}`, 4000+hits, hits)
}

func newTestAPI(t *testing.T) (*gin.Engine, *agentStub, *gorm.DB) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger:         gormlogger.Default.LogMode(gormlogger.Silent),
		TranslateError: true,
	})
	require.NoError(t, err)
	require.NoError(t, database.Migrate(db))

	stub := &agentStub{}
	srv := httptest.NewServer(http.HandlerFunc(stub.handler))
	t.Cleanup(srv.Close)

	log := zap.NewNop()
	cipher, err := security.NewCipher(t.TempDir())
	require.NoError(t, err)

	profiles := services.NewProfileService(db, cipher, log)
	gateway := fiscal.NewGateway(config.AgentConfig{
		Endpoint:       srv.URL,
		ConnectTimeout: time.Second,
		RequestTimeout: 2 * time.Second,
	}, log)
	engine := fiscal.NewEngine(db, gateway, profiles, log)
	inventory := services.NewInventoryService(db, log)
	ledger := services.NewLedgerService(db, inventory, engine, log)
	products := services.NewProductService(db, log)
	reports := services.NewReportService(db, log)
	hub := ws.NewHub(log)
	go hub.Run()
	t.Cleanup(hub.Shutdown)

	handlers := NewHandlers(ledger, inventory, products, profiles, reports, engine, hub, log)
	return NewRouter(handlers, "test"), stub, db
}

func doJSON(t *testing.T, router *gin.Engine, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func setupCatalog(t *testing.T, router *gin.Engine) uint {
	t.Helper()
	rec := doJSON(t, router, http.MethodPut, "/api/profile", `{
		"businessName":"Corner Market","taxId":"100200300",
		"deviceSerial":"FD-DEV-42","operatorCode":"OP01",
		"operatorPassword":"hunter2","currency":"USD"
	}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = doJSON(t, router, http.MethodPost, "/api/products", `{
		"sku":"COF-500","name":"Coffee 500g","price":"1000.00",
		"tax_rate":18,"stock":10,"reorder_level":2
	}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var product models.Product
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &product))
	return product.ID
}

func TestCreateSaleEndpoint(t *testing.T) {
	router, _, _ := newTestAPI(t)
	productID := setupCatalog(t, router)

	rec := doJSON(t, router, http.MethodPost, "/api/sales", fmt.Sprintf(`{
		"receiptNumber":"R-000001",
		"items":[{"productId":%d,"quantity":2}],
		"payment":{"methodCode":"CASH","amountPaid":"2360.00"}
	}`, productID))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var sale models.Sale
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &sale))
	assert.Equal(t, "2360.00", sale.Total.StringFixed(2))
	require.NotNil(t, sale.FiscalDocument)
	assert.Equal(t, models.FiscalSent, sale.FiscalDocument.Status)

	// Duplicate receipt is a conflict.
	rec = doJSON(t, router, http.MethodPost, "/api/sales", fmt.Sprintf(`{
		"receiptNumber":"R-000001",
		"items":[{"productId":%d,"quantity":1}],
		"payment":{"methodCode":"CASH","amountPaid":"1180.00"}
	}`, productID))
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestRetryEndpoint(t *testing.T) {
	router, stub, _ := newTestAPI(t)
	productID := setupCatalog(t, router)

	stub.setFail(true)
	rec := doJSON(t, router, http.MethodPost, "/api/sales", fmt.Sprintf(`{
		"receiptNumber":"R-000001",
		"items":[{"productId":%d,"quantity":1}],
		"payment":{"methodCode":"CASH","amountPaid":"1180.00"}
	}`, productID))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var sale models.Sale
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &sale))
	require.NotNil(t, sale.FiscalDocument)
	require.Equal(t, models.FiscalFailed, sale.FiscalDocument.Status)

	// Retry while the agent is still down reports the gateway failure.
	rec = doJSON(t, router, http.MethodPost, fmt.Sprintf("/api/fiscal/sales/%d/retry", sale.ID), "")
	assert.Equal(t, http.StatusBadGateway, rec.Code)

	stub.setFail(false)
	rec = doJSON(t, router, http.MethodPost, fmt.Sprintf("/api/fiscal/sales/%d/retry", sale.ID), "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var doc models.SaleFiscalDocument
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &doc))
	assert.Equal(t, models.FiscalSent, doc.Status)
	assert.NotEmpty(t, doc.DocumentNumber)

	// The QR for the sent document renders as PNG.
	rec = doJSON(t, router, http.MethodGet, fmt.Sprintf("/api/fiscal/sales/%d/qr", sale.ID), "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "image/png", rec.Header().Get("Content-Type"))
}

func TestCreditNoteEndpoints(t *testing.T) {
	router, _, _ := newTestAPI(t)
	productID := setupCatalog(t, router)

	rec := doJSON(t, router, http.MethodPost, "/api/sales", fmt.Sprintf(`{
		"receiptNumber":"R-000001",
		"items":[{"productId":%d,"quantity":2}],
		"payment":{"methodCode":"CASH","amountPaid":"2360.00"}
	}`, productID))
	require.Equal(t, http.StatusCreated, rec.Code)
	var sale models.Sale
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &sale))
	require.NotEmpty(t, sale.Lines)

	rec = doJSON(t, router, http.MethodPost, "/api/credit-notes", fmt.Sprintf(`{
		"saleId":%d,"reason":"damaged goods",
		"items":[{"saleLineId":%d,"quantity":1}]
	}`, sale.ID, sale.Lines[0].ID))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var note models.CreditNote
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &note))
	assert.Equal(t, models.CreditNoteSent, note.Status)
	assert.Equal(t, "1180.00", note.Total.StringFixed(2))

	rec = doJSON(t, router, http.MethodPost,
		fmt.Sprintf("/api/credit-notes/%d/cancel", note.ID),
		`{"reason":"issued in error"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var doc models.CreditNoteFiscalDocument
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &doc))
	assert.Equal(t, models.FiscalCancelled, doc.Status)

	// Cancelling again is a conflict.
	rec = doJSON(t, router, http.MethodPost,
		fmt.Sprintf("/api/credit-notes/%d/cancel", note.ID),
		`{"reason":"again"}`)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestListDocumentsEndpoint(t *testing.T) {
	router, stub, _ := newTestAPI(t)
	productID := setupCatalog(t, router)

	stub.setFail(true)
	rec := doJSON(t, router, http.MethodPost, "/api/sales", fmt.Sprintf(`{
		"receiptNumber":"R-000001",
		"items":[{"productId":%d,"quantity":1}],
		"payment":{"methodCode":"CASH","amountPaid":"1180.00"}
	}`, productID))
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = doJSON(t, router, http.MethodGet, "/api/fiscal/sales?status=FAILED", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var listing struct {
		Documents []models.SaleFiscalDocument `json:"documents"`
		Total     int64                       `json:"total"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &listing))
	assert.Equal(t, int64(1), listing.Total)
	require.Len(t, listing.Documents, 1)
	assert.Equal(t, "device offline", listing.Documents[0].ErrorMessage)
}

func TestSaleValidation(t *testing.T) {
	router, _, _ := newTestAPI(t)
	setupCatalog(t, router)

	rec := doJSON(t, router, http.MethodPost, "/api/sales", `{"receiptNumber":"R-1"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSON(t, router, http.MethodGet, "/api/sales/999", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
