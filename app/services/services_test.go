package services

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"PosFiscal/app/config"
	"PosFiscal/app/database"
	"PosFiscal/app/fiscal"
	"PosFiscal/app/models"
	"PosFiscal/app/security"

	"github.com/glebarez/sqlite"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// testStack wires the full service stack over an in-memory database and a
// fake loopback agent.
type testStack struct {
	db        *gorm.DB
	agent     *agentStub
	ledger    *LedgerService
	inventory *InventoryService
	products  *ProductService
	profiles  *ProfileService
	reports   *ReportService
	engine    *fiscal.Engine
}

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
	fmt.Fprintf(w, `{"documentNumber":"FDN-%d","verificationCode":"VC-%d"}`, 3000+hits, hits)
}

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func newTestStack(t *testing.T) *testStack {
	t.Helper()

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

	profiles := NewProfileService(db, cipher, log)
	gateway := fiscal.NewGateway(config.AgentConfig{
		Endpoint:       srv.URL,
		ConnectTimeout: time.Second,
		RequestTimeout: 2 * time.Second,
	}, log)
	engine := fiscal.NewEngine(db, gateway, profiles, log)
	inventory := NewInventoryService(db, log)

	stack := &testStack{
		db:        db,
		agent:     stub,
		inventory: inventory,
		ledger:    NewLedgerService(db, inventory, engine, log),
		products:  NewProductService(db, log),
		profiles:  profiles,
		reports:   NewReportService(db, log),
		engine:    engine,
	}

	_, err = profiles.Save(context.Background(), &models.BusinessProfile{
		BusinessName:     "Corner Market",
		TaxID:            "100200300",
		DeviceSerial:     "FD-DEV-42",
		OperatorCode:     "OP01",
		OperatorPassword: "hunter2",
		Currency:         "USD",
	})
	require.NoError(t, err)

	return stack
}

func (s *testStack) seedProduct(t *testing.T, sku, name string, price string, taxRate, stock int) *models.Product {
	t.Helper()
	qty := stock
	product := &models.Product{
		SKU:     sku,
		Name:    name,
		Price:   dec(price),
		TaxRate: taxRate,
		Stock:   &qty,
	}
	require.NoError(t, s.products.Create(context.Background(), product))
	return product
}

func (s *testStack) seedService(t *testing.T, sku, name string, price string, taxRate int) *models.Product {
	t.Helper()
	product := &models.Product{
		SKU:       sku,
		Name:      name,
		Price:     dec(price),
		TaxRate:   taxRate,
		IsService: true,
	}
	require.NoError(t, s.products.Create(context.Background(), product))
	return product
}

func (s *testStack) stockOf(t *testing.T, productID uint) int {
	t.Helper()
	var product models.Product
	require.NoError(t, s.db.First(&product, productID).Error)
	require.NotNil(t, product.Stock)
	return *product.Stock
}

func (s *testStack) movementSum(t *testing.T, productID uint) int {
	t.Helper()
	var movements []models.StockMovement
	require.NoError(t, s.db.Where("product_id = ?", productID).Find(&movements).Error)
	sum := 0
	for _, m := range movements {
		sum += m.QtyDelta
	}
	return sum
}
