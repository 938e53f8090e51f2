package fiscal

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"PosFiscal/app/models"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testProfile() *models.BusinessProfile {
	return &models.BusinessProfile{
		BusinessName: "Corner Market",
		TaxID:        "100200300",
		BranchID:     "001",
		DeviceSerial: "FD-DEV-42",
		OperatorCode: "OP01",
		Address:      "12 Market St",
		City:         "Capital",
		Currency:     "USD",
	}
}

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func testSale() (*models.Sale, *models.Payment) {
	createdAt := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	sale := &models.Sale{
		ID:            7,
		ReceiptNumber: "R-000007",
		Lines: []models.SaleLine{
			{
				ItemName: "Coffee 500g", SKU: "COF-500", Quantity: 2,
				UnitPrice: dec("1000.00"), TaxRate: 18,
				Subtotal: dec("2000.00"), TaxAmount: dec("360.00"),
			},
			{
				ItemName: "Grinder", SKU: "GRD-1", Quantity: 1,
				UnitPrice: dec("5000.00"), TaxRate: 18,
				Subtotal: dec("5000.00"), TaxAmount: dec("900.00"),
			},
		},
		Subtotal:  dec("7000.00"),
		TaxTotal:  dec("1260.00"),
		Total:     dec("8260.00"),
		CreatedAt: createdAt,
	}
	payment := &models.Payment{
		MethodCode: "CASH",
		AmountPaid: dec("10000.00"),
		ChangeDue:  dec("1740.00"),
	}
	return sale, payment
}

func TestBuildInvoicePayload(t *testing.T) {
	sale, payment := testSale()

	raw, err := BuildInvoicePayload(sale, payment, testProfile())
	require.NoError(t, err)

	var payload InvoicePayload
	require.NoError(t, json.Unmarshal(raw, &payload))

	assert.Equal(t, PayloadVersion, payload.Version)
	assert.Equal(t, "R-000007", payload.Invoice.DocumentNumber)
	assert.Equal(t, "2026-03-01T10:00:00Z", payload.Invoice.IssuedAt)
	assert.Equal(t, "N", payload.Invoice.KindCode)
	assert.Equal(t, "S", payload.Invoice.TypeCode)
	assert.Equal(t, "CASH", payload.Invoice.PaymentMethod)
	assert.Equal(t, "WALK-IN CUSTOMER", payload.Buyer.Name)

	require.Len(t, payload.Items, 2)
	first := payload.Items[0]
	assert.Equal(t, 1, first.Seq)
	assert.Equal(t, "COF-500", first.Code)
	assert.Equal(t, "1000.00", first.UnitPrice)
	assert.Equal(t, "2000.00", first.NetAmount)
	assert.Equal(t, "0.18", first.TaxRate)
	assert.Equal(t, "360.00", first.TaxAmount)
	assert.Equal(t, "2360.00", first.Gross)

	require.Len(t, payload.TaxSummary, 1)
	assert.Equal(t, "0.18", payload.TaxSummary[0].TaxRate)
	assert.Equal(t, "7000.00", payload.TaxSummary[0].TaxableAmount)
	assert.Equal(t, "1260.00", payload.TaxSummary[0].TaxAmount)

	assert.Equal(t, 2, payload.Summary.ItemCount)
	assert.Equal(t, "7000.00", payload.Summary.NetAmount)
	assert.Equal(t, "1260.00", payload.Summary.TaxAmount)
	assert.Equal(t, "8260.00", payload.Summary.GrossAmount)
	assert.Equal(t, "10000.00", payload.Summary.PaidAmount)
	assert.Equal(t, "1740.00", payload.Summary.ChangeDue)
}

func TestBuildInvoicePayloadDeterministic(t *testing.T) {
	sale, payment := testSale()

	first, err := BuildInvoicePayload(sale, payment, testProfile())
	require.NoError(t, err)
	second, err := BuildInvoicePayload(sale, payment, testProfile())
	require.NoError(t, err)

	assert.Equal(t, first, second, "identical inputs must produce identical bytes")
}

func TestBuildInvoicePayloadMixedRates(t *testing.T) {
	sale, payment := testSale()
	sale.Lines = append(sale.Lines, models.SaleLine{
		ItemName: "Bread", SKU: "BRD-1", Quantity: 1,
		UnitPrice: dec("500.00"), TaxRate: 0,
		Subtotal: dec("500.00"), TaxAmount: dec("0.00"),
	})

	raw, err := BuildInvoicePayload(sale, payment, testProfile())
	require.NoError(t, err)

	var payload InvoicePayload
	require.NoError(t, json.Unmarshal(raw, &payload))

	require.Len(t, payload.TaxSummary, 2)
	assert.Equal(t, "0.18", payload.TaxSummary[0].TaxRate)
	assert.Equal(t, "0.00", payload.TaxSummary[1].TaxRate)
	assert.Equal(t, "500.00", payload.TaxSummary[1].TaxableAmount)
}

func TestBuildInvoicePayloadValidation(t *testing.T) {
	sale, payment := testSale()

	_, err := BuildInvoicePayload(sale, payment, nil)
	assert.ErrorIs(t, err, ErrMissingProfile)

	sale.Lines = nil
	_, err = BuildInvoicePayload(sale, payment, testProfile())
	assert.ErrorIs(t, err, ErrEmptyDocument)
}

func TestBuildCreditNotePayload(t *testing.T) {
	issued := time.Date(2026, 3, 2, 9, 30, 0, 0, time.UTC)
	saleCreated := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	note := &models.CreditNote{
		ID:     42,
		SaleID: 7,
		Sale: &models.Sale{
			ID:            7,
			ReceiptNumber: "R-000007",
			CreatedAt:     saleCreated,
			FiscalDocument: &models.SaleFiscalDocument{
				SaleID:       7,
				FiscalFields: models.FiscalFields{DocumentNumber: "FDN-9001"},
			},
		},
		Reason:   "damaged goods",
		Subtotal: dec("1000.00"),
		TaxTotal: dec("180.00"),
		Total:    dec("1180.00"),
		IssuedAt: &issued,
	}
	items := []models.CreditNoteItem{
		{
			ItemName: "Coffee 500g", SKU: "COF-500", Quantity: 1,
			UnitPrice: dec("1000.00"), TaxRate: 18,
			Subtotal: dec("1000.00"), TaxAmount: dec("180.00"),
		},
	}

	raw, err := BuildCreditNotePayload(note, items, testProfile())
	require.NoError(t, err)

	var payload CreditNotePayload
	require.NoError(t, json.Unmarshal(raw, &payload))

	assert.Equal(t, "CN-000042", payload.Invoice.DocumentNumber)
	assert.Equal(t, "R", payload.Invoice.TypeCode)
	assert.Equal(t, "2026-03-02T09:30:00Z", payload.Invoice.IssuedAt)
	assert.Equal(t, "damaged goods", payload.Reason)
	assert.Equal(t, "R-000007", payload.Reference.ReceiptNumber)
	assert.Equal(t, "FDN-9001", payload.Reference.DocumentNumber)
	assert.Equal(t, "2026-03-01T10:00:00Z", payload.Reference.IssuedAt)
	assert.Equal(t, "1180.00", payload.Summary.GrossAmount)
	assert.Empty(t, payload.Summary.PaidAmount)
}

func TestBuildCreditNoteCancelPayload(t *testing.T) {
	issued := time.Date(2026, 3, 2, 9, 30, 0, 0, time.UTC)
	note := &models.CreditNote{
		ID:       42,
		IssuedAt: &issued,
		FiscalDocument: &models.CreditNoteFiscalDocument{
			FiscalFields: models.FiscalFields{DocumentNumber: "FDN-9002"},
		},
	}

	raw, err := BuildCreditNoteCancelPayload(note, "issued in error", testProfile())
	require.NoError(t, err)

	var payload CancelPayload
	require.NoError(t, json.Unmarshal(raw, &payload))

	assert.Equal(t, "CN-000042", payload.Reference.ReceiptNumber)
	assert.Equal(t, "FDN-9002", payload.Reference.DocumentNumber)
	assert.Equal(t, "issued in error", payload.Reason)

	_, err = BuildCreditNoteCancelPayload(nil, "x", testProfile())
	assert.True(t, errors.Is(err, ErrEmptyDocument))
}
