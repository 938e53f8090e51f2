package fiscal

import (
	"encoding/json"
	"fmt"
	"time"

	"PosFiscal/app/models"

	"github.com/shopspring/decimal"
)

// PayloadVersion identifies the agent protocol revision the builder emits.
const PayloadVersion = "1.2"

// Document kind and type codes understood by the agent.
const (
	kindNormal     = "N"
	typeInvoice    = "S" // sale
	typeCreditNote = "R" // refund / reversal
)

// walkInBuyer is the default buyer identity for retail invoices without a
// registered customer.
var walkInBuyer = BuyerSection{ID: "", Name: "WALK-IN CUSTOMER"}

// InvoicePayload is the versioned wire document for a sale.
type InvoicePayload struct {
	Version    string         `json:"version"`
	Seller     SellerSection  `json:"seller"`
	Invoice    MetaSection    `json:"invoice"`
	Buyer      BuyerSection   `json:"buyer"`
	Items      []ItemSection  `json:"items"`
	TaxSummary []TaxBucket    `json:"taxSummary"`
	Summary    SummarySection `json:"summary"`
}

// CreditNotePayload is the versioned wire document for a credit note. It
// mirrors the invoice shape and adds a reference to the originating invoice.
type CreditNotePayload struct {
	Version    string           `json:"version"`
	Seller     SellerSection    `json:"seller"`
	Invoice    MetaSection      `json:"invoice"`
	Reference  ReferenceSection `json:"reference"`
	Reason     string           `json:"reason"`
	Buyer      BuyerSection     `json:"buyer"`
	Items      []ItemSection    `json:"items"`
	TaxSummary []TaxBucket      `json:"taxSummary"`
	Summary    SummarySection   `json:"summary"`
}

// CancelPayload requests protocol-level cancellation of a previously staged
// or accepted credit note.
type CancelPayload struct {
	Version   string           `json:"version"`
	Seller    SellerSection    `json:"seller"`
	Reference ReferenceSection `json:"reference"`
	Reason    string           `json:"reason"`
}

// SellerSection carries the business identity from the profile.
type SellerSection struct {
	TaxID        string `json:"taxId"`
	Name         string `json:"name"`
	BranchID     string `json:"branchId"`
	DeviceSerial string `json:"deviceSerial"`
	OperatorCode string `json:"operatorCode"`
	Address      string `json:"address"`
	City         string `json:"city"`
	Phone        string `json:"phone,omitempty"`
	Email        string `json:"email,omitempty"`
}

// MetaSection carries basic document metadata.
type MetaSection struct {
	DocumentNumber string `json:"documentNumber"`
	DeviceSerial   string `json:"deviceSerial"`
	IssuedAt       string `json:"issuedAt"`
	Currency       string `json:"currency"`
	KindCode       string `json:"kindCode"`
	TypeCode       string `json:"typeCode"`
	PaymentMethod  string `json:"paymentMethod,omitempty"`
}

// BuyerSection identifies the buyer; retail sales default to the walk-in
// customer.
type BuyerSection struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// ReferenceSection points a credit note (or cancellation) at the document it
// amends.
type ReferenceSection struct {
	ReceiptNumber  string `json:"receiptNumber"`
	DocumentNumber string `json:"documentNumber,omitempty"` // authority FDN when known
	IssuedAt       string `json:"issuedAt,omitempty"`
}

// ItemSection is one document line. Gross is always derived as net + tax.
type ItemSection struct {
	Seq       int    `json:"seq"`
	Name      string `json:"name"`
	Code      string `json:"code,omitempty"`
	Quantity  int    `json:"quantity"`
	UnitPrice string `json:"unitPrice"`
	NetAmount string `json:"netAmount"`
	TaxRate   string `json:"taxRate"` // fraction of 100, e.g. "0.18"
	TaxAmount string `json:"taxAmount"`
	Gross     string `json:"grossAmount"`
}

// TaxBucket aggregates taxable and tax amounts per rate.
type TaxBucket struct {
	TaxRate       string `json:"taxRate"`
	TaxableAmount string `json:"taxableAmount"`
	TaxAmount     string `json:"taxAmount"`
}

// SummarySection carries overall document totals.
type SummarySection struct {
	ItemCount   int    `json:"itemCount"`
	NetAmount   string `json:"netAmount"`
	TaxAmount   string `json:"taxAmount"`
	GrossAmount string `json:"grossAmount"`
	PaidAmount  string `json:"paidAmount,omitempty"`
	ChangeDue   string `json:"changeDue,omitempty"`
}

// BuildInvoicePayload maps a persisted sale into the wire document. Pure:
// identical inputs produce byte-identical output, which is what makes
// re-submission after a crash safe (the authority deduplicates by the
// receipt number carried in documentNumber).
func BuildInvoicePayload(sale *models.Sale, payment *models.Payment, profile *models.BusinessProfile) ([]byte, error) {
	if profile == nil {
		return nil, ErrMissingProfile
	}
	if sale == nil || len(sale.Lines) == 0 {
		return nil, fmt.Errorf("sale: %w", ErrEmptyDocument)
	}

	items := make([]ItemSection, 0, len(sale.Lines))
	for i, line := range sale.Lines {
		items = append(items, ItemSection{
			Seq:       i + 1,
			Name:      line.ItemName,
			Code:      line.SKU,
			Quantity:  line.Quantity,
			UnitPrice: amount(line.UnitPrice),
			NetAmount: amount(line.Subtotal),
			TaxRate:   rateFraction(line.TaxRate),
			TaxAmount: amount(line.TaxAmount),
			Gross:     amount(line.Subtotal.Add(line.TaxAmount)),
		})
	}

	payload := InvoicePayload{
		Version: PayloadVersion,
		Seller:  sellerSection(profile),
		Invoice: MetaSection{
			DocumentNumber: sale.ReceiptNumber,
			DeviceSerial:   profile.DeviceSerial,
			IssuedAt:       wireTimestamp(sale.CreatedAt),
			Currency:       profile.Currency,
			KindCode:       kindNormal,
			TypeCode:       typeInvoice,
			PaymentMethod:  paymentMethod(payment),
		},
		Buyer:      walkInBuyer,
		Items:      items,
		TaxSummary: taxSummary(sale.Lines),
		Summary: SummarySection{
			ItemCount:   len(items),
			NetAmount:   amount(sale.Subtotal),
			TaxAmount:   amount(sale.TaxTotal),
			GrossAmount: amount(sale.Subtotal.Add(sale.TaxTotal)),
			PaidAmount:  paidAmount(payment),
			ChangeDue:   changeDue(payment),
		},
	}

	return json.Marshal(payload)
}

// BuildCreditNotePayload maps a credit note and its items into the wire
// document. The note's Sale should be preloaded so the reference section can
// carry the original receipt number and authority document number.
func BuildCreditNotePayload(note *models.CreditNote, noteItems []models.CreditNoteItem, profile *models.BusinessProfile) ([]byte, error) {
	if profile == nil {
		return nil, ErrMissingProfile
	}
	if note == nil || len(noteItems) == 0 {
		return nil, fmt.Errorf("credit note: %w", ErrEmptyDocument)
	}

	items := make([]ItemSection, 0, len(noteItems))
	for i, it := range noteItems {
		items = append(items, ItemSection{
			Seq:       i + 1,
			Name:      it.ItemName,
			Code:      it.SKU,
			Quantity:  it.Quantity,
			UnitPrice: amount(it.UnitPrice),
			NetAmount: amount(it.Subtotal),
			TaxRate:   rateFraction(it.TaxRate),
			TaxAmount: amount(it.TaxAmount),
			Gross:     amount(it.Subtotal.Add(it.TaxAmount)),
		})
	}

	payload := CreditNotePayload{
		Version: PayloadVersion,
		Seller:  sellerSection(profile),
		Invoice: MetaSection{
			DocumentNumber: CreditNoteNumber(note),
			DeviceSerial:   profile.DeviceSerial,
			IssuedAt:       wireTimestamp(noteIssuedAt(note)),
			Currency:       profile.Currency,
			KindCode:       kindNormal,
			TypeCode:       typeCreditNote,
		},
		Reference:  referenceSection(note),
		Reason:     note.Reason,
		Buyer:      walkInBuyer,
		Items:      items,
		TaxSummary: taxSummaryFromNoteItems(noteItems),
		Summary: SummarySection{
			ItemCount:   len(items),
			NetAmount:   amount(note.Subtotal),
			TaxAmount:   amount(note.TaxTotal),
			GrossAmount: amount(note.Subtotal.Add(note.TaxTotal)),
		},
	}

	return json.Marshal(payload)
}

// BuildCreditNoteCancelPayload builds the cancellation request for a credit
// note. The note's FiscalDocument should be preloaded so the authority
// document number, when already assigned, is carried in the reference.
func BuildCreditNoteCancelPayload(note *models.CreditNote, reason string, profile *models.BusinessProfile) ([]byte, error) {
	if profile == nil {
		return nil, ErrMissingProfile
	}
	if note == nil {
		return nil, fmt.Errorf("credit note: %w", ErrEmptyDocument)
	}

	ref := ReferenceSection{
		ReceiptNumber: CreditNoteNumber(note),
		IssuedAt:      wireTimestamp(noteIssuedAt(note)),
	}
	if note.FiscalDocument != nil {
		ref.DocumentNumber = note.FiscalDocument.DocumentNumber
	}

	payload := CancelPayload{
		Version:   PayloadVersion,
		Seller:    sellerSection(profile),
		Reference: ref,
		Reason:    reason,
	}

	return json.Marshal(payload)
}

// CreditNoteNumber is the client-generated reference number for a credit
// note, unique per note and stable across retries.
func CreditNoteNumber(note *models.CreditNote) string {
	return fmt.Sprintf("CN-%06d", note.ID)
}

func sellerSection(profile *models.BusinessProfile) SellerSection {
	return SellerSection{
		TaxID:        profile.TaxID,
		Name:         profile.BusinessName,
		BranchID:     profile.BranchID,
		DeviceSerial: profile.DeviceSerial,
		OperatorCode: profile.OperatorCode,
		Address:      profile.Address,
		City:         profile.City,
		Phone:        profile.Phone,
		Email:        profile.Email,
	}
}

func referenceSection(note *models.CreditNote) ReferenceSection {
	ref := ReferenceSection{}
	if note.Sale != nil {
		ref.ReceiptNumber = note.Sale.ReceiptNumber
		ref.IssuedAt = wireTimestamp(note.Sale.CreatedAt)
		if note.Sale.FiscalDocument != nil {
			ref.DocumentNumber = note.Sale.FiscalDocument.DocumentNumber
		}
	}
	return ref
}

// taxSummary groups line net/tax amounts per tax rate, ordered by first
// appearance so output stays deterministic.
func taxSummary(lines []models.SaleLine) []TaxBucket {
	type acc struct {
		taxable decimal.Decimal
		tax     decimal.Decimal
	}
	order := make([]int, 0, 2)
	byRate := make(map[int]*acc)
	for _, line := range lines {
		a, ok := byRate[line.TaxRate]
		if !ok {
			a = &acc{}
			byRate[line.TaxRate] = a
			order = append(order, line.TaxRate)
		}
		a.taxable = a.taxable.Add(line.Subtotal)
		a.tax = a.tax.Add(line.TaxAmount)
	}

	buckets := make([]TaxBucket, 0, len(order))
	for _, rate := range order {
		a := byRate[rate]
		buckets = append(buckets, TaxBucket{
			TaxRate:       rateFraction(rate),
			TaxableAmount: amount(a.taxable),
			TaxAmount:     amount(a.tax),
		})
	}
	return buckets
}

func taxSummaryFromNoteItems(items []models.CreditNoteItem) []TaxBucket {
	lines := make([]models.SaleLine, 0, len(items))
	for _, it := range items {
		lines = append(lines, models.SaleLine{
			TaxRate:   it.TaxRate,
			Subtotal:  it.Subtotal,
			TaxAmount: it.TaxAmount,
		})
	}
	return taxSummary(lines)
}

func noteIssuedAt(note *models.CreditNote) time.Time {
	if note.IssuedAt != nil {
		return *note.IssuedAt
	}
	return note.CreatedAt
}

// wireTimestamp renders a stored timestamp for the wire. Never time.Now():
// submission retries must reproduce the original bytes.
func wireTimestamp(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

func amount(d decimal.Decimal) string {
	return d.StringFixed(2)
}

// rateFraction serializes a whole-number percent as a fraction of 100, per
// the agent protocol ("18" stored, "0.18" on the wire).
func rateFraction(rate int) string {
	return decimal.NewFromInt(int64(rate)).Div(decimal.NewFromInt(100)).StringFixed(2)
}

func paymentMethod(p *models.Payment) string {
	if p == nil {
		return ""
	}
	return p.MethodCode
}

func paidAmount(p *models.Payment) string {
	if p == nil {
		return ""
	}
	return amount(p.AmountPaid)
}

func changeDue(p *models.Payment) string {
	if p == nil {
		return ""
	}
	return amount(p.ChangeDue)
}
