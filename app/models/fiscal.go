package models

import "time"

// Fiscal document statuses. SENT is terminal; CANCELLED is terminal and
// applies to credit note documents only.
const (
	FiscalPending   = "PENDING"
	FiscalSent      = "SENT"
	FiscalFailed    = "FAILED"
	FiscalCancelled = "CANCELLED"
)

// FiscalFields holds the authority-facing state shared by the two fiscal
// document tables. RequestJSON/ResponseJSON keep the verbatim payloads of the
// last attempt; re-staging overwrites them and clears the derived fields.
type FiscalFields struct {
	Status           string     `gorm:"not null;default:PENDING" json:"status"`
	RequestJSON      string     `gorm:"type:text" json:"request_json"`
	ResponseJSON     string     `gorm:"type:text" json:"response_json"`
	DocumentNumber   string     `json:"document_number"`
	VerificationCode string     `json:"verification_code"`
	QRPayload        string     `gorm:"type:text" json:"qr_payload"` // base64 from the authority
	ErrorMessage     string     `json:"error_message"`
	RetryCount       int        `json:"retry_count"`
	SentAt           *time.Time `json:"sent_at,omitempty"`
}

// SaleFiscalDocument tracks fiscalisation of one sale. Exactly one row per
// sale, upserted by the fiscal engine.
type SaleFiscalDocument struct {
	ID           uint `gorm:"primaryKey" json:"id"`
	SaleID       uint `gorm:"uniqueIndex;not null" json:"sale_id"`
	FiscalFields `gorm:"embedded"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// CreditNoteFiscalDocument tracks fiscalisation of one credit note. Same
// semantics as SaleFiscalDocument, in a parallel table.
type CreditNoteFiscalDocument struct {
	ID           uint `gorm:"primaryKey" json:"id"`
	CreditNoteID uint `gorm:"uniqueIndex;not null" json:"credit_note_id"`
	FiscalFields `gorm:"embedded"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}
