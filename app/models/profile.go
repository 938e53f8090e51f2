package models

import "time"

// BusinessProfile holds the seller identity and device registration consumed
// by the payload builder. A missing profile is a hard precondition failure
// for any fiscalisation attempt.
//
// OperatorPassword is stored AES-GCM encrypted (base64); the profile service
// decrypts it on read. It must round-trip in clear text because the agent
// protocol authenticates with it.
type BusinessProfile struct {
	ID               uint      `gorm:"primaryKey" json:"id"`
	BusinessName     string    `gorm:"not null" json:"business_name"`
	TaxID            string    `gorm:"not null" json:"tax_id"`
	BranchID         string    `json:"branch_id"`
	DeviceSerial     string    `json:"device_serial"`
	OperatorCode     string    `json:"operator_code"`
	OperatorPassword string    `json:"-"`
	Address          string    `json:"address"`
	City             string    `json:"city"`
	Phone            string    `json:"phone"`
	Email            string    `json:"email"`
	Currency         string    `gorm:"default:USD" json:"currency"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}
