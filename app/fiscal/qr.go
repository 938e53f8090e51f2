package fiscal

import (
	"encoding/base64"
	"fmt"

	"PosFiscal/app/models"

	qrcode "github.com/skip2/go-qrcode"
)

// VerificationQR renders the verification QR for a sent document as a PNG.
// The agent returns the QR payload base64 encoded; some agent builds return
// it raw, so a failed decode falls back to the literal payload. Documents
// without a payload fall back to "documentNumber|verificationCode" so old
// rows stay printable.
func VerificationQR(fields models.FiscalFields, size int) ([]byte, error) {
	if fields.Status != models.FiscalSent {
		return nil, fmt.Errorf("document is %s: %w", fields.Status, ErrInvalidState)
	}

	content := fields.QRPayload
	if content != "" {
		if decoded, err := base64.StdEncoding.DecodeString(content); err == nil {
			content = string(decoded)
		}
	} else {
		content = fields.DocumentNumber + "|" + fields.VerificationCode
	}

	if size <= 0 {
		size = 256
	}
	png, err := qrcode.Encode(content, qrcode.Medium, size)
	if err != nil {
		return nil, fmt.Errorf("encode verification QR: %w", err)
	}
	return png, nil
}
