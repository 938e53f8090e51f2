package fiscal

import (
	"testing"

	"PosFiscal/app/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVerificationQR(t *testing.T) {
	fields := models.FiscalFields{
		Status:           models.FiscalSent,
		DocumentNumber:   "FDN-1001",
		VerificationCode: "VC-77",
		QRPayload:        "aHR0cHM6Ly92ZXJpZnkuZXhhbXBsZS8xMjM=",
	}

	png, err := VerificationQR(fields, 128)
	require.NoError(t, err)
	require.NotEmpty(t, png)
	assert.Equal(t, []byte{0x89, 'P', 'N', 'G'}, png[:4])
}

func TestVerificationQRFallsBackWithoutPayload(t *testing.T) {
	fields := models.FiscalFields{
		Status:           models.FiscalSent,
		DocumentNumber:   "FDN-1001",
		VerificationCode: "VC-77",
	}

	png, err := VerificationQR(fields, 0)
	require.NoError(t, err)
	assert.NotEmpty(t, png)
}

func TestVerificationQRRequiresSent(t *testing.T) {
	fields := models.FiscalFields{Status: models.FiscalFailed}

	_, err := VerificationQR(fields, 128)
	assert.ErrorIs(t, err, ErrInvalidState)
}
