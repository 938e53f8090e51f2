package services

import (
	"context"
	"errors"
	"fmt"

	"PosFiscal/app/fiscal"
	"PosFiscal/app/models"
	"PosFiscal/app/security"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// ProfileService manages the single business profile. The operator password
// is encrypted at rest and decrypted on load so payload building can use
// it; it never leaves the host except toward the loopback agent.
type ProfileService struct {
	db     *gorm.DB
	cipher *security.Cipher
	log    *zap.Logger
}

func NewProfileService(db *gorm.DB, cipher *security.Cipher, log *zap.Logger) *ProfileService {
	return &ProfileService{db: db, cipher: cipher, log: log}
}

// Profile loads the configured business profile with credentials decrypted.
// Returns fiscal.ErrMissingProfile when none has been saved yet.
func (s *ProfileService) Profile(ctx context.Context) (*models.BusinessProfile, error) {
	var profile models.BusinessProfile
	if err := s.db.WithContext(ctx).First(&profile).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fiscal.ErrMissingProfile
		}
		return nil, fmt.Errorf("load business profile: %w", err)
	}
	plain, err := s.cipher.Decrypt(profile.OperatorPassword)
	if err != nil {
		return nil, fmt.Errorf("decrypt operator credentials: %w", err)
	}
	profile.OperatorPassword = plain
	return &profile, nil
}

// Save creates or replaces the business profile, encrypting the operator
// password before it touches the database. An empty password on update
// keeps the stored one.
func (s *ProfileService) Save(ctx context.Context, input *models.BusinessProfile) (*models.BusinessProfile, error) {
	var existing models.BusinessProfile
	err := s.db.WithContext(ctx).First(&existing).Error
	isNew := errors.Is(err, gorm.ErrRecordNotFound)
	if err != nil && !isNew {
		return nil, fmt.Errorf("load business profile: %w", err)
	}

	if input.OperatorPassword != "" {
		encrypted, err := s.cipher.Encrypt(input.OperatorPassword)
		if err != nil {
			return nil, fmt.Errorf("encrypt operator credentials: %w", err)
		}
		input.OperatorPassword = encrypted
	} else if !isNew {
		input.OperatorPassword = existing.OperatorPassword
	}

	if isNew {
		if err := s.db.WithContext(ctx).Create(input).Error; err != nil {
			return nil, fmt.Errorf("create business profile: %w", err)
		}
	} else {
		input.ID = existing.ID
		if err := s.db.WithContext(ctx).Save(input).Error; err != nil {
			return nil, fmt.Errorf("update business profile: %w", err)
		}
	}

	s.log.Info("business profile saved",
		zap.String("business", input.BusinessName),
		zap.String("device_serial", input.DeviceSerial))
	return input, nil
}
