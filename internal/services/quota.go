package services

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/skyvault/backend/internal/models"
	"gorm.io/gorm"
)

// MaxStorageBytes is the fixed per-user storage cap (10 GiB).
const MaxStorageBytes int64 = 10 * 1024 * 1024 * 1024

// ErrQuotaExceeded is returned when a reservation would push a user past the
// cap. Callers translate it into a BadRequest with a human-readable message.
var ErrQuotaExceeded = errors.New("storage quota exceeded")

// QuotaService keeps the per-user used-bytes ledger stored on the users row.
// Reservations are conditional updates so two uploads racing past a pre-check
// cannot jointly overrun the cap.
type QuotaService struct {
	DB *gorm.DB
}

func NewQuotaService(db *gorm.DB) *QuotaService {
	return &QuotaService{DB: db}
}

func (s *QuotaService) UsedBytes(ownerID uuid.UUID) (int64, error) {
	var user models.User
	if err := s.DB.Select("used_storage").First(&user, "id = ?", ownerID).Error; err != nil {
		return 0, err
	}
	return user.UsedStorage, nil
}

// Reserve atomically adds size to the owner's ledger, failing with
// ErrQuotaExceeded when the addition would cross the cap. An upload landing
// exactly on the cap succeeds. The tx argument lets callers run the
// reservation inside the same transaction as the file insert.
func (s *QuotaService) Reserve(tx *gorm.DB, ownerID uuid.UUID, size int64) error {
	result := tx.Model(&models.User{}).
		Where("id = ? AND used_storage + ? <= ?", ownerID, size, MaxStorageBytes).
		Update("used_storage", gorm.Expr("used_storage + ?", size))
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrQuotaExceeded
	}
	return nil
}

// Release subtracts size from the owner's ledger, flooring at zero so a
// double release cannot drive the counter negative.
func (s *QuotaService) Release(tx *gorm.DB, ownerID uuid.UUID, size int64) error {
	return tx.Model(&models.User{}).
		Where("id = ?", ownerID).
		Update("used_storage", gorm.Expr("CASE WHEN used_storage > ? THEN used_storage - ? ELSE 0 END", size, size)).
		Error
}

// ExceededMessage formats the quota error the way the product reports it.
func ExceededMessage(usedBytes int64) string {
	const gb = float64(1024 * 1024 * 1024)
	usedGB := float64(usedBytes) / gb
	remainingGB := float64(MaxStorageBytes-usedBytes) / gb
	if remainingGB < 0 {
		remainingGB = 0
	}
	return fmt.Sprintf("Storage quota exceeded. Used: %.2fGB / 10GB. Remaining: %.2fGB", usedGB, remainingGB)
}
