package db_models

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"time"
)

type VoucherType string

const (
	VoucherPercentage  VoucherType = "PERCENTAGE"
	VoucherFixedAmount VoucherType = "FIXED_AMOUNT"
)

type Voucher struct {
	BaseModel
	// Stored upper-case; lookups are case-insensitive.
	Code  string          `gorm:"size:64;uniqueIndex" json:"code"`
	Type  VoucherType     `gorm:"size:16" json:"type"`
	Value decimal.Decimal `gorm:"type:numeric(19,4)" json:"value"`
	// nil means any user.
	UserSpecificID *string    `gorm:"size:64;index" json:"user_specific_id,omitempty"`
	Permanent      bool       `json:"permanent"`
	StartAt        *time.Time `json:"start_at,omitempty"`
	EndAt          *time.Time `json:"end_at,omitempty"`
	MaxUsePerUser  int        `json:"max_use_per_user"`
	Active         bool       `json:"active"`
}

// InWindow reports whether now falls inside the voucher's validity window.
func (v Voucher) InWindow(now time.Time) bool {
	if v.Permanent {
		return true
	}
	if v.StartAt != nil && now.Before(*v.StartAt) {
		return false
	}
	if v.EndAt != nil && now.After(*v.EndAt) {
		return false
	}
	return true
}

// AllowsUser reports whether the voucher's scope covers userID.
func (v Voucher) AllowsUser(userID string) bool {
	return v.UserSpecificID == nil || *v.UserSpecificID == userID
}

type VoucherRedemption struct {
	BaseModel
	VoucherID uuid.UUID `gorm:"type:varchar(36);uniqueIndex:idx_voucher_user" json:"voucher_id"`
	UserID    string    `gorm:"size:64;uniqueIndex:idx_voucher_user" json:"user_id"`
	UsedCount int       `gorm:"default:0" json:"used_count"`
}
