package db_models

import (
	"github.com/google/uuid"
	"time"
)

type UserSubscription struct {
	BaseModel
	UserID       string       `gorm:"size:64;index" json:"user_id"`
	UserEmail    string       `gorm:"size:255" json:"user_email,omitempty"`
	PlanID       uuid.UUID    `gorm:"type:varchar(36);index" json:"plan_id"`
	BillingCycle BillingCycle `gorm:"size:16" json:"billing_cycle"`
	Currency     string       `gorm:"size:3" json:"currency"`

	Active    bool `gorm:"index" json:"active"`
	AutoRenew bool `json:"auto_renew"`

	StartDate       time.Time  `json:"start_date"`
	EndDate         time.Time  `gorm:"index" json:"end_date"`
	LastPaymentDate *time.Time `json:"last_payment_date,omitempty"`
	NextPaymentDate *time.Time `gorm:"index" json:"next_payment_date,omitempty"`
	CancelledAt     *time.Time `json:"cancelled_at,omitempty"`

	PaymentProvider PaymentProvider `gorm:"size:16" json:"payment_provider"`
	PaymentMethod   string          `gorm:"size:128" json:"payment_method,omitempty"`

	// Next payment date an upcoming-renewal notice was already emitted for.
	RenewalNoticeFor *time.Time `json:"-"`
}
