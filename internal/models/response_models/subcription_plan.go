package response_models

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"time"
)

type SubscriptionPlan struct {
	ID                    uuid.UUID       `json:"id"`
	Code                  string          `json:"code"`
	Name                  string          `json:"name"`
	Description           *string         `json:"description,omitempty"`
	MonthlyPrice          decimal.Decimal `json:"monthly_price"`
	Currency              string          `json:"currency"`
	AnnualDiscountPercent decimal.Decimal `json:"annual_discount_percent"`
	AnnualDiscountAmount  decimal.Decimal `json:"annual_discount_amount"`
	IsActive              bool            `json:"is_active"`
	Features              []string        `json:"features,omitempty"`
}

type SubscriptionStatusResponse struct {
	ID              uuid.UUID  `json:"id"`
	PlanID          uuid.UUID  `json:"plan_id"`
	BillingCycle    string     `json:"billing_cycle"`
	Active          bool       `json:"active"`
	AutoRenew       bool       `json:"auto_renew"`
	StartDate       time.Time  `json:"start_date"`
	EndDate         time.Time  `json:"end_date"`
	LastPaymentDate *time.Time `json:"last_payment_date,omitempty"`
	NextPaymentDate *time.Time `json:"next_payment_date,omitempty"`
	CancelledAt     *time.Time `json:"cancelled_at,omitempty"`
	PaymentProvider string     `json:"payment_provider"`
	PaymentMethod   string     `json:"payment_method,omitempty"`
}

type VoucherCheckResponse struct {
	Code   string `json:"code"`
	Usable bool   `json:"usable"`
	// Reason is user-facing and empty when the voucher is usable.
	Reason        string          `json:"reason,omitempty"`
	Type          string          `json:"type,omitempty"`
	Value         decimal.Decimal `json:"value"`
	RemainingUses *int            `json:"remaining_uses,omitempty"`
}
