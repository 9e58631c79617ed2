package response_models

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// DiscountLayer is one pricing step. Rate is a percentage and is zero for flat amounts.
type DiscountLayer struct {
	Rate   decimal.Decimal `json:"rate"`
	Amount decimal.Decimal `json:"amount"`
	Source string          `json:"source,omitempty"`
}

// PricingBreakdown is computed once per quote or checkout and never mutated afterwards.
// All amounts are in Currency, rounded to its minor unit.
type PricingBreakdown struct {
	PlanID       uuid.UUID       `json:"plan_id"`
	BillingCycle string          `json:"billing_cycle"`
	Currency     string          `json:"currency"`
	PlanCurrency string          `json:"plan_currency"`
	ExchangeRate decimal.Decimal `json:"exchange_rate"`

	Base             decimal.Decimal `json:"base"`
	CycleDiscount    DiscountLayer   `json:"cycle_discount"`
	CampaignDiscount DiscountLayer   `json:"campaign_discount"`
	VoucherDiscount  DiscountLayer   `json:"voucher_discount"`
	TotalDiscount    decimal.Decimal `json:"total_discount"`
	DiscountedPrice  decimal.Decimal `json:"discounted_price"`
	TaxRate          decimal.Decimal `json:"tax_rate"`
	Tax              decimal.Decimal `json:"tax"`
	FinalPrice       decimal.Decimal `json:"final_price"`
	FinalPriceMinor  int64           `json:"final_price_minor"`

	CampaignID  *uuid.UUID `json:"campaign_id,omitempty"`
	VoucherCode string     `json:"voucher_code,omitempty"`
	// VoucherNote explains why a supplied code gave no discount.
	VoucherNote string `json:"voucher_note,omitempty"`
}
