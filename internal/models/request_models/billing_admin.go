package request_models

import (
	"github.com/shopspring/decimal"
	"time"
)

type VoucherRequest struct {
	Code           string          `json:"code" binding:"required,max=64"`
	Type           string          `json:"type" binding:"required,oneof=PERCENTAGE FIXED_AMOUNT"`
	Value          decimal.Decimal `json:"value"`
	UserSpecificID *string         `json:"user_specific_id,omitempty"`
	Permanent      bool            `json:"permanent"`
	StartAt        *time.Time      `json:"start_at,omitempty"`
	EndAt          *time.Time      `json:"end_at,omitempty"`
	MaxUsePerUser  int             `json:"max_use_per_user" binding:"gte=0"`
	Active         *bool           `json:"active,omitempty"`
}

type CampaignRequest struct {
	Name            string          `json:"name" binding:"required,max=128"`
	PlanID          string          `json:"plan_id" binding:"required,uuid"`
	DiscountPercent decimal.Decimal `json:"discount_percent"`
	StartAt         time.Time       `json:"start_at" binding:"required"`
	EndAt           time.Time       `json:"end_at" binding:"required"`
	Active          *bool           `json:"active,omitempty"`
}

type PlanRequest struct {
	Code                  string          `json:"code" binding:"required,max=64"`
	Name                  string          `json:"name" binding:"required,max=128"`
	Description           *string         `json:"description,omitempty"`
	MonthlyPrice          decimal.Decimal `json:"monthly_price"`
	Currency              string          `json:"currency" binding:"required,len=3"`
	AnnualDiscountPercent decimal.Decimal `json:"annual_discount_percent"`
	AnnualDiscountAmount  decimal.Decimal `json:"annual_discount_amount"`
	Features              []string        `json:"features,omitempty"`
}

type ResolveIssueRequest struct {
	Note string `json:"note" binding:"required,max=1000"`
}
