package db_models

import (
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

type SubscriptionPlan struct {
	BaseModel
	Code         string          `gorm:"size:64;uniqueIndex" json:"code"`
	Name         string          `gorm:"size:128" json:"name"`
	Description  *string         `json:"description,omitempty"`
	MonthlyPrice decimal.Decimal `gorm:"type:numeric(19,4)" json:"monthly_price"`
	Currency     string          `gorm:"size:3" json:"currency"`
	// Built-in annual discount; percent is applied first, then the flat amount.
	AnnualDiscountPercent decimal.Decimal `gorm:"type:numeric(7,4);default:0" json:"annual_discount_percent"`
	AnnualDiscountAmount  decimal.Decimal `gorm:"type:numeric(19,4);default:0" json:"annual_discount_amount"`
	IsActive              bool            `json:"is_active"`
	Features              datatypes.JSON  `json:"features,omitempty"`
}
