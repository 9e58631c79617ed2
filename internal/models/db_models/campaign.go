package db_models

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"time"
)

type DiscountCampaign struct {
	BaseModel
	Name            string          `gorm:"size:128" json:"name"`
	PlanID          uuid.UUID       `gorm:"type:varchar(36);index" json:"plan_id"`
	DiscountPercent decimal.Decimal `gorm:"type:numeric(7,4)" json:"discount_percent"`
	StartAt         time.Time       `json:"start_at"`
	EndAt           time.Time       `json:"end_at"`
	Active          bool            `gorm:"index" json:"active"`
}

// AppliesAt reports whether the campaign is live at now (bounds inclusive).
func (c DiscountCampaign) AppliesAt(now time.Time) bool {
	return c.Active && !now.Before(c.StartAt) && !now.After(c.EndAt)
}
