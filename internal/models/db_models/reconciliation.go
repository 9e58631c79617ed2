package db_models

import (
	"github.com/google/uuid"
	"gorm.io/datatypes"
	"time"
)

// ReconciliationIssue records a provider outcome that arrived after the transaction
// was already resolved differently, e.g. a success callback on an AUTO_CANCELLED row.
type ReconciliationIssue struct {
	BaseModel
	TransactionID         uuid.UUID         `gorm:"type:varchar(36);index" json:"transaction_id"`
	Provider              PaymentProvider   `gorm:"size:16" json:"provider"`
	ProviderTransactionID string            `gorm:"size:128" json:"provider_transaction_id"`
	ReportedStatus        TransactionStatus `gorm:"size:20" json:"reported_status"`
	CurrentStatus         TransactionStatus `gorm:"size:20" json:"current_status"`
	RawPayload            datatypes.JSON    `json:"raw_payload,omitempty"`
	Resolved              bool              `gorm:"index;default:false" json:"resolved"`
	ResolvedAt            *time.Time        `json:"resolved_at,omitempty"`
	Note                  string            `gorm:"type:text" json:"note,omitempty"`
}
