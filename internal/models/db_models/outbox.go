package db_models

import (
	"gorm.io/datatypes"
	"time"
)

// OutboxEvent is written in the same database transaction as the state change it describes
// and relayed to the event stream asynchronously.
type OutboxEvent struct {
	BaseModel
	Subject       string         `gorm:"size:128;index" json:"subject"`
	AggregateID   string         `gorm:"size:64;index" json:"aggregate_id"`
	Payload       datatypes.JSON `json:"payload"`
	Attempts      int            `gorm:"default:0" json:"attempts"`
	NextAttemptAt time.Time      `gorm:"index" json:"next_attempt_at"`
	PublishedAt   *time.Time     `gorm:"index" json:"published_at,omitempty"`
	Parked        bool           `gorm:"index;default:false" json:"parked"`
	LastError     string         `gorm:"type:text" json:"last_error,omitempty"`
}
