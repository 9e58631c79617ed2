package response_models

import (
	"time"

	"github.com/google/uuid"
)

type TimeRange struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

type PlanSubscriptionCount struct {
	PlanID uuid.UUID `json:"plan_id"`
	Count  int64     `json:"count"`
}

type SubscriptionAnalytics struct {
	ActiveSubscriptions    int64                   `json:"active_subscriptions"`
	ActiveByPlan           []PlanSubscriptionCount `json:"active_by_plan"`
	NewSubscriptions       int64                   `json:"new_subscriptions"`
	CancelledSubscriptions int64                   `json:"cancelled_subscriptions"`
	UnresolvedIssues       int64                   `json:"unresolved_reconciliation_issues"`
	Window                 TimeRange               `json:"window"`
}
