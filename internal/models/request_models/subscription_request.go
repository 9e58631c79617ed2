package request_models

type CancelSubscriptionRequest struct {
	// Immediate ends access now; otherwise the subscription runs to its end date without renewing.
	Immediate bool `json:"immediate"`
}

type AutoRenewRequest struct {
	AutoRenew *bool `json:"auto_renew" binding:"required"`
}
