package request_models

type CreatePaymentRequest struct {
	PlanID       string `json:"plan_id" binding:"required,uuid"`
	BillingCycle string `json:"billing_cycle" binding:"required,oneof=MONTHLY ANNUAL"`
	Currency     string `json:"currency" binding:"required,len=3"`
	Provider     string `json:"provider" binding:"required"`
	VoucherCode  string `json:"voucher_code,omitempty"`
}

type PricingQuoteRequest struct {
	PlanID       string `json:"plan_id" binding:"required,uuid"`
	BillingCycle string `json:"billing_cycle" binding:"required,oneof=MONTHLY ANNUAL"`
	Currency     string `json:"currency" binding:"required,len=3"`
	VoucherCode  string `json:"voucher_code,omitempty"`
}

type ListPaymentsQuery struct {
	Page     int `form:"page,default=1" binding:"gte=1"`
	PageSize int `form:"page_size,default=20" binding:"gte=1,lte=100"`
}
