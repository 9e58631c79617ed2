package response_models

import (
	"bbpayment/internal/models/db_models"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"time"
)

type CreatePaymentResponse struct {
	TransactionID     uuid.UUID                   `json:"transaction_id"`
	Status            db_models.TransactionStatus `json:"status"`
	Provider          db_models.PaymentProvider   `json:"provider"`
	ProviderReference string                      `json:"provider_reference"`
	PaymentURL        string                      `json:"payment_url,omitempty"`
	ClientSecret      string                      `json:"client_secret,omitempty"`
	Amount            decimal.Decimal             `json:"amount"`
	Currency          string                      `json:"currency"`
	ExpiresAt         time.Time                   `json:"expires_at"`
	Breakdown         *PricingBreakdown           `json:"breakdown,omitempty"`
}

type RefundResponse struct {
	TransactionID uuid.UUID                   `json:"transaction_id"`
	RefundID      string                      `json:"refund_id"`
	Status        db_models.TransactionStatus `json:"status"`
	ProviderState string                      `json:"provider_status,omitempty"`
	Amount        decimal.Decimal             `json:"amount"`
	Currency      string                      `json:"currency"`
}

// QueryResponse is a passthrough of the provider's view; it never changes the stored status.
type QueryResponse struct {
	TransactionID     uuid.UUID                   `json:"transaction_id"`
	Provider          db_models.PaymentProvider   `json:"provider"`
	ProviderReference string                      `json:"provider_reference"`
	ProviderStatus    string                      `json:"provider_status"`
	NormalizedStatus  db_models.TransactionStatus `json:"normalized_status"`
	Message           string                      `json:"message,omitempty"`
	CurrentStatus     db_models.TransactionStatus `json:"current_status"`
}

type PaymentListResponse struct {
	Items    []db_models.PaymentTransaction `json:"items"`
	Total    int64                          `json:"total"`
	Page     int                            `json:"page"`
	PageSize int                            `json:"page_size"`
}

// CallbackResult is what the return-redirect endpoint shows the payer.
type CallbackResult struct {
	Verified          bool                        `json:"verified"`
	TransactionID     *uuid.UUID                  `json:"transaction_id,omitempty"`
	ProviderReference string                      `json:"provider_reference,omitempty"`
	Status            db_models.TransactionStatus `json:"status,omitempty"`
	Message           string                      `json:"message,omitempty"`
	Applied           bool                        `json:"applied"`
}
