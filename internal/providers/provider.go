package providers

import (
	"bbpayment/internal/models/db_models"
	"context"
	"encoding/json"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"net/http"
	"net/url"
	"time"
)

// Normalized is the provider-independent reading of a status token.
// Status is one of PENDING, SUCCEEDED, FAILED or CANCELLED.
type Normalized struct {
	Status  db_models.TransactionStatus
	Message string
	Raw     string
	Known   bool
}

type Normalizer interface {
	Normalize(token string) Normalized
}

type NormalizerFunc func(token string) Normalized

func (f NormalizerFunc) Normalize(token string) Normalized { return f(token) }

type CallbackShape string

const (
	ShapeReturn  CallbackShape = "return"
	ShapeIPN     CallbackShape = "ipn"
	ShapeWebhook CallbackShape = "webhook"
)

func ParseShape(s string) (CallbackShape, bool) {
	switch CallbackShape(s) {
	case ShapeReturn, ShapeIPN, ShapeWebhook:
		return CallbackShape(s), true
	}
	return "", false
}

// CallbackRequest is the raw inbound call-back, detached from the HTTP framework.
type CallbackRequest struct {
	Shape  CallbackShape
	Query  url.Values
	Form   url.Values
	Body   []byte
	Header http.Header
}

// CallbackData is what a verified call-back tells us.
type CallbackData struct {
	ProviderTransactionID string
	ProviderPaymentID     string
	StatusToken           string
	PaymentMethod         string
	// AmountMinor is 0 when the call-back does not carry an amount.
	AmountMinor int64
	Payload     json.RawMessage
	// Ignored marks authentic notifications that carry no payment outcome (e.g. unrelated webhook types).
	Ignored bool
}

type AckOutcome int

const (
	AckAccepted AckOutcome = iota
	AckDuplicate
	AckInvalidSignature
	AckNotFound
	AckAmountMismatch
	AckMalformed
	AckRetry
)

// Ack is the acknowledgement body a provider expects. A nil Body means an empty response.
type Ack struct {
	Status int
	Body   any
}

type OrderRequest struct {
	TransactionID uuid.UUID
	Reference     string
	Amount        decimal.Decimal
	AmountMinor   int64
	Currency      string
	Description   string
	ClientIP      string
	UserID        string
	UserEmail     string
	CreatedAt     time.Time
	ExpiresAt     time.Time
}

type OrderResult struct {
	// ProviderTransactionID differs from the requested reference when the provider assigns its own id.
	ProviderTransactionID string
	PaymentURL            string
	ClientSecret          string
	Raw                   json.RawMessage
}

type QueryResult struct {
	StatusToken       string
	ProviderPaymentID string
	Raw               json.RawMessage
}

type RefundResult struct {
	RefundID    string
	Status      string
	AmountMinor int64
	Raw         json.RawMessage
}

// Gateway is one payment provider's I/O surface. Implementations bound every
// network call by the configured provider timeout.
type Gateway interface {
	Provider() db_models.PaymentProvider
	SupportsCurrency(code string) bool
	NewReference(now time.Time) string
	CreateOrder(ctx context.Context, req OrderRequest) (*OrderResult, error)
	ParseCallback(ctx context.Context, req CallbackRequest) (*CallbackData, error)
	Acknowledge(outcome AckOutcome) Ack
	Query(ctx context.Context, txn *db_models.PaymentTransaction) (*QueryResult, error)
	Refund(ctx context.Context, txn *db_models.PaymentTransaction) (*RefundResult, error)
}

func rawJSON(v any) json.RawMessage {
	b, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	return b
}
