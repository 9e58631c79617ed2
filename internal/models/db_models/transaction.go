package db_models

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
	"time"
)

type TransactionStatus string

const (
	TxnStatusPending       TransactionStatus = "PENDING"
	TxnStatusSucceeded     TransactionStatus = "SUCCEEDED"
	TxnStatusFailed        TransactionStatus = "FAILED"
	TxnStatusCancelled     TransactionStatus = "CANCELLED"
	TxnStatusAutoCancelled TransactionStatus = "AUTO_CANCELLED"
	TxnStatusRefunded      TransactionStatus = "REFUNDED"
)

// IsTerminal reports whether no callback-driven transition may leave s.
func (s TransactionStatus) IsTerminal() bool {
	switch s {
	case TxnStatusSucceeded, TxnStatusFailed, TxnStatusCancelled, TxnStatusAutoCancelled, TxnStatusRefunded:
		return true
	}
	return false
}

// CanTransitionTo encodes the state machine. PENDING resolves exactly once;
// the only edge out of a terminal state is an explicit refund of SUCCEEDED.
func (s TransactionStatus) CanTransitionTo(to TransactionStatus) bool {
	switch s {
	case TxnStatusPending:
		switch to {
		case TxnStatusSucceeded, TxnStatusFailed, TxnStatusCancelled, TxnStatusAutoCancelled:
			return true
		}
	case TxnStatusSucceeded:
		return to == TxnStatusRefunded
	}
	return false
}

type PaymentProvider string

const (
	ProviderVNPay   PaymentProvider = "vnpay"
	ProviderMoMo    PaymentProvider = "momo"
	ProviderZaloPay PaymentProvider = "zalopay"
	ProviderStripe  PaymentProvider = "stripe"
	ProviderPayPal  PaymentProvider = "paypal"
)

// AllProviders is the fixed provider set, in registry order.
var AllProviders = []PaymentProvider{ProviderVNPay, ProviderMoMo, ProviderZaloPay, ProviderStripe, ProviderPayPal}

func ParseProvider(s string) (PaymentProvider, bool) {
	for _, p := range AllProviders {
		if string(p) == s {
			return p, true
		}
	}
	return "", false
}

type BillingCycle string

const (
	CycleMonthly BillingCycle = "MONTHLY"
	CycleAnnual  BillingCycle = "ANNUAL"
)

// Advance returns t moved forward by one billing period.
func (c BillingCycle) Advance(t time.Time) time.Time {
	if c == CycleAnnual {
		return t.AddDate(1, 0, 0)
	}
	return t.AddDate(0, 1, 0)
}

type TransactionPurpose string

const (
	PurposeCheckout TransactionPurpose = "checkout"
	PurposeRenewal  TransactionPurpose = "renewal"
)

type PaymentTransaction struct {
	BaseModel

	// Reference we hand to the provider (vnp_TxnRef, app_trans_id, orderId, PaymentIntent id, PayPal order id).
	ProviderTransactionID string          `gorm:"size:128;uniqueIndex:idx_provider_ref" json:"provider_transaction_id"`
	Provider              PaymentProvider `gorm:"size:16;uniqueIndex:idx_provider_ref;index" json:"provider"`
	// Provider's own receipt id (vnp_TransactionNo, zp_trans_id, transId, charge / capture id), used for refunds.
	ProviderPaymentID string `gorm:"size:128" json:"provider_payment_id,omitempty"`

	UserID         string             `gorm:"size:64;index" json:"user_id"`
	UserEmail      string             `gorm:"size:255" json:"user_email,omitempty"`
	PlanID         uuid.UUID          `gorm:"type:varchar(36);index" json:"plan_id"`
	SubscriptionID *uuid.UUID         `gorm:"type:varchar(36);index" json:"subscription_id,omitempty"`
	BillingCycle   BillingCycle       `gorm:"size:16" json:"billing_cycle"`
	Purpose        TransactionPurpose `gorm:"size:16;default:checkout" json:"purpose"`
	VoucherCode    *string            `gorm:"size:64" json:"voucher_code,omitempty"`

	Amount      decimal.Decimal   `gorm:"type:numeric(19,4)" json:"amount"`
	AmountMinor int64             `json:"amount_minor"`
	Currency    string            `gorm:"size:3" json:"currency"`
	Status      TransactionStatus `gorm:"size:20;index" json:"status"`

	ResponseCode    string `gorm:"size:64" json:"response_code,omitempty"`
	ResponseMessage string `gorm:"size:255" json:"response_message,omitempty"`
	PaymentMethod   string `gorm:"size:128" json:"payment_method,omitempty"`
	PaymentURL      string `gorm:"type:text" json:"payment_url,omitempty"`

	ExpiresAt  time.Time  `gorm:"index" json:"expires_at"`
	SettledAt  *time.Time `json:"settled_at,omitempty"`
	RefundedAt *time.Time `json:"refunded_at,omitempty"`
	RefundID   string     `gorm:"size:128" json:"refund_id,omitempty"`

	// Set while a refund call to the provider is in flight.
	RefundRequestedAt *time.Time `json:"refund_requested_at,omitempty"`

	FraudFlag   bool   `gorm:"default:false" json:"fraud_flag"`
	FraudReason string `gorm:"size:255" json:"fraud_reason,omitempty"`

	// Raw provider payload of the last accepted callback and the pricing snapshot at checkout.
	ProviderPayload datatypes.JSON `json:"provider_payload,omitempty"`
	Breakdown       datatypes.JSON `json:"breakdown,omitempty"`
}
