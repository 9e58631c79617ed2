package providers

import (
	"bbpayment/internal/models/db_models"
	"github.com/stretchr/testify/assert"
	"testing"
)

func TestNormalizersDocumentedTokens(t *testing.T) {
	cases := []struct {
		provider db_models.PaymentProvider
		token    string
		want     db_models.TransactionStatus
	}{
		{db_models.ProviderVNPay, "00", db_models.TxnStatusSucceeded},
		{db_models.ProviderVNPay, "07", db_models.TxnStatusSucceeded},
		{db_models.ProviderVNPay, "24", db_models.TxnStatusCancelled},
		{db_models.ProviderVNPay, "01", db_models.TxnStatusPending},
		{db_models.ProviderVNPay, "51", db_models.TxnStatusFailed},
		{db_models.ProviderMoMo, "0", db_models.TxnStatusSucceeded},
		{db_models.ProviderMoMo, "9000", db_models.TxnStatusSucceeded},
		{db_models.ProviderMoMo, "7000", db_models.TxnStatusPending},
		{db_models.ProviderMoMo, "1006", db_models.TxnStatusCancelled},
		{db_models.ProviderMoMo, "1005", db_models.TxnStatusFailed},
		{db_models.ProviderZaloPay, "1", db_models.TxnStatusSucceeded},
		{db_models.ProviderZaloPay, "2", db_models.TxnStatusFailed},
		{db_models.ProviderZaloPay, "3", db_models.TxnStatusPending},
		{db_models.ProviderZaloPay, "-54", db_models.TxnStatusCancelled},
		{db_models.ProviderStripe, "succeeded", db_models.TxnStatusSucceeded},
		{db_models.ProviderStripe, "requires_action", db_models.TxnStatusPending},
		{db_models.ProviderStripe, "payment_intent.payment_failed", db_models.TxnStatusFailed},
		{db_models.ProviderStripe, "Canceled", db_models.TxnStatusCancelled},
		{db_models.ProviderPayPal, "COMPLETED", db_models.TxnStatusSucceeded},
		{db_models.ProviderPayPal, "approved", db_models.TxnStatusPending},
		{db_models.ProviderPayPal, "PAYMENT.CAPTURE.DENIED", db_models.TxnStatusFailed},
		{db_models.ProviderPayPal, "CHECKOUT.ORDER.VOIDED", db_models.TxnStatusCancelled},
	}

	for _, tc := range cases {
		t.Run(string(tc.provider)+"/"+tc.token, func(t *testing.T) {
			got := Normalizers[tc.provider].Normalize(tc.token)
			assert.Equal(t, tc.want, got.Status)
			assert.True(t, got.Known)
			assert.NotEmpty(t, got.Message)
			assert.Equal(t, tc.token, got.Raw)
		})
	}
}

func TestNormalizersUnknownTokenFallsBackToFailed(t *testing.T) {
	for provider, n := range Normalizers {
		for _, token := range []string{"", "zzz", "-1", "00000000", "💥"} {
			got := n.Normalize(token)
			assert.Equal(t, db_models.TxnStatusFailed, got.Status, "%s %q", provider, token)
			assert.False(t, got.Known)
			assert.Equal(t, token, got.Raw)
		}
	}
}

func TestEveryProviderHasNormalizer(t *testing.T) {
	for _, p := range db_models.AllProviders {
		assert.Contains(t, Normalizers, p)
	}
}
