package providers

import (
	"bbpayment/internal/models/db_models"
	"github.com/google/uuid"
	"time"
)

func newPendingTxn(ref string) *db_models.PaymentTransaction {
	txn := &db_models.PaymentTransaction{
		ProviderTransactionID: ref,
		AmountMinor:           250000,
		Currency:              "VND",
		Status:                db_models.TxnStatusPending,
	}
	txn.ID = uuid.New()
	txn.CreatedAt = time.Now().UnixMilli()
	return txn
}
