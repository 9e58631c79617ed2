package providers

import (
	"bbpayment/internal/models/db_models"
	"strings"
)

type outcome struct {
	status  db_models.TransactionStatus
	message string
}

const (
	pending   = db_models.TxnStatusPending
	succeeded = db_models.TxnStatusSucceeded
	failed    = db_models.TxnStatusFailed
	cancelled = db_models.TxnStatusCancelled
)

var vnpayCodes = map[string]outcome{
	"00": {succeeded, "Transaction successful"},
	"01": {pending, "Transaction not completed"},
	"02": {failed, "Transaction error"},
	"04": {failed, "Transaction reversed"},
	"05": {pending, "VNPay is processing the refund"},
	"06": {pending, "Refund request sent to bank"},
	"07": {succeeded, "Money deducted, transaction suspected of fraud"},
	"09": {failed, "Card or account not registered for internet banking"},
	"10": {failed, "Card or account authentication failed more than 3 times"},
	"11": {failed, "Payment window expired"},
	"12": {failed, "Card or account is locked"},
	"13": {failed, "Wrong OTP"},
	"24": {cancelled, "Customer cancelled the transaction"},
	"51": {failed, "Insufficient balance"},
	"65": {failed, "Daily transaction limit exceeded"},
	"75": {failed, "Bank under maintenance"},
	"79": {failed, "Wrong payment password too many times"},
	"99": {failed, "Unknown error"},
}

var momoCodes = map[string]outcome{
	"0":    {succeeded, "Successful"},
	"9000": {succeeded, "Transaction authorized"},
	"1000": {pending, "Waiting for user confirmation"},
	"7000": {pending, "Transaction is being processed"},
	"7002": {pending, "Transaction is being processed by the provider"},
	"1001": {failed, "Insufficient funds"},
	"1002": {failed, "Rejected by issuer"},
	"1003": {cancelled, "Cancelled after authorization"},
	"1004": {failed, "Amount exceeds payment limit"},
	"1005": {failed, "Payment URL or QR code expired"},
	"1006": {cancelled, "User denied the payment"},
	"1007": {failed, "Account inactive"},
	"1017": {cancelled, "Cancelled by partner"},
	"1026": {failed, "Restricted by promotion rules"},
	"1080": {failed, "Refund attempt failed"},
	"1081": {failed, "Refund rejected"},
	"2019": {failed, "Invalid orderGroupId"},
	"4001": {failed, "Account restricted"},
	"4100": {failed, "User failed to log in"},
}

var zalopayCodes = map[string]outcome{
	"1":   {succeeded, "Payment successful"},
	"2":   {failed, "Payment failed"},
	"3":   {pending, "Order not paid or being processed"},
	"-49": {cancelled, "Order cancelled"},
	"-54": {cancelled, "Order expired"},
}

var stripeStatuses = map[string]outcome{
	"succeeded":                      {succeeded, "Payment succeeded"},
	"processing":                     {pending, "Payment processing"},
	"requires_payment_method":        {pending, "Awaiting payment method"},
	"requires_confirmation":          {pending, "Awaiting confirmation"},
	"requires_action":                {pending, "Customer action required"},
	"requires_capture":               {pending, "Awaiting capture"},
	"canceled":                       {cancelled, "Payment cancelled"},
	"payment_intent.succeeded":       {succeeded, "Payment succeeded"},
	"payment_intent.payment_failed":  {failed, "Payment failed"},
	"payment_intent.canceled":        {cancelled, "Payment cancelled"},
	"payment_intent.processing":      {pending, "Payment processing"},
	"payment_intent.requires_action": {pending, "Customer action required"},
}

var paypalStatuses = map[string]outcome{
	"COMPLETED":                 {succeeded, "Payment completed"},
	"CREATED":                   {pending, "Order created"},
	"SAVED":                     {pending, "Order saved"},
	"APPROVED":                  {pending, "Order approved, awaiting capture"},
	"PAYER_ACTION_REQUIRED":     {pending, "Payer action required"},
	"PENDING":                   {pending, "Capture pending"},
	"VOIDED":                    {cancelled, "Order voided"},
	"DECLINED":                  {failed, "Payment declined"},
	"FAILED":                    {failed, "Payment failed"},
	"PAYMENT.CAPTURE.COMPLETED": {succeeded, "Payment completed"},
	"PAYMENT.CAPTURE.DENIED":    {failed, "Payment denied"},
	"PAYMENT.CAPTURE.DECLINED":  {failed, "Payment declined"},
	"PAYMENT.CAPTURE.PENDING":   {pending, "Capture pending"},
	"CHECKOUT.ORDER.APPROVED":   {pending, "Order approved, awaiting capture"},
	"CHECKOUT.ORDER.VOIDED":     {cancelled, "Order voided"},
}

func tableNormalizer(table map[string]outcome, fold func(string) string) NormalizerFunc {
	return func(token string) Normalized {
		key := fold(strings.TrimSpace(token))
		if o, ok := table[key]; ok {
			return Normalized{Status: o.status, Message: o.message, Raw: token, Known: true}
		}
		return Normalized{Status: failed, Message: "Unrecognized provider status " + token, Raw: token}
	}
}

func identity(s string) string { return s }

var (
	VNPayNormalizer   = tableNormalizer(vnpayCodes, identity)
	MoMoNormalizer    = tableNormalizer(momoCodes, identity)
	ZaloPayNormalizer = tableNormalizer(zalopayCodes, identity)
	StripeNormalizer  = tableNormalizer(stripeStatuses, strings.ToLower)
	PayPalNormalizer  = tableNormalizer(paypalStatuses, strings.ToUpper)
)

// Normalizers is the static provider to normalizer table consulted at start-up.
var Normalizers = map[db_models.PaymentProvider]Normalizer{
	db_models.ProviderVNPay:   VNPayNormalizer,
	db_models.ProviderMoMo:    MoMoNormalizer,
	db_models.ProviderZaloPay: ZaloPayNormalizer,
	db_models.ProviderStripe:  StripeNormalizer,
	db_models.ProviderPayPal:  PayPalNormalizer,
}
