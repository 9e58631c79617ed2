package providers

import (
	"bbpayment/internal/config"
	"bbpayment/internal/models/db_models"
	"bbpayment/pkg/utils"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"github.com/google/uuid"
	"github.com/stripe/stripe-go/v75"
	"github.com/stripe/stripe-go/v75/client"
	"github.com/stripe/stripe-go/v75/webhook"
	"net/http"
	"strings"
	"time"
)

var stripeCurrencies = map[string]bool{"USD": true, "EUR": true, "JPY": true, "VND": true}

type StripeGateway struct {
	cfg config.StripeConfig
	sc  *client.API
}

func NewStripeGateway(cfg *config.Config, hc *http.Client) *StripeGateway {
	return &StripeGateway{
		cfg: cfg.Providers.Stripe,
		sc:  client.New(cfg.Providers.Stripe.SecretKey, stripe.NewBackends(hc)),
	}
}

func (g *StripeGateway) Provider() db_models.PaymentProvider { return db_models.ProviderStripe }

func (g *StripeGateway) SupportsCurrency(code string) bool { return stripeCurrencies[code] }

// NewReference is a placeholder until Stripe assigns the PaymentIntent id.
func (g *StripeGateway) NewReference(time.Time) string { return "stripe_" + uuid.NewString() }

func (g *StripeGateway) wrap(op string, err error) error {
	var se *stripe.Error
	if errors.As(err, &se) {
		if se.HTTPStatusCode >= 500 || se.HTTPStatusCode == http.StatusTooManyRequests {
			return utils.TransientProviderError(string(g.Provider()), op, err)
		}
		return utils.RejectedProviderError(string(g.Provider()), op, err)
	}
	return utils.TransientProviderError(string(g.Provider()), op, err)
}

func (g *StripeGateway) CreateOrder(ctx context.Context, req OrderRequest) (*OrderResult, error) {
	if g.cfg.SecretKey == "" {
		return nil, utils.RejectedProviderError(string(g.Provider()), "create", errors.New("secret key not configured"))
	}
	params := &stripe.PaymentIntentParams{
		Amount:      stripe.Int64(req.AmountMinor),
		Currency:    stripe.String(strings.ToLower(req.Currency)),
		Description: stripe.String(req.Description),
		AutomaticPaymentMethods: &stripe.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled: stripe.Bool(true),
		},
	}
	if req.UserEmail != "" {
		params.ReceiptEmail = stripe.String(req.UserEmail)
	}
	params.Context = ctx
	params.SetIdempotencyKey(req.TransactionID.String())
	params.AddMetadata("transaction_id", req.TransactionID.String())
	params.AddMetadata("reference", req.Reference)
	params.AddMetadata("user_id", req.UserID)

	pi, err := g.sc.PaymentIntents.New(params)
	if err != nil {
		return nil, g.wrap("create", err)
	}
	return &OrderResult{
		ProviderTransactionID: pi.ID,
		ClientSecret:          pi.ClientSecret,
		Raw:                   rawJSON(map[string]any{"id": pi.ID, "status": pi.Status, "amount": pi.Amount}),
	}, nil
}

func (g *StripeGateway) ParseCallback(ctx context.Context, req CallbackRequest) (*CallbackData, error) {
	if req.Shape == ShapeReturn {
		return g.parseReturn(ctx, req)
	}

	if g.cfg.WebhookSecret == "" {
		return nil, fmt.Errorf("%w: webhook secret not configured", utils.ErrInvalidSignature)
	}
	event, err := webhook.ConstructEventWithOptions(
		req.Body,
		req.Header.Get("Stripe-Signature"),
		g.cfg.WebhookSecret,
		webhook.ConstructEventOptions{IgnoreAPIVersionMismatch: true},
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", utils.ErrInvalidSignature, err)
	}
	if !strings.HasPrefix(string(event.Type), "payment_intent.") || event.Data == nil {
		return &CallbackData{Ignored: true, StatusToken: string(event.Type)}, nil
	}

	var pi stripe.PaymentIntent
	if err := json.Unmarshal(event.Data.Raw, &pi); err != nil || pi.ID == "" {
		return nil, fmt.Errorf("%w: payment intent payload", utils.ErrMalformedCallback)
	}
	return g.fromIntent(&pi, string(event.Type), event.Data.Raw), nil
}

// parseReturn trusts nothing in the redirect query; it re-reads the intent from Stripe.
func (g *StripeGateway) parseReturn(ctx context.Context, req CallbackRequest) (*CallbackData, error) {
	id := req.Query.Get("payment_intent")
	secret := req.Query.Get("payment_intent_client_secret")
	if id == "" || secret == "" {
		return nil, fmt.Errorf("%w: missing payment_intent", utils.ErrMalformedCallback)
	}
	params := &stripe.PaymentIntentParams{}
	params.Context = ctx
	pi, err := g.sc.PaymentIntents.Get(id, params)
	if err != nil {
		return nil, g.wrap("retrieve", err)
	}
	if !signatureMatches(pi.ClientSecret, secret) {
		return nil, utils.ErrInvalidSignature
	}
	return g.fromIntent(pi, string(pi.Status), rawJSON(map[string]any{"id": pi.ID, "status": pi.Status})), nil
}

func (g *StripeGateway) fromIntent(pi *stripe.PaymentIntent, token string, raw json.RawMessage) *CallbackData {
	data := &CallbackData{
		ProviderTransactionID: pi.ID,
		StatusToken:           token,
		AmountMinor:           pi.Amount,
		Payload:               raw,
	}
	if pi.LatestCharge != nil {
		data.ProviderPaymentID = pi.LatestCharge.ID
	}
	if len(pi.PaymentMethodTypes) > 0 {
		data.PaymentMethod = pi.PaymentMethodTypes[0]
	}
	return data
}

func (g *StripeGateway) Acknowledge(outcome AckOutcome) Ack {
	switch outcome {
	case AckInvalidSignature, AckMalformed:
		return Ack{Status: http.StatusBadRequest, Body: map[string]any{"received": false}}
	case AckRetry:
		return Ack{Status: http.StatusInternalServerError, Body: map[string]any{"received": false}}
	default:
		return Ack{Status: http.StatusOK, Body: map[string]any{"received": true}}
	}
}

func (g *StripeGateway) Query(ctx context.Context, txn *db_models.PaymentTransaction) (*QueryResult, error) {
	params := &stripe.PaymentIntentParams{}
	params.Context = ctx
	pi, err := g.sc.PaymentIntents.Get(txn.ProviderTransactionID, params)
	if err != nil {
		return nil, g.wrap("query", err)
	}
	res := &QueryResult{
		StatusToken: string(pi.Status),
		Raw:         rawJSON(map[string]any{"id": pi.ID, "status": pi.Status, "amount": pi.Amount}),
	}
	if pi.LatestCharge != nil {
		res.ProviderPaymentID = pi.LatestCharge.ID
	}
	return res, nil
}

func (g *StripeGateway) Refund(ctx context.Context, txn *db_models.PaymentTransaction) (*RefundResult, error) {
	params := &stripe.RefundParams{PaymentIntent: stripe.String(txn.ProviderTransactionID)}
	params.Context = ctx
	params.SetIdempotencyKey("refund-" + txn.ID.String())
	params.AddMetadata("transaction_id", txn.ID.String())

	r, err := g.sc.Refunds.New(params)
	if err != nil {
		return nil, g.wrap("refund", err)
	}
	if r.Status == stripe.RefundStatusFailed || r.Status == stripe.RefundStatusCanceled {
		return nil, utils.RejectedProviderError(string(g.Provider()), "refund", fmt.Errorf("refund %s %s", r.ID, r.Status))
	}
	return &RefundResult{
		RefundID:    r.ID,
		Status:      string(r.Status),
		AmountMinor: r.Amount,
		Raw:         rawJSON(map[string]any{"id": r.ID, "status": r.Status, "amount": r.Amount}),
	}, nil
}
