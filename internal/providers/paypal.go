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
	"github.com/shopspring/decimal"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
	"net/http"
	"net/url"
	"time"
)

var paypalCurrencies = map[string]int32{"USD": 2, "EUR": 2, "JPY": 0}

type PayPalGateway struct {
	cfg config.PayPalConfig
	api apiClient
}

// NewPayPalGateway authenticates every REST call with a client-credentials token;
// the token source caches and refreshes it.
func NewPayPalGateway(cfg *config.Config, hc *http.Client) *PayPalGateway {
	pc := cfg.Providers.PayPal
	cc := clientcredentials.Config{
		ClientID:     pc.ClientID,
		ClientSecret: pc.ClientSecret,
		TokenURL:     pc.BaseURL + "/v1/oauth2/token",
		AuthStyle:    oauth2.AuthStyleInHeader,
	}
	authed := cc.Client(context.WithValue(context.Background(), oauth2.HTTPClient, hc))
	authed.Timeout = hc.Timeout

	return &PayPalGateway{
		cfg: pc,
		api: apiClient{provider: string(db_models.ProviderPayPal), hc: authed},
	}
}

func (g *PayPalGateway) Provider() db_models.PaymentProvider { return db_models.ProviderPayPal }

func (g *PayPalGateway) SupportsCurrency(code string) bool {
	_, ok := paypalCurrencies[code]
	return ok
}

// NewReference is a placeholder until PayPal assigns the order id.
func (g *PayPalGateway) NewReference(time.Time) string { return "paypal_" + uuid.NewString() }

type paypalLink struct {
	Href string `json:"href"`
	Rel  string `json:"rel"`
}

type paypalAmount struct {
	CurrencyCode string `json:"currency_code"`
	Value        string `json:"value"`
}

type paypalCapture struct {
	ID     string        `json:"id"`
	Status string        `json:"status"`
	Amount *paypalAmount `json:"amount,omitempty"`
}

type paypalOrder struct {
	ID            string       `json:"id"`
	Status        string       `json:"status"`
	Links         []paypalLink `json:"links"`
	PurchaseUnits []struct {
		ReferenceID string `json:"reference_id"`
		CustomID    string `json:"custom_id"`
		Payments    struct {
			Captures []paypalCapture `json:"captures"`
		} `json:"payments"`
	} `json:"purchase_units"`
}

func (o *paypalOrder) capture() *paypalCapture {
	for _, pu := range o.PurchaseUnits {
		if len(pu.Payments.Captures) > 0 {
			return &pu.Payments.Captures[0]
		}
	}
	return nil
}

func (o *paypalOrder) approveURL() string {
	for _, l := range o.Links {
		if l.Rel == "approve" || l.Rel == "payer-action" {
			return l.Href
		}
	}
	return ""
}

func (g *PayPalGateway) CreateOrder(ctx context.Context, req OrderRequest) (*OrderResult, error) {
	if g.cfg.ClientID == "" || g.cfg.ClientSecret == "" {
		return nil, utils.RejectedProviderError(string(g.Provider()), "create", errors.New("client credentials not configured"))
	}
	body := map[string]any{
		"intent": "CAPTURE",
		"purchase_units": []map[string]any{{
			"reference_id": req.Reference,
			"custom_id":    req.TransactionID.String(),
			"description":  req.Description,
			"amount": paypalAmount{
				CurrencyCode: req.Currency,
				Value:        req.Amount.StringFixed(paypalCurrencies[req.Currency]),
			},
		}},
		"application_context": map[string]string{
			"return_url":  g.cfg.ReturnURL,
			"cancel_url":  g.cfg.CancelURL,
			"user_action": "PAY_NOW",
		},
	}

	var order paypalOrder
	raw, err := g.api.sendJSON(ctx, "create", http.MethodPost, g.cfg.BaseURL+"/v2/checkout/orders", body,
		map[string]string{"PayPal-Request-Id": req.TransactionID.String()}, &order)
	if err != nil {
		return nil, err
	}
	return &OrderResult{ProviderTransactionID: order.ID, PaymentURL: order.approveURL(), Raw: raw}, nil
}

func (g *PayPalGateway) getOrder(ctx context.Context, id string) (*paypalOrder, []byte, error) {
	var order paypalOrder
	raw, err := g.api.sendJSON(ctx, "get-order", http.MethodGet,
		g.cfg.BaseURL+"/v2/checkout/orders/"+url.PathEscape(id), nil, nil, &order)
	if err != nil {
		return nil, nil, err
	}
	return &order, raw, nil
}

func (g *PayPalGateway) captureOrder(ctx context.Context, id string) (*paypalOrder, []byte, error) {
	var order paypalOrder
	raw, err := g.api.sendJSON(ctx, "capture", http.MethodPost,
		g.cfg.BaseURL+"/v2/checkout/orders/"+url.PathEscape(id)+"/capture", map[string]any{},
		map[string]string{"PayPal-Request-Id": "capture-" + id}, &order)
	if err != nil {
		return nil, nil, err
	}
	return &order, raw, nil
}

// settle reads the order and captures it once the payer approved it.
func (g *PayPalGateway) settle(ctx context.Context, orderID string) (*CallbackData, error) {
	order, raw, err := g.getOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order.Status == "APPROVED" {
		if order, raw, err = g.captureOrder(ctx, orderID); err != nil {
			return nil, err
		}
	}
	data := &CallbackData{ProviderTransactionID: order.ID, StatusToken: order.Status, PaymentMethod: "paypal", Payload: raw}
	if c := order.capture(); c != nil {
		data.ProviderPaymentID = c.ID
		data.StatusToken = c.Status
	}
	return data, nil
}

type paypalWebhookEvent struct {
	ID        string          `json:"id"`
	EventType string          `json:"event_type"`
	Resource  json.RawMessage `json:"resource"`
}

type paypalResource struct {
	ID                string        `json:"id"`
	Status            string        `json:"status"`
	Amount            *paypalAmount `json:"amount,omitempty"`
	SupplementaryData struct {
		RelatedIDs struct {
			OrderID string `json:"order_id"`
		} `json:"related_ids"`
	} `json:"supplementary_data"`
}

func (g *PayPalGateway) ParseCallback(ctx context.Context, req CallbackRequest) (*CallbackData, error) {
	if req.Shape == ShapeReturn {
		orderID := req.Query.Get("token")
		if orderID == "" {
			return nil, fmt.Errorf("%w: missing token", utils.ErrMalformedCallback)
		}
		return g.settle(ctx, orderID)
	}

	if err := g.verifyWebhook(ctx, req); err != nil {
		return nil, err
	}
	var evt paypalWebhookEvent
	if err := json.Unmarshal(req.Body, &evt); err != nil {
		return nil, fmt.Errorf("%w: %v", utils.ErrMalformedCallback, err)
	}
	var res paypalResource
	if err := json.Unmarshal(evt.Resource, &res); err != nil {
		return nil, fmt.Errorf("%w: resource: %v", utils.ErrMalformedCallback, err)
	}

	switch evt.EventType {
	case "CHECKOUT.ORDER.APPROVED":
		return g.settle(ctx, res.ID)
	case "CHECKOUT.ORDER.VOIDED":
		return &CallbackData{ProviderTransactionID: res.ID, StatusToken: evt.EventType, Payload: req.Body}, nil
	case "PAYMENT.CAPTURE.COMPLETED", "PAYMENT.CAPTURE.DENIED", "PAYMENT.CAPTURE.DECLINED", "PAYMENT.CAPTURE.PENDING":
		orderID := res.SupplementaryData.RelatedIDs.OrderID
		if orderID == "" {
			return nil, fmt.Errorf("%w: capture without order id", utils.ErrMalformedCallback)
		}
		data := &CallbackData{
			ProviderTransactionID: orderID,
			ProviderPaymentID:     res.ID,
			StatusToken:           evt.EventType,
			PaymentMethod:         "paypal",
			Payload:               req.Body,
		}
		if res.Amount != nil {
			if v, err := decimal.NewFromString(res.Amount.Value); err == nil {
				data.AmountMinor = v.Shift(paypalCurrencies[res.Amount.CurrencyCode]).IntPart()
			}
		}
		return data, nil
	default:
		return &CallbackData{Ignored: true, StatusToken: evt.EventType}, nil
	}
}

func (g *PayPalGateway) verifyWebhook(ctx context.Context, req CallbackRequest) error {
	if g.cfg.WebhookID == "" {
		return fmt.Errorf("%w: webhook id not configured", utils.ErrInvalidSignature)
	}
	body := map[string]any{
		"auth_algo":         req.Header.Get("PAYPAL-AUTH-ALGO"),
		"cert_url":          req.Header.Get("PAYPAL-CERT-URL"),
		"transmission_id":   req.Header.Get("PAYPAL-TRANSMISSION-ID"),
		"transmission_sig":  req.Header.Get("PAYPAL-TRANSMISSION-SIG"),
		"transmission_time": req.Header.Get("PAYPAL-TRANSMISSION-TIME"),
		"webhook_id":        g.cfg.WebhookID,
		"webhook_event":     json.RawMessage(req.Body),
	}
	var resp struct {
		VerificationStatus string `json:"verification_status"`
	}
	if _, err := g.api.postJSON(ctx, "verify-webhook", g.cfg.BaseURL+"/v1/notifications/verify-webhook-signature", body, &resp); err != nil {
		return err
	}
	if resp.VerificationStatus != "SUCCESS" {
		return utils.ErrInvalidSignature
	}
	return nil
}

func (g *PayPalGateway) Acknowledge(outcome AckOutcome) Ack {
	switch outcome {
	case AckInvalidSignature, AckMalformed:
		return Ack{Status: http.StatusBadRequest}
	case AckRetry:
		return Ack{Status: http.StatusInternalServerError}
	default:
		return Ack{Status: http.StatusOK}
	}
}

func (g *PayPalGateway) Query(ctx context.Context, txn *db_models.PaymentTransaction) (*QueryResult, error) {
	order, raw, err := g.getOrder(ctx, txn.ProviderTransactionID)
	if err != nil {
		return nil, err
	}
	res := &QueryResult{StatusToken: order.Status, Raw: raw}
	if c := order.capture(); c != nil {
		res.StatusToken = c.Status
		res.ProviderPaymentID = c.ID
	}
	return res, nil
}

func (g *PayPalGateway) Refund(ctx context.Context, txn *db_models.PaymentTransaction) (*RefundResult, error) {
	if txn.ProviderPaymentID == "" {
		return nil, utils.RejectedProviderError(string(g.Provider()), "refund", errors.New("missing capture id"))
	}
	var resp struct {
		ID     string `json:"id"`
		Status string `json:"status"`
	}
	raw, err := g.api.sendJSON(ctx, "refund", http.MethodPost,
		g.cfg.BaseURL+"/v2/payments/captures/"+url.PathEscape(txn.ProviderPaymentID)+"/refund", map[string]any{},
		map[string]string{"PayPal-Request-Id": "refund-" + txn.ID.String()}, &resp)
	if err != nil {
		return nil, err
	}
	if resp.Status != "COMPLETED" && resp.Status != "PENDING" {
		return nil, utils.RejectedProviderError(string(g.Provider()), "refund", fmt.Errorf("refund %s %s", resp.ID, resp.Status))
	}
	return &RefundResult{RefundID: resp.ID, Status: resp.Status, AmountMinor: txn.AmountMinor, Raw: raw}, nil
}
