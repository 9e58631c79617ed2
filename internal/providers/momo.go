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
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"
)

type MoMoGateway struct {
	cfg config.MoMoConfig
	api apiClient
}

func NewMoMoGateway(cfg *config.Config, hc *http.Client) *MoMoGateway {
	return &MoMoGateway{
		cfg: cfg.Providers.MoMo,
		api: apiClient{provider: string(db_models.ProviderMoMo), hc: hc},
	}
}

func (g *MoMoGateway) Provider() db_models.PaymentProvider { return db_models.ProviderMoMo }

func (g *MoMoGateway) SupportsCurrency(code string) bool { return code == "VND" }

func (g *MoMoGateway) NewReference(now time.Time) string {
	return "BB" + strconv.FormatInt(now.UnixMilli(), 10) + strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
}

// momoRawSignature joins fields as key=value pairs in key order.
func momoRawSignature(fields map[string]string) string {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = k + "=" + fields[k]
	}
	return strings.Join(parts, "&")
}

func (g *MoMoGateway) sign(fields map[string]string) string {
	fields["accessKey"] = g.cfg.AccessKey
	return hmacSHA256Hex(g.cfg.SecretKey, momoRawSignature(fields))
}

type momoResponse struct {
	PartnerCode  string `json:"partnerCode"`
	OrderID      string `json:"orderId"`
	RequestID    string `json:"requestId"`
	Amount       int64  `json:"amount"`
	TransID      int64  `json:"transId"`
	ResultCode   int    `json:"resultCode"`
	Message      string `json:"message"`
	PayURL       string `json:"payUrl"`
	ResponseTime int64  `json:"responseTime"`
}

func (g *MoMoGateway) CreateOrder(ctx context.Context, req OrderRequest) (*OrderResult, error) {
	if g.cfg.PartnerCode == "" || g.cfg.SecretKey == "" {
		return nil, utils.RejectedProviderError(string(g.Provider()), "create", errors.New("partner credentials not configured"))
	}
	requestID := uuid.NewString()
	amount := strconv.FormatInt(req.AmountMinor, 10)
	signature := g.sign(map[string]string{
		"amount":      amount,
		"extraData":   "",
		"ipnUrl":      g.cfg.IPNURL,
		"orderId":     req.Reference,
		"orderInfo":   req.Description,
		"partnerCode": g.cfg.PartnerCode,
		"redirectUrl": g.cfg.RedirectURL,
		"requestId":   requestID,
		"requestType": "captureWallet",
	})
	body := map[string]any{
		"partnerCode": g.cfg.PartnerCode,
		"requestId":   requestID,
		"amount":      req.AmountMinor,
		"orderId":     req.Reference,
		"orderInfo":   req.Description,
		"redirectUrl": g.cfg.RedirectURL,
		"ipnUrl":      g.cfg.IPNURL,
		"requestType": "captureWallet",
		"extraData":   "",
		"lang":        "vi",
		"signature":   signature,
	}

	var resp momoResponse
	raw, err := g.api.postJSON(ctx, "create", g.cfg.Endpoint+"/create", body, &resp)
	if err != nil {
		return nil, err
	}
	if resp.ResultCode != 0 {
		return nil, utils.RejectedProviderError(string(g.Provider()), "create",
			fmt.Errorf("resultCode %d: %s", resp.ResultCode, resp.Message))
	}
	return &OrderResult{ProviderTransactionID: req.Reference, PaymentURL: resp.PayURL, Raw: raw}, nil
}

var momoCallbackFields = []string{
	"amount", "extraData", "message", "orderId", "orderInfo", "orderType",
	"partnerCode", "payType", "requestId", "responseTime", "resultCode", "transId",
}

func (g *MoMoGateway) ParseCallback(_ context.Context, req CallbackRequest) (*CallbackData, error) {
	fields := flatten(req.Query)
	if req.Shape != ShapeReturn {
		var body map[string]any
		if err := json.Unmarshal(req.Body, &body); err != nil {
			return nil, fmt.Errorf("%w: %v", utils.ErrMalformedCallback, err)
		}
		fields = stringify(body)
	}

	signed := make(map[string]string, len(momoCallbackFields))
	for _, k := range momoCallbackFields {
		signed[k] = fields[k]
	}
	if !keyedSignatureMatches(g.cfg.SecretKey, g.sign(signed), fields["signature"]) {
		return nil, utils.ErrInvalidSignature
	}
	if fields["orderId"] == "" || fields["resultCode"] == "" {
		return nil, fmt.Errorf("%w: missing orderId or resultCode", utils.ErrMalformedCallback)
	}

	amount, _ := strconv.ParseInt(fields["amount"], 10, 64)
	return &CallbackData{
		ProviderTransactionID: fields["orderId"],
		ProviderPaymentID:     fields["transId"],
		StatusToken:           fields["resultCode"],
		PaymentMethod:         fields["payType"],
		AmountMinor:           amount,
		Payload:               rawJSON(fields),
	}, nil
}

func (g *MoMoGateway) Acknowledge(outcome AckOutcome) Ack {
	switch outcome {
	case AckInvalidSignature, AckMalformed:
		return Ack{Status: http.StatusBadRequest}
	case AckRetry:
		return Ack{Status: http.StatusInternalServerError}
	default:
		return Ack{Status: http.StatusNoContent}
	}
}

func (g *MoMoGateway) Query(ctx context.Context, txn *db_models.PaymentTransaction) (*QueryResult, error) {
	requestID := uuid.NewString()
	body := map[string]any{
		"partnerCode": g.cfg.PartnerCode,
		"requestId":   requestID,
		"orderId":     txn.ProviderTransactionID,
		"lang":        "vi",
		"signature": g.sign(map[string]string{
			"orderId":     txn.ProviderTransactionID,
			"partnerCode": g.cfg.PartnerCode,
			"requestId":   requestID,
		}),
	}
	var resp momoResponse
	raw, err := g.api.postJSON(ctx, "query", g.cfg.Endpoint+"/query", body, &resp)
	if err != nil {
		return nil, err
	}
	var paymentID string
	if resp.TransID != 0 {
		paymentID = strconv.FormatInt(resp.TransID, 10)
	}
	return &QueryResult{StatusToken: strconv.Itoa(resp.ResultCode), ProviderPaymentID: paymentID, Raw: raw}, nil
}

func (g *MoMoGateway) Refund(ctx context.Context, txn *db_models.PaymentTransaction) (*RefundResult, error) {
	if txn.ProviderPaymentID == "" {
		return nil, utils.RejectedProviderError(string(g.Provider()), "refund", errors.New("missing transId"))
	}
	requestID := uuid.NewString()
	orderID := g.NewReference(time.Now())
	amount := strconv.FormatInt(txn.AmountMinor, 10)
	description := "Refund " + txn.ProviderTransactionID
	signature := g.sign(map[string]string{
		"amount":      amount,
		"description": description,
		"orderId":     orderID,
		"partnerCode": g.cfg.PartnerCode,
		"requestId":   requestID,
		"transId":     txn.ProviderPaymentID,
	})
	transID, _ := strconv.ParseInt(txn.ProviderPaymentID, 10, 64)
	body := map[string]any{
		"partnerCode": g.cfg.PartnerCode,
		"orderId":     orderID,
		"requestId":   requestID,
		"amount":      txn.AmountMinor,
		"transId":     transID,
		"lang":        "vi",
		"description": description,
		"signature":   signature,
	}

	var resp momoResponse
	raw, err := g.api.postJSON(ctx, "refund", g.cfg.Endpoint+"/refund", body, &resp)
	if err != nil {
		return nil, err
	}
	if resp.ResultCode != 0 {
		return nil, utils.RejectedProviderError(string(g.Provider()), "refund",
			fmt.Errorf("resultCode %d: %s", resp.ResultCode, resp.Message))
	}
	return &RefundResult{RefundID: orderID, Status: "0", AmountMinor: resp.Amount, Raw: raw}, nil
}
