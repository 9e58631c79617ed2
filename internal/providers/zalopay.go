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
	"net/url"
	"strconv"
	"strings"
	"time"
)

type ZaloPayGateway struct {
	cfg config.ZaloPayConfig
	ttl time.Duration
	api apiClient
}

func NewZaloPayGateway(cfg *config.Config, hc *http.Client) *ZaloPayGateway {
	return &ZaloPayGateway{
		cfg: cfg.Providers.ZaloPay,
		ttl: cfg.PaymentTTL,
		api: apiClient{provider: string(db_models.ProviderZaloPay), hc: hc},
	}
}

func (g *ZaloPayGateway) Provider() db_models.PaymentProvider { return db_models.ProviderZaloPay }

func (g *ZaloPayGateway) SupportsCurrency(code string) bool { return code == "VND" }

// NewReference builds app_trans_id; ZaloPay requires the yymmdd prefix in Vietnam time.
func (g *ZaloPayGateway) NewReference(now time.Time) string {
	return now.In(utils.VNLocation()).Format("060102") + "_" + g.cfg.AppID + "_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:10]
}

type zalopayResponse struct {
	ReturnCode    int    `json:"return_code"`
	ReturnMessage string `json:"return_message"`
	SubReturnCode int    `json:"sub_return_code"`
	OrderURL      string `json:"order_url"`
	ZpTransToken  string `json:"zp_trans_token"`
	ZpTransID     int64  `json:"zp_trans_id"`
	RefundID      int64  `json:"refund_id"`
	Amount        int64  `json:"amount"`
	IsProcessing  bool   `json:"is_processing"`
}

func (g *ZaloPayGateway) CreateOrder(ctx context.Context, req OrderRequest) (*OrderResult, error) {
	if g.cfg.AppID == "" || g.cfg.Key1 == "" {
		return nil, utils.RejectedProviderError(string(g.Provider()), "create", errors.New("app credentials not configured"))
	}
	embed, _ := json.Marshal(map[string]string{"redirecturl": g.cfg.RedirectURL})

	form := url.Values{}
	form.Set("app_id", g.cfg.AppID)
	form.Set("app_user", req.UserID)
	form.Set("app_time", strconv.FormatInt(req.CreatedAt.UnixMilli(), 10))
	form.Set("amount", strconv.FormatInt(req.AmountMinor, 10))
	form.Set("app_trans_id", req.Reference)
	form.Set("embed_data", string(embed))
	form.Set("item", "[]")
	form.Set("description", req.Description)
	form.Set("bank_code", "")
	form.Set("callback_url", g.cfg.CallbackURL)
	form.Set("expire_duration_seconds", strconv.Itoa(int(g.ttl.Seconds())))
	form.Set("mac", hmacSHA256Hex(g.cfg.Key1, strings.Join([]string{
		form.Get("app_id"), form.Get("app_trans_id"), form.Get("app_user"), form.Get("amount"),
		form.Get("app_time"), form.Get("embed_data"), form.Get("item"),
	}, "|")))

	var resp zalopayResponse
	raw, err := g.api.postForm(ctx, "create", g.cfg.Endpoint+"/create", form, &resp)
	if err != nil {
		return nil, err
	}
	if resp.ReturnCode != 1 {
		return nil, utils.RejectedProviderError(string(g.Provider()), "create",
			fmt.Errorf("return_code %d/%d: %s", resp.ReturnCode, resp.SubReturnCode, resp.ReturnMessage))
	}
	return &OrderResult{ProviderTransactionID: req.Reference, PaymentURL: resp.OrderURL, Raw: raw}, nil
}

type zalopayCallback struct {
	Data string `json:"data"`
	Mac  string `json:"mac"`
	Type int    `json:"type"`
}

type zalopayCallbackData struct {
	AppID      json.Number `json:"app_id"`
	AppTransID string      `json:"app_trans_id"`
	AppUser    string      `json:"app_user"`
	Amount     int64       `json:"amount"`
	ZpTransID  json.Number `json:"zp_trans_id"`
	Channel    int         `json:"channel"`
	ServerTime int64       `json:"server_time"`
}

var zalopayChannels = map[int]string{
	36: "Visa/Master/JCB",
	37: "Bank account",
	38: "ZaloPay wallet",
	39: "ATM",
	41: "Visa/Master debit",
}

func (g *ZaloPayGateway) ParseCallback(_ context.Context, req CallbackRequest) (*CallbackData, error) {
	if req.Shape == ShapeReturn {
		return g.parseRedirect(req.Query)
	}

	var cb zalopayCallback
	if err := json.Unmarshal(req.Body, &cb); err != nil {
		return nil, fmt.Errorf("%w: %v", utils.ErrMalformedCallback, err)
	}
	if !keyedSignatureMatches(g.cfg.Key2, hmacSHA256Hex(g.cfg.Key2, cb.Data), cb.Mac) {
		return nil, utils.ErrInvalidSignature
	}
	var data zalopayCallbackData
	if err := json.Unmarshal([]byte(cb.Data), &data); err != nil || data.AppTransID == "" {
		return nil, fmt.Errorf("%w: undecodable data", utils.ErrMalformedCallback)
	}

	// ZaloPay only calls back for paid orders.
	return &CallbackData{
		ProviderTransactionID: data.AppTransID,
		ProviderPaymentID:     data.ZpTransID.String(),
		StatusToken:           "1",
		PaymentMethod:         zalopayChannels[data.Channel],
		AmountMinor:           data.Amount,
		Payload:               json.RawMessage(cb.Data),
	}, nil
}

func (g *ZaloPayGateway) parseRedirect(q url.Values) (*CallbackData, error) {
	expected := hmacSHA256Hex(g.cfg.Key2, strings.Join([]string{
		q.Get("appid"), q.Get("apptransid"), q.Get("pmcid"), q.Get("bankcode"),
		q.Get("amount"), q.Get("discountamount"), q.Get("status"),
	}, "|"))
	if !keyedSignatureMatches(g.cfg.Key2, expected, q.Get("checksum")) {
		return nil, utils.ErrInvalidSignature
	}
	if q.Get("apptransid") == "" || q.Get("status") == "" {
		return nil, fmt.Errorf("%w: missing apptransid or status", utils.ErrMalformedCallback)
	}
	amount, _ := strconv.ParseInt(q.Get("amount"), 10, 64)
	return &CallbackData{
		ProviderTransactionID: q.Get("apptransid"),
		StatusToken:           q.Get("status"),
		AmountMinor:           amount,
		Payload:               rawJSON(flatten(q)),
	}, nil
}

type zalopayAck struct {
	ReturnCode    int    `json:"return_code"`
	ReturnMessage string `json:"return_message"`
}

func (g *ZaloPayGateway) Acknowledge(outcome AckOutcome) Ack {
	switch outcome {
	case AckAccepted:
		return Ack{Status: http.StatusOK, Body: zalopayAck{1, "success"}}
	case AckDuplicate:
		return Ack{Status: http.StatusOK, Body: zalopayAck{2, "duplicate"}}
	case AckInvalidSignature:
		return Ack{Status: http.StatusOK, Body: zalopayAck{-1, "mac not equal"}}
	case AckRetry:
		// 0 asks ZaloPay to deliver the callback again.
		return Ack{Status: http.StatusOK, Body: zalopayAck{0, "retry"}}
	case AckNotFound:
		return Ack{Status: http.StatusOK, Body: zalopayAck{-1, "order not found"}}
	case AckAmountMismatch:
		return Ack{Status: http.StatusOK, Body: zalopayAck{-1, "amount mismatch"}}
	default:
		return Ack{Status: http.StatusOK, Body: zalopayAck{-1, "invalid request"}}
	}
}

func (g *ZaloPayGateway) Query(ctx context.Context, txn *db_models.PaymentTransaction) (*QueryResult, error) {
	form := url.Values{}
	form.Set("app_id", g.cfg.AppID)
	form.Set("app_trans_id", txn.ProviderTransactionID)
	form.Set("mac", hmacSHA256Hex(g.cfg.Key1, g.cfg.AppID+"|"+txn.ProviderTransactionID+"|"+g.cfg.Key1))

	var resp zalopayResponse
	raw, err := g.api.postForm(ctx, "query", g.cfg.Endpoint+"/query", form, &resp)
	if err != nil {
		return nil, err
	}
	token := strconv.Itoa(resp.ReturnCode)
	if resp.IsProcessing {
		token = "3"
	}
	var paymentID string
	if resp.ZpTransID != 0 {
		paymentID = strconv.FormatInt(resp.ZpTransID, 10)
	}
	return &QueryResult{StatusToken: token, ProviderPaymentID: paymentID, Raw: raw}, nil
}

func (g *ZaloPayGateway) Refund(ctx context.Context, txn *db_models.PaymentTransaction) (*RefundResult, error) {
	if txn.ProviderPaymentID == "" {
		return nil, utils.RejectedProviderError(string(g.Provider()), "refund", errors.New("missing zp_trans_id"))
	}
	now := time.Now()
	form := url.Values{}
	form.Set("m_refund_id", g.NewReference(now))
	form.Set("app_id", g.cfg.AppID)
	form.Set("zp_trans_id", txn.ProviderPaymentID)
	form.Set("amount", strconv.FormatInt(txn.AmountMinor, 10))
	form.Set("timestamp", strconv.FormatInt(now.UnixMilli(), 10))
	form.Set("description", "Refund "+txn.ProviderTransactionID)
	form.Set("mac", hmacSHA256Hex(g.cfg.Key1, strings.Join([]string{
		form.Get("app_id"), form.Get("zp_trans_id"), form.Get("amount"), form.Get("description"), form.Get("timestamp"),
	}, "|")))

	var resp zalopayResponse
	raw, err := g.api.postForm(ctx, "refund", g.cfg.Endpoint+"/refund", form, &resp)
	if err != nil {
		return nil, err
	}
	// 1 refunded, 3 still processing; both are accepted by ZaloPay.
	if resp.ReturnCode != 1 && resp.ReturnCode != 3 {
		return nil, utils.RejectedProviderError(string(g.Provider()), "refund",
			fmt.Errorf("return_code %d: %s", resp.ReturnCode, resp.ReturnMessage))
	}
	return &RefundResult{
		RefundID:    form.Get("m_refund_id"),
		Status:      strconv.Itoa(resp.ReturnCode),
		AmountMinor: txn.AmountMinor,
		Raw:         raw,
	}, nil
}
