package providers

import (
	"bbpayment/internal/config"
	"bbpayment/internal/models/db_models"
	"bbpayment/pkg/utils"
	"context"
	"errors"
	"fmt"
	"github.com/google/uuid"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"
)

const vnpayVersion = "2.1.0"

type VNPayGateway struct {
	cfg config.VNPayConfig
	api apiClient
}

func NewVNPayGateway(cfg *config.Config, hc *http.Client) *VNPayGateway {
	return &VNPayGateway{
		cfg: cfg.Providers.VNPay,
		api: apiClient{provider: string(db_models.ProviderVNPay), hc: hc},
	}
}

func (g *VNPayGateway) Provider() db_models.PaymentProvider { return db_models.ProviderVNPay }

func (g *VNPayGateway) SupportsCurrency(code string) bool { return code == "VND" }

func (g *VNPayGateway) NewReference(now time.Time) string {
	return now.In(utils.VNLocation()).Format("060102") + strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:14])
}

// vnpayHashData is the canonical string VNPay signs: vnp_* fields sorted by name,
// values URL-encoded, empty values and the hash fields themselves skipped.
func vnpayHashData(params url.Values) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		if !strings.HasPrefix(k, "vnp_") || k == "vnp_SecureHash" || k == "vnp_SecureHashType" {
			continue
		}
		if params.Get(k) == "" {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var sb strings.Builder
	for i, k := range keys {
		if i > 0 {
			sb.WriteByte('&')
		}
		sb.WriteString(k)
		sb.WriteByte('=')
		sb.WriteString(url.QueryEscape(params.Get(k)))
	}
	return sb.String()
}

// SignVNPay returns the query string (including vnp_SecureHash) for params.
func SignVNPay(params url.Values, secret string) string {
	data := vnpayHashData(params)
	return data + "&vnp_SecureHash=" + hmacSHA512Hex(secret, data)
}

func (g *VNPayGateway) CreateOrder(_ context.Context, req OrderRequest) (*OrderResult, error) {
	if g.cfg.TmnCode == "" || g.cfg.HashSecret == "" {
		return nil, utils.RejectedProviderError(string(g.Provider()), "create", errors.New("merchant credentials not configured"))
	}
	ip := req.ClientIP
	if ip == "" {
		ip = "127.0.0.1"
	}
	params := url.Values{}
	params.Set("vnp_Version", vnpayVersion)
	params.Set("vnp_Command", "pay")
	params.Set("vnp_TmnCode", g.cfg.TmnCode)
	params.Set("vnp_Amount", strconv.FormatInt(req.AmountMinor*100, 10))
	params.Set("vnp_CurrCode", "VND")
	params.Set("vnp_TxnRef", req.Reference)
	params.Set("vnp_OrderInfo", req.Description)
	params.Set("vnp_OrderType", "other")
	params.Set("vnp_Locale", "vn")
	params.Set("vnp_ReturnUrl", g.cfg.ReturnURL)
	params.Set("vnp_IpAddr", ip)
	params.Set("vnp_CreateDate", utils.FormatVNPayTime(req.CreatedAt))
	params.Set("vnp_ExpireDate", utils.FormatVNPayTime(req.ExpiresAt))

	return &OrderResult{
		ProviderTransactionID: req.Reference,
		PaymentURL:            g.cfg.PayURL + "?" + SignVNPay(params, g.cfg.HashSecret),
	}, nil
}

func (g *VNPayGateway) ParseCallback(_ context.Context, req CallbackRequest) (*CallbackData, error) {
	params := req.Query
	if len(params) == 0 {
		params = req.Form
	}
	got := params.Get("vnp_SecureHash")
	if !keyedSignatureMatches(g.cfg.HashSecret, hmacSHA512Hex(g.cfg.HashSecret, vnpayHashData(params)), got) {
		return nil, utils.ErrInvalidSignature
	}

	ref := params.Get("vnp_TxnRef")
	token := params.Get("vnp_ResponseCode")
	if ref == "" || token == "" {
		return nil, fmt.Errorf("%w: missing vnp_TxnRef or vnp_ResponseCode", utils.ErrMalformedCallback)
	}
	// A successful gateway response can still carry a non-final transaction status.
	if ts := params.Get("vnp_TransactionStatus"); token == "00" && ts != "" && ts != "00" {
		token = ts
	}

	var minor int64
	if raw := params.Get("vnp_Amount"); raw != "" {
		v, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: vnp_Amount %q", utils.ErrMalformedCallback, raw)
		}
		minor = v / 100
	}

	return &CallbackData{
		ProviderTransactionID: ref,
		ProviderPaymentID:     params.Get("vnp_TransactionNo"),
		StatusToken:           token,
		PaymentMethod:         vnpayPaymentMethod(params.Get("vnp_CardType"), params.Get("vnp_BankCode")),
		AmountMinor:           minor,
		Payload:               rawJSON(flatten(params)),
	}, nil
}

func vnpayPaymentMethod(cardType, bank string) string {
	switch cardType {
	case "":
		return ""
	case "ATM":
		return "Domestic card (" + bank + ")"
	case "QR", "VNPAYQR":
		return "VNPay QR (" + bank + ")"
	default:
		return cardType + " card (" + bank + ")"
	}
}

type vnpayAck struct {
	RspCode string `json:"RspCode"`
	Message string `json:"Message"`
}

func (g *VNPayGateway) Acknowledge(outcome AckOutcome) Ack {
	switch outcome {
	case AckAccepted:
		return Ack{Status: http.StatusOK, Body: vnpayAck{"00", "Confirm Success"}}
	case AckDuplicate:
		return Ack{Status: http.StatusOK, Body: vnpayAck{"02", "Order already confirmed"}}
	case AckInvalidSignature:
		return Ack{Status: http.StatusOK, Body: vnpayAck{"97", "Invalid Checksum"}}
	case AckNotFound:
		return Ack{Status: http.StatusOK, Body: vnpayAck{"01", "Order not found"}}
	case AckAmountMismatch:
		return Ack{Status: http.StatusOK, Body: vnpayAck{"04", "Invalid amount"}}
	default:
		return Ack{Status: http.StatusOK, Body: vnpayAck{"99", "Unknown error"}}
	}
}

func (g *VNPayGateway) Query(ctx context.Context, txn *db_models.PaymentTransaction) (*QueryResult, error) {
	now := time.Now()
	body := map[string]string{
		"vnp_RequestId":       vnpayRequestID(),
		"vnp_Version":         vnpayVersion,
		"vnp_Command":         "querydr",
		"vnp_TmnCode":         g.cfg.TmnCode,
		"vnp_TxnRef":          txn.ProviderTransactionID,
		"vnp_OrderInfo":       "Query transaction " + txn.ProviderTransactionID,
		"vnp_TransactionDate": utils.FormatVNPayTime(utils.FromUnixMillis(txn.CreatedAt)),
		"vnp_CreateDate":      utils.FormatVNPayTime(now),
		"vnp_IpAddr":          "127.0.0.1",
	}
	body["vnp_SecureHash"] = hmacSHA512Hex(g.cfg.HashSecret, strings.Join([]string{
		body["vnp_RequestId"], body["vnp_Version"], body["vnp_Command"], body["vnp_TmnCode"],
		body["vnp_TxnRef"], body["vnp_TransactionDate"], body["vnp_CreateDate"], body["vnp_IpAddr"], body["vnp_OrderInfo"],
	}, "|"))

	var resp map[string]any
	raw, err := g.api.postJSON(ctx, "query", g.cfg.APIURL, body, &resp)
	if err != nil {
		return nil, err
	}
	fields := stringify(resp)
	if fields["vnp_ResponseCode"] != "00" {
		return nil, utils.RejectedProviderError(string(g.Provider()), "query",
			fmt.Errorf("response code %s: %s", fields["vnp_ResponseCode"], fields["vnp_Message"]))
	}
	expected := hmacSHA512Hex(g.cfg.HashSecret, strings.Join([]string{
		fields["vnp_ResponseId"], fields["vnp_Command"], fields["vnp_ResponseCode"], fields["vnp_Message"],
		fields["vnp_TmnCode"], fields["vnp_TxnRef"], fields["vnp_Amount"], fields["vnp_BankCode"],
		fields["vnp_PayDate"], fields["vnp_TransactionNo"], fields["vnp_TransactionType"],
		fields["vnp_TransactionStatus"], fields["vnp_OrderInfo"], fields["vnp_PromotionCode"], fields["vnp_PromotionAmount"],
	}, "|"))
	if !keyedSignatureMatches(g.cfg.HashSecret, expected, fields["vnp_SecureHash"]) {
		return nil, utils.RejectedProviderError(string(g.Provider()), "query", utils.ErrInvalidSignature)
	}

	return &QueryResult{
		StatusToken:       fields["vnp_TransactionStatus"],
		ProviderPaymentID: fields["vnp_TransactionNo"],
		Raw:               raw,
	}, nil
}

func (g *VNPayGateway) Refund(ctx context.Context, txn *db_models.PaymentTransaction) (*RefundResult, error) {
	now := time.Now()
	body := map[string]string{
		"vnp_RequestId":       vnpayRequestID(),
		"vnp_Version":         vnpayVersion,
		"vnp_Command":         "refund",
		"vnp_TmnCode":         g.cfg.TmnCode,
		"vnp_TransactionType": "02",
		"vnp_TxnRef":          txn.ProviderTransactionID,
		"vnp_Amount":          strconv.FormatInt(txn.AmountMinor*100, 10),
		"vnp_OrderInfo":       "Refund transaction " + txn.ProviderTransactionID,
		"vnp_TransactionNo":   txn.ProviderPaymentID,
		"vnp_TransactionDate": utils.FormatVNPayTime(utils.FromUnixMillis(txn.CreatedAt)),
		"vnp_CreateBy":        "system",
		"vnp_CreateDate":      utils.FormatVNPayTime(now),
		"vnp_IpAddr":          "127.0.0.1",
	}
	body["vnp_SecureHash"] = hmacSHA512Hex(g.cfg.HashSecret, strings.Join([]string{
		body["vnp_RequestId"], body["vnp_Version"], body["vnp_Command"], body["vnp_TmnCode"],
		body["vnp_TransactionType"], body["vnp_TxnRef"], body["vnp_Amount"], body["vnp_TransactionNo"],
		body["vnp_TransactionDate"], body["vnp_CreateBy"], body["vnp_CreateDate"], body["vnp_IpAddr"], body["vnp_OrderInfo"],
	}, "|"))

	var resp map[string]any
	raw, err := g.api.postJSON(ctx, "refund", g.cfg.APIURL, body, &resp)
	if err != nil {
		return nil, err
	}
	fields := stringify(resp)
	if fields["vnp_ResponseCode"] != "00" {
		return nil, utils.RejectedProviderError(string(g.Provider()), "refund",
			fmt.Errorf("response code %s: %s", fields["vnp_ResponseCode"], fields["vnp_Message"]))
	}
	refundID := fields["vnp_ResponseId"]
	if refundID == "" {
		refundID = body["vnp_RequestId"]
	}
	return &RefundResult{RefundID: refundID, Status: fields["vnp_ResponseCode"], AmountMinor: txn.AmountMinor, Raw: raw}, nil
}

func vnpayRequestID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:32]
}

func flatten(v url.Values) map[string]string {
	out := make(map[string]string, len(v))
	for k := range v {
		out[k] = v.Get(k)
	}
	return out
}

func stringify(m map[string]any) map[string]string {
	out := make(map[string]string, len(m))
	for k, v := range m {
		switch t := v.(type) {
		case nil:
		case string:
			out[k] = t
		case float64:
			out[k] = strconv.FormatFloat(t, 'f', -1, 64)
		default:
			out[k] = fmt.Sprint(t)
		}
	}
	return out
}
