package providers

import (
	"bbpayment/internal/config"
	"bbpayment/pkg/utils"
	"context"
	"encoding/json"
	"errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"net/http"
	"net/http/httptest"
	"testing"
)

func newTestMoMo(endpoint string) *MoMoGateway {
	cfg := &config.Config{Providers: config.ProvidersConfig{MoMo: config.MoMoConfig{
		PartnerCode: "MOMOBB01",
		AccessKey:   "access",
		SecretKey:   "secret",
		Endpoint:    endpoint,
		IPNURL:      "https://shop.example/payments/momo/ipn",
		RedirectURL: "https://shop.example/payments/momo/return",
	}}}
	return NewMoMoGateway(cfg, http.DefaultClient)
}

func momoIPN(t *testing.T, resultCode int, secret string) []byte {
	raw := "accessKey=access&amount=250000&extraData=&message=Successful.&orderId=BB1&orderInfo=Premium" +
		"&orderType=momo_wallet&partnerCode=MOMOBB01&payType=qr&requestId=req-1&responseTime=1760000000000" +
		"&resultCode=" + itoa(resultCode) + "&transId=4088878653"
	body, err := json.Marshal(map[string]any{
		"partnerCode":  "MOMOBB01",
		"orderId":      "BB1",
		"requestId":    "req-1",
		"amount":       250000,
		"orderInfo":    "Premium",
		"orderType":    "momo_wallet",
		"transId":      4088878653,
		"resultCode":   resultCode,
		"message":      "Successful.",
		"payType":      "qr",
		"responseTime": 1760000000000,
		"extraData":    "",
		"signature":    hmacSHA256Hex(secret, raw),
	})
	require.NoError(t, err)
	return body
}

func itoa(i int) string {
	b, _ := json.Marshal(i)
	return string(b)
}

func TestMoMoParseIPN(t *testing.T) {
	g := newTestMoMo("")

	data, err := g.ParseCallback(context.Background(), CallbackRequest{Shape: ShapeIPN, Body: momoIPN(t, 0, "secret")})

	require.NoError(t, err)
	assert.Equal(t, "BB1", data.ProviderTransactionID)
	assert.Equal(t, "4088878653", data.ProviderPaymentID)
	assert.Equal(t, "0", data.StatusToken)
	assert.Equal(t, int64(250000), data.AmountMinor)
	assert.Equal(t, "qr", data.PaymentMethod)
}

func TestMoMoRejectsForgedIPN(t *testing.T) {
	g := newTestMoMo("")

	_, err := g.ParseCallback(context.Background(), CallbackRequest{Shape: ShapeIPN, Body: momoIPN(t, 0, "not-the-secret")})

	assert.True(t, errors.Is(err, utils.ErrInvalidSignature))
}

func TestMoMoAcknowledgeIsNoContent(t *testing.T) {
	g := newTestMoMo("")

	assert.Equal(t, Ack{Status: http.StatusNoContent}, g.Acknowledge(AckAccepted))
	assert.Equal(t, Ack{Status: http.StatusNoContent}, g.Acknowledge(AckDuplicate))
	assert.Equal(t, http.StatusBadRequest, g.Acknowledge(AckInvalidSignature).Status)
}

func TestMoMoRawSignatureSortsKeys(t *testing.T) {
	assert.Equal(t, "a=1&b=&c=3", momoRawSignature(map[string]string{"c": "3", "a": "1", "b": ""}))
}

func TestMoMoQuery(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/query", r.URL.Path)
		var body map[string]any
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "BB1", body["orderId"])
		assert.NotEmpty(t, body["signature"])
		_, _ = w.Write([]byte(`{"orderId":"BB1","resultCode":1006,"transId":0,"message":"denied"}`))
	}))
	defer srv.Close()

	res, err := newTestMoMo(srv.URL).Query(context.Background(), newPendingTxn("BB1"))

	require.NoError(t, err)
	assert.Equal(t, "1006", res.StatusToken)
	assert.Empty(t, res.ProviderPaymentID)
}

func TestMoMoWithoutSecretRejectsEveryIPN(t *testing.T) {
	cfg := &config.Config{Providers: config.ProvidersConfig{MoMo: config.MoMoConfig{PartnerCode: "MOMOBB01", AccessKey: "access"}}}
	g := NewMoMoGateway(cfg, http.DefaultClient)

	_, err := g.ParseCallback(context.Background(), CallbackRequest{Shape: ShapeIPN, Body: momoIPN(t, 0, "")})

	assert.True(t, errors.Is(err, utils.ErrInvalidSignature))
}
