package config

import (
	"fmt"
	"gopkg.in/yaml.v3"
	"os"
	"strings"
)

// ProviderToggle is one registry entry: whether checkout may use the provider and why not.
type ProviderToggle struct {
	Enabled bool   `yaml:"enabled"`
	Reason  string `yaml:"reason"`
}

type VNPayConfig struct {
	TmnCode    string
	HashSecret string
	PayURL     string
	APIURL     string
	ReturnURL  string
}

type ZaloPayConfig struct {
	AppID       string
	Key1        string
	Key2        string
	Endpoint    string
	CallbackURL string
	RedirectURL string
}

type MoMoConfig struct {
	PartnerCode string
	AccessKey   string
	SecretKey   string
	Endpoint    string
	RedirectURL string
	IPNURL      string
}

type StripeConfig struct {
	SecretKey     string
	WebhookSecret string
}

type PayPalConfig struct {
	ClientID     string
	ClientSecret string
	BaseURL      string
	WebhookID    string
	ReturnURL    string
	CancelURL    string
}

type ProvidersConfig struct {
	Toggles map[string]ProviderToggle `yaml:"providers"`
	// strict is set when a registry file was loaded: unlisted providers are then disabled.
	strict bool

	VNPay   VNPayConfig   `yaml:"-"`
	ZaloPay ZaloPayConfig `yaml:"-"`
	MoMo    MoMoConfig    `yaml:"-"`
	Stripe  StripeConfig  `yaml:"-"`
	PayPal  PayPalConfig  `yaml:"-"`
}

// Toggle returns the registry entry for name. Providers missing from the
// registry are enabled only when no registry file was supplied.
func (p ProvidersConfig) Toggle(name string) ProviderToggle {
	if t, ok := p.Toggles[name]; ok {
		return t
	}
	if p.strict {
		return ProviderToggle{Enabled: false, Reason: "not listed in provider registry"}
	}
	return ProviderToggle{Enabled: true}
}

var providerNames = []string{"vnpay", "momo", "zalopay", "stripe", "paypal"}

// LoadProviders reads the optional YAML registry, applies PROVIDER_<NAME>_ENABLED /
// PROVIDER_<NAME>_REASON overrides and collects credentials from the environment.
func LoadProviders(path string) (ProvidersConfig, error) {
	var cfg ProvidersConfig
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("failed to read providers file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("failed to unmarshal providers file: %w", err)
		}
		cfg.strict = true
	}
	applyToggleOverrides(&cfg)

	cfg.VNPay = VNPayConfig{
		TmnCode:    os.Getenv("VNPAY_TMN_CODE"),
		HashSecret: os.Getenv("VNPAY_HASH_SECRET"),
		PayURL:     getEnv("VNPAY_PAY_URL", "https://sandbox.vnpayment.vn/paymentv2/vpcpay.html"),
		APIURL:     getEnv("VNPAY_API_URL", "https://sandbox.vnpayment.vn/merchant_webapi/api/transaction"),
		ReturnURL:  os.Getenv("VNPAY_RETURN_URL"),
	}
	cfg.ZaloPay = ZaloPayConfig{
		AppID:       os.Getenv("ZALOPAY_APP_ID"),
		Key1:        os.Getenv("ZALOPAY_KEY1"),
		Key2:        os.Getenv("ZALOPAY_KEY2"),
		Endpoint:    getEnv("ZALOPAY_ENDPOINT", "https://sb-openapi.zalopay.vn/v2"),
		CallbackURL: os.Getenv("ZALOPAY_CALLBACK_URL"),
		RedirectURL: os.Getenv("ZALOPAY_REDIRECT_URL"),
	}
	cfg.MoMo = MoMoConfig{
		PartnerCode: os.Getenv("MOMO_PARTNER_CODE"),
		AccessKey:   os.Getenv("MOMO_ACCESS_KEY"),
		SecretKey:   os.Getenv("MOMO_SECRET_KEY"),
		Endpoint:    getEnv("MOMO_ENDPOINT", "https://test-payment.momo.vn/v2/gateway/api"),
		RedirectURL: os.Getenv("MOMO_REDIRECT_URL"),
		IPNURL:      os.Getenv("MOMO_IPN_URL"),
	}
	cfg.Stripe = StripeConfig{
		SecretKey:     os.Getenv("STRIPE_SECRET_KEY"),
		WebhookSecret: os.Getenv("STRIPE_WEBHOOK_SECRET"),
	}
	cfg.PayPal = PayPalConfig{
		ClientID:     os.Getenv("PAYPAL_CLIENT_ID"),
		ClientSecret: os.Getenv("PAYPAL_CLIENT_SECRET"),
		BaseURL:      getEnv("PAYPAL_BASE_URL", "https://api-m.sandbox.paypal.com"),
		WebhookID:    os.Getenv("PAYPAL_WEBHOOK_ID"),
		ReturnURL:    os.Getenv("PAYPAL_RETURN_URL"),
		CancelURL:    os.Getenv("PAYPAL_CANCEL_URL"),
	}
	return cfg, nil
}

func applyToggleOverrides(cfg *ProvidersConfig) {
	for _, name := range providerNames {
		prefix := "PROVIDER_" + strings.ToUpper(name) + "_"
		_, hasEnabled := os.LookupEnv(prefix + "ENABLED")
		reason, hasReason := os.LookupEnv(prefix + "REASON")
		if !hasEnabled && !hasReason {
			continue
		}
		if cfg.Toggles == nil {
			cfg.Toggles = make(map[string]ProviderToggle)
		}
		t, ok := cfg.Toggles[name]
		if !ok {
			t = ProviderToggle{Enabled: true}
		}
		if hasEnabled {
			t.Enabled = getBool(prefix+"ENABLED", t.Enabled)
		}
		if hasReason {
			t.Reason = reason
		}
		cfg.Toggles[name] = t
	}
}
