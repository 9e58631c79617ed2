package services

import (
	"bbpayment/internal/config"
	"bbpayment/pkg/memcache"
	"context"
	"encoding/json"
	"fmt"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"
)

// TaxRateProvider resolves the tax percentage (0-100) that applies to a buyer.
type TaxRateProvider interface {
	RateFor(ctx context.Context, ipAddress string) (decimal.Decimal, error)
}

// StaticTaxRate always answers the same rate.
type StaticTaxRate decimal.Decimal

func (s StaticTaxRate) RateFor(context.Context, string) (decimal.Decimal, error) {
	return decimal.Decimal(s), nil
}

// TaxAPIClient asks an external lookup service keyed by client IP and caches answers.
// Lookup failures fall back to the default rate; tax resolution never blocks a checkout.
type TaxAPIClient struct {
	HTTP        *http.Client
	BaseURL     string
	DefaultRate decimal.Decimal
	Cache       mem.Store[decimal.Decimal]
	TTL         time.Duration
	log         *zap.Logger

	purgeMu   sync.Mutex
	lastPurge time.Time
}

func NewTaxRateProvider(cfg *config.Config, log *zap.Logger) TaxRateProvider {
	if cfg.Pricing.TaxAPIURL == "" {
		return StaticTaxRate(cfg.Pricing.DefaultTaxRate)
	}
	return &TaxAPIClient{
		HTTP:        &http.Client{Timeout: cfg.ProviderTimeout},
		BaseURL:     strings.TrimRight(cfg.Pricing.TaxAPIURL, "/"),
		DefaultRate: cfg.Pricing.DefaultTaxRate,
		Cache:       mem.NewTTLCache[decimal.Decimal](),
		TTL:         cfg.Pricing.TaxCacheTTL,
		log:         log,
	}
}

type taxLookupResponse struct {
	Rate decimal.Decimal `json:"rate"`
}

var hundred = decimal.NewFromInt(100)

func (t *TaxAPIClient) RateFor(ctx context.Context, ipAddress string) (decimal.Decimal, error) {
	if ipAddress == "" {
		return t.DefaultRate, nil
	}
	if rate, ok := t.Cache.Get(ipAddress); ok {
		return rate, nil
	}

	rate, err := t.lookup(ctx, ipAddress)
	if err != nil {
		t.log.Warn("tax lookup failed, using default rate",
			zap.String("ip", ipAddress), zap.String("default_rate", t.DefaultRate.String()), zap.Error(err))
		return t.DefaultRate, nil
	}
	t.remember(ipAddress, rate)
	return rate, nil
}

// remember caches rate for ipAddress and, at most once per TTL, sweeps expired entries so
// one-off client IPs do not pile up.
func (t *TaxAPIClient) remember(ipAddress string, rate decimal.Decimal) {
	t.Cache.Set(ipAddress, rate, t.TTL)

	t.purgeMu.Lock()
	due := time.Since(t.lastPurge) >= t.TTL
	if due {
		t.lastPurge = time.Now()
	}
	t.purgeMu.Unlock()
	if due {
		if n := t.Cache.Purge(); n > 0 {
			t.log.Debug("purged expired tax rates", zap.Int("count", n))
		}
	}
}

func (t *TaxAPIClient) lookup(ctx context.Context, ipAddress string) (decimal.Decimal, error) {
	u := t.BaseURL + "?ip=" + url.QueryEscape(ipAddress)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return decimal.Zero, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := t.HTTP.Do(req)
	if err != nil {
		return decimal.Zero, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return decimal.Zero, fmt.Errorf("tax api returned %d", resp.StatusCode)
	}

	var out taxLookupResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return decimal.Zero, fmt.Errorf("decode tax response: %w", err)
	}
	if out.Rate.IsNegative() || out.Rate.GreaterThan(hundred) {
		return decimal.Zero, fmt.Errorf("tax rate %s out of range", out.Rate)
	}
	return out.Rate, nil
}
