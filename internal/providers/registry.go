package providers

import (
	"bbpayment/internal/config"
	"bbpayment/internal/models/db_models"
	"bbpayment/pkg/utils"
	"fmt"
	"go.uber.org/zap"
)

// Registry resolves a provider tag to its normalizer and gateway. The tables are fixed at start-up.
type Registry struct {
	normalizers map[db_models.PaymentProvider]Normalizer
	gateways    map[db_models.PaymentProvider]Gateway
	toggles     map[db_models.PaymentProvider]config.ProviderToggle
	log         *zap.Logger
}

type ProviderInfo struct {
	Provider db_models.PaymentProvider `json:"provider"`
	Enabled  bool                      `json:"enabled"`
	Reason   string                    `json:"reason,omitempty"`
}

// NewRegistry fails when an enabled provider has no normalizer or no gateway.
func NewRegistry(cfg config.ProvidersConfig, normalizers map[db_models.PaymentProvider]Normalizer, gateways []Gateway, log *zap.Logger) (*Registry, error) {
	r := &Registry{
		normalizers: normalizers,
		gateways:    make(map[db_models.PaymentProvider]Gateway, len(gateways)),
		toggles:     make(map[db_models.PaymentProvider]config.ProviderToggle, len(db_models.AllProviders)),
		log:         log,
	}
	for _, g := range gateways {
		r.gateways[g.Provider()] = g
	}

	for _, p := range db_models.AllProviders {
		t := cfg.Toggle(string(p))
		r.toggles[p] = t
		if !t.Enabled {
			log.Info("payment provider disabled", zap.String("provider", string(p)), zap.String("reason", t.Reason))
			continue
		}
		if _, ok := r.normalizers[p]; !ok {
			return nil, fmt.Errorf("provider %s is enabled but has no normalizer", p)
		}
		if _, ok := r.gateways[p]; !ok {
			return nil, fmt.Errorf("provider %s is enabled but has no gateway", p)
		}
	}
	return r, nil
}

// Gateway returns the gateway for checkout-side calls; disabled providers fail fast.
func (r *Registry) Gateway(p db_models.PaymentProvider) (Gateway, error) {
	t, known := r.toggles[p]
	if !known {
		return nil, fmt.Errorf("%w: %s", utils.ErrUnsupportedProvider, p)
	}
	if !t.Enabled {
		return nil, &utils.UnavailableError{Provider: string(p), Reason: t.Reason}
	}
	return r.gateways[p], nil
}

// CallbackGateway also serves disabled providers that still have a gateway, so
// in-flight payments started before the switch-off can settle.
func (r *Registry) CallbackGateway(p db_models.PaymentProvider) (Gateway, error) {
	if g, ok := r.gateways[p]; ok {
		return g, nil
	}
	return r.Gateway(p)
}

// Normalize maps a raw token and logs the ones the provider table does not know.
func (r *Registry) Normalize(p db_models.PaymentProvider, token string) (Normalized, error) {
	n, ok := r.normalizers[p]
	if !ok {
		return Normalized{}, fmt.Errorf("%w: no normalizer for %s", utils.ErrUnsupportedProvider, p)
	}
	out := n.Normalize(token)
	if !out.Known {
		r.log.Warn("unrecognized provider status token, treating as FAILED",
			zap.String("provider", string(p)), zap.String("raw_token", token))
	}
	return out, nil
}

func (r *Registry) List() []ProviderInfo {
	out := make([]ProviderInfo, 0, len(db_models.AllProviders))
	for _, p := range db_models.AllProviders {
		t := r.toggles[p]
		out = append(out, ProviderInfo{Provider: p, Enabled: t.Enabled, Reason: t.Reason})
	}
	return out
}
