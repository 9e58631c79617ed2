package providers

import (
	"bbpayment/internal/config"
	"bbpayment/pkg/utils"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const maxResponseBytes = 1 << 20

// NewHTTPClient is shared by every gateway; its timeout bounds each provider call.
func NewHTTPClient(cfg *config.Config) *http.Client {
	return &http.Client{
		Timeout: cfg.ProviderTimeout,
		Transport: &http.Transport{
			Proxy:               http.ProxyFromEnvironment,
			DialContext:         (&net.Dialer{Timeout: 5 * time.Second}).DialContext,
			TLSHandshakeTimeout: 5 * time.Second,
			MaxIdleConnsPerHost: 10,
			IdleConnTimeout:     90 * time.Second,
		},
	}
}

type apiClient struct {
	provider string
	hc       *http.Client
}

func (a apiClient) postJSON(ctx context.Context, op, endpoint string, body, out any) ([]byte, error) {
	return a.sendJSON(ctx, op, http.MethodPost, endpoint, body, nil, out)
}

// sendJSON marshals body (when non-nil) and decodes the response into out.
func (a apiClient) sendJSON(ctx context.Context, op, method, endpoint string, body any, headers map[string]string, out any) ([]byte, error) {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	return a.do(op, req, out)
}

func (a apiClient) postForm(ctx context.Context, op, endpoint string, form url.Values, out any) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return a.do(op, req, out)
}

// do classifies failures: transport errors and 5xx are retryable, 4xx are rejections.
func (a apiClient) do(op string, req *http.Request, out any) ([]byte, error) {
	req.Header.Set("Accept", "application/json")
	resp, err := a.hc.Do(req)
	if err != nil {
		return nil, utils.TransientProviderError(a.provider, op, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, utils.TransientProviderError(a.provider, op, err)
	}
	if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
		return raw, utils.TransientProviderError(a.provider, op, fmt.Errorf("http %d", resp.StatusCode))
	}
	if resp.StatusCode >= 400 {
		return raw, utils.RejectedProviderError(a.provider, op, fmt.Errorf("http %d: %s", resp.StatusCode, truncate(raw, 256)))
	}
	if out != nil && len(raw) > 0 {
		if err := json.Unmarshal(raw, out); err != nil {
			return raw, utils.RejectedProviderError(a.provider, op, fmt.Errorf("decode response: %w", err))
		}
	}
	return raw, nil
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
