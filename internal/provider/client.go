// Package provider implements the HTTP client for the external payment
// service.
package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/go-faster/errors"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/xenking/storefront/internal/domain/payment"
)

const defaultTimeout = 10 * time.Second

var _ payment.Provider = (*Client)(nil)

// Client talks to the payment provider's REST API.
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
}

// NewClient returns a Client for the given provider endpoint. A zero timeout
// falls back to the default.
func NewClient(baseURL, apiKey string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		http: &http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
	}
}

type intentResponse struct {
	ID           string `json:"id"`
	ClientSecret string `json:"client_secret"`
}

type apiError struct {
	Error struct {
		Message string `json:"message"`
	} `json:"error"`
}

// CreateIntent creates a payment intent for the amount in minor units.
func (c *Client) CreateIntent(ctx context.Context, amountMinor int64, currency string) (*payment.Intent, error) {
	form := url.Values{}
	form.Set("amount", strconv.FormatInt(amountMinor, 10))
	form.Set("currency", currency)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/v1/payment_intents", bytes.NewBufferString(form.Encode()))
	if err != nil {
		return nil, errors.Wrap(err, "build request")
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "create payment intent")
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, errors.Wrap(err, "read response")
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var apiErr apiError
		if json.Unmarshal(body, &apiErr) == nil && apiErr.Error.Message != "" {
			return nil, errors.Errorf("provider returned %d: %s", resp.StatusCode, apiErr.Error.Message)
		}
		return nil, errors.Errorf("provider returned %d", resp.StatusCode)
	}

	var ir intentResponse
	if err := json.Unmarshal(body, &ir); err != nil {
		return nil, errors.Wrap(err, "decode response")
	}
	if ir.ID == "" || ir.ClientSecret == "" {
		return nil, errors.New("provider response missing intent id or client secret")
	}
	return &payment.Intent{ProviderRef: ir.ID, ClientSecret: ir.ClientSecret}, nil
}
