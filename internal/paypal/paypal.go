// Package paypal is a minimal client for the PayPal Orders v2 API:
// client-credentials auth, order creation, capture, and order lookup.
package paypal

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/sethvargo/go-retry"
)

const (
	LiveBaseURL    = "https://api-m.paypal.com"
	SandboxBaseURL = "https://api-m.sandbox.paypal.com"
)

type Config struct {
	ClientID     string
	ClientSecret string
	// BaseURL selects the live or sandbox environment.
	BaseURL   string
	BrandName string
}

type Client struct {
	cfg        Config
	httpClient *http.Client

	mu          sync.Mutex
	accessToken string
	tokenExpiry time.Time
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

func NewClient(cfg Config, opts ...Option) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = LiveBaseURL
	}
	cfg.ClientID = strings.TrimSpace(cfg.ClientID)
	cfg.ClientSecret = strings.TrimSpace(cfg.ClientSecret)
	c := &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Configured returns true if API credentials are set.
func (c *Client) Configured() bool {
	return c.cfg.ClientID != "" && c.cfg.ClientSecret != ""
}

// Order is the result of order creation.
type Order struct {
	OrderID     string
	ApprovalURL string
}

// Capture is the result of capturing an approved order. OrderID is the id
// the provider reports for the capture, which callers must verify against
// the order they asked to capture.
type Capture struct {
	OrderID   string
	CaptureID string
	Status    string
	PayerID   string
	Raw       json.RawMessage
}

// OrderDetails is the provider-side view of an order's lifecycle.
type OrderDetails struct {
	OrderID string
	Status  string
}

// token returns a cached OAuth access token, fetching a fresh one when the
// cache is empty or about to expire. Fetches retry with backoff since the
// token endpoint is the first network hop of every payment operation.
func (c *Client) token(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.accessToken != "" && time.Now().Before(c.tokenExpiry) {
		return c.accessToken, nil
	}

	backoff := retry.WithMaxRetries(3, retry.NewExponential(500*time.Millisecond))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost,
			c.cfg.BaseURL+"/v1/oauth2/token", strings.NewReader("grant_type=client_credentials"))
		if err != nil {
			return err
		}
		req.SetBasicAuth(c.cfg.ClientID, c.cfg.ClientSecret)
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		req.Header.Set("Accept", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return retry.RetryableError(err)
		}
		defer resp.Body.Close()

		body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		if err != nil {
			return retry.RetryableError(err)
		}
		if resp.StatusCode >= 500 {
			return retry.RetryableError(fmt.Errorf("paypal auth: status %d", resp.StatusCode))
		}
		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("paypal auth: status %d: %s", resp.StatusCode, body)
		}

		var auth struct {
			AccessToken string `json:"access_token"`
			ExpiresIn   int64  `json:"expires_in"`
		}
		if err := json.Unmarshal(body, &auth); err != nil {
			return fmt.Errorf("paypal auth: decode: %w", err)
		}
		if auth.AccessToken == "" {
			return fmt.Errorf("paypal auth: empty access token")
		}

		c.accessToken = auth.AccessToken
		c.tokenExpiry = time.Now().Add(time.Duration(auth.ExpiresIn)*time.Second - time.Minute)
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("fetch paypal token: %w", err)
	}
	return c.accessToken, nil
}

func (c *Client) do(ctx context.Context, method, path string, payload any) (int, []byte, error) {
	token, err := c.token(ctx)
	if err != nil {
		return 0, nil, err
	}

	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return 0, nil, fmt.Errorf("marshal request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.cfg.BaseURL+path, body)
	if err != nil {
		return 0, nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("paypal request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return resp.StatusCode, nil, fmt.Errorf("read response: %w", err)
	}
	return resp.StatusCode, respBody, nil
}

// CreateOrder creates a CAPTURE-intent order and returns the provider order
// id and the buyer approval URL. It reports what the provider returned
// without validating completeness; callers decide how to treat gaps.
func (c *Client) CreateOrder(ctx context.Context, amountCents int64, currency, description, returnURL, cancelURL string) (*Order, error) {
	payload := map[string]any{
		"intent": "CAPTURE",
		"purchase_units": []map[string]any{{
			"amount": map[string]string{
				"currency_code": currency,
				"value":         formatAmount(amountCents),
			},
			"description": description,
		}},
		"application_context": map[string]string{
			"return_url":  returnURL,
			"cancel_url":  cancelURL,
			"brand_name":  c.cfg.BrandName,
			"user_action": "PAY_NOW",
		},
	}

	status, body, err := c.do(ctx, http.MethodPost, "/v2/checkout/orders", payload)
	if err != nil {
		return nil, err
	}
	if status != http.StatusCreated && status != http.StatusOK {
		return nil, fmt.Errorf("create order: status %d: %s", status, body)
	}

	var order struct {
		ID    string `json:"id"`
		Links []struct {
			Rel  string `json:"rel"`
			Href string `json:"href"`
		} `json:"links"`
	}
	if err := json.Unmarshal(body, &order); err != nil {
		return nil, fmt.Errorf("decode order: %w", err)
	}

	result := &Order{OrderID: order.ID}
	for _, link := range order.Links {
		if link.Rel == "approve" {
			result.ApprovalURL = link.Href
			break
		}
	}
	return result, nil
}

// CaptureOrder finalizes an approved order into a charged transaction.
func (c *Client) CaptureOrder(ctx context.Context, orderID string) (*Capture, error) {
	status, body, err := c.do(ctx, http.MethodPost, "/v2/checkout/orders/"+orderID+"/capture", struct{}{})
	if err != nil {
		return nil, err
	}
	if status != http.StatusCreated && status != http.StatusOK {
		return nil, fmt.Errorf("capture order: status %d: %s", status, body)
	}

	var capture struct {
		ID     string `json:"id"`
		Status string `json:"status"`
		Payer  struct {
			PayerID string `json:"payer_id"`
		} `json:"payer"`
		PurchaseUnits []struct {
			Payments struct {
				Captures []struct {
					ID string `json:"id"`
				} `json:"captures"`
			} `json:"payments"`
		} `json:"purchase_units"`
	}
	if err := json.Unmarshal(body, &capture); err != nil {
		return nil, fmt.Errorf("decode capture: %w", err)
	}

	result := &Capture{
		OrderID: capture.ID,
		Status:  capture.Status,
		PayerID: capture.Payer.PayerID,
		Raw:     json.RawMessage(body),
	}
	for _, pu := range capture.PurchaseUnits {
		if len(pu.Payments.Captures) > 0 {
			result.CaptureID = pu.Payments.Captures[0].ID
			break
		}
	}
	if result.CaptureID == "" {
		result.CaptureID = capture.ID
	}
	return result, nil
}

// GetOrder returns the provider-side status of an order.
func (c *Client) GetOrder(ctx context.Context, orderID string) (*OrderDetails, error) {
	status, body, err := c.do(ctx, http.MethodGet, "/v2/checkout/orders/"+orderID, nil)
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		return nil, fmt.Errorf("get order: status %d: %s", status, body)
	}

	var order struct {
		ID     string `json:"id"`
		Status string `json:"status"`
	}
	if err := json.Unmarshal(body, &order); err != nil {
		return nil, fmt.Errorf("decode order: %w", err)
	}
	return &OrderDetails{OrderID: order.ID, Status: order.Status}, nil
}

// formatAmount renders cents as a decimal string, e.g. 199 -> "1.99".
func formatAmount(cents int64) string {
	return fmt.Sprintf("%d.%02d", cents/100, cents%100)
}
