package email

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
)

const postmarkURL = "https://api.postmarkapp.com/email"

// Client sends transactional mail through Postmark. Receipts are
// best-effort; a send failure never affects the payment itself.
type Client struct {
	serverToken string
	fromEmail   string
	httpClient  *http.Client
}

type Option func(*Client)

func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) {
		cl.httpClient = c
	}
}

func NewClient(serverToken, fromEmail string, opts ...Option) *Client {
	c := &Client{
		serverToken: serverToken,
		fromEmail:   fromEmail,
		httpClient:  http.DefaultClient,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Configured returns true if the server token is set.
func (c *Client) Configured() bool {
	return c.serverToken != ""
}

type postmarkEmail struct {
	From     string `json:"From"`
	To       string `json:"To"`
	Subject  string `json:"Subject"`
	HtmlBody string `json:"HtmlBody"`
	TextBody string `json:"TextBody"`
}

// SendReceipt sends a payment receipt for a completed order.
func (c *Client) SendReceipt(toEmail, fullName, orderID string, amountCents int64, currency string) error {
	if !c.Configured() {
		return fmt.Errorf("email client not configured: missing server token")
	}

	amount := fmt.Sprintf("%d.%02d %s", amountCents/100, amountCents%100, currency)
	textBody := fmt.Sprintf(
		"Hi %s,\n\nThank you for your purchase of %s.\n\nOrder reference: %s\n\nYour readings are unlocked for the next two hours from your first reading.\n",
		fullName, amount, orderID,
	)
	htmlBody := fmt.Sprintf(
		`<p>Hi %s,</p><p>Thank you for your purchase of <strong>%s</strong>.</p><p>Order reference: %s</p><p>Your readings are unlocked for the next two hours from your first reading.</p>`,
		fullName, amount, orderID,
	)

	payload := postmarkEmail{
		From:     c.fromEmail,
		To:       toEmail,
		Subject:  "Your reading is unlocked",
		HtmlBody: htmlBody,
		TextBody: textBody,
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal email: %w", err)
	}

	req, err := http.NewRequest("POST", postmarkURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Postmark-Server-Token", c.serverToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("send email: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("postmark API error: status %d", resp.StatusCode)
	}

	return nil
}
