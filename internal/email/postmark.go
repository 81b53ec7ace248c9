package email

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"html"
	"net/http"
	"net/url"
)

const defaultAPIURL = "https://api.postmarkapp.com/email"

type Client struct {
	serverToken string
	fromEmail   string
	baseURL     string
	apiURL      string
	httpClient  *http.Client
}

type Option func(*Client)

func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) {
		cl.httpClient = c
	}
}

// WithAPIURL points the client at a different Postmark endpoint.
func WithAPIURL(u string) Option {
	return func(cl *Client) {
		cl.apiURL = u
	}
}

func NewClient(serverToken, fromEmail, baseURL string, opts ...Option) *Client {
	c := &Client{
		serverToken: serverToken,
		fromEmail:   fromEmail,
		baseURL:     baseURL,
		apiURL:      defaultAPIURL,
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

// SendPasswordReset mails a reset link carrying token.
func (c *Client) SendPasswordReset(ctx context.Context, toEmail, token string) error {
	link := fmt.Sprintf("%s/reset-password?token=%s", c.baseURL, url.QueryEscape(token))
	text := fmt.Sprintf("Someone asked to reset your Larder password. Use the link below to choose a new one:\n\n%s\n\nThis link expires in 1 hour. If you did not ask for this, ignore this email.", link)
	body := fmt.Sprintf(
		`<p>Someone asked to reset your Larder password.</p><p><a href="%s">Choose a new password</a></p><p>This link expires in 1 hour. If you did not ask for this, ignore this email.</p>`,
		html.EscapeString(link),
	)
	return c.send(ctx, toEmail, "Reset your Larder password", text, body)
}

// SendHouseholdAdded tells a user they were added to a household.
func (c *Client) SendHouseholdAdded(ctx context.Context, toEmail, householdName, addedBy string) error {
	subject := fmt.Sprintf("You've been added to %s on Larder", householdName)
	text := fmt.Sprintf("%s added you to the household %q.\n\nOpen Larder to see its shopping lists:\n\n%s", addedBy, householdName, c.baseURL)
	body := fmt.Sprintf(
		`<p>%s added you to the household <strong>%s</strong>.</p><p><a href="%s">Open Larder</a></p>`,
		html.EscapeString(addedBy), html.EscapeString(householdName), html.EscapeString(c.baseURL),
	)
	return c.send(ctx, toEmail, subject, text, body)
}

// SendListShared tells a user a shopping list was shared with them.
func (c *Client) SendListShared(ctx context.Context, toEmail, listName, sharedBy string) error {
	subject := fmt.Sprintf("%s shared a shopping list with you", sharedBy)
	text := fmt.Sprintf("%s shared the list %q with you.\n\n%s", sharedBy, listName, c.baseURL)
	body := fmt.Sprintf(
		`<p>%s shared the list <strong>%s</strong> with you.</p><p><a href="%s">Open Larder</a></p>`,
		html.EscapeString(sharedBy), html.EscapeString(listName), html.EscapeString(c.baseURL),
	)
	return c.send(ctx, toEmail, subject, text, body)
}

func (c *Client) send(ctx context.Context, toEmail, subject, textBody, htmlBody string) error {
	if !c.Configured() {
		return fmt.Errorf("email client not configured: missing server token")
	}

	payload := postmarkEmail{
		From:     c.fromEmail,
		To:       toEmail,
		Subject:  subject,
		HtmlBody: htmlBody,
		TextBody: textBody,
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal email: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiURL, bytes.NewReader(body))
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
