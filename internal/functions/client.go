// Package functions invokes the platform's serverless endpoints
// (send-notification-email, chat-reassignment, send-postpaid-due-reminder).
package functions

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"dropship-platform/internal/apperr"
)

const (
	SendNotificationEmail   = "send-notification-email"
	ChatReassignment        = "chat-reassignment"
	SendPostpaidDueReminder = "send-postpaid-due-reminder"
)

// Invoker is what services depend on; *Client implements it.
type Invoker interface {
	Invoke(ctx context.Context, name string, body any, out any) error
}

type Client struct {
	baseURL    string
	serviceKey string
	http       *http.Client
}

func NewClient(baseURL, serviceKey string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		serviceKey: serviceKey,
		http:       &http.Client{Timeout: timeout},
	}
}

// Invoke POSTs body as JSON to {baseURL}/{name} and decodes the response into out
// when out is non-nil. Transport failures and non-2xx responses become remote errors.
func (c *Client) Invoke(ctx context.Context, name string, body any, out any) error {
	if c.baseURL == "" {
		return apperr.Remote(name, errors.New("functions url not configured"))
	}

	var payload io.Reader = http.NoBody
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode %s body: %w", name, err)
		}
		payload = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/"+name, payload)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.serviceKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.serviceKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return apperr.Remote(name, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return apperr.Remote(name, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return apperr.Remote(name, fmt.Errorf("status %d: %s", resp.StatusCode, remoteMessage(raw)))
	}
	if out != nil && len(raw) > 0 {
		if err := json.Unmarshal(raw, out); err != nil {
			return apperr.Remote(name, fmt.Errorf("decode response: %w", err))
		}
	}
	return nil
}

// remoteMessage extracts {"error": "..."} when present so the caller sees the function's own message.
func remoteMessage(raw []byte) string {
	var body struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	if json.Unmarshal(raw, &body) == nil {
		if body.Error != "" {
			return body.Error
		}
		if body.Message != "" {
			return body.Message
		}
	}
	return strings.TrimSpace(string(raw))
}
