// Package jelou provides the chat platform bounded context: the outbound
// API client and the inbound chat event processor.
package jelou

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"crm_bridge_backend/platform/config"
	"crm_bridge_backend/platform/logger"
)

// APIError preserves the remote status code and response payload when the
// chat platform rejects a call.
type APIError struct {
	Status  int
	Details string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("jelou api error (status %d): %s", e.Status, e.Details)
}

// Client talks to the Jelou messaging API using basic auth.
type Client struct {
	baseURL string
	botID   string
	auth    string
	httpc   *http.Client
	log     *logger.Logger
}

// NewClient creates a chat API client from configuration.
func NewClient(cfg config.JelouConfig, log *logger.Logger) *Client {
	credentials := cfg.GetJelouClientID() + ":" + cfg.GetJelouClientSecret()
	return &Client{
		baseURL: cfg.GetJelouBaseURL(),
		botID:   cfg.GetJelouBotID(),
		auth:    "Basic " + base64.StdEncoding.EncodeToString([]byte(credentials)),
		httpc:   &http.Client{Timeout: cfg.GetJelouTimeout()},
		log:     log,
	}
}

// SendText posts a text message to a chat user. userID is the phone number
// in digits-only form without a leading plus.
func (c *Client) SendText(ctx context.Context, userID, text string) error {
	body := map[string]string{
		"botId":  c.botID,
		"userId": userID,
		"type":   "text",
		"text":   text,
	}
	return c.post(ctx, "/v1/whatsapp/messages", body)
}

// CloseConversation asks the platform to close the conversation thread for
// a digits-only phone number.
func (c *Client) CloseConversation(ctx context.Context, digitsPhone string) error {
	path := fmt.Sprintf("/v1/bots/%s/conversations/external/close", c.botID)
	return c.post(ctx, path, map[string]string{"userId": digitsPhone})
}

func (c *Client) post(ctx context.Context, path string, body any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encode jelou request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build jelou request: %w", err)
	}
	req.Header.Set("Authorization", c.auth)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpc.Do(req)
	if err != nil {
		return fmt.Errorf("call jelou %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(resp.Body)
		c.log.Error("jelou call failed", "path", path, "status", resp.StatusCode)
		return &APIError{Status: resp.StatusCode, Details: string(raw)}
	}

	return nil
}
