// Package bitrix wraps the Bitrix24 REST API behind a gateway that hides
// contact and deal resolution mechanics from the event processors.
package bitrix

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"crm_bridge_backend/platform/config"
	"crm_bridge_backend/platform/logger"
)

// APIError is returned when the CRM responds with a non-2xx status or an
// error envelope. Status and description are preserved for the caller.
type APIError struct {
	Status      int
	Code        string
	Description string
}

func (e *APIError) Error() string {
	if e.Description != "" {
		return fmt.Sprintf("bitrix api error (status %d): %s: %s", e.Status, e.Code, e.Description)
	}
	return fmt.Sprintf("bitrix api error (status %d): %s", e.Status, e.Code)
}

// envelope is the standard Bitrix REST response wrapper.
type envelope struct {
	Result           json.RawMessage `json:"result"`
	Error            string          `json:"error"`
	ErrorDescription string          `json:"error_description"`
}

// Client executes REST calls against a Bitrix24 inbound webhook endpoint.
// Method URLs follow the <base>/<token>/<method>.json convention.
type Client struct {
	baseURL string
	token   string
	httpc   *http.Client
	log     *logger.Logger
}

// NewClient creates a REST client from the Bitrix configuration.
func NewClient(cfg config.BitrixConfig, log *logger.Logger) *Client {
	return &Client{
		baseURL: cfg.GetBitrixBaseURL(),
		token:   cfg.GetBitrixToken(),
		httpc:   &http.Client{Timeout: cfg.GetBitrixTimeout()},
		log:     log,
	}
}

// Call posts payload to the named REST method and decodes the result field
// into out. Pass a nil out to discard the result.
func (c *Client) Call(ctx context.Context, method string, payload any, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode %s request: %w", method, err)
	}

	url := fmt.Sprintf("%s/%s/%s.json", c.baseURL, c.token, method)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build %s request: %w", method, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpc.Do(req)
	if err != nil {
		return fmt.Errorf("call %s: %w", method, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read %s response: %w", method, err)
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return fmt.Errorf("decode %s response: %w", method, err)
	}

	if env.Error != "" || resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := &APIError{
			Status:      resp.StatusCode,
			Code:        env.Error,
			Description: env.ErrorDescription,
		}
		c.log.CRMError(method, resp.StatusCode, env.Error)
		return apiErr
	}

	if out != nil && len(env.Result) > 0 {
		if err := json.Unmarshal(env.Result, out); err != nil {
			return fmt.Errorf("decode %s result: %w", method, err)
		}
	}

	return nil
}
