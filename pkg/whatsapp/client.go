package whatsapp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"swimnotify/pkg/constants"
	"swimnotify/pkg/whatsapp/types"
)

// APIError is a WAHA response outside the 2xx range
type APIError struct {
	Endpoint   string
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("waha %s failed with status %d: %s", e.Endpoint, e.StatusCode, e.Message)
}

// Client is a thin WAHA HTTP client bound to one session
type Client struct {
	baseURL     string
	apiKey      string
	sessionName string
	http        *http.Client
}

func NewClient(config types.ClientConfig) *Client {
	if config.Timeout <= 0 {
		config.Timeout = constants.DefaultWAHATimeoutMs * time.Millisecond
	}
	return &Client{
		baseURL:     strings.TrimRight(config.BaseURL, "/"),
		apiKey:      config.APIKey,
		sessionName: config.SessionName,
		http:        &http.Client{Timeout: config.Timeout},
	}
}

func (c *Client) SessionName() string {
	return c.sessionName
}

// SendText sends a text message and returns the WAHA message id
func (c *Client) SendText(ctx context.Context, chatID, text string) (string, error) {
	var resp types.SendTextResponse
	err := c.call(ctx, http.MethodPost, types.APIBase+types.EndpointSendText, types.SendTextRequest{
		ChatID:  chatID,
		Text:    text,
		Session: c.sessionName,
	}, &resp)
	if err != nil {
		return "", err
	}
	return string(resp.ID), nil
}

func (c *Client) StartSession(ctx context.Context) error {
	return c.call(ctx, http.MethodPost, types.APIBase+types.EndpointSessionsStart, types.SessionRequest{Name: c.sessionName}, nil)
}

func (c *Client) StopSession(ctx context.Context) error {
	return c.call(ctx, http.MethodPost, types.APIBase+types.EndpointSessionsStop, types.SessionRequest{Name: c.sessionName}, nil)
}

func (c *Client) Logout(ctx context.Context) error {
	return c.call(ctx, http.MethodPost, types.APIBase+types.EndpointSessionsLogout, types.SessionRequest{Name: c.sessionName}, nil)
}

func (c *Client) GetSession(ctx context.Context) (*types.Session, error) {
	var session types.Session
	endpoint := types.APIBase + types.EndpointSessions + "/" + url.PathEscape(c.sessionName)
	if err := c.call(ctx, http.MethodGet, endpoint, nil, &session); err != nil {
		return nil, err
	}
	return &session, nil
}

// GetQR returns the raw pairing payload for the session
func (c *Client) GetQR(ctx context.Context) (string, error) {
	var qr types.QRResponse
	endpoint := types.APIBase + "/" + url.PathEscape(c.sessionName) + types.EndpointAuthQR + "?format=raw"
	if err := c.call(ctx, http.MethodGet, endpoint, nil, &qr); err != nil {
		return "", err
	}
	if qr.Value == "" {
		return "", fmt.Errorf("waha returned an empty QR payload")
	}
	return qr.Value, nil
}

func (c *Client) call(ctx context.Context, method, endpoint string, payload, out interface{}) error {
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("failed to marshal payload: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+endpoint, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set("X-Api-Key", c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("waha request to %s failed: %w", endpoint, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, constants.MaxResponseBodyBytes))
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &APIError{Endpoint: endpoint, StatusCode: resp.StatusCode, Message: errorMessage(raw)}
	}

	if out != nil && len(bytes.TrimSpace(raw)) > 0 {
		if err := json.Unmarshal(raw, out); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}
	return nil
}

func errorMessage(raw []byte) string {
	var body struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	if err := json.Unmarshal(raw, &body); err == nil {
		if body.Message != "" {
			return body.Message
		}
		if body.Error != "" {
			return body.Error
		}
	}
	text := strings.TrimSpace(string(raw))
	if len(text) > constants.MaxDiagnosticLength {
		text = text[:constants.MaxDiagnosticLength]
	}
	return text
}
