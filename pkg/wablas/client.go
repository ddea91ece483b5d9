package wablas

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"time"

	"swimnotify/pkg/circuitbreaker"
	"swimnotify/pkg/constants"

	"github.com/sirupsen/logrus"
)

const (
	EndpointSendMessage  = "/api/send-message"
	EndpointSendDocument = "/api/send-document"
	EndpointCheckPhone   = "/api/check-phone-number"
)

// Config holds the hosted gateway credentials
type Config struct {
	BaseURL string
	Token   string
	Secret  string
	Timeout time.Duration
}

// Client talks to the Wablas REST API. Calls are never retried; a
// circuit breaker fails fast while the API is unreachable.
type Client struct {
	baseURL       string
	authorization string
	http          *http.Client
	breaker       *circuitbreaker.CircuitBreaker
	logger        logrus.FieldLogger
}

func NewClient(config Config, logger logrus.FieldLogger) *Client {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	if config.BaseURL == "" {
		config.BaseURL = constants.DefaultWablasBaseURL
	}
	if config.Timeout <= 0 {
		config.Timeout = constants.DefaultHTTPTimeoutSec * time.Second
	}

	authorization := config.Token
	if config.Token != "" && config.Secret != "" {
		authorization = config.Token + "." + config.Secret
	}

	return &Client{
		baseURL:       strings.TrimRight(config.BaseURL, "/"),
		authorization: authorization,
		http:          &http.Client{Timeout: config.Timeout},
		breaker: circuitbreaker.New(circuitbreaker.Config{
			Name:        "wablas",
			MaxFailures: constants.DefaultBreakerMaxFailures,
			OpenTimeout: constants.DefaultBreakerOpenSeconds * time.Second,
			IsFailure:   isTransportFailure,
		}, logger),
		logger: logger,
	}
}

// Configured reports whether a token is present
func (c *Client) Configured() bool {
	return c.authorization != ""
}

func (c *Client) Breaker() circuitbreaker.Counts {
	return c.breaker.Counts()
}

// SendMessage sends a text message to an international-format number
func (c *Client) SendMessage(ctx context.Context, phone, message string) (*SendResult, error) {
	form := url.Values{}
	form.Set("phone", phone)
	form.Set("message", message)

	var result *SendResult
	err := c.breaker.Execute(ctx, func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+EndpointSendMessage, strings.NewReader(form.Encode()))
		if err != nil {
			return fmt.Errorf("failed to create request: %w", err)
		}
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

		result, err = c.doSend(req, EndpointSendMessage)
		return err
	})
	return result, err
}

// SendDocument uploads a document with an optional caption
func (c *Client) SendDocument(ctx context.Context, phone string, doc Document) (*SendResult, error) {
	if doc.Filename == "" {
		return nil, fmt.Errorf("document filename is required")
	}
	if len(doc.Content) == 0 {
		return nil, fmt.Errorf("document content is empty")
	}
	if len(doc.Content) > constants.DefaultMaxDocumentSizeMB*constants.BytesPerMegabyte {
		return nil, fmt.Errorf("document exceeds %d MB", constants.DefaultMaxDocumentSizeMB)
	}

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	if err := writer.WriteField("phone", phone); err != nil {
		return nil, fmt.Errorf("failed to write phone field: %w", err)
	}
	if doc.Caption != "" {
		if err := writer.WriteField("caption", doc.Caption); err != nil {
			return nil, fmt.Errorf("failed to write caption field: %w", err)
		}
	}
	part, err := writer.CreateFormFile("file", doc.Filename)
	if err != nil {
		return nil, fmt.Errorf("failed to create form file: %w", err)
	}
	if _, err := part.Write(doc.Content); err != nil {
		return nil, fmt.Errorf("failed to write file content: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("failed to close multipart writer: %w", err)
	}

	var result *SendResult
	err = c.breaker.Execute(ctx, func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+EndpointSendDocument, bytes.NewReader(body.Bytes()))
		if err != nil {
			return fmt.Errorf("failed to create request: %w", err)
		}
		req.Header.Set("Content-Type", writer.FormDataContentType())

		result, err = c.doSend(req, EndpointSendDocument)
		return err
	})
	return result, err
}

// CheckPhone reports whether the number is registered on WhatsApp
func (c *Client) CheckPhone(ctx context.Context, phone string) (bool, error) {
	var registered bool
	err := c.breaker.Execute(ctx, func(ctx context.Context) error {
		endpoint := c.baseURL + EndpointCheckPhone + "?phones=" + url.QueryEscape(phone)
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
		if err != nil {
			return fmt.Errorf("failed to create request: %w", err)
		}

		raw, err := c.do(req, EndpointCheckPhone)
		if err != nil {
			return err
		}

		var resp checkPhoneResponse
		if err := json.Unmarshal(raw, &resp); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
		if !resp.Status {
			return &APIError{Endpoint: EndpointCheckPhone, StatusCode: http.StatusOK, Message: resp.Message}
		}
		for _, entry := range resp.Data {
			if entry.Phone == phone {
				registered = strings.EqualFold(entry.Status, "online")
				return nil
			}
		}
		return nil
	})
	return registered, err
}

func (c *Client) doSend(req *http.Request, endpoint string) (*SendResult, error) {
	raw, err := c.do(req, endpoint)
	if err != nil {
		return nil, err
	}

	var resp sendResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	if !resp.Status {
		return nil, &APIError{Endpoint: endpoint, StatusCode: http.StatusOK, Message: resp.Message}
	}

	result := &SendResult{Message: resp.Message}
	var data sendData
	if len(resp.Data) > 0 && resp.Data[0] == '{' {
		if err := json.Unmarshal(resp.Data, &data); err != nil {
			return nil, fmt.Errorf("failed to decode response data: %w", err)
		}
	}
	if len(data.Messages) > 0 {
		result.MessageID = data.Messages[0].ID
		result.Status = data.Messages[0].Status
	}
	return result, nil
}

// do executes an authorized request and returns the body of a 2xx response.
// Non-2xx responses become an APIError carrying the remote diagnostic.
func (c *Client) do(req *http.Request, endpoint string) ([]byte, error) {
	req.Header.Set("Authorization", c.authorization)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("wablas request to %s failed: %w", endpoint, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, constants.MaxResponseBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &APIError{Endpoint: endpoint, StatusCode: resp.StatusCode, Message: diagnostic(raw)}
	}
	return raw, nil
}

// diagnostic extracts the remote message, falling back to the raw body
func diagnostic(raw []byte) string {
	var body struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(raw, &body); err == nil && body.Message != "" {
		return body.Message
	}
	text := strings.TrimSpace(string(raw))
	if len(text) > constants.MaxDiagnosticLength {
		text = text[:constants.MaxDiagnosticLength]
	}
	return text
}

// isTransportFailure counts network errors and 5xx answers. Rejections of
// a single request say nothing about the health of the API.
func isTransportFailure(err error) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode >= 500
	}
	return !errors.Is(err, context.Canceled)
}
