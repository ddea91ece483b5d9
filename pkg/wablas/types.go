package wablas

import (
	"encoding/json"
	"fmt"
	"strings"
)

// SendResult is the accepted message as reported by the API
type SendResult struct {
	MessageID string
	Status    string
	Message   string
}

// Document is a file attachment for SendDocument
type Document struct {
	Filename string
	Content  []byte
	Caption  string
}

// APIError is a request the API answered but refused. Message holds the
// remote diagnostic verbatim.
type APIError struct {
	Endpoint   string
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("wablas %s rejected (status %d): %s", e.Endpoint, e.StatusCode, e.Message)
}

// flag decodes the API's success marker, which is a JSON bool on most
// endpoints and a string ("success", "true") on a few.
type flag bool

func (f *flag) UnmarshalJSON(data []byte) error {
	var b bool
	if err := json.Unmarshal(data, &b); err == nil {
		*f = flag(b)
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("unexpected status value %s", string(data))
	}
	switch strings.ToLower(s) {
	case "true", "success", "ok":
		*f = true
	default:
		*f = false
	}
	return nil
}

type sendResponse struct {
	Status  flag            `json:"status"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

type sendData struct {
	DeviceID string `json:"device_id"`
	Messages []struct {
		ID      string `json:"id"`
		Phone   string `json:"phone"`
		Message string `json:"message"`
		Status  string `json:"status"`
	} `json:"messages"`
}

type checkPhoneResponse struct {
	Status  flag   `json:"status"`
	Message string `json:"message"`
	Data    []struct {
		Phone  string `json:"phone"`
		Status string `json:"status"`
	} `json:"data"`
}
