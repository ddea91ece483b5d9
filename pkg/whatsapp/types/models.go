package types

import (
	"encoding/json"
	"time"
)

// SessionStatus is the WAHA session status
type SessionStatus string

const (
	SessionStatusStopped    SessionStatus = "STOPPED"
	SessionStatusStarting   SessionStatus = "STARTING"
	SessionStatusScanQRCode SessionStatus = "SCAN_QR_CODE"
	SessionStatusWorking    SessionStatus = "WORKING"
	SessionStatusFailed     SessionStatus = "FAILED"
)

// Me is the account paired with a session
type Me struct {
	ID       string `json:"id"`
	PushName string `json:"pushName,omitempty"`
}

// Session is the state of one WAHA session
type Session struct {
	Name   string        `json:"name"`
	Status SessionStatus `json:"status"`
	Me     *Me           `json:"me,omitempty"`
}

// WebhookEvent is the envelope WAHA posts to the webhook URL
type WebhookEvent struct {
	ID      string          `json:"id,omitempty"`
	Event   string          `json:"event"`
	Session string          `json:"session"`
	Me      *Me             `json:"me,omitempty"`
	Payload json.RawMessage `json:"payload"`
}

// SessionStatusPayload is the payload of a session.status event
type SessionStatusPayload struct {
	Status SessionStatus `json:"status"`
}

// AckPayload is the payload of a message.ack event
type AckPayload struct {
	ID      MessageID `json:"id"`
	Ack     int       `json:"ack"`
	AckName string    `json:"ackName,omitempty"`
}

// SendTextRequest is the body of POST /api/sendText
type SendTextRequest struct {
	ChatID  string `json:"chatId"`
	Text    string `json:"text"`
	Session string `json:"session"`
}

// SessionRequest names the session for start/stop/logout calls
type SessionRequest struct {
	Name string `json:"name"`
}

// SendTextResponse is the message WAHA returns after sending
type SendTextResponse struct {
	ID MessageID `json:"id"`
}

// QRResponse is returned by the raw QR endpoint
type QRResponse struct {
	Value string `json:"value"`
}

// MessageID accepts both id shapes WAHA engines produce: a plain string
// or an object with a _serialized field.
type MessageID string

func (m *MessageID) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*m = MessageID(s)
		return nil
	}
	var obj struct {
		Serialized string `json:"_serialized"`
		ID         string `json:"id"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		return err
	}
	if obj.Serialized != "" {
		*m = MessageID(obj.Serialized)
	} else {
		*m = MessageID(obj.ID)
	}
	return nil
}

// ClientConfig configures the WAHA HTTP client
type ClientConfig struct {
	BaseURL     string
	APIKey      string
	SessionName string
	Timeout     time.Duration
}

// SessionEventType classifies transport events consumed by the session provider
type SessionEventType string

const (
	EventQR    SessionEventType = "qr"
	EventOpen  SessionEventType = "open"
	EventClose SessionEventType = "close"
	EventAck   SessionEventType = "ack"
)

// SessionEvent is one transport-level change. Only the fields relevant to
// Type are set.
type SessionEvent struct {
	Type        SessionEventType
	QR          string
	Phone       string
	LoggedOut   bool
	Reason      string
	TransportID string
	Ack         int
	At          time.Time
}
