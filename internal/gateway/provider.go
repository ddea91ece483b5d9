package gateway

import (
	"context"
	"time"

	"swimnotify/internal/models"
)

// Provider identifiers as they appear in configuration and log entries
const (
	ProviderSession = "waha"
	ProviderHosted  = "wablas"
)

// State is the coarse connection state of a provider
type State string

const (
	StateDisconnected State = "disconnected"
	StatePairing      State = "pairing"
	StateConnected    State = "connected"
	StateError        State = "error"
)

// Stats counts send outcomes since process start
type Stats struct {
	TotalSent    int `json:"totalSent"`
	TotalFailed  int `json:"totalFailed"`
	TotalPending int `json:"totalPending"`
}

// Status is the snapshot returned by GetStatus and pushed to subscribers
type Status struct {
	State         State      `json:"state"`
	Provider      string     `json:"provider"`
	Phone         *string    `json:"phone"`
	QRCode        *string    `json:"qrCode"`
	LastConnected *time.Time `json:"lastConnected"`
	Stats         Stats      `json:"stats"`
	QueueLength   int        `json:"queueLength"`
	Error         string     `json:"error,omitempty"`
}

func (s Status) clone() Status {
	out := s
	if s.Phone != nil {
		phone := *s.Phone
		out.Phone = &phone
	}
	if s.QRCode != nil {
		qr := *s.QRCode
		out.QRCode = &qr
	}
	if s.LastConnected != nil {
		at := *s.LastConnected
		out.LastConnected = &at
	}
	return out
}

// OutboundMessage is one message handed to a provider
type OutboundMessage struct {
	To            string            `json:"to"`
	Body          string            `json:"body"`
	Category      models.Category   `json:"category,omitempty"`
	SenderRef     string            `json:"senderRef,omitempty"`
	RecipientName string            `json:"recipientName,omitempty"`
	Metadata      map[string]string `json:"metadata,omitempty"`
}

// DeliveryResult describes the outcome of one send
type DeliveryResult struct {
	Success     bool   `json:"success"`
	LogID       string `json:"logId,omitempty"`
	TransportID string `json:"transportId,omitempty"`
	Recipient   string `json:"recipient,omitempty"`
	Provider    string `json:"provider"`
	Queued      bool   `json:"queued,omitempty"`
	Error       string `json:"error,omitempty"`
}

// Provider is the capability every WhatsApp gateway exposes. Producers and
// HTTP handlers depend on this interface only.
type Provider interface {
	Initialize(ctx context.Context) error
	Disconnect(ctx context.Context) error
	SendMessage(ctx context.Context, msg OutboundMessage) (*DeliveryResult, error)
	SendBulkMessages(ctx context.Context, msgs []OutboundMessage) []DeliveryResult
	GetStatus() Status
	IsReady() bool
	AddClient(sub Subscriber)
	RemoveClient(sub Subscriber)
	Name() string
}

// MessageLog is the durable record of send attempts
type MessageLog interface {
	Create(ctx context.Context, entry *models.MessageLog) (string, error)
	Update(ctx context.Context, id string, update models.MessageLogUpdate) error
	UpdateStatusByTransportID(ctx context.Context, transportID string, status models.DeliveryStatus, at time.Time) (bool, error)
	FindByTransportID(ctx context.Context, transportID string) (*models.MessageLog, error)
	Stats(ctx context.Context) (*models.MessageStats, error)
}

// Options tune provider timing and limits
type Options struct {
	CountryCode    string
	SendDelay      time.Duration
	ReconnectDelay time.Duration
	MaxBodyLength  int
	// Verbose disables masking of phone numbers and names in logs
	Verbose bool
}
