package models

import (
	"time"
)

// DeliveryStatus is the lifecycle state of one send attempt
type DeliveryStatus string

const (
	DeliveryStatusPending   DeliveryStatus = "pending"
	DeliveryStatusSent      DeliveryStatus = "sent"
	DeliveryStatusFailed    DeliveryStatus = "failed"
	DeliveryStatusDelivered DeliveryStatus = "delivered"
	DeliveryStatusRead      DeliveryStatus = "read"
)

// Rank orders statuses so receipts never move an entry backwards.
func (s DeliveryStatus) Rank() int {
	switch s {
	case DeliveryStatusPending:
		return 0
	case DeliveryStatusFailed:
		return 1
	case DeliveryStatusSent:
		return 2
	case DeliveryStatusDelivered:
		return 3
	case DeliveryStatusRead:
		return 4
	default:
		return -1
	}
}

// Category tags why a message was sent
type Category string

const (
	CategoryNotification Category = "notification"
	CategoryReminder     Category = "reminder"
	CategoryBroadcast    Category = "broadcast"
	CategoryManual       Category = "manual"
	CategoryReport       Category = "report"
	CategoryDocument     Category = "document"
)

// Valid reports whether c is a known category
func (c Category) Valid() bool {
	switch c {
	case CategoryNotification, CategoryReminder, CategoryBroadcast, CategoryManual, CategoryReport, CategoryDocument:
		return true
	}
	return false
}

// MessageLogTTL is how long a log entry is kept before purge
const MessageLogTTL = 24 * time.Hour

// MessageLog is the durable record of one send attempt
type MessageLog struct {
	ID            string            `json:"id"`
	Recipient     string            `json:"recipient"`
	RecipientName string            `json:"recipientName,omitempty"`
	Body          string            `json:"body"`
	Category      Category          `json:"category"`
	Status        DeliveryStatus    `json:"status"`
	SenderRef     string            `json:"senderRef,omitempty"`
	Error         *string           `json:"error,omitempty"`
	TransportID   string            `json:"transportId,omitempty"`
	Provider      string            `json:"provider"`
	Metadata      map[string]string `json:"metadata,omitempty"`
	CreatedAt     time.Time         `json:"createdAt"`
	SentAt        *time.Time        `json:"sentAt,omitempty"`
	DeliveredAt   *time.Time        `json:"deliveredAt,omitempty"`
	ReadAt        *time.Time        `json:"readAt,omitempty"`
	ExpiresAt     time.Time         `json:"expiresAt"`
}

// MessageLogUpdate is a partial update; nil fields are left untouched
type MessageLogUpdate struct {
	Status      DeliveryStatus
	TransportID *string
	Error       *string
	At          time.Time
}

// MessageStats aggregates log entries for the stats endpoint
type MessageStats struct {
	Total      int                    `json:"total"`
	ByStatus   map[DeliveryStatus]int `json:"byStatus"`
	ByCategory map[Category]int       `json:"byCategory"`
}
