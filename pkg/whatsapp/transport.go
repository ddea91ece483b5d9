package whatsapp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"swimnotify/pkg/constants"
	"swimnotify/pkg/whatsapp/types"

	"github.com/sirupsen/logrus"
)

// Transport adapts a WAHA session to the event-driven session transport:
// webhook deliveries become SessionEvents on a buffered channel.
type Transport struct {
	client          *Client
	router          *WebhookRouter
	events          chan types.SessionEvent
	logoutRequested atomic.Bool
	logger          logrus.FieldLogger
	now             func() time.Time
}

func NewTransport(client *Client, logger logrus.FieldLogger) *Transport {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	t := &Transport{
		client: client,
		router: NewWebhookRouter(),
		events: make(chan types.SessionEvent, constants.DefaultSessionEventBuffer),
		logger: logger,
		now:    time.Now,
	}
	t.router.Register(types.WebhookSessionStatus, t.handleSessionStatus)
	t.router.Register(types.WebhookMessageAck, t.handleAck)
	return t
}

func (t *Transport) Events() <-chan types.SessionEvent {
	return t.events
}

// Start asks WAHA to start the session and replays its current status,
// since a webhook may have fired before anyone was listening.
func (t *Transport) Start(ctx context.Context) error {
	t.logoutRequested.Store(false)

	if err := t.client.StartSession(ctx); err != nil && !alreadyStarted(err) {
		return fmt.Errorf("failed to start session %s: %w", t.client.SessionName(), err)
	}

	session, err := t.client.GetSession(ctx)
	if err != nil {
		t.logger.WithError(err).Warn("Failed to read session status after start")
		return nil
	}
	return t.applyStatus(ctx, session.Status, session.Me)
}

// Logout ends the session. The close event that follows carries LoggedOut.
func (t *Transport) Logout(ctx context.Context) error {
	t.logoutRequested.Store(true)
	if err := t.client.Logout(ctx); err != nil {
		return fmt.Errorf("failed to logout session %s: %w", t.client.SessionName(), err)
	}
	return nil
}

// SendText sends to a normalized phone number and returns the message id
func (t *Transport) SendText(ctx context.Context, phone, text string) (string, error) {
	return t.client.SendText(ctx, phone+constants.UserChatSuffix, text)
}

// HandleWebhook feeds one verified webhook delivery into the event stream
func (t *Transport) HandleWebhook(ctx context.Context, event *types.WebhookEvent) error {
	if event.Session != "" && event.Session != t.client.SessionName() {
		t.logger.WithField("session", event.Session).Debug("Ignoring webhook for another session")
		return nil
	}
	return t.router.Handle(ctx, event)
}

func (t *Transport) handleSessionStatus(ctx context.Context, event *types.WebhookEvent) error {
	var payload types.SessionStatusPayload
	if err := json.Unmarshal(event.Payload, &payload); err != nil {
		return fmt.Errorf("failed to decode session status: %w", err)
	}
	return t.applyStatus(ctx, payload.Status, event.Me)
}

func (t *Transport) applyStatus(ctx context.Context, status types.SessionStatus, me *types.Me) error {
	switch status {
	case types.SessionStatusScanQRCode:
		qrCtx, cancel := context.WithTimeout(ctx, constants.DefaultQRTimeoutSec*time.Second)
		defer cancel()
		qr, err := t.client.GetQR(qrCtx)
		if err != nil {
			return fmt.Errorf("failed to fetch QR code: %w", err)
		}
		return t.emit(ctx, types.SessionEvent{Type: types.EventQR, QR: qr})

	case types.SessionStatusWorking:
		phone := ""
		if me != nil {
			phone = me.ID
		} else if session, err := t.client.GetSession(ctx); err == nil && session.Me != nil {
			phone = session.Me.ID
		}
		return t.emit(ctx, types.SessionEvent{Type: types.EventOpen, Phone: strings.TrimSuffix(phone, constants.UserChatSuffix)})

	case types.SessionStatusStopped, types.SessionStatusFailed:
		return t.emit(ctx, types.SessionEvent{
			Type:      types.EventClose,
			LoggedOut: t.logoutRequested.Load(),
			Reason:    string(status),
		})

	default:
		t.logger.WithField("status", status).Debug("Ignoring intermediate session status")
		return nil
	}
}

func (t *Transport) handleAck(ctx context.Context, event *types.WebhookEvent) error {
	var payload types.AckPayload
	if err := json.Unmarshal(event.Payload, &payload); err != nil {
		return fmt.Errorf("failed to decode ack: %w", err)
	}
	if payload.ID == "" {
		return fmt.Errorf("ack without message id")
	}
	return t.emit(ctx, types.SessionEvent{Type: types.EventAck, TransportID: string(payload.ID), Ack: payload.Ack})
}

func (t *Transport) emit(ctx context.Context, event types.SessionEvent) error {
	if event.At.IsZero() {
		event.At = t.now()
	}
	select {
	case t.events <- event:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func alreadyStarted(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusUnprocessableEntity
}
