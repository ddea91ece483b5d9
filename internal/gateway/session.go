package gateway

import (
	"context"
	stderrors "errors"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"swimnotify/internal/errors"
	"swimnotify/internal/metrics"
	"swimnotify/internal/models"
	"swimnotify/pkg/whatsapp"
	"swimnotify/pkg/whatsapp/types"

	"github.com/sirupsen/logrus"
)

const reconnectStartTimeout = 30 * time.Second

// SessionTransport is a paired-device connection that reports its
// lifecycle as events
type SessionTransport interface {
	Start(ctx context.Context) error
	Logout(ctx context.Context) error
	SendText(ctx context.Context, phone, text string) (string, error)
	Events() <-chan types.SessionEvent
}

type queuedMessage struct {
	msg       OutboundMessage
	recipient string
}

// SessionProvider drives a paired WhatsApp session: QR pairing, automatic
// reconnect and an in-memory queue for messages sent while offline.
type SessionProvider struct {
	core

	transport      SessionTransport
	queue          []queuedMessage
	loggedOut      bool
	reconnectTimer *time.Timer
	attempts       int

	loopOnce sync.Once
	started  atomic.Bool
	draining atomic.Bool
	lifetime context.Context
	cancel   context.CancelFunc
	done     chan struct{}
}

func NewSessionProvider(transport SessionTransport, log MessageLog, logger logrus.FieldLogger, opts Options) *SessionProvider {
	lifetime, cancel := context.WithCancel(context.Background())
	return &SessionProvider{
		core:      newCore(ProviderSession, log, logger, opts),
		transport: transport,
		lifetime:  lifetime,
		cancel:    cancel,
		done:      make(chan struct{}),
	}
}

func (p *SessionProvider) IsReady() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.status.State == StateConnected
}

// QueueLength returns the number of messages waiting for a connection
func (p *SessionProvider) QueueLength() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.queue)
}

// Initialize starts the event loop once and asks the transport to start
// the session. A previous logout is cleared.
func (p *SessionProvider) Initialize(ctx context.Context) error {
	p.mu.Lock()
	p.loggedOut = false
	p.mu.Unlock()

	p.loopOnce.Do(func() {
		p.started.Store(true)
		go p.run()
	})

	if err := p.transport.Start(ctx); err != nil {
		p.update(func(s *Status) {
			s.State = StateError
			s.QRCode = nil
			s.Error = err.Error()
		})
		appErr := errors.NewConfigError("whatsapp.waha", "failed to start WhatsApp session")
		appErr.Cause = err
		return appErr
	}

	p.logger.Info("Session gateway initialized")
	return nil
}

// Disconnect logs the session out. No reconnect happens until Initialize
// is called again.
func (p *SessionProvider) Disconnect(ctx context.Context) error {
	p.mu.Lock()
	p.loggedOut = true
	if p.reconnectTimer != nil {
		p.reconnectTimer.Stop()
		p.reconnectTimer = nil
	}
	p.mu.Unlock()

	err := p.transport.Logout(ctx)

	p.update(func(s *Status) {
		s.State = StateDisconnected
		s.QRCode = nil
	})

	if err != nil {
		return mapSessionError(err)
	}
	return nil
}

// Close stops the event loop and any pending reconnect
func (p *SessionProvider) Close() error {
	p.cancel()
	p.mu.Lock()
	if p.reconnectTimer != nil {
		p.reconnectTimer.Stop()
		p.reconnectTimer = nil
	}
	p.mu.Unlock()

	if p.started.Load() {
		<-p.done
	}
	return nil
}

// SendMessage sends now when connected. Otherwise the message is queued
// once and a NOT_READY error with Queued set is returned.
func (p *SessionProvider) SendMessage(ctx context.Context, msg OutboundMessage) (*DeliveryResult, error) {
	msg, recipient, err := p.prepare(msg)
	if err != nil {
		return nil, err
	}

	p.mu.Lock()
	if p.status.State != StateConnected {
		p.queue = append(p.queue, queuedMessage{msg: msg, recipient: recipient})
		p.status.Stats.TotalPending++
		p.status.QueueLength = len(p.queue)
		length := len(p.queue)
		p.mu.Unlock()

		labels := map[string]string{"provider": p.name}
		metrics.Inc(metrics.MessagesQueued, labels)
		metrics.Set(metrics.QueueLength, float64(length), labels)
		p.logger.WithFields(p.fields(logrus.Fields{"recipient": recipient})).
			WithField("queue_length", length).Info("WhatsApp not connected, message queued")

		notReady := errors.NewNotReadyError(p.name, "queued, not sent yet")
		return &DeliveryResult{
			Recipient: recipient,
			Provider:  p.name,
			Queued:    true,
			Error:     notReady.UserMessage,
		}, notReady
	}
	p.mu.Unlock()

	return p.deliver(ctx, msg, recipient, p.sender(recipient, msg.Body))
}

func (p *SessionProvider) SendBulkMessages(ctx context.Context, msgs []OutboundMessage) []DeliveryResult {
	return p.bulk(ctx, msgs, p.SendMessage)
}

func (p *SessionProvider) sender(recipient, body string) sendFunc {
	return func(ctx context.Context) (string, error) {
		id, err := p.transport.SendText(ctx, recipient, body)
		if err != nil {
			return "", mapSessionError(err)
		}
		return id, nil
	}
}

func (p *SessionProvider) run() {
	defer close(p.done)
	events := p.transport.Events()
	for {
		select {
		case <-p.lifetime.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			p.handleEvent(ev)
		}
	}
}

func (p *SessionProvider) handleEvent(ev types.SessionEvent) {
	at := ev.At
	if at.IsZero() {
		at = p.now()
	}

	switch ev.Type {
	case types.EventQR:
		qr := ev.QR
		p.update(func(s *Status) {
			s.State = StatePairing
			s.QRCode = &qr
		})

	case types.EventOpen:
		p.update(func(s *Status) {
			s.State = StateConnected
			if ev.Phone != "" {
				phone := ev.Phone
				s.Phone = &phone
			}
			s.LastConnected = &at
			s.QRCode = nil
			s.Error = ""
			p.attempts = 0
		})
		go p.drain(p.lifetime)

	case types.EventClose:
		loggedOut := false
		p.update(func(s *Status) {
			s.State = StateDisconnected
			s.QRCode = nil
			if ev.LoggedOut {
				p.loggedOut = true
			}
			loggedOut = p.loggedOut
		})
		if loggedOut {
			p.logger.Info("WhatsApp session logged out, not reconnecting")
			return
		}
		p.scheduleReconnect()

	case types.EventAck:
		p.handleAck(ev, at)

	default:
		p.logger.WithField("event", ev.Type).Debug("Ignoring unknown session event")
	}
}

func (p *SessionProvider) handleAck(ev types.SessionEvent, at time.Time) {
	var status models.DeliveryStatus
	switch {
	case ev.Ack >= types.AckRead:
		status = models.DeliveryStatusRead
	case ev.Ack >= types.AckServer:
		status = models.DeliveryStatusDelivered
	default:
		return
	}
	if p.log == nil {
		return
	}

	logger := p.logger.WithFields(p.fields(logrus.Fields{"transport_id": ev.TransportID})).WithField("status", status)
	updated, err := p.log.UpdateStatusByTransportID(p.lifetime, ev.TransportID, status, at)
	if err != nil {
		errors.LogWarn(logger, errors.NewLogWriteError("receipt", err), "Failed to record delivery receipt")
		return
	}
	if updated {
		logger.Debug("Delivery receipt recorded")
	}
}

func (p *SessionProvider) scheduleReconnect() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.loggedOut || p.lifetime.Err() != nil {
		return
	}
	if p.reconnectTimer != nil {
		p.reconnectTimer.Stop()
	}
	p.attempts++
	attempt := p.attempts
	p.reconnectTimer = time.AfterFunc(p.opts.ReconnectDelay, func() {
		p.reconnect(attempt)
	})
}

func (p *SessionProvider) reconnect(attempt int) {
	p.mu.RLock()
	loggedOut := p.loggedOut
	p.mu.RUnlock()
	if loggedOut || p.lifetime.Err() != nil {
		return
	}

	logger := p.logger.WithField("attempt", attempt)
	logger.Info("Reconnecting WhatsApp session")

	ctx, cancel := context.WithTimeout(p.lifetime, reconnectStartTimeout)
	defer cancel()
	if err := p.transport.Start(ctx); err != nil {
		errors.LogRetryableError(logger, err, "Reconnect attempt failed")
		p.scheduleReconnect()
	}
}

// drain sends queued messages in FIFO order while the session stays
// connected. A message whose send fails because the session dropped goes
// back to the head of the queue.
func (p *SessionProvider) drain(ctx context.Context) {
	if !p.draining.CompareAndSwap(false, true) {
		return
	}
	defer p.draining.Store(false)

	labels := map[string]string{"provider": p.name}
	for {
		if err := p.wait(ctx); err != nil {
			return
		}

		p.mu.Lock()
		if p.status.State != StateConnected || len(p.queue) == 0 {
			p.mu.Unlock()
			return
		}
		item := p.queue[0]
		p.queue[0] = queuedMessage{}
		p.queue = p.queue[1:]
		p.status.Stats.TotalPending--
		p.status.QueueLength = len(p.queue)
		length := len(p.queue)
		p.mu.Unlock()

		metrics.Set(metrics.QueueLength, float64(length), labels)
		if _, err := p.deliver(ctx, item.msg, item.recipient, p.sender(item.recipient, item.msg.Body)); err != nil {
			if p.requeue(item) {
				p.logger.WithError(err).Info("Session dropped while draining, message returned to queue")
				return
			}
			p.logger.WithError(err).WithField("queue_length", length).Debug("Queued message failed")
		}
	}
}

// requeue puts item back at the head of the queue if the session is no
// longer connected
func (p *SessionProvider) requeue(item queuedMessage) bool {
	p.mu.Lock()
	if p.status.State == StateConnected {
		p.mu.Unlock()
		return false
	}
	p.queue = append([]queuedMessage{item}, p.queue...)
	p.status.Stats.TotalPending++
	p.status.QueueLength = len(p.queue)
	length := len(p.queue)
	p.mu.Unlock()

	metrics.Set(metrics.QueueLength, float64(length), map[string]string{"provider": p.name})
	return true
}

// mapSessionError turns WAHA client rejections into TRANSPORT_REJECTED and
// everything else into a retryable API error
func mapSessionError(err error) error {
	var apiErr *whatsapp.APIError
	if stderrors.As(err, &apiErr) {
		code := apiErr.StatusCode
		if code >= 400 && code < 500 && code != http.StatusRequestTimeout && code != http.StatusTooManyRequests {
			return errors.NewTransportRejectedError(ProviderSession, code, apiErr.Message)
		}
		return errors.NewAPIError(ProviderSession, apiErr.Endpoint, code, err)
	}
	return errors.NewAPIError(ProviderSession, "", 0, err)
}
