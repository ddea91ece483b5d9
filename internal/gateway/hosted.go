package gateway

import (
	"context"
	stderrors "errors"
	"fmt"

	"swimnotify/internal/errors"
	"swimnotify/internal/models"
	"swimnotify/pkg/circuitbreaker"
	"swimnotify/pkg/wablas"

	"github.com/sirupsen/logrus"
)

// HostedClient is the hosted gateway REST API
type HostedClient interface {
	Configured() bool
	SendMessage(ctx context.Context, phone, message string) (*wablas.SendResult, error)
	SendDocument(ctx context.Context, phone string, doc wablas.Document) (*wablas.SendResult, error)
	CheckPhone(ctx context.Context, phone string) (bool, error)
}

// HostedProvider sends through a hosted HTTP gateway authenticated with a
// static token. There is no pairing and no queue: it is ready as soon as a
// token is configured.
type HostedProvider struct {
	core
	client HostedClient
}

func NewHostedProvider(client HostedClient, log MessageLog, logger logrus.FieldLogger, opts Options) *HostedProvider {
	return &HostedProvider{
		core:   newCore(ProviderHosted, log, logger, opts),
		client: client,
	}
}

func (p *HostedProvider) IsReady() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.status.State == StateConnected
}

// Initialize marks the provider connected when a token is configured. The
// token is not verified against the API.
func (p *HostedProvider) Initialize(ctx context.Context) error {
	if !p.client.Configured() {
		const reason = "wablas token is not configured"
		p.update(func(s *Status) {
			s.State = StateError
			s.Error = reason
		})
		return errors.NewConfigError("whatsapp.wablas.token", reason)
	}

	now := p.now()
	p.update(func(s *Status) {
		s.State = StateConnected
		s.Error = ""
		s.LastConnected = &now
	})
	p.logger.Info("Hosted gateway initialized")
	return nil
}

func (p *HostedProvider) Disconnect(ctx context.Context) error {
	p.update(func(s *Status) {
		s.State = StateDisconnected
	})
	return nil
}

func (p *HostedProvider) SendMessage(ctx context.Context, msg OutboundMessage) (*DeliveryResult, error) {
	msg, recipient, err := p.prepare(msg)
	if err != nil {
		return nil, err
	}
	if !p.IsReady() {
		notReady := errors.NewNotReadyError(p.name, "hosted gateway is not initialized")
		return &DeliveryResult{Recipient: recipient, Provider: p.name, Error: notReady.UserMessage}, notReady
	}

	return p.deliver(ctx, msg, recipient, func(ctx context.Context) (string, error) {
		res, err := p.client.SendMessage(ctx, recipient, msg.Body)
		if err != nil {
			return "", mapHostedError(err)
		}
		return res.MessageID, nil
	})
}

func (p *HostedProvider) SendBulkMessages(ctx context.Context, msgs []OutboundMessage) []DeliveryResult {
	return p.bulk(ctx, msgs, p.SendMessage)
}

// SendDocument uploads a file with an optional caption. It follows the same
// logging contract as SendMessage with category document.
func (p *HostedProvider) SendDocument(ctx context.Context, to, filename string, content []byte, caption string, meta map[string]string) (*DeliveryResult, error) {
	if filename == "" {
		return nil, errors.NewValidationError("filename", "", "document filename is required")
	}
	if len(content) == 0 {
		return nil, errors.NewValidationError("content", filename, "document is empty")
	}

	body := fmt.Sprintf("[document] %s", filename)
	if caption != "" {
		body += "\n" + caption
	}
	msg, recipient, err := p.prepare(OutboundMessage{
		To:       to,
		Body:     body,
		Category: models.CategoryDocument,
		Metadata: meta,
	})
	if err != nil {
		return nil, err
	}
	if !p.IsReady() {
		notReady := errors.NewNotReadyError(p.name, "hosted gateway is not initialized")
		return &DeliveryResult{Recipient: recipient, Provider: p.name, Error: notReady.UserMessage}, notReady
	}

	return p.deliver(ctx, msg, recipient, func(ctx context.Context) (string, error) {
		res, err := p.client.SendDocument(ctx, recipient, wablas.Document{
			Filename: filename,
			Content:  content,
			Caption:  caption,
		})
		if err != nil {
			return "", mapHostedError(err)
		}
		return res.MessageID, nil
	})
}

// CheckPhone reports whether the number is registered on WhatsApp
func (p *HostedProvider) CheckPhone(ctx context.Context, phone string) (bool, error) {
	normalized, err := NormalizePhone(phone, p.opts.CountryCode)
	if err != nil {
		return false, err
	}
	if !p.IsReady() {
		return false, errors.NewNotReadyError(p.name, "hosted gateway is not initialized")
	}
	registered, err := p.client.CheckPhone(ctx, normalized)
	if err != nil {
		return false, mapHostedError(err)
	}
	return registered, nil
}

// mapHostedError keeps the remote diagnostic of a rejection verbatim.
// An open breaker is reported the same way, since nothing was sent.
func mapHostedError(err error) error {
	var apiErr *wablas.APIError
	if stderrors.As(err, &apiErr) {
		return errors.NewTransportRejectedError(ProviderHosted, apiErr.StatusCode, apiErr.Message)
	}
	if stderrors.Is(err, circuitbreaker.ErrOpen) {
		return errors.NewTransportRejectedError(ProviderHosted, 0, err.Error())
	}
	return errors.NewAPIError(ProviderHosted, "", 0, err)
}
