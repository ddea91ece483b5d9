package gateway

import (
	"context"
	"strings"
	"time"

	"swimnotify/internal/constants"
	"swimnotify/internal/models"
	"swimnotify/pkg/wablas"
	"swimnotify/pkg/whatsapp"
	"swimnotify/pkg/whatsapp/types"

	"github.com/sirupsen/logrus"
)

// Deps are the collaborators handed to the selected provider. Session and
// Hosted replace the default transports, mostly for tests.
type Deps struct {
	Log     MessageLog
	Logger  logrus.FieldLogger
	Verbose bool
	Session SessionTransport
	Hosted  HostedClient
}

// WebhookHandler consumes decoded WAHA webhook events
type WebhookHandler interface {
	HandleWebhook(ctx context.Context, event *types.WebhookEvent) error
}

// New returns the provider selected by cfg.Provider. Unknown values fall
// back to the hosted gateway.
func New(cfg models.WhatsAppConfig, deps Deps) Provider {
	provider, _ := NewWithWebhook(cfg, deps)
	return provider
}

// NewWithWebhook is New plus the consumer for inbound WAHA webhooks. The
// handler is nil when the selected transport takes no webhooks.
func NewWithWebhook(cfg models.WhatsAppConfig, deps Deps) (Provider, WebhookHandler) {
	logger := deps.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	opts := OptionsFromConfig(cfg)
	opts.Verbose = deps.Verbose

	switch selection := strings.ToLower(strings.TrimSpace(cfg.Provider)); selection {
	case ProviderSession, "session", "baileys":
		transport := deps.Session
		if transport == nil {
			client := whatsapp.NewClient(types.ClientConfig{
				BaseURL:     cfg.WAHA.APIBaseURL,
				APIKey:      cfg.WAHA.APIKey,
				SessionName: cfg.WAHA.SessionName,
				Timeout:     time.Duration(cfg.WAHA.TimeoutMs) * time.Millisecond,
			})
			transport = whatsapp.NewTransport(client, logger)
		}
		webhook, _ := transport.(WebhookHandler)
		return NewSessionProvider(transport, deps.Log, logger, opts), webhook

	case ProviderHosted, "hosted":
	default:
		logger.WithField("provider", cfg.Provider).Warn("Unknown WhatsApp provider, falling back to hosted gateway")
	}

	client := deps.Hosted
	if client == nil {
		client = wablas.NewClient(wablas.Config{
			BaseURL: cfg.Wablas.BaseURL,
			Token:   cfg.Wablas.Token,
			Secret:  cfg.Wablas.Secret,
			Timeout: time.Duration(cfg.Wablas.TimeoutMs) * time.Millisecond,
		}, logger)
	}
	return NewHostedProvider(client, deps.Log, logger, opts), nil
}

// OptionsFromConfig converts configured milliseconds into Options
func OptionsFromConfig(cfg models.WhatsAppConfig) Options {
	opts := Options{
		CountryCode:    cfg.CountryCode,
		SendDelay:      time.Duration(cfg.SendDelayMs) * time.Millisecond,
		ReconnectDelay: time.Duration(cfg.ReconnectMs) * time.Millisecond,
		MaxBodyLength:  cfg.MaxBodyLength,
	}
	if cfg.SendDelayMs == 0 {
		opts.SendDelay = constants.DefaultSendDelayMs * time.Millisecond
	}
	return opts
}
