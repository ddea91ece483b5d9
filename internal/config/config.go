package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"swimnotify/internal/constants"
	"swimnotify/internal/models"
	"swimnotify/internal/security"

	"github.com/joho/godotenv"
)

var (
	ErrMissingDBPath     = models.ConfigError{Message: "missing database path"}
	ErrMissingWAHAURL    = models.ConfigError{Message: "missing WAHA API URL for the waha provider"}
	ErrMissingRosterPath = models.ConfigError{Message: "missing roster path while the scheduler is enabled"}
)

// LoadDotEnv loads variables from the given .env files into the process
// environment. Missing files are ignored; existing variables win.
func LoadDotEnv(paths ...string) error {
	for _, p := range paths {
		if _, err := os.Stat(p); err != nil {
			continue
		}
		if err := godotenv.Load(p); err != nil {
			return fmt.Errorf("failed to load %s: %w", p, err)
		}
	}
	return nil
}

func LoadConfig(path string) (*models.Config, error) {
	if err := security.ValidateFilePath(path); err != nil {
		return nil, fmt.Errorf("invalid config path: %w", err)
	}

	file, err := os.ReadFile(path) // #nosec G304 - Path validated by security.ValidateFilePath above
	if err != nil {
		return nil, err
	}

	var config models.Config
	if err := json.Unmarshal(file, &config); err != nil {
		return nil, err
	}

	applyEnvironmentOverrides(&config)
	applyDefaults(&config)

	if err := validate(&config); err != nil {
		return nil, err
	}

	return &config, nil
}

func applyDefaults(c *models.Config) {
	c.WhatsApp.Provider = strings.ToLower(strings.TrimSpace(c.WhatsApp.Provider))
	if c.WhatsApp.Provider == "" {
		c.WhatsApp.Provider = constants.DefaultWhatsAppProvider
	}
	if c.WhatsApp.CountryCode == "" {
		c.WhatsApp.CountryCode = constants.DefaultCountryCode
	}
	if c.WhatsApp.SendDelayMs <= 0 {
		c.WhatsApp.SendDelayMs = constants.DefaultSendDelayMs
	}
	if c.WhatsApp.ReconnectMs <= 0 {
		c.WhatsApp.ReconnectMs = constants.DefaultReconnectDelayMs
	}
	if c.WhatsApp.MaxBodyLength <= 0 {
		c.WhatsApp.MaxBodyLength = constants.DefaultMaxBodyLength
	}
	if c.WhatsApp.WAHA.SessionName == "" {
		c.WhatsApp.WAHA.SessionName = constants.DefaultWAHASessionName
	}
	if c.WhatsApp.WAHA.TimeoutMs <= 0 {
		c.WhatsApp.WAHA.TimeoutMs = constants.DefaultHTTPTimeoutSec * 1000
	}
	if c.WhatsApp.Wablas.TimeoutMs <= 0 {
		c.WhatsApp.Wablas.TimeoutMs = constants.DefaultHTTPTimeoutSec * 1000
	}

	if c.Scheduler.Timezone == "" {
		c.Scheduler.Timezone = constants.DefaultTimezone
	}
	if c.Scheduler.DailyReminder == "" {
		c.Scheduler.DailyReminder = constants.DefaultDailyReminderCron
	}
	if c.Scheduler.WeeklyRecap == "" {
		c.Scheduler.WeeklyRecap = constants.DefaultWeeklyRecapCron
	}
	if c.Scheduler.PaymentReminder == "" {
		c.Scheduler.PaymentReminder = constants.DefaultPaymentReminderCron
	}
	if c.Scheduler.MaxChunkLength <= 0 {
		c.Scheduler.MaxChunkLength = constants.DefaultMaxChunkLength
	}
	if c.Scheduler.PurgeIntervalMin <= 0 {
		c.Scheduler.PurgeIntervalMin = constants.DefaultPurgeIntervalMin
	}

	if c.Server.Port <= 0 {
		c.Server.Port = constants.DefaultServerPort
	}
	if c.Server.ReadTimeoutSec <= 0 {
		c.Server.ReadTimeoutSec = constants.DefaultServerReadTimeoutSec
	}
	if c.Server.WriteTimeoutSec <= 0 {
		c.Server.WriteTimeoutSec = constants.DefaultServerWriteTimeoutSec
	}
	if c.Server.IdleTimeoutSec <= 0 {
		c.Server.IdleTimeoutSec = constants.DefaultServerIdleTimeoutSec
	}
	if c.Server.WebhookMaxBodyBytes <= 0 {
		c.Server.WebhookMaxBodyBytes = constants.DefaultWebhookMaxBodyBytes
	}
	if c.Server.StatusStreamKeepalive <= 0 {
		c.Server.StatusStreamKeepalive = constants.DefaultStatusStreamKeepaliveSec
	}

	if c.Retry.InitialBackoffMs <= 0 {
		c.Retry.InitialBackoffMs = constants.DefaultRetryBackoffMs
	}
	if c.Retry.MaxBackoffMs <= 0 {
		c.Retry.MaxBackoffMs = constants.DefaultMaxBackoffMs
	}
	if c.Retry.MaxAttempts <= 0 {
		c.Retry.MaxAttempts = constants.DefaultMaxAttempts
	}

	if c.Tracing.ServiceName == "" {
		c.Tracing.ServiceName = "swimnotify"
	}
}

func validate(c *models.Config) error {
	if c.Database.Path == "" {
		return ErrMissingDBPath
	}
	if c.WhatsApp.Provider == "waha" && c.WhatsApp.WAHA.APIBaseURL == "" {
		return ErrMissingWAHAURL
	}
	if !c.Scheduler.Disabled && c.Roster.Path == "" {
		return ErrMissingRosterPath
	}
	if c.Scheduler.AdminPhone != "" && strings.Trim(c.Scheduler.AdminPhone, "+0123456789- ") != "" {
		return models.ConfigError{Message: fmt.Sprintf("invalid admin phone: %q", c.Scheduler.AdminPhone)}
	}
	return nil
}

// applyEnvironmentOverrides lets secrets live outside the JSON file
func applyEnvironmentOverrides(c *models.Config) {
	if provider := os.Getenv("WHATSAPP_PROVIDER"); provider != "" {
		c.WhatsApp.Provider = provider
	}
	if url := os.Getenv("WAHA_API_URL"); url != "" {
		c.WhatsApp.WAHA.APIBaseURL = url
	}
	if key := os.Getenv("WAHA_API_KEY"); key != "" {
		c.WhatsApp.WAHA.APIKey = key
	}
	if secret := os.Getenv("SWIMNOTIFY_WEBHOOK_SECRET"); secret != "" {
		c.WhatsApp.WAHA.WebhookSecret = secret
	}
	if url := os.Getenv("WABLAS_BASE_URL"); url != "" {
		c.WhatsApp.Wablas.BaseURL = url
	}
	if token := os.Getenv("WABLAS_TOKEN"); token != "" {
		c.WhatsApp.Wablas.Token = token
	}
	if secret := os.Getenv("WABLAS_SECRET"); secret != "" {
		c.WhatsApp.Wablas.Secret = secret
	}
	if path := os.Getenv("DB_PATH"); path != "" {
		c.Database.Path = path
	}
	if path := os.Getenv("ROSTER_PATH"); path != "" {
		c.Roster.Path = path
	}
	if level := os.Getenv("LOG_LEVEL"); level != "" {
		c.LogLevel = level
	}
}
